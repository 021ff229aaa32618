package raptor

// TransitLayer is the immutable, read-only transit network consumed by
// the engine. It is built once by an external collaborator (see
// internal/transitdata) and shared across every origin search; nothing
// in this package ever mutates it.
type TransitLayer struct {
	Patterns []TripPattern

	// TransfersForStop holds, for stop s, a flat sequence of (targetStop,
	// distanceMillimetres) pairs. Never contains a (s, ...) self-transfer.
	TransfersForStop [][]Transfer

	// PatternsForStop holds, for stop s, the set of pattern indices that
	// serve it. Used to build the candidate-pattern bitset each round.
	PatternsForStop [][]PatternIndex

	// NStops is the dense stop-index space size.
	NStops int
}

type Transfer struct {
	TargetStop StopIndex
	DistanceMM int64
}

// TripPattern is an ordered sequence of stops served by one or more
// trips that all visit those stops in the same order.
type TripPattern struct {
	Stops []StopIndex

	// Pickup[i]/Dropoff[i] describe boarding/alighting rules at stop
	// position i, parallel to Stops.
	Pickup  []PickupDropoff
	Dropoff []PickupDropoff

	Trips []TripSchedule

	// ServicesActive is a bitset over service codes; a pattern "runs" on
	// a date if this set intersects the date's active service codes.
	ServicesActive *BitSet

	HasSchedules   bool
	HasFrequencies bool

	// RouteMode is an opaque mode tag (bus/rail/tram/...) matched against
	// ProfileRequest.TransitModes.
	RouteMode string
}

// TripSchedule is one trip on a pattern: either a fixed-time schedule or
// a set of frequency entries (or, transiently, both arrays present is
// never valid — HasFrequencies distinguishes the two on the owning
// pattern, but each TripSchedule is one or the other).
type TripSchedule struct {
	// ArrivalSeconds/DepartureSeconds are one entry per stop position,
	// sorted and monotonically increasing within the trip. For a
	// frequency trip they hold offsets relative to each entry's start
	// time (see IsFrequency below).
	ArrivalSeconds   []int32
	DepartureSeconds []int32

	ServiceCode int32

	// IsFrequency marks a frequency-based trip. When true,
	// ArrivalSeconds/DepartureSeconds hold the *relative* in-trip offsets
	// (i.e. departure-from-first-stop is always 0), and Frequencies holds
	// the absolute windows.
	IsFrequency bool
	Frequencies []FrequencyEntry
}

// FrequencyEntry is one (startTime, endTime, headway) window of a
// frequency-based trip, plus optional phasing relative to another
// pattern's frequency entry.
type FrequencyEntry struct {
	StartTime     int32
	EndTime       int32
	HeadwaySeconds int32

	// PhaseFromPattern/PhaseFromTrip/PhaseFromEntry identify the source
	// entry this one is phased against; PhaseFromPattern == -1 means
	// unphased. PhaseSeconds is the desired offset delta at the shared
	// stop.
	PhaseFromPattern PatternIndex
	PhaseFromTrip    TripIndex
	PhaseFromEntry   int
	PhaseAtStop      StopIndex
	PhaseSeconds     int32
}

// HasPhase reports whether this entry is phased against another.
func (f FrequencyEntry) HasPhase() bool {
	return f.PhaseFromPattern >= 0
}

// ServicesActiveForDate is supplied by the caller (transitdata) as a
// precomputed bitset over service codes for one search date; the engine
// treats it as an opaque BitSet intersected against each pattern's
// ServicesActive.
type ServiceCalendar struct {
	activeByDate map[string]*BitSet
	numCodes     int
}

func NewServiceCalendar(numCodes int) *ServiceCalendar {
	return &ServiceCalendar{activeByDate: make(map[string]*BitSet), numCodes: numCodes}
}

func (c *ServiceCalendar) SetActive(date string, codes []int32) {
	bs := NewBitSet(c.numCodes)
	for _, code := range codes {
		bs.Set(int(code))
	}
	c.activeByDate[date] = bs
}

func (c *ServiceCalendar) ServicesActiveForDate(date string) *BitSet {
	if bs, ok := c.activeByDate[date]; ok {
		return bs
	}
	return NewBitSet(c.numCodes)
}

func (l *TransitLayer) NumPatterns() int { return len(l.Patterns) }

func (p *TripPattern) StopPosition(stop StopIndex) int {
	for i, s := range p.Stops {
		if s == stop {
			return i
		}
	}
	return -1
}

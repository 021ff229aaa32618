package raptor

// RaptorState holds one round's worth of per-stop labels. Rounds form a
// strictly linear chain via Previous (round r points at r-1), bounded in
// depth by ProfileRequest.MaxRides; states are allocated once per origin
// and mutated in place across departure minutes.
type RaptorState struct {
	Previous *RaptorState

	DepartureTime int

	BestTimes            []int32
	BestNonTransferTimes []int32

	PreviousPatterns []PatternIndex
	PreviousStop     []StopIndex

	// TransferStop[s] is the source stop if BestTimes[s] was last set by
	// a transfer, else -1.
	TransferStop []StopIndex

	NonTransferWaitTime      []int32
	NonTransferInVehicleTime []int32

	StopsUpdated            *BitSet
	NonTransferStopsUpdated *BitSet

	MaxDurationSeconds int
}

// NewRaptorState allocates one round's state for nStops stops.
func NewRaptorState(nStops int, maxDurationSeconds int) *RaptorState {
	s := &RaptorState{
		BestTimes:                make([]int32, nStops),
		BestNonTransferTimes:     make([]int32, nStops),
		PreviousPatterns:         make([]PatternIndex, nStops),
		PreviousStop:             make([]StopIndex, nStops),
		TransferStop:             make([]StopIndex, nStops),
		NonTransferWaitTime:      make([]int32, nStops),
		NonTransferInVehicleTime: make([]int32, nStops),
		StopsUpdated:             NewBitSet(nStops),
		NonTransferStopsUpdated:  NewBitSet(nStops),
		MaxDurationSeconds:       maxDurationSeconds,
	}
	s.reset()
	return s
}

func (s *RaptorState) reset() {
	for i := range s.BestTimes {
		s.BestTimes[i] = Unreached
		s.BestNonTransferTimes[i] = Unreached
		s.PreviousPatterns[i] = -1
		s.PreviousStop[i] = -1
		s.TransferStop[i] = -1
		s.NonTransferWaitTime[i] = 0
		s.NonTransferInVehicleTime[i] = 0
	}
	s.StopsUpdated.ClearAll()
	s.NonTransferStopsUpdated.ClearAll()
}

// Clone produces a deep, independently-mutable copy, used once per
// Monte-Carlo draw to layer randomized frequency boarding on top of the
// accumulated range-raptor scheduled state without corrupting it.
func (s *RaptorState) Clone() *RaptorState {
	c := &RaptorState{
		DepartureTime:            s.DepartureTime,
		BestTimes:                append([]int32(nil), s.BestTimes...),
		BestNonTransferTimes:     append([]int32(nil), s.BestNonTransferTimes...),
		PreviousPatterns:         append([]PatternIndex(nil), s.PreviousPatterns...),
		PreviousStop:             append([]StopIndex(nil), s.PreviousStop...),
		TransferStop:             append([]StopIndex(nil), s.TransferStop...),
		NonTransferWaitTime:      append([]int32(nil), s.NonTransferWaitTime...),
		NonTransferInVehicleTime: append([]int32(nil), s.NonTransferInVehicleTime...),
		StopsUpdated:             s.StopsUpdated.Clone(),
		NonTransferStopsUpdated:  s.NonTransferStopsUpdated.Clone(),
		MaxDurationSeconds:       s.MaxDurationSeconds,
	}
	if s.Previous != nil {
		c.Previous = s.Previous.Clone()
	}
	return c
}

// SetDepartureTime implements the range-raptor minute-advance policy: the
// departure time decreases, per-minute update bitsets are cleared, and
// any stop whose best arrival can no longer beat the new maxDuration
// bound is dropped back to Unreached.
func (s *RaptorState) SetDepartureTime(minute int) {
	s.DepartureTime = minute
	s.StopsUpdated.ClearAll()
	s.NonTransferStopsUpdated.ClearAll()
	bound := int32(minute + s.MaxDurationSeconds)
	for i, t := range s.BestTimes {
		if t != Unreached && t >= bound {
			s.BestTimes[i] = Unreached
			s.BestNonTransferTimes[i] = Unreached
			s.PreviousPatterns[i] = -1
			s.PreviousStop[i] = -1
			s.TransferStop[i] = -1
			s.NonTransferWaitTime[i] = 0
			s.NonTransferInVehicleTime[i] = 0
		}
	}
}

// MinMergePrevious copy-forwards the previous round's state into this
// one wherever it improves, so round r starts as round r-1 plus
// whatever this round's scan discovers. Ties prefer the previous round
// (fewer transfers), so the comparison is strict (<) in SetTimeAtStop
// and the merge itself only overwrites when strictly worse.
func (s *RaptorState) MinMergePrevious() {
	p := s.Previous
	if p == nil {
		return
	}
	for i := range s.BestTimes {
		if p.BestTimes[i] < s.BestTimes[i] {
			s.BestTimes[i] = p.BestTimes[i]
			s.TransferStop[i] = p.TransferStop[i]
		}
		if p.BestNonTransferTimes[i] < s.BestNonTransferTimes[i] {
			s.BestNonTransferTimes[i] = p.BestNonTransferTimes[i]
			s.PreviousPatterns[i] = p.PreviousPatterns[i]
			s.PreviousStop[i] = p.PreviousStop[i]
			s.NonTransferWaitTime[i] = p.NonTransferWaitTime[i]
			s.NonTransferInVehicleTime[i] = p.NonTransferInVehicleTime[i]
		}
	}
}

// SetTimeAtStop applies the state-update rule from §4.2. It rejects any
// time at or past the round's max-duration bound, then updates
// BestNonTransferTimes (for a non-transfer improvement) and/or BestTimes,
// keeping the invariant BestTimes <= BestNonTransferTimes.
func (s *RaptorState) SetTimeAtStop(stop StopIndex, time int, pattern PatternIndex, fromStop StopIndex, waitTime, inVehicleTime int32, isTransfer bool) {
	if time >= s.DepartureTime+s.MaxDurationSeconds {
		return
	}
	t := int32(time)

	if !isTransfer && t < s.BestNonTransferTimes[stop] {
		s.BestNonTransferTimes[stop] = t
		s.PreviousPatterns[stop] = pattern
		s.PreviousStop[stop] = fromStop

		var baseWait, baseInVehicle int32
		if s.Previous != nil {
			if s.Previous.TransferStop[fromStop] != -1 {
				src := s.Previous.TransferStop[fromStop]
				baseWait = s.Previous.NonTransferWaitTime[src]
				baseInVehicle = s.Previous.NonTransferInVehicleTime[src]
			} else {
				baseWait = s.Previous.NonTransferWaitTime[fromStop]
				baseInVehicle = s.Previous.NonTransferInVehicleTime[fromStop]
			}
		}
		s.NonTransferWaitTime[stop] = baseWait + waitTime
		s.NonTransferInVehicleTime[stop] = baseInVehicle + inVehicleTime
		s.NonTransferStopsUpdated.Set(int(stop))
	}

	if t < s.BestTimes[stop] {
		s.BestTimes[stop] = t
		if isTransfer {
			s.TransferStop[stop] = fromStop
		} else {
			s.TransferStop[stop] = -1
		}
		s.StopsUpdated.Set(int(stop))
	}
}

// WasUpdatedThisMinute answers the "updated" predicate for a stop during
// the current within-minute pass (range-raptor-valid case: checked
// against the previous round's per-minute bitset).
func (s *RaptorState) WasUpdatedThisMinute(stop StopIndex) bool {
	return s.Previous != nil && s.Previous.StopsUpdated.Get(int(stop))
}

// WasUpdatedAcrossMinutes answers the "updated" predicate used when
// layering Monte-Carlo frequency results on top of accumulated
// range-raptor state: a stop counts as updated if the previous round's
// best time improved relative to its own previous round.
func (s *RaptorState) WasUpdatedAcrossMinutes(stop StopIndex) bool {
	if s.Previous == nil || s.Previous.Previous == nil {
		return s.Previous != nil && s.Previous.BestTimes[stop] != Unreached
	}
	return s.Previous.BestTimes[stop] < s.Previous.Previous.BestTimes[stop]
}

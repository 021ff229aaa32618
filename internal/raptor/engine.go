package raptor

import "time"

// EngineOptions toggles the optional auxiliary outputs a caller may not
// always need (path reconstruction and the UPPER_BOUND pruning search
// both cost extra work per minute).
type EngineOptions struct {
	WithPaths      bool
	WithUpperBound bool
}

// Engine runs one origin's full range-raptor search: prefilter, the
// scheduled and Monte-Carlo/half-headway passes per departure minute,
// and (optionally) the UPPER_BOUND bound. An Engine is single-origin,
// single-threaded, and owns all of its mutable state (§5): nothing here
// is safe to share across goroutines except the TransitLayer itself.
type Engine struct {
	Layer          *TransitLayer
	Request        *ProfileRequest
	ServicesActive *BitSet
	Prefilter      *PatternPrefilter
	Offsets        *FrequencyOffsets
	AccessTimes    map[StopIndex]int
	Options        EngineOptions

	rounds      []*RaptorState
	upperRounds []*RaptorState
}

// NewEngine builds one Engine for one origin search. seed is only
// consulted when request.LockSchedules is true.
func NewEngine(layer *TransitLayer, request *ProfileRequest, servicesActive *BitSet, accessTimes map[StopIndex]int, seed int64, opts EngineOptions) *Engine {
	maxDur := request.MaxDurationSeconds()
	return &Engine{
		Layer:          layer,
		Request:        request,
		ServicesActive: servicesActive,
		Prefilter:      BuildPatternPrefilter(layer, servicesActive, request.TransitModes),
		Offsets:        NewFrequencyOffsets(layer, request.LockSchedules, seed),
		AccessTimes:    accessTimes,
		Options:        opts,
		rounds:         newRoundChain(layer.NStops, request.MaxRides, maxDur),
		upperRounds:    newRoundChain(layer.NStops, request.MaxRides, maxDur),
	}
}

func newRoundChain(nStops, maxRides, maxDurationSeconds int) []*RaptorState {
	chain := make([]*RaptorState, maxRides+1)
	for r := 0; r <= maxRides; r++ {
		chain[r] = NewRaptorState(nStops, maxDurationSeconds)
		if r > 0 {
			chain[r].Previous = chain[r-1]
		}
	}
	return chain
}

// SearchResult is the engine's full output for one origin.
type SearchResult struct {
	// TravelTimesToStopsPerIteration[iter][stop] is a duration in
	// seconds (Unreached preserved), one row per (minute, draw) pair, in
	// descending-departure-minute order.
	TravelTimesToStopsPerIteration [][]int32

	// Paths[iter][stop] is set only when Options.WithPaths.
	Paths [][]*Path

	// UpperBoundArrivalTimes[stop] holds the tightest worst-case clock
	// arrival found across the whole sweep, set only when
	// Options.WithUpperBound. Valid across every minute and every
	// Monte-Carlo draw (§4.2 "Range-raptor correctness").
	UpperBoundArrivalTimes []int32

	Timings Timings
}

// Search runs the full pipeline: prefilter (already built in
// NewEngine) -> range-raptor sweep over the departure window -> one
// scheduled pass plus one Monte-Carlo/half-headway pass per minute. It
// performs no I/O and has no suspension points (§5).
func (e *Engine) Search() (*SearchResult, error) {
	nStops := e.Layer.NStops
	maxRides := e.Request.MaxRides

	iterationsPerMinute := 1
	if e.Request.MonteCarloDrawsPerMinute > 0 {
		iterationsPerMinute = e.Request.MonteCarloDrawsPerMinute
	}

	firstMinute := e.Request.FromTime / 60
	lastMinute := (e.Request.ToTime+59)/60 - 1

	result := &SearchResult{}
	if e.Options.WithUpperBound {
		result.UpperBoundArrivalTimes = make([]int32, nStops)
		for s := range result.UpperBoundArrivalTimes {
			result.UpperBoundArrivalTimes[s] = Unreached
		}
	}

	for minute := lastMinute; minute >= firstMinute; minute-- {
		depSec := minute * 60

		t0 := time.Now()
		e.advanceMinute(e.rounds, depSec)
		if e.Prefilter.RunningScheduled.Any() {
			for r := 1; r <= maxRides; r++ {
				if err := e.roundBody(e.rounds[r], false, false, BoardingHalfHeadway, nil); err != nil {
					return nil, err
				}
			}
		}
		result.Timings.ScheduledPassDuration += time.Since(t0)

		if e.Options.WithUpperBound {
			t0 = time.Now()
			e.advanceMinute(e.upperRounds, depSec)
			for r := 1; r <= maxRides; r++ {
				if err := e.roundBody(e.upperRounds[r], false, true, BoardingUpperBound, nil); err != nil {
					return nil, err
				}
			}
			final := e.upperRounds[maxRides]
			for s := 0; s < nStops; s++ {
				if final.BestTimes[s] < result.UpperBoundArrivalTimes[s] {
					result.UpperBoundArrivalTimes[s] = final.BestTimes[s]
				}
			}
			result.Timings.UpperBoundDuration += time.Since(t0)
		}

		t0 = time.Now()
		for draw := 0; draw < iterationsPerMinute; draw++ {
			mode := BoardingHalfHeadway
			if e.Request.MonteCarloDrawsPerMinute > 0 {
				mode = BoardingRandom
				if err := e.Offsets.Randomize(); err != nil {
					return nil, err
				}
			}

			mcRounds := cloneChain(e.rounds[maxRides], maxRides)
			for r := 1; r <= maxRides; r++ {
				if err := e.roundBody(mcRounds[r], true, true, mode, e.Offsets); err != nil {
					return nil, err
				}
			}

			final := mcRounds[maxRides]
			result.TravelTimesToStopsPerIteration = append(result.TravelTimesToStopsPerIteration, toDurations(final.BestTimes, depSec))
			if e.Options.WithPaths {
				row := make([]*Path, nStops)
				for s := 0; s < nStops; s++ {
					row[s] = ReconstructPath(final, StopIndex(s))
				}
				result.Paths = append(result.Paths, row)
			}
			result.Timings.Iterations++
		}
		result.Timings.MonteCarloDuration += time.Since(t0)
		result.Timings.Minutes++
	}

	return result, nil
}

// advanceMinute implements the range-raptor minute-advance policy: every
// round's departure time is decreased and per-minute bitsets cleared,
// then the access leg is re-stamped into round 0, which is guaranteed to
// improve every access stop because the departure minute only decreases.
func (e *Engine) advanceMinute(chain []*RaptorState, depSec int) {
	for _, r := range chain {
		r.SetDepartureTime(depSec)
	}
	for stop, accessSeconds := range e.AccessTimes {
		_ = e.setTimeAtStop(chain[0], stop, depSec+accessSeconds, -1, -1, 0, 0, false)
	}
}

// cloneChain deep-copies the round chain rooted at final (inclusive of
// every earlier round via Previous), returning an array indexed
// [0..maxRides] for caller convenience.
func cloneChain(final *RaptorState, maxRides int) []*RaptorState {
	cloned := final.Clone()
	arr := make([]*RaptorState, maxRides+1)
	cur := cloned
	for r := maxRides; r >= 0; r-- {
		arr[r] = cur
		cur = cur.Previous
	}
	return arr
}

// roundBody is the shared round body for both the scheduled pass and
// the Monte-Carlo/half-headway/upper-bound passes: merge-forward from
// the previous round, scan candidate patterns (split into the scheduled
// and frequency running sets), then apply transfers.
func (e *Engine) roundBody(state *RaptorState, acrossMinutes bool, scanFrequency bool, mode BoardingMode, offsets *FrequencyOffsets) error {
	state.MinMergePrevious()

	nPatterns := len(e.Layer.Patterns)
	candidateScheduled := NewBitSet(nPatterns)
	candidateFrequency := NewBitSet(nPatterns)

	addStop := func(s int) {
		for _, pat := range e.Layer.PatternsForStop[s] {
			if e.Prefilter.RunningScheduled.Get(int(pat)) {
				candidateScheduled.Set(int(pat))
			}
			if scanFrequency && e.Prefilter.RunningFrequency.Get(int(pat)) {
				candidateFrequency.Set(int(pat))
			}
		}
	}

	if acrossMinutes {
		for s := 0; s < e.Layer.NStops; s++ {
			if state.WasUpdatedAcrossMinutes(StopIndex(s)) {
				addStop(s)
			}
		}
	} else if state.Previous != nil {
		state.Previous.StopsUpdated.ForEach(addStop)
	}

	var firstErr error
	candidateScheduled.ForEach(func(pi int) {
		if err := e.scanScheduledPattern(state, PatternIndex(pi), acrossMinutes); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	if scanFrequency {
		candidateFrequency.ForEach(func(pi int) {
			if err := e.scanFrequencyPattern(state, PatternIndex(pi), acrossMinutes, mode, offsets); err != nil && firstErr == nil {
				firstErr = err
			}
		})
	}
	if firstErr != nil {
		return firstErr
	}

	return e.applyTransfers(state)
}

func toDurations(best []int32, departureSec int) []int32 {
	out := make([]int32, len(best))
	for i, v := range best {
		if v == Unreached {
			out[i] = Unreached
		} else {
			out[i] = v - int32(departureSec)
		}
	}
	return out
}

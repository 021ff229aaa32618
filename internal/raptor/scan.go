package raptor

// scanScheduledPattern runs the alight/board scan for one pattern's
// scheduled trips over the course of one round.
func (e *Engine) scanScheduledPattern(state *RaptorState, pi PatternIndex, acrossMinutes bool) error {
	pattern := &e.Layer.Patterns[pi]

	onTripIdx := -1
	var boardStop StopIndex = -1
	var boardTime int32
	var waitTime int32

	for pos, stop := range pattern.Stops {
		if onTripIdx >= 0 && pattern.Dropoff[pos].Allowed() {
			trip := &pattern.Trips[onTripIdx]
			alightTime := trip.ArrivalSeconds[pos]
			inVehicleTime := alightTime - boardTime
			if err := e.setTimeAtStop(state, stop, int(alightTime), pi, boardStop, waitTime, inVehicleTime, false); err != nil {
				return err
			}
		}

		if !pattern.Pickup[pos].Allowed() {
			continue
		}
		if !e.stopUpdatedLastRound(state, stop, acrossMinutes) {
			continue
		}
		if state.Previous.PreviousPatterns[stop] == pi {
			continue
		}

		prevBest := state.Previous.BestTimes[stop]
		if prevBest == Unreached {
			continue
		}
		earliestBoardTime := prevBest + MinimumBoardWaitSec

		if onTripIdx == -1 {
			for ti := range pattern.Trips {
				trip := &pattern.Trips[ti]
				if trip.IsFrequency || !e.isServiceActive(trip.ServiceCode) {
					continue
				}
				if trip.DepartureSeconds[pos] > earliestBoardTime {
					onTripIdx = ti
					boardStop = stop
					boardTime = trip.DepartureSeconds[pos]
					waitTime = boardTime - prevBest
					break
				}
			}
		} else {
			for ti := onTripIdx - 1; ti >= 0; ti-- {
				trip := &pattern.Trips[ti]
				if trip.IsFrequency || !e.isServiceActive(trip.ServiceCode) {
					continue
				}
				if trip.DepartureSeconds[pos] > earliestBoardTime {
					onTripIdx = ti
					boardStop = stop
					boardTime = trip.DepartureSeconds[pos]
					waitTime = boardTime - prevBest
				} else {
					break
				}
			}
		}
	}
	return nil
}

// scanFrequencyPattern runs the alight/board scan for one pattern's
// frequency trips, selecting boarding departures via mode (RANDOM,
// UPPER_BOUND or HALF_HEADWAY per §4.2).
func (e *Engine) scanFrequencyPattern(state *RaptorState, pi PatternIndex, acrossMinutes bool, mode BoardingMode, offsets *FrequencyOffsets) error {
	pattern := &e.Layer.Patterns[pi]

	onTripIdx := -1
	var boardStop StopIndex = -1
	var boardPos int
	var boardTime int32
	var waitTime int32

	for pos, stop := range pattern.Stops {
		if onTripIdx >= 0 && pattern.Dropoff[pos].Allowed() {
			trip := &pattern.Trips[onTripIdx]
			relativeTravelTime := trip.ArrivalSeconds[pos] - trip.DepartureSeconds[boardPos]
			alightTime := boardTime + relativeTravelTime
			inVehicleTime := alightTime - boardTime
			if err := e.setTimeAtStop(state, stop, int(alightTime), pi, boardStop, waitTime, inVehicleTime, false); err != nil {
				return err
			}
		}

		if !pattern.Pickup[pos].Allowed() {
			continue
		}
		if !e.stopUpdatedLastRound(state, stop, acrossMinutes) {
			continue
		}
		if state.Previous.PreviousPatterns[stop] == pi {
			continue
		}

		prevBest := state.Previous.BestTimes[stop]
		if prevBest == Unreached {
			continue
		}
		earliestBoardTime := prevBest + MinimumBoardWaitSec

		var remainOnBoard int32 = -1
		if onTripIdx >= 0 {
			trip := &pattern.Trips[onTripIdx]
			remainOnBoard = boardTime + (trip.DepartureSeconds[pos] - trip.DepartureSeconds[boardPos])
		}

		bestCandidate := int32(-1)
		bestTripIdx := -1
		for ti := range pattern.Trips {
			trip := &pattern.Trips[ti]
			if !trip.IsFrequency || !e.isServiceActive(trip.ServiceCode) {
				continue
			}
			tripBest := int32(-1)
			for ei, entry := range trip.Frequencies {
				var cand int32
				switch mode {
				case BoardingRandom:
					off := offsets.Offset(pi, TripIndex(ti), ei)
					cand = boardTimeRandom(entry, trip.DepartureSeconds[pos], earliestBoardTime, off)
				case BoardingUpperBound:
					cand = boardTimeUpperBound(entry, trip.DepartureSeconds[pos], earliestBoardTime)
				default:
					cand = boardTimeHalfHeadway(entry, trip.DepartureSeconds[pos], earliestBoardTime)
				}
				if cand == -1 {
					continue
				}
				if tripBest == -1 || cand < tripBest {
					tripBest = cand
				}
			}
			if tripBest == -1 {
				continue
			}
			if bestCandidate == -1 || tripBest < bestCandidate {
				bestCandidate = tripBest
				bestTripIdx = ti
			}
		}

		if onTripIdx == -1 {
			if bestTripIdx != -1 {
				onTripIdx = bestTripIdx
				boardStop = stop
				boardPos = pos
				boardTime = bestCandidate
				waitTime = boardTime - prevBest
			}
		} else if bestTripIdx != -1 && bestCandidate < remainOnBoard {
			onTripIdx = bestTripIdx
			boardStop = stop
			boardPos = pos
			boardTime = bestCandidate
			waitTime = boardTime - prevBest
		}
	}
	return nil
}

func (e *Engine) stopUpdatedLastRound(state *RaptorState, stop StopIndex, acrossMinutes bool) bool {
	if acrossMinutes {
		return state.WasUpdatedAcrossMinutes(stop)
	}
	return state.WasUpdatedThisMinute(stop)
}

func (e *Engine) isServiceActive(code int32) bool {
	return e.ServicesActive.Get(int(code))
}

// setTimeAtStop wraps RaptorState.SetTimeAtStop with the engine's
// internal-invariant check from §4.2/§7: the wait+in-vehicle
// decomposition may never exceed the elapsed trip duration.
func (e *Engine) setTimeAtStop(state *RaptorState, stop StopIndex, t int, pattern PatternIndex, fromStop StopIndex, waitTime, inVehicleTime int32, isTransfer bool) error {
	state.SetTimeAtStop(stop, t, pattern, fromStop, waitTime, inVehicleTime, isTransfer)
	if !isTransfer && int(state.BestNonTransferTimes[stop]) == t {
		if state.NonTransferWaitTime[stop]+state.NonTransferInVehicleTime[stop] > int32(t-state.DepartureTime) {
			return &InternalInvariantError{Reason: "wait time plus in-vehicle time exceeds elapsed trip duration"}
		}
	}
	return nil
}

// applyTransfers runs the within-round transfer pass over every stop
// updated non-transitively this round (§4.2 "Transfers within a round").
func (e *Engine) applyTransfers(state *RaptorState) error {
	maxWalkSeconds := int64(e.Request.MaxWalkTime) * 60
	var firstErr error
	state.NonTransferStopsUpdated.ForEach(func(si int) {
		stop := StopIndex(si)
		arrivalTime := state.BestNonTransferTimes[stop]
		for _, tr := range e.Layer.TransfersForStop[stop] {
			if tr.DistanceMM > e.Request.WalkSpeedMillimetresPerSecond*maxWalkSeconds {
				continue
			}
			walkSeconds := tr.DistanceMM / e.Request.WalkSpeedMillimetresPerSecond
			target := tr.TargetStop
			if err := e.setTimeAtStop(state, target, int(arrivalTime)+int(walkSeconds), -1, stop, 0, 0, true); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

package raptor

// Leg is one immutable hop of a reconstructed journey, keyed on stop
// index rather than holding a reference into a RaptorState, so a Path
// can outlive the engine that produced it (per the "path reconstruction"
// design note).
type Leg struct {
	FromStop      StopIndex
	ToStop        StopIndex
	Pattern       PatternIndex // -1 for a walk transfer
	DepartureTime int
	ArrivalTime   int
}

type Path struct {
	Legs []Leg
}

// ReconstructPath walks the round-state chain backward from the final
// round through TransferStop/PreviousStop/PreviousPatterns links,
// producing legs in origin-to-destination order. Returns nil if stop
// was never reached, and a Path with no legs if stop was reached only by
// the access leg.
func ReconstructPath(finalRound *RaptorState, stop StopIndex) *Path {
	if finalRound.BestTimes[stop] == Unreached {
		return nil
	}

	var legs []Leg
	round := finalRound
	cur := stop

	for round != nil {
		if round.BestTimes[cur] == Unreached {
			break
		}

		if round.TransferStop[cur] != -1 {
			from := round.TransferStop[cur]
			legs = append(legs, Leg{
				FromStop:      from,
				ToStop:        cur,
				Pattern:       -1,
				DepartureTime: int(round.BestNonTransferTimes[from]),
				ArrivalTime:   int(round.BestTimes[cur]),
			})
			cur = from
			continue
		}

		if round.Previous == nil {
			break
		}

		if round.PreviousStop[cur] == -1 {
			round = round.Previous
			continue
		}

		from := round.PreviousStop[cur]
		pat := round.PreviousPatterns[cur]
		legs = append(legs, Leg{
			FromStop:      from,
			ToStop:        cur,
			Pattern:       pat,
			DepartureTime: int(round.Previous.BestTimes[from]),
			ArrivalTime:   int(round.BestNonTransferTimes[cur]),
		})
		cur = from
		round = round.Previous
	}

	for i, j := 0, len(legs)-1; i < j; i, j = i+1, j-1 {
		legs[i], legs[j] = legs[j], legs[i]
	}
	return &Path{Legs: legs}
}

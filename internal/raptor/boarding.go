package raptor

// Free functions computing a frequency entry's candidate boarding
// departure at a given stop position, one per BoardingMode. Kept as
// plain functions over primitive ints rather than a virtual-dispatch
// interface so the pattern-scan hot loop never calls through a vtable.
//
// All three take the entry's StartTime/EndTime/HeadwaySeconds, the
// trip's relative DepartureSeconds at this stop position, and the
// earliest feasible board time; all return -1 when the entry cannot be
// boarded here.

// boardTimeRandom implements the Monte-Carlo strategy (§4.2 RANDOM).
func boardTimeRandom(entry FrequencyEntry, departureAtPos int32, earliestBoardTime int32, offset int32) int32 {
	firstVehicleAtStop := entry.StartTime + departureAtPos + offset
	lowerBound := earliestBoardTime - 1

	var index int32
	if lowerBound <= firstVehicleAtStop {
		index = 0
	} else {
		index = (lowerBound-firstVehicleAtStop)/entry.HeadwaySeconds + 1
	}

	numberOfTrips := (entry.EndTime-(entry.StartTime+offset))/entry.HeadwaySeconds + 1
	if index >= numberOfTrips {
		return -1
	}
	return firstVehicleAtStop + index*entry.HeadwaySeconds
}

// boardTimeUpperBound implements the worst-case strategy (§4.2
// UPPER_BOUND), valid across every minute and every Monte-Carlo draw.
func boardTimeUpperBound(entry FrequencyEntry, departureAtPos int32, earliestBoardTime int32) int32 {
	earliestEndAtStop := entry.EndTime + departureAtPos
	if earliestEndAtStop < earliestBoardTime {
		return -1
	}
	a := earliestBoardTime + entry.HeadwaySeconds
	b := entry.StartTime + entry.HeadwaySeconds + departureAtPos
	if a > b {
		return a
	}
	return b
}

// boardTimeHalfHeadway implements the deterministic half-headway
// strategy (§4.2 HALF_HEADWAY), used when MonteCarloDrawsPerMinute==0.
// Note this uses a different end-of-service convention than
// boardTimeRandom: it accepts the entry while EndTime+departureAtPos is
// not before earliestBoardTime (the same check boardTimeUpperBound
// makes), whereas boardTimeRandom counts the vehicles that start by
// EndTime after the drawn offset. Both are kept as they are; see the
// dedicated half-headway/Monte-Carlo end-of-service tests.
func boardTimeHalfHeadway(entry FrequencyEntry, departureAtPos int32, earliestBoardTime int32) int32 {
	if entry.EndTime+departureAtPos < earliestBoardTime {
		return -1
	}
	a := earliestBoardTime
	b := entry.StartTime + departureAtPos
	base := a
	if b > a {
		base = b
	}
	return base + entry.HeadwaySeconds/2
}

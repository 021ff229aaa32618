package raptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestHalfHeadwayEndOfService and TestMonteCarloEndOfService cover the
// documented discrepancy (§9 open question b): the half-headway branch
// and the Monte-Carlo branch use different end-of-service conventions
// and are preserved exactly as specified rather than unified.
func TestHalfHeadwayEndOfService(t *testing.T) {
	entry := FrequencyEntry{StartTime: 0, EndTime: 100, HeadwaySeconds: 20}
	departureAtPos := int32(50)

	// endTime + departureAtPos == 150 >= earliestBoardTime(149) -> usable
	require.NotEqual(t, int32(-1), boardTimeHalfHeadway(entry, departureAtPos, 149))
	// endTime + departureAtPos == 150 < earliestBoardTime(151) -> not usable
	require.EqualValues(t, -1, boardTimeHalfHeadway(entry, departureAtPos, 151))
}

func TestMonteCarloEndOfService(t *testing.T) {
	entry := FrequencyEntry{StartTime: 0, EndTime: 100, HeadwaySeconds: 20}
	departureAtPos := int32(50)
	offset := int32(0)

	// numberOfTrips = floor((100-0)/20)+1 = 6, indices 0..5 usable.
	// firstVehicleAtStop = 0+50+0 = 50; earliestBoardTime chosen so the
	// feasible index is exactly 5 (last usable).
	cand := boardTimeRandom(entry, departureAtPos, 50+5*20-5, offset)
	require.NotEqual(t, int32(-1), cand)

	// Push past the last usable index -> unusable, even though the
	// half-headway branch's looser endTime+departureAtPos check would
	// still accept a nearby earliestBoardTime.
	candTooLate := boardTimeRandom(entry, departureAtPos, 50+6*20+1, offset)
	require.EqualValues(t, -1, candTooLate)
}

func TestUpperBoundIsWorstCase(t *testing.T) {
	entry := FrequencyEntry{StartTime: 0, EndTime: 3600, HeadwaySeconds: 600}
	departureAtPos := int32(0)
	earliestBoardTime := int32(120)

	upper := boardTimeUpperBound(entry, departureAtPos, earliestBoardTime)
	require.NotEqual(t, int32(-1), upper)

	for offset := int32(0); offset < entry.HeadwaySeconds; offset += 50 {
		random := boardTimeRandom(entry, departureAtPos, earliestBoardTime, offset)
		if random == -1 {
			continue
		}
		require.GreaterOrEqual(t, upper, random)
	}
}

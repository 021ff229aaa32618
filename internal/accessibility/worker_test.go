package accessibility

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antigravity/transitraptor/internal/propagate"
	"github.com/antigravity/transitraptor/internal/raptor"
)

// buildSingleLineLayer builds one scheduled pattern over stops [0,1,2],
// a single trip departing stop 0 at 70 s with 5-minute hops.
func buildSingleLineLayer() *raptor.TransitLayer {
	bs := raptor.NewBitSet(8)
	bs.Set(0)

	pattern := raptor.TripPattern{
		Stops:          []raptor.StopIndex{0, 1, 2},
		Pickup:         []raptor.PickupDropoff{raptor.PickupDropoffRegular, raptor.PickupDropoffRegular, raptor.PickupDropoffRegular},
		Dropoff:        []raptor.PickupDropoff{raptor.PickupDropoffRegular, raptor.PickupDropoffRegular, raptor.PickupDropoffRegular},
		ServicesActive: bs,
		HasSchedules:   true,
		RouteMode:      "bus",
		Trips: []raptor.TripSchedule{
			{
				ArrivalSeconds:   []int32{70, 370, 670},
				DepartureSeconds: []int32{70, 370, 670},
				ServiceCode:      0,
			},
		},
	}

	return &raptor.TransitLayer{
		Patterns:         []raptor.TripPattern{pattern},
		TransfersForStop: [][]raptor.Transfer{{}, {}, {}},
		PatternsForStop:  [][]raptor.PatternIndex{{0}, {0}, {0}},
		NStops:           3,
	}
}

func servicesActive() *raptor.BitSet {
	bs := raptor.NewBitSet(8)
	bs.Set(0)
	return bs
}

func TestWorkerRunOriginsSingleOrigin(t *testing.T) {
	layer := buildSingleLineLayer()
	w := &Worker{
		Layer:          layer,
		ServicesActive: servicesActive(),
		AccessTimes:    []map[raptor.StopIndex]int{{0: 0}},
	}

	origin := OriginRequest{
		Request: &raptor.ProfileRequest{
			FromTime:                      0,
			ToTime:                        60,
			MaxRides:                      1,
			MaxTripDurationMinutes:        60,
			WalkSpeedMillimetresPerSecond: 1300,
			MaxWalkTime:                   20,
			TransitModes:                  map[string]bool{"bus": true},
		},
		Targets: []Target{
			{NonTransitTravelTimeSeconds: raptor.Unreached},
		},
		EgressModes: []*propagate.EgressMode{
			{
				Name: "walk",
				CostTable: func(targetIdx int) []propagate.EgressCost {
					return []propagate.EgressCost{{Stop: 2, Cost: 0, Unit: propagate.CostUnitDurationSeconds}}
				},
				EgressLegTimeLimitSeconds: 600,
			},
		},
		MaxTravelTimeSeconds: 3600,
		Percentiles:          []int{50, 100},
		Seed:                 1,
	}

	results, err := w.RunOrigins(context.Background(), []OriginRequest{origin})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Percentiles, 1)

	p := results[0].Percentiles[0]
	require.EqualValues(t, 670, p[50])
	require.EqualValues(t, 670, p[100])
}

func TestWorkerRunOriginsRespectsConcurrencyLimit(t *testing.T) {
	layer := buildSingleLineLayer()
	w := &Worker{
		Layer:          layer,
		ServicesActive: servicesActive(),
		AccessTimes:    []map[raptor.StopIndex]int{{0: 0}, {0: 0}, {0: 0}},
		MaxConcurrency: 1,
	}

	req := &raptor.ProfileRequest{
		FromTime:                      0,
		ToTime:                        60,
		MaxRides:                      1,
		MaxTripDurationMinutes:        60,
		WalkSpeedMillimetresPerSecond: 1300,
		MaxWalkTime:                   20,
		TransitModes:                  map[string]bool{"bus": true},
	}
	egressModes := []*propagate.EgressMode{
		{
			Name: "walk",
			CostTable: func(targetIdx int) []propagate.EgressCost {
				return []propagate.EgressCost{{Stop: 2, Cost: 0, Unit: propagate.CostUnitDurationSeconds}}
			},
			EgressLegTimeLimitSeconds: 600,
		},
	}

	origins := make([]OriginRequest, 3)
	for i := range origins {
		origins[i] = OriginRequest{
			Request:              req,
			Targets:              []Target{{NonTransitTravelTimeSeconds: raptor.Unreached}},
			EgressModes:          egressModes,
			MaxTravelTimeSeconds: 3600,
			Percentiles:          []int{50},
			Seed:                 int64(i),
		}
	}

	results, err := w.RunOrigins(context.Background(), origins)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		require.EqualValues(t, 670, r.Percentiles[0][50])
	}
}

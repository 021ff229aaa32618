package propagate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antigravity/transitraptor/internal/raptor"
)

type recordingReducer struct {
	target int
	times  []int32
}

func (r *recordingReducer) Reduce(targetIndex int, perIterationTravelTimes []int32) {
	r.target = targetIndex
	r.times = append([]int32(nil), perIterationTravelTimes...)
}

func TestPropagateTargetPrefersEgressOverNonTransit(t *testing.T) {
	// Two iterations: stop 0 reached at 100s and 500s respectively.
	matrix := [][]int32{{100, raptor.Unreached}, {500, 200}}
	p := NewPropagator(matrix, 2, []*EgressMode{
		{
			Name: "walk",
			CostTable: func(targetIdx int) []EgressCost {
				return []EgressCost{{Stop: 0, Cost: 50, Unit: CostUnitDurationSeconds}}
			},
			EgressLegTimeLimitSeconds: 600,
		},
	}, 1800)

	reducer := &recordingReducer{}
	p.PropagateTarget(0, 1000, reducer)

	require.Equal(t, []int32{150, 550}, reducer.times)
}

func TestPropagateTargetSkipsOverLimit(t *testing.T) {
	matrix := [][]int32{{100}}
	p := NewPropagator(matrix, 1, []*EgressMode{
		{
			Name: "walk",
			CostTable: func(targetIdx int) []EgressCost {
				return []EgressCost{{Stop: 0, Cost: 9000, Unit: CostUnitDurationSeconds}}
			},
			EgressLegTimeLimitSeconds: 600,
		},
	}, 1800)

	reducer := &recordingReducer{}
	p.PropagateTarget(0, 2000, reducer)
	require.Equal(t, []int32{2000}, reducer.times) // egress too slow, falls back to non-transit
}

func TestPropagateTargetRejectsNegativeStopDelay(t *testing.T) {
	matrix := [][]int32{{100}}
	p := NewPropagator(matrix, 1, []*EgressMode{
		{
			Name: "walk",
			CostTable: func(targetIdx int) []EgressCost {
				return []EgressCost{{Stop: 0, Cost: 10, Unit: CostUnitDurationSeconds}}
			},
			EgressLegTimeLimitSeconds: 600,
			StopDelaysSeconds:         map[StopIndex]int{0: -1},
		},
	}, 1800)

	reducer := &recordingReducer{}
	p.PropagateTarget(0, 2000, reducer)
	require.Equal(t, []int32{2000}, reducer.times)
}

func TestPropagateTargetDistanceUnit(t *testing.T) {
	matrix := [][]int32{{100}}
	p := NewPropagator(matrix, 1, []*EgressMode{
		{
			Name: "walk",
			CostTable: func(targetIdx int) []EgressCost {
				return []EgressCost{{Stop: 0, Cost: 130000, Unit: CostUnitDistanceMM}} // 130m
			},
			WalkSpeedMillimetresPerSecond: 1300, // 1.3 m/s
			EgressLegTimeLimitSeconds:     600,
		},
	}, 1800)

	reducer := &recordingReducer{}
	p.PropagateTarget(0, 2000, reducer)
	require.Equal(t, []int32{200}, reducer.times) // 100 + 100s walk
}

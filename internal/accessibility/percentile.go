package accessibility

import (
	"sort"

	"github.com/antigravity/transitraptor/internal/raptor"
)

// PercentileReducer implements propagate.Reducer by collecting every
// iteration's travel time for one target and extracting the requested
// percentiles on demand. It keeps the raw samples rather than a binned
// histogram: accessibility batches run a few hundred iterations per
// origin, not enough for binning to matter, and exact order statistics
// are simpler to reason about in tests.
type PercentileReducer struct {
	percentiles []int
	samples     []int32
	target      int
}

// NewPercentileReducer builds a reducer for the given percentile list
// (e.g. []int{50, 90} for median and p90).
func NewPercentileReducer(percentiles []int) *PercentileReducer {
	return &PercentileReducer{percentiles: percentiles}
}

func (p *PercentileReducer) Reduce(targetIndex int, perIterationTravelTimes []int32) {
	p.target = targetIndex
	p.samples = append([]int32(nil), perIterationTravelTimes...)
}

// Result returns percentile -> travel time seconds over the reached
// samples only: the sorted sample at zero-based index pct*n/100
// (integer division, clamped to the last sample), so the 50th
// percentile of 10 samples is the 6th smallest. A target unreached in
// every iteration yields raptor.Unreached for every requested percentile.
func (p *PercentileReducer) Result() map[int]int32 {
	reached := make([]int32, 0, len(p.samples))
	for _, t := range p.samples {
		if t != raptor.Unreached {
			reached = append(reached, t)
		}
	}
	sort.Slice(reached, func(i, j int) bool { return reached[i] < reached[j] })

	out := make(map[int]int32, len(p.percentiles))
	for _, pct := range p.percentiles {
		if len(reached) == 0 {
			out[pct] = raptor.Unreached
			continue
		}
		rank := (pct * len(reached)) / 100
		if rank >= len(reached) {
			rank = len(reached) - 1
		}
		out[pct] = reached[rank]
	}
	return out
}

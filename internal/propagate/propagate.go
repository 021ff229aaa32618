// Package propagate turns the Raptor engine's per-stop, per-iteration
// arrival-time matrix into per-target, per-iteration travel times by
// combining transit arrivals with precomputed egress cost tables, then
// forwards each target's vector to a pluggable Reducer.
package propagate

import "github.com/antigravity/transitraptor/internal/raptor"

const unreached = raptor.Unreached

// CostUnit tags what an egress cost table's numbers mean.
type CostUnit int

const (
	CostUnitDistanceMM CostUnit = iota
	CostUnitDurationSeconds
)

// EgressCost is one (stop, cost) linkage entry for one target under one
// egress mode.
type EgressCost struct {
	Stop StopIndex
	Cost int64
	Unit CostUnit
}

type StopIndex = raptor.StopIndex

// EgressMode is one precomputed "nearby stops" cost table for one
// egress leg type (walk, bike-share, ...), shared read-only across
// every origin and target.
type EgressMode struct {
	Name string

	// CostTable(targetIdx) returns the stop->cost linkage entries for
	// that target under this mode.
	CostTable func(targetIdx int) []EgressCost

	// WalkSpeedMillimetresPerSecond converts a distance-unit cost to
	// seconds; ignored for duration-unit costs.
	WalkSpeedMillimetresPerSecond int64

	EgressLegTimeLimitSeconds int

	// StopDelaysSeconds, if non-nil, adds a fixed delay per stop
	// (e.g. elevator/transfer penalty); a negative delay forbids the
	// stop for this mode.
	StopDelaysSeconds map[StopIndex]int
}

func (m *EgressMode) costToSeconds(cost int64, unit CostUnit) int64 {
	if unit == CostUnitDurationSeconds {
		return cost
	}
	if m.WalkSpeedMillimetresPerSecond <= 0 {
		return unreached
	}
	return cost / m.WalkSpeedMillimetresPerSecond
}

// Reducer receives one target's full per-iteration travel-time vector.
// Implementations (percentile extraction, path recording, ...) own what
// happens to it; propagate only guarantees it is delivered once per
// target, strictly sequentially within one origin.
type Reducer interface {
	Reduce(targetIndex int, perIterationTravelTimes []int32)
}

// Propagator transposes the stop-major travel-time matrix once per
// origin and reuses it for every target; it is not safe for concurrent
// use by multiple goroutines on the same origin (§4.3).
type Propagator struct {
	nIterations int
	nStops      int

	// travelTimesToStop[stop][iter], built once per origin for cache
	// locality: the per-target loop below scans the cost table once and
	// needs every iteration's arrival at a given stop, contiguous.
	travelTimesToStop [][]int32

	egressModes []*EgressMode
	maxTravelTimeSeconds int32
}

// NewPropagator transposes travelTimesToStopsPerIteration into
// stop-major order. This is unconditional per §4.3: it trades memory
// for a measurable cache-efficiency win in the per-target loop.
func NewPropagator(travelTimesToStopsPerIteration [][]int32, nStops int, egressModes []*EgressMode, maxTravelTimeSeconds int32) *Propagator {
	nIterations := len(travelTimesToStopsPerIteration)
	transposed := make([][]int32, nStops)
	for s := 0; s < nStops; s++ {
		transposed[s] = make([]int32, nIterations)
	}
	for iter, row := range travelTimesToStopsPerIteration {
		for s := 0; s < nStops && s < len(row); s++ {
			transposed[s][iter] = row[s]
		}
	}
	return &Propagator{
		nIterations:          nIterations,
		nStops:               nStops,
		travelTimesToStop:    transposed,
		egressModes:          egressModes,
		maxTravelTimeSeconds: maxTravelTimeSeconds,
	}
}

// PropagateTarget computes perIterationTravelTimes for one target and
// delivers it to reducer. nonTransitTravelTimeSeconds is the direct
// (non-transit) travel time to this target, identical across every
// iteration, used as the initial floor before any egress-stop linkage
// can improve it.
func (p *Propagator) PropagateTarget(targetIndex int, nonTransitTravelTimeSeconds int32, reducer Reducer) {
	perIteration := make([]int32, p.nIterations)
	for i := range perIteration {
		perIteration[i] = nonTransitTravelTimeSeconds
	}

	for _, mode := range p.egressModes {
		costs := mode.CostTable(targetIndex)
		for _, ec := range costs {
			seconds := mode.costToSeconds(ec.Cost, ec.Unit)
			if seconds >= int64(mode.EgressLegTimeLimitSeconds) {
				continue
			}

			delay := int64(0)
			if mode.StopDelaysSeconds != nil {
				if d, ok := mode.StopDelaysSeconds[ec.Stop]; ok {
					if d < 0 {
						continue
					}
					delay = int64(d)
				}
			}
			stopToTargetSeconds := int32(seconds + delay)

			stopRow := p.travelTimesToStop[ec.Stop]
			for iter := 0; iter < p.nIterations; iter++ {
				t := stopRow[iter]
				if t == unreached || t >= p.maxTravelTimeSeconds {
					continue
				}
				if t >= perIteration[iter] {
					continue
				}
				candidate := t + stopToTargetSeconds
				if candidate < perIteration[iter] {
					perIteration[iter] = candidate
				}
			}
		}
	}

	reducer.Reduce(targetIndex, perIteration)
}

// Package accessibility dispatches one raptor.Engine + propagate.Propagator
// per origin, in parallel across many origins, per the routing core's
// concurrency model: each origin owns its own engine and nothing mutable
// is shared across goroutines except the read-only TransitLayer and
// egress cost tables.
package accessibility

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/antigravity/transitraptor/internal/propagate"
	"github.com/antigravity/transitraptor/internal/raptor"
)

// OriginRequest is one origin's full search input.
type OriginRequest struct {
	OriginLat, OriginLon float64
	Request               *raptor.ProfileRequest
	EgressModes           []*propagate.EgressMode
	Targets               []Target
	MaxTravelTimeSeconds  int32
	Percentiles           []int
	Seed                  int64
}

// Target is one destination the worker computes percentiles for.
type Target struct {
	Lat, Lon                    float64
	NonTransitTravelTimeSeconds int32
}

// OriginResult is one origin's output: one percentile -> seconds map per
// target, in Targets order.
type OriginResult struct {
	Percentiles []map[int]int32
	Timings     raptor.Timings
}

// Worker fans out origin searches with a bounded goroutine pool.
type Worker struct {
	Layer          *raptor.TransitLayer
	ServicesActive *raptor.BitSet
	AccessTimes    []map[raptor.StopIndex]int // AccessTimes[i] matches origins[i]

	// MaxConcurrency bounds the number of origins processed at once via
	// errgroup.SetLimit; <= 0 means unlimited.
	MaxConcurrency int
}

// RunOrigins processes every origin independently and returns results in
// the same order as origins. A single origin's failure aborts the whole
// batch and returns the first error encountered, per errgroup semantics.
func (w *Worker) RunOrigins(ctx context.Context, origins []OriginRequest) ([]OriginResult, error) {
	results := make([]OriginResult, len(origins))

	g, ctx := errgroup.WithContext(ctx)
	if w.MaxConcurrency > 0 {
		g.SetLimit(w.MaxConcurrency)
	}

	for i, origin := range origins {
		i, origin := i, origin
		g.Go(func() error {
			accessTimes := w.AccessTimes[i]
			result, err := w.runOrigin(ctx, origin, accessTimes)
			if err != nil {
				return errors.Wrapf(err, "origin %d", i)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (w *Worker) runOrigin(ctx context.Context, origin OriginRequest, accessTimes map[raptor.StopIndex]int) (OriginResult, error) {
	if err := ctx.Err(); err != nil {
		return OriginResult{}, err
	}

	engine := raptor.NewEngine(w.Layer, origin.Request, w.ServicesActive, accessTimes, origin.Seed, raptor.EngineOptions{})
	searchResult, err := engine.Search()
	if err != nil {
		return OriginResult{}, errors.Wrap(err, "running engine search")
	}

	propagator := propagate.NewPropagator(searchResult.TravelTimesToStopsPerIteration, w.Layer.NStops, origin.EgressModes, origin.MaxTravelTimeSeconds)

	percentilesByTarget := make([]map[int]int32, len(origin.Targets))
	for ti, target := range origin.Targets {
		reducer := NewPercentileReducer(origin.Percentiles)
		propagator.PropagateTarget(ti, target.NonTransitTravelTimeSeconds, reducer)
		percentilesByTarget[ti] = reducer.Result()
	}

	return OriginResult{
		Percentiles: percentilesByTarget,
		Timings:     searchResult.Timings,
	}, nil
}

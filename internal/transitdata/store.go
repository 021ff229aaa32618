// Package transitdata builds the immutable raptor.TransitLayer and the
// per-egress-mode linkage tables the routing core consumes, generalizing
// the teacher's flat route/trip model to Raptor's pattern/trip-schedule/
// frequency model.
package transitdata

import (
	"context"

	"github.com/antigravity/transitraptor/internal/propagate"
	"github.com/antigravity/transitraptor/internal/raptor"
)

// Target is one destination point an egress cost table is keyed by.
type Target struct {
	Lat, Lon float64
}

// Store is the collaborator contract the routing core's callers
// (internal/accessibility, cmd/transitraptor) build against. Three
// implementations are provided: PostgresStore and SQLiteStore for real
// data, MemoryStore for fixtures/tests.
type Store interface {
	// LoadTransitLayer builds the full TransitLayer plus the services
	// active on the given date.
	LoadTransitLayer(ctx context.Context, date string) (*raptor.TransitLayer, *raptor.BitSet, error)

	// LoadAccessTimes returns stop->seconds access times from one origin
	// point, for every boardable stop within maxWalkMinutes.
	LoadAccessTimes(ctx context.Context, originLat, originLon float64, walkSpeedMMPerSec int64, maxWalkMinutes int) (map[raptor.StopIndex]int, error)

	// LoadEgressCostTable returns a per-target stop->cost lookup for one
	// egress mode, over the given target set.
	LoadEgressCostTable(ctx context.Context, mode string, targets []Target) (func(targetIdx int) []propagate.EgressCost, error)

	// LoadStopCoordinates returns one (lat, lon) per stop, in the same
	// dense StopIndex order as LoadTransitLayer. Used by internal/geo to
	// turn a reconstructed raptor.Path into real-world geometry.
	LoadStopCoordinates(ctx context.Context) ([]StopRecord, error)
}

// AllModes returns the set of every RouteMode present in layer. A
// caller that doesn't want to filter by mode passes this as
// ProfileRequest.TransitModes instead of an empty map: the prefilter
// treats "requested set" literally, so an empty map matches nothing,
// not everything.
func AllModes(layer *raptor.TransitLayer) map[string]bool {
	modes := make(map[string]bool)
	for _, p := range layer.Patterns {
		modes[p.RouteMode] = true
	}
	return modes
}

package transitdata

import (
	"context"
	"math"

	"github.com/antigravity/transitraptor/internal/propagate"
	"github.com/antigravity/transitraptor/internal/raptor"
)

// StopRecord is one hand-authored stop for a MemoryStore fixture.
type StopRecord struct {
	Lat, Lon float64
}

// MemoryStore is an in-memory fixture builder for tests,
// grounded in tidbyt-gtfs's MemoryStorage: a plain struct of slices/maps
// implementing the same interface as the database-backed stores, built
// up by direct field assignment rather than a query layer.
type MemoryStore struct {
	Stops   []StopRecord
	Layer   raptor.TransitLayer
	Active  *raptor.BitSet
	Egress  map[string]func(targetIdx int) []propagate.EgressCost
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Egress: make(map[string]func(targetIdx int) []propagate.EgressCost),
	}
}

func (m *MemoryStore) LoadTransitLayer(ctx context.Context, date string) (*raptor.TransitLayer, *raptor.BitSet, error) {
	return &m.Layer, m.Active, nil
}

func (m *MemoryStore) LoadAccessTimes(ctx context.Context, originLat, originLon float64, walkSpeedMMPerSec int64, maxWalkMinutes int) (map[raptor.StopIndex]int, error) {
	maxSeconds := maxWalkMinutes * 60
	access := make(map[raptor.StopIndex]int)
	for i, s := range m.Stops {
		distMM := haversineMM(originLat, originLon, s.Lat, s.Lon)
		seconds := distMM / walkSpeedMMPerSec
		if seconds <= int64(maxSeconds) {
			access[raptor.StopIndex(i)] = int(seconds)
		}
	}
	return access, nil
}

func (m *MemoryStore) LoadEgressCostTable(ctx context.Context, mode string, targets []Target) (func(targetIdx int) []propagate.EgressCost, error) {
	if fn, ok := m.Egress[mode]; ok {
		return fn, nil
	}
	return func(targetIdx int) []propagate.EgressCost { return nil }, nil
}

func (m *MemoryStore) LoadStopCoordinates(ctx context.Context) ([]StopRecord, error) {
	return m.Stops, nil
}

// haversineMM returns the great-circle distance in millimetres between
// two lat/lon points.
func haversineMM(lat1, lon1, lat2, lon2 float64) int64 {
	const earthRadiusM = 6371000.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	meters := earthRadiusM * c
	return int64(meters * 1000)
}

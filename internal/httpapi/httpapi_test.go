package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antigravity/transitraptor/internal/propagate"
	"github.com/antigravity/transitraptor/internal/raptor"
	"github.com/antigravity/transitraptor/internal/transitdata"
)

// buildStore mirrors buildScheduledLayer from internal/raptor's tests: a
// single scheduled pattern over stops [0,1,2], trips every 10 minutes,
// 5-minute hops, one walk egress mode landing on stop 2.
func buildStore() *transitdata.MemoryStore {
	bs := raptor.NewBitSet(8)
	bs.Set(0)

	pattern := raptor.TripPattern{
		Stops:          []raptor.StopIndex{0, 1, 2},
		Pickup:         []raptor.PickupDropoff{raptor.PickupDropoffRegular, raptor.PickupDropoffRegular, raptor.PickupDropoffRegular},
		Dropoff:        []raptor.PickupDropoff{raptor.PickupDropoffRegular, raptor.PickupDropoffRegular, raptor.PickupDropoffRegular},
		ServicesActive: bs,
		HasSchedules:   true,
		RouteMode:      "bus",
	}
	for _, startMin := range []int32{0, 10, 20, 30} {
		start := startMin * 60
		pattern.Trips = append(pattern.Trips, raptor.TripSchedule{
			ArrivalSeconds:   []int32{start, start + 300, start + 600},
			DepartureSeconds: []int32{start, start + 300, start + 600},
		})
	}

	store := transitdata.NewMemoryStore()
	store.Stops = []transitdata.StopRecord{{Lat: 0, Lon: 0}, {Lat: 0.01, Lon: 0}, {Lat: 0.02, Lon: 0}}
	store.Layer = raptor.TransitLayer{
		Patterns:         []raptor.TripPattern{pattern},
		TransfersForStop: [][]raptor.Transfer{{}, {}, {}},
		PatternsForStop:  [][]raptor.PatternIndex{{0}, {0}, {0}},
		NStops:           3,
	}
	store.Active = bs
	store.Egress["walk"] = func(targetIdx int) []propagate.EgressCost {
		return []propagate.EgressCost{{Stop: 2, Cost: 0, Unit: propagate.CostUnitDurationSeconds}}
	}
	return store
}

func TestHandleHealthOK(t *testing.T) {
	router := NewRouter(buildStore())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleStopsListsCoordinates(t *testing.T) {
	router := NewRouter(buildStore())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stops", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var stops []transitdata.StopRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stops))
	require.Len(t, stops, 3)
}

func TestHandleStopDetailsNotFound(t *testing.T) {
	router := NewRouter(buildStore())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stops/99", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleAnalyzeDefaultsModesAndPercentiles(t *testing.T) {
	router := NewRouter(buildStore())

	body := map[string]interface{}{
		"origin":                   map[string]float64{"lat": 0, "lon": 0},
		"targets":                  []map[string]interface{}{{"lat": 0.02, "lon": 0, "nonTransitTravelTimeSeconds": raptor.Unreached}},
		"date":                     "2026-01-01",
		"fromTime":                 0,
		"toTime":                   60,
		"maxRides":                 1,
		"maxTripDurationMinutes":   60,
		"walkSpeedMetersPerSecond": 1.3,
		"maxWalkTimeMinutes":       20,
	}

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Targets, 1)
	// The origin sits on stop 0 (access 0 s), so the earliest boardable
	// departure is after 0 + MinimumBoardWaitSec: the minute-10 trip,
	// reaching stop 2 at 1200 s.
	require.EqualValues(t, 1200, resp.Targets[0].Percentiles[50])
}

func TestHandleAnalyzeRejectsEmptyTargets(t *testing.T) {
	router := NewRouter(buildStore())
	payload, _ := json.Marshal(analyzeRequest{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

// Package httpapi is the thin debug/operational HTTP surface over the
// accessibility worker, in the teacher's idiom: a chi router with the
// same middleware stack (request logging, panic recovery, a request
// timeout) and the same stop-lookup endpoint shapes, now backed by
// internal/transitdata and internal/accessibility instead of a single
// flat route/trip schema. Request/response transport is explicitly out
// of scope for the routing core itself (spec §1); this package is the
// ambient server surface the teacher repo ships, carried over and
// generalized.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/cors"

	"github.com/antigravity/transitraptor/internal/accessibility"
	"github.com/antigravity/transitraptor/internal/propagate"
	"github.com/antigravity/transitraptor/internal/raptor"
	"github.com/antigravity/transitraptor/internal/transitdata"
)

// Server holds the one dependency this surface needs: a Store. Each
// /api/v1/analyze call builds its own TransitLayer/engine/worker,
// matching the routing core's per-origin ownership model (§5) - nothing
// here is shared mutable state across requests beyond what Store itself
// chooses to cache.
type Server struct {
	Store transitdata.Store

	// DefaultEgressLegTimeLimitSeconds bounds how far an egress leg may
	// run when a request doesn't specify one explicitly.
	DefaultEgressLegTimeLimitSeconds int
}

// NewRouter builds the full chi router: middleware, CORS, and routes.
func NewRouter(store transitdata.Store) *chi.Mux {
	s := &Server{Store: store, DefaultEgressLegTimeLimitSeconds: 20 * 60}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/stops", s.handleStops)
		r.Get("/stops/{id}", s.handleStopDetails)
	})
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "transitraptor"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Store.LoadStopCoordinates(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, errors.Wrap(err, "store unreachable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStops(w http.ResponseWriter, r *http.Request) {
	coords, err := s.Store.LoadStopCoordinates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, coords)
}

func (s *Server) handleStopDetails(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid stop id"))
		return
	}
	coords, err := s.Store.LoadStopCoordinates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if id < 0 || id >= len(coords) {
		writeError(w, http.StatusNotFound, errors.New("stop not found"))
		return
	}
	writeJSON(w, http.StatusOK, coords[id])
}

// analyzeRequest is one origin's full profile-search request: the
// ProfileRequest fields named in spec.md §6 plus the target set and
// reducer configuration that the routing core takes from its external
// collaborators instead of owning itself.
type analyzeRequest struct {
	Origin struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"origin"`

	Targets []struct {
		Lat                         float64 `json:"lat"`
		Lon                         float64 `json:"lon"`
		NonTransitTravelTimeSeconds int32   `json:"nonTransitTravelTimeSeconds"`
	} `json:"targets"`

	Date                          string   `json:"date"`
	FromTime                      int      `json:"fromTime"`
	ToTime                        int      `json:"toTime"`
	MaxRides                      int      `json:"maxRides"`
	MaxTripDurationMinutes        int      `json:"maxTripDurationMinutes"`
	WalkSpeedMetersPerSecond      float64  `json:"walkSpeedMetersPerSecond"`
	MaxWalkTimeMinutes            int      `json:"maxWalkTimeMinutes"`
	MonteCarloDrawsPerMinute      int      `json:"monteCarloDrawsPerMinute"`
	LockSchedules                 bool     `json:"lockSchedules"`
	TransitModes                  []string `json:"transitModes"`
	EgressModes                   []string `json:"egressModes"`
	Percentiles                   []int    `json:"percentiles"`
	MaxTravelTimeSeconds          int32    `json:"maxTravelTimeSeconds"`
	Seed                          int64    `json:"seed"`
}

type targetResult struct {
	Lat         float64       `json:"lat"`
	Lon         float64       `json:"lon"`
	Percentiles map[int]int32 `json:"percentiles"`
}

type timingsDTO struct {
	ScheduledPassMillis int64 `json:"scheduledPassMillis"`
	MonteCarloMillis    int64 `json:"monteCarloMillis"`
	UpperBoundMillis    int64 `json:"upperBoundMillis"`
	Iterations          int   `json:"iterations"`
	Minutes             int   `json:"minutes"`
}

type analyzeResponse struct {
	Targets []targetResult `json:"targets"`
	Timings timingsDTO     `json:"timings"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decoding request body"))
		return
	}
	if len(req.Targets) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("at least one target is required"))
		return
	}
	if len(req.Percentiles) == 0 {
		req.Percentiles = []int{50, 90}
	}
	if len(req.EgressModes) == 0 {
		req.EgressModes = []string{"walk"}
	}
	if req.MaxTravelTimeSeconds == 0 {
		req.MaxTravelTimeSeconds = int32(req.ToTime-req.FromTime) + int32(req.MaxTripDurationMinutes*60)
	}

	ctx := r.Context()
	walkSpeedMM := int64(req.WalkSpeedMetersPerSecond * 1000)

	layer, servicesActive, err := s.Store.LoadTransitLayer(ctx, req.Date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errors.Wrap(err, "loading transit layer"))
		return
	}

	accessTimes, err := s.Store.LoadAccessTimes(ctx, req.Origin.Lat, req.Origin.Lon, walkSpeedMM, req.MaxWalkTimeMinutes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errors.Wrap(err, "loading access times"))
		return
	}

	targets := make([]accessibility.Target, len(req.Targets))
	dataTargets := make([]transitdata.Target, len(req.Targets))
	for i, t := range req.Targets {
		targets[i] = accessibility.Target{Lat: t.Lat, Lon: t.Lon, NonTransitTravelTimeSeconds: t.NonTransitTravelTimeSeconds}
		dataTargets[i] = transitdata.Target{Lat: t.Lat, Lon: t.Lon}
	}

	egressModes := make([]*propagate.EgressMode, 0, len(req.EgressModes))
	for _, mode := range req.EgressModes {
		costTable, err := s.Store.LoadEgressCostTable(ctx, mode, dataTargets)
		if err != nil {
			writeError(w, http.StatusInternalServerError, errors.Wrapf(err, "loading egress cost table for mode %s", mode))
			return
		}
		limit := s.DefaultEgressLegTimeLimitSeconds
		if req.MaxWalkTimeMinutes > 0 {
			limit = req.MaxWalkTimeMinutes * 60
		}
		egressModes = append(egressModes, &propagate.EgressMode{
			Name:                          mode,
			CostTable:                     costTable,
			WalkSpeedMillimetresPerSecond: walkSpeedMM,
			EgressLegTimeLimitSeconds:     limit,
		})
	}

	var transitModes map[string]bool
	if len(req.TransitModes) == 0 {
		transitModes = transitdata.AllModes(layer)
	} else {
		transitModes = make(map[string]bool, len(req.TransitModes))
		for _, m := range req.TransitModes {
			transitModes[m] = true
		}
	}

	profileRequest := &raptor.ProfileRequest{
		Date:                          req.Date,
		FromTime:                      req.FromTime,
		ToTime:                        req.ToTime,
		MaxRides:                      req.MaxRides,
		MaxTripDurationMinutes:        req.MaxTripDurationMinutes,
		WalkSpeedMillimetresPerSecond: walkSpeedMM,
		MaxWalkTime:                   req.MaxWalkTimeMinutes,
		MonteCarloDrawsPerMinute:      req.MonteCarloDrawsPerMinute,
		LockSchedules:                 req.LockSchedules,
		TransitModes:                  transitModes,
	}

	worker := &accessibility.Worker{
		Layer:          layer,
		ServicesActive: servicesActive,
		AccessTimes:    []map[raptor.StopIndex]int{accessTimes},
		MaxConcurrency: 1,
	}

	origin := accessibility.OriginRequest{
		OriginLat:            req.Origin.Lat,
		OriginLon:            req.Origin.Lon,
		Request:              profileRequest,
		EgressModes:          egressModes,
		Targets:              targets,
		MaxTravelTimeSeconds: req.MaxTravelTimeSeconds,
		Percentiles:          req.Percentiles,
		Seed:                 req.Seed,
	}

	results, err := worker.RunOrigins(ctx, []accessibility.OriginRequest{origin})
	if err != nil {
		writeError(w, http.StatusInternalServerError, errors.Wrap(err, "running accessibility search"))
		return
	}
	result := results[0]

	response := analyzeResponse{
		Targets: make([]targetResult, len(req.Targets)),
		Timings: timingsDTO{
			ScheduledPassMillis: result.Timings.ScheduledPassDuration.Milliseconds(),
			MonteCarloMillis:    result.Timings.MonteCarloDuration.Milliseconds(),
			UpperBoundMillis:    result.Timings.UpperBoundDuration.Milliseconds(),
			Iterations:          result.Timings.Iterations,
			Minutes:             result.Timings.Minutes,
		},
	}
	for i, t := range req.Targets {
		response.Targets[i] = targetResult{Lat: t.Lat, Lon: t.Lon, Percentiles: result.Percentiles[i]}
	}

	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

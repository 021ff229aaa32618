package transitdata

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/antigravity/transitraptor/internal/propagate"
	"github.com/antigravity/transitraptor/internal/raptor"
)

// SQLiteStore mirrors PostgresStore's normalized schema in a single file,
// grounded in the pack's tidbyt-gtfs multi-backend storage pattern: the
// same Store interface, a different driver, for local/dev/test use where
// standing up Postgres+PostGIS isn't worth it. Seconds/millimetre arrays
// are stored as JSON text columns and geography distance is computed in
// Go rather than via PostGIS.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite database")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadTransitLayer(ctx context.Context, date string) (*raptor.TransitLayer, *raptor.BitSet, error) {
	log.Println("Loading transit layer from SQLite...")
	start := time.Now()

	stops, stopIDs, err := s.loadStops(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading stops")
	}
	nStops := len(stops)

	maxServiceCode, err := s.maxServiceCode(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading service codes")
	}

	layer := &raptor.TransitLayer{
		NStops:           nStops,
		PatternsForStop:  make([][]raptor.PatternIndex, nStops),
		TransfersForStop: make([][]raptor.Transfer, nStops),
	}

	patternRows, err := s.db.QueryContext(ctx, `SELECT id, route_mode FROM patterns ORDER BY id`)
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying patterns")
	}
	defer patternRows.Close()

	var patternDBIDs []int
	for patternRows.Next() {
		var dbID int
		var mode string
		if err := patternRows.Scan(&dbID, &mode); err != nil {
			return nil, nil, errors.Wrap(err, "scanning pattern")
		}
		patternDBIDs = append(patternDBIDs, dbID)
		layer.Patterns = append(layer.Patterns, raptor.TripPattern{
			RouteMode:      mode,
			ServicesActive: raptor.NewBitSet(maxServiceCode + 1),
		})
	}
	patternRows.Close()

	tripByDBID := make(map[int]tripRef)

	for pi, dbID := range patternDBIDs {
		if err := s.loadPatternStops(ctx, dbID, pi, stopIDs, layer); err != nil {
			return nil, nil, errors.Wrapf(err, "loading stops for pattern %d", dbID)
		}
		if err := s.loadPatternServices(ctx, dbID, pi, layer); err != nil {
			return nil, nil, errors.Wrapf(err, "loading services for pattern %d", dbID)
		}
		if err := s.loadScheduledTrips(ctx, dbID, pi, layer, tripByDBID); err != nil {
			return nil, nil, errors.Wrapf(err, "loading scheduled trips for pattern %d", dbID)
		}
		if err := s.loadFrequencyTrips(ctx, dbID, pi, layer, tripByDBID, stopIDs); err != nil {
			return nil, nil, errors.Wrapf(err, "loading frequency trips for pattern %d", dbID)
		}
	}

	s.loadTransfers(stops, stopIDs, layer)

	servicesActive, err := s.servicesActiveForDate(ctx, date, maxServiceCode)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading active services")
	}

	log.Printf("Transit layer loaded in %s: %d stops, %d patterns", time.Since(start), nStops, len(layer.Patterns))
	return layer, servicesActive, nil
}

func (s *SQLiteStore) loadStops(ctx context.Context) ([]StopRecord, map[int]raptor.StopIndex, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, lat, lon FROM stops ORDER BY id`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var stops []StopRecord
	ids := make(map[int]raptor.StopIndex)
	for rows.Next() {
		var dbID int
		var rec StopRecord
		if err := rows.Scan(&dbID, &rec.Lat, &rec.Lon); err != nil {
			return nil, nil, err
		}
		ids[dbID] = raptor.StopIndex(len(stops))
		stops = append(stops, rec)
	}
	return stops, ids, nil
}

func (s *SQLiteStore) maxServiceCode(ctx context.Context) (int, error) {
	var max int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(service_code), 0) FROM service_calendar`).Scan(&max)
	return max, err
}

func (s *SQLiteStore) loadPatternStops(ctx context.Context, patternDBID, pi int, stopIDs map[int]raptor.StopIndex, layer *raptor.TransitLayer) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stop_id, pickup_type, dropoff_type
		FROM pattern_stops WHERE pattern_id=? ORDER BY seq`, patternDBID)
	if err != nil {
		return err
	}
	defer rows.Close()

	p := &layer.Patterns[pi]
	for rows.Next() {
		var stopDBID int
		var pickup, dropoff int
		if err := rows.Scan(&stopDBID, &pickup, &dropoff); err != nil {
			return err
		}
		stopIdx, ok := stopIDs[stopDBID]
		if !ok {
			continue
		}
		p.Stops = append(p.Stops, stopIdx)
		p.Pickup = append(p.Pickup, raptor.PickupDropoff(pickup))
		p.Dropoff = append(p.Dropoff, raptor.PickupDropoff(dropoff))
		layer.PatternsForStop[stopIdx] = append(layer.PatternsForStop[stopIdx], raptor.PatternIndex(pi))
	}
	return nil
}

func (s *SQLiteStore) loadPatternServices(ctx context.Context, patternDBID, pi int, layer *raptor.TransitLayer) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT service_code FROM trip_schedules WHERE pattern_id=?
		UNION SELECT service_code FROM trip_frequency_trips WHERE pattern_id=?`, patternDBID, patternDBID)
	if err != nil {
		return err
	}
	defer rows.Close()

	p := &layer.Patterns[pi]
	for rows.Next() {
		var code int
		if err := rows.Scan(&code); err != nil {
			return err
		}
		p.ServicesActive.Set(code)
	}
	return nil
}

func (s *SQLiteStore) loadScheduledTrips(ctx context.Context, patternDBID, pi int, layer *raptor.TransitLayer, tripByDBID map[int]tripRef) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service_code, arrivals_json, departures_json
		FROM trip_schedules WHERE pattern_id=?`, patternDBID)
	if err != nil {
		return err
	}
	defer rows.Close()

	p := &layer.Patterns[pi]
	for rows.Next() {
		var tripDBID, serviceCode int
		var arrivalsJSON, departuresJSON string
		if err := rows.Scan(&tripDBID, &serviceCode, &arrivalsJSON, &departuresJSON); err != nil {
			return err
		}
		var arrivals, departures []int32
		if err := json.Unmarshal([]byte(arrivalsJSON), &arrivals); err != nil {
			return errors.Wrapf(err, "trip %d arrivals", tripDBID)
		}
		if err := json.Unmarshal([]byte(departuresJSON), &departures); err != nil {
			return errors.Wrapf(err, "trip %d departures", tripDBID)
		}
		p.Trips = append(p.Trips, raptor.TripSchedule{
			ArrivalSeconds:   arrivals,
			DepartureSeconds: departures,
			ServiceCode:      int32(serviceCode),
		})
		tripByDBID[tripDBID] = tripRef{pattern: raptor.PatternIndex(pi), trip: raptor.TripIndex(len(p.Trips) - 1)}
		p.HasSchedules = true
	}
	return nil
}

func (s *SQLiteStore) loadFrequencyTrips(ctx context.Context, patternDBID, pi int, layer *raptor.TransitLayer, tripByDBID map[int]tripRef, stopIDs map[int]raptor.StopIndex) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service_code, relative_arrivals_json, relative_departures_json
		FROM trip_frequency_trips WHERE pattern_id=?`, patternDBID)
	if err != nil {
		return err
	}
	defer rows.Close()

	type rawTrip struct {
		dbID        int
		serviceCode int
		arrivals    []int32
		departures  []int32
	}
	var rawTrips []rawTrip
	for rows.Next() {
		var t rawTrip
		var arrivalsJSON, departuresJSON string
		if err := rows.Scan(&t.dbID, &t.serviceCode, &arrivalsJSON, &departuresJSON); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(arrivalsJSON), &t.arrivals); err != nil {
			return errors.Wrapf(err, "trip %d relative arrivals", t.dbID)
		}
		if err := json.Unmarshal([]byte(departuresJSON), &t.departures); err != nil {
			return errors.Wrapf(err, "trip %d relative departures", t.dbID)
		}
		rawTrips = append(rawTrips, t)
	}

	p := &layer.Patterns[pi]
	for _, t := range rawTrips {
		p.Trips = append(p.Trips, raptor.TripSchedule{
			ArrivalSeconds:   t.arrivals,
			DepartureSeconds: t.departures,
			ServiceCode:      int32(t.serviceCode),
			IsFrequency:      true,
		})
		tripByDBID[t.dbID] = tripRef{pattern: raptor.PatternIndex(pi), trip: raptor.TripIndex(len(p.Trips) - 1)}
		p.HasFrequencies = true
	}

	for _, t := range rawTrips {
		entries, err := s.loadFrequencyEntries(ctx, t.dbID, tripByDBID, stopIDs)
		if err != nil {
			return err
		}
		ref := tripByDBID[t.dbID]
		p.Trips[ref.trip].Frequencies = entries
	}
	return nil
}

func (s *SQLiteStore) loadFrequencyEntries(ctx context.Context, tripDBID int, tripByDBID map[int]tripRef, stopIDs map[int]raptor.StopIndex) ([]raptor.FrequencyEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT start_time, end_time, headway_seconds,
		       phase_from_trip_id, phase_from_entry, phase_at_stop_id, phase_seconds
		FROM trip_frequencies WHERE trip_id=? ORDER BY start_time`, tripDBID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []raptor.FrequencyEntry
	for rows.Next() {
		var e raptor.FrequencyEntry
		var phaseTripDBID, phaseStopDBID sql.NullInt64
		if err := rows.Scan(&e.StartTime, &e.EndTime, &e.HeadwaySeconds,
			&phaseTripDBID, &e.PhaseFromEntry, &phaseStopDBID, &e.PhaseSeconds); err != nil {
			return nil, err
		}
		e.PhaseFromPattern = -1
		if phaseTripDBID.Valid {
			if ref, ok := tripByDBID[int(phaseTripDBID.Int64)]; ok {
				e.PhaseFromPattern = ref.pattern
				e.PhaseFromTrip = ref.trip
			}
		}
		if phaseStopDBID.Valid {
			if stopIdx, ok := stopIDs[int(phaseStopDBID.Int64)]; ok {
				e.PhaseAtStop = stopIdx
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// loadTransfers computes nearby-stop pairs directly since SQLite carries
// no PostGIS equivalent; grounded in MemoryStore's haversineMM helper,
// reused here instead of reimplemented.
func (s *SQLiteStore) loadTransfers(stops []StopRecord, stopIDs map[int]raptor.StopIndex, layer *raptor.TransitLayer) {
	const maxTransferMM = 1000 * 1000 // 1km
	for i, a := range stops {
		for j, b := range stops {
			if i == j {
				continue
			}
			distMM := haversineMM(a.Lat, a.Lon, b.Lat, b.Lon)
			if distMM > maxTransferMM {
				continue
			}
			layer.TransfersForStop[i] = append(layer.TransfersForStop[i], raptor.Transfer{
				TargetStop: raptor.StopIndex(j),
				DistanceMM: distMM,
			})
		}
	}
}

func (s *SQLiteStore) servicesActiveForDate(ctx context.Context, date string, maxServiceCode int) (*raptor.BitSet, error) {
	bs := raptor.NewBitSet(maxServiceCode + 1)
	rows, err := s.db.QueryContext(ctx, `SELECT service_code FROM service_calendar WHERE service_date=?`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var code int
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		bs.Set(code)
	}
	return bs, nil
}

func (s *SQLiteStore) LoadAccessTimes(ctx context.Context, originLat, originLon float64, walkSpeedMMPerSec int64, maxWalkMinutes int) (map[raptor.StopIndex]int, error) {
	stops, _, err := s.loadStops(ctx)
	if err != nil {
		return nil, err
	}
	maxSeconds := int64(maxWalkMinutes * 60)

	access := make(map[raptor.StopIndex]int)
	for i, stop := range stops {
		distMM := haversineMM(originLat, originLon, stop.Lat, stop.Lon)
		seconds := distMM / walkSpeedMMPerSec
		if seconds <= maxSeconds {
			access[raptor.StopIndex(i)] = int(seconds)
		}
	}
	return access, nil
}

func (s *SQLiteStore) LoadEgressCostTable(ctx context.Context, mode string, targets []Target) (func(targetIdx int) []propagate.EgressCost, error) {
	stops, _, err := s.loadStops(ctx)
	if err != nil {
		return nil, err
	}
	radiusMM := int64(egressSearchRadiusMeters(mode) * 1000)

	tables := make([][]propagate.EgressCost, len(targets))
	for i, target := range targets {
		var costs []propagate.EgressCost
		for stopIdx, stop := range stops {
			distMM := haversineMM(target.Lat, target.Lon, stop.Lat, stop.Lon)
			if distMM > radiusMM {
				continue
			}
			costs = append(costs, propagate.EgressCost{
				Stop: raptor.StopIndex(stopIdx),
				Cost: distMM,
				Unit: propagate.CostUnitDistanceMM,
			})
		}
		tables[i] = costs
	}

	return func(targetIdx int) []propagate.EgressCost {
		if targetIdx < 0 || targetIdx >= len(tables) {
			return nil
		}
		return tables[targetIdx]
	}, nil
}

// LoadStopCoordinates returns every stop's (lat, lon) in dense
// StopIndex order, reusing the same query loadStops already runs for
// transfer/egress distance computation.
func (s *SQLiteStore) LoadStopCoordinates(ctx context.Context) ([]StopRecord, error) {
	stops, _, err := s.loadStops(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading stop coordinates")
	}
	return stops, nil
}

package transitdata

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/antigravity/transitraptor/internal/propagate"
	"github.com/antigravity/transitraptor/internal/raptor"
)

// PostgresStore is backed by pgx/v5 + pgxpool, generalizing the
// teacher's PostGIS stop/line/schedule queries (ST_DWithin, ST_Distance)
// to patterns with scheduled and frequency trips stored in normalized
// tables (stops, patterns, pattern_stops, trip_schedules,
// trip_frequency_trips, trip_frequencies, service_calendar). Transfers are
// not read from a table: they are computed from stop locations, pairing
// every two stops within 1 km of each other.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// tripRef locates a trip_schedules/trip_frequency_trips row within the
// loaded TransitLayer, used to resolve a frequency entry's phase-from-trip
// reference once every pattern's trips have been loaded.
type tripRef struct {
	pattern raptor.PatternIndex
	trip    raptor.TripIndex
}

func (s *PostgresStore) LoadTransitLayer(ctx context.Context, date string) (*raptor.TransitLayer, *raptor.BitSet, error) {
	log.Println("Loading transit layer from Postgres...")
	start := time.Now()

	stopIDs, err := s.loadStopIDs(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading stops")
	}
	nStops := len(stopIDs)

	maxServiceCode, err := s.maxServiceCode(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading service codes")
	}

	layer := &raptor.TransitLayer{
		NStops:           nStops,
		PatternsForStop:  make([][]raptor.PatternIndex, nStops),
		TransfersForStop: make([][]raptor.Transfer, nStops),
	}

	patternRows, err := s.db.Query(ctx, `SELECT id, route_mode FROM patterns ORDER BY id`)
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

	if err := s.loadTransfers(ctx, stopIDs, layer); err != nil {
		return nil, nil, errors.Wrap(err, "loading transfers")
	}

	servicesActive, err := s.servicesActiveForDate(ctx, date, maxServiceCode)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading active services")
	}

	log.Printf("Transit layer loaded in %s: %d stops, %d patterns", time.Since(start), nStops, len(layer.Patterns))
	return layer, servicesActive, nil
}

func (s *PostgresStore) loadStopIDs(ctx context.Context) (map[int]raptor.StopIndex, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM stops ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[int]raptor.StopIndex)
	for rows.Next() {
		var dbID int
		if err := rows.Scan(&dbID); err != nil {
			return nil, err
		}
		ids[dbID] = raptor.StopIndex(len(ids))
	}
	return ids, nil
}

func (s *PostgresStore) maxServiceCode(ctx context.Context) (int, error) {
	var max int
	err := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(service_code), 0) FROM service_calendar`).Scan(&max)
	return max, err
}

func (s *PostgresStore) loadPatternStops(ctx context.Context, patternDBID, pi int, stopIDs map[int]raptor.StopIndex, layer *raptor.TransitLayer) error {
	rows, err := s.db.Query(ctx, `
		SELECT stop_id, pickup_type, dropoff_type
		FROM pattern_stops WHERE pattern_id=$1 ORDER BY seq`, patternDBID)
	if err != nil {
		return err
	}
	defer rows.Close()

	p := &layer.Patterns[pi]
	for rows.Next() {
		var stopDBID int
		var pickup, dropoff int16
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

func (s *PostgresStore) loadPatternServices(ctx context.Context, patternDBID, pi int, layer *raptor.TransitLayer) error {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT service_code FROM trip_schedules WHERE pattern_id=$1
		UNION SELECT DISTINCT service_code FROM trip_frequency_trips WHERE pattern_id=$1`, patternDBID)
	if err != nil {
		return err
	}
	defer rows.Close()

	p := &layer.Patterns[pi]
	for rows.Next() {
		var code int32
		if err := rows.Scan(&code); err != nil {
			return err
		}
		p.ServicesActive.Set(int(code))
	}
	return nil
}

func (s *PostgresStore) loadScheduledTrips(ctx context.Context, patternDBID, pi int, layer *raptor.TransitLayer, tripByDBID map[int]tripRef) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, service_code, arrivals, departures
		FROM trip_schedules WHERE pattern_id=$1 ORDER BY departures[1]`, patternDBID)
	if err != nil {
		return err
	}
	defer rows.Close()

	p := &layer.Patterns[pi]
	for rows.Next() {
		var tripDBID int
		var serviceCode int32
		var arrivals, departures []int32
		if err := rows.Scan(&tripDBID, &serviceCode, &arrivals, &departures); err != nil {
			return err
		}
		p.Trips = append(p.Trips, raptor.TripSchedule{
			ArrivalSeconds:   arrivals,
			DepartureSeconds: departures,
			ServiceCode:      serviceCode,
		})
		tripByDBID[tripDBID] = tripRef{pattern: raptor.PatternIndex(pi), trip: raptor.TripIndex(len(p.Trips) - 1)}
		p.HasSchedules = true
	}
	return nil
}

func (s *PostgresStore) loadFrequencyTrips(ctx context.Context, patternDBID, pi int, layer *raptor.TransitLayer, tripByDBID map[int]tripRef, stopIDs map[int]raptor.StopIndex) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, service_code, relative_arrivals, relative_departures
		FROM trip_frequency_trips WHERE pattern_id=$1`, patternDBID)
	if err != nil {
		return err
	}
	defer rows.Close()

	type rawTrip struct {
		dbID        int
		serviceCode int32
		arrivals    []int32
		departures  []int32
	}
	var rawTrips []rawTrip
	for rows.Next() {
		var t rawTrip
		if err := rows.Scan(&t.dbID, &t.serviceCode, &t.arrivals, &t.departures); err != nil {
			return err
		}
		rawTrips = append(rawTrips, t)
	}

	p := &layer.Patterns[pi]
	for _, t := range rawTrips {
		p.Trips = append(p.Trips, raptor.TripSchedule{
			ArrivalSeconds:   t.arrivals,
			DepartureSeconds: t.departures,
			ServiceCode:      t.serviceCode,
			IsFrequency:      true,
		})
		tripByDBID[t.dbID] = tripRef{pattern: raptor.PatternIndex(pi), trip: raptor.TripIndex(len(p.Trips) - 1)}
		p.HasFrequencies = true
	}

	// Entries are loaded in a second pass so that phase-from-trip
	// references onto trips of this same pattern (and any pattern loaded
	// earlier) can be resolved against tripByDBID immediately; a forward
	// reference onto a pattern not yet loaded is left unresolved (-1).
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

func (s *PostgresStore) loadFrequencyEntries(ctx context.Context, tripDBID int, tripByDBID map[int]tripRef, stopIDs map[int]raptor.StopIndex) ([]raptor.FrequencyEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT start_time, end_time, headway_seconds,
		       phase_from_trip_id, phase_from_entry, phase_at_stop_id, phase_seconds
		FROM trip_frequencies WHERE trip_id=$1 ORDER BY start_time`, tripDBID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []raptor.FrequencyEntry
	for rows.Next() {
		var e raptor.FrequencyEntry
		var phaseTripDBID, phaseStopDBID *int
		if err := rows.Scan(&e.StartTime, &e.EndTime, &e.HeadwaySeconds,
			&phaseTripDBID, &e.PhaseFromEntry, &phaseStopDBID, &e.PhaseSeconds); err != nil {
			return nil, err
		}
		e.PhaseFromPattern = -1
		if phaseTripDBID != nil {
			if ref, ok := tripByDBID[*phaseTripDBID]; ok {
				e.PhaseFromPattern = ref.pattern
				e.PhaseFromTrip = ref.trip
			}
		}
		if phaseStopDBID != nil {
			if stopIdx, ok := stopIDs[*phaseStopDBID]; ok {
				e.PhaseAtStop = stopIdx
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *PostgresStore) loadTransfers(ctx context.Context, stopIDs map[int]raptor.StopIndex, layer *raptor.TransitLayer) error {
	rows, err := s.db.Query(ctx, `
		SELECT s1.id, s2.id, ST_Distance(s1.location::geography, s2.location::geography)
		FROM stops s1
		JOIN stops s2 ON ST_DWithin(s1.location::geography, s2.location::geography, 1000)
		WHERE s1.id != s2.id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id1, id2 int
		var distanceM float64
		if err := rows.Scan(&id1, &id2, &distanceM); err != nil {
			return err
		}
		from, ok1 := stopIDs[id1]
		to, ok2 := stopIDs[id2]
		if !ok1 || !ok2 {
			continue
		}
		layer.TransfersForStop[from] = append(layer.TransfersForStop[from], raptor.Transfer{
			TargetStop: to,
			DistanceMM: int64(distanceM * 1000),
		})
	}
	return nil
}

func (s *PostgresStore) servicesActiveForDate(ctx context.Context, date string, maxServiceCode int) (*raptor.BitSet, error) {
	bs := raptor.NewBitSet(maxServiceCode + 1)
	rows, err := s.db.Query(ctx, `SELECT service_code FROM service_calendar WHERE service_date=$1`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var code int32
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		bs.Set(int(code))
	}
	return bs, nil
}

func (s *PostgresStore) LoadAccessTimes(ctx context.Context, originLat, originLon float64, walkSpeedMMPerSec int64, maxWalkMinutes int) (map[raptor.StopIndex]int, error) {
	maxMeters := float64(walkSpeedMMPerSec) / 1000.0 * float64(maxWalkMinutes*60)
	rows, err := s.db.Query(ctx, `
		SELECT id, ST_Distance(
			location::geography,
			ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography
		) AS dist
		FROM stops
		WHERE ST_DWithin(location::geography, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography, $3)
	`, originLat, originLon, maxMeters)
	if err != nil {
		return nil, errors.Wrap(err, "querying nearby stops")
	}
	defer rows.Close()

	stopIDs, err := s.loadStopIDs(ctx)
	if err != nil {
		return nil, err
	}

	access := make(map[raptor.StopIndex]int)
	for rows.Next() {
		var dbID int
		var distM float64
		if err := rows.Scan(&dbID, &distM); err != nil {
			return nil, err
		}
		stopIdx, ok := stopIDs[dbID]
		if !ok {
			continue
		}
		seconds := int64(distM*1000) / walkSpeedMMPerSec
		access[stopIdx] = int(seconds)
	}
	return access, nil
}

func (s *PostgresStore) LoadEgressCostTable(ctx context.Context, mode string, targets []Target) (func(targetIdx int) []propagate.EgressCost, error) {
	stopIDs, err := s.loadStopIDs(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([][]propagate.EgressCost, len(targets))
	for i, target := range targets {
		rows, err := s.db.Query(ctx, `
			SELECT id, ST_Distance(
				location::geography,
				ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography
			) AS dist
			FROM stops
			WHERE ST_DWithin(location::geography, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography, $3)
		`, target.Lat, target.Lon, egressSearchRadiusMeters(mode))
		if err != nil {
			return nil, errors.Wrapf(err, "querying egress stops for target %d", i)
		}

		var costs []propagate.EgressCost
		for rows.Next() {
			var dbID int
			var distM float64
			if err := rows.Scan(&dbID, &distM); err != nil {
				rows.Close()
				return nil, err
			}
			stopIdx, ok := stopIDs[dbID]
			if !ok {
				continue
			}
			costs = append(costs, propagate.EgressCost{
				Stop: stopIdx,
				Cost: int64(distM * 1000),
				Unit: propagate.CostUnitDistanceMM,
			})
		}
		rows.Close()
		tables[i] = costs
	}

	return func(targetIdx int) []propagate.EgressCost {
		if targetIdx < 0 || targetIdx >= len(tables) {
			return nil
		}
		return tables[targetIdx]
	}, nil
}

func egressSearchRadiusMeters(mode string) float64 {
	switch mode {
	case "bike":
		return 2000
	default:
		return 1000
	}
}

// LoadStopCoordinates returns every stop's (lat, lon) in dense
// StopIndex order (ORDER BY id, matching loadStopIDs), so the result
// lines up with every other per-stop array the layer produces.
func (s *PostgresStore) LoadStopCoordinates(ctx context.Context) ([]StopRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT ST_Y(location::geometry), ST_X(location::geometry)
		FROM stops ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "querying stop coordinates")
	}
	defer rows.Close()

	var stops []StopRecord
	for rows.Next() {
		var rec StopRecord
		if err := rows.Scan(&rec.Lat, &rec.Lon); err != nil {
			return nil, errors.Wrap(err, "scanning stop coordinates")
		}
		stops = append(stops, rec)
	}
	return stops, nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/antigravity/transitraptor/internal/accessibility"
	"github.com/antigravity/transitraptor/internal/geo"
	"github.com/antigravity/transitraptor/internal/propagate"
	"github.com/antigravity/transitraptor/internal/raptor"
	"github.com/antigravity/transitraptor/internal/transitdata"
)

var (
	originLat, originLon float64
	targetSpecs          []string
	searchDate           string
	fromTime, toTime     int
	maxRides             int
	maxTripDuration      int
	walkSpeed            float64
	maxWalkTime          int
	draws                int
	lockSchedules        bool
	transitModeFlags     []string
	egressModeFlags      []string
	percentileFlags      []int
	maxTravelTime        int
	seed                 int64
	outCSV               string
	outGeoJSON           string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one origin's accessibility search and print percentiles",
	RunE:  analyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.Float64Var(&originLat, "origin-lat", 0, "origin latitude")
	f.Float64Var(&originLon, "origin-lon", 0, "origin longitude")
	f.StringSliceVar(&targetSpecs, "target", nil, "target as lat,lon[,nonTransitSeconds], repeatable")
	f.StringVar(&searchDate, "date", "", "search date, YYYY-MM-DD")
	f.IntVar(&fromTime, "from", 6*3600, "departure window start, seconds after midnight")
	f.IntVar(&toTime, "to", 10*3600, "departure window end, seconds after midnight")
	f.IntVar(&maxRides, "max-rides", 4, "maximum number of transit boardings")
	f.IntVar(&maxTripDuration, "max-trip-duration", 180, "maximum trip duration, minutes")
	f.Float64Var(&walkSpeed, "walk-speed", 1.3, "walk speed, meters per second")
	f.IntVar(&maxWalkTime, "max-walk-time", 15, "maximum walk leg duration, minutes")
	f.IntVar(&draws, "draws", 0, "Monte-Carlo draws per minute; 0 selects half-headway mode")
	f.BoolVar(&lockSchedules, "lock-schedules", false, "use a deterministic seeded RNG for frequency offsets")
	f.StringSliceVar(&transitModeFlags, "mode", nil, "transit modes to include (default: all)")
	f.StringSliceVar(&egressModeFlags, "egress-mode", []string{"walk"}, "egress modes to propagate through")
	f.IntSliceVar(&percentileFlags, "percentile", []int{50, 90}, "percentiles to report")
	f.IntVar(&maxTravelTime, "max-travel-time", 7200, "maximum total travel time, seconds")
	f.Int64Var(&seed, "seed", 1, "RNG seed, used only when --lock-schedules is set")
	f.StringVar(&outCSV, "out", "", "write per-target percentiles to this CSV file")
	f.StringVar(&outGeoJSON, "geojson", "", "write every reached stop's reconstructed path to this GeoJSON file")
}

type parsedTarget struct {
	lat, lon                    float64
	nonTransitTravelTimeSeconds int32
}

func parseTargets(specs []string) ([]parsedTarget, error) {
	if len(specs) == 0 {
		return nil, errors.New("at least one --target is required")
	}
	targets := make([]parsedTarget, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ",")
		if len(parts) < 2 {
			return nil, errors.Errorf("invalid --target %q: expected lat,lon[,nonTransitSeconds]", spec)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid target latitude in %q", spec)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid target longitude in %q", spec)
		}
		nonTransit := int32(raptor.Unreached)
		if len(parts) == 3 {
			n, err := strconv.Atoi(strings.TrimSpace(parts[2]))
			if err != nil {
				return nil, errors.Wrapf(err, "invalid non-transit seconds in %q", spec)
			}
			nonTransit = int32(n)
		}
		targets = append(targets, parsedTarget{lat: lat, lon: lon, nonTransitTravelTimeSeconds: nonTransit})
	}
	return targets, nil
}

func analyze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	targets, err := parseTargets(targetSpecs)
	if err != nil {
		return err
	}

	store, closer, err := openStore(ctx, dsn)
	if err != nil {
		return err
	}
	defer closer.Close()

	walkSpeedMM := int64(walkSpeed * 1000)

	layer, servicesActive, err := store.LoadTransitLayer(ctx, searchDate)
	if err != nil {
		return errors.Wrap(err, "loading transit layer")
	}

	accessTimes, err := store.LoadAccessTimes(ctx, originLat, originLon, walkSpeedMM, maxWalkTime)
	if err != nil {
		return errors.Wrap(err, "loading access times")
	}

	dataTargets := make([]transitdata.Target, len(targets))
	for i, t := range targets {
		dataTargets[i] = transitdata.Target{Lat: t.lat, Lon: t.lon}
	}

	egressModes := make([]*propagate.EgressMode, 0, len(egressModeFlags))
	for _, mode := range egressModeFlags {
		costTable, err := store.LoadEgressCostTable(ctx, mode, dataTargets)
		if err != nil {
			return errors.Wrapf(err, "loading egress cost table for mode %s", mode)
		}
		egressModes = append(egressModes, &propagate.EgressMode{
			Name:                          mode,
			CostTable:                     costTable,
			WalkSpeedMillimetresPerSecond: walkSpeedMM,
			EgressLegTimeLimitSeconds:     maxWalkTime * 60,
		})
	}

	var transitModes map[string]bool
	if len(transitModeFlags) == 0 {
		transitModes = transitdata.AllModes(layer)
	} else {
		transitModes = make(map[string]bool, len(transitModeFlags))
		for _, m := range transitModeFlags {
			transitModes[m] = true
		}
	}

	request := &raptor.ProfileRequest{
		Date:                          searchDate,
		FromTime:                      fromTime,
		ToTime:                        toTime,
		MaxRides:                      maxRides,
		MaxTripDurationMinutes:        maxTripDuration,
		WalkSpeedMillimetresPerSecond: walkSpeedMM,
		MaxWalkTime:                   maxWalkTime,
		MonteCarloDrawsPerMinute:      draws,
		LockSchedules:                 lockSchedules,
		TransitModes:                  transitModes,
	}

	engine := raptor.NewEngine(layer, request, servicesActive, accessTimes, seed, raptor.EngineOptions{
		WithPaths: outGeoJSON != "",
	})
	searchResult, err := engine.Search()
	if err != nil {
		return errors.Wrap(err, "running engine search")
	}

	propagator := propagate.NewPropagator(searchResult.TravelTimesToStopsPerIteration, layer.NStops, egressModes, int32(maxTravelTime))

	rows := make([]csvRow, len(targets))
	for i, t := range targets {
		reducer := accessibility.NewPercentileReducer(percentileFlags)
		propagator.PropagateTarget(i, t.nonTransitTravelTimeSeconds, reducer)
		result := reducer.Result()

		pj, _ := json.Marshal(result)
		rows[i] = csvRow{TargetIndex: i, Lat: t.lat, Lon: t.lon, PercentilesJSON: string(pj)}

		fmt.Printf("target %d (%.5f,%.5f): %s\n", i, t.lat, t.lon, pj)
	}

	if outCSV != "" {
		if err := writeCSV(outCSV, rows); err != nil {
			return err
		}
	}

	if outGeoJSON != "" {
		if err := writeGeoJSON(ctx, store, searchResult); err != nil {
			return err
		}
	}

	return nil
}

type csvRow struct {
	TargetIndex     int     `csv:"target_index"`
	Lat             float64 `csv:"lat"`
	Lon             float64 `csv:"lon"`
	PercentilesJSON string  `csv:"percentiles_json"`
}

func writeCSV(path string, rows []csvRow) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating csv file %s", path)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return errors.Wrap(err, "writing csv")
	}
	return nil
}

// writeGeoJSON dumps the last (earliest-departure) iteration's
// reconstructed path for every reached stop as one FeatureCollection;
// it is a network-reachability debugging aid, not a per-target optimal
// route (the propagator never records which stop a target's best
// iteration passed through).
func writeGeoJSON(ctx context.Context, store transitdata.Store, result *raptor.SearchResult) error {
	if len(result.Paths) == 0 {
		return errors.New("no paths recorded; engine must run with WithPaths enabled")
	}
	coords, err := store.LoadStopCoordinates(ctx)
	if err != nil {
		return errors.Wrap(err, "loading stop coordinates")
	}

	fc := geo.StopsToFeatureCollection(result.Paths[len(result.Paths)-1], coords)
	data, err := fc.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "marshaling geojson")
	}
	if err := os.WriteFile(outGeoJSON, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing geojson file %s", outGeoJSON)
	}
	return nil
}

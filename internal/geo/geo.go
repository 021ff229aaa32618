// Package geo turns a reconstructed raptor.Path into a real GeoJSON
// document, generalizing the teacher's ad hoc Leg.Geometry [][2]float64
// field (built by hand from route stop sequences) into a proper
// paulmach/go.geojson FeatureCollection.
package geo

import (
	"github.com/paulmach/go.geojson"

	"github.com/antigravity/transitraptor/internal/raptor"
	"github.com/antigravity/transitraptor/internal/transitdata"
)

// PathToFeatureCollection renders one reconstructed path as one
// LineString feature per leg, tagged with the leg's pattern (-1 for a
// walk transfer) and its departure/arrival clock times. coords must be
// indexed in the same dense StopIndex order LoadStopCoordinates
// returns; a leg referencing a stop outside that range is skipped
// rather than panicking, since geometry is a debugging aid, not part of
// the routing result itself.
func PathToFeatureCollection(path *raptor.Path, coords []transitdata.StopRecord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if path == nil {
		return fc
	}
	for i, leg := range path.Legs {
		if int(leg.FromStop) >= len(coords) || int(leg.ToStop) >= len(coords) {
			continue
		}
		from := coords[leg.FromStop]
		to := coords[leg.ToStop]
		line := [][]float64{{from.Lon, from.Lat}, {to.Lon, to.Lat}}

		feature := geojson.NewFeature(geojson.NewLineStringGeometry(line))
		feature.Properties = map[string]interface{}{
			"legIndex":      i,
			"fromStop":      int(leg.FromStop),
			"toStop":        int(leg.ToStop),
			"pattern":       int(leg.Pattern),
			"mode":          legMode(leg.Pattern),
			"departureTime": leg.DepartureTime,
			"arrivalTime":   leg.ArrivalTime,
		}
		fc.AddFeature(feature)
	}
	return fc
}

// StopsToFeatureCollection renders every reached stop's path (one
// iteration's worth of ReconstructPath results) as a single
// FeatureCollection, used by the CLI's --geojson flag when no single
// destination stop is singled out.
func StopsToFeatureCollection(paths []*raptor.Path, coords []transitdata.StopRecord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range paths {
		for _, f := range PathToFeatureCollection(p, coords).Features {
			fc.AddFeature(f)
		}
	}
	return fc
}

func legMode(pattern raptor.PatternIndex) string {
	if pattern < 0 {
		return "walk"
	}
	return "transit"
}

// Package export renders scan results as GeoJSON, ESRI ASCII grids and PNG
// previews.
package export

import (
	"fmt"
	"io"

	"github.com/paulmach/orb/geojson"

	"github.com/jengzang/records-cluster-go/internal/models"
)

// ClusterFeatures builds one polygon feature per cluster zone, in order.
func ClusterFeatures(zones []models.ClusterZone) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, z := range zones {
		f := geojson.NewFeature(z.Cluster().Polygon)
		if z.ID > 0 {
			f.ID = z.ID
		}
		f.Properties["radius"] = z.Radius
		f.Properties["fitness"] = z.Fitness
		f.Properties["pop"] = z.Population
		f.Properties["expected"] = z.Expected
		f.Properties["cases"] = z.Cases
		if z.RadiusM != nil {
			f.Properties["radius_m"] = *z.RadiusM
		}
		if z.Geohash != "" {
			f.Properties["geohash"] = z.Geohash
		}
		fc.Append(f)
	}
	return fc
}

// WriteClusters writes the zones as a GeoJSON FeatureCollection.
func WriteClusters(w io.Writer, zones []models.ClusterZone) error {
	data, err := ClusterFeatures(zones).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode clusters: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write clusters: %w", err)
	}
	return nil
}

package detection

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/jengzang/records-cluster-go/internal/hotspot"
	"github.com/jengzang/records-cluster-go/internal/models"
	"github.com/jengzang/records-cluster-go/internal/spatial"
)

// Zones converts clusters for storage. Geographic runs get a metric radius
// and a geohash label sized to the circle.
func Zones(runID int64, clusters []hotspot.Cluster, geographic bool) []models.ClusterZone {
	zones := make([]models.ClusterZone, 0, len(clusters))
	for _, c := range clusters {
		z := models.NewClusterZone(runID, c)
		if geographic {
			metres := spatial.RadiusMeters(c.Center, c.Radius)
			z.RadiusM = &metres
			z.Geohash = spatial.EncodeGeohash(c.Center, spatial.GeohashPrecisionForDistance(metres))
		}
		zones = append(zones, z)
	}
	return zones
}

// Summarize describes the fitness distribution of clusters. raster may be nil.
func Summarize(set *hotspot.WeightedPointSet, clusters []hotspot.Cluster, raster *hotspot.Raster) *models.ScanSummary {
	summary := &models.ScanSummary{
		Clusters:      len(clusters),
		Density:       set.Density,
		PopulationSum: set.Population.Sum(),
		CaseSum:       set.Cases.Sum(),
	}
	if raster != nil {
		summary.RasterMax = raster.Max()
	}
	if len(clusters) == 0 {
		return summary
	}

	fitness := make([]float64, len(clusters))
	for i, c := range clusters {
		fitness[i] = c.Fitness
	}
	sort.Float64s(fitness)

	summary.FitnessMean = stat.Mean(fitness, nil)
	if len(fitness) > 1 {
		summary.FitnessStdDev = stat.StdDev(fitness, nil)
	}
	summary.FitnessMedian = stat.Quantile(0.5, stat.Empirical, fitness, nil)
	summary.FitnessP90 = stat.Quantile(0.9, stat.Empirical, fitness, nil)
	summary.FitnessMax = floats.Max(fitness)
	return summary
}

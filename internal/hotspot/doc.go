// Package hotspot implements the cluster-detection engine: weighted point
// indexes, the Poisson significance test, the two circle scan strategies
// (Besag-Newell and GAM) and the kernel density rasterizer.
//
// Key types: WeightedPointSet, FitnessFunction, Circle, Cluster, Raster.
//
// No SQL or HTTP code belongs in this package. Callers in
// internal/analysis load points, run a Scanner and persist the results.
package hotspot

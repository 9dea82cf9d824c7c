package models

import (
	"github.com/paulmach/orb"

	"github.com/jengzang/records-cluster-go/internal/hotspot"
)

// ClusterZone is a stored significant circle.
type ClusterZone struct {
	ID         int64    `json:"id" db:"id"`
	RunID      int64    `json:"run_id" db:"run_id"`
	CenterX    float64  `json:"center_x" db:"center_x"`
	CenterY    float64  `json:"center_y" db:"center_y"`
	Radius     float64  `json:"radius" db:"radius"`
	RadiusM    *float64 `json:"radius_m,omitempty" db:"radius_m"` // geographic runs only
	Geohash    string   `json:"geohash,omitempty" db:"geohash"`   // geographic runs only
	Fitness    float64  `json:"fitness" db:"fitness"`
	Population float64  `json:"pop" db:"population"`
	Expected   float64  `json:"expected" db:"expected"`
	Cases      float64  `json:"cases" db:"cases"`
}

// Cluster rebuilds the engine cluster, circle geometry included.
func (z ClusterZone) Cluster() hotspot.Cluster {
	return hotspot.Cluster{
		Circle:     hotspot.NewCircle(orb.Point{z.CenterX, z.CenterY}, z.Radius),
		Fitness:    z.Fitness,
		Population: z.Population,
		Expected:   z.Expected,
		Cases:      z.Cases,
	}
}

// NewClusterZone converts an engine cluster for storage.
func NewClusterZone(runID int64, c hotspot.Cluster) ClusterZone {
	return ClusterZone{
		RunID:      runID,
		CenterX:    c.Center[0],
		CenterY:    c.Center[1],
		Radius:     c.Radius,
		Fitness:    c.Fitness,
		Population: c.Population,
		Expected:   c.Expected,
		Cases:      c.Cases,
	}
}

// ClusterFilter represents filter parameters for listing clusters
type ClusterFilter struct {
	MinFitness float64   `form:"min_fitness"`
	BBox       *orb.Bound `form:"-"` // centres inside this box
	Limit      int       `form:"limit"`
}

// RasterInfo is the georeferencing of a stored density raster.
type RasterInfo struct {
	RunID    int64     `json:"run_id"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	CellSize float64   `json:"cell_size"`
	Extent   orb.Bound `json:"extent"`
	MaxValue float64   `json:"max_value"`
}

package models

import (
	"time"

	"github.com/jengzang/records-cluster-go/internal/hotspot"
)

// ScanRun is one execution of a scan strategy over a point set.
type ScanRun struct {
	ID         int64  `json:"id" db:"id"`
	PointSetID string `json:"point_set_id" db:"point_set_id"`
	Strategy   string `json:"strategy" db:"strategy"` // besag_newell, gam

	// Status
	Status          string  `json:"status" db:"status"` // pending, running, completed, failed
	ProgressPercent float64 `json:"progress_percent" db:"progress_percent"`

	// Input parameters
	Params ScanParams `json:"params" db:"params_json"`

	// Results
	ClusterCount  int          `json:"cluster_count" db:"cluster_count"`
	ResultSummary *ScanSummary `json:"result_summary,omitempty" db:"result_summary"`
	ErrorMessage  string       `json:"error_message,omitempty" db:"error_message"`

	// Metadata
	CreatedBy   string     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// ScanParams is the stored form of a scan request.
type ScanParams struct {
	Kind        string                    `json:"kind,omitempty"`
	Threshold   float64                   `json:"threshold,omitempty"`
	BesagNewell hotspot.BesagNewellParams `json:"besag_newell"`
	GAM         hotspot.GAMParams         `json:"gam"`
	Raster      hotspot.RasterParams      `json:"raster"`
}

// Engine converts stored parameters into engine parameters.
func (p ScanParams) Engine() (hotspot.Params, error) {
	kind, err := hotspot.ParseFitnessKind(p.Kind)
	if err != nil {
		return hotspot.Params{}, err
	}
	return hotspot.Params{
		Kind:        kind,
		Threshold:   p.Threshold,
		BesagNewell: p.BesagNewell,
		GAM:         p.GAM,
	}, nil
}

// ScanSummary describes the fitness distribution of a finished run.
type ScanSummary struct {
	Clusters       int     `json:"clusters"`
	Density        float64 `json:"density"`
	PopulationSum  float64 `json:"population_sum"`
	CaseSum        float64 `json:"case_sum"`
	FitnessMean    float64 `json:"fitness_mean"`
	FitnessStdDev  float64 `json:"fitness_std_dev"`
	FitnessMedian  float64 `json:"fitness_median"`
	FitnessP90     float64 `json:"fitness_p90"`
	FitnessMax     float64 `json:"fitness_max"`
	RasterMax      float64 `json:"raster_max"`
	DurationMillis int64   `json:"duration_ms"`
}

// ScanRunFilter represents filter parameters for listing runs
type ScanRunFilter struct {
	PointSetID string `form:"point_set_id"`
	Strategy   string `form:"strategy"`
	Status     string `form:"status"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

// RunStatus constants
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

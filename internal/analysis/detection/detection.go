// Package detection runs the hotspot scanners as registered analyzers over
// stored point sets.
package detection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jengzang/records-cluster-go/internal/analysis"
	"github.com/jengzang/records-cluster-go/internal/hotspot"
	"github.com/jengzang/records-cluster-go/internal/models"
	"github.com/jengzang/records-cluster-go/internal/repository"
)

func init() {
	for _, strategy := range []string{hotspot.StrategyBesagNewell, hotspot.StrategyGAM} {
		strategy := strategy
		analysis.RegisterAnalyzer(strategy, func(db *sql.DB) analysis.Analyzer {
			return NewScanAnalyzer(db, strategy, hotspot.Options{})
		})
	}
}

// Progress bands of a run.
const (
	progressPopulation = 30.0
	progressCases      = 50.0
	progressScanned    = 80.0
	progressRasterized = 95.0
)

// ScanAnalyzer loads a point set, scans it with one strategy, and stores the
// clusters, their density raster, and a summary.
type ScanAnalyzer struct {
	*analysis.BatchAnalyzer
	clusters *repository.ClusterRepository
	opts     hotspot.Options
}

// NewScanAnalyzer creates an analyzer for a hotspot strategy
func NewScanAnalyzer(db *sql.DB, strategy string, opts hotspot.Options) *ScanAnalyzer {
	return &ScanAnalyzer{
		BatchAnalyzer: analysis.NewBatchAnalyzer(db, strategy, analysis.DefaultBatchSize),
		clusters:      repository.NewClusterRepository(db),
		opts:          opts,
	}
}

// Analyze executes a scan run
func (a *ScanAnalyzer) Analyze(ctx context.Context, runID int64) error {
	start := time.Now()
	log.Printf("[%s] Starting analysis (run_id=%d)", a.Name, runID)

	run, err := a.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	if err := a.scan(ctx, run, start); err != nil {
		if markErr := a.MarkRunAsFailed(runID, err.Error()); markErr != nil {
			log.Printf("[%s] failed to mark run as failed: %v (run_id=%d)", a.Name, markErr, runID)
		}
		return err
	}
	return nil
}

// scan runs every stage of a loaded run and stores its results.
func (a *ScanAnalyzer) scan(ctx context.Context, run *models.ScanRun, start time.Time) error {
	runID := run.ID
	if err := a.MarkRunAsRunning(runID); err != nil {
		return fmt.Errorf("failed to mark run as running: %w", err)
	}

	pointSet, err := a.Points.GetByID(run.PointSetID)
	if err != nil {
		return fmt.Errorf("failed to load point set: %w", err)
	}

	population, err := a.loadIndex(ctx, runID, pointSet.ID, models.RolePopulation, 0, progressPopulation)
	if err != nil {
		return err
	}
	cases, err := a.loadIndex(ctx, runID, pointSet.ID, models.RoleCase, progressPopulation, progressCases)
	if err != nil {
		return err
	}
	set, err := hotspot.NewWeightedPointSet(population, cases)
	if err != nil {
		return err
	}

	params, err := run.Params.Engine()
	if err != nil {
		return err
	}
	scanner, err := hotspot.NewScanner(a.Name, params, a.opts)
	if err != nil {
		return err
	}

	found, err := scanner.Scan(ctx, set)
	if err != nil {
		return fmt.Errorf("failed to scan: %w", err)
	}
	log.Printf("[%s] %d significant circles (run_id=%d)", a.Name, len(found), runID)
	if err := a.Runs.UpdateProgress(runID, progressScanned); err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}

	zones := Zones(runID, found, pointSet.Geographic)
	if err := a.clusters.ReplaceForRun(ctx, runID, zones); err != nil {
		return fmt.Errorf("failed to store clusters: %w", err)
	}

	rasterParams := run.Params.Raster
	rasterParams.Geographic = pointSet.Geographic
	raster, err := Rasterize(scanner, set, found, rasterParams, a.opts)
	switch {
	case errors.Is(err, hotspot.ErrEmptyExtent):
		log.Printf("[%s] extent has no area, no raster stored (run_id=%d)", a.Name, runID)
	case err != nil:
		return err
	default:
		rasters, err := repository.NewRasterRepository(a.DB)
		if err != nil {
			return err
		}
		if err := rasters.Save(ctx, runID, raster); err != nil {
			return fmt.Errorf("failed to store raster: %w", err)
		}
	}
	if err := a.Runs.UpdateProgress(runID, progressRasterized); err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}

	summary := Summarize(set, found, raster)
	summary.DurationMillis = time.Since(start).Milliseconds()
	if err := a.MarkRunAsCompleted(runID, len(found), summary); err != nil {
		return fmt.Errorf("failed to mark run as completed: %w", err)
	}

	log.Printf("[%s] Analysis completed: %d clusters in %v (run_id=%d)", a.Name, len(found), time.Since(start), runID)
	return nil
}

func (a *ScanAnalyzer) loadIndex(ctx context.Context, runID int64, setID, role string, from, to float64) (*hotspot.PointIndex, error) {
	var points []hotspot.WeightedPoint
	_, err := a.ProcessInBatches(ctx, runID, setID, role, from, to, func(batch []models.PointRecord) error {
		for _, rec := range batch {
			points = append(points, rec.WeightedPoint())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s points: %w", role, err)
	}
	return hotspot.NewPointIndex(points), nil
}

// Rasterize accumulates the kernels of clusters over the extent scanner
// placed them in.
func Rasterize(scanner hotspot.Scanner, set *hotspot.WeightedPointSet, clusters []hotspot.Cluster, params hotspot.RasterParams, opts hotspot.Options) (*hotspot.Raster, error) {
	extent, err := scanner.Extent(set)
	if err != nil {
		return nil, err
	}
	rasterizer, err := hotspot.NewDensityRasterizer(extent, params, opts)
	if err != nil {
		return nil, err
	}
	rasterizer.Accumulate(clusters)
	return rasterizer.Raster(), nil
}

package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"

	"github.com/jengzang/records-cluster-go/internal/analysis"
	"github.com/jengzang/records-cluster-go/internal/config"
	"github.com/jengzang/records-cluster-go/internal/export"
	"github.com/jengzang/records-cluster-go/internal/hotspot"
	"github.com/jengzang/records-cluster-go/internal/models"
	"github.com/jengzang/records-cluster-go/internal/monitor"
	"github.com/jengzang/records-cluster-go/internal/repository"
)

// DefaultConcurrentRuns bounds the number of runs analyzed at once.
const DefaultConcurrentRuns = 2

// CreateScanRequest asks for a new run. Params is a partial ScanParams
// document overlaid on the configured defaults.
type CreateScanRequest struct {
	PointSetID string
	Strategy   string
	Params     json.RawMessage
	CreatedBy  string
}

// ScanService creates scan runs, executes them in the background and serves
// their results
type ScanService struct {
	db       *sql.DB
	sets     *repository.PointSetRepository
	runs     *repository.ScanRunRepository
	clusters *repository.ClusterRepository
	rasters  *repository.RasterRepository
	results  *cache.Cache
	metrics  *monitor.Metrics
	defaults config.ScanDefaults
	workers  int

	slots  *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScanService creates a new scan service
func NewScanService(db *sql.DB, cfg *config.Config, metrics *monitor.Metrics) (*ScanService, error) {
	rasters, err := repository.NewRasterRepository(db)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ScanService{
		db:       db,
		sets:     repository.NewPointSetRepository(db),
		runs:     repository.NewScanRunRepository(db),
		clusters: repository.NewClusterRepository(db),
		rasters:  rasters,
		results:  cache.New(cfg.ResultTTL, 2*cfg.ResultTTL),
		metrics:  metrics,
		defaults: cfg.Scan,
		workers:  cfg.ScanWorkers,
		slots:    semaphore.NewWeighted(DefaultConcurrentRuns),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// ResolveParams overlays a partial params document on the configured defaults
// and validates the fitness kind.
func (s *ScanService) ResolveParams(raw json.RawMessage) (models.ScanParams, error) {
	params := models.ScanParams{
		Kind:        s.defaults.Kind,
		Threshold:   s.defaults.Threshold,
		BesagNewell: s.defaults.BesagNewell,
		GAM:         s.defaults.GAM,
		Raster:      s.defaults.Raster,
	}
	if params.GAM.Workers <= 0 {
		params.GAM.Workers = s.workers
	}

	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&params); err != nil {
			return params, fmt.Errorf("%w: params: %v", ErrInvalidInput, err)
		}
	}

	if _, err := params.Engine(); err != nil {
		return params, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return params, nil
}

// CreateScan validates a request, stores a pending run and starts it in the
// background.
func (s *ScanService) CreateScan(req CreateScanRequest) (*models.ScanRun, error) {
	run, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.slots.Acquire(s.ctx, 1); err != nil {
			s.fail(run, ErrServiceStopping, 0)
			return
		}
		defer s.slots.Release(1)
		s.Execute(s.ctx, run.ID)
	}()

	return run, nil
}

// prepare validates a request and stores the pending run.
func (s *ScanService) prepare(req CreateScanRequest) (*models.ScanRun, error) {
	if s.ctx.Err() != nil {
		return nil, ErrServiceStopping
	}

	strategy := strings.ToLower(strings.TrimSpace(req.Strategy))
	if strategy == "" {
		strategy = s.defaults.Strategy
	}
	if !analysis.IsRegistered(strategy) {
		return nil, fmt.Errorf("%w: %w: %q", ErrInvalidInput, hotspot.ErrUnknownStrategy, req.Strategy)
	}

	params, err := s.ResolveParams(req.Params)
	if err != nil {
		return nil, err
	}

	if _, err := s.sets.GetByID(req.PointSetID); err != nil {
		return nil, err
	}

	run := &models.ScanRun{
		PointSetID: req.PointSetID,
		Strategy:   strategy,
		Status:     models.RunStatusPending,
		Params:     params,
		CreatedBy:  req.CreatedBy,
	}
	if err := s.runs.Create(run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	log.Printf("[ScanService] created run %d (%s on %s)", run.ID, strategy, run.PointSetID)
	return run, nil
}

// Execute runs the analyzer of a stored run synchronously and records the
// outcome.
func (s *ScanService) Execute(ctx context.Context, runID int64) error {
	start := time.Now()
	run, err := s.runs.GetByID(runID)
	if err != nil {
		return err
	}

	analyzer := analysis.GetAnalyzer(run.Strategy, s.db)
	if analyzer == nil {
		err := fmt.Errorf("%w: %q", hotspot.ErrUnknownStrategy, run.Strategy)
		s.fail(run, err, time.Since(start))
		return err
	}

	if err := analyzer.Analyze(ctx, runID); err != nil {
		s.fail(run, err, time.Since(start))
		return err
	}

	done, err := s.runs.GetByID(runID)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ObserveScan(run.Strategy, models.RunStatusCompleted, done.ClusterCount, time.Since(start))
	}
	log.Printf("[ScanService] run %d completed: %d clusters in %v", runID, done.ClusterCount, time.Since(start))
	return nil
}

// fail records a failed run. Runs the analyzer already marked failed keep
// the analyzer's message.
func (s *ScanService) fail(run *models.ScanRun, cause error, elapsed time.Duration) {
	log.Printf("[ScanService] run %d failed: %v", run.ID, cause)
	if current, err := s.runs.GetByID(run.ID); err != nil || current.Status != models.RunStatusFailed {
		if err := s.runs.MarkAsFailed(run.ID, cause.Error()); err != nil {
			log.Printf("[ScanService] failed to mark run %d as failed: %v", run.ID, err)
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveScan(run.Strategy, models.RunStatusFailed, 0, elapsed)
	}
}

// Shutdown cancels running scans and waits for them to stop, or for ctx.
func (s *ScanService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetRun retrieves a run by ID. Completed runs are served from the cache.
func (s *ScanService) GetRun(id int64) (*models.ScanRun, error) {
	key := fmt.Sprintf("run:%d", id)
	if cached, ok := s.results.Get(key); ok {
		return cached.(*models.ScanRun), nil
	}

	run, err := s.runs.GetByID(id)
	if err != nil {
		return nil, err
	}
	if run.Status == models.RunStatusCompleted {
		s.results.Set(key, run, cache.DefaultExpiration)
	}
	return run, nil
}

// ListRuns retrieves runs with optional filters
func (s *ScanService) ListRuns(filter models.ScanRunFilter) ([]*models.ScanRun, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.runs.List(filter)
}

func (s *ScanService) completedRun(id int64) (*models.ScanRun, error) {
	run, err := s.GetRun(id)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunStatusCompleted {
		return nil, fmt.Errorf("run %d is %s: %w", id, run.Status, ErrRunNotFinished)
	}
	return run, nil
}

// Clusters returns the clusters of a completed run, most significant first.
func (s *ScanService) Clusters(id int64, filter models.ClusterFilter) ([]models.ClusterZone, error) {
	if _, err := s.completedRun(id); err != nil {
		return nil, err
	}

	unfiltered := filter == (models.ClusterFilter{})
	key := fmt.Sprintf("clusters:%d", id)
	if unfiltered {
		if cached, ok := s.results.Get(key); ok {
			return cached.([]models.ClusterZone), nil
		}
	}

	zones, err := s.clusters.ListByRun(id, filter)
	if err != nil {
		return nil, err
	}
	if unfiltered {
		s.results.Set(key, zones, cache.DefaultExpiration)
	}
	return zones, nil
}

// RasterInfo returns the georeferencing of a completed run's raster.
func (s *ScanService) RasterInfo(id int64) (*models.RasterInfo, error) {
	if _, err := s.completedRun(id); err != nil {
		return nil, err
	}
	return s.rasters.GetInfo(id)
}

// Raster returns the density raster of a completed run.
func (s *ScanService) Raster(id int64) (*hotspot.Raster, error) {
	if _, err := s.completedRun(id); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("raster:%d", id)
	if cached, ok := s.results.Get(key); ok {
		return cached.(*hotspot.Raster), nil
	}
	raster, err := s.rasters.Load(id)
	if err != nil {
		return nil, err
	}
	s.results.Set(key, raster, cache.DefaultExpiration)
	return raster, nil
}

// RasterPNG renders the raster of a completed run.
func (s *ScanService) RasterPNG(id int64, width, height int) ([]byte, error) {
	raster, err := s.Raster(id)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image size %dx%d", ErrInvalidInput, width, height)
	}

	var buf bytes.Buffer
	if err := export.WritePNG(&buf, raster, width, height); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsNotFound reports whether err means a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

package analysis

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/jengzang/records-cluster-go/internal/models"
	"github.com/jengzang/records-cluster-go/internal/repository"
)

// Analyzer is the interface that all scan strategies must implement
type Analyzer interface {
	// Analyze executes the scan run with the given ID. The run row must
	// exist; the analyzer moves it through running to completed.
	Analyze(ctx context.Context, runID int64) error

	// GetName returns the name of the analyzer
	GetName() string
}

// Progress represents the progress of a scan run
type Progress struct {
	Processed int     // Number of records processed
	Total     int     // Number of records to process
	Percent   float64 // Progress percentage (0-100)
}

// BaseAnalyzer provides common functionality for all analyzers
type BaseAnalyzer struct {
	DB   *sql.DB
	Name string
	Runs *repository.ScanRunRepository
}

// NewBaseAnalyzer creates a new base analyzer
func NewBaseAnalyzer(db *sql.DB, name string) *BaseAnalyzer {
	return &BaseAnalyzer{
		DB:   db,
		Name: name,
		Runs: repository.NewScanRunRepository(db),
	}
}

// GetName returns the analyzer name
func (a *BaseAnalyzer) GetName() string {
	return a.Name
}

// GetRun loads the run being analyzed and checks it belongs to this analyzer.
func (a *BaseAnalyzer) GetRun(runID int64) (*models.ScanRun, error) {
	run, err := a.Runs.GetByID(runID)
	if err != nil {
		return nil, err
	}
	if run.Strategy != a.Name {
		return nil, fmt.Errorf("run %d uses strategy %q, not %q", runID, run.Strategy, a.Name)
	}
	return run, nil
}

// UpdateRunProgress maps processed/total onto the [from, to] percent band.
func (a *BaseAnalyzer) UpdateRunProgress(runID int64, processed, total int, from, to float64) error {
	percent := to
	if total > 0 {
		percent = from + (to-from)*float64(processed)/float64(total)
	}
	return a.Runs.UpdateProgress(runID, percent)
}

// MarkRunAsRunning marks a run as running
func (a *BaseAnalyzer) MarkRunAsRunning(runID int64) error {
	return a.Runs.MarkAsRunning(runID)
}

// MarkRunAsCompleted marks a run as completed
func (a *BaseAnalyzer) MarkRunAsCompleted(runID int64, clusters int, summary *models.ScanSummary) error {
	return a.Runs.MarkAsCompleted(runID, clusters, summary)
}

// MarkRunAsFailed marks a run as failed with an error message
func (a *BaseAnalyzer) MarkRunAsFailed(runID int64, errorMsg string) error {
	return a.Runs.MarkAsFailed(runID, errorMsg)
}

// AnalyzerFactory is a function that creates an analyzer instance
type AnalyzerFactory func(db *sql.DB) Analyzer

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AnalyzerFactory)
)

// RegisterAnalyzer registers an analyzer factory for a strategy name
func RegisterAnalyzer(name string, factory AnalyzerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// GetAnalyzer retrieves an analyzer instance for a strategy name
func GetAnalyzer(name string, db *sql.DB) Analyzer {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil
	}
	return factory(db)
}

// IsRegistered checks if a strategy has an analyzer
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// RegisteredNames lists the registered strategy names in order.
func RegisteredNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

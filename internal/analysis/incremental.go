package analysis

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/jengzang/records-cluster-go/internal/models"
	"github.com/jengzang/records-cluster-go/internal/repository"
)

// DefaultBatchSize is the number of point records fetched per query.
const DefaultBatchSize = 5000

// BatchAnalyzer loads point records page by page with progress tracking
type BatchAnalyzer struct {
	*BaseAnalyzer
	Points    *repository.PointSetRepository
	BatchSize int // Number of records to load in each batch
}

// NewBatchAnalyzer creates a new batch analyzer
func NewBatchAnalyzer(db *sql.DB, name string, batchSize int) *BatchAnalyzer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &BatchAnalyzer{
		BaseAnalyzer: NewBaseAnalyzer(db, name),
		Points:       repository.NewPointSetRepository(db),
		BatchSize:    batchSize,
	}
}

// ProcessInBatches feeds every record of one role to processFunc, a batch at
// a time, and reports progress within the [from, to] percent band.
func (a *BatchAnalyzer) ProcessInBatches(
	ctx context.Context,
	runID int64,
	setID string,
	role string,
	from, to float64,
	processFunc func(batch []models.PointRecord) error,
) (Progress, error) {
	total, err := a.Points.CountRecords(ctx, setID, role)
	if err != nil {
		return Progress{}, err
	}

	progress := Progress{Total: total}
	for offset := 0; offset < total; offset += a.BatchSize {
		select {
		case <-ctx.Done():
			return progress, ctx.Err()
		default:
		}

		batch, err := a.Points.ListRecords(ctx, setID, role, a.BatchSize, offset)
		if err != nil {
			return progress, fmt.Errorf("failed to fetch batch at offset %d: %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}

		if err := processFunc(batch); err != nil {
			return progress, err
		}

		progress.Processed += len(batch)
		if err := a.UpdateRunProgress(runID, progress.Processed, total, from, to); err != nil {
			return progress, fmt.Errorf("failed to update progress: %w", err)
		}
	}

	if total > 0 {
		progress.Percent = float64(progress.Processed) / float64(total) * 100
	}
	log.Printf("[%s] loaded %d %s records of set %s", a.Name, progress.Processed, role, setID)
	return progress, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/jengzang/records-cluster-go/internal/database"
	"github.com/jengzang/records-cluster-go/internal/models"
)

// PointSetRepository handles database operations for point sets and their records
type PointSetRepository struct {
	db *sql.DB
}

// NewPointSetRepository creates a new point set repository
func NewPointSetRepository(db *sql.DB) *PointSetRepository {
	return &PointSetRepository{db: db}
}

// Create stores a point set and all of its records in one transaction.
func (r *PointSetRepository) Create(set *models.PointSet, records []models.PointRecord) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO point_sets (
				id, name, geographic, weight_property,
				population_count, population_sum, case_count, case_sum,
				min_x, min_y, max_x, max_y, created_by
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			set.ID, set.Name, set.Geographic, set.WeightProperty,
			set.PopulationCnt, set.PopulationSum, set.CaseCnt, set.CaseSum,
			set.Extent.Min[0], set.Extent.Min[1], set.Extent.Max[0], set.Extent.Max[1],
			set.CreatedBy,
		)
		if err != nil {
			return fmt.Errorf("failed to create point set: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO point_records (point_set_id, role, feature_id, x, y, weight)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare point insert: %w", err)
		}
		defer stmt.Close()

		for i := range records {
			rec := &records[i]
			rec.PointSetID = set.ID
			res, err := stmt.Exec(rec.PointSetID, rec.Role, rec.FeatureID, rec.X, rec.Y, rec.Weight)
			if err != nil {
				return fmt.Errorf("failed to insert point %s: %w", rec.FeatureID, err)
			}
			if rec.ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
		}
		return nil
	})
}

const pointSetColumns = `
	id, name, geographic, weight_property,
	population_count, population_sum, case_count, case_sum,
	min_x, min_y, max_x, max_y, created_by, created_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPointSet(row rowScanner) (*models.PointSet, error) {
	set := &models.PointSet{}
	var minX, minY, maxX, maxY sql.NullFloat64
	err := row.Scan(
		&set.ID, &set.Name, &set.Geographic, &set.WeightProperty,
		&set.PopulationCnt, &set.PopulationSum, &set.CaseCnt, &set.CaseSum,
		&minX, &minY, &maxX, &maxY, &set.CreatedBy, &set.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if minX.Valid && minY.Valid && maxX.Valid && maxY.Valid {
		set.Extent = orb.Bound{
			Min: orb.Point{minX.Float64, minY.Float64},
			Max: orb.Point{maxX.Float64, maxY.Float64},
		}
	}
	return set, nil
}

// GetByID retrieves a point set by ID
func (r *PointSetRepository) GetByID(id string) (*models.PointSet, error) {
	query := "SELECT " + pointSetColumns + " FROM point_sets WHERE id = ?"

	set, err := scanPointSet(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("point set %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get point set: %w", err)
	}
	return set, nil
}

// List retrieves point sets, newest first
func (r *PointSetRepository) List(limit, offset int) ([]*models.PointSet, error) {
	query := "SELECT " + pointSetColumns + " FROM point_sets ORDER BY created_at DESC, id LIMIT ? OFFSET ?"

	rows, err := r.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list point sets: %w", err)
	}
	defer rows.Close()

	var sets []*models.PointSet
	for rows.Next() {
		set, err := scanPointSet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan point set: %w", err)
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

// CountRecords returns the number of stored points of one role.
func (r *PointSetRepository) CountRecords(ctx context.Context, setID, role string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM point_records WHERE point_set_id = ? AND role = ?",
		setID, role,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count point records: %w", err)
	}
	return count, nil
}

// ListRecords returns one page of points of one role in insertion order.
func (r *PointSetRepository) ListRecords(ctx context.Context, setID, role string, limit, offset int) ([]models.PointRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, point_set_id, role, feature_id, x, y, weight
		FROM point_records
		WHERE point_set_id = ? AND role = ?
		ORDER BY id
		LIMIT ? OFFSET ?
	`, setID, role, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query point records: %w", err)
	}
	defer rows.Close()

	records := make([]models.PointRecord, 0, max(limit, 0))
	for rows.Next() {
		var rec models.PointRecord
		if err := rows.Scan(&rec.ID, &rec.PointSetID, &rec.Role, &rec.FeatureID, &rec.X, &rec.Y, &rec.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan point record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating point records: %w", err)
	}
	return records, nil
}

// Delete removes a point set together with its records and runs
func (r *PointSetRepository) Delete(id string) error {
	res, err := r.db.Exec("DELETE FROM point_sets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete point set: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("point set %s: %w", id, ErrNotFound)
	}
	return nil
}

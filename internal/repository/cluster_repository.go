package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jengzang/records-cluster-go/internal/database"
	"github.com/jengzang/records-cluster-go/internal/models"
)

// ClusterRepository handles database operations for cluster zones
type ClusterRepository struct {
	db *sql.DB
}

// NewClusterRepository creates a new cluster repository
func NewClusterRepository(db *sql.DB) *ClusterRepository {
	return &ClusterRepository{db: db}
}

// ReplaceForRun deletes any clusters stored for runID and inserts zones.
func (r *ClusterRepository) ReplaceForRun(ctx context.Context, runID int64, zones []models.ClusterZone) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM cluster_zones WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("failed to clear cluster zones: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO cluster_zones (
				run_id, center_x, center_y, radius, radius_m, geohash,
				fitness, population, expected, cases
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare cluster insert: %w", err)
		}
		defer stmt.Close()

		for i := range zones {
			z := &zones[i]
			z.RunID = runID
			var radiusM sql.NullFloat64
			if z.RadiusM != nil {
				radiusM = sql.NullFloat64{Float64: *z.RadiusM, Valid: true}
			}
			res, err := stmt.ExecContext(ctx,
				z.RunID, z.CenterX, z.CenterY, z.Radius, radiusM, z.Geohash,
				z.Fitness, z.Population, z.Expected, z.Cases,
			)
			if err != nil {
				return fmt.Errorf("failed to insert cluster zone: %w", err)
			}
			if z.ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
		}
		return nil
	})
}

// ListByRun returns the clusters of a run, most significant first.
func (r *ClusterRepository) ListByRun(runID int64, filter models.ClusterFilter) ([]models.ClusterZone, error) {
	query := `
		SELECT id, run_id, center_x, center_y, radius, radius_m, geohash,
		       fitness, population, expected, cases
		FROM cluster_zones
		WHERE run_id = ?
	`
	args := []interface{}{runID}

	if filter.MinFitness > 0 {
		query += " AND fitness >= ?"
		args = append(args, filter.MinFitness)
	}
	if filter.BBox != nil {
		query += " AND center_x BETWEEN ? AND ? AND center_y BETWEEN ? AND ?"
		args = append(args, filter.BBox.Min[0], filter.BBox.Max[0], filter.BBox.Min[1], filter.BBox.Max[1])
	}

	query += " ORDER BY fitness DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cluster zones: %w", err)
	}
	defer rows.Close()

	zones := []models.ClusterZone{}
	for rows.Next() {
		var z models.ClusterZone
		var radiusM sql.NullFloat64
		if err := rows.Scan(
			&z.ID, &z.RunID, &z.CenterX, &z.CenterY, &z.Radius, &radiusM, &z.Geohash,
			&z.Fitness, &z.Population, &z.Expected, &z.Cases,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cluster zone: %w", err)
		}
		if radiusM.Valid {
			v := radiusM.Float64
			z.RadiusM = &v
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

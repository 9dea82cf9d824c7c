package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb"

	"github.com/jengzang/records-cluster-go/internal/hotspot"
	"github.com/jengzang/records-cluster-go/internal/models"
)

// ErrCorruptRaster is returned when a stored blob does not match its dimensions.
var ErrCorruptRaster = errors.New("corrupt raster blob")

// RasterRepository stores density rasters as zstd-compressed float32 grids
type RasterRepository struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewRasterRepository creates a new raster repository
func NewRasterRepository(db *sql.DB) (*RasterRepository, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &RasterRepository{db: db, enc: enc, dec: dec}, nil
}

// Save stores (or replaces) the raster of a run.
func (r *RasterRepository) Save(ctx context.Context, runID int64, raster *hotspot.Raster) error {
	blob := r.enc.EncodeAll(encodeFloat32(raster.Data), nil)

	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO density_rasters (
			run_id, width, height, cell_size, min_x, min_y, max_x, max_y, max_value, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID, raster.Width, raster.Height, raster.CellSize,
		raster.Extent.Min[0], raster.Extent.Min[1], raster.Extent.Max[0], raster.Extent.Max[1],
		raster.Max(), blob,
	)
	if err != nil {
		return fmt.Errorf("failed to save raster: %w", err)
	}
	return nil
}

// GetInfo returns the georeferencing of a run's raster without its values.
func (r *RasterRepository) GetInfo(runID int64) (*models.RasterInfo, error) {
	info := &models.RasterInfo{RunID: runID}
	err := r.db.QueryRow(`
		SELECT width, height, cell_size, min_x, min_y, max_x, max_y, max_value
		FROM density_rasters WHERE run_id = ?
	`, runID).Scan(
		&info.Width, &info.Height, &info.CellSize,
		&info.Extent.Min[0], &info.Extent.Min[1], &info.Extent.Max[0], &info.Extent.Max[1],
		&info.MaxValue,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("raster of run %d: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raster info: %w", err)
	}
	return info, nil
}

// Load returns the full raster of a run.
func (r *RasterRepository) Load(runID int64) (*hotspot.Raster, error) {
	raster := &hotspot.Raster{}
	var minX, minY, maxX, maxY float64
	var blob []byte

	err := r.db.QueryRow(`
		SELECT width, height, cell_size, min_x, min_y, max_x, max_y, data
		FROM density_rasters WHERE run_id = ?
	`, runID).Scan(&raster.Width, &raster.Height, &raster.CellSize, &minX, &minY, &maxX, &maxY, &blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("raster of run %d: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load raster: %w", err)
	}
	raster.Extent = orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}

	raw, err := r.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress raster: %w", err)
	}
	if len(raw) != 4*raster.Width*raster.Height {
		return nil, fmt.Errorf("raster of run %d has %d bytes for %dx%d cells: %w",
			runID, len(raw), raster.Width, raster.Height, ErrCorruptRaster)
	}
	raster.Data = decodeFloat32(raw)
	return raster, nil
}

func encodeFloat32(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeFloat32(buf []byte) []float32 {
	values := make([]float32, len(buf)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return values
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/records-cluster-go/internal/database"
	"github.com/jengzang/records-cluster-go/internal/hotspot"
	"github.com/jengzang/records-cluster-go/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "clusters.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedPointSet(t *testing.T, db *sql.DB, id string) *models.PointSet {
	t.Helper()
	set := &models.PointSet{
		ID:             id,
		Name:           "towns",
		Geographic:     true,
		WeightProperty: "pop",
		PopulationCnt:  3,
		PopulationSum:  60,
		CaseCnt:        1,
		CaseSum:        2,
		Extent:         orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{5, 6}},
		CreatedBy:      "tester",
	}
	records := []models.PointRecord{
		{Role: models.RolePopulation, FeatureID: "p0", X: 1, Y: 2, Weight: 10},
		{Role: models.RolePopulation, FeatureID: "p1", X: 3, Y: 4, Weight: 20},
		{Role: models.RoleCase, FeatureID: "c0", X: 3, Y: 4, Weight: 2},
		{Role: models.RolePopulation, FeatureID: "p2", X: 5, Y: 6, Weight: 30},
	}
	require.NoError(t, NewPointSetRepository(db).Create(set, records))
	return set
}

func TestPointSetRepository(t *testing.T) {
	db := openTestDB(t)
	repo := NewPointSetRepository(db)
	ctx := context.Background()

	seedPointSet(t, db, "set-a")

	got, err := repo.GetByID("set-a")
	require.NoError(t, err)
	assert.Equal(t, "towns", got.Name)
	assert.True(t, got.Geographic)
	assert.Equal(t, 3, got.PopulationCnt)
	assert.Equal(t, 60.0, got.PopulationSum)
	assert.Equal(t, orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{5, 6}}, got.Extent)
	assert.False(t, got.CreatedAt.IsZero())

	n, err := repo.CountRecords(ctx, "set-a", models.RolePopulation)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	page, err := repo.ListRecords(ctx, "set-a", models.RolePopulation, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "p0", page[0].FeatureID)
	assert.Equal(t, "p1", page[1].FeatureID)

	page, err = repo.ListRecords(ctx, "set-a", models.RolePopulation, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "p2", page[0].FeatureID)
	assert.Equal(t, 30.0, page[0].Weight)

	cases, err := repo.ListRecords(ctx, "set-a", models.RoleCase, 10, 0)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, hotspot.WeightedPoint{ID: "c0", X: 3, Y: 4, Value: 2}, cases[0].WeightedPoint())

	sets, err := repo.List(10, 0)
	require.NoError(t, err)
	assert.Len(t, sets, 1)

	_, err = repo.GetByID("missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, repo.Delete("set-a"))
	n, err = repo.CountRecords(ctx, "set-a", models.RolePopulation)
	require.NoError(t, err)
	assert.Zero(t, n, "records cascade with their set")
	assert.ErrorIs(t, repo.Delete("set-a"), ErrNotFound)
}

func TestPointSetRepositoryRejectsBadRole(t *testing.T) {
	db := openTestDB(t)
	repo := NewPointSetRepository(db)

	err := repo.Create(&models.PointSet{ID: "bad", Name: "bad"}, []models.PointRecord{
		{Role: "control", FeatureID: "x", Weight: 1},
	})
	require.Error(t, err)

	_, err = repo.GetByID("bad")
	assert.ErrorIs(t, err, ErrNotFound, "failed import is rolled back")
}

func TestScanRunRepositoryLifecycle(t *testing.T) {
	db := openTestDB(t)
	seedPointSet(t, db, "set-a")
	repo := NewScanRunRepository(db)

	run := &models.ScanRun{
		PointSetID: "set-a",
		Strategy:   hotspot.StrategyGAM,
		Params: models.ScanParams{
			Kind:      "poisson",
			Threshold: 0.05,
			GAM:       hotspot.GAMParams{MinRadius: 1, MaxRadius: 3},
		},
		CreatedBy: "tester",
	}
	require.NoError(t, repo.Create(run))
	require.NotZero(t, run.ID)

	got, err := repo.GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, got.Status)
	assert.Equal(t, run.Params, got.Params)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.ResultSummary)

	require.NoError(t, repo.MarkAsRunning(run.ID))
	require.NoError(t, repo.UpdateProgress(run.ID, 40))
	got, err = repo.GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, got.Status)
	assert.Equal(t, 40.0, got.ProgressPercent)
	assert.NotNil(t, got.StartedAt)

	summary := &models.ScanSummary{Clusters: 2, FitnessMax: 0.9}
	require.NoError(t, repo.MarkAsCompleted(run.ID, 2, summary))
	got, err = repo.GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Equal(t, 100.0, got.ProgressPercent)
	assert.Equal(t, 2, got.ClusterCount)
	assert.Equal(t, summary, got.ResultSummary)
	assert.NotNil(t, got.CompletedAt)

	_, err = repo.GetByID(run.ID + 100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanRunRepositoryList(t *testing.T) {
	db := openTestDB(t)
	seedPointSet(t, db, "set-a")
	repo := NewScanRunRepository(db)

	for _, strategy := range []string{hotspot.StrategyGAM, hotspot.StrategyBesagNewell, hotspot.StrategyGAM} {
		require.NoError(t, repo.Create(&models.ScanRun{PointSetID: "set-a", Strategy: strategy}))
	}
	require.NoError(t, repo.MarkAsFailed(1, "boom"))

	tests := []struct {
		name   string
		filter models.ScanRunFilter
		want   []int64
	}{
		{"all", models.ScanRunFilter{Limit: 10}, []int64{3, 2, 1}},
		{"strategy", models.ScanRunFilter{Strategy: hotspot.StrategyGAM, Limit: 10}, []int64{3, 1}},
		{"status", models.ScanRunFilter{Status: models.RunStatusFailed, Limit: 10}, []int64{1}},
		{"page", models.ScanRunFilter{Limit: 1, Offset: 1}, []int64{2}},
		{"other set", models.ScanRunFilter{PointSetID: "set-b", Limit: 10}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := repo.List(tt.filter)
			require.NoError(t, err)
			var ids []int64
			for _, r := range runs {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	failed, err := repo.GetByID(1)
	require.NoError(t, err)
	assert.Equal(t, "boom", failed.ErrorMessage)
}

func TestClusterRepository(t *testing.T) {
	db := openTestDB(t)
	seedPointSet(t, db, "set-a")
	runs := NewScanRunRepository(db)
	run := &models.ScanRun{PointSetID: "set-a", Strategy: hotspot.StrategyGAM}
	require.NoError(t, runs.Create(run))

	repo := NewClusterRepository(db)
	metres := 1234.5
	zones := []models.ClusterZone{
		{CenterX: 1, CenterY: 1, Radius: 2, Fitness: 0.2, Population: 10, Expected: 1, Cases: 3},
		{CenterX: 5, CenterY: 5, Radius: 1, Fitness: 0.9, Population: 5, Expected: 0.5, Cases: 4, RadiusM: &metres, Geohash: "s000"},
		{CenterX: 9, CenterY: 9, Radius: 1, Fitness: 0.5, Population: 8, Expected: 0.8, Cases: 3},
	}
	ctx := context.Background()
	require.NoError(t, repo.ReplaceForRun(ctx, run.ID, zones))

	got, err := repo.ListByRun(run.ID, models.ClusterFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{0.9, 0.5, 0.2}, []float64{got[0].Fitness, got[1].Fitness, got[2].Fitness})
	require.NotNil(t, got[0].RadiusM)
	assert.Equal(t, metres, *got[0].RadiusM)
	assert.Equal(t, "s000", got[0].Geohash)
	assert.Nil(t, got[1].RadiusM)

	got, err = repo.ListByRun(run.ID, models.ClusterFilter{MinFitness: 0.4})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	box := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{6, 6}}
	got, err = repo.ListByRun(run.ID, models.ClusterFilter{BBox: &box, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5.0, got[0].CenterX)

	require.NoError(t, repo.ReplaceForRun(ctx, run.ID, zones[:1]))
	got, err = repo.ListByRun(run.ID, models.ClusterFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	c := got[0].Cluster()
	assert.Equal(t, orb.Point{1, 1}, c.Center)
	assert.Equal(t, 2.0, c.Radius)
	assert.Equal(t, 3.0, c.Cases)
}

func TestRasterRepositoryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	seedPointSet(t, db, "set-a")
	runs := NewScanRunRepository(db)
	run := &models.ScanRun{PointSetID: "set-a", Strategy: hotspot.StrategyBesagNewell}
	require.NoError(t, runs.Create(run))

	repo, err := NewRasterRepository(db)
	require.NoError(t, err)

	raster, err := hotspot.NewRaster(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{30, 20}}, 10)
	require.NoError(t, err)
	raster.Add(0, 0, 1.5)
	raster.Add(2, 1, 0.25)

	_, err = repo.Load(run.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Save(context.Background(), run.ID, raster))

	info, err := repo.GetInfo(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Width)
	assert.Equal(t, 2, info.Height)
	assert.Equal(t, 1.5, info.MaxValue)
	assert.Equal(t, raster.Extent, info.Extent)

	got, err := repo.Load(run.ID)
	require.NoError(t, err)
	assert.Equal(t, raster, got)
}

func TestRasterRepositoryCorruptBlob(t *testing.T) {
	db := openTestDB(t)
	seedPointSet(t, db, "set-a")
	run := &models.ScanRun{PointSetID: "set-a", Strategy: hotspot.StrategyGAM}
	require.NoError(t, NewScanRunRepository(db).Create(run))

	repo, err := NewRasterRepository(db)
	require.NoError(t, err)
	blob := repo.enc.EncodeAll([]byte{1, 2, 3}, nil)
	_, err = db.Exec(`
		INSERT INTO density_rasters (run_id, width, height, cell_size, min_x, min_y, max_x, max_y, data)
		VALUES (?, 2, 2, 1, 0, 0, 2, 2, ?)
	`, run.ID, blob)
	require.NoError(t, err)

	_, err = repo.Load(run.ID)
	assert.ErrorIs(t, err, ErrCorruptRaster)
}

func TestFloat32Encoding(t *testing.T) {
	in := []float32{0, 1, -2.5, 1e-3, float32(math.Inf(1))}
	buf := encodeFloat32(in)
	require.Len(t, buf, 4*len(in))
	assert.Equal(t, in, decodeFloat32(buf))
	assert.Empty(t, decodeFloat32(buf[:3]))
}

package hotspot

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircle_Geometry(t *testing.T) {
	c := NewCircle(orb.Point{10, 20}, 5)

	ring := c.Polygon[0]
	require.Len(t, ring, CircleSegments+1)
	assert.Equal(t, ring[0], ring[len(ring)-1])
	assert.Equal(t, orb.CCW, ring.Orientation())
	assert.InDelta(t, 15, c.Bounds.Max[0], 1e-12)
	assert.InDelta(t, 5, c.Bounds.Min[0], 1e-12)

	assert.True(t, c.Contains(orb.Point{10, 20}))
	assert.True(t, c.Contains(ring[3]))
	assert.True(t, c.Contains(orb.Point{13, 23}))
	assert.False(t, c.Contains(orb.Point{14, 24}))
	assert.False(t, c.Contains(orb.Point{30, 20}))
}

func TestCircle_Evaluate(t *testing.T) {
	pop := NewPointIndex(gridPoints("p", 10, 1, 1))
	cases := NewPointIndex([]WeightedPoint{
		{X: 0, Y: 0, Value: 1}, {X: 9, Y: 9, Value: 1}, {X: 0, Y: 9, Value: 1},
		{X: 9, Y: 0, Value: 1}, {X: 5, Y: 5, Value: 1},
	})
	set, err := NewWeightedPointSet(pop, cases)
	require.NoError(t, err)

	fn, err := NewFitnessFunction(Poisson, DefaultThreshold, quiet)
	require.NoError(t, err)

	// 24 population points inside, expected 1.2.
	c := NewCircle(orb.Point{4.5, 4.5}, 2.6)
	assert.Equal(t, 24.0, c.Sum(pop))

	cluster, ok := c.Evaluate(set, fn, 5)
	require.True(t, ok)
	assert.Equal(t, 24.0, cluster.Population)
	assert.InDelta(t, 1.2, cluster.Expected, 1e-12)
	assert.Equal(t, 5.0, cluster.Cases)
	assert.InDelta(t, 1-poissonTail(1.2, 5), cluster.Fitness, 1e-12)
	assert.Equal(t, c, cluster.Circle)

	_, ok = c.Evaluate(set, fn, 0.5)
	assert.False(t, ok)
}

func TestKernel_Epanechnikov(t *testing.T) {
	k := NewEpanechnikovKernel(2)
	assert.Equal(t, 5, k.Size())
	assert.Equal(t, 1.0, k.At(0, 0))
	assert.Equal(t, 0.75, k.At(1, 0))
	assert.Equal(t, 0.75, k.At(0, -1))
	assert.Equal(t, 0.5, k.At(1, 1))
	assert.Equal(t, 0.0, k.At(2, 0))
	assert.Equal(t, 0.0, k.At(2, 2))
	assert.Equal(t, 0.0, k.At(3, 0))

	k.SetCenter(2)
	assert.Equal(t, 2.0, k.At(0, 0))

	k.Standardize()
	assert.InDelta(t, 1.0, k.Sum(), 1e-12)

	zero := NewEpanechnikovKernel(0)
	assert.Equal(t, 1, zero.Size())
	assert.Equal(t, 1.0, zero.At(0, 0))
}

func TestRasterizer_SingleCircle(t *testing.T) {
	extent := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{210, 210}}
	d, err := NewDensityRasterizer(extent, RasterParams{CellSize: 10}, quiet)
	require.NoError(t, err)

	r := d.Raster()
	require.Equal(t, 21, r.Width)
	require.Equal(t, 21, r.Height)

	cluster := Cluster{Circle: NewCircle(orb.Point{105, 105}, 50), Fitness: 2}
	d.Accumulate([]Cluster{cluster})

	col, row := r.WorldToGrid(cluster.Center)
	require.Equal(t, 10, col)
	require.Equal(t, 10, row)

	kernel := d.KernelFor(cluster)
	assert.Equal(t, 6, kernel.Radius)
	assert.Equal(t, 2.0*kernel.At(0, 0), r.At(col, row))
	assert.Equal(t, 4.0, r.At(col, row))

	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			dx, dy := x-col, y-row
			if dx*dx+dy*dy > kernel.Radius*kernel.Radius {
				assert.Zero(t, r.At(x, y), "cell %d,%d", x, y)
			}
		}
	}
	assert.InDelta(t, 2*kernel.Sum(), r.Sum(), 1e-5)
	assert.Equal(t, 4.0, r.Max())
}

func TestRasterizer_NonOverlappingCirclesAreIndependent(t *testing.T) {
	extent := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{400, 200}}
	a := Cluster{Circle: NewCircle(orb.Point{55, 105}, 30), Fitness: 0.99}
	b := Cluster{Circle: NewCircle(orb.Point{305, 95}, 40), Fitness: 0.97}

	for _, standardize := range []bool{false, true} {
		d, err := NewDensityRasterizer(extent, RasterParams{CellSize: 5, Standardize: standardize}, quiet)
		require.NoError(t, err)
		d.Accumulate([]Cluster{a, b})
		r := d.Raster()

		for _, c := range []Cluster{a, b} {
			k := d.KernelFor(c)
			col, row := r.WorldToGrid(c.Center)

			var footprint float64
			for dy := -k.Radius; dy <= k.Radius; dy++ {
				for dx := -k.Radius; dx <= k.Radius; dx++ {
					footprint += r.At(col+dx, row+dy)
				}
			}
			assert.InDelta(t, c.Fitness*k.Sum(), footprint, 1e-5)
		}
	}
}

func TestRasterizer_OverlapIsAdditive(t *testing.T) {
	extent := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}
	c := Cluster{Circle: NewCircle(orb.Point{52, 52}, 20), Fitness: 0.5}

	d, err := NewDensityRasterizer(extent, RasterParams{CellSize: 4}, quiet)
	require.NoError(t, err)
	d.Accumulate([]Cluster{c})
	once := append([]float32(nil), d.Raster().Data...)
	d.Accumulate([]Cluster{c})

	for i, v := range d.Raster().Data {
		assert.InDelta(t, 2*float64(once[i]), float64(v), 1e-6)
	}
}

func TestRasterizer_ClipsAtEdges(t *testing.T) {
	extent := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{50, 50}}
	d, err := NewDensityRasterizer(extent, RasterParams{CellSize: 5}, quiet)
	require.NoError(t, err)

	corner := Cluster{Circle: NewCircle(orb.Point{0, 0}, 20), Fitness: 1}
	outside := Cluster{Circle: NewCircle(orb.Point{-500, -500}, 20), Fitness: 1}
	d.Accumulate([]Cluster{corner, outside})

	r := d.Raster()
	assert.Greater(t, r.Sum(), 0.0)
	assert.Less(t, r.Sum(), d.KernelFor(corner).Sum())
}

func TestNewDensityRasterizer_CellSize(t *testing.T) {
	tests := []struct {
		name       string
		extent     orb.Bound
		params     RasterParams
		wantCell   float64
		wantWidth  int
		wantHeight int
	}{
		{
			name:       "planar default",
			extent:     orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1000, 400}},
			wantCell:   2,
			wantWidth:  500,
			wantHeight: 200,
		},
		{
			name:       "planar default rounds up",
			extent:     orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1001, 10}},
			wantCell:   3,
			wantWidth:  334,
			wantHeight: 4,
		},
		{
			name:       "geographic default stays fractional",
			extent:     orb.Bound{Min: orb.Point{113, 22}, Max: orb.Point{114, 22.5}},
			params:     RasterParams{Geographic: true},
			wantCell:   0.002,
			wantWidth:  500,
			wantHeight: 250,
		},
		{
			name:       "explicit",
			extent:     orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{25, 10}},
			params:     RasterParams{CellSize: 10},
			wantCell:   10,
			wantWidth:  3,
			wantHeight: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDensityRasterizer(tt.extent, tt.params, quiet)
			require.NoError(t, err)
			r := d.Raster()
			assert.InDelta(t, tt.wantCell, r.CellSize, 1e-12)
			assert.Equal(t, tt.wantWidth, r.Width)
			assert.Equal(t, tt.wantHeight, r.Height)
			assert.Len(t, r.Data, r.Width*r.Height)

			// The extent covers whole cells from the original origin.
			assert.Equal(t, tt.extent.Min, r.Extent.Min)
			assert.InDelta(t, tt.extent.Min[0]+float64(r.Width)*r.CellSize, r.Extent.Max[0], 1e-9)
			assert.GreaterOrEqual(t, r.Extent.Max[1]+1e-9, tt.extent.Max[1])
		})
	}
}

func TestNewDensityRasterizer_Errors(t *testing.T) {
	_, err := NewDensityRasterizer(orb.Bound{}, RasterParams{}, quiet)
	assert.ErrorIs(t, err, ErrEmptyExtent)

	inverted := orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{1, 1}}
	_, err = NewDensityRasterizer(inverted, RasterParams{CellSize: 1}, quiet)
	assert.ErrorIs(t, err, ErrEmptyExtent)

	_, err = NewRaster(orb.Bound{Max: orb.Point{1, 1}}, 0)
	assert.ErrorIs(t, err, ErrInvalidCellSize)
	_, err = NewRaster(orb.Bound{Max: orb.Point{1, 1}}, math.NaN())
	assert.ErrorIs(t, err, ErrInvalidCellSize)
}

func TestRaster_Transform(t *testing.T) {
	r, err := NewRaster(orb.Bound{Min: orb.Point{100, 200}, Max: orb.Point{200, 250}}, 10)
	require.NoError(t, err)
	require.Equal(t, 10, r.Width)
	require.Equal(t, 5, r.Height)

	col, row := r.WorldToGrid(orb.Point{100, 250})
	assert.Equal(t, 0, col)
	assert.Equal(t, 0, row)

	col, row = r.WorldToGrid(orb.Point{199, 201})
	assert.Equal(t, 9, col)
	assert.Equal(t, 4, row)

	for _, cell := range [][2]int{{0, 0}, {3, 2}, {9, 4}} {
		col, row := r.WorldToGrid(r.CellCenter(cell[0], cell[1]))
		assert.Equal(t, cell[0], col)
		assert.Equal(t, cell[1], row)
	}

	r.Add(-1, 0, 5)
	r.Add(0, 5, 5)
	assert.Zero(t, r.Sum())
	assert.Zero(t, r.At(10, 0))
}

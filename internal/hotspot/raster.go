package hotspot

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// DefaultCellDivisor splits the longer side of the extent into this many
// cells when no cell size is given.
const DefaultCellDivisor = 500

// Raster is a north-up float32 grid. Row 0 is the top row (maximum Y) and
// data is stored row-major.
type Raster struct {
	Width    int
	Height   int
	CellSize float64
	Extent   orb.Bound
	Data     []float32
}

// NewRaster allocates a zeroed grid anchored at the lower-left corner of
// extent. The returned extent is widened to whole cells.
func NewRaster(extent orb.Bound, cellSize float64) (*Raster, error) {
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCellSize, cellSize)
	}
	width := extent.Max[0] - extent.Min[0]
	height := extent.Max[1] - extent.Min[1]
	if math.IsNaN(width) || math.IsNaN(height) || width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: %v", ErrEmptyExtent, extent)
	}

	cols := max(1, int(math.Ceil(width/cellSize)))
	rows := max(1, int(math.Ceil(height/cellSize)))
	return &Raster{
		Width:    cols,
		Height:   rows,
		CellSize: cellSize,
		Extent: orb.Bound{
			Min: extent.Min,
			Max: orb.Point{
				extent.Min[0] + float64(cols)*cellSize,
				extent.Min[1] + float64(rows)*cellSize,
			},
		},
		Data: make([]float32, cols*rows),
	}, nil
}

// At returns the value at (col, row). Out of range cells read as 0.
func (r *Raster) At(col, row int) float64 {
	if !r.inside(col, row) {
		return 0
	}
	return float64(r.Data[row*r.Width+col])
}

// Add increments the value at (col, row). Out of range cells are ignored.
func (r *Raster) Add(col, row int, v float64) {
	if !r.inside(col, row) {
		return
	}
	r.Data[row*r.Width+col] += float32(v)
}

func (r *Raster) inside(col, row int) bool {
	return col >= 0 && col < r.Width && row >= 0 && row < r.Height
}

// WorldToGrid maps a world coordinate to its cell. The result may lie
// outside the grid.
func (r *Raster) WorldToGrid(p orb.Point) (col, row int) {
	col = int(math.Floor((p[0] - r.Extent.Min[0]) / r.CellSize))
	row = int(math.Floor((r.Extent.Max[1] - p[1]) / r.CellSize))
	return col, row
}

// CellCenter returns the world coordinate of the centre of (col, row).
func (r *Raster) CellCenter(col, row int) orb.Point {
	return orb.Point{
		r.Extent.Min[0] + (float64(col)+0.5)*r.CellSize,
		r.Extent.Max[1] - (float64(row)+0.5)*r.CellSize,
	}
}

// Sum returns the total of all cells.
func (r *Raster) Sum() float64 {
	var sum float64
	for _, v := range r.Data {
		sum += float64(v)
	}
	return sum
}

// Max returns the largest cell value, or 0 for an empty grid.
func (r *Raster) Max() float64 {
	if len(r.Data) == 0 {
		return 0
	}
	m := r.Data[0]
	for _, v := range r.Data[1:] {
		if v > m {
			m = v
		}
	}
	return float64(m)
}

// RasterParams configures a DensityRasterizer.
type RasterParams struct {
	// CellSize of 0 selects max(width, height) / DefaultCellDivisor.
	CellSize float64 `json:"cell_size" yaml:"cell_size"`
	// Standardize rescales each kernel to sum to 1.
	Standardize bool `json:"standardize" yaml:"standardize"`
	// Geographic keeps a derived cell size fractional. Projected extents
	// round it up to a whole unit.
	Geographic bool `json:"geographic" yaml:"geographic"`
}

// DefaultCellSize derives a cell size from the extent.
func DefaultCellSize(extent orb.Bound, geographic bool) float64 {
	size := math.Max(extent.Max[0]-extent.Min[0], extent.Max[1]-extent.Min[1]) / DefaultCellDivisor
	if !geographic {
		size = math.Ceil(size)
	}
	return size
}

// DensityRasterizer accumulates cluster kernels into a raster. It is not
// safe for concurrent use.
type DensityRasterizer struct {
	raster      *Raster
	standardize bool
}

// NewDensityRasterizer allocates the output grid for extent.
func NewDensityRasterizer(extent orb.Bound, params RasterParams, opts Options) (*DensityRasterizer, error) {
	if extent.IsEmpty() || extent.Min == extent.Max {
		return nil, fmt.Errorf("failed to create rasterizer: %w", ErrEmptyExtent)
	}
	cellSize := params.CellSize
	if cellSize <= 0 {
		cellSize = DefaultCellSize(extent, params.Geographic)
	}
	raster, err := NewRaster(extent, cellSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create rasterizer: %w", err)
	}
	opts.logf("[DensityRasterizer] %dx%d cells of %v", raster.Width, raster.Height, raster.CellSize)
	return &DensityRasterizer{raster: raster, standardize: params.Standardize}, nil
}

// Accumulate adds the kernel of every cluster to the raster.
func (d *DensityRasterizer) Accumulate(clusters []Cluster) {
	for _, c := range clusters {
		d.add(c)
	}
}

// KernelFor returns the kernel a cluster contributes, before scaling by its
// fitness.
func (d *DensityRasterizer) KernelFor(c Cluster) *Kernel {
	cell := d.raster.CellSize
	k := NewEpanechnikovKernel(int(math.Floor((c.Radius + cell) / cell)))
	k.SetCenter(c.Fitness)
	if d.standardize {
		k.Standardize()
	}
	return k
}

func (d *DensityRasterizer) add(c Cluster) {
	k := d.KernelFor(c)
	col, row := d.raster.WorldToGrid(c.Center)
	for dy := -k.Radius; dy <= k.Radius; dy++ {
		for dx := -k.Radius; dx <= k.Radius; dx++ {
			w := k.At(dx, dy)
			if w == 0 {
				continue
			}
			d.raster.Add(col+dx, row+dy, w*c.Fitness)
		}
	}
}

// Raster returns the accumulated grid.
func (d *DensityRasterizer) Raster() *Raster { return d.raster }

package export

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/jengzang/records-cluster-go/internal/hotspot"
)

// PaletteSize is the number of colours in the heat palette.
const PaletteSize = 64

// rasterGrid adapts a raster to plotter.GridXYZ. Plot rows grow upwards, so
// grid row 0 is the bottom raster row.
type rasterGrid struct {
	r *hotspot.Raster
}

func (g rasterGrid) Dims() (c, r int) { return g.r.Width, g.r.Height }

func (g rasterGrid) Z(c, r int) float64 { return g.r.At(c, g.r.Height-1-r) }

func (g rasterGrid) X(c int) float64 {
	return g.r.Extent.Min[0] + (float64(c)+0.5)*g.r.CellSize
}

func (g rasterGrid) Y(r int) float64 {
	return g.r.Extent.Min[1] + (float64(r)+0.5)*g.r.CellSize
}

func (g rasterGrid) Min() float64 { return 0 }

func (g rasterGrid) Max() float64 {
	if m := g.r.Max(); m > 0 {
		return m
	}
	return 1
}

// WritePNG renders r as a heat map of the given size in pixels.
func WritePNG(w io.Writer, r *hotspot.Raster, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", width, height)
	}

	p := plot.New()
	p.HideAxes()
	p.X.Padding = 0
	p.Y.Padding = 0

	heat := plotter.NewHeatMap(rasterGrid{r: r}, palette.Heat(PaletteSize, 1))
	heat.Rasterized = true
	p.Add(heat)

	// One point per pixel.
	canvas := vgimg.NewWith(
		vgimg.UseWH(vg.Length(width), vg.Length(height)),
		vgimg.UseDPI(72),
	)
	p.Draw(draw.New(canvas))

	if _, err := (vgimg.PngCanvas{Canvas: canvas}).WriteTo(w); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

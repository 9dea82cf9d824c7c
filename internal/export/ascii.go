package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/jengzang/records-cluster-go/internal/hotspot"
)

// NoData is written in the header of ESRI ASCII grids.
const NoData = -9999

// WriteASCIIGrid writes r in ESRI ASCII grid format, top row first.
func WriteASCIIGrid(w io.Writer, r *hotspot.Raster) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\n", r.Width)
	fmt.Fprintf(bw, "nrows %d\n", r.Height)
	fmt.Fprintf(bw, "xllcorner %s\n", formatValue(r.Extent.Min[0]))
	fmt.Fprintf(bw, "yllcorner %s\n", formatValue(r.Extent.Min[1]))
	fmt.Fprintf(bw, "cellsize %s\n", formatValue(r.CellSize))
	fmt.Fprintf(bw, "NODATA_value %d\n", NoData)

	buf := make([]byte, 0, 32)
	for row := 0; row < r.Height; row++ {
		for col := 0; col < r.Width; col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			buf = strconv.AppendFloat(buf[:0], r.At(col, row), 'g', -1, 64)
			bw.Write(buf)
		}
		bw.WriteByte('\n')
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write ascii grid: %w", err)
	}
	return nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

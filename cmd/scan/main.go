// Command scan runs one cluster scan over GeoJSON files and writes the
// clusters, their density raster and a PNG preview.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jengzang/records-cluster-go/internal/analysis/detection"
	"github.com/jengzang/records-cluster-go/internal/config"
	"github.com/jengzang/records-cluster-go/internal/export"
	"github.com/jengzang/records-cluster-go/internal/hotspot"
	"github.com/jengzang/records-cluster-go/internal/models"
	"github.com/jengzang/records-cluster-go/internal/service"
)

type options struct {
	population string
	cases      string
	weight     string
	strategy   string
	geographic bool
	params     models.ScanParams

	out       string
	raster    string
	png       string
	pngWidth  int
	pngHeight int
}

func parseFlags(args []string, defaults config.ScanDefaults, workers int) (*options, error) {
	o := &options{
		params: models.ScanParams{
			Kind:        defaults.Kind,
			Threshold:   defaults.Threshold,
			BesagNewell: defaults.BesagNewell,
			GAM:         defaults.GAM,
			Raster:      defaults.Raster,
		},
	}
	if o.params.GAM.Workers <= 0 {
		o.params.GAM.Workers = workers
	}

	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.StringVar(&o.population, "population", "", "population GeoJSON FeatureCollection (required)")
	fs.StringVar(&o.cases, "cases", "", "case GeoJSON FeatureCollection (required)")
	fs.StringVar(&o.weight, "weight", service.DefaultWeightProperty, "numeric feature property holding the weight; empty counts features")
	fs.StringVar(&o.strategy, "strategy", defaults.Strategy, "scan strategy: gam or besag_newell")
	fs.BoolVar(&o.geographic, "geographic", false, "coordinates are lon/lat degrees")

	fs.StringVar(&o.params.Kind, "kind", o.params.Kind, "fitness kind: poisson, relative or relative_percent")
	fs.Float64Var(&o.params.Threshold, "threshold", o.params.Threshold, "significance level in (0, 1]")
	fs.IntVar(&o.params.BesagNewell.Neighbours, "neighbours", o.params.BesagNewell.Neighbours, "besag_newell: case neighbours per circle")
	fs.Float64Var(&o.params.GAM.MinRadius, "min-radius", o.params.GAM.MinRadius, "gam: smallest radius (0 derives it from the extent)")
	fs.Float64Var(&o.params.GAM.MaxRadius, "max-radius", o.params.GAM.MaxRadius, "gam: largest radius (0 derives it from the extent)")
	fs.Float64Var(&o.params.GAM.RadiusIncrement, "radius-increment", o.params.GAM.RadiusIncrement, "gam: radius step (0 derives it from the extent)")
	fs.Float64Var(&o.params.GAM.OverlapRatio, "overlap", o.params.GAM.OverlapRatio, "gam: grid step as a fraction of the radius")
	fs.IntVar(&o.params.GAM.Workers, "workers", o.params.GAM.Workers, "gam: radii scanned concurrently")
	fs.Float64Var(&o.params.Raster.CellSize, "cell-size", o.params.Raster.CellSize, "raster cell size (0 derives it from the extent)")
	fs.BoolVar(&o.params.Raster.Standardize, "standardize", o.params.Raster.Standardize, "rescale each cluster kernel to sum to 1")

	fs.StringVar(&o.out, "out", "clusters.geojson", "clusters GeoJSON output, - for stdout")
	fs.StringVar(&o.raster, "raster", "", "ESRI ASCII grid output")
	fs.StringVar(&o.png, "png", "", "PNG preview output")
	fs.IntVar(&o.pngWidth, "png-width", 800, "PNG width in pixels")
	fs.IntVar(&o.pngHeight, "png-height", 800, "PNG height in pixels")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.population == "" || o.cases == "" {
		return nil, errors.New("-population and -cases are required")
	}
	if _, err := o.params.Engine(); err != nil {
		return nil, err
	}
	o.params.Raster.Geographic = o.geographic
	return o, nil
}

func loadIndex(path, weight, prefix string) (*hotspot.PointIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return service.LoadGeoJSON(data, weight, prefix)
}

func writeFile(path string, stdout io.Writer, write func(io.Writer) error) error {
	if path == "-" {
		return write(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg := config.Load()
	o, err := parseFlags(args, cfg.Scan, cfg.ScanWorkers)
	if err != nil {
		return err
	}
	start := time.Now()

	population, err := loadIndex(o.population, o.weight, models.RolePopulation)
	if err != nil {
		return err
	}
	cases, err := loadIndex(o.cases, o.weight, models.RoleCase)
	if err != nil {
		return err
	}
	set, err := hotspot.NewWeightedPointSet(population, cases)
	if err != nil {
		return err
	}
	log.Printf("[Scan] %d population points (%.6g), %d cases (%.6g)",
		population.Len(), population.Sum(), cases.Len(), cases.Sum())

	params, err := o.params.Engine()
	if err != nil {
		return err
	}
	scanner, err := hotspot.NewScanner(o.strategy, params, hotspot.Options{})
	if err != nil {
		return err
	}
	found, err := scanner.Scan(ctx, set)
	if err != nil {
		return fmt.Errorf("failed to scan: %w", err)
	}
	log.Printf("[Scan] %s found %d clusters", scanner.Name(), len(found))

	zones := detection.Zones(0, found, o.geographic)
	if err := writeFile(o.out, stdout, func(w io.Writer) error { return export.WriteClusters(w, zones) }); err != nil {
		return err
	}

	var raster *hotspot.Raster
	if o.raster != "" || o.png != "" {
		raster, err = detection.Rasterize(scanner, set, found, o.params.Raster, hotspot.Options{})
		if err != nil {
			return fmt.Errorf("failed to rasterize: %w", err)
		}
	}
	if o.raster != "" {
		if err := writeFile(o.raster, stdout, func(w io.Writer) error { return export.WriteASCIIGrid(w, raster) }); err != nil {
			return err
		}
	}
	if o.png != "" {
		if err := writeFile(o.png, stdout, func(w io.Writer) error {
			return export.WritePNG(w, raster, o.pngWidth, o.pngHeight)
		}); err != nil {
			return err
		}
	}

	summary := detection.Summarize(set, found, raster)
	summary.DurationMillis = time.Since(start).Milliseconds()
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	log.Printf("[Scan] summary:\n%s", out)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}
}

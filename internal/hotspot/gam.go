package hotspot

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// DefaultOverlapRatio is the fraction of the radius used as grid step.
const DefaultOverlapRatio = 0.5

// stepEpsilon absorbs floating point drift when counting grid steps.
const stepEpsilon = 1e-9

// GAMParams configures the dense radius/position scan. Zero values select
// defaults derived from the study extent.
type GAMParams struct {
	MinRadius       float64 `json:"min_radius" yaml:"min_radius"`
	MaxRadius       float64 `json:"max_radius" yaml:"max_radius"`
	RadiusIncrement float64 `json:"radius_increment" yaml:"radius_increment"`
	OverlapRatio    float64 `json:"overlap_ratio" yaml:"overlap_ratio"`
	// Workers bounds the number of radii scanned concurrently.
	// Defaults to runtime.NumCPU().
	Workers int `json:"workers" yaml:"workers"`
}

// Resolve substitutes defaults for missing or invalid parameters using the
// study extent. It fails only when a default is needed and the extent has
// no area.
func (p GAMParams) Resolve(extent orb.Bound, opts Options) (GAMParams, error) {
	width := extent.Max[0] - extent.Min[0]
	height := extent.Max[1] - extent.Min[1]

	if !(p.MinRadius > 0) {
		side := math.Min(width, height)
		if !(side > 0) {
			return p, fmt.Errorf("failed to derive minimum radius: %w", ErrEmptyExtent)
		}
		def := side / 150
		opts.logf("[GAM] min radius %v is not positive, using %v", p.MinRadius, def)
		p.MinRadius = def
	}
	if !(p.MaxRadius > p.MinRadius) {
		def := 5 * p.MinRadius
		opts.logf("[GAM] max radius %v is not above min radius %v, using %v", p.MaxRadius, p.MinRadius, def)
		p.MaxRadius = def
	}
	if !(p.RadiusIncrement > 0) {
		def := p.MinRadius / 2
		opts.logf("[GAM] radius increment %v is not positive, using %v", p.RadiusIncrement, def)
		p.RadiusIncrement = def
	}
	switch {
	case !(p.OverlapRatio > 0):
		// A ratio of 0 would never advance the grid.
		if p.OverlapRatio != 0 {
			opts.logf("[GAM] overlap ratio %v out of range, using %v", p.OverlapRatio, DefaultOverlapRatio)
		}
		p.OverlapRatio = DefaultOverlapRatio
	case p.OverlapRatio > 1:
		opts.logf("[GAM] overlap ratio %v out of range, clamping to 1", p.OverlapRatio)
		p.OverlapRatio = 1
	}
	if p.Workers <= 0 {
		p.Workers = runtime.NumCPU()
	}
	return p, nil
}

// Radii lists every radius scanned, from MinRadius to MaxRadius inclusive.
// p must already be resolved.
func (p GAMParams) Radii() []float64 {
	n := steps(p.MaxRadius-p.MinRadius, p.RadiusIncrement)
	radii := make([]float64, n)
	for i := range radii {
		radii[i] = p.MinRadius + float64(i)*p.RadiusIncrement
	}
	return radii
}

// steps counts the positions start, start+step, ... that do not pass start+span.
func steps(span, step float64) int {
	if span < 0 {
		return 0
	}
	return int(math.Floor(span/step+stepEpsilon)) + 1
}

// GAM is the Geographical Analysis Machine: circles of every radius laid on
// a regular grid over the padded study extent.
type GAM struct {
	fitness *FitnessFunction
	params  GAMParams
	opts    Options
}

// NewGAM returns a scanner. Params are resolved against the point set
// extent when Scan runs.
func NewGAM(fn *FitnessFunction, params GAMParams, opts Options) (*GAM, error) {
	if fn == nil {
		return nil, fmt.Errorf("gam: fitness function is nil")
	}
	return &GAM{fitness: fn, params: params, opts: opts}, nil
}

// Name returns the strategy name.
func (s *GAM) Name() string { return StrategyGAM }

// Extent is the extent of set padded by half the largest radius, the area
// the grid of circle centres covers.
func (s *GAM) Extent(set *WeightedPointSet) (orb.Bound, error) {
	if set == nil {
		return orb.Bound{}, ErrNilPointSet
	}
	if set.Population.Len() == 0 && set.Cases.Len() == 0 {
		return orb.Bound{}, fmt.Errorf("gam: %w", ErrEmptyExtent)
	}
	// Scan already reported any substituted parameters.
	_, extent, err := s.resolve(set, Options{Logf: func(string, ...interface{}) {}})
	return extent, err
}

func (s *GAM) resolve(set *WeightedPointSet, opts Options) (GAMParams, orb.Bound, error) {
	bounds := set.Extent()
	params, err := s.params.Resolve(bounds, opts)
	if err != nil {
		return params, orb.Bound{}, err
	}
	return params, bounds.Pad(params.MaxRadius / 2), nil
}

// Scan runs the grid scan. Radii are processed concurrently and their
// results concatenated in radius order, so the output order is stable.
func (s *GAM) Scan(ctx context.Context, set *WeightedPointSet) ([]Cluster, error) {
	if set == nil {
		return nil, ErrNilPointSet
	}
	if set.Population.Len() == 0 && set.Cases.Len() == 0 {
		return nil, nil
	}

	params, extent, err := s.resolve(set, s.opts)
	if err != nil {
		return nil, err
	}
	radii := params.Radii()

	s.opts.logf("[GAM] scanning %d radii from %v to %v over %v", len(radii), params.MinRadius, params.MaxRadius, extent)

	shards := make([][]Cluster, len(radii))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(params.Workers)
	for i, radius := range radii {
		i, radius := i, radius
		g.Go(func() error {
			found, err := s.scanRadius(gctx, set, extent, radius, radius*params.OverlapRatio)
			if err != nil {
				return err
			}
			shards[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, shard := range shards {
		total += len(shard)
	}
	clusters := make([]Cluster, 0, total)
	for _, shard := range shards {
		clusters = append(clusters, shard...)
	}
	return clusters, nil
}

func (s *GAM) scanRadius(ctx context.Context, set *WeightedPointSet, extent orb.Bound, radius, step float64) ([]Cluster, error) {
	cols := steps(extent.Max[0]-extent.Min[0], step)
	rows := steps(extent.Max[1]-extent.Min[1], step)

	var found []Cluster
	for c := 0; c < cols; c++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x := extent.Min[0] + float64(c)*step
		for r := 0; r < rows; r++ {
			y := extent.Min[1] + float64(r)*step

			circle := NewCircle(orb.Point{x, y}, radius)
			cases := circle.Sum(set.Cases)
			if cases < s.fitness.MinCases {
				continue
			}
			if cluster, ok := circle.Evaluate(set, s.fitness, cases); ok {
				found = append(found, cluster)
			}
		}
	}
	return found, nil
}

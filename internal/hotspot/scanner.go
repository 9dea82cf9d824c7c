package hotspot

import (
	"context"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// Strategy names accepted by NewScanner.
const (
	StrategyBesagNewell = "besag_newell"
	StrategyGAM         = "gam"
)

// Scanner enumerates candidate circles over a point set and returns the
// significant ones.
type Scanner interface {
	Scan(ctx context.Context, set *WeightedPointSet) ([]Cluster, error)
	// Extent is the area circle centres are placed in; it bounds the
	// density raster of the scan.
	Extent(set *WeightedPointSet) (orb.Bound, error)
	Name() string
}

// Params bundles everything needed to build a scanner of either strategy.
type Params struct {
	Kind        FitnessKind
	Threshold   float64
	BesagNewell BesagNewellParams
	GAM         GAMParams
}

// NewScanner builds the fitness function and the scanner named by strategy.
func NewScanner(strategy string, p Params, opts Options) (Scanner, error) {
	fn, err := NewFitnessFunction(p.Kind, p.Threshold, opts)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strategy) {
	case StrategyBesagNewell:
		return NewBesagNewell(fn, p.BesagNewell, opts)
	case StrategyGAM:
		return NewGAM(fn, p.GAM, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

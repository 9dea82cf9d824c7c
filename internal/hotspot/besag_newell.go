package hotspot

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
)

// DefaultNeighbours is the neighbour count used when none is supplied.
const DefaultNeighbours = 10

// BesagNewellParams configures the k-nearest-neighbour scan.
type BesagNewellParams struct {
	Neighbours int `json:"neighbours" yaml:"neighbours"`
}

// BesagNewell centres one circle on every case point, sized to reach its k
// nearest case neighbours.
type BesagNewell struct {
	fitness    *FitnessFunction
	neighbours int
	opts       Options
}

// NewBesagNewell returns a scanner. A non-positive neighbour count is
// replaced by DefaultNeighbours with a warning.
func NewBesagNewell(fn *FitnessFunction, params BesagNewellParams, opts Options) (*BesagNewell, error) {
	if fn == nil {
		return nil, fmt.Errorf("besag-newell: fitness function is nil")
	}
	k := params.Neighbours
	if k <= 0 {
		opts.logf("[BesagNewell] neighbours %d is not positive, using %d", k, DefaultNeighbours)
		k = DefaultNeighbours
	}
	return &BesagNewell{fitness: fn, neighbours: k, opts: opts}, nil
}

// Name returns the strategy name.
func (s *BesagNewell) Name() string { return StrategyBesagNewell }

// Extent is the extent of set: circles are centred on case points.
func (s *BesagNewell) Extent(set *WeightedPointSet) (orb.Bound, error) {
	if set == nil {
		return orb.Bound{}, ErrNilPointSet
	}
	return set.Extent(), nil
}

// Neighbours returns the effective neighbour count.
func (s *BesagNewell) Neighbours() int { return s.neighbours }

// Scan evaluates one circle per case point in load order.
func (s *BesagNewell) Scan(ctx context.Context, set *WeightedPointSet) ([]Cluster, error) {
	if set == nil {
		return nil, ErrNilPointSet
	}

	var clusters []Cluster
	for _, p := range set.Cases.Points() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		knn := set.Cases.Nearest(p, s.neighbours, ExcludeSelf)
		if len(knn) == 0 {
			continue
		}
		var radius, cases float64
		for _, n := range knn {
			if n.Distance > radius {
				radius = n.Distance
			}
			cases += n.Point.Value
		}

		circle := NewCircle(p.Point(), radius)
		if cluster, ok := circle.Evaluate(set, s.fitness, cases); ok {
			clusters = append(clusters, cluster)
		}
	}
	return clusters, nil
}

package hotspot

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// WeightedPoint is a single population or case event.
// It satisfies kdtree.Comparable on its (X, Y) location.
type WeightedPoint struct {
	ID    string // label only, may repeat
	X, Y  float64
	Value float64

	key uint64 // assigned by NewPointIndex, 0 when not indexed
}

// pointKeys numbers indexed points, unique across all indexes.
var pointKeys atomic.Uint64

// Point returns the location as an orb.Point.
func (p WeightedPoint) Point() orb.Point {
	return orb.Point{p.X, p.Y}
}

// Compare satisfies the axis comparisons method of the kdtree.Comparable interface.
// The dimensions are:
//
//	0 = x
//	1 = y
func (p WeightedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(WeightedPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions to be considered.
func (p WeightedPoint) Dims() int { return 2 }

// Distance returns the squared planar distance between the receiver and c.
func (p WeightedPoint) Distance(c kdtree.Comparable) float64 {
	return SquaredDistance(p, c.(WeightedPoint))
}

// DistanceFunc measures the squared distance from a query point to a candidate.
// Returning +Inf removes the candidate from a nearest-neighbour result.
type DistanceFunc func(query, candidate WeightedPoint) float64

// SquaredDistance is the planar DistanceFunc.
func SquaredDistance(query, candidate WeightedPoint) float64 {
	dx := query.X - candidate.X
	dy := query.Y - candidate.Y
	return dx*dx + dy*dy
}

// ExcludeSelf is SquaredDistance with the query point itself pushed to +Inf.
// Identity is the index-assigned key, so repeated IDs or coordinates do not
// hide other points.
func ExcludeSelf(query, candidate WeightedPoint) float64 {
	if query.key != 0 && query.key == candidate.key {
		return math.Inf(1)
	}
	return SquaredDistance(query, candidate)
}

// query wraps a WeightedPoint so the k-d tree search uses a caller supplied distance.
type query struct {
	WeightedPoint
	dist DistanceFunc
}

func (q query) Distance(c kdtree.Comparable) float64 {
	return q.dist(q.WeightedPoint, c.(WeightedPoint))
}

// Neighbour is one k-nearest-neighbour hit.
type Neighbour struct {
	Point    WeightedPoint
	Distance float64
}

// PointIndex is a read-only k-d tree of weighted points with the running
// weight sum and extent recorded at load time. Concurrent readers are safe.
type PointIndex struct {
	tree   *kdtree.Tree
	points []WeightedPoint
	sum    float64
	bounds orb.Bound
}

// NewPointIndex builds an index from points. Points whose value is NaN,
// infinite or not strictly positive are discarded. Points without an ID are
// numbered by load position.
func NewPointIndex(points []WeightedPoint) *PointIndex {
	idx := &PointIndex{
		points: make([]WeightedPoint, 0, len(points)),
	}
	first := true
	for _, p := range points {
		if !validWeight(p.Value) {
			continue
		}
		if p.ID == "" {
			p.ID = strconv.Itoa(len(idx.points))
		}
		p.key = pointKeys.Add(1)
		idx.points = append(idx.points, p)
		idx.sum += p.Value
		if first {
			idx.bounds = orb.Bound{Min: p.Point(), Max: p.Point()}
			first = false
		} else {
			idx.bounds = idx.bounds.Extend(p.Point())
		}
	}

	// kdtree.New reorders its input, so hand it a copy and keep load order
	// in idx.points for deterministic iteration.
	items := make(weightedPoints, len(idx.points))
	copy(items, idx.points)
	idx.tree = kdtree.New(items, false)
	return idx
}

// WeightFunc extracts the weight of an input feature. ok is false when the
// feature carries no weight.
type WeightFunc func(f *geojson.Feature) (value float64, ok bool)

// PropertyWeight reads a numeric feature property.
func PropertyWeight(name string) WeightFunc {
	return func(f *geojson.Feature) (float64, bool) {
		if f.Properties == nil {
			return 0, false
		}
		raw, ok := f.Properties[name]
		if !ok || raw == nil {
			return 0, false
		}
		switch v := raw.(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return 0, false
			}
			return parsed, true
		default:
			return 0, false
		}
	}
}

// WeightByName reads the named property, or weighs every feature 1 when name
// is empty.
func WeightByName(name string) WeightFunc {
	if name == "" {
		return ConstantWeight(1)
	}
	return PropertyWeight(name)
}

// ConstantWeight gives every feature the same weight.
func ConstantWeight(value float64) WeightFunc {
	return func(*geojson.Feature) (float64, bool) { return value, true }
}

// LoadPoints converts features into an index. Each feature is reduced to the
// centroid of its geometry. Features without a usable weight are skipped.
func LoadPoints(features []*geojson.Feature, weightOf WeightFunc, prefix string) *PointIndex {
	points := make([]WeightedPoint, 0, len(features))
	for i, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		value, ok := weightOf(f)
		if !ok || !validWeight(value) {
			continue
		}
		centroid, _ := planar.CentroidArea(f.Geometry)
		id := fmt.Sprintf("%s.%d", prefix, i)
		if f.ID != nil {
			id = fmt.Sprintf("%s.%v", prefix, f.ID)
		}
		points = append(points, WeightedPoint{
			ID:    id,
			X:     centroid[0],
			Y:     centroid[1],
			Value: value,
		})
	}
	return NewPointIndex(points)
}

func validWeight(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// Len returns the number of indexed points.
func (idx *PointIndex) Len() int { return len(idx.points) }

// Sum returns the total weight of the indexed points.
func (idx *PointIndex) Sum() float64 { return idx.sum }

// Bounds returns the extent of the indexed points. It is the zero Bound when empty.
func (idx *PointIndex) Bounds() orb.Bound { return idx.bounds }

// Points returns the indexed points in load order. The slice must not be modified.
func (idx *PointIndex) Points() []WeightedPoint { return idx.points }

// Range calls fn for every point inside the closed box b.
func (idx *PointIndex) Range(b orb.Bound, fn func(WeightedPoint)) {
	bounding := &kdtree.Bounding{
		Min: WeightedPoint{X: b.Min[0], Y: b.Min[1]},
		Max: WeightedPoint{X: b.Max[0], Y: b.Max[1]},
	}
	rangeNode(idx.tree.Root, bounding, fn)
}

// rangeNode walks the tree like kdtree.DoBounded but keeps the box closed on
// both sides: values equal to a split land in the left subtree.
func rangeNode(n *kdtree.Node, b *kdtree.Bounding, fn func(WeightedPoint)) {
	if n == nil {
		return
	}
	if b.Min.Compare(n.Point, n.Plane) <= 0 {
		rangeNode(n.Left, b, fn)
	}
	if b.Contains(n.Point) {
		fn(n.Point.(WeightedPoint))
	}
	if b.Max.Compare(n.Point, n.Plane) >= 0 {
		rangeNode(n.Right, b, fn)
	}
}

// Nearest returns up to k neighbours of p ordered by increasing distance.
// Candidates for which dist returns +Inf are never returned.
func (idx *PointIndex) Nearest(p WeightedPoint, k int, dist DistanceFunc) []Neighbour {
	if k <= 0 || len(idx.points) == 0 {
		return nil
	}
	if dist == nil {
		dist = SquaredDistance
	}
	keep := kdtree.NewNKeeper(k)
	idx.tree.NearestSet(keep, query{WeightedPoint: p, dist: dist})

	out := make([]Neighbour, 0, keep.Len())
	for _, c := range keep.Heap {
		if c.Comparable == nil || math.IsInf(c.Dist, 1) {
			continue
		}
		out = append(out, Neighbour{
			Point:    c.Comparable.(WeightedPoint),
			Distance: math.Sqrt(c.Dist),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

// weightedPoints satisfies kdtree.Interface.
type weightedPoints []WeightedPoint

func (p weightedPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p weightedPoints) Len() int                      { return len(p) }
func (p weightedPoints) Pivot(d kdtree.Dim) int {
	return plane{points: p, dim: d}.Pivot()
}
func (p weightedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// plane sorts weightedPoints along one dimension.
type plane struct {
	points weightedPoints
	dim    kdtree.Dim
}

func (p plane) Len() int { return len(p.points) }
func (p plane) Less(i, j int) bool {
	return p.points[i].Compare(p.points[j], p.dim) < 0
}
func (p plane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

// WeightedPointSet holds the population and case indexes of one run and the
// global case/population density baseline.
type WeightedPointSet struct {
	Population *PointIndex
	Cases      *PointIndex
	Density    float64
}

// NewWeightedPointSet computes the density baseline over two loaded indexes.
// A zero population sum yields a zero density, not an error.
func NewWeightedPointSet(population, cases *PointIndex) (*WeightedPointSet, error) {
	if population == nil || cases == nil {
		return nil, ErrNilPointSet
	}
	set := &WeightedPointSet{
		Population: population,
		Cases:      cases,
	}
	if population.Sum() > 0 {
		set.Density = cases.Sum() / population.Sum()
	}
	return set, nil
}

// Extent returns the union of both index extents.
func (s *WeightedPointSet) Extent() orb.Bound {
	switch {
	case s.Population.Len() == 0:
		return s.Cases.Bounds()
	case s.Cases.Len() == 0:
		return s.Population.Bounds()
	default:
		return s.Population.Bounds().Union(s.Cases.Bounds())
	}
}

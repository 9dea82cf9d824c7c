package hotspot

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// CircleSegments is the number of vertices used to approximate a circle.
const CircleSegments = 24

// Circle is a candidate scan region. Its polygon and bounds are derived once
// at construction and never change.
type Circle struct {
	Center  orb.Point
	Radius  float64
	Polygon orb.Polygon
	Bounds  orb.Bound
}

// NewCircle approximates the circle at center with CircleSegments vertices.
// The ring is closed and counter-clockwise.
func NewCircle(center orb.Point, radius float64) Circle {
	ring := make(orb.Ring, 0, CircleSegments+1)
	for i := 0; i < CircleSegments; i++ {
		angle := 2 * math.Pi * float64(i) / CircleSegments
		ring = append(ring, orb.Point{
			center[0] + radius*math.Cos(angle),
			center[1] + radius*math.Sin(angle),
		})
	}
	ring = append(ring, ring[0])

	polygon := orb.Polygon{ring}
	return Circle{
		Center:  center,
		Radius:  radius,
		Polygon: polygon,
		Bounds:  polygon.Bound(),
	}
}

// Contains reports whether p falls inside the circle polygon. Points on the
// boundary are inside.
func (c Circle) Contains(p orb.Point) bool {
	return c.Bounds.Contains(p) && planar.PolygonContains(c.Polygon, p)
}

// Sum adds up the weight of every point of idx inside the circle.
func (c Circle) Sum(idx *PointIndex) float64 {
	var sum float64
	idx.Range(c.Bounds, func(p WeightedPoint) {
		if c.Contains(p.Point()) {
			sum += p.Value
		}
	})
	return sum
}

// Cluster is a circle that passed the significance test, with its statistics.
// Clusters are only produced by Evaluate, so every field is set and Fitness
// is a valid number.
type Cluster struct {
	Circle
	Fitness    float64
	Population float64
	Expected   float64
	Cases      float64
}

// Evaluate measures the population inside c, derives the expected count from
// the density baseline and tests it against cases. ok is false when the
// circle is not significant.
func (c Circle) Evaluate(set *WeightedPointSet, fn *FitnessFunction, cases float64) (Cluster, bool) {
	var population, expected float64
	set.Population.Range(c.Bounds, func(p WeightedPoint) {
		if c.Contains(p.Point()) {
			population += p.Value
			expected += p.Value * set.Density
		}
	})

	fitness, ok := fn.Evaluate(expected, cases)
	if !ok {
		return Cluster{}, false
	}
	return Cluster{
		Circle:     c,
		Fitness:    fitness,
		Population: population,
		Expected:   expected,
		Cases:      cases,
	}, true
}

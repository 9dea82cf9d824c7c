package hotspot

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = Options{Logf: func(string, ...interface{}) {}}

// hotspotSet is a dense population grid over [0,10]x[0,10] with a regular
// background of cases and a tight disc of extra cases around (5, 5).
func hotspotSet(t *testing.T) *WeightedPointSet {
	t.Helper()

	var pop []WeightedPoint
	for i := 0; i <= 100; i++ {
		for j := 0; j <= 100; j++ {
			pop = append(pop, WeightedPoint{X: float64(i) * 0.1, Y: float64(j) * 0.1, Value: 1})
		}
	}

	var cases []WeightedPoint
	for i := 0; i < 20; i++ {
		for j := 0; j < 20; j++ {
			cases = append(cases, WeightedPoint{X: 0.25 + float64(i)*0.5, Y: 0.25 + float64(j)*0.5, Value: 1})
		}
	}
	// Sunflower layout keeps the disc evenly filled without duplicates.
	const golden = 2.399963229728653
	for i := 0; i < 60; i++ {
		r := 0.5 * math.Sqrt((float64(i)+0.5)/60)
		theta := float64(i) * golden
		cases = append(cases, WeightedPoint{X: 5 + r*math.Cos(theta), Y: 5 + r*math.Sin(theta), Value: 1})
	}

	set, err := NewWeightedPointSet(NewPointIndex(pop), NewPointIndex(cases))
	require.NoError(t, err)
	return set
}

func assertClusterStats(t *testing.T, set *WeightedPointSet, clusters []Cluster) {
	t.Helper()
	for _, c := range clusters {
		assert.False(t, math.IsNaN(c.Fitness))
		assert.Greater(t, c.Fitness, 0.0)
		assert.LessOrEqual(t, c.Fitness, 1.0)
		assert.GreaterOrEqual(t, c.Cases, c.Expected)
		assert.GreaterOrEqual(t, c.Expected, DefaultMinExpected*1.0)
		assert.InDelta(t, c.Population*set.Density, c.Expected, 1e-9)
		assert.Len(t, c.Polygon[0], CircleSegments+1)
	}
}

func nearestTo(clusters []Cluster, p orb.Point) float64 {
	best := math.Inf(1)
	for _, c := range clusters {
		d := math.Hypot(c.Center[0]-p[0], c.Center[1]-p[1])
		if d < best {
			best = d
		}
	}
	return best
}

func TestBesagNewell_FindsHotspot(t *testing.T) {
	set := hotspotSet(t)
	fn, err := NewFitnessFunction(Poisson, DefaultThreshold, quiet)
	require.NoError(t, err)
	scanner, err := NewBesagNewell(fn, BesagNewellParams{Neighbours: 30}, quiet)
	require.NoError(t, err)

	clusters, err := scanner.Scan(context.Background(), set)
	require.NoError(t, err)
	require.NotEmpty(t, clusters)
	assert.Less(t, nearestTo(clusters, orb.Point{5, 5}), 0.5)
	assertClusterStats(t, set, clusters)

	for _, c := range clusters {
		assert.Equal(t, 30.0, c.Cases)
	}
}

func TestBesagNewell_DefaultNeighbours(t *testing.T) {
	set := hotspotSet(t)
	fn, err := NewFitnessFunction(Poisson, DefaultThreshold, quiet)
	require.NoError(t, err)

	var log captureLog
	defaulted, err := NewBesagNewell(fn, BesagNewellParams{Neighbours: 0}, log.options())
	require.NoError(t, err)
	require.Len(t, log.lines, 1)
	assert.Contains(t, log.lines[0], "neighbours")
	assert.Equal(t, DefaultNeighbours, defaulted.Neighbours())

	explicit, err := NewBesagNewell(fn, BesagNewellParams{Neighbours: 10}, quiet)
	require.NoError(t, err)

	got, err := defaulted.Scan(context.Background(), set)
	require.NoError(t, err)
	want, err := explicit.Scan(context.Background(), set)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, got))
}

func TestBesagNewell_DuplicateIDs(t *testing.T) {
	set := hotspotSet(t)
	relabelled := make([]WeightedPoint, 0, set.Cases.Len())
	for _, p := range set.Cases.Points() {
		relabelled = append(relabelled, WeightedPoint{ID: "case", X: p.X, Y: p.Y, Value: p.Value})
	}
	dup, err := NewWeightedPointSet(set.Population, NewPointIndex(relabelled))
	require.NoError(t, err)

	fn, err := NewFitnessFunction(Poisson, DefaultThreshold, quiet)
	require.NoError(t, err)
	scanner, err := NewBesagNewell(fn, BesagNewellParams{Neighbours: 30}, quiet)
	require.NoError(t, err)

	want, err := scanner.Scan(context.Background(), set)
	require.NoError(t, err)
	require.NotEmpty(t, want)
	got, err := scanner.Scan(context.Background(), dup)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, got))
}

func TestBesagNewell_Degenerate(t *testing.T) {
	fn, err := NewFitnessFunction(Poisson, DefaultThreshold, quiet)
	require.NoError(t, err)
	scanner, err := NewBesagNewell(fn, BesagNewellParams{Neighbours: 5}, quiet)
	require.NoError(t, err)

	_, err = scanner.Scan(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilPointSet)

	// Zero population: density is 0 and nothing passes the pre-filter.
	set, err := NewWeightedPointSet(NewPointIndex(nil), NewPointIndex(gridPoints("c", 5, 1, 1)))
	require.NoError(t, err)
	clusters, err := scanner.Scan(context.Background(), set)
	require.NoError(t, err)
	assert.Empty(t, clusters)

	// A lone case has no neighbours.
	set, err = NewWeightedPointSet(NewPointIndex(gridPoints("p", 5, 1, 1)), NewPointIndex([]WeightedPoint{{X: 2, Y: 2, Value: 3}}))
	require.NoError(t, err)
	clusters, err = scanner.Scan(context.Background(), set)
	require.NoError(t, err)
	assert.Empty(t, clusters)
}

func TestBesagNewell_Cancelled(t *testing.T) {
	set := hotspotSet(t)
	fn, err := NewFitnessFunction(Poisson, DefaultThreshold, quiet)
	require.NoError(t, err)
	scanner, err := NewBesagNewell(fn, BesagNewellParams{}, quiet)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = scanner.Scan(ctx, set)
	assert.ErrorIs(t, err, context.Canceled)
}

func gamSet(t *testing.T) *WeightedPointSet {
	t.Helper()
	pop := NewPointIndex(gridPoints("p", 21, 0.5, 1))

	var cases []WeightedPoint
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			cases = append(cases, WeightedPoint{X: 0.5 + float64(i), Y: 0.5 + float64(j), Value: 1})
		}
	}
	for i := 0; i < 30; i++ {
		theta := float64(i) * 2 * math.Pi / 30
		r := 0.1 + 0.3*float64(i%3)/2
		cases = append(cases, WeightedPoint{X: 5 + r*math.Cos(theta), Y: 5 + r*math.Sin(theta), Value: 1})
	}

	set, err := NewWeightedPointSet(pop, NewPointIndex(cases))
	require.NoError(t, err)
	return set
}

func newGAM(t *testing.T, params GAMParams, opts Options) *GAM {
	t.Helper()
	fn, err := NewFitnessFunction(Poisson, DefaultThreshold, opts)
	require.NoError(t, err)
	g, err := NewGAM(fn, params, opts)
	require.NoError(t, err)
	return g
}

func TestGAM_FindsHotspot(t *testing.T) {
	set := gamSet(t)
	scanner := newGAM(t, GAMParams{MinRadius: 0.5, MaxRadius: 1.5, RadiusIncrement: 0.5, OverlapRatio: 0.5}, quiet)

	clusters, err := scanner.Scan(context.Background(), set)
	require.NoError(t, err)
	require.NotEmpty(t, clusters)
	assert.Less(t, nearestTo(clusters, orb.Point{5, 5}), 1.0)
	assertClusterStats(t, set, clusters)

	for _, c := range clusters {
		assert.InDelta(t, c.Circle.Sum(set.Cases), c.Cases, 1e-9)
	}
}

func TestGAM_Idempotent(t *testing.T) {
	set := gamSet(t)
	params := GAMParams{MinRadius: 0.5, MaxRadius: 2, RadiusIncrement: 0.25, OverlapRatio: 0.4}

	first, err := newGAM(t, params, quiet).Scan(context.Background(), set)
	require.NoError(t, err)
	second, err := newGAM(t, params, quiet).Scan(context.Background(), set)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(first, second))

	params.Workers = 1
	serial, err := newGAM(t, params, quiet).Scan(context.Background(), set)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(first, serial))
}

func TestScannerExtent(t *testing.T) {
	set := gamSet(t)
	data := set.Extent()

	g := newGAM(t, GAMParams{MinRadius: 0.5, MaxRadius: 2, RadiusIncrement: 0.5}, quiet)
	extent, err := g.Extent(set)
	require.NoError(t, err)
	assert.Equal(t, data.Pad(1), extent)

	clusters, err := g.Scan(context.Background(), set)
	require.NoError(t, err)
	for _, c := range clusters {
		assert.True(t, extent.Contains(c.Center), "centre %v outside %v", c.Center, extent)
	}

	fn, err := NewFitnessFunction(Poisson, DefaultThreshold, quiet)
	require.NoError(t, err)
	bn, err := NewBesagNewell(fn, BesagNewellParams{}, quiet)
	require.NoError(t, err)
	extent, err = bn.Extent(set)
	require.NoError(t, err)
	assert.Equal(t, data, extent)

	_, err = g.Extent(nil)
	assert.ErrorIs(t, err, ErrNilPointSet)
	empty, err := NewWeightedPointSet(NewPointIndex(nil), NewPointIndex(nil))
	require.NoError(t, err)
	_, err = g.Extent(empty)
	assert.ErrorIs(t, err, ErrEmptyExtent)
}

func TestGAM_Empty(t *testing.T) {
	scanner := newGAM(t, GAMParams{}, quiet)

	_, err := scanner.Scan(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilPointSet)

	set, err := NewWeightedPointSet(NewPointIndex(nil), NewPointIndex(nil))
	require.NoError(t, err)
	clusters, err := scanner.Scan(context.Background(), set)
	require.NoError(t, err)
	assert.Empty(t, clusters)

	// Collinear points leave no area to derive a default radius from.
	line := NewPointIndex([]WeightedPoint{{X: 0, Y: 1, Value: 1}, {X: 5, Y: 1, Value: 1}})
	set, err = NewWeightedPointSet(line, line)
	require.NoError(t, err)
	_, err = scanner.Scan(context.Background(), set)
	assert.ErrorIs(t, err, ErrEmptyExtent)
}

func TestGAM_Cancelled(t *testing.T) {
	set := gamSet(t)
	scanner := newGAM(t, GAMParams{MinRadius: 0.5, MaxRadius: 1.5, RadiusIncrement: 0.5}, quiet)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := scanner.Scan(ctx, set)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGAMParams_Resolve(t *testing.T) {
	extent := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{300, 150}}

	t.Run("defaults", func(t *testing.T) {
		var log captureLog
		p, err := GAMParams{}.Resolve(extent, log.options())
		require.NoError(t, err)
		assert.Equal(t, 1.0, p.MinRadius)
		assert.Equal(t, 5.0, p.MaxRadius)
		assert.Equal(t, 0.5, p.RadiusIncrement)
		assert.Equal(t, DefaultOverlapRatio, p.OverlapRatio)
		assert.Greater(t, p.Workers, 0)
		assert.Len(t, log.lines, 3)
	})

	t.Run("max below min", func(t *testing.T) {
		p, err := GAMParams{MinRadius: 4, MaxRadius: 2, RadiusIncrement: 1, OverlapRatio: 0.5}.Resolve(extent, quiet)
		require.NoError(t, err)
		assert.Equal(t, 20.0, p.MaxRadius)
	})

	t.Run("overlap clamped", func(t *testing.T) {
		p, err := GAMParams{MinRadius: 1, MaxRadius: 2, RadiusIncrement: 1, OverlapRatio: 2}.Resolve(extent, quiet)
		require.NoError(t, err)
		assert.Equal(t, 1.0, p.OverlapRatio)

		p, err = GAMParams{MinRadius: 1, MaxRadius: 2, RadiusIncrement: 1, OverlapRatio: -0.3}.Resolve(extent, quiet)
		require.NoError(t, err)
		assert.Equal(t, DefaultOverlapRatio, p.OverlapRatio)
	})

	t.Run("explicit values kept", func(t *testing.T) {
		in := GAMParams{MinRadius: 2, MaxRadius: 7, RadiusIncrement: 0.5, OverlapRatio: 0.8, Workers: 3}
		p, err := in.Resolve(orb.Bound{}, quiet)
		require.NoError(t, err)
		assert.Equal(t, in, p)
	})
}

func TestGAMParams_Radii(t *testing.T) {
	p := GAMParams{MinRadius: 1, MaxRadius: 2, RadiusIncrement: 0.5}
	assert.Equal(t, []float64{1, 1.5, 2}, p.Radii())

	p = GAMParams{MinRadius: 0.1, MaxRadius: 0.3, RadiusIncrement: 0.1}
	assert.Len(t, p.Radii(), 3)

	p = GAMParams{MinRadius: 1, MaxRadius: 1.9, RadiusIncrement: 0.5}
	assert.Equal(t, []float64{1, 1.5}, p.Radii())
}

func TestNewScanner(t *testing.T) {
	s, err := NewScanner(StrategyGAM, Params{}, quiet)
	require.NoError(t, err)
	assert.Equal(t, StrategyGAM, s.Name())

	s, err = NewScanner("Besag_Newell", Params{Kind: Relative, BesagNewell: BesagNewellParams{Neighbours: 4}}, quiet)
	require.NoError(t, err)
	assert.Equal(t, StrategyBesagNewell, s.Name())

	_, err = NewScanner("kulldorff", Params{}, quiet)
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = NewScanner(StrategyGAM, Params{Kind: FitnessKind(7)}, quiet)
	assert.ErrorIs(t, err, ErrUnknownFitnessKind)
}

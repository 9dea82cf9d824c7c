package hotspot

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mathext"
)

const (
	// MaxCases is the size of the reciprocal table used by the Poisson recurrence.
	MaxCases = 300
	// DefaultThreshold is the significance level used when none is supplied.
	DefaultThreshold = 0.01
	// DefaultMinExpected is the smallest expected count worth testing.
	DefaultMinExpected = 1
	// DefaultMinCases is the smallest observed count worth testing.
	DefaultMinCases = 1
)

// FitnessKind selects the score reported for a significant circle.
type FitnessKind int

const (
	// Poisson scores a circle by 1 - tail probability.
	Poisson FitnessKind = iota
	// Relative scores a circle by cases - expected.
	Relative
	// RelativePercent scores a circle by cases / expected.
	RelativePercent
)

func (k FitnessKind) String() string {
	switch k {
	case Poisson:
		return "poisson"
	case Relative:
		return "relative"
	case RelativePercent:
		return "relative_percent"
	default:
		return fmt.Sprintf("FitnessKind(%d)", int(k))
	}
}

// ParseFitnessKind accepts the String form, case-insensitively. An empty
// string selects Poisson.
func ParseFitnessKind(s string) (FitnessKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "poisson":
		return Poisson, nil
	case "relative":
		return Relative, nil
	case "relative_percent", "relativepercent":
		return RelativePercent, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFitnessKind, s)
	}
}

// FitnessFunction is the Poisson significance evaluator. It is immutable after
// construction and safe for concurrent use.
type FitnessFunction struct {
	Kind        FitnessKind
	Threshold   float64
	MinExpected float64
	MinCases    float64

	recip     [MaxCases]float64
	opts      Options
	largeOnce sync.Once
}

// NewFitnessFunction validates kind and builds the reciprocal table.
// A threshold outside (0, 1] is replaced by DefaultThreshold with a warning.
func NewFitnessFunction(kind FitnessKind, threshold float64, opts Options) (*FitnessFunction, error) {
	switch kind {
	case Poisson, Relative, RelativePercent:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFitnessKind, int(kind))
	}
	if !(threshold > 0 && threshold <= 1) {
		opts.logf("[FitnessFunction] threshold %v out of range, using %v", threshold, DefaultThreshold)
		threshold = DefaultThreshold
	}

	f := &FitnessFunction{
		Kind:        kind,
		Threshold:   threshold,
		MinExpected: DefaultMinExpected,
		MinCases:    DefaultMinCases,
		opts:        opts,
	}
	for i := 1; i < MaxCases; i++ {
		f.recip[i] = 1.0 / float64(i)
	}
	return f, nil
}

// IsWorthTesting is the cheap pre-filter run before Stat: a cluster needs at
// least as many cases as expected and both counts above their minimums.
func (f *FitnessFunction) IsWorthTesting(expected, cases float64) bool {
	return expected <= cases && expected >= f.MinExpected && cases >= f.MinCases
}

// TailProbability returns P(X >= floor(cases)) for X ~ Poisson(expected),
// with counts of 0 or 1 treated as P(X >= 1).
func (f *FitnessFunction) TailProbability(expected, cases float64) float64 {
	jA := int(math.Floor(cases))
	if jA <= 1 {
		return 1 - math.Exp(-expected)
	}
	if jA >= MaxCases {
		// Outside the reciprocal table: P(X >= jA) = P(jA, expected).
		f.largeOnce.Do(func() {
			f.opts.logf("[FitnessFunction] %d cases exceeds table size %d, using incomplete gamma tail", jA, MaxCases)
		})
		return mathext.GammaIncReg(float64(jA), expected)
	}

	term := math.Exp(-expected)
	sum := term
	for j := 1; j < jA; j++ {
		term = expected * f.recip[j] * term
		sum += term
	}
	return math.Max(0, 1-sum)
}

// Stat returns the fitness of a circle with the given expected and observed
// counts, or ok=false when the tail probability exceeds the threshold.
func (f *FitnessFunction) Stat(expected, cases float64) (fitness float64, ok bool) {
	prob := f.TailProbability(expected, cases)
	if math.IsNaN(prob) || prob > f.Threshold {
		return 0, false
	}

	switch f.Kind {
	case Poisson:
		fitness = 1 - prob
	case Relative:
		fitness = cases - expected
	case RelativePercent:
		fitness = cases / expected
	}
	if math.IsNaN(fitness) || math.IsInf(fitness, 0) {
		return 0, false
	}
	return fitness, true
}

// Evaluate runs the pre-filter and the significance test together.
func (f *FitnessFunction) Evaluate(expected, cases float64) (float64, bool) {
	if !f.IsWorthTesting(expected, cases) {
		return 0, false
	}
	return f.Stat(expected, cases)
}

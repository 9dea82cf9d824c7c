package hotspot

import "math"

// Kernel is a square (2*Radius+1) grid of weights centred on its middle cell.
type Kernel struct {
	Radius  int
	Weights []float64
}

// NewEpanechnikovKernel builds a circular kernel whose weight falls off as
// 1 - (d/r)^2 from the centre and is zero at and beyond r cells.
func NewEpanechnikovKernel(radius int) *Kernel {
	if radius < 0 {
		radius = 0
	}
	size := 2*radius + 1
	k := &Kernel{Radius: radius, Weights: make([]float64, size*size)}
	if radius == 0 {
		k.Weights[0] = 1
		return k
	}
	r2 := float64(radius * radius)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := float64(dx*dx + dy*dy)
			if d2 >= r2 {
				continue
			}
			k.set(dx, dy, 1-d2/r2)
		}
	}
	return k
}

// Size returns the kernel width in cells.
func (k *Kernel) Size() int { return 2*k.Radius + 1 }

// At returns the weight at offset (dx, dy) from the centre.
func (k *Kernel) At(dx, dy int) float64 {
	if dx < -k.Radius || dx > k.Radius || dy < -k.Radius || dy > k.Radius {
		return 0
	}
	return k.Weights[(dy+k.Radius)*k.Size()+dx+k.Radius]
}

func (k *Kernel) set(dx, dy int, v float64) {
	k.Weights[(dy+k.Radius)*k.Size()+dx+k.Radius] = v
}

// SetCenter overwrites the centre weight.
func (k *Kernel) SetCenter(v float64) { k.set(0, 0, v) }

// Sum returns the total kernel weight.
func (k *Kernel) Sum() float64 {
	var sum float64
	for _, w := range k.Weights {
		sum += w
	}
	return sum
}

// Standardize rescales the weights to sum to 1. A kernel with zero or
// non-finite sum is left unchanged.
func (k *Kernel) Standardize() {
	sum := k.Sum()
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return
	}
	for i := range k.Weights {
		k.Weights[i] /= sum
	}
}

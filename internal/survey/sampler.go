// Package survey scans the physical aperture of a beamline. At each sample
// point it bisects along the four transverse half-axes to find how far the
// beam pipe or collimator jaw extends, and streams one row per sample.
package survey

import (
	"fmt"

	"github.com/banshee-data/lossmap/internal/beamline"
)

// Sampler chooses the local sample offsets inside each element and the
// position reported for a sample. Samplers may carry state across
// elements; Reset must be called before walking a new beamline.
type Sampler interface {
	Reset(origin float64)
	Offsets(e beamline.Element) []float64
	ReportPosition(e beamline.Element, z float64) float64
}

// FixedCount places N evenly spaced samples in every element, including
// both ends. A single sample sits at the element entry.
type FixedCount struct {
	N int
}

func (FixedCount) Reset(float64) {}

func (f FixedCount) Offsets(e beamline.Element) []float64 {
	if f.N <= 0 {
		return nil
	}
	if f.N == 1 {
		return []float64{0}
	}
	zs := make([]float64, f.N)
	for i := range zs {
		zs[i] = float64(i) * e.Length * (1.0 / float64(f.N-1))
	}
	return zs
}

func (FixedCount) ReportPosition(e beamline.Element, _ float64) float64 {
	return e.End()
}

// FixedStep samples every Step metres along the whole beamline. The cursor
// is shared between elements, so an element shorter than Step may get no
// sample at all.
//
// With Exact set each row reports the sample's own position instead of the
// element exit.
type FixedStep struct {
	Step  float64
	Exact bool

	last float64
}

// NewFixedStep returns a step sampler positioned at the lattice origin.
func NewFixedStep(step float64, exact bool) *FixedStep {
	f := &FixedStep{Step: step, Exact: exact}
	f.Reset(0)
	return f
}

// Reset moves the cursor so that the next sample falls at origin.
func (f *FixedStep) Reset(origin float64) {
	f.last = origin - f.Step
}

func (f *FixedStep) Offsets(e beamline.Element) []float64 {
	var zs []float64
	for f.last+f.Step < e.Position+e.Length {
		f.last += f.Step
		zs = append(zs, f.last-e.Position)
	}
	return zs
}

func (f *FixedStep) ReportPosition(e beamline.Element, z float64) float64 {
	if f.Exact {
		return e.Position + z
	}
	return e.End()
}

// NewSampler selects a strategy the way the drivers configure it: a positive
// per-element count wins, otherwise a fixed step is used, reporting exact
// sample positions when asked.
func NewSampler(step float64, pointsPerElement int, exact bool) (Sampler, error) {
	if pointsPerElement > 0 {
		if exact {
			return nil, fmt.Errorf("exact positions require fixed-step sampling, got %d points per element", pointsPerElement)
		}
		return FixedCount{N: pointsPerElement}, nil
	}
	if step <= 0 {
		return nil, fmt.Errorf("survey step must be positive, got %g", step)
	}
	return NewFixedStep(step, exact), nil
}

package optics

import (
	"fmt"
	"math"
)

// Convergence defaults.
const (
	DefaultInitialScale = 1e-22
	DefaultFactor       = 2.0
	DefaultMaxDoublings = 160
)

// Calculator is the part of Table the convergence loop drives.
type Calculator interface {
	ScaleBendPathLength(scale float64)
	Calculate() error
	Value(fn Function, element int) float64
}

// Convergence searches for the smallest scale, on a doubling ladder, at
// which Indicator at Element is a number.
type Convergence struct {
	InitialScale float64
	Factor       float64
	MaxDoublings int
	Indicator    Function
	Element      int
}

// DefaultConvergence watches beta_x at the first element.
func DefaultConvergence() Convergence {
	return Convergence{
		InitialScale: DefaultInitialScale,
		Factor:       DefaultFactor,
		MaxDoublings: DefaultMaxDoublings,
		Indicator:    BetaX,
		Element:      0,
	}
}

// Result is the scale the loop settled on.
type Result struct {
	Scale     float64
	Doublings int
}

// Run applies InitialScale, then multiplies the scale by Factor until the
// indicator is valid. A valid result after d doublings has
// Scale = InitialScale × Factor^d. If the indicator is still NaN after
// MaxDoublings the calculator is left at the last scale tried and a
// *NotConvergedError is returned.
func (c Convergence) Run(calc Calculator) (Result, error) {
	if !(c.InitialScale > 0) || !(c.Factor > 1) || c.MaxDoublings < 0 {
		return Result{}, fmt.Errorf("%w: initial %g, factor %g, max doublings %d",
			ErrBadConvergence, c.InitialScale, c.Factor, c.MaxDoublings)
	}
	scale := c.InitialScale
	for doublings := 0; ; doublings++ {
		diagf("trying bscale %g", scale)
		calc.ScaleBendPathLength(scale)
		if err := calc.Calculate(); err != nil {
			return Result{Scale: scale, Doublings: doublings}, fmt.Errorf("calculating lattice functions: %w", err)
		}
		if v := calc.Value(c.Indicator, c.Element); !math.IsNaN(v) {
			diagf("converged at bscale %g after %d doublings (%s=%g)", scale, doublings, c.Indicator, v)
			return Result{Scale: scale, Doublings: doublings}, nil
		}
		if doublings >= c.MaxDoublings {
			opsf("no valid lattice functions after %d doublings, last bscale %g", doublings, scale)
			return Result{Scale: scale, Doublings: doublings}, &NotConvergedError{Doublings: doublings, LastScale: scale}
		}
		scale *= c.Factor
	}
}

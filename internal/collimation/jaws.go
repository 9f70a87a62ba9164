package collimation

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/lossmap/internal/aperture"
	"github.com/banshee-data/lossmap/internal/beamline"
	"github.com/banshee-data/lossmap/internal/optics"
)

var (
	// ErrImpactNaN is returned when the impact factor cannot be computed,
	// which means the optics at the primary collimator are invalid.
	ErrImpactNaN = errors.New("collimation: impact factor is NaN")

	// ErrNotCollimator is returned when a jaw setting names an element
	// that is not a collimator.
	ErrNotCollimator = errors.New("collimation: element is not a collimator")
)

// Plane is the collimation plane of a jaw pair.
type Plane string

const (
	Horizontal Plane = "h"
	Vertical   Plane = "v"
)

// Jaw is the opening of one collimator in units of the local beam size.
type Jaw struct {
	Name     string
	NSigma   float64
	Plane    Plane
	Material string
}

// ConfigureJaws sets each named collimator's half gap to NSigma times the
// local rms beam size in its plane. Vertical jaws are rotated by π/2.
func ConfigureJaws(model *beamline.Model, table *optics.Table, emitX, emitY float64, jaws []Jaw) error {
	for _, j := range jaws {
		i, err := model.FindElementLatticePosition(j.Name)
		if err != nil {
			return fmt.Errorf("configuring jaw: %w", err)
		}
		e := model.Element(i)
		if !e.IsCollimator() {
			return fmt.Errorf("%w: %s is %s", ErrNotCollimator, e.Name, e.Type)
		}

		var sigma, tilt float64
		switch j.Plane {
		case Vertical:
			sigma = math.Sqrt(table.Value(optics.BetaY, i) * emitY)
			tilt = math.Pi / 2
		default:
			sigma = math.Sqrt(table.Value(optics.BetaX, i) * emitX)
		}
		if math.IsNaN(sigma) {
			return fmt.Errorf("%w: beam size at %s", ErrImpactNaN, e.Name)
		}

		col, ok := e.Aperture.(aperture.Collimator)
		if !ok {
			col = aperture.Collimator{Length: e.Length, Material: aperture.MaterialOf(e.Aperture)}
		}
		col = col.WithHalfGap(j.NSigma * sigma)
		col.Tilt = tilt
		if j.Material != "" {
			col.Material = j.Material
		}
		model.SetAperture(e.Name, col)
		diagf("%s: %g sigma = %g m (%s plane, %s)", e.Name, j.NSigma, col.HalfGap, planeName(j.Plane), col.Material)
	}
	return nil
}

func planeName(p Plane) string {
	if p == Vertical {
		return "vertical"
	}
	return "horizontal"
}

// ImpactFactor returns the half gap of the primary collimator in units of
// the horizontal beam size there. It is the reference for halo
// distributions placed just outside the primary jaw.
func ImpactFactor(model *beamline.Model, table *optics.Table, primary string, emitX float64) (float64, error) {
	i, err := model.FindElementLatticePosition(primary)
	if err != nil {
		return math.NaN(), fmt.Errorf("impact factor: %w", err)
	}
	e := model.Element(i)
	col, ok := e.Aperture.(aperture.Collimator)
	if !ok {
		return math.NaN(), fmt.Errorf("%w: %s has no jaw aperture", ErrNotCollimator, primary)
	}
	f := col.HalfGap / math.Sqrt(table.Value(optics.BetaX, i)*emitX)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		opsf("impact factor at %s is %g", primary, f)
		return f, fmt.Errorf("%w: at %s", ErrImpactNaN, primary)
	}
	diagf("impact factor at %s: %g sigma", primary, f)
	return f, nil
}

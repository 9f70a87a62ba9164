// Package aperture describes the physical transverse boundaries of beamline
// elements.
//
// Every shape answers a single question: is the transverse offset (x, y)
// unobstructed at local longitudinal offset z inside the element? All shapes
// here are star-shaped about the local centre, so along any ray from the
// centre the inside/outside answer changes at most once, provided the centre
// itself is inside. The aperture survey bisection relies on that.
package aperture

import (
	"fmt"
	"math"
)

// Kind tags an aperture variant.
type Kind string

const (
	KindCircular           Kind = "circular"
	KindRectangular        Kind = "rectangular"
	KindElliptical         Kind = "elliptical"
	KindRectEllipse        Kind = "rectellipse"
	KindCollimator         Kind = "collimator"
	KindCircularCollimator Kind = "circular_collimator"
)

// Aperture reports whether a transverse offset is inside the element at
// local longitudinal offset z.
type Aperture interface {
	PointInside(x, y, z float64) bool
	Kind() Kind
}

// Circular is a round beam pipe.
type Circular struct {
	Radius float64
}

func (c Circular) PointInside(x, y, _ float64) bool {
	return x*x+y*y < c.Radius*c.Radius
}

func (Circular) Kind() Kind { return KindCircular }

// Rectangular is an upright rectangular pipe.
type Rectangular struct {
	HalfWidth  float64
	HalfHeight float64
}

func (r Rectangular) PointInside(x, y, _ float64) bool {
	return math.Abs(x) < r.HalfWidth && math.Abs(y) < r.HalfHeight
}

func (Rectangular) Kind() Kind { return KindRectangular }

// Elliptical is an upright elliptical pipe.
type Elliptical struct {
	HalfWidth  float64
	HalfHeight float64
}

func (e Elliptical) PointInside(x, y, _ float64) bool {
	u := x / e.HalfWidth
	v := y / e.HalfHeight
	return u*u+v*v < 1
}

func (Elliptical) Kind() Kind { return KindElliptical }

// RectEllipse is the intersection of a rectangle and an ellipse, the usual
// beam screen profile in superconducting magnets.
type RectEllipse struct {
	HalfWidth  float64
	HalfHeight float64
	A          float64
	B          float64
}

func (r RectEllipse) PointInside(x, y, z float64) bool {
	return Rectangular{HalfWidth: r.HalfWidth, HalfHeight: r.HalfHeight}.PointInside(x, y, z) &&
		Elliptical{HalfWidth: r.A, HalfHeight: r.B}.PointInside(x, y, z)
}

func (RectEllipse) Kind() Kind { return KindRectEllipse }

// Collimator is a pair of flat jaws. The gap centre moves linearly from the
// entry offsets to the exit offsets along the element, and the jaw plane is
// rotated by Tilt (radians) about the beam axis. Tilt 0 gives horizontal
// collimation (jaws at ±HalfGap in x). An offset larger than HalfGap
// across the gap puts the element centre behind a jaw; the shape is then
// not star-shaped about the centre and the survey reports it as closed
// there.
type Collimator struct {
	HalfGap      float64
	Tilt         float64
	Length       float64
	EntryOffsetX float64
	EntryOffsetY float64
	ExitOffsetX  float64
	ExitOffsetY  float64
	Material     string
}

func (c Collimator) PointInside(x, y, z float64) bool {
	frac := 0.0
	if c.Length > 0 {
		frac = z / c.Length
	}
	x -= c.EntryOffsetX + frac*(c.ExitOffsetX-c.EntryOffsetX)
	y -= c.EntryOffsetY + frac*(c.ExitOffsetY-c.EntryOffsetY)
	// Rotate into the jaw frame; only the coordinate across the gap matters.
	u := x*math.Cos(c.Tilt) + y*math.Sin(c.Tilt)
	return math.Abs(u) < c.HalfGap
}

func (Collimator) Kind() Kind { return KindCollimator }

// WithHalfGap returns a copy of the collimator with a new half gap.
func (c Collimator) WithHalfGap(halfGap float64) Collimator {
	c.HalfGap = halfGap
	return c
}

// CircularCollimator is a round absorber such as a TAS.
type CircularCollimator struct {
	Radius   float64
	Material string
}

func (c CircularCollimator) PointInside(x, y, _ float64) bool {
	return x*x+y*y < c.Radius*c.Radius
}

func (CircularCollimator) Kind() Kind { return KindCircularCollimator }

// MaterialOf returns the jaw material for collimating apertures and "" for
// everything else.
func MaterialOf(ap Aperture) string {
	switch a := ap.(type) {
	case Collimator:
		return a.Material
	case *Collimator:
		return a.Material
	case CircularCollimator:
		return a.Material
	case *CircularCollimator:
		return a.Material
	}
	return ""
}

// Spec is the declarative form of an aperture used in run configuration.
type Spec struct {
	Kind       Kind    `toml:"kind"`
	Radius     float64 `toml:"r"`
	HalfWidth  float64 `toml:"half_width"`
	HalfHeight float64 `toml:"half_height"`
	A          float64 `toml:"a"`
	B          float64 `toml:"b"`
	HalfGap    float64 `toml:"half_gap"`
	Tilt       float64 `toml:"tilt"`
	Material   string  `toml:"material"`
}

// Build turns a Spec into an Aperture. length is the owning element length,
// needed by collimators to interpolate jaw offsets.
func (s Spec) Build(length float64) (Aperture, error) {
	switch s.Kind {
	case KindCircular:
		if s.Radius <= 0 {
			return nil, fmt.Errorf("circular aperture needs r > 0, got %g", s.Radius)
		}
		return Circular{Radius: s.Radius}, nil
	case KindRectangular:
		if s.HalfWidth <= 0 || s.HalfHeight <= 0 {
			return nil, fmt.Errorf("rectangular aperture needs positive half_width and half_height")
		}
		return Rectangular{HalfWidth: s.HalfWidth, HalfHeight: s.HalfHeight}, nil
	case KindElliptical:
		if s.HalfWidth <= 0 || s.HalfHeight <= 0 {
			return nil, fmt.Errorf("elliptical aperture needs positive half_width and half_height")
		}
		return Elliptical{HalfWidth: s.HalfWidth, HalfHeight: s.HalfHeight}, nil
	case KindRectEllipse:
		if s.HalfWidth <= 0 || s.HalfHeight <= 0 || s.A <= 0 || s.B <= 0 {
			return nil, fmt.Errorf("rectellipse aperture needs positive half_width, half_height, a and b")
		}
		return RectEllipse{HalfWidth: s.HalfWidth, HalfHeight: s.HalfHeight, A: s.A, B: s.B}, nil
	case KindCollimator:
		if s.HalfGap <= 0 {
			return nil, fmt.Errorf("collimator aperture needs half_gap > 0, got %g", s.HalfGap)
		}
		return Collimator{HalfGap: s.HalfGap, Tilt: s.Tilt, Length: length, Material: s.Material}, nil
	case KindCircularCollimator:
		if s.Radius <= 0 {
			return nil, fmt.Errorf("circular collimator needs r > 0, got %g", s.Radius)
		}
		return CircularCollimator{Radius: s.Radius, Material: s.Material}, nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown aperture kind %q", s.Kind)
	}
}

// Package beamline holds the accelerator model: an ordered, read-only list of
// elements with cumulative lattice positions, plus views over index ranges
// (segments) and whole-ring iteration from any starting element.
package beamline

import (
	"github.com/banshee-data/lossmap/internal/aperture"
)

// Element types. The type tag is reported verbatim in survey and loss
// outputs.
const (
	TypeDrift       = "Drift"
	TypeQuadrupole  = "Quadrupole"
	TypeSectorBend  = "SectorBend"
	TypeCollimator  = "Collimator"
	TypeMarker      = "Marker"
	TypeRFCavity    = "RFCavity"
	TypeMonitor     = "Monitor"
	TypeHKicker     = "HKicker"
	TypeVKicker     = "VKicker"
	TypeSextupole   = "Sextupole"
	TypeOctupole    = "Octupole"
	TypeSolenoid    = "Solenoid"
	TypeUnspecified = "Unspecified"
)

// Element is one component of the beamline.
type Element struct {
	Index    int
	Name     string
	Type     string
	Length   float64
	Position float64 // cumulative lattice position of the element entry

	// Normalised quadrupole gradient (1/m²) and bend angle (rad).
	K1    float64
	Angle float64

	Aperture aperture.Aperture
}

// End returns the lattice position of the element exit.
func (e Element) End() float64 {
	return e.Position + e.Length
}

// HasAperture reports whether the element restricts the beam.
func (e Element) HasAperture() bool {
	return e.Aperture != nil
}

// IsCollimator reports whether the element is a collimator.
func (e Element) IsCollimator() bool {
	return e.Type == TypeCollimator
}

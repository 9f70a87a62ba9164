// Package lossmap accumulates particle losses over a run and bins them by
// lattice position into the loss map.
package lossmap

// Cause says what removed a particle.
type Cause string

const (
	CauseAperture   Cause = "aperture"
	CauseCollimator Cause = "collimator"
)

// Mode selects the position a loss is attributed to.
type Mode int

const (
	// NearestElement attributes a loss to the entry of the element where
	// it happened.
	NearestElement Mode = iota
	// ExactPosition uses the element entry plus the loss offset inside the
	// element.
	ExactPosition
)

// ParseMode maps "nearest" and "exact" to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "nearest", "":
		return NearestElement, true
	case "exact":
		return ExactPosition, true
	}
	return NearestElement, false
}

func (m Mode) String() string {
	if m == ExactPosition {
		return "exact"
	}
	return "nearest"
}

// LossRecord is one removed particle.
type LossRecord struct {
	ParticleID      int
	Element         string
	ElementType     string
	ElementIndex    int
	ElementPosition float64
	ElementLength   float64
	Z               float64 // offset inside the element
	Turn            int
	Cause           Cause
	Weight          float64 // 0 counts as 1
}

// Position returns the attributed lattice position under mode.
func (r LossRecord) Position(mode Mode) float64 {
	if mode == ExactPosition {
		return r.ElementPosition + r.Z
	}
	return r.ElementPosition
}

func (r LossRecord) weight() float64 {
	if r.Weight == 0 {
		return 1
	}
	return r.Weight
}

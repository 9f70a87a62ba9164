package bunch

import (
	"fmt"
	"math"

	"github.com/banshee-data/lossmap/internal/optics"
)

// BeamData describes the beam at the tracking start point.
type BeamData struct {
	BetaX, AlphaX float64
	BetaY, AlphaY float64
	EmitX, EmitY  float64 // geometric, m rad

	Dx, Dxp float64
	Dy, Dyp float64

	// Centroid.
	X0, XP0, Y0, YP0, CT0, DP0 float64

	SigZ  float64 // bunch length, m
	SigDP float64 // relative momentum spread

	// Halo and pencil amplitude range in units of horizontal sigma.
	MinSigmaX, MaxSigmaX float64

	Charge float64 // particles per bunch
}

// BeamDataAt fills the optical part of BeamData from a calculated lattice
// function table at element i.
func BeamDataAt(t *optics.Table, i int, emitX, emitY float64) (BeamData, error) {
	b := BeamData{
		BetaX:  t.Value(optics.BetaX, i),
		AlphaX: t.Value(optics.AlphaX, i),
		BetaY:  t.Value(optics.BetaY, i),
		AlphaY: t.Value(optics.AlphaY, i),
		Dx:     t.Value(optics.Dx, i),
		Dxp:    t.Value(optics.Dxp, i),
		Dy:     t.Value(optics.Dy, i),
		Dyp:    t.Value(optics.Dyp, i),
		EmitX:  emitX,
		EmitY:  emitY,
	}
	if err := b.Validate(); err != nil {
		return BeamData{}, fmt.Errorf("beam data at element %d: %w", i, err)
	}
	return b, nil
}

// SigmaX is the horizontal rms beam size.
func (b BeamData) SigmaX() float64 { return math.Sqrt(b.BetaX * b.EmitX) }

// SigmaY is the vertical rms beam size.
func (b BeamData) SigmaY() float64 { return math.Sqrt(b.BetaY * b.EmitY) }

// Validate checks that the optical functions are usable.
func (b BeamData) Validate() error {
	for name, v := range map[string]float64{
		"beta_x": b.BetaX, "alpha_x": b.AlphaX, "beta_y": b.BetaY, "alpha_y": b.AlphaY,
		"dx": b.Dx, "dxp": b.Dxp, "dy": b.Dy, "dyp": b.Dyp,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is %g", ErrInvalidBeam, name, v)
		}
	}
	if !(b.BetaX > 0) || !(b.BetaY > 0) {
		return fmt.Errorf("%w: non-positive beta (%g, %g)", ErrInvalidBeam, b.BetaX, b.BetaY)
	}
	if b.EmitX < 0 || b.EmitY < 0 {
		return fmt.Errorf("%w: negative emittance", ErrInvalidBeam)
	}
	return nil
}

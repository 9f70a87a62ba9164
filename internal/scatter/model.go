// Package scatter is the boundary to the material interaction physics. A
// Model decides what happens to a particle that reaches a collimator jaw;
// the Recorder wraps any Model to produce the auxiliary jaw impact, scatter
// plot and jaw inelastic reports.
package scatter

import (
	"github.com/banshee-data/lossmap/internal/beamline"
	"github.com/banshee-data/lossmap/internal/bunch"
)

// Hit is a particle arriving at a jaw.
type Hit struct {
	Turn     int
	Element  beamline.Element
	Z        float64 // offset inside the element of the first outside point
	Particle *bunch.Particle
}

// Outcome is the model's verdict. A surviving particle may have had its
// coordinates changed through Hit.Particle. Z is where the particle was
// absorbed, or where it left the jaw.
type Outcome struct {
	Absorbed bool
	Z        float64
}

// Model handles one jaw interaction.
type Model interface {
	Interact(h Hit) Outcome
}

// Absorber stops every particle at its impact point.
type Absorber struct{}

func (Absorber) Interact(h Hit) Outcome {
	return Outcome{Absorbed: true, Z: h.Z}
}

// Package collimation removes particles that leave the physical aperture.
// It checks each particle along the element it has just been tracked
// through, attributes the loss to the first point outside, and lets a
// scattering model decide the fate of particles that hit a collimator jaw.
package collimation

import (
	"github.com/banshee-data/lossmap/internal/beamline"
	"github.com/banshee-data/lossmap/internal/bunch"
	"github.com/banshee-data/lossmap/internal/lossmap"
	"github.com/banshee-data/lossmap/internal/scatter"
	"github.com/banshee-data/lossmap/internal/tracking"
)

// DefaultSteps is the number of intervals an element is split into when
// looking for the first point outside the aperture.
const DefaultSteps = 10

// Process is the collimation process attached to tracking segments.
type Process struct {
	// Steps divides each element; the aperture is checked at Steps+1
	// points including both ends.
	Steps int

	// ScatterAtCollimator hands collimator hits to Model instead of
	// absorbing them at the impact point.
	ScatterAtCollimator bool
	Model               scatter.Model
}

// NewProcess returns a process checking DefaultSteps+1 points per element.
func NewProcess(model scatter.Model, scatterAtCollimator bool) *Process {
	return &Process{Steps: DefaultSteps, ScatterAtCollimator: scatterAtCollimator, Model: model}
}

var _ tracking.Process = (*Process)(nil)

// Apply checks every particle against step.Element's aperture using the
// coordinates at the element exit, drifting back along the particle's
// angles to reconstruct earlier points.
func (c *Process) Apply(step tracking.Step, pop *bunch.Population, losses tracking.LossSink) error {
	e := step.Element
	if !e.HasAperture() {
		return nil
	}
	steps := c.Steps
	if steps < 1 {
		steps = DefaultSteps
	}

	var lost []lossmap.LossRecord
	pop.Filter(func(p *bunch.Particle) bool {
		z, outside := firstOutside(e, p, steps)
		if !outside {
			return true
		}
		rec := lossmap.LossRecord{
			ParticleID:      p.ID,
			Element:         e.Name,
			ElementType:     e.Type,
			ElementIndex:    e.Index,
			ElementPosition: e.Position,
			ElementLength:   e.Length,
			Z:               z,
			Turn:            step.Turn,
			Cause:           lossmap.CauseAperture,
		}
		if e.IsCollimator() {
			rec.Cause = lossmap.CauseCollimator
			if c.ScatterAtCollimator && c.Model != nil {
				absorbed, zOut := c.interact(step, p, z)
				if !absorbed {
					return true
				}
				rec.Z = zOut
			}
		}
		lost = append(lost, rec)
		return false
	})

	if len(lost) > 0 {
		tracef("turn %d %s: %d lost, %d left", step.Turn, e.Name, len(lost), pop.Len())
	}
	for _, rec := range lost {
		if err := losses.Dispose(rec); err != nil {
			return err
		}
	}
	return nil
}

// interact moves p to its impact point, lets the model act and, if it
// survives, drifts it on to the element exit.
func (c *Process) interact(step tracking.Step, p *bunch.Particle, z float64) (bool, float64) {
	L := step.Element.Length
	p.X -= p.XP * (L - z)
	p.Y -= p.YP * (L - z)
	out := c.Model.Interact(scatter.Hit{Turn: step.Turn, Element: step.Element, Z: z, Particle: p})
	if out.Absorbed {
		return true, out.Z
	}
	p.X += p.XP * (L - out.Z)
	p.Y += p.YP * (L - out.Z)
	return false, out.Z
}

// firstOutside walks from the element entry to its exit and returns the
// first offset at which p is outside the aperture.
func firstOutside(e beamline.Element, p *bunch.Particle, steps int) (float64, bool) {
	L := e.Length
	if L == 0 {
		return 0, !e.Aperture.PointInside(p.X, p.Y, 0)
	}
	for i := 0; i <= steps; i++ {
		z := L * float64(i) / float64(steps)
		back := L - z
		if !e.Aperture.PointInside(p.X-p.XP*back, p.Y-p.YP*back, z) {
			return z, true
		}
	}
	return 0, false
}

// Package bunch holds the tracked particle population and builds it from
// beam parameters.
package bunch

import "fmt"

// Particle is one macro-particle in phase space: transverse positions (m)
// and angles (rad), longitudinal offset ct (m) and relative momentum
// deviation dp.
type Particle struct {
	ID int
	X  float64
	XP float64
	Y  float64
	YP float64
	CT float64
	DP float64
}

// Coords returns the phase space vector in x, xp, y, yp, ct, dp order.
func (p *Particle) Coords() [6]float64 {
	return [6]float64{p.X, p.XP, p.Y, p.YP, p.CT, p.DP}
}

// SetCoords overwrites the phase space vector.
func (p *Particle) SetCoords(c [6]float64) {
	p.X, p.XP, p.Y, p.YP, p.CT, p.DP = c[0], c[1], c[2], c[3], c[4], c[5]
}

// Population is the ordered set of surviving particles. It only shrinks:
// particles are removed through Filter and never added after construction.
type Population struct {
	particles   []Particle
	initial     int
	totalCharge float64
}

// NewPopulation takes ownership of particles. totalCharge is the bunch
// charge in particles and is shared equally between macro-particles.
func NewPopulation(particles []Particle, totalCharge float64) *Population {
	return &Population{particles: particles, initial: len(particles), totalCharge: totalCharge}
}

// Len returns the number of surviving particles.
func (p *Population) Len() int { return len(p.particles) }

// Initial returns the size the population was created with.
func (p *Population) Initial() int { return p.initial }

// At returns a copy of particle i.
func (p *Population) At(i int) Particle { return p.particles[i] }

// Particles returns a copy of the surviving particles.
func (p *Population) Particles() []Particle {
	out := make([]Particle, len(p.particles))
	copy(out, p.particles)
	return out
}

// Each calls fn with a pointer to every particle in order so that fn can
// update coordinates in place.
func (p *Population) Each(fn func(*Particle)) {
	for i := range p.particles {
		fn(&p.particles[i])
	}
}

// Filter keeps the particles for which keep returns true and returns the
// removed ones in their original order. keep is called exactly once per
// particle and may modify it; the survivors keep their relative order.
func (p *Population) Filter(keep func(*Particle) bool) []Particle {
	var removed []Particle
	kept := make([]Particle, 0, len(p.particles))
	for i := range p.particles {
		if keep(&p.particles[i]) {
			kept = append(kept, p.particles[i])
		} else {
			removed = append(removed, p.particles[i])
		}
	}
	if len(removed) > 0 {
		p.particles = kept
	}
	return removed
}

// Clone returns an independent copy of the population.
func (p *Population) Clone() *Population {
	return &Population{particles: p.Particles(), initial: p.initial, totalCharge: p.totalCharge}
}

// MacroCharge is the number of real particles each macro-particle stands
// for.
func (p *Population) MacroCharge() float64 {
	if p.initial == 0 {
		return 0
	}
	return p.totalCharge / float64(p.initial)
}

func (p *Population) String() string {
	return fmt.Sprintf("population(%d of %d)", len(p.particles), p.initial)
}

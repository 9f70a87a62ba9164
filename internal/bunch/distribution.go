package bunch

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution names accepted by ParseDistribution.
const (
	Normal = "normal"
	Pencil = "pencil"
	Halo   = "halo"
)

// Distribution places one particle given standard random sources.
type Distribution interface {
	Name() string
	Generate(b BeamData, g *Generator, p *Particle)
}

// ParseDistribution maps a configuration name to a Distribution.
func ParseDistribution(name string) (Distribution, error) {
	switch name {
	case Normal, "":
		return normalDist{}, nil
	case Pencil:
		return pencilDist{}, nil
	case Halo:
		return haloDist{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDistribution, name)
}

// Generator bundles the seeded random variates used to build a bunch.
type Generator struct {
	gauss   distuv.Normal
	uniform distuv.Uniform
}

// NewGenerator returns variates seeded deterministically from seed.
func NewGenerator(seed uint64) *Generator {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Generator{
		gauss:   distuv.Normal{Mu: 0, Sigma: 1, Src: src},
		uniform: distuv.Uniform{Min: 0, Max: 1, Src: src},
	}
}

// Gauss returns a standard normal variate.
func (g *Generator) Gauss() float64 { return g.gauss.Rand() }

// Uniform returns a variate in [lo, hi).
func (g *Generator) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.uniform.Rand()
}

// Construct builds n particles from b. The same seed always gives the same
// bunch.
func Construct(b BeamData, n int, dist Distribution, seed uint64) (*Population, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative particle count %d", n)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	g := NewGenerator(seed)
	particles := make([]Particle, n)
	for i := range particles {
		p := &particles[i]
		p.ID = i
		dist.Generate(b, g, p)
		p.X += b.X0
		p.XP += b.XP0
		p.Y += b.Y0
		p.YP += b.YP0
		p.CT += b.CT0
		p.DP += b.DP0
	}
	diagf("constructed %d particles (%s, seed %d)", n, dist.Name(), seed)
	return NewPopulation(particles, b.Charge), nil
}

// normalDist is a matched Gaussian in all six dimensions.
type normalDist struct{}

func (normalDist) Name() string { return Normal }

func (normalDist) Generate(b BeamData, g *Generator, p *Particle) {
	p.X, p.XP = matched(g.Gauss(), g.Gauss(), b.BetaX, b.AlphaX, b.EmitX)
	p.Y, p.YP = matched(g.Gauss(), g.Gauss(), b.BetaY, b.AlphaY, b.EmitY)
	longitudinal(b, g, p)
}

// pencilDist puts every particle at the horizontal phase space extremum
// with an amplitude drawn uniformly between MinSigmaX and MaxSigmaX. The
// vertical plane is a matched Gaussian.
type pencilDist struct{}

func (pencilDist) Name() string { return Pencil }

func (pencilDist) Generate(b BeamData, g *Generator, p *Particle) {
	a := g.Uniform(b.MinSigmaX, b.MaxSigmaX)
	p.X = a * b.SigmaX()
	p.XP = -b.AlphaX * p.X / b.BetaX
	p.Y, p.YP = matched(g.Gauss(), g.Gauss(), b.BetaY, b.AlphaY, b.EmitY)
	longitudinal(b, g, p)
}

// haloDist places particles on horizontal ellipses of amplitude between
// MinSigmaX and MaxSigmaX at a uniformly random betatron phase.
type haloDist struct{}

func (haloDist) Name() string { return Halo }

func (haloDist) Generate(b BeamData, g *Generator, p *Particle) {
	a := g.Uniform(b.MinSigmaX, b.MaxSigmaX)
	phi := g.Uniform(0, 2*math.Pi)
	p.X, p.XP = matched(a*math.Cos(phi), -a*math.Sin(phi), b.BetaX, b.AlphaX, b.EmitX)
	p.Y, p.YP = matched(g.Gauss(), g.Gauss(), b.BetaY, b.AlphaY, b.EmitY)
	longitudinal(b, g, p)
}

// matched maps normalised coordinates (u, v) onto the phase space ellipse
// of the given Twiss parameters and emittance.
func matched(u, v, beta, alpha, emit float64) (float64, float64) {
	s := math.Sqrt(emit * beta)
	x := s * u
	xp := math.Sqrt(emit/beta) * (v - alpha*u)
	return x, xp
}

func longitudinal(b BeamData, g *Generator, p *Particle) {
	p.CT = b.SigZ * g.Gauss()
	p.DP = b.SigDP * g.Gauss()
	p.X += b.Dx * p.DP
	p.XP += b.Dxp * p.DP
	p.Y += b.Dy * p.DP
	p.YP += b.Dyp * p.DP
}

package tracking

import (
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/lossmap/internal/beamline"
	"github.com/banshee-data/lossmap/internal/bunch"
	"github.com/banshee-data/lossmap/internal/optics"
)

// LinearIntegrator tracks with the first order transfer matrix of each
// element. Maps are built on first use and cached by element index.
type LinearIntegrator struct {
	gamma float64
	maps  map[int]*mat.Dense
}

// NewLinearIntegrator returns an integrator for a beam with Lorentz factor
// gamma.
func NewLinearIntegrator(gamma float64) *LinearIntegrator {
	return &LinearIntegrator{gamma: gamma, maps: make(map[int]*mat.Dense)}
}

func (l *LinearIntegrator) Track(e beamline.Element, pop *bunch.Population) error {
	if e.Length == 0 {
		return nil
	}
	m, ok := l.maps[e.Index]
	if !ok {
		m = optics.TransferMatrix(e, l.gamma)
		l.maps[e.Index] = m
	}
	in := mat.NewVecDense(optics.Dim, nil)
	var out mat.VecDense
	pop.Each(func(p *bunch.Particle) {
		c := p.Coords()
		for i, v := range c {
			in.SetVec(i, v)
		}
		out.MulVec(m, in)
		for i := range c {
			c[i] = out.AtVec(i)
		}
		p.SetCoords(c)
	})
	return nil
}

package beamline

import (
	"fmt"
	"math"

	"github.com/banshee-data/lossmap/internal/aperture"
)

// Demonstration ring parameters.
const (
	DemoCells      = 8
	DemoQuadK1     = 0.08
	DemoPipeRadius = 0.02
)

// DemoRing returns a small FODO ring with two collimators, used when no
// lattice is configured. Each 22 m cell is QF D B D QD D B D with 8 m
// sector bends; cell 0 carries the primary collimator TCP.A after its QD
// and cell 2 the secondary TCSG.B after its QF. Every non-collimator
// element has a round beam pipe.
func DemoRing() (*Model, error) {
	pipe := aperture.Circular{Radius: DemoPipeRadius}
	theta := 2 * math.Pi / (2 * DemoCells)

	b := NewBuilder()
	b.Add(Element{Name: "IP1", Type: TypeMarker})
	for c := 0; c < DemoCells; c++ {
		drift := func(tag string, l float64) {
			b.Add(Element{Name: fmt.Sprintf("D%s.%d", tag, c), Type: TypeDrift, Length: l, Aperture: pipe})
		}
		b.Add(Element{Name: fmt.Sprintf("QF.%d", c), Type: TypeQuadrupole, Length: 1, K1: DemoQuadK1, Aperture: pipe})
		if c == 2 {
			b.Add(Element{Name: "TCSG.B", Type: TypeCollimator, Length: 1,
				Aperture: aperture.Collimator{HalfGap: 0.006, Length: 1, Material: "C"}})
		} else {
			drift("1", 1)
		}
		b.Add(Element{Name: fmt.Sprintf("MB.A%d", c), Type: TypeSectorBend, Length: 8, Angle: theta, Aperture: pipe})
		drift("2", 1)
		b.Add(Element{Name: fmt.Sprintf("QD.%d", c), Type: TypeQuadrupole, Length: 1, K1: -DemoQuadK1, Aperture: pipe})
		if c == 0 {
			b.Add(Element{Name: "TCP.A", Type: TypeCollimator, Length: 0.6,
				Aperture: aperture.Collimator{HalfGap: 0.004, Length: 0.6, Material: "C"}})
			drift("3", 0.4)
		} else {
			drift("3", 1)
		}
		b.Add(Element{Name: fmt.Sprintf("MB.B%d", c), Type: TypeSectorBend, Length: 8, Angle: theta, Aperture: pipe})
		drift("4", 1)
	}
	return b.Build()
}

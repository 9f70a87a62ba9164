package optics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/lossmap/internal/beamline"
)

func TestTransferMatrix_Determinant(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		e    beamline.Element
	}{
		{"drift", beamline.Element{Type: beamline.TypeDrift, Length: 3}},
		{"marker", beamline.Element{Type: beamline.TypeMarker}},
		{"focusing quad", beamline.Element{Type: beamline.TypeQuadrupole, Length: 1, K1: 0.08}},
		{"defocusing quad", beamline.Element{Type: beamline.TypeQuadrupole, Length: 1, K1: -0.08}},
		{"sector bend", beamline.Element{Type: beamline.TypeSectorBend, Length: 8, Angle: 2 * math.Pi / 16}},
		{"collimator", beamline.Element{Type: beamline.TypeCollimator, Length: 0.6}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := TransferMatrix(tt.e, 7460)
			assert.InDelta(t, 1.0, mat.Det(m), 1e-9)
		})
	}
}

func TestTransferMatrix_Drift(t *testing.T) {
	t.Parallel()
	m := TransferMatrix(beamline.Element{Type: beamline.TypeDrift, Length: 2.5}, 0)

	assert.Equal(t, 2.5, m.At(X, XP))
	assert.Equal(t, 2.5, m.At(Y, YP))
	assert.Equal(t, 0.0, m.At(CT, DP))
	assert.Equal(t, 1.0, m.At(X, X))
}

func TestTransferMatrix_QuadFocusesOnePlane(t *testing.T) {
	t.Parallel()
	m := TransferMatrix(beamline.Element{Type: beamline.TypeQuadrupole, Length: 1, K1: 0.1}, 0)

	assert.Less(t, m.At(XP, X), 0.0)
	assert.Greater(t, m.At(YP, Y), 0.0)
	assert.InDelta(t, math.Cos(math.Sqrt(0.1)), m.At(X, X), 1e-15)
	assert.InDelta(t, math.Cosh(math.Sqrt(0.1)), m.At(Y, Y), 1e-15)
}

func TestTransferMatrix_BendDispersion(t *testing.T) {
	t.Parallel()
	theta := 0.1
	m := TransferMatrix(beamline.Element{Type: beamline.TypeSectorBend, Length: 5, Angle: theta}, 0)
	rho := 5 / theta

	assert.InDelta(t, rho*(1-math.Cos(theta)), m.At(X, DP), 1e-12)
	assert.InDelta(t, math.Sin(theta), m.At(XP, DP), 1e-15)
	assert.InDelta(t, rho*(math.Sin(theta)-theta), m.At(CT, DP), 1e-12)
}

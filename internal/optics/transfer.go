// Package optics computes linear lattice functions for a ring: element
// transfer matrices, the one-turn map, Twiss parameters and dispersion at
// every element, and the convergence loop that supplies the synthetic
// longitudinal focusing a coasting model needs before the table is valid.
package optics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/lossmap/internal/beamline"
)

// Phase space coordinate indices.
const (
	X = iota
	XP
	Y
	YP
	CT
	DP
	Dim
)

// TransferMatrix returns the 6x6 linear map of e for a beam with Lorentz
// factor gamma. Element types without a dedicated map are treated as
// drifts of their length.
func TransferMatrix(e beamline.Element, gamma float64) *mat.Dense {
	m := identity()
	L := e.Length
	if L == 0 {
		return m
	}
	r56 := 0.0
	if gamma > 1 {
		r56 = L / (gamma*gamma - 1)
	}
	m.Set(CT, DP, r56)

	switch {
	case e.Type == beamline.TypeSectorBend && e.Angle != 0:
		theta := e.Angle
		rho := L / theta
		c, s := math.Cos(theta), math.Sin(theta)
		m.Set(X, X, c)
		m.Set(X, XP, rho*s)
		m.Set(XP, X, -s/rho)
		m.Set(XP, XP, c)
		m.Set(X, DP, rho*(1-c))
		m.Set(XP, DP, s)
		m.Set(Y, YP, L)
		m.Set(CT, X, -s)
		m.Set(CT, XP, -rho*(1-c))
		m.Set(CT, DP, r56+rho*(s-theta))
	case e.Type == beamline.TypeQuadrupole && e.K1 != 0:
		fx := focus(e.K1, L)
		fy := focus(-e.K1, L)
		setBlock(m, X, fx)
		setBlock(m, Y, fy)
	default:
		m.Set(X, XP, L)
		m.Set(Y, YP, L)
	}
	return m
}

// focus returns the 2x2 map of a thick lens with strength k over length L.
// k > 0 focuses.
func focus(k, L float64) [2][2]float64 {
	switch {
	case k > 0:
		w := math.Sqrt(k)
		return [2][2]float64{
			{math.Cos(w * L), math.Sin(w*L) / w},
			{-w * math.Sin(w*L), math.Cos(w * L)},
		}
	case k < 0:
		w := math.Sqrt(-k)
		return [2][2]float64{
			{math.Cosh(w * L), math.Sinh(w*L) / w},
			{w * math.Sinh(w*L), math.Cosh(w * L)},
		}
	}
	return [2][2]float64{{1, L}, {0, 1}}
}

func setBlock(m *mat.Dense, at int, b [2][2]float64) {
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			m.Set(at+i, at+j, b[i][j])
		}
	}
}

func block(m mat.Matrix, at int) [2][2]float64 {
	return [2][2]float64{
		{m.At(at, at), m.At(at, at+1)},
		{m.At(at+1, at), m.At(at+1, at+1)},
	}
}

func identity() *mat.Dense {
	m := mat.NewDense(Dim, Dim, nil)
	for i := 0; i < Dim; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// OneTurn multiplies the maps of line in order.
func OneTurn(line beamline.Beamline, gamma float64) *mat.Dense {
	total := identity()
	var next mat.Dense
	_ = line.Each(func(e beamline.Element) error {
		next.Mul(TransferMatrix(e, gamma), total)
		total.Copy(&next)
		return nil
	})
	return total
}

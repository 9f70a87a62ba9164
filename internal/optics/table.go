package optics

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/lossmap/internal/beamline"
)

// Function selects a column of the lattice function table.
type Function int

const (
	BetaX Function = iota
	AlphaX
	MuX
	BetaY
	AlphaY
	MuY
	BetaZ
	Dx
	Dxp
	Dy
	Dyp
	numFunctions
)

var functionNames = [numFunctions]string{
	"beta_x", "alpha_x", "mu_x", "beta_y", "alpha_y", "mu_y", "beta_z", "dx", "dxp", "dy", "dyp",
}

func (f Function) String() string {
	if f < 0 || f >= numFunctions {
		return "Function(" + strconv.Itoa(int(f)) + ")"
	}
	return functionNames[f]
}

// Table holds the lattice functions at the entry of every element of a
// ring, computed from the one-turn map at element 0. Phase advances are in
// units of 2π, so the value after the last element is the tune.
//
// The model has no RF, so the longitudinal block of the one-turn map is a
// pure slip and has no periodic solution. ScaleBendPathLength adds a
// synthetic longitudinal focusing kick at the start of the ring whose
// strength is scale × circumference; until it is large enough to register
// in floating point the longitudinal plane stays degenerate and every
// value reads NaN.
type Table struct {
	model *beamline.Model
	gamma float64
	scale float64

	maps  []*mat.Dense
	rows  [][numFunctions]float64
	tunes [3]float64
	valid bool
}

// NewTable prepares a table for model at Lorentz factor gamma. Call
// Calculate before reading values.
func NewTable(model *beamline.Model, gamma float64) *Table {
	return &Table{model: model, gamma: gamma}
}

// ScaleBendPathLength sets the synthetic longitudinal focusing scale used
// by the next Calculate.
func (t *Table) ScaleBendPathLength(scale float64) {
	t.scale = scale
}

// Scale returns the current longitudinal focusing scale.
func (t *Table) Scale() float64 { return t.scale }

// Len is the number of rows in the table.
func (t *Table) Len() int { return len(t.rows) }

// Valid reports whether the last Calculate found stable motion in all
// three planes.
func (t *Table) Valid() bool { return t.valid }

// Calculate recomputes the table. Unstable or degenerate optics are not an
// error: the table is filled with NaN and Valid reports false.
func (t *Table) Calculate() error {
	n := t.model.Len()
	if n == 0 {
		return ErrEmptyModel
	}
	if t.maps == nil {
		t.maps = make([]*mat.Dense, n)
		for i := 0; i < n; i++ {
			t.maps[i] = TransferMatrix(t.model.Element(i), t.gamma)
		}
	}

	m := identity()
	var tmp mat.Dense
	for _, r := range t.maps {
		tmp.Mul(r, m)
		m.Copy(&tmp)
	}
	kick := identity()
	kick.Set(DP, CT, -math.Copysign(t.scale*t.model.Circumference(), m.At(CT, DP)))
	tmp.Mul(m, kick)
	m.Copy(&tmp)

	t.rows = make([][numFunctions]float64, n)
	t.valid = false

	var twiss [3]planeTwiss
	for p, at := range []int{X, Y, CT} {
		tw, ok := periodic(block(m, at))
		if !ok {
			t.invalidate()
			tracef("plane %d degenerate at scale %g (trace %v)", p, t.scale, m.At(at, at)+m.At(at+1, at+1))
			return nil
		}
		twiss[p] = tw
	}

	disp, err := closedDispersion(m)
	if err != nil {
		opsf("dispersion: %v", err)
		t.invalidate()
		return nil
	}

	var mu [3]float64
	for i, r := range t.maps {
		row := &t.rows[i]
		row[BetaX], row[AlphaX], row[MuX] = twiss[0].beta, twiss[0].alpha, mu[0]
		row[BetaY], row[AlphaY], row[MuY] = twiss[1].beta, twiss[1].alpha, mu[1]
		row[BetaZ] = twiss[2].beta
		row[Dx], row[Dxp], row[Dy], row[Dyp] = disp[0], disp[1], disp[2], disp[3]

		for p, at := range []int{X, Y, CT} {
			var dmu float64
			twiss[p], dmu = twiss[p].propagate(block(r, at))
			mu[p] += dmu / (2 * math.Pi)
		}
		var next [4]float64
		for j := 0; j < 4; j++ {
			next[j] = r.At(j, DP)
			for k := 0; k < 4; k++ {
				next[j] += r.At(j, k) * disp[k]
			}
		}
		disp = next
	}
	t.tunes = mu
	t.valid = true
	diagf("optics valid at scale %g: Qx=%.4f Qy=%.4f", t.scale, mu[0], mu[1])
	return nil
}

func (t *Table) invalidate() {
	for i := range t.rows {
		for f := range t.rows[i] {
			t.rows[i][f] = math.NaN()
		}
	}
	t.tunes = [3]float64{math.NaN(), math.NaN(), math.NaN()}
	t.valid = false
}

// Value returns fn at the entry of element i, or NaN when the table is
// invalid or i is out of range.
func (t *Table) Value(fn Function, i int) float64 {
	if !t.valid || i < 0 || i >= len(t.rows) || fn < 0 || fn >= numFunctions {
		return math.NaN()
	}
	return t.rows[i][fn]
}

// Beta returns the horizontal and vertical beta functions at element i.
func (t *Table) Beta(i int) (float64, float64) {
	return t.Value(BetaX, i), t.Value(BetaY, i)
}

// Tunes returns the horizontal, vertical and synthetic longitudinal tunes.
func (t *Table) Tunes() (qx, qy, qz float64) {
	return t.tunes[0], t.tunes[1], t.tunes[2]
}

// RMSDispersion returns the root mean square horizontal and vertical
// dispersion over all element entries.
func (t *Table) RMSDispersion() (float64, float64) {
	if !t.valid {
		return math.NaN(), math.NaN()
	}
	dx := make([]float64, len(t.rows))
	dy := make([]float64, len(t.rows))
	for i, r := range t.rows {
		dx[i], dy[i] = r[Dx], r[Dy]
	}
	n := float64(len(t.rows))
	return math.Sqrt(floats.Dot(dx, dx) / n), math.Sqrt(floats.Dot(dy, dy) / n)
}

// WriteTable writes every lattice function at every element as a tab
// separated table.
func (t *Table) WriteTable(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	head := []string{"#name", "type", "s"}
	head = append(head, functionNames[:]...)
	if err := cw.Write(head); err != nil {
		return err
	}
	for i := range t.rows {
		e := t.model.Element(i)
		rec := []string{e.Name, e.Type, formatFloat(e.Position)}
		for f := Function(0); f < numFunctions; f++ {
			rec = append(rec, formatFloat(t.Value(f, i)))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing optics row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDispersion writes the horizontal and vertical dispersion at every
// element.
func (t *Table) WriteDispersion(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"#name", "s", "dx", "dy"}); err != nil {
		return err
	}
	for i := range t.rows {
		e := t.model.Element(i)
		if err := cw.Write([]string{e.Name, formatFloat(e.Position),
			formatFloat(t.Value(Dx, i)), formatFloat(t.Value(Dy, i))}); err != nil {
			return fmt.Errorf("writing dispersion row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

type planeTwiss struct {
	beta, alpha float64
}

func (p planeTwiss) gamma() float64 {
	return (1 + p.alpha*p.alpha) / p.beta
}

// periodic finds the matched Twiss parameters of a one-turn 2x2 block.
func periodic(b [2][2]float64) (planeTwiss, bool) {
	cosmu := (b[0][0] + b[1][1]) / 2
	if !(math.Abs(cosmu) < 1) || b[0][1] == 0 {
		return planeTwiss{}, false
	}
	sinmu := math.Copysign(math.Sqrt(1-cosmu*cosmu), b[0][1])
	return planeTwiss{
		beta:  b[0][1] / sinmu,
		alpha: (b[0][0] - b[1][1]) / (2 * sinmu),
	}, true
}

// propagate transports the Twiss parameters through b and returns the
// phase advance in radians.
func (p planeTwiss) propagate(b [2][2]float64) (planeTwiss, float64) {
	m11, m12, m21, m22 := b[0][0], b[0][1], b[1][0], b[1][1]
	g := p.gamma()
	out := planeTwiss{
		beta:  m11*m11*p.beta - 2*m11*m12*p.alpha + m12*m12*g,
		alpha: -m11*m21*p.beta + (m11*m22+m12*m21)*p.alpha - m12*m22*g,
	}
	dmu := math.Atan2(m12, m11*p.beta-m12*p.alpha)
	if dmu < 0 {
		dmu += 2 * math.Pi
	}
	return out, dmu
}

// closedDispersion solves (I - M4) D = M4,dp for the periodic dispersion at
// the start of the ring.
func closedDispersion(m *mat.Dense) ([4]float64, error) {
	a := mat.NewDense(4, 4, nil)
	rhs := mat.NewVecDense(4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			v := -m.At(i, j)
			if i == j {
				v++
			}
			a.Set(i, j, v)
		}
		rhs.SetVec(i, m.At(i, DP))
	}
	var d mat.VecDense
	if err := d.SolveVec(a, rhs); err != nil {
		return [4]float64{}, fmt.Errorf("solving closed dispersion: %w", err)
	}
	return [4]float64{d.AtVec(0), d.AtVec(1), d.AtVec(2), d.AtVec(3)}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

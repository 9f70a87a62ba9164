package bunch

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBeam() BeamData {
	return BeamData{
		BetaX: 100, AlphaX: -1.2, BetaY: 50, AlphaY: 0.8,
		EmitX: 5e-10, EmitY: 5e-10,
		Dx: 0.5, Dxp: 0.01,
		SigZ: 0.075, SigDP: 1e-4,
		MinSigmaX: 5.5, MaxSigmaX: 6.0,
		Charge: 1.1e11,
	}
}

func numbered(n int) *Population {
	ps := make([]Particle, n)
	for i := range ps {
		ps[i] = Particle{ID: i, X: float64(i)}
	}
	return NewPopulation(ps, float64(n)*1e9)
}

func TestPopulation_FilterKeepsOrder(t *testing.T) {
	pop := numbered(10)

	removed := pop.Filter(func(p *Particle) bool { return p.ID < 3 || p.ID > 8 })

	require.Equal(t, 4, pop.Len())
	var ids []int
	pop.Each(func(p *Particle) { ids = append(ids, p.ID) })
	assert.Equal(t, []int{0, 1, 2, 9}, ids)

	require.Len(t, removed, 6)
	for i, p := range removed {
		assert.Equal(t, i+3, p.ID)
	}
	assert.Equal(t, 10, pop.Initial())
}

func TestPopulation_FilterVisitsEachOnce(t *testing.T) {
	pop := numbered(7)
	seen := map[int]int{}

	pop.Filter(func(p *Particle) bool {
		seen[p.ID]++
		return p.ID%2 == 0
	})

	assert.Len(t, seen, 7)
	for id, n := range seen {
		assert.Equal(t, 1, n, "particle %d", id)
	}
	assert.Equal(t, 4, pop.Len())
}

func TestPopulation_FilterMayUpdateSurvivors(t *testing.T) {
	pop := numbered(3)
	pop.Filter(func(p *Particle) bool {
		p.XP = 1
		return true
	})
	for i := 0; i < pop.Len(); i++ {
		assert.Equal(t, 1.0, pop.At(i).XP)
	}
}

func TestPopulation_CloneIsIndependent(t *testing.T) {
	pop := numbered(5)
	c := pop.Clone()

	pop.Filter(func(p *Particle) bool { return false })
	c.Each(func(p *Particle) { p.X = -1 })

	assert.Equal(t, 0, pop.Len())
	assert.Equal(t, 5, c.Len())
	assert.Equal(t, 1e9, c.MacroCharge())
	assert.Equal(t, "population(0 of 5)", pop.String())
}

func TestConstruct_Deterministic(t *testing.T) {
	dist, err := ParseDistribution(Normal)
	require.NoError(t, err)

	a, err := Construct(testBeam(), 50, dist, 42)
	require.NoError(t, err)
	b, err := Construct(testBeam(), 50, dist, 42)
	require.NoError(t, err)
	c, err := Construct(testBeam(), 50, dist, 43)
	require.NoError(t, err)

	if diff := cmp.Diff(a.Particles(), b.Particles()); diff != "" {
		t.Errorf("same seed gave different bunches (-a +b):\n%s", diff)
	}
	assert.NotEqual(t, a.Particles(), c.Particles())
	assert.Equal(t, 1.1e11/50, a.MacroCharge())
}

func TestConstruct_NormalMoments(t *testing.T) {
	beam := testBeam()
	beam.Dx, beam.Dxp = 0, 0
	dist, _ := ParseDistribution(Normal)
	pop, err := Construct(beam, 20000, dist, 7)
	require.NoError(t, err)

	m := ComputeMoments(pop)
	assert.InEpsilon(t, beam.SigmaX(), m.Std[0], 0.03)
	assert.InEpsilon(t, beam.SigmaY(), m.Std[2], 0.03)
	assert.InEpsilon(t, beam.SigZ, m.Std[4], 0.03)
	assert.InEpsilon(t, beam.SigDP, m.Std[5], 0.03)
	assert.InDelta(t, 0, m.Mean[0], 4*beam.SigmaX()/math.Sqrt(20000))
}

func TestConstruct_HaloAmplitudes(t *testing.T) {
	beam := testBeam()
	beam.SigDP = 0
	dist, _ := ParseDistribution(Halo)
	pop, err := Construct(beam, 500, dist, 3)
	require.NoError(t, err)

	pop.Each(func(p *Particle) {
		u := p.X / beam.SigmaX()
		v := (beam.BetaX*p.XP + beam.AlphaX*p.X) / beam.SigmaX()
		a := math.Hypot(u, v)
		assert.GreaterOrEqual(t, a, beam.MinSigmaX-1e-9)
		assert.LessOrEqual(t, a, beam.MaxSigmaX+1e-9)
	})
}

func TestConstruct_Pencil(t *testing.T) {
	beam := testBeam()
	beam.SigDP = 0
	dist, _ := ParseDistribution(Pencil)
	pop, err := Construct(beam, 100, dist, 11)
	require.NoError(t, err)

	pop.Each(func(p *Particle) {
		assert.GreaterOrEqual(t, p.X, beam.MinSigmaX*beam.SigmaX()-1e-12)
		assert.InDelta(t, -beam.AlphaX*p.X/beam.BetaX, p.XP, 1e-15)
	})
}

func TestConstruct_Errors(t *testing.T) {
	dist, _ := ParseDistribution(Normal)

	bad := testBeam()
	bad.BetaX = math.NaN()
	_, err := Construct(bad, 10, dist, 1)
	assert.ErrorIs(t, err, ErrInvalidBeam)

	_, err = Construct(testBeam(), -1, dist, 1)
	assert.Error(t, err)

	_, err = ParseDistribution("flat")
	assert.ErrorIs(t, err, ErrUnknownDistribution)
}

func TestTSV_RoundTrip(t *testing.T) {
	dist, _ := ParseDistribution(Normal)
	pop, err := Construct(testBeam(), 20, dist, 5)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, pop))
	assert.True(t, strings.HasPrefix(buf.String(), "#id\tx\txp\ty\typ\tct\tdp\n"))

	got, err := ReadTSV(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(pop.Particles(), got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTSV_SixColumns(t *testing.T) {
	in := "# x xp y yp ct dp\n0.001\t0\t0\t0\t0\t0\n0.002\t1e-6\t0\t0\t0\t1e-4\n"
	got, err := ReadTSV(strings.NewReader(in))
	require.NoError(t, err)

	want := []Particle{
		{ID: 0, X: 0.001},
		{ID: 1, X: 0.002, XP: 1e-6, DP: 1e-4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadTSV mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTSV_BadRecord(t *testing.T) {
	_, err := ReadTSV(strings.NewReader("1\t2\t3\n"))
	assert.ErrorIs(t, err, ErrBadRecord)

	_, err = ReadTSV(strings.NewReader("0\tx\t0\t0\t0\t0\t0\n"))
	assert.ErrorIs(t, err, ErrBadRecord)
}

func TestComputeMoments_Small(t *testing.T) {
	assert.Equal(t, Moments{}, ComputeMoments(numbered(0)))

	m := ComputeMoments(numbered(1))
	assert.Equal(t, 0.0, m.Mean[0])
	assert.Equal(t, 0.0, m.Std[0])
}

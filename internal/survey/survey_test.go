package survey

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/banshee-data/lossmap/internal/aperture"
	"github.com/banshee-data/lossmap/internal/beamline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectSink struct {
	samples []Sample
}

func (c *collectSink) WriteSample(s Sample) error {
	c.samples = append(c.samples, s)
	return nil
}

func buildLine(t *testing.T, elems ...beamline.Element) beamline.Beamline {
	t.Helper()
	b := beamline.NewBuilder()
	for _, e := range elems {
		b.Add(e)
	}
	m, err := b.Build()
	require.NoError(t, err)
	return m.Beamline()
}

func TestCheckAperture_Circular(t *testing.T) {
	t.Parallel()
	for _, r := range []float64{0.02, 0.0045, 0.5} {
		lims := CheckAperture(aperture.Circular{Radius: r}, 0)
		for dir, l := range lims {
			assert.InDelta(t, r, l, Precision, "radius %g direction %d", r, dir)
		}
	}
}

func TestCheckAperture_AsymmetricCollimator(t *testing.T) {
	t.Parallel()
	ap := aperture.Collimator{HalfGap: 0.003, Length: 1, EntryOffsetX: 0.001, ExitOffsetX: 0.001}
	lims := CheckAperture(ap, 0.5)
	assert.InDelta(t, 0.004, lims[PlusX], Precision)
	assert.InDelta(t, 0.002, lims[MinusX], Precision)
	// Jaws are vertical planes, so the vertical scan reaches the edge of the
	// search range.
	assert.InDelta(t, 1.0, lims[PlusY], Precision)
}

func TestCheckAperture_BlockedCentreIsClosed(t *testing.T) {
	t.Parallel()
	// The gap centre walks from 0 to 4 mm, past the 1 mm half gap.
	ap := aperture.Collimator{HalfGap: 0.001, Length: 2, ExitOffsetX: 0.004}
	assert.Equal(t, [4]float64{}, CheckAperture(ap, 2))

	open := CheckAperture(ap, 0)
	assert.InDelta(t, 0.001, open[PlusX], Precision)
	assert.InDelta(t, 0.001, open[MinusX], Precision)
}

func TestScanner_NoApertureReportsOpen(t *testing.T) {
	t.Parallel()
	line := buildLine(t,
		beamline.Element{Name: "D1", Type: beamline.TypeDrift, Length: 1},
		beamline.Element{Name: "D2", Type: beamline.TypeDrift, Length: 2},
	)
	sink := &collectSink{}
	sc := &Scanner{Sampler: FixedCount{N: 3}}

	n, err := sc.Survey(line, sink)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	for _, s := range sink.samples {
		assert.Equal(t, Open, s.Limits)
	}
}

func TestScanner_CircularAperture(t *testing.T) {
	t.Parallel()
	line := buildLine(t,
		beamline.Element{Name: "P", Type: beamline.TypeDrift, Length: 4, Aperture: aperture.Circular{Radius: 0.03}},
	)
	sink := &collectSink{}
	sc := &Scanner{Sampler: NewFixedStep(1, false)}

	n, err := sc.Survey(line, sink)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	for _, s := range sink.samples {
		for _, l := range s.Limits {
			assert.InDelta(t, 0.03, l, Precision)
		}
		assert.Equal(t, 4.0, s.S)
	}
}

func TestScanner_DiscontinuityStopsBeforeFurtherRows(t *testing.T) {
	t.Parallel()
	m, err := beamline.NewModel([]beamline.Element{
		{Name: "A", Type: beamline.TypeDrift, Length: 1, Position: 0},
		{Name: "B", Type: beamline.TypeDrift, Length: 1, Position: 1.001},
		{Name: "C", Type: beamline.TypeDrift, Length: 1, Position: 2.001},
	})
	require.NoError(t, err)

	sink := &collectSink{}
	sc := &Scanner{Sampler: FixedCount{N: 2}}
	n, err := sc.Survey(m.Beamline(), sink)

	require.Error(t, err)
	assert.True(t, errors.Is(err, beamline.ErrDiscontinuous))
	var ce *beamline.ContinuityError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "B", ce.Element)
	assert.Equal(t, 2, n)
	require.Len(t, sink.samples, 2)
	for _, s := range sink.samples {
		assert.Equal(t, "A", s.Element.Name)
	}
}

func TestScanner_SubBeamlineStartsAtFirstElement(t *testing.T) {
	t.Parallel()
	b := beamline.NewBuilder()
	for _, name := range []string{"A", "B", "C", "D"} {
		b.Add(beamline.Element{Name: name, Type: beamline.TypeDrift, Length: 1.5})
	}
	m, err := b.Build()
	require.NoError(t, err)
	seg, err := m.Segment(2, 3)
	require.NoError(t, err)

	sink := &collectSink{}
	sc := &Scanner{Sampler: NewFixedStep(1, true)}
	n, err := sc.Survey(seg, sink)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.InDelta(t, 3.0, sink.samples[0].S, 1e-12)
	assert.InDelta(t, 4.0, sink.samples[1].S, 1e-12)
	assert.InDelta(t, 5.0, sink.samples[2].S, 1e-12)
}

func TestScanner_FromOriginRejectsOffsetStart(t *testing.T) {
	t.Parallel()
	m, err := beamline.NewModel([]beamline.Element{
		{Name: "A", Type: beamline.TypeDrift, Length: 1, Position: 0.5},
		{Name: "B", Type: beamline.TypeDrift, Length: 1, Position: 1.5},
	})
	require.NoError(t, err)

	sink := &collectSink{}
	n, err := (&Scanner{Sampler: FixedCount{N: 2}, FromOrigin: true}).Survey(m.Beamline(), sink)
	var ce *beamline.ContinuityError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "A", ce.Element)
	assert.Equal(t, 0.0, ce.Expected)
	assert.Zero(t, n)
	assert.Empty(t, sink.samples)

	n, err = (&Scanner{Sampler: FixedCount{N: 2}}).Survey(m.Beamline(), &collectSink{})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestScanner_SinkErrorPropagates(t *testing.T) {
	t.Parallel()
	line := buildLine(t, beamline.Element{Name: "D", Type: beamline.TypeDrift, Length: 1})
	boom := errors.New("disk full")
	sc := &Scanner{Sampler: FixedCount{N: 1}}

	_, err := sc.Survey(line, SinkFunc(func(Sample) error { return boom }))
	assert.ErrorIs(t, err, boom)
}

func TestFixedCount_Offsets(t *testing.T) {
	t.Parallel()
	e := beamline.Element{Name: "Q", Length: 2}
	tests := []struct {
		n    int
		want []float64
	}{
		{n: 0, want: nil},
		{n: 1, want: []float64{0}},
		{n: 2, want: []float64{0, 2}},
		{n: 3, want: []float64{0, 1, 2}},
		{n: 5, want: []float64{0, 0.5, 1, 1.5, 2}},
	}
	for _, tt := range tests {
		got := FixedCount{N: tt.n}.Offsets(e)
		require.Len(t, got, len(tt.want), "n=%d", tt.n)
		for i := range got {
			assert.InDelta(t, tt.want[i], got[i], 1e-12)
		}
	}
}

func TestFixedStep_CursorSpansElements(t *testing.T) {
	t.Parallel()
	line := buildLine(t,
		beamline.Element{Name: "A", Length: 0.7},
		beamline.Element{Name: "B", Length: 0.7},
		beamline.Element{Name: "C", Length: 0.2},
		beamline.Element{Name: "M", Length: 0},
	)
	f := NewFixedStep(0.5, false)

	want := [][]float64{{0, 0.5}, {0.3}, {0.1}, nil}
	for i := 0; i < line.Len(); i++ {
		got := f.Offsets(line.At(i))
		require.Len(t, got, len(want[i]), "element %d", i)
		for j := range got {
			assert.InDelta(t, want[i][j], got[j], 1e-9)
		}
	}
}

func TestFixedStep_ReportPosition(t *testing.T) {
	t.Parallel()
	e := beamline.Element{Name: "Q", Length: 2, Position: 10}

	assert.Equal(t, 12.0, NewFixedStep(0.1, false).ReportPosition(e, 0.5))
	assert.Equal(t, 10.5, NewFixedStep(0.1, true).ReportPosition(e, 0.5))
	assert.Equal(t, 12.0, FixedCount{N: 3}.ReportPosition(e, 0.5))
}

func TestNewSampler(t *testing.T) {
	t.Parallel()
	s, err := NewSampler(0.1, 3, false)
	require.NoError(t, err)
	assert.Equal(t, FixedCount{N: 3}, s)

	s, err = NewSampler(0.1, 0, true)
	require.NoError(t, err)
	fs, ok := s.(*FixedStep)
	require.True(t, ok)
	assert.True(t, fs.Exact)

	_, err = NewSampler(0, 0, false)
	assert.Error(t, err)
	_, err = NewSampler(0.1, 2, true)
	assert.Error(t, err)
}

func TestWriter_Format(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	line := buildLine(t,
		beamline.Element{Name: "D1", Type: beamline.TypeDrift, Length: 1.5},
	)
	sc := &Scanner{Sampler: FixedCount{N: 1}}
	_, err := sc.Survey(line, NewWriter(&buf))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "#name\ttype\ts_end\tlength\tap_px\tap_mx\tap_py\tap_my", lines[0])
	assert.Equal(t, "D1\tDrift\t1.5\t1.5\t1\t1\t1\t1", lines[1])
}

func TestWriter_HeaderOnlyOnce(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.WriteHeader())
	assert.Equal(t, 1, strings.Count(buf.String(), "#name"))
}

type fixedBeta struct{ bx, by float64 }

func (f fixedBeta) Beta(int) (float64, float64) { return f.bx, f.by }

func TestCollimatorSurvey(t *testing.T) {
	t.Parallel()
	line := buildLine(t,
		beamline.Element{Name: "D", Type: beamline.TypeDrift, Length: 1, Aperture: aperture.Circular{Radius: 0.03}},
		beamline.Element{Name: "TCP", Type: beamline.TypeCollimator, Length: 0.6,
			Aperture: aperture.Collimator{HalfGap: 0.002, Length: 0.6}},
	)

	rows := CollimatorSurvey(line, fixedBeta{bx: 100, by: 25}, 1e-8, 1e-8)
	require.Len(t, rows, 1)
	r := rows[0]
	assert.Equal(t, "TCP", r.Name)
	assert.Equal(t, 1.0, r.S)
	assert.InDelta(t, 0.002, r.HalfGapX, Precision)
	assert.InDelta(t, 1e-3, r.SigmaX, 1e-12)
	assert.InDelta(t, 2.0, r.GapSigmaX, 1e-2)

	var buf bytes.Buffer
	require.NoError(t, WriteCollimatorSurvey(&buf, rows))
	assert.True(t, strings.HasPrefix(buf.String(), "#name\ts\tlength"))
	assert.Contains(t, buf.String(), "TCP\t1\t0.6\t")
}

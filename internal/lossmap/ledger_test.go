package lossmap

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loss(id int, elem string, s, z float64) LossRecord {
	return LossRecord{ParticleID: id, Element: elem, ElementType: "Collimator", ElementPosition: s, ElementLength: 1, Z: z, Turn: 1, Cause: CauseCollimator}
}

func TestLedger_SameBinCollapses(t *testing.T) {
	opts := DefaultOptions()
	opts.Mode = ExactPosition
	l := NewLedger(opts)

	require.NoError(t, l.Dispose(loss(1, "TCP", 10, 0.01)))
	require.NoError(t, l.Dispose(loss(2, "TCP", 10, 0.06)))
	require.NoError(t, l.Finalise())

	bins := l.Bins()
	require.Len(t, bins, 1)
	assert.Equal(t, 2, bins[0].Count)
	assert.Equal(t, 2.0, bins[0].Weight)
	assert.InDelta(t, 10.0, bins[0].S, 1e-12)
}

func TestLedger_ThresholdDropsDistantLosses(t *testing.T) {
	l := NewLedger(DefaultOptions())

	require.NoError(t, l.Dispose(loss(1, "NEAR", 150, 0)))
	require.NoError(t, l.Dispose(loss(2, "FAR", 250, 0)))
	require.NoError(t, l.Finalise())

	bins := l.Bins()
	require.Len(t, bins, 1)
	assert.Equal(t, "NEAR", bins[0].Element)

	s := l.Summary()
	assert.Equal(t, 2, s.Records)
	assert.Equal(t, 1, s.Kept)
	assert.Equal(t, 1, s.Dropped)
	assert.InDelta(t, 150, s.MeanPosition, 1e-9)
}

func TestLedger_ThresholdBoundaryAndOrigin(t *testing.T) {
	opts := DefaultOptions()
	opts.Origin = 1000
	opts.Threshold = 50
	l := NewLedger(opts)

	require.NoError(t, l.Dispose(loss(1, "A", 950, 0)))
	require.NoError(t, l.Dispose(loss(2, "B", 1049.9, 0)))
	require.NoError(t, l.Dispose(loss(3, "C", 940, 0)))
	require.NoError(t, l.Finalise())

	assert.Len(t, l.Bins(), 2)
	assert.Equal(t, 1, l.Summary().Dropped)
}

func TestLedger_NonPositiveThresholdKeepsAll(t *testing.T) {
	opts := DefaultOptions()
	opts.Threshold = 0
	l := NewLedger(opts)

	require.NoError(t, l.Dispose(loss(1, "A", 1e5, 0)))
	require.NoError(t, l.Finalise())
	assert.Len(t, l.Bins(), 1)
}

func TestLedger_NearestElementIgnoresOffset(t *testing.T) {
	l := NewLedger(DefaultOptions())

	require.NoError(t, l.Dispose(loss(1, "TCP", 12, 0.55)))
	require.NoError(t, l.Dispose(loss(2, "TCP", 12, 0.15)))
	require.NoError(t, l.Finalise())

	bins := l.Bins()
	require.Len(t, bins, 1)
	assert.InDelta(t, 12.0, bins[0].S, 1e-12)
	assert.Equal(t, 2, bins[0].Count)
}

func TestLedger_ReverseMirrorsPositions(t *testing.T) {
	opts := DefaultOptions()
	opts.Reverse = true
	opts.Circumference = 176
	l := NewLedger(opts)

	require.NoError(t, l.Dispose(loss(1, "TCP", 12, 0)))
	require.NoError(t, l.Finalise())

	bins := l.Bins()
	require.Len(t, bins, 1)
	assert.InDelta(t, 164.0, bins[0].S, 1e-9)
}

func TestLedger_SortedByPosition(t *testing.T) {
	l := NewLedger(DefaultOptions())
	for i, s := range []float64{50, 10, 30, 10} {
		require.NoError(t, l.Dispose(loss(i, "E"+strings.Repeat("x", i), s, 0)))
	}
	require.NoError(t, l.Finalise())

	bins := l.Bins()
	require.Len(t, bins, 3)
	for i := 1; i < len(bins); i++ {
		assert.Less(t, bins[i-1].S, bins[i].S)
	}
	assert.Equal(t, 2, bins[0].Count)
	assert.Equal(t, "Exx", bins[0].Element, "first loss in the bin labels it")
}

func TestLedger_BinSpansElements(t *testing.T) {
	opts := DefaultOptions()
	opts.Mode = ExactPosition
	l := NewLedger(opts)

	// 10.01 and 10.06 are 0.05 apart in different elements.
	a := loss(1, "A", 0, 10.01)
	a.ElementType = "Drift"
	a.Cause = CauseAperture
	require.NoError(t, l.Dispose(a))
	require.NoError(t, l.Dispose(loss(2, "B", 10.04, 0.02)))
	require.NoError(t, l.Finalise())

	bins := l.Bins()
	require.Len(t, bins, 1)
	assert.InDelta(t, 10.0, bins[0].S, 1e-12)
	assert.Equal(t, 2, bins[0].Count)
	assert.Equal(t, "A", bins[0].Element)
	assert.Equal(t, "Drift", bins[0].Type)
}

func TestLedger_FinaliseOnce(t *testing.T) {
	l := NewLedger(DefaultOptions())
	require.NoError(t, l.Dispose(loss(1, "A", 1, 0)))

	assert.Nil(t, l.Bins())
	var buf bytes.Buffer
	assert.ErrorIs(t, l.WriteTSV(&buf), ErrNotFinalised)

	require.NoError(t, l.Finalise())
	assert.True(t, l.Finalised())
	assert.ErrorIs(t, l.Finalise(), ErrFinalised)
	assert.ErrorIs(t, l.Dispose(loss(2, "A", 1, 0)), ErrFinalised)
	assert.Equal(t, 1, l.Len())
}

func TestLedger_TotalAndWeights(t *testing.T) {
	l := NewLedger(DefaultOptions())
	r := loss(1, "A", 1, 0)
	r.Weight = 2.5
	require.NoError(t, l.Dispose(r))
	require.NoError(t, l.Dispose(loss(2, "A", 1, 0)))

	assert.Equal(t, 3.5, l.Total())
	require.NoError(t, l.Finalise())
	assert.Equal(t, 3.5, l.Summary().TotalWeight)
}

func TestLedger_EmptySummary(t *testing.T) {
	l := NewLedger(DefaultOptions())
	require.NoError(t, l.Finalise())
	s := l.Summary()
	assert.Equal(t, 0, s.Kept)
	assert.True(t, math.IsNaN(s.MeanPosition))
}

func TestLedger_WriteTSV(t *testing.T) {
	l := NewLedger(DefaultOptions())
	require.NoError(t, l.Dispose(loss(1, "TCP.A", 12, 0)))
	require.NoError(t, l.Finalise())

	var buf bytes.Buffer
	require.NoError(t, l.WriteTSV(&buf))
	assert.Equal(t, "#name\ttype\ts\tlength\tcount\tweight\nTCP.A\tCollimator\t12\t1\t1\t1\n", buf.String())
}

func TestNewLedger_DefaultsBinWidth(t *testing.T) {
	l := NewLedger(Options{})
	assert.Equal(t, DefaultBinWidth, l.Options().BinWidth)
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("exact")
	assert.True(t, ok)
	assert.Equal(t, ExactPosition, m)
	assert.Equal(t, "exact", m.String())

	m, ok = ParseMode("")
	assert.True(t, ok)
	assert.Equal(t, NearestElement, m)

	_, ok = ParseMode("closest")
	assert.False(t, ok)
}

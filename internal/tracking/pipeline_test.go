package tracking

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lossmap/internal/beamline"
	"github.com/banshee-data/lossmap/internal/bunch"
	"github.com/banshee-data/lossmap/internal/fsutil"
	"github.com/banshee-data/lossmap/internal/lossmap"
)

type countingIntegrator struct {
	calls []string
	err   error
}

func (c *countingIntegrator) Track(e beamline.Element, _ *bunch.Population) error {
	c.calls = append(c.calls, e.Name)
	return c.err
}

// removeAt drops the listed particle ids when it sees element at on turn.
type removeAt struct {
	turn int
	at   string
	ids  map[int]bool
}

func (r *removeAt) Apply(step Step, pop *bunch.Population, losses LossSink) error {
	if step.Element.Name != r.at || (r.turn != 0 && step.Turn != r.turn) {
		return nil
	}
	removed := pop.Filter(func(p *bunch.Particle) bool { return !r.ids[p.ID] })
	for _, p := range removed {
		err := losses.Dispose(lossmap.LossRecord{
			ParticleID:      p.ID,
			Element:         step.Element.Name,
			ElementType:     step.Element.Type,
			ElementPosition: step.Element.Position,
			Turn:            step.Turn,
			Cause:           lossmap.CauseCollimator,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func ids(from, to int) map[int]bool {
	m := map[int]bool{}
	for i := from; i <= to; i++ {
		m[i] = true
	}
	return m
}

func population(n int) *bunch.Population {
	ps := make([]bunch.Particle, n)
	for i := range ps {
		ps[i] = bunch.Particle{ID: i, X: 1e-4 * float64(i)}
	}
	return bunch.NewPopulation(ps, 0)
}

func twoSegments(t *testing.T) (*beamline.Model, *Segment, *Segment) {
	t.Helper()
	m, err := beamline.NewBuilder().
		Add(beamline.Element{Name: "A", Type: beamline.TypeDrift, Length: 1}).
		Add(beamline.Element{Name: "TCP", Type: beamline.TypeCollimator, Length: 1}).
		Add(beamline.Element{Name: "B", Type: beamline.TypeDrift, Length: 1}).
		Add(beamline.Element{Name: "C", Type: beamline.TypeDrift, Length: 1}).
		Build()
	require.NoError(t, err)
	first, err := m.Segment(0, 1)
	require.NoError(t, err)
	second, err := m.Segment(2, 3)
	require.NoError(t, err)
	return m, &Segment{Name: "first", Line: first}, &Segment{Name: "second", Line: second}
}

func TestPipeline_RemovalsReachLedger(t *testing.T) {
	_, s1, s2 := twoSegments(t)
	s1.Processes = []Process{&removeAt{turn: 1, at: "TCP", ids: ids(3, 8)}}
	integ := &countingIntegrator{}
	p := &Pipeline{Integrator: integ, Segments: []*Segment{s1, s2}}
	pop := population(10)
	ledger := lossmap.NewLedger(lossmap.DefaultOptions())

	sum, err := p.Run(context.Background(), pop, 3, ledger)
	require.NoError(t, err)

	assert.Equal(t, 4, pop.Len())
	assert.Equal(t, 6, ledger.Len())
	assert.Equal(t, Summary{TurnsRun: 3, SegmentsRun: 6, Initial: 10, Survivors: 4, Absorbed: 6}, sum)
	assert.Len(t, integ.calls, 12)

	var kept []int
	pop.Each(func(p *bunch.Particle) { kept = append(kept, p.ID) })
	assert.Equal(t, []int{0, 1, 2, 9}, kept)
	for _, r := range ledger.Records() {
		assert.Equal(t, "TCP", r.Element)
		assert.Equal(t, 1, r.Turn)
	}
}

func TestPipeline_StopsAfterSegmentWhenOneLeft(t *testing.T) {
	_, s1, s2 := twoSegments(t)
	s1.Processes = []Process{&removeAt{turn: 2, at: "TCP", ids: ids(1, 9)}}

	mfs := fsutil.NewMemoryFileSystem()
	out := fsutil.Outputs{FS: mfs, Dir: "/run"}
	snap := &SnapshotObserver{Outputs: out, Name: "TAS_bunch.txt"}
	s1.Observers = []Observer{snap}

	turnCalls := 0
	integ := &countingIntegrator{}
	p := &Pipeline{
		Integrator: integ,
		Segments:   []*Segment{s1, s2},
		TurnObservers: []Observer{ObserverFunc(func(int, *Segment, *bunch.Population) error {
			turnCalls++
			return nil
		})},
	}
	pop := population(10)
	ledger := lossmap.NewLedger(lossmap.DefaultOptions())

	sum, err := p.Run(context.Background(), pop, 5, ledger)
	require.NoError(t, err)

	assert.True(t, sum.StoppedEarly)
	assert.Equal(t, 1, sum.TurnsRun)
	assert.Equal(t, 3, sum.SegmentsRun)
	assert.Equal(t, 1, sum.Survivors)
	assert.Equal(t, 9, sum.Absorbed)
	assert.Equal(t, 1, turnCalls)
	assert.Equal(t, []string{"A", "TCP", "B", "C", "A", "TCP"}, integ.calls)
	assert.Equal(t, 2, snap.Writes())

	var final bytes.Buffer
	require.NoError(t, bunch.WriteTSV(&final, pop))
	got, err := mfs.ReadFile("/run/TAS_bunch.txt")
	require.NoError(t, err)
	assert.Equal(t, final.String(), string(got))
}

func TestPipeline_StopsAtTurnEnd(t *testing.T) {
	_, s1, s2 := twoSegments(t)
	s2.Processes = []Process{&removeAt{at: "C", ids: ids(0, 8)}}
	turnCalls := 0
	p := &Pipeline{
		Integrator: &countingIntegrator{},
		Segments:   []*Segment{s1, s2},
		TurnObservers: []Observer{ObserverFunc(func(turn int, seg *Segment, _ *bunch.Population) error {
			assert.Nil(t, seg)
			turnCalls++
			return nil
		})},
	}

	sum, err := p.Run(context.Background(), population(10), 4, lossmap.NewLedger(lossmap.DefaultOptions()))
	require.NoError(t, err)
	assert.True(t, sum.StoppedEarly)
	assert.Equal(t, 1, sum.TurnsRun)
	assert.Equal(t, 2, sum.SegmentsRun)
	assert.Equal(t, 1, turnCalls)
}

func TestPipeline_LastTurnIsNotEarly(t *testing.T) {
	_, s1, _ := twoSegments(t)
	s1.Processes = []Process{&removeAt{turn: 2, at: "TCP", ids: ids(0, 8)}}
	p := &Pipeline{Integrator: &countingIntegrator{}, Segments: []*Segment{s1}}

	sum, err := p.Run(context.Background(), population(10), 2, lossmap.NewLedger(lossmap.DefaultOptions()))
	require.NoError(t, err)
	assert.False(t, sum.StoppedEarly)
	assert.Equal(t, 2, sum.TurnsRun)
}

func TestPipeline_EveryTurnSnapshotAppends(t *testing.T) {
	_, s1, _ := twoSegments(t)
	mfs := fsutil.NewMemoryFileSystem()
	snap := &SnapshotObserver{Outputs: fsutil.Outputs{FS: mfs, Dir: "/run"}, Name: "Every_bunch.txt", Append: true}
	p := &Pipeline{Integrator: &countingIntegrator{}, Segments: []*Segment{s1}, TurnObservers: []Observer{snap}}

	_, err := p.Run(context.Background(), population(3), 3, lossmap.NewLedger(lossmap.DefaultOptions()))
	require.NoError(t, err)

	data, err := mfs.ReadFile("/run/Every_bunch.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, bytes.Count(data, []byte("#id")))
	assert.Equal(t, 3, snap.Writes())
}

func TestPipeline_Errors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("integrator", func(t *testing.T) {
		_, s1, _ := twoSegments(t)
		p := &Pipeline{Integrator: &countingIntegrator{err: boom}, Segments: []*Segment{s1}}
		_, err := p.Run(context.Background(), population(3), 1, lossmap.NewLedger(lossmap.DefaultOptions()))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("ledger finalised", func(t *testing.T) {
		_, s1, _ := twoSegments(t)
		s1.Processes = []Process{&removeAt{at: "TCP", ids: ids(0, 0)}}
		ledger := lossmap.NewLedger(lossmap.DefaultOptions())
		require.NoError(t, ledger.Finalise())
		p := &Pipeline{Integrator: &countingIntegrator{}, Segments: []*Segment{s1}}
		sum, err := p.Run(context.Background(), population(3), 1, ledger)
		assert.ErrorIs(t, err, lossmap.ErrFinalised)
		assert.Equal(t, 0, sum.Absorbed)
	})

	t.Run("segment observer", func(t *testing.T) {
		_, s1, _ := twoSegments(t)
		s1.Observers = []Observer{ObserverFunc(func(int, *Segment, *bunch.Population) error { return boom })}
		p := &Pipeline{Integrator: &countingIntegrator{}, Segments: []*Segment{s1}}
		_, err := p.Run(context.Background(), population(3), 1, lossmap.NewLedger(lossmap.DefaultOptions()))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("cancelled", func(t *testing.T) {
		_, s1, _ := twoSegments(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := &Pipeline{Integrator: &countingIntegrator{}, Segments: []*Segment{s1}}
		_, err := p.Run(ctx, population(3), 1, lossmap.NewLedger(lossmap.DefaultOptions()))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// Package tracking marches a particle population through the machine turn
// by turn. Each turn visits an ordered list of segments; inside a segment
// every element is tracked by the integrator and then handed to the
// segment's processes, which may remove particles into the loss ledger.
package tracking

import (
	"context"
	"fmt"

	"github.com/banshee-data/lossmap/internal/beamline"
	"github.com/banshee-data/lossmap/internal/bunch"
	"github.com/banshee-data/lossmap/internal/lossmap"
)

// Integrator advances every particle through one element.
type Integrator interface {
	Track(e beamline.Element, pop *bunch.Population) error
}

// Step identifies where in the run a process is being applied.
type Step struct {
	Turn    int
	Segment string
	Element beamline.Element
}

// LossSink receives removed particles.
type LossSink interface {
	Dispose(lossmap.LossRecord) error
}

// Process acts on the population after the integrator has tracked it
// through step.Element. Removals must go through pop.Filter and be
// reported to losses.
type Process interface {
	Apply(step Step, pop *bunch.Population, losses LossSink) error
}

// Observer is notified after a segment or a full turn.
type Observer interface {
	Observe(turn int, seg *Segment, pop *bunch.Population) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(turn int, seg *Segment, pop *bunch.Population) error

func (f ObserverFunc) Observe(turn int, seg *Segment, pop *bunch.Population) error {
	return f(turn, seg, pop)
}

// Segment is a contiguous stretch of the ring with its own processes and
// observers.
type Segment struct {
	Name      string
	Line      beamline.Beamline
	Processes []Process
	Observers []Observer
}

// Pipeline runs segments in order, turn after turn.
type Pipeline struct {
	Integrator Integrator
	Segments   []*Segment

	// TurnObservers run after the last segment of every completed turn.
	TurnObservers []Observer
}

// Summary describes how a run ended.
type Summary struct {
	TurnsRun     int
	SegmentsRun  int
	Initial      int
	Survivors    int
	Absorbed     int
	StoppedEarly bool
}

type countingSink struct {
	next LossSink
	n    int
}

func (c *countingSink) Dispose(r lossmap.LossRecord) error {
	if err := c.next.Dispose(r); err != nil {
		return err
	}
	c.n++
	return nil
}

// Run tracks pop for up to turns turns. As soon as the population is down
// to one particle or none after any segment the run stops: later segments
// of the turn and later turns are skipped. Turn observers still run when
// that happens at the end of a turn. The first error from any
// collaborator aborts the run.
func (p *Pipeline) Run(ctx context.Context, pop *bunch.Population, turns int, losses LossSink) (sum Summary, err error) {
	sum.Initial = pop.Len()
	sink := &countingSink{next: losses}
	defer func() {
		sum.Survivors = pop.Len()
		sum.Absorbed = sink.n
	}()

	for turn := 1; turn <= turns; turn++ {
		diagf("turn %d: %d particles", turn, pop.Len())
		for i, seg := range p.Segments {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			if err := p.trackSegment(turn, seg, pop, sink); err != nil {
				return sum, err
			}
			sum.SegmentsRun++
			tracef("turn %d segment %s: %d particles", turn, seg.Name, pop.Len())

			if pop.Len() <= 1 && i < len(p.Segments)-1 {
				diagf("population %d after segment %s of turn %d, stopping", pop.Len(), seg.Name, turn)
				sum.StoppedEarly = true
				return sum, nil
			}
		}
		sum.TurnsRun = turn
		for _, o := range p.TurnObservers {
			if err := o.Observe(turn, nil, pop); err != nil {
				opsf("turn observer failed on turn %d: %v", turn, err)
				return sum, fmt.Errorf("turn %d observer: %w", turn, err)
			}
		}
		if pop.Len() <= 1 {
			diagf("population %d after turn %d, stopping", pop.Len(), turn)
			sum.StoppedEarly = turn < turns
			return sum, nil
		}
	}
	return sum, nil
}

func (p *Pipeline) trackSegment(turn int, seg *Segment, pop *bunch.Population, sink LossSink) error {
	err := seg.Line.Each(func(e beamline.Element) error {
		if err := p.Integrator.Track(e, pop); err != nil {
			return fmt.Errorf("tracking through %s: %w", e.Name, err)
		}
		step := Step{Turn: turn, Segment: seg.Name, Element: e}
		for _, proc := range seg.Processes {
			if err := proc.Apply(step, pop, sink); err != nil {
				return fmt.Errorf("process at %s: %w", e.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		opsf("turn %d segment %s: %v", turn, seg.Name, err)
		return err
	}
	for _, o := range seg.Observers {
		if err := o.Observe(turn, seg, pop); err != nil {
			return fmt.Errorf("segment %s observer: %w", seg.Name, err)
		}
	}
	return nil
}

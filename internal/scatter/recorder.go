package scatter

import (
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strconv"
)

// ReportOptions enable one auxiliary report and restrict it to elements
// whose names match one of the glob patterns. No patterns means every
// collimator.
type ReportOptions struct {
	Enabled  bool
	Elements []string
}

func (o ReportOptions) wants(name string) bool {
	if !o.Enabled {
		return false
	}
	if len(o.Elements) == 0 {
		return true
	}
	for _, pat := range o.Elements {
		if ok, _ := path.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// Event is one row of an auxiliary report.
type Event struct {
	ParticleID int
	Turn       int
	Element    string
	Z          float64
	Coords     [6]float64
}

type impactKey struct {
	id      int
	element string
}

// Recorder passes hits to Model and records them for the enabled reports.
// It never changes the outcome.
type Recorder struct {
	Model        Model
	JawImpact    ReportOptions
	ScatterPlot  ReportOptions
	JawInelastic ReportOptions

	impacts   []Event
	scatters  []Event
	inelastic []Event
	seen      map[impactKey]bool
}

// NewRecorder wraps m.
func NewRecorder(m Model, jawImpact, scatterPlot, jawInelastic ReportOptions) *Recorder {
	return &Recorder{
		Model:        m,
		JawImpact:    jawImpact,
		ScatterPlot:  scatterPlot,
		JawInelastic: jawInelastic,
		seen:         make(map[impactKey]bool),
	}
}

func (r *Recorder) Interact(h Hit) Outcome {
	name := h.Element.Name
	ev := Event{ParticleID: h.Particle.ID, Turn: h.Turn, Element: name, Z: h.Z, Coords: h.Particle.Coords()}

	if r.JawImpact.wants(name) {
		k := impactKey{id: ev.ParticleID, element: name}
		if !r.seen[k] {
			if r.seen == nil {
				r.seen = make(map[impactKey]bool)
			}
			r.seen[k] = true
			r.impacts = append(r.impacts, ev)
		}
	}

	out := r.Model.Interact(h)

	if r.ScatterPlot.wants(name) {
		after := ev
		after.Z = out.Z
		after.Coords = h.Particle.Coords()
		r.scatters = append(r.scatters, after)
	}
	if out.Absorbed && r.JawInelastic.wants(name) {
		abs := ev
		abs.Z = out.Z
		r.inelastic = append(r.inelastic, abs)
	}
	return out
}

// JawImpacts returns the recorded first impacts.
func (r *Recorder) JawImpacts() []Event { return r.impacts }

// Scatters returns every recorded interaction.
func (r *Recorder) Scatters() []Event { return r.scatters }

// Inelastics returns the recorded absorptions.
func (r *Recorder) Inelastics() []Event { return r.inelastic }

// WriteJawImpact writes the jaw impact report.
func (r *Recorder) WriteJawImpact(w io.Writer) error { return writeEvents(w, r.impacts) }

// WriteScatterPlot writes the scatter plot report.
func (r *Recorder) WriteScatterPlot(w io.Writer) error { return writeEvents(w, r.scatters) }

// WriteJawInelastic writes the jaw inelastic report.
func (r *Recorder) WriteJawInelastic(w io.Writer) error { return writeEvents(w, r.inelastic) }

func writeEvents(w io.Writer, events []Event) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"#id", "turn", "element", "z", "x", "xp", "y", "yp", "ct", "dp"}); err != nil {
		return err
	}
	for _, ev := range events {
		rec := []string{strconv.Itoa(ev.ParticleID), strconv.Itoa(ev.Turn), ev.Element, strconv.FormatFloat(ev.Z, 'g', -1, 64)}
		for _, v := range ev.Coords {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing event for particle %d: %w", ev.ParticleID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

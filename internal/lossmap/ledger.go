package lossmap

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Ledger defaults.
const (
	DefaultBinWidth  = 0.1
	DefaultThreshold = 200.0
)

var (
	// ErrFinalised is returned when a finalised ledger is written to or
	// finalised again.
	ErrFinalised = errors.New("lossmap: ledger already finalised")

	// ErrNotFinalised is returned when binned output is requested early.
	ErrNotFinalised = errors.New("lossmap: ledger not finalised")
)

// Options configure binning and the retained-length cut.
type Options struct {
	BinWidth float64
	// Threshold is the retained length around Origin. Losses attributed
	// further away are dropped at finalisation; zero or less keeps all.
	Threshold float64
	Origin    float64
	Mode      Mode

	// Reverse mirrors positions to Circumference - s, for a beam
	// travelling against the lattice direction.
	Reverse       bool
	Circumference float64
}

// DefaultOptions bins at 0.1 m and keeps 200 m from the lattice start.
func DefaultOptions() Options {
	return Options{BinWidth: DefaultBinWidth, Threshold: DefaultThreshold, Mode: NearestElement}
}

// Bin is one row of the finalised loss map. Element, Type and Length
// describe the first loss disposed into the bin.
type Bin struct {
	S       float64
	Element string
	Type    string
	Length  float64
	Count   int
	Weight  float64
}

// Summary describes a finalised ledger.
type Summary struct {
	Records      int
	Kept         int
	Dropped      int
	TotalWeight  float64
	MeanPosition float64 // weighted by bin weight; NaN when nothing kept
}

// Ledger is the run-wide loss dustbin. Records are accepted until
// Finalise, which bins and cuts them exactly once.
type Ledger struct {
	opts      Options
	records   []LossRecord
	bins      []Bin
	dropped   int
	finalised bool
}

// NewLedger returns an empty ledger. A non-positive bin width falls back to
// DefaultBinWidth.
func NewLedger(opts Options) *Ledger {
	if !(opts.BinWidth > 0) {
		opts.BinWidth = DefaultBinWidth
	}
	return &Ledger{opts: opts}
}

// Options returns the ledger configuration.
func (l *Ledger) Options() Options { return l.opts }

// Dispose adds a loss.
func (l *Ledger) Dispose(rec LossRecord) error {
	if l.finalised {
		opsf("loss of particle %d at %s after finalisation", rec.ParticleID, rec.Element)
		return ErrFinalised
	}
	tracef("turn %d: particle %d lost at %s (+%g) %s", rec.Turn, rec.ParticleID, rec.Element, rec.Z, rec.Cause)
	l.records = append(l.records, rec)
	return nil
}

// Len is the number of records disposed so far.
func (l *Ledger) Len() int { return len(l.records) }

// Records returns a copy of the raw records.
func (l *Ledger) Records() []LossRecord {
	out := make([]LossRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Total is the summed weight of all disposed records.
func (l *Ledger) Total() float64 {
	w := make([]float64, len(l.records))
	for i, r := range l.records {
		w[i] = r.weight()
	}
	return floats.Sum(w)
}

// Finalised reports whether Finalise has run.
func (l *Ledger) Finalised() bool { return l.finalised }

// Finalise attributes, cuts and bins every record. It may be called once.
func (l *Ledger) Finalise() error {
	if l.finalised {
		return ErrFinalised
	}
	l.finalised = true

	acc := make(map[int64]*Bin)
	for _, r := range l.records {
		pos := r.Position(l.opts.Mode)
		if l.opts.Reverse {
			pos = l.opts.Circumference - pos
		}
		if l.opts.Threshold > 0 && math.Abs(pos-l.opts.Origin) > l.opts.Threshold {
			l.dropped++
			continue
		}
		// Positions on a bin edge belong to the bin above it. A bin spanning
		// two elements is labelled by the first loss disposed into it.
		k := int64(math.Floor(pos/l.opts.BinWidth + 1e-9))
		b, ok := acc[k]
		if !ok {
			b = &Bin{S: float64(k) * l.opts.BinWidth, Element: r.Element, Type: r.ElementType, Length: r.ElementLength}
			acc[k] = b
		}
		b.Count++
		b.Weight += r.weight()
	}

	l.bins = make([]Bin, 0, len(acc))
	for _, b := range acc {
		l.bins = append(l.bins, *b)
	}
	sort.Slice(l.bins, func(i, j int) bool { return l.bins[i].S < l.bins[j].S })
	diagf("finalised %d losses into %d bins, %d beyond %g m", len(l.records), len(l.bins), l.dropped, l.opts.Threshold)
	return nil
}

// Bins returns the finalised loss map sorted by position, or nil before
// Finalise.
func (l *Ledger) Bins() []Bin {
	if !l.finalised {
		return nil
	}
	out := make([]Bin, len(l.bins))
	copy(out, l.bins)
	return out
}

// Summary describes the finalised ledger.
func (l *Ledger) Summary() Summary {
	s := Summary{Records: len(l.records), Dropped: l.dropped, MeanPosition: math.NaN()}
	if !l.finalised || len(l.bins) == 0 {
		return s
	}
	xs := make([]float64, len(l.bins))
	ws := make([]float64, len(l.bins))
	for i, b := range l.bins {
		xs[i], ws[i] = b.S, b.Weight
		s.Kept += b.Count
	}
	s.TotalWeight = floats.Sum(ws)
	s.MeanPosition = stat.Mean(xs, ws)
	return s
}

// WriteTSV writes the finalised loss map.
func (l *Ledger) WriteTSV(w io.Writer) error {
	if !l.finalised {
		return ErrNotFinalised
	}
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"#name", "type", "s", "length", "count", "weight"}); err != nil {
		return err
	}
	for _, b := range l.bins {
		rec := []string{
			b.Element,
			b.Type,
			strconv.FormatFloat(b.S, 'f', -1, 64),
			strconv.FormatFloat(b.Length, 'g', -1, 64),
			strconv.Itoa(b.Count),
			strconv.FormatFloat(b.Weight, 'g', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing loss bin at %g: %w", b.S, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

package run

import (
	"fmt"

	"github.com/banshee-data/lossmap/internal/beamline"
	"github.com/banshee-data/lossmap/internal/collimation"
	"github.com/banshee-data/lossmap/internal/config"
	"github.com/banshee-data/lossmap/internal/fsutil"
	"github.com/banshee-data/lossmap/internal/scatter"
	"github.com/banshee-data/lossmap/internal/tracking"
)

// BuildModel returns the configured lattice, or the demonstration ring
// when none is configured.
func BuildModel(cfg *config.RunConfig) (*beamline.Model, error) {
	if cfg.UsesDemoLattice() {
		return beamline.DemoRing()
	}
	b := beamline.NewBuilder()
	for _, ec := range cfg.Elements {
		typ := ec.Type
		if typ == "" {
			typ = beamline.TypeDrift
		}
		ap, err := ec.Aperture.Build(ec.Length)
		if err != nil {
			return nil, fmt.Errorf("element %s: %w", ec.Name, err)
		}
		b.Add(beamline.Element{
			Name:     ec.Name,
			Type:     typ,
			Length:   ec.Length,
			K1:       ec.K1,
			Angle:    ec.Angle,
			Aperture: ap,
		})
	}
	return b.Build()
}

func jaws(cfg *config.RunConfig) []collimation.Jaw {
	in := cfg.GetCollimators()
	out := make([]collimation.Jaw, len(in))
	for i, j := range in {
		out[i] = collimation.Jaw{
			Name:     j.Name,
			NSigma:   j.NSigma,
			Plane:    collimation.Plane(j.Plane),
			Material: j.Material,
		}
	}
	return out
}

func reportOptions(rc config.ReportConfig) scatter.ReportOptions {
	return scatter.ReportOptions{Enabled: rc.Enabled, Elements: rc.Elements}
}

// segments builds the tracked segments. Without configuration there is
// one segment covering a whole turn from the start element.
func segments(cfg *config.RunConfig, model *beamline.Model, start int, proc tracking.Process, outputs outputsFn) ([]*tracking.Segment, error) {
	if len(cfg.Segments) == 0 {
		ring, err := model.Ring(start)
		if err != nil {
			return nil, err
		}
		return []*tracking.Segment{{Name: "ring", Line: ring, Processes: []tracking.Process{proc}}}, nil
	}

	var segs []*tracking.Segment
	for _, sc := range cfg.Segments {
		from, err := model.FindElementLatticePosition(sc.From)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", sc.Name, err)
		}
		to, err := model.FindElementLatticePosition(sc.To)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", sc.Name, err)
		}
		line, err := model.Segment(from, to)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", sc.Name, err)
		}
		seg := &tracking.Segment{Name: sc.Name, Line: line, Processes: []tracking.Process{proc}}
		if sc.Snapshot {
			seg.Observers = append(seg.Observers, outputs("segment_"+fsutil.SafeName(sc.Name)+".tsv", false))
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// outputsFn makes a snapshot observer for an output file name.
type outputsFn func(name string, appendMode bool) tracking.Observer

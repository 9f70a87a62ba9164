// Package run wires the stages of a loss map run together: optics, jaw
// settings, surveys, bunch generation, tracking with collimation and the
// loss map outputs. Both commands call into it.
package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/banshee-data/lossmap/internal/beamline"
	"github.com/banshee-data/lossmap/internal/bunch"
	"github.com/banshee-data/lossmap/internal/collimation"
	"github.com/banshee-data/lossmap/internal/config"
	"github.com/banshee-data/lossmap/internal/fsutil"
	"github.com/banshee-data/lossmap/internal/lossmap"
	"github.com/banshee-data/lossmap/internal/monitoring"
	"github.com/banshee-data/lossmap/internal/optics"
	"github.com/banshee-data/lossmap/internal/report"
	"github.com/banshee-data/lossmap/internal/scatter"
	"github.com/banshee-data/lossmap/internal/store"
	"github.com/banshee-data/lossmap/internal/survey"
	"github.com/banshee-data/lossmap/internal/timeutil"
	"github.com/banshee-data/lossmap/internal/tracking"
	"github.com/banshee-data/lossmap/internal/units"
	"github.com/banshee-data/lossmap/internal/version"
)

// Output file names inside the output directory.
const (
	FileApertureSurvey   = "aperture_survey.tsv"
	FileCollimatorSurvey = "collimator_survey.tsv"
	FileLatticeFunctions = "lattice_functions.tsv"
	FileDispersion       = "dispersion.tsv"
	FileInitialBunch     = "initial_bunch.tsv"
	FileFinalBunch       = "final_bunch.tsv"
	FileEveryTurn        = "bunch_every_turn.tsv"
	FileLossMap          = "loss_map.tsv"
	FileLossPlot         = "loss_map.png"
	FileLossHTML         = "loss_map.html"
	FileJawImpact        = "jaw_impact.tsv"
	FileScatterPlot      = "scatter_plot.tsv"
	FileJawInelastic     = "jaw_inelastic.tsv"
)

// Args are the command line values.
type Args struct {
	NPart int
	Seed  uint64
}

// Summary is what a run reports when it finishes.
type Summary struct {
	RunID        string
	NPart        int
	Left         int
	Absorbed     int
	TurnsRun     int
	StoppedEarly bool

	SurveyRows   int
	Optics       optics.Result
	ImpactFactor float64
	Losses       lossmap.Summary
	Bins         []lossmap.Bin
}

// Runner holds the collaborators of a run.
type Runner struct {
	Config *config.RunConfig
	FS     fsutil.FileSystem
	Clock  timeutil.Clock

	// Scatter is the jaw interaction model. Nil absorbs at the impact
	// point.
	Scatter scatter.Model

	// Metrics collects run counters; NewRunner creates a fresh set.
	Metrics *monitoring.Metrics
}

// NewRunner returns a runner on the real clock with a fresh metrics
// registry.
func NewRunner(cfg *config.RunConfig, fsys fsutil.FileSystem) *Runner {
	return &Runner{Config: cfg, FS: fsys, Clock: timeutil.RealClock{}, Metrics: monitoring.NewMetrics()}
}

// Run performs a full run with the default collaborators.
func Run(ctx context.Context, cfg *config.RunConfig, args Args, fsys fsutil.FileSystem) (Summary, error) {
	return NewRunner(cfg, fsys).Run(ctx, args)
}

// machine is the state shared by the stages before tracking.
type machine struct {
	model   *beamline.Model
	start   int
	gamma   float64
	emit    float64
	table   *optics.Table // nil when optics are disabled
	outputs fsutil.Outputs
}

// Run executes every enabled stage. Any error is fatal and is returned as
// soon as it happens; outputs written before it are left in place.
func (r *Runner) Run(ctx context.Context, args Args) (Summary, error) {
	cfg := r.Config
	startedAt := r.Clock.Now()
	sum := Summary{NPart: args.NPart, ImpactFactor: -1}
	monitoring.Logf("lossmap %s: npart %d seed %d", version.String(), args.NPart, args.Seed)

	m, err := r.prepare()
	if err != nil {
		return sum, err
	}
	if m.table != nil {
		if sum.Optics, err = r.converge(m); err != nil {
			return sum, err
		}
		if err := r.configureJaws(m, &sum); err != nil {
			return sum, err
		}
	}

	if cfg.GetSurveyEnabled() {
		if sum.SurveyRows, err = r.survey(m); err != nil {
			return sum, err
		}
	}
	if m.table != nil && cfg.GetCollimatorSurvey() {
		rows := survey.CollimatorSurvey(m.model.Beamline(), m.table, m.emit, m.emit)
		if err := m.outputs.Write(FileCollimatorSurvey, func(w io.Writer) error {
			return survey.WriteCollimatorSurvey(w, rows)
		}); err != nil {
			return sum, err
		}
	}

	if !cfg.GetCollimationEnabled() {
		return sum, nil
	}

	pop, err := r.bunch(m, args, sum.ImpactFactor)
	if err != nil {
		return sum, err
	}
	sum.NPart = pop.Len()
	r.Metrics.Particles.Set(float64(pop.Len()))
	if cfg.GetInitialBunch() {
		if err := m.outputs.Write(FileInitialBunch, func(w io.Writer) error { return bunch.WriteTSV(w, pop) }); err != nil {
			return sum, err
		}
	}

	ledger, recorder, ts, err := r.track(ctx, m, pop)
	sum.TurnsRun, sum.StoppedEarly = ts.TurnsRun, ts.StoppedEarly
	sum.Left, sum.Absorbed = pop.Len(), ts.Absorbed
	if err != nil {
		return sum, err
	}
	monitoring.Logf("npart %d, left %d, absorbed %d", sum.NPart, sum.Left, sum.Absorbed)

	if cfg.GetFinalBunch() {
		if err := m.outputs.Write(FileFinalBunch, func(w io.Writer) error { return bunch.WriteTSV(w, pop) }); err != nil {
			return sum, err
		}
	}
	if err := r.writeScatterReports(m.outputs, recorder); err != nil {
		return sum, err
	}
	if err := r.writeLossMap(m.outputs, ledger, &sum); err != nil {
		return sum, err
	}
	if err := r.archive(m, args, startedAt, &sum); err != nil {
		return sum, err
	}
	if name := cfg.GetMetricsFile(); name != "" {
		if err := m.outputs.Write(name, r.Metrics.WriteText); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// Survey runs only the aperture survey, for the apsurvey command.
func (r *Runner) Survey() (int, error) {
	m, err := r.prepare()
	if err != nil {
		return 0, err
	}
	return r.survey(m)
}

func (r *Runner) prepare() (*machine, error) {
	cfg := r.Config
	if r.Metrics == nil {
		r.Metrics = monitoring.NewMetrics()
	}
	outputs := fsutil.Outputs{FS: r.FS, Dir: cfg.GetOutputDir()}
	if err := outputs.Prepare(); err != nil {
		return nil, err
	}

	model, err := BuildModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("building lattice: %w", err)
	}
	start, err := model.FindElementLatticePosition(cfg.GetStartElement())
	if err != nil {
		return nil, fmt.Errorf("start element: %w", err)
	}
	gamma := units.Gamma(cfg.GetBeamEnergyGeV(), units.ProtonMassGeV)
	m := &machine{
		model:   model,
		start:   start,
		gamma:   gamma,
		emit:    units.GeometricEmittance(cfg.GetNormalizedEmittance(), gamma),
		outputs: outputs,
	}
	if cfg.GetOpticsEnabled() {
		m.table = optics.NewTable(model, gamma)
	}
	monitoring.Logf("lattice: %d elements, circumference %g m, start %s, gamma %g",
		model.Len(), model.Circumference(), cfg.GetStartElement(), gamma)
	return m, nil
}

// converge finds the smallest synthetic longitudinal scale that gives
// valid lattice functions and writes the optics tables.
func (r *Runner) converge(m *machine) (optics.Result, error) {
	cfg := r.Config
	conv := optics.DefaultConvergence()
	conv.InitialScale = cfg.GetInitialScale()
	conv.MaxDoublings = cfg.GetMaxDoublings()
	conv.Element = m.start

	res, err := conv.Run(m.table)
	r.Metrics.ConvergenceDoublings.Set(float64(res.Doublings))
	r.Metrics.BendScale.Set(res.Scale)
	if err != nil {
		var nc *optics.NotConvergedError
		if errors.As(err, &nc) {
			return res, fmt.Errorf("%w: %w", ErrNumeric, err)
		}
		return res, err
	}
	qx, qy, _ := m.table.Tunes()
	dx, dy := m.table.RMSDispersion()
	monitoring.Logf("optics: bscale %g after %d doublings, tunes %.4f %.4f, rms dispersion %.4g %.4g",
		res.Scale, res.Doublings, qx, qy, dx, dy)

	if cfg.GetOutputTable() {
		if err := m.outputs.Write(FileLatticeFunctions, m.table.WriteTable); err != nil {
			return res, err
		}
		if err := m.outputs.Write(FileDispersion, m.table.WriteDispersion); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (r *Runner) configureJaws(m *machine, sum *Summary) error {
	if err := collimation.ConfigureJaws(m.model, m.table, m.emit, m.emit, jaws(r.Config)); err != nil {
		return numeric(err)
	}
	primary := r.Config.GetPrimary()
	if primary == "" {
		return nil
	}
	f, err := collimation.ImpactFactor(m.model, m.table, primary, m.emit)
	if err != nil {
		return numeric(err)
	}
	sum.ImpactFactor = f
	monitoring.Logf("impact factor at %s: %.3f sigma", primary, f)
	return nil
}

func numeric(err error) error {
	if errors.Is(err, collimation.ErrImpactNaN) || errors.Is(err, bunch.ErrInvalidBeam) {
		return fmt.Errorf("%w: %w", ErrNumeric, err)
	}
	return err
}

func (r *Runner) survey(m *machine) (int, error) {
	cfg := r.Config
	sampler, err := survey.NewSampler(cfg.GetSurveyStep(), cfg.GetSurveyPointsPerElement(), cfg.GetSurveyExactPosition())
	if err != nil {
		return 0, fmt.Errorf("aperture survey: %w", err)
	}
	sc := &survey.Scanner{Sampler: sampler, FromOrigin: true}

	var (
		rows    int
		scanErr error
	)
	err = m.outputs.Write(FileApertureSurvey, func(w io.Writer) error {
		sw := survey.NewWriter(w)
		if err := sw.WriteHeader(); err != nil {
			return err
		}
		rows, scanErr = sc.Survey(m.model.Beamline(), sw)
		var ce *beamline.ContinuityError
		if errors.As(scanErr, &ce) {
			return nil
		}
		return scanErr
	})
	r.Metrics.SurveySamples.Add(float64(rows))
	if scanErr != nil && err == nil {
		return rows, fmt.Errorf("aperture survey: %w", scanErr)
	}
	if err != nil {
		return rows, err
	}
	monitoring.Logf("aperture survey: %d rows", rows)
	return rows, nil
}

// bunch reads the input bunch file or generates a distribution matched to
// the optics at the start element.
func (r *Runner) bunch(m *machine, args Args, impact float64) (*bunch.Population, error) {
	cfg := r.Config
	if path := cfg.GetInputBunch(); path != "" {
		f, err := r.FS.Open(path)
		if err != nil {
			return nil, fmt.Errorf("input bunch: %w", err)
		}
		defer f.Close()
		ps, err := bunch.ReadTSV(f)
		if err != nil {
			return nil, fmt.Errorf("input bunch %s: %w", path, err)
		}
		if args.NPart > 0 && args.NPart != len(ps) {
			monitoring.Logf("input bunch %s has %d particles, ignoring npart %d", path, len(ps), args.NPart)
		}
		return bunch.NewPopulation(ps, cfg.GetBeamCharge()), nil
	}

	if m.table == nil {
		return nil, fmt.Errorf("generating a bunch needs optics; enable [optics] or set input_bunch")
	}
	dist, err := bunch.ParseDistribution(cfg.GetDistribution())
	if err != nil {
		return nil, err
	}
	beam, err := bunch.BeamDataAt(m.table, m.start, m.emit, m.emit)
	if err != nil {
		return nil, numeric(err)
	}
	beam.SigZ = cfg.GetSigmaZ()
	beam.SigDP = cfg.GetSigmaDP()
	beam.Charge = cfg.GetBeamCharge()
	if dist.Name() != bunch.Normal {
		if impact < 0 && !cfg.HasSigmaRange() {
			return nil, fmt.Errorf("%s distribution needs min_sigma_x or a primary collimator", dist.Name())
		}
		beam.MinSigmaX, beam.MaxSigmaX = cfg.GetSigmaRange(impact)
	}

	pop, err := bunch.Construct(beam, args.NPart, dist, args.Seed)
	if err != nil {
		return nil, numeric(err)
	}
	mom := bunch.ComputeMoments(pop)
	monitoring.Logf("bunch: %d %s particles, sigma x %.4g m, sigma y %.4g m",
		pop.Len(), dist.Name(), mom.Std[optics.X], mom.Std[optics.Y])
	return pop, nil
}

func (r *Runner) track(ctx context.Context, m *machine, pop *bunch.Population) (*lossmap.Ledger, *scatter.Recorder, tracking.Summary, error) {
	cfg := r.Config

	opts := lossmap.DefaultOptions()
	opts.BinWidth = cfg.GetBinWidth()
	opts.Threshold = cfg.GetLossThreshold()
	opts.Origin = m.model.Element(m.start).Position
	opts.Mode, _ = lossmap.ParseMode(cfg.GetAttribution())
	opts.Reverse = cfg.GetBeam2()
	opts.Circumference = m.model.Circumference()
	ledger := lossmap.NewLedger(opts)

	model := r.Scatter
	if model == nil {
		model = scatter.Absorber{}
	}
	recorder := scatter.NewRecorder(model,
		reportOptions(cfg.Scatter.JawImpact),
		reportOptions(cfg.Scatter.ScatterPlot),
		reportOptions(cfg.Scatter.JawInelastic))
	proc := collimation.NewProcess(recorder, cfg.GetScatterAtCollimator())
	proc.Steps = cfg.GetStepsPerElement()

	snapshot := func(name string, appendMode bool) tracking.Observer {
		return &tracking.SnapshotObserver{Outputs: m.outputs, Name: name, Append: appendMode}
	}
	segs, err := segments(cfg, m.model, m.start, proc, snapshot)
	if err != nil {
		return ledger, recorder, tracking.Summary{}, err
	}
	p := &tracking.Pipeline{
		Integrator: tracking.NewLinearIntegrator(m.gamma),
		Segments:   segs,
	}
	if cfg.GetEveryTurn() {
		p.TurnObservers = append(p.TurnObservers, snapshot(FileEveryTurn, true))
	}

	ts, err := p.Run(ctx, pop, cfg.GetTurns(), ledger)
	r.Metrics.TurnsRun.Set(float64(ts.TurnsRun))
	r.Metrics.Survivors.Set(float64(ts.Survivors))
	for _, rec := range ledger.Records() {
		r.Metrics.Absorbed.WithLabelValues(string(rec.Cause)).Inc()
	}
	if err != nil {
		return ledger, recorder, ts, fmt.Errorf("tracking: %w", err)
	}
	return ledger, recorder, ts, nil
}

func (r *Runner) writeScatterReports(outputs fsutil.Outputs, rec *scatter.Recorder) error {
	reports := []struct {
		on    bool
		name  string
		write func(io.Writer) error
	}{
		{r.Config.Scatter.JawImpact.Enabled, FileJawImpact, rec.WriteJawImpact},
		{r.Config.Scatter.ScatterPlot.Enabled, FileScatterPlot, rec.WriteScatterPlot},
		{r.Config.Scatter.JawInelastic.Enabled, FileJawInelastic, rec.WriteJawInelastic},
	}
	for _, rep := range reports {
		if !rep.on {
			continue
		}
		if err := outputs.Write(rep.name, rep.write); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) writeLossMap(outputs fsutil.Outputs, ledger *lossmap.Ledger, sum *Summary) error {
	if err := ledger.Finalise(); err != nil {
		return err
	}
	sum.Losses = ledger.Summary()
	sum.Bins = ledger.Bins()
	r.Metrics.LossBins.Set(float64(len(sum.Bins)))
	monitoring.Logf("loss map: %d losses, %d kept, %d dropped, %d bins",
		sum.Losses.Records, sum.Losses.Kept, sum.Losses.Dropped, len(sum.Bins))

	if err := outputs.Write(FileLossMap, ledger.WriteTSV); err != nil {
		return err
	}
	title := fmt.Sprintf("Loss map (%d of %d absorbed)", sum.Absorbed, sum.NPart)
	if r.Config.GetLossPlot() {
		if err := outputs.Write(FileLossPlot, func(w io.Writer) error {
			return report.LossMapPNG(w, sum.Bins, title)
		}); err != nil {
			return err
		}
	}
	if r.Config.GetLossHTML() {
		// Render errors are not output errors.
		var buf bytes.Buffer
		if err := report.LossMapHTML(&buf, sum.Bins, title); err != nil {
			return err
		}
		if err := outputs.Write(FileLossHTML, func(w io.Writer) error {
			_, err := buf.WriteTo(w)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

// archive stores the run in the sqlite database when one is configured.
// The database is a real file; relative paths are under the output
// directory.
func (r *Runner) archive(m *machine, args Args, startedAt time.Time, sum *Summary) error {
	path := r.Config.GetArchiveDB()
	if path == "" {
		return nil
	}
	if !filepath.IsAbs(path) {
		path = m.outputs.Path(path)
	}
	st, err := store.Open(path)
	if err != nil {
		return &fsutil.OutputError{Path: path, Op: "archive", Err: err}
	}
	defer st.Close()

	rec := store.RunRecord{
		StartedAt:     startedAt,
		FinishedAt:    r.Clock.Now(),
		Version:       version.Version,
		NPart:         sum.NPart,
		Seed:          args.Seed,
		Turns:         r.Config.GetTurns(),
		TurnsRun:      sum.TurnsRun,
		Survivors:     sum.Left,
		Absorbed:      sum.Absorbed,
		StoppedEarly:  sum.StoppedEarly,
		BScale:        sum.Optics.Scale,
		Doublings:     sum.Optics.Doublings,
		LossesKept:    sum.Losses.Kept,
		LossesDropped: sum.Losses.Dropped,
	}
	if sum.ImpactFactor > 0 {
		rec.ImpactSigma = sum.ImpactFactor
	}
	id, err := st.RecordRun(rec)
	if err != nil {
		return &fsutil.OutputError{Path: path, Op: "archive", Err: err}
	}
	if err := st.RecordLossBins(id, sum.Bins); err != nil {
		return &fsutil.OutputError{Path: path, Op: "archive", Err: err}
	}
	sum.RunID = id
	monitoring.Logf("archived run %s in %s", id, path)
	return nil
}

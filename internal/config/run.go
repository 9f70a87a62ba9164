// Package config holds the run configuration. A RunConfig is decoded once
// from TOML and never changes afterwards; every stage reads the parts it
// needs through the Get* accessors, which supply defaults for omitted keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/banshee-data/lossmap/internal/aperture"
	"github.com/banshee-data/lossmap/internal/units"
)

// EnvConfigPath names the environment variable holding the config file
// path. The commands take no flags.
const EnvConfigPath = "LOSSMAP_CONFIG"

// Defaults. The beam defaults describe a 7 TeV proton beam.
const (
	DefaultBeamEnergy          = 7.0
	DefaultEnergyUnit          = units.TeV
	DefaultNormalizedEmittance = 3.5e-6
	DefaultBeamCharge          = 1.1e11
	DefaultTurns               = 200
	DefaultStartElement        = "IP1"
	DefaultOutputDir           = "output"
	DefaultDistribution        = "halo"
	DefaultSigmaZ              = 0.0755
	DefaultSigmaDP             = 1.13e-4
	DefaultHaloWidth           = 0.5 // sigma above the impact factor
	DefaultSurveyStep          = 0.1
	DefaultPrimary             = "TCP.A"
)

// RunConfig is the root configuration. Fields are pointers so that an
// omitted key can be told apart from an explicit zero.
type RunConfig struct {
	BeamEnergy          *float64 `toml:"beam_energy"`
	EnergyUnit          *string  `toml:"energy_unit"`
	NormalizedEmittance *float64 `toml:"normalized_emittance"`
	BeamCharge          *float64 `toml:"beam_charge"`
	Turns               *int     `toml:"turns"`
	StartElement        *string  `toml:"start_element"`
	OutputDir           *string  `toml:"output_dir"`

	Distribution *string  `toml:"distribution"`
	MinSigmaX    *float64 `toml:"min_sigma_x"`
	MaxSigmaX    *float64 `toml:"max_sigma_x"`
	SigmaZ       *float64 `toml:"sigma_z"`
	SigmaDP      *float64 `toml:"sigma_dp"`
	InputBunch   *string  `toml:"input_bunch"`

	Survey      SurveyConfig      `toml:"survey"`
	Optics      OpticsConfig      `toml:"optics"`
	Collimation CollimationConfig `toml:"collimation"`
	Scatter     ScatterConfig     `toml:"scatter"`
	Output      OutputConfig      `toml:"output"`

	Segments    []SegmentConfig `toml:"segment"`
	Collimators []JawConfig     `toml:"collimator"`
	Elements    []ElementConfig `toml:"element"`
}

type SurveyConfig struct {
	Enabled          *bool    `toml:"enabled"`
	Step             *float64 `toml:"step"`
	PointsPerElement *int     `toml:"points_per_element"`
	ExactPosition    *bool    `toml:"exact_position"`
}

type OpticsConfig struct {
	Enabled      *bool    `toml:"enabled"`
	InitialScale *float64 `toml:"initial_scale"`
	MaxDoublings *int     `toml:"max_doublings"`
	OutputTable  *bool    `toml:"output_table"`
}

type CollimationConfig struct {
	Enabled             *bool    `toml:"enabled"`
	BinWidth            *float64 `toml:"bin_width"`
	LossThreshold       *float64 `toml:"loss_threshold"`
	Attribution         *string  `toml:"attribution"`
	StepsPerElement     *int     `toml:"steps_per_element"`
	ScatterAtCollimator *bool    `toml:"scatter_at_collimator"`
	Beam2               *bool    `toml:"beam2"`
	Primary             *string  `toml:"primary"`
}

// ReportConfig enables one auxiliary scatter report for the listed element
// name patterns (all collimators when empty).
type ReportConfig struct {
	Enabled  bool     `toml:"enabled"`
	Elements []string `toml:"elements"`
}

type ScatterConfig struct {
	JawImpact    ReportConfig `toml:"jaw_impact"`
	ScatterPlot  ReportConfig `toml:"scatter_plot"`
	JawInelastic ReportConfig `toml:"jaw_inelastic"`
}

type OutputConfig struct {
	InitialBunch     *bool   `toml:"initial_bunch"`
	FinalBunch       *bool   `toml:"final_bunch"`
	EveryTurn        *bool   `toml:"every_turn"`
	CollimatorSurvey *bool   `toml:"collimator_survey"`
	LossPlot         *bool   `toml:"loss_plot"`
	LossHTML         *bool   `toml:"loss_html"`
	MetricsFile      *string `toml:"metrics_file"`
	ArchiveDB        *string `toml:"archive_db"`
}

// SegmentConfig is an inclusive element range tracked as one segment.
type SegmentConfig struct {
	Name     string `toml:"name"`
	From     string `toml:"from"`
	To       string `toml:"to"`
	Snapshot bool   `toml:"snapshot"`
}

// JawConfig opens a collimator to NSigma beam sizes.
type JawConfig struct {
	Name     string  `toml:"name"`
	NSigma   float64 `toml:"nsigma"`
	Plane    string  `toml:"plane"`
	Material string  `toml:"material"`
}

// ElementConfig is one lattice element. A config with no elements runs on
// the built-in demonstration ring.
type ElementConfig struct {
	Name     string        `toml:"name"`
	Type     string        `toml:"type"`
	Length   float64       `toml:"length"`
	K1       float64       `toml:"k1"`
	Angle    float64       `toml:"angle"`
	Aperture aperture.Spec `toml:"aperture"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyRunConfig returns a RunConfig with every field unset, which
// resolves to the defaults.
func EmptyRunConfig() *RunConfig {
	return &RunConfig{}
}

// LoadRunConfig reads a TOML file. The file must have a .toml extension and
// be under 1MB. Omitted keys keep their defaults.
func LoadRunConfig(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".toml" {
		return nil, fmt.Errorf("config file must have .toml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	cfg := EmptyRunConfig()
	meta, err := toml.DecodeFile(cleanPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by LOSSMAP_CONFIG, or returns the
// defaults when the variable is unset.
func LoadFromEnv() (*RunConfig, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		return EmptyRunConfig(), nil
	}
	return LoadRunConfig(path)
}

// Validate checks ranges and enumerations.
func (c *RunConfig) Validate() error {
	if c.BeamEnergy != nil && *c.BeamEnergy <= 0 {
		return fmt.Errorf("beam_energy must be positive, got %g", *c.BeamEnergy)
	}
	if c.EnergyUnit != nil && !units.IsValid(*c.EnergyUnit) {
		return fmt.Errorf("energy_unit %q is not one of %s", *c.EnergyUnit, units.GetValidUnitsString())
	}
	if c.NormalizedEmittance != nil && *c.NormalizedEmittance <= 0 {
		return fmt.Errorf("normalized_emittance must be positive, got %g", *c.NormalizedEmittance)
	}
	if c.Turns != nil && *c.Turns < 1 {
		return fmt.Errorf("turns must be at least 1, got %d", *c.Turns)
	}
	switch c.GetDistribution() {
	case "normal", "pencil", "halo":
	default:
		return fmt.Errorf("unknown distribution %q", c.GetDistribution())
	}
	if c.MinSigmaX != nil && c.MaxSigmaX != nil && *c.MinSigmaX > *c.MaxSigmaX {
		return fmt.Errorf("min_sigma_x %g exceeds max_sigma_x %g", *c.MinSigmaX, *c.MaxSigmaX)
	}
	if c.SigmaZ != nil && *c.SigmaZ < 0 {
		return fmt.Errorf("sigma_z must be non-negative, got %g", *c.SigmaZ)
	}
	if c.SigmaDP != nil && *c.SigmaDP < 0 {
		return fmt.Errorf("sigma_dp must be non-negative, got %g", *c.SigmaDP)
	}

	if c.Survey.Step != nil && *c.Survey.Step <= 0 {
		return fmt.Errorf("survey.step must be positive, got %g", *c.Survey.Step)
	}
	if c.Survey.PointsPerElement != nil && *c.Survey.PointsPerElement < 0 {
		return fmt.Errorf("survey.points_per_element must be non-negative, got %d", *c.Survey.PointsPerElement)
	}
	if c.Optics.InitialScale != nil && *c.Optics.InitialScale <= 0 {
		return fmt.Errorf("optics.initial_scale must be positive, got %g", *c.Optics.InitialScale)
	}
	if c.Optics.MaxDoublings != nil && *c.Optics.MaxDoublings < 1 {
		return fmt.Errorf("optics.max_doublings must be at least 1, got %d", *c.Optics.MaxDoublings)
	}
	if c.Collimation.BinWidth != nil && *c.Collimation.BinWidth <= 0 {
		return fmt.Errorf("collimation.bin_width must be positive, got %g", *c.Collimation.BinWidth)
	}
	if a := c.GetAttribution(); a != "nearest" && a != "exact" {
		return fmt.Errorf("collimation.attribution must be nearest or exact, got %q", a)
	}
	if c.Collimation.StepsPerElement != nil && *c.Collimation.StepsPerElement < 1 {
		return fmt.Errorf("collimation.steps_per_element must be at least 1, got %d", *c.Collimation.StepsPerElement)
	}

	if c.Output.MetricsFile != nil && *c.Output.MetricsFile != "" && !filepath.IsLocal(*c.Output.MetricsFile) {
		return fmt.Errorf("output.metrics_file %q must be a relative path inside output_dir", *c.Output.MetricsFile)
	}

	for i, s := range c.Segments {
		if s.From == "" || s.To == "" {
			return fmt.Errorf("segment %d (%s) needs from and to", i, s.Name)
		}
	}
	for _, j := range c.Collimators {
		if j.Name == "" {
			return fmt.Errorf("collimator entry without a name")
		}
		if j.NSigma <= 0 {
			return fmt.Errorf("collimator %s: nsigma must be positive, got %g", j.Name, j.NSigma)
		}
		if j.Plane != "" && j.Plane != "h" && j.Plane != "v" {
			return fmt.Errorf("collimator %s: plane must be h or v, got %q", j.Name, j.Plane)
		}
	}
	for i, e := range c.Elements {
		if e.Name == "" {
			return fmt.Errorf("element %d has no name", i)
		}
		if e.Length < 0 {
			return fmt.Errorf("element %s has negative length %g", e.Name, e.Length)
		}
	}
	return nil
}

// UsesDemoLattice reports whether no elements were configured.
func (c *RunConfig) UsesDemoLattice() bool {
	return len(c.Elements) == 0
}

// GetBeamEnergyGeV returns the beam energy converted to GeV. A beam_energy
// given without energy_unit is in GeV.
func (c *RunConfig) GetBeamEnergyGeV() float64 {
	e := DefaultBeamEnergy
	if c.BeamEnergy != nil {
		e = *c.BeamEnergy
	}
	unit := DefaultEnergyUnit
	if c.EnergyUnit != nil {
		unit = *c.EnergyUnit
	} else if c.BeamEnergy != nil {
		unit = units.GeV
	}
	return units.ToGeV(e, unit)
}

// GetNormalizedEmittance returns the normalised emittance in m rad.
func (c *RunConfig) GetNormalizedEmittance() float64 {
	if c.NormalizedEmittance == nil {
		return DefaultNormalizedEmittance
	}
	return *c.NormalizedEmittance
}

// GetBeamCharge returns the number of particles in the real bunch.
func (c *RunConfig) GetBeamCharge() float64 {
	if c.BeamCharge == nil {
		return DefaultBeamCharge
	}
	return *c.BeamCharge
}

// GetTurns returns the number of turns to track.
func (c *RunConfig) GetTurns() int {
	if c.Turns == nil {
		return DefaultTurns
	}
	return *c.Turns
}

// GetStartElement returns the element tracking and optics start from.
func (c *RunConfig) GetStartElement() string {
	if c.StartElement == nil {
		return DefaultStartElement
	}
	return *c.StartElement
}

// GetOutputDir returns the directory every output file is written under.
func (c *RunConfig) GetOutputDir() string {
	if c.OutputDir == nil {
		return DefaultOutputDir
	}
	return *c.OutputDir
}

// GetDistribution returns the bunch distribution name.
func (c *RunConfig) GetDistribution() string {
	if c.Distribution == nil {
		return DefaultDistribution
	}
	return *c.Distribution
}

// GetSigmaRange returns the halo amplitude range in horizontal sigma. When
// unset it starts at impact and spans DefaultHaloWidth.
func (c *RunConfig) GetSigmaRange(impact float64) (float64, float64) {
	lo, hi := impact, impact+DefaultHaloWidth
	if c.MinSigmaX != nil {
		lo = *c.MinSigmaX
		if c.MaxSigmaX == nil {
			hi = lo + DefaultHaloWidth
		}
	}
	if c.MaxSigmaX != nil {
		hi = *c.MaxSigmaX
	}
	return lo, hi
}

// HasSigmaRange reports whether the halo range was given explicitly.
func (c *RunConfig) HasSigmaRange() bool {
	return c.MinSigmaX != nil
}

// GetSigmaZ returns the rms bunch length in metres.
func (c *RunConfig) GetSigmaZ() float64 {
	if c.SigmaZ == nil {
		return DefaultSigmaZ
	}
	return *c.SigmaZ
}

// GetSigmaDP returns the rms relative momentum spread.
func (c *RunConfig) GetSigmaDP() float64 {
	if c.SigmaDP == nil {
		return DefaultSigmaDP
	}
	return *c.SigmaDP
}

// GetInputBunch returns the path of a bunch file to track instead of a
// generated distribution, or "".
func (c *RunConfig) GetInputBunch() string {
	if c.InputBunch == nil {
		return ""
	}
	return *c.InputBunch
}

// GetSurveyEnabled returns whether the aperture survey runs.
func (c *RunConfig) GetSurveyEnabled() bool {
	if c.Survey.Enabled == nil {
		return true
	}
	return *c.Survey.Enabled
}

// GetSurveyStep returns the fixed survey step in metres.
func (c *RunConfig) GetSurveyStep() float64 {
	if c.Survey.Step == nil {
		return DefaultSurveyStep
	}
	return *c.Survey.Step
}

// GetSurveyPointsPerElement returns the fixed sample count, 0 for
// fixed-step sampling.
func (c *RunConfig) GetSurveyPointsPerElement() int {
	if c.Survey.PointsPerElement == nil {
		return 0
	}
	return *c.Survey.PointsPerElement
}

// GetSurveyExactPosition returns whether rows report the sample position.
func (c *RunConfig) GetSurveyExactPosition() bool {
	if c.Survey.ExactPosition == nil {
		return false
	}
	return *c.Survey.ExactPosition
}

// GetOpticsEnabled returns whether lattice functions are computed. Without
// them the collimator survey, jaw settings and generated bunches are
// unavailable.
func (c *RunConfig) GetOpticsEnabled() bool {
	if c.Optics.Enabled == nil {
		return true
	}
	return *c.Optics.Enabled
}

// GetInitialScale returns the first synthetic longitudinal scale tried.
func (c *RunConfig) GetInitialScale() float64 {
	if c.Optics.InitialScale == nil {
		return 1e-22
	}
	return *c.Optics.InitialScale
}

// GetMaxDoublings returns the convergence cap.
func (c *RunConfig) GetMaxDoublings() int {
	if c.Optics.MaxDoublings == nil {
		return 160
	}
	return *c.Optics.MaxDoublings
}

// GetOutputTable returns whether lattice function and dispersion tables
// are written.
func (c *RunConfig) GetOutputTable() bool {
	if c.Optics.OutputTable == nil {
		return true
	}
	return *c.Optics.OutputTable
}

// GetCollimationEnabled returns whether tracking and the loss map run.
func (c *RunConfig) GetCollimationEnabled() bool {
	if c.Collimation.Enabled == nil {
		return true
	}
	return *c.Collimation.Enabled
}

// GetBinWidth returns the loss map bin width in metres.
func (c *RunConfig) GetBinWidth() float64 {
	if c.Collimation.BinWidth == nil {
		return 0.1
	}
	return *c.Collimation.BinWidth
}

// GetLossThreshold returns the loss map distance cut in metres; zero or
// less keeps every loss.
func (c *RunConfig) GetLossThreshold() float64 {
	if c.Collimation.LossThreshold == nil {
		return 200
	}
	return *c.Collimation.LossThreshold
}

// GetAttribution returns "nearest" or "exact".
func (c *RunConfig) GetAttribution() string {
	if c.Collimation.Attribution == nil {
		return "nearest"
	}
	return *c.Collimation.Attribution
}

// GetStepsPerElement returns the number of aperture checks along each
// element.
func (c *RunConfig) GetStepsPerElement() int {
	if c.Collimation.StepsPerElement == nil {
		return 10
	}
	return *c.Collimation.StepsPerElement
}

// GetScatterAtCollimator returns whether collimator hits go through the
// scattering model.
func (c *RunConfig) GetScatterAtCollimator() bool {
	if c.Collimation.ScatterAtCollimator == nil {
		return true
	}
	return *c.Collimation.ScatterAtCollimator
}

// GetBeam2 returns whether loss positions are mirrored for the
// counter-rotating beam.
func (c *RunConfig) GetBeam2() bool {
	if c.Collimation.Beam2 == nil {
		return false
	}
	return *c.Collimation.Beam2
}

// GetPrimary returns the primary collimator used for the impact factor.
// Custom lattices have none unless configured.
func (c *RunConfig) GetPrimary() string {
	if c.Collimation.Primary != nil {
		return *c.Collimation.Primary
	}
	if c.UsesDemoLattice() {
		return DefaultPrimary
	}
	return ""
}

// GetCollimators returns the jaw settings. The demonstration ring gets a
// primary at 6 sigma and a secondary at 7 sigma.
func (c *RunConfig) GetCollimators() []JawConfig {
	if len(c.Collimators) > 0 || !c.UsesDemoLattice() {
		return c.Collimators
	}
	return []JawConfig{
		{Name: "TCP.A", NSigma: 6, Plane: "h", Material: "C"},
		{Name: "TCSG.B", NSigma: 7, Plane: "h", Material: "C"},
	}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// GetInitialBunch returns whether the generated bunch is written.
func (c *RunConfig) GetInitialBunch() bool { return boolOr(c.Output.InitialBunch, true) }

// GetFinalBunch returns whether the surviving bunch is written.
func (c *RunConfig) GetFinalBunch() bool { return boolOr(c.Output.FinalBunch, true) }

// GetEveryTurn returns whether the bunch is appended after every turn.
func (c *RunConfig) GetEveryTurn() bool { return boolOr(c.Output.EveryTurn, false) }

// GetCollimatorSurvey returns whether the collimator survey is written.
func (c *RunConfig) GetCollimatorSurvey() bool { return boolOr(c.Output.CollimatorSurvey, true) }

// GetLossPlot returns whether the loss map PNG is rendered.
func (c *RunConfig) GetLossPlot() bool { return boolOr(c.Output.LossPlot, true) }

// GetLossHTML returns whether the loss map HTML page is rendered.
func (c *RunConfig) GetLossHTML() bool { return boolOr(c.Output.LossHTML, false) }

// GetMetricsFile returns the prometheus textfile path relative to the
// output directory, or "" when disabled.
func (c *RunConfig) GetMetricsFile() string {
	if c.Output.MetricsFile == nil {
		return ""
	}
	return *c.Output.MetricsFile
}

// GetArchiveDB returns the sqlite archive path, or "" when disabled.
func (c *RunConfig) GetArchiveDB() string {
	if c.Output.ArchiveDB == nil {
		return ""
	}
	return *c.Output.ArchiveDB
}

package monitoring

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics are the run counters. Each run gets its own registry so that the
// textfile holds exactly one run.
type Metrics struct {
	Registry *prometheus.Registry

	SurveySamples        prometheus.Counter
	ConvergenceDoublings prometheus.Gauge
	BendScale            prometheus.Gauge
	Particles            prometheus.Gauge
	Survivors            prometheus.Gauge
	TurnsRun             prometheus.Gauge
	Absorbed             *prometheus.CounterVec
	LossBins             prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SurveySamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lossmap",
			Subsystem: "survey",
			Name:      "samples_total",
			Help:      "Aperture survey rows written.",
		}),
		ConvergenceDoublings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lossmap",
			Subsystem: "optics",
			Name:      "convergence_doublings",
			Help:      "Doublings of the synthetic longitudinal scale before the optics converged.",
		}),
		BendScale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lossmap",
			Subsystem: "optics",
			Name:      "bend_scale",
			Help:      "Synthetic longitudinal scale the optics converged at.",
		}),
		Particles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lossmap",
			Subsystem: "tracking",
			Name:      "particles",
			Help:      "Macro-particles at the start of tracking.",
		}),
		Survivors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lossmap",
			Subsystem: "tracking",
			Name:      "survivors",
			Help:      "Macro-particles left at the end of tracking.",
		}),
		TurnsRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lossmap",
			Subsystem: "tracking",
			Name:      "turns_run",
			Help:      "Turns started before tracking ended.",
		}),
		Absorbed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lossmap",
			Subsystem: "tracking",
			Name:      "absorbed_total",
			Help:      "Macro-particles removed from the bunch.",
		}, []string{"cause"}),
		LossBins: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lossmap",
			Subsystem: "ledger",
			Name:      "bins",
			Help:      "Loss map bins kept after the distance cut.",
		}),
	}
	m.Registry.MustRegister(
		m.SurveySamples, m.ConvergenceDoublings, m.BendScale, m.Particles,
		m.Survivors, m.TurnsRun, m.Absorbed, m.LossBins,
	)
	return m
}

// WriteText writes every metric in the prometheus text format, suitable
// for the node exporter textfile collector.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.Registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

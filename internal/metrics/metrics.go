// Package metrics exports monitor loop events as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/monitor"
)

// Observer updates Prometheus collectors from loop events. It implements
// monitor.Observer.
type Observer struct {
	samples         *prometheus.CounterVec
	switchCommands  *prometheus.CounterVec
	switchLatency   prometheus.Histogram
	confirmations   *prometheus.CounterVec
	state           prometheus.Gauge
	degraded        prometheus.Gauge
	degradedPeriods prometheus.Counter
}

// New registers the collectors with reg. Use prometheus.DefaultRegisterer
// to serve them from promhttp.Handler.
func New(reg prometheus.Registerer) *Observer {
	f := promauto.With(reg)
	return &Observer{
		samples: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speakerswitch_samples_total",
			Help: "Audio activity samples by result (active, silent, error)",
		}, []string{"result"}),
		switchCommands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speakerswitch_switch_commands_total",
			Help: "Speaker switch commands issued",
		}, []string{"action", "result"}),
		switchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "speakerswitch_switch_latency_seconds",
			Help:    "Duration of speaker switch commands",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speakerswitch_confirmations_total",
			Help: "Silence confirmation windows by outcome",
		}, []string{"outcome"}),
		state: f.NewGauge(prometheus.GaugeOpts{
			Name: "speakerswitch_playback_state",
			Help: "Debounced playback state (0 inactive, 1 confirming silence, 2 active)",
		}),
		degraded: f.NewGauge(prometheus.GaugeOpts{
			Name: "speakerswitch_sampler_degraded",
			Help: "1 while the audio sampler is degraded",
		}),
		degradedPeriods: f.NewCounter(prometheus.CounterOpts{
			Name: "speakerswitch_sampler_degraded_total",
			Help: "Times the audio sampler became degraded",
		}),
	}
}

// Observe implements monitor.Observer.
func (o *Observer) Observe(e monitor.Event) {
	o.state.Set(float64(e.State))

	switch e.Type {
	case monitor.EventSample:
		o.samples.WithLabelValues(sampleResult(e)).Inc()
	case monitor.EventSwitchOn, monitor.EventSwitchOff:
		result := "ok"
		if e.Err != nil {
			result = "error"
		}
		o.switchCommands.WithLabelValues(e.Action.String(), result).Inc()
		o.switchLatency.Observe(e.Elapsed.Seconds())
	case monitor.EventConfirmStarted:
		o.confirmations.WithLabelValues("started").Inc()
	case monitor.EventConfirmCancelled:
		o.confirmations.WithLabelValues("cancelled").Inc()
	case monitor.EventSamplerDegraded:
		o.degraded.Set(1)
		o.degradedPeriods.Inc()
	case monitor.EventSamplerRecovered:
		o.degraded.Set(0)
	}
}

func sampleResult(e monitor.Event) string {
	switch {
	case e.Err != nil:
		return "error"
	case e.Active:
		return "active"
	default:
		return "silent"
	}
}

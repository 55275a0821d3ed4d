package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rtcore/state"
)

// Namespace prefixes every metric name.
const Namespace = "rtcore"

// Metrics holds the supervisory-side collectors of one session. The RT
// thread never touches them: counters the RT loop maintains are read from
// the shared state view at scrape time.
type Metrics struct {
	// PingsSent counts Ping commands accepted by the command channel
	PingsSent prometheus.Counter

	// PongsReceived counts Pong responses drained by the supervisor
	PongsReceived prometheus.Counter

	// Responses counts every drained response by kind
	Responses *prometheus.CounterVec

	// CommandsRejected counts commands refused by a full command channel
	CommandsRejected prometheus.Counter

	// JitterMean and JitterMax summarize the published deviation window
	JitterMean prometheus.Gauge
	JitterMax  prometheus.Gauge

	// Deviation samples the last tick deviation seen at each poll
	Deviation prometheus.Histogram
}

// New creates the collectors, labels them with the session id and
// registers them on reg. A nil reg leaves them unregistered.
// Registering twice on the same registry panics.
func New(reg prometheus.Registerer, sessionID string, view state.View) *Metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"session": sessionID}

	m := &Metrics{
		PingsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "pings_sent_total",
			Help:        "Ping commands sent to the RT thread",
			ConstLabels: labels,
		}),
		PongsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "pongs_received_total",
			Help:        "Pong responses received from the RT thread",
			ConstLabels: labels,
		}),
		Responses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "responses_total",
			Help:        "Responses received from the RT thread by kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		CommandsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "commands_rejected_total",
			Help:        "Commands refused because the command channel was full",
			ConstLabels: labels,
		}),
		JitterMean: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   Namespace,
			Name:        "jitter_mean_seconds",
			Help:        "Mean wake deviation over the published window",
			ConstLabels: labels,
		}),
		JitterMax: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   Namespace,
			Name:        "jitter_max_abs_seconds",
			Help:        "Largest absolute wake deviation in the published window",
			ConstLabels: labels,
		}),
		Deviation: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   Namespace,
			Name:        "tick_deviation_seconds",
			Help:        "Last tick wake deviation observed at each supervisor poll",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1e-6, 2, 16),
		}),
	}

	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "rt_ticks_total",
		Help:        "Ticks executed by the RT control loop",
		ConstLabels: labels,
	}, func() float64 { return float64(view.Ticks()) })

	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "hook_calls_total",
		Help:        "Domain hook invocations",
		ConstLabels: labels,
	}, func() float64 { return float64(view.HookCalls()) })

	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "responses_dropped_total",
		Help:        "RT responses lost to a full response channel",
		ConstLabels: labels,
	}, func() float64 { return float64(view.Dropped()) })

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   Namespace,
		Name:        "stabilized",
		Help:        "1 when the RT jitter is judged stable",
		ConstLabels: labels,
	}, func() float64 { return boolValue(view.Stabilized()) })

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   Namespace,
		Name:        "io_ready",
		Help:        "1 once the RT loop has I/O enabled",
		ConstLabels: labels,
	}, func() float64 { return boolValue(view.IoStatus() == state.Ready) })

	return m
}

// ObserveLatency records a deviation window summary, in nanoseconds.
func (m *Metrics) ObserveLatency(meanNs, maxAbsNs, lastNs int64) {
	m.JitterMean.Set(float64(meanNs) / 1e9)
	m.JitterMax.Set(float64(maxAbsNs) / 1e9)
	if lastNs < 0 {
		lastNs = -lastNs
	}
	m.Deviation.Observe(float64(lastNs) / 1e9)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

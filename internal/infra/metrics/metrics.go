// internal/infra/metrics/metrics.go
package metrics

import (
	"psirt_report_bot/internal/app"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes pipeline runs as Prometheus metrics. It implements app.RunObserver.
type Recorder struct {
	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	Requests      *prometheus.CounterVec
	Pending       prometheus.Gauge
	RunCounter    prometheus.Gauge
	CounterErrors prometheus.Counter
}

var _ app.RunObserver = (*Recorder)(nil)

// NewRecorder registers the metrics on reg (prometheus.DefaultRegisterer in production).
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psirt_pipeline_runs_total",
				Help: "Pipeline runs by result",
			},
			[]string{"result"}, // "ok", "fatal"
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "psirt_pipeline_run_duration_seconds",
				Help:    "Duration of pipeline runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psirt_requests_processed_total",
				Help: "Requests handled per stage result",
			},
			[]string{"result"}, // "duplicate", "user", "bot", "invalid", "delivered", "rejected", "delivery_pending"
		),
		Pending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "psirt_pending_requests",
				Help: "Requests with no outcome at the start of the last run",
			},
		),
		RunCounter: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "psirt_run_counter",
				Help: "Value of the persistent run counter after the last run",
			},
		),
		CounterErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "psirt_run_counter_errors_total",
				Help: "Runs whose run counter update failed",
			},
		),
	}
}

func (r *Recorder) ObserveRun(summary *app.RunSummary, err error) {
	if summary != nil && !summary.FinishedAt.IsZero() {
		r.RunDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	}
	if err != nil {
		r.Runs.WithLabelValues("fatal").Inc()
		return
	}
	r.Runs.WithLabelValues("ok").Inc()

	r.Pending.Set(float64(summary.Pending))
	if d := summary.Duplicates; d != nil {
		r.add("duplicate", len(d.Duplicates))
	}
	if c := summary.Classified; c != nil {
		r.add("user", c.UserCount())
		r.add("bot", c.BotCount())
		r.add("invalid", c.InvalidCount())
	}
	if d := summary.Dispatched; d != nil {
		r.add("delivered", len(d.Delivered))
		r.add("rejected", len(d.Rejected))
		r.add("delivery_pending", len(d.Pending))
	}
	if summary.Counter != nil {
		r.RunCounter.Set(float64(summary.Counter.Count))
	}
	if summary.CounterErr != nil {
		r.CounterErrors.Inc()
	}
}

func (r *Recorder) add(result string, n int) {
	r.Requests.WithLabelValues(result).Add(float64(n))
}

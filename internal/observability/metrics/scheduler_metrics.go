package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type SchedulerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	suspended   prometheus.Counter
	activated   prometheus.Counter
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	factory := promauto.With(reg)
	return &SchedulerMetrics{
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netbill",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduler job invocations by job name.",
		}, []string{"job"}),
		jobErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netbill",
			Subsystem: "scheduler",
			Name:      "job_errors_total",
			Help:      "Scheduler job failures by job name.",
		}, []string{"job"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "netbill",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Scheduler job duration by job name.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"job"}),
		suspended: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "netbill",
			Subsystem: "scheduler",
			Name:      "subscriptions_suspended_total",
			Help:      "Subscriptions expired and disabled by the sweep.",
		}),
		activated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "netbill",
			Subsystem: "scheduler",
			Name:      "subscriptions_activated_total",
			Help:      "Subscriptions activated by balance settlement.",
		}),
	}
}

func (m *SchedulerMetrics) IncJobRun(job string)   { m.jobRuns.WithLabelValues(job).Inc() }
func (m *SchedulerMetrics) IncJobError(job string) { m.jobErrors.WithLabelValues(job).Inc() }
func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}
func (m *SchedulerMetrics) IncSuspended() { m.suspended.Inc() }
func (m *SchedulerMetrics) IncActivated() { m.activated.Inc() }

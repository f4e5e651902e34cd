package task

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one Processor. They are registered on the
// registerer handed to the processor rather than the global default.
type Metrics struct {
	submitted *prometheus.CounterVec
	finished  *prometheus.CounterVec
	retries   prometheus.Counter
	duration  *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer, p *Processor) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		submitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platewise_tasks_submitted_total",
				Help: "Total number of tasks submitted, labeled by priority",
			},
			[]string{"priority"},
		),
		finished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platewise_tasks_finished_total",
				Help: "Total number of tasks that reached a terminal status",
			},
			[]string{"status"},
		),
		retries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "platewise_task_retries_total",
				Help: "Total number of failed attempts that were scheduled for retry",
			},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "platewise_task_duration_seconds",
				Help:    "Histogram of single attempt durations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "platewise_task_queue_depth",
			Help: "Number of tasks waiting in the queue",
		},
		func() float64 { return float64(p.queue.Len()) },
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "platewise_tasks_active",
			Help: "Number of tasks that have not reached a terminal status",
		},
		func() float64 {
			p.mu.RLock()
			defer p.mu.RUnlock()
			return float64(len(p.active))
		},
	)

	return m
}

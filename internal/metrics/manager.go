package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests         *prometheus.CounterVec
	CounterSessions         *prometheus.CounterVec
	CounterSetsCompleted    prometheus.Counter
	CounterRecords          *prometheus.CounterVec
	CounterRollupFailures   prometheus.Counter
	CounterImportedSessions prometheus.Counter

	// gauges
	GaugeRequests prometheus.Gauge

	// histograms
	HistRequestDuration prometheus.Histogram
	HistRollupDuration  prometheus.Histogram
}

func NewTestManager() *Manager {
	return NewManager("liftlog", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("liftlog", "test", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterSessions := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sessions",
		Help:      "Workout sessions by lifecycle event",
	}, []string{"event"})
	counterSetsCompleted := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sets_completed",
		Help:      "The total number of completed sets",
	})
	counterRecords := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "personal_records",
		Help:      "Personal records broken, by record type",
	}, []string{"type"})
	counterRollupFailures := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rollup_failures",
		Help:      "Failed attempts to fold a completed session into the statistics",
	})
	counterImported := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "imported_sessions",
		Help:      "Sessions created from historical imports",
	})

	gaugeRequests := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "current_requests",
		Help:      "Current number of requests served",
	})

	histReqDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			Name:      "request_duration_seconds",
			Help:      "Total duration of requests in seconds",
		},
	)
	histRollupDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			Name:      "rollup_duration_seconds",
			Help:      "Duration of folding one session in seconds",
		},
	)

	return &Manager{
		CounterRequests:         counterRequests,
		CounterSessions:         counterSessions,
		CounterSetsCompleted:    counterSetsCompleted,
		CounterRecords:          counterRecords,
		CounterRollupFailures:   counterRollupFailures,
		CounterImportedSessions: counterImported,
		GaugeRequests:           gaugeRequests,
		HistRequestDuration:     histReqDuration,
		HistRollupDuration:      histRollupDuration,
	}
}

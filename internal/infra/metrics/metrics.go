package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/conversion"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/ledger"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/missions"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/services/rewards"
)

const namespace = "leaf_ledger"

// Ledger holds the collectors for the rewards ledger. It implements
// ledger.Observer so the store reports every commit.
type Ledger struct {
	registry *prometheus.Registry

	transactions  *prometheus.CounterVec
	units         *prometheus.CounterVec
	commitFailed  prometheus.Counter
	writeDuration prometheus.Histogram
	conversions   prometheus.Counter
	missionsDone  *prometheus.CounterVec
	failures      *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

func New() *Ledger {
	m := &Ledger{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Committed ledger transactions.",
		}, []string{"currency", "kind"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_minor_units_total",
			Help:      "Absolute minor units moved by committed transactions.",
		}, []string{"currency", "kind"}),
		commitFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "write_failures_total",
			Help:      "Snapshot writes that failed and were discarded.",
		}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "write_duration_seconds",
			Help:      "Duration of successful snapshot writes.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		conversions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Committed Leaf to TreeCoin conversions.",
		}),
		missionsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missions_completed_total",
			Help:      "Mission completions by mission.",
		}, []string{"mission"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_failures_total",
			Help:      "Rejected or failed ledger operations.",
		}, []string{"op", "reason"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.transactions,
		m.units,
		m.commitFailed,
		m.writeDuration,
		m.conversions,
		m.missionsDone,
		m.failures,
		m.httpRequests,
		m.httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)

	return m
}

// Committed implements ledger.Observer.
func (m *Ledger) Committed(txns []ledger.Transaction, took time.Duration) {
	for _, t := range txns {
		labels := []string{string(t.Currency), string(t.Kind())}
		m.transactions.WithLabelValues(labels...).Inc()
		m.units.WithLabelValues(labels...).Add(float64(abs(t.Amount)))
	}

	m.writeDuration.Observe(took.Seconds())
}

// CommitFailed implements ledger.Observer.
func (m *Ledger) CommitFailed(error) {
	m.commitFailed.Inc()
}

func (m *Ledger) Converted() {
	m.conversions.Inc()
}

func (m *Ledger) MissionCompleted(missionID string) {
	m.missionsDone.WithLabelValues(missionID).Inc()
}

// Failed counts a rejected operation under a bounded reason label.
func (m *Ledger) Failed(op string, err error) {
	m.failures.WithLabelValues(op, Reason(err)).Inc()
}

func (m *Ledger) ObserveHTTP(method, route string, status int, took time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func (m *Ledger) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registered collectors.
func (m *Ledger) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Reason maps an error to a low-cardinality label value.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidCurrency),
		errors.Is(err, ledger.ErrInvalidUserID), errors.Is(err, conversion.ErrInvalidRatio),
		errors.Is(err, rewards.ErrReservedMissionRef):
		return "invalid_input"
	case errors.Is(err, ledger.ErrUnknownUser):
		return "unknown_user"
	case errors.Is(err, ledger.ErrPersistenceWriteFailed):
		return "persistence"
	case errors.Is(err, missions.ErrMissionNotFound):
		return "mission_not_found"
	case errors.Is(err, missions.ErrMissionAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, missions.ErrMissionNotEligible):
		return "not_eligible"
	default:
		return "internal"
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}

	return v
}

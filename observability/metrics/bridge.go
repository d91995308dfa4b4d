package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BridgeMetrics tracks bridge invocations, payouts and treasury health.
type BridgeMetrics struct {
	invocations     *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	payouts         *prometheus.CounterVec
	deposits        prometheus.Counter
	treasuryBalance prometheus.Gauge
	pruned          prometheus.Counter
	paused          prometheus.Gauge
}

var (
	bridgeOnce     sync.Once
	bridgeRegistry *BridgeMetrics
)

// Bridge returns the process-wide bridge metrics, registering them with the
// default Prometheus registry on first use.
func Bridge() *BridgeMetrics {
	bridgeOnce.Do(func() {
		bridgeRegistry = &BridgeMetrics{
			invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creditbridge",
				Subsystem: "bridge",
				Name:      "invocations_total",
				Help:      "Bridge invocations segmented by action and outcome.",
			}, []string{"action", "outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creditbridge",
				Subsystem: "bridge",
				Name:      "rejections_total",
				Help:      "Rejected bridge invocations segmented by action and error code.",
			}, []string{"action", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "creditbridge",
				Subsystem: "bridge",
				Name:      "invocation_duration_seconds",
				Help:      "Latency distribution for bridge invocations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"action"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creditbridge",
				Subsystem: "bridge",
				Name:      "payout_tokens_total",
				Help:      "Native tokens sent by the contract segmented by recipient role.",
			}, []string{"recipient"}),
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creditbridge",
				Subsystem: "bridge",
				Name:      "deposit_tokens_total",
				Help:      "Native tokens accepted by deposits.",
			}),
			treasuryBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "creditbridge",
				Subsystem: "bridge",
				Name:      "treasury_balance",
				Help:      "Contract native balance after the last committed invocation.",
			}),
			pruned: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creditbridge",
				Subsystem: "bridge",
				Name:      "global_records_pruned_total",
				Help:      "Global withdrawal ledger entries retired by the pruning cursor.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "creditbridge",
				Subsystem: "bridge",
				Name:      "paused",
				Help:      "1 while the bridge is paused.",
			}),
		}
		prometheus.MustRegister(
			bridgeRegistry.invocations,
			bridgeRegistry.rejections,
			bridgeRegistry.latency,
			bridgeRegistry.payouts,
			bridgeRegistry.deposits,
			bridgeRegistry.treasuryBalance,
			bridgeRegistry.pruned,
			bridgeRegistry.paused,
		)
	})
	return bridgeRegistry
}

func label(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

// ObserveInvocation records one invocation. code is empty on success.
func (m *BridgeMetrics) ObserveInvocation(action, code string, duration time.Duration) {
	if m == nil {
		return
	}
	action = label(action)
	outcome := "success"
	if code != "" {
		outcome = "rejected"
		m.rejections.WithLabelValues(action, code).Inc()
	}
	m.invocations.WithLabelValues(action, outcome).Inc()
	m.latency.WithLabelValues(action).Observe(duration.Seconds())
}

func (m *BridgeMetrics) AddPayout(recipient string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.payouts.WithLabelValues(label(recipient)).Add(amount)
}

func (m *BridgeMetrics) AddDeposit(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.deposits.Add(amount)
}

func (m *BridgeMetrics) SetTreasuryBalance(amount float64) {
	if m == nil {
		return
	}
	m.treasuryBalance.Set(amount)
}

func (m *BridgeMetrics) AddPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
}

func (m *BridgeMetrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}

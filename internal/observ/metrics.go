package observ

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_provider_requests_total",
		Help: "Provider calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	ProviderFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_provider_fallbacks_total",
		Help: "Quote requests that fell through to a lower-priority provider.",
	}, []string{"from", "to"})

	CooldownBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_cooldown_blocks_total",
		Help: "Dispatches suppressed by an active cooldown window.",
	}, []string{"tier"})

	DispatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_dispatch_attempts_total",
		Help: "Queue publish attempts by outcome.",
	}, []string{"kind", "outcome"})

	DispatchDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_dispatch_drops_total",
		Help: "Messages dropped after exhausting publish retries.",
	}, []string{"kind"})

	TicksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_ticks_skipped_total",
		Help: "Tier ticks that no-opped, by reason (market_closed, still_running).",
	}, []string{"tier", "reason"})

	TickersSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_tickers_skipped_total",
		Help: "Per-ticker skips within a tick, by cause.",
	}, []string{"tier", "cause"})

	SignalsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_signals_triggered_total",
		Help: "Signals that crossed the tier's trigger floor.",
	}, []string{"tier", "priority"})

	TickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "monitor_tick_duration_seconds",
		Help:    "Wall-clock duration of a full tier tick.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"tier"})
)

// ObserveTick records a completed tick's duration.
func ObserveTick(tier string, d time.Duration) {
	TickDuration.WithLabelValues(tier).Observe(d.Seconds())
}

// Handler serves the Prometheus /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HealthHandler serves a minimal liveness payload.
func HealthHandler(version string, started time.Time) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         "ok",
			"version":        version,
			"uptime_seconds": int(time.Since(started).Seconds()),
		})
	})
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromCollector implements Collector against real Prometheus
// instrumentation, registered under a dedicated registry so the
// /metrics endpoint carries only this server's series.
type PromCollector struct {
	commandTotal      *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	transferBytes     *prometheus.CounterVec
	transferDuration  *prometheus.HistogramVec
	connectionTotal   *prometheus.CounterVec
	authTotal         *prometheus.CounterVec
	loggedInUsers     prometheus.Gauge

	registry *prometheus.Registry
}

// NewPromCollector builds and registers all series on a fresh registry.
func NewPromCollector() *PromCollector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PromCollector{
		registry: reg,
		commandTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lanhub",
			Name:      "commands_total",
			Help:      "Count of dispatched worker commands by cmd and outcome.",
		}, []string{"cmd", "success"}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lanhub",
			Name:      "command_duration_seconds",
			Help:      "Latency of dispatched worker commands.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"cmd"}),
		transferBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lanhub",
			Name:      "transfer_bytes_total",
			Help:      "Bytes moved over file-transfer endpoints by direction.",
		}, []string{"direction"}),
		transferDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lanhub",
			Name:      "transfer_duration_seconds",
			Help:      "Duration of completed file transfers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction"}),
		connectionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lanhub",
			Name:      "connections_total",
			Help:      "Accept-time admission decisions by outcome.",
		}, []string{"accepted", "reason"}),
		authTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lanhub",
			Name:      "authentications_total",
			Help:      "Login attempts by outcome.",
		}, []string{"success"}),
		loggedInUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "lanhub",
			Name:      "logged_in_users",
			Help:      "Number of workers currently bound to an authenticated user.",
		}),
	}
}

func (p *PromCollector) RecordCommand(cmd string, success bool, duration time.Duration) {
	p.commandTotal.WithLabelValues(cmd, boolLabel(success)).Inc()
	p.commandDuration.WithLabelValues(cmd).Observe(duration.Seconds())
}

func (p *PromCollector) RecordTransfer(direction string, bytes int64, duration time.Duration) {
	p.transferBytes.WithLabelValues(direction).Add(float64(bytes))
	p.transferDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

func (p *PromCollector) RecordConnection(accepted bool, reason string) {
	p.connectionTotal.WithLabelValues(boolLabel(accepted), reason).Inc()
}

func (p *PromCollector) RecordAuthentication(success bool, userID string) {
	p.authTotal.WithLabelValues(boolLabel(success)).Inc()
}

func (p *PromCollector) RecordLoggedInUsers(n int) {
	p.loggedInUsers.Set(float64(n))
}

// Handler returns the HTTP handler to mount at /metrics.
func (p *PromCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

var _ Collector = (*PromCollector)(nil)

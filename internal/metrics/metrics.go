// Package metrics defines the optional metrics-collection seam used by
// internal/worker and internal/master, grounded on the
// server.MetricsCollector interface in the teacher (server/metrics.go),
// and a Prometheus-backed implementation of it.
package metrics

import "time"

// Collector is the metrics-collection seam. All methods must be
// non-blocking and safe to call with a nil receiver check already done by
// callers — mirrors the teacher's MetricsCollector contract.
type Collector interface {
	// RecordCommand records one dispatched command (cmd name, success,
	// how long the handler took).
	RecordCommand(cmd string, success bool, duration time.Duration)

	// RecordTransfer records one completed file transfer.
	RecordTransfer(direction string, bytes int64, duration time.Duration)

	// RecordConnection records an accept-time admission decision.
	RecordConnection(accepted bool, reason string)

	// RecordAuthentication records one login attempt.
	RecordAuthentication(success bool, userID string)

	// RecordLoggedInUsers reports the current count of authenticated
	// workers, sampled once per Master tick.
	RecordLoggedInUsers(n int)
}

// NopCollector discards everything; used when metrics are disabled.
type NopCollector struct{}

func (NopCollector) RecordCommand(string, bool, time.Duration)    {}
func (NopCollector) RecordTransfer(string, int64, time.Duration)  {}
func (NopCollector) RecordConnection(bool, string)                {}
func (NopCollector) RecordAuthentication(bool, string)            {}
func (NopCollector) RecordLoggedInUsers(int)                      {}

var _ Collector = NopCollector{}

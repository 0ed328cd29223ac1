package api

import (
	"sync/atomic"
	"time"
)

// Metrics collects in-memory server metrics using atomic counters.
type Metrics struct {
	startTime      time.Time
	requests       atomic.Int64
	serverErrors   atomic.Int64
	clientErrors   atomic.Int64
	eventsAccepted atomic.Int64
	eventsRejected atomic.Int64
	rebuildRuns    atomic.Int64
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Requests       int64   `json:"requests"`
	ServerErrors   int64   `json:"server_errors"`
	ClientErrors   int64   `json:"client_errors"`
	EventsAccepted int64   `json:"events_accepted"`
	EventsRejected int64   `json:"events_rejected"`
	RebuildRuns    int64   `json:"rebuild_runs"`
}

// NewMetrics creates a new Metrics instance with the current time as start.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordRequest increments the total request counter.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordError increments the server error (5xx) counter.
func (m *Metrics) RecordError() {
	m.serverErrors.Add(1)
}

// RecordClientError increments the client error (4xx) counter.
func (m *Metrics) RecordClientError() {
	m.clientErrors.Add(1)
}

// RecordEventsAccepted adds n to the accepted events counter.
func (m *Metrics) RecordEventsAccepted(n int64) {
	m.eventsAccepted.Add(n)
}

// RecordEventsRejected adds n to the rejected events counter.
func (m *Metrics) RecordEventsRejected(n int64) {
	m.eventsRejected.Add(n)
}

// RecordRebuild increments the projection rebuild counter.
func (m *Metrics) RecordRebuild() {
	m.rebuildRuns.Add(1)
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:  time.Since(m.startTime).Seconds(),
		Requests:       m.requests.Load(),
		ServerErrors:   m.serverErrors.Load(),
		ClientErrors:   m.clientErrors.Load(),
		EventsAccepted: m.eventsAccepted.Load(),
		EventsRejected: m.eventsRejected.Load(),
		RebuildRuns:    m.rebuildRuns.Load(),
	}
}

package errors

import (
	"sync"

	"triage/pkg/metrics"
)

const DefaultRingLogCapacity = 1000

// EventLogger is the subset of the service logger the ring log writes to.
type EventLogger interface {
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// RingLog keeps the most recent classified errors in memory. Once full, each
// new entry evicts the oldest.
type RingLog struct {
	mu      sync.Mutex
	entries []Details
	next    int
	size    int
	logger  EventLogger
}

func NewRingLog(capacity int, log EventLogger) *RingLog {
	if capacity <= 0 {
		capacity = DefaultRingLogCapacity
	}
	return &RingLog{
		entries: make([]Details, capacity),
		logger:  log,
	}
}

// Track classifies err, records it and returns the details.
func (r *RingLog) Track(err error, ctx Context) Details {
	d := Classify(err, ctx)
	r.Record(d)
	return d
}

func (r *RingLog) Record(d Details) {
	r.mu.Lock()
	r.entries[r.next] = d
	r.next = (r.next + 1) % len(r.entries)
	if r.size < len(r.entries) {
		r.size++
	}
	r.mu.Unlock()

	metrics.ErrorsClassifiedTotal.WithLabelValues(string(d.Type), string(d.Severity)).Inc()
	r.emit(d)
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns everything held.
func (r *RingLog) Recent(limit int) []Details {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]Details, 0, limit)
	idx := r.next
	for i := 0; i < limit; i++ {
		idx = (idx - 1 + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out
}

func (r *RingLog) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *RingLog) Capacity() int {
	return len(r.entries)
}

// emit must never take the caller down with it.
func (r *RingLog) emit(d Details) {
	if r.logger == nil {
		return
	}
	defer func() { _ = recover() }()

	fields := []interface{}{
		"error_type", d.Type,
		"severity", d.Severity,
		"error", d.Message,
		"retryable", d.Retryable,
		"fallback_available", d.FallbackAvailable,
	}
	if d.Context.OwnerID != "" {
		fields = append(fields, "owner_id", d.Context.OwnerID)
	}
	if d.Context.MessageID != "" {
		fields = append(fields, "message_id", d.Context.MessageID)
	}
	if d.Context.Component != "" {
		fields = append(fields, "component", d.Context.Component)
	}
	if d.Context.Action != "" {
		fields = append(fields, "action", d.Context.Action)
	}

	switch d.Severity {
	case SeverityCritical, SeverityHigh:
		r.logger.Errorw("Pipeline error", fields...)
	case SeverityMedium:
		r.logger.Warnw("Pipeline error", fields...)
	default:
		r.logger.Infow("Pipeline error", fields...)
	}
}

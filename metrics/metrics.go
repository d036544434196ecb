// Package metrics counts the requests and items handled by a bulk operation
// (version purges, batch writes) and renders the final report.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// Metrics collects counters for a single operation.
// It uses atomic operations for thread-safe counter updates.
type Metrics struct {
	operation string
	startTime time.Time

	requests int64 // Bulk requests issued
	items    int64 // Items carried by successful requests
	retries  int64 // Requests resubmitted for unprocessed items
	errors   int64 // Failed requests
}

// NewMetrics creates a new Metrics instance for the named operation
func NewMetrics(operation string) *Metrics {
	return &Metrics{
		operation: operation,
		startTime: time.Now(),
	}
}

// RecordRequest records one successful request carrying n items
func (m *Metrics) RecordRequest(n int) {
	atomic.AddInt64(&m.requests, 1)
	atomic.AddInt64(&m.items, int64(n))
}

// RecordRetry increments the retried requests counter
func (m *Metrics) RecordRetry() {
	atomic.AddInt64(&m.retries, 1)
}

// RecordError increments the errors counter
func (m *Metrics) RecordError() {
	atomic.AddInt64(&m.errors, 1)
}

// Items returns the number of items recorded so far
func (m *Metrics) Items() int64 {
	return atomic.LoadInt64(&m.items)
}

// Report is the final summary of an operation.
type Report struct {
	Operation  string        `json:"operation"`
	StartTime  time.Time     `json:"startTime"`
	EndTime    time.Time     `json:"endTime"`
	Requests   int64         `json:"requests"`
	Items      int64         `json:"items"`
	Retries    int64         `json:"retries"`
	Errors     int64         `json:"errors"`
	Duration   time.Duration `json:"duration"`
	Throughput float64       `json:"throughput"` // Items per second
}

// GenerateReport snapshots the counters into a Report.
func (m *Metrics) GenerateReport() Report {
	endTime := time.Now()
	duration := endTime.Sub(m.startTime)
	items := atomic.LoadInt64(&m.items)

	var throughput float64
	if duration > 0 {
		throughput = float64(items) / duration.Seconds()
	}

	return Report{
		Operation:  m.operation,
		StartTime:  m.startTime,
		EndTime:    endTime,
		Requests:   atomic.LoadInt64(&m.requests),
		Items:      items,
		Retries:    atomic.LoadInt64(&m.retries),
		Errors:     atomic.LoadInt64(&m.errors),
		Duration:   duration,
		Throughput: throughput,
	}
}

// MarshalJSON renders Duration as text instead of nanoseconds.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration string `json:"duration"`
	}{
		Alias:    Alias(r),
		Duration: r.Duration.String(),
	})
}

// String returns a human-readable summary for console output.
func (r Report) String() string {
	return fmt.Sprintf(
		"%s completed in %s\n"+
			"Requests: %d\n"+
			"Items: %d\n"+
			"Retries: %d\n"+
			"Errors: %d\n"+
			"Throughput: %.2f items/sec",
		r.Operation,
		r.Duration,
		r.Requests,
		r.Items,
		r.Retries,
		r.Errors,
		r.Throughput,
	)
}

package metrics

import (
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func TestMetricsHappyPath(t *testing.T) {
	m := NewMetrics("purge")

	m.RecordRequest(1000)
	m.RecordRequest(500)
	m.RecordRetry()
	m.RecordError()

	// Simulate some processing time
	time.Sleep(50 * time.Millisecond)

	report := m.GenerateReport()

	if report.Operation != "purge" {
		t.Errorf("expected operation 'purge', got %q", report.Operation)
	}
	if report.Requests != 2 {
		t.Errorf("expected 2 requests, got %d", report.Requests)
	}
	if report.Items != 1500 {
		t.Errorf("expected 1500 items, got %d", report.Items)
	}
	if m.Items() != 1500 {
		t.Errorf("expected Items() 1500, got %d", m.Items())
	}
	if report.Retries != 1 || report.Errors != 1 {
		t.Errorf("expected 1 retry and 1 error, got %d and %d", report.Retries, report.Errors)
	}
	if report.Duration < 50*time.Millisecond {
		t.Errorf("expected duration >= 50ms, got %v", report.Duration)
	}
	if report.Throughput <= 0 {
		t.Errorf("expected positive throughput, got %f", report.Throughput)
	}
	if !strings.Contains(report.String(), "Items: 1500") {
		t.Errorf("unexpected string form: %s", report.String())
	}
}

func TestReportJSONDuration(t *testing.T) {
	r := Report{Operation: "purge", Items: 3, Duration: 1500 * time.Millisecond}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("failed to marshal report: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal report: %v", err)
	}
	if decoded["duration"] != "1.5s" {
		t.Errorf("expected duration '1.5s', got %v", decoded["duration"])
	}
	if decoded["items"] != float64(3) {
		t.Errorf("expected items 3, got %v", decoded["items"])
	}
}

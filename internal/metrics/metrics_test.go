package metrics

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestSink(t *testing.T) *Sink {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLogMetricAndAllRecent(t *testing.T) {
	s := openTestSink(t)
	if err := s.LogMetric("focus", "deep-work-minutes", 45); err != nil {
		t.Fatalf("LogMetric: %v", err)
	}
	if err := s.LogMetric("focus", "deep-work-minutes", 30); err != nil {
		t.Fatalf("LogMetric: %v", err)
	}
	samples, err := s.AllRecent(10)
	if err != nil {
		t.Fatalf("AllRecent: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if samples[0].RecordedAt < samples[1].RecordedAt {
		t.Fatal("expected newest-first ordering")
	}
}

func TestRecentSamplesFiltersByCategoryAndName(t *testing.T) {
	s := openTestSink(t)
	if err := s.LogMetric("focus", "minutes", 10); err != nil {
		t.Fatalf("LogMetric: %v", err)
	}
	if err := s.LogMetric("sleep", "minutes", 480); err != nil {
		t.Fatalf("LogMetric: %v", err)
	}
	samples, err := s.RecentSamples("sleep", "minutes", 10)
	if err != nil {
		t.Fatalf("RecentSamples: %v", err)
	}
	if len(samples) != 1 || samples[0].Category != "sleep" {
		t.Fatalf("got %+v", samples)
	}
}

func TestRecordFireAndRetentionSweep(t *testing.T) {
	s := openTestSink(t)
	s.RecordFire("task/default/write-report", "deadline", 1000, 2000, nil)
	s.RecordFire("task/default/review", "deadline", 1000, 2000, errors.New("hook failed"))

	if err := s.LogMetric("focus", "minutes", 1); err != nil {
		t.Fatalf("LogMetric: %v", err)
	}
	if err := s.Retention(0); err != nil {
		t.Fatalf("Retention: %v", err)
	}
	samples, err := s.AllRecent(10)
	if err != nil {
		t.Fatalf("AllRecent: %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("expected retention to trim every sample with a zero window, got %d", len(samples))
	}
}

func TestRetentionKeepsRecentRows(t *testing.T) {
	s := openTestSink(t)
	if err := s.LogMetric("focus", "minutes", 1); err != nil {
		t.Fatalf("LogMetric: %v", err)
	}
	if err := s.Retention(time.Hour); err != nil {
		t.Fatalf("Retention: %v", err)
	}
	samples, err := s.AllRecent(10)
	if err != nil {
		t.Fatalf("AllRecent: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected the fresh sample to survive a 1h retention window, got %d", len(samples))
	}
}

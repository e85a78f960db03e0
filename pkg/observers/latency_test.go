package observers

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/metrics"
)

func ev(name, turnID string, at time.Time) metrics.MetricsEvent {
	return metrics.MetricsEvent{
		Name: name,
		Time: at,
		Tags: map[string]string{"turn_id": turnID, "stream_id": "s1"},
	}
}

func TestLatencyObserverLogsCompletedTurn(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	o := NewLatencyObserver(log)

	base := time.Now()
	o.RecordEvent(ev("turn_started", "t1", base))
	o.RecordEvent(ev("turn_dispatched", "t1", base.Add(900*time.Millisecond)))
	o.RecordEvent(ev("llm_done", "t1", base.Add(1500*time.Millisecond)))
	o.RecordEvent(ev("playback_started", "t1", base.Add(1700*time.Millisecond)))
	o.RecordEvent(ev("turn_completed", "t1", base.Add(4*time.Second)))

	out := buf.String()
	if !strings.Contains(out, "turn_latency") {
		t.Fatalf("expected latency line, got %q", out)
	}
	if !strings.Contains(out, "listen_ms=900") {
		t.Fatalf("expected listen_ms=900, got %q", out)
	}
	if !strings.Contains(out, "llm_ms=600") {
		t.Fatalf("expected llm_ms=600, got %q", out)
	}
}

func TestLatencyObserverDropsInterruptedTurn(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	o := NewLatencyObserver(log)

	base := time.Now()
	o.RecordEvent(ev("turn_started", "t1", base))
	o.RecordEvent(ev("interrupt", "t1", base.Add(time.Second)))
	o.RecordEvent(ev("turn_completed", "t1", base.Add(2*time.Second)))

	// The trace was deleted on interrupt; completion of an unknown turn
	// still logs, but with unknown segments.
	if strings.Contains(buf.String(), "listen_ms=1000") {
		t.Fatalf("interrupted trace should have been dropped: %q", buf.String())
	}
}

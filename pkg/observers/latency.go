package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/metrics"
)

// LatencyObserver stitches the orchestrator's per-turn metric events into
// one latency line per completed turn. Turns that never complete
// (interrupted, failed, starved) are dropped without a line; their
// terminal event is already logged elsewhere.
type LatencyObserver struct {
	mu    sync.Mutex
	turns map[string]*turnTrace
	log   *slog.Logger
}

type turnTrace struct {
	started    time.Time
	dispatched time.Time
	llmDone    time.Time
	speaking   time.Time
	streamID   string
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		turns: make(map[string]*turnTrace),
		log:   log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	turnID := ""
	if ev.Tags != nil {
		turnID = ev.Tags["turn_id"]
	}
	if turnID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.turns[turnID]
	if t == nil {
		t = &turnTrace{}
		o.turns[turnID] = t
	}
	if t.streamID == "" && ev.Tags != nil {
		t.streamID = ev.Tags["stream_id"]
	}
	switch ev.Name {
	case "turn_started":
		if t.started.IsZero() {
			t.started = ev.Time
		}
	case "turn_dispatched":
		if t.dispatched.IsZero() {
			t.dispatched = ev.Time
		}
	case "llm_done":
		if t.llmDone.IsZero() {
			t.llmDone = ev.Time
		}
	case "playback_started":
		if t.speaking.IsZero() {
			t.speaking = ev.Time
		}
	case "turn_completed":
		o.logTurnLocked(turnID, t, ev.Time)
		delete(o.turns, turnID)
	case "turn_failed", "interrupt", "turn_starved":
		delete(o.turns, turnID)
	}
}

func (o *LatencyObserver) logTurnLocked(turnID string, t *turnTrace, done time.Time) {
	listenMs := durationMs(t.started, t.dispatched)
	llmMs := durationMs(t.dispatched, t.llmDone)
	speakStartMs := durationMs(t.llmDone, t.speaking)
	totalMs := durationMs(t.started, done)
	o.log.Info("turn_latency",
		"stream_id", t.streamID,
		"turn_id", turnID,
		"listen_ms", listenMs,
		"llm_ms", llmMs,
		"speak_start_ms", speakStartMs,
		"total_ms", totalMs,
	)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}

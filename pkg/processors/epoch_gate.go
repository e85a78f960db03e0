package processors

import (
	"log/slog"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/adapters/recognizer"
	"github.com/buildngrowsv/bubblevoice/pkg/frames"
	"github.com/buildngrowsv/bubblevoice/pkg/metrics"
)

// EpochGate drops transcripts tagged with a superseded session epoch.
// After a session reset the old stream can still flush text it was holding;
// without the gate that text would bleed into the next turn. Stale drops
// are expected behavior, not errors, so they log at debug level only.
type EpochGate struct {
	src recognizer.EpochSource
	obs metrics.Observer
	log *slog.Logger
}

func NewEpochGate(src recognizer.EpochSource) *EpochGate {
	return &EpochGate{src: src, log: slog.Default()}
}

func (g *EpochGate) Name() string { return "epoch_gate" }

func (g *EpochGate) SetObserver(obs metrics.Observer) { g.obs = obs }

func (g *EpochGate) Process(f frames.Frame) ([]frames.Frame, error) {
	tf, ok := f.(frames.TranscriptFrame)
	if !ok {
		return []frames.Frame{f}, nil
	}
	live := g.src.Epoch()
	if tf.Epoch() >= live {
		return []frames.Frame{f}, nil
	}
	g.log.Debug("stale_event_dropped",
		"stream_id", tf.Meta()[frames.MetaStreamID],
		"event_epoch", tf.Epoch(),
		"live_epoch", live)
	if g.obs != nil {
		g.obs.RecordEvent(metrics.MetricsEvent{
			Name:  "stale_event_dropped",
			Time:  time.Now(),
			Value: 1,
			Tags:  map[string]string{"stream_id": tf.Meta()[frames.MetaStreamID]},
		})
	}
	return nil, nil
}

package processors

import (
	"sync"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/frames"
)

// SystemTurnActivity is emitted once per raw transcript so timer liveness
// survives coalescing: the turn owner restarts its timers on every
// activity signal even though only one transcript per burst flows through.
const SystemTurnActivity = "turn_activity"

// Normalizer coalesces bursts of near-simultaneous transcription updates.
// The recognition engine emits whole-batch updates, 5-15 events inside a
// millisecond; forwarding each one downstream would arm and cancel the
// dispatch timers dozens of times per burst. Events closer together than
// the window form one burst and only the last is forwarded, when the burst
// closes. Pure duplicates are dropped outright.
type Normalizer struct {
	mu     sync.Mutex
	window time.Duration
	emit   func(frames.Frame)
	bursts map[string]*burst
}

type burst struct {
	gen   uint64
	last  frames.TranscriptFrame
	timer *time.Timer
}

// NewNormalizer creates a burst coalescer. emit delivers the surviving
// event of each burst once the window has elapsed without a newer event;
// it is invoked from a timer goroutine and must be safe to call
// concurrently with Process.
func NewNormalizer(window time.Duration, emit func(frames.Frame)) *Normalizer {
	if window <= 0 {
		window = 50 * time.Millisecond
	}
	return &Normalizer{
		window: window,
		emit:   emit,
		bursts: make(map[string]*burst),
	}
}

func (n *Normalizer) Name() string { return "normalizer" }

func (n *Normalizer) Process(f frames.Frame) ([]frames.Frame, error) {
	tf, ok := f.(frames.TranscriptFrame)
	if !ok {
		return []frames.Frame{f}, nil
	}
	streamID := tf.Meta()[frames.MetaStreamID]
	suppressed := tf.Meta()[frames.MetaEchoSuppressed] == "true"

	n.mu.Lock()
	b := n.bursts[streamID]
	if b == nil {
		b = &burst{}
		n.bursts[streamID] = b
	}
	duplicate := b.timer != nil && b.last.Text() == tf.Text() && b.last.IsFinal() == tf.IsFinal()
	if !duplicate {
		b.last = tf
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	b.timer = time.AfterFunc(n.window, func() {
		n.flush(streamID, gen)
	})
	n.mu.Unlock()

	if suppressed {
		// Echo-tagged events keep the burst alive but do not count as
		// turn activity.
		return nil, nil
	}
	activity := frames.NewSystemFrame(streamID, tf.PTS(), SystemTurnActivity, nil)
	return []frames.Frame{activity}, nil
}

func (n *Normalizer) flush(streamID string, gen uint64) {
	n.mu.Lock()
	b := n.bursts[streamID]
	if b == nil || b.gen != gen {
		n.mu.Unlock()
		return
	}
	out := b.last
	delete(n.bursts, streamID)
	emit := n.emit
	n.mu.Unlock()
	if emit != nil {
		emit(out)
	}
}

// Close stops all pending burst timers without flushing.
func (n *Normalizer) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, b := range n.bursts {
		if b.timer != nil {
			b.timer.Stop()
		}
		delete(n.bursts, id)
	}
}

package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/adapters/playback"
	"github.com/buildngrowsv/bubblevoice/pkg/frames"
)

type PlayerConfig struct {
	StreamID string
	// PlayDuration is how long a Speak "plays" before the completed event
	// is emitted. Zero completes immediately.
	PlayDuration time.Duration
}

// Player simulates a playback backend. Speak emits playback_started right
// away and playback_completed after PlayDuration unless cancelled first.
type Player struct {
	cfg     PlayerConfig
	out     chan frames.Frame
	mu      sync.Mutex
	started bool
	playGen uint64
	spoken  []string
	cancels int
}

func NewPlayer(cfg PlayerConfig) *Player {
	return &Player{cfg: cfg, out: make(chan frames.Frame, 16)}
}

func (p *Player) Name() string { return "mock_player" }

func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	return nil
}

// Close stops the player. The events channel is left open so a deferred
// completion emit can never hit a closed channel; the liveness check
// below keeps it from firing after Close, and receivers stop via their
// own context.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	p.playGen++
	return nil
}

func (p *Player) Speak(text string) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return errors.New("not started")
	}
	p.spoken = append(p.spoken, text)
	p.playGen++
	gen := p.playGen
	out := p.out
	p.mu.Unlock()

	out <- p.control(frames.ControlPlaybackStarted)
	go func() {
		if p.cfg.PlayDuration > 0 {
			time.Sleep(p.cfg.PlayDuration)
		}
		p.mu.Lock()
		live := p.started && p.playGen == gen
		p.mu.Unlock()
		if live {
			out <- p.control(frames.ControlPlaybackCompleted)
		}
	}()
	return nil
}

func (p *Player) Cancel() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels++
	// supersede any pending completion
	p.playGen++
	return nil
}

func (p *Player) Events() <-chan frames.Frame { return p.out }

// Spoken returns every text handed to Speak, in order.
func (p *Player) Spoken() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.spoken...)
}

// Cancels reports how many times playback was cancelled.
func (p *Player) Cancels() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancels
}

func (p *Player) control(code frames.ControlCode) frames.ControlFrame {
	return frames.NewControlFrame(p.cfg.StreamID, time.Now().UnixNano(), code, map[string]string{
		frames.MetaSource: "playback",
	})
}

var _ playback.Player = (*Player)(nil)

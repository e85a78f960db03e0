package timers

import (
	"sync"
	"time"
)

// Kind names one of the cascade's restartable timers.
type Kind string

const (
	// KindSilenceConfirm guards against premature dispatch after the
	// dispatch timer has fired once without new input.
	KindSilenceConfirm Kind = "silence_confirm"
	// KindDispatch ends the listening window and hands the turn to the
	// language model.
	KindDispatch Kind = "llm_dispatch"
	// KindSpeechStart and KindPlaybackStart bound worst-case collaborator
	// latency; they act as liveness watchdogs, not turn-boundary inputs.
	KindSpeechStart   Kind = "speech_start"
	KindPlaybackStart Kind = "playback_start"
)

// Fire is delivered to the cascade owner when a timer expires. Generation
// identifies the schedule the fire belongs to; a fire whose generation no
// longer matches the live one must be ignored.
type Fire struct {
	Kind        Kind
	Generation  uint64
	Delay       time.Duration
	ScheduledAt time.Time
}

// Config holds per-kind base delays and the word-count tiers. Short
// utterances get extra grace because recognizers are systematically slower
// to settle on them.
type Config struct {
	SilenceConfirm    time.Duration
	DispatchBase      time.Duration
	SpeechStartBase   time.Duration
	PlaybackStartBase time.Duration

	ShortWordsMax  int
	MediumWordsMax int
	ShortDelta     time.Duration
	MediumDelta    time.Duration
}

func (c Config) withDefaults() Config {
	if c.SilenceConfirm <= 0 {
		c.SilenceConfirm = 800 * time.Millisecond
	}
	if c.DispatchBase <= 0 {
		c.DispatchBase = 1200 * time.Millisecond
	}
	if c.SpeechStartBase <= 0 {
		c.SpeechStartBase = 2200 * time.Millisecond
	}
	if c.PlaybackStartBase <= 0 {
		c.PlaybackStartBase = 3200 * time.Millisecond
	}
	if c.ShortWordsMax <= 0 {
		c.ShortWordsMax = 3
	}
	if c.MediumWordsMax <= 0 {
		c.MediumWordsMax = 6
	}
	if c.ShortDelta <= 0 {
		c.ShortDelta = 600 * time.Millisecond
	}
	if c.MediumDelta <= 0 {
		c.MediumDelta = 300 * time.Millisecond
	}
	return c
}

// DelayFor returns the effective delay for a timer kind given the live
// turn's word count. The silence-confirmation window is fixed.
func (c Config) DelayFor(kind Kind, wordCount int) time.Duration {
	var base time.Duration
	switch kind {
	case KindSilenceConfirm:
		return c.SilenceConfirm
	case KindDispatch:
		base = c.DispatchBase
	case KindSpeechStart:
		base = c.SpeechStartBase
	case KindPlaybackStart:
		base = c.PlaybackStartBase
	default:
		return 0
	}
	switch {
	case wordCount <= c.ShortWordsMax:
		base += c.ShortDelta
	case wordCount <= c.MediumWordsMax:
		base += c.MediumDelta
	}
	return base
}

type handle struct {
	generation uint64
	timer      *time.Timer
	at         time.Time
}

// Cascade owns one restartable timer per kind. Restarting atomically
// supersedes the previous handle: the generation counter advances and a
// late fire from the old schedule is discarded both here and by the owner
// comparing Fire.Generation against Generation(kind).
type Cascade struct {
	mu      sync.Mutex
	cfg     Config
	fire    func(Fire)
	handles map[Kind]*handle
}

func New(cfg Config, fire func(Fire)) *Cascade {
	return &Cascade{
		cfg:     cfg.withDefaults(),
		fire:    fire,
		handles: make(map[Kind]*handle),
	}
}

// Config returns the effective configuration after defaulting.
func (c *Cascade) Config() Config {
	return c.cfg
}

// Restart cancels any live handle for kind and schedules a fresh one using
// the word-count-adjusted delay.
func (c *Cascade) Restart(kind Kind, wordCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.handles[kind]
	if h == nil {
		h = &handle{}
		c.handles[kind] = h
	}
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.generation++
	gen := h.generation
	d := c.cfg.DelayFor(kind, wordCount)
	h.at = time.Now().Add(d)
	scheduled := time.Now()
	h.timer = time.AfterFunc(d, func() {
		c.mu.Lock()
		cur := c.handles[kind]
		live := cur != nil && cur.generation == gen && cur.timer != nil
		if live {
			// A fire is consumed exactly once; firing clears the handle.
			cur.timer = nil
		}
		fire := c.fire
		c.mu.Unlock()
		if live && fire != nil {
			fire(Fire{Kind: kind, Generation: gen, Delay: d, ScheduledAt: scheduled})
		}
	})
}

// Cancel stops the live handle for kind, if any. Cancelling a timer that
// has already fired is a no-op beyond advancing the generation, which also
// invalidates any fire still sitting in the owner's inbox.
func (c *Cascade) Cancel(kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.handles[kind]
	if h == nil {
		return
	}
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.generation++
}

// CancelAll stops every live handle.
func (c *Cascade) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.handles {
		if h.timer != nil {
			h.timer.Stop()
			h.timer = nil
		}
		h.generation++
	}
}

// Generation returns the live generation for kind. A Fire is valid only
// while its generation matches this value.
func (c *Cascade) Generation(kind Kind) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h := c.handles[kind]; h != nil {
		return h.generation
	}
	return 0
}

// Live reports whether a handle for kind is scheduled and not yet fired.
func (c *Cascade) Live(kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.handles[kind]
	return h != nil && h.timer != nil
}

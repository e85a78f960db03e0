package turn

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/adapters/playback"
	"github.com/buildngrowsv/bubblevoice/pkg/errorsx"
	"github.com/buildngrowsv/bubblevoice/pkg/frames"
	"github.com/buildngrowsv/bubblevoice/pkg/llm"
	"github.com/buildngrowsv/bubblevoice/pkg/metrics"
	"github.com/buildngrowsv/bubblevoice/pkg/redact"
	"github.com/buildngrowsv/bubblevoice/pkg/respcache"
	"github.com/buildngrowsv/bubblevoice/pkg/session"
	"github.com/buildngrowsv/bubblevoice/pkg/timers"
)

// systemTurnActivity mirrors the normalizer's per-event liveness signal.
const systemTurnActivity = "turn_activity"

type Config struct {
	StreamID          string
	Timers            timers.Config
	InterruptMinWords int
	CacheGrace        time.Duration
	InboxBuffer       int
}

func (c Config) withDefaults() Config {
	if c.InboxBuffer <= 0 {
		c.InboxBuffer = 256
	}
	return c
}

// Collaborators are the external parties the orchestrator drives. All of
// them deliver their results back through the orchestrator's inbox; none
// of them touch turn state directly.
type Collaborators struct {
	LLM      llm.Adapter
	Player   playback.Player
	Sessions *session.Coordinator
}

type message struct {
	frame  frames.Frame
	fire   *timers.Fire
	result *dispatchResult
}

type dispatchResult struct {
	seq    uint64
	turnID string
	text   string
	cached bool
	err    error
}

// Orchestrator is the single logical owner of turn state. Recognition
// events, playback events, language-model completions and timer fires all
// funnel into one inbox consumed by one goroutine; cancel/restart of
// timers is not commutative with concurrent event delivery, so this
// serialization is the only safe design.
type Orchestrator struct {
	cfg      Config
	sm       *stateMachine
	cascade  *timers.Cascade
	monitor  *InterruptMonitor
	cache    *respcache.Cache
	sessions *session.Coordinator
	llm      llm.Adapter
	player   playback.Player
	obs      metrics.Observer
	log      *slog.Logger

	inbox   chan message
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	started atomic.Bool

	// Owned exclusively by the decision loop.
	turn           *Turn
	dispatchSeq    uint64
	dispatchCancel context.CancelFunc
}

func NewOrchestrator(cfg Config, collab Collaborators) *Orchestrator {
	cfg = cfg.withDefaults()
	o := &Orchestrator{
		cfg:      cfg,
		sm:       newStateMachine(),
		monitor:  NewInterruptMonitor(cfg.InterruptMinWords),
		cache:    respcache.New(cfg.CacheGrace),
		sessions: collab.Sessions,
		llm:      collab.LLM,
		player:   collab.Player,
		log:      slog.Default(),
		inbox:    make(chan message, cfg.InboxBuffer),
		done:     make(chan struct{}),
	}
	// The lifetime context exists from construction so Submit is safe to
	// call before Start; frames posted early wait in the inbox.
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.cascade = timers.New(cfg.Timers, o.postFire)
	return o
}

func (o *Orchestrator) SetObserver(obs metrics.Observer) { o.obs = obs }

func (o *Orchestrator) SetLogger(log *slog.Logger) {
	if log != nil {
		o.log = log
	}
}

// AddListener registers a listener for turn state changes.
func (o *Orchestrator) AddListener(l StateListener) { o.sm.AddListener(l) }

// State returns the current turn state.
func (o *Orchestrator) State() State { return o.sm.State() }

// Cache exposes the response cache. Test hook.
func (o *Orchestrator) Cache() *respcache.Cache { return o.cache }

func (o *Orchestrator) Start(ctx context.Context) error {
	if o.started.Swap(true) {
		return errors.New("orchestrator already started")
	}
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				o.cancel()
			case <-o.ctx.Done():
			}
		}()
	}
	go o.run()
	return nil
}

func (o *Orchestrator) Stop() error {
	o.once.Do(o.cancel)
	if o.started.Load() {
		<-o.done
	}
	return nil
}

// Submit funnels a frame into the decision path. Frames for the same turn
// are processed in the order submitted.
func (o *Orchestrator) Submit(f frames.Frame) {
	o.post(message{frame: f})
}

func (o *Orchestrator) postFire(f timers.Fire) {
	o.post(message{fire: &f})
}

func (o *Orchestrator) post(m message) {
	select {
	case o.inbox <- m:
	case <-o.ctx.Done():
	}
}

func (o *Orchestrator) run() {
	defer close(o.done)
	for {
		select {
		case <-o.ctx.Done():
			o.cascade.CancelAll()
			o.abortDispatch()
			return
		case m := <-o.inbox:
			o.handle(m)
		}
	}
}

func (o *Orchestrator) handle(m message) {
	switch {
	case m.fire != nil:
		o.handleFire(*m.fire)
	case m.result != nil:
		o.handleResult(m.result)
	case m.frame != nil:
		switch f := m.frame.(type) {
		case frames.TranscriptFrame:
			o.handleTranscript(f)
		case frames.ControlFrame:
			o.handleControl(f)
		case frames.SystemFrame:
			o.handleSystem(f)
		}
	}
}

func (o *Orchestrator) handleTranscript(f frames.TranscriptFrame) {
	if o.sessions != nil && o.sessions.Stale(f.Epoch()) {
		return
	}
	st := o.sm.State()
	if st.Busy() {
		if o.monitor.ShouldInterrupt(st, f) {
			o.interrupt(f)
		}
		return
	}
	if f.Meta()[frames.MetaEchoSuppressed] == "true" {
		// Self-echo never starts or extends a turn.
		return
	}

	switch st {
	case StateIdle:
		o.turn = newTurn(f)
		if err := o.sm.Transition(StateListening, "first event"); err != nil {
			o.log.Warn("turn_transition_error", "error", err.Error())
			return
		}
		o.record("turn_started", nil)
		o.restartTimers()
	case StateListening:
		o.turn.absorb(f)
		o.restartTimers()
	case StateAwaitingConfirm:
		// The model briefly settled on a result but the user kept
		// talking; treat the pending dispatch as a false alarm.
		if err := o.sm.Transition(StateListening, "silence confirm false alarm"); err != nil {
			o.log.Warn("turn_transition_error", "error", err.Error())
			return
		}
		o.cascade.Cancel(timers.KindSilenceConfirm)
		o.turn.absorb(f)
		o.restartTimers()
	}
}

func (o *Orchestrator) handleSystem(f frames.SystemFrame) {
	if f.Name() != systemTurnActivity {
		return
	}
	switch o.sm.State() {
	case StateListening:
		o.restartTimers()
	case StateAwaitingConfirm:
		// Raw activity inside the confirmation window wins over the
		// timer: the burst's coalesced event is still in flight but the
		// user is clearly not done.
		if err := o.sm.Transition(StateListening, "activity during confirm window"); err != nil {
			return
		}
		o.cascade.Cancel(timers.KindSilenceConfirm)
		o.restartTimers()
	}
}

func (o *Orchestrator) handleControl(f frames.ControlFrame) {
	switch f.Code() {
	case frames.ControlPlaybackStarted:
		o.cascade.Cancel(timers.KindPlaybackStart)
		o.record("playback_started", nil)
	case frames.ControlPlaybackCompleted:
		if o.sm.State() == StateSpeaking {
			o.finishTurn()
		}
	case frames.ControlPlaybackError:
		if o.sm.State().Busy() {
			o.failTurn(errorsx.ReasonPlaybackFailed)
		}
	case frames.ControlSessionStarted, frames.ControlSessionEnded:
		o.log.Debug("session_signal",
			"stream_id", o.cfg.StreamID,
			"code", string(f.Code()))
	}
}

func (o *Orchestrator) handleFire(fire timers.Fire) {
	if o.cascade.Generation(fire.Kind) != fire.Generation {
		// A faster-arriving event already superseded this schedule.
		o.log.Debug("stale_timer_fire",
			"kind", string(fire.Kind),
			"generation", fire.Generation)
		return
	}
	st := o.sm.State()
	switch fire.Kind {
	case timers.KindDispatch:
		if st != StateListening || o.turn == nil || o.turn.Empty() {
			return
		}
		if err := o.sm.Transition(StateAwaitingConfirm, "dispatch timer elapsed"); err != nil {
			return
		}
		o.cascade.Restart(timers.KindSilenceConfirm, o.turn.WordCount())
	case timers.KindSilenceConfirm:
		if st != StateAwaitingConfirm {
			return
		}
		if err := o.sm.Transition(StateDispatching, "silence confirmed"); err != nil {
			return
		}
		o.dispatch()
	case timers.KindSpeechStart:
		// Latency-budget watchdog; informational unless the turn is
		// already beyond saving, which the playback watchdog handles.
		if st == StateAwaitingResponse || st == StateDispatching {
			o.log.Warn("collaborator_latency_budget_exceeded",
				"stream_id", o.cfg.StreamID,
				"state", st.String(),
				"budget", fire.Delay.String())
			o.record("latency_budget_exceeded", map[string]string{"watchdog": string(fire.Kind)})
		}
	case timers.KindPlaybackStart:
		// Absolute liveness backstop: a turn stuck this long without
		// audible playback is starved and gets reset, not dispatched.
		if st.Busy() {
			o.record("turn_starved", nil)
			o.failTurn(errorsx.ReasonTurnStarved)
		}
	}
}

func (o *Orchestrator) restartTimers() {
	if o.turn == nil {
		return
	}
	wc := o.turn.WordCount()
	o.cascade.Restart(timers.KindDispatch, wc)
	o.cascade.Restart(timers.KindSpeechStart, wc)
	o.cascade.Restart(timers.KindPlaybackStart, wc)
}

func (o *Orchestrator) dispatch() {
	t := o.turn
	o.dispatchSeq++
	seq := o.dispatchSeq

	if entry, ok := o.cache.Consume(); ok {
		o.record("cache_hit", map[string]string{"cached_turn_id": entry.TurnID})
		if err := o.sm.Transition(StateAwaitingResponse, "reusing cached response"); err != nil {
			return
		}
		o.handleResult(&dispatchResult{seq: seq, turnID: t.ID, text: entry.Text, cached: true})
		return
	}

	segments := append([]string(nil), t.FinalSegments...)
	req := llm.Request{
		Text:          t.AccumulatedText(),
		FinalSegments: segments,
		TurnID:        t.ID,
		SessionID:     o.sessionID(),
	}
	ctx, cancel := context.WithCancel(o.ctx)
	o.dispatchCancel = cancel
	if err := o.sm.Transition(StateAwaitingResponse, "llm dispatched"); err != nil {
		cancel()
		return
	}
	o.record("turn_dispatched", map[string]string{"words": itoa(t.WordCount())})
	o.log.Debug("turn_dispatched",
		"turn_id", t.ID,
		"words", t.WordCount(),
		"text", redact.Text(req.Text))

	// Collaborator latency budgets, counted from dispatch.
	wc := t.WordCount()
	o.cascade.Restart(timers.KindSpeechStart, wc)
	o.cascade.Restart(timers.KindPlaybackStart, wc)

	go func() {
		resp, err := o.llm.Generate(ctx, req)
		o.post(message{result: &dispatchResult{seq: seq, turnID: t.ID, text: resp.Text, err: err}})
	}()
}

func (o *Orchestrator) handleResult(r *dispatchResult) {
	if r.seq != o.dispatchSeq {
		// Superseded by an interrupt or reset while in flight.
		o.log.Debug("stale_dispatch_result", "turn_id", r.turnID)
		return
	}
	o.dispatchCancel = nil
	if o.sm.State() != StateAwaitingResponse {
		return
	}
	if r.err != nil {
		if errors.Is(r.err, context.Canceled) {
			return
		}
		err := errorsx.Wrap(r.err, errorsx.ReasonLLMGenerate)
		o.log.Error("llm_error",
			"stream_id", o.cfg.StreamID,
			"turn_id", r.turnID,
			"reason_code", string(errorsx.Reason(err)),
			"error", err.Error())
		o.failTurn(errorsx.ReasonLLMGenerate)
		return
	}
	o.record("llm_done", nil)
	if !r.cached {
		o.cache.Put(r.turnID, r.text)
	}
	if err := o.player.Speak(r.text); err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonPlaybackStart)
		o.log.Error("playback_error",
			"stream_id", o.cfg.StreamID,
			"turn_id", r.turnID,
			"reason_code", string(errorsx.Reason(err)),
			"error", err.Error())
		o.failTurn(errorsx.ReasonPlaybackStart)
		return
	}
	o.cascade.Cancel(timers.KindSpeechStart)
	_ = o.sm.Transition(StateSpeaking, "response ready")
}

// interrupt aborts everything in flight and fast-paths back into
// LISTENING seeded with the interrupting event's text.
func (o *Orchestrator) interrupt(f frames.TranscriptFrame) {
	if err := o.sm.Transition(StateInterrupted, "user barge-in"); err != nil {
		return
	}
	o.record("interrupt", map[string]string{"words": itoa(f.WordCount())})
	o.abortDispatch()
	if o.player != nil {
		_ = o.player.Cancel()
	}
	o.cascade.CancelAll()
	o.cache.Discard()

	epoch := o.resetSession("interrupt")
	o.turn = newTurn(f)
	o.turn.Epoch = epoch
	if err := o.sm.Transition(StateListening, "fast re-entry after interrupt"); err != nil {
		o.turn = nil
		return
	}
	o.restartTimers()
}

func (o *Orchestrator) finishTurn() {
	o.record("turn_completed", nil)
	o.cascade.CancelAll()
	o.turn = nil
	_ = o.sm.Transition(StateIdle, "turn complete")
	o.resetSession("turn complete")
}

func (o *Orchestrator) failTurn(reason errorsx.ReasonCode) {
	o.record("turn_failed", map[string]string{"reason_code": string(reason)})
	o.abortDispatch()
	if o.player != nil {
		_ = o.player.Cancel()
	}
	o.cascade.CancelAll()
	o.cache.Discard()
	o.turn = nil
	_ = o.sm.Transition(StateIdle, "turn failed: "+string(reason))
	o.resetSession(string(reason))
}

func (o *Orchestrator) abortDispatch() {
	if o.dispatchCancel != nil {
		o.dispatchCancel()
		o.dispatchCancel = nil
	}
	// Any in-flight result is now stale.
	o.dispatchSeq++
}

func (o *Orchestrator) resetSession(reason string) uint64 {
	if o.sessions == nil {
		return 0
	}
	epoch, err := o.sessions.Reset(o.ctx)
	if err != nil {
		o.log.Warn("session_reset_failed",
			"stream_id", o.cfg.StreamID,
			"reason", reason,
			"error", err.Error())
	}
	o.record("session_reset", map[string]string{"epoch": utoa(epoch)})
	return epoch
}

func (o *Orchestrator) sessionID() string {
	if o.sessions == nil {
		return ""
	}
	return o.sessions.SessionID()
}

func (o *Orchestrator) record(name string, tags map[string]string) {
	if o.obs == nil {
		return
	}
	if tags == nil {
		tags = make(map[string]string, 3)
	}
	tags["stream_id"] = o.cfg.StreamID
	tags["state"] = o.sm.State().String()
	if o.turn != nil {
		tags["turn_id"] = o.turn.ID
	}
	o.obs.RecordEvent(metrics.MetricsEvent{
		Name:  name,
		Time:  time.Now(),
		Value: 1,
		Tags:  tags,
	})
}

func itoa(v int) string {
	return utoa(uint64(v))
}

func utoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

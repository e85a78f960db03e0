package twilio

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/adapters/playback"
	"github.com/buildngrowsv/bubblevoice/pkg/errorsx"
	"github.com/buildngrowsv/bubblevoice/pkg/frames"
	"github.com/buildngrowsv/bubblevoice/pkg/logging"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type callUpdater interface {
	UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error)
}

type SayPlayerConfig struct {
	StreamID string
	CallSID  string
	Voice    string
	// WordsPerMinute drives the completion estimate. Twilio's <Say> gives
	// no completion callback on a live call redirect, so playback end is
	// inferred from text length.
	WordsPerMinute int
}

// SayPlayer speaks responses on a live call by redirecting it to TwiML
// with a <Say> verb and then reconnecting the media stream. Cancelling
// redirects again without the <Say>, which cuts speech off mid-word.
type SayPlayer struct {
	cfg     SayPlayerConfig
	tcfg    Config
	updater callUpdater
	events  chan frames.Frame
	log     *slog.Logger

	mu      sync.Mutex
	started bool
	playGen uint64
	timer   *time.Timer
}

func NewSayPlayer(cfg SayPlayerConfig, tcfg Config) *SayPlayer {
	if cfg.WordsPerMinute <= 0 {
		cfg.WordsPerMinute = 150
	}
	return &SayPlayer{
		cfg:    cfg,
		tcfg:   tcfg.withDefaults(),
		events: make(chan frames.Frame, 16),
		log:    logging.NewComponentLogger(slog.Default(), "twilio_say"),
	}
}

func (p *SayPlayer) Name() string { return "twilio_say" }

func (p *SayPlayer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updater == nil {
		if p.tcfg.AccountSID == "" || p.tcfg.AuthToken == "" {
			return errors.New("missing twilio credentials")
		}
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: p.tcfg.AccountSID,
			Password: p.tcfg.AuthToken,
		})
		p.updater = rest.Api
	}
	p.started = true
	return nil
}

// Close stops the player. The events channel stays open so a completion
// timer that already fired cannot send on a closed channel; the liveness
// check in the timer callback keeps late events out, and receivers stop
// via their own context.
func (p *SayPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.started = false
	p.playGen++
	return nil
}

func (p *SayPlayer) Speak(text string) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return errors.New("not started")
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.playGen++
	gen := p.playGen
	updater := p.updater
	p.mu.Unlock()

	params := &api.UpdateCallParams{}
	params.SetTwiml(p.sayTwiml(text))
	if _, err := updater.UpdateCall(p.cfg.CallSID, params); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonPlaybackStart)
	}

	p.emit(frames.ControlPlaybackStarted)
	est := p.estimate(text)
	p.log.Debug("say_started",
		slog.String("stream_id", p.cfg.StreamID),
		slog.String("call_sid", p.cfg.CallSID),
		slog.Duration("estimated_duration", est))

	p.mu.Lock()
	p.timer = time.AfterFunc(est, func() {
		p.mu.Lock()
		live := p.started && p.playGen == gen
		p.mu.Unlock()
		if live {
			p.emit(frames.ControlPlaybackCompleted)
		}
	})
	p.mu.Unlock()
	return nil
}

func (p *SayPlayer) Cancel() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.playGen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	updater := p.updater
	p.mu.Unlock()

	params := &api.UpdateCallParams{}
	params.SetTwiml(p.reconnectTwiml())
	if _, err := updater.UpdateCall(p.cfg.CallSID, params); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonPlaybackCancel)
	}
	return nil
}

func (p *SayPlayer) Events() <-chan frames.Frame { return p.events }

func (p *SayPlayer) emit(code frames.ControlCode) {
	f := frames.NewControlFrame(p.cfg.StreamID, time.Now().UnixNano(), code, map[string]string{
		frames.MetaCallSID: p.cfg.CallSID,
		frames.MetaSource:  "playback",
	})
	select {
	case p.events <- f:
	default:
	}
}

func (p *SayPlayer) sayTwiml(text string) string {
	escaped := xmlEscape(text)
	voice := ""
	if p.cfg.Voice != "" {
		voice = ` voice="` + xmlEscape(p.cfg.Voice) + `"`
	}
	return `<Response><Say` + voice + `>` + escaped + `</Say>` + p.reconnectStream() + `</Response>`
}

func (p *SayPlayer) reconnectTwiml() string {
	return `<Response>` + p.reconnectStream() + `</Response>`
}

func (p *SayPlayer) reconnectStream() string {
	wsURL := "wss://" + normalizePublicURL(p.tcfg.PublicURL) + p.tcfg.WebsocketPath
	return `<Connect><Stream url="` + wsURL + `"/></Connect>`
}

func (p *SayPlayer) estimate(text string) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	est := time.Duration(float64(words) / float64(p.cfg.WordsPerMinute) * float64(time.Minute))
	return est + 500*time.Millisecond
}

var _ playback.Player = (*SayPlayer)(nil)

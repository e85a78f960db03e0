package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/buildngrowsv/bubblevoice/pkg/errorsx"
	"github.com/google/uuid"
)

// Resetter tears down the recognition engine's current stream and starts a
// fresh one. Implemented by recognizer providers.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Coordinator owns the session epoch. The recognition engine treats audio
// as one continuous stream; an explicit reset between turns is the only
// thing preventing text from a prior turn bleeding into the next. Events
// tagged with a superseded epoch are dropped unconditionally downstream.
type Coordinator struct {
	epoch    atomic.Uint64
	id       string
	resetter Resetter
	log      *slog.Logger
}

func NewCoordinator(resetter Resetter, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{
		id:       uuid.NewString(),
		resetter: resetter,
		log:      log,
	}
	c.epoch.Store(1)
	return c
}

// Epoch returns the live session epoch. Providers tag every transcript
// they produce with this value at production time.
func (c *Coordinator) Epoch() uint64 { return c.epoch.Load() }

// SessionID identifies this coordinator's connection window.
func (c *Coordinator) SessionID() string { return c.id }

// Stale reports whether an event epoch has been superseded.
func (c *Coordinator) Stale(epoch uint64) bool { return epoch < c.epoch.Load() }

// Reset bumps the epoch first, so anything the old stream emits during
// teardown is already stale, then asks the recognizer to recreate its
// stream. Returns the new epoch.
func (c *Coordinator) Reset(ctx context.Context) (uint64, error) {
	next := c.epoch.Add(1)
	c.log.Debug("session_reset", "session_id", c.id, "epoch", next)
	if c.resetter == nil {
		return next, nil
	}
	if err := c.resetter.Reset(ctx); err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonRecognizerReset)
		c.log.Warn("session_reset_error",
			"session_id", c.id,
			"epoch", next,
			"reason_code", string(errorsx.Reason(err)),
			"error", err.Error())
		return next, err
	}
	return next, nil
}

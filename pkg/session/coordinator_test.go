package session

import (
	"context"
	"errors"
	"testing"

	"github.com/buildngrowsv/bubblevoice/pkg/errorsx"
)

type fakeResetter struct {
	calls int
	err   error
}

func (r *fakeResetter) Reset(ctx context.Context) error {
	r.calls++
	return r.err
}

func TestResetAdvancesEpoch(t *testing.T) {
	r := &fakeResetter{}
	c := NewCoordinator(r, nil)

	if c.Epoch() != 1 {
		t.Fatalf("expected initial epoch 1, got %d", c.Epoch())
	}
	next, err := c.Reset(context.Background())
	if err != nil {
		t.Fatalf("reset error: %v", err)
	}
	if next != 2 || c.Epoch() != 2 {
		t.Fatalf("expected epoch 2 after reset, got %d", c.Epoch())
	}
	if r.calls != 1 {
		t.Fatalf("expected one resetter call, got %d", r.calls)
	}
}

func TestStaleEpochDetection(t *testing.T) {
	c := NewCoordinator(nil, nil)
	_, _ = c.Reset(context.Background())

	if !c.Stale(1) {
		t.Fatalf("epoch 1 must be stale once coordinator advanced to 2")
	}
	if c.Stale(c.Epoch()) {
		t.Fatalf("live epoch must not be stale")
	}
}

func TestResetEpochAdvancesBeforeResetterRuns(t *testing.T) {
	c := NewCoordinator(nil, nil)
	observed := uint64(0)
	c.resetter = resetterFunc(func(ctx context.Context) error {
		observed = c.Epoch()
		return nil
	})
	next, _ := c.Reset(context.Background())
	if observed != next {
		t.Fatalf("epoch must advance before the recognizer reset runs: observed %d, next %d", observed, next)
	}
}

func TestResetErrorWrapped(t *testing.T) {
	r := &fakeResetter{err: errors.New("socket closed")}
	c := NewCoordinator(r, nil)

	next, err := c.Reset(context.Background())
	if err == nil {
		t.Fatalf("expected reset error")
	}
	if next != 2 {
		t.Fatalf("epoch must advance even when the resetter fails, got %d", next)
	}
	if !errorsx.HasReason(err, errorsx.ReasonRecognizerReset) {
		t.Fatalf("expected recognizer_reset reason, got %s", errorsx.Reason(err))
	}
}

type resetterFunc func(ctx context.Context) error

func (f resetterFunc) Reset(ctx context.Context) error { return f(ctx) }

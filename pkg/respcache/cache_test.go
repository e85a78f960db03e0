package respcache

import (
	"testing"
	"time"
)

func TestConsumeSingleUse(t *testing.T) {
	c := New(5 * time.Second)
	c.Put("turn-1", "hello there")

	e, ok := c.Consume()
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if e.TurnID != "turn-1" || e.Text != "hello there" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if _, ok := c.Consume(); ok {
		t.Fatalf("entry must never be consumed twice")
	}
}

func TestConsumeExpired(t *testing.T) {
	base := time.Now()
	now := base
	c := New(5 * time.Second)
	c.SetClock(func() time.Time { return now })

	c.Put("turn-1", "stale")
	now = base.Add(6 * time.Second)

	if _, ok := c.Consume(); ok {
		t.Fatalf("expired entry must not be served")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry must be cleared on consume attempt")
	}
}

func TestConsumeWithinGrace(t *testing.T) {
	base := time.Now()
	now := base
	c := New(5 * time.Second)
	c.SetClock(func() time.Time { return now })

	c.Put("turn-1", "fresh")
	now = base.Add(4 * time.Second)

	if _, ok := c.Consume(); !ok {
		t.Fatalf("entry within grace window must be served")
	}
}

func TestPutReplaces(t *testing.T) {
	c := New(5 * time.Second)
	c.Put("turn-1", "first")
	c.Put("turn-2", "second")

	e, ok := c.Consume()
	if !ok || e.TurnID != "turn-2" {
		t.Fatalf("expected newest entry, got %+v ok=%v", e, ok)
	}
}

func TestDiscard(t *testing.T) {
	c := New(5 * time.Second)
	c.Put("turn-1", "gone")
	c.Discard()
	if _, ok := c.Consume(); ok {
		t.Fatalf("discarded entry must not be served")
	}
}

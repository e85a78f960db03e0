package timers

import (
	"sync"
	"testing"
	"time"
)

type fireCapture struct {
	mu    sync.Mutex
	fires []Fire
}

func (c *fireCapture) fire(f Fire) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fires = append(c.fires, f)
}

func (c *fireCapture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fires)
}

func (c *fireCapture) last() Fire {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fires[len(c.fires)-1]
}

func TestDelayForWordCountTiers(t *testing.T) {
	cfg := Config{}.withDefaults()

	short := cfg.DelayFor(KindDispatch, 1)
	medium := cfg.DelayFor(KindDispatch, 5)
	long := cfg.DelayFor(KindDispatch, 9)

	if short != 1800*time.Millisecond {
		t.Fatalf("expected 1800ms for short utterance, got %v", short)
	}
	if medium != 1500*time.Millisecond {
		t.Fatalf("expected 1500ms for medium utterance, got %v", medium)
	}
	if long != 1200*time.Millisecond {
		t.Fatalf("expected 1200ms for long utterance, got %v", long)
	}
	if short < medium || medium < long {
		t.Fatalf("dispatch delay must be non-increasing in word count: %v %v %v", short, medium, long)
	}
}

func TestDelayForSilenceConfirmIsFixed(t *testing.T) {
	cfg := Config{}.withDefaults()
	for _, wc := range []int{0, 1, 5, 20} {
		if d := cfg.DelayFor(KindSilenceConfirm, wc); d != 800*time.Millisecond {
			t.Fatalf("silence confirm should ignore word count, got %v for wc=%d", d, wc)
		}
	}
}

func TestRestartSupersedesPreviousHandle(t *testing.T) {
	cap := &fireCapture{}
	c := New(Config{DispatchBase: 30 * time.Millisecond, ShortDelta: time.Millisecond, MediumDelta: time.Millisecond}, cap.fire)

	c.Restart(KindDispatch, 10)
	c.Restart(KindDispatch, 10)
	c.Restart(KindDispatch, 10)

	time.Sleep(80 * time.Millisecond)
	if got := cap.count(); got != 1 {
		t.Fatalf("expected exactly one fire after restarts, got %d", got)
	}
	if gen := cap.last().Generation; gen != 3 {
		t.Fatalf("expected fire from generation 3, got %d", gen)
	}
	if c.Generation(KindDispatch) != 3 {
		t.Fatalf("expected live generation 3, got %d", c.Generation(KindDispatch))
	}
}

func TestCancelPreventsFire(t *testing.T) {
	cap := &fireCapture{}
	c := New(Config{DispatchBase: 20 * time.Millisecond, ShortDelta: time.Millisecond, MediumDelta: time.Millisecond}, cap.fire)

	c.Restart(KindDispatch, 10)
	c.Cancel(KindDispatch)

	time.Sleep(60 * time.Millisecond)
	if got := cap.count(); got != 0 {
		t.Fatalf("expected no fire after cancel, got %d", got)
	}
}

func TestCancelAfterFireIsNoop(t *testing.T) {
	cap := &fireCapture{}
	c := New(Config{DispatchBase: 10 * time.Millisecond, ShortDelta: time.Millisecond, MediumDelta: time.Millisecond}, cap.fire)

	c.Restart(KindDispatch, 10)
	time.Sleep(40 * time.Millisecond)
	if cap.count() != 1 {
		t.Fatalf("expected one fire, got %d", cap.count())
	}
	c.Cancel(KindDispatch)
	c.Cancel(KindDispatch)
	if cap.count() != 1 {
		t.Fatalf("cancel after fire must not produce fires, got %d", cap.count())
	}
}

func TestGenerationInvalidatesInboxedFire(t *testing.T) {
	cap := &fireCapture{}
	c := New(Config{DispatchBase: 10 * time.Millisecond, ShortDelta: time.Millisecond, MediumDelta: time.Millisecond}, cap.fire)

	c.Restart(KindDispatch, 10)
	time.Sleep(40 * time.Millisecond)
	fired := cap.last()

	// A new event arrives after the fire was posted but before it was
	// consumed; the restart advances the generation and the stale fire no
	// longer matches.
	c.Restart(KindDispatch, 10)
	if fired.Generation == c.Generation(KindDispatch) {
		t.Fatalf("expected stale fire generation to differ from live one")
	}
}

func TestLive(t *testing.T) {
	cap := &fireCapture{}
	c := New(Config{DispatchBase: 15 * time.Millisecond, ShortDelta: time.Millisecond, MediumDelta: time.Millisecond}, cap.fire)

	if c.Live(KindDispatch) {
		t.Fatalf("expected no live handle before restart")
	}
	c.Restart(KindDispatch, 10)
	if !c.Live(KindDispatch) {
		t.Fatalf("expected live handle after restart")
	}
	time.Sleep(50 * time.Millisecond)
	if c.Live(KindDispatch) {
		t.Fatalf("expected handle cleared after fire")
	}
}

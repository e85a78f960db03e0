package respcache

import (
	"sync"
	"time"
)

// Entry is one completed language-model response held for the grace window.
type Entry struct {
	TurnID     string
	Text       string
	ProducedAt time.Time
	ExpiresAt  time.Time
}

// Cache holds at most one response. A dispatch that follows very shortly
// after a completed one can reuse the entry instead of issuing a second
// language-model call; entries are single-use and expire on their own.
type Cache struct {
	mu    sync.Mutex
	entry *Entry
	grace time.Duration
	now   func() time.Time
}

func New(grace time.Duration) *Cache {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Cache{grace: grace, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now != nil {
		c.now = now
	}
}

// Put stores a response, replacing any previous entry.
func (c *Cache) Put(turnID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	produced := c.now()
	c.entry = &Entry{
		TurnID:     turnID,
		Text:       text,
		ProducedAt: produced,
		ExpiresAt:  produced.Add(c.grace),
	}
}

// Consume returns the live entry and clears it. An expired entry is
// discarded and reported as a miss; a consumed entry can never be served
// twice.
func (c *Cache) Consume() (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return Entry{}, false
	}
	e := *c.entry
	c.entry = nil
	if c.now().After(e.ExpiresAt) {
		return Entry{}, false
	}
	return e, true
}

// Discard drops the entry without consuming it.
func (c *Cache) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = nil
}

// Len reports whether an entry (possibly expired) is held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return 0
	}
	return 1
}

package chat

import "time"

// DuplicateWindow is how long an identical message from the same user is treated as a duplicate.
const DuplicateWindow = 5 * time.Second

type recencyEntry struct {
	lastText       string
	lastReceivedAt time.Time
}

// RecencyCache remembers the last accepted message per username.
type RecencyCache struct {
	window  time.Duration
	entries map[string]recencyEntry
}

// NewRecencyCache returns a cache using window, or DuplicateWindow when window <= 0.
func NewRecencyCache(window time.Duration) *RecencyCache {
	if window <= 0 {
		window = DuplicateWindow
	}
	return &RecencyCache{window: window, entries: make(map[string]recencyEntry)}
}

// Window reports the configured duplicate window.
func (c *RecencyCache) Window() time.Duration { return c.window }

// ShouldAccept reports whether text from username at now is not a duplicate.
// It never mutates the cache: only Record moves the timer.
func (c *RecencyCache) ShouldAccept(username, text string, now time.Time) bool {
	e, ok := c.entries[username]
	if !ok {
		return true
	}
	if e.lastText != text {
		return true
	}
	return now.Sub(e.lastReceivedAt) >= c.window
}

// Record overwrites the entry for username. Call once per accepted message.
func (c *RecencyCache) Record(username, text string, now time.Time) {
	c.entries[username] = recencyEntry{lastText: text, lastReceivedAt: now}
}

// Len is the number of users tracked.
func (c *RecencyCache) Len() int { return len(c.entries) }

package chat

import (
	"testing"
	"time"
)

func TestRecencyCache_ShouldAccept(t *testing.T) {
	base := time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		record bool
		text   string
		at     time.Duration
		want   bool
	}{
		{name: "unknown user", record: false, text: "hi", at: 0, want: true},
		{name: "same text inside window", record: true, text: "hi", at: 4999 * time.Millisecond, want: false},
		{name: "same text at window edge", record: true, text: "hi", at: 5 * time.Second, want: true},
		{name: "same text after window", record: true, text: "hi", at: 6 * time.Second, want: true},
		{name: "different text inside window", record: true, text: "hello", at: time.Second, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewRecencyCache(DuplicateWindow)
			if tt.record {
				c.Record("alice", "hi", base)
			}
			if got := c.ShouldAccept("alice", tt.text, base.Add(tt.at)); got != tt.want {
				t.Errorf("ShouldAccept() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecencyCache_RejectionDoesNotResetTimer(t *testing.T) {
	base := time.Now()
	c := NewRecencyCache(DuplicateWindow)
	c.Record("alice", "spam", base)

	// A burst of rejected copies must not keep the entry fresh.
	for i := 1; i <= 4; i++ {
		if c.ShouldAccept("alice", "spam", base.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("copy %d accepted inside window", i)
		}
	}
	if !c.ShouldAccept("alice", "spam", base.Add(5*time.Second)) {
		t.Error("message after window rejected; rejections extended the timer")
	}
}

func TestRecencyCache_OneEntryPerUser(t *testing.T) {
	base := time.Now()
	c := NewRecencyCache(0)
	if c.Window() != DuplicateWindow {
		t.Errorf("Window() = %v, want default %v", c.Window(), DuplicateWindow)
	}
	c.Record("alice", "one", base)
	c.Record("alice", "two", base.Add(time.Second))
	c.Record("bob", "one", base)
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	// latest message wins
	if !c.ShouldAccept("alice", "one", base.Add(2*time.Second)) {
		t.Error("overwritten text should no longer be a duplicate")
	}
	if c.ShouldAccept("alice", "two", base.Add(2*time.Second)) {
		t.Error("latest text should be a duplicate inside window")
	}
}

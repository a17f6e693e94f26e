package view

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects how the message store is projected.
type Mode string

const (
	// Grouped renders one panel per user, most recently active first.
	Grouped Mode = "grouped"
	// Flat renders every message as its own entry in arrival order.
	Flat Mode = "flat"
)

var ErrUnknownMode = errors.New("unknown layout mode")

// ParseMode accepts "grouped" or "flat" in any case. Empty input yields Grouped.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(Grouped):
		return Grouped, nil
	case string(Flat):
		return Flat, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == Flat {
		return Grouped
	}
	return Flat
}

func (m Mode) String() string { return string(m) }

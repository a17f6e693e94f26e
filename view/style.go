package view

import (
	"errors"
	"fmt"
)

// Style bounds and steps.
const (
	DefaultFontSize = 14
	MinFontSize     = 8
	MaxFontSize     = 48
	FontSizeStep    = 2

	DefaultBoxSize = 300
	MinBoxSize     = 150
	MaxBoxSize     = 800
	BoxSizeStep    = 50
)

// Setting names a steppable style value.
type Setting string

const (
	FontSize Setting = "font_size"
	BoxSize  Setting = "box_size"
)

var ErrUnknownSetting = errors.New("unknown style setting")

// Style is the ambient presentation applied to every panel and entry.
type Style struct {
	FontSize       int  `json:"font_size"`
	BoxSize        int  `json:"box_size"`
	ShowTimestamps bool `json:"show_timestamps"`
}

// DefaultStyle returns the initial presentation.
func DefaultStyle() Style {
	return Style{FontSize: DefaultFontSize, BoxSize: DefaultBoxSize, ShowTimestamps: true}
}

// Clamp forces sizes into their bounds. Zero values fall back to defaults.
func (s Style) Clamp() Style {
	if s.FontSize == 0 {
		s.FontSize = DefaultFontSize
	}
	if s.BoxSize == 0 {
		s.BoxSize = DefaultBoxSize
	}
	s.FontSize = clamp(s.FontSize, MinFontSize, MaxFontSize)
	s.BoxSize = clamp(s.BoxSize, MinBoxSize, MaxBoxSize)
	return s
}

// Step moves setting by delta steps (negative shrinks) and clamps the result.
func (s Style) Step(setting Setting, delta int) (Style, error) {
	switch setting {
	case FontSize:
		s.FontSize += delta * FontSizeStep
	case BoxSize:
		s.BoxSize += delta * BoxSizeStep
	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownSetting, setting)
	}
	return s.Clamp(), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

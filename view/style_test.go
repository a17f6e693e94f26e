package view

import (
	"errors"
	"testing"
)

func TestStyleStep(t *testing.T) {
	tests := []struct {
		name    string
		start   Style
		setting Setting
		delta   int
		want    Style
	}{
		{"font up", DefaultStyle(), FontSize, 1, Style{FontSize: 16, BoxSize: 300, ShowTimestamps: true}},
		{"font down", DefaultStyle(), FontSize, -1, Style{FontSize: 12, BoxSize: 300, ShowTimestamps: true}},
		{"font clamps high", Style{FontSize: 47, BoxSize: 300}, FontSize, 1, Style{FontSize: 48, BoxSize: 300}},
		{"font clamps low", Style{FontSize: 8, BoxSize: 300}, FontSize, -1, Style{FontSize: 8, BoxSize: 300}},
		{"box up", DefaultStyle(), BoxSize, 1, Style{FontSize: 14, BoxSize: 350, ShowTimestamps: true}},
		{"box clamps high", Style{FontSize: 14, BoxSize: 800}, BoxSize, 2, Style{FontSize: 14, BoxSize: 800}},
		{"box clamps low", Style{FontSize: 14, BoxSize: 160}, BoxSize, -1, Style{FontSize: 14, BoxSize: 150}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.start.Step(tt.setting, tt.delta)
			if err != nil {
				t.Fatalf("Step: %v", err)
			}
			if got != tt.want {
				t.Errorf("Step() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := DefaultStyle().Step("width", 1); !errors.Is(err, ErrUnknownSetting) {
		t.Errorf("unknown setting err = %v", err)
	}
}

func TestStyleClampDefaults(t *testing.T) {
	got := Style{}.Clamp()
	if got.FontSize != DefaultFontSize || got.BoxSize != DefaultBoxSize {
		t.Errorf("Clamp(zero) = %+v", got)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", Grouped, false},
		{"grouped", Grouped, false},
		{"FLAT", Flat, false},
		{" flat ", Flat, false},
		{"tiles", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownMode) {
				t.Errorf("ParseMode(%q) err = %v, want ErrUnknownMode", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if Grouped.Toggle() != Flat || Flat.Toggle() != Grouped {
		t.Error("Toggle did not swap modes")
	}
}

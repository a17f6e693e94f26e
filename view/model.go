// Package view projects the message store into a front-end neutral render tree.
//
// A Model is not safe for concurrent use; the owning session drives it from its
// event loop and hands out Snapshots to everyone else.
package view

import (
	"time"

	"github.com/onnwee/chat-panels/chat"
)

// Entry is one rendered message.
type Entry struct {
	Seq             int          `json:"seq"`
	Username        string       `json:"username"`
	DisplayName     string       `json:"display_name"`
	Text            string       `json:"text"`
	Badges          []chat.Badge `json:"badges,omitempty"`
	Color           string       `json:"color,omitempty"`
	ProfileImageURL string       `json:"profile_image_url,omitempty"`
	ReceivedAt      time.Time    `json:"received_at"`
	Style           Style        `json:"style"`
}

// Panel groups every message from one user. Messages are newest first.
type Panel struct {
	Username        string       `json:"username"`
	DisplayName     string       `json:"display_name"`
	Color           string       `json:"color,omitempty"`
	ProfileImageURL string       `json:"profile_image_url,omitempty"`
	Badges          []chat.Badge `json:"badges,omitempty"`
	Style           Style        `json:"style"`
	Messages        []Entry      `json:"messages"`
}

// View is an immutable snapshot of the render tree.
// Panels is set in grouped mode and Entries in flat mode.
type View struct {
	Version uint64  `json:"version"`
	Mode    Mode    `json:"mode"`
	Style   Style   `json:"style"`
	Panels  []Panel `json:"panels,omitempty"`
	Entries []Entry `json:"entries,omitempty"`
}

// Model holds the current render tree.
type Model struct {
	mode    Mode
	style   Style
	version uint64

	panels  []*Panel // front first
	byUser  map[string]*Panel
	entries []Entry
}

// NewModel returns an empty tree in mode with style applied.
func NewModel(mode Mode, style Style) *Model {
	if mode != Flat {
		mode = Grouped
	}
	return &Model{mode: mode, style: style.Clamp(), byUser: make(map[string]*Panel)}
}

func (m *Model) Mode() Mode { return m.mode }
func (m *Model) Style() Style { return m.style }
func (m *Model) Version() uint64 { return m.version }

// PanelCount is the number of panels in grouped mode, 0 in flat mode.
func (m *Model) PanelCount() int { return len(m.panels) }

// RenderIncremental applies one accepted message to the tree.
func (m *Model) RenderIncremental(msg chat.ChatMessage) {
	m.apply(msg)
	m.version++
}

// RenderAll discards the tree and replays msgs under mode.
func (m *Model) RenderAll(msgs []chat.ChatMessage, mode Mode) {
	if mode != Flat {
		mode = Grouped
	}
	m.mode = mode
	m.panels = nil
	m.byUser = make(map[string]*Panel)
	m.entries = nil
	for _, msg := range msgs {
		m.apply(msg)
	}
	m.version++
}

// Restyle applies style to every panel and entry.
func (m *Model) Restyle(style Style) {
	m.style = style.Clamp()
	for _, p := range m.panels {
		p.Style = m.style
		for i := range p.Messages {
			p.Messages[i].Style = m.style
		}
	}
	for i := range m.entries {
		m.entries[i].Style = m.style
	}
	m.version++
}

func (m *Model) apply(msg chat.ChatMessage) {
	e := m.entry(msg)
	if m.mode == Flat {
		m.entries = append(m.entries, e)
		return
	}

	p, ok := m.byUser[msg.Username]
	if !ok {
		p = &Panel{Username: msg.Username, Style: m.style}
		m.byUser[msg.Username] = p
		m.panels = append([]*Panel{p}, m.panels...)
	} else {
		m.moveToFront(p)
	}
	p.refreshHeader(e)
	p.Messages = append([]Entry{e}, p.Messages...)
}

func (m *Model) moveToFront(p *Panel) {
	for i, q := range m.panels {
		if q != p {
			continue
		}
		if i > 0 {
			copy(m.panels[1:i+1], m.panels[:i])
			m.panels[0] = p
		}
		return
	}
}

func (m *Model) entry(msg chat.ChatMessage) Entry {
	return Entry{
		Seq:             msg.Seq,
		Username:        msg.Username,
		DisplayName:     msg.DisplayName,
		Text:            msg.Text,
		Badges:          chat.BadgeList(msg.Badges),
		Color:           msg.Color,
		ProfileImageURL: msg.ProfileImageURL,
		ReceivedAt:      msg.ReceivedAt,
		Style:           m.style,
	}
}

// refreshHeader takes header fields from the latest message when it carries them.
func (p *Panel) refreshHeader(e Entry) {
	if e.DisplayName != "" {
		p.DisplayName = e.DisplayName
	}
	if e.Color != "" {
		p.Color = e.Color
	}
	if e.ProfileImageURL != "" {
		p.ProfileImageURL = e.ProfileImageURL
	}
	if len(e.Badges) > 0 {
		p.Badges = e.Badges
	}
}

// Snapshot returns a deep copy of the tree.
func (m *Model) Snapshot() View {
	v := View{Version: m.version, Mode: m.mode, Style: m.style}
	if m.mode == Flat {
		v.Entries = make([]Entry, len(m.entries))
		for i, e := range m.entries {
			v.Entries[i] = e.clone()
		}
		return v
	}
	v.Panels = make([]Panel, len(m.panels))
	for i, p := range m.panels {
		cp := *p
		cp.Badges = cloneBadges(p.Badges)
		cp.Messages = make([]Entry, len(p.Messages))
		for j, e := range p.Messages {
			cp.Messages[j] = e.clone()
		}
		v.Panels[i] = cp
	}
	return v
}

func (e Entry) clone() Entry {
	e.Badges = cloneBadges(e.Badges)
	return e
}

func cloneBadges(in []chat.Badge) []chat.Badge {
	if in == nil {
		return nil
	}
	out := make([]chat.Badge, len(in))
	copy(out, in)
	return out
}

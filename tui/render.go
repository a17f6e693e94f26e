package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/onnwee/chat-panels/chat"
	"github.com/onnwee/chat-panels/view"
)

// BoxSize pixels per terminal column; the widest box stays near 100 columns.
const pixelsPerColumn = 8

// maxPanelLines caps how many messages a panel shows, newest first.
const maxPanelLines = 8

// PanelColumns converts a BoxSize in pixels to a panel width in columns.
func PanelColumns(boxSize int) int {
	cols := boxSize / pixelsPerColumn
	if cols < 12 {
		cols = 12
	}
	return cols
}

// RenderView draws v into at most width columns.
func RenderView(v view.View, width int) string {
	if v.Mode == view.Flat {
		return renderFlat(v, width)
	}
	return renderGrouped(v, width)
}

func renderGrouped(v view.View, width int) string {
	if len(v.Panels) == 0 {
		return mutedStyle.Render("waiting for chat…")
	}
	cols := PanelColumns(v.Style.BoxSize)
	boxWidth := cols + panelStyle.GetHorizontalFrameSize()
	perRow := 1
	if width > 0 && boxWidth > 0 && width/boxWidth > 1 {
		perRow = width / boxWidth
	}

	var rows []string
	for start := 0; start < len(v.Panels); start += perRow {
		end := min(start+perRow, len(v.Panels))
		boxes := make([]string, 0, end-start)
		for _, p := range v.Panels[start:end] {
			boxes = append(boxes, renderPanel(p, cols))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderPanel(p view.Panel, cols int) string {
	var b strings.Builder
	b.WriteString(nameStyle(p.Color).Inherit(headerStyle).Render(badgePrefix(p.Badges) + p.DisplayName))
	for i, e := range p.Messages {
		if i == maxPanelLines {
			b.WriteString("\n" + mutedStyle.Render("…"))
			break
		}
		b.WriteString("\n" + timestamp(e) + e.Text)
	}
	return panelStyle.Width(cols).Render(b.String())
}

func renderFlat(v view.View, width int) string {
	if len(v.Entries) == 0 {
		return mutedStyle.Render("waiting for chat…")
	}
	lines := make([]string, 0, len(v.Entries))
	for _, e := range v.Entries {
		line := timestamp(e) + nameStyle(e.Color).Render(badgePrefix(e.Badges)+e.DisplayName) + ": " + e.Text
		if width > 0 {
			line = lipgloss.NewStyle().MaxWidth(width).Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func timestamp(e view.Entry) string {
	if !e.Style.ShowTimestamps || e.ReceivedAt.IsZero() {
		return ""
	}
	return mutedStyle.Render(e.ReceivedAt.Local().Format("15:04")) + " "
}

func nameStyle(color string) lipgloss.Style {
	if color == "" {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

// badgePrefix renders badges as bracketed initials, e.g. "[b][m] ".
func badgePrefix(badges []chat.Badge) string {
	if len(badges) == 0 {
		return ""
	}
	var b strings.Builder
	for _, badge := range badges {
		if badge.Name == "" {
			continue
		}
		b.WriteString("[" + badge.Name[:1] + "]")
	}
	if b.Len() == 0 {
		return ""
	}
	return b.String() + " "
}

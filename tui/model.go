// Package tui is a terminal front-end for the chat panels. It mirrors the
// server's render model over /view/ws and sends setting commands back.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/onnwee/chat-panels/protocol"
	"github.com/onnwee/chat-panels/view"
)

// Sender delivers commands to the server; *WSClient implements it.
type Sender interface {
	Send(msgType protocol.MessageType, payload any) error
}

// Model is the Bubble Tea model for the panels viewer.
type Model struct {
	sender Sender
	frames <-chan *protocol.Message

	view      view.View
	connected bool
	status    string
	err       error
	width     int
}

// NewModel creates a model fed by frames; commands go out through sender.
func NewModel(sender Sender, frames <-chan *protocol.Message) Model {
	return Model{
		sender:    sender,
		frames:    frames,
		view:      view.NewModel(view.Grouped, view.DefaultStyle()).Snapshot(),
		connected: true,
	}
}

// Messages for Bubble Tea

type frameMsg struct{ msg *protocol.Message }

type disconnectedMsg struct{}

type errorMsg struct{ err error }

// Init starts listening for frames.
func (m Model) Init() tea.Cmd {
	return m.waitForFrame()
}

func (m Model) waitForFrame() tea.Cmd {
	frames := m.frames
	return func() tea.Msg {
		msg, ok := <-frames
		if !ok {
			return disconnectedMsg{}
		}
		return frameMsg{msg}
	}
}

func (m Model) sendCmd(msgType protocol.MessageType, payload any) tea.Cmd {
	sender := m.sender
	return func() tea.Msg {
		if err := sender.Send(msgType, payload); err != nil {
			return errorMsg{err}
		}
		return nil
	}
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case frameMsg:
		switch msg.msg.Type {
		case protocol.MsgView:
			var p protocol.ViewPayload
			if err := msg.msg.DecodePayload(&p); err != nil {
				m.err = err
			} else {
				m.view = p.View
				m.err = nil
			}
		case protocol.MsgError:
			var p protocol.ErrorPayload
			_ = msg.msg.DecodePayload(&p)
			m.err = fmt.Errorf("server: %s", p.Message)
		}
		return m, m.waitForFrame()

	case disconnectedMsg:
		m.connected = false
		m.status = "disconnected from server"
		return m, nil

	case errorMsg:
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	}
	if !m.connected {
		return m, nil
	}
	switch msg.String() {
	case "l":
		return m, m.sendCmd(protocol.MsgLayout, nil)
	case "+", "=":
		return m, m.sendCmd(protocol.MsgFontSize, protocol.StepPayload{Delta: 1})
	case "-":
		return m, m.sendCmd(protocol.MsgFontSize, protocol.StepPayload{Delta: -1})
	case "]":
		return m, m.sendCmd(protocol.MsgBoxSize, protocol.StepPayload{Delta: 1})
	case "[":
		return m, m.sendCmd(protocol.MsgBoxSize, protocol.StepPayload{Delta: -1})
	case "t":
		return m, m.sendCmd(protocol.MsgTimestamps, nil)
	}
	return m, nil
}

// View renders the panels with a status line.
func (m Model) View() string {
	var s strings.Builder
	s.WriteString(RenderView(m.view, m.width))
	s.WriteString("\n\n")
	s.WriteString(statusStyle.Render(fmt.Sprintf("%s · font %d · box %d · timestamps %s",
		m.view.Mode, m.view.Style.FontSize, m.view.Style.BoxSize, onOff(m.view.Style.ShowTimestamps))))
	if m.status != "" {
		s.WriteString("\n" + statusStyle.Render(m.status))
	}
	if m.err != nil {
		s.WriteString("\n" + errorStyle.Render(m.err.Error()))
	}
	s.WriteString("\n" + mutedStyle.Render("l layout · +/- font · ]/[ box · t timestamps · q quit"))
	return s.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

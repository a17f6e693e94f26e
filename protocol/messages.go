// Package protocol defines the WebSocket messages exchanged on /view/ws.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/onnwee/chat-panels/view"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Client -> Server
	MsgLayout     MessageType = "layout"
	MsgFontSize   MessageType = "font_size"
	MsgBoxSize    MessageType = "box_size"
	MsgTimestamps MessageType = "timestamps"

	// Server -> Client
	MsgView  MessageType = "view"
	MsgError MessageType = "error"
)

// Message is the wrapper for all WebSocket messages
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// LayoutPayload selects a layout; an empty Mode toggles.
type LayoutPayload struct {
	Mode string `json:"mode,omitempty"`
}

// StepPayload moves a size setting by Delta steps.
type StepPayload struct {
	Delta int `json:"delta"`
}

// ViewPayload carries a full render model snapshot.
type ViewPayload struct {
	View view.View `json:"view"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// EncodeMessage wraps payload in a Message. A nil payload is omitted.
func EncodeMessage(msgType MessageType, payload any) ([]byte, error) {
	msg := Message{Type: msgType}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = b
	}
	return json.Marshal(msg)
}

// DecodeMessage decodes a message
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message without type")
	}
	return &msg, nil
}

// DecodePayload unmarshals the payload into v; an absent payload leaves v untouched.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

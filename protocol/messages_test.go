package protocol

import (
	"testing"

	"github.com/onnwee/chat-panels/view"
)

func TestEncodeDecodeStep(t *testing.T) {
	b, err := EncodeMessage(MsgFontSize, StepPayload{Delta: -1})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	msg, err := DecodeMessage(b)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.Type != MsgFontSize {
		t.Errorf("Type = %q", msg.Type)
	}
	var p StepPayload
	if err := msg.DecodePayload(&p); err != nil {
		t.Fatal(err)
	}
	if p.Delta != -1 {
		t.Errorf("Delta = %d, want -1", p.Delta)
	}
}

func TestEncodeWithoutPayload(t *testing.T) {
	b, err := EncodeMessage(MsgTimestamps, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"timestamps"}` {
		t.Errorf("encoded = %s", b)
	}
	msg, _ := DecodeMessage(b)
	p := LayoutPayload{Mode: "keep"}
	if err := msg.DecodePayload(&p); err != nil || p.Mode != "keep" {
		t.Errorf("absent payload changed target: %+v, %v", p, err)
	}
}

func TestDecodeRejects(t *testing.T) {
	for _, raw := range []string{`not json`, `{"payload":{}}`} {
		if _, err := DecodeMessage([]byte(raw)); err == nil {
			t.Errorf("DecodeMessage(%s): expected error", raw)
		}
	}
	msg := &Message{Type: MsgLayout, Payload: []byte(`[1]`)}
	var p LayoutPayload
	if err := msg.DecodePayload(&p); err == nil {
		t.Error("expected payload error")
	}
}

func TestViewPayloadCarriesMode(t *testing.T) {
	v := view.NewModel(view.Flat, view.DefaultStyle()).Snapshot()
	b, err := EncodeMessage(MsgView, ViewPayload{View: v})
	if err != nil {
		t.Fatal(err)
	}
	msg, _ := DecodeMessage(b)
	var p ViewPayload
	if err := msg.DecodePayload(&p); err != nil {
		t.Fatal(err)
	}
	if p.View.Mode != view.Flat || p.View.Style != view.DefaultStyle() {
		t.Errorf("view = %+v", p.View)
	}
}

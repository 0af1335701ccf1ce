package util

import (
	"errors"
	"strings"
	"testing"
)

func TestProtocolError_Message(t *testing.T) {
	inner := errors.New("connection reset")
	err := NewProtocolError("flow.install", 3, inner)

	msg := err.Error()
	if !strings.Contains(msg, "flow.install") {
		t.Errorf("message %q missing operation", msg)
	}
	if !strings.Contains(msg, "dpid 3") {
		t.Errorf("message %q missing switch id", msg)
	}
	if !strings.Contains(msg, "connection reset") {
		t.Errorf("message %q missing cause", msg)
	}
}

func TestProtocolError_Unwrap(t *testing.T) {
	inner := errors.New("send failed")
	err := NewProtocolError("packet.out", 1, inner)

	if !errors.Is(err, inner) {
		t.Error("errors.Is should match the wrapped cause")
	}

	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatal("errors.As should match *ProtocolError")
	}
	if pe.SwitchID != 1 {
		t.Errorf("SwitchID = %d, want 1", pe.SwitchID)
	}
}

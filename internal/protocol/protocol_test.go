package protocol

import (
	"encoding/json"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	data := MarshalData(CreateSessionData{SessionID: "session_0a1b2c3d", URL: "https://example.com"})
	f := Frame{
		Type:          TypeCreateSession,
		RequestID:     "bg_1_1700000000000",
		SessionID:     BackgroundSessionID,
		MCPInstanceID: "inst-a",
		Data:          data,
	}
	raw := Marshal(f)
	var got Frame
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if got.Type != f.Type || got.RequestID != f.RequestID || got.SessionID != f.SessionID {
		t.Fatalf("round trip mismatch: %#v != %#v", got, f)
	}
	if got.Success != nil {
		t.Fatalf("success should be absent on request frames")
	}
}

func TestIsCommand(t *testing.T) {
	if !(Frame{Type: TypeCreateSession}).IsCommand() {
		t.Fatalf("create_session_command should be a command")
	}
	if (Frame{Type: TypeResponse}).IsCommand() {
		t.Fatalf("response is not a command")
	}
	if (Frame{Type: "fill_field"}).IsCommand() {
		t.Fatalf("page operations are not commands")
	}
}

func TestResponseHelpers(t *testing.T) {
	req := Frame{Type: TypeNavigate, RequestID: "bg_7_1700000000000", SessionID: BackgroundSessionID, MCPInstanceID: "inst-b"}

	ok := NewResponse(req, json.RawMessage(`{"url":"https://example.com"}`))
	if !ok.IsResponse() || !ok.OK() {
		t.Fatalf("expected successful response, got %#v", ok)
	}
	if ok.RequestID != req.RequestID || ok.MCPInstanceID != req.MCPInstanceID {
		t.Fatalf("response must carry the request correlation fields")
	}

	fail := NewErrorResponse(req, "window closed")
	if fail.OK() {
		t.Fatalf("error response reported success")
	}
	if fail.Error != "window closed" {
		t.Fatalf("unexpected error text: %q", fail.Error)
	}
}

package mcp

import (
	"encoding/json"
	"testing"
)

func TestSuccessResponse(t *testing.T) {
	resp := SuccessResponse(7, map[string]any{"ok": true})
	if resp.JSONRPC != JSONRPCVersion {
		t.Errorf("jsonrpc = %q", resp.JSONRPC)
	}
	if resp.Error != nil {
		t.Errorf("unexpected error: %+v", resp.Error)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["id"] != float64(7) {
		t.Errorf("id = %v", decoded["id"])
	}
	if _, ok := decoded["error"]; ok {
		t.Error("error field must be omitted on success")
	}
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse("abc", MethodNotFound, "nope")
	if resp.Error == nil || resp.Error.Code != MethodNotFound {
		t.Fatalf("error = %+v", resp.Error)
	}
	if resp.Error.Data != nil {
		t.Errorf("data = %v", resp.Error.Data)
	}

	withData := ErrorResponse(1, InvalidParams, "bad", map[string]any{"kind": "invalid_argument"})
	if withData.Error.Data == nil {
		t.Error("expected data payload")
	}
}

func TestEnsureVersion(t *testing.T) {
	if err := ensureVersion("2.0"); err != nil {
		t.Errorf("2.0 rejected: %v", err)
	}
	if err := ensureVersion(""); err == nil {
		t.Error("empty version accepted")
	}
	if err := ensureVersion("1.0"); err == nil {
		t.Error("1.0 accepted")
	}
}

func TestRequestDecoding(t *testing.T) {
	raw := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_structure","arguments":{}}}`
	var req Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Method != "tools/call" {
		t.Errorf("method = %q", req.Method)
	}
	if req.ID == nil {
		t.Error("id missing")
	}

	// Notifications decode with a nil ID.
	note := `{"jsonrpc":"2.0","method":"notifications/initialized"}`
	var n Request
	if err := json.Unmarshal([]byte(note), &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.ID != nil {
		t.Errorf("notification id = %v", n.ID)
	}
}

func TestMCPErrorMessage(t *testing.T) {
	err := NewMCPError(SectionNotFound, "section not found", map[string]any{"kind": "not_found"})
	if err.Error() == "" {
		t.Error("empty error string")
	}
	plain := NewMCPError(InternalError, "boom")
	if plain.Error() != "boom (-32603)" {
		t.Errorf("message = %q", plain.Error())
	}
}

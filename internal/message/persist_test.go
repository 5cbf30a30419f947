package message

import (
	"encoding/json"
	"testing"
)

func TestSaveRestoreRoundTrip(t *testing.T) {
	history := []AgentMessage{
		FromLlm(NewUser(Text("hello"))),
		FromLlm(NewAssistant([]Content{
			Text("thinking about it"),
			ToolCall("c1", "read_file", json.RawMessage(`{"path":"a.txt"}`)),
		}, StopReasonToolUse, "model-x", "anthropic", Usage{Input: 10, Output: 5})),
		FromLlm(NewToolResult("c1", "read_file", []Content{Text("OK")}, false)),
		NewExtension("system", "note", json.RawMessage(`{"text":"hi"}`)),
	}

	data, err := SaveHistory(history)
	if err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}

	restored, err := RestoreHistory(data)
	if err != nil {
		t.Fatalf("RestoreHistory: %v", err)
	}

	if len(restored) != len(history) {
		t.Fatalf("restored %d messages, want %d", len(restored), len(history))
	}
	for i := range history {
		want, _ := json.Marshal(history[i])
		got, _ := json.Marshal(restored[i])
		if string(want) != string(got) {
			t.Errorf("message %d round-trip mismatch:\nwant %s\ngot  %s", i, want, got)
		}
	}
}

func TestRestoreUnknownFieldsIgnored(t *testing.T) {
	data := []byte(`[{"role":"user","blocks":[{"kind":"text","text":"hi"}],"timestamp":"2026-01-01T00:00:00Z","bogusField":42}]`)
	restored, err := RestoreHistory(data)
	if err != nil {
		t.Fatalf("RestoreHistory: %v", err)
	}
	if len(restored) != 1 || restored[0].Llm.Text() != "hi" {
		t.Fatalf("unexpected restore result: %+v", restored)
	}
}

func TestCacheHitRateZeroDenominator(t *testing.T) {
	u := Usage{}
	if rate := u.CacheHitRate(); rate != 0 {
		t.Errorf("CacheHitRate() = %v, want 0", rate)
	}
}

func TestIsContextOverflow(t *testing.T) {
	m := Message{Role: RoleAssistant, StopReason: StopReasonError, ErrorText: "Request too large: context_length_exceeded"}
	if !m.IsContextOverflow() {
		t.Errorf("expected overflow match")
	}
	m.ErrorText = "invalid api key"
	if m.IsContextOverflow() {
		t.Errorf("expected no overflow match")
	}
}

func TestToProviderMessagesOmitsExtensions(t *testing.T) {
	history := []AgentMessage{
		FromLlm(NewUser(Text("hi"))),
		NewExtension("system", "note", json.RawMessage(`{}`)),
	}
	out := ToProviderMessages(history)
	if len(out) != 1 {
		t.Fatalf("ToProviderMessages: got %d messages, want 1 (extensions excluded)", len(out))
	}
}

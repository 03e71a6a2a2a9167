package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Koi-west/claude-code-pet/internal/config"
)

func newTestClient(url string) *KimiClient {
	return NewKimiClient(config.KimiConfig{
		BaseURL: url,
		APIKey:  "test-key",
		Model:   "kimi-k2-0711-preview",
	}, nil)
}

func TestChatTextResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "kimi-k2-0711-preview" {
			t.Errorf("model = %q", req.Model)
		}

		resp := `{
			"model": "kimi-k2-0711-preview",
			"choices": [{"message": {"role": "assistant", "content": "你好！"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4}
		}`
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resp))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.Chat(context.Background(), []Message{
		{Role: "user", Content: "你好"},
	}, ChatOptions{Temperature: 0.3})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if resp.Message.Content != "你好！" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 4 {
		t.Errorf("tokens = %d/%d, want 12/4", resp.InputTokens, resp.OutputTokens)
	}
}

func TestChatDecodesToolCallArguments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := `{
			"choices": [{
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [
						{"id": "call-1", "type": "function", "function": {"name": "manage_files", "arguments": "{\"action\": \"scan\", \"path\": \"~/Desktop\"}"}},
						{"id": "call-2", "type": "function", "function": {"name": "execute_python", "arguments": "{not json"}}
					]
				},
				"finish_reason": "tool_calls"
			}]
		}`
		w.Write([]byte(resp))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "整理桌面"}}, ChatOptions{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	calls := resp.Message.ToolCalls
	if len(calls) != 2 {
		t.Fatalf("len(ToolCalls) = %d, want 2", len(calls))
	}

	if calls[0].Name != "manage_files" {
		t.Errorf("calls[0].Name = %q", calls[0].Name)
	}
	if action, _ := calls[0].Arguments["action"].(string); action != "scan" {
		t.Errorf("calls[0] action = %q, want scan", action)
	}
	if calls[0].Malformed() {
		t.Error("calls[0] reported malformed for valid arguments")
	}

	// Unparseable arguments are preserved, not dropped.
	if calls[1].Name != "execute_python" {
		t.Errorf("calls[1].Name = %q", calls[1].Name)
	}
	if !calls[1].Malformed() {
		t.Error("calls[1] should report malformed arguments")
	}
}

func TestChatAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid api key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, ChatOptions{})
	if err == nil {
		t.Fatal("Chat() should fail on non-200 response")
	}
}

func TestEncodeMessagesRoundTripsToolTranscript(t *testing.T) {
	messages := []Message{
		{Role: "assistant", ToolCalls: []ToolCall{
			{ID: "call-1", Name: "scan_directory", Arguments: map[string]any{"path": "~/Desktop"}},
		}},
		{Role: "tool", Content: "3 files", ToolCallID: "call-1"},
	}

	wire := encodeMessages(messages)
	if len(wire) != 2 {
		t.Fatalf("len(wire) = %d, want 2", len(wire))
	}
	if len(wire[0].ToolCalls) != 1 {
		t.Fatalf("assistant wire message lost tool calls")
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(wire[0].ToolCalls[0].Function.Arguments), &args); err != nil {
		t.Fatalf("arguments not valid JSON: %v", err)
	}
	if args["path"] != "~/Desktop" {
		t.Errorf("args path = %v", args["path"])
	}
	if wire[1].ToolCallID != "call-1" {
		t.Errorf("tool result lost call ID: %q", wire[1].ToolCallID)
	}
}

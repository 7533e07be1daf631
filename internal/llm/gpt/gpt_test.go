package gpt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/llm"
)

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient("", "gpt-4o"); err == nil {
		t.Error("Expected error for missing API key")
	}
	if _, err := NewClient("key", ""); err == nil {
		t.Error("Expected error for missing model")
	}
}

func TestInvokeModel_SendsSystemMessage(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-4o",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{'pred': 'no', 'score': 1}"}}]
}`))
	}))
	defer server.Close()

	client, err := NewClient("key", "gpt-4o", option.WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	resp, err := client.InvokeModel(context.Background(), llm.LLMRequest{
		System:    "grade",
		Prompt:    "Question: q",
		MaxTokens: 32,
	})
	if err != nil {
		t.Fatalf("InvokeModel failed: %v", err)
	}

	if resp.Content != "{'pred': 'no', 'score': 1}" {
		t.Errorf("Unexpected content: %q", resp.Content)
	}
	if resp.StopReason != "stop" {
		t.Errorf("Expected stop reason 'stop', got '%s'", resp.StopReason)
	}

	messages, ok := received["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %v", received["messages"])
	}
	first := messages[0].(map[string]any)
	if first["role"] != "system" {
		t.Errorf("Expected first message role 'system', got %v", first["role"])
	}
}

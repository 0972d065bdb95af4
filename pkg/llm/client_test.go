package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestNewClient_RequiresEndpointAndModel(t *testing.T) {
	if _, err := NewClient(&Config{Model: "gpt-4o-mini"}, zap.NewNop()); err == nil {
		t.Fatal("expected error when endpoint is missing")
	}
	if _, err := NewClient(&Config{Endpoint: "http://localhost"}, zap.NewNop()); err == nil {
		t.Fatal("expected error when model is missing")
	}
}

func TestClient_GenerateResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "hello back"}, "finish_reason": "stop"},
			},
			"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7},
		})
	}))
	defer server.Close()

	client, err := NewClient(&Config{Endpoint: server.URL, Model: "gpt-4o-mini"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	result, err := client.GenerateResponse(context.Background(), "hello", "system", 0.5)
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if result.Content != "hello back" {
		t.Errorf("expected %q, got %q", "hello back", result.Content)
	}
	if result.TotalTokens != 7 {
		t.Errorf("expected 7 total tokens, got %d", result.TotalTokens)
	}
}

func TestClient_GenerateResponse_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": []map[string]any{},
		})
	}))
	defer server.Close()

	client, err := NewClient(&Config{Endpoint: server.URL, Model: "gpt-4o-mini"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := client.GenerateResponse(context.Background(), "hello", "system", 0.5); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestClient_GetModelAndEndpoint(t *testing.T) {
	client, err := NewClient(&Config{Endpoint: "http://localhost:1234", Model: "gpt-4o-mini"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.GetModel() != "gpt-4o-mini" {
		t.Errorf("expected gpt-4o-mini, got %s", client.GetModel())
	}
	if client.GetEndpoint() != "http://localhost:1234" {
		t.Errorf("expected endpoint to round-trip, got %s", client.GetEndpoint())
	}
}

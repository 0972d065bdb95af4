package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func sseLine(data string) string {
	return "data: " + data + "\n\n"
}

func TestClient_StreamChatCompletion_AssemblesTextAndToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		chunks := []string{
			`{"id":"1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"hel"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"web_search","arguments":"{\"q\":"}}]}}]}`,
			`{"id":"1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"go\"}"}}]}}]}`,
		}
		for _, c := range chunks {
			_, _ = w.Write([]byte(sseLine(c)))
			flusher.Flush()
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer server.Close()

	client, err := NewClient(&Config{Endpoint: server.URL, Model: "gpt-4o-mini"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	eventChan := make(chan StreamEvent, 16)
	result, err := client.StreamChatCompletion(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil, 0.5, eventChan)
	if err != nil {
		t.Fatalf("StreamChatCompletion: %v", err)
	}
	close(eventChan)

	if result.Content != "hello" {
		t.Errorf("expected %q, got %q", "hello", result.Content)
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(result.ToolCalls))
	}
	if result.ToolCalls[0].Function.Name != "web_search" {
		t.Errorf("expected web_search, got %s", result.ToolCalls[0].Function.Name)
	}
	if result.ToolCalls[0].Function.Arguments != `{"q":"go"}` {
		t.Errorf("expected assembled arguments, got %s", result.ToolCalls[0].Function.Arguments)
	}

	var sawText, sawToolCall bool
	for ev := range eventChan {
		switch ev.Type {
		case StreamEventText:
			sawText = true
		case StreamEventToolCall:
			sawToolCall = true
		}
	}
	if !sawText || !sawToolCall {
		t.Errorf("expected both text and tool_call events, sawText=%v sawToolCall=%v", sawText, sawToolCall)
	}
}

func TestToOpenAITools_NilWhenEmpty(t *testing.T) {
	if got := toOpenAITools(nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestToOpenAIMessages_CarriesToolCallID(t *testing.T) {
	messages := []Message{{Role: RoleTool, Content: "result", ToolCallID: "call_1"}}
	got := toOpenAIMessages(messages)
	if len(got) != 1 || got[0].ToolCallID != "call_1" {
		t.Errorf("expected tool_call_id to round-trip, got %v", got)
	}
}

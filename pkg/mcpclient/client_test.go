package mcpclient

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestSanitizeArguments_RedactsSensitiveKeys(t *testing.T) {
	args := map[string]any{
		"query":       "go generics",
		"api_key":     "sk-abc123",
		"password":    "hunter2",
		"auth_token":  "xyz",
		"credentials": "whatever",
	}

	sanitized := sanitizeArguments(args)

	for _, key := range []string{"api_key", "password", "auth_token", "credentials"} {
		if sanitized[key] != "[REDACTED]" {
			t.Errorf("expected %s to be redacted, got %v", key, sanitized[key])
		}
	}
	if sanitized["query"] != "go generics" {
		t.Errorf("expected query to pass through unchanged, got %v", sanitized["query"])
	}
}

func TestSanitizeArguments_TruncatesLongStrings(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	args := map[string]any{"body": string(long)}

	sanitized := sanitizeArguments(args)

	s, ok := sanitized["body"].(string)
	if !ok {
		t.Fatalf("expected string, got %T", sanitized["body"])
	}
	if len(s) >= len(long) {
		t.Errorf("expected truncation, got length %d", len(s))
	}
}

func TestSanitizeArguments_LeavesNonStringValuesAlone(t *testing.T) {
	args := map[string]any{"limit": 42, "enabled": true}

	sanitized := sanitizeArguments(args)

	if sanitized["limit"] != 42 || sanitized["enabled"] != true {
		t.Errorf("expected non-string values unchanged, got %v", sanitized)
	}
}

func TestContentToString_JoinsTextContent(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "first"},
			mcp.TextContent{Type: "text", Text: "second"},
		},
	}

	got := contentToString(result)
	want := "first\nsecond"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestContentToString_EmptyWhenNoTextContent(t *testing.T) {
	result := &mcp.CallToolResult{}

	if got := contentToString(result); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

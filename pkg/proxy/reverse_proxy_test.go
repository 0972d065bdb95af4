package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestReverseProxyHandler_ForwardsToConfiguredUpstream(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	h, err := NewReverseProxyHandler(upstream.URL, "https://api.openai.com/v1", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/anthropic/v1/models", nil)
	req.SetPathValue("provider", "anthropic")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotPath != "/v1/models" {
		t.Errorf("expected prefix stripped to /v1/models, got %s", gotPath)
	}
}

func TestReverseProxyHandler_UnknownProvider(t *testing.T) {
	h, err := NewReverseProxyHandler("https://api.anthropic.com", "https://api.openai.com/v1", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/unknown/models", nil)
	req.SetPathValue("provider", "unknown")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestJoinURLPath(t *testing.T) {
	cases := []struct {
		a, b, want string
	}{
		{"/v1", "/models", "/v1/models"},
		{"/v1/", "/models", "/v1/models"},
		{"/v1", "models", "/v1/models"},
		{"/v1/", "models", "/v1/models"},
	}
	for _, c := range cases {
		if got := joinURLPath(c.a, c.b); got != c.want {
			t.Errorf("joinURLPath(%q, %q) = %q, want %q", c.a, c.b, got, c.want)
		}
	}
}

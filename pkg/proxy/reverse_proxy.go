package proxy

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/handlers"
)

// ReverseProxyHandler forwards any `/v1/{provider}/...` request that isn't
// one of the completion endpoints OpenAIHandler or AnthropicHandler claim,
// straight through to that provider's upstream, unmodified beyond the
// prefix strip. http.ServeMux always prefers the more specific literal
// pattern, so this handler only ever sees what the completion handlers
// didn't register routes for.
type ReverseProxyHandler struct {
	proxies map[string]*httputil.ReverseProxy
	logger  *zap.Logger
}

// NewReverseProxyHandler builds a ReverseProxyHandler keyed by provider name.
func NewReverseProxyHandler(anthropicBaseURL, openaiBaseURL string, logger *zap.Logger) (*ReverseProxyHandler, error) {
	anthropicURL, err := url.Parse(anthropicBaseURL)
	if err != nil {
		return nil, err
	}
	openaiURL, err := url.Parse(openaiBaseURL)
	if err != nil {
		return nil, err
	}

	return &ReverseProxyHandler{
		proxies: map[string]*httputil.ReverseProxy{
			"anthropic": newPrefixStrippingProxy(anthropicURL, "/v1/anthropic"),
			"openai":    newPrefixStrippingProxy(openaiURL, "/v1/openai"),
		},
		logger: logger.Named("proxy.reverse"),
	}, nil
}

// RegisterRoutes registers the catch-all provider route on mux.
func (h *ReverseProxyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/{provider}/", h.ServeHTTP)
}

func (h *ReverseProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	target, ok := h.proxies[provider]
	if !ok {
		_ = handlers.WriteError(w, http.StatusNotFound, handlers.ErrorTypeNotFound, "unknown provider: "+provider)
		return
	}
	target.ServeHTTP(w, r)
}

func newPrefixStrippingProxy(target *url.URL, prefix string) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.URL.Path = joinURLPath(target.Path, strings.TrimPrefix(req.URL.Path, prefix))
			req.Host = target.Host
		},
	}
}

func joinURLPath(a, b string) string {
	aSlash := strings.HasSuffix(a, "/")
	bSlash := strings.HasPrefix(b, "/")
	switch {
	case aSlash && bSlash:
		return a + b[1:]
	case !aSlash && !bSlash:
		return a + "/" + b
	default:
		return a + b
	}
}

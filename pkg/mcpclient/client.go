// Package mcpclient is the outbound collaborator for tool execution: it
// dispatches a permitted tool call to the MCP endpoint that declared the
// tool and returns the raw result content for trust classification.
package mcpclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/config"
	"github.com/archestra-ai/gateway/pkg/llm"
	"github.com/archestra-ai/gateway/pkg/models"
	"github.com/archestra-ai/gateway/pkg/retry"
)

// toolCallRetryConfig governs retries of a single outbound tool call within
// the CallTimeoutSeconds window, before the circuit breaker is consulted
// again. Endpoints are remote MCP servers the gateway doesn't control, so a
// connection reset or a 503 is worth up to two quick retries rather than an
// immediate refusal.
var toolCallRetryConfig = &retry.Config{
	MaxRetries:   2,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
	JitterFactor: 0.1,
}

// Client dispatches tool calls to MCP endpoints over streamable HTTP,
// keeping one connection and one circuit breaker per endpoint.
type Client struct {
	cfg    config.MCPConfig
	logger *zap.Logger

	mu        sync.Mutex
	endpoints map[string]*endpointConn
}

type endpointConn struct {
	initOnce sync.Once
	initErr  error
	mcp      *client.Client
	breaker  *llm.CircuitBreaker
}

// NewClient constructs an outbound MCP Client.
func NewClient(cfg config.MCPConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg:       cfg,
		logger:    logger.Named("mcpclient"),
		endpoints: make(map[string]*endpointConn),
	}
}

// CallTool invokes tool against its declared endpoint with arguments and
// returns the result content as a string, either already-valid JSON or
// plain text depending on what the endpoint returned.
func (c *Client) CallTool(ctx context.Context, tool *models.Tool, arguments map[string]any) (string, error) {
	if tool.Endpoint == "" {
		return "", fmt.Errorf("mcpclient: tool %s has no endpoint configured", tool.Name)
	}

	conn, err := c.connFor(ctx, tool.Endpoint)
	if err != nil {
		return "", err
	}

	allowed, err := conn.breaker.Allow()
	if !allowed {
		return "", fmt.Errorf("mcpclient: endpoint %s unavailable: %w", tool.Endpoint, err)
	}

	c.logger.Debug("calling tool",
		zap.String("tool", tool.Name),
		zap.String("endpoint", tool.Endpoint),
		zap.Any("arguments", sanitizeArguments(arguments)),
	)

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.CallTimeoutSeconds)*time.Second)
	defer cancel()

	start := time.Now()
	var result *mcp.CallToolResult
	attempts := 0
	err = retry.DoIfRetryable(callCtx, toolCallRetryConfig, func() error {
		attempts++
		var callErr error
		result, callErr = conn.mcp.CallTool(callCtx, mcp.CallToolRequest{
			Params: mcp.CallToolParams{
				Name:      tool.Name,
				Arguments: arguments,
			},
		})
		return callErr
	})
	elapsed := time.Since(start)

	if err != nil {
		conn.breaker.RecordFailure()
		c.logger.Error("tool call failed",
			zap.String("tool", tool.Name),
			zap.String("endpoint", tool.Endpoint),
			zap.Duration("elapsed", elapsed),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return "", fmt.Errorf("mcpclient: call tool %s: %w", tool.Name, err)
	}

	content := contentToString(result)

	if result.IsError {
		conn.breaker.RecordFailure()
		c.logger.Warn("tool reported an error result",
			zap.String("tool", tool.Name),
			zap.String("endpoint", tool.Endpoint),
		)
		return "", fmt.Errorf("mcpclient: tool %s returned an error: %s", tool.Name, content)
	}

	conn.breaker.RecordSuccess()
	c.logger.Info("tool call completed",
		zap.String("tool", tool.Name),
		zap.String("endpoint", tool.Endpoint),
		zap.Duration("elapsed", elapsed),
	)

	return content, nil
}

// connFor returns the cached connection for endpoint, establishing and
// initializing it on first use.
func (c *Client) connFor(ctx context.Context, endpoint string) (*endpointConn, error) {
	c.mu.Lock()
	conn, ok := c.endpoints[endpoint]
	if !ok {
		conn = &endpointConn{
			breaker: llm.NewCircuitBreaker(llm.CircuitBreakerConfig{
				Threshold:  c.cfg.CircuitBreakerThreshold,
				ResetAfter: time.Duration(c.cfg.CircuitBreakerResetSeconds) * time.Second,
			}),
		}
		c.endpoints[endpoint] = conn
	}
	c.mu.Unlock()

	conn.initOnce.Do(func() {
		conn.initErr = conn.initialize(ctx, endpoint)
	})
	if conn.initErr != nil {
		return nil, conn.initErr
	}
	return conn, nil
}

func (conn *endpointConn) initialize(ctx context.Context, endpoint string) error {
	mcpClient, err := client.NewStreamableHttpClient(endpoint)
	if err != nil {
		return fmt.Errorf("mcpclient: connect to %s: %w", endpoint, err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("mcpclient: start transport for %s: %w", endpoint, err)
	}

	_, err = mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "archestra-gateway",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		return fmt.Errorf("mcpclient: initialize session with %s: %w", endpoint, err)
	}

	conn.mcp = mcpClient
	return nil
}

// Close tears down every open endpoint connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for endpoint, conn := range c.endpoints {
		if conn.mcp == nil {
			continue
		}
		if err := conn.mcp.Close(); err != nil {
			c.logger.Warn("error closing mcp connection", zap.String("endpoint", endpoint), zap.Error(err))
		}
	}
}

func contentToString(result *mcp.CallToolResult) string {
	var parts []string
	for _, item := range result.Content {
		if text, ok := item.(mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// redactedKeywords matches argument keys that must never appear in logs.
var redactedKeywords = []string{"password", "secret", "token", "key", "credential"}

const maxLoggedValueLen = 200

// sanitizeArguments returns a copy of arguments safe to log: sensitive keys
// are redacted and long string values are truncated.
func sanitizeArguments(arguments map[string]any) map[string]any {
	sanitized := make(map[string]any, len(arguments))
	for k, v := range arguments {
		lower := strings.ToLower(k)
		redact := false
		for _, kw := range redactedKeywords {
			if strings.Contains(lower, kw) {
				redact = true
				break
			}
		}
		if redact {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if s, ok := v.(string); ok && len(s) > maxLoggedValueLen {
			sanitized[k] = s[:maxLoggedValueLen] + "...[truncated]"
			continue
		}
		sanitized[k] = v
	}
	return sanitized
}

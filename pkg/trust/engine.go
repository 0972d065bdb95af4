// Package trust implements the trusted-data policy engine: classifying
// tool-result messages as trusted, untrusted, or blocked based on an
// agent's trusted-data policies, and filtering blocked content out of
// outbound conversations.
package trust

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/attrpath"
	"github.com/archestra-ai/gateway/pkg/audit"
	"github.com/archestra-ai/gateway/pkg/models"
)

// ToolCallResolver maps a tool_call_id seen in a chat back to the tool
// that was invoked, by walking prior assistant messages of that chat.
type ToolCallResolver interface {
	ResolveToolCall(ctx context.Context, agentID uuid.UUID, chatID, toolCallID string) (*models.Tool, error)
}

// PolicyLookup resolves the trusted-data policies an agent has opted in to
// for a given tool.
type PolicyLookup interface {
	PoliciesForAgentTool(ctx context.Context, agentID, toolID uuid.UUID) ([]models.TrustedDataPolicy, error)
}

// InteractionRecorder persists the classification outcome for a tool-result
// message.
type InteractionRecorder interface {
	RecordToolResult(ctx context.Context, interaction *models.Interaction) error
}

// ClassificationStore looks up the persisted classification of a tool
// message by its tool_call_id, used by the filter pass.
type ClassificationStore interface {
	ClassificationForToolCall(ctx context.Context, chatID, toolCallID string) (trusted, blocked bool, found bool, err error)
}

// Engine evaluates and persists trust classifications for tool-result
// messages, and filters blocked content before it reaches the primary model.
type Engine struct {
	resolver   ToolCallResolver
	policies   PolicyLookup
	recorder   InteractionRecorder
	classified ClassificationStore
	auditor    *audit.SecurityAuditor
	logger     *zap.Logger
}

// NewEngine constructs a trusted-data policy Engine.
func NewEngine(resolver ToolCallResolver, policies PolicyLookup, recorder InteractionRecorder, classified ClassificationStore, auditor *audit.SecurityAuditor, logger *zap.Logger) *Engine {
	return &Engine{
		resolver:   resolver,
		policies:   policies,
		recorder:   recorder,
		classified: classified,
		auditor:    auditor,
		logger:     logger.Named("trust"),
	}
}

// Classification is the per-message outcome of EvaluatePolicies.
type Classification struct {
	ToolCallID string
	Trusted    bool
	Blocked    bool
	Reason     string
}

// EvaluatePolicies classifies every tool message in messages, persisting one
// Interaction per message. Non-tool messages and tool messages with no
// resolvable prior tool_call are skipped (the latter is logged as a warning:
// it indicates a malformed conversation).
func (e *Engine) EvaluatePolicies(ctx context.Context, agentID uuid.UUID, chatID string, messages []models.Message) ([]Classification, error) {
	var results []Classification

	for _, msg := range messages {
		if msg.Role != models.RoleTool {
			continue
		}

		tool, err := e.resolver.ResolveToolCall(ctx, agentID, chatID, msg.ToolCallID)
		if err != nil {
			e.logger.Warn("tool message has no resolvable prior tool_call; malformed conversation",
				zap.String("chat_id", chatID),
				zap.String("tool_call_id", msg.ToolCallID),
				zap.Error(err),
			)
			continue
		}

		classification, err := e.classifyOne(ctx, agentID, chatID, tool, msg)
		if err != nil {
			return results, err
		}
		results = append(results, classification)
	}

	return results, nil
}

func (e *Engine) classifyOne(ctx context.Context, agentID uuid.UUID, chatID string, tool *models.Tool, msg models.Message) (Classification, error) {
	policies, err := e.policies.PoliciesForAgentTool(ctx, agentID, tool.ID)
	if err != nil {
		return Classification{}, fmt.Errorf("trust: loading policies for tool %s: %w", tool.Name, err)
	}

	raw := contentAsJSON(msg.Content)

	var blockPolicies, trustPolicies []models.TrustedDataPolicy
	for _, p := range policies {
		switch p.Action {
		case models.TrustActionBlockAlways:
			blockPolicies = append(blockPolicies, p)
		case models.TrustActionMarkTrusted:
			trustPolicies = append(trustPolicies, p)
		}
	}

	if policy, ok := firstMatch(raw, blockPolicies); ok {
		return e.persist(ctx, agentID, chatID, tool, msg.ToolCallID, false, true, policy.Description)
	}

	if policy, ok := firstMatch(raw, trustPolicies); ok {
		return e.persist(ctx, agentID, chatID, tool, msg.ToolCallID, true, false, policy.Description)
	}

	return e.persist(ctx, agentID, chatID, tool, msg.ToolCallID, false, false, "content does not match any trust policies")
}

func firstMatch(raw []byte, policies []models.TrustedDataPolicy) (models.TrustedDataPolicy, bool) {
	for _, p := range policies {
		result, err := attrpath.EvaluateCondition(raw, p.AttributePath, p.Operator, p.Value)
		if err != nil {
			// Fail-closed: a malformed path never matches; the caller still
			// falls through to the next policy or the default outcome.
			continue
		}
		if result.Matched {
			return p, true
		}
	}
	return models.TrustedDataPolicy{}, false
}

func (e *Engine) persist(ctx context.Context, agentID uuid.UUID, chatID string, tool *models.Tool, toolCallID string, trusted, blocked bool, reason string) (Classification, error) {
	interaction := &models.Interaction{
		ID:         uuid.New(),
		AgentID:    agentID,
		ChatID:     &chatID,
		Type:       models.InteractionTypeToolResult,
		Trusted:    trusted,
		Blocked:    blocked,
		Reason:     reason,
		ToolCallID: toolCallID,
	}

	if err := e.recorder.RecordToolResult(ctx, interaction); err != nil {
		return Classification{}, fmt.Errorf("trust: recording interaction: %w", err)
	}

	e.auditor.LogClassification(ctx, agentID, chatID, audit.ClassificationDetails{
		ToolName: tool.Name,
		Trusted:  trusted,
		Blocked:  blocked,
		Reason:   reason,
	})

	return Classification{ToolCallID: toolCallID, Trusted: trusted, Blocked: blocked, Reason: reason}, nil
}

// FilterOutBlockedData returns the subset of messages omitting every tool
// message whose prior persisted interaction had blocked=true. Non-tool
// messages pass through unchanged.
func (e *Engine) FilterOutBlockedData(ctx context.Context, chatID string, messages []models.Message) ([]models.Message, error) {
	filtered := make([]models.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != models.RoleTool {
			filtered = append(filtered, msg)
			continue
		}

		_, blocked, found, err := e.classified.ClassificationForToolCall(ctx, chatID, msg.ToolCallID)
		if err != nil {
			return nil, fmt.Errorf("trust: looking up classification: %w", err)
		}
		if found && blocked {
			continue
		}
		filtered = append(filtered, msg)
	}
	return filtered, nil
}

// contentAsJSON returns content as-is if it already parses as JSON,
// otherwise wraps it as a single scalar keyed at the root per §4.2 step 2.
func contentAsJSON(content string) []byte {
	var probe any
	if err := json.Unmarshal([]byte(content), &probe); err == nil {
		return []byte(content)
	}
	wrapped, err := json.Marshal(map[string]any{"value": content})
	if err != nil {
		return []byte(`{}`)
	}
	return wrapped
}


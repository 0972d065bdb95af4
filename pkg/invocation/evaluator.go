// Package invocation implements the tool-invocation policy evaluator:
// deciding, per proposed tool call, whether the call is permitted given the
// current context-trust level and the agent's invocation policies.
package invocation

import (
	"context"
	"encoding/json"
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/audit"
	"github.com/archestra-ai/gateway/pkg/jsonutil"
	"github.com/archestra-ai/gateway/pkg/models"
)

// ToolLookup resolves a tool by name for an agent, including its
// allow-usage-when-untrusted flag.
type ToolLookup interface {
	ToolByName(ctx context.Context, agentID uuid.UUID, name string) (*models.Tool, error)
}

// PolicyLookup resolves the invocation policies configured for a given tool.
type PolicyLookup interface {
	PoliciesForTool(ctx context.Context, agentID uuid.UUID, toolName string) ([]models.ToolInvocationPolicy, error)
}

// ProposedCall is one tool call the primary model wants to make.
type ProposedCall struct {
	ID        string
	Name      string
	Arguments string
}

// Refusal is the pair returned on the first policy match: a structured
// payload suitable for persisted audit records, and a plain-text message
// suitable to stream to the end user.
type Refusal struct {
	AuditPayload string
	UserMessage  string
	PolicyID     string
	ToolName     string
}

// Evaluator decides whether proposed tool calls are permitted.
type Evaluator struct {
	tools    ToolLookup
	policies PolicyLookup
	auditor  *audit.SecurityAuditor
	logger   *zap.Logger
}

// NewEvaluator constructs a tool-invocation policy Evaluator.
func NewEvaluator(tools ToolLookup, policies PolicyLookup, auditor *audit.SecurityAuditor, logger *zap.Logger) *Evaluator {
	return &Evaluator{tools: tools, policies: policies, auditor: auditor, logger: logger.Named("invocation")}
}

// Evaluate walks calls in order and returns the first refusal encountered,
// or nil if every call is permitted.
func (e *Evaluator) Evaluate(ctx context.Context, agentID uuid.UUID, chatID string, calls []ProposedCall, contextIsTrusted bool) (*Refusal, error) {
	for _, call := range calls {
		refusal, err := e.evaluateOne(ctx, agentID, chatID, call, contextIsTrusted)
		if err != nil {
			return nil, err
		}
		if refusal != nil {
			return refusal, nil
		}
	}
	return nil, nil
}

func (e *Evaluator) evaluateOne(ctx context.Context, agentID uuid.UUID, chatID string, call ProposedCall, contextIsTrusted bool) (*Refusal, error) {
	if refusal := e.checkInjectionSignature(ctx, agentID, chatID, call); refusal != nil {
		return refusal, nil
	}

	tool, err := e.tools.ToolByName(ctx, agentID, call.Name)
	if err != nil {
		return nil, fmt.Errorf("invocation: resolving tool %s: %w", call.Name, err)
	}

	policies, err := e.policies.PoliciesForTool(ctx, agentID, call.Name)
	if err != nil {
		return nil, fmt.Errorf("invocation: loading policies for tool %s: %w", call.Name, err)
	}

	for _, p := range policies {
		switch p.Action {
		case models.InvocationActionRequireTrustedContext:
			if !contextIsTrusted {
				return e.refuse(ctx, agentID, chatID, call.Name, p)
			}
		case models.InvocationActionBlockAlways:
			return e.refuse(ctx, agentID, chatID, call.Name, p)
		}
	}

	if !tool.AllowUsageWhenUntrustedDataIsPresent && !contextIsTrusted {
		return e.refuse(ctx, agentID, chatID, call.Name, models.ToolInvocationPolicy{
			ID:          uuid.Nil,
			ToolName:    call.Name,
			Action:      models.InvocationActionRequireTrustedContext,
			Description: "tool does not allow usage while untrusted data is present",
		})
	}

	return nil, nil
}

// checkInjectionSignature scans a proposed call's arguments for SQL
// injection signatures (libinjection.IsSQLi) independent of any configured policy, a built-in
// floor beneath the policy-driven checks below it. Models occasionally
// round-trip a value through a different JSON type than the tool schema
// declares (a number sent as "42", a filter sent as a raw object), so every
// argument is coerced to its string form before scanning rather than
// skipping anything that isn't already a JSON string. Malformed argument
// JSON is skipped; a tool call this evaluator cannot parse is left to the
// configured policies.
func (e *Evaluator) checkInjectionSignature(ctx context.Context, agentID uuid.UUID, chatID string, call ProposedCall) *Refusal {
	var args map[string]json.RawMessage
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return nil
	}

	for name, raw := range args {
		strValue := jsonutil.FlexibleStringValue(raw)
		if strValue == "" {
			continue
		}
		if isSQLi, fingerprint := libinjection.IsSQLi(strValue); isSQLi {
			return e.refuseInjection(ctx, agentID, chatID, call.Name, name, string(fingerprint))
		}
	}
	return nil
}

func (e *Evaluator) refuseInjection(ctx context.Context, agentID uuid.UUID, chatID, toolName, paramName, fingerprint string) *Refusal {
	userMessage := fmt.Sprintf("I can't use the %s tool with that input: it matches a known injection pattern.", toolName)
	auditPayload := fmt.Sprintf(`<archestra-refusal type="injection_signature" tool="%s" reason="%s">%s</archestra-refusal>`,
		toolName, fingerprint, userMessage)

	e.auditor.LogInjectionSignatureDetected(ctx, agentID, chatID, audit.InjectionSignatureDetails{
		ToolName:    toolName,
		ParamName:   paramName,
		Fingerprint: fingerprint,
	})

	return &Refusal{
		AuditPayload: auditPayload,
		UserMessage:  userMessage,
		PolicyID:     "",
		ToolName:     toolName,
	}
}

func (e *Evaluator) refuse(ctx context.Context, agentID uuid.UUID, chatID, toolName string, policy models.ToolInvocationPolicy) (*Refusal, error) {
	userMessage := fmt.Sprintf("I can't use the %s tool right now: %s", toolName, policy.Description)
	auditPayload := fmt.Sprintf(`<archestra-refusal type="tool_invocation" tool="%s" reason="%s">%s</archestra-refusal>`,
		toolName, policy.ID, userMessage)

	e.auditor.LogToolInvocationRefused(ctx, agentID, chatID, audit.InvocationRefusalDetails{
		ToolName:  toolName,
		PolicyID:  policy.ID.String(),
		Condition: string(policy.Action),
	})

	return &Refusal{
		AuditPayload: auditPayload,
		UserMessage:  userMessage,
		PolicyID:     policy.ID.String(),
		ToolName:     toolName,
	}, nil
}

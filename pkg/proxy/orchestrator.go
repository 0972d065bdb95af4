// Package proxy implements the streaming proxy orchestrator: the request
// lifecycle shared by the Anthropic and OpenAI provider-compatible surfaces.
// Received -> Validated -> QuotaOk -> ToolsInjected -> TrustEvaluated ->
// PrimaryStreaming -> ToolsBuffered -> InvocationEvaluated ->
// (Refused | Flushed) -> Persisted -> Closed.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/config"
	"github.com/archestra-ai/gateway/pkg/dualllm"
	"github.com/archestra-ai/gateway/pkg/invocation"
	"github.com/archestra-ai/gateway/pkg/llm"
	"github.com/archestra-ai/gateway/pkg/mcpclient"
	"github.com/archestra-ai/gateway/pkg/models"
	"github.com/archestra-ai/gateway/pkg/quota"
	"github.com/archestra-ai/gateway/pkg/trust"
)

// AgentStore resolves and upserts the agents and tools the orchestrator
// needs, per §4.6 steps 1 and 3.
type AgentStore interface {
	GetByID(ctx context.Context, agentID uuid.UUID) (*models.Agent, error)
	GetOrCreateDefaultAgent(ctx context.Context, name string) (*models.Agent, error)
}

// ToolStore upserts declared tools and resolves the agent's managed tool
// set, per §4.6 step 3.
type ToolStore interface {
	Upsert(ctx context.Context, tool *models.Tool) error
	ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*models.Tool, error)
}

// InteractionStore persists the final Interaction per request and the
// tool_call_id -> tool_name mapping needed to resolve later tool-result
// messages in the same chat.
type InteractionStore interface {
	Record(ctx context.Context, interaction *models.Interaction) error
	RecordProposedToolCalls(ctx context.Context, chatID string, calls []models.ToolCall) error
}

// Orchestrator holds every collaborator the Anthropic and OpenAI handlers
// share. Provider-specific wire conversion lives in the handlers; this type
// only ever operates on the common internal Message/Tool shapes.
type Orchestrator struct {
	agents       AgentStore
	tools        ToolStore
	interactions InteractionStore
	trustEngine  *trust.Engine
	dualLLM      *dualllm.Evaluator
	invocation   *invocation.Evaluator
	quota        *quota.Enforcer
	mcp          *mcpclient.Client
	pool         *llm.WorkerPool
	cfg          config.ProxyConfig
	logger       *zap.Logger
}

// New constructs an Orchestrator.
func New(
	agents AgentStore,
	tools ToolStore,
	interactions InteractionStore,
	trustEngine *trust.Engine,
	dualLLM *dualllm.Evaluator,
	invocationEvaluator *invocation.Evaluator,
	enforcer *quota.Enforcer,
	mcp *mcpclient.Client,
	cfg config.ProxyConfig,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		agents:       agents,
		tools:        tools,
		interactions: interactions,
		trustEngine:  trustEngine,
		dualLLM:      dualLLM,
		invocation:   invocationEvaluator,
		quota:        enforcer,
		mcp:          mcp,
		pool:         llm.NewWorkerPool(llm.DefaultWorkerPoolConfig(), logger),
		cfg:          cfg,
		logger:       logger.Named("proxy"),
	}
}

// Refusal is the provider-agnostic refusal pair produced by the quota,
// trust, or invocation layers. Handlers translate it into the provider's
// native response shape.
type Refusal struct {
	Type         string // "token_cost" or "tool_invocation"
	AuditPayload string
	UserMessage  string
}

// ResolveAgent implements §4.6 step 1: resolve by path-carried ID, or
// get-or-create a default agent keyed by the caller's user-agent.
func (o *Orchestrator) ResolveAgent(ctx context.Context, pathAgentID *uuid.UUID, userAgent string) (*models.Agent, error) {
	if pathAgentID != nil {
		return o.agents.GetByID(ctx, *pathAgentID)
	}
	if userAgent == "" {
		userAgent = "unknown"
	}
	return o.agents.GetOrCreateDefaultAgent(ctx, userAgent)
}

// CheckQuota implements §4.6 step 2.
func (o *Orchestrator) CheckQuota(ctx context.Context, agentID uuid.UUID, model string) (*Refusal, error) {
	refusal, err := o.quota.PreCheck(ctx, agentID, model)
	if err != nil {
		return nil, fmt.Errorf("proxy: quota pre-check: %w", err)
	}
	if refusal == nil {
		return nil, nil
	}
	return &Refusal{Type: "token_cost", AuditPayload: refusal.AuditPayload, UserMessage: refusal.UserMessage}, nil
}

// MergeTools implements §4.6 step 3: upsert every inbound tool declaration,
// then overlay the agent's managed tools, which win on name collision.
func (o *Orchestrator) MergeTools(ctx context.Context, agentID uuid.UUID, declared []models.Tool) ([]*models.Tool, error) {
	for i := range declared {
		declared[i].AgentID = agentID
		if err := o.tools.Upsert(ctx, &declared[i]); err != nil {
			return nil, fmt.Errorf("proxy: upsert declared tool %s: %w", declared[i].Name, err)
		}
	}

	managed, err := o.tools.ListByAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("proxy: list managed tools: %w", err)
	}

	byName := make(map[string]*models.Tool, len(declared)+len(managed))
	for i := range declared {
		byName[declared[i].Name] = &declared[i]
	}
	for _, t := range managed {
		byName[t.Name] = t
	}

	merged := make([]*models.Tool, 0, len(byName))
	for _, t := range byName {
		merged = append(merged, t)
	}
	return merged, nil
}

// TrustResult is the outcome of EvaluateTrust: the filtered message list
// ready to send upstream, and whether the resulting context is trusted.
type TrustResult struct {
	Messages         []models.Message
	ContextIsTrusted bool
	Progress         []dualllm.ProgressTuple
}

// EvaluateTrust implements §4.6 step 4: classify tool messages (§4.2),
// resolve untrusted content through the secondary model (§4.3), apply the
// rewrites, and filter out blocked content.
func (o *Orchestrator) EvaluateTrust(ctx context.Context, agentID uuid.UUID, chatID, question string, messages []models.Message, toolsByName map[string]*models.Tool) (TrustResult, error) {
	classifications, err := o.trustEngine.EvaluatePolicies(ctx, agentID, chatID, messages)
	if err != nil {
		return TrustResult{}, fmt.Errorf("proxy: evaluate trust policies: %w", err)
	}

	classByCallID := make(map[string]pendingInfo, len(classifications))
	for _, c := range classifications {
		classByCallID[c.ToolCallID] = pendingInfo{trusted: c.Trusted, blocked: c.Blocked}
	}

	var pending []dualllm.PendingContent
	for _, msg := range messages {
		if msg.Role != models.RoleTool {
			continue
		}
		info, ok := classByCallID[msg.ToolCallID]
		if !ok {
			continue
		}
		tool := toolsByName[resolveToolNameForCall(messages, msg.ToolCallID)]
		pending = append(pending, dualllm.PendingContent{
			ToolCallID:             msg.ToolCallID,
			ToolName:               toolNameOrEmpty(tool),
			Content:                msg.Content,
			Trusted:                info.trusted,
			Blocked:                info.blocked,
			DataIsTrustedByDefault: tool != nil && tool.DataIsTrustedByDefault,
			HasPolicies:            info.trusted || info.blocked,
		})
	}

	secondaryCtx := llm.WithConversationContext(ctx, agentID, chatID, 0, models.LLMConversationRoleSecondary)
	progressChan := make(chan dualllm.ProgressTuple, len(pending))
	result := o.dualLLM.EvaluateIfContextIsTrusted(secondaryCtx, question, pending, progressChan)
	close(progressChan)

	progress := make([]dualllm.ProgressTuple, 0, len(pending))
	for p := range progressChan {
		progress = append(progress, p)
	}

	rewritten := make([]models.Message, len(messages))
	copy(rewritten, messages)
	for i, msg := range rewritten {
		if replacement, ok := result.ToolResultUpdates[msg.ToolCallID]; ok {
			rewritten[i].Content = replacement
		}
	}

	filtered, err := o.trustEngine.FilterOutBlockedData(ctx, chatID, rewritten)
	if err != nil {
		return TrustResult{}, fmt.Errorf("proxy: filter blocked data: %w", err)
	}

	return TrustResult{Messages: filtered, ContextIsTrusted: result.ContextIsTrusted, Progress: progress}, nil
}

type pendingInfo struct {
	trusted bool
	blocked bool
}

func resolveToolNameForCall(messages []models.Message, toolCallID string) string {
	for _, msg := range messages {
		if msg.Role != models.RoleAssistant {
			continue
		}
		for _, tc := range msg.ToolCalls {
			if tc.ID == toolCallID {
				return tc.Name
			}
		}
	}
	return ""
}

func toolNameOrEmpty(tool *models.Tool) string {
	if tool == nil {
		return ""
	}
	return tool.Name
}

// EvaluateInvocation implements §4.6 step 7: run tool-invocation policy on
// the accumulated proposed calls with the trust level carried from step 4.
func (o *Orchestrator) EvaluateInvocation(ctx context.Context, agentID uuid.UUID, chatID string, calls []models.ToolCall, contextIsTrusted bool) (*Refusal, error) {
	proposed := make([]invocation.ProposedCall, len(calls))
	for i, c := range calls {
		proposed[i] = invocation.ProposedCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments}
	}

	refusal, err := o.invocation.Evaluate(ctx, agentID, chatID, proposed, contextIsTrusted)
	if err != nil {
		return nil, fmt.Errorf("proxy: evaluate tool invocation policy: %w", err)
	}
	if refusal == nil {
		return nil, nil
	}
	return &Refusal{Type: "tool_invocation", AuditPayload: refusal.AuditPayload, UserMessage: refusal.UserMessage}, nil
}

// ToolResult is the outcome of one executed tool call, ready to be appended
// to the conversation as a role=tool message.
type ToolResult struct {
	ToolCallID string
	Content    string
	Err        error
}

// ExecuteTools implements §4.6 step 8's external collaboration: dispatch
// every proposed call to its declared MCP endpoint concurrently, bounded by
// the shared worker pool.
func (o *Orchestrator) ExecuteTools(ctx context.Context, calls []models.ToolCall, toolsByName map[string]*models.Tool) []ToolResult {
	items := make([]llm.WorkItem[ToolResult], 0, len(calls))
	for _, call := range calls {
		call := call
		items = append(items, llm.WorkItem[ToolResult]{
			ID: call.ID,
			Execute: func(ctx context.Context) (ToolResult, error) {
				tool, ok := toolsByName[call.Name]
				if !ok {
					return ToolResult{ToolCallID: call.ID, Err: fmt.Errorf("proxy: unknown tool %s", call.Name)}, nil
				}

				var args map[string]any
				if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
					return ToolResult{ToolCallID: call.ID, Err: fmt.Errorf("proxy: unmarshal arguments for %s: %w", call.Name, err)}, nil
				}

				content, err := o.mcp.CallTool(ctx, tool, args)
				return ToolResult{ToolCallID: call.ID, Content: content, Err: err}, nil
			},
		})
	}

	results := llm.Process(ctx, o.pool, items, nil)
	out := make([]ToolResult, len(results))
	for i, r := range results {
		out[i] = r.Result
	}
	return out
}

// DispatchQuotaUpdate implements §4.6's post-update step of §4.5.
func (o *Orchestrator) DispatchQuotaUpdate(ctx context.Context, agentID uuid.UUID, tokensIn, tokensOut int64) {
	o.quota.DispatchUpdate(ctx, agentID, tokensIn, tokensOut)
}

// Persist implements §4.6 step 9.
func (o *Orchestrator) Persist(ctx context.Context, interaction *models.Interaction) error {
	if err := o.interactions.Record(ctx, interaction); err != nil {
		o.logger.Warn("audit_persist_failure recording interaction", zap.Error(err))
		return err
	}
	return nil
}

// RecordProposedToolCalls remembers a completion's proposed tool calls so a
// later tool-result message in the same chat can resolve its tool.
func (o *Orchestrator) RecordProposedToolCalls(ctx context.Context, chatID string, calls []models.ToolCall) {
	if len(calls) == 0 {
		return
	}
	if err := o.interactions.RecordProposedToolCalls(ctx, chatID, calls); err != nil {
		o.logger.Warn("audit_persist_failure recording proposed tool calls", zap.Error(err))
	}
}

// ToolsByName indexes a merged tool list by name for O(1) lookup during
// invocation evaluation and execution.
func ToolsByName(tools []*models.Tool) map[string]*models.Tool {
	byName := make(map[string]*models.Tool, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}
	return byName
}

// MaxToolIterations returns the configured bound on tool-call rounds for a
// single request.
func (o *Orchestrator) MaxToolIterations() int {
	if o.cfg.MaxToolIterations <= 0 {
		return 1
	}
	return o.cfg.MaxToolIterations
}

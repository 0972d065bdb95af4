package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/dualllm"
	"github.com/archestra-ai/gateway/pkg/handlers"
	"github.com/archestra-ai/gateway/pkg/llm"
	"github.com/archestra-ai/gateway/pkg/models"
)

// AnthropicHandler serves the Anthropic-compatible Messages surface.
type AnthropicHandler struct {
	orchestrator *Orchestrator
	agents       AgentStore
	client       *llm.AnthropicClient
	logger       *zap.Logger
}

// NewAnthropicHandler constructs an AnthropicHandler.
func NewAnthropicHandler(orchestrator *Orchestrator, agents AgentStore, client *llm.AnthropicClient, logger *zap.Logger) *AnthropicHandler {
	return &AnthropicHandler{orchestrator: orchestrator, agents: agents, client: client, logger: logger.Named("proxy.anthropic")}
}

// RegisterRoutes registers the Anthropic-compatible routes on mux.
func (h *AnthropicHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/anthropic/v1/messages", h.Messages)
	mux.HandleFunc("POST /v1/anthropic/v1/{agentId}/messages", h.Messages)
}

// Messages handles a single Messages API request end to end, mirroring the
// lifecycle OpenAIHandler.Completions runs for the OpenAI surface.
func (h *AnthropicHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req anthropic.MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = handlers.WriteError(w, http.StatusBadRequest, handlers.ErrorTypeValidation, "invalid request body")
		return
	}

	agent, err := resolveAgentFromRequest(ctx, h.agents, r)
	if err != nil {
		h.logger.Error("resolve agent failed", zap.Error(err))
		_ = handlers.WriteError(w, http.StatusInternalServerError, handlers.ErrorTypeAPI, "failed to resolve agent")
		return
	}

	rawRequest, _ := json.Marshal(req)
	chatID := chatIDFromRequest(r)

	refusal, err := h.orchestrator.CheckQuota(ctx, agent.ID, string(req.Model))
	if err != nil {
		_ = handlers.WriteError(w, http.StatusInternalServerError, handlers.ErrorTypeAPI, "quota check failed")
		return
	}
	if refusal != nil {
		h.persistRefusal(ctx, agent.ID, chatID, rawRequest, refusal)
		h.writeRefusal(w, req, refusal)
		return
	}

	merged, err := h.orchestrator.MergeTools(ctx, agent.ID, anthropicToolsToModels(req.Tools))
	if err != nil {
		_ = handlers.WriteError(w, http.StatusInternalServerError, handlers.ErrorTypeAPI, "failed to merge tools")
		return
	}
	toolsByName := ToolsByName(merged)

	internalMessages := anthropicMessagesToInternal(req.System, req.Messages)
	trustResult, err := h.orchestrator.EvaluateTrust(ctx, agent.ID, chatID, lastUserQuestion(internalMessages), internalMessages, toolsByName)
	if err != nil {
		_ = handlers.WriteError(w, http.StatusInternalServerError, handlers.ErrorTypeAPI, "failed to evaluate trust policies")
		return
	}

	system, wireMessages := internalMessagesToAnthropic(trustResult.Messages)
	req.System = system
	req.Messages = wireMessages
	req.Tools = modelsToolsToAnthropic(merged)

	question := lastUserQuestion(internalMessages)
	if req.Stream {
		h.handleStreaming(ctx, w, agent.ID, chatID, rawRequest, req, trustResult.ContextIsTrusted, trustResult.Progress, toolsByName)
		return
	}
	h.handleNonStreaming(ctx, w, agent.ID, chatID, rawRequest, req, trustResult.ContextIsTrusted, question, toolsByName)
}

// handleNonStreaming implements §4.6 steps 6-10 for the non-streaming path,
// including step 8's tool-execution round trip. Each round's freshly
// executed tool results are re-run through EvaluateTrust before they're
// appended to the next upstream call: §4.2/§4.3 bind every tool-result
// message that reaches the primary model, not just the ones present in the
// client-supplied history, and a live result the orchestrator itself
// fetched mid-request is no exception.
func (h *AnthropicHandler) handleNonStreaming(ctx context.Context, w http.ResponseWriter, agentID uuid.UUID, chatID string, rawRequest []byte, req anthropic.MessagesRequest, contextIsTrusted bool, question string, toolsByName map[string]*models.Tool) {
	for iteration := 0; iteration < h.orchestrator.MaxToolIterations(); iteration++ {
		callCtx := llm.WithConversationContext(ctx, agentID, chatID, iteration, models.LLMConversationRolePrimary)
		resp, err := h.client.CreateMessages(callCtx, req)
		if err != nil {
			h.logger.Error("upstream completion failed", zap.Error(err))
			_ = handlers.WriteError(w, http.StatusBadGateway, handlers.ErrorTypeAPI, "upstream provider error")
			return
		}

		calls := proposedCallsFromAnthropicResponse(resp)
		inputTokens, outputTokens := usageFromAnthropic(resp.Usage)

		if len(calls) == 0 {
			h.finish(ctx, w, agentID, chatID, rawRequest, resp, inputTokens, outputTokens)
			return
		}

		h.orchestrator.RecordProposedToolCalls(ctx, chatID, calls)

		refusal, err := h.orchestrator.EvaluateInvocation(ctx, agentID, chatID, calls, contextIsTrusted)
		if err != nil {
			_ = handlers.WriteError(w, http.StatusInternalServerError, handlers.ErrorTypeAPI, "failed to evaluate tool invocation policy")
			return
		}
		if refusal != nil {
			h.persistRefusal(ctx, agentID, chatID, rawRequest, refusal)
			h.writeRefusal(w, req, refusal)
			return
		}

		results := h.orchestrator.ExecuteTools(ctx, calls, toolsByName)

		roundMessages := make([]models.Message, 0, len(results)+1)
		roundMessages = append(roundMessages, models.Message{Role: models.RoleAssistant, ToolCalls: calls})
		errByCallID := make(map[string]bool, len(results))
		for _, result := range results {
			content := result.Content
			if result.Err != nil {
				content = "error: " + result.Err.Error()
				errByCallID[result.ToolCallID] = true
			}
			roundMessages = append(roundMessages, models.Message{
				Role:       models.RoleTool,
				Content:    content,
				ToolCallID: result.ToolCallID,
			})
		}

		roundTrust, err := h.orchestrator.EvaluateTrust(ctx, agentID, chatID, question, roundMessages, toolsByName)
		if err != nil {
			_ = handlers.WriteError(w, http.StatusInternalServerError, handlers.ErrorTypeAPI, "failed to evaluate trust policies")
			return
		}
		contextIsTrusted = contextIsTrusted && roundTrust.ContextIsTrusted

		assistantContent := make([]anthropic.MessageContent, 0, len(calls)+1)
		for _, block := range resp.Content {
			if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
				assistantContent = append(assistantContent, anthropic.NewTextMessageContent(*block.Text))
			}
		}
		for _, tc := range calls {
			assistantContent = append(assistantContent, anthropic.NewToolUseMessageContent(tc.ID, tc.Name, json.RawMessage(tc.Arguments)))
		}
		req.Messages = append(req.Messages, anthropic.Message{Role: anthropic.RoleAssistant, Content: assistantContent})

		for _, msg := range roundTrust.Messages {
			if msg.Role != models.RoleTool {
				continue
			}
			req.Messages = append(req.Messages, anthropic.Message{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewToolResultMessageContent(msg.ToolCallID, msg.Content, errByCallID[msg.ToolCallID]),
				},
			})
		}
	}

	_ = handlers.WriteError(w, http.StatusInternalServerError, handlers.ErrorTypeAPI, "exceeded maximum tool-call iterations")
}

// handleStreaming implements §4.6 steps 5-10 for the streaming path: text
// deltas relay live as content_block_delta events, tool_use blocks are
// buffered until the stream ends and then either refused or flushed in
// original order (never executed server-side mid-stream).
func (h *AnthropicHandler) handleStreaming(ctx context.Context, w http.ResponseWriter, agentID uuid.UUID, chatID string, rawRequest []byte, req anthropic.MessagesRequest, contextIsTrusted bool, progress []dualllm.ProgressTuple, toolsByName map[string]*models.Tool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = handlers.WriteError(w, http.StatusInternalServerError, handlers.ErrorTypeAPI, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if len(progress) > 0 {
		writeAnthropicSSE(w, "archestra_dual_llm_started", map[string]any{"type": "archestra_dual_llm_started"})
		for _, p := range progress {
			writeAnthropicSSE(w, "archestra_dual_llm_progress", map[string]any{
				"type":         "archestra_dual_llm_progress",
				"tool_call_id": p.ToolCallID,
				"question":     p.Question,
				"options":      p.Options,
				"answer":       p.Answer,
			})
		}
		flusher.Flush()
	}

	messageID := "msg_" + chatID
	writeAnthropicSSE(w, "message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id": messageID, "type": "message", "role": "assistant",
			"model": req.Model, "content": []any{},
		},
	})
	writeAnthropicSSE(w, "content_block_start", map[string]any{
		"type": "content_block_start", "index": 0,
		"content_block": map[string]any{"type": "text", "text": ""},
	})
	flusher.Flush()

	eventChan := make(chan llm.StreamEvent, 32)
	type outcome struct {
		result llm.StreamIterationResult
		err    error
	}
	outcomeChan := make(chan outcome, 1)

	streamCtx := llm.WithConversationContext(ctx, agentID, chatID, 0, models.LLMConversationRolePrimary)
	go func() {
		defer close(eventChan)
		tools := toolDefinitionsFromModels(toolsByName)
		result, err := h.client.StreamMessages(streamCtx, req.System, req.Messages, tools, float64(temperatureOf(req.Temperature)), eventChan)
		outcomeChan <- outcome{result: result, err: err}
	}()

	for ev := range eventChan {
		if ev.Type != llm.StreamEventText {
			continue
		}
		writeAnthropicSSE(w, "content_block_delta", map[string]any{
			"type": "content_block_delta", "index": 0,
			"delta": map[string]any{"type": "text_delta", "text": ev.Content},
		})
		flusher.Flush()
	}

	writeAnthropicSSE(w, "content_block_stop", map[string]any{"type": "content_block_stop", "index": 0})
	flusher.Flush()

	out := <-outcomeChan
	if out.err != nil {
		h.logger.Error("upstream stream failed", zap.Error(out.err))
		writeAnthropicSSE(w, "message_delta", map[string]any{
			"type": "message_delta", "delta": map[string]any{"stop_reason": "error"},
		})
		flusher.Flush()
		return
	}

	calls := make([]models.ToolCall, len(out.result.ToolCalls))
	for i, tc := range out.result.ToolCalls {
		calls[i] = models.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}

	stopReason := "end_turn"
	if len(calls) > 0 {
		h.orchestrator.RecordProposedToolCalls(ctx, chatID, calls)

		refusal, err := h.orchestrator.EvaluateInvocation(ctx, agentID, chatID, calls, contextIsTrusted)
		if err != nil {
			writeAnthropicSSE(w, "message_delta", map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": "error"}})
			flusher.Flush()
			return
		}
		if refusal != nil {
			h.persistRefusal(ctx, agentID, chatID, rawRequest, refusal)
			writeAnthropicSSE(w, "content_block_delta", map[string]any{
				"type": "content_block_delta", "index": 0,
				"delta": map[string]any{"type": "text_delta", "text": refusal.UserMessage},
			})
			writeAnthropicSSE(w, "message_delta", map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": "end_turn"}})
			writeAnthropicSSE(w, "message_stop", map[string]any{"type": "message_stop"})
			flusher.Flush()
			return
		}

		for i, tc := range out.result.ToolCalls {
			idx := i + 1
			var input any
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
			writeAnthropicSSE(w, "content_block_start", map[string]any{
				"type": "content_block_start", "index": idx,
				"content_block": map[string]any{"type": "tool_use", "id": tc.ID, "name": tc.Function.Name, "input": input},
			})
			writeAnthropicSSE(w, "content_block_stop", map[string]any{"type": "content_block_stop", "index": idx})
		}
		stopReason = "tool_use"
	}

	writeAnthropicSSE(w, "message_delta", map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": stopReason}})
	writeAnthropicSSE(w, "message_stop", map[string]any{"type": "message_stop"})
	flusher.Flush()

	interaction := &models.Interaction{
		ID:           uuid.New(),
		AgentID:      agentID,
		ChatID:       &chatID,
		Type:         models.InteractionTypeAnthropicCompletion,
		Request:      rawRequest,
		Content:      []byte(out.result.Content),
		InputTokens:  out.result.InputTokens,
		OutputTokens: out.result.OutputTokens,
	}
	_ = h.orchestrator.Persist(ctx, interaction)
	h.orchestrator.DispatchQuotaUpdate(ctx, agentID, int64(out.result.InputTokens), int64(out.result.OutputTokens))
}

func (h *AnthropicHandler) finish(ctx context.Context, w http.ResponseWriter, agentID uuid.UUID, chatID string, rawRequest []byte, resp anthropic.MessagesResponse, inputTokens, outputTokens int) {
	responseJSON, _ := json.Marshal(resp)

	interaction := &models.Interaction{
		ID:           uuid.New(),
		AgentID:      agentID,
		ChatID:       &chatID,
		Type:         models.InteractionTypeAnthropicCompletion,
		Request:      rawRequest,
		Response:     responseJSON,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}
	_ = h.orchestrator.Persist(ctx, interaction)
	h.orchestrator.DispatchQuotaUpdate(ctx, agentID, int64(inputTokens), int64(outputTokens))

	_ = handlers.WriteJSON(w, http.StatusOK, resp)
}

func (h *AnthropicHandler) persistRefusal(ctx context.Context, agentID uuid.UUID, chatID string, rawRequest []byte, refusal *Refusal) {
	interaction := &models.Interaction{
		ID:      uuid.New(),
		AgentID: agentID,
		ChatID:  &chatID,
		Type:    models.InteractionTypeAnthropicRefusal,
		Request: rawRequest,
		Content: []byte(refusal.AuditPayload),
		Reason:  refusal.UserMessage,
	}
	_ = h.orchestrator.Persist(ctx, interaction)
}

func (h *AnthropicHandler) writeRefusal(w http.ResponseWriter, req anthropic.MessagesRequest, refusal *Refusal) {
	resp := anthropic.MessagesResponse{
		Type:       "message",
		Role:       anthropic.RoleAssistant,
		Model:      req.Model,
		StopReason: anthropic.MessagesStopReasonEndTurn,
		Content:    []anthropic.MessageContent{anthropic.NewTextMessageContent(refusal.UserMessage)},
	}
	_ = handlers.WriteJSON(w, http.StatusOK, resp)
}

func proposedCallsFromAnthropicResponse(resp anthropic.MessagesResponse) []models.ToolCall {
	var calls []models.ToolCall
	for _, block := range resp.Content {
		if block.Type != anthropic.MessagesContentTypeToolUse {
			continue
		}
		args, _ := json.Marshal(block.Input)
		calls = append(calls, models.ToolCall{ID: block.ID, Name: block.Name, Arguments: string(args)})
	}
	return calls
}

func writeAnthropicSSE(w http.ResponseWriter, event string, payload map[string]any) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func temperatureOf(t *float32) float32 {
	if t == nil {
		return 1.0
	}
	return *t
}

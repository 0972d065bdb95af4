package proxy

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/dualllm"
	"github.com/archestra-ai/gateway/pkg/handlers"
	"github.com/archestra-ai/gateway/pkg/llm"
	"github.com/archestra-ai/gateway/pkg/models"
)

// OpenAIHandler serves the OpenAI-compatible chat completions surface.
type OpenAIHandler struct {
	orchestrator *Orchestrator
	agents       AgentStore
	client       *llm.Client
	logger       *zap.Logger
}

// NewOpenAIHandler constructs an OpenAIHandler.
func NewOpenAIHandler(orchestrator *Orchestrator, agents AgentStore, client *llm.Client, logger *zap.Logger) *OpenAIHandler {
	return &OpenAIHandler{orchestrator: orchestrator, agents: agents, client: client, logger: logger.Named("proxy.openai")}
}

// RegisterRoutes registers the OpenAI-compatible routes on mux.
func (h *OpenAIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/openai/chat/completions", h.Completions)
	mux.HandleFunc("POST /v1/openai/{agentId}/chat/completions", h.Completions)
}

// Completions handles a single chat completions request end to end:
// Received -> Validated -> QuotaOk -> ToolsInjected -> TrustEvaluated ->
// PrimaryStreaming -> ToolsBuffered -> InvocationEvaluated ->
// (Refused | Flushed) -> Persisted -> Closed.
func (h *OpenAIHandler) Completions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req openai.ChatCompletionRequest
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

	refusal, err := h.orchestrator.CheckQuota(ctx, agent.ID, req.Model)
	if err != nil {
		_ = handlers.WriteError(w, http.StatusInternalServerError, handlers.ErrorTypeAPI, "quota check failed")
		return
	}
	if refusal != nil {
		h.persistRefusal(ctx, agent.ID, chatID, rawRequest, refusal)
		h.writeRefusal(w, req, refusal)
		return
	}

	merged, err := h.orchestrator.MergeTools(ctx, agent.ID, openAIToolsToModels(req.Tools))
	if err != nil {
		_ = handlers.WriteError(w, http.StatusInternalServerError, handlers.ErrorTypeAPI, "failed to merge tools")
		return
	}
	toolsByName := ToolsByName(merged)

	internalMessages := openAIMessagesToInternal(req.Messages)
	trustResult, err := h.orchestrator.EvaluateTrust(ctx, agent.ID, chatID, lastUserQuestion(internalMessages), internalMessages, toolsByName)
	if err != nil {
		_ = handlers.WriteError(w, http.StatusInternalServerError, handlers.ErrorTypeAPI, "failed to evaluate trust policies")
		return
	}

	upstreamReq := req
	upstreamReq.Messages = internalMessagesToOpenAI(trustResult.Messages)
	upstreamReq.Tools = modelsToolsToOpenAI(merged)

	question := lastUserQuestion(internalMessages)
	if req.Stream {
		h.handleStreaming(ctx, w, agent.ID, chatID, rawRequest, upstreamReq, trustResult.ContextIsTrusted, trustResult.Progress, toolsByName)
		return
	}
	h.handleNonStreaming(ctx, w, agent.ID, chatID, rawRequest, upstreamReq, trustResult.ContextIsTrusted, question, toolsByName)
}

// handleNonStreaming implements §4.6 steps 6-10 for the non-streaming path,
// including step 8's tool-execution round trip. Each round's freshly
// executed tool results are re-run through EvaluateTrust before they're
// appended to the next upstream call: §4.2/§4.3 bind every tool-result
// message that reaches the primary model, not just the ones present in the
// client-supplied history, and a live result the orchestrator itself
// fetched mid-request is no exception.
func (h *OpenAIHandler) handleNonStreaming(ctx context.Context, w http.ResponseWriter, agentID uuid.UUID, chatID string, rawRequest []byte, req openai.ChatCompletionRequest, contextIsTrusted bool, question string, toolsByName map[string]*models.Tool) {
	for iteration := 0; iteration < h.orchestrator.MaxToolIterations(); iteration++ {
		callCtx := llm.WithConversationContext(ctx, agentID, chatID, iteration, models.LLMConversationRolePrimary)
		resp, err := h.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			h.logger.Error("upstream completion failed", zap.Error(err))
			_ = handlers.WriteError(w, http.StatusBadGateway, handlers.ErrorTypeAPI, "upstream provider error")
			return
		}
		if len(resp.Choices) == 0 {
			_ = handlers.WriteError(w, http.StatusBadGateway, handlers.ErrorTypeAPI, "upstream returned no choices")
			return
		}

		choice := resp.Choices[0]
		inputTokens, outputTokens := usageFromOpenAI(resp.Usage)

		if len(choice.Message.ToolCalls) == 0 {
			h.finish(ctx, w, agentID, chatID, rawRequest, resp, inputTokens, outputTokens)
			return
		}

		calls := make([]models.ToolCall, len(choice.Message.ToolCalls))
		for i, tc := range choice.Message.ToolCalls {
			calls[i] = models.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
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
		for _, result := range results {
			content := result.Content
			if result.Err != nil {
				content = "error: " + result.Err.Error()
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

		req.Messages = append(req.Messages, choice.Message)
		for _, msg := range roundTrust.Messages {
			if msg.Role != models.RoleTool {
				continue
			}
			req.Messages = append(req.Messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		}
	}

	_ = handlers.WriteError(w, http.StatusInternalServerError, handlers.ErrorTypeAPI, "exceeded maximum tool-call iterations")
}

// handleStreaming implements §4.6 steps 5-10 for the streaming path: text
// deltas relay live, tool-use deltas are buffered until the stream ends and
// then either refused or flushed in original order (never executed
// server-side mid-stream; the client is expected to invoke and follow up).
func (h *OpenAIHandler) handleStreaming(ctx context.Context, w http.ResponseWriter, agentID uuid.UUID, chatID string, rawRequest []byte, req openai.ChatCompletionRequest, contextIsTrusted bool, progress []dualllm.ProgressTuple, toolsByName map[string]*models.Tool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = handlers.WriteError(w, http.StatusInternalServerError, handlers.ErrorTypeAPI, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	chunkID := "chatcmpl-" + chatID
	if len(progress) > 0 {
		writeOpenAIDualLLMEvent(w, chunkID, req.Model, dualLLMEventPayload{Event: "started"})
		for _, p := range progress {
			writeOpenAIDualLLMEvent(w, chunkID, req.Model, dualLLMEventPayload{
				Event:      "progress",
				ToolCallID: p.ToolCallID,
				Question:   p.Question,
				Options:    p.Options,
				Answer:     p.Answer,
			})
		}
		flusher.Flush()
	}

	eventChan := make(chan llm.StreamEvent, 32)
	type outcome struct {
		result llm.StreamIterationResult
		err    error
	}
	outcomeChan := make(chan outcome, 1)

	streamCtx := llm.WithConversationContext(ctx, agentID, chatID, 0, models.LLMConversationRolePrimary)
	go func() {
		defer close(eventChan)
		result, err := h.client.StreamChatCompletion(streamCtx, openAIMessagesToInternalChat(req.Messages), toolDefinitionsFromModels(toolsByName), float64(req.Temperature), eventChan)
		outcomeChan <- outcome{result: result, err: err}
	}()

	for ev := range eventChan {
		if ev.Type != llm.StreamEventText {
			continue
		}
		writeOpenAIChunk(w, chunkID, req.Model, ev.Content, "")
		flusher.Flush()
	}

	out := <-outcomeChan
	if out.err != nil {
		h.logger.Error("upstream stream failed", zap.Error(out.err))
		writeOpenAIChunk(w, chunkID, req.Model, "", "error")
		flusher.Flush()
		return
	}

	calls := make([]models.ToolCall, len(out.result.ToolCalls))
	for i, tc := range out.result.ToolCalls {
		calls[i] = models.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}
	if len(calls) > 0 {
		h.orchestrator.RecordProposedToolCalls(ctx, chatID, calls)

		refusal, err := h.orchestrator.EvaluateInvocation(ctx, agentID, chatID, calls, contextIsTrusted)
		if err != nil {
			writeOpenAIChunk(w, chunkID, req.Model, "", "error")
			flusher.Flush()
			return
		}
		if refusal != nil {
			h.persistRefusal(ctx, agentID, chatID, rawRequest, refusal)
			writeOpenAIChunk(w, chunkID, req.Model, refusal.UserMessage, "stop")
			flusher.Flush()
			_, _ = w.Write([]byte("data: [DONE]\n\n"))
			flusher.Flush()
			return
		}

		writeOpenAIToolCallChunk(w, chunkID, req.Model, out.result.ToolCalls)
		flusher.Flush()
	}

	writeOpenAIChunk(w, chunkID, req.Model, "", "stop")
	flusher.Flush()
	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()

	interaction := &models.Interaction{
		ID:           uuid.New(),
		AgentID:      agentID,
		ChatID:       &chatID,
		Type:         models.InteractionTypeOpenAICompletion,
		Request:      rawRequest,
		Content:      []byte(out.result.Content),
		InputTokens:  out.result.InputTokens,
		OutputTokens: out.result.OutputTokens,
	}
	_ = h.orchestrator.Persist(ctx, interaction)
	h.orchestrator.DispatchQuotaUpdate(ctx, agentID, int64(out.result.InputTokens), int64(out.result.OutputTokens))
}

func (h *OpenAIHandler) finish(ctx context.Context, w http.ResponseWriter, agentID uuid.UUID, chatID string, rawRequest []byte, resp openai.ChatCompletionResponse, inputTokens, outputTokens int) {
	responseJSON, _ := json.Marshal(resp)

	interaction := &models.Interaction{
		ID:           uuid.New(),
		AgentID:      agentID,
		ChatID:       &chatID,
		Type:         models.InteractionTypeOpenAICompletion,
		Request:      rawRequest,
		Response:     responseJSON,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}
	_ = h.orchestrator.Persist(ctx, interaction)
	h.orchestrator.DispatchQuotaUpdate(ctx, agentID, int64(inputTokens), int64(outputTokens))

	_ = handlers.WriteJSON(w, http.StatusOK, resp)
}

func (h *OpenAIHandler) persistRefusal(ctx context.Context, agentID uuid.UUID, chatID string, rawRequest []byte, refusal *Refusal) {
	interaction := &models.Interaction{
		ID:      uuid.New(),
		AgentID: agentID,
		ChatID:  &chatID,
		Type:    models.InteractionTypeOpenAIRefusal,
		Request: rawRequest,
		Content: []byte(refusal.AuditPayload),
		Reason:  refusal.UserMessage,
	}
	_ = h.orchestrator.Persist(ctx, interaction)
}

func (h *OpenAIHandler) writeRefusal(w http.ResponseWriter, req openai.ChatCompletionRequest, refusal *Refusal) {
	resp := openai.ChatCompletionResponse{
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []openai.ChatCompletionChoice{
			{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: refusal.UserMessage},
				FinishReason: openai.FinishReasonStop,
			},
		},
	}
	_ = handlers.WriteJSON(w, http.StatusOK, resp)
}

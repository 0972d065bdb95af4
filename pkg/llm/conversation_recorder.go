package llm

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/models"
)

// conversationContextKey is the context key under which WithConversationContext
// stores identifying information for the call about to be made. The provider
// clients have no agentId/chatId parameter of their own, so the proxy
// orchestrator threads it through the request context instead.
type conversationContextKey struct{}

// ConversationContext identifies the agent/chat/iteration/role a provider
// call belongs to, for the per-iteration LLM call log.
type ConversationContext struct {
	AgentID   uuid.UUID
	ChatID    string
	Iteration int
	Role      models.LLMConversationRole
}

// WithConversationContext attaches identifying information for the next
// upstream call made with ctx, so ConversationRecorder can log it.
func WithConversationContext(ctx context.Context, agentID uuid.UUID, chatID string, iteration int, role models.LLMConversationRole) context.Context {
	return context.WithValue(ctx, conversationContextKey{}, ConversationContext{AgentID: agentID, ChatID: chatID, Iteration: iteration, Role: role})
}

func conversationContextFrom(ctx context.Context) (ConversationContext, bool) {
	cc, ok := ctx.Value(conversationContextKey{}).(ConversationContext)
	return cc, ok
}

// ConversationStore is the persistence half of conversation recording,
// satisfied by pkg/repositories.LLMConversationRepository.
type ConversationStore interface {
	Save(ctx context.Context, conv *models.LLMConversation) error
	Complete(ctx context.Context, conv *models.LLMConversation) error
}

// ConversationRecorder records per-iteration LLM calls. A nil
// ConversationRecorder on a Client/AnthropicClient/SecondaryModel disables
// recording entirely.
type ConversationRecorder interface {
	// begin synchronously inserts a pending record before the call starts, so
	// an in-flight call is observable, and returns the record to complete
	// once the call returns. Returns nil if recording is skipped (no
	// ConversationContext on ctx, or the insert itself failed). The role
	// (primary vs. secondary/dual-LLM) comes from the ConversationContext on
	// ctx, defaulting to primary when unset.
	begin(ctx context.Context, endpoint, model string, messages, tools []any, temperature *float64) *models.LLMConversation
	// finish updates a record returned by begin with the call's outcome.
	finish(ctx context.Context, conv *models.LLMConversation, content string, toolCalls []any, promptTokens, completionTokens, totalTokens *int, durationMs int, callErr error)
}

type recordOp struct {
	conv     *models.LLMConversation
	isUpdate bool
}

// AsyncConversationRecorder records LLM conversations without blocking the
// upstream call path: the pending insert happens synchronously (so a
// crash mid-call still leaves a visible 'pending' row) but the completion
// update is queued and applied by a background goroutine.
type AsyncConversationRecorder struct {
	store  ConversationStore
	logger *zap.Logger
	queue  chan recordOp
	done   chan struct{}
}

// NewAsyncConversationRecorder constructs an AsyncConversationRecorder.
// queueSize controls the completion-update buffer; a full queue drops the
// update with a warning rather than blocking the caller.
func NewAsyncConversationRecorder(store ConversationStore, logger *zap.Logger, queueSize int) *AsyncConversationRecorder {
	if queueSize <= 0 {
		queueSize = 100
	}
	r := &AsyncConversationRecorder{
		store:  store,
		logger: logger.Named("conversation-recorder"),
		queue:  make(chan recordOp, queueSize),
		done:   make(chan struct{}),
	}
	go r.processQueue()
	return r
}

func (r *AsyncConversationRecorder) begin(ctx context.Context, endpoint, model string, messages, tools []any, temperature *float64) *models.LLMConversation {
	cc, ok := conversationContextFrom(ctx)
	if !ok {
		return nil
	}

	role := cc.Role
	if role == "" {
		role = models.LLMConversationRolePrimary
	}

	conv := &models.LLMConversation{
		AgentID:         cc.AgentID,
		Role:            role,
		Iteration:       cc.Iteration,
		Endpoint:        endpoint,
		Model:           model,
		RequestMessages: messages,
		RequestTools:    tools,
		Temperature:     temperature,
		Status:          models.LLMConversationStatusPending,
	}
	if cc.ChatID != "" {
		conv.ChatID = &cc.ChatID
	}

	if err := r.store.Save(ctx, conv); err != nil {
		r.logger.Error("failed to save pending llm conversation",
			zap.String("agent_id", cc.AgentID.String()),
			zap.String("model", model),
			zap.Error(err))
		return nil
	}
	return conv
}

func (r *AsyncConversationRecorder) finish(ctx context.Context, conv *models.LLMConversation, content string, toolCalls []any, promptTokens, completionTokens, totalTokens *int, durationMs int, callErr error) {
	if conv == nil {
		return
	}

	conv.ResponseContent = content
	conv.ResponseToolCalls = toolCalls
	conv.PromptTokens = promptTokens
	conv.CompletionTokens = completionTokens
	conv.TotalTokens = totalTokens
	conv.DurationMs = durationMs
	if callErr != nil {
		conv.Status = models.LLMConversationStatusError
		conv.ErrorMessage = callErr.Error()
	} else {
		conv.Status = models.LLMConversationStatusSuccess
	}

	select {
	case r.queue <- recordOp{conv: conv, isUpdate: true}:
	default:
		r.logger.Warn("conversation completion queue full, dropping update",
			zap.String("id", conv.ID.String()),
			zap.String("model", conv.Model))
	}
}

// Close stops the recorder and waits for queued completions to be applied.
func (r *AsyncConversationRecorder) Close() {
	close(r.queue)
	<-r.done
}

func (r *AsyncConversationRecorder) processQueue() {
	defer close(r.done)
	for op := range r.queue {
		if err := r.store.Complete(context.Background(), op.conv); err != nil {
			r.logger.Error("failed to complete llm conversation",
				zap.String("id", op.conv.ID.String()),
				zap.Error(err))
		}
	}
}

var _ ConversationRecorder = (*AsyncConversationRecorder)(nil)

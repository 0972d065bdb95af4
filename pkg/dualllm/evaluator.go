// Package dualllm implements the dual-LLM context evaluator: the rule that
// untrusted tool content must never enter the primary model's context
// verbatim. Untrusted results are sanitized down to a single option chosen
// by an isolated secondary model constrained to a finite candidate list.
package dualllm

import (
	"context"

	"go.uber.org/zap"
)

// SecondaryModel is the isolated model instance consulted for each
// untrusted tool result. It is given the question, the untrusted content,
// and the candidate list, and must reply with a single index into options.
// No free-form text may cross back out of this call.
type SecondaryModel interface {
	ChooseOption(ctx context.Context, question, content string, options []string) (int, error)
}

// PendingContent is one tool-result message as classified by the
// trusted-data policy engine, carried into the dual-LLM pass.
type PendingContent struct {
	ToolCallID             string
	ToolName               string
	Content                string
	Trusted                bool
	Blocked                bool
	DataIsTrustedByDefault bool
	HasPolicies            bool
}

// ProgressTuple is one (question, candidate options, chosen answer) record,
// forwarded through the caller's progress channel so a streaming request
// can surface the dual-LLM reasoning trail as it happens.
type ProgressTuple struct {
	ToolCallID string
	Question   string
	Options    []string
	Answer     string
}

// Evaluator runs the dual-LLM context pass over a set of classified tool
// messages.
type Evaluator struct {
	model  SecondaryModel
	logger *zap.Logger
}

// NewEvaluator constructs a dual-LLM Evaluator around a secondary model.
func NewEvaluator(model SecondaryModel, logger *zap.Logger) *Evaluator {
	return &Evaluator{model: model, logger: logger.Named("dualllm")}
}

// Result is the outcome of EvaluateIfContextIsTrusted.
type Result struct {
	// ToolResultUpdates maps toolCallId to the sanitized replacement content.
	ToolResultUpdates map[string]string
	// ContextIsTrusted is true iff messages contained no untrusted or
	// blocked tool content at the time of evaluation.
	ContextIsTrusted bool
}

// EvaluateIfContextIsTrusted extracts the pending untrusted content,
// resolves each against a finite candidate list via the secondary model,
// and reports whether the overall context remains trusted. A tool whose
// DataIsTrustedByDefault is true and which has no policies attached is
// treated as trusted even though §4.2 persisted it as an untrusted
// classification.
func (e *Evaluator) EvaluateIfContextIsTrusted(ctx context.Context, question string, messages []PendingContent, progress chan<- ProgressTuple) Result {
	result := Result{ToolResultUpdates: map[string]string{}, ContextIsTrusted: true}

	for _, m := range messages {
		if m.Blocked {
			result.ContextIsTrusted = false
			continue
		}

		if m.Trusted || (m.DataIsTrustedByDefault && !m.HasPolicies) {
			continue
		}

		result.ContextIsTrusted = false

		candidates := CandidatesForTool(m.ToolName)
		answer := e.resolveOne(ctx, question, m, candidates)
		result.ToolResultUpdates[m.ToolCallID] = answer

		if progress != nil {
			progress <- ProgressTuple{ToolCallID: m.ToolCallID, Question: question, Options: candidates.Options, Answer: answer}
		}
	}

	return result
}

// resolveOne calls the secondary model for a single untrusted content blob.
// A call error or malformed reply (ChooseOption itself failed to parse an
// integer index out of the model's reply) fails closed to "no match": the
// replacement content is empty. A reply that did parse as an integer but
// falls outside the candidate range is clamped into it instead, per §5's
// "parsed as an integer index and clamped to the candidate range".
func (e *Evaluator) resolveOne(ctx context.Context, question string, m PendingContent, candidates CandidateSet) string {
	idx, err := e.model.ChooseOption(ctx, question, m.Content, candidates.Options)
	if err != nil {
		e.logger.Warn("secondary model call failed; sanitizing to empty content",
			zap.String("tool_call_id", m.ToolCallID),
			zap.String("tool_name", m.ToolName),
			zap.Error(err),
		)
		return ""
	}
	if len(candidates.Options) == 0 {
		e.logger.Warn("secondary model had no candidate options to clamp into; sanitizing to empty content",
			zap.String("tool_call_id", m.ToolCallID),
		)
		return ""
	}
	if idx < 0 || idx >= len(candidates.Options) {
		clamped := idx
		if clamped < 0 {
			clamped = 0
		} else if clamped >= len(candidates.Options) {
			clamped = len(candidates.Options) - 1
		}
		e.logger.Warn("secondary model returned an out-of-range index; clamping to candidate range",
			zap.String("tool_call_id", m.ToolCallID),
			zap.Int("index", idx),
			zap.Int("clamped", clamped),
		)
		return candidates.Options[clamped]
	}
	return candidates.Options[idx]
}

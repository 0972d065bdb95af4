package trust

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/audit"
	"github.com/archestra-ai/gateway/pkg/models"
)

type fakeResolver struct {
	tool *models.Tool
	err  error
}

func (f *fakeResolver) ResolveToolCall(ctx context.Context, agentID uuid.UUID, chatID, toolCallID string) (*models.Tool, error) {
	return f.tool, f.err
}

type fakePolicies struct {
	policies []models.TrustedDataPolicy
	err      error
}

func (f *fakePolicies) PoliciesForAgentTool(ctx context.Context, agentID, toolID uuid.UUID) ([]models.TrustedDataPolicy, error) {
	return f.policies, f.err
}

type fakeRecorder struct {
	recorded []*models.Interaction
}

func (f *fakeRecorder) RecordToolResult(ctx context.Context, interaction *models.Interaction) error {
	f.recorded = append(f.recorded, interaction)
	return nil
}

type fakeClassificationStore struct {
	trusted, blocked map[string]bool
}

func (f *fakeClassificationStore) ClassificationForToolCall(ctx context.Context, chatID, toolCallID string) (bool, bool, bool, error) {
	if f.blocked[toolCallID] {
		return false, true, true, nil
	}
	if f.trusted[toolCallID] {
		return true, false, true, nil
	}
	_, found := f.blocked[toolCallID]
	return false, false, found, nil
}

func newTestEngine(resolver ToolCallResolver, policies PolicyLookup, recorder InteractionRecorder, classified ClassificationStore) *Engine {
	return NewEngine(resolver, policies, recorder, classified, audit.NewSecurityAuditor(zap.NewNop()), zap.NewNop())
}

func TestEvaluatePolicies_BlockAlwaysWins(t *testing.T) {
	tool := &models.Tool{ID: uuid.New(), Name: "search"}
	resolver := &fakeResolver{tool: tool}
	policies := &fakePolicies{policies: []models.TrustedDataPolicy{
		{ID: uuid.New(), AttributePath: "status", Operator: models.OperatorEqual, Value: "danger", Action: models.TrustActionBlockAlways, Description: "blocked: danger status"},
	}}
	recorder := &fakeRecorder{}
	engine := newTestEngine(resolver, policies, recorder, &fakeClassificationStore{})

	messages := []models.Message{
		{Role: models.RoleTool, Content: `{"status":"danger"}`, ToolCallID: "call-1"},
	}

	results, err := engine.EvaluatePolicies(context.Background(), uuid.New(), "chat-1", messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 classification, got %d", len(results))
	}
	if !results[0].Blocked || results[0].Trusted {
		t.Errorf("expected blocked=true trusted=false, got %+v", results[0])
	}
	if len(recorder.recorded) != 1 || !recorder.recorded[0].Blocked {
		t.Errorf("expected persisted interaction to be blocked")
	}
}

func TestEvaluatePolicies_MarkTrusted(t *testing.T) {
	tool := &models.Tool{ID: uuid.New(), Name: "search"}
	resolver := &fakeResolver{tool: tool}
	policies := &fakePolicies{policies: []models.TrustedDataPolicy{
		{ID: uuid.New(), AttributePath: "source", Operator: models.OperatorEqual, Value: "internal", Action: models.TrustActionMarkTrusted, Description: "trusted: internal source"},
	}}
	recorder := &fakeRecorder{}
	engine := newTestEngine(resolver, policies, recorder, &fakeClassificationStore{})

	messages := []models.Message{
		{Role: models.RoleTool, Content: `{"source":"internal"}`, ToolCallID: "call-2"},
	}

	results, err := engine.EvaluatePolicies(context.Background(), uuid.New(), "chat-1", messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !results[0].Trusted || results[0].Blocked {
		t.Errorf("expected trusted=true blocked=false, got %+v", results[0])
	}
}

func TestEvaluatePolicies_NoMatchDefaultsToUntrustedUnblocked(t *testing.T) {
	tool := &models.Tool{ID: uuid.New(), Name: "search"}
	resolver := &fakeResolver{tool: tool}
	policies := &fakePolicies{}
	recorder := &fakeRecorder{}
	engine := newTestEngine(resolver, policies, recorder, &fakeClassificationStore{})

	messages := []models.Message{
		{Role: models.RoleTool, Content: `{"source":"external"}`, ToolCallID: "call-3"},
	}

	results, err := engine.EvaluatePolicies(context.Background(), uuid.New(), "chat-1", messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Trusted || results[0].Blocked {
		t.Errorf("expected trusted=false blocked=false, got %+v", results[0])
	}
	if results[0].Reason != "content does not match any trust policies" {
		t.Errorf("unexpected reason: %s", results[0].Reason)
	}
}

func TestEvaluatePolicies_SkipsNonToolMessages(t *testing.T) {
	resolver := &fakeResolver{}
	engine := newTestEngine(resolver, &fakePolicies{}, &fakeRecorder{}, &fakeClassificationStore{})

	messages := []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "hi"},
	}

	results, err := engine.EvaluatePolicies(context.Background(), uuid.New(), "chat-1", messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no classifications for non-tool messages, got %d", len(results))
	}
}

func TestEvaluatePolicies_UnresolvableToolCallIsSkippedWithWarning(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("no matching assistant tool_call found")}
	engine := newTestEngine(resolver, &fakePolicies{}, &fakeRecorder{}, &fakeClassificationStore{})

	messages := []models.Message{
		{Role: models.RoleTool, Content: `{}`, ToolCallID: "orphan-call"},
	}

	results, err := engine.EvaluatePolicies(context.Background(), uuid.New(), "chat-1", messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected unresolved tool call to be skipped, got %d results", len(results))
	}
}

func TestFilterOutBlockedData(t *testing.T) {
	engine := newTestEngine(&fakeResolver{}, &fakePolicies{}, &fakeRecorder{}, &fakeClassificationStore{
		blocked: map[string]bool{"call-blocked": true},
		trusted: map[string]bool{"call-trusted": true},
	})

	messages := []models.Message{
		{Role: models.RoleUser, Content: "question"},
		{Role: models.RoleTool, Content: "danger", ToolCallID: "call-blocked"},
		{Role: models.RoleTool, Content: "fine", ToolCallID: "call-trusted"},
	}

	filtered, err := engine.FilterOutBlockedData(context.Background(), "chat-1", messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 messages after filtering, got %d", len(filtered))
	}
	for _, m := range filtered {
		if m.ToolCallID == "call-blocked" {
			t.Errorf("blocked message should have been filtered out")
		}
	}
}

func TestContentAsJSON_WrapsNonJSONScalar(t *testing.T) {
	raw := contentAsJSON("plain text result")
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("expected wrapped content to be valid JSON: %v", err)
	}
	if decoded["value"] != "plain text result" {
		t.Errorf("expected value key to hold the scalar, got %v", decoded["value"])
	}
}

package attrpath

import (
	"testing"

	"github.com/archestra-ai/gateway/pkg/models"
)

func TestEvaluateCondition(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		path    string
		op      models.Operator
		compare string
		want    bool
	}{
		{name: "equal match", doc: `{"status":"blocked"}`, path: "status", op: models.OperatorEqual, compare: "blocked", want: true},
		{name: "equal no match", doc: `{"status":"ok"}`, path: "status", op: models.OperatorEqual, compare: "blocked", want: false},
		{name: "notEqual", doc: `{"status":"ok"}`, path: "status", op: models.OperatorNotEqual, compare: "blocked", want: true},
		{name: "contains", doc: `{"body":"contains a secret token"}`, path: "body", op: models.OperatorContains, compare: "secret", want: true},
		{name: "notContains", doc: `{"body":"clean"}`, path: "body", op: models.OperatorNotContains, compare: "secret", want: true},
		{name: "startsWith", doc: `{"id":"usr_123"}`, path: "id", op: models.OperatorStartsWith, compare: "usr_", want: true},
		{name: "endsWith", doc: `{"id":"usr_123"}`, path: "id", op: models.OperatorEndsWith, compare: "123", want: true},
		{name: "greaterThan", doc: `{"score":9.5}`, path: "score", op: models.OperatorGreaterThan, compare: "5", want: true},
		{name: "lessThan", doc: `{"score":9.5}`, path: "score", op: models.OperatorLessThan, compare: "5", want: false},
		{
			name:    "wildcard matches if any element matches",
			doc:     `{"results":[{"status":"ok"},{"status":"blocked"}]}`,
			path:    "results[*].status",
			op:      models.OperatorEqual,
			compare: "blocked",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := EvaluateCondition([]byte(tt.doc), tt.path, tt.op, tt.compare)
			if err != nil {
				t.Fatalf("EvaluateCondition failed: %v", err)
			}
			if result.Matched != tt.want {
				t.Errorf("EvaluateCondition(%q, %s, %q) matched = %v, want %v", tt.path, tt.op, tt.compare, result.Matched, tt.want)
			}
		})
	}
}

func TestEvaluateCondition_MalformedPathFailsClosed(t *testing.T) {
	_, err := EvaluateCondition([]byte(`{"status":"ok"}`), "a..b", models.OperatorEqual, "ok")
	if err == nil {
		t.Error("expected error for malformed path")
	}
}

package attrpath

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		wantLen int
	}{
		{name: "simple key", raw: "status", wantLen: 1},
		{name: "nested key", raw: "user.profile.name", wantLen: 3},
		{name: "wildcard segment", raw: "results[*].status", wantLen: 2},
		{name: "empty path", raw: "", wantErr: true},
		{name: "empty segment", raw: "a..b", wantErr: true},
		{name: "wildcard without key", raw: "[*].status", wantErr: true},
		{name: "bracket without wildcard", raw: "results[0].status", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got nil", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.raw, err)
			}
			if len(p.segments) != tt.wantLen {
				t.Errorf("Parse(%q) segments = %d, want %d", tt.raw, len(p.segments), tt.wantLen)
			}
		})
	}
}

func TestEvaluateJSON(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
		want []any
	}{
		{
			name: "simple field",
			doc:  `{"status":"ok"}`,
			path: "status",
			want: []any{"ok"},
		},
		{
			name: "nested field",
			doc:  `{"user":{"profile":{"name":"ada"}}}`,
			path: "user.profile.name",
			want: []any{"ada"},
		},
		{
			name: "wildcard over array",
			doc:  `{"results":[{"status":"trusted"},{"status":"blocked"}]}`,
			path: "results[*].status",
			want: []any{"trusted", "blocked"},
		},
		{
			name: "missing field yields no values",
			doc:  `{"status":"ok"}`,
			path: "other",
			want: nil,
		},
		{
			name: "wildcard over non-array is skipped",
			doc:  `{"results":"not-an-array"}`,
			path: "results[*].status",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.path)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			got, err := EvaluateJSON([]byte(tt.doc), p)
			if err != nil {
				t.Fatalf("EvaluateJSON failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("EvaluateJSON(%q, %q) = %v, want %v", tt.doc, tt.path, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("EvaluateJSON(%q, %q)[%d] = %v, want %v", tt.doc, tt.path, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestEvaluateJSON_MalformedDocument(t *testing.T) {
	p, err := Parse("status")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, err := EvaluateJSON([]byte("not json"), p); err == nil {
		t.Error("expected error for malformed JSON document")
	}
}

func TestToScalarString(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{name: "string", input: "hello", want: "hello"},
		{name: "integer float", input: float64(42), want: "42"},
		{name: "fractional float", input: float64(3.14), want: "3.14"},
		{name: "bool true", input: true, want: "true"},
		{name: "nil", input: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToScalarString(tt.input)
			if got != tt.want {
				t.Errorf("ToScalarString(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// Package attrpath evaluates dot-separated attribute paths against
// arbitrary JSON values to decide whether a trusted-data or
// tool-invocation policy condition matches.
package attrpath

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// segment is one step of a parsed path: either a plain object key, or the
// "[*]" wildcard that iterates every element of an array.
type segment struct {
	key      string
	wildcard bool
}

// Path is a parsed attribute path, ready to be evaluated repeatedly
// against different JSON documents.
type Path struct {
	raw      string
	segments []segment
}

// Parse splits a dot-separated attribute path such as "results[*].status"
// or "user.profile.name" into segments. A malformed path (empty segment,
// unmatched brackets) returns an error so callers can fail closed.
func Parse(raw string) (*Path, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("attrpath: empty path")
	}

	var segments []segment
	for _, part := range strings.Split(raw, ".") {
		if part == "" {
			return nil, fmt.Errorf("attrpath: empty segment in path %q", raw)
		}

		key := part
		wildcard := false
		if strings.HasSuffix(part, "[*]") {
			wildcard = true
			key = strings.TrimSuffix(part, "[*]")
			if key == "" {
				return nil, fmt.Errorf("attrpath: wildcard segment without a key in path %q", raw)
			}
		} else if strings.Contains(part, "[") || strings.Contains(part, "]") {
			return nil, fmt.Errorf("attrpath: only [*] wildcard indexing is supported, got %q in path %q", part, raw)
		}

		segments = append(segments, segment{key: key, wildcard: wildcard})
	}

	return &Path{raw: raw, segments: segments}, nil
}

// String returns the original path expression.
func (p *Path) String() string { return p.raw }

// Evaluate walks doc (expected to be arbitrary JSON-decoded data, i.e.
// map[string]any / []any / scalars) along the parsed path and returns
// every scalar value reached. A wildcard segment fans out across every
// element of the array found at that point; non-matching or absent
// branches are simply skipped, not an error.
func Evaluate(doc any, path *Path) []any {
	values := []any{doc}
	for _, seg := range path.segments {
		var next []any
		for _, v := range values {
			obj, ok := v.(map[string]any)
			if !ok {
				continue
			}
			field, present := obj[seg.key]
			if !present {
				continue
			}
			if seg.wildcard {
				arr, ok := field.([]any)
				if !ok {
					continue
				}
				next = append(next, arr...)
			} else {
				next = append(next, field)
			}
		}
		values = next
	}
	return values
}

// EvaluateJSON unmarshals raw JSON and evaluates path against it. Returns
// an error only if raw is not valid JSON; a path that simply doesn't match
// anything returns an empty, non-error result (fail-closed callers should
// treat "no match" as "condition not satisfied", not as an error).
func EvaluateJSON(raw []byte, path *Path) ([]any, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("attrpath: invalid JSON document: %w", err)
	}
	return Evaluate(doc, path), nil
}

// ToScalarString renders a matched JSON value (string, float64, bool, nil)
// as a string for operator comparison.
func ToScalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

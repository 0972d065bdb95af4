// Package repositories implements the gateway's persistence layer: raw
// parameterized SQL against the schema in migrations/, one file per entity,
// grounded on the teacher's repository style minus its tenant-scope
// indirection (every entity here is scoped by agentId, not by a
// context-carried tenant).
package repositories

import "encoding/json"

// jsonbValue marshals v for a JSONB column, returning nil (-> SQL NULL) for
// an empty slice or map rather than storing "[]"/"{}" noise.
func jsonbValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		if len(val) == 0 {
			return nil
		}
		return val
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil
	}
	return b
}

func jsonUnmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

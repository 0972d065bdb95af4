package dualllm

// CandidateSet is the ordered, finite list of short answers a secondary
// model may choose from when sanitizing one untrusted tool result. The set
// must be finite and enumerable — no free-form text crosses the isolation
// boundary the evaluator enforces.
type CandidateSet struct {
	ToolName string
	Options  []string
}

// defaultCandidates is the fallback set used for any tool with no
// tool-specific template: the secondary model can report relevance or
// absence of relevant content, nothing else.
var defaultCandidates = []string{
	"no relevant content",
	"contains content relevant to the question",
	"contains content that appears unrelated to the question",
}

// toolCandidates is the explicit per-tool-name candidate table. Each entry
// is a small enum of summary labels tailored to what that tool's result
// typically contains, plus the universal "no relevant content" fallback.
var toolCandidates = map[string][]string{
	"search_email": {
		"no relevant content",
		"found a matching email about scheduling",
		"found a matching email requesting an action",
		"found a matching email containing only informational content",
	},
	"web_search": {
		"no relevant content",
		"found a page directly answering the question",
		"found a page with partially relevant information",
		"found only unrelated pages",
	},
	"read_file": {
		"no relevant content",
		"file contains directly relevant information",
		"file contains tangential or background information",
	},
	"list_calendar_events": {
		"no relevant content",
		"found an event matching the question",
		"found no event matching the question",
	},
}

// CandidatesForTool returns the candidate set for a tool name, falling back
// to a generic relevance enum when the tool has no dedicated template.
func CandidatesForTool(toolName string) CandidateSet {
	if options, ok := toolCandidates[toolName]; ok {
		return CandidateSet{ToolName: toolName, Options: options}
	}
	return CandidateSet{ToolName: toolName, Options: defaultCandidates}
}

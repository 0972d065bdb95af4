package llm

import (
	"github.com/liushuangls/go-anthropic/v2"

	"github.com/archestra-ai/gateway/pkg/models"
)

// ToolDefinition is a provider-agnostic tool schema translated into each
// upstream surface's own wire format before the request is relayed.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ParameterProperty defines a parameter property in JSON Schema format.
type ParameterProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// NewToolDefinition creates a new tool definition with standard JSON Schema parameters.
func NewToolDefinition(name, description string, properties map[string]ParameterProperty, required []string) ToolDefinition {
	props := make(map[string]any)
	for k, v := range properties {
		entry := map[string]any{
			"type":        v.Type,
			"description": v.Description,
		}
		if len(v.Enum) > 0 {
			entry["enum"] = v.Enum
		}
		props[k] = entry
	}

	return ToolDefinition{
		Name:        name,
		Description: description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

// ToolDefinitionFromModel converts a declared tool into the provider-agnostic
// shape injected into the primary model's tool list during ToolsInjected.
func ToolDefinitionFromModel(tool *models.Tool) ToolDefinition {
	return ToolDefinition{
		Name:        tool.Name,
		Description: tool.Description,
		Parameters:  tool.Parameters,
	}
}

// ToAnthropicTools translates provider-agnostic tool definitions into the
// Anthropic Messages API tool schema.
func ToAnthropicTools(tools []ToolDefinition) []anthropic.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	result := make([]anthropic.ToolDefinition, len(tools))
	for i, def := range tools {
		result[i] = anthropic.ToolDefinition{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Parameters,
		}
	}
	return result
}

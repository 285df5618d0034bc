package extractor

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"

	"github.com/hallyulabs/character-memory/pkg/memory"
)

const ExtractMemoriesToolName = "EXTRACT_MEMORIES"

// memoryArgument mirrors one entry of the tool's memories array.
type memoryArgument struct {
	Scope      string `json:"scope"`
	Category   string `json:"category"`
	Subject    string `json:"subject"`
	Content    string `json:"content"`
	Importance int    `json:"importance"`
	Emphasis   bool   `json:"emphasis,omitempty"`
}

// extractToolArguments is the full tool-call payload. It is untrusted
// model output and every field is validated before use.
type extractToolArguments struct {
	Memories    []memoryArgument    `json:"memories"`
	NewUserInfo memory.ProfileDelta `json:"new_user_info"`
}

var extractMemoriesTool = openai.ChatCompletionToolParam{
	Type: "function",
	Function: openai.FunctionDefinitionParam{
		Name: ExtractMemoriesToolName,
		Description: param.NewOpt(
			"Record durable facts the user explicitly disclosed about themselves, plus any profile fields discovered. Call with empty lists when the excerpt contains nothing new - that is the common case.",
		),
		Parameters: openai.FunctionParameters{
			"type": "object",
			"properties": map[string]any{
				"memories": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"scope": map[string]any{
								"type":        "string",
								"enum":        []string{"global", "character"},
								"description": "global = visible to every character; character = only this character",
							},
							"category": map[string]any{
								"type": "string",
								"enum": []string{"fact", "preference", "emphasis", "relationship", "event"},
							},
							"subject": map[string]any{
								"type":        "string",
								"description": "Short normalized subject the fact is about, e.g. 'food preference: 짜장면' or 'relationship: 언니'. Contradicting facts about the same subject must share it.",
							},
							"content": map[string]any{
								"type":        "string",
								"description": "One self-contained sentence about the user",
							},
							"importance": map[string]any{
								"type":    "integer",
								"minimum": 1,
								"maximum": 5,
							},
							"emphasis": map[string]any{
								"type":        "boolean",
								"description": "true only when the user explicitly asked to remember this",
							},
						},
						"required":             []string{"scope", "category", "subject", "content", "importance"},
						"additionalProperties": false,
					},
				},
				"new_user_info": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"nickname":         map[string]any{"type": "string"},
						"birthday":         map[string]any{"type": "string", "description": "YYYY-MM-DD, or MM-DD when the year is unknown"},
						"gender":           map[string]any{"type": "string", "enum": []string{"male", "female"}},
						"interests":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"preferred_topics": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"preferences":      map[string]any{"type": "object", "additionalProperties": true},
					},
					"additionalProperties": false,
				},
			},
			"required":             []string{"memories"},
			"additionalProperties": false,
		},
	},
}

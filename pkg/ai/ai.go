package ai

import (
	"context"

	"github.com/openai/openai-go"
)

// Completion is the generative-model contract the memory engine consumes.
// Implementations must honor context deadlines; callers treat every error
// as fail-open.
type Completion interface {
	Completions(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam, model string) (openai.ChatCompletionMessage, error)
}

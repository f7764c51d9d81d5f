package ai

import "context"

// TextGenerator generates text from a system prompt and user prompt. Any
// OpenAI-compatible endpoint (vLLM, LiteLLM, LocalAI, OpenRouter, hosted
// OpenAI) implements this interface via OpenAICompatGenerator.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

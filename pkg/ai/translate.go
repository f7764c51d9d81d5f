package ai

import (
	"context"
	"fmt"
	"strings"
)

// Translator converts final user-facing text into the reader's language.
// Translation happens after grounding validation, never before.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// GeneratorTranslator implements Translator on top of a TextGenerator.
type GeneratorTranslator struct {
	gen TextGenerator
}

// NewGeneratorTranslator wraps a text generator as a translator.
func NewGeneratorTranslator(gen TextGenerator) *GeneratorTranslator {
	return &GeneratorTranslator{gen: gen}
}

// Translate returns text rendered in targetLang, or the input unchanged for
// English or empty targets.
func (t *GeneratorTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	targetLang = strings.ToLower(strings.TrimSpace(targetLang))
	if targetLang == "" || targetLang == "english" || targetLang == "en" {
		return text, nil
	}
	prompt := fmt.Sprintf("Translate the following text to %s, preserving meaning and style. Only return the translated text.\n\n%s", targetLang, text)
	out, err := t.gen.GenerateText(ctx, "", prompt)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	return out, nil
}

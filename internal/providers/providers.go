// Package providers defines vision-LLM providers used to tag catalog images
// when the embedding classifier is not confident enough.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Config represents one request to an LLM provider
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
	Image       []byte // PNG encoded
	// MaxTokens caps the answer length, 0 leaves the provider default.
	MaxTokens int
}

// categoryMaxTokens leaves room for the longest label plus punctuation
const categoryMaxTokens = 16

// Provider defines the interface for an LLM provider
type Provider interface {
	ExtractText(ctx context.Context, config Config) (string, error)
}

// CategoryPrompt asks for exactly one label from labels
func CategoryPrompt(labels []string) string {
	return fmt.Sprintf(`You are tagging product photos for a fashion catalog.
Which one of these categories best describes the main item in the image?

%s

Answer with the category only, exactly as written above. If none fits, answer "none".`, strings.Join(labels, ", "))
}

// ParseCategory maps a free text answer onto the vocabulary. Answers outside
// labels are rejected.
func ParseCategory(answer string, labels []string) (string, bool) {
	a := strings.ToLower(strings.TrimSpace(answer))
	a = strings.Trim(a, " .\"'`*")
	for _, l := range labels {
		if a == strings.ToLower(l) {
			return l, true
		}
	}
	return "", false
}

// Categorize asks p to pick a label for the PNG image. A nil result with a
// nil error means the provider gave no usable answer.
func Categorize(ctx context.Context, p Provider, model string, temperature float64, image []byte, labels []string) (*string, error) {
	answer, err := p.ExtractText(ctx, Config{
		Model:       model,
		Temperature: temperature,
		Prompt:      CategoryPrompt(labels),
		Image:       image,
		MaxTokens:   categoryMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to categorize image: %w", err)
	}

	label, ok := ParseCategory(answer, labels)
	if !ok {
		slog.Debug("Discarding provider answer outside the vocabulary", "answer", answer)
		return nil, nil
	}
	return &label, nil
}

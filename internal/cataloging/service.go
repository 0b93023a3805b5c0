// Package cataloging tags catalog images with a category using a
// vision-capable LLM when the embedding classifier is not confident.
package cataloging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/locus-lens/locus/internal/gemini"
	"github.com/locus-lens/locus/internal/ollama"
	"github.com/locus-lens/locus/internal/openai"
	"github.com/locus-lens/locus/internal/providers"
)

type Service struct {
	provider    providers.Provider
	name        string
	model       string
	temperature float64
	labels      []string
}

// NewService selects the named provider. An empty provider falls back to
// CATALOGING_PROVIDER and then ollama, an empty model to the provider default.
func NewService(provider, model string, temperature float64, labels []string) (*Service, error) {
	if provider == "" {
		provider = os.Getenv("CATALOGING_PROVIDER")
		if provider == "" {
			provider = "ollama"
		}
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("categorizer needs at least one label")
	}

	var p providers.Provider
	switch provider {
	case "ollama":
		p = ollama.New()
	case "openai":
		p = openai.New()
	case "gemini":
		p = gemini.New()
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	if model == "" {
		model = DefaultModel(provider)
	}

	return NewServiceWith(p, provider, model, temperature, labels), nil
}

// NewServiceWith wraps an already constructed provider
func NewServiceWith(p providers.Provider, name, model string, temperature float64, labels []string) *Service {
	return &Service{
		provider:    p,
		name:        name,
		model:       model,
		temperature: temperature,
		labels:      slices.Clone(labels),
	}
}

// DefaultModel returns the model used when none is configured.
// OLLAMA_MODEL, OPENAI_MODEL and GEMINI_MODEL override the built-in names.
func DefaultModel(provider string) string {
	switch provider {
	case "openai":
		if model := os.Getenv("OPENAI_MODEL"); model != "" {
			return model
		}
		return "gpt-4o"
	case "ollama":
		if model := os.Getenv("OLLAMA_MODEL"); model != "" {
			return model
		}
		return "llava:13b"
	case "gemini":
		if model := os.Getenv("GEMINI_MODEL"); model != "" {
			return model
		}
		return "gemini-1.5-flash"
	default:
		return ""
	}
}

// Categorize picks a vocabulary label for the PNG image. It has the shape of
// catalog.Categorizer.
func (s *Service) Categorize(ctx context.Context, png []byte) (*string, error) {
	label, err := providers.Categorize(ctx, s.provider, s.model, s.temperature, png, s.labels)
	if err != nil {
		return nil, err
	}
	if label != nil {
		slog.Info("Category suggested by provider", "provider", s.name, "model", s.model, "category", *label)
	}
	return label, nil
}

func (s *Service) Provider() string { return s.name }
func (s *Service) Model() string    { return s.model }

package gemini

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/locus-lens/locus/internal/providers"
	"google.golang.org/api/option"
)

// Gemini is a provider for Google Gemini
type Gemini struct {
	// APIKey defaults to GEMINI_API_KEY when empty
	APIKey string
}

// New returns a new Gemini provider
func New() *Gemini {
	return &Gemini{APIKey: os.Getenv("GEMINI_API_KEY")}
}

// ExtractText sends the prompt, and the image when present, to Gemini
func (g *Gemini) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	apiKey := g.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return "", fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(config.Model)
	model.SetTemperature(float32(config.Temperature))
	if config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(config.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, parts(config)...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return answer(resp)
}

// parts puts the image ahead of the prompt
func parts(config providers.Config) []genai.Part {
	var p []genai.Part
	if len(config.Image) > 0 {
		p = append(p, genai.ImageData("png", config.Image))
	}
	return append(p, genai.Text(config.Prompt))
}

// answer joins the text parts of the first candidate
func answer(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("gemini blocked the response for safety")
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from Gemini")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}
	return sb.String(), nil
}

package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/locus-lens/locus/internal/providers"
)

// errorBodyLimit bounds how much of an error response is quoted
const errorBodyLimit = 512

// Ollama is a provider for a local or remote Ollama server
type Ollama struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a new Ollama provider. OLLAMA_URL (or OLLAMA_HOST) overrides the local default.
func New() *Ollama {
	baseURL := os.Getenv("OLLAMA_URL")
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Ollama{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Images  []string        `json:"images,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ExtractText sends the prompt, and the image when present, to a vision model
func (o *Ollama) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	request := generateRequest{
		Model:  config.Model,
		Prompt: config.Prompt,
		Options: generateOptions{
			Temperature: config.Temperature,
			NumPredict:  config.MaxTokens,
		},
	}
	if len(config.Image) > 0 {
		request.Images = []string{base64.StdEncoding.EncodeToString(config.Image)}
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/generate", bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := o.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Ollama at %s: %w", o.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return "", fmt.Errorf("ollama returned status %d for model %s: %s", resp.StatusCode, config.Model, bytes.TrimSpace(body))
	}

	var response struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}
	if response.Error != "" {
		return "", fmt.Errorf("ollama error: %s", response.Error)
	}

	return response.Response, nil
}

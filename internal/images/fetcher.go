// Package images downloads demo catalog images.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// minImageSize filters out placeholder images returned in place of a 404
const minImageSize = 1000

// Fetcher downloads catalog images over HTTP
type Fetcher struct {
	HTTPClient *http.Client
}

// NewFetcher creates a new image fetcher
func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Source is one image to download
type Source struct {
	Filename string
	URL      string
}

// Result counts the outcome of a fetch
type Result struct {
	Downloaded int
	Existing   int
	Failed     int
}

// LoadList reads a YAML map of filename to URL, sorted by filename
func LoadList(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image list: %w", err)
	}

	var m map[string]string
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse image list: %w", err)
	}

	sources := make([]Source, 0, len(m))
	for name, url := range m {
		sources = append(sources, Source{Filename: filepath.Base(name), URL: url})
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Filename < sources[j].Filename })
	return sources, nil
}

// FetchAll downloads every source into outputDir, skipping files already present.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source, outputDir string) (Result, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return Result{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	var result Result
	for _, s := range sources {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		path := filepath.Join(outputDir, s.Filename)
		if _, err := os.Stat(path); err == nil {
			slog.Debug("Image exists", "filename", s.Filename)
			result.Existing++
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return result, fmt.Errorf("failed to stat %s: %w", path, err)
		}

		if err := f.downloadImage(ctx, s.URL, path); err != nil {
			slog.Warn("Failed to download image", "filename", s.Filename, "url", s.URL, "error", err)
			result.Failed++
			continue
		}
		slog.Info("Downloaded image", "filename", s.Filename)
		result.Downloaded++
	}

	slog.Info("Fetch complete", "downloaded", result.Downloaded, "existing", result.Existing, "failed", result.Failed)
	return result, nil
}

// downloadImage downloads an image from a URL
func (f *Fetcher) downloadImage(ctx context.Context, url, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read image data: %w", err)
	}

	if len(imageData) < minImageSize {
		return fmt.Errorf("image too small (likely placeholder)")
	}

	if err := os.WriteFile(outputPath, imageData, 0644); err != nil {
		return fmt.Errorf("failed to write image file: %w", err)
	}

	return nil
}

// Package inference is the client for the model server that hosts the region
// proposal, embedding and background removal models.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/locus-lens/locus/internal/imageutil"
)

// ErrUnavailable marks failures to reach the model server or non-200 answers from it.
var ErrUnavailable = errors.New("model server unavailable")

// Region is one raw region proposal in the pixel space of the submitted image
type Region struct {
	ClassID int        `json:"class_id"`
	Score   float64    `json:"score"`
	Box     [4]float64 `json:"box"`
}

// Client talks to the model server over HTTP
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a client for the model server at baseURL
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ProposeRegions runs the named detection model on img
func (c *Client) ProposeRegions(ctx context.Context, model string, img image.Image) ([]Region, error) {
	data, err := imageutil.EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	var response struct {
		Regions []Region `json:"regions"`
	}
	endpoint := "/v1/detect?model=" + url.QueryEscape(model)
	if err := c.postFile(ctx, endpoint, "image.jpg", data, &response); err != nil {
		return nil, err
	}

	return response.Regions, nil
}

// EmbedImage returns the raw (unnormalized) image embedding of img
func (c *Client) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	data, err := imageutil.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	var response struct {
		Vector []float32 `json:"vector"`
	}
	if err := c.postFile(ctx, "/v1/embed/image", "image.png", data, &response); err != nil {
		return nil, err
	}
	if len(response.Vector) == 0 {
		return nil, fmt.Errorf("%w: empty image embedding", ErrUnavailable)
	}

	return response.Vector, nil
}

// EmbedTexts returns one raw text embedding per input, in order
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	requestBody, err := json.Marshal(map[string]interface{}{
		"texts": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/embed/text", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var response struct {
		Vectors [][]float32 `json:"vectors"`
	}
	if err := c.do(req, &response); err != nil {
		return nil, err
	}
	if len(response.Vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d text embeddings for %d texts", ErrUnavailable, len(response.Vectors), len(texts))
	}

	return response.Vectors, nil
}

// RemoveBackground returns img with background pixels made transparent
func (c *Client) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	data, err := imageutil.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	body, contentType, err := multipartBody("image.png", data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/remove-background", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: received non-200 status code: %d - %s", ErrUnavailable, resp.StatusCode, string(msg))
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrUnavailable, err)
	}

	result, err := imageutil.Decode(out)
	if err != nil {
		return nil, fmt.Errorf("%w: background removal returned an unreadable image: %v", ErrUnavailable, err)
	}
	return result, nil
}

// CheckHealth calls the model server health endpoint
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: model server unhealthy: %d", ErrUnavailable, resp.StatusCode)
	}

	return nil
}

func (c *Client) postFile(ctx context.Context, endpoint, filename string, data []byte, out interface{}) error {
	body, contentType, err := multipartBody(filename, data)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to send request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: received non-200 status code: %d - %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response body: %v", ErrUnavailable, err)
	}

	return nil
}

func multipartBody(filename string, data []byte) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CoverImager produces a cover-image URL for a recommended book. Image
// generation is best-effort; recommendation flows treat failures as
// non-fatal.
type CoverImager interface {
	GenerateCover(ctx context.Context, title, prompt string) (string, error)
}

// OpenAICompatImager calls an OpenAI-compatible /v1/images/generations
// endpoint.
type OpenAICompatImager struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatImager builds an image client for the given endpoint.
func NewOpenAICompatImager(baseURL, apiKey, model string) *OpenAICompatImager {
	return &OpenAICompatImager{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type oaiImageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type oaiImageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// GenerateCover requests one 1024x1024 image suggesting the book's theme
// and returns its URL.
func (c *OpenAICompatImager) GenerateCover(ctx context.Context, title, prompt string) (string, error) {
	if c.model == "" {
		return "", fmt.Errorf("image model required")
	}
	fullPrompt := fmt.Sprintf(
		"Generate a suggestive, artistic book cover or scene for the book titled %q, based on this summary:\n\n%s\n\nThe image should capture the theme, atmosphere, and style of the story.",
		title, prompt,
	)
	body, err := json.Marshal(oaiImageRequest{Model: c.model, Prompt: fullPrompt, N: 1, Size: "1024x1024"})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return "", fmt.Errorf("image api error: %s", errResp.Error.Message)
		}
		return "", fmt.Errorf("image api error: %s", resp.Status)
	}

	var imgResp oaiImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&imgResp); err != nil {
		return "", fmt.Errorf("image decode: %w", err)
	}
	if len(imgResp.Data) == 0 || imgResp.Data[0].URL == "" {
		return "", fmt.Errorf("image response missing url")
	}
	return imgResp.Data[0].URL, nil
}

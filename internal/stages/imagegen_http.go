package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPImageGenerator posts a chapter's title and text to a hosted
// image-generation endpoint and expects a raw image body in response.
type HTTPImageGenerator struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPImageGenerator returns an HTTPImageGenerator configured against
// baseURL.
func NewHTTPImageGenerator(baseURL, apiKey string) *HTTPImageGenerator {
	return &HTTPImageGenerator{BaseURL: baseURL, APIKey: apiKey, Client: &http.Client{Timeout: 5 * time.Minute}}
}

func (g *HTTPImageGenerator) Generate(ctx context.Context, chapterTitle, chapterText, modelID string) ([]byte, error) {
	if g.BaseURL == "" {
		return nil, fmt.Errorf("imagegen: base url not configured")
	}
	payload, err := json.Marshal(map[string]string{
		"model":  modelID,
		"title":  chapterTitle,
		"prompt": chapterText,
	})
	if err != nil {
		return nil, fmt.Errorf("imagegen: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("imagegen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	client := g.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagegen: request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("imagegen: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagegen: unexpected status %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

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

// HTTPSynthesizer posts chapter narration text to a hosted TTS endpoint
// and expects a raw audio body in response.
type HTTPSynthesizer struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPSynthesizer returns an HTTPSynthesizer configured against baseURL.
func NewHTTPSynthesizer(baseURL, apiKey string) *HTTPSynthesizer {
	return &HTTPSynthesizer{BaseURL: baseURL, APIKey: apiKey, Client: &http.Client{Timeout: 5 * time.Minute}}
}

func (t *HTTPSynthesizer) Synthesize(ctx context.Context, chapterText, modelID string) ([]byte, error) {
	if t.BaseURL == "" {
		return nil, fmt.Errorf("tts: base url not configured")
	}
	payload, err := json.Marshal(map[string]string{
		"model": modelID,
		"text":  chapterText,
	})
	if err != nil {
		return nil, fmt.Errorf("tts: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts: unexpected status %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

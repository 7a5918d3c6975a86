package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HTTPUploader posts the rendered draft to a destination platform's
// upload endpoint and expects a {"video_id": "..."} JSON response.
type HTTPUploader struct {
	BaseURL   string
	APIKey    string
	ChannelID string
	Client    *http.Client
}

// NewHTTPUploader returns an HTTPUploader configured against baseURL.
func NewHTTPUploader(baseURL, apiKey, channelID string) *HTTPUploader {
	return &HTTPUploader{BaseURL: baseURL, APIKey: apiKey, ChannelID: channelID, Client: &http.Client{Timeout: 15 * time.Minute}}
}

func (u *HTTPUploader) Upload(ctx context.Context, draftPath, title string) (string, error) {
	if u.BaseURL == "" {
		return "", fmt.Errorf("publish: upload base url not configured")
	}
	file, err := os.Open(draftPath)
	if err != nil {
		return "", fmt.Errorf("publish: open draft: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("title", title); err != nil {
		return "", fmt.Errorf("publish: write title field: %w", err)
	}
	if err := writer.WriteField("channel_id", u.ChannelID); err != nil {
		return "", fmt.Errorf("publish: write channel field: %w", err)
	}
	part, err := writer.CreateFormFile("video", filepath.Base(draftPath))
	if err != nil {
		return "", fmt.Errorf("publish: create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("publish: write video data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("publish: close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.BaseURL, &body)
	if err != nil {
		return "", fmt.Errorf("publish: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if u.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.APIKey)
	}

	client := u.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Minute}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish: request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("publish: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("publish: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	var parsed struct {
		VideoID string `json:"video_id"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("publish: decode response: %w", err)
	}
	return parsed.VideoID, nil
}

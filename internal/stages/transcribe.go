package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"podship/internal/artifacts"
	"podship/internal/hashing"
	"podship/internal/logging"
	"podship/internal/provenance"
	"podship/internal/services"
	"podship/internal/stage"
	"podship/internal/store"
)

// Transcriber converts raw episode audio into a transcript in the source
// language. Swappable backends (local whisper, hosted ASR) implement this
// single operation.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, modelID string) (string, error)
}

// HTTPTranscriber posts the audio as multipart form data to a hosted ASR
// endpoint and expects a {"text": "..."} JSON response.
type HTTPTranscriber struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPTranscriber returns an HTTPTranscriber configured against baseURL.
func NewHTTPTranscriber(baseURL, apiKey string) *HTTPTranscriber {
	return &HTTPTranscriber{BaseURL: baseURL, APIKey: apiKey, Client: &http.Client{Timeout: 10 * time.Minute}}
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, audio []byte, modelID string) (string, error) {
	if t.BaseURL == "" {
		return "", fmt.Errorf("transcribe: base url not configured")
	}
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("model", modelID); err != nil {
		return "", fmt.Errorf("transcribe: write model field: %w", err)
	}
	part, err := writer.CreateFormFile("audio", "audio.m4a")
	if err != nil {
		return "", fmt.Errorf("transcribe: create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("transcribe: write audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("transcribe: close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL, &body)
	if err != nil {
		return "", fmt.Errorf("transcribe: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if t.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("transcribe: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcribe: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("transcribe: decode response: %w", err)
	}
	return parsed.Text, nil
}

// TranscribeStage produces the source-language transcript from the raw
// audio artifact.
type TranscribeStage struct {
	base
	transcriber Transcriber
}

// NewTranscribeStage returns a TranscribeStage.
func NewTranscribeStage(artifactStore *artifacts.Store, prov *provenance.Writer, transcriber Transcriber) *TranscribeStage {
	return &TranscribeStage{base: newBase(artifactStore, prov), transcriber: transcriber}
}

func (s *TranscribeStage) Name() string { return "transcribe" }

func (s *TranscribeStage) Run(ctx context.Context, rc stage.RunContext) (stage.Result, error) {
	ep := rc.Episode
	epKey := episodeKey(ep)

	inPath, err := s.artifacts.Resolve(epKey, string(artifacts.RawAudio), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}
	outPath, err := s.artifacts.Resolve(epKey, string(artifacts.TranscriptSource), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}
	if !s.artifacts.Exists(inPath) {
		return stage.Failed(services.Wrap(services.ErrPreconditionFailed, s.Name(), "run", "raw audio artifact missing", nil)), nil
	}

	audio, err := s.artifacts.ReadBytes(inPath)
	if err != nil {
		return stage.Failed(err), nil
	}
	inputHash := hashing.HashBytes(audio)

	if !rc.Force && stage.ShouldSkip(s.artifacts, s.prov, epKey, s.Name(), stage.IdempotencyInputs{
		OutputPath:      outPath,
		InputFileHashes: map[string]string{inPath: inputHash},
	}) {
		return stage.Skipped("transcript already current for this audio"), nil
	}

	started := time.Now()
	if rc.DryRun {
		return stage.Success(store.StatusTranscribed, "dry run: skipped transcription", 0), nil
	}

	text, err := s.transcriber.Transcribe(ctx, audio, rc.Config.TranscribeModelID)
	if err != nil {
		return stage.Failed(services.Wrap(services.ErrExternalService, s.Name(), "transcribe", "transcription backend failed", err)), nil
	}
	if err := s.artifacts.WriteText(outPath, text); err != nil {
		return stage.Failed(err), nil
	}

	rec := provenance.Record{
		Stage:           s.Name(),
		EpisodeID:       epKey,
		Timestamp:       time.Now(),
		Model:           ptr(rc.Config.TranscribeModelID),
		InputFiles:      []provenance.FileRef{{Path: inPath, Hash: inputHash}},
		OutputFiles:     []provenance.FileRef{{Path: outPath, Hash: hashing.HashBytes([]byte(text))}},
		DurationSeconds: time.Since(started).Seconds(),
	}
	if err := s.prov.Write(epKey, s.Name(), rec); err != nil {
		return stage.Failed(err), nil
	}

	s.log().Info("transcribed episode audio", logging.Int("chars", len(text)))
	return stage.Success(store.StatusTranscribed, fmt.Sprintf("transcribed %d characters", len(text)), 0), nil
}

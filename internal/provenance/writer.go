// Package provenance implements the Provenance Writer: one
// operation that records, per stage invocation, exactly what prompt,
// model, and inputs produced a set of outputs.
package provenance

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"podship/internal/artifacts"
	"podship/internal/services"
)

// FileRef is one entry of input_files/output_files: a path paired with its
// content hash.
type FileRef struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// ModelParams captures the model invocation parameters recorded alongside
// a stage's provenance, when applicable.
type ModelParams struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Record is the fixed JSON shape written for every stage invocation. Every
// field is present in the encoded output; pointer fields encode as null
// when unset.
type Record struct {
	Stage            string       `json:"stage"`
	EpisodeID        string       `json:"episode_id"`
	Timestamp        time.Time    `json:"timestamp"`
	PromptName       *string      `json:"prompt_name"`
	PromptVersion    *int         `json:"prompt_version"`
	PromptHash       *string      `json:"prompt_hash"`
	Model            *string      `json:"model"`
	ModelParams      *ModelParams `json:"model_params"`
	InputFiles       []FileRef    `json:"input_files"`
	OutputFiles      []FileRef    `json:"output_files"`
	InputTokens      *int64       `json:"input_tokens"`
	OutputTokens     *int64       `json:"output_tokens"`
	CostUSD          *float64     `json:"cost_usd"`
	DurationSeconds  float64      `json:"duration_seconds"`
	Notes            *string      `json:"notes"`
}

// Writer persists provenance records through an artifact Store.
type Writer struct {
	artifacts *artifacts.Store
}

// NewWriter returns a Writer backed by the given artifact Store.
func NewWriter(store *artifacts.Store) *Writer {
	return &Writer{artifacts: store}
}

// Write serializes rec to outputs/{episode_id}/provenance/{stage}_provenance.json,
// preserving non-ASCII characters (no \uXXXX escaping) since the pipeline
// handles Turkish/German text.
func (w *Writer) Write(episodeID, stage string, rec Record) error {
	rec.Timestamp = rec.Timestamp.UTC()
	if rec.InputFiles == nil {
		rec.InputFiles = []FileRef{}
	}
	if rec.OutputFiles == nil {
		rec.OutputFiles = []FileRef{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return services.Wrap(services.ErrIO, stage, "write_provenance", "encode provenance record", err)
	}

	path, err := w.artifacts.Resolve(episodeID, string(artifacts.StageProvenance), "", stage)
	if err != nil {
		return err
	}
	if err := w.artifacts.Write(path, buf.Bytes()); err != nil {
		return services.Wrap(services.ErrIO, stage, "write_provenance", "persist provenance record", err)
	}
	return nil
}

// Read loads the provenance record previously written for (episodeID,
// stage). Returns services.ErrNotFound if none exists, which callers treat
// as "no idempotency baseline yet" rather than a hard failure.
func (w *Writer) Read(episodeID, stage string) (*Record, error) {
	path, err := w.artifacts.Resolve(episodeID, string(artifacts.StageProvenance), "", stage)
	if err != nil {
		return nil, err
	}
	raw, err := w.artifacts.ReadBytes(path)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrIO, stage, "read_provenance", "load provenance record", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, services.Wrap(services.ErrValidation, stage, "read_provenance", "decode provenance record", err)
	}
	return &rec, nil
}

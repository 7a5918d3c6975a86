package provenance_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"podship/internal/artifacts"
	"podship/internal/provenance"
	"podship/internal/services"
)

func TestWritePreservesNonASCIIAndShape(t *testing.T) {
	root := t.TempDir()
	store := artifacts.New(root)
	writer := provenance.NewWriter(store)

	promptName := "adapt"
	promptVersion := 3
	promptHash := "abc123"
	model := "gpt-4o"
	inputTokens := int64(512)
	outputTokens := int64(128)
	cost := 0.0421
	notes := "Türkçe altyazı düzeltmesi yapıldı"

	rec := provenance.Record{
		Stage:           "adapt",
		EpisodeID:       "ep1",
		Timestamp:       time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC),
		PromptName:      &promptName,
		PromptVersion:   &promptVersion,
		PromptHash:      &promptHash,
		Model:           &model,
		ModelParams:     &provenance.ModelParams{Temperature: 0.3, MaxTokens: 4096},
		InputFiles:      []provenance.FileRef{{Path: "transcripts/ep1/transcript.tr.txt", Hash: "hash1"}},
		OutputFiles:     []provenance.FileRef{{Path: "outputs/ep1/script.adapted.tr.md", Hash: "hash2"}},
		InputTokens:     &inputTokens,
		OutputTokens:    &outputTokens,
		CostUSD:         &cost,
		DurationSeconds: 12.5,
		Notes:           &notes,
	}

	if err := writer.Write("ep1", "adapt", rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	path, err := store.Resolve("ep1", string(artifacts.StageProvenance), "", "adapt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	raw, err := store.ReadText(path)
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}

	if !strings.Contains(raw, "Türkçe") {
		t.Fatalf("expected non-ASCII text to be preserved unescaped, got: %s", raw)
	}
	if strings.Contains(raw, `\u`) {
		t.Fatalf("expected no unicode escaping in provenance JSON, got: %s", raw)
	}

	var decoded provenance.Record
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("unmarshal written provenance: %v", err)
	}
	if decoded.Stage != "adapt" || decoded.EpisodeID != "ep1" {
		t.Fatalf("unexpected decoded record: %+v", decoded)
	}
	if !decoded.Timestamp.Equal(rec.Timestamp) {
		t.Fatalf("expected timestamp round-trip, got %v", decoded.Timestamp)
	}
}

func TestWriteNullableFieldsEncodeAsNull(t *testing.T) {
	root := t.TempDir()
	store := artifacts.New(root)
	writer := provenance.NewWriter(store)

	rec := provenance.Record{
		Stage:           "download",
		EpisodeID:       "ep2",
		Timestamp:       time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC),
		DurationSeconds: 3.1,
	}

	if err := writer.Write("ep2", "download", rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	path, err := store.Resolve("ep2", string(artifacts.StageProvenance), "", "download")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	raw, err := store.ReadText(path)
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}

	for _, field := range []string{`"prompt_name": null`, `"model": null`, `"cost_usd": null`, `"notes": null`} {
		if !strings.Contains(raw, field) {
			t.Fatalf("expected %q in output, got: %s", field, raw)
		}
	}
	if !strings.Contains(raw, `"input_files": []`) {
		t.Fatalf("expected empty input_files array, got: %s", raw)
	}
}

func TestReadRoundTripsAndMissingIsNotFound(t *testing.T) {
	root := t.TempDir()
	store := artifacts.New(root)
	writer := provenance.NewWriter(store)

	if _, err := writer.Read("ep3", "download"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any write, got %v", err)
	}

	rec := provenance.Record{Stage: "download", EpisodeID: "ep3", Timestamp: time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC), DurationSeconds: 1.0}
	if err := writer.Write("ep3", "download", rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := writer.Read("ep3", "download")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Stage != "download" || got.EpisodeID != "ep3" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

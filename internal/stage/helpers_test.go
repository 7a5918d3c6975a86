package stage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"podship/internal/artifacts"
	"podship/internal/provenance"
)

func TestShouldSkipFalseWhenOutputMissing(t *testing.T) {
	root := t.TempDir()
	artifactStore := artifacts.New(root)
	prov := provenance.NewWriter(artifactStore)

	skip := ShouldSkip(artifactStore, prov, "ep1", "correct", IdempotencyInputs{
		OutputPath: filepath.Join(root, "missing.txt"),
	})
	if skip {
		t.Fatalf("expected ShouldSkip to be false when output does not exist")
	}
}

func TestShouldSkipTrueWhenEverythingMatches(t *testing.T) {
	root := t.TempDir()
	artifactStore := artifacts.New(root)
	prov := provenance.NewWriter(artifactStore)

	outputPath := filepath.Join(root, "script.txt")
	if err := os.WriteFile(outputPath, []byte("corrected script"), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}

	promptHash := "deadbeef"
	rec := provenance.Record{
		Stage:      "correct",
		EpisodeID:  "ep1",
		Timestamp:  time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		PromptHash: &promptHash,
		InputFiles: []provenance.FileRef{{Path: "transcript.txt", Hash: "abc123"}},
	}
	if err := prov.Write("ep1", "correct", rec); err != nil {
		t.Fatalf("Write provenance: %v", err)
	}

	skip := ShouldSkip(artifactStore, prov, "ep1", "correct", IdempotencyInputs{
		OutputPath:        outputPath,
		CurrentPromptHash: "deadbeef",
		InputFileHashes:   map[string]string{"transcript.txt": "abc123"},
	})
	if !skip {
		t.Fatalf("expected ShouldSkip to be true when output, prompt hash, and input hashes all match")
	}
}

func TestShouldSkipFalseWhenPromptHashChanged(t *testing.T) {
	root := t.TempDir()
	artifactStore := artifacts.New(root)
	prov := provenance.NewWriter(artifactStore)

	outputPath := filepath.Join(root, "script.txt")
	if err := os.WriteFile(outputPath, []byte("corrected script"), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}

	oldHash := "oldhash"
	rec := provenance.Record{
		Stage:      "correct",
		EpisodeID:  "ep1",
		Timestamp:  time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		PromptHash: &oldHash,
	}
	if err := prov.Write("ep1", "correct", rec); err != nil {
		t.Fatalf("Write provenance: %v", err)
	}

	skip := ShouldSkip(artifactStore, prov, "ep1", "correct", IdempotencyInputs{
		OutputPath:        outputPath,
		CurrentPromptHash: "newhash",
	})
	if skip {
		t.Fatalf("expected ShouldSkip to be false when the default prompt hash has changed")
	}
}

func TestShouldSkipFalseWhenOutputMarkedStale(t *testing.T) {
	root := t.TempDir()
	artifactStore := artifacts.New(root)
	prov := provenance.NewWriter(artifactStore)

	outputPath := filepath.Join(root, "script.txt")
	if err := os.WriteFile(outputPath, []byte("corrected script"), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}
	if err := prov.Write("ep1", "correct", provenance.Record{Stage: "correct", EpisodeID: "ep1", Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("Write provenance: %v", err)
	}
	if err := artifactStore.MarkStale(outputPath, "translate", "upstream input changed"); err != nil {
		t.Fatalf("MarkStale: %v", err)
	}

	skip := ShouldSkip(artifactStore, prov, "ep1", "correct", IdempotencyInputs{OutputPath: outputPath})
	if skip {
		t.Fatalf("expected ShouldSkip to be false once the output is marked stale")
	}
}

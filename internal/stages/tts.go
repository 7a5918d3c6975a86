package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"podship/internal/artifacts"
	"podship/internal/hashing"
	"podship/internal/logging"
	"podship/internal/provenance"
	"podship/internal/services"
	"podship/internal/stage"
	"podship/internal/store"
)

// Synthesizer renders one chapter's narration text to audio. The concrete
// voice model is out of this adapter's concern.
type Synthesizer interface {
	Synthesize(ctx context.Context, chapterText, modelID string) ([]byte, error)
}

// TTSManifestEntry records one chapter's synthesized clip for the
// TTSManifest artifact.
type TTSManifestEntry struct {
	ChapterID string `json:"chapter_id"`
	Path      string `json:"path"`
	Hash      string `json:"hash"`
}

// TTSManifest is the on-disk shape of the TTSManifest artifact.
type TTSManifest struct {
	Clips []TTSManifestEntry `json:"clips"`
}

// TTSStage synthesizes narration audio for every chapter.
type TTSStage struct {
	base
	synthesizer Synthesizer
}

// NewTTSStage returns a TTSStage.
func NewTTSStage(artifactStore *artifacts.Store, prov *provenance.Writer, synthesizer Synthesizer) *TTSStage {
	return &TTSStage{base: newBase(artifactStore, prov), synthesizer: synthesizer}
}

func (s *TTSStage) Name() string { return "tts" }

func (s *TTSStage) Run(ctx context.Context, rc stage.RunContext) (stage.Result, error) {
	ep := rc.Episode
	epKey := episodeKey(ep)

	chaptersPath, err := s.artifacts.Resolve(epKey, string(artifacts.Chapters), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}
	if !s.artifacts.Exists(chaptersPath) {
		return stage.Failed(services.Wrap(services.ErrPreconditionFailed, s.Name(), "run", "chapters artifact missing", nil)), nil
	}
	manifestPath, err := s.artifacts.Resolve(epKey, string(artifacts.TTSManifest), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}

	chaptersData, err := s.artifacts.ReadBytes(chaptersPath)
	if err != nil {
		return stage.Failed(err), nil
	}
	var chapters ChaptersManifest
	if err := json.Unmarshal(chaptersData, &chapters); err != nil {
		return stage.Failed(fmt.Errorf("tts: decode chapters: %w", err)), nil
	}

	if !rc.Force && stage.ShouldSkip(s.artifacts, s.prov, epKey, s.Name(), stage.IdempotencyInputs{
		OutputPath:      manifestPath,
		InputFileHashes: map[string]string{chaptersPath: hashing.HashBytes(chaptersData)},
	}) {
		return stage.Skipped("narration already current for this chapter set"), nil
	}

	started := time.Now()
	if rc.DryRun {
		return stage.Success(store.StatusTTSDone, "dry run: skipped narration synthesis", 0), nil
	}

	var (
		entries   []TTSManifestEntry
		outputRef []provenance.FileRef
	)
	for _, chapter := range chapters.Chapters {
		clipPath, err := s.artifacts.Resolve(epKey, string(artifacts.TTSClip), chapter.ID, "")
		if err != nil {
			return stage.Failed(err), nil
		}
		data, err := s.synthesizer.Synthesize(ctx, chapter.Text, rc.Config.TTSModelID)
		if err != nil {
			return stage.Failed(services.Wrap(services.ErrExternalService, s.Name(), "synthesize",
				fmt.Sprintf("narration synthesis failed for chapter %s", chapter.ID), err)), nil
		}
		if err := s.artifacts.Write(clipPath, data); err != nil {
			return stage.Failed(err), nil
		}
		hash := hashing.HashBytes(data)
		entries = append(entries, TTSManifestEntry{ChapterID: chapter.ID, Path: clipPath, Hash: hash})
		outputRef = append(outputRef, provenance.FileRef{Path: clipPath, Hash: hash})
	}

	manifestData, err := json.MarshalIndent(TTSManifest{Clips: entries}, "", "  ")
	if err != nil {
		return stage.Failed(fmt.Errorf("tts: marshal manifest: %w", err)), nil
	}
	if err := s.artifacts.Write(manifestPath, manifestData); err != nil {
		return stage.Failed(err), nil
	}
	outputRef = append(outputRef, provenance.FileRef{Path: manifestPath, Hash: hashing.HashBytes(manifestData)})

	rec := provenance.Record{
		Stage:           s.Name(),
		EpisodeID:       epKey,
		Timestamp:       time.Now(),
		Model:           ptr(rc.Config.TTSModelID),
		InputFiles:      []provenance.FileRef{{Path: chaptersPath, Hash: hashing.HashBytes(chaptersData)}},
		OutputFiles:     outputRef,
		DurationSeconds: time.Since(started).Seconds(),
	}
	if err := s.prov.Write(epKey, s.Name(), rec); err != nil {
		return stage.Failed(err), nil
	}

	s.log().Info("synthesized chapter narration", logging.Int("count", len(entries)))
	return stage.Success(store.StatusTTSDone, fmt.Sprintf("synthesized %d clips", len(entries)), 0), nil
}

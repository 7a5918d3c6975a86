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

// ImageGenerator renders one chapter's cover or illustration image from its
// text. The concrete model (diffusion, hosted API) is out of this
// adapter's concern.
type ImageGenerator interface {
	Generate(ctx context.Context, chapterTitle, chapterText, modelID string) ([]byte, error)
}

// ImageManifestEntry records one chapter's generated image for the
// ImagesManifest artifact.
type ImageManifestEntry struct {
	ChapterID string `json:"chapter_id"`
	Path      string `json:"path"`
	Hash      string `json:"hash"`
}

// ImagesManifest is the on-disk shape of the ImagesManifest artifact.
type ImagesManifest struct {
	Images []ImageManifestEntry `json:"images"`
}

// ImageGenStage produces one image per chapter plus a manifest tying them
// together.
type ImageGenStage struct {
	base
	generator ImageGenerator
}

// NewImageGenStage returns an ImageGenStage.
func NewImageGenStage(artifactStore *artifacts.Store, prov *provenance.Writer, generator ImageGenerator) *ImageGenStage {
	return &ImageGenStage{base: newBase(artifactStore, prov), generator: generator}
}

func (s *ImageGenStage) Name() string { return "imagegen" }

func (s *ImageGenStage) Run(ctx context.Context, rc stage.RunContext) (stage.Result, error) {
	ep := rc.Episode
	epKey := episodeKey(ep)

	chaptersPath, err := s.artifacts.Resolve(epKey, string(artifacts.Chapters), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}
	if !s.artifacts.Exists(chaptersPath) {
		return stage.Failed(services.Wrap(services.ErrPreconditionFailed, s.Name(), "run", "chapters artifact missing", nil)), nil
	}
	manifestPath, err := s.artifacts.Resolve(epKey, string(artifacts.ImagesManifest), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}

	chaptersData, err := s.artifacts.ReadBytes(chaptersPath)
	if err != nil {
		return stage.Failed(err), nil
	}
	var chapters ChaptersManifest
	if err := json.Unmarshal(chaptersData, &chapters); err != nil {
		return stage.Failed(fmt.Errorf("imagegen: decode chapters: %w", err)), nil
	}

	if !rc.Force && stage.ShouldSkip(s.artifacts, s.prov, epKey, s.Name(), stage.IdempotencyInputs{
		OutputPath:      manifestPath,
		InputFileHashes: map[string]string{chaptersPath: hashing.HashBytes(chaptersData)},
	}) {
		return stage.Skipped("images already current for this chapter set"), nil
	}

	started := time.Now()
	if rc.DryRun {
		return stage.Success(store.StatusImagesGenerated, "dry run: skipped image generation", 0), nil
	}

	var (
		entries   []ImageManifestEntry
		outputRef []provenance.FileRef
	)
	for _, chapter := range chapters.Chapters {
		imgPath, err := s.artifacts.Resolve(epKey, string(artifacts.Image), chapter.ID, "")
		if err != nil {
			return stage.Failed(err), nil
		}
		data, err := s.generator.Generate(ctx, chapter.Title, chapter.Text, rc.Config.ImageGenModelID)
		if err != nil {
			return stage.Failed(services.Wrap(services.ErrExternalService, s.Name(), "generate",
				fmt.Sprintf("image generation failed for chapter %s", chapter.ID), err)), nil
		}
		if err := s.artifacts.Write(imgPath, data); err != nil {
			return stage.Failed(err), nil
		}
		hash := hashing.HashBytes(data)
		entries = append(entries, ImageManifestEntry{ChapterID: chapter.ID, Path: imgPath, Hash: hash})
		outputRef = append(outputRef, provenance.FileRef{Path: imgPath, Hash: hash})
	}

	manifestData, err := json.MarshalIndent(ImagesManifest{Images: entries}, "", "  ")
	if err != nil {
		return stage.Failed(fmt.Errorf("imagegen: marshal manifest: %w", err)), nil
	}
	if err := s.artifacts.Write(manifestPath, manifestData); err != nil {
		return stage.Failed(err), nil
	}
	outputRef = append(outputRef, provenance.FileRef{Path: manifestPath, Hash: hashing.HashBytes(manifestData)})

	rec := provenance.Record{
		Stage:           s.Name(),
		EpisodeID:       epKey,
		Timestamp:       time.Now(),
		Model:           ptr(rc.Config.ImageGenModelID),
		InputFiles:      []provenance.FileRef{{Path: chaptersPath, Hash: hashing.HashBytes(chaptersData)}},
		OutputFiles:     outputRef,
		DurationSeconds: time.Since(started).Seconds(),
	}
	if err := s.prov.Write(epKey, s.Name(), rec); err != nil {
		return stage.Failed(err), nil
	}

	s.log().Info("generated chapter images", logging.Int("count", len(entries)))
	return stage.Success(store.StatusImagesGenerated, fmt.Sprintf("generated %d images", len(entries)), 0), nil
}

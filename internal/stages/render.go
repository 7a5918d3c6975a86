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

// Renderer turns a chapter's image and narration clip into a video
// segment, and stitches the ordered segments into the final draft. The
// actual encoding (ffmpeg or otherwise) is a concrete collaborator detail;
// this adapter only sequences the two operations and records what they
// produced.
type Renderer interface {
	RenderSegment(ctx context.Context, imagePath, audioPath string) ([]byte, error)
	Concatenate(ctx context.Context, segmentPaths []string) ([]byte, error)
}

// RenderManifestEntry records one chapter's rendered segment for the
// RenderManifest artifact.
type RenderManifestEntry struct {
	ChapterID string `json:"chapter_id"`
	Path      string `json:"path"`
	Hash      string `json:"hash"`
}

// RenderManifest is the on-disk shape of the RenderManifest artifact.
type RenderManifest struct {
	Segments  []RenderManifestEntry `json:"segments"`
	Draft     string                `json:"draft"`
	DraftHash string                `json:"draft_hash"`
}

// RenderStage assembles chapter segments and the final draft video.
type RenderStage struct {
	base
	renderer Renderer
}

// NewRenderStage returns a RenderStage.
func NewRenderStage(artifactStore *artifacts.Store, prov *provenance.Writer, renderer Renderer) *RenderStage {
	return &RenderStage{base: newBase(artifactStore, prov), renderer: renderer}
}

func (s *RenderStage) Name() string { return "render" }

func (s *RenderStage) Run(ctx context.Context, rc stage.RunContext) (stage.Result, error) {
	ep := rc.Episode
	epKey := episodeKey(ep)

	chaptersPath, err := s.artifacts.Resolve(epKey, string(artifacts.Chapters), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}
	imagesManifestPath, err := s.artifacts.Resolve(epKey, string(artifacts.ImagesManifest), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}
	ttsManifestPath, err := s.artifacts.Resolve(epKey, string(artifacts.TTSManifest), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}
	draftPath, err := s.artifacts.Resolve(epKey, string(artifacts.RenderDraft), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}
	renderManifestPath, err := s.artifacts.Resolve(epKey, string(artifacts.RenderManifest), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}
	if !s.artifacts.Exists(imagesManifestPath) || !s.artifacts.Exists(ttsManifestPath) {
		return stage.Failed(services.Wrap(services.ErrPreconditionFailed, s.Name(), "run", "images or narration manifest missing", nil)), nil
	}

	chaptersData, err := s.artifacts.ReadBytes(chaptersPath)
	if err != nil {
		return stage.Failed(err), nil
	}
	var chapters ChaptersManifest
	if err := json.Unmarshal(chaptersData, &chapters); err != nil {
		return stage.Failed(fmt.Errorf("render: decode chapters: %w", err)), nil
	}
	imagesData, err := s.artifacts.ReadBytes(imagesManifestPath)
	if err != nil {
		return stage.Failed(err), nil
	}
	var images ImagesManifest
	if err := json.Unmarshal(imagesData, &images); err != nil {
		return stage.Failed(fmt.Errorf("render: decode images manifest: %w", err)), nil
	}
	ttsData, err := s.artifacts.ReadBytes(ttsManifestPath)
	if err != nil {
		return stage.Failed(err), nil
	}
	var clips TTSManifest
	if err := json.Unmarshal(ttsData, &clips); err != nil {
		return stage.Failed(fmt.Errorf("render: decode tts manifest: %w", err)), nil
	}

	imageByChapter := make(map[string]string, len(images.Images))
	for _, img := range images.Images {
		imageByChapter[img.ChapterID] = img.Path
	}
	clipByChapter := make(map[string]string, len(clips.Clips))
	for _, clip := range clips.Clips {
		clipByChapter[clip.ChapterID] = clip.Path
	}

	if !rc.Force && stage.ShouldSkip(s.artifacts, s.prov, epKey, s.Name(), stage.IdempotencyInputs{
		OutputPath: draftPath,
		InputFileHashes: map[string]string{
			imagesManifestPath: hashing.HashBytes(imagesData),
			ttsManifestPath:    hashing.HashBytes(ttsData),
		},
	}) {
		return stage.Skipped("draft already current for these chapter assets"), nil
	}

	started := time.Now()
	if rc.DryRun {
		return stage.Success(store.StatusRendered, "dry run: skipped render", 0), nil
	}

	var (
		segmentPaths []string
		entries      []RenderManifestEntry
		outputRef    []provenance.FileRef
	)
	for _, chapter := range chapters.Chapters {
		imgPath, ok := imageByChapter[chapter.ID]
		if !ok {
			return stage.Failed(services.Wrap(services.ErrPreconditionFailed, s.Name(), "run",
				fmt.Sprintf("no image for chapter %s", chapter.ID), nil)), nil
		}
		clipPath, ok := clipByChapter[chapter.ID]
		if !ok {
			return stage.Failed(services.Wrap(services.ErrPreconditionFailed, s.Name(), "run",
				fmt.Sprintf("no narration clip for chapter %s", chapter.ID), nil)), nil
		}

		segData, err := s.renderer.RenderSegment(ctx, imgPath, clipPath)
		if err != nil {
			return stage.Failed(services.Wrap(services.ErrExternalService, s.Name(), "render_segment",
				fmt.Sprintf("segment render failed for chapter %s", chapter.ID), err)), nil
		}
		segPath, err := s.artifacts.Resolve(epKey, string(artifacts.RenderSegment), chapter.ID, "")
		if err != nil {
			return stage.Failed(err), nil
		}
		if err := s.artifacts.Write(segPath, segData); err != nil {
			return stage.Failed(err), nil
		}
		hash := hashing.HashBytes(segData)
		segmentPaths = append(segmentPaths, segPath)
		entries = append(entries, RenderManifestEntry{ChapterID: chapter.ID, Path: segPath, Hash: hash})
		outputRef = append(outputRef, provenance.FileRef{Path: segPath, Hash: hash})
	}

	draftData, err := s.renderer.Concatenate(ctx, segmentPaths)
	if err != nil {
		return stage.Failed(services.Wrap(services.ErrExternalService, s.Name(), "concatenate", "draft assembly failed", err)), nil
	}
	if err := s.artifacts.Write(draftPath, draftData); err != nil {
		return stage.Failed(err), nil
	}
	draftHash := hashing.HashBytes(draftData)
	outputRef = append(outputRef, provenance.FileRef{Path: draftPath, Hash: draftHash})

	manifestData, err := json.MarshalIndent(RenderManifest{Segments: entries, Draft: draftPath, DraftHash: draftHash}, "", "  ")
	if err != nil {
		return stage.Failed(fmt.Errorf("render: marshal manifest: %w", err)), nil
	}
	if err := s.artifacts.Write(renderManifestPath, manifestData); err != nil {
		return stage.Failed(err), nil
	}
	outputRef = append(outputRef, provenance.FileRef{Path: renderManifestPath, Hash: hashing.HashBytes(manifestData)})

	rec := provenance.Record{
		Stage:           s.Name(),
		EpisodeID:       epKey,
		Timestamp:       time.Now(),
		OutputFiles:     outputRef,
		DurationSeconds: time.Since(started).Seconds(),
	}
	if err := s.prov.Write(epKey, s.Name(), rec); err != nil {
		return stage.Failed(err), nil
	}

	s.log().Info("rendered draft video", logging.Int("segments", len(entries)))
	return stage.Success(store.StatusRendered, fmt.Sprintf("rendered draft from %d segments", len(entries)), 0), nil
}

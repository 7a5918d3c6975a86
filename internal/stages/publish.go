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
	"podship/internal/reviewgate"
	"podship/internal/services"
	"podship/internal/stage"
	"podship/internal/store"
)

// Uploader publishes the approved draft to the destination platform and
// reports the platform's identifier for the uploaded video.
type Uploader interface {
	Upload(ctx context.Context, draftPath, title string) (externalVideoID string, err error)
}

// PublishStage uploads the episode's approved draft. Before doing so it
// re-hashes the draft artifact and compares it against the hash recorded
// at review_gate_3 approval time, refusing to publish anything that
// changed underneath the approval.
type PublishStage struct {
	base
	gates    *reviewgate.Service
	uploader Uploader
	store    *store.Store
}

// NewPublishStage returns a PublishStage.
func NewPublishStage(artifactStore *artifacts.Store, prov *provenance.Writer, gates *reviewgate.Service, st *store.Store, uploader Uploader) *PublishStage {
	return &PublishStage{base: newBase(artifactStore, prov), gates: gates, uploader: uploader, store: st}
}

func (s *PublishStage) Name() string { return "publish" }

func (s *PublishStage) Run(ctx context.Context, rc stage.RunContext) (stage.Result, error) {
	ep := rc.Episode
	epKey := episodeKey(ep)

	draftPath, err := s.artifacts.Resolve(epKey, string(artifacts.RenderDraft), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}
	if !s.artifacts.Exists(draftPath) {
		return stage.Failed(services.Wrap(services.ErrPreconditionFailed, s.Name(), "run", "render draft artifact missing", nil)), nil
	}

	approvedHash, ok, err := s.gates.ApprovedArtifactHash(ctx, ep.ID, "render")
	if err != nil {
		return stage.Failed(err), nil
	}
	if !ok {
		return stage.Failed(services.Wrap(services.ErrPreconditionFailed, s.Name(), "run", "no approved render review task on record", nil)), nil
	}

	currentHash, err := hashing.HashFile(draftPath)
	if err != nil {
		return stage.Failed(err), nil
	}
	if currentHash != approvedHash {
		return stage.Failed(services.Wrap(services.ErrValidation, s.Name(), "run",
			"artifact integrity check failed: render draft changed since review_gate_3 approval", nil)), nil
	}

	outPath, err := s.artifacts.Resolve(epKey, string(artifacts.PublishProvenance), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}
	if !rc.Force && stage.ShouldSkip(s.artifacts, s.prov, epKey, s.Name(), stage.IdempotencyInputs{
		OutputPath:      outPath,
		InputFileHashes: map[string]string{draftPath: currentHash},
	}) {
		return stage.Skipped("episode already published from this draft"), nil
	}

	started := time.Now()
	if rc.DryRun {
		return stage.Success(store.StatusPublished, "dry run: skipped upload", 0), nil
	}

	externalVideoID, err := s.uploader.Upload(ctx, draftPath, ep.Title)
	if err != nil {
		return stage.Failed(services.Wrap(services.ErrExternalService, s.Name(), "upload", "publish upload failed", err)), nil
	}

	if _, err := s.store.InsertPublishJob(ctx, &store.PublishJob{
		EpisodeID:       ep.ID,
		ExternalVideoID: externalVideoID,
		Status:          string(store.RunStatusSuccess),
	}); err != nil {
		return stage.Failed(services.Wrap(services.ErrIO, s.Name(), "record_publish", "insert publish job", err)), nil
	}

	publishRecord := struct {
		ExternalVideoID string    `json:"external_video_id"`
		DraftHash       string    `json:"draft_hash"`
		PublishedAt     time.Time `json:"published_at"`
	}{ExternalVideoID: externalVideoID, DraftHash: currentHash, PublishedAt: time.Now().UTC()}
	publishData, err := json.MarshalIndent(publishRecord, "", "  ")
	if err != nil {
		return stage.Failed(fmt.Errorf("publish: marshal publish record: %w", err)), nil
	}
	if err := s.artifacts.Write(outPath, publishData); err != nil {
		return stage.Failed(err), nil
	}

	rec := provenance.Record{
		Stage:           s.Name(),
		EpisodeID:       epKey,
		Timestamp:       time.Now(),
		InputFiles:      []provenance.FileRef{{Path: draftPath, Hash: currentHash}},
		Notes:           ptrOrNil(fmt.Sprintf("external video id: %s", externalVideoID)),
		DurationSeconds: time.Since(started).Seconds(),
	}
	if err := s.prov.Write(epKey, s.Name(), rec); err != nil {
		return stage.Failed(err), nil
	}

	s.log().Info("published episode", logging.String("external_video_id", externalVideoID))
	return stage.Success(store.StatusPublished, fmt.Sprintf("published as %s", externalVideoID), 0), nil
}

package store_test

import (
	"context"
	"testing"

	"podship/internal/config"
	"podship/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfgVal := config.Default()
	cfgVal.DataRoot = t.TempDir()
	cfgVal.LogDir = t.TempDir()
	if err := cfgVal.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfgVal
}

func mustOpen(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(testConfig(t))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenAppliesSchemaAndMigrations(t *testing.T) {
	st := mustOpen(t)

	ep, err := st.CreateEpisode(context.Background(), 1, "ext-1", "Episode One", "https://example.invalid/1", 300, 2)
	if err != nil {
		t.Fatalf("CreateEpisode: %v", err)
	}
	if ep.ID == 0 {
		t.Fatalf("expected non-zero episode id")
	}
	if ep.Status != store.StatusNew {
		t.Fatalf("expected status NEW, got %s", ep.Status)
	}

	fetched, err := st.GetEpisode(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if fetched == nil || fetched.Title != "Episode One" {
		t.Fatalf("unexpected fetched episode: %+v", fetched)
	}

	byExternal, err := st.GetEpisodeByExternalID(context.Background(), "ext-1")
	if err != nil {
		t.Fatalf("GetEpisodeByExternalID: %v", err)
	}
	if byExternal == nil || byExternal.ID != ep.ID {
		t.Fatalf("expected to find episode by external id, got %+v", byExternal)
	}
}

func TestUpdateEpisodeAndListActionable(t *testing.T) {
	st := mustOpen(t)
	ctx := context.Background()

	ep, err := st.CreateEpisode(ctx, 1, "ext-2", "Episode Two", "https://example.invalid/2", 300, 2)
	if err != nil {
		t.Fatalf("CreateEpisode: %v", err)
	}

	ep.Status = store.StatusDownloaded
	ep.AudioPath = "/data/outputs/ext-2/audio/source.wav"
	if err := st.UpdateEpisode(ctx, ep); err != nil {
		t.Fatalf("UpdateEpisode: %v", err)
	}

	actionable, err := st.ListActionableEpisodes(ctx)
	if err != nil {
		t.Fatalf("ListActionableEpisodes: %v", err)
	}
	if len(actionable) != 1 || actionable[0].Status != store.StatusDownloaded {
		t.Fatalf("unexpected actionable episodes: %+v", actionable)
	}

	ep.Status = store.StatusCompleted
	if err := st.UpdateEpisode(ctx, ep); err != nil {
		t.Fatalf("UpdateEpisode (completed): %v", err)
	}
	actionable, err = st.ListActionableEpisodes(ctx)
	if err != nil {
		t.Fatalf("ListActionableEpisodes: %v", err)
	}
	if len(actionable) != 0 {
		t.Fatalf("expected no actionable episodes once completed, got %+v", actionable)
	}
}

func TestPipelineRunsAndCostGuardAggregation(t *testing.T) {
	st := mustOpen(t)
	ctx := context.Background()

	ep, err := st.CreateEpisode(ctx, 1, "ext-3", "Episode Three", "https://example.invalid/3", 300, 2)
	if err != nil {
		t.Fatalf("CreateEpisode: %v", err)
	}

	runs := []*store.PipelineRun{
		{EpisodeID: ep.ID, Stage: "transcribe", Status: store.RunStatusSuccess, EstimatedCostUSD: 0.40},
		{EpisodeID: ep.ID, Stage: "correct", Status: store.RunStatusFailed, EstimatedCostUSD: 0.10},
		{EpisodeID: ep.ID, Stage: "correct", Status: store.RunStatusSuccess, EstimatedCostUSD: 0.12},
	}
	for _, run := range runs {
		if _, err := st.InsertPipelineRun(ctx, run); err != nil {
			t.Fatalf("InsertPipelineRun: %v", err)
		}
	}

	total, err := st.SumCostForEpisode(ctx, ep.ID)
	if err != nil {
		t.Fatalf("SumCostForEpisode: %v", err)
	}
	const want = 0.40 + 0.10 + 0.12
	if diff := total - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected total cost %.2f, got %.2f", want, total)
	}

	history, err := st.ListPipelineRunsForEpisode(ctx, ep.ID)
	if err != nil {
		t.Fatalf("ListPipelineRunsForEpisode: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(history))
	}
	if history[0].Stage != "transcribe" || history[2].Stage != "correct" {
		t.Fatalf("expected insertion order preserved, got %+v", history)
	}

	report, err := st.CostReport(ctx, &ep.ID)
	if err != nil {
		t.Fatalf("CostReport: %v", err)
	}
	if len(report) != 2 {
		t.Fatalf("expected 2 stage rows in cost report, got %+v", report)
	}
}

func TestPromptVersionRegistrationAndPromotion(t *testing.T) {
	st := mustOpen(t)
	ctx := context.Background()

	first := &store.PromptVersion{Name: "chapterize", Version: 1, ContentHash: "hash-a", FilePath: "prompts/chapterize.md"}
	firstID, err := st.InsertPromptVersion(ctx, first, true)
	if err != nil {
		t.Fatalf("InsertPromptVersion (first): %v", err)
	}

	def, err := st.GetDefaultPromptVersion(ctx, "chapterize")
	if err != nil {
		t.Fatalf("GetDefaultPromptVersion: %v", err)
	}
	if def == nil || def.ID != firstID {
		t.Fatalf("expected first version to be default, got %+v", def)
	}

	second := &store.PromptVersion{Name: "chapterize", Version: 2, ContentHash: "hash-b", FilePath: "prompts/chapterize.md"}
	secondID, err := st.InsertPromptVersion(ctx, second, false)
	if err != nil {
		t.Fatalf("InsertPromptVersion (second): %v", err)
	}

	def, err = st.GetDefaultPromptVersion(ctx, "chapterize")
	if err != nil {
		t.Fatalf("GetDefaultPromptVersion: %v", err)
	}
	if def.ID != firstID {
		t.Fatalf("expected version 1 to remain default before promotion, got %+v", def)
	}

	if err := st.PromoteToDefault(ctx, "chapterize", secondID); err != nil {
		t.Fatalf("PromoteToDefault: %v", err)
	}

	def, err = st.GetDefaultPromptVersion(ctx, "chapterize")
	if err != nil {
		t.Fatalf("GetDefaultPromptVersion (after promote): %v", err)
	}
	if def == nil || def.ID != secondID {
		t.Fatalf("expected version 2 to be default after promotion, got %+v", def)
	}

	history, err := st.GetPromptHistory(ctx, "chapterize")
	if err != nil {
		t.Fatalf("GetPromptHistory: %v", err)
	}
	if len(history) != 2 || history[0].Version != 2 {
		t.Fatalf("expected newest-first history, got %+v", history)
	}

	byHash, err := st.GetPromptVersionByHash(ctx, "chapterize", "hash-a")
	if err != nil {
		t.Fatalf("GetPromptVersionByHash: %v", err)
	}
	if byHash == nil || byHash.ID != firstID {
		t.Fatalf("expected idempotency lookup to find version 1, got %+v", byHash)
	}
}

func TestApplyReviewDecisionRevertsEpisodeStatus(t *testing.T) {
	st := mustOpen(t)
	ctx := context.Background()

	ep, err := st.CreateEpisode(ctx, 1, "ext-4", "Episode Four", "https://example.invalid/4", 300, 2)
	if err != nil {
		t.Fatalf("CreateEpisode: %v", err)
	}
	ep.Status = store.StatusApproved
	if err := st.UpdateEpisode(ctx, ep); err != nil {
		t.Fatalf("UpdateEpisode: %v", err)
	}

	taskID, err := st.CreateReviewTask(ctx, &store.ReviewTask{
		EpisodeID:     ep.ID,
		Stage:         "review_gate_3",
		ArtifactPaths: []string{"outputs/ext-4/video/final.mp4"},
	})
	if err != nil {
		t.Fatalf("CreateReviewTask: %v", err)
	}

	open, err := st.GetOpenReviewTask(ctx, ep.ID, "review_gate_3")
	if err != nil {
		t.Fatalf("GetOpenReviewTask: %v", err)
	}
	if open == nil || open.ID != taskID {
		t.Fatalf("expected open review task, got %+v", open)
	}

	err = st.ApplyReviewDecision(ctx, taskID, store.DecisionChangesRequested, "fix the intro chapter",
		"", store.ReviewChangesRequested, ep.ID, store.StatusRendered)
	if err != nil {
		t.Fatalf("ApplyReviewDecision: %v", err)
	}

	reverted, err := st.GetEpisode(ctx, ep.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if reverted.Status != store.StatusRendered {
		t.Fatalf("expected episode reverted to RENDERED, got %s", reverted.Status)
	}

	feedback, err := st.LatestFeedback(ctx, ep.ID, "review_gate_3")
	if err != nil {
		t.Fatalf("LatestFeedback: %v", err)
	}
	if feedback != "fix the intro chapter" {
		t.Fatalf("expected latest feedback to be recorded, got %q", feedback)
	}

	open, err = st.GetOpenReviewTask(ctx, ep.ID, "review_gate_3")
	if err != nil {
		t.Fatalf("GetOpenReviewTask (after decision): %v", err)
	}
	if open == nil || open.Status != store.ReviewChangesRequested {
		t.Fatalf("expected task to remain open in CHANGES_REQUESTED awaiting resubmission, got %+v", open)
	}

	approved, err := st.HasApprovedReviewTask(ctx, ep.ID, "review_gate_3")
	if err != nil {
		t.Fatalf("HasApprovedReviewTask: %v", err)
	}
	if approved {
		t.Fatalf("expected no approved task yet")
	}
}

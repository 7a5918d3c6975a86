package reviewgate_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"podship/internal/artifacts"
	"podship/internal/config"
	"podship/internal/reviewgate"
	"podship/internal/services"
	"podship/internal/store"
	"podship/internal/testsupport"
)

func setup(t *testing.T) (*config.Config, *store.Store, *artifacts.Store, *reviewgate.Service) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	artifactStore := artifacts.New(cfg.DataRoot)
	return cfg, st, artifactStore, reviewgate.NewService(st, artifactStore, nil)
}

func writeArtifact(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestCreateTaskConflictsWithOpenTask(t *testing.T) {
	_, st, _, svc := setup(t)
	ctx := context.Background()
	ep := testsupport.NewEpisode(t, st, 1, "ext-1", "Episode One")

	if _, err := svc.CreateTask(ctx, ep.ID, "correct", []string{"/tmp/whatever.txt"}, "", nil); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := svc.CreateTask(ctx, ep.ID, "correct", []string{"/tmp/whatever.txt"}, "", nil); !errors.Is(err, services.ErrGateConflict) {
		t.Fatalf("expected ErrGateConflict for duplicate open task, got %v", err)
	}
}

func TestApproveRecordsArtifactHash(t *testing.T) {
	cfg, st, _, svc := setup(t)
	ctx := context.Background()
	ep := testsupport.NewEpisode(t, st, 1, "ext-2", "Episode Two")
	path := writeArtifact(t, cfg.DataRoot, "script.txt", "hello world")

	task, err := svc.CreateTask(ctx, ep.ID, "correct", []string{path}, "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	decision, err := svc.Approve(ctx, task.ID, "looks good")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if decision.Decision != store.DecisionApproved {
		t.Fatalf("expected approved decision, got %v", decision.Decision)
	}

	approved, err := svc.HasApproved(ctx, ep.ID, "correct")
	if err != nil {
		t.Fatalf("HasApproved: %v", err)
	}
	if !approved {
		t.Fatalf("expected HasApproved to be true after approval")
	}

	got, err := st.GetReviewTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetReviewTask: %v", err)
	}
	if got.ArtifactHash == "" {
		t.Fatalf("expected artifact_hash to be recorded on approval")
	}
}

func TestRejectRevertsEpisodeStatusAndMarksStale(t *testing.T) {
	cfg, st, artifactStore, svc := setup(t)
	ctx := context.Background()
	ep := testsupport.NewEpisode(t, st, 1, "ext-3", "Episode Three")
	ep.Status = store.StatusCorrected
	if err := st.UpdateEpisode(ctx, ep); err != nil {
		t.Fatalf("UpdateEpisode: %v", err)
	}

	path := writeArtifact(t, cfg.DataRoot, "script.txt", "a script")
	task, err := svc.CreateTask(ctx, ep.ID, "correct", []string{path}, "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if _, err := svc.Reject(ctx, task.ID, "needs work"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	got, err := st.GetEpisode(ctx, ep.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if got.Status != store.StatusTranscribed {
		t.Fatalf("expected episode to revert to TRANSCRIBED, got %s", got.Status)
	}

	if !artifactStore.IsStale(path) {
		t.Fatalf("expected rejected artifact to be marked stale")
	}

	feedback, err := svc.LatestFeedback(ctx, ep.ID, "correct")
	if err != nil {
		t.Fatalf("LatestFeedback: %v", err)
	}
	if feedback != "needs work" {
		t.Fatalf("expected latest feedback to be retained, got %q", feedback)
	}
}

func TestRequestChangesKeepsTaskOpen(t *testing.T) {
	cfg, st, _, svc := setup(t)
	ctx := context.Background()
	ep := testsupport.NewEpisode(t, st, 1, "ext-4", "Episode Four")
	ep.Status = store.StatusAdapted
	if err := st.UpdateEpisode(ctx, ep); err != nil {
		t.Fatalf("UpdateEpisode: %v", err)
	}

	path := writeArtifact(t, cfg.DataRoot, "adapted.txt", "adapted script")

	task, err := svc.CreateTask(ctx, ep.ID, "adapt", []string{path}, "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := svc.RequestChanges(ctx, task.ID, "tone is off"); err != nil {
		t.Fatalf("RequestChanges: %v", err)
	}

	pending, err := svc.HasPending(ctx, ep.ID, "adapt")
	if err != nil {
		t.Fatalf("HasPending: %v", err)
	}
	if !pending {
		t.Fatalf("expected a CHANGES_REQUESTED task to still count as pending")
	}
}

func TestApproveTwiceFailsWithInvalidTransition(t *testing.T) {
	cfg, st, _, svc := setup(t)
	ctx := context.Background()
	ep := testsupport.NewEpisode(t, st, 1, "ext-5", "Episode Five")
	path := writeArtifact(t, cfg.DataRoot, "render.txt", "final render")

	task, err := svc.CreateTask(ctx, ep.ID, "render", []string{path}, "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := svc.Approve(ctx, task.ID, ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := svc.Approve(ctx, task.ID, ""); !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on re-approving a terminal task, got %v", err)
	}
}

func TestAutoApproveIfEligibleOnlyAppliesToCorrectStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	artifactStore := artifacts.New(cfg.DataRoot)
	svc := reviewgate.NewService(st, artifactStore, reviewgate.PunctuationOnlyClassifier{})

	ctx := context.Background()
	ep := testsupport.NewEpisode(t, st, 1, "ext-6", "Episode Six")
	path := writeArtifact(t, cfg.DataRoot, "adapted.txt", "adapted")

	task, err := svc.CreateTask(ctx, ep.ID, "adapt", []string{path}, "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	approved, _, err := svc.AutoApproveIfEligible(ctx, task, 1, true)
	if err != nil {
		t.Fatalf("AutoApproveIfEligible: %v", err)
	}
	if approved {
		t.Fatalf("expected auto-approve to be skipped for non-correct stage")
	}
}

func TestAutoApproveIfEligibleApprovesPunctuationOnlyCorrectDiff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	artifactStore := artifacts.New(cfg.DataRoot)
	svc := reviewgate.NewService(st, artifactStore, reviewgate.PunctuationOnlyClassifier{})

	ctx := context.Background()
	ep := testsupport.NewEpisode(t, st, 1, "ext-7", "Episode Seven")
	path := writeArtifact(t, cfg.DataRoot, "corrected.txt", "corrected text")

	task, err := svc.CreateTask(ctx, ep.ID, "correct", []string{path}, "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	approved, decision, err := svc.AutoApproveIfEligible(ctx, task, 2, true)
	if err != nil {
		t.Fatalf("AutoApproveIfEligible: %v", err)
	}
	if !approved || decision.Decision != store.DecisionApproved {
		t.Fatalf("expected auto-approval for a punctuation-only diff under threshold, got approved=%v decision=%+v", approved, decision)
	}
}

func TestPendingCountAcrossEpisodes(t *testing.T) {
	cfg, st, _, svc := setup(t)
	ctx := context.Background()
	ep1 := testsupport.NewEpisode(t, st, 1, "ext-8", "Episode Eight")
	ep2 := testsupport.NewEpisode(t, st, 1, "ext-9", "Episode Nine")

	path1 := writeArtifact(t, cfg.DataRoot, "a.txt", "a")
	path2 := writeArtifact(t, cfg.DataRoot, "b.txt", "b")

	if _, err := svc.CreateTask(ctx, ep1.ID, "correct", []string{path1}, "", nil); err != nil {
		t.Fatalf("CreateTask ep1: %v", err)
	}
	if _, err := svc.CreateTask(ctx, ep2.ID, "render", []string{path2}, "", nil); err != nil {
		t.Fatalf("CreateTask ep2: %v", err)
	}

	count, err := svc.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 pending review tasks, got %d", count)
	}
}

package orchestrator_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"podship/internal/artifacts"
	"podship/internal/config"
	"podship/internal/costguard"
	"podship/internal/orchestrator"
	"podship/internal/reviewgate"
	"podship/internal/services"
	"podship/internal/stage"
	"podship/internal/store"
	"podship/internal/testsupport"
)

// fakeHandler advances an episode straight to a fixed status, recording
// every RunContext it was invoked with.
type fakeHandler struct {
	name        string
	result      stage.Result
	err         error
	invocations []stage.RunContext
}

func (h *fakeHandler) Name() string { return h.name }

func (h *fakeHandler) Run(_ context.Context, rc stage.RunContext) (stage.Result, error) {
	h.invocations = append(h.invocations, rc)
	return h.result, h.err
}

// gateHandler is a thin pure review-gate adapter backed by a real
// reviewgate.Service, used to exercise suspend/resume through the
// orchestrator without a full stage-adapter package.
type gateHandler struct {
	gates        *reviewgate.Service
	stage        string
	artifactPath string
	advance      *store.EpisodeStatus
}

func (h *gateHandler) Name() string { return h.stage }

func (h *gateHandler) Run(ctx context.Context, rc stage.RunContext) (stage.Result, error) {
	approved, err := h.gates.HasApproved(ctx, rc.Episode.ID, h.stage)
	if err != nil {
		return stage.Result{}, err
	}
	if approved {
		if h.advance != nil {
			return stage.Success(*h.advance, "approved", 0), nil
		}
		return stage.Skipped("approved, no status change"), nil
	}
	pending, err := h.gates.HasPending(ctx, rc.Episode.ID, h.stage)
	if err != nil {
		return stage.Result{}, err
	}
	if !pending {
		if _, err := h.gates.CreateTask(ctx, rc.Episode.ID, h.stage, []string{h.artifactPath}, "", nil); err != nil {
			return stage.Result{}, err
		}
	}
	return stage.ReviewPending("awaiting human review"), nil
}

func setup(t *testing.T) (*config.Config, *store.Store, *orchestrator.Orchestrator, *reviewgate.Service, orchestrator.Registry) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	artifactStore := artifacts.New(cfg.DataRoot)
	gates := reviewgate.NewService(st, artifactStore, nil)
	guard := costguard.New(st, cfg.MaxEpisodeCostUSD)
	registry := orchestrator.Registry{}
	orch := orchestrator.New(cfg, st, guard, gates, registry, nil)
	return cfg, st, orch, gates, registry
}

func TestRunEpisodeTerminalStatusReturnsEmptyReport(t *testing.T) {
	_, st, orch, _, _ := setup(t)
	ep := testsupport.NewEpisode(t, st, 1, "ext-1", "terminal episode")
	ep.Status = store.StatusCompleted
	if err := st.UpdateEpisode(context.Background(), ep); err != nil {
		t.Fatalf("UpdateEpisode: %v", err)
	}

	report, err := orch.RunEpisode(context.Background(), ep.ID, false, false)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if len(report.Steps) != 0 {
		t.Fatalf("expected no steps for a terminal episode, got %d", len(report.Steps))
	}
}

func TestRunEpisodeAdvancesThroughMultipleStages(t *testing.T) {
	_, st, orch, _, registry := setup(t)
	ep := testsupport.NewEpisode(t, st, 1, "ext-2", "two stage episode")

	download := &fakeHandler{name: "download", result: stage.Success(store.StatusDownloaded, "ok", 0.1)}
	transcribe := &fakeHandler{name: "transcribe", result: stage.Success(store.StatusTranscribed, "ok", 0.2)}
	registry["download"] = download
	registry["transcribe"] = transcribe

	report, err := orch.RunEpisode(context.Background(), ep.ID, false, false)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if len(download.invocations) != 1 || len(transcribe.invocations) != 1 {
		t.Fatalf("expected download and transcribe to each run once, got %d/%d", len(download.invocations), len(transcribe.invocations))
	}
	if math.Abs(report.TotalCost-0.3) > 1e-9 {
		t.Fatalf("expected total cost 0.3, got %v", report.TotalCost)
	}

	reloaded, err := st.GetEpisode(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if reloaded.Status != store.StatusTranscribed {
		t.Fatalf("expected episode status TRANSCRIBED after correct is missing from registry, got %s", reloaded.Status)
	}
}

func TestRunEpisodeStopsOnFailedStageAndSetsFailed(t *testing.T) {
	_, st, orch, _, registry := setup(t)
	ep := testsupport.NewEpisode(t, st, 1, "ext-3", "failing episode")

	registry["download"] = &fakeHandler{name: "download", result: stage.Failed(services.Wrap(services.ErrExternalService, "download", "fetch", "network unreachable", nil))}

	report, err := orch.RunEpisode(context.Background(), ep.ID, false, false)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if report.Success {
		t.Fatalf("expected report to mark failure")
	}

	reloaded, err := st.GetEpisode(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if reloaded.Status != store.StatusFailed {
		t.Fatalf("expected episode status FAILED, got %s", reloaded.Status)
	}

	runs, err := st.ListPipelineRunsForEpisode(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("ListPipelineRunsForEpisode: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != store.RunStatusFailed {
		t.Fatalf("expected one failed pipeline_run, got %+v", runs)
	}
}

func TestRunEpisodeStopsWhenCostCapExceeded(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxEpisodeCost(1.0))
	st := testsupport.MustOpenStore(t, cfg)
	artifactStore := artifacts.New(cfg.DataRoot)
	gates := reviewgate.NewService(st, artifactStore, nil)
	guard := costguard.New(st, cfg.MaxEpisodeCostUSD)
	registry := orchestrator.Registry{}
	orch := orchestrator.New(cfg, st, guard, gates, registry, nil)

	ep := testsupport.NewEpisode(t, st, 1, "ext-4", "expensive episode")
	registry["download"] = &fakeHandler{name: "download", result: stage.Success(store.StatusDownloaded, "ok", 2.0)}
	registry["transcribe"] = &fakeHandler{name: "transcribe", result: stage.Success(store.StatusTranscribed, "ok", 0.1)}

	report, err := orch.RunEpisode(context.Background(), ep.ID, false, false)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if report.Success {
		t.Fatalf("expected cost cap to fail the run")
	}
	if len(report.Steps) != 1 {
		t.Fatalf("expected only the download stage to run before the cap stopped the pipeline, got %d steps", len(report.Steps))
	}

	reloaded, err := st.GetEpisode(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if reloaded.Status != store.StatusCostLimit {
		t.Fatalf("expected episode status COST_LIMIT, got %s", reloaded.Status)
	}
}

func TestRunEpisodeSuspendsAtReviewGateThenResumesAfterApproval(t *testing.T) {
	_, st, orch, gates, registry := setup(t)
	ep := testsupport.NewEpisode(t, st, 1, "ext-5", "gated episode")
	ep.Status = store.StatusCorrected
	if err := st.UpdateEpisode(context.Background(), ep); err != nil {
		t.Fatalf("UpdateEpisode: %v", err)
	}

	artifactPath := filepath.Join(t.TempDir(), "script.corrected.md")
	if err := os.WriteFile(artifactPath, []byte("corrected script"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	registry["review_gate_1"] = &gateHandler{gates: gates, stage: "review_gate_1", artifactPath: artifactPath}
	registry["translate"] = &fakeHandler{name: "translate", result: stage.Success(store.StatusTranslated, "ok", 0.05)}
	registry["adapt"] = &fakeHandler{name: "adapt", result: stage.Success(store.StatusAdapted, "ok", 0)}
	registry["review_gate_2"] = &gateHandler{gates: gates, stage: "review_gate_2", artifactPath: artifactPath}

	report, err := orch.RunEpisode(context.Background(), ep.ID, false, false)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if !report.Success {
		t.Fatalf("expected review_pending to be reported as a clean suspension, not a failure")
	}
	if len(report.Steps) != 1 || report.Steps[0].Result.Status != stage.StatusReviewPending {
		t.Fatalf("expected exactly one review_pending step, got %+v", report.Steps)
	}

	reloaded, err := st.GetEpisode(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if reloaded.Status != store.StatusCorrected {
		t.Fatalf("expected status to remain CORRECTED while the gate is open, got %s", reloaded.Status)
	}

	task, err := st.GetOpenReviewTask(context.Background(), ep.ID, "review_gate_1")
	if err != nil {
		t.Fatalf("GetOpenReviewTask: %v", err)
	}
	if task == nil {
		t.Fatalf("expected a review task to have been created")
	}
	if _, err := gates.Approve(context.Background(), task.ID, "looks good"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	report2, err := orch.RunEpisode(context.Background(), ep.ID, false, false)
	if err != nil {
		t.Fatalf("RunEpisode (resume): %v", err)
	}
	if !report2.Success {
		t.Fatalf("expected resumed run to succeed, terminal error: %s", report2.TerminalErr)
	}
	found := false
	for _, step := range report2.Steps {
		if step.StageID == "translate" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected translate to run after gate approval, got steps %+v", report2.Steps)
	}
}

func TestRunPendingSkipsEpisodesBlockedByOpenGate(t *testing.T) {
	_, st, orch, gates, registry := setup(t)
	ep := testsupport.NewEpisode(t, st, 1, "ext-6", "blocked episode")
	ep.Status = store.StatusCorrected
	if err := st.UpdateEpisode(context.Background(), ep); err != nil {
		t.Fatalf("UpdateEpisode: %v", err)
	}
	if _, err := gates.CreateTask(context.Background(), ep.ID, "review_gate_1", []string{"/tmp/a.txt"}, "", nil); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	registry["review_gate_1"] = &gateHandler{gates: gates, stage: "review_gate_1"}

	reports, err := orch.RunPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunPending: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("expected the blocked episode to be skipped, got %d reports", len(reports))
	}
}

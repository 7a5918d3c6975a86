package costguard_test

import (
	"context"
	"errors"
	"testing"

	"podship/internal/costguard"
	"podship/internal/services"
	"podship/internal/store"
	"podship/internal/testsupport"
)

func insertRun(t *testing.T, st *store.Store, episodeID int64, stage string, status store.RunStatus, cost float64) {
	t.Helper()
	if _, err := st.InsertPipelineRun(context.Background(), &store.PipelineRun{
		EpisodeID:        episodeID,
		Stage:            stage,
		Status:           status,
		EstimatedCostUSD: cost,
	}); err != nil {
		t.Fatalf("InsertPipelineRun: %v", err)
	}
}

func TestCheckBelowCap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ep := testsupport.NewEpisode(t, st, 1, "ext-1", "Episode One")
	insertRun(t, st, ep.ID, "correct", store.RunStatusSuccess, 1.25)

	guard := costguard.New(st, 5.0)
	status, err := guard.Check(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status.Exceeded {
		t.Fatalf("expected cost below cap, got %+v", status)
	}
	if status.TotalUSD != 1.25 {
		t.Fatalf("expected total 1.25, got %f", status.TotalUSD)
	}
}

func TestCheckCountsSuccessAndFailedNotSkipped(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ep := testsupport.NewEpisode(t, st, 1, "ext-2", "Episode Two")
	insertRun(t, st, ep.ID, "correct", store.RunStatusSuccess, 2.0)
	insertRun(t, st, ep.ID, "translate", store.RunStatusFailed, 2.0)
	insertRun(t, st, ep.ID, "adapt", store.RunStatusSkipped, 100.0)

	guard := costguard.New(st, 5.0)
	status, err := guard.Check(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status.TotalUSD != 4.0 {
		t.Fatalf("expected skipped runs excluded from total, got %f", status.TotalUSD)
	}
	if status.Exceeded {
		t.Fatalf("expected 4.0 to stay under cap 5.0, got %+v", status)
	}
}

func TestEnforceFailsOnceCapReached(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ep := testsupport.NewEpisode(t, st, 1, "ext-3", "Episode Three")
	insertRun(t, st, ep.ID, "correct", store.RunStatusSuccess, 5.0)

	guard := costguard.New(st, 5.0)
	err := guard.Enforce(context.Background(), ep.ID, "translate")
	if !errors.Is(err, services.ErrCostCapExceeded) {
		t.Fatalf("expected ErrCostCapExceeded at exactly the cap, got %v", err)
	}
}

func TestEnforceAllowsUnderCap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ep := testsupport.NewEpisode(t, st, 1, "ext-4", "Episode Four")
	insertRun(t, st, ep.ID, "correct", store.RunStatusSuccess, 1.0)

	guard := costguard.New(st, 5.0)
	if err := guard.Enforce(context.Background(), ep.ID, "translate"); err != nil {
		t.Fatalf("expected no error under cap, got %v", err)
	}
}

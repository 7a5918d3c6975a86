package services_test

import (
	"context"
	"testing"

	"podship/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithEpisodeID(ctx, "ext-42")
	ctx = services.WithStage(ctx, "transcribe")
	ctx = services.WithRunID(ctx, "run-7")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.EpisodeIDFromContext(ctx); !ok || id != "ext-42" {
		t.Fatalf("unexpected episode id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "transcribe" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if runID, ok := services.RunIDFromContext(ctx); !ok || runID != "run-7" {
		t.Fatalf("unexpected run id: %v %v", runID, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}

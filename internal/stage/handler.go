// Package stage defines the narrow contract the orchestrator needs from
// every stage adapter, so the orchestrator never imports an adapter's
// concrete implementation package directly.
package stage

import (
	"context"
	"log/slog"

	"podship/internal/config"
	"podship/internal/store"
)

// Status is the outcome a stage adapter reports back to the orchestrator.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusSkipped       Status = "skipped"
	StatusFailed        Status = "failed"
	StatusReviewPending Status = "review_pending"
)

// RunContext carries everything a stage adapter needs to decide whether to
// act and how to behave: the episode it is acting on, resolved settings,
// and the two flags that change adapter behavior regardless of stage.
type RunContext struct {
	Episode *store.Episode
	Config  *config.Config
	// Force skips the idempotency check: the adapter always does its work.
	Force bool
	// DryRun suppresses external calls and output-file writes. Adapters
	// return before their provenance write, so a dry run leaves no
	// provenance record.
	DryRun bool
	// ReviewerFeedback carries the notes from the most recent
	// CHANGES_REQUESTED/REJECTED decision against this episode's current
	// stage, when one exists. The orchestrator populates this for
	// correct/adapt so a re-run can fold the feedback into its prompt.
	ReviewerFeedback string
}

// Result is what a stage adapter returns after one invocation. NewStatus is
// nil unless the episode's status should change as a result.
type Result struct {
	Status    Status
	Detail    string
	CostUSD   float64
	NewStatus *store.EpisodeStatus
	Err       error
}

// Success builds a Result that advances the episode to newStatus.
func Success(newStatus store.EpisodeStatus, detail string, costUSD float64) Result {
	return Result{Status: StatusSuccess, Detail: detail, CostUSD: costUSD, NewStatus: &newStatus}
}

// Skipped builds a Result for an adapter that found its output already
// current and did no external work.
func Skipped(detail string) Result {
	return Result{Status: StatusSkipped, Detail: detail}
}

// Failed builds a Result carrying the error that caused the stage to fail.
func Failed(err error) Result {
	return Result{Status: StatusFailed, Err: err, Detail: err.Error()}
}

// ReviewPending builds a Result for a review-gate adapter whose gate has no
// approved decision yet.
func ReviewPending(detail string) Result {
	return Result{Status: StatusReviewPending, Detail: detail}
}

// Handler is the only thing the orchestrator knows about a stage: given a
// RunContext, produce a Result. Implementations are responsible for their
// own idempotency check, external I/O, artifact writes, provenance writes,
// and cascade invalidation of downstream outputs.
type Handler interface {
	Name() string
	Run(ctx context.Context, rc RunContext) (Result, error)
}

// LoggerAware is implemented by handlers that accept a per-run logger.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// HealthChecker is implemented by handlers that can report their own
// readiness independent of a specific episode run.
type HealthChecker interface {
	HealthCheck(context.Context) Health
}

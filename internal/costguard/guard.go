// Package costguard enforces a per-episode cost cap across pipeline_run
// attempts, short-circuiting further stage execution once the configured
// ceiling is reached.
package costguard

import (
	"context"

	"podship/internal/services"
	"podship/internal/store"
)

// Status is a snapshot of an episode's accumulated cost against its cap.
type Status struct {
	TotalUSD float64
	CapUSD   float64
	Exceeded bool
}

// Guard aggregates estimated_cost_usd across an episode's success and
// failed pipeline_run records and compares it against a configured cap.
type Guard struct {
	store  *store.Store
	capUSD float64
}

// New returns a Guard enforcing capUSD for every episode it checks.
func New(st *store.Store, capUSD float64) *Guard {
	return &Guard{store: st, capUSD: capUSD}
}

// Check sums episode cost and reports whether it has reached the cap. The
// sum runs after each stage completes, so a prior stage that pushed the
// total over the cap is never retroactively undone — only stages invoked
// afterward are refused.
func (g *Guard) Check(ctx context.Context, episodeID int64) (Status, error) {
	total, err := g.store.SumCostForEpisode(ctx, episodeID)
	if err != nil {
		return Status{}, services.Wrap(services.ErrIO, "", "cost_guard_check", "sum episode cost", err)
	}
	return Status{TotalUSD: total, CapUSD: g.capUSD, Exceeded: total >= g.capUSD}, nil
}

// Enforce returns services.ErrCostCapExceeded if the episode has already
// reached its cap, so the caller can skip invoking a stage adapter
// entirely rather than paying for external work that will be discarded.
func (g *Guard) Enforce(ctx context.Context, episodeID int64, stage string) error {
	status, err := g.Check(ctx, episodeID)
	if err != nil {
		return err
	}
	if status.Exceeded {
		return services.Wrap(services.ErrCostCapExceeded, stage, "cost_guard_check", "cost cap exceeded", nil)
	}
	return nil
}

// Package orchestrator implements the Pipeline Orchestrator: the
// top-level operation that walks an episode through its stage plan to
// completion or clean suspension, one stage at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"podship/internal/config"
	"podship/internal/costguard"
	"podship/internal/logging"
	"podship/internal/notifications"
	"podship/internal/reviewgate"
	"podship/internal/services"
	"podship/internal/stage"
	"podship/internal/store"
)

// Registry resolves a stage identifier to the handler that implements it.
// The orchestrator never imports an adapter's concrete package directly.
type Registry map[string]stage.Handler

// Orchestrator walks episodes through their stage plan.
type Orchestrator struct {
	cfg      *config.Config
	store    *store.Store
	guard    *costguard.Guard
	gates    *reviewgate.Service
	registry Registry
	logger   *slog.Logger
	notifier notifications.Service
}

// New returns an Orchestrator wired to its collaborators.
func New(cfg *config.Config, st *store.Store, guard *costguard.Guard, gates *reviewgate.Service, registry Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{cfg: cfg, store: st, guard: guard, gates: gates, registry: registry, logger: logger}
}

// SetNotifier attaches the notification service used to publish stage and
// episode lifecycle events. Optional: a nil notifier (the zero value) means
// RunEpisode/RunPending simply skip publishing.
func (o *Orchestrator) SetNotifier(n notifications.Service) {
	o.notifier = n
}

func (o *Orchestrator) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		o.logger.Warn("notification publish failed", logging.String("event", string(event)), logging.Error(err))
	}
}

// StepReport is one plan step's recorded outcome within a Report.
type StepReport struct {
	StageID string
	Result  stage.Result
}

// Report is what RunEpisode/RunPending return: the full record of one
// orchestrator pass over one episode.
type Report struct {
	EpisodeID   int64
	Title       string
	Steps       []StepReport
	TotalCost   float64
	Success     bool
	TerminalErr string
}

// RunEpisode walks episodeID through its stage plan until the plan ends,
// a review gate suspends the run, or a stage fails.
func (o *Orchestrator) RunEpisode(ctx context.Context, episodeID int64, force, dryRun bool) (Report, error) {
	ep, err := o.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return Report{}, services.Wrap(services.ErrIO, "", "run_episode", "load episode", err)
	}
	if ep == nil {
		return Report{}, services.Wrap(services.ErrNotFound, "", "run_episode", fmt.Sprintf("episode %d not found", episodeID), nil)
	}

	report := Report{EpisodeID: ep.ID, Title: ep.Title, Success: true}
	if ep.Status.IsTerminal() {
		return report, nil
	}

	lock, err := acquireEpisodeLock(o.cfg, episodeID)
	if err != nil {
		return Report{}, err
	}
	defer lock.release()

	logger := o.logger.With(logging.Int64("episode_id", ep.ID), logging.String("episode_title", ep.Title))
	plan := ResolvePlan(ep.PipelineVersion)

	for _, step := range plan {
		select {
		case <-ctx.Done():
			report.Success = false
			report.TerminalErr = ctx.Err().Error()
			return report, nil
		default:
		}

		if ep.Status.AtLeast(step.ProducedStatus) && ep.Status != step.RequiredPriorStatus {
			continue
		}
		if !ep.Status.AtLeast(step.RequiredPriorStatus) {
			return report, services.Wrap(services.ErrPreconditionFailed, step.StageID, "run_episode",
				fmt.Sprintf("episode %d is %s, plan requires at least %s before %s", ep.ID, ep.Status, step.RequiredPriorStatus, step.StageID), nil)
		}

		handler, ok := o.registry[step.StageID]
		if !ok {
			report.Success = false
			report.TerminalErr = fmt.Sprintf("no stage handler registered for %q", step.StageID)
			return report, nil
		}
		if la, ok := handler.(stage.LoggerAware); ok {
			la.SetLogger(logger.With(logging.String("stage", step.StageID)))
		}

		rc := stage.RunContext{Episode: ep, Config: o.cfg, Force: force, DryRun: dryRun}
		if gateStage, ok := reviewFeedbackStage[step.StageID]; ok {
			feedback, ferr := o.gates.LatestFeedback(ctx, ep.ID, step.StageID)
			if ferr == nil && feedback == "" {
				feedback, ferr = o.gates.LatestFeedback(ctx, ep.ID, gateStage)
			}
			if ferr != nil {
				return report, ferr
			}
			rc.ReviewerFeedback = feedback
		}

		if err := o.guard.Enforce(ctx, ep.ID, step.StageID); err != nil {
			result := stage.Failed(err)
			o.recordRun(ctx, ep.ID, step.StageID, result, time.Now())
			report.Steps = append(report.Steps, StepReport{StageID: step.StageID, Result: result})
			return o.finishFailed(ctx, ep, report, err)
		}

		started := time.Now()
		logger.Info("stage started", logging.String("stage", step.StageID))
		result, err := handler.Run(ctx, rc)
		if err != nil && result.Err == nil {
			result = stage.Failed(err)
		}
		o.recordRun(ctx, ep.ID, step.StageID, result, started)
		report.Steps = append(report.Steps, StepReport{StageID: step.StageID, Result: result})
		report.TotalCost += result.CostUSD

		switch result.Status {
		case stage.StatusSuccess:
			logger.Info("stage completed", logging.String("stage", step.StageID), logging.Duration("elapsed", time.Since(started)))
			if result.NewStatus != nil {
				ep.Status = *result.NewStatus
				if err := o.store.UpdateEpisode(ctx, ep); err != nil {
					return report, services.Wrap(services.ErrIO, step.StageID, "run_episode", "persist episode status", err)
				}
			}
			if guardErr := o.guard.Enforce(ctx, ep.ID, step.StageID); guardErr != nil {
				return o.finishFailed(ctx, ep, report, guardErr)
			}
		case stage.StatusSkipped:
			logger.Info("stage skipped", logging.String("stage", step.StageID))
		case stage.StatusReviewPending:
			logger.Info("stage suspended for review", logging.String("stage", step.StageID))
			o.notify(ctx, notifications.EventReviewPending, notifications.Payload{
				"episode_id": ep.ID, "episodeTitle": ep.Title, "gate": step.StageID,
			})
			report.Success = true
			return report, nil
		case stage.StatusFailed:
			return o.finishFailed(ctx, ep, report, result.Err)
		}
	}

	if ep.Status == store.StatusPublished {
		ep.Status = store.StatusCompleted
		if err := o.store.UpdateEpisode(ctx, ep); err != nil {
			return report, services.Wrap(services.ErrIO, "publish", "run_episode", "persist completion", err)
		}
		o.notify(ctx, notifications.EventEpisodeCompleted, notifications.Payload{
			"episode_id": ep.ID, "episodeTitle": ep.Title, "total_cost_usd": report.TotalCost,
		})
	}
	return report, nil
}

func (o *Orchestrator) finishFailed(ctx context.Context, ep *store.Episode, report Report, stageErr error) (Report, error) {
	ep.Status = services.FailureStatus(stageErr)
	if stageErr != nil {
		ep.ErrorMessage = stageErr.Error()
	}
	report.Success = false
	if stageErr != nil {
		report.TerminalErr = stageErr.Error()
	}
	if err := o.store.UpdateEpisode(ctx, ep); err != nil {
		return report, services.Wrap(services.ErrIO, "", "run_episode", "persist failure state", err)
	}

	event := notifications.EventStageFailed
	if ep.Status == store.StatusCostLimit {
		event = notifications.EventCostCapExceeded
	}
	o.notify(ctx, event, notifications.Payload{
		"episode_id": ep.ID, "episodeTitle": ep.Title, "error": ep.ErrorMessage,
	})
	return report, nil
}

func (o *Orchestrator) recordRun(ctx context.Context, episodeID int64, stageID string, result stage.Result, started time.Time) {
	run := &store.PipelineRun{
		EpisodeID:        episodeID,
		Stage:            stageID,
		Status:           runStatusFor(result.Status),
		StartedAt:        started,
		CompletedAt:      time.Now().UTC(),
		EstimatedCostUSD: result.CostUSD,
	}
	if result.Err != nil {
		run.ErrorMessage = result.Err.Error()
	} else {
		run.ErrorMessage = result.Detail
	}
	if _, err := o.store.InsertPipelineRun(ctx, run); err != nil {
		o.logger.Error("failed to persist pipeline run", logging.String("stage", stageID), logging.Error(err))
	}
}

func runStatusFor(s stage.Status) store.RunStatus {
	switch s {
	case stage.StatusSuccess:
		return store.RunStatusSuccess
	case stage.StatusSkipped:
		return store.RunStatusSkipped
	case stage.StatusReviewPending:
		return store.RunStatusReviewPending
	default:
		return store.RunStatusFailed
	}
}

// RunPending selects every non-terminal episode not blocked by an open
// review gate, ordered by detected-at ascending, and runs up to limit of
// them. limit <= 0 means unlimited.
func (o *Orchestrator) RunPending(ctx context.Context, limit int) ([]Report, error) {
	episodes, err := o.store.ListActionableEpisodes(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "", "run_pending", "list actionable episodes", err)
	}

	var reports []Report
	for _, ep := range episodes {
		if limit > 0 && len(reports) >= limit {
			break
		}
		blocked, err := o.blockedByOpenGate(ctx, ep)
		if err != nil {
			return reports, err
		}
		if blocked {
			continue
		}

		report, err := o.RunEpisode(ctx, ep.ID, false, o.cfg.DryRun)
		if err != nil && !errors.Is(err, services.ErrPreconditionFailed) {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// blockedByOpenGate reports whether ep's current status sits right at a
// review gate's required-prior-status with a still-open (non-approved)
// task, meaning a run would immediately suspend again.
func (o *Orchestrator) blockedByOpenGate(ctx context.Context, ep *store.Episode) (bool, error) {
	plan := ResolvePlan(ep.PipelineVersion)
	for _, step := range plan {
		if !step.ReviewGate || step.RequiredPriorStatus != ep.Status {
			continue
		}
		pending, err := o.gates.HasPending(ctx, ep.ID, step.StageID)
		if err != nil {
			return false, err
		}
		if gate, ok := reviewgate.Gates[step.StageID]; ok && !pending {
			pending, err = o.gates.HasPending(ctx, ep.ID, gate.ReviewedStage)
			if err != nil {
				return false, err
			}
		}
		return pending, nil
	}
	return false, nil
}

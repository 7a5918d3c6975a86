// Package reviewgate implements the Review Gate Service: the
// human-in-the-loop state machine that lets the orchestrator suspend an
// episode pending approval of a stage's output.
package reviewgate

import (
	"context"
	"fmt"

	"podship/internal/artifacts"
	"podship/internal/hashing"
	"podship/internal/services"
	"podship/internal/store"
)

// GateSpec binds a review gate's stage identifier to the stage it reviews
// and the episode status to revert to on rejection/changes-requested — the
// v2 plan's required-prior-status for the reviewed stage.
type GateSpec struct {
	GateStage     string
	ReviewedStage string
	RevertStatus  store.EpisodeStatus
}

// Gates enumerates the three review gates the v2 plan defines.
var Gates = map[string]GateSpec{
	"review_gate_1": {GateStage: "review_gate_1", ReviewedStage: "correct", RevertStatus: store.StatusTranscribed},
	"review_gate_2": {GateStage: "review_gate_2", ReviewedStage: "adapt", RevertStatus: store.StatusTranslated},
	"review_gate_3": {GateStage: "review_gate_3", ReviewedStage: "render", RevertStatus: store.StatusTTSDone},
}

// AutoApproveClassifier decides, from a correction diff, whether a review
// task may be synthesized as approved at creation time. Opt-in via
// configuration; see DisabledClassifier.
type AutoApproveClassifier interface {
	ShouldAutoApprove(changeCount int, allPunctuationOnly bool) bool
}

// DisabledClassifier never auto-approves. It is the default: auto-approval
// is opt-in, so the service carries no behavior unless a caller explicitly
// substitutes PunctuationOnlyClassifier.
type DisabledClassifier struct{}

func (DisabledClassifier) ShouldAutoApprove(int, bool) bool { return false }

// PunctuationOnlyClassifier auto-approves a narrow case: fewer than 5
// changes, all punctuation-only.
type PunctuationOnlyClassifier struct{}

func (PunctuationOnlyClassifier) ShouldAutoApprove(changeCount int, allPunctuationOnly bool) bool {
	return changeCount < 5 && allPunctuationOnly
}

// Service manages review tasks and exposes the gate checks the
// orchestrator consults before suspending or proceeding.
type Service struct {
	store      *store.Store
	artifacts  *artifacts.Store
	classifier AutoApproveClassifier
}

// NewService returns a Service. classifier may be nil, in which case
// DisabledClassifier is used.
func NewService(st *store.Store, artifactStore *artifacts.Store, classifier AutoApproveClassifier) *Service {
	if classifier == nil {
		classifier = DisabledClassifier{}
	}
	return &Service{store: st, artifacts: artifactStore, classifier: classifier}
}

// CreateTask creates a PENDING review task. Fails with services.ErrGateConflict
// if a non-terminal task already exists for (episode, stage).
func (s *Service) CreateTask(ctx context.Context, episodeID int64, stage string, artifactPaths []string, diffPath string, promptVersionID *int64) (*store.ReviewTask, error) {
	existing, err := s.store.GetOpenReviewTask(ctx, episodeID, stage)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, stage, "create_task", "check for existing task", err)
	}
	if existing != nil {
		return nil, services.Wrap(services.ErrGateConflict, stage, "create_task",
			fmt.Sprintf("a non-terminal review task already exists for episode %d", episodeID), nil)
	}

	id, err := s.store.CreateReviewTask(ctx, &store.ReviewTask{
		EpisodeID:       episodeID,
		Stage:           stage,
		ArtifactPaths:   artifactPaths,
		DiffPath:        diffPath,
		PromptVersionID: promptVersionID,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrIO, stage, "create_task", "insert review task", err)
	}
	return s.store.GetReviewTask(ctx, id)
}

// AutoApproveIfEligible consults the classifier with the correction diff's
// change stats and, if eligible, immediately approves the task.
func (s *Service) AutoApproveIfEligible(ctx context.Context, task *store.ReviewTask, changeCount int, allPunctuationOnly bool) (bool, *store.ReviewDecision, error) {
	if task.Stage != "correct" {
		return false, nil, nil
	}
	if !s.classifier.ShouldAutoApprove(changeCount, allPunctuationOnly) {
		return false, nil, nil
	}
	decision, err := s.Approve(ctx, task.ID, "auto-approved: punctuation-only correction diff")
	if err != nil {
		return false, nil, err
	}
	return true, decision, nil
}

func (s *Service) requireOpenTask(ctx context.Context, taskID int64) (*store.ReviewTask, error) {
	task, err := s.store.GetReviewTask(ctx, taskID)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "", "review", "fetch task", err)
	}
	if task == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "review", fmt.Sprintf("review task %d not found", taskID), nil)
	}
	if task.Status != store.ReviewPending && task.Status != store.ReviewInReview {
		return nil, services.Wrap(services.ErrInvalidTransition, task.Stage, "review",
			fmt.Sprintf("task %d is %s, not PENDING or IN_REVIEW", taskID, task.Status), nil)
	}
	return task, nil
}

// Approve transitions task to APPROVED, recording the SHA-256 of the first
// artifact path as artifact_hash.
func (s *Service) Approve(ctx context.Context, taskID int64, notes string) (*store.ReviewDecision, error) {
	task, err := s.requireOpenTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var artifactHash string
	if len(task.ArtifactPaths) > 0 {
		artifactHash, err = hashing.HashFile(task.ArtifactPaths[0])
		if err != nil {
			return nil, err
		}
	}

	if err := s.store.ApplyReviewDecision(ctx, taskID, store.DecisionApproved, notes, artifactHash,
		store.ReviewApproved, task.EpisodeID, ""); err != nil {
		return nil, services.Wrap(services.ErrIO, task.Stage, "approve", "apply decision", err)
	}
	return s.latestDecision(ctx, taskID)
}

// Reject transitions task to REJECTED, reverts the episode's status, and
// marks the reviewed stage's primary output stale.
func (s *Service) Reject(ctx context.Context, taskID int64, notes string) (*store.ReviewDecision, error) {
	return s.settleNegative(ctx, taskID, notes, store.DecisionRejected, store.ReviewRejected)
}

// RequestChanges transitions task to CHANGES_REQUESTED — same side effects
// as Reject, but the notes are retained so a stage re-run can inject them
// as a prompt variable.
func (s *Service) RequestChanges(ctx context.Context, taskID int64, notes string) (*store.ReviewDecision, error) {
	return s.settleNegative(ctx, taskID, notes, store.DecisionChangesRequested, store.ReviewChangesRequested)
}

func (s *Service) settleNegative(ctx context.Context, taskID int64, notes string, decision store.ReviewDecisionKind, newStatus store.ReviewTaskStatus) (*store.ReviewDecision, error) {
	task, err := s.requireOpenTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	revertStatus := store.EpisodeStatus("")
	for _, gate := range Gates {
		if gate.GateStage == task.Stage || gate.ReviewedStage == task.Stage {
			revertStatus = gate.RevertStatus
		}
	}

	if err := s.store.ApplyReviewDecision(ctx, taskID, decision, notes, "", newStatus, task.EpisodeID, revertStatus); err != nil {
		return nil, services.Wrap(services.ErrIO, task.Stage, string(decision), "apply decision", err)
	}

	if len(task.ArtifactPaths) > 0 && s.artifacts != nil {
		if err := s.artifacts.MarkStale(task.ArtifactPaths[0], task.Stage, fmt.Sprintf("review decision: %s", decision)); err != nil {
			return nil, err
		}
	}

	return s.latestDecision(ctx, taskID)
}

func (s *Service) latestDecision(ctx context.Context, taskID int64) (*store.ReviewDecision, error) {
	decisions, err := s.store.ListReviewDecisions(ctx, taskID)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "", "review", "list decisions", err)
	}
	if len(decisions) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "", "review", fmt.Sprintf("no decisions recorded for task %d", taskID), nil)
	}
	return decisions[len(decisions)-1], nil
}

// HasApproved reports whether an APPROVED task exists for (episode, stage).
func (s *Service) HasApproved(ctx context.Context, episodeID int64, stage string) (bool, error) {
	ok, err := s.store.HasApprovedReviewTask(ctx, episodeID, stage)
	if err != nil {
		return false, services.Wrap(services.ErrIO, stage, "has_approved", "", err)
	}
	return ok, nil
}

// HasPending reports whether a task with status PENDING, IN_REVIEW, or
// CHANGES_REQUESTED exists for (episode, stage).
func (s *Service) HasPending(ctx context.Context, episodeID int64, stage string) (bool, error) {
	task, err := s.store.GetOpenReviewTask(ctx, episodeID, stage)
	if err != nil {
		return false, services.Wrap(services.ErrIO, stage, "has_pending", "", err)
	}
	return task != nil, nil
}

// LatestFeedback returns the notes from the most recent CHANGES_REQUESTED
// or REJECTED decision for (episode, stage), or "" if none.
func (s *Service) LatestFeedback(ctx context.Context, episodeID int64, stage string) (string, error) {
	notes, err := s.store.LatestFeedback(ctx, episodeID, stage)
	if err != nil {
		return "", services.Wrap(services.ErrIO, stage, "latest_feedback", "", err)
	}
	return notes, nil
}

// ApprovedArtifactHash returns the SHA-256 recorded at approval time for
// (episode, stage), and whether an approved task exists at all. Downstream
// stages (e.g. publish) use this to detect tampering between approval and
// consumption.
func (s *Service) ApprovedArtifactHash(ctx context.Context, episodeID int64, stage string) (string, bool, error) {
	task, err := s.store.GetApprovedReviewTask(ctx, episodeID, stage)
	if err != nil {
		return "", false, services.Wrap(services.ErrIO, stage, "approved_artifact_hash", "", err)
	}
	if task == nil {
		return "", false, nil
	}
	return task.ArtifactHash, true, nil
}

// PendingCount returns the number of open review tasks across all episodes.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	count, err := s.store.PendingReviewCount(ctx)
	if err != nil {
		return 0, services.Wrap(services.ErrIO, "", "pending_count", "", err)
	}
	return count, nil
}

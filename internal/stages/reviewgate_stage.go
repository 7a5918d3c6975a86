package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"podship/internal/artifacts"
	"podship/internal/logging"
	"podship/internal/provenance"
	"podship/internal/reviewgate"
	"podship/internal/stage"
	"podship/internal/store"
)

// ReviewGateStage is the adapter form of a human review checkpoint. It
// never produces new content itself: it either finds an existing approval
// and lets the plan proceed, finds an open task and suspends the episode,
// or opens a new task (computing a diff when the reviewed stage is
// text-to-text) and checks it for auto-approval eligibility.
type ReviewGateStage struct {
	base
	gates          *reviewgate.Service
	gateID         string
	reviewedStage  string
	producedStatus store.EpisodeStatus
	beforeType     artifacts.ArtifactType
	afterType      artifacts.ArtifactType
	hasDiff        bool
}

// NewReviewGate1 returns the adapter guarding the corrected transcript.
func NewReviewGate1(artifactStore *artifacts.Store, prov *provenance.Writer, gates *reviewgate.Service) *ReviewGateStage {
	return &ReviewGateStage{
		base: newBase(artifactStore, prov), gates: gates,
		gateID: "review_gate_1", reviewedStage: "correct", producedStatus: store.StatusCorrected,
		beforeType: artifacts.TranscriptSource, afterType: artifacts.TranscriptCorrected, hasDiff: true,
	}
}

// NewReviewGate2 returns the adapter guarding the adapted script.
func NewReviewGate2(artifactStore *artifacts.Store, prov *provenance.Writer, gates *reviewgate.Service) *ReviewGateStage {
	return &ReviewGateStage{
		base: newBase(artifactStore, prov), gates: gates,
		gateID: "review_gate_2", reviewedStage: "adapt", producedStatus: store.StatusAdapted,
		beforeType: artifacts.TranscriptTranslated, afterType: artifacts.ScriptAdapted, hasDiff: true,
	}
}

// NewReviewGate3 returns the adapter guarding the rendered draft. Draft
// video has no meaningful text diff, so this gate never auto-approves.
func NewReviewGate3(artifactStore *artifacts.Store, prov *provenance.Writer, gates *reviewgate.Service) *ReviewGateStage {
	return &ReviewGateStage{
		base: newBase(artifactStore, prov), gates: gates,
		gateID: "review_gate_3", reviewedStage: "render", producedStatus: store.StatusApproved,
		afterType: artifacts.RenderDraft, hasDiff: false,
	}
}

func (s *ReviewGateStage) Name() string { return s.gateID }

func (s *ReviewGateStage) Run(ctx context.Context, rc stage.RunContext) (stage.Result, error) {
	ep := rc.Episode
	epKey := episodeKey(ep)

	approved, err := s.gates.HasApproved(ctx, ep.ID, s.reviewedStage)
	if err != nil {
		return stage.Failed(err), nil
	}
	if approved {
		return stage.Success(s.producedStatus, fmt.Sprintf("%s already approved", s.reviewedStage), 0), nil
	}

	pending, err := s.gates.HasPending(ctx, ep.ID, s.reviewedStage)
	if err != nil {
		return stage.Failed(err), nil
	}
	if pending {
		return stage.ReviewPending(fmt.Sprintf("%s awaiting reviewer decision", s.reviewedStage)), nil
	}

	artifactPath, err := s.artifacts.Resolve(epKey, string(s.afterType), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}

	if rc.DryRun {
		return stage.Success(s.producedStatus, "dry run: skipped review gate", 0), nil
	}

	var (
		diffPath           string
		changeCount        int
		allPunctuationOnly bool
	)
	if s.hasDiff {
		beforePath, err := s.artifacts.Resolve(epKey, string(s.beforeType), "", "")
		if err != nil {
			return stage.Failed(err), nil
		}
		beforeText, err := s.artifacts.ReadText(beforePath)
		if err != nil {
			return stage.Failed(err), nil
		}
		afterText, err := s.artifacts.ReadText(artifactPath)
		if err != nil {
			return stage.Failed(err), nil
		}
		diff := computeDiff(beforeText, afterText)
		changeCount = diff.ChangeCount
		allPunctuationOnly = diff.AllPunctuationOnly

		data, err := json.MarshalIndent(diff, "", "  ")
		if err != nil {
			return stage.Failed(fmt.Errorf("%s: marshal diff: %w", s.gateID, err)), nil
		}
		diffPath, err = s.artifacts.Resolve(epKey, string(artifacts.ReviewDiff), "", s.gateID)
		if err != nil {
			return stage.Failed(err), nil
		}
		if err := s.artifacts.Write(diffPath, data); err != nil {
			return stage.Failed(err), nil
		}
	}

	task, err := s.gates.CreateTask(ctx, ep.ID, s.reviewedStage, []string{artifactPath}, diffPath, nil)
	if err != nil {
		return stage.Failed(err), nil
	}

	autoApproved, _, err := s.gates.AutoApproveIfEligible(ctx, task, changeCount, allPunctuationOnly)
	if err != nil {
		return stage.Failed(err), nil
	}
	if autoApproved {
		s.log().Info(s.gateID+" auto-approved", logging.Int("change_count", changeCount))
		return stage.Success(s.producedStatus, fmt.Sprintf("%s auto-approved", s.reviewedStage), 0), nil
	}

	return stage.ReviewPending(fmt.Sprintf("%s opened for review", s.reviewedStage)), nil
}

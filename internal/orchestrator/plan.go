package orchestrator

import "podship/internal/store"

// PlanStep is one ordered entry of a stage plan: the stage identifier and
// the episode status that must already be reached before the stage may
// run. ProducedStatus is the status a successful run of this stage leaves
// the episode in, used to decide whether a step is already done.
type PlanStep struct {
	StageID             string
	RequiredPriorStatus store.EpisodeStatus
	ProducedStatus      store.EpisodeStatus
	ReviewGate          bool
}

// v2Plan is the ordered stage plan for pipeline_version = 2: download
// through publish, with three human review gates.
var v2Plan = []PlanStep{
	{StageID: "download", RequiredPriorStatus: store.StatusNew, ProducedStatus: store.StatusDownloaded},
	{StageID: "transcribe", RequiredPriorStatus: store.StatusDownloaded, ProducedStatus: store.StatusTranscribed},
	{StageID: "correct", RequiredPriorStatus: store.StatusTranscribed, ProducedStatus: store.StatusCorrected},
	{StageID: "review_gate_1", RequiredPriorStatus: store.StatusCorrected, ProducedStatus: store.StatusCorrected, ReviewGate: true},
	{StageID: "translate", RequiredPriorStatus: store.StatusCorrected, ProducedStatus: store.StatusTranslated},
	{StageID: "adapt", RequiredPriorStatus: store.StatusTranslated, ProducedStatus: store.StatusAdapted},
	{StageID: "review_gate_2", RequiredPriorStatus: store.StatusAdapted, ProducedStatus: store.StatusAdapted, ReviewGate: true},
	{StageID: "chapterize", RequiredPriorStatus: store.StatusAdapted, ProducedStatus: store.StatusChapterized},
	{StageID: "imagegen", RequiredPriorStatus: store.StatusChapterized, ProducedStatus: store.StatusImagesGenerated},
	{StageID: "tts", RequiredPriorStatus: store.StatusImagesGenerated, ProducedStatus: store.StatusTTSDone},
	{StageID: "render", RequiredPriorStatus: store.StatusTTSDone, ProducedStatus: store.StatusRendered},
	{StageID: "review_gate_3", RequiredPriorStatus: store.StatusRendered, ProducedStatus: store.StatusApproved, ReviewGate: true},
	{StageID: "publish", RequiredPriorStatus: store.StatusApproved, ProducedStatus: store.StatusPublished},
}

// v1Plan is the legacy straight-line plan: no review gates, one stage
// produces the status the next stage requires.
var v1Plan = []PlanStep{
	{StageID: "download", RequiredPriorStatus: store.StatusNew, ProducedStatus: store.StatusDownloaded},
	{StageID: "transcribe", RequiredPriorStatus: store.StatusDownloaded, ProducedStatus: store.StatusTranscribed},
	{StageID: "correct", RequiredPriorStatus: store.StatusTranscribed, ProducedStatus: store.StatusCorrected},
	{StageID: "translate", RequiredPriorStatus: store.StatusCorrected, ProducedStatus: store.StatusTranslated},
	{StageID: "adapt", RequiredPriorStatus: store.StatusTranslated, ProducedStatus: store.StatusAdapted},
	{StageID: "chapterize", RequiredPriorStatus: store.StatusAdapted, ProducedStatus: store.StatusChapterized},
	{StageID: "imagegen", RequiredPriorStatus: store.StatusChapterized, ProducedStatus: store.StatusImagesGenerated},
	{StageID: "tts", RequiredPriorStatus: store.StatusImagesGenerated, ProducedStatus: store.StatusTTSDone},
	{StageID: "render", RequiredPriorStatus: store.StatusTTSDone, ProducedStatus: store.StatusRendered},
	{StageID: "publish", RequiredPriorStatus: store.StatusRendered, ProducedStatus: store.StatusPublished},
}

// ResolvePlan selects the stage plan for a pipeline version. Versions
// beyond 2 are reserved and currently resolve to the v2 plan.
func ResolvePlan(pipelineVersion int) []PlanStep {
	if pipelineVersion == 1 {
		return v1Plan
	}
	return v2Plan
}

// reviewFeedbackStage maps a stage that may receive injected reviewer
// feedback to its gate's stage identifier. Feedback is read from review
// tasks recorded under the stage itself first, then under the gate
// identifier.
var reviewFeedbackStage = map[string]string{
	"correct": "review_gate_1",
	"adapt":   "review_gate_2",
}

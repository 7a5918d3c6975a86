package store

import "time"

// EpisodeStatus is the closed, totally ordered episode lifecycle enumeration.
// Ordering matters: stage pre-conditions compare statuses with "≥", so the
// ranks in statusOrder below must match the plan order exactly.
type EpisodeStatus string

const (
	StatusNew              EpisodeStatus = "NEW"
	StatusDownloaded       EpisodeStatus = "DOWNLOADED"
	StatusTranscribed      EpisodeStatus = "TRANSCRIBED"
	StatusCorrected        EpisodeStatus = "CORRECTED"
	StatusTranslated       EpisodeStatus = "TRANSLATED"
	StatusAdapted          EpisodeStatus = "ADAPTED"
	StatusChapterized      EpisodeStatus = "CHAPTERIZED"
	StatusImagesGenerated  EpisodeStatus = "IMAGES_GENERATED"
	StatusTTSDone          EpisodeStatus = "TTS_DONE"
	StatusRendered         EpisodeStatus = "RENDERED"
	StatusApproved         EpisodeStatus = "APPROVED"
	StatusPublished        EpisodeStatus = "PUBLISHED"
	StatusCompleted        EpisodeStatus = "COMPLETED"
	StatusFailed           EpisodeStatus = "FAILED"
	StatusCostLimit        EpisodeStatus = "COST_LIMIT"
)

// statusOrder gives every non-terminal-error status a rank for "≥" style
// pre-condition comparisons. FAILED and COST_LIMIT are terminal error states
// and are deliberately excluded: they never satisfy a required-prior-status
// comparison.
var statusOrder = map[EpisodeStatus]int{
	StatusNew:             0,
	StatusDownloaded:      1,
	StatusTranscribed:     2,
	StatusCorrected:       3,
	StatusTranslated:      4,
	StatusAdapted:         5,
	StatusChapterized:     6,
	StatusImagesGenerated: 7,
	StatusTTSDone:         8,
	StatusRendered:        9,
	StatusApproved:        10,
	StatusPublished:       11,
	StatusCompleted:       12,
}

// Rank returns the episode status's position in the total order, and
// whether it participates in the order at all (FAILED/COST_LIMIT do not).
func (s EpisodeStatus) Rank() (int, bool) {
	r, ok := statusOrder[s]
	return r, ok
}

// AtLeast reports whether s is ordered at or after other. Terminal error
// statuses never compare true against any ordered status.
func (s EpisodeStatus) AtLeast(other EpisodeStatus) bool {
	sr, ok := s.Rank()
	if !ok {
		return false
	}
	or, ok := other.Rank()
	if !ok {
		return false
	}
	return sr >= or
}

// IsTerminal reports whether an episode in this status should never be
// picked up by run_episode/run_pending again.
func (s EpisodeStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCostLimit
}

// RunStatus is the per-attempt status recorded on a PipelineRun.
type RunStatus string

const (
	RunStatusRunning       RunStatus = "running"
	RunStatusSuccess       RunStatus = "success"
	RunStatusFailed        RunStatus = "failed"
	RunStatusSkipped       RunStatus = "skipped"
	RunStatusReviewPending RunStatus = "review_pending"
)

// MediaAssetType enumerates the binary media kinds a stage adapter can
// produce.
type MediaAssetType string

const (
	MediaAssetImage MediaAssetType = "IMAGE"
	MediaAssetAudio MediaAssetType = "AUDIO"
	MediaAssetVideo MediaAssetType = "VIDEO"
)

// ReviewTaskStatus is the review-gate state machine's status.
type ReviewTaskStatus string

const (
	ReviewPending           ReviewTaskStatus = "PENDING"
	ReviewInReview          ReviewTaskStatus = "IN_REVIEW"
	ReviewApproved          ReviewTaskStatus = "APPROVED"
	ReviewRejected          ReviewTaskStatus = "REJECTED"
	ReviewChangesRequested  ReviewTaskStatus = "CHANGES_REQUESTED"
)

// ReviewDecisionKind enumerates the outcomes appended to a task's decision
// log.
type ReviewDecisionKind string

const (
	DecisionApproved         ReviewDecisionKind = "approved"
	DecisionRejected         ReviewDecisionKind = "rejected"
	DecisionChangesRequested ReviewDecisionKind = "changes_requested"
)

// Episode is a unit of work moving through the pipeline.
type Episode struct {
	ID               int64
	ExternalID       string
	ChannelID        int64
	Title            string
	DurationSeconds  float64
	SourceURL        string
	Status           EpisodeStatus
	PipelineVersion  int
	AudioPath        string
	TranscriptPath   string
	OutputDir        string
	ExternalVideoID  string
	RetryCount       int
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PipelineRun is one append-only attempt record of one stage on one episode.
type PipelineRun struct {
	ID              int64
	EpisodeID       int64
	Stage           string
	Status          RunStatus
	StartedAt       time.Time
	CompletedAt     time.Time
	InputTokens     int64
	OutputTokens    int64
	EstimatedCostUSD float64
	ErrorMessage    string
}

// ContentArtifact is a text/JSON file produced by a stage.
type ContentArtifact struct {
	ID           int64
	EpisodeID    int64
	ArtifactType string
	FilePath     string
	ModelID      string
	PromptHash   string
	CreatedAt    time.Time
}

// MediaAsset is a specialization for binary media outputs.
type MediaAsset struct {
	ID               int64
	EpisodeID        int64
	AssetType        MediaAssetType
	ChapterID        string
	FilePath         string
	MimeType         string
	SizeBytes        int64
	DurationSeconds  *float64
	Metadata         map[string]string
	PromptVersionID  *int64
	CreatedAt        time.Time
}

// PromptVersion is a registered prompt template revision.
type PromptVersion struct {
	ID          int64
	Name        string
	Version     int
	ContentHash string
	FilePath    string
	ModelID     string
	Temperature float64
	MaxTokens   int
	IsDefault   bool
	CreatedAt   time.Time
	Notes       string
}

// ReviewTask is a human-review gate for one stage on one episode.
type ReviewTask struct {
	ID              int64
	EpisodeID       int64
	Stage           string
	Status          ReviewTaskStatus
	ArtifactPaths   []string
	DiffPath        string
	PromptVersionID *int64
	CreatedAt       time.Time
	ReviewedAt      *time.Time
	ReviewerNotes   string
	ArtifactHash    string
}

// ReviewDecision is an append-only log entry recording the outcome applied
// to a ReviewTask.
type ReviewDecision struct {
	ID        int64
	TaskID    int64
	Decision  ReviewDecisionKind
	Notes     string
	DecidedAt time.Time
}

// PublishJob records the outcome of the publish stage for an episode.
type PublishJob struct {
	ID              int64
	EpisodeID       int64
	ExternalVideoID string
	UploadedAt      time.Time
	Status          string
}

// Channel is the source the feed detector polls for new episodes.
type Channel struct {
	ID                     int64
	Name                   string
	FeedURL                string
	DefaultPipelineVersion int
	Enabled                bool
}

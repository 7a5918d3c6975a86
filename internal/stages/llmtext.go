package stages

import (
	"context"
	"fmt"
	"time"

	"podship/internal/artifacts"
	"podship/internal/hashing"
	"podship/internal/logging"
	"podship/internal/prompts"
	"podship/internal/provenance"
	"podship/internal/services"
	"podship/internal/services/llm"
	"podship/internal/stage"
	"podship/internal/store"
)

const systemPromptText = "You are a careful podcast production assistant. Follow the instructions exactly and respond with JSON only."

// costPerCharUSD is a rough per-character cost estimate covering combined
// input and output text. Real per-token billing is a concrete collaborator
// detail the engine does not specify.
const costPerCharUSD = 0.000002

// llmTextStage is the shared shape of the three free-text LLM stages:
// correct, translate, and adapt. Each reads one transcript artifact,
// rewrites it through a versioned prompt, and writes the next transcript
// artifact in the chain.
type llmTextStage struct {
	base
	client         *llm.Client
	registry       *prompts.Registry
	name           string
	templateName   string
	readType       artifacts.ArtifactType
	writeType      artifacts.ArtifactType
	producedStatus store.EpisodeStatus
	injectFeedback bool
}

func (s *llmTextStage) Name() string { return s.name }

func (s *llmTextStage) Run(ctx context.Context, rc stage.RunContext) (stage.Result, error) {
	ep := rc.Episode
	epKey := episodeKey(ep)

	inPath, err := s.artifacts.Resolve(epKey, string(s.readType), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}
	outPath, err := s.artifacts.Resolve(epKey, string(s.writeType), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}
	if !s.artifacts.Exists(inPath) {
		return stage.Failed(services.Wrap(services.ErrPreconditionFailed, s.name, "run",
			fmt.Sprintf("%s: input artifact missing", s.name), nil)), nil
	}

	tmpl, err := s.registry.LoadTemplate(s.templateName)
	if err != nil {
		return stage.Failed(err), nil
	}
	promptHash := tmpl.ContentHash()

	inputText, err := s.artifacts.ReadText(inPath)
	if err != nil {
		return stage.Failed(err), nil
	}
	inputHash := hashing.HashBytes([]byte(inputText))

	if !rc.Force && stage.ShouldSkip(s.artifacts, s.prov, epKey, s.name, stage.IdempotencyInputs{
		OutputPath:        outPath,
		CurrentPromptHash: promptHash,
		InputFileHashes:   map[string]string{inPath: inputHash},
	}) {
		return stage.Skipped(fmt.Sprintf("%s output already current", s.name)), nil
	}

	started := time.Now()
	if rc.DryRun {
		return stage.Success(s.producedStatus, fmt.Sprintf("dry run: skipped %s", s.name), 0), nil
	}

	version, err := s.registry.RegisterVersion(ctx, tmpl)
	if err != nil {
		return stage.Failed(err), nil
	}

	feedbackBlock := ""
	if s.injectFeedback && rc.ReviewerFeedback != "" {
		feedbackBlock = "Reviewer feedback from the previous round (address this directly):\n" + rc.ReviewerFeedback
	}
	body := prompts.Render(tmpl.Body, map[string]string{
		"episode_title":           ep.Title,
		"transcript":              inputText,
		"reviewer_feedback": feedbackBlock,
	})

	content, err := s.client.CompleteJSON(ctx, systemPromptText, body)
	if err != nil {
		return stage.Failed(services.Wrap(services.ErrExternalService, s.name, "complete", "llm request failed", err)), nil
	}
	var parsed struct {
		Text string `json:"text"`
	}
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		return stage.Failed(services.Wrap(services.ErrExternalService, s.name, "complete", "decode llm response", err)), nil
	}
	if parsed.Text == "" {
		return stage.Failed(services.Wrap(services.ErrExternalService, s.name, "complete", "llm returned empty text", nil)), nil
	}

	if err := s.artifacts.WriteText(outPath, parsed.Text); err != nil {
		return stage.Failed(err), nil
	}

	outputHash := hashing.HashBytes([]byte(parsed.Text))
	costUSD := float64(len(inputText)+len(parsed.Text)) * costPerCharUSD

	notes := ""
	if feedbackBlock != "" {
		notes = "reviewer feedback applied"
	}
	rec := provenance.Record{
		Stage:           s.name,
		EpisodeID:       epKey,
		Timestamp:       time.Now(),
		PromptName:      ptr(tmpl.Name),
		PromptVersion:   ptr(version.Version),
		PromptHash:      ptr(promptHash),
		Model:           ptr(tmpl.Frontmatter.Model),
		ModelParams:     &provenance.ModelParams{Temperature: tmpl.Frontmatter.Temperature, MaxTokens: tmpl.Frontmatter.MaxTokens},
		InputFiles:      []provenance.FileRef{{Path: inPath, Hash: inputHash}},
		OutputFiles:     []provenance.FileRef{{Path: outPath, Hash: outputHash}},
		CostUSD:         ptr(costUSD),
		DurationSeconds: time.Since(started).Seconds(),
		Notes:           ptrOrNil(notes),
	}
	if err := s.prov.Write(epKey, s.name, rec); err != nil {
		return stage.Failed(err), nil
	}

	s.log().Info(s.name+" completed", logging.Int("output_chars", len(parsed.Text)), logging.Float64("cost_usd", costUSD))
	return stage.Success(s.producedStatus, fmt.Sprintf("%s produced %d characters", s.name, len(parsed.Text)), costUSD), nil
}

func ptrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// NewCorrectStage returns the adapter for the correct stage: mechanical
// cleanup of the raw transcript, reviewer-feedback aware.
func NewCorrectStage(artifactStore *artifacts.Store, prov *provenance.Writer, registry *prompts.Registry, client *llm.Client) stage.Handler {
	return &llmTextStage{
		base: newBase(artifactStore, prov), client: client, registry: registry,
		name: "correct", templateName: "correct",
		readType: artifacts.TranscriptSource, writeType: artifacts.TranscriptCorrected,
		producedStatus: store.StatusCorrected, injectFeedback: true,
	}
}

// NewTranslateStage returns the adapter for the translate stage.
func NewTranslateStage(artifactStore *artifacts.Store, prov *provenance.Writer, registry *prompts.Registry, client *llm.Client) stage.Handler {
	return &llmTextStage{
		base: newBase(artifactStore, prov), client: client, registry: registry,
		name: "translate", templateName: "translate",
		readType: artifacts.TranscriptCorrected, writeType: artifacts.TranscriptTranslated,
		producedStatus: store.StatusTranslated,
	}
}

// NewAdaptStage returns the adapter for the adapt stage: turns the
// translated transcript into a narration-ready script, reviewer-feedback
// aware.
func NewAdaptStage(artifactStore *artifacts.Store, prov *provenance.Writer, registry *prompts.Registry, client *llm.Client) stage.Handler {
	return &llmTextStage{
		base: newBase(artifactStore, prov), client: client, registry: registry,
		name: "adapt", templateName: "adapt",
		readType: artifacts.TranscriptTranslated, writeType: artifacts.ScriptAdapted,
		producedStatus: store.StatusAdapted, injectFeedback: true,
	}
}

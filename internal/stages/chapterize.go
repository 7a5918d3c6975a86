package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
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

// Chapter is one chapter slice of the adapted script.
type Chapter struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// ChaptersManifest is the on-disk shape of the Chapters artifact.
type ChaptersManifest struct {
	Chapters []Chapter `json:"chapters"`
}

// ChapterizeStage splits the adapted script into chapters the later
// imagegen, tts, and render stages operate on independently.
type ChapterizeStage struct {
	base
	client   *llm.Client
	registry *prompts.Registry
}

// NewChapterizeStage returns a ChapterizeStage.
func NewChapterizeStage(artifactStore *artifacts.Store, prov *provenance.Writer, registry *prompts.Registry, client *llm.Client) *ChapterizeStage {
	return &ChapterizeStage{base: newBase(artifactStore, prov), client: client, registry: registry}
}

func (s *ChapterizeStage) Name() string { return "chapterize" }

func (s *ChapterizeStage) Run(ctx context.Context, rc stage.RunContext) (stage.Result, error) {
	ep := rc.Episode
	epKey := episodeKey(ep)

	inPath, err := s.artifacts.Resolve(epKey, string(artifacts.ScriptAdapted), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}
	outPath, err := s.artifacts.Resolve(epKey, string(artifacts.Chapters), "", "")
	if err != nil {
		return stage.Failed(err), nil
	}
	if !s.artifacts.Exists(inPath) {
		return stage.Failed(services.Wrap(services.ErrPreconditionFailed, s.Name(), "run", "adapted script artifact missing", nil)), nil
	}

	tmpl, err := s.registry.LoadTemplate("chapterize")
	if err != nil {
		return stage.Failed(err), nil
	}
	promptHash := tmpl.ContentHash()

	script, err := s.artifacts.ReadText(inPath)
	if err != nil {
		return stage.Failed(err), nil
	}
	inputHash := hashing.HashBytes([]byte(script))

	if !rc.Force && stage.ShouldSkip(s.artifacts, s.prov, epKey, s.Name(), stage.IdempotencyInputs{
		OutputPath:        outPath,
		CurrentPromptHash: promptHash,
		InputFileHashes:   map[string]string{inPath: inputHash},
	}) {
		return stage.Skipped("chapters already current"), nil
	}

	started := time.Now()
	if rc.DryRun {
		return stage.Success(store.StatusChapterized, "dry run: skipped chapterize", 0), nil
	}

	version, err := s.registry.RegisterVersion(ctx, tmpl)
	if err != nil {
		return stage.Failed(err), nil
	}

	body := prompts.Render(tmpl.Body, map[string]string{
		"episode_title": ep.Title,
		"transcript":    script,
	})
	content, err := s.client.CompleteJSON(ctx, systemPromptText, body)
	if err != nil {
		return stage.Failed(services.Wrap(services.ErrExternalService, s.Name(), "complete", "llm request failed", err)), nil
	}

	var manifest ChaptersManifest
	if err := llm.DecodeLLMJSON(content, &manifest); err != nil {
		return stage.Failed(services.Wrap(services.ErrExternalService, s.Name(), "complete", "decode llm response", err)), nil
	}
	if len(manifest.Chapters) == 0 {
		return stage.Failed(services.Wrap(services.ErrExternalService, s.Name(), "complete", "llm returned no chapters", nil)), nil
	}
	if reassembled := joinChapterText(manifest.Chapters); reassembled != script {
		return stage.Failed(services.Wrap(services.ErrExternalService, s.Name(), "validate",
			"chapter text does not reconstruct the adapted script verbatim", nil)), nil
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return stage.Failed(fmt.Errorf("chapterize: marshal manifest: %w", err)), nil
	}
	if err := s.artifacts.Write(outPath, data); err != nil {
		return stage.Failed(err), nil
	}

	costUSD := float64(len(script)+len(content)) * costPerCharUSD
	rec := provenance.Record{
		Stage:           s.Name(),
		EpisodeID:       epKey,
		Timestamp:       time.Now(),
		PromptName:      ptr(tmpl.Name),
		PromptVersion:   ptr(version.Version),
		PromptHash:      ptr(promptHash),
		Model:           ptr(tmpl.Frontmatter.Model),
		ModelParams:     &provenance.ModelParams{Temperature: tmpl.Frontmatter.Temperature, MaxTokens: tmpl.Frontmatter.MaxTokens},
		InputFiles:      []provenance.FileRef{{Path: inPath, Hash: inputHash}},
		OutputFiles:     []provenance.FileRef{{Path: outPath, Hash: hashing.HashBytes(data)}},
		CostUSD:         ptr(costUSD),
		DurationSeconds: time.Since(started).Seconds(),
	}
	if err := s.prov.Write(epKey, s.Name(), rec); err != nil {
		return stage.Failed(err), nil
	}

	s.log().Info("chapterized script", logging.Int("chapters", len(manifest.Chapters)))
	return stage.Success(store.StatusChapterized, fmt.Sprintf("produced %d chapters", len(manifest.Chapters)), costUSD), nil
}

func joinChapterText(chapters []Chapter) string {
	var b strings.Builder
	for _, c := range chapters {
		b.WriteString(c.Text)
	}
	return b.String()
}

package main

import (
	"log/slog"

	"podship/internal/artifacts"
	"podship/internal/config"
	"podship/internal/costguard"
	"podship/internal/logging"
	"podship/internal/notifications"
	"podship/internal/orchestrator"
	"podship/internal/prompts"
	"podship/internal/provenance"
	"podship/internal/reviewgate"
	"podship/internal/services/llm"
	"podship/internal/stages"
	"podship/internal/store"
)

// app holds every collaborator a subcommand needs, wired once at startup.
type app struct {
	cfg       *config.Config
	store     *store.Store
	artifacts *artifacts.Store
	prov      *provenance.Writer
	prompts   *prompts.Registry
	guard     *costguard.Guard
	gates     *reviewgate.Service
	notify    notifications.Service
	orch      *orchestrator.Orchestrator
	logger    *slog.Logger
}

// buildApp loads configuration, opens the store, and wires every stage
// adapter into a Registry the orchestrator can drive.
func buildApp(configPath string) (*app, error) {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}

	artifactStore := artifacts.New(cfg.DataRoot)
	prov := provenance.NewWriter(artifactStore)

	if err := prompts.WriteDefaults(cfg.PromptsDir()); err != nil {
		return nil, err
	}
	promptRegistry := prompts.NewRegistry(cfg.PromptsDir(), st)

	var classifier reviewgate.AutoApproveClassifier
	if cfg.ReviewAutoApprove {
		classifier = reviewgate.PunctuationOnlyClassifier{}
	}
	gates := reviewgate.NewService(st, artifactStore, classifier)
	guard := costguard.New(st, cfg.MaxEpisodeCostUSD)
	notify := notifications.NewService(cfg)

	registry := buildRegistry(cfg, artifactStore, prov, promptRegistry, gates, st)
	orch := orchestrator.New(cfg, st, guard, gates, registry, logger)
	orch.SetNotifier(notify)

	return &app{
		cfg:       cfg,
		store:     st,
		artifacts: artifactStore,
		prov:      prov,
		prompts:   promptRegistry,
		guard:     guard,
		gates:     gates,
		notify:    notify,
		orch:      orch,
		logger:    logger,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// buildRegistry constructs one stage.Handler per plan step and the
// concrete, swappable collaborator (HTTP client, ffmpeg) each wraps.
func buildRegistry(
	cfg *config.Config,
	artifactStore *artifacts.Store,
	prov *provenance.Writer,
	promptRegistry *prompts.Registry,
	gates *reviewgate.Service,
	st *store.Store,
) orchestrator.Registry {
	llmClient := llm.NewClient(llm.Config{
		APIKey:         cfg.LLMAPIKey,
		BaseURL:        cfg.LLMBaseURL,
		Model:          cfg.LLMModelID,
		TimeoutSeconds: cfg.StageTimeoutSeconds,
	})

	return orchestrator.Registry{
		"download":      stages.NewDownloadStage(artifactStore, prov, stages.NewHTTPDownloader()),
		"transcribe":    stages.NewTranscribeStage(artifactStore, prov, stages.NewHTTPTranscriber(cfg.TranscribeBaseURL, cfg.TranscribeAPIKey)),
		"correct":       stages.NewCorrectStage(artifactStore, prov, promptRegistry, llmClient),
		"review_gate_1": stages.NewReviewGate1(artifactStore, prov, gates),
		"translate":     stages.NewTranslateStage(artifactStore, prov, promptRegistry, llmClient),
		"adapt":         stages.NewAdaptStage(artifactStore, prov, promptRegistry, llmClient),
		"review_gate_2": stages.NewReviewGate2(artifactStore, prov, gates),
		"chapterize":    stages.NewChapterizeStage(artifactStore, prov, promptRegistry, llmClient),
		"imagegen":      stages.NewImageGenStage(artifactStore, prov, stages.NewHTTPImageGenerator(cfg.ImageGenBaseURL, cfg.ImageGenAPIKey)),
		"tts":           stages.NewTTSStage(artifactStore, prov, stages.NewHTTPSynthesizer(cfg.TTSBaseURL, cfg.TTSAPIKey)),
		"render":        stages.NewRenderStage(artifactStore, prov, stages.NewFFmpegRenderer("")),
		"review_gate_3": stages.NewReviewGate3(artifactStore, prov, gates),
		"publish":       stages.NewPublishStage(artifactStore, prov, gates, st, stages.NewHTTPUploader(cfg.UploadBaseURL, cfg.UploadAPIKey, cfg.UploadChannelID)),
	}
}

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"podship/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndAppliesEnv(t *testing.T) {
	t.Setenv("PODSHIP_LLM_API_KEY", "from-env")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantDataRoot := filepath.Join(tempHome, ".local", "share", "podship", "data")
	if cfg.DataRoot != wantDataRoot {
		t.Fatalf("unexpected data root: got %q want %q", cfg.DataRoot, wantDataRoot)
	}
	if cfg.LogDir != filepath.Join(tempHome, ".local", "share", "podship", "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.LogDir)
	}
	if cfg.LogFormat != "console" {
		t.Fatalf("unexpected log format: %q", cfg.LogFormat)
	}
	if cfg.PipelineVersion != 2 {
		t.Fatalf("unexpected pipeline version: %d", cfg.PipelineVersion)
	}
	if cfg.LLMAPIKey != "from-env" {
		t.Fatalf("expected LLM key from env, got %q", cfg.LLMAPIKey)
	}
	if !cfg.NotifyStageFailed || !cfg.NotifyReviewPending || !cfg.NotifyCostCapExceeded || !cfg.NotifyEpisodeCompleted {
		t.Fatal("expected notify toggles to default to true")
	}
	if cfg.NotifyDedupWindowSeconds != 600 {
		t.Fatalf("unexpected dedup window: %d", cfg.NotifyDedupWindowSeconds)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.DataRoot, cfg.LogDir, cfg.LocksDir(), cfg.OutputsDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be a directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "podship.toml")

	type payload struct {
		PipelineVersion   int     `toml:"pipeline_version"`
		MaxEpisodeCostUSD float64 `toml:"max_episode_cost_usd"`
		LLMModelID        string  `toml:"llm_model_id"`
		LLMAPIKey         string  `toml:"llm_api_key"`
	}
	custom := payload{
		PipelineVersion:   1,
		MaxEpisodeCostUSD: 2.5,
		LLMModelID:        "gpt-test",
		LLMAPIKey:         "abc123",
	}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.PipelineVersion != 1 {
		t.Fatalf("expected pipeline version 1, got %d", cfg.PipelineVersion)
	}
	if cfg.MaxEpisodeCostUSD != 2.5 {
		t.Fatalf("expected max episode cost 2.5, got %v", cfg.MaxEpisodeCostUSD)
	}
	if cfg.LLMModelID != "gpt-test" {
		t.Fatalf("expected llm model id override, got %q", cfg.LLMModelID)
	}
	if cfg.LLMAPIKey != "abc123" {
		t.Fatalf("expected llm api key from file, got %q", cfg.LLMAPIKey)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "pipeline_version") {
		t.Fatalf("sample config missing pipeline_version: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.DataRoot == "" {
		t.Fatal("expected sample to set a data_root")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.DataRoot = "/tmp/podship-test"
	cfg.PipelineVersion = 3
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported pipeline version")
	}

	cfg = config.Default()
	cfg.DataRoot = "/tmp/podship-test"
	cfg.MaxEpisodeCostUSD = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive cost cap")
	}

	cfg = config.Default()
	cfg.DataRoot = "/tmp/podship-test"
	cfg.MaxRetries = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive max retries")
	}

	cfg = config.Default()
	cfg.DataRoot = "/tmp/podship-test"
	cfg.NtfyRequestTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive ntfy request timeout")
	}

	cfg = config.Default()
	cfg.DataRoot = "/tmp/podship-test"
	cfg.FeedPollInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive feed poll interval")
	}

	cfg = config.Default()
	cfg.DataRoot = "/tmp/podship-test"
	cfg.StageTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive stage timeout")
	}

	cfg = config.Default()
	cfg.DataRoot = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty data root")
	}
}

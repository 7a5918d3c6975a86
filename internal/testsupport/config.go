package testsupport

import (
	"path/filepath"
	"testing"

	"podship/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.DataRoot = filepath.Join(base, "data")
	cfgVal.LogDir = filepath.Join(base, "logs")
	cfgVal.MaxEpisodeCostUSD = 5.0
	cfgVal.PipelineVersion = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	return builder.cfg
}

// WithPipelineVersion overrides the default pipeline plan version.
func WithPipelineVersion(version int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.PipelineVersion = version
	}
}

// WithMaxEpisodeCost overrides the Cost Guard cap on the test config.
func WithMaxEpisodeCost(capUSD float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.MaxEpisodeCostUSD = capUSD
	}
}

// WithDryRun toggles dry_run mode on the test config.
func WithDryRun(dryRun bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.DryRun = dryRun
	}
}

// WithReviewAutoApprove toggles the punctuation-only auto-approve classifier.
func WithReviewAutoApprove(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ReviewAutoApprove = enabled
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.DataRoot)
}

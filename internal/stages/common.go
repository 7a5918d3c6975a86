// Package stages implements the concrete stage adapters the orchestrator
// drives through its Registry. Each adapter is a thin wrapper over a single
// external collaborator (download, transcribe, translate, render, ...)
// plugged in at startup; the adapter owns only idempotency, artifact and
// provenance bookkeeping, and cost accounting, never the orchestration
// itself.
package stages

import (
	"log/slog"
	"strconv"

	"podship/internal/artifacts"
	"podship/internal/logging"
	"podship/internal/provenance"
	"podship/internal/store"
)

// episodeKey renders an episode's surrogate id as the string key every
// artifact path and provenance record is addressed by.
func episodeKey(ep *store.Episode) string {
	return strconv.FormatInt(ep.ID, 10)
}

// base is embedded by every adapter that touches the artifact store and
// provenance writer, and accepts a per-run logger from the orchestrator.
type base struct {
	artifacts *artifacts.Store
	prov      *provenance.Writer
	logger    *slog.Logger
}

func newBase(artifactStore *artifacts.Store, prov *provenance.Writer) base {
	return base{artifacts: artifactStore, prov: prov, logger: logging.NewNop()}
}

// SetLogger implements stage.LoggerAware.
func (b *base) SetLogger(logger *slog.Logger) {
	b.logger = logger
}

func (b *base) log() *slog.Logger {
	if b.logger == nil {
		return logging.NewNop()
	}
	return b.logger
}

func ptr[T any](v T) *T { return &v }

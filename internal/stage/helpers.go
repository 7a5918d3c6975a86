package stage

import (
	"podship/internal/artifacts"
	"podship/internal/provenance"
)

// IdempotencyInputs is what a stage adapter compares against its previous
// provenance record to decide whether to skip. currentPromptHash is "" for
// adapters with no associated prompt.
type IdempotencyInputs struct {
	OutputPath        string
	CurrentPromptHash string
	InputFileHashes   map[string]string
}

// ShouldSkip implements the idempotency invariant every stage adapter must
// uphold when force=false: the canonical output exists, is not stale, the
// stored provenance's prompt hash matches the current default prompt hash
// (when the adapter has one), and every stored input-file hash matches the
// current input. Any mismatch means the adapter must redo its work.
func ShouldSkip(artifactStore *artifacts.Store, prov *provenance.Writer, episodeID, stageName string, in IdempotencyInputs) bool {
	if !artifactStore.Exists(in.OutputPath) {
		return false
	}
	if artifactStore.IsStale(in.OutputPath) {
		return false
	}

	rec, err := prov.Read(episodeID, stageName)
	if err != nil {
		return false
	}

	if in.CurrentPromptHash != "" {
		if rec.PromptHash == nil || *rec.PromptHash != in.CurrentPromptHash {
			return false
		}
	}

	stored := make(map[string]string, len(rec.InputFiles))
	for _, f := range rec.InputFiles {
		stored[f.Path] = f.Hash
	}
	for path, hash := range in.InputFileHashes {
		if stored[path] != hash {
			return false
		}
	}
	return true
}

package artifacts

import (
	"encoding/json"
	"os"
	"time"

	"podship/internal/services"
)

// staleMarker is the JSON shape of a `{path}.stale` sidecar.
type staleMarker struct {
	InvalidatedAt string `json:"invalidated_at"`
	InvalidatedBy string `json:"invalidated_by"`
	Reason        string `json:"reason"`
}

func stalePath(path string) string {
	return path + ".stale"
}

// MarkStale writes a `{path}.stale` sidecar recording why and by which
// stage an artifact was invalidated. If a marker already exists, the
// earliest invalidated_at is kept.
func (s *Store) MarkStale(path, invalidatedBy, reason string) error {
	sidecar := stalePath(path)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if existing, err := os.ReadFile(sidecar); err == nil {
		var prior staleMarker
		if json.Unmarshal(existing, &prior) == nil && prior.InvalidatedAt != "" {
			now = prior.InvalidatedAt
		}
	}

	marker := staleMarker{InvalidatedAt: now, InvalidatedBy: invalidatedBy, Reason: reason}
	payload, err := json.Marshal(marker)
	if err != nil {
		return services.Wrap(services.ErrIO, "artifacts", "mark_stale", "encode marker", err)
	}
	return s.Write(sidecar, payload)
}

// IsStale reports whether path is either absent or has a `.stale` sidecar.
func (s *Store) IsStale(path string) bool {
	if !s.Exists(path) {
		return true
	}
	_, err := os.Stat(stalePath(path))
	return err == nil
}

// ClearStale removes the `.stale` sidecar, called when a fresh write
// supersedes it.
func (s *Store) ClearStale(path string) error {
	err := os.Remove(stalePath(path))
	if err != nil && !os.IsNotExist(err) {
		return services.Wrap(services.ErrIO, "artifacts", "clear_stale", path, err)
	}
	return nil
}

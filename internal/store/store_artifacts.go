package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// InsertContentArtifact records a newly produced (or regenerated) content
// artifact. Immutable after creation: regenerating the file creates a new
// record rather than mutating the old one.
func (s *Store) InsertContentArtifact(ctx context.Context, a *ContentArtifact) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`INSERT INTO content_artifacts (episode_id, artifact_type, file_path, model_id, prompt_hash, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		a.EpisodeID, a.ArtifactType, a.FilePath, a.ModelID, a.PromptHash, nowString(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert content artifact: %w", err)
	}
	return res.LastInsertId()
}

// ListContentArtifacts returns every content artifact recorded for an
// episode, newest first.
func (s *Store) ListContentArtifacts(ctx context.Context, episodeID int64) ([]*ContentArtifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contentArtifactColumns+` FROM content_artifacts WHERE episode_id = ? ORDER BY id DESC`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list content artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*ContentArtifact
	for rows.Next() {
		a, err := scanContentArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// InsertMediaAsset records a newly produced binary media output.
func (s *Store) InsertMediaAsset(ctx context.Context, m *MediaAsset) (int64, error) {
	metaJSON := "{}"
	if len(m.Metadata) > 0 {
		b, err := json.Marshal(m.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal media asset metadata: %w", err)
		}
		metaJSON = string(b)
	}
	var duration any
	if m.DurationSeconds != nil {
		duration = *m.DurationSeconds
	}
	var promptVerID any
	if m.PromptVersionID != nil {
		promptVerID = *m.PromptVersionID
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO media_assets (
            episode_id, asset_type, chapter_id, file_path, mime_type, size_bytes, duration_seconds,
            metadata_json, prompt_version_id, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.EpisodeID, m.AssetType, m.ChapterID, m.FilePath, m.MimeType, m.SizeBytes, duration,
		metaJSON, promptVerID, nowString(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert media asset: %w", err)
	}
	return res.LastInsertId()
}

// ListMediaAssets returns every media asset recorded for an episode,
// optionally filtered by asset type.
func (s *Store) ListMediaAssets(ctx context.Context, episodeID int64, assetType MediaAssetType) ([]*MediaAsset, error) {
	query := `SELECT ` + mediaAssetColumns + ` FROM media_assets WHERE episode_id = ?`
	args := []any{episodeID}
	if assetType != "" {
		query += ` AND asset_type = ?`
		args = append(args, assetType)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media assets: %w", err)
	}
	defer rows.Close()

	var assets []*MediaAsset
	for rows.Next() {
		m, err := scanMediaAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, m)
	}
	return assets, rows.Err()
}

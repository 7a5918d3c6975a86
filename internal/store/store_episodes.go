package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateEpisode inserts a new episode at status NEW, as created by the feed
// detector.
func (s *Store) CreateEpisode(ctx context.Context, channelID int64, externalID, title, sourceURL string, durationSeconds float64, pipelineVersion int) (*Episode, error) {
	now := nowString()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO episodes (
            external_id, channel_id, title, duration_seconds, source_url, status,
            pipeline_version, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		externalID, channelID, title, durationSeconds, sourceURL, StatusNew, pipelineVersion, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create episode: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetEpisode(ctx, id)
}

// GetEpisode fetches an episode by surrogate id.
func (s *Store) GetEpisode(ctx context.Context, id int64) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return ep, nil
}

// GetEpisodeByExternalID fetches an episode by its stable external
// identifier.
func (s *Store) GetEpisodeByExternalID(ctx context.Context, externalID string) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE external_id = ?`, externalID)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode by external id: %w", err)
	}
	return ep, nil
}

// UpdateEpisode persists the mutable fields of an episode record. Only the
// orchestrator and the review-gate service are expected to call this.
func (s *Store) UpdateEpisode(ctx context.Context, ep *Episode) error {
	if ep == nil {
		return errors.New("episode is nil")
	}
	err := s.execWithoutResultRetry(ctx,
		`UPDATE episodes SET
            title = ?, duration_seconds = ?, source_url = ?, status = ?, pipeline_version = ?,
            audio_path = ?, transcript_path = ?, output_dir = ?, external_video_id = ?,
            retry_count = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		ep.Title, ep.DurationSeconds, ep.SourceURL, ep.Status, ep.PipelineVersion,
		nullableString(ep.AudioPath), nullableString(ep.TranscriptPath), nullableString(ep.OutputDir),
		nullableString(ep.ExternalVideoID), ep.RetryCount, nullableString(ep.ErrorMessage), nowString(), ep.ID,
	)
	if err != nil {
		return fmt.Errorf("update episode: %w", err)
	}
	return nil
}

// ListEpisodesByStatus returns episodes in a given status, oldest first.
func (s *Store) ListEpisodesByStatus(ctx context.Context, status EpisodeStatus) ([]*Episode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list episodes by status: %w", err)
	}
	defer rows.Close()
	return collectEpisodes(rows)
}

// ListActionableEpisodes returns every non-terminal episode ordered by
// detected-at (created_at) ascending, for run_pending. Whether
// an episode is blocked by a non-approved review gate is a caller-side
// filter (the orchestrator consults the Review Gate Service), not expressed
// in this query.
func (s *Store) ListActionableEpisodes(ctx context.Context) ([]*Episode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE status NOT IN (?, ?, ?) ORDER BY created_at`,
		StatusCompleted, StatusFailed, StatusCostLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("list actionable episodes: %w", err)
	}
	defer rows.Close()
	return collectEpisodes(rows)
}

// ListAllEpisodes returns every episode ordered by detected-at ascending,
// for the status() control-surface operation.
func (s *Store) ListAllEpisodes(ctx context.Context) ([]*Episode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+episodeColumns+` FROM episodes ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()
	return collectEpisodes(rows)
}

func collectEpisodes(rows *sql.Rows) ([]*Episode, error) {
	var episodes []*Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

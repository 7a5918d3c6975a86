package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateChannel registers a new polled feed source.
func (s *Store) CreateChannel(ctx context.Context, ch *Channel) (int64, error) {
	enabled := 0
	if ch.Enabled {
		enabled = 1
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO channels (name, feed_url, default_pipeline_version, enabled) VALUES (?, ?, ?, ?)`,
		ch.Name, ch.FeedURL, ch.DefaultPipelineVersion, enabled,
	)
	if err != nil {
		return 0, fmt.Errorf("create channel: %w", err)
	}
	return res.LastInsertId()
}

// ListEnabledChannels returns every channel with polling enabled.
func (s *Store) ListEnabledChannels(ctx context.Context) ([]*Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, feed_url, default_pipeline_version, enabled FROM channels WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled channels: %w", err)
	}
	defer rows.Close()

	var channels []*Channel
	for rows.Next() {
		var ch Channel
		var enabled int
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.FeedURL, &ch.DefaultPipelineVersion, &enabled); err != nil {
			return nil, err
		}
		ch.Enabled = enabled != 0
		channels = append(channels, &ch)
	}
	return channels, rows.Err()
}

// InsertPublishJob records a publish-stage outcome.
func (s *Store) InsertPublishJob(ctx context.Context, pj *PublishJob) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`INSERT INTO publish_jobs (episode_id, external_video_id, uploaded_at, status) VALUES (?, ?, ?, ?)`,
		pj.EpisodeID, pj.ExternalVideoID, nowString(), pj.Status,
	)
	if err != nil {
		return 0, fmt.Errorf("insert publish job: %w", err)
	}
	return res.LastInsertId()
}

// GetLatestPublishJob returns the most recent publish job for an episode,
// if any.
func (s *Store) GetLatestPublishJob(ctx context.Context, episodeID int64) (*PublishJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, episode_id, external_video_id, uploaded_at, status FROM publish_jobs
         WHERE episode_id = ? ORDER BY id DESC LIMIT 1`, episodeID)
	var pj PublishJob
	var uploadedRaw string
	err := row.Scan(&pj.ID, &pj.EpisodeID, &pj.ExternalVideoID, &uploadedRaw, &pj.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest publish job: %w", err)
	}
	pj.UploadedAt, _ = parseTimeString(uploadedRaw)
	return &pj, nil
}

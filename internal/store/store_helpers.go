package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type scanner interface {
	Scan(dest ...any) error
}

const episodeColumns = "id, external_id, channel_id, title, duration_seconds, source_url, status, " +
	"pipeline_version, audio_path, transcript_path, output_dir, external_video_id, retry_count, " +
	"error_message, created_at, updated_at"

func scanEpisode(row scanner) (*Episode, error) {
	var (
		ep         Episode
		statusStr  string
		createdRaw string
		updatedRaw string
	)
	if err := row.Scan(
		&ep.ID, &ep.ExternalID, &ep.ChannelID, &ep.Title, &ep.DurationSeconds, &ep.SourceURL,
		&statusStr, &ep.PipelineVersion, &ep.AudioPath, &ep.TranscriptPath, &ep.OutputDir,
		&ep.ExternalVideoID, &ep.RetryCount, &ep.ErrorMessage, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	ep.Status = EpisodeStatus(statusStr)
	ep.CreatedAt, _ = parseTimeString(createdRaw)
	ep.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &ep, nil
}

const pipelineRunColumns = "id, episode_id, stage, status, started_at, completed_at, input_tokens, " +
	"output_tokens, estimated_cost_usd, error_message"

func scanPipelineRun(row scanner) (*PipelineRun, error) {
	var (
		run          PipelineRun
		statusStr    string
		startedRaw   string
		completedRaw sql.NullString
	)
	if err := row.Scan(
		&run.ID, &run.EpisodeID, &run.Stage, &statusStr, &startedRaw, &completedRaw,
		&run.InputTokens, &run.OutputTokens, &run.EstimatedCostUSD, &run.ErrorMessage,
	); err != nil {
		return nil, err
	}
	run.Status = RunStatus(statusStr)
	run.StartedAt, _ = parseTimeString(startedRaw)
	if completedRaw.Valid {
		run.CompletedAt, _ = parseTimeString(completedRaw.String)
	}
	return &run, nil
}

const contentArtifactColumns = "id, episode_id, artifact_type, file_path, model_id, prompt_hash, created_at"

func scanContentArtifact(row scanner) (*ContentArtifact, error) {
	var (
		a          ContentArtifact
		createdRaw string
	)
	if err := row.Scan(&a.ID, &a.EpisodeID, &a.ArtifactType, &a.FilePath, &a.ModelID, &a.PromptHash, &createdRaw); err != nil {
		return nil, err
	}
	a.CreatedAt, _ = parseTimeString(createdRaw)
	return &a, nil
}

const mediaAssetColumns = "id, episode_id, asset_type, chapter_id, file_path, mime_type, size_bytes, " +
	"duration_seconds, metadata_json, prompt_version_id, created_at"

func scanMediaAsset(row scanner) (*MediaAsset, error) {
	var (
		m           MediaAsset
		assetType   string
		duration    sql.NullFloat64
		metaJSON    string
		promptVerID sql.NullInt64
		createdRaw  string
	)
	if err := row.Scan(
		&m.ID, &m.EpisodeID, &assetType, &m.ChapterID, &m.FilePath, &m.MimeType, &m.SizeBytes,
		&duration, &metaJSON, &promptVerID, &createdRaw,
	); err != nil {
		return nil, err
	}
	m.AssetType = MediaAssetType(assetType)
	if duration.Valid {
		v := duration.Float64
		m.DurationSeconds = &v
	}
	m.Metadata = map[string]string{}
	if strings.TrimSpace(metaJSON) != "" {
		_ = json.Unmarshal([]byte(metaJSON), &m.Metadata)
	}
	if promptVerID.Valid {
		v := promptVerID.Int64
		m.PromptVersionID = &v
	}
	m.CreatedAt, _ = parseTimeString(createdRaw)
	return &m, nil
}

const promptVersionColumns = "id, name, version, content_hash, file_path, model_id, temperature, " +
	"max_tokens, is_default, created_at, notes"

func scanPromptVersion(row scanner) (*PromptVersion, error) {
	var (
		pv          PromptVersion
		isDefault   int
		createdRaw  string
	)
	if err := row.Scan(
		&pv.ID, &pv.Name, &pv.Version, &pv.ContentHash, &pv.FilePath, &pv.ModelID, &pv.Temperature,
		&pv.MaxTokens, &isDefault, &createdRaw, &pv.Notes,
	); err != nil {
		return nil, err
	}
	pv.IsDefault = isDefault != 0
	pv.CreatedAt, _ = parseTimeString(createdRaw)
	return &pv, nil
}

const reviewTaskColumns = "id, episode_id, stage, status, artifact_paths, diff_path, " +
	"prompt_version_id, created_at, reviewed_at, reviewer_notes, artifact_hash"

func scanReviewTask(row scanner) (*ReviewTask, error) {
	var (
		rt             ReviewTask
		statusStr      string
		artifactsJSON  string
		promptVerID    sql.NullInt64
		createdRaw     string
		reviewedRaw    sql.NullString
	)
	if err := row.Scan(
		&rt.ID, &rt.EpisodeID, &rt.Stage, &statusStr, &artifactsJSON, &rt.DiffPath,
		&promptVerID, &createdRaw, &reviewedRaw, &rt.ReviewerNotes, &rt.ArtifactHash,
	); err != nil {
		return nil, err
	}
	rt.Status = ReviewTaskStatus(statusStr)
	if strings.TrimSpace(artifactsJSON) != "" {
		_ = json.Unmarshal([]byte(artifactsJSON), &rt.ArtifactPaths)
	}
	if promptVerID.Valid {
		v := promptVerID.Int64
		rt.PromptVersionID = &v
	}
	rt.CreatedAt, _ = parseTimeString(createdRaw)
	if reviewedRaw.Valid {
		t, err := parseTimeString(reviewedRaw.String)
		if err == nil {
			rt.ReviewedAt = &t
		}
	}
	return &rt, nil
}

const reviewDecisionColumns = "id, task_id, decision, notes, decided_at"

func scanReviewDecision(row scanner) (*ReviewDecision, error) {
	var (
		rd         ReviewDecision
		decision   string
		decidedRaw string
	)
	if err := row.Scan(&rd.ID, &rd.TaskID, &decision, &rd.Notes, &decidedRaw); err != nil {
		return nil, err
	}
	rd.Decision = ReviewDecisionKind(decision)
	rd.DecidedAt, _ = parseTimeString(decidedRaw)
	return &rd, nil
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

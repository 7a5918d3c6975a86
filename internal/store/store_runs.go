package store

import (
	"context"
	"fmt"
	"time"
)

// InsertPipelineRun appends a PipelineRun record. Records are append-only
// and never mutated after a terminal run status, so this is an
// insert-only operation; the store has no update path for pipeline runs.
func (s *Store) InsertPipelineRun(ctx context.Context, run *PipelineRun) (int64, error) {
	started := run.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	var completed any
	if !run.CompletedAt.IsZero() {
		completed = run.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO pipeline_runs (
            episode_id, stage, status, started_at, completed_at, input_tokens, output_tokens,
            estimated_cost_usd, error_message
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.EpisodeID, run.Stage, run.Status, started.Format(time.RFC3339Nano), completed,
		run.InputTokens, run.OutputTokens, run.EstimatedCostUSD, run.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("insert pipeline run: %w", err)
	}
	return res.LastInsertId()
}

// ListPipelineRunsForEpisode returns every pipeline_run for an episode in
// the strict order the orchestrator invoked the stages.
func (s *Store) ListPipelineRunsForEpisode(ctx context.Context, episodeID int64) ([]*PipelineRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pipelineRunColumns+` FROM pipeline_runs WHERE episode_id = ? ORDER BY id`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []*PipelineRun
	for rows.Next() {
		run, err := scanPipelineRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SumCostForEpisode sums estimated_cost_usd across success and failed runs
// for an episode, the aggregation the Cost Guard uses.
func (s *Store) SumCostForEpisode(ctx context.Context, episodeID int64) (float64, error) {
	var total float64
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(estimated_cost_usd), 0) FROM pipeline_runs
         WHERE episode_id = ? AND status IN (?, ?)`,
		episodeID, RunStatusSuccess, RunStatusFailed,
	)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("sum episode cost: %w", err)
	}
	return total, nil
}

// CostReportRow is one row of the per-stage cost_report operation.
type CostReportRow struct {
	Stage     string
	RunCount  int
	TotalCost float64
	LastRunAt time.Time
}

// CostReport aggregates pipeline_run cost per stage, optionally filtered to
// one episode.
func (s *Store) CostReport(ctx context.Context, episodeID *int64) ([]CostReportRow, error) {
	query := `SELECT stage, COUNT(1), COALESCE(SUM(estimated_cost_usd), 0), MAX(started_at)
              FROM pipeline_runs`
	args := []any{}
	if episodeID != nil {
		query += ` WHERE episode_id = ?`
		args = append(args, *episodeID)
	}
	query += ` GROUP BY stage ORDER BY stage`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cost report: %w", err)
	}
	defer rows.Close()

	var report []CostReportRow
	for rows.Next() {
		var row CostReportRow
		var lastRunRaw string
		if err := rows.Scan(&row.Stage, &row.RunCount, &row.TotalCost, &lastRunRaw); err != nil {
			return nil, err
		}
		row.LastRunAt, _ = parseTimeString(lastRunRaw)
		report = append(report, row)
	}
	return report, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// OpenReviewTaskStatuses are the non-terminal ReviewTaskStatus values: at
// most one task in one of these statuses may exist per (episode, stage).
var OpenReviewTaskStatuses = []ReviewTaskStatus{ReviewPending, ReviewInReview, ReviewChangesRequested}

// GetOpenReviewTask returns the non-terminal review task for (episode,
// stage), if any.
func (s *Store) GetOpenReviewTask(ctx context.Context, episodeID int64, stage string) (*ReviewTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reviewTaskColumns+` FROM review_tasks
         WHERE episode_id = ? AND stage = ? AND status IN (?, ?, ?)
         ORDER BY id DESC LIMIT 1`,
		episodeID, stage, ReviewPending, ReviewInReview, ReviewChangesRequested,
	)
	rt, err := scanReviewTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open review task: %w", err)
	}
	return rt, nil
}

// CreateReviewTask inserts a new PENDING review task. Callers must first
// check GetOpenReviewTask and fail with ErrGateConflict if one already
// exists — enforcement lives in the reviewgate package, not
// here, since it is a domain-level invariant rather than a storage one.
func (s *Store) CreateReviewTask(ctx context.Context, rt *ReviewTask) (int64, error) {
	artifactsJSON, err := json.Marshal(rt.ArtifactPaths)
	if err != nil {
		return 0, fmt.Errorf("marshal artifact paths: %w", err)
	}
	var promptVerID any
	if rt.PromptVersionID != nil {
		promptVerID = *rt.PromptVersionID
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO review_tasks (
            episode_id, stage, status, artifact_paths, diff_path, prompt_version_id, created_at,
            reviewer_notes, artifact_hash
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.EpisodeID, rt.Stage, ReviewPending, string(artifactsJSON), rt.DiffPath, promptVerID,
		nowString(), "", "",
	)
	if err != nil {
		return 0, fmt.Errorf("create review task: %w", err)
	}
	return res.LastInsertId()
}

// GetReviewTask fetches a review task by surrogate id.
func (s *Store) GetReviewTask(ctx context.Context, id int64) (*ReviewTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reviewTaskColumns+` FROM review_tasks WHERE id = ?`, id)
	rt, err := scanReviewTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get review task: %w", err)
	}
	return rt, nil
}

// GetApprovedReviewTask returns the most recent APPROVED task for (episode,
// stage), if any. Used by downstream stages (e.g. publish) to verify the
// reviewed artifact has not been tampered with since approval.
func (s *Store) GetApprovedReviewTask(ctx context.Context, episodeID int64, stage string) (*ReviewTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reviewTaskColumns+` FROM review_tasks
         WHERE episode_id = ? AND stage = ? AND status = ?
         ORDER BY id DESC LIMIT 1`,
		episodeID, stage, ReviewApproved,
	)
	rt, err := scanReviewTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get approved review task: %w", err)
	}
	return rt, nil
}

// HasApprovedReviewTask reports whether an APPROVED task exists for
// (episode, stage).
func (s *Store) HasApprovedReviewTask(ctx context.Context, episodeID int64, stage string) (bool, error) {
	var count int
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM review_tasks WHERE episode_id = ? AND stage = ? AND status = ?`,
		episodeID, stage, ReviewApproved,
	)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("has approved review task: %w", err)
	}
	return count > 0, nil
}

// LatestFeedback returns the notes from the most recent CHANGES_REQUESTED
// or REJECTED decision for (episode, stage), or "" if none.
func (s *Store) LatestFeedback(ctx context.Context, episodeID int64, stage string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT d.notes FROM review_decisions d
         JOIN review_tasks t ON t.id = d.task_id
         WHERE t.episode_id = ? AND t.stage = ? AND d.decision IN (?, ?)
         ORDER BY d.decided_at DESC, d.id DESC LIMIT 1`,
		episodeID, stage, DecisionChangesRequested, DecisionRejected,
	)
	var notes string
	if err := row.Scan(&notes); errors.Is(err, sql.ErrNoRows) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("latest feedback: %w", err)
	}
	return notes, nil
}

// ListOpenReviewTasks returns every non-terminal review task across all
// episodes, oldest first. Used by the review CLI command to show what is
// waiting on a decision.
func (s *Store) ListOpenReviewTasks(ctx context.Context) ([]*ReviewTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reviewTaskColumns+` FROM review_tasks WHERE status IN (?, ?, ?) ORDER BY id`,
		ReviewPending, ReviewInReview, ReviewChangesRequested,
	)
	if err != nil {
		return nil, fmt.Errorf("list open review tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*ReviewTask
	for rows.Next() {
		rt, err := scanReviewTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, rt)
	}
	return tasks, rows.Err()
}

// PendingReviewCount returns the number of open (non-terminal) review
// tasks across all episodes.
func (s *Store) PendingReviewCount(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM review_tasks WHERE status IN (?, ?, ?)`,
		ReviewPending, ReviewInReview, ReviewChangesRequested,
	)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("pending review count: %w", err)
	}
	return count, nil
}

// ApplyReviewDecision appends a ReviewDecision, updates the parent task's
// status (and artifact_hash, when approving), and — when revertStatus is
// non-empty — reverts the episode's status, all inside one transaction.
func (s *Store) ApplyReviewDecision(ctx context.Context, taskID int64, decision ReviewDecisionKind, notes, artifactHash string, newTaskStatus ReviewTaskStatus, episodeID int64, revertStatus EpisodeStatus) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		now := nowString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO review_decisions (task_id, decision, notes, decided_at) VALUES (?, ?, ?, ?)`,
			taskID, decision, notes, now,
		); err != nil {
			return fmt.Errorf("insert review decision: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE review_tasks SET status = ?, reviewed_at = ?, reviewer_notes = ?, artifact_hash = ? WHERE id = ?`,
			newTaskStatus, now, notes, artifactHash, taskID,
		); err != nil {
			return fmt.Errorf("update review task: %w", err)
		}
		if revertStatus != "" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE episodes SET status = ?, updated_at = ? WHERE id = ?`,
				revertStatus, now, episodeID,
			); err != nil {
				return fmt.Errorf("revert episode status: %w", err)
			}
		}
		return nil
	})
}

// ListReviewDecisions returns every decision for a task, strictly monotonic
// in decided_at.
func (s *Store) ListReviewDecisions(ctx context.Context, taskID int64) ([]*ReviewDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reviewDecisionColumns+` FROM review_decisions WHERE task_id = ? ORDER BY decided_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list review decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*ReviewDecision
	for rows.Next() {
		rd, err := scanReviewDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, rd)
	}
	return decisions, rows.Err()
}

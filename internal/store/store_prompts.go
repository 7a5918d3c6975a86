package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetPromptVersionByHash returns the existing record for (name, content
// hash), if any — the idempotency check register_version relies on.
func (s *Store) GetPromptVersionByHash(ctx context.Context, name, contentHash string) (*PromptVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+promptVersionColumns+` FROM prompt_versions WHERE name = ? AND content_hash = ?`,
		name, contentHash,
	)
	pv, err := scanPromptVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt version by hash: %w", err)
	}
	return pv, nil
}

// MaxPromptVersion returns the highest registered version number for a
// prompt name, or 0 if none exist.
func (s *Store) MaxPromptVersion(ctx context.Context, name string) (int, error) {
	var max sql.NullInt64
	row := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM prompt_versions WHERE name = ?`, name)
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("max prompt version: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64), nil
}

// InsertPromptVersion registers a new prompt version row. When isFirst is
// true (no prior versions for this name) it is additionally marked
// is_default inside the same transaction as the insert, so a reader never
// observes a name with zero default versions.
func (s *Store) InsertPromptVersion(ctx context.Context, pv *PromptVersion, isFirst bool) (int64, error) {
	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		isDefault := 0
		if isFirst {
			isDefault = 1
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO prompt_versions (
                name, version, content_hash, file_path, model_id, temperature, max_tokens,
                is_default, created_at, notes
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pv.Name, pv.Version, pv.ContentHash, pv.FilePath, pv.ModelID, pv.Temperature,
			pv.MaxTokens, isDefault, nowString(), pv.Notes,
		)
		if err != nil {
			return fmt.Errorf("insert prompt version: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// GetPromptVersion fetches a prompt version by surrogate id.
func (s *Store) GetPromptVersion(ctx context.Context, id int64) (*PromptVersion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+promptVersionColumns+` FROM prompt_versions WHERE id = ?`, id)
	pv, err := scanPromptVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt version: %w", err)
	}
	return pv, nil
}

// GetDefaultPromptVersion returns the unique is_default=true record for a
// prompt name, or nil if none is registered.
func (s *Store) GetDefaultPromptVersion(ctx context.Context, name string) (*PromptVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+promptVersionColumns+` FROM prompt_versions WHERE name = ? AND is_default = 1`, name)
	pv, err := scanPromptVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get default prompt version: %w", err)
	}
	return pv, nil
}

// PromoteToDefault clears is_default for every version of the name and sets
// it for the target id, in one transaction.
func (s *Store) PromoteToDefault(ctx context.Context, name string, id int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM prompt_versions WHERE id = ? AND name = ?`, id, name).Scan(&exists); err != nil {
			return fmt.Errorf("check prompt version exists: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("promote to default: version %d not found for %q", id, name)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE prompt_versions SET is_default = 0 WHERE name = ?`, name); err != nil {
			return fmt.Errorf("clear defaults: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE prompt_versions SET is_default = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("set default: %w", err)
		}
		return nil
	})
}

// GetPromptHistory returns every registered version for a name, newest
// first.
func (s *Store) GetPromptHistory(ctx context.Context, name string) ([]*PromptVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+promptVersionColumns+` FROM prompt_versions WHERE name = ? ORDER BY version DESC`, name)
	if err != nil {
		return nil, fmt.Errorf("prompt history: %w", err)
	}
	defer rows.Close()

	var versions []*PromptVersion
	for rows.Next() {
		pv, err := scanPromptVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, pv)
	}
	return versions, rows.Err()
}

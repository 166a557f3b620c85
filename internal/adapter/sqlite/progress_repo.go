package sqlite

import (
	"fmt"
	"strings"

	"github.com/mediaforge/media-archiver/internal/domain"
)

// Load returns the persisted progress state, or a zero-value state on
// a fresh database.
func (s *Store) Load() (*domain.ProgressState, error) {
	state := domain.NewProgressState()

	err := s.db.QueryRow(
		"SELECT last_page, cumulative_bytes, updated_at FROM progress WHERE id = 1",
	).Scan(&state.LastPage, &state.CumulativeBytes, &state.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: load progress: %w", domain.ErrProgressUnavailable, err)
	}

	rows, err := s.db.Query("SELECT item_id FROM committed_items")
	if err != nil {
		return nil, fmt.Errorf("%w: load committed set: %w", domain.ErrProgressUnavailable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		state.Committed[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	frows, err := s.db.Query("SELECT item_id FROM failed_items")
	if err != nil {
		return nil, fmt.Errorf("%w: load failed set: %w", domain.ErrProgressUnavailable, err)
	}
	defer frows.Close()
	for frows.Next() {
		var id string
		if err := frows.Scan(&id); err != nil {
			return nil, err
		}
		state.Failed[id] = struct{}{}
	}
	return state, frows.Err()
}

// RecordCommit marks the identifier committed and adds its bundle size
// to the cumulative byte count in one transaction. Any failed marker
// for the identifier is cleared so an ID is never in both sets.
// Idempotent: replaying a commit after a crash leaves the cumulative
// byte count untouched.
func (s *Store) RecordCommit(id string, page int, bytes int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProgressUnavailable, err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"INSERT OR IGNORE INTO committed_items (item_id, page, bytes) VALUES (?, ?, ?)",
		id, page, bytes,
	)
	if err != nil {
		return fmt.Errorf("%w: record commit: %w", domain.ErrProgressUnavailable, err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProgressUnavailable, err)
	}

	if _, err := tx.Exec("DELETE FROM failed_items WHERE item_id = ?", id); err != nil {
		return fmt.Errorf("%w: clear failed marker: %w", domain.ErrProgressUnavailable, err)
	}

	// Only a first-time commit counts toward the quota.
	if inserted > 0 {
		if _, err := tx.Exec(
			"UPDATE progress SET cumulative_bytes = cumulative_bytes + ?, updated_at = datetime('now') WHERE id = 1",
			bytes,
		); err != nil {
			return fmt.Errorf("%w: bump cumulative bytes: %w", domain.ErrProgressUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProgressUnavailable, err)
	}
	return nil
}

// RecordPermanentFailure marks the identifier permanently failed with
// its reason and attempt count. A stale committed marker is cleared in
// the same transaction.
func (s *Store) RecordPermanentFailure(id string, page int, reason string, attempts int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProgressUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO failed_items (item_id, page, reason, attempts) VALUES (?, ?, ?, ?)",
		id, page, reason, attempts,
	); err != nil {
		return fmt.Errorf("%w: record failure: %w", domain.ErrProgressUnavailable, err)
	}
	if _, err := tx.Exec("DELETE FROM committed_items WHERE item_id = ?", id); err != nil {
		return fmt.Errorf("%w: clear committed marker: %w", domain.ErrProgressUnavailable, err)
	}
	if _, err := tx.Exec(
		"UPDATE progress SET updated_at = datetime('now') WHERE id = 1",
	); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProgressUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProgressUnavailable, err)
	}
	return nil
}

// AdvancePageCursor records that every item on the page reached a
// terminal state. Traversal is descending, so the cursor only moves
// down (or sets the first value).
func (s *Store) AdvancePageCursor(page int) error {
	_, err := s.db.Exec(
		`UPDATE progress SET last_page = ?, updated_at = datetime('now')
		 WHERE id = 1 AND (last_page = 0 OR ? < last_page)`,
		page, page,
	)
	if err != nil {
		return fmt.Errorf("%w: advance page cursor: %w", domain.ErrProgressUnavailable, err)
	}
	return nil
}

// ResetFailed clears the failed marker for the given identifiers.
// Returns how many markers were removed.
func (s *Store) ResetFailed(ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := s.db.Exec(
		"DELETE FROM failed_items WHERE item_id IN ("+placeholders+")", args...,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: reset failed: %w", domain.ErrProgressUnavailable, err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

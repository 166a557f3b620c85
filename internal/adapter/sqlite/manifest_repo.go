package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mediaforge/media-archiver/internal/domain"
)

// SaveBatch persists the batch and its items in one transaction and
// assigns BatchID.
func (s *Store) SaveBatch(batch *domain.ManifestBatch) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"INSERT INTO batches (run_id, pages) VALUES (?, ?)",
		batch.RunID, encodePages(batch.Pages),
	)
	if err != nil {
		return fmt.Errorf("save batch: %w", err)
	}
	batchID, err := result.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO batch_items (
			batch_id, position, item_id, page, target_dir,
			primary_url, cover_url, metadata, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range batch.Items {
		it := &batch.Items[i]
		if it.Status == "" {
			it.Status = domain.ItemStatusPending
		}
		meta, err := json.Marshal(it.Item.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", it.Item.ID, err)
		}
		if _, err := stmt.Exec(
			batchID, it.Position, it.Item.ID, it.Item.Page, it.Item.TargetDir,
			it.Item.PrimaryURL, it.Item.CoverURL, string(meta), it.Status,
		); err != nil {
			return fmt.Errorf("save batch item %s: %w", it.Item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	batch.BatchID = batchID
	return nil
}

// PendingItems returns the batch's pending items in manifest order.
func (s *Store) PendingItems(batchID int64) ([]domain.ManifestItem, error) {
	rows, err := s.db.Query(`
		SELECT position, item_id, page, target_dir, primary_url, cover_url,
		       metadata, status, last_reason, updated_at
		FROM batch_items
		WHERE batch_id = ? AND status = 'pending'
		ORDER BY position ASC
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanManifestItems(rows)
}

// MarkItemStatus records an item's terminal status. Terminal statuses
// are sticky: an already committed or failed item is never moved back.
func (s *Store) MarkItemStatus(batchID int64, itemID, status, reason string) error {
	result, err := s.db.Exec(`
		UPDATE batch_items
		SET status = ?, last_reason = ?, updated_at = datetime('now')
		WHERE batch_id = ? AND item_id = ? AND status = 'pending'
	`, status, reason, batchID, itemID)
	if err != nil {
		return fmt.Errorf("mark item %s: %w", itemID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current string
		err := s.db.QueryRow(
			"SELECT status FROM batch_items WHERE batch_id = ? AND item_id = ?",
			batchID, itemID,
		).Scan(&current)
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if current == status {
			// Re-marking the same terminal status is a no-op; happens
			// on replay after a crash between commit and mark.
			return nil
		}
		return fmt.Errorf("item %s already %s, cannot mark %s", itemID, current, status)
	}
	return nil
}

// UnfinishedBatch returns the most recent batch that still has pending
// items, or nil when every batch is drained.
func (s *Store) UnfinishedBatch() (*domain.ManifestBatch, error) {
	var batch domain.ManifestBatch
	var pages string

	err := s.db.QueryRow(`
		SELECT b.batch_id, b.run_id, b.pages, b.created_at
		FROM batches b
		WHERE EXISTS (
			SELECT 1 FROM batch_items i
			WHERE i.batch_id = b.batch_id AND i.status = 'pending'
		)
		ORDER BY b.batch_id DESC
		LIMIT 1
	`).Scan(&batch.BatchID, &batch.RunID, &pages, &batch.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	batch.Pages = decodePages(pages)

	rows, err := s.db.Query(`
		SELECT position, item_id, page, target_dir, primary_url, cover_url,
		       metadata, status, last_reason, updated_at
		FROM batch_items
		WHERE batch_id = ?
		ORDER BY position ASC
	`, batch.BatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batch.Items, err = scanManifestItems(rows)
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func scanManifestItems(rows *sql.Rows) ([]domain.ManifestItem, error) {
	var items []domain.ManifestItem
	for rows.Next() {
		var it domain.ManifestItem
		var meta string
		if err := rows.Scan(
			&it.Position, &it.Item.ID, &it.Item.Page, &it.Item.TargetDir,
			&it.Item.PrimaryURL, &it.Item.CoverURL, &meta,
			&it.Status, &it.LastReason, &it.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if meta != "" && meta != "{}" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &it.Item.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", it.Item.ID, err)
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func encodePages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func decodePages(s string) []int {
	if s == "" {
		return nil
	}
	var pages []int
	for _, part := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(part); err == nil {
			pages = append(pages, n)
		}
	}
	return pages
}

package port

import "github.com/mediaforge/media-archiver/internal/domain"

// ProgressStore is the durable checkpoint for resumption. Every
// mutating call must be persisted before it returns; a write failure is
// fatal for the run.
type ProgressStore interface {
	// Load returns the persisted state, or a zero-value state when none
	// exists yet.
	Load() (*domain.ProgressState, error)

	// RecordCommit durably marks the identifier committed and adds its
	// bundle size to the cumulative byte count. Clears any failed
	// marker for the identifier in the same transaction.
	RecordCommit(id string, page int, bytes int64) error

	// RecordPermanentFailure durably marks the identifier as failed
	// with its reason and attempt count.
	RecordPermanentFailure(id string, page int, reason string, attempts int) error

	// AdvancePageCursor durably records that every item on the page
	// reached a terminal state.
	AdvancePageCursor(page int) error

	// ResetFailed clears the failed marker for the given identifiers so
	// they can be re-offered.
	ResetFailed(ids []string) (int, error)
}

// ManifestStore persists batches so a crash mid-batch can be replayed
// without re-deriving the batch from the source feed.
type ManifestStore interface {
	// SaveBatch persists the batch and its items, assigning BatchID.
	SaveBatch(batch *domain.ManifestBatch) error

	// PendingItems returns the batch's pending items in manifest order.
	PendingItems(batchID int64) ([]domain.ManifestItem, error)

	// MarkItemStatus records an item's terminal status. Transitions are
	// monotonic; moving an item out of a terminal status is an error.
	MarkItemStatus(batchID int64, itemID, status, reason string) error

	// UnfinishedBatch returns the most recent batch that still has
	// pending items, or nil when every batch is drained.
	UnfinishedBatch() (*domain.ManifestBatch, error)
}

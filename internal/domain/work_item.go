package domain

import "time"

// Manifest item status constants. Transitions are monotonic:
// pending -> committed or pending -> failed, never reversed.
const (
	ItemStatusPending   = "pending"
	ItemStatusCommitted = "committed"
	ItemStatusFailed    = "failed"
)

// WorkItem is one unit of ingest work produced by the source feed:
// a stable identifier plus the remote URLs and metadata needed to
// materialize a three-file bundle on disk.
//
// A WorkItem is immutable once created. Its URLs are treated as valid
// for the life of the item; a retry re-fetches the same URL rather than
// asking the feed for a fresh one.
type WorkItem struct {
	ID         string
	PrimaryURL string
	CoverURL   string

	// Metadata is an opaque mapping passed through to the bundle's
	// metadata record unmodified. Nil values are dropped on write.
	Metadata map[string]any

	// TargetDir is the bundle directory name under the storage root.
	// Defaults to the item ID when the feed leaves it empty.
	TargetDir string

	// Page is the feed page the item was discovered on.
	Page int
}

// BundleDir returns the directory name the item's bundle lives in.
func (w WorkItem) BundleDir() string {
	if w.TargetDir != "" {
		return w.TargetDir
	}
	return w.ID
}

// ManifestItem is a WorkItem's entry in a persisted batch, carrying its
// position in manifest order and its current status.
type ManifestItem struct {
	Position   int
	Item       WorkItem
	Status     string
	LastReason string
	UpdatedAt  time.Time
}

// Terminal reports whether the item has reached a terminal status.
func (m ManifestItem) Terminal() bool {
	return m.Status == ItemStatusCommitted || m.Status == ItemStatusFailed
}

// ManifestBatch is a persisted, ordered group of WorkItems derived from
// one scheduling pass over the source feed. A crash mid-batch is
// replayed from the stored batch instead of re-deriving it.
type ManifestBatch struct {
	BatchID   int64
	RunID     string
	Pages     []int
	Items     []ManifestItem
	CreatedAt time.Time
}

// PageItems returns the batch items belonging to the given page, in
// manifest order.
func (b *ManifestBatch) PageItems(page int) []ManifestItem {
	var out []ManifestItem
	for _, it := range b.Items {
		if it.Item.Page == page {
			out = append(out, it)
		}
	}
	return out
}

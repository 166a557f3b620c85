package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mediaforge/media-archiver/internal/domain"
)

// Feed supplies WorkItems page by page. The pipeline never parses the
// upstream listing itself; whatever produces the feed writes page files
// this package reads.
type Feed interface {
	// Page returns the items discovered on page n, in listing order.
	// A page that does not exist yields an empty slice, not an error.
	Page(ctx context.Context, n int) ([]domain.WorkItem, error)
}

// pageEntry is the on-disk shape of one feed item.
type pageEntry struct {
	ID         string         `json:"id"`
	PrimaryURL string         `json:"primary_url"`
	CoverURL   string         `json:"cover_url"`
	TargetDir  string         `json:"target_dir,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// DirectoryFeed reads page files named page-<n>.json from a directory.
type DirectoryFeed struct {
	dir string
}

// NewDirectoryFeed creates a feed over the given directory.
func NewDirectoryFeed(dir string) *DirectoryFeed {
	return &DirectoryFeed{dir: dir}
}

// Page loads page n from its file. Every entry must carry an ID and
// both asset URLs; a bundle is always three files, so malformed feed
// output fails loudly here instead of producing half-formed bundles.
func (f *DirectoryFeed) Page(ctx context.Context, n int) ([]domain.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(f.dir, fmt.Sprintf("page-%d.json", n))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read feed page %d: %w", n, err)
	}

	var entries []pageEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode feed page %d: %w", n, err)
	}

	items := make([]domain.WorkItem, 0, len(entries))
	for i, e := range entries {
		if e.ID == "" || e.PrimaryURL == "" || e.CoverURL == "" {
			return nil, fmt.Errorf("feed page %d entry %d: missing id, primary_url or cover_url", n, i)
		}
		items = append(items, domain.WorkItem{
			ID:         e.ID,
			PrimaryURL: e.PrimaryURL,
			CoverURL:   e.CoverURL,
			TargetDir:  e.TargetDir,
			Metadata:   e.Metadata,
			Page:       n,
		})
	}
	return items, nil
}

// PagePlan returns the descending page sequence for one batch:
// count pages starting at startPage, never descending below page 1.
func PagePlan(startPage, count int) []int {
	var pages []int
	for p := startPage; p > 0 && len(pages) < count; p-- {
		pages = append(pages, p)
	}
	return pages
}

// BuildBatch derives a manifest batch from the feed for the given
// pages, skipping identifiers the progress state already settled.
// Committed identifiers are always skipped; failed ones are skipped
// unless retryFailed is set. Duplicate identifiers within the batch
// keep only their first occurrence. The returned batch is not yet
// persisted.
func BuildBatch(ctx context.Context, f Feed, state *domain.ProgressState, pages []int, retryFailed bool) (*domain.ManifestBatch, int, error) {
	batch := &domain.ManifestBatch{
		RunID:     uuid.NewString(),
		Pages:     pages,
		CreatedAt: time.Now().UTC(),
	}

	skipped := 0
	seen := make(map[string]struct{})
	for _, page := range pages {
		items, err := f.Page(ctx, page)
		if err != nil {
			return nil, 0, fmt.Errorf("build batch: %w", err)
		}
		for _, item := range items {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}

			if state.IsCommitted(item.ID) {
				skipped++
				continue
			}
			if state.IsFailed(item.ID) && !retryFailed {
				skipped++
				continue
			}

			batch.Items = append(batch.Items, domain.ManifestItem{
				Position: len(batch.Items),
				Item:     item,
				Status:   domain.ItemStatusPending,
			})
		}
	}
	return batch, skipped, nil
}

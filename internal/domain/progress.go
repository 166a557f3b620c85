package domain

import "time"

// ProgressState is the durable record of pipeline progress. It is the
// single source of truth for resumption: loaded at startup, updated
// after every terminal item, and the only entity read and written
// across restarts.
type ProgressState struct {
	// LastPage is the last fully processed page. Page traversal is
	// descending, so the next run resumes at LastPage-1.
	LastPage int

	// Committed holds identifiers whose bundles are fully on disk.
	Committed map[string]struct{}

	// Failed holds identifiers that exhausted their retry budget.
	// An identifier is never in both Committed and Failed.
	Failed map[string]struct{}

	// CumulativeBytes is the total committed bundle size, used to seed
	// the quota monitor without re-walking the filesystem.
	CumulativeBytes int64

	UpdatedAt time.Time
}

// NewProgressState returns an empty state for a first run.
func NewProgressState() *ProgressState {
	return &ProgressState{
		Committed: make(map[string]struct{}),
		Failed:    make(map[string]struct{}),
	}
}

// IsCommitted reports whether the identifier is already committed.
func (p *ProgressState) IsCommitted(id string) bool {
	_, ok := p.Committed[id]
	return ok
}

// IsFailed reports whether the identifier is permanently failed.
func (p *ProgressState) IsFailed(id string) bool {
	_, ok := p.Failed[id]
	return ok
}

// NextPage returns the page a resumed descending traversal starts at,
// or startPage when no progress exists yet.
func (p *ProgressState) NextPage(startPage int) int {
	if p.LastPage == 0 {
		return startPage
	}
	return p.LastPage - 1
}

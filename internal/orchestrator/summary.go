package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// Summary is the outcome of one batch run.
type Summary struct {
	Committed    int
	Failed       int
	Skipped      int
	QuotaStopped bool
	BytesAdded   int64

	// Reasons counts permanent failures by rejection reason.
	Reasons map[string]int
}

// String renders the summary for the run log.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "committed=%d failed=%d skipped=%d added=%s",
		s.Committed, s.Failed, s.Skipped, humanize.Bytes(uint64(s.BytesAdded)))
	if s.QuotaStopped {
		b.WriteString(" quota-stopped")
	}
	if len(s.Reasons) > 0 {
		reasons := make([]string, 0, len(s.Reasons))
		for r := range s.Reasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		b.WriteString(" reasons=[")
		for i, r := range reasons {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s:%d", r, s.Reasons[r])
		}
		b.WriteString("]")
	}
	return b.String()
}

// collector accumulates summary counters from concurrent workers.
type collector struct {
	mu           sync.Mutex
	committed    int
	failed       int
	skipped      int
	quotaStopped bool
	bytesAdded   int64
	reasons      map[string]int
}

func newCollector() *collector {
	return &collector{reasons: make(map[string]int)}
}

func (c *collector) addCommitted(bytes int64) {
	c.mu.Lock()
	c.committed++
	c.bytesAdded += bytes
	c.mu.Unlock()
}

func (c *collector) addFailed(reason string) {
	c.mu.Lock()
	c.failed++
	c.reasons[reason]++
	c.mu.Unlock()
}

func (c *collector) addSkipped(n int) {
	c.mu.Lock()
	c.skipped += n
	c.mu.Unlock()
}

func (c *collector) markQuotaStopped() {
	c.mu.Lock()
	c.quotaStopped = true
	c.mu.Unlock()
}

func (c *collector) isQuotaStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quotaStopped
}

func (c *collector) snapshot() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	reasons := make(map[string]int, len(c.reasons))
	for k, v := range c.reasons {
		reasons[k] = v
	}
	return &Summary{
		Committed:    c.committed,
		Failed:       c.failed,
		Skipped:      c.skipped,
		QuotaStopped: c.quotaStopped,
		BytesAdded:   c.bytesAdded,
		Reasons:      reasons,
	}
}

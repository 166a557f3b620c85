package quota

import "sync"

// State describes how close usage is to the ceiling.
type State string

const (
	StateOK        State = "ok"
	StateWarning   State = "warning"
	StateExhausted State = "exhausted"
)

// Monitor tracks cumulative committed bytes against the configured
// ceiling. Usage is seeded from the progress store at startup rather
// than re-walking the filesystem, and updated incrementally as items
// commit. Safe for concurrent use.
type Monitor struct {
	mu       sync.Mutex
	ceiling  int64
	usage    int64
	warnFrac float64
}

// NewMonitor creates a quota monitor.
//
// warnPct is the warning threshold as a percentage of the ceiling
// (e.g. 90); initialUsage is the committed byte count loaded from the
// progress store.
func NewMonitor(ceiling int64, warnPct int, initialUsage int64) *Monitor {
	if warnPct <= 0 || warnPct > 100 {
		warnPct = 90
	}
	return &Monitor{
		ceiling:  ceiling,
		usage:    initialUsage,
		warnFrac: float64(warnPct) / 100,
	}
}

// CurrentUsage returns the committed byte count.
func (m *Monitor) CurrentUsage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

// Ceiling returns the configured maximum.
func (m *Monitor) Ceiling() int64 {
	return m.ceiling
}

// WouldExceed reports whether committing additional bytes would push
// usage past the ceiling.
func (m *Monitor) WouldExceed(additional int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage+additional > m.ceiling
}

// RecordUsage adds committed bytes unconditionally. Used when the
// caller has already made the commit decision (e.g. re-seeding).
func (m *Monitor) RecordUsage(bytes int64) {
	m.mu.Lock()
	m.usage += bytes
	m.mu.Unlock()
}

// CommitUsage atomically checks the ceiling and records the bytes when
// they fit. The check and the commit are one decision: false means the
// bytes were not recorded and the bundle must not be committed.
func (m *Monitor) CommitUsage(bytes int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usage+bytes > m.ceiling {
		return false
	}
	m.usage += bytes
	return true
}

// CurrentState returns ok, warning (past the warn threshold) or
// exhausted (at or past the ceiling).
func (m *Monitor) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.usage >= m.ceiling:
		return StateExhausted
	case float64(m.usage) >= m.warnFrac*float64(m.ceiling):
		return StateWarning
	default:
		return StateOK
	}
}

// Remaining returns how many bytes can still be committed.
func (m *Monitor) Remaining() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usage >= m.ceiling {
		return 0
	}
	return m.ceiling - m.usage
}

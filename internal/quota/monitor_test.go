package quota

import (
	"sync"
	"testing"
)

func TestMonitor_States(t *testing.T) {
	tests := []struct {
		name    string
		ceiling int64
		warnPct int
		usage   int64
		want    State
	}{
		{"fresh", 1000, 90, 0, StateOK},
		{"under threshold", 1000, 90, 899, StateOK},
		{"at threshold", 1000, 90, 900, StateWarning},
		{"at ceiling", 1000, 90, 1000, StateExhausted},
		{"past ceiling", 1000, 90, 1500, StateExhausted},
		{"bad warn pct falls back to 90", 1000, 0, 950, StateWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(tt.ceiling, tt.warnPct, tt.usage)
			if got := m.CurrentState(); got != tt.want {
				t.Errorf("CurrentState() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMonitor_CommitUsage(t *testing.T) {
	m := NewMonitor(1000, 90, 600)

	if !m.CommitUsage(400) {
		t.Fatal("CommitUsage(400) = false, want true (fits exactly)")
	}
	if m.CommitUsage(1) {
		t.Error("CommitUsage past ceiling should fail")
	}
	if m.CurrentUsage() != 1000 {
		t.Errorf("CurrentUsage() = %d, want 1000", m.CurrentUsage())
	}
	if m.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", m.Remaining())
	}
}

func TestMonitor_WouldExceed(t *testing.T) {
	m := NewMonitor(3<<30, 90, 1<<30+1<<29) // 1.5 GiB of 3 GiB

	if m.WouldExceed(1 << 30) {
		t.Error("1 GiB more should fit")
	}
	if !m.WouldExceed(2 << 30) {
		t.Error("2 GiB more should exceed")
	}
}

func TestMonitor_ConcurrentCommitNeverExceeds(t *testing.T) {
	m := NewMonitor(1000, 90, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.CommitUsage(100)
		}()
	}
	wg.Wait()

	if got := m.CurrentUsage(); got > 1000 {
		t.Errorf("usage %d exceeds ceiling under concurrent commits", got)
	}
	if got := m.CurrentUsage(); got != 1000 {
		t.Errorf("usage = %d, want exactly 1000", got)
	}
}

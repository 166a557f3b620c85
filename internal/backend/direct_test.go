package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mediaforge/media-archiver/internal/domain"
)

func TestDirect_Fetch(t *testing.T) {
	body := []byte("0123456789abcdef")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("User-Agent = %q, want test-agent", got)
		}
		w.Write(body)
	}))
	defer srv.Close()

	d := NewDirect(10*time.Second, "test-agent", zap.NewNop())
	dest := filepath.Join(t.TempDir(), "asset.mp4")

	written, err := d.Fetch(context.Background(), srv.URL, dest)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if written != int64(len(body)) {
		t.Errorf("written = %d, want %d", written, len(body))
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(got) != string(body) {
		t.Error("destination content mismatch")
	}

	// The temp file must not survive a successful fetch.
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error(".part file left behind")
	}
}

func TestDirect_StatusMapping(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{"server error is transient", http.StatusInternalServerError, true},
		{"too many requests is transient", http.StatusTooManyRequests, true},
		{"not found is permanent", http.StatusNotFound, false},
		{"forbidden is permanent", http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			d := NewDirect(5*time.Second, "", zap.NewNop())
			dest := filepath.Join(t.TempDir(), "asset.mp4")

			_, err := d.Fetch(context.Background(), srv.URL, dest)
			if err == nil {
				t.Fatal("Fetch() error = nil, want error")
			}
			if got := domain.IsTransient(err); got != tt.wantTransient {
				t.Errorf("IsTransient = %v, want %v (err: %v)", got, tt.wantTransient, err)
			}
			if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
				t.Error("destination file created despite failed fetch")
			}
		})
	}
}

func TestDirect_ConnectionRefusedIsTransient(t *testing.T) {
	// Grab a port that nothing listens on.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := NewDirect(2*time.Second, "", zap.NewNop())
	dest := filepath.Join(t.TempDir(), "asset.mp4")

	_, err := d.Fetch(context.Background(), url, dest)
	if err == nil {
		t.Fatal("Fetch() to closed port succeeded")
	}
	if !domain.IsTransient(err) {
		t.Errorf("connection failure should be transient, got %v", err)
	}
}

func TestHybrid_FallsBackToDirect(t *testing.T) {
	body := []byte("direct-body")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	// Accelerator points at a tool that does not exist.
	accel := NewAccelerator(filepath.Join(t.TempDir(), "missing-tool"), time.Second, zap.NewNop())
	direct := NewDirect(5*time.Second, "", zap.NewNop())
	h := NewHybrid(accel, direct, zap.NewNop())

	dest := filepath.Join(t.TempDir(), "asset.mp4")
	written, err := h.Fetch(context.Background(), srv.URL, dest)
	if err != nil {
		t.Fatalf("hybrid Fetch() error = %v", err)
	}
	if written != int64(len(body)) {
		t.Errorf("written = %d, want %d", written, len(body))
	}
}

func TestHybrid_DoesNotFallBackOnCancel(t *testing.T) {
	accel := NewAccelerator(filepath.Join(t.TempDir(), "missing-tool"), time.Second, zap.NewNop())

	directCalled := false
	direct := fetchFunc(func(ctx context.Context, url, dest string) (int64, error) {
		directCalled = true
		return 0, nil
	})
	h := NewHybrid(accel, direct, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.Fetch(ctx, "http://example.invalid/x", "/tmp/x"); err == nil {
		t.Fatal("Fetch() on cancelled context succeeded")
	}
	if directCalled {
		t.Error("hybrid fell back to direct after cancellation")
	}
}

func TestAccelerator_MissingToolIsUnavailable(t *testing.T) {
	a := NewAccelerator(filepath.Join(t.TempDir(), "no-such-tool"), time.Second, zap.NewNop())

	_, err := a.Fetch(context.Background(), "http://example.invalid/v.mp4", filepath.Join(t.TempDir(), "v.mp4"))
	if err == nil {
		t.Fatal("Fetch() with missing tool succeeded")
	}
	if !domain.IsTransient(err) {
		t.Errorf("missing tool should map to a transient error, got %v", err)
	}
}

// fetchFunc adapts a function to the Backend interface.
type fetchFunc func(ctx context.Context, url, dest string) (int64, error)

func (f fetchFunc) Fetch(ctx context.Context, url, dest string) (int64, error) {
	return f(ctx, url, dest)
}

func (f fetchFunc) Name() string { return "fake" }

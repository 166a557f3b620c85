package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mediaforge/media-archiver/internal/domain"
)

// How long to poll for the output file after the tool exits; some
// accelerators detach and finish the transfer asynchronously.
const acceleratorSettle = 30 * time.Second

// Accelerator delegates transfers to an out-of-process download tool
// through a fixed command contract: URL, destination directory,
// filename. The tool is opaque: success is inferred from the exit
// status and the presence of the destination file, never from parsing
// its output.
type Accelerator struct {
	path    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewAccelerator creates an accelerator backend invoking the tool at
// path with the given overall timeout.
func NewAccelerator(path string, timeout time.Duration, logger *zap.Logger) *Accelerator {
	return &Accelerator{path: path, timeout: timeout, logger: logger}
}

// Name returns the variant name.
func (a *Accelerator) Name() string { return "accelerator" }

// Fetch invokes the tool for url and waits for destPath to appear.
// Tool absence and non-zero exits are transient: the tool may be
// temporarily unavailable and the hybrid backend falls back on them.
func (a *Accelerator) Fetch(ctx context.Context, url, destPath string) (int64, error) {
	if _, err := os.Stat(a.path); err != nil {
		return 0, fmt.Errorf("%w: %s", domain.ErrBackendUnavailable, a.path)
	}

	runCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	destDir := filepath.Dir(destPath)
	filename := filepath.Base(destPath)

	cmd := exec.CommandContext(runCtx, a.path,
		"/d", url,
		"/p", destDir,
		"/f", filename,
		"/n", "/q",
	)

	a.logger.Debug("invoking accelerator",
		zap.String("tool", a.path),
		zap.String("url", url),
		zap.String("dest", destPath))

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return 0, domain.Transient(fmt.Errorf("accelerator timed out: %w", runCtx.Err()))
		}
		return 0, domain.Transient(fmt.Errorf("accelerator exited: %w", err))
	}

	return a.awaitOutput(ctx, destPath)
}

// awaitOutput polls for the destination file, since the tool may
// return before the transfer completes. The file counts as done once
// it exists non-empty and its size stops growing.
func (a *Accelerator) awaitOutput(ctx context.Context, destPath string) (int64, error) {
	deadline := time.Now().Add(acceleratorSettle)
	var lastSize int64 = -1

	for {
		fi, err := os.Stat(destPath)
		if err == nil && fi.Size() > 0 && fi.Size() == lastSize {
			return fi.Size(), nil
		}
		if err == nil {
			lastSize = fi.Size()
		}

		if time.Now().After(deadline) {
			if err == nil && fi.Size() > 0 {
				return fi.Size(), nil
			}
			return 0, domain.Transient(fmt.Errorf("accelerator produced no output at %s", destPath))
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

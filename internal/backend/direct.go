package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mediaforge/media-archiver/internal/domain"
)

// connection-level retries inside one Fetch, distinct from the
// orchestrator's item-level retry budget.
const directConnectRetries = 2

// Direct performs transfers itself over HTTP, writing to a temp file
// next to the destination and renaming into place on success.
type Direct struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewDirect creates a direct HTTP backend with the given per-request
// timeout and User-Agent header.
func NewDirect(timeout time.Duration, userAgent string, logger *zap.Logger) *Direct {
	return &Direct{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Name returns the variant name.
func (d *Direct) Name() string { return "direct" }

// Fetch downloads url to destPath. Low-level I/O failures are retried
// once before the error is surfaced as transient.
func (d *Direct) Fetch(ctx context.Context, url, destPath string) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= directConnectRetries; attempt++ {
		if attempt > 0 {
			d.logger.Debug("retrying connection",
				zap.String("url", url),
				zap.Int("connect_attempt", attempt))
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		written, err := d.fetchOnce(ctx, url, destPath)
		if err == nil {
			return written, nil
		}
		lastErr = err

		// Only connection-level failures are worth an immediate
		// in-call retry; HTTP status errors and context cancellation
		// go straight to the caller.
		if !retryableIO(err) || ctx.Err() != nil {
			return 0, err
		}
	}
	return 0, lastErr
}

func (d *Direct) fetchOnce(ctx context.Context, url, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	req.Header.Set("Accept", "*/*")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, domain.Transient(fmt.Errorf("request %s: %w", url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
		if transientStatus(resp.StatusCode) {
			return 0, domain.Transient(err)
		}
		return 0, err
	}

	tempPath := destPath + ".part"
	f, err := os.Create(tempPath)
	if err != nil {
		return 0, domain.FSError("create", tempPath, err)
	}

	written, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tempPath)
		return 0, domain.Transient(fmt.Errorf("transfer %s: %w", url, err))
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		os.Remove(tempPath)
		return 0, domain.FSError("rename", destPath, err)
	}
	return written, nil
}

// transientStatus reports whether an HTTP status is worth retrying.
func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

// retryableIO reports whether err looks like a connection-level
// failure rather than an HTTP-level or filesystem one.
func retryableIO(err error) bool {
	if domain.IsFilesystem(err) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return domain.IsTransient(err) && !errors.Is(err, context.Canceled)
}

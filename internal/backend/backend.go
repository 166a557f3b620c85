package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mediaforge/media-archiver/internal/config"
)

// Backend fetches a remote URL to a local destination path. Variants
// differ only in transport; callers treat them uniformly and apply
// their own item-level retry policy on top.
type Backend interface {
	// Fetch downloads url to destPath and returns the bytes written.
	// Transient transport failures are wrapped so the caller can
	// distinguish them from permanent ones.
	Fetch(ctx context.Context, url, destPath string) (int64, error)

	// Name returns the variant name for logging.
	Name() string
}

// Select resolves the configured backend variant once per run.
func Select(cfg *config.DownloadConfig, logger *zap.Logger) (Backend, error) {
	direct := NewDirect(cfg.GetRequestTimeout(), cfg.UserAgent, logger)

	switch cfg.Backend {
	case config.BackendDirect:
		return direct, nil
	case config.BackendAccelerator:
		return NewAccelerator(cfg.AcceleratorPath, cfg.GetRequestTimeout(), logger), nil
	case config.BackendHybrid:
		accel := NewAccelerator(cfg.AcceleratorPath, cfg.GetRequestTimeout(), logger)
		return NewHybrid(accel, direct, logger), nil
	default:
		return nil, fmt.Errorf("unknown download backend: %s", cfg.Backend)
	}
}

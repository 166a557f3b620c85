package backend

import (
	"context"

	"go.uber.org/zap"
)

// Hybrid tries the accelerator first and falls back to direct
// transport on any accelerator failure. The fallback happens inside
// one logical attempt and does not consume an item-level retry.
type Hybrid struct {
	accel  Backend
	direct Backend
	logger *zap.Logger
}

// NewHybrid composes the accelerator and direct backends.
func NewHybrid(accel, direct Backend, logger *zap.Logger) *Hybrid {
	return &Hybrid{accel: accel, direct: direct, logger: logger}
}

// Name returns the variant name.
func (h *Hybrid) Name() string { return "hybrid" }

// Fetch delegates to the accelerator, then to direct on failure.
func (h *Hybrid) Fetch(ctx context.Context, url, destPath string) (int64, error) {
	written, err := h.accel.Fetch(ctx, url, destPath)
	if err == nil {
		return written, nil
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	h.logger.Warn("accelerator failed, falling back to direct",
		zap.String("url", url),
		zap.Error(err))

	return h.direct.Fetch(ctx, url, destPath)
}

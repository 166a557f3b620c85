package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mediaforge/media-archiver/internal/backend"
	"github.com/mediaforge/media-archiver/internal/domain"
	"github.com/mediaforge/media-archiver/internal/port"
	"github.com/mediaforge/media-archiver/internal/validate"
)

// Bundle file suffixes, keyed off the item identifier.
const (
	suffixPrimary  = ".mp4"
	suffixCover    = ".jpg"
	suffixMetadata = ".json"
)

// Committer runs the staged commit protocol for one item: download
// into staging, validate, write metadata, then promote the complete
// bundle in one step. An external reader never sees a partially
// populated bundle directory.
type Committer struct {
	fs        port.BundleFS
	transport backend.Backend
	validator *validate.Validator
	logger    *zap.Logger
}

// NewCommitter wires the commit protocol over a bundle filesystem,
// a download backend and a validator.
func NewCommitter(fs port.BundleFS, transport backend.Backend, validator *validate.Validator, logger *zap.Logger) *Committer {
	return &Committer{fs: fs, transport: transport, validator: validator, logger: logger}
}

// Stage downloads and validates the item's assets into the staging
// area and writes the metadata record. Returns the staged byte total,
// which the quota gate checks before promotion. Staging remains on
// disk on error so the caller decides between retry and discard.
func (c *Committer) Stage(ctx context.Context, item domain.WorkItem) (int64, error) {
	var total int64

	n, err := c.stageAsset(ctx, item.ID, item.PrimaryURL, suffixPrimary, domain.RolePrimary)
	if err != nil {
		return 0, err
	}
	total += n

	n, err = c.stageAsset(ctx, item.ID, item.CoverURL, suffixCover, domain.RoleCover)
	if err != nil {
		return 0, err
	}
	total += n

	if err := c.fs.WriteMetadata(item.ID, item.Metadata); err != nil {
		return 0, err
	}
	return total, nil
}

func (c *Committer) stageAsset(ctx context.Context, itemID, url, suffix string, role domain.AssetRole) (int64, error) {
	dest, err := c.fs.StagingPath(itemID, itemID+suffix)
	if err != nil {
		return 0, err
	}

	written, err := c.transport.Fetch(ctx, url, dest)
	if err != nil {
		return 0, fmt.Errorf("fetch %s asset: %w", role, err)
	}

	result := c.validator.CheckFile(dest, role)
	if err := validate.Errorf(role, result); err != nil {
		return 0, err
	}

	c.logger.Debug("asset staged",
		zap.String("item_id", itemID),
		zap.String("role", string(role)),
		zap.Int64("bytes", written))
	return result.Size, nil
}

// Promote moves the staged bundle into its final directory and
// returns the bundle's on-disk size. A failure partway leaves no
// half-populated target: the bundle directory is removed before the
// error is returned.
func (c *Committer) Promote(item domain.WorkItem) (int64, error) {
	if err := c.fs.PromoteBundle(item.ID); err != nil {
		c.Discard(item)
		return 0, err
	}

	info, err := c.fs.InspectBundle(item.ID)
	if err != nil {
		c.Discard(item)
		return 0, err
	}
	// Committed must mean exactly what CleanupIncomplete checks for:
	// all three files present. Anything less is rolled back.
	if !info.Complete() {
		c.Discard(item)
		return 0, domain.FSError("promote", c.fs.BundleDir(item.ID),
			fmt.Errorf("bundle incomplete after promotion"))
	}
	return info.TotalBytes, nil
}

// Discard removes the item's staging directory and any bundle
// directory it may have, best effort. Used on permanent failure and
// on partial-commit rollback.
func (c *Committer) Discard(item domain.WorkItem) {
	if err := c.fs.RemoveStaging(item.ID); err != nil {
		c.logger.Warn("failed to remove staging",
			zap.String("item_id", item.ID), zap.Error(err))
	}
	if err := c.fs.RemoveBundle(item.ID); err != nil {
		c.logger.Warn("failed to remove bundle",
			zap.String("item_id", item.ID), zap.Error(err))
	}
}

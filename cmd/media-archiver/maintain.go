package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mediaforge/media-archiver/internal/adapter/filesystem"
	"github.com/mediaforge/media-archiver/internal/domain"
	"github.com/mediaforge/media-archiver/internal/validate"
)

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, log, release, err := setup()
	if err != nil {
		return err
	}
	defer release()

	fs, err := filesystem.NewManager(cfg.Storage.RootDir)
	if err != nil {
		return err
	}
	validator := validate.New(cfg.Validation.Enabled, cfg.Validation.MinVideoBytes, cfg.Validation.MinCoverBytes)

	bundles, err := fs.ScanBundles()
	if err != nil {
		return err
	}

	var complete, incomplete, invalid int
	var totalBytes int64
	for _, b := range bundles {
		totalBytes += b.TotalBytes
		if !b.Complete() {
			incomplete++
			log.Warn("incomplete bundle",
				zap.String("id", b.ID),
				zap.Bool("primary", b.HasPrimary),
				zap.Bool("cover", b.HasCover),
				zap.Bool("metadata", b.HasMetadata))
			continue
		}

		primary := filepath.Join(b.Dir, b.ID+filesystem.PrimarySuffix)
		if result := validator.CheckFile(primary, domain.RolePrimary); !result.OK {
			invalid++
			log.Warn("invalid bundle",
				zap.String("id", b.ID),
				zap.String("reason", string(result.Reason)))
			continue
		}
		complete++
	}

	log.Info("validation scan done",
		zap.Int("bundles", len(bundles)),
		zap.Int("complete", complete),
		zap.Int("incomplete", incomplete),
		zap.Int("invalid", invalid),
		zap.String("total_size", humanize.Bytes(uint64(totalBytes))))

	fmt.Printf("%d bundles: %d complete, %d incomplete, %d invalid (%s)\n",
		len(bundles), complete, incomplete, invalid, humanize.Bytes(uint64(totalBytes)))
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, log, release, err := setup()
	if err != nil {
		return err
	}
	defer release()

	fs, err := filesystem.NewManager(cfg.Storage.RootDir)
	if err != nil {
		return err
	}

	removed, freed, err := fs.CleanupIncomplete()
	if err != nil {
		return err
	}

	log.Info("cleanup done",
		zap.Int("removed", removed),
		zap.String("freed", humanize.Bytes(uint64(freed))))
	fmt.Printf("removed %d directories, freed %s\n", removed, humanize.Bytes(uint64(freed)))
	return nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mediaforge/media-archiver/internal/config"
	"github.com/mediaforge/media-archiver/internal/domain"
	"github.com/mediaforge/media-archiver/internal/logger"
)

// Process exit codes.
const (
	exitOK           = 0
	exitFatal        = 1
	exitQuotaStopped = 3
)

// errQuotaStopped marks the controlled quota-stop outcome so main can
// map it to its dedicated exit code.
var errQuotaStopped = fmt.Errorf("run stopped: %w", domain.ErrQuotaExceeded)

var (
	cfgPath string

	flagBatches       int
	flagPagesPerBatch int
	flagStartPage     int
	flagRetryFailed   bool
)

func main() {
	os.Exit(execute())
}

func execute() int {
	root := &cobra.Command{
		Use:           "media-archiver",
		Short:         "Resumable, quota-bounded media bundle archiver",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to config file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Download and commit bundles from the source feed",
		RunE:  runRun,
	}
	runCmd.Flags().IntVar(&flagBatches, "batches", 1, "number of batches to process")
	runCmd.Flags().IntVar(&flagPagesPerBatch, "pages-per-batch", 1, "feed pages per batch")
	runCmd.Flags().IntVar(&flagStartPage, "start-page", 1, "page to start the descending traversal from on a first run")
	runCmd.Flags().BoolVar(&flagRetryFailed, "retry-failed", false, "re-offer permanently failed identifiers")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Re-validate every bundle under the storage root",
		RunE:  runValidate,
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove incomplete bundle directories and stale staging",
		RunE:  runCleanup,
	}

	root.AddCommand(runCmd, validateCmd, cleanupCmd)

	if err := root.Execute(); err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			fmt.Fprintln(os.Stderr, err)
			return exitQuotaStopped
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFatal
	}
	return exitOK
}

// setup loads config, builds the logger and takes the single-instance
// lock on the storage root. The returned release function drops the
// lock and flushes the logger.
func setup() (*config.Config, *zap.Logger, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := os.MkdirAll(cfg.Storage.RootDir, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("create storage root: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Storage.RootDir, "archiver.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return nil, nil, nil, fmt.Errorf("another archiver instance holds %s", lock.Path())
	}

	release := func() {
		lock.Unlock()
		log.Sync()
	}
	return cfg, log, release, nil
}

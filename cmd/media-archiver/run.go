package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mediaforge/media-archiver/internal/adapter/filesystem"
	"github.com/mediaforge/media-archiver/internal/adapter/sqlite"
	"github.com/mediaforge/media-archiver/internal/backend"
	"github.com/mediaforge/media-archiver/internal/config"
	"github.com/mediaforge/media-archiver/internal/domain"
	"github.com/mediaforge/media-archiver/internal/feed"
	"github.com/mediaforge/media-archiver/internal/orchestrator"
	"github.com/mediaforge/media-archiver/internal/quota"
	"github.com/mediaforge/media-archiver/internal/validate"
)

func runRun(cmd *cobra.Command, args []string) error {
	cfg, log, release, err := setup()
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer store.Close()

	fs, err := filesystem.NewManager(cfg.Storage.RootDir)
	if err != nil {
		return err
	}

	state, err := store.Load()
	if err != nil {
		return err
	}

	if flagRetryFailed && len(state.Failed) > 0 {
		ids := make([]string, 0, len(state.Failed))
		for id := range state.Failed {
			ids = append(ids, id)
		}
		n, err := store.ResetFailed(ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			delete(state.Failed, id)
		}
		log.Info("failed identifiers re-offered", zap.Int("count", n))
	}

	transport, err := backend.Select(&cfg.Download, log)
	if err != nil {
		return err
	}

	monitor := quota.NewMonitor(cfg.Storage.MaxSizeBytes(), cfg.Storage.WarnThresholdPct, state.CumulativeBytes)
	validator := validate.New(cfg.Validation.Enabled, cfg.Validation.MinVideoBytes, cfg.Validation.MinCoverBytes)
	committer := orchestrator.NewCommitter(fs, transport, validator, log)

	orch := orchestrator.New(store, store, committer, monitor, orchestrator.Options{
		Workers: cfg.Download.ParallelDownloads,
		TransportPolicy: domain.RetryPolicy{
			MaxAttempts: cfg.Download.MaxRetries,
			BaseDelay:   cfg.Download.GetRetryBaseDelay(),
			MaxDelay:    5 * time.Minute,
			Jitter:      true,
		},
		ValidationRetries: cfg.Download.ValidationRetries,
		RequestDelay:      cfg.Download.GetRequestDelay(),
	}, log)

	log.Info("run starting",
		zap.String("backend", transport.Name()),
		zap.Int("workers", cfg.Download.ParallelDownloads),
		zap.String("quota", humanize.Bytes(uint64(cfg.Storage.MaxSizeBytes()))),
		zap.String("used", humanize.Bytes(uint64(state.CumulativeBytes))))

	total := &orchestrator.Summary{Reasons: make(map[string]int)}

	for b := 0; b < flagBatches; b++ {
		batch, fresh, err := nextBatch(ctx, cfg, store, state, log)
		if err != nil {
			return err
		}
		if batch == nil {
			log.Info("feed traversal complete")
			break
		}
		if fresh {
			if err := store.SaveBatch(batch); err != nil {
				return err
			}
		}

		summary, err := orch.ProcessBatch(ctx, batch)
		if summary != nil {
			accumulate(total, summary)
		}
		if err != nil {
			return err
		}
		if summary.QuotaStopped {
			log.Warn("run summary", zap.String("totals", total.String()))
			return errQuotaStopped
		}
		if ctx.Err() != nil {
			log.Info("interrupted, state checkpointed")
			break
		}

		// Re-derive resume state for the next batch.
		state, err = store.Load()
		if err != nil {
			return err
		}
	}

	log.Info("run summary", zap.String("totals", total.String()))
	return nil
}

// nextBatch replays an unfinished batch when one exists, otherwise
// builds and returns a fresh one from the feed. Returns a nil batch
// when the descending traversal has passed page 1.
func nextBatch(ctx context.Context, cfg *config.Config, store *sqlite.Store, state *domain.ProgressState, log *zap.Logger) (*domain.ManifestBatch, bool, error) {
	unfinished, err := store.UnfinishedBatch()
	if err != nil {
		return nil, false, err
	}
	if unfinished != nil {
		log.Info("replaying unfinished batch",
			zap.Int64("batch_id", unfinished.BatchID),
			zap.Ints("pages", unfinished.Pages))
		return unfinished, false, nil
	}

	startPage := state.NextPage(flagStartPage)
	pages := feed.PagePlan(startPage, flagPagesPerBatch)
	if len(pages) == 0 {
		return nil, false, nil
	}

	src := feed.NewDirectoryFeed(cfg.Feed.Dir)
	batch, skipped, err := feed.BuildBatch(ctx, src, state, pages, flagRetryFailed)
	if err != nil {
		return nil, false, err
	}
	log.Info("batch built",
		zap.String("run_id", batch.RunID),
		zap.Ints("pages", pages),
		zap.Int("items", len(batch.Items)),
		zap.Int("already_settled", skipped))
	return batch, true, nil
}

func accumulate(total, s *orchestrator.Summary) {
	total.Committed += s.Committed
	total.Failed += s.Failed
	total.Skipped += s.Skipped
	total.BytesAdded += s.BytesAdded
	total.QuotaStopped = total.QuotaStopped || s.QuotaStopped
	for r, n := range s.Reasons {
		total.Reasons[r] += n
	}
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mediaforge/media-archiver/internal/domain"
	"github.com/mediaforge/media-archiver/internal/port"
	"github.com/mediaforge/media-archiver/internal/quota"
	"github.com/mediaforge/media-archiver/internal/util/ratelimiter"
)

// After this many consecutive filesystem failures the storage volume
// is presumed bad and the run aborts.
const maxConsecutiveFSFailures = 3

// Options configures the orchestrator's concurrency and retry budgets.
type Options struct {
	// Workers is the number of concurrent downloads.
	Workers int

	// TransportPolicy bounds transient transport retries.
	TransportPolicy domain.RetryPolicy

	// ValidationRetries is how many times a failed validation is
	// re-downloaded before the item fails permanently.
	ValidationRetries int

	// RequestDelay spaces out dispatches to the remote host.
	RequestDelay time.Duration
}

// Orchestrator drains manifest batches through a bounded worker pool,
// applying the quota gate, retry budgets and the staged commit
// protocol, and checkpointing every terminal item durably.
type Orchestrator struct {
	manifest  port.ManifestStore
	progress  port.ProgressStore
	committer *Committer
	monitor   *quota.Monitor
	limiter   *ratelimiter.Limiter
	opts      Options
	logger    *zap.Logger
}

// New creates an orchestrator.
func New(manifest port.ManifestStore, progress port.ProgressStore, committer *Committer, monitor *quota.Monitor, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.TransportPolicy.MaxAttempts < 1 {
		opts.TransportPolicy = domain.DefaultRetryPolicy()
	}
	return &Orchestrator{
		manifest:  manifest,
		progress:  progress,
		committer: committer,
		monitor:   monitor,
		limiter:   ratelimiter.New(opts.RequestDelay),
		opts:      opts,
		logger:    logger,
	}
}

// batchRun holds the mutable state of one ProcessBatch call.
type batchRun struct {
	o     *Orchestrator
	batch *domain.ManifestBatch
	stats *collector

	mu            sync.Mutex
	inflight      map[string]struct{}
	terminal      map[string]bool
	consecutiveFS int
	fatal         error
}

// ProcessBatch drains the batch's pending items to a terminal state.
// It returns the run summary and, when the run had to abort (storage
// volume failing, progress store unwritable), the fatal error.
// Quota exhaustion is not an error: dispatch stops, in-flight items
// finish and the summary reports QuotaStopped.
func (o *Orchestrator) ProcessBatch(ctx context.Context, batch *domain.ManifestBatch) (*Summary, error) {
	pending, err := o.manifest.PendingItems(batch.BatchID)
	if err != nil {
		return nil, fmt.Errorf("load pending items: %w", err)
	}

	r := &batchRun{
		o:        o,
		batch:    batch,
		stats:    newCollector(),
		inflight: make(map[string]struct{}),
		terminal: make(map[string]bool),
	}
	for _, it := range batch.Items {
		if it.Terminal() {
			r.terminal[it.Item.ID] = true
		}
	}

	// A crash between the progress checkpoint and the manifest mark
	// leaves a committed identifier pending in the manifest. Settle
	// those without re-downloading.
	state, err := o.progress.Load()
	if err != nil {
		return nil, err
	}
	work := pending[:0]
	for _, it := range pending {
		if state.IsCommitted(it.Item.ID) {
			if err := o.manifest.MarkItemStatus(batch.BatchID, it.Item.ID, domain.ItemStatusCommitted, ""); err != nil {
				return nil, fmt.Errorf("reconcile item %s: %w", it.Item.ID, err)
			}
			r.terminal[it.Item.ID] = true
			o.logger.Info("reconciled previously committed item",
				zap.String("item_id", it.Item.ID))
			continue
		}
		work = append(work, it)
	}
	pending = work

	o.logger.Info("processing batch",
		zap.Int64("batch_id", batch.BatchID),
		zap.String("run_id", batch.RunID),
		zap.Ints("pages", batch.Pages),
		zap.Int("pending", len(pending)),
		zap.Int("workers", o.opts.Workers))

	itemCh := make(chan domain.ManifestItem)
	var wg sync.WaitGroup
	for i := 0; i < o.opts.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for it := range itemCh {
				r.process(ctx, worker, it)
			}
		}(i)
	}

dispatch:
	for _, it := range pending {
		if r.fatalErr() != nil || ctx.Err() != nil {
			break
		}
		if r.stats.isQuotaStopped() {
			break
		}
		if o.monitor.CurrentState() == quota.StateExhausted {
			o.logger.Warn("quota exhausted, stopping dispatch",
				zap.Int64("usage", o.monitor.CurrentUsage()),
				zap.Int64("ceiling", o.monitor.Ceiling()))
			r.stats.markQuotaStopped()
			break
		}
		if err := o.limiter.Wait(ctx); err != nil {
			break
		}
		select {
		case itemCh <- it:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(itemCh)
	wg.Wait()

	// Items that never reached a terminal state stay pending for the
	// next run.
	left := 0
	for _, it := range pending {
		if !r.isTerminal(it.Item.ID) {
			left++
		}
	}
	r.stats.addSkipped(left)

	if r.fatalErr() == nil {
		if err := o.advanceCursor(batch, r); err != nil {
			r.setFatal(err)
		}
	}

	summary := r.stats.snapshot()
	o.logger.Info("batch done", zap.String("summary", summary.String()))
	return summary, r.fatalErr()
}

// advanceCursor moves the durable page cursor past every page whose
// items are all terminal, in traversal order. The first page with a
// non-terminal item stops the advance: a later fully-drained page must
// not leapfrog it.
func (o *Orchestrator) advanceCursor(batch *domain.ManifestBatch, r *batchRun) error {
	for _, page := range batch.Pages {
		done := true
		for _, it := range batch.PageItems(page) {
			if !r.isTerminal(it.Item.ID) {
				done = false
				break
			}
		}
		if !done {
			return nil
		}
		if err := o.progress.AdvancePageCursor(page); err != nil {
			return fmt.Errorf("advance page cursor: %w", err)
		}
		o.logger.Debug("page complete", zap.Int("page", page))
	}
	return nil
}

// process drives one item to a terminal state, or leaves it pending on
// cancellation and quota exhaustion.
func (r *batchRun) process(ctx context.Context, worker int, mi domain.ManifestItem) {
	item := mi.Item
	if !r.acquire(item.ID) {
		// Another worker already holds this identifier.
		return
	}
	defer r.release(item.ID)

	if r.fatalErr() != nil || ctx.Err() != nil {
		return
	}

	o := r.o
	log := o.logger.With(
		zap.Int("worker", worker),
		zap.String("item_id", item.ID),
		zap.Int("page", item.Page))

	attempt := domain.NewAttempt(item.ID, o.committer.transport.Name())

	for {
		attempt.Transition(domain.AttemptDownloading)
		err := r.tryCommit(ctx, item, attempt, log)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			// Leave the item pending; the next run re-offers it.
			log.Info("cancelled mid-item, leaving pending")
			return
		}
		if err == errItemSettled {
			return
		}

		if domain.IsFilesystem(err) {
			log.Error("filesystem failure", zap.Error(err))
			r.permanentFail(item, "filesystem-error", attempt, log)
			r.noteFSFailure(err)
			return
		}

		if ve, ok := domain.IsValidation(err); ok {
			attempt.ValidationAttempts++
			attempt.LastError = ve.Error()
			if attempt.ValidationAttempts > o.opts.ValidationRetries {
				r.permanentFail(item, string(ve.Result.Reason), attempt, log)
				return
			}
			log.Warn("validation failed, re-downloading",
				zap.String("reason", string(ve.Result.Reason)),
				zap.Int("validation_attempt", attempt.ValidationAttempts))
			o.committer.Discard(item)
			if !r.backoff(ctx, attempt, attempt.ValidationAttempts) {
				return
			}
			continue
		}

		if domain.IsTransient(err) {
			attempt.TransportAttempts++
			attempt.LastError = err.Error()
			if o.opts.TransportPolicy.Exhausted(attempt.TransportAttempts) {
				log.Warn("retry budget exhausted", zap.Error(err))
				r.permanentFail(item, "transport-error", attempt, log)
				return
			}
			log.Warn("transient failure, will retry",
				zap.Error(err),
				zap.Int("attempt", attempt.TransportAttempts))
			if !r.backoff(ctx, attempt, attempt.TransportAttempts) {
				return
			}
			continue
		}

		// Permanent transport error (4xx other than the retryable set).
		log.Warn("permanent transport failure", zap.Error(err))
		attempt.TransportAttempts++
		attempt.LastError = err.Error()
		r.permanentFail(item, "permanent-transport-error", attempt, log)
		return
	}
}

// errItemSettled is an internal marker: the item's outcome is already
// decided (left pending on quota stop, or the run went fatal) and the
// retry loop must not classify it further.
var errItemSettled = errors.New("item settled")

// tryCommit runs one full stage-gate-promote-record cycle.
func (r *batchRun) tryCommit(ctx context.Context, item domain.WorkItem, attempt *domain.DownloadAttempt, log *zap.Logger) error {
	o := r.o

	staged, err := o.committer.Stage(ctx, item)
	if err != nil {
		return err
	}

	attempt.Transition(domain.AttemptValidating)

	// The dispatch gate only sees usage before the download; the
	// measured size decides for real, atomically against concurrent
	// committers.
	if !o.monitor.CommitUsage(staged) {
		log.Warn("bundle does not fit remaining quota, leaving pending",
			zap.Int64("staged_bytes", staged),
			zap.Int64("remaining", o.monitor.Remaining()))
		o.committer.Discard(item)
		r.stats.markQuotaStopped()
		return errItemSettled
	}

	bundleBytes, err := o.committer.Promote(item)
	if err != nil {
		o.monitor.RecordUsage(-staged)
		return err
	}
	// True up the reservation with the metadata file's size.
	o.monitor.RecordUsage(bundleBytes - staged)

	// The progress checkpoint goes first: a crash before the manifest
	// mark re-offers the item, and replaying RecordCommit is a no-op.
	// The reverse order would strand a committed bundle the progress
	// store has never heard of.
	if err := o.progress.RecordCommit(item.ID, item.Page, bundleBytes); err != nil {
		r.setFatal(err)
		return errItemSettled
	}
	if err := o.manifest.MarkItemStatus(r.batch.BatchID, item.ID, domain.ItemStatusCommitted, ""); err != nil {
		r.setFatal(fmt.Errorf("mark item committed: %w", err))
		return errItemSettled
	}

	attempt.Transition(domain.AttemptCommitted)
	r.markTerminal(item.ID)
	r.resetFSFailures()
	r.stats.addCommitted(bundleBytes)

	log.Info("bundle committed",
		zap.Int64("bytes", bundleBytes),
		zap.String("quota_state", string(o.monitor.CurrentState())))
	return nil
}

// permanentFail records the item as permanently failed in both the
// manifest and the progress store and removes any partial output.
func (r *batchRun) permanentFail(item domain.WorkItem, reason string, attempt *domain.DownloadAttempt, log *zap.Logger) {
	o := r.o
	o.committer.Discard(item)

	attempts := attempt.TransportAttempts + attempt.ValidationAttempts
	if attempts < 1 {
		attempts = 1
	}

	// Checkpoint first, mirror of the commit path: a crash before the
	// manifest mark re-offers the item and the failure record replays
	// harmlessly.
	if err := o.progress.RecordPermanentFailure(item.ID, item.Page, reason, attempts); err != nil {
		r.setFatal(err)
		return
	}
	if err := o.manifest.MarkItemStatus(r.batch.BatchID, item.ID, domain.ItemStatusFailed, reason); err != nil {
		r.setFatal(fmt.Errorf("mark item failed: %w", err))
		return
	}

	attempt.Transition(domain.AttemptPermanentlyFailed)
	r.markTerminal(item.ID)
	r.stats.addFailed(reason)
	log.Warn("item permanently failed",
		zap.String("reason", reason),
		zap.Int("attempts", attempts))
}

// backoff sleeps for the policy delay. Returns false when the context
// was cancelled during the wait.
func (r *batchRun) backoff(ctx context.Context, attempt *domain.DownloadAttempt, retryNum int) bool {
	attempt.Transition(domain.AttemptRetryWait)
	delay := r.o.opts.TransportPolicy.Backoff(retryNum)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (r *batchRun) acquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.inflight[id]; held {
		return false
	}
	r.inflight[id] = struct{}{}
	return true
}

func (r *batchRun) release(id string) {
	r.mu.Lock()
	delete(r.inflight, id)
	r.mu.Unlock()
}

func (r *batchRun) markTerminal(id string) {
	r.mu.Lock()
	r.terminal[id] = true
	r.mu.Unlock()
}

func (r *batchRun) isTerminal(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminal[id]
}

func (r *batchRun) noteFSFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutiveFS++
	if r.consecutiveFS >= maxConsecutiveFSFailures && r.fatal == nil {
		r.fatal = fmt.Errorf("%d consecutive filesystem failures, storage presumed bad: %w",
			r.consecutiveFS, err)
	}
}

func (r *batchRun) resetFSFailures() {
	r.mu.Lock()
	r.consecutiveFS = 0
	r.mu.Unlock()
}

func (r *batchRun) setFatal(err error) {
	r.mu.Lock()
	if r.fatal == nil {
		r.fatal = err
	}
	r.mu.Unlock()
}

func (r *batchRun) fatalErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"swapstream/internal/ledger"
	"swapstream/internal/model"
	"swapstream/internal/storage"
)

// RunConfig holds runtime settings for the replay pipeline.
type RunConfig struct {
	JournalPath       string
	FromSeq           uint64
	ToSeq             uint64
	BatchSize         int
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner replays journal transactions through the ledger host and writes the
// emitted notifications to storage.
type Runner struct {
	cfg        RunConfig
	host       *ledger.Host
	storage    storage.Storage
	logger     *zap.Logger
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, host *ledger.Host, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		host:       host,
		storage:    storageSink,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the replay loop. Transactions that revert are counted and
// skipped; the journal position still advances past them.
func (r *Runner) Run(ctx context.Context) error {
	if r.host == nil {
		return fmt.Errorf("ledger host is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize <= 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.JournalPath == "" {
		return fmt.Errorf("journal path is required")
	}

	from := r.cfg.FromSeq
	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load()
		if err != nil {
			return err
		}
		if ok && cp.LastProcessedSeq+1 > from {
			from = cp.LastProcessedSeq + 1
			r.logger.Info("resume from checkpoint",
				zap.Uint64("last_processed", cp.LastProcessedSeq),
				zap.Uint64("from", from),
			)
		}
	}

	journal, err := OpenJournal(r.cfg.JournalPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	var (
		pending  []model.EventRecord
		lastSeq  uint64
		applied  int
		reverted int
		skipped  int
	)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := r.putEventsWithRetry(ctx, pending); err != nil {
			return fmt.Errorf("store events: %w", err)
		}
		if r.checkpoint != nil {
			if err := r.checkpoint.Save(lastSeq); err != nil {
				return err
			}
		}
		r.logger.Info("batch complete", zap.Int("events", len(pending)), zap.Uint64("last_seq", lastSeq))
		pending = pending[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tx, err := journal.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if tx.Seq < from {
			skipped++
			continue
		}
		if r.cfg.ToSeq > 0 && tx.Seq > r.cfg.ToSeq {
			break
		}

		events, err := r.host.Execute(tx)
		if err != nil {
			reverted++
			r.logger.Warn("tx reverted",
				zap.Uint64("seq", tx.Seq),
				zap.String("op", tx.Op),
				zap.Error(err),
			)
			lastSeq = tx.Seq
			continue
		}

		applied++
		lastSeq = tx.Seq
		pending = append(pending, events...)

		if len(pending) >= r.cfg.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}
	if r.checkpoint != nil && lastSeq > 0 {
		if err := r.checkpoint.Save(lastSeq); err != nil {
			return err
		}
	}

	r.logger.Info("replay complete",
		zap.Int("applied", applied),
		zap.Int("reverted", reverted),
		zap.Int("skipped", skipped),
		zap.Uint64("last_seq", lastSeq),
	)
	return nil
}

func (r *Runner) putEventsWithRetry(ctx context.Context, events []model.EventRecord) error {
	return withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		err := r.storage.PutEventBatch(events)
		if err != nil {
			r.logger.Warn("store events failed", zap.Error(err), zap.Int("events", len(events)))
		}
		return err
	})
}

package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"swapstream/internal/model"
)

// SummaryStore receives the finished window summaries. The Postgres store
// implements it; tests substitute an in-memory sink.
type SummaryStore interface {
	UpsertPoolSummaries(ctx context.Context, summaries []model.PoolWindowSummary) error
}

// Config controls aggregation behavior.
type Config struct {
	WindowBlocks  uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Aggregator folds replayed pool events into per-window summaries.
type Aggregator struct {
	cfg          Config
	store        SummaryStore
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	poolMeta     map[string]PoolMeta
}

func NewAggregator(cfg Config, store SummaryStore, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
		poolMeta:     make(map[string]PoolMeta),
	}
}

// Run executes aggregation over an events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.WindowBlocks == 0 {
		return fmt.Errorf("window blocks must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startSeq, err := a.loadStartSeq(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := make([]model.PoolWindowSummary, 0, a.cfg.BatchSize)
	maxSeq := startSeq
	var total, aggregated, skipped, failed int

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.EventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			a.logger.Warn("decode event", zap.Error(err))
			continue
		}

		if record.Entity != model.EntityPool {
			skipped++
			continue
		}

		// Pool metadata is learned even from records behind the checkpoint:
		// a resumed run still needs the token pairs of pools created before it.
		if record.Name == model.EventPoolCreated {
			a.learnPoolMeta(record)
		}

		if startSeq > 0 && record.Seq <= startSeq {
			skipped++
			continue
		}

		meta, ok := a.poolMeta[record.EntityID]
		if !ok {
			failed++
			a.logger.Warn("missing pool meta", zap.String("pool", record.EntityID), zap.String("event", record.Name))
			continue
		}

		windowStart := windowStart(record.Block, a.cfg.WindowBlocks)
		windowEnd := windowStart + a.cfg.WindowBlocks

		acc := a.accumulators[record.EntityID]
		if acc == nil {
			acc = NewAccumulator(record.EntityID, meta, windowStart, windowEnd)
			a.accumulators[record.EntityID] = acc
		} else if acc.WindowStart != windowStart {
			batch = append(batch, acc.Summary(a.cfg.WindowBlocks))
			aggregated++
			acc = NewAccumulator(record.EntityID, meta, windowStart, windowEnd)
			a.accumulators[record.EntityID] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.EntityID), zap.String("event", record.Name))
			continue
		}

		if record.Seq > maxSeq {
			maxSeq = record.Seq
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.store.UpsertPoolSummaries(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	for _, acc := range a.accumulators {
		batch = append(batch, acc.Summary(a.cfg.WindowBlocks))
		aggregated++
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 {
		if err := a.store.UpsertPoolSummaries(ctx, batch); err != nil {
			return err
		}
	}

	if err := a.saveState(ctx, maxSeq); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", aggregated),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func (a *Aggregator) learnPoolMeta(record model.EventRecord) {
	var created model.PoolCreatedData
	if err := json.Unmarshal(record.Decoded, &created); err != nil {
		a.logger.Warn("decode pool_created", zap.Error(err), zap.String("pool", record.EntityID))
		return
	}
	a.poolMeta[record.EntityID] = PoolMeta{
		Token0: created.Token0,
		Token1: created.Token1,
		FeeBps: created.FeeBps,
	}
}

func (a *Aggregator) loadStartSeq(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (a *Aggregator) saveState(ctx context.Context, maxSeq uint64) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	return a.cfg.StateStore.Save(ctx, maxSeq)
}

func windowStart(block uint64, windowBlocks uint64) uint64 {
	return block - (block % windowBlocks)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"swapstream/internal/amm"
	"swapstream/internal/bank"
	"swapstream/internal/chain"
	"swapstream/internal/config"
	"swapstream/internal/event"
	"swapstream/internal/ledger"
	"swapstream/internal/model"
	"swapstream/internal/replay"
	"swapstream/internal/storage"
	"swapstream/internal/storage/postgres"
	"swapstream/internal/streams"
)

// Default engine addresses used when the journal does not dictate them.
const (
	defaultExecutor      = "0x0000000000000000000000000000000000001000"
	defaultPoolAddress   = "0x0000000000000000000000000000000000001001"
	defaultStreamAddress = "0x0000000000000000000000000000000000001002"
)

func main() {
	root := &cobra.Command{
		Use:          "swapstream",
		Short:        "Deterministic AMM and payment stream ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a transaction journal through the ledger",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("journal", "", "input transaction journal JSONL")
	replayCmd.Flags().Uint64("from-seq", 0, "start sequence (inclusive)")
	replayCmd.Flags().Uint64("to-seq", 0, "end sequence (inclusive), 0 means all")
	replayCmd.Flags().Int("batch-size", 2000, "events per storage batch")
	replayCmd.Flags().String("out", "./data/events.jsonl", "output JSONL path")
	replayCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for event storage")
	replayCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	replayCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	replayCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	replayCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	replayCmd.Flags().String("executor", defaultExecutor, "governance address")
	replayCmd.Flags().String("pool-address", defaultPoolAddress, "pool registry escrow address")
	replayCmd.Flags().String("stream-address", defaultStreamAddress, "stream ledger escrow address")
	replayCmd.Flags().Uint32("default-fee-bps", amm.DefaultFeeBps, "default swap fee in basis points")
	replayCmd.Flags().Uint32("flash-fee-bps", amm.DefaultFlashFeeBps, "flash loan fee in basis points")
	replayCmd.Flags().String("minimum-liquidity", "", "locked liquidity floor, empty for default")

	root.AddCommand(replayCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate replayed events into pool window summaries",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "", "input events JSONL")
	aggregateCmd.Flags().Uint64("window-blocks", 100, "aggregation window in blocks")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().Uint64("recompute-from", 0, "recompute from sequence number")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	root.AddCommand(newHashStreamCmd())
	root.AddCommand(newSignUpdateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Journal == "" {
		return fmt.Errorf("journal path is required")
	}

	executor, err := parseAddressFlag("executor", cfg.Executor)
	if err != nil {
		return err
	}
	poolAddr, err := parseAddressFlag("pool-address", cfg.PoolAddress)
	if err != nil {
		return err
	}
	streamAddr, err := parseAddressFlag("stream-address", cfg.StreamAddress)
	if err != nil {
		return err
	}

	poolCfg := amm.Config{
		Address:         poolAddr,
		Executor:        executor,
		DefaultFeeBps:   cfg.DefaultFeeBps,
		FlashLoanFeeBps: cfg.FlashFeeBps,
	}
	if cfg.MinimumLiquidity != "" {
		floor, err := model.ParseAmount(cfg.MinimumLiquidity)
		if err != nil {
			return fmt.Errorf("minimum-liquidity: %w", err)
		}
		poolCfg.MinimumLiquidity = floor
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	book := bank.New()
	clock := chain.NewClock(0)
	buffer := event.NewBuffer()
	pools := amm.NewRegistry(poolCfg, book, clock, buffer)
	streamLedger := streams.NewLedger(streams.Config{Address: streamAddr}, book, clock, buffer)
	host := ledger.NewHost(book, pools, streamLedger, clock, buffer, logger)

	var sink storage.Storage
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		sink = &pgEventSink{ctx: ctx, store: store}
	} else {
		sink = storage.NewJsonlStorage(cfg.Out)
	}

	runner := replay.NewRunner(replay.RunConfig{
		JournalPath:       cfg.Journal,
		FromSeq:           cfg.FromSeq,
		ToSeq:             cfg.ToSeq,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, host, sink, logger)

	logger.Info("replay start",
		zap.String("journal", cfg.Journal),
		zap.Uint64("from_seq", cfg.FromSeq),
		zap.Uint64("to_seq", cfg.ToSeq),
		zap.Int("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
		zap.String("executor", executor.Hex()),
	)

	return runner.Run(ctx)
}

// pgEventSink adapts the Postgres store to the batch storage interface.
type pgEventSink struct {
	ctx   context.Context
	store *postgres.Store
}

func (s *pgEventSink) PutEventBatch(events []model.EventRecord) error {
	return s.store.InsertEvents(s.ctx, events)
}

func parseAddressFlag(name, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s: %q", name, value)
	}
	return common.HexToAddress(value), nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swapstream/internal/model"
)

// Store provides Postgres persistence for replayed events and summaries.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertEvents inserts event records, skipping sequence numbers already stored.
func (s *Store) InsertEvents(ctx context.Context, events []model.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO ledger_events (
				seq, block, name, entity, entity_id, parties, decoded, emitted_at, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (seq) DO NOTHING
		`,
			int64(ev.Seq),
			int64(ev.Block),
			ev.Name,
			ev.Entity,
			ev.EntityID,
			ev.Parties,
			[]byte(ev.Decoded),
			ev.EmittedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPoolSummaries inserts or updates per-window pool summaries.
func (s *Store) UpsertPoolSummaries(ctx context.Context, summaries []model.PoolWindowSummary) error {
	if len(summaries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, sum := range summaries {
		batch.Queue(`
			INSERT INTO pool_summaries (
				pool_id, window_blocks, window_start, window_end,
				swap_count, volume0, volume1, flash_loan_count, flash_loan_fees,
				first_block, last_block, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
			ON CONFLICT (pool_id, window_blocks, window_start)
			DO UPDATE SET
				window_end = EXCLUDED.window_end,
				swap_count = EXCLUDED.swap_count,
				volume0 = EXCLUDED.volume0,
				volume1 = EXCLUDED.volume1,
				flash_loan_count = EXCLUDED.flash_loan_count,
				flash_loan_fees = EXCLUDED.flash_loan_fees,
				first_block = LEAST(pool_summaries.first_block, EXCLUDED.first_block),
				last_block = GREATEST(pool_summaries.last_block, EXCLUDED.last_block),
				updated_at = now()
		`,
			sum.PoolID,
			int64(sum.WindowBlocks),
			int64(sum.WindowStart),
			int64(sum.WindowEnd),
			int64(sum.SwapCount),
			sum.Volume0,
			sum.Volume1,
			int64(sum.FlashLoanCount),
			sum.FlashLoanFees,
			int64(sum.FirstBlock),
			int64(sum.LastBlock),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range summaries {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_seq for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var seq uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_seq FROM ledger_state WHERE name=$1`, name)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return seq, true, nil
}

// SaveState upserts last_processed_seq for a name.
func (s *Store) SaveState(ctx context.Context, name string, seq uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_state (name, last_processed_seq, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_seq = EXCLUDED.last_processed_seq, updated_at = now()
	`, name, seq)
	return err
}

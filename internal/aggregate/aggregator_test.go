package aggregate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"swapstream/internal/event"
	"swapstream/internal/model"
)

type memorySummaryStore struct {
	summaries []model.PoolWindowSummary
}

func (m *memorySummaryStore) UpsertPoolSummaries(_ context.Context, summaries []model.PoolWindowSummary) error {
	m.summaries = append(m.summaries, summaries...)
	return nil
}

func poolCreatedRecord(seq, block uint64) model.EventRecord {
	return model.EventRecord{
		Seq:      seq,
		Block:    block,
		Name:     model.EventPoolCreated,
		Entity:   model.EntityPool,
		EntityID: testPoolID,
		Decoded: event.MustMarshal(model.PoolCreatedData{
			PoolID: testPoolID,
			Token0: token0,
			Token1: token1,
			FeeBps: 30,
		}),
	}
}

func sequencedSwap(seq, block uint64, amountIn, amountOut string) model.EventRecord {
	record := swapRecord(block, token0, amountIn, amountOut)
	record.Seq = seq
	return record
}

func writeEvents(t *testing.T, records []model.EventRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create events: %v", err)
	}
	defer file.Close()
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			t.Fatalf("marshal record: %v", err)
		}
		if _, err := file.Write(append(line, '\n')); err != nil {
			t.Fatalf("write record: %v", err)
		}
	}
	return path
}

func TestAggregatorRun(t *testing.T) {
	path := writeEvents(t, []model.EventRecord{
		poolCreatedRecord(0, 1),
		sequencedSwap(1, 10, "1000", "996"),
		sequencedSwap(2, 50, "500", "497"),
		// Block 150 opens a new window, flushing the first.
		sequencedSwap(3, 150, "2000", "1985"),
	})
	sink := &memorySummaryStore{}
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}

	agg := NewAggregator(Config{WindowBlocks: 100, BatchSize: 10, StateStore: state}, sink, nil)
	if err := agg.Run(context.Background(), path); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sink.summaries) != 2 {
		t.Fatalf("got %d summaries, want 2 windows", len(sink.summaries))
	}
	first := sink.summaries[0]
	if first.WindowStart != 0 || first.SwapCount != 2 || first.Volume0 != "1500" || first.Volume1 != "1493" {
		t.Fatalf("window [0,100) = %d swaps %s/%s", first.SwapCount, first.Volume0, first.Volume1)
	}
	second := sink.summaries[1]
	if second.WindowStart != 100 || second.SwapCount != 1 || second.Volume0 != "2000" {
		t.Fatalf("window [100,200) = %d swaps %s", second.SwapCount, second.Volume0)
	}

	seq, ok, err := state.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("load state: (%v, %v)", ok, err)
	}
	if seq != 3 {
		t.Fatalf("state seq = %d, want 3", seq)
	}
}

func TestAggregatorResumeLearnsEarlierPools(t *testing.T) {
	// The pool was created before the checkpoint; its swap comes after.
	path := writeEvents(t, []model.EventRecord{
		poolCreatedRecord(0, 1),
		sequencedSwap(5, 10, "1000", "996"),
	})
	sink := &memorySummaryStore{}
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	if err := state.Save(context.Background(), 3); err != nil {
		t.Fatalf("prime state: %v", err)
	}

	agg := NewAggregator(Config{WindowBlocks: 100, BatchSize: 10, StateStore: state}, sink, nil)
	if err := agg.Run(context.Background(), path); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sink.summaries) != 1 {
		t.Fatalf("got %d summaries, want the resumed swap aggregated", len(sink.summaries))
	}
	summary := sink.summaries[0]
	if summary.PoolID != testPoolID || summary.SwapCount != 1 || summary.Volume0 != "1000" {
		t.Fatalf("summary = %s %d swaps volume0 %s", summary.PoolID, summary.SwapCount, summary.Volume0)
	}
}

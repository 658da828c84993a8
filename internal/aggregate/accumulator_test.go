package aggregate

import (
	"context"
	"path/filepath"
	"testing"

	"swapstream/internal/event"
	"swapstream/internal/model"
)

const (
	testPoolID = "0x1111111111111111111111111111111111111111111111111111111111111111"
	token0     = "0x00000000000000000000000000000000000000aa"
	token1     = "0x00000000000000000000000000000000000000bb"
)

func testMeta() PoolMeta {
	return PoolMeta{Token0: token0, Token1: token1, FeeBps: 30}
}

func swapRecord(block uint64, tokenIn, amountIn, amountOut string) model.EventRecord {
	tokenOut := token1
	if tokenIn == token1 {
		tokenOut = token0
	}
	return model.EventRecord{
		Block:    block,
		Name:     model.EventSwap,
		Entity:   model.EntityPool,
		EntityID: testPoolID,
		Decoded: event.MustMarshal(model.SwapEventData{
			PoolID:    testPoolID,
			TokenIn:   tokenIn,
			TokenOut:  tokenOut,
			AmountIn:  amountIn,
			AmountOut: amountOut,
		}),
	}
}

func TestAccumulatorSwapVolumes(t *testing.T) {
	acc := NewAccumulator(testPoolID, testMeta(), 100, 200)

	// Volume attribution follows the input side of each swap.
	if err := acc.AddEvent(swapRecord(105, token0, "1000", "996")); err != nil {
		t.Fatalf("add swap: %v", err)
	}
	if err := acc.AddEvent(swapRecord(150, token1, "500", "497")); err != nil {
		t.Fatalf("add swap: %v", err)
	}

	if acc.SwapCount != 2 {
		t.Fatalf("swap count = %d, want 2", acc.SwapCount)
	}
	if acc.Volume0.Int64() != 1497 {
		t.Fatalf("volume0 = %s, want 1497", acc.Volume0)
	}
	if acc.Volume1.Int64() != 1496 {
		t.Fatalf("volume1 = %s, want 1496", acc.Volume1)
	}
	if acc.FirstBlock != 105 || acc.LastBlock != 150 {
		t.Fatalf("block span = [%d, %d], want [105, 150]", acc.FirstBlock, acc.LastBlock)
	}
}

func TestAccumulatorCaseInsensitiveTokens(t *testing.T) {
	acc := NewAccumulator(testPoolID, testMeta(), 0, 100)
	record := swapRecord(10, "0x00000000000000000000000000000000000000AA", "100", "99")
	if err := acc.AddEvent(record); err != nil {
		t.Fatalf("add swap: %v", err)
	}
	if acc.Volume0.Int64() != 100 {
		t.Fatalf("volume0 = %s, want 100", acc.Volume0)
	}
}

func TestAccumulatorUnknownToken(t *testing.T) {
	acc := NewAccumulator(testPoolID, testMeta(), 0, 100)
	record := swapRecord(10, "0x00000000000000000000000000000000000000cc", "100", "99")
	if err := acc.AddEvent(record); err == nil {
		t.Fatal("swap with foreign token accepted")
	}
}

func TestAccumulatorFlashLoans(t *testing.T) {
	acc := NewAccumulator(testPoolID, testMeta(), 0, 100)

	for _, fee := range []string{"90", "45"} {
		record := model.EventRecord{
			Block:    20,
			Name:     model.EventFlashLoan,
			Entity:   model.EntityPool,
			EntityID: testPoolID,
			Decoded: event.MustMarshal(model.FlashLoanData{
				PoolID: testPoolID,
				Token:  token0,
				Amount: "100000",
				Fee:    fee,
			}),
		}
		if err := acc.AddEvent(record); err != nil {
			t.Fatalf("add flash loan: %v", err)
		}
	}

	if acc.FlashLoanCount != 2 {
		t.Fatalf("flash loan count = %d, want 2", acc.FlashLoanCount)
	}
	if acc.FlashLoanFees.Int64() != 135 {
		t.Fatalf("flash loan fees = %s, want 135", acc.FlashLoanFees)
	}
}

func TestAccumulatorIgnoresReserveUpdates(t *testing.T) {
	acc := NewAccumulator(testPoolID, testMeta(), 0, 100)
	record := model.EventRecord{
		Block:    30,
		Name:     model.EventPoolUpdated,
		Entity:   model.EntityPool,
		EntityID: testPoolID,
		Decoded:  event.MustMarshal(model.PoolUpdatedData{PoolID: testPoolID}),
	}
	if err := acc.AddEvent(record); err != nil {
		t.Fatalf("add pool_updated: %v", err)
	}
	if acc.SwapCount != 0 || acc.Volume0.Sign() != 0 {
		t.Fatalf("reserve update counted as volume")
	}
	// The window still tracks the block span.
	if acc.FirstBlock != 30 || acc.LastBlock != 30 {
		t.Fatalf("block span = [%d, %d], want [30, 30]", acc.FirstBlock, acc.LastBlock)
	}
}

func TestAccumulatorSummary(t *testing.T) {
	acc := NewAccumulator(testPoolID, testMeta(), 100, 200)
	if err := acc.AddEvent(swapRecord(120, token0, "1000", "996")); err != nil {
		t.Fatalf("add swap: %v", err)
	}

	summary := acc.Summary(100)
	if summary.PoolID != testPoolID {
		t.Fatalf("pool id = %s", summary.PoolID)
	}
	if summary.WindowBlocks != 100 || summary.WindowStart != 100 || summary.WindowEnd != 200 {
		t.Fatalf("window = %d/[%d, %d)", summary.WindowBlocks, summary.WindowStart, summary.WindowEnd)
	}
	if summary.SwapCount != 1 || summary.Volume0 != "1000" || summary.Volume1 != "996" {
		t.Fatalf("summary volumes = %s/%s", summary.Volume0, summary.Volume1)
	}
	if summary.FlashLoanFees != "0" {
		t.Fatalf("flash loan fees = %s, want 0", summary.FlashLoanFees)
	}
}

func TestWindowStart(t *testing.T) {
	cases := []struct {
		block        uint64
		windowBlocks uint64
		want         uint64
	}{
		{0, 100, 0},
		{99, 100, 0},
		{100, 100, 100},
		{250, 100, 200},
		{250, 50, 250},
	}
	for _, tc := range cases {
		if got := windowStart(tc.block, tc.windowBlocks); got != tc.want {
			t.Fatalf("windowStart(%d, %d) = %d, want %d", tc.block, tc.windowBlocks, got, tc.want)
		}
	}
}

func TestFileStateStore(t *testing.T) {
	ctx := context.Background()
	store := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}

	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("fresh load = (%v, %v), want miss", ok, err)
	}
	if err := store.Save(ctx, 77); err != nil {
		t.Fatalf("save: %v", err)
	}
	seq, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load = (%v, %v)", ok, err)
	}
	if seq != 77 {
		t.Fatalf("seq = %d, want 77", seq)
	}
}

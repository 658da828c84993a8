package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"swapstream/internal/model"
)

// PoolMeta carries the token pair for a pool, learned from its creation event.
type PoolMeta struct {
	Token0 string
	Token1 string
	FeeBps uint16
}

// Accumulator holds aggregate values for one pool over one block window.
type Accumulator struct {
	PoolID         string
	Meta           PoolMeta
	WindowStart    uint64
	WindowEnd      uint64
	SwapCount      uint64
	Volume0        *big.Int
	Volume1        *big.Int
	FlashLoanCount uint64
	FlashLoanFees  *big.Int
	FirstBlock     uint64
	LastBlock      uint64
}

func NewAccumulator(poolID string, meta PoolMeta, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		PoolID:        poolID,
		Meta:          meta,
		WindowStart:   windowStart,
		WindowEnd:     windowEnd,
		Volume0:       big.NewInt(0),
		Volume1:       big.NewInt(0),
		FlashLoanFees: big.NewInt(0),
	}
}

// AddEvent folds one event record into the window. Events that carry no
// volume, like reserve updates, are ignored.
func (a *Accumulator) AddEvent(record model.EventRecord) error {
	if a.FirstBlock == 0 || record.Block < a.FirstBlock {
		a.FirstBlock = record.Block
	}
	if record.Block > a.LastBlock {
		a.LastBlock = record.Block
	}

	switch record.Name {
	case model.EventSwap:
		var swap model.SwapEventData
		if err := json.Unmarshal(record.Decoded, &swap); err != nil {
			return fmt.Errorf("decode swap: %w", err)
		}
		return a.applySwap(swap)
	case model.EventFlashLoan:
		var loan model.FlashLoanData
		if err := json.Unmarshal(record.Decoded, &loan); err != nil {
			return fmt.Errorf("decode flash loan: %w", err)
		}
		return a.applyFlashLoan(loan)
	default:
		return nil
	}
}

func (a *Accumulator) applySwap(swap model.SwapEventData) error {
	amountIn, err := model.ParseAmount(swap.AmountIn)
	if err != nil {
		return err
	}
	amountOut, err := model.ParseAmount(swap.AmountOut)
	if err != nil {
		return err
	}

	switch {
	case strings.EqualFold(swap.TokenIn, a.Meta.Token0):
		a.Volume0.Add(a.Volume0, amountIn)
		a.Volume1.Add(a.Volume1, amountOut)
	case strings.EqualFold(swap.TokenIn, a.Meta.Token1):
		a.Volume1.Add(a.Volume1, amountIn)
		a.Volume0.Add(a.Volume0, amountOut)
	default:
		return fmt.Errorf("token %s not in pool %s", swap.TokenIn, a.PoolID)
	}

	a.SwapCount++
	return nil
}

func (a *Accumulator) applyFlashLoan(loan model.FlashLoanData) error {
	fee, err := model.ParseAmount(loan.Fee)
	if err != nil {
		return err
	}
	a.FlashLoanFees.Add(a.FlashLoanFees, fee)
	a.FlashLoanCount++
	return nil
}

// Summary renders the window as a storable record.
func (a *Accumulator) Summary(windowBlocks uint64) model.PoolWindowSummary {
	return model.PoolWindowSummary{
		PoolID:         a.PoolID,
		WindowBlocks:   windowBlocks,
		WindowStart:    a.WindowStart,
		WindowEnd:      a.WindowEnd,
		SwapCount:      a.SwapCount,
		Volume0:        model.FormatAmount(a.Volume0),
		Volume1:        model.FormatAmount(a.Volume1),
		FlashLoanCount: a.FlashLoanCount,
		FlashLoanFees:  model.FormatAmount(a.FlashLoanFees),
		FirstBlock:     a.FirstBlock,
		LastBlock:      a.LastBlock,
	}
}

package model

// PoolWindowSummary aggregates swap and flash-loan activity for one pool over
// a fixed window of blocks.
type PoolWindowSummary struct {
	PoolID         string `json:"pool_id"`
	WindowBlocks   uint64 `json:"window_blocks"`
	WindowStart    uint64 `json:"window_start"`
	WindowEnd      uint64 `json:"window_end"`
	SwapCount      uint64 `json:"swap_count"`
	Volume0        string `json:"volume0"`
	Volume1        string `json:"volume1"`
	FlashLoanCount uint64 `json:"flash_loan_count"`
	FlashLoanFees  string `json:"flash_loan_fees"`
	FirstBlock     uint64 `json:"first_block"`
	LastBlock      uint64 `json:"last_block"`
}

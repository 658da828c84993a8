package model

import "encoding/json"

// Operation names accepted by the transaction journal.
const (
	OpCreatePool      = "create_pool"
	OpAddLiquidity    = "add_liquidity"
	OpRemoveLiquidity = "remove_liquidity"
	OpSwap            = "swap"
	OpSwapMultiHop    = "swap_multi_hop"
	OpFlashLoan       = "flash_loan"
	OpCreateStream    = "create_stream"
	OpRefuelStream    = "refuel_stream"
	OpWithdrawStream  = "withdraw_stream"
	OpRefundStream    = "refund_stream"
	OpUpdateStream    = "update_stream"

	// Administrative hooks, executor-gated.
	OpSetDefaultFee       = "set_default_fee"
	OpSetFlashLoanFee     = "set_flash_loan_fee"
	OpSetMinimumLiquidity = "set_minimum_liquidity"
	OpPause               = "pause"
	OpUnpause             = "unpause"

	// OpMint is a journal-only genesis op funding an account; it is not an
	// engine entry point.
	OpMint = "mint"
)

// TxRecord is one journal entry: a single entry-point invocation.
type TxRecord struct {
	Seq    uint64          `json:"seq"`
	Block  uint64          `json:"block"`
	Caller string          `json:"caller"`
	Value  string          `json:"value,omitempty"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params"`
}

// CreatePoolParams are the journal parameters for create_pool.
type CreatePoolParams struct {
	TokenA       string `json:"token_a"`
	TokenB       string `json:"token_b"`
	AmountA      string `json:"amount_a"`
	AmountB      string `json:"amount_b"`
	FeeBps       uint16 `json:"fee_bps"`
	MinLiquidity string `json:"min_liquidity,omitempty"`
}

// AddLiquidityParams are the journal parameters for add_liquidity.
type AddLiquidityParams struct {
	PoolID  string `json:"pool_id"`
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

// RemoveLiquidityParams are the journal parameters for remove_liquidity.
type RemoveLiquidityParams struct {
	PoolID    string `json:"pool_id"`
	Liquidity string `json:"liquidity"`
}

// SwapParams are the journal parameters for swap.
type SwapParams struct {
	PoolID       string `json:"pool_id"`
	TokenIn      string `json:"token_in"`
	AmountIn     string `json:"amount_in"`
	MinAmountOut string `json:"min_amount_out"`
	Recipient    string `json:"recipient"`
}

// SwapMultiHopParams are the journal parameters for swap_multi_hop.
type SwapMultiHopParams struct {
	Path         []string `json:"path"`
	PoolIDs      []string `json:"pool_ids"`
	AmountIn     string   `json:"amount_in"`
	MinAmountOut string   `json:"min_amount_out"`
	Recipient    string   `json:"recipient"`
}

// FlashLoanParams are the journal parameters for flash_loan. The replay
// runner services these with a self-repaying borrower funded by the caller.
type FlashLoanParams struct {
	PoolID string `json:"pool_id"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
	Data   string `json:"data,omitempty"`
}

// CreateStreamParams are the journal parameters for create_stream.
type CreateStreamParams struct {
	Recipient       string `json:"recipient"`
	Token           string `json:"token"`
	InitialBalance  string `json:"initial_balance"`
	PaymentPerBlock string `json:"payment_per_block"`
	StartBlock      uint64 `json:"start_block"`
	EndBlock        uint64 `json:"end_block"`
}

// RefuelStreamParams are the journal parameters for refuel_stream.
type RefuelStreamParams struct {
	StreamID uint64 `json:"stream_id"`
	Amount   string `json:"amount"`
}

// WithdrawStreamParams are the journal parameters for withdraw_stream.
type WithdrawStreamParams struct {
	StreamID uint64 `json:"stream_id"`
}

// RefundStreamParams are the journal parameters for refund_stream.
type RefundStreamParams struct {
	StreamID uint64 `json:"stream_id"`
}

// UpdateStreamParams are the journal parameters for update_stream. Signature
// is the hex-encoded 65-byte counterparty signature over the stream digest.
type UpdateStreamParams struct {
	StreamID        uint64 `json:"stream_id"`
	PaymentPerBlock string `json:"payment_per_block"`
	StartBlock      uint64 `json:"start_block"`
	EndBlock        uint64 `json:"end_block"`
	Signature       string `json:"signature"`
}

// SetFeeParams are the journal parameters for the fee setters.
type SetFeeParams struct {
	FeeBps uint16 `json:"fee_bps"`
}

// SetMinimumLiquidityParams are the journal parameters for set_minimum_liquidity.
type SetMinimumLiquidityParams struct {
	Floor string `json:"floor"`
}

// MintParams are the journal parameters for the genesis mint op.
type MintParams struct {
	Holder string `json:"holder"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

package model

// PoolCreatedData is the decoded pool_created payload.
type PoolCreatedData struct {
	PoolID    string `json:"pool_id"`
	Creator   string `json:"creator"`
	Token0    string `json:"token0"`
	Token1    string `json:"token1"`
	FeeBps    uint16 `json:"fee_bps"`
	Reserve0  string `json:"reserve0"`
	Reserve1  string `json:"reserve1"`
	Liquidity string `json:"liquidity"`
	Locked    string `json:"locked"`
}

// PoolUpdatedData is the decoded pool_updated payload.
type PoolUpdatedData struct {
	PoolID      string `json:"pool_id"`
	Reserve0    string `json:"reserve0"`
	Reserve1    string `json:"reserve1"`
	TotalSupply string `json:"total_supply"`
}

// PriceUpdateData is the decoded price_update payload.
type PriceUpdateData struct {
	PoolID   string `json:"pool_id"`
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
}

// LiquidityAddedData is the decoded liquidity_added payload.
type LiquidityAddedData struct {
	PoolID   string `json:"pool_id"`
	Provider string `json:"provider"`
	Amount0  string `json:"amount0"`
	Amount1  string `json:"amount1"`
	Minted   string `json:"minted"`
}

// LiquidityRemovedData is the decoded liquidity_removed payload.
type LiquidityRemovedData struct {
	PoolID   string `json:"pool_id"`
	Provider string `json:"provider"`
	Amount0  string `json:"amount0"`
	Amount1  string `json:"amount1"`
	Burned   string `json:"burned"`
}

// SwapEventData is the decoded swap payload.
type SwapEventData struct {
	PoolID    string `json:"pool_id"`
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}

// MultiHopSwapData is the decoded multi_hop_swap payload.
type MultiHopSwapData struct {
	Caller    string   `json:"caller"`
	Recipient string   `json:"recipient"`
	Path      []string `json:"path"`
	PoolIDs   []string `json:"pool_ids"`
	AmountIn  string   `json:"amount_in"`
	AmountOut string   `json:"amount_out"`
}

// FlashLoanData is the decoded flash_loan payload.
type FlashLoanData struct {
	PoolID   string `json:"pool_id"`
	Borrower string `json:"borrower"`
	Token    string `json:"token"`
	Amount   string `json:"amount"`
	Fee      string `json:"fee"`
}

// StreamCreatedData is the decoded stream_created payload.
type StreamCreatedData struct {
	StreamID        uint64 `json:"stream_id"`
	Sender          string `json:"sender"`
	Recipient       string `json:"recipient"`
	Token           string `json:"token"`
	Balance         string `json:"balance"`
	PaymentPerBlock string `json:"payment_per_block"`
	StartBlock      uint64 `json:"start_block"`
	EndBlock        uint64 `json:"end_block"`
}

// StreamRefueledData is the decoded stream_refueled payload.
type StreamRefueledData struct {
	StreamID uint64 `json:"stream_id"`
	Sender   string `json:"sender"`
	Amount   string `json:"amount"`
	Balance  string `json:"balance"`
}

// StreamWithdrawnData is the decoded stream_withdrawn payload.
type StreamWithdrawnData struct {
	StreamID  uint64 `json:"stream_id"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Balance   string `json:"balance"`
}

// StreamRefundedData is the decoded stream_refunded payload.
type StreamRefundedData struct {
	StreamID uint64 `json:"stream_id"`
	Sender   string `json:"sender"`
	Amount   string `json:"amount"`
	Balance  string `json:"balance"`
}

// StreamUpdatedData is the decoded stream_updated payload.
type StreamUpdatedData struct {
	StreamID        uint64 `json:"stream_id"`
	Caller          string `json:"caller"`
	PaymentPerBlock string `json:"payment_per_block"`
	StartBlock      uint64 `json:"start_block"`
	EndBlock        uint64 `json:"end_block"`
	SettledAmount   string `json:"settled_amount"`
}

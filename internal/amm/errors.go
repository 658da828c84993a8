package amm

import "errors"

var (
	// ErrBothNative is returned when both legs of a pair are the native sentinel.
	ErrBothNative = errors.New("both assets are the native asset")
	// ErrIdenticalTokens is returned when a pair names the same asset twice.
	ErrIdenticalTokens = errors.New("token pair must name two distinct assets")
	// ErrValueMismatch is returned when the attached native value does not
	// exactly match the declared native amount.
	ErrValueMismatch = errors.New("attached value does not match native amount")
	// ErrUnexpectedValue is returned when native value is attached to an
	// operation with no native leg.
	ErrUnexpectedValue = errors.New("unexpected native value")
	// ErrInvalidFee is returned for fee rates outside 1-1000 bps.
	ErrInvalidFee = errors.New("fee must be between 1 and 1000 bps")
	// ErrZeroAmount is returned when an amount is nil, zero, or negative.
	ErrZeroAmount = errors.New("amount must be positive")
	// ErrPoolExists is returned when a pool for the pair and fee already exists.
	ErrPoolExists = errors.New("pool already exists")
	// ErrPoolNotFound is returned when no pool matches the identifier.
	ErrPoolNotFound = errors.New("pool not found")
	// ErrInvalidToken is returned when a token is not one of the pool's assets.
	ErrInvalidToken = errors.New("token is not part of the pool")
	// ErrInsufficientLiquidity is returned when a mint or burn would breach
	// the minimum-liquidity floor, or a creation produces too few shares.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrSlippageExceeded is returned when the output falls short of the
	// caller's minimum.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrInvalidPathLength is returned for multi-hop paths outside 2..12
	// tokens or mismatched pool-id counts.
	ErrInvalidPathLength = errors.New("invalid path length")
	// ErrInvalidPath is returned when consecutive path tokens do not match
	// the pool they route through.
	ErrInvalidPath = errors.New("path does not match pool pair")
	// ErrInvalidPool is returned when a multi-hop pool identifier resolves to
	// no pool.
	ErrInvalidPool = errors.New("invalid pool in path")
	// ErrInsufficientReserve is returned when a flash loan requests more than
	// the pool holds of the asset.
	ErrInsufficientReserve = errors.New("insufficient reserve for flash loan")
	// ErrFlashLoanNotRepaid is returned when the ledger balance did not grow
	// by principal plus fee after the borrower callback.
	ErrFlashLoanNotRepaid = errors.New("flash loan not repaid")
	// ErrReserveOverflow is returned when a reserve mutation exceeds the
	// 112-bit packing bound.
	ErrReserveOverflow = errors.New("reserve exceeds 112-bit bound")
	// ErrPaused is returned while the registry is paused by governance.
	ErrPaused = errors.New("registry is paused")
	// ErrUnauthorized is returned when a caller is not the governance executor.
	ErrUnauthorized = errors.New("caller is not the executor")
)

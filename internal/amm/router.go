package amm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"swapstream/internal/model"
)

// FlashBorrower receives borrowed funds and must return principal plus fee to
// the registry before the callback returns.
type FlashBorrower interface {
	OnFlashLoan(token common.Address, amount, fee *big.Int, data []byte) error
}

// FlashBorrowerFunc adapts a function to the FlashBorrower interface.
type FlashBorrowerFunc func(token common.Address, amount, fee *big.Int, data []byte) error

func (f FlashBorrowerFunc) OnFlashLoan(token common.Address, amount, fee *big.Int, data []byte) error {
	return f(token, amount, fee, data)
}

// Swap trades amountIn of tokenIn for the pool's other asset and sends the
// output to recipient. Fails with ErrSlippageExceeded when the output falls
// short of minAmountOut.
func (r *Registry) Swap(
	caller common.Address,
	value *big.Int,
	poolID common.Hash,
	tokenIn common.Address,
	amountIn, minAmountOut *big.Int,
	recipient common.Address,
) (*big.Int, error) {
	if err := r.guard.Enter(); err != nil {
		return nil, err
	}
	defer r.guard.Leave()
	if r.paused {
		return nil, ErrPaused
	}

	pool, ok := r.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID.Hex())
	}
	if err := requirePositive(amountIn); err != nil {
		return nil, err
	}

	tokenOut, err := pool.otherToken(tokenIn)
	if err != nil {
		return nil, err
	}

	if err := r.escrowIn(caller, value, tokenIn, amountIn); err != nil {
		return nil, err
	}

	amountOut, err := r.applyHop(pool, tokenIn, amountIn)
	if err != nil {
		return nil, err
	}
	if minAmountOut != nil && amountOut.Cmp(minAmountOut) < 0 {
		return nil, fmt.Errorf("%w: out %s below minimum %s", ErrSlippageExceeded, amountOut, minAmountOut)
	}

	if err := r.payOut(recipient, tokenOut, amountOut); err != nil {
		return nil, err
	}

	r.emit(model.EventSwap, poolID, []string{caller.Hex(), recipient.Hex()}, model.SwapEventData{
		PoolID:    poolID.Hex(),
		Caller:    caller.Hex(),
		Recipient: recipient.Hex(),
		TokenIn:   tokenIn.Hex(),
		TokenOut:  tokenOut.Hex(),
		AmountIn:  model.FormatAmount(amountIn),
		AmountOut: model.FormatAmount(amountOut),
	})
	r.emitPoolUpdated(pool)
	r.emitPriceUpdate(pool)

	return amountOut, nil
}

// SwapMultiHop routes amountIn along path through the given pools, feeding
// each hop's output into the next. The slippage check applies once, against
// the final cumulative output. Each hop emits its own swap notification so
// every touched pool's volume is attributable; one aggregate multi-hop
// notification follows with the route and the end-to-end amounts.
func (r *Registry) SwapMultiHop(
	caller common.Address,
	value *big.Int,
	path []common.Address,
	poolIDs []common.Hash,
	amountIn, minAmountOut *big.Int,
	recipient common.Address,
) (*big.Int, error) {
	if err := r.guard.Enter(); err != nil {
		return nil, err
	}
	defer r.guard.Leave()
	if r.paused {
		return nil, ErrPaused
	}

	if len(path) < minPathTokens || len(path) > maxPathTokens {
		return nil, fmt.Errorf("%w: %d tokens", ErrInvalidPathLength, len(path))
	}
	if len(poolIDs) != len(path)-1 {
		return nil, fmt.Errorf("%w: %d pools for %d tokens", ErrInvalidPathLength, len(poolIDs), len(path))
	}
	if err := requirePositive(amountIn); err != nil {
		return nil, err
	}

	if err := r.escrowIn(caller, value, path[0], amountIn); err != nil {
		return nil, err
	}

	amount := new(big.Int).Set(amountIn)
	for i, poolID := range poolIDs {
		pool, ok := r.pools[poolID]
		if !ok {
			return nil, fmt.Errorf("%w: hop %d pool %s", ErrInvalidPool, i, poolID.Hex())
		}
		hopIn, hopOut := path[i], path[i+1]
		t0, t1 := SortTokens(hopIn, hopOut)
		if t0 != pool.Token0 || t1 != pool.Token1 {
			return nil, fmt.Errorf("%w: hop %d (%s -> %s) via pool %s",
				ErrInvalidPath, i, hopIn.Hex(), hopOut.Hex(), poolID.Hex())
		}

		out, err := r.applyHop(pool, hopIn, amount)
		if err != nil {
			return nil, err
		}

		// Intermediate output stays in escrow; only the last hop pays out.
		hopRecipient := r.addr
		if i == len(poolIDs)-1 {
			hopRecipient = recipient
		}
		r.emit(model.EventSwap, poolID, []string{caller.Hex(), hopRecipient.Hex()}, model.SwapEventData{
			PoolID:    poolID.Hex(),
			Caller:    caller.Hex(),
			Recipient: hopRecipient.Hex(),
			TokenIn:   hopIn.Hex(),
			TokenOut:  hopOut.Hex(),
			AmountIn:  model.FormatAmount(amount),
			AmountOut: model.FormatAmount(out),
		})
		amount = out
		r.emitPoolUpdated(pool)
		r.emitPriceUpdate(pool)
	}

	if minAmountOut != nil && amount.Cmp(minAmountOut) < 0 {
		return nil, fmt.Errorf("%w: out %s below minimum %s", ErrSlippageExceeded, amount, minAmountOut)
	}

	if err := r.payOut(recipient, path[len(path)-1], amount); err != nil {
		return nil, err
	}

	pathHex := make([]string, len(path))
	for i, token := range path {
		pathHex[i] = token.Hex()
	}
	idsHex := make([]string, len(poolIDs))
	for i, id := range poolIDs {
		idsHex[i] = id.Hex()
	}
	r.emit(model.EventMultiHopSwap, poolIDs[len(poolIDs)-1], []string{caller.Hex(), recipient.Hex()}, model.MultiHopSwapData{
		Caller:    caller.Hex(),
		Recipient: recipient.Hex(),
		Path:      pathHex,
		PoolIDs:   idsHex,
		AmountIn:  model.FormatAmount(amountIn),
		AmountOut: model.FormatAmount(amount),
	})

	return amount, nil
}

// applyHop prices one swap against a pool and mutates its reserves:
// reserveIn grows by amountIn, reserveOut shrinks by the priced output.
func (r *Registry) applyHop(pool *Pool, tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	reserveIn, reserveOut, err := pool.reserves(tokenIn)
	if err != nil {
		return nil, err
	}

	amountOut := getAmountOut(amountIn, reserveIn, reserveOut, pool.FeeBps)
	reserveIn.Add(reserveIn, amountIn)
	reserveOut.Sub(reserveOut, amountOut)
	if err := pool.checkBounds(); err != nil {
		return nil, err
	}
	return amountOut, nil
}

// FlashLoan lends amount of token to the caller for the duration of the
// borrower callback. The registry's balance of the asset must grow by at
// least amount + fee across the callback; the fee is then credited to the
// pool's reserve, growing k for every liquidity provider.
func (r *Registry) FlashLoan(
	caller common.Address,
	value *big.Int,
	borrower FlashBorrower,
	poolID common.Hash,
	token common.Address,
	amount *big.Int,
	data []byte,
) (*big.Int, error) {
	if err := r.guard.Enter(); err != nil {
		return nil, err
	}
	defer r.guard.Leave()
	if r.paused {
		return nil, ErrPaused
	}
	if err := requireNoValue(value); err != nil {
		return nil, err
	}
	if err := requirePositive(amount); err != nil {
		return nil, err
	}

	pool, ok := r.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID.Hex())
	}
	reserve, err := pool.reserveOf(token)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(reserve) > 0 {
		return nil, fmt.Errorf("%w: requested %s, reserve %s", ErrInsufficientReserve, amount, reserve)
	}

	fee := new(big.Int).Mul(amount, big.NewInt(int64(r.flashFee)))
	fee.Div(fee, basisPointDivisor)

	balanceBefore := r.bank.BalanceOf(r.addr, token)
	if err := r.payOut(caller, token, amount); err != nil {
		return nil, err
	}

	if err := borrower.OnFlashLoan(token, amount, fee, data); err != nil {
		return nil, fmt.Errorf("flash loan callback: %w", err)
	}

	balanceAfter := r.bank.BalanceOf(r.addr, token)
	owed := new(big.Int).Add(balanceBefore, fee)
	if balanceAfter.Cmp(owed) < 0 {
		return nil, fmt.Errorf("%w: balance %s, need %s", ErrFlashLoanNotRepaid, balanceAfter, owed)
	}

	reserve.Add(reserve, fee)
	if err := pool.checkBounds(); err != nil {
		return nil, err
	}

	r.emit(model.EventFlashLoan, poolID, []string{caller.Hex()}, model.FlashLoanData{
		PoolID:   poolID.Hex(),
		Borrower: caller.Hex(),
		Token:    token.Hex(),
		Amount:   model.FormatAmount(amount),
		Fee:      model.FormatAmount(fee),
	})
	r.emitPoolUpdated(pool)

	return fee, nil
}

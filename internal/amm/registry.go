package amm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"swapstream/internal/bank"
	"swapstream/internal/chain"
	"swapstream/internal/event"
	"swapstream/internal/guard"
	"swapstream/internal/model"
)

// DefaultMinimumLiquidity is the share floor permanently locked at pool
// creation so a pool can never be drained to zero supply.
const DefaultMinimumLiquidity = 1000

// Default fee rates in basis points.
const (
	DefaultFeeBps       = 30
	DefaultFlashFeeBps  = 9
	maxFeeBps           = 1000
	maxPathTokens       = 12
	minPathTokens       = 2
)

// Config fixes the registry identity and governance parameters at construction.
type Config struct {
	// Address is the ledger address holding all pool escrow.
	Address common.Address
	// Executor is the single governance address allowed to call the
	// administrative setters.
	Executor common.Address
	// DefaultFeeBps applies when createPool passes a zero fee.
	DefaultFeeBps uint16
	// FlashLoanFeeBps prices flash loans.
	FlashLoanFeeBps uint16
	// MinimumLiquidity overrides the locked share floor.
	MinimumLiquidity *big.Int
}

// Registry owns every pool and routes swaps, liquidity changes, and flash
// loans through them. Not safe for concurrent use; the host serializes all
// entry points.
type Registry struct {
	addr    common.Address
	bank    *bank.Bank
	clock   *chain.Clock
	emitter event.Emitter
	guard   guard.Guard

	pools map[common.Hash]*Pool

	executor     common.Address
	paused       bool
	defaultFee   uint16
	flashFee     uint16
	minLiquidity *big.Int
}

// Snapshot is a deep copy of registry state used for transactional rollback.
type Snapshot struct {
	pools        map[common.Hash]*Pool
	paused       bool
	defaultFee   uint16
	flashFee     uint16
	minLiquidity *big.Int
}

// NewRegistry builds a registry over the shared bank and clock.
func NewRegistry(cfg Config, book *bank.Bank, clock *chain.Clock, emitter event.Emitter) *Registry {
	if emitter == nil {
		emitter = event.Nop{}
	}
	if cfg.DefaultFeeBps == 0 {
		cfg.DefaultFeeBps = DefaultFeeBps
	}
	if cfg.FlashLoanFeeBps == 0 {
		cfg.FlashLoanFeeBps = DefaultFlashFeeBps
	}
	if cfg.MinimumLiquidity == nil || cfg.MinimumLiquidity.Sign() <= 0 {
		cfg.MinimumLiquidity = big.NewInt(DefaultMinimumLiquidity)
	}
	return &Registry{
		addr:         cfg.Address,
		bank:         book,
		clock:        clock,
		emitter:      emitter,
		pools:        make(map[common.Hash]*Pool),
		executor:     cfg.Executor,
		defaultFee:   cfg.DefaultFeeBps,
		flashFee:     cfg.FlashLoanFeeBps,
		minLiquidity: new(big.Int).Set(cfg.MinimumLiquidity),
	}
}

// Address returns the escrow address of the registry.
func (r *Registry) Address() common.Address {
	return r.addr
}

// CreatePool escrows both initial amounts, locks the minimum-liquidity floor
// to the burn address, and mints the remaining sqrt(amount0*amount1) shares
// to the caller. A zero feeBps selects the governance default. minLiquidity,
// when non-nil, is the least share count the caller will accept.
func (r *Registry) CreatePool(
	caller common.Address,
	value *big.Int,
	tokenA, tokenB common.Address,
	amountA, amountB *big.Int,
	feeBps uint16,
	minLiquidity *big.Int,
) (common.Hash, *big.Int, error) {
	if err := r.guard.Enter(); err != nil {
		return common.Hash{}, nil, err
	}
	defer r.guard.Leave()
	if r.paused {
		return common.Hash{}, nil, ErrPaused
	}

	if tokenA == bank.Native && tokenB == bank.Native {
		return common.Hash{}, nil, ErrBothNative
	}
	if tokenA == tokenB {
		return common.Hash{}, nil, ErrIdenticalTokens
	}
	if err := requirePositive(amountA); err != nil {
		return common.Hash{}, nil, err
	}
	if err := requirePositive(amountB); err != nil {
		return common.Hash{}, nil, err
	}

	if feeBps == 0 {
		feeBps = r.defaultFee
	}
	if feeBps > maxFeeBps {
		return common.Hash{}, nil, fmt.Errorf("%w: got %d", ErrInvalidFee, feeBps)
	}

	token0, token1 := SortTokens(tokenA, tokenB)
	amount0, amount1 := amountA, amountB
	if token0 != tokenA {
		amount0, amount1 = amountB, amountA
	}

	id := PoolID(token0, token1, feeBps)
	if _, exists := r.pools[id]; exists {
		return common.Hash{}, nil, fmt.Errorf("%w: %s", ErrPoolExists, id.Hex())
	}

	if err := r.escrowPair(caller, value, token0, token1, amount0, amount1); err != nil {
		return common.Hash{}, nil, err
	}

	liquidity := new(big.Int).Mul(amount0, amount1)
	liquidity.Sqrt(liquidity)
	if liquidity.Cmp(r.minLiquidity) <= 0 {
		return common.Hash{}, nil, fmt.Errorf("%w: sqrt(amount0*amount1) = %s must exceed the %s share floor",
			ErrInsufficientLiquidity, liquidity, r.minLiquidity)
	}

	minted := new(big.Int).Sub(liquidity, r.minLiquidity)
	if minLiquidity != nil && minted.Cmp(minLiquidity) < 0 {
		return common.Hash{}, nil, fmt.Errorf("%w: minted %s below caller minimum %s",
			ErrInsufficientLiquidity, minted, minLiquidity)
	}

	pool := &Pool{
		ID:           id,
		Token0:       token0,
		Token1:       token1,
		FeeBps:       feeBps,
		Reserve0:     new(big.Int).Set(amount0),
		Reserve1:     new(big.Int).Set(amount1),
		TotalSupply:  new(big.Int).Set(liquidity),
		MinLiquidity: new(big.Int).Set(r.minLiquidity),
		lpBalance:    make(map[common.Address]*big.Int),
	}
	pool.creditLP(BurnAddress, r.minLiquidity)
	pool.creditLP(caller, minted)
	if err := pool.checkBounds(); err != nil {
		return common.Hash{}, nil, err
	}
	r.pools[id] = pool

	r.emit(model.EventPoolCreated, id, []string{caller.Hex()}, model.PoolCreatedData{
		PoolID:    id.Hex(),
		Creator:   caller.Hex(),
		Token0:    token0.Hex(),
		Token1:    token1.Hex(),
		FeeBps:    feeBps,
		Reserve0:  model.FormatAmount(pool.Reserve0),
		Reserve1:  model.FormatAmount(pool.Reserve1),
		Liquidity: model.FormatAmount(minted),
		Locked:    model.FormatAmount(r.minLiquidity),
	})
	r.emitPoolUpdated(pool)

	return id, minted, nil
}

// AddLiquidity mints min(amount0*TS/reserve0, amount1*TS/reserve1) shares and
// pulls the full desired amounts. Callers are expected to pre-match the pool
// ratio; any excess over it accrues to existing holders.
func (r *Registry) AddLiquidity(
	caller common.Address,
	value *big.Int,
	poolID common.Hash,
	amount0, amount1 *big.Int,
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
	if err := requirePositive(amount0); err != nil {
		return nil, err
	}
	if err := requirePositive(amount1); err != nil {
		return nil, err
	}

	minted0 := new(big.Int).Mul(amount0, pool.TotalSupply)
	minted0.Div(minted0, pool.Reserve0)
	minted1 := new(big.Int).Mul(amount1, pool.TotalSupply)
	minted1.Div(minted1, pool.Reserve1)
	minted := minted0
	if minted1.Cmp(minted0) < 0 {
		minted = minted1
	}
	if minted.Sign() == 0 {
		return nil, fmt.Errorf("%w: amounts too small to mint a share", ErrInsufficientLiquidity)
	}

	if err := r.escrowPair(caller, value, pool.Token0, pool.Token1, amount0, amount1); err != nil {
		return nil, err
	}

	pool.Reserve0.Add(pool.Reserve0, amount0)
	pool.Reserve1.Add(pool.Reserve1, amount1)
	if err := pool.checkBounds(); err != nil {
		return nil, err
	}
	pool.TotalSupply.Add(pool.TotalSupply, minted)
	pool.creditLP(caller, minted)

	r.emit(model.EventLiquidityAdded, poolID, []string{caller.Hex()}, model.LiquidityAddedData{
		PoolID:   poolID.Hex(),
		Provider: caller.Hex(),
		Amount0:  model.FormatAmount(amount0),
		Amount1:  model.FormatAmount(amount1),
		Minted:   model.FormatAmount(minted),
	})
	r.emitPoolUpdated(pool)

	return minted, nil
}

// RemoveLiquidity burns the caller's shares and pays out the proportional
// reserves. TotalSupply never drops below the minimum-liquidity floor.
func (r *Registry) RemoveLiquidity(
	caller common.Address,
	value *big.Int,
	poolID common.Hash,
	liquidity *big.Int,
) (*big.Int, *big.Int, error) {
	if err := r.guard.Enter(); err != nil {
		return nil, nil, err
	}
	defer r.guard.Leave()
	if r.paused {
		return nil, nil, ErrPaused
	}
	if err := requireNoValue(value); err != nil {
		return nil, nil, err
	}

	pool, ok := r.pools[poolID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID.Hex())
	}
	if err := requirePositive(liquidity); err != nil {
		return nil, nil, err
	}

	if pool.LPBalanceOf(caller).Cmp(liquidity) < 0 {
		return nil, nil, fmt.Errorf("%w: burn exceeds holder balance", ErrInsufficientLiquidity)
	}
	remaining := new(big.Int).Sub(pool.TotalSupply, liquidity)
	if remaining.Cmp(pool.MinLiquidity) < 0 {
		return nil, nil, fmt.Errorf("%w: burn would breach the %s share floor",
			ErrInsufficientLiquidity, pool.MinLiquidity)
	}

	amount0 := new(big.Int).Mul(liquidity, pool.Reserve0)
	amount0.Div(amount0, pool.TotalSupply)
	amount1 := new(big.Int).Mul(liquidity, pool.Reserve1)
	amount1.Div(amount1, pool.TotalSupply)

	pool.debitLP(caller, liquidity)
	pool.TotalSupply.Sub(pool.TotalSupply, liquidity)
	pool.Reserve0.Sub(pool.Reserve0, amount0)
	pool.Reserve1.Sub(pool.Reserve1, amount1)
	if err := pool.checkBounds(); err != nil {
		return nil, nil, err
	}

	if err := r.payOut(caller, pool.Token0, amount0); err != nil {
		return nil, nil, err
	}
	if err := r.payOut(caller, pool.Token1, amount1); err != nil {
		return nil, nil, err
	}

	r.emit(model.EventLiquidityRemoved, poolID, []string{caller.Hex()}, model.LiquidityRemovedData{
		PoolID:   poolID.Hex(),
		Provider: caller.Hex(),
		Amount0:  model.FormatAmount(amount0),
		Amount1:  model.FormatAmount(amount1),
		Burned:   model.FormatAmount(liquidity),
	})
	r.emitPoolUpdated(pool)

	return amount0, amount1, nil
}

// GetPool returns a deep-copied view of a pool.
func (r *Registry) GetPool(poolID common.Hash) (PoolView, error) {
	pool, ok := r.pools[poolID]
	if !ok {
		return PoolView{}, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID.Hex())
	}
	return pool.view(), nil
}

// LPBalance returns a holder's share balance in a pool.
func (r *Registry) LPBalance(poolID common.Hash, holder common.Address) (*big.Int, error) {
	pool, ok := r.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID.Hex())
	}
	return pool.LPBalanceOf(holder), nil
}

// SetDefaultFeeBps updates the fee applied when createPool passes zero.
func (r *Registry) SetDefaultFeeBps(caller common.Address, feeBps uint16) error {
	if err := r.requireExecutor(caller); err != nil {
		return err
	}
	if feeBps == 0 || feeBps > maxFeeBps {
		return fmt.Errorf("%w: got %d", ErrInvalidFee, feeBps)
	}
	r.defaultFee = feeBps
	return nil
}

// SetFlashLoanFeeBps updates the flash-loan fee rate.
func (r *Registry) SetFlashLoanFeeBps(caller common.Address, feeBps uint16) error {
	if err := r.requireExecutor(caller); err != nil {
		return err
	}
	if feeBps > maxFeeBps {
		return fmt.Errorf("%w: got %d", ErrInvalidFee, feeBps)
	}
	r.flashFee = feeBps
	return nil
}

// SetMinimumLiquidity updates the locked share floor for pools created after
// the change. Existing pools keep the floor they were created with.
func (r *Registry) SetMinimumLiquidity(caller common.Address, floor *big.Int) error {
	if err := r.requireExecutor(caller); err != nil {
		return err
	}
	if floor == nil || floor.Sign() <= 0 {
		return ErrZeroAmount
	}
	r.minLiquidity = new(big.Int).Set(floor)
	return nil
}

// Pause stops every state-mutating entry point.
func (r *Registry) Pause(caller common.Address) error {
	if err := r.requireExecutor(caller); err != nil {
		return err
	}
	r.paused = true
	return nil
}

// Unpause resumes normal operation.
func (r *Registry) Unpause(caller common.Address) error {
	if err := r.requireExecutor(caller); err != nil {
		return err
	}
	r.paused = false
	return nil
}

// TakeSnapshot deep-copies all registry state.
func (r *Registry) TakeSnapshot() *Snapshot {
	pools := make(map[common.Hash]*Pool, len(r.pools))
	for id, pool := range r.pools {
		pools[id] = pool.clone()
	}
	return &Snapshot{
		pools:        pools,
		paused:       r.paused,
		defaultFee:   r.defaultFee,
		flashFee:     r.flashFee,
		minLiquidity: new(big.Int).Set(r.minLiquidity),
	}
}

// Restore replaces registry state with a previously taken snapshot.
func (r *Registry) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}
	r.pools = snap.pools
	r.paused = snap.paused
	r.defaultFee = snap.defaultFee
	r.flashFee = snap.flashFee
	r.minLiquidity = snap.minLiquidity
}

func (r *Registry) requireExecutor(caller common.Address) error {
	if caller != r.executor {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// escrowPair pulls both legs of a pair into the registry, validating the
// attached native value against the declared native amount.
func (r *Registry) escrowPair(
	caller common.Address,
	value *big.Int,
	token0, token1 common.Address,
	amount0, amount1 *big.Int,
) error {
	nativeAmount := new(big.Int)
	if token0 == bank.Native {
		nativeAmount = amount0
	} else if token1 == bank.Native {
		nativeAmount = amount1
	}
	if err := checkValue(value, nativeAmount); err != nil {
		return err
	}

	if token0 != bank.Native {
		if err := r.bank.TransferToken(caller, r.addr, token0, amount0); err != nil {
			return fmt.Errorf("escrow token0: %w", err)
		}
	}
	if token1 != bank.Native {
		if err := r.bank.TransferToken(caller, r.addr, token1, amount1); err != nil {
			return fmt.Errorf("escrow token1: %w", err)
		}
	}
	return nil
}

// escrowIn pulls a single asset leg into the registry.
func (r *Registry) escrowIn(caller common.Address, value *big.Int, token common.Address, amount *big.Int) error {
	if token == bank.Native {
		return checkValue(value, amount)
	}
	if err := checkValue(value, nil); err != nil {
		return err
	}
	if err := r.bank.TransferToken(caller, r.addr, token, amount); err != nil {
		return fmt.Errorf("escrow: %w", err)
	}
	return nil
}

// payOut sends an asset from escrow, using the value-transfer path for the
// native sentinel and the token-contract path otherwise.
func (r *Registry) payOut(to, token common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if token == bank.Native {
		if err := r.bank.TransferNative(r.addr, to, amount); err != nil {
			return fmt.Errorf("pay out native: %w", err)
		}
		return nil
	}
	if err := r.bank.TransferToken(r.addr, to, token, amount); err != nil {
		return fmt.Errorf("pay out token: %w", err)
	}
	return nil
}

func (r *Registry) emit(name string, poolID common.Hash, parties []string, payload any) {
	r.emitter.Emit(model.EventRecord{
		Block:    r.clock.Current(),
		Name:     name,
		Entity:   model.EntityPool,
		EntityID: poolID.Hex(),
		Parties:  parties,
		Decoded:  event.MustMarshal(payload),
	})
}

func (r *Registry) emitPoolUpdated(pool *Pool) {
	r.emit(model.EventPoolUpdated, pool.ID, nil, model.PoolUpdatedData{
		PoolID:      pool.ID.Hex(),
		Reserve0:    model.FormatAmount(pool.Reserve0),
		Reserve1:    model.FormatAmount(pool.Reserve1),
		TotalSupply: model.FormatAmount(pool.TotalSupply),
	})
}

func (r *Registry) emitPriceUpdate(pool *Pool) {
	r.emit(model.EventPriceUpdate, pool.ID, nil, model.PriceUpdateData{
		PoolID:   pool.ID.Hex(),
		Reserve0: model.FormatAmount(pool.Reserve0),
		Reserve1: model.FormatAmount(pool.Reserve1),
	})
}

// requirePositive rejects nil, zero, and negative amounts.
func requirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	return nil
}

// requireNoValue rejects native value attached to a non-payable entry point.
func requireNoValue(value *big.Int) error {
	return checkValue(value, nil)
}

// checkValue enforces the native-value convention: the attached value must
// equal the declared native amount exactly, and must be zero when no native
// leg exists.
func checkValue(value, nativeAmount *big.Int) error {
	attached := new(big.Int)
	if value != nil {
		attached = value
	}
	if nativeAmount == nil || nativeAmount.Sign() == 0 {
		if attached.Sign() != 0 {
			return fmt.Errorf("%w: got %s", ErrUnexpectedValue, attached)
		}
		return nil
	}
	if attached.Cmp(nativeAmount) != 0 {
		return fmt.Errorf("%w: declared %s, attached %s", ErrValueMismatch, nativeAmount, attached)
	}
	return nil
}

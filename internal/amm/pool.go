package amm

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// basisPointDivisor is 100% in basis points.
var basisPointDivisor = big.NewInt(10000)

// maxReserve is 2^112 - 1. Reserves pack with the 16-bit fee into one storage
// slot, so the bound is enforced on every mutation.
var maxReserve = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 112), big.NewInt(1))

// BurnAddress holds the permanently locked minimum-liquidity shares.
var BurnAddress = common.Address{}

// Pool tracks the reserves and liquidity shares of one token pair at a fixed
// fee rate. Token0 sorts below Token1; the zero address is the native asset.
type Pool struct {
	ID          common.Hash
	Token0      common.Address
	Token1      common.Address
	FeeBps      uint16
	Reserve0    *big.Int
	Reserve1    *big.Int
	TotalSupply *big.Int

	// MinLiquidity is the share floor locked at creation. Later governance
	// floor changes apply to new pools only, so removals check this value.
	MinLiquidity *big.Int

	lpBalance map[common.Address]*big.Int
}

// PoolView is a deep-copied, caller-owned snapshot of a pool.
type PoolView struct {
	ID          common.Hash    `json:"id"`
	Token0      common.Address `json:"token0"`
	Token1      common.Address `json:"token1"`
	FeeBps      uint16         `json:"fee_bps"`
	Reserve0    *big.Int       `json:"reserve0"`
	Reserve1    *big.Int       `json:"reserve1"`
	TotalSupply *big.Int       `json:"total_supply"`
}

// SortTokens returns the pair in canonical order, token0 < token1 by byte
// comparison of the identifiers.
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address) {
	if bytes.Compare(tokenA[:], tokenB[:]) < 0 {
		return tokenA, tokenB
	}
	return tokenB, tokenA
}

// PoolID derives the deterministic pool identifier from the sorted pair and
// fee rate: keccak256(token0 || token1 || feeBps big-endian).
func PoolID(tokenA, tokenB common.Address, feeBps uint16) common.Hash {
	token0, token1 := SortTokens(tokenA, tokenB)
	feeBytes := []byte{byte(feeBps >> 8), byte(feeBps)}
	return crypto.Keccak256Hash(token0[:], token1[:], feeBytes)
}

// getAmountOut prices a constant-product swap with the fee taken from the
// input side:
//
//	amountOut = amountIn*(10000-fee)*reserveOut / (reserveIn*10000 + amountIn*(10000-fee))
func getAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint16) *big.Int {
	feeMultiplier := new(big.Int).Sub(basisPointDivisor, big.NewInt(int64(feeBps)))
	amountInWithFee := new(big.Int).Mul(amountIn, feeMultiplier)
	numerator := new(big.Int).Mul(reserveOut, amountInWithFee)
	denominator := new(big.Int).Mul(reserveIn, basisPointDivisor)
	denominator.Add(denominator, amountInWithFee)
	if denominator.Sign() == 0 {
		return new(big.Int)
	}
	return numerator.Div(numerator, denominator)
}

// otherToken returns the opposite side of the pair for a pool asset.
func (p *Pool) otherToken(token common.Address) (common.Address, error) {
	switch token {
	case p.Token0:
		return p.Token1, nil
	case p.Token1:
		return p.Token0, nil
	default:
		return common.Address{}, fmt.Errorf("%w: %s", ErrInvalidToken, token.Hex())
	}
}

// reserves returns the in/out reserve pointers for a swap entering with tokenIn.
func (p *Pool) reserves(tokenIn common.Address) (reserveIn, reserveOut *big.Int, err error) {
	switch tokenIn {
	case p.Token0:
		return p.Reserve0, p.Reserve1, nil
	case p.Token1:
		return p.Reserve1, p.Reserve0, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidToken, tokenIn.Hex())
	}
}

// reserveOf returns the reserve tracked for one of the pool's assets.
func (p *Pool) reserveOf(token common.Address) (*big.Int, error) {
	switch token {
	case p.Token0:
		return p.Reserve0, nil
	case p.Token1:
		return p.Reserve1, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, token.Hex())
	}
}

// checkBounds enforces the 112-bit reserve bound after a mutation.
func (p *Pool) checkBounds() error {
	if p.Reserve0.Sign() < 0 || p.Reserve1.Sign() < 0 {
		return fmt.Errorf("%w: negative reserve", ErrReserveOverflow)
	}
	if p.Reserve0.Cmp(maxReserve) > 0 || p.Reserve1.Cmp(maxReserve) > 0 {
		return fmt.Errorf("%w: pool %s", ErrReserveOverflow, p.ID.Hex())
	}
	return nil
}

// LPBalanceOf returns a copy of a holder's share balance.
func (p *Pool) LPBalanceOf(holder common.Address) *big.Int {
	bal := p.lpBalance[holder]
	if bal == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// creditLP mints shares to a holder.
func (p *Pool) creditLP(holder common.Address, amount *big.Int) {
	bal := p.lpBalance[holder]
	if bal == nil {
		p.lpBalance[holder] = new(big.Int).Set(amount)
		return
	}
	bal.Add(bal, amount)
}

// debitLP burns shares from a holder. The caller checks the balance first.
func (p *Pool) debitLP(holder common.Address, amount *big.Int) {
	bal := p.lpBalance[holder]
	bal.Sub(bal, amount)
	if bal.Sign() == 0 && holder != BurnAddress {
		delete(p.lpBalance, holder)
	}
}

// view returns a deep-copied snapshot of the pool.
func (p *Pool) view() PoolView {
	return PoolView{
		ID:          p.ID,
		Token0:      p.Token0,
		Token1:      p.Token1,
		FeeBps:      p.FeeBps,
		Reserve0:    new(big.Int).Set(p.Reserve0),
		Reserve1:    new(big.Int).Set(p.Reserve1),
		TotalSupply: new(big.Int).Set(p.TotalSupply),
	}
}

// clone deep-copies the pool, including per-holder share balances.
func (p *Pool) clone() *Pool {
	lpCopy := make(map[common.Address]*big.Int, len(p.lpBalance))
	for holder, bal := range p.lpBalance {
		lpCopy[holder] = new(big.Int).Set(bal)
	}
	return &Pool{
		ID:           p.ID,
		Token0:       p.Token0,
		Token1:       p.Token1,
		FeeBps:       p.FeeBps,
		Reserve0:     new(big.Int).Set(p.Reserve0),
		Reserve1:     new(big.Int).Set(p.Reserve1),
		TotalSupply:  new(big.Int).Set(p.TotalSupply),
		MinLiquidity: new(big.Int).Set(p.MinLiquidity),
		lpBalance:    lpCopy,
	}
}

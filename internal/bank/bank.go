package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Native is the reserved sentinel identifier for the ledger's base currency.
var Native = common.Address{}

var (
	// ErrInsufficientFunds is returned when a transfer exceeds the payer's balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidAmount is returned when an amount is nil or negative.
	ErrInvalidAmount = errors.New("amount must be non-nil and non-negative")
	// ErrNativeAsset is returned when a token-contract transfer names the native sentinel.
	ErrNativeAsset = errors.New("native asset requires a value transfer")
)

// Bank is the in-memory balance book standing in for native-asset transfers
// and token-contract transfer calls. Not safe for concurrent use; the host
// environment serializes all operations.
type Bank struct {
	balances map[common.Address]map[common.Address]*big.Int
}

// Snapshot is a deep copy of the bank state used for transactional rollback.
type Snapshot struct {
	balances map[common.Address]map[common.Address]*big.Int
}

func New() *Bank {
	return &Bank{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

// Mint credits freshly issued funds to a holder. Used for genesis funding
// and test setup; the engines themselves never mint.
func (b *Bank) Mint(holder, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	b.credit(holder, token, amount)
	return nil
}

// BalanceOf returns a copy of the holder's balance for the given asset.
func (b *Bank) BalanceOf(holder, token common.Address) *big.Int {
	byToken := b.balances[holder]
	if byToken == nil {
		return new(big.Int)
	}
	bal := byToken[token]
	if bal == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// TransferNative moves base currency between holders.
func (b *Bank) TransferNative(from, to common.Address, amount *big.Int) error {
	return b.transfer(from, to, Native, amount)
}

// TransferToken moves a contract-issued token between holders. The native
// sentinel is rejected; base currency only moves through TransferNative.
func (b *Bank) TransferToken(from, to, token common.Address, amount *big.Int) error {
	if token == Native {
		return ErrNativeAsset
	}
	return b.transfer(from, to, token, amount)
}

func (b *Bank) transfer(from, to, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	byToken := b.balances[from]
	bal := byToken[token]
	if bal == nil || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s, needs %s",
			ErrInsufficientFunds, from.Hex(), b.BalanceOf(from, token), token.Hex(), amount)
	}

	bal.Sub(bal, amount)
	b.credit(to, token, amount)
	return nil
}

func (b *Bank) credit(holder, token common.Address, amount *big.Int) {
	byToken := b.balances[holder]
	if byToken == nil {
		byToken = make(map[common.Address]*big.Int)
		b.balances[holder] = byToken
	}
	bal := byToken[token]
	if bal == nil {
		byToken[token] = new(big.Int).Set(amount)
		return
	}
	bal.Add(bal, amount)
}

// TakeSnapshot captures a deep copy of all balances.
func (b *Bank) TakeSnapshot() *Snapshot {
	balances := make(map[common.Address]map[common.Address]*big.Int, len(b.balances))
	for holder, byToken := range b.balances {
		tokensCopy := make(map[common.Address]*big.Int, len(byToken))
		for token, bal := range byToken {
			tokensCopy[token] = new(big.Int).Set(bal)
		}
		balances[holder] = tokensCopy
	}
	return &Snapshot{balances: balances}
}

// Restore replaces the bank state with a previously taken snapshot.
func (b *Bank) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}
	b.balances = snap.balances
}

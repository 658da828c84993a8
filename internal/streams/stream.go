package streams

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrInvalidAddress is returned for a zero recipient.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidAmount is returned when an amount is nil, zero, or negative.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidTimeframe is returned when startBlock >= endBlock, or an
	// updated window starts in the past.
	ErrInvalidTimeframe = errors.New("invalid timeframe")
	// ErrStreamNotFound is returned when no stream matches the identifier.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrUnauthorized is returned when the caller is not the required party.
	ErrUnauthorized = errors.New("caller is not a party to the stream")
	// ErrStreamEnded is returned when updating a stream past its end block.
	ErrStreamEnded = errors.New("stream already ended")
	// ErrStreamNotEnded is returned for a refund before the end block.
	ErrStreamNotEnded = errors.New("stream not yet ended")
	// ErrInsufficientBalance is returned when nothing is withdrawable or
	// refundable.
	ErrInsufficientBalance = errors.New("insufficient stream balance")
	// ErrInvalidSignature is returned when the update signature does not
	// recover to the counterparty.
	ErrInvalidSignature = errors.New("signature does not recover to counterparty")
	// ErrValueMismatch is returned when the attached native value does not
	// match the declared amount.
	ErrValueMismatch = errors.New("attached value does not match native amount")
	// ErrUnexpectedValue is returned when native value is attached to a
	// token-funded operation.
	ErrUnexpectedValue = errors.New("unexpected native value")
)

// Timeframe is the accrual window: inclusive start, exclusive end.
type Timeframe struct {
	StartBlock uint64 `json:"start_block"`
	EndBlock   uint64 `json:"end_block"`
}

// Stream is one block-metered payment from Sender to Recipient. Sender,
// Recipient, and Token are fixed at creation; the rate and window change only
// through a signed update, which checkpoints accrual into SettledAmount
// first so past earnings are frozen under the old rate.
type Stream struct {
	ID              uint64
	Sender          common.Address
	Recipient       common.Address
	Token           common.Address
	Balance         *big.Int
	PaymentPerBlock *big.Int
	Timeframe       Timeframe
	WithdrawnAmount *big.Int
	SettledAmount   *big.Int
	IsActive        bool
}

// StreamView is a deep-copied, caller-owned snapshot of a stream.
type StreamView struct {
	ID              uint64         `json:"id"`
	Sender          common.Address `json:"sender"`
	Recipient       common.Address `json:"recipient"`
	Token           common.Address `json:"token"`
	Balance         *big.Int       `json:"balance"`
	PaymentPerBlock *big.Int       `json:"payment_per_block"`
	Timeframe       Timeframe      `json:"timeframe"`
	WithdrawnAmount *big.Int       `json:"withdrawn_amount"`
	SettledAmount   *big.Int       `json:"settled_amount"`
	IsActive        bool           `json:"is_active"`
}

// totalDue is the cumulative amount earned by the recipient at the given
// block: the settled checkpoint plus linear accrual over the clipped window.
func (s *Stream) totalDue(block uint64) *big.Int {
	due := new(big.Int).Set(s.SettledAmount)
	if block <= s.Timeframe.StartBlock {
		return due
	}
	end := block
	if end > s.Timeframe.EndBlock {
		end = s.Timeframe.EndBlock
	}
	elapsed := new(big.Int).SetUint64(end - s.Timeframe.StartBlock)
	return due.Add(due, elapsed.Mul(elapsed, s.PaymentPerBlock))
}

func (s *Stream) view() StreamView {
	return StreamView{
		ID:              s.ID,
		Sender:          s.Sender,
		Recipient:       s.Recipient,
		Token:           s.Token,
		Balance:         new(big.Int).Set(s.Balance),
		PaymentPerBlock: new(big.Int).Set(s.PaymentPerBlock),
		Timeframe:       s.Timeframe,
		WithdrawnAmount: new(big.Int).Set(s.WithdrawnAmount),
		SettledAmount:   new(big.Int).Set(s.SettledAmount),
		IsActive:        s.IsActive,
	}
}

func (s *Stream) clone() *Stream {
	c := *s
	c.Balance = new(big.Int).Set(s.Balance)
	c.PaymentPerBlock = new(big.Int).Set(s.PaymentPerBlock)
	c.WithdrawnAmount = new(big.Int).Set(s.WithdrawnAmount)
	c.SettledAmount = new(big.Int).Set(s.SettledAmount)
	return &c
}

// signedMessagePrefix is the Ethereum personal-message domain for a 32-byte
// digest, so standard wallet signers produce valid consent signatures.
const signedMessagePrefix = "\x19Ethereum Signed Message:\n32"

// UpdateDigest packs the consent payload bit-for-bit and hashes it:
// keccak256(ledger[20] || uint256(streamID) || uint256(rate) ||
// uint256(startBlock) || uint256(endBlock)).
func UpdateDigest(ledger common.Address, streamID uint64, paymentPerBlock *big.Int, tf Timeframe) common.Hash {
	rate := new(big.Int)
	if paymentPerBlock != nil {
		rate.Set(paymentPerBlock)
	}
	return crypto.Keccak256Hash(
		ledger[:],
		common.BigToHash(new(big.Int).SetUint64(streamID)).Bytes(),
		common.BigToHash(rate).Bytes(),
		common.BigToHash(new(big.Int).SetUint64(tf.StartBlock)).Bytes(),
		common.BigToHash(new(big.Int).SetUint64(tf.EndBlock)).Bytes(),
	)
}

// SignUpdate signs the consent digest with a secp256k1 key. Exposed for the
// CLI and tests; counterparties normally sign out of band.
func SignUpdate(key *ecdsa.PrivateKey, digest common.Hash) ([]byte, error) {
	wrapped := crypto.Keccak256([]byte(signedMessagePrefix), digest.Bytes())
	return crypto.Sign(wrapped, key)
}

// RecoverSigner recovers the address that signed the consent digest.
// Accepts recovery ids 0/1 and the legacy 27/28 encoding.
func RecoverSigner(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature must be %d bytes, got %d",
			ErrInvalidSignature, crypto.SignatureLength, len(signature))
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: bad recovery id", ErrInvalidSignature)
	}

	wrapped := crypto.Keccak256([]byte(signedMessagePrefix), digest.Bytes())
	pub, err := crypto.SigToPub(wrapped, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

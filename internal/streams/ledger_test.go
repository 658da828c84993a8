package streams

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"swapstream/internal/bank"
	"swapstream/internal/chain"
)

var (
	ledgerAddr = common.HexToAddress("0x0000000000000000000000000000000000001002")
	payToken   = common.HexToAddress("0x00000000000000000000000000000000000000dd")
)

type testParty struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newParty(t *testing.T) testParty {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return testParty{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func newTestLedger(t *testing.T) (*Ledger, *bank.Bank, *chain.Clock, testParty, testParty) {
	t.Helper()
	book := bank.New()
	clock := chain.NewClock(10)
	ledger := NewLedger(Config{Address: ledgerAddr}, book, clock, nil)

	sender := newParty(t)
	recipient := newParty(t)
	if err := book.Mint(sender.addr, payToken, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := book.Mint(sender.addr, bank.Native, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("mint native: %v", err)
	}
	return ledger, book, clock, sender, recipient
}

func mustCreateStream(t *testing.T, l *Ledger, sender, recipient testParty, balance, rate int64, tf Timeframe) uint64 {
	t.Helper()
	id, err := l.CreateStream(sender.addr, nil, recipient.addr, payToken,
		big.NewInt(balance), big.NewInt(rate), tf)
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}
	return id
}

func TestCreateStream(t *testing.T) {
	ledger, book, _, sender, recipient := newTestLedger(t)

	id := mustCreateStream(t, ledger, sender, recipient, 1000, 5, Timeframe{StartBlock: 100, EndBlock: 200})
	if id != 0 {
		t.Fatalf("first stream id = %d, want 0", id)
	}
	id = mustCreateStream(t, ledger, sender, recipient, 1000, 5, Timeframe{StartBlock: 100, EndBlock: 200})
	if id != 1 {
		t.Fatalf("second stream id = %d, want 1", id)
	}

	if got := book.BalanceOf(ledgerAddr, payToken); got.Int64() != 2000 {
		t.Fatalf("escrow = %s, want 2000", got)
	}

	view, err := ledger.GetStream(0)
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	if view.Sender != sender.addr || view.Recipient != recipient.addr || !view.IsActive {
		t.Fatalf("unexpected stream view: %+v", view)
	}
}

func TestCreateStreamValidation(t *testing.T) {
	ledger, _, _, sender, recipient := newTestLedger(t)

	_, err := ledger.CreateStream(sender.addr, nil, common.Address{}, payToken,
		big.NewInt(1000), big.NewInt(5), Timeframe{StartBlock: 100, EndBlock: 200})
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("zero recipient: err = %v, want ErrInvalidAddress", err)
	}

	_, err = ledger.CreateStream(sender.addr, nil, recipient.addr, payToken,
		big.NewInt(0), big.NewInt(5), Timeframe{StartBlock: 100, EndBlock: 200})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero balance: err = %v, want ErrInvalidAmount", err)
	}

	_, err = ledger.CreateStream(sender.addr, nil, recipient.addr, payToken,
		big.NewInt(1000), big.NewInt(5), Timeframe{StartBlock: 200, EndBlock: 200})
	if !errors.Is(err, ErrInvalidTimeframe) {
		t.Fatalf("empty window: err = %v, want ErrInvalidTimeframe", err)
	}

	_, err = ledger.CreateStream(sender.addr, big.NewInt(7), recipient.addr, payToken,
		big.NewInt(1000), big.NewInt(5), Timeframe{StartBlock: 100, EndBlock: 200})
	if !errors.Is(err, ErrUnexpectedValue) {
		t.Fatalf("value on token stream: err = %v, want ErrUnexpectedValue", err)
	}
}

func TestWithdraw(t *testing.T) {
	ledger, book, clock, sender, recipient := newTestLedger(t)
	id := mustCreateStream(t, ledger, sender, recipient, 1000, 5, Timeframe{StartBlock: 100, EndBlock: 200})

	// Nothing accrues before the start block.
	if _, err := ledger.Withdraw(recipient.addr, nil, id); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("early withdraw: err = %v, want ErrInsufficientBalance", err)
	}

	if err := clock.SetHeight(120); err != nil {
		t.Fatalf("advance clock: %v", err)
	}

	due, err := ledger.WithdrawableBalance(id)
	if err != nil {
		t.Fatalf("withdrawable: %v", err)
	}
	if due.Int64() != 100 {
		t.Fatalf("withdrawable at block 120 = %s, want 5*20 = 100", due)
	}

	if _, err := ledger.Withdraw(sender.addr, nil, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("sender withdraw: err = %v, want ErrUnauthorized", err)
	}

	got, err := ledger.Withdraw(recipient.addr, nil, id)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got.Int64() != 100 {
		t.Fatalf("withdrew %s, want 100", got)
	}
	if bal := book.BalanceOf(recipient.addr, payToken); bal.Int64() != 100 {
		t.Fatalf("recipient balance = %s, want 100", bal)
	}

	// A second withdrawal at the same block has nothing left.
	if _, err := ledger.Withdraw(recipient.addr, nil, id); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("double withdraw: err = %v, want ErrInsufficientBalance", err)
	}
}

func TestWithdrawClampedToBalance(t *testing.T) {
	ledger, book, clock, sender, recipient := newTestLedger(t)
	// Rate outruns the escrow: 5 * 100 blocks = 500 due, but only 300 funded.
	id := mustCreateStream(t, ledger, sender, recipient, 300, 5, Timeframe{StartBlock: 100, EndBlock: 200})

	if err := clock.SetHeight(300); err != nil {
		t.Fatalf("advance clock: %v", err)
	}

	got, err := ledger.Withdraw(recipient.addr, nil, id)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got.Int64() != 300 {
		t.Fatalf("withdrew %s, want escrowed 300", got)
	}

	// Refueling resumes payout of the shortfall.
	if err := ledger.Refuel(sender.addr, nil, id, big.NewInt(150)); err != nil {
		t.Fatalf("refuel: %v", err)
	}
	got, err = ledger.Withdraw(recipient.addr, nil, id)
	if err != nil {
		t.Fatalf("withdraw after refuel: %v", err)
	}
	if got.Int64() != 150 {
		t.Fatalf("withdrew %s, want 150", got)
	}
	if bal := book.BalanceOf(recipient.addr, payToken); bal.Int64() != 450 {
		t.Fatalf("recipient balance = %s, want 450", bal)
	}
}

func TestRefuel(t *testing.T) {
	ledger, _, _, sender, recipient := newTestLedger(t)
	id := mustCreateStream(t, ledger, sender, recipient, 1000, 5, Timeframe{StartBlock: 100, EndBlock: 200})

	if err := ledger.Refuel(recipient.addr, nil, id, big.NewInt(100)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("recipient refuel: err = %v, want ErrUnauthorized", err)
	}
	if err := ledger.Refuel(sender.addr, nil, id, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero refuel: err = %v, want ErrInvalidAmount", err)
	}
	if err := ledger.Refuel(sender.addr, nil, id, big.NewInt(100)); err != nil {
		t.Fatalf("refuel: %v", err)
	}

	view, err := ledger.GetStream(id)
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	if view.Balance.Int64() != 1100 {
		t.Fatalf("balance = %s, want 1100", view.Balance)
	}
}

func TestRefund(t *testing.T) {
	ledger, book, clock, sender, recipient := newTestLedger(t)
	id := mustCreateStream(t, ledger, sender, recipient, 1000, 5, Timeframe{StartBlock: 100, EndBlock: 200})

	if _, err := ledger.Refund(sender.addr, nil, id); !errors.Is(err, ErrStreamNotEnded) {
		t.Fatalf("early refund: err = %v, want ErrStreamNotEnded", err)
	}

	if err := clock.SetHeight(200); err != nil {
		t.Fatalf("advance clock: %v", err)
	}

	if _, err := ledger.Refund(recipient.addr, nil, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("recipient refund: err = %v, want ErrUnauthorized", err)
	}

	// 5 * 100 = 500 owed to the recipient; the other 500 returns.
	got, err := ledger.Refund(sender.addr, nil, id)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if got.Int64() != 500 {
		t.Fatalf("refunded %s, want 500", got)
	}
	if bal := book.BalanceOf(sender.addr, payToken); bal.Int64() != 1_000_000-500 {
		t.Fatalf("sender balance = %s, want 999500", bal)
	}

	// The recipient's earned share stays withdrawable after the refund.
	withdrawn, err := ledger.Withdraw(recipient.addr, nil, id)
	if err != nil {
		t.Fatalf("withdraw after refund: %v", err)
	}
	if withdrawn.Int64() != 500 {
		t.Fatalf("withdrew %s, want 500", withdrawn)
	}

	// Nothing left to refund.
	if _, err := ledger.Refund(sender.addr, nil, id); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("second refund: err = %v, want ErrInsufficientBalance", err)
	}
}

func TestUpdateStreamDetails(t *testing.T) {
	ledger, _, clock, sender, recipient := newTestLedger(t)
	id := mustCreateStream(t, ledger, sender, recipient, 10_000, 5, Timeframe{StartBlock: 100, EndBlock: 200})

	if err := clock.SetHeight(150); err != nil {
		t.Fatalf("advance clock: %v", err)
	}

	newRate := big.NewInt(8)
	newTF := Timeframe{StartBlock: 150, EndBlock: 260}
	digest, err := ledger.HashStream(id, newRate, newTF)
	if err != nil {
		t.Fatalf("hash stream: %v", err)
	}

	// The sender initiates, so the recipient must consent.
	sig, err := SignUpdate(recipient.key, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := ledger.UpdateStreamDetails(sender.addr, nil, id, newRate, newTF, sig); err != nil {
		t.Fatalf("update: %v", err)
	}

	view, err := ledger.GetStream(id)
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	// 50 blocks accrued at the old rate are checkpointed.
	if view.SettledAmount.Int64() != 250 {
		t.Fatalf("settled = %s, want 250", view.SettledAmount)
	}
	if view.PaymentPerBlock.Int64() != 8 || view.Timeframe != newTF {
		t.Fatalf("parameters not replaced: %+v", view)
	}

	// Accrual continues from the checkpoint under the new rate.
	if err := clock.SetHeight(160); err != nil {
		t.Fatalf("advance clock: %v", err)
	}
	due, err := ledger.WithdrawableBalance(id)
	if err != nil {
		t.Fatalf("withdrawable: %v", err)
	}
	if due.Int64() != 250+80 {
		t.Fatalf("withdrawable = %s, want 330", due)
	}
}

func TestUpdateStreamDetailsRejects(t *testing.T) {
	ledger, _, clock, sender, recipient := newTestLedger(t)
	stranger := newParty(t)
	id := mustCreateStream(t, ledger, sender, recipient, 10_000, 5, Timeframe{StartBlock: 100, EndBlock: 200})

	if err := clock.SetHeight(150); err != nil {
		t.Fatalf("advance clock: %v", err)
	}

	newRate := big.NewInt(8)
	newTF := Timeframe{StartBlock: 150, EndBlock: 260}
	digest, err := ledger.HashStream(id, newRate, newTF)
	if err != nil {
		t.Fatalf("hash stream: %v", err)
	}

	// A signature from anyone but the counterparty is refused.
	sig, err := SignUpdate(stranger.key, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := ledger.UpdateStreamDetails(sender.addr, nil, id, newRate, newTF, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("stranger signature: err = %v, want ErrInvalidSignature", err)
	}

	// The initiator's own signature is not counterparty consent.
	sig, err = SignUpdate(sender.key, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := ledger.UpdateStreamDetails(sender.addr, nil, id, newRate, newTF, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("self signature: err = %v, want ErrInvalidSignature", err)
	}

	// A signature over different parameters does not recover the counterparty.
	otherDigest, err := ledger.HashStream(id, big.NewInt(9), newTF)
	if err != nil {
		t.Fatalf("hash stream: %v", err)
	}
	sig, err = SignUpdate(recipient.key, otherDigest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := ledger.UpdateStreamDetails(sender.addr, nil, id, newRate, newTF, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("mismatched payload: err = %v, want ErrInvalidSignature", err)
	}

	// Outsiders cannot initiate at all.
	sig, err = SignUpdate(recipient.key, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := ledger.UpdateStreamDetails(stranger.addr, nil, id, newRate, newTF, sig); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stranger caller: err = %v, want ErrUnauthorized", err)
	}

	// Windows may not start in the past.
	pastTF := Timeframe{StartBlock: 140, EndBlock: 260}
	if err := ledger.UpdateStreamDetails(sender.addr, nil, id, newRate, pastTF, sig); !errors.Is(err, ErrInvalidTimeframe) {
		t.Fatalf("past start: err = %v, want ErrInvalidTimeframe", err)
	}

	// Ended streams cannot be updated.
	if err := clock.SetHeight(200); err != nil {
		t.Fatalf("advance clock: %v", err)
	}
	lateTF := Timeframe{StartBlock: 210, EndBlock: 260}
	lateDigest, err := ledger.HashStream(id, newRate, lateTF)
	if err != nil {
		t.Fatalf("hash stream: %v", err)
	}
	sig, err = SignUpdate(recipient.key, lateDigest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := ledger.UpdateStreamDetails(sender.addr, nil, id, newRate, lateTF, sig); !errors.Is(err, ErrStreamEnded) {
		t.Fatalf("ended stream: err = %v, want ErrStreamEnded", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	ledger, _, clock, sender, recipient := newTestLedger(t)
	id := mustCreateStream(t, ledger, sender, recipient, 1000, 5, Timeframe{StartBlock: 100, EndBlock: 200})

	snap := ledger.TakeSnapshot()

	if err := clock.SetHeight(150); err != nil {
		t.Fatalf("advance clock: %v", err)
	}
	if _, err := ledger.Withdraw(recipient.addr, nil, id); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	mustCreateStream(t, ledger, sender, recipient, 500, 1, Timeframe{StartBlock: 150, EndBlock: 300})

	ledger.Restore(snap)

	view, err := ledger.GetStream(id)
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	if view.Balance.Int64() != 1000 || view.WithdrawnAmount.Sign() != 0 {
		t.Fatalf("stream not restored: %+v", view)
	}
	if _, err := ledger.GetStream(1); !errors.Is(err, ErrStreamNotFound) {
		t.Fatalf("second stream survived restore: %v", err)
	}

	// nextID rewinds with the snapshot.
	newID := mustCreateStream(t, ledger, sender, recipient, 500, 1, Timeframe{StartBlock: 150, EndBlock: 300})
	if newID != 1 {
		t.Fatalf("next id after restore = %d, want 1", newID)
	}
}

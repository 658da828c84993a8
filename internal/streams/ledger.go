package streams

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

// Config fixes the stream ledger identity at construction.
type Config struct {
	// Address is the escrow address; it is also bound into every consent
	// digest so signatures cannot be replayed against another ledger.
	Address common.Address
}

// Ledger owns every payment stream. Stream identifiers are a process-wide
// counter starting at zero. Not safe for concurrent use; the host serializes
// all entry points.
type Ledger struct {
	addr    common.Address
	bank    *bank.Bank
	clock   *chain.Clock
	emitter event.Emitter
	guard   guard.Guard

	streams map[uint64]*Stream
	nextID  uint64
}

// Snapshot is a deep copy of ledger state used for transactional rollback.
type Snapshot struct {
	streams map[uint64]*Stream
	nextID  uint64
}

// NewLedger builds a stream ledger over the shared bank and clock.
func NewLedger(cfg Config, book *bank.Bank, clock *chain.Clock, emitter event.Emitter) *Ledger {
	if emitter == nil {
		emitter = event.Nop{}
	}
	return &Ledger{
		addr:    cfg.Address,
		bank:    book,
		clock:   clock,
		emitter: emitter,
		streams: make(map[uint64]*Stream),
	}
}

// Address returns the escrow address of the ledger.
func (l *Ledger) Address() common.Address {
	return l.addr
}

// CreateStream escrows the initial balance and opens a stream accruing
// paymentPerBlock over the timeframe. Returns the new stream identifier.
func (l *Ledger) CreateStream(
	caller common.Address,
	value *big.Int,
	recipient common.Address,
	token common.Address,
	initialBalance, paymentPerBlock *big.Int,
	tf Timeframe,
) (uint64, error) {
	if err := l.guard.Enter(); err != nil {
		return 0, err
	}
	defer l.guard.Leave()

	if recipient == (common.Address{}) {
		return 0, fmt.Errorf("%w: zero recipient", ErrInvalidAddress)
	}
	if err := requirePositive(initialBalance); err != nil {
		return 0, err
	}
	if err := requirePositive(paymentPerBlock); err != nil {
		return 0, err
	}
	if tf.StartBlock >= tf.EndBlock {
		return 0, fmt.Errorf("%w: start %d, end %d", ErrInvalidTimeframe, tf.StartBlock, tf.EndBlock)
	}

	if err := l.escrowIn(caller, value, token, initialBalance); err != nil {
		return 0, err
	}

	id := l.nextID
	l.nextID++
	stream := &Stream{
		ID:              id,
		Sender:          caller,
		Recipient:       recipient,
		Token:           token,
		Balance:         new(big.Int).Set(initialBalance),
		PaymentPerBlock: new(big.Int).Set(paymentPerBlock),
		Timeframe:       tf,
		WithdrawnAmount: new(big.Int),
		SettledAmount:   new(big.Int),
		IsActive:        true,
	}
	l.streams[id] = stream

	l.emit(model.EventStreamCreated, id, []string{caller.Hex(), recipient.Hex()}, model.StreamCreatedData{
		StreamID:        id,
		Sender:          caller.Hex(),
		Recipient:       recipient.Hex(),
		Token:           token.Hex(),
		Balance:         model.FormatAmount(stream.Balance),
		PaymentPerBlock: model.FormatAmount(stream.PaymentPerBlock),
		StartBlock:      tf.StartBlock,
		EndBlock:        tf.EndBlock,
	})

	return id, nil
}

// Refuel tops up a stream's escrowed balance. Sender only.
func (l *Ledger) Refuel(caller common.Address, value *big.Int, streamID uint64, amount *big.Int) error {
	if err := l.guard.Enter(); err != nil {
		return err
	}
	defer l.guard.Leave()

	stream, ok := l.streams[streamID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrStreamNotFound, streamID)
	}
	if caller != stream.Sender {
		return fmt.Errorf("%w: only the sender may refuel", ErrUnauthorized)
	}
	if !stream.IsActive {
		return fmt.Errorf("%w: %d", ErrStreamNotFound, streamID)
	}
	if err := requirePositive(amount); err != nil {
		return err
	}

	if err := l.escrowIn(caller, value, stream.Token, amount); err != nil {
		return err
	}
	stream.Balance.Add(stream.Balance, amount)

	l.emit(model.EventStreamRefueled, streamID, []string{caller.Hex()}, model.StreamRefueledData{
		StreamID: streamID,
		Sender:   caller.Hex(),
		Amount:   model.FormatAmount(amount),
		Balance:  model.FormatAmount(stream.Balance),
	})

	return nil
}

// Withdraw pays the recipient everything accrued and still escrowed.
func (l *Ledger) Withdraw(caller common.Address, value *big.Int, streamID uint64) (*big.Int, error) {
	if err := l.guard.Enter(); err != nil {
		return nil, err
	}
	defer l.guard.Leave()
	if err := requireNoValue(value); err != nil {
		return nil, err
	}

	stream, ok := l.streams[streamID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrStreamNotFound, streamID)
	}
	if caller != stream.Recipient {
		return nil, fmt.Errorf("%w: only the recipient may withdraw", ErrUnauthorized)
	}

	withdrawable := l.withdrawable(stream)
	if withdrawable.Sign() <= 0 {
		return nil, fmt.Errorf("%w: nothing withdrawable at block %d", ErrInsufficientBalance, l.clock.Current())
	}

	stream.Balance.Sub(stream.Balance, withdrawable)
	stream.WithdrawnAmount.Add(stream.WithdrawnAmount, withdrawable)
	if err := l.payOut(stream.Recipient, stream.Token, withdrawable); err != nil {
		return nil, err
	}

	l.emit(model.EventStreamWithdrawn, streamID, []string{caller.Hex()}, model.StreamWithdrawnData{
		StreamID:  streamID,
		Recipient: caller.Hex(),
		Amount:    model.FormatAmount(withdrawable),
		Balance:   model.FormatAmount(stream.Balance),
	})

	return withdrawable, nil
}

// Refund returns unearned escrow to the sender once the stream has ended.
// Whatever the recipient is still owed stays withdrawable.
func (l *Ledger) Refund(caller common.Address, value *big.Int, streamID uint64) (*big.Int, error) {
	if err := l.guard.Enter(); err != nil {
		return nil, err
	}
	defer l.guard.Leave()
	if err := requireNoValue(value); err != nil {
		return nil, err
	}

	stream, ok := l.streams[streamID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrStreamNotFound, streamID)
	}
	if caller != stream.Sender {
		return nil, fmt.Errorf("%w: only the sender may refund", ErrUnauthorized)
	}

	now := l.clock.Current()
	if now < stream.Timeframe.EndBlock {
		return nil, fmt.Errorf("%w: ends at block %d, now %d", ErrStreamNotEnded, stream.Timeframe.EndBlock, now)
	}

	owed := new(big.Int).Sub(stream.totalDue(now), stream.WithdrawnAmount)
	if owed.Sign() < 0 {
		owed.SetInt64(0)
	}
	refundable := new(big.Int).Sub(stream.Balance, owed)
	if refundable.Sign() <= 0 {
		return nil, fmt.Errorf("%w: nothing refundable", ErrInsufficientBalance)
	}

	stream.Balance.Sub(stream.Balance, refundable)
	if err := l.payOut(stream.Sender, stream.Token, refundable); err != nil {
		return nil, err
	}

	l.emit(model.EventStreamRefunded, streamID, []string{caller.Hex()}, model.StreamRefundedData{
		StreamID: streamID,
		Sender:   caller.Hex(),
		Amount:   model.FormatAmount(refundable),
		Balance:  model.FormatAmount(stream.Balance),
	})

	return refundable, nil
}

// UpdateStreamDetails replaces the rate and timeframe of a live stream with
// the signed consent of the counterparty. Accrual under the old parameters
// is checkpointed into SettledAmount first, so past earnings never change.
func (l *Ledger) UpdateStreamDetails(
	caller common.Address,
	value *big.Int,
	streamID uint64,
	newPaymentPerBlock *big.Int,
	tf Timeframe,
	signature []byte,
) error {
	if err := l.guard.Enter(); err != nil {
		return err
	}
	defer l.guard.Leave()
	if err := requireNoValue(value); err != nil {
		return err
	}

	stream, ok := l.streams[streamID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrStreamNotFound, streamID)
	}

	var counterparty common.Address
	switch caller {
	case stream.Sender:
		counterparty = stream.Recipient
	case stream.Recipient:
		counterparty = stream.Sender
	default:
		return fmt.Errorf("%w: only sender or recipient may update", ErrUnauthorized)
	}

	now := l.clock.Current()
	if now >= stream.Timeframe.EndBlock {
		return fmt.Errorf("%w: ended at block %d, now %d", ErrStreamEnded, stream.Timeframe.EndBlock, now)
	}
	if err := requirePositive(newPaymentPerBlock); err != nil {
		return err
	}
	if tf.StartBlock >= tf.EndBlock {
		return fmt.Errorf("%w: start %d, end %d", ErrInvalidTimeframe, tf.StartBlock, tf.EndBlock)
	}
	if tf.StartBlock < now {
		return fmt.Errorf("%w: new window starts at %d, before current block %d", ErrInvalidTimeframe, tf.StartBlock, now)
	}

	digest := UpdateDigest(l.addr, streamID, newPaymentPerBlock, tf)
	signer, err := RecoverSigner(digest, signature)
	if err != nil {
		return err
	}
	if signer != counterparty {
		return fmt.Errorf("%w: recovered %s, want %s", ErrInvalidSignature, signer.Hex(), counterparty.Hex())
	}

	stream.SettledAmount = stream.totalDue(now)
	stream.Timeframe = tf
	stream.PaymentPerBlock = new(big.Int).Set(newPaymentPerBlock)

	l.emit(model.EventStreamUpdated, streamID, []string{caller.Hex(), counterparty.Hex()}, model.StreamUpdatedData{
		StreamID:        streamID,
		Caller:          caller.Hex(),
		PaymentPerBlock: model.FormatAmount(stream.PaymentPerBlock),
		StartBlock:      tf.StartBlock,
		EndBlock:        tf.EndBlock,
		SettledAmount:   model.FormatAmount(stream.SettledAmount),
	})

	return nil
}

// GetStream returns a deep-copied view of a stream.
func (l *Ledger) GetStream(streamID uint64) (StreamView, error) {
	stream, ok := l.streams[streamID]
	if !ok {
		return StreamView{}, fmt.Errorf("%w: %d", ErrStreamNotFound, streamID)
	}
	return stream.view(), nil
}

// WithdrawableBalance returns what the recipient could withdraw right now.
func (l *Ledger) WithdrawableBalance(streamID uint64) (*big.Int, error) {
	stream, ok := l.streams[streamID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrStreamNotFound, streamID)
	}
	return l.withdrawable(stream), nil
}

// HashStream returns the exact digest a counterparty must sign to consent to
// the given parameter change.
func (l *Ledger) HashStream(streamID uint64, newPaymentPerBlock *big.Int, tf Timeframe) (common.Hash, error) {
	if _, ok := l.streams[streamID]; !ok {
		return common.Hash{}, fmt.Errorf("%w: %d", ErrStreamNotFound, streamID)
	}
	return UpdateDigest(l.addr, streamID, newPaymentPerBlock, tf), nil
}

// TakeSnapshot deep-copies all ledger state.
func (l *Ledger) TakeSnapshot() *Snapshot {
	streams := make(map[uint64]*Stream, len(l.streams))
	for id, stream := range l.streams {
		streams[id] = stream.clone()
	}
	return &Snapshot{streams: streams, nextID: l.nextID}
}

// Restore replaces ledger state with a previously taken snapshot.
func (l *Ledger) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}
	l.streams = snap.streams
	l.nextID = snap.nextID
}

// withdrawable clamps accrual to what is still escrowed.
func (l *Ledger) withdrawable(stream *Stream) *big.Int {
	due := stream.totalDue(l.clock.Current())
	due.Sub(due, stream.WithdrawnAmount)
	if due.Sign() < 0 {
		due.SetInt64(0)
	}
	if due.Cmp(stream.Balance) > 0 {
		return new(big.Int).Set(stream.Balance)
	}
	return due
}

func (l *Ledger) escrowIn(caller common.Address, value *big.Int, token common.Address, amount *big.Int) error {
	if token == bank.Native {
		return checkValue(value, amount)
	}
	if err := checkValue(value, nil); err != nil {
		return err
	}
	if err := l.bank.TransferToken(caller, l.addr, token, amount); err != nil {
		return fmt.Errorf("escrow: %w", err)
	}
	return nil
}

func (l *Ledger) payOut(to, token common.Address, amount *big.Int) error {
	if token == bank.Native {
		if err := l.bank.TransferNative(l.addr, to, amount); err != nil {
			return fmt.Errorf("pay out native: %w", err)
		}
		return nil
	}
	if err := l.bank.TransferToken(l.addr, to, token, amount); err != nil {
		return fmt.Errorf("pay out token: %w", err)
	}
	return nil
}

func (l *Ledger) emit(name string, streamID uint64, parties []string, payload any) {
	l.emitter.Emit(model.EventRecord{
		Block:    l.clock.Current(),
		Name:     name,
		Entity:   model.EntityStream,
		EntityID: fmt.Sprintf("%d", streamID),
		Parties:  parties,
		Decoded:  event.MustMarshal(payload),
	})
}

func requirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func requireNoValue(value *big.Int) error {
	return checkValue(value, nil)
}

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

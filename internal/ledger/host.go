package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapstream/internal/amm"
	"swapstream/internal/bank"
	"swapstream/internal/chain"
	"swapstream/internal/event"
	"swapstream/internal/model"
	"swapstream/internal/streams"
)

// Host executes journal transactions against the two engines with full
// revert semantics: every entry point either commits all of its mutations
// and notifications, or none of them.
type Host struct {
	bank    *bank.Bank
	pools   *amm.Registry
	streams *streams.Ledger
	clock   *chain.Clock
	buffer  *event.Buffer
	logger  *zap.Logger
}

// NewHost wires the engines to the shared bank, clock, and notification buffer.
func NewHost(
	book *bank.Bank,
	pools *amm.Registry,
	streamLedger *streams.Ledger,
	clock *chain.Clock,
	buffer *event.Buffer,
	logger *zap.Logger,
) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		bank:    book,
		pools:   pools,
		streams: streamLedger,
		clock:   clock,
		buffer:  buffer,
		logger:  logger,
	}
}

// Execute applies one journal transaction. On success it returns the
// notifications emitted by the transaction; on failure it restores every
// piece of state touched and returns the error.
func (h *Host) Execute(tx model.TxRecord) ([]model.EventRecord, error) {
	caller, err := parseAddress(tx.Caller)
	if err != nil {
		return nil, fmt.Errorf("caller: %w", err)
	}
	value, err := model.ParseAmount(tx.Value)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	if err := h.clock.SetHeight(tx.Block); err != nil {
		return nil, err
	}

	bankSnap := h.bank.TakeSnapshot()
	poolSnap := h.pools.TakeSnapshot()
	streamSnap := h.streams.TakeSnapshot()

	if err := h.attachValue(caller, value, tx.Op); err != nil {
		return nil, err
	}

	if err := h.dispatch(caller, value, tx); err != nil {
		h.bank.Restore(bankSnap)
		h.pools.Restore(poolSnap)
		h.streams.Restore(streamSnap)
		h.buffer.Discard()
		h.logger.Debug("tx reverted",
			zap.Uint64("seq", tx.Seq),
			zap.String("op", tx.Op),
			zap.Error(err),
		)
		return nil, err
	}

	return h.buffer.Drain(), nil
}

// attachValue moves the declared native value from the caller to the target
// engine's escrow address, mirroring a value-carrying call.
func (h *Host) attachValue(caller common.Address, value *big.Int, op string) error {
	if value.Sign() == 0 {
		return nil
	}
	var target common.Address
	switch op {
	case model.OpCreatePool, model.OpAddLiquidity, model.OpRemoveLiquidity,
		model.OpSwap, model.OpSwapMultiHop, model.OpFlashLoan:
		target = h.pools.Address()
	case model.OpCreateStream, model.OpRefuelStream, model.OpWithdrawStream,
		model.OpRefundStream, model.OpUpdateStream:
		target = h.streams.Address()
	default:
		return fmt.Errorf("%w: op %q", amm.ErrUnexpectedValue, op)
	}
	if err := h.bank.TransferNative(caller, target, value); err != nil {
		return fmt.Errorf("attach value: %w", err)
	}
	return nil
}

func (h *Host) dispatch(caller common.Address, value *big.Int, tx model.TxRecord) error {
	switch tx.Op {
	case model.OpMint:
		return h.execMint(tx.Params)
	case model.OpCreatePool:
		return h.execCreatePool(caller, value, tx.Params)
	case model.OpAddLiquidity:
		return h.execAddLiquidity(caller, value, tx.Params)
	case model.OpRemoveLiquidity:
		return h.execRemoveLiquidity(caller, value, tx.Params)
	case model.OpSwap:
		return h.execSwap(caller, value, tx.Params)
	case model.OpSwapMultiHop:
		return h.execSwapMultiHop(caller, value, tx.Params)
	case model.OpFlashLoan:
		return h.execFlashLoan(caller, value, tx.Params)
	case model.OpCreateStream:
		return h.execCreateStream(caller, value, tx.Params)
	case model.OpRefuelStream:
		return h.execRefuelStream(caller, value, tx.Params)
	case model.OpWithdrawStream:
		return h.execWithdrawStream(caller, value, tx.Params)
	case model.OpRefundStream:
		return h.execRefundStream(caller, value, tx.Params)
	case model.OpUpdateStream:
		return h.execUpdateStream(caller, value, tx.Params)
	case model.OpSetDefaultFee:
		var p model.SetFeeParams
		if err := decodeParams(tx.Params, &p); err != nil {
			return err
		}
		return h.pools.SetDefaultFeeBps(caller, p.FeeBps)
	case model.OpSetFlashLoanFee:
		var p model.SetFeeParams
		if err := decodeParams(tx.Params, &p); err != nil {
			return err
		}
		return h.pools.SetFlashLoanFeeBps(caller, p.FeeBps)
	case model.OpSetMinimumLiquidity:
		var p model.SetMinimumLiquidityParams
		if err := decodeParams(tx.Params, &p); err != nil {
			return err
		}
		floor, err := model.ParseAmount(p.Floor)
		if err != nil {
			return err
		}
		return h.pools.SetMinimumLiquidity(caller, floor)
	case model.OpPause:
		return h.pools.Pause(caller)
	case model.OpUnpause:
		return h.pools.Unpause(caller)
	default:
		return fmt.Errorf("unknown op %q", tx.Op)
	}
}

func (h *Host) execMint(raw json.RawMessage) error {
	var p model.MintParams
	if err := decodeParams(raw, &p); err != nil {
		return err
	}
	holder, err := parseAddress(p.Holder)
	if err != nil {
		return fmt.Errorf("holder: %w", err)
	}
	token, err := parseAddress(p.Token)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	amount, err := model.ParseAmount(p.Amount)
	if err != nil {
		return err
	}
	return h.bank.Mint(holder, token, amount)
}

func (h *Host) execCreatePool(caller common.Address, value *big.Int, raw json.RawMessage) error {
	var p model.CreatePoolParams
	if err := decodeParams(raw, &p); err != nil {
		return err
	}
	tokenA, err := parseAddress(p.TokenA)
	if err != nil {
		return fmt.Errorf("token_a: %w", err)
	}
	tokenB, err := parseAddress(p.TokenB)
	if err != nil {
		return fmt.Errorf("token_b: %w", err)
	}
	amountA, err := model.ParseAmount(p.AmountA)
	if err != nil {
		return err
	}
	amountB, err := model.ParseAmount(p.AmountB)
	if err != nil {
		return err
	}
	var minLiquidity *big.Int
	if p.MinLiquidity != "" {
		if minLiquidity, err = model.ParseAmount(p.MinLiquidity); err != nil {
			return err
		}
	}
	_, _, err = h.pools.CreatePool(caller, value, tokenA, tokenB, amountA, amountB, p.FeeBps, minLiquidity)
	return err
}

func (h *Host) execAddLiquidity(caller common.Address, value *big.Int, raw json.RawMessage) error {
	var p model.AddLiquidityParams
	if err := decodeParams(raw, &p); err != nil {
		return err
	}
	amount0, err := model.ParseAmount(p.Amount0)
	if err != nil {
		return err
	}
	amount1, err := model.ParseAmount(p.Amount1)
	if err != nil {
		return err
	}
	_, err = h.pools.AddLiquidity(caller, value, common.HexToHash(p.PoolID), amount0, amount1)
	return err
}

func (h *Host) execRemoveLiquidity(caller common.Address, value *big.Int, raw json.RawMessage) error {
	var p model.RemoveLiquidityParams
	if err := decodeParams(raw, &p); err != nil {
		return err
	}
	liquidity, err := model.ParseAmount(p.Liquidity)
	if err != nil {
		return err
	}
	_, _, err = h.pools.RemoveLiquidity(caller, value, common.HexToHash(p.PoolID), liquidity)
	return err
}

func (h *Host) execSwap(caller common.Address, value *big.Int, raw json.RawMessage) error {
	var p model.SwapParams
	if err := decodeParams(raw, &p); err != nil {
		return err
	}
	tokenIn, err := parseAddress(p.TokenIn)
	if err != nil {
		return fmt.Errorf("token_in: %w", err)
	}
	recipient, err := parseAddress(p.Recipient)
	if err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	amountIn, err := model.ParseAmount(p.AmountIn)
	if err != nil {
		return err
	}
	minAmountOut, err := model.ParseAmount(p.MinAmountOut)
	if err != nil {
		return err
	}
	_, err = h.pools.Swap(caller, value, common.HexToHash(p.PoolID), tokenIn, amountIn, minAmountOut, recipient)
	return err
}

func (h *Host) execSwapMultiHop(caller common.Address, value *big.Int, raw json.RawMessage) error {
	var p model.SwapMultiHopParams
	if err := decodeParams(raw, &p); err != nil {
		return err
	}
	path := make([]common.Address, len(p.Path))
	for i, s := range p.Path {
		token, err := parseAddress(s)
		if err != nil {
			return fmt.Errorf("path[%d]: %w", i, err)
		}
		path[i] = token
	}
	poolIDs := make([]common.Hash, len(p.PoolIDs))
	for i, s := range p.PoolIDs {
		poolIDs[i] = common.HexToHash(s)
	}
	recipient, err := parseAddress(p.Recipient)
	if err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	amountIn, err := model.ParseAmount(p.AmountIn)
	if err != nil {
		return err
	}
	minAmountOut, err := model.ParseAmount(p.MinAmountOut)
	if err != nil {
		return err
	}
	_, err = h.pools.SwapMultiHop(caller, value, path, poolIDs, amountIn, minAmountOut, recipient)
	return err
}

// execFlashLoan services a journal flash loan with a self-repaying borrower:
// principal plus fee returns from the caller's bank balance, simulating a
// borrower that used the funds and repaid within the callback.
func (h *Host) execFlashLoan(caller common.Address, value *big.Int, raw json.RawMessage) error {
	var p model.FlashLoanParams
	if err := decodeParams(raw, &p); err != nil {
		return err
	}
	token, err := parseAddress(p.Token)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	amount, err := model.ParseAmount(p.Amount)
	if err != nil {
		return err
	}
	data, err := decodeHexData(p.Data)
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}

	borrower := amm.FlashBorrowerFunc(func(loanToken common.Address, loanAmount, fee *big.Int, _ []byte) error {
		repay := new(big.Int).Add(loanAmount, fee)
		if loanToken == bank.Native {
			return h.bank.TransferNative(caller, h.pools.Address(), repay)
		}
		return h.bank.TransferToken(caller, h.pools.Address(), loanToken, repay)
	})

	_, err = h.pools.FlashLoan(caller, value, borrower, common.HexToHash(p.PoolID), token, amount, data)
	return err
}

func (h *Host) execCreateStream(caller common.Address, value *big.Int, raw json.RawMessage) error {
	var p model.CreateStreamParams
	if err := decodeParams(raw, &p); err != nil {
		return err
	}
	recipient, err := parseAddress(p.Recipient)
	if err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	token, err := parseAddress(p.Token)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	initialBalance, err := model.ParseAmount(p.InitialBalance)
	if err != nil {
		return err
	}
	rate, err := model.ParseAmount(p.PaymentPerBlock)
	if err != nil {
		return err
	}
	_, err = h.streams.CreateStream(caller, value, recipient, token, initialBalance, rate,
		streams.Timeframe{StartBlock: p.StartBlock, EndBlock: p.EndBlock})
	return err
}

func (h *Host) execRefuelStream(caller common.Address, value *big.Int, raw json.RawMessage) error {
	var p model.RefuelStreamParams
	if err := decodeParams(raw, &p); err != nil {
		return err
	}
	amount, err := model.ParseAmount(p.Amount)
	if err != nil {
		return err
	}
	return h.streams.Refuel(caller, value, p.StreamID, amount)
}

func (h *Host) execWithdrawStream(caller common.Address, value *big.Int, raw json.RawMessage) error {
	var p model.WithdrawStreamParams
	if err := decodeParams(raw, &p); err != nil {
		return err
	}
	_, err := h.streams.Withdraw(caller, value, p.StreamID)
	return err
}

func (h *Host) execRefundStream(caller common.Address, value *big.Int, raw json.RawMessage) error {
	var p model.RefundStreamParams
	if err := decodeParams(raw, &p); err != nil {
		return err
	}
	_, err := h.streams.Refund(caller, value, p.StreamID)
	return err
}

func (h *Host) execUpdateStream(caller common.Address, value *big.Int, raw json.RawMessage) error {
	var p model.UpdateStreamParams
	if err := decodeParams(raw, &p); err != nil {
		return err
	}
	rate, err := model.ParseAmount(p.PaymentPerBlock)
	if err != nil {
		return err
	}
	signature, err := decodeHexData(p.Signature)
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	return h.streams.UpdateStreamDetails(caller, value, p.StreamID, rate,
		streams.Timeframe{StartBlock: p.StartBlock, EndBlock: p.EndBlock}, signature)
}

func decodeParams(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing params")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address: %q", s)
	}
	return common.HexToAddress(s), nil
}

func decodeHexData(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

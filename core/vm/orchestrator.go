package vm

import (
	"context"
	"errors"

	"github.com/ethexec/evmcore/core/state"
	"github.com/ethexec/evmcore/core/types"
)

// ErrCallerBalanceTooLow is returned by ApplyMessage when the caller cannot
// cover gas_limit*gas_price (+ value); full validation is expected to have
// happened upstream (§4.J step 1), this is a last-resort consistency check.
var ErrCallerBalanceTooLow = errors.New("vm: caller balance insufficient for message")

// MessageKind distinguishes a top-level CALL transaction from a top-level
// CREATE (contract-deployment) transaction.
type MessageKind uint8

const (
	MessageKindCall MessageKind = iota
	MessageKindCreate
)

// AccessTuple is one entry of a transaction's EIP-2930 access list: an
// address and the storage slots within it to pre-warm.
type AccessTuple struct {
	Address     types.Address
	StorageKeys []types.Hash
}

// Message is the orchestrator's transaction input (§6 "Transaction input").
type Message struct {
	Kind   MessageKind
	Caller types.Address
	To     types.Address // ignored when Kind == MessageKindCreate
	Value  *types.Word
	Data   []byte // calldata for Call, init code for Create

	GasLimit    uint64
	GasPrice    *types.Word // effective price already resolved by the caller (tip+base, or legacy price)
	PriorityFee *types.Word // portion of GasPrice credited to the beneficiary rather than burned
	BaseFee     *types.Word // burned portion per unit gas; nil pre-London

	AccessList []AccessTuple
}

// ExecutionResult is the orchestrator's output (§6 "Execution output").
type ExecutionResult struct {
	Success      bool
	GasUsed      uint64
	GasRefunded  uint64
	Output       []byte
	Logs         []*types.Log
	StateDiff    map[types.Address]*state.AccountDiff
	CreatedAddress types.Address
}

// ApplyMessage runs a single transaction to completion: it deducts
// up-front gas, pre-warms the EIP-2929/3651 access set, spawns and drives
// the initial frame, computes refunds and fee settlement, and finalizes the
// journal into a flat state diff (§4.J).
func ApplyMessage(ctx context.Context, evm *EVM, msg *Message) (*ExecutionResult, error) {
	value := zeroIfNil(msg.Value)

	gasPrice := msg.GasPrice
	if gasPrice == nil {
		gasPrice = &types.Word{}
	}
	upfrontCost := new(types.Word).Mul(gasPrice, new(types.Word).SetUint64(msg.GasLimit))
	upfrontCost.Add(upfrontCost, &value)

	callerBalance, err := evm.State.Balance(msg.Caller)
	if err != nil {
		return nil, err
	}
	if callerBalance.Lt(upfrontCost) {
		return nil, ErrCallerBalanceTooLow
	}

	gasCost := new(types.Word).Mul(gasPrice, new(types.Word).SetUint64(msg.GasLimit))
	if err := evm.State.SubBalance(msg.Caller, gasCost); err != nil {
		return nil, err
	}
	// CreateAccountCheckpoint bumps the creator's nonce itself (§4.F), so a
	// top-level CREATE message must not also bump it here or the sender
	// would advance by two instead of one.
	if msg.Kind != MessageKindCreate {
		if _, _, err := evm.State.IncNonce(msg.Caller); err != nil {
			return nil, err
		}
	}

	if err := evm.warmInitialAccessSet(msg); err != nil {
		return nil, err
	}

	var call CallResult
	switch msg.Kind {
	case MessageKindCreate:
		call = evm.RunMessageCreate(&CreateInputs{
			Kind:     CreateKindCreate,
			Caller:   msg.Caller,
			Value:    msg.Value,
			InitCode: msg.Data,
			Gas:      msg.GasLimit,
		})
	default:
		call = evm.RunMessageCall(&CallInputs{
			Kind:        CallKindCall,
			Caller:      msg.Caller,
			Callee:      msg.To,
			StorageAddr: msg.To,
			Value:       msg.Value,
			Input:       msg.Data,
			Gas:         msg.GasLimit,
		})
	}

	gasUsed := msg.GasLimit - call.GasLeft
	refund := evm.State.Refund()
	if cap := gasUsed / evm.GasTable.MaxRefundQuotient; refund > cap {
		refund = cap
	}
	gasUsedAfterRefund := gasUsed - refund

	settledGas := new(types.Word).SetUint64(call.GasLeft + refund)
	settledGas.Mul(settledGas, gasPrice)
	if err := evm.State.AddBalance(msg.Caller, settledGas); err != nil {
		return nil, err
	}

	tip := msg.PriorityFee
	if tip == nil {
		tip = gasPrice
	}
	tipAmount := new(types.Word).Mul(tip, new(types.Word).SetUint64(gasUsedAfterRefund))
	if !tipAmount.IsZero() {
		if err := evm.State.AddBalance(evm.Block.Coinbase, tipAmount); err != nil {
			return nil, err
		}
	}
	// The base-fee portion is burned: it was already deducted from the
	// caller above and is never credited anywhere.

	diff, logs, err := evm.State.Finalize()
	if err != nil {
		return nil, err
	}

	if evm.Logger != nil {
		evm.Logger.Debug("applied message",
			"caller", msg.Caller,
			"kind", msg.Kind,
			"gas_used", gasUsedAfterRefund,
			"refund", refund,
			"success", call.Result.IsSuccess(),
			"result", call.Result,
		)
	}

	return &ExecutionResult{
		Success:        call.Result.IsSuccess(),
		GasUsed:        gasUsedAfterRefund,
		GasRefunded:    refund,
		Output:         call.Output,
		Logs:           logs,
		StateDiff:      diff,
		CreatedAddress: call.CreatedAddress,
	}, nil
}

// warmInitialAccessSet implements §4.J step 3: the caller, the callee (or
// to-be-created address), every active precompile, the access list, and
// (post-EIP-3651) the beneficiary all start warm.
func (evm *EVM) warmInitialAccessSet(msg *Message) error {
	if _, err := evm.State.WarmAddress(msg.Caller); err != nil {
		return err
	}

	if msg.Kind == MessageKindCreate {
		nonce, err := evm.State.Nonce(msg.Caller)
		if err != nil {
			return err
		}
		addr := createAddress(msg.Caller, nonce)
		if _, err := evm.State.WarmAddress(addr); err != nil {
			return err
		}
	} else {
		if _, err := evm.State.WarmAddress(msg.To); err != nil {
			return err
		}
	}

	if evm.Precompiles != nil {
		for b := byte(1); b <= 10; b++ {
			addr := types.BytesToAddress([]byte{b})
			if evm.Precompiles.IsPrecompile(addr) {
				if _, err := evm.State.WarmAddress(addr); err != nil {
					return err
				}
			}
		}
	}

	for _, tuple := range msg.AccessList {
		if _, err := evm.State.WarmAddress(tuple.Address); err != nil {
			return err
		}
		for _, slot := range tuple.StorageKeys {
			if _, err := evm.State.WarmSlot(tuple.Address, slot); err != nil {
				return err
			}
		}
	}

	if evm.Rules.IsShanghai {
		if _, err := evm.State.WarmAddress(evm.Block.Coinbase); err != nil {
			return err
		}
	}

	return nil
}

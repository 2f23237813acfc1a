package vm

import "github.com/ethexec/evmcore/core/types"

// newFrame carves a stack and memory out of evm's shared arenas and wraps
// them with the rest of a frame's bookkeeping. It never touches the
// journal: callers decide whether/when to take a Checkpoint.
func newFrame(evm *EVM, kind FrameKind, depth int, code Bytecode, caller, address, storageAddr types.Address, value types.Word, input []byte, gas uint64, isStatic bool) *Frame {
	return &Frame{
		Kind:        kind,
		Depth:       depth,
		Code:        code,
		Gas:         gas,
		Stack:       newStack(evm.stackArena),
		Memory:      newMemory(evm.memArena),
		Caller:      caller,
		Address:     address,
		StorageAddr: storageAddr,
		Value:       value,
		Input:       input,
		IsStatic:    isStatic,
		rules:       evm.Rules,
	}
}

// release returns a terminated frame's stack/memory to the shared arenas.
// Must be called exactly once, by the driver, right after the frame
// produces its terminal Action.
func (f *Frame) release() {
	f.Stack.release()
	f.Memory.release()
}

// run executes opcodes from the frame's current PC until it either
// terminates (Action.Done) or requests a child frame (Action.Call/Create/
// EOFCreate set) — the two suspension points §5 allows. It is the only
// entry point the call-frame driver (driver.go) calls into a frame with.
func (f *Frame) run(evm *EVM) Action {
	for {
		if evm.Ctx != nil {
			if err := evm.Ctx.Err(); err != nil {
				return Action{Done: true, Result: ResultOutOfGas}
			}
		}

		if f.PC >= uint64(f.Code.Len()) {
			return Action{Done: true, Result: ResultOK}
		}

		op := OpCode(f.Code.ByteAt(f.PC))

		if f.Code.IsEOF() && op.DisabledInEOF() {
			return Action{Done: true, Result: ResultInvalidOpcode}
		}

		info := evm.JumpTable[op]
		if info == nil {
			return Action{Done: true, Result: ResultInvalidOpcode}
		}

		if f.IsStatic && info.halts == false {
			if isStateChangingOp(op) {
				return Action{Done: true, Result: ResultStaticStateChange}
			}
		}

		sl := f.Stack.Len()
		if sl < info.minStack {
			return Action{Done: true, Result: ResultStackUnderflow}
		}
		if sl > info.maxStack {
			return Action{Done: true, Result: ResultStackOverflow}
		}

		if f.Gas < info.constantGas {
			return Action{Done: true, Result: ResultOutOfGas}
		}
		f.Gas -= info.constantGas

		if info.memorySize != nil {
			needed, err := info.memorySize(f.Stack)
			if err != nil {
				return Action{Done: true, Result: ResultInvalidMemoryAccess}
			}
			if info.dynamicGas {
				expGas, err := memoryExpansionGas(&evm.GasTable, uint64(f.Memory.Len()), needed)
				if err != nil {
					return Action{Done: true, Result: ResultOutOfGas}
				}
				if f.Gas < expGas {
					return Action{Done: true, Result: ResultOutOfGas}
				}
				f.Gas -= expGas
			}
			if needed > uint64(f.Memory.Len()) {
				f.Memory.Resize(needed)
			}
		}

		// PC advances before execute: only the jump opcodes override it.
		// A frame suspended by a child-frame opcode resumes at this
		// advanced PC, the next instruction.
		f.PC++
		if op.IsPush() {
			f.PC += uint64(op.PushSize())
		}

		action, err := info.execute(evm, f)
		if err != nil {
			return Action{Done: true, Result: mapExecError(err)}
		}
		if action != nil {
			return *action
		}
		// nil, nil: handler completed synchronously, continue the loop.
	}
}

// isStateChangingOp reports whether op is forbidden inside a STATICCALL
// context (§7 opcode errors: "opcode-disabled-in-current-mode"). LOGs,
// SSTORE, CREATE*, and SELFDESTRUCT all mutate state or emit events; CALL
// with nonzero value is checked separately by opCall itself since the
// static-ness violation there depends on a stack argument, not the opcode
// alone.
func isStateChangingOp(op OpCode) bool {
	switch op {
	case SSTORE, CREATE, CREATE2, SELFDESTRUCT,
		LOG0, LOG1, LOG2, LOG3, LOG4,
		TSTORE:
		return true
	}
	return false
}

// mapExecError translates a handler's returned error into the
// InstructionResult taxonomy of §7.
func mapExecError(err error) InstructionResult {
	switch err {
	case ErrStackOverflow:
		return ResultStackOverflow
	case ErrStackUnderflow:
		return ResultStackUnderflow
	case ErrInvalidMemoryOffset:
		return ResultInvalidMemoryAccess
	case ErrGasUintOverflow, ErrOutOfGas:
		return ResultOutOfGas
	case ErrInvalidJump:
		return ResultInvalidJump
	case ErrWriteProtection:
		return ResultStaticStateChange
	case ErrDepthExceeded:
		return ResultDepthExceeded
	case ErrInsufficientBalance:
		return ResultInsufficientBalance
	case ErrInitCodeTooLarge:
		return ResultCreateContractSizeLimit
	}
	return ResultInvalidOpcode
}

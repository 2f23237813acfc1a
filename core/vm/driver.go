package vm

import (
	"errors"

	"github.com/ethexec/evmcore/core/state"
	"github.com/ethexec/evmcore/core/types"
)

// frameStack is the explicit call-frame stack the driver walks instead of
// recursing through Go's own call stack (§4.H): every CALL-family and
// CREATE-family opcode suspends its frame with an Action rather than
// calling back into the interpreter, so nesting depth is bounded by
// len(stack), not by how deep Go lets a goroutine recurse.
type frameStack []*Frame

func (s *frameStack) push(f *Frame) { *s = append(*s, f) }

func (s *frameStack) pop() *Frame {
	n := len(*s)
	f := (*s)[n-1]
	*s = (*s)[:n-1]
	return f
}

func (s frameStack) top() *Frame { return s[len(s)-1] }

// CallResult is what the driver reports once the outermost frame of a
// message terminates — what the orchestrator (§4.J) sees for a top-level
// call or contract-creation transaction.
type CallResult struct {
	Output         []byte
	GasLeft        uint64
	Result         InstructionResult
	CreatedAddress types.Address
}

// childOutcome is the driver's internal decision for a requested child: a
// frame to push and continue interpreting, or an outcome the child never
// needed a frame to produce at all (a precompile, a depth/balance/collision
// rejection).
type childOutcome struct {
	frame   *Frame
	result  InstructionResult
	output  []byte
	gasLeft uint64
}

func zeroIfNil(w *types.Word) types.Word {
	if w == nil {
		return types.Word{}
	}
	return *w
}

// RunMessageCall drives a top-level CALL-shaped message: the orchestrator's
// entry point for an ordinary transaction or an eth_call.
func (evm *EVM) RunMessageCall(in *CallInputs) CallResult {
	outcome := evm.enterCall(0, in)
	if outcome.frame == nil {
		return CallResult{Output: outcome.output, GasLeft: outcome.gasLeft, Result: outcome.result}
	}
	return evm.drive(outcome.frame)
}

// RunMessageCreate drives a top-level CREATE-shaped message: a contract-
// creation transaction.
func (evm *EVM) RunMessageCreate(in *CreateInputs) CallResult {
	outcome := evm.enterCreate(0, in)
	if outcome.frame == nil {
		return CallResult{Output: outcome.output, GasLeft: outcome.gasLeft, Result: outcome.result}
	}
	return evm.drive(outcome.frame)
}

// drive runs frames to completion, pushing a child whenever one suspends
// with a request and resuming the parent with the child's outcome whenever
// one finishes, until the root frame itself terminates.
func (evm *EVM) drive(root *Frame) CallResult {
	stack := frameStack{root}

	for {
		f := stack.top()
		action := f.run(evm)

		if action.Done {
			stack.pop()
			if len(stack) == 0 {
				return evm.finalizeRoot(f, action)
			}
			parent := stack.top()
			evm.resumeParent(parent, f, action)
			f.release()
			continue
		}

		var outcome childOutcome
		switch {
		case action.Call != nil:
			outcome = evm.enterCall(f.Depth+1, action.Call)
		case action.Create != nil:
			outcome = evm.enterCreate(f.Depth+1, action.Create)
		case action.EOFCreate != nil:
			outcome = evm.enterEOFCreate(f.Depth+1, action.EOFCreate)
		default:
			// run() only returns a non-Done Action when one of the three
			// request fields is set; a bare nil here is a jump_table bug.
			panic("vm: suspended action carries no child request")
		}

		if outcome.frame == nil {
			evm.resumeDeclinedChild(f, action, outcome)
			continue
		}
		stack.push(outcome.frame)
	}
}

// finalizeRoot turns the outermost frame's terminal Action into the
// CallResult the orchestrator sees. Unlike a resumed parent, there is no
// caller stack slot to push a success word onto or memory to copy into —
// the caller-facing checkpoint decision still has to be made here, since
// the driver loop never ran a resumeParent for the root.
func (evm *EVM) finalizeRoot(f *Frame, action Action) CallResult {
	switch action.Result {
	case ResultOK:
		if f.Kind == FrameCreate || f.Kind == FrameEOFCreate {
			return evm.deployCreatedCode(f, action)
		}
		evm.State.CommitCheckpoint(f.Checkpoint)
		return CallResult{Output: action.Output, GasLeft: f.Gas, Result: ResultOK}
	case ResultRevert:
		evm.State.RevertToCheckpoint(f.Checkpoint)
		return CallResult{Output: action.Output, GasLeft: f.Gas, Result: ResultRevert}
	default:
		evm.State.RevertToCheckpoint(f.Checkpoint)
		return CallResult{Result: action.Result}
	}
}

// deployCreatedCode applies EIP-3541/EIP-170 and charges the per-byte
// deposit cost for a CREATE/CREATE2/EOFCREATE frame that returned
// successfully, finishing what finalizeRoot/resumeParent started.
func (evm *EVM) deployCreatedCode(f *Frame, action Action) CallResult {
	gas, result, ok := finalizeCreatedCode(&evm.GasTable, f.rules, action.Output)
	if !ok || f.Gas < gas {
		evm.State.RevertToCheckpoint(f.Checkpoint)
		if !ok {
			return CallResult{Result: result}
		}
		return CallResult{Result: ResultOutOfGas}
	}
	f.Gas -= gas
	if err := evm.State.SetCode(f.Address, action.Output); err != nil {
		evm.State.RevertToCheckpoint(f.Checkpoint)
		return CallResult{Result: ResultOutOfGas}
	}
	evm.State.CommitCheckpoint(f.Checkpoint)
	return CallResult{GasLeft: f.Gas, Result: ResultOK, CreatedAddress: f.Address}
}

// resumeParent applies a just-finished child frame's outcome to the frame
// that spawned it: committing or reverting its checkpoint, pushing the
// success/failure word CALL-family and CREATE-family opcodes each expect,
// copying return data, and crediting unused gas back.
func (evm *EVM) resumeParent(parent, child *Frame, action Action) {
	switch child.Kind {
	case FrameCreate, FrameEOFCreate:
		evm.resumeParentAfterCreate(parent, child, action)
	default:
		evm.resumeParentAfterCall(parent, child, action)
	}
}

func (evm *EVM) resumeParentAfterCall(parent, child *Frame, action Action) {
	var pushWord types.Word
	switch action.Result {
	case ResultOK:
		evm.State.CommitCheckpoint(child.Checkpoint)
		pushWord.SetOne()
		parent.ReturnData = action.Output
		parent.Gas += child.Gas
		copyReturnData(parent, child.RetOffset, child.RetLength, action.Output)
	case ResultRevert:
		evm.State.RevertToCheckpoint(child.Checkpoint)
		parent.ReturnData = action.Output
		parent.Gas += child.Gas
		copyReturnData(parent, child.RetOffset, child.RetLength, action.Output)
	default:
		evm.State.RevertToCheckpoint(child.Checkpoint)
		parent.ReturnData = nil
	}
	parent.Stack.Push(pushWord)
}

func (evm *EVM) resumeParentAfterCreate(parent, child *Frame, action Action) {
	var addrWord types.Word
	switch action.Result {
	case ResultOK:
		gas, _, ok := finalizeCreatedCode(&evm.GasTable, child.rules, action.Output)
		if ok && child.Gas >= gas {
			child.Gas -= gas
			if err := evm.State.SetCode(child.Address, action.Output); err == nil {
				evm.State.CommitCheckpoint(child.Checkpoint)
				addrWord = types.AddressToWord(child.Address)
				parent.Gas += child.Gas
				parent.ReturnData = nil
				parent.Stack.Push(addrWord)
				return
			}
		}
		evm.State.RevertToCheckpoint(child.Checkpoint)
		parent.ReturnData = nil
	case ResultRevert:
		evm.State.RevertToCheckpoint(child.Checkpoint)
		parent.ReturnData = action.Output
		parent.Gas += child.Gas
	default:
		evm.State.RevertToCheckpoint(child.Checkpoint)
		parent.ReturnData = nil
	}
	parent.Stack.Push(addrWord)
}

// resumeDeclinedChild applies the outcome of a request that never became a
// frame at all (depth limit, insufficient balance, address collision, or a
// synchronously-run precompile) to the frame that requested it.
func (evm *EVM) resumeDeclinedChild(parent *Frame, action Action, outcome childOutcome) {
	isCreate := action.Create != nil || action.EOFCreate != nil
	var word types.Word
	switch {
	case outcome.result == ResultOK && isCreate:
		// Unreachable in practice: a successful create always produces a
		// frame. Kept so the switch stays exhaustive over childOutcome's
		// contract.
	case outcome.result == ResultOK:
		word.SetOne()
		parent.ReturnData = outcome.output
		if action.Call != nil {
			copyReturnData(parent, action.Call.RetOffset, action.Call.RetLength, outcome.output)
		}
	default:
		parent.ReturnData = nil
	}
	parent.Gas += outcome.gasLeft
	parent.Stack.Push(word)
}

// copyReturnData writes min(retLength, len(data)) bytes of a finished
// child's output into the parent's memory at retOffset, leaving any
// remainder of the destination range untouched (§4.H "Return data").
func copyReturnData(parent *Frame, retOffset, retLength uint64, data []byte) {
	n := retLength
	if uint64(len(data)) < n {
		n = uint64(len(data))
	}
	if n == 0 {
		return
	}
	parent.Memory.Set(retOffset, data[:n])
}

// enterCall resolves a requested CALL/CALLCODE/DELEGATECALL/STATICCALL into
// either a pushable child frame or a synchronous outcome (precompile run,
// depth limit, insufficient balance) that never needed one.
func (evm *EVM) enterCall(depth int, in *CallInputs) childOutcome {
	if depth > MaxCallDepth {
		return childOutcome{result: ResultDepthExceeded, gasLeft: in.Gas}
	}

	value := zeroIfNil(in.Value)
	if !value.IsZero() {
		bal, err := evm.State.Balance(in.Caller)
		if err != nil || bal.Lt(&value) {
			return childOutcome{result: ResultInsufficientBalance, gasLeft: in.Gas}
		}
	}

	if evm.Precompiles != nil && evm.Precompiles.IsPrecompile(in.Callee) {
		return evm.runPrecompile(in)
	}

	cp := evm.State.Checkpoint()
	if !value.IsZero() {
		if err := evm.State.Transfer(in.Caller, in.StorageAddr, &value); err != nil {
			evm.State.RevertToCheckpoint(cp)
			return childOutcome{result: ResultInsufficientBalance, gasLeft: in.Gas}
		}
	} else {
		// A zero-value call still touches the target for EIP-161 purposes.
		if err := evm.State.Touch(in.StorageAddr); err != nil {
			evm.State.RevertToCheckpoint(cp)
			return childOutcome{result: ResultInvalidOpcode, gasLeft: in.Gas}
		}
	}

	code, err := evm.loadCode(in.Callee)
	if err != nil {
		evm.State.RevertToCheckpoint(cp)
		return childOutcome{result: ResultInvalidOpcode, gasLeft: in.Gas}
	}

	f := newFrame(evm, FrameCall, depth, code, in.Caller, in.Callee, in.StorageAddr, value, in.Input, in.Gas, in.IsStatic)
	f.Checkpoint = cp
	f.RetOffset, f.RetLength = in.RetOffset, in.RetLength
	return childOutcome{frame: f}
}

// runPrecompile executes a precompile synchronously: it never owns a stack
// or memory of its own, so it never becomes a Frame.
func (evm *EVM) runPrecompile(in *CallInputs) childOutcome {
	result, err := evm.Precompiles.Run(evm.Ctx, in.Callee, in.Input, in.IsStatic, in.Gas)
	if err != nil || result.GasUsed > in.Gas {
		return childOutcome{result: ResultOutOfGas}
	}
	return childOutcome{result: ResultOK, gasLeft: in.Gas - result.GasUsed, output: result.Output}
}

// loadCode fetches addr's executable bytes, resolving an EIP-7702
// delegation pointer to its target's code if one is set.
func (evm *EVM) loadCode(addr types.Address) (Bytecode, error) {
	resolved, delegate, isDelegated, err := evm.State.ResolveDelegatedCode(addr)
	if err != nil {
		return nil, err
	}
	if isDelegated {
		return DelegatedCode{Target: delegate, ResolvedCode: LegacyCode(resolved)}, nil
	}
	return LegacyCode(resolved), nil
}

// enterCreate resolves a requested CREATE/CREATE2 into a pushable child
// frame running the init code, per §4.F/§4.I.
func (evm *EVM) enterCreate(depth int, in *CreateInputs) childOutcome {
	if depth > MaxCallDepth {
		return childOutcome{result: ResultDepthExceeded, gasLeft: in.Gas}
	}

	value := zeroIfNil(in.Value)
	if !value.IsZero() {
		bal, err := evm.State.Balance(in.Caller)
		if err != nil || bal.Lt(&value) {
			return childOutcome{result: ResultInsufficientBalance, gasLeft: in.Gas}
		}
	}

	nonce, err := evm.State.Nonce(in.Caller)
	if err != nil {
		return childOutcome{result: ResultInvalidOpcode, gasLeft: in.Gas}
	}
	addr := deriveCreatedAddress(in, nonce)

	cp, err := evm.State.CreateAccountCheckpoint(in.Caller, addr, &value)
	if err != nil {
		if errors.Is(err, state.ErrCollision) {
			return childOutcome{result: ResultCreateCollision, gasLeft: in.Gas}
		}
		return childOutcome{result: ResultNonceOverflow, gasLeft: in.Gas}
	}

	f := newFrame(evm, FrameCreate, depth, LegacyCode(in.InitCode), in.Caller, addr, addr, value, nil, in.Gas, false)
	f.Checkpoint = cp
	f.CreatedAddress = addr
	return childOutcome{frame: f}
}

// enterEOFCreate resolves a requested EOFCREATE into a pushable child frame
// running the sub-container's code section against its data section, per
// EIP-7620. Address derivation follows CREATE2's scheme (the container
// itself stands in for init code), since an EOF contract has no legacy
// nonce-based creation path.
func (evm *EVM) enterEOFCreate(depth int, in *EOFCreateInputs) childOutcome {
	if depth > MaxCallDepth {
		return childOutcome{result: ResultDepthExceeded, gasLeft: in.Gas}
	}

	value := zeroIfNil(in.Value)
	if !value.IsZero() {
		bal, err := evm.State.Balance(in.Caller)
		if err != nil || bal.Lt(&value) {
			return childOutcome{result: ResultInsufficientBalance, gasLeft: in.Gas}
		}
	}

	hash := containerHash(in.Container)
	addr := create2Address(in.Caller, in.Salt, hash)

	cp, err := evm.State.CreateAccountCheckpoint(in.Caller, addr, &value)
	if err != nil {
		if errors.Is(err, state.ErrCollision) {
			return childOutcome{result: ResultCreateCollision, gasLeft: in.Gas}
		}
		return childOutcome{result: ResultNonceOverflow, gasLeft: in.Gas}
	}

	f := newFrame(evm, FrameEOFCreate, depth, in.Container, in.Caller, addr, addr, value, nil, in.Gas, false)
	f.Checkpoint = cp
	f.CreatedAddress = addr
	return childOutcome{frame: f}
}

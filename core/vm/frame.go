package vm

import (
	"github.com/ethexec/evmcore/core/params"
	"github.com/ethexec/evmcore/core/state"
	"github.com/ethexec/evmcore/core/types"
)

// FrameKind identifies the three ways a frame can come into existence.
type FrameKind uint8

const (
	FrameCall FrameKind = iota
	FrameCreate
	FrameEOFCreate
)

// CallKind distinguishes the CALL-family opcodes, each of which changes how
// the child frame's context (caller/callee/value/storage-owner) is derived
// from the parent's.
type CallKind uint8

const (
	CallKindCall CallKind = iota
	CallKindCallCode
	CallKindDelegateCall
	CallKindStaticCall
)

// InstructionResult is the terminal outcome of a frame, matching the
// taxonomy the call-frame driver (§4.H) switches on.
type InstructionResult uint8

const (
	ResultOK InstructionResult = iota
	ResultRevert
	ResultOutOfGas
	ResultStackUnderflow
	ResultStackOverflow
	ResultInvalidOpcode
	ResultInvalidJump
	ResultInvalidMemoryAccess
	ResultDepthExceeded
	ResultInsufficientBalance
	ResultNonceOverflow
	ResultCreateCollision
	ResultCreateContractStartingWithEF
	ResultCreateContractSizeLimit
	ResultStaticStateChange
)

// IsSuccess reports whether r represents a normal (non-reverting, non-
// halting) completion.
func (r InstructionResult) IsSuccess() bool { return r == ResultOK }

// IsRevert reports whether r is an explicit REVERT, as opposed to a hard
// halt — reverts propagate their output bytes, halts do not (§4.H).
func (r InstructionResult) IsRevert() bool { return r == ResultRevert }

// CallInputs fully describes a requested CALL/CALLCODE/DELEGATECALL/
// STATICCALL child frame, built by the interpreter and handed to the
// call-frame driver via Action::NewFrame.
type CallInputs struct {
	Kind        CallKind
	Caller      types.Address // address the callee will observe as CALLER
	Callee      types.Address // address whose code runs
	StorageAddr types.Address // address whose storage/balance the call affects
	Value       *types.Word   // nil for DELEGATECALL/STATICCALL (no transfer)
	Input       []byte
	Gas         uint64
	IsStatic    bool

	// RetOffset/RetLength identify where in the parent's memory the child's
	// output should be copied back to, once bounded by min(RetLength, len(output)).
	RetOffset uint64
	RetLength uint64
}

// CreateInputs describes a requested CREATE/CREATE2 child frame.
type CreateInputs struct {
	Kind     CreateKind
	Caller   types.Address
	Value    *types.Word
	InitCode []byte
	Salt     *types.Word // nil for CREATE
	Gas      uint64
}

// EOFCreateInputs describes a requested EOFCREATE child frame (§4.I). The
// sub-container is supplied pre-validated by the caller-controlled
// initcode-by-hash lookup, since container validation is out of scope.
type EOFCreateInputs struct {
	Caller    types.Address
	Value     *types.Word
	Container EOFCode
	Salt      types.Word
	Gas       uint64
}

// Action is what a single interpreter step, or a frame run to completion,
// reports back to the call-frame driver.
type Action struct {
	// NewFrame is set when the frame wants a child pushed. Exactly one of
	// Call/Create/EOFCreate is non-nil.
	Call      *CallInputs
	Create    *CreateInputs
	EOFCreate *EOFCreateInputs

	// Done is set when the frame has terminated (normally or via halt).
	Done   bool
	Result InstructionResult
	Output []byte // RETURN/REVERT data, or created-contract init-code output
}

// Frame is one call-tree node: its own interpreter state plus the
// bookkeeping the driver needs to resume the parent when this frame
// terminates.
type Frame struct {
	Kind  FrameKind
	Depth int

	Code     Bytecode
	PC       uint64
	Gas      uint64
	GasRefund uint64

	Stack  *Stack
	Memory *Memory

	ReturnData []byte // last completed child's output, visible to RETURNDATA*

	Caller      types.Address
	Address     types.Address // this frame's own identity (callee/created addr)
	StorageAddr types.Address // whose storage SLOAD/SSTORE affects (DELEGATECALL keeps parent's)
	Value       types.Word
	Input       []byte
	IsStatic    bool

	Checkpoint state.Checkpoint

	// Set only for FrameCreate/FrameEOFCreate: where the init code's return
	// value gets deployed.
	CreatedAddress types.Address

	// Set only when this frame was spawned by a CALL-family opcode: where
	// the parent wants the output copied back to.
	RetOffset uint64
	RetLength uint64

	rules params.Rules

	// jumpdests caches this frame's JUMPDEST analysis (computed lazily on
	// the first JUMP/JUMPI), since legacy code has no jump-destination
	// bitmap of its own the way an EOF container's validator would produce.
	jumpdests map[uint64]bool
}

package vm

import (
	"context"

	"github.com/ethexec/evmcore/core/params"
	"github.com/ethexec/evmcore/core/state"
	"github.com/ethexec/evmcore/core/types"
	"github.com/ethexec/evmcore/log"
)

// BlockContext carries the block-scoped values opcodes like COINBASE,
// TIMESTAMP, NUMBER, PREVRANDAO, GASLIMIT, BASEFEE, and BLOBBASEFEE read.
// It is supplied once by the orchestrator and never mutated mid-transaction.
type BlockContext struct {
	Coinbase    types.Address
	GasLimit    uint64
	Number      uint64
	Timestamp   uint64
	PrevRandao  types.Hash
	BaseFee     *types.Word
	BlobBaseFee *types.Word
}

// TxContext carries the transaction-scoped values ORIGIN, GASPRICE, and
// BLOBHASH read.
type TxContext struct {
	Origin     types.Address
	GasPrice   *types.Word
	BlobHashes []types.Hash
}

// PrecompileResult is what a precompile reports on a successful (possibly
// failing-but-charged) invocation.
type PrecompileResult struct {
	GasUsed uint64
	Output  []byte
}

// Precompiles is the external collaborator consumed interface (§6):
// IsPrecompile reports whether addr names a precompile active at the
// running hardfork, and Run executes it, returning an error for an address
// that names none.
type Precompiles interface {
	Run(ctx context.Context, addr types.Address, input []byte, isStatic bool, gasLimit uint64) (*PrecompileResult, error)
	IsPrecompile(addr types.Address) bool
}

// EVM is the read-mostly execution context shared by every frame in a
// transaction: the journaled state, the external Database and Precompiles
// collaborators, the hardfork-resolved gas table and jump table, and the
// block/transaction environment. Exactly one EVM exists per transaction;
// the call-frame driver (driver.go) is the only thing that advances which
// frame is "current" against it.
type EVM struct {
	Ctx context.Context

	State *state.JournaledState
	DB    state.Database

	Precompiles Precompiles

	Rules     params.Rules
	GasTable  GasTable
	JumpTable JumpTable

	Block BlockContext
	TxCtx TxContext
	ChainID *types.Word

	Logger *log.Logger

	stackArena *stackArena
	memArena   *memoryArena

	depth int
}

// NewEVM builds the per-transaction execution context. The stack and memory
// arenas are created fresh here and shared by every frame the driver pushes
// for the lifetime of this EVM (§4.D/§4.E).
func NewEVM(ctx context.Context, st *state.JournaledState, db state.Database, precompiles Precompiles, rules params.Rules, block BlockContext, txCtx TxContext, chainID *types.Word, logger *log.Logger) *EVM {
	return &EVM{
		Ctx:         ctx,
		State:       st,
		DB:          db,
		Precompiles: precompiles,
		Rules:       rules,
		GasTable:    NewGasTable(rules),
		JumpTable:   NewJumpTable(rules),
		Block:       block,
		TxCtx:       txCtx,
		ChainID:     chainID,
		Logger:      logger,
		stackArena:  newStackArena(),
		memArena:    newMemoryArena(),
	}
}

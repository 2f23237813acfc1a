package state

import (
	"github.com/ethexec/evmcore/core/types"
	"github.com/holiman/uint256"
)

// AccountMetadata is the subset of account state the Database can report
// directly, without a separate code fetch. Code is optional: a database may
// inline small code bodies or require a follow-up CodeByHash call.
type AccountMetadata struct {
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash types.Hash
	Code     []byte // optional; nil means "call CodeByHash"
}

// Database is the read-only backing-store collaborator (§6). The journaled
// state never writes through it; all mutation lives in the journal until the
// orchestrator finalizes a flat state diff. Every method may return a host
// error, which the orchestrator propagates unchanged, aborting the
// transaction without partial commitment.
type Database interface {
	// Basic returns account metadata, or (nil, nil) if the account does not
	// exist in the backing store.
	Basic(addr types.Address) (*AccountMetadata, error)

	// CodeByHash resolves a code hash to its bytes. Called when an
	// AccountMetadata.Code was not inlined.
	CodeByHash(hash types.Hash) ([]byte, error)

	// Storage reads one storage slot, returning the zero Hash if unset.
	Storage(addr types.Address, key types.Hash) (types.Hash, error)

	// BlockHash resolves a historical block number to its hash, for the
	// BLOCKHASH opcode.
	BlockHash(number uint64) (types.Hash, error)
}

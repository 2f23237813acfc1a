package types

import "github.com/holiman/uint256"

// Account is the in-memory representation of account state consulted and
// mutated by the interpreter through the Database/StateDB collaborator.
// It deliberately omits a storage trie root: root computation and
// persistence are the Database's concern, not the execution engine's.
type Account struct {
	Nonce    uint64
	Balance  *uint256.Int
	CodeHash Hash
}

// NewAccount returns a freshly created, empty account (zero balance, no
// code, nonce zero) as produced by CREATE/CREATE2 or an implicit touch.
func NewAccount() Account {
	return Account{
		Balance:  uint256.NewInt(0),
		CodeHash: EmptyCodeHash,
	}
}

// Empty reports whether the account is "empty" in the EIP-161 sense: zero
// nonce, zero balance, and no code. Empty accounts are pruned from state
// when touched outside of a transaction's own creation.
func (a Account) Empty() bool {
	return a.Nonce == 0 && (a.Balance == nil || a.Balance.IsZero()) && a.CodeHash == EmptyCodeHash
}

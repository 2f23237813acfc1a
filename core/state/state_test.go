package state

import (
	"testing"

	"github.com/ethexec/evmcore/core/params"
	"github.com/ethexec/evmcore/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// fakeDatabase is an in-memory stand-in for the host's read-only backing
// store, pre-seeded per test.
type fakeDatabase struct {
	accounts map[types.Address]*AccountMetadata
	storage  map[types.Address]map[types.Hash]types.Hash
	code     map[types.Hash][]byte
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{
		accounts: make(map[types.Address]*AccountMetadata),
		storage:  make(map[types.Address]map[types.Hash]types.Hash),
		code:     make(map[types.Hash][]byte),
	}
}

func (db *fakeDatabase) Basic(addr types.Address) (*AccountMetadata, error) {
	return db.accounts[addr], nil
}

func (db *fakeDatabase) CodeByHash(hash types.Hash) ([]byte, error) {
	return db.code[hash], nil
}

func (db *fakeDatabase) Storage(addr types.Address, key types.Hash) (types.Hash, error) {
	if slots, ok := db.storage[addr]; ok {
		return slots[key], nil
	}
	return types.Hash{}, nil
}

func (db *fakeDatabase) BlockHash(number uint64) (types.Hash, error) {
	return types.Hash{}, nil
}

func testAddr(b byte) types.Address {
	return types.BytesToAddress([]byte{b})
}

// TestCheckpointRevertAtomicity exercises testable property 1: reverting a
// checkpoint undoes every mutation made since, leaving the state exactly as
// it was at checkpoint time.
func TestCheckpointRevertAtomicity(t *testing.T) {
	db := newFakeDatabase()
	addr := testAddr(0x01)
	db.accounts[addr] = &AccountMetadata{Balance: uint256.NewInt(100), Nonce: 0, CodeHash: types.EmptyCodeHash}

	s := New(db, params.RulesFor(params.Cancun))

	balBefore, err := s.Balance(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(100), balBefore.Uint64())

	cp := s.Checkpoint()

	require.NoError(t, s.AddBalance(addr, uint256.NewInt(50)))
	require.NoError(t, s.SetNonce(addr, 7))
	key := types.BytesToHash([]byte{0x01})
	val := types.BytesToHash([]byte{0x02})
	_, err = s.SStore(addr, key, val)
	require.NoError(t, err)
	s.AddRefund(500)
	s.EmitLog(&types.Log{Address: addr})

	s.RevertToCheckpoint(cp)

	balAfter, err := s.Balance(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(100), balAfter.Uint64(), "balance must be restored on revert")

	nonceAfter, err := s.Nonce(addr)
	require.NoError(t, err)
	require.Zero(t, nonceAfter, "nonce must be restored on revert")

	readBack, _, err := s.SLoad(addr, key)
	require.NoError(t, err)
	require.Equal(t, types.Hash{}, readBack, "storage write must be undone on revert")

	require.Zero(t, s.Refund(), "refund counter must be undone on revert")
	require.Empty(t, s.Logs(), "emitted logs must be discarded on revert")
}

func TestCheckpointCommitKeepsMutations(t *testing.T) {
	db := newFakeDatabase()
	addr := testAddr(0x02)
	db.accounts[addr] = &AccountMetadata{Balance: uint256.NewInt(0), CodeHash: types.EmptyCodeHash}

	s := New(db, params.RulesFor(params.Cancun))

	cp := s.Checkpoint()
	require.NoError(t, s.AddBalance(addr, uint256.NewInt(10)))
	s.CommitCheckpoint(cp)

	bal, err := s.Balance(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(10), bal.Uint64())
}

// TestWarmSetRevertLaw exercises testable property 7: an address warmed
// only inside a reverted checkpoint goes back to cold; one warmed before
// the checkpoint stays warm.
func TestWarmSetRevertLaw(t *testing.T) {
	db := newFakeDatabase()
	a := testAddr(0x0A)
	b := testAddr(0x0B)
	db.accounts[a] = &AccountMetadata{Balance: uint256.NewInt(0), CodeHash: types.EmptyCodeHash}
	db.accounts[b] = &AccountMetadata{Balance: uint256.NewInt(0), CodeHash: types.EmptyCodeHash}

	s := New(db, params.RulesFor(params.Cancun))

	// a is warmed before any checkpoint.
	wasCold, err := s.WarmAddress(a)
	require.NoError(t, err)
	require.True(t, wasCold)

	cp := s.Checkpoint()
	_, err = s.WarmAddress(b)
	require.NoError(t, err)
	require.True(t, s.IsAddressWarm(b))

	s.RevertToCheckpoint(cp)

	require.True(t, s.IsAddressWarm(a), "a warm address from before the checkpoint stays warm")
	require.False(t, s.IsAddressWarm(b), "an address warmed only inside the reverted checkpoint goes cold")
}

func TestSelfDestructTransfersBalanceImmediately(t *testing.T) {
	db := newFakeDatabase()
	victim := testAddr(0x10)
	beneficiary := testAddr(0x11)
	db.accounts[victim] = &AccountMetadata{Balance: uint256.NewInt(1000), CodeHash: types.EmptyCodeHash}
	db.accounts[beneficiary] = &AccountMetadata{Balance: uint256.NewInt(0), CodeHash: types.EmptyCodeHash}

	s := New(db, params.RulesFor(params.Cancun))

	require.NoError(t, s.SelfDestruct(victim, beneficiary))

	victimBal, err := s.Balance(victim)
	require.NoError(t, err)
	require.Zero(t, victimBal.Uint64())

	benBal, err := s.Balance(beneficiary)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), benBal.Uint64())

	require.True(t, s.HasSelfDestructed(victim))
}

// TestFinalizePreCancunAlwaysDestroysSelfDestructedAccount covers the
// pre-EIP-6780 behavior: any queued self-destruct is a real removal from
// state, regardless of when the account was created.
func TestFinalizePreCancunAlwaysDestroysSelfDestructedAccount(t *testing.T) {
	db := newFakeDatabase()
	victim := testAddr(0x12)
	beneficiary := testAddr(0x13)
	db.accounts[victim] = &AccountMetadata{Balance: uint256.NewInt(1000), CodeHash: types.EmptyCodeHash}
	db.accounts[beneficiary] = &AccountMetadata{Balance: uint256.NewInt(0), CodeHash: types.EmptyCodeHash}

	s := New(db, params.RulesFor(params.London))

	require.NoError(t, s.SelfDestruct(victim, beneficiary))

	diff, _, err := s.Finalize()
	require.NoError(t, err)
	require.True(t, diff[victim].Destroyed, "pre-Cancun, a queued self-destruct always removes the account")
}

// TestFinalizePostCancunKeepsPreexistingAccountAlive covers EIP-6780: a
// self-destruct on an account that predates the transaction only moves the
// balance, it does not remove the account from state.
func TestFinalizePostCancunKeepsPreexistingAccountAlive(t *testing.T) {
	db := newFakeDatabase()
	victim := testAddr(0x14)
	beneficiary := testAddr(0x15)
	db.accounts[victim] = &AccountMetadata{Balance: uint256.NewInt(1000), Nonce: 1, CodeHash: types.EmptyCodeHash}
	db.accounts[beneficiary] = &AccountMetadata{Balance: uint256.NewInt(0), CodeHash: types.EmptyCodeHash}

	s := New(db, params.RulesFor(params.Cancun))

	require.NoError(t, s.SelfDestruct(victim, beneficiary))

	diff, _, err := s.Finalize()
	require.NoError(t, err)
	require.NotNilf(t, diff[victim], "the account must still be present in the diff")
	require.False(t, diff[victim].Destroyed, "post-Cancun, a pre-existing account survives its own self-destruct")
	require.Zero(t, diff[victim].Balance.Uint64(), "its balance must still have moved to the beneficiary")
}

// TestFinalizePostCancunDestroysAccountCreatedThisTx covers EIP-6780's other
// branch: an account created and then self-destructed within the same
// transaction is still fully removed.
func TestFinalizePostCancunDestroysAccountCreatedThisTx(t *testing.T) {
	db := newFakeDatabase()
	creator := testAddr(0x16)
	beneficiary := testAddr(0x17)
	db.accounts[creator] = &AccountMetadata{Balance: uint256.NewInt(1000), CodeHash: types.EmptyCodeHash}
	db.accounts[beneficiary] = &AccountMetadata{Balance: uint256.NewInt(0), CodeHash: types.EmptyCodeHash}

	s := New(db, params.RulesFor(params.Cancun))

	_, err := s.CreateAccountCheckpoint(creator, testAddr(0x18), uint256.NewInt(0))
	require.NoError(t, err)
	created := testAddr(0x18)

	require.NoError(t, s.SelfDestruct(created, beneficiary))

	diff, _, err := s.Finalize()
	require.NoError(t, err)
	require.True(t, diff[created].Destroyed, "an account created and destructed in the same tx is still removed post-Cancun")
}

// TestCreatedThisTxMarkingIsRevertedWithItsCheckpoint ensures the EIP-6780
// same-tx-creation marker is journaled like any other mutation: reverting
// the checkpoint that created the account also undoes the marking.
func TestCreatedThisTxMarkingIsRevertedWithItsCheckpoint(t *testing.T) {
	db := newFakeDatabase()
	creator := testAddr(0x19)
	db.accounts[creator] = &AccountMetadata{Balance: uint256.NewInt(1000), CodeHash: types.EmptyCodeHash}

	s := New(db, params.RulesFor(params.Cancun))

	outer := s.Checkpoint()
	created := testAddr(0x1A)
	_, err := s.CreateAccountCheckpoint(creator, created, uint256.NewInt(0))
	require.NoError(t, err)
	require.Contains(t, s.createdThisTx, created)

	s.RevertToCheckpoint(outer)
	require.NotContains(t, s.createdThisTx, created)
}

func TestCreateAccountCheckpointRejectsCollision(t *testing.T) {
	db := newFakeDatabase()
	creator := testAddr(0x20)
	existing := testAddr(0x21)
	db.accounts[creator] = &AccountMetadata{Balance: uint256.NewInt(100), CodeHash: types.EmptyCodeHash}
	db.accounts[existing] = &AccountMetadata{Balance: uint256.NewInt(0), Nonce: 1, CodeHash: types.EmptyCodeHash}

	s := New(db, params.RulesFor(params.Cancun))

	_, err := s.CreateAccountCheckpoint(creator, existing, uint256.NewInt(0))
	require.ErrorIs(t, err, ErrCollision)
}

func TestCreateAccountCheckpointIncrementsCreatorNonce(t *testing.T) {
	db := newFakeDatabase()
	creator := testAddr(0x30)
	fresh := testAddr(0x31)
	db.accounts[creator] = &AccountMetadata{Balance: uint256.NewInt(100), CodeHash: types.EmptyCodeHash}

	s := New(db, params.RulesFor(params.Cancun))

	_, err := s.CreateAccountCheckpoint(creator, fresh, uint256.NewInt(0))
	require.NoError(t, err)

	nonce, err := s.Nonce(creator)
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)

	require.True(t, s.IsAddressWarm(fresh))
}

package state

import (
	"github.com/ethexec/evmcore/core/types"
	"github.com/holiman/uint256"
)

// journalEntry is a revertible state change. Every mutating method on
// JournaledState appends one of these before mutating, recording exactly
// enough information to undo the change.
type journalEntry interface {
	revert(s *JournaledState)
}

// journal is a flat, append-only list of tagged entries. A per-account diff
// structure would need to track "what changed" separately from "what it was
// before"; a flat list makes revert a trivial reverse-order replay and keeps
// representation size small even across the 100k+-entry journals routine in
// large transactions (see design notes).
type journal struct {
	entries   []journalEntry
	snapshots map[int]int // checkpoint ID -> entry index at capture time
	nextID    int
}

func newJournal() *journal {
	return &journal{
		snapshots: make(map[int]int),
	}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) length() int {
	return len(j.entries)
}

// snapshot captures the current journal length as a checkpoint.
func (j *journal) snapshot() int {
	id := j.nextID
	j.nextID++
	j.snapshots[id] = len(j.entries)
	return id
}

// commit discards a checkpoint without undoing anything: the entries above
// it become permanent at this depth (they may still be reverted by an older,
// enclosing checkpoint).
func (j *journal) commit(id int) {
	delete(j.snapshots, id)
}

// revertToSnapshot replays undo entries from the end of the journal down to
// the checkpoint index, then truncates. Any checkpoint captured after this
// one is invalidated, matching "a reverted access rolls back warming
// atomically with other mutations" (§5).
func (j *journal) revertToSnapshot(id int, s *JournaledState) {
	idx, ok := j.snapshots[id]
	if !ok {
		return
	}
	for i := len(j.entries) - 1; i >= idx; i-- {
		j.entries[i].revert(s)
	}
	j.entries = j.entries[:idx]

	for sid := range j.snapshots {
		if sid >= id {
			delete(j.snapshots, sid)
		}
	}
}

// --- Concrete journal entries ---

type createAccountChange struct {
	addr types.Address
	prev *stateObject // nil if the account didn't exist before
}

func (ch createAccountChange) revert(s *JournaledState) {
	if ch.prev == nil {
		delete(s.objects, ch.addr)
	} else {
		s.objects[ch.addr] = ch.prev
	}
}

type balanceChange struct {
	addr types.Address
	prev *uint256.Int
}

func (ch balanceChange) revert(s *JournaledState) {
	if obj := s.objects[ch.addr]; obj != nil {
		obj.account.Balance = ch.prev
	}
}

type nonceChange struct {
	addr types.Address
	prev uint64
}

func (ch nonceChange) revert(s *JournaledState) {
	if obj := s.objects[ch.addr]; obj != nil {
		obj.account.Nonce = ch.prev
	}
}

type codeChange struct {
	addr     types.Address
	prevCode []byte
	prevHash types.Hash
}

func (ch codeChange) revert(s *JournaledState) {
	if obj := s.objects[ch.addr]; obj != nil {
		obj.code = ch.prevCode
		obj.account.CodeHash = ch.prevHash
	}
}

type storageChange struct {
	addr       types.Address
	key        types.Hash
	prev       types.Hash
	prevExists bool // true if the key was present in dirtyStorage before
}

func (ch storageChange) revert(s *JournaledState) {
	if obj := s.objects[ch.addr]; obj != nil {
		if ch.prevExists {
			obj.dirtyStorage[ch.key] = ch.prev
		} else {
			delete(obj.dirtyStorage, ch.key)
		}
	}
}

type transientStorageChange struct {
	addr    types.Address
	key     types.Hash
	prev    types.Hash
	existed bool
}

func (ch transientStorageChange) revert(s *JournaledState) {
	if !ch.existed {
		delete(s.transient[ch.addr], ch.key)
		if len(s.transient[ch.addr]) == 0 {
			delete(s.transient, ch.addr)
		}
		return
	}
	s.transient[ch.addr][ch.key] = ch.prev
}

type accessListAddAccountChange struct {
	addr types.Address
}

func (ch accessListAddAccountChange) revert(s *JournaledState) {
	s.accessList.DeleteAddress(ch.addr)
}

type accessListAddSlotChange struct {
	addr types.Address
	slot types.Hash
}

func (ch accessListAddSlotChange) revert(s *JournaledState) {
	s.accessList.DeleteSlot(ch.addr, ch.slot)
}

type refundChange struct {
	prev uint64
}

func (ch refundChange) revert(s *JournaledState) {
	s.refund = ch.prev
}

type logChange struct {
	prevLen int
}

func (ch logChange) revert(s *JournaledState) {
	s.logs = s.logs[:ch.prevLen]
}

// touchedChange records that an account was newly marked "touched" this
// transaction (EIP-161 candidate for deletion if it turns out empty).
type touchedChange struct {
	addr types.Address
}

func (ch touchedChange) revert(s *JournaledState) {
	delete(s.touched, ch.addr)
}

// createdThisTxChange records an address entering the current transaction's
// created-this-tx set, for EIP-6780's same-tx-creation test (§4.J step 8).
type createdThisTxChange struct {
	addr types.Address
}

func (ch createdThisTxChange) revert(s *JournaledState) {
	delete(s.createdThisTx, ch.addr)
}

// selfDestructChange records a SELFDESTRUCT queue entry being added or an
// existing account's balance being zeroed by it.
type selfDestructChange struct {
	addr          types.Address
	wasQueued     bool
	prevBalance   *uint256.Int
	prevBeneficiary types.Address
}

func (ch selfDestructChange) revert(s *JournaledState) {
	if obj := s.objects[ch.addr]; obj != nil {
		obj.account.Balance = ch.prevBalance
	}
	if !ch.wasQueued {
		delete(s.selfDestructs, ch.addr)
	} else {
		s.selfDestructs[ch.addr] = ch.prevBeneficiary
	}
}

// Package state implements the journaled account view the interpreter reads
// and writes through (§4.F): balances, nonces, code, storage, transient
// storage, the warm/cold access list, logs, and the self-destruct queue, all
// revertible to any previously captured Checkpoint.
package state

import (
	"errors"

	"github.com/ethexec/evmcore/core/params"
	"github.com/ethexec/evmcore/core/types"
	"github.com/ethexec/evmcore/crypto"
	"github.com/holiman/uint256"
)

// ErrCollision is returned by CreateAccountCheckpoint when the target
// address is already occupied by code or a nonzero nonce.
var ErrCollision = errors.New("state: create collision at occupied address")

// Checkpoint is an opaque journal index captured at frame entry. Reverting
// to it undoes every mutation recorded since; committing discards the
// bookkeeping without undoing anything.
type Checkpoint int

// DelegationPrefix is the 3-byte EIP-7702 marker (0xef0100) that precedes a
// 20-byte delegate address in a delegated account's code.
var DelegationPrefix = [3]byte{0xef, 0x01, 0x00}

// stateObject is the in-memory, lazily-hydrated view of one account. It is
// created on first touch (either a journal mutation or a Database load) and
// lives for the lifetime of the JournaledState (i.e. one transaction).
type stateObject struct {
	account types.Account

	code         []byte
	codeLoaded   bool // whether `code` reflects the account's real code yet

	dirtyStorage map[types.Hash]types.Hash // written this transaction
	origStorage  map[types.Hash]types.Hash // cache of Database reads, pre-tx values

	loadedFromDB bool // Basic() already consulted for this account
	exists       bool // false until first observed in the DB or explicitly created
}

func newStateObject() *stateObject {
	return &stateObject{
		account:      types.NewAccount(),
		dirtyStorage: make(map[types.Hash]types.Hash),
		origStorage:  make(map[types.Hash]types.Hash),
	}
}

// SStoreResult reports the three-value picture an SSTORE needs to compute
// gas and refund (§4.C): the slot's value before the transaction, its value
// before this particular write, and whether the slot was cold before this
// access.
type SStoreResult struct {
	Original types.Hash
	Present  types.Hash
	New      types.Hash
	WasCold  bool
}

// AccountDiff is one account's net change in the flat state diff the
// orchestrator produces at the end of a transaction (§4.J step 9).
type AccountDiff struct {
	Address      types.Address
	Balance      *uint256.Int
	Nonce        uint64
	Code         []byte // nil if unchanged
	CodeHash     types.Hash
	Storage      map[types.Hash]types.Hash // changed slots only
	Destroyed    bool                      // account should be removed from state
}

// JournaledState is the core's only state-mutation surface. Every public
// method appends an undo entry to the journal before mutating, per §4.F.
type JournaledState struct {
	db    Database
	rules params.Rules

	objects map[types.Address]*stateObject
	journal *journal

	accessList *accessList
	transient  map[types.Address]map[types.Hash]types.Hash

	logs   []*types.Log
	refund uint64

	// touched tracks every address observably interacted with this
	// transaction, for EIP-161 state-clear: a touched account that ends up
	// empty is removed from the diff.
	touched map[types.Address]struct{}

	// selfDestructs is the self-destruct queue: addr -> beneficiary. Processed
	// by the orchestrator after the frame stack completes (§4.J step 8).
	selfDestructs map[types.Address]types.Address
	destructOrder []types.Address

	// createdThisTx marks every address CreateAccountCheckpoint has minted
	// during the current transaction. Post-Cancun (EIP-6780), SELFDESTRUCT
	// only removes the account from state if it is in this set; otherwise
	// it just moves the balance (§4.J step 8).
	createdThisTx map[types.Address]struct{}
}

// New constructs a JournaledState backed by db, applying the given hardfork
// rules to state-clear and access-list behavior.
func New(db Database, rules params.Rules) *JournaledState {
	return &JournaledState{
		db:            db,
		rules:         rules,
		objects:       make(map[types.Address]*stateObject),
		journal:       newJournal(),
		accessList:    newAccessList(),
		transient:     make(map[types.Address]map[types.Hash]types.Hash),
		touched:       make(map[types.Address]struct{}),
		selfDestructs: make(map[types.Address]types.Address),
		createdThisTx: make(map[types.Address]struct{}),
	}
}

// load returns the state object for addr, hydrating it from the Database on
// first use. A host read error is returned verbatim (§6: "fatal host
// error... propagates out of the orchestrator unchanged").
func (s *JournaledState) load(addr types.Address) (*stateObject, error) {
	if obj, ok := s.objects[addr]; ok {
		return obj, nil
	}
	obj := newStateObject()
	meta, err := s.db.Basic(addr)
	if err != nil {
		return nil, err
	}
	obj.loadedFromDB = true
	if meta != nil {
		obj.exists = true
		obj.account.Nonce = meta.Nonce
		obj.account.CodeHash = meta.CodeHash
		if meta.Balance != nil {
			obj.account.Balance = meta.Balance.Clone()
		}
		if meta.Code != nil {
			obj.code = meta.Code
			obj.codeLoaded = true
		}
	}
	s.objects[addr] = obj
	return obj, nil
}

// CreateAccount explicitly marks addr as existing (used by CALL when the
// target has no prior account, and internally by CreateAccountCheckpoint).
func (s *JournaledState) CreateAccount(addr types.Address) error {
	obj, err := s.load(addr)
	if err != nil {
		return err
	}
	s.journal.append(createAccountChange{addr: addr, prev: cloneStateObject(obj)})
	obj.exists = true
	return nil
}

func cloneStateObject(obj *stateObject) *stateObject {
	cp := &stateObject{
		account:      obj.account,
		code:         obj.code,
		codeLoaded:   obj.codeLoaded,
		dirtyStorage: make(map[types.Hash]types.Hash, len(obj.dirtyStorage)),
		origStorage:  obj.origStorage,
		loadedFromDB: obj.loadedFromDB,
		exists:       obj.exists,
	}
	cp.account.Balance = obj.account.Balance.Clone()
	for k, v := range obj.dirtyStorage {
		cp.dirtyStorage[k] = v
	}
	return cp
}

func (s *JournaledState) mustLoad(addr types.Address) *stateObject {
	obj, err := s.load(addr)
	if err != nil {
		// Callers that cannot propagate an error (e.g. revert replay) only
		// ever touch objects already hydrated earlier in the same
		// transaction, so this path is unreachable in practice; treat it as
		// a fresh empty object rather than panicking the interpreter.
		obj = newStateObject()
		s.objects[addr] = obj
	}
	return obj
}

// Touch marks addr as observably interacted with this transaction (EIP-161).
func (s *JournaledState) Touch(addr types.Address) error {
	if _, ok := s.touched[addr]; ok {
		return nil
	}
	if _, err := s.load(addr); err != nil {
		return err
	}
	s.journal.append(touchedChange{addr: addr})
	s.touched[addr] = struct{}{}
	return nil
}

// --- Balance, nonce, code ---

func (s *JournaledState) Balance(addr types.Address) (*uint256.Int, error) {
	obj, err := s.load(addr)
	if err != nil {
		return nil, err
	}
	return obj.account.Balance.Clone(), nil
}

func (s *JournaledState) Nonce(addr types.Address) (uint64, error) {
	obj, err := s.load(addr)
	if err != nil {
		return 0, err
	}
	return obj.account.Nonce, nil
}

// IncNonce increments addr's nonce, returning the new value. It reports
// ok=false on u64 overflow (§4.F: "option-empty on u64-overflow") without
// mutating anything.
func (s *JournaledState) IncNonce(addr types.Address) (newNonce uint64, ok bool, err error) {
	obj, err := s.load(addr)
	if err != nil {
		return 0, false, err
	}
	if obj.account.Nonce == ^uint64(0) {
		return 0, false, nil
	}
	s.journal.append(nonceChange{addr: addr, prev: obj.account.Nonce})
	obj.account.Nonce++
	obj.exists = true
	return obj.account.Nonce, true, nil
}

func (s *JournaledState) SetNonce(addr types.Address, nonce uint64) error {
	obj, err := s.load(addr)
	if err != nil {
		return err
	}
	s.journal.append(nonceChange{addr: addr, prev: obj.account.Nonce})
	obj.account.Nonce = nonce
	obj.exists = true
	return nil
}

func (s *JournaledState) AddBalance(addr types.Address, amount *uint256.Int) error {
	obj, err := s.load(addr)
	if err != nil {
		return err
	}
	s.journal.append(balanceChange{addr: addr, prev: obj.account.Balance.Clone()})
	next := new(uint256.Int).Add(obj.account.Balance, amount)
	obj.account.Balance = next
	obj.exists = true
	return nil
}

// ErrInsufficientBalance is returned by Transfer and SubBalance when the
// source account cannot afford the debit.
var ErrInsufficientBalance = errors.New("state: insufficient balance")

func (s *JournaledState) SubBalance(addr types.Address, amount *uint256.Int) error {
	obj, err := s.load(addr)
	if err != nil {
		return err
	}
	if obj.account.Balance.Lt(amount) {
		return ErrInsufficientBalance
	}
	s.journal.append(balanceChange{addr: addr, prev: obj.account.Balance.Clone()})
	next := new(uint256.Int).Sub(obj.account.Balance, amount)
	obj.account.Balance = next
	return nil
}

// Transfer moves value from one account to another atomically: either both
// legs apply or neither does.
func (s *JournaledState) Transfer(from, to types.Address, value *uint256.Int) error {
	if value.IsZero() {
		return nil
	}
	if err := s.SubBalance(from, value); err != nil {
		return err
	}
	return s.AddBalance(to, value)
}

func (s *JournaledState) CodeHash(addr types.Address) (types.Hash, error) {
	obj, err := s.load(addr)
	if err != nil {
		return types.Hash{}, err
	}
	return obj.account.CodeHash, nil
}

func (s *JournaledState) Code(addr types.Address) ([]byte, error) {
	obj, err := s.load(addr)
	if err != nil {
		return nil, err
	}
	if obj.codeLoaded {
		return obj.code, nil
	}
	if obj.account.CodeHash == types.EmptyCodeHash || obj.account.CodeHash.IsZero() {
		obj.codeLoaded = true
		return nil, nil
	}
	code, err := s.db.CodeByHash(obj.account.CodeHash)
	if err != nil {
		return nil, err
	}
	obj.code = code
	obj.codeLoaded = true
	return code, nil
}

func (s *JournaledState) SetCode(addr types.Address, code []byte) error {
	obj, err := s.load(addr)
	if err != nil {
		return err
	}
	prevCode := obj.code
	prevHash := obj.account.CodeHash
	s.journal.append(codeChange{addr: addr, prevCode: prevCode, prevHash: prevHash})
	obj.code = code
	obj.codeLoaded = true
	obj.exists = true
	if len(code) == 0 {
		obj.account.CodeHash = types.EmptyCodeHash
	} else {
		obj.account.CodeHash = crypto.Keccak256Hash(code)
	}
	return nil
}

// ResolveDelegatedCode follows an EIP-7702 delegation designator if addr's
// code is one, warming the delegate address per §4.F's
// load_account_delegated. It returns the code that should actually execute
// and the address it warmed (equal to addr if not delegated).
func (s *JournaledState) ResolveDelegatedCode(addr types.Address) (code []byte, delegate types.Address, isDelegated bool, err error) {
	raw, err := s.Code(addr)
	if err != nil {
		return nil, types.Address{}, false, err
	}
	if len(raw) != 23 || raw[0] != DelegationPrefix[0] || raw[1] != DelegationPrefix[1] || raw[2] != DelegationPrefix[2] {
		return raw, addr, false, nil
	}
	target := types.BytesToAddress(raw[3:])
	_, err = s.WarmAddress(target)
	if err != nil {
		return nil, types.Address{}, false, err
	}
	targetCode, err := s.Code(target)
	if err != nil {
		return nil, types.Address{}, false, err
	}
	return targetCode, target, true, nil
}

// --- Storage ---

func (s *JournaledState) loadOriginal(obj *stateObject, addr types.Address, key types.Hash) (types.Hash, error) {
	if v, ok := obj.origStorage[key]; ok {
		return v, nil
	}
	v, err := s.db.Storage(addr, key)
	if err != nil {
		return types.Hash{}, err
	}
	obj.origStorage[key] = v
	return v, nil
}

// SLoad returns the current value of a storage slot and whether this access
// just warmed it (wasCold == true means the caller must charge the cold
// price).
func (s *JournaledState) SLoad(addr types.Address, key types.Hash) (value types.Hash, wasCold bool, err error) {
	obj, err := s.load(addr)
	if err != nil {
		return types.Hash{}, false, err
	}
	wasCold, err = s.WarmSlot(addr, key)
	if err != nil {
		return types.Hash{}, false, err
	}
	if v, ok := obj.dirtyStorage[key]; ok {
		return v, wasCold, nil
	}
	v, err := s.loadOriginal(obj, addr, key)
	if err != nil {
		return types.Hash{}, false, err
	}
	return v, wasCold, nil
}

// SStore writes a storage slot and returns the three-value picture needed
// for gas/refund computation (§4.C).
func (s *JournaledState) SStore(addr types.Address, key types.Hash, newVal types.Hash) (SStoreResult, error) {
	obj, err := s.load(addr)
	if err != nil {
		return SStoreResult{}, err
	}
	wasCold, err := s.WarmSlot(addr, key)
	if err != nil {
		return SStoreResult{}, err
	}
	original, err := s.loadOriginal(obj, addr, key)
	if err != nil {
		return SStoreResult{}, err
	}
	present, prevExists := obj.dirtyStorage[key]
	if !prevExists {
		present = original
	}

	s.journal.append(storageChange{addr: addr, key: key, prev: present, prevExists: prevExists})
	obj.dirtyStorage[key] = newVal

	return SStoreResult{Original: original, Present: present, New: newVal, WasCold: wasCold}, nil
}

// --- Transient storage (EIP-1153) ---

func (s *JournaledState) TLoad(addr types.Address, key types.Hash) types.Hash {
	if slots, ok := s.transient[addr]; ok {
		return slots[key]
	}
	return types.Hash{}
}

func (s *JournaledState) TStore(addr types.Address, key types.Hash, value types.Hash) {
	slots, existed := s.transient[addr]
	var prev types.Hash
	keyExisted := false
	if existed {
		prev, keyExisted = slots[key]
	}
	s.journal.append(transientStorageChange{addr: addr, key: key, prev: prev, existed: keyExisted})
	if !existed {
		slots = make(map[types.Hash]types.Hash)
		s.transient[addr] = slots
	}
	slots[key] = value
}

// ClearTransientStorage discards all transient storage. Called by the
// orchestrator at transaction end (EIP-1153: no cross-transaction lifetime).
func (s *JournaledState) ClearTransientStorage() {
	s.transient = make(map[types.Address]map[types.Hash]types.Hash)
}

// --- Existence ---

func (s *JournaledState) Exists(addr types.Address) (bool, error) {
	obj, err := s.load(addr)
	if err != nil {
		return false, err
	}
	return obj.exists, nil
}

func (s *JournaledState) Empty(addr types.Address) (bool, error) {
	obj, err := s.load(addr)
	if err != nil {
		return false, err
	}
	acct := obj.account
	return acct.Nonce == 0 && acct.Balance.IsZero() && (acct.CodeHash == types.EmptyCodeHash || acct.CodeHash.IsZero()), nil
}

// --- Access list (EIP-2929) ---

// WarmAddress marks addr as accessed, returning whether it was cold before
// this call.
func (s *JournaledState) WarmAddress(addr types.Address) (wasCold bool, err error) {
	if _, err := s.load(addr); err != nil {
		return false, err
	}
	if s.accessList.AddAddress(addr) {
		return false, nil
	}
	s.journal.append(accessListAddAccountChange{addr: addr})
	return true, nil
}

// WarmSlot marks (addr, slot) as accessed, returning whether the slot was
// cold before this call. It always also warms the address.
func (s *JournaledState) WarmSlot(addr types.Address, slot types.Hash) (wasCold bool, err error) {
	if _, err := s.load(addr); err != nil {
		return false, err
	}
	addrPresent, slotPresent := s.accessList.AddSlot(addr, slot)
	if !addrPresent {
		s.journal.append(accessListAddAccountChange{addr: addr})
	}
	if !slotPresent {
		s.journal.append(accessListAddSlotChange{addr: addr, slot: slot})
	}
	return !slotPresent, nil
}

func (s *JournaledState) IsAddressWarm(addr types.Address) bool {
	return s.accessList.ContainsAddress(addr)
}

func (s *JournaledState) IsSlotWarm(addr types.Address, slot types.Hash) bool {
	_, ok := s.accessList.ContainsSlot(addr, slot)
	return ok
}

// --- Logs ---

func (s *JournaledState) EmitLog(log *types.Log) {
	s.journal.append(logChange{prevLen: len(s.logs)})
	s.logs = append(s.logs, log)
}

func (s *JournaledState) Logs() []*types.Log {
	return s.logs
}

// --- Refund counter ---

func (s *JournaledState) AddRefund(gas uint64) {
	s.journal.append(refundChange{prev: s.refund})
	s.refund += gas
}

func (s *JournaledState) SubRefund(gas uint64) {
	s.journal.append(refundChange{prev: s.refund})
	if gas > s.refund {
		s.refund = 0
		return
	}
	s.refund -= gas
}

func (s *JournaledState) Refund() uint64 {
	return s.refund
}

// --- Self-destruct ---

// SelfDestruct queues addr for removal with beneficiary credited its
// balance. The balance move happens immediately (so BALANCE queries inside
// the same frame observe it); removal from the diff is deferred to the
// orchestrator's post-execution sweep (§4.J step 8), since a later
// SELFDESTRUCT of the same account, or a revert, must be able to undo it.
func (s *JournaledState) SelfDestruct(addr, beneficiary types.Address) error {
	obj, err := s.load(addr)
	if err != nil {
		return err
	}
	prevBeneficiary, wasQueued := s.selfDestructs[addr]
	s.journal.append(selfDestructChange{
		addr:            addr,
		wasQueued:       wasQueued,
		prevBalance:     obj.account.Balance.Clone(),
		prevBeneficiary: prevBeneficiary,
	})

	bal := obj.account.Balance.Clone()
	obj.account.Balance = uint256.NewInt(0)
	if !bal.IsZero() && addr != beneficiary {
		if err := s.AddBalance(beneficiary, bal); err != nil {
			return err
		}
	}

	if !wasQueued {
		s.destructOrder = append(s.destructOrder, addr)
	}
	s.selfDestructs[addr] = beneficiary
	return nil
}

func (s *JournaledState) HasSelfDestructed(addr types.Address) bool {
	_, ok := s.selfDestructs[addr]
	return ok
}

// --- Checkpoints ---

func (s *JournaledState) Checkpoint() Checkpoint {
	return Checkpoint(s.journal.snapshot())
}

func (s *JournaledState) CommitCheckpoint(cp Checkpoint) {
	s.journal.commit(int(cp))
}

func (s *JournaledState) RevertToCheckpoint(cp Checkpoint) {
	s.journal.revertToSnapshot(int(cp), s)
}

// CreateAccountCheckpoint implements the CREATE/CREATE2/EOFCREATE account
// setup of §4.F: verifies the target is empty-except-balance, increments
// the creator's nonce, transfers the endowment, warms the new address, and
// returns a checkpoint the caller commits on successful deploy or reverts
// on any create-return failure (§4.I). The checkpoint is taken after the
// nonce increment, so reverting it keeps the creator's new nonce.
func (s *JournaledState) CreateAccountCheckpoint(creator, addr types.Address, value *uint256.Int) (Checkpoint, error) {
	target, err := s.load(addr)
	if err != nil {
		return 0, err
	}
	hasCode := target.account.CodeHash != types.EmptyCodeHash && !target.account.CodeHash.IsZero()
	if target.account.Nonce != 0 || hasCode {
		return 0, ErrCollision
	}

	if _, ok, err := s.IncNonce(creator); err != nil {
		return 0, err
	} else if !ok {
		return 0, errors.New("state: creator nonce overflow")
	}

	// The nonce increment lies outside the returned checkpoint.
	cp := s.Checkpoint()

	s.journal.append(createAccountChange{addr: addr, prev: cloneStateObject(target)})
	newObj := newStateObject()
	newObj.account.Nonce = 1
	newObj.account.Balance = target.account.Balance.Clone()
	newObj.exists = true
	s.objects[addr] = newObj

	s.journal.append(createdThisTxChange{addr: addr})
	s.createdThisTx[addr] = struct{}{}

	if _, err := s.WarmAddress(addr); err != nil {
		s.RevertToCheckpoint(cp)
		return 0, err
	}

	if value != nil && !value.IsZero() {
		if err := s.Transfer(creator, addr, value); err != nil {
			s.RevertToCheckpoint(cp)
			return 0, err
		}
	}

	return cp, nil
}

// --- Finalization ---

// Finalize runs the EIP-161 state-clear sweep (delete touched-and-empty
// accounts), processes the self-destruct queue under EIP-6780's
// same-tx-creation gate, and produces the flat state diff the orchestrator
// returns to the host (§4.J step 8-9).
func (s *JournaledState) Finalize() (map[types.Address]*AccountDiff, []*types.Log, error) {
	diff := make(map[types.Address]*AccountDiff)

	// EIP-6780 (Cancun): SELFDESTRUCT only removes an account from state if
	// it was created earlier in this same transaction. Pre-Cancun, every
	// queued self-destruct removes the account. Post-Cancun, for an account
	// that predates the transaction, the balance has already moved in
	// SelfDestruct and the account itself survives (falling through to the
	// normal diff path below, and still eligible for the EIP-161 sweep if
	// that leaves it empty).
	destroyed := make(map[types.Address]bool, len(s.destructOrder))
	for _, addr := range s.destructOrder {
		if !s.rules.IsCancun {
			destroyed[addr] = true
			continue
		}
		if _, createdThisTx := s.createdThisTx[addr]; createdThisTx {
			destroyed[addr] = true
		}
	}

	for addr, obj := range s.objects {
		if destroyed[addr] {
			diff[addr] = &AccountDiff{Address: addr, Destroyed: true}
			continue
		}
		if s.rules.IsSpuriousDragon {
			if _, touched := s.touched[addr]; touched {
				empty, err := s.Empty(addr)
				if err != nil {
					return nil, nil, err
				}
				if empty {
					diff[addr] = &AccountDiff{Address: addr, Destroyed: true}
					continue
				}
			}
		}

		storage := make(map[types.Hash]types.Hash, len(obj.dirtyStorage))
		for k, v := range obj.dirtyStorage {
			storage[k] = v
		}
		d := &AccountDiff{
			Address:  addr,
			Balance:  obj.account.Balance.Clone(),
			Nonce:    obj.account.Nonce,
			CodeHash: obj.account.CodeHash,
			Storage:  storage,
		}
		if obj.codeLoaded {
			d.Code = obj.code
		}
		diff[addr] = d
	}

	return diff, s.logs, nil
}

package vm

import (
	"github.com/ethexec/evmcore/core/types"
	"github.com/ethexec/evmcore/crypto"
)

// --- arithmetic -------------------------------------------------------

func opAdd(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Peek(0)
	y.Add(&x, y)
	return nil, nil
}

func opSub(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Peek(0)
	y.Sub(&x, y)
	return nil, nil
}

func opMul(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Peek(0)
	y.Mul(&x, y)
	return nil, nil
}

func opDiv(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Peek(0)
	y.Div(&x, y)
	return nil, nil
}

func opSdiv(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Peek(0)
	y.SDiv(&x, y)
	return nil, nil
}

func opMod(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Peek(0)
	y.Mod(&x, y)
	return nil, nil
}

func opSmod(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Peek(0)
	y.SMod(&x, y)
	return nil, nil
}

func opAddmod(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Pop()
	z, _ := f.Stack.Peek(0)
	if z.IsZero() {
		z.Clear()
	} else {
		z.AddMod(&x, &y, z)
	}
	return nil, nil
}

func opMulmod(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Pop()
	z, _ := f.Stack.Peek(0)
	if z.IsZero() {
		z.Clear()
	} else {
		z.MulMod(&x, &y, z)
	}
	return nil, nil
}

func opExp(evm *EVM, f *Frame) (*Action, error) {
	base, _ := f.Stack.Pop()
	exponent, _ := f.Stack.Peek(0)
	exponent.Exp(&base, exponent)
	return nil, nil
}

func opSignExtend(evm *EVM, f *Frame) (*Action, error) {
	back, _ := f.Stack.Pop()
	num, _ := f.Stack.Peek(0)
	num.ExtendSign(num, &back)
	return nil, nil
}

// --- comparison & bitwise ----------------------------------------------

func opLt(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Peek(0)
	if x.Lt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opGt(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Peek(0)
	if x.Gt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opSlt(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Peek(0)
	if x.Slt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opSgt(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Peek(0)
	if x.Sgt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opEq(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Peek(0)
	if x.Eq(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opIsZero(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Peek(0)
	if x.IsZero() {
		x.SetOne()
	} else {
		x.Clear()
	}
	return nil, nil
}

func opAnd(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Peek(0)
	y.And(&x, y)
	return nil, nil
}

func opOr(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Peek(0)
	y.Or(&x, y)
	return nil, nil
}

func opXor(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Pop()
	y, _ := f.Stack.Peek(0)
	y.Xor(&x, y)
	return nil, nil
}

func opNot(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Peek(0)
	x.Not(x)
	return nil, nil
}

func opByte(evm *EVM, f *Frame) (*Action, error) {
	th, _ := f.Stack.Pop()
	val, _ := f.Stack.Peek(0)
	val.Byte(&th)
	return nil, nil
}

func opShl(evm *EVM, f *Frame) (*Action, error) {
	shift, _ := f.Stack.Pop()
	value, _ := f.Stack.Peek(0)
	if shift.LtUint64(256) {
		value.Lsh(value, uint(shift.Uint64()))
	} else {
		value.Clear()
	}
	return nil, nil
}

func opShr(evm *EVM, f *Frame) (*Action, error) {
	shift, _ := f.Stack.Pop()
	value, _ := f.Stack.Peek(0)
	if shift.LtUint64(256) {
		value.Rsh(value, uint(shift.Uint64()))
	} else {
		value.Clear()
	}
	return nil, nil
}

func opSar(evm *EVM, f *Frame) (*Action, error) {
	shift, _ := f.Stack.Pop()
	value, _ := f.Stack.Peek(0)
	if shift.GtUint64(255) {
		if value.Sign() >= 0 {
			value.Clear()
		} else {
			value.SetAllOne()
		}
		return nil, nil
	}
	value.SRsh(value, uint(shift.Uint64()))
	return nil, nil
}

// --- environment --------------------------------------------------------

func opAddress(evm *EVM, f *Frame) (*Action, error) {
	f.Stack.Push(types.AddressToWord(f.Address))
	return nil, nil
}

func opOrigin(evm *EVM, f *Frame) (*Action, error) {
	f.Stack.Push(types.AddressToWord(evm.TxCtx.Origin))
	return nil, nil
}

func opCaller(evm *EVM, f *Frame) (*Action, error) {
	f.Stack.Push(types.AddressToWord(f.Caller))
	return nil, nil
}

func opCallValue(evm *EVM, f *Frame) (*Action, error) {
	f.Stack.Push(f.Value)
	return nil, nil
}

func opCalldataLoad(evm *EVM, f *Frame) (*Action, error) {
	x, _ := f.Stack.Peek(0)
	offset := x.Uint64()
	data := make([]byte, 32)
	if x.IsUint64() && offset < uint64(len(f.Input)) {
		copy(data, f.Input[offset:])
	}
	x.SetBytes(data)
	return nil, nil
}

func opCalldataSize(evm *EVM, f *Frame) (*Action, error) {
	var w types.Word
	w.SetUint64(uint64(len(f.Input)))
	f.Stack.Push(w)
	return nil, nil
}

func opCalldataCopy(evm *EVM, f *Frame) (*Action, error) {
	memOffset, _ := f.Stack.Pop()
	dataOffset, _ := f.Stack.Pop()
	length, _ := f.Stack.Pop()
	l := length.Uint64()
	if l == 0 {
		return nil, nil
	}
	data := make([]byte, l)
	if dataOffset.IsUint64() {
		dOff := dataOffset.Uint64()
		if dOff < uint64(len(f.Input)) {
			copy(data, f.Input[dOff:])
		}
	}
	f.Memory.Set(memOffset.Uint64(), data)
	return nil, nil
}

func opCodeSize(evm *EVM, f *Frame) (*Action, error) {
	var w types.Word
	w.SetUint64(uint64(f.Code.Len()))
	f.Stack.Push(w)
	return nil, nil
}

func opCodeCopy(evm *EVM, f *Frame) (*Action, error) {
	memOffset, _ := f.Stack.Pop()
	codeOffset, _ := f.Stack.Pop()
	length, _ := f.Stack.Pop()
	l := length.Uint64()
	if l == 0 {
		return nil, nil
	}
	var cOff uint64
	if codeOffset.IsUint64() {
		cOff = codeOffset.Uint64()
	} else {
		cOff = uint64(f.Code.Len())
	}
	data := f.Code.Slice(cOff, l)
	f.Memory.Set(memOffset.Uint64(), data)
	return nil, nil
}

func opGasPrice(evm *EVM, f *Frame) (*Action, error) {
	if evm.TxCtx.GasPrice != nil {
		f.Stack.Push(*evm.TxCtx.GasPrice)
	} else {
		f.Stack.Push(types.Word{})
	}
	return nil, nil
}

func opCoinbase(evm *EVM, f *Frame) (*Action, error) {
	f.Stack.Push(types.AddressToWord(evm.Block.Coinbase))
	return nil, nil
}

func opTimestamp(evm *EVM, f *Frame) (*Action, error) {
	var w types.Word
	w.SetUint64(evm.Block.Timestamp)
	f.Stack.Push(w)
	return nil, nil
}

func opNumber(evm *EVM, f *Frame) (*Action, error) {
	var w types.Word
	w.SetUint64(evm.Block.Number)
	f.Stack.Push(w)
	return nil, nil
}

func opPrevRandao(evm *EVM, f *Frame) (*Action, error) {
	f.Stack.Push(types.WordFromHash(evm.Block.PrevRandao))
	return nil, nil
}

func opGasLimit(evm *EVM, f *Frame) (*Action, error) {
	var w types.Word
	w.SetUint64(evm.Block.GasLimit)
	f.Stack.Push(w)
	return nil, nil
}

func opChainID(evm *EVM, f *Frame) (*Action, error) {
	if evm.ChainID != nil {
		f.Stack.Push(*evm.ChainID)
	} else {
		f.Stack.Push(types.Word{})
	}
	return nil, nil
}

func opBaseFee(evm *EVM, f *Frame) (*Action, error) {
	if evm.Block.BaseFee != nil {
		f.Stack.Push(*evm.Block.BaseFee)
	} else {
		f.Stack.Push(types.Word{})
	}
	return nil, nil
}

func opBlobBaseFee(evm *EVM, f *Frame) (*Action, error) {
	if evm.Block.BlobBaseFee != nil {
		f.Stack.Push(*evm.Block.BlobBaseFee)
	} else {
		f.Stack.Push(types.Word{})
	}
	return nil, nil
}

func opBlobHash(evm *EVM, f *Frame) (*Action, error) {
	idx, _ := f.Stack.Peek(0)
	if idx.IsUint64() {
		i := idx.Uint64()
		if i < uint64(len(evm.TxCtx.BlobHashes)) {
			idx.SetBytes(evm.TxCtx.BlobHashes[i].Bytes())
			return nil, nil
		}
	}
	idx.Clear()
	return nil, nil
}

func opBlockhash(evm *EVM, f *Frame) (*Action, error) {
	num, _ := f.Stack.Peek(0)
	if !num.IsUint64() {
		num.Clear()
		return nil, nil
	}
	n := num.Uint64()
	var lower uint64
	if evm.Block.Number > 256 {
		lower = evm.Block.Number - 256
	}
	if n >= lower && n < evm.Block.Number && evm.DB != nil {
		hash, err := evm.DB.BlockHash(n)
		if err == nil {
			num.SetBytes(hash.Bytes())
			return nil, nil
		}
	}
	num.Clear()
	return nil, nil
}

// --- stack/memory/control housekeeping ----------------------------------

func opPop(evm *EVM, f *Frame) (*Action, error) {
	_, _ = f.Stack.Pop()
	return nil, nil
}

func opPc(evm *EVM, f *Frame) (*Action, error) {
	var w types.Word
	w.SetUint64(f.PC - 1) // PC already advanced past this opcode byte
	f.Stack.Push(w)
	return nil, nil
}

func opMsize(evm *EVM, f *Frame) (*Action, error) {
	var w types.Word
	w.SetUint64(uint64(f.Memory.Len()))
	f.Stack.Push(w)
	return nil, nil
}

func opGas(evm *EVM, f *Frame) (*Action, error) {
	var w types.Word
	w.SetUint64(f.Gas)
	f.Stack.Push(w)
	return nil, nil
}

func opJumpdest(evm *EVM, f *Frame) (*Action, error) { return nil, nil }

func opStop(evm *EVM, f *Frame) (*Action, error) {
	return &Action{Done: true, Result: ResultOK}, nil
}

func opInvalid(evm *EVM, f *Frame) (*Action, error) {
	return &Action{Done: true, Result: ResultInvalidOpcode}, nil
}

func opReturn(evm *EVM, f *Frame) (*Action, error) {
	offset, _ := f.Stack.Pop()
	size, _ := f.Stack.Pop()
	out := f.Memory.Get(offset.Uint64(), size.Uint64())
	return &Action{Done: true, Result: ResultOK, Output: out}, nil
}

func opRevert(evm *EVM, f *Frame) (*Action, error) {
	offset, _ := f.Stack.Pop()
	size, _ := f.Stack.Pop()
	out := f.Memory.Get(offset.Uint64(), size.Uint64())
	return &Action{Done: true, Result: ResultRevert, Output: out}, nil
}

func opMload(evm *EVM, f *Frame) (*Action, error) {
	offset, _ := f.Stack.Peek(0)
	data := f.Memory.Get(offset.Uint64(), 32)
	offset.SetBytes(data)
	return nil, nil
}

func opMstore(evm *EVM, f *Frame) (*Action, error) {
	offset, _ := f.Stack.Pop()
	val, _ := f.Stack.Pop()
	f.Memory.SetWord(offset.Uint64(), val)
	return nil, nil
}

func opMstore8(evm *EVM, f *Frame) (*Action, error) {
	offset, _ := f.Stack.Pop()
	val, _ := f.Stack.Pop()
	f.Memory.SetByte(offset.Uint64(), byte(val.Uint64()))
	return nil, nil
}

func opMcopy(evm *EVM, f *Frame) (*Action, error) {
	dst, _ := f.Stack.Pop()
	src, _ := f.Stack.Pop()
	length, _ := f.Stack.Pop()
	f.Memory.Copy(dst.Uint64(), src.Uint64(), length.Uint64())
	return nil, nil
}

func opJump(evm *EVM, f *Frame) (*Action, error) {
	pos, _ := f.Stack.Pop()
	if !validJumpDest(f, &pos) {
		return nil, ErrInvalidJump
	}
	f.PC = pos.Uint64()
	return nil, nil
}

func opJumpi(evm *EVM, f *Frame) (*Action, error) {
	pos, _ := f.Stack.Pop()
	cond, _ := f.Stack.Pop()
	if cond.Sign() != 0 {
		if !validJumpDest(f, &pos) {
			return nil, ErrInvalidJump
		}
		f.PC = pos.Uint64()
	}
	return nil, nil
}

// validJumpDest reports whether dest names a JUMPDEST opcode that is not
// itself embedded inside an earlier PUSH's immediate bytes. The scan is
// cached per frame since a loop re-executes the same JUMP many times.
func validJumpDest(f *Frame, dest *types.Word) bool {
	if !dest.IsUint64() {
		return false
	}
	udest := dest.Uint64()
	if udest >= uint64(f.Code.Len()) {
		return false
	}
	if OpCode(f.Code.ByteAt(udest)) != JUMPDEST {
		return false
	}
	if f.jumpdests == nil {
		f.jumpdests = analyzeJumpDests(f.Code)
	}
	return f.jumpdests[udest]
}

// chargeAccountAccess charges the cold or warm price for touching addr's
// account-level state (balance/code/nonce), per EIP-2929: the cold account
// access price for a cold address, and for a warm one the same
// WARM_STORAGE_READ_COST constant as storage reads. BALANCE, EXTCODE*,
// DELEGATECALL and STATICCALL charge through it; CALL and CALLCODE charge
// the same prices through callValueCost, and SELFDESTRUCT charges only the
// cold surcharge, through selfDestructGas.
func chargeAccountAccess(evm *EVM, f *Frame, wasCold bool) error {
	cost := evm.GasTable.WarmStorageReadCost
	if wasCold {
		cost = evm.GasTable.ColdAccountAccessCost
	}
	if f.Gas < cost {
		return ErrOutOfGas
	}
	f.Gas -= cost
	return nil
}

func analyzeJumpDests(code Bytecode) map[uint64]bool {
	dests := make(map[uint64]bool)
	n := uint64(code.Len())
	for i := uint64(0); i < n; i++ {
		op := OpCode(code.ByteAt(i))
		if op == JUMPDEST {
			dests[i] = true
		}
		if op.IsPush() {
			i += uint64(op.PushSize())
		}
	}
	return dests
}

func opPush0(evm *EVM, f *Frame) (*Action, error) {
	f.Stack.Push(types.Word{})
	return nil, nil
}

// makePush returns an executionFunc pushing the n immediate bytes following
// the opcode, zero-padded if the code ends early. PC has already been
// advanced past both the opcode and its immediate by the interpreter loop.
func makePush(n int) executionFunc {
	return func(evm *EVM, f *Frame) (*Action, error) {
		start := f.PC - uint64(n)
		data := f.Code.Slice(start, uint64(n))
		f.Stack.PushBytes(data)
		return nil, nil
	}
}

// makeDup returns an executionFunc duplicating the nth stack item (1-indexed).
func makeDup(n int) executionFunc {
	return func(evm *EVM, f *Frame) (*Action, error) {
		f.Stack.Dup(n)
		return nil, nil
	}
}

// makeSwap returns an executionFunc swapping the top with the nth item below it.
func makeSwap(n int) executionFunc {
	return func(evm *EVM, f *Frame) (*Action, error) {
		f.Stack.Swap(n)
		return nil, nil
	}
}

// --- hashing --------------------------------------------------------------

func opKeccak256(evm *EVM, f *Frame) (*Action, error) {
	offset, _ := f.Stack.Pop()
	size, _ := f.Stack.Peek(0)
	data := f.Memory.Get(offset.Uint64(), size.Uint64())
	hash := crypto.Keccak256(data)
	size.SetBytes(hash)
	return nil, nil
}

// --- storage ----------------------------------------------------------

func opSload(evm *EVM, f *Frame) (*Action, error) {
	loc, _ := f.Stack.Peek(0)
	key := types.WordToHash(loc)
	val, wasCold, err := evm.State.SLoad(f.StorageAddr, key)
	if err != nil {
		return nil, err
	}
	cost := evm.GasTable.WarmStorageReadCost
	if wasCold {
		cost = evm.GasTable.ColdSloadCost
	}
	if f.Gas < cost {
		return nil, ErrOutOfGas
	}
	f.Gas -= cost
	loc.SetBytes(val.Bytes())
	return nil, nil
}

func opSstore(evm *EVM, f *Frame) (*Action, error) {
	if f.IsStatic {
		return nil, ErrWriteProtection
	}
	loc, _ := f.Stack.Pop()
	val, _ := f.Stack.Pop()
	key := types.WordToHash(&loc)
	newVal := types.WordToHash(&val)

	res, err := evm.State.SStore(f.StorageAddr, key, newVal)
	if err != nil {
		return nil, err
	}
	gas, refund := sstoreGas(&evm.GasTable, [32]byte(res.Original), [32]byte(res.Present), [32]byte(res.New), res.WasCold)
	if f.Gas < gas {
		return nil, ErrOutOfGas
	}
	f.Gas -= gas
	if refund > 0 {
		evm.State.AddRefund(uint64(refund))
	} else if refund < 0 {
		evm.State.SubRefund(uint64(-refund))
	}
	return nil, nil
}

func opTload(evm *EVM, f *Frame) (*Action, error) {
	if f.Gas < evm.GasTable.TLoadGas {
		return nil, ErrOutOfGas
	}
	f.Gas -= evm.GasTable.TLoadGas
	loc, _ := f.Stack.Peek(0)
	key := types.WordToHash(loc)
	val := evm.State.TLoad(f.StorageAddr, key)
	loc.SetBytes(val.Bytes())
	return nil, nil
}

func opTstore(evm *EVM, f *Frame) (*Action, error) {
	if f.IsStatic {
		return nil, ErrWriteProtection
	}
	if f.Gas < evm.GasTable.TStoreGas {
		return nil, ErrOutOfGas
	}
	f.Gas -= evm.GasTable.TStoreGas
	loc, _ := f.Stack.Pop()
	val, _ := f.Stack.Pop()
	evm.State.TStore(f.StorageAddr, types.WordToHash(&loc), types.WordToHash(&val))
	return nil, nil
}

// --- balance / account introspection -------------------------------------

func opBalance(evm *EVM, f *Frame) (*Action, error) {
	slot, _ := f.Stack.Peek(0)
	addr := types.WordToAddress(slot)
	wasCold, err := evm.State.WarmAddress(addr)
	if err != nil {
		return nil, err
	}
	if err := chargeAccountAccess(evm, f, wasCold); err != nil {
		return nil, err
	}
	bal, err := evm.State.Balance(addr)
	if err != nil {
		return nil, err
	}
	slot.Set(bal)
	return nil, nil
}

func opSelfBalance(evm *EVM, f *Frame) (*Action, error) {
	bal, err := evm.State.Balance(f.Address)
	if err != nil {
		return nil, err
	}
	f.Stack.Push(*bal)
	return nil, nil
}

func opExtcodesize(evm *EVM, f *Frame) (*Action, error) {
	slot, _ := f.Stack.Peek(0)
	addr := types.WordToAddress(slot)
	wasCold, err := evm.State.WarmAddress(addr)
	if err != nil {
		return nil, err
	}
	if err := chargeAccountAccess(evm, f, wasCold); err != nil {
		return nil, err
	}
	code, err := evm.State.Code(addr)
	if err != nil {
		return nil, err
	}
	slot.SetUint64(uint64(len(code)))
	return nil, nil
}

func opExtcodehash(evm *EVM, f *Frame) (*Action, error) {
	slot, _ := f.Stack.Peek(0)
	addr := types.WordToAddress(slot)
	wasCold, err := evm.State.WarmAddress(addr)
	if err != nil {
		return nil, err
	}
	if err := chargeAccountAccess(evm, f, wasCold); err != nil {
		return nil, err
	}
	exists, err := evm.State.Exists(addr)
	if err != nil {
		return nil, err
	}
	if !exists {
		slot.Clear()
		return nil, nil
	}
	hash, err := evm.State.CodeHash(addr)
	if err != nil {
		return nil, err
	}
	slot.SetBytes(hash.Bytes())
	return nil, nil
}

func opExtcodecopy(evm *EVM, f *Frame) (*Action, error) {
	addrW, _ := f.Stack.Pop()
	memOffset, _ := f.Stack.Pop()
	codeOffset, _ := f.Stack.Pop()
	length, _ := f.Stack.Pop()

	addr := types.WordToAddress(&addrW)
	wasCold, err := evm.State.WarmAddress(addr)
	if err != nil {
		return nil, err
	}
	if err := chargeAccountAccess(evm, f, wasCold); err != nil {
		return nil, err
	}

	l := length.Uint64()
	if l == 0 {
		return nil, nil
	}
	code, err := evm.State.Code(addr)
	if err != nil {
		return nil, err
	}
	data := make([]byte, l)
	if codeOffset.IsUint64() {
		cOff := codeOffset.Uint64()
		if cOff < uint64(len(code)) {
			copy(data, code[cOff:])
		}
	}
	f.Memory.Set(memOffset.Uint64(), data)
	return nil, nil
}

// --- logging ------------------------------------------------------------

// makeLog returns an executionFunc for LOGn.
func makeLog(n int) executionFunc {
	return func(evm *EVM, f *Frame) (*Action, error) {
		if f.IsStatic {
			return nil, ErrWriteProtection
		}
		offset, _ := f.Stack.Pop()
		size, _ := f.Stack.Pop()
		topics := make([]types.Hash, n)
		for i := 0; i < n; i++ {
			t, _ := f.Stack.Pop()
			topics[i] = types.WordToHash(&t)
		}
		data := f.Memory.Get(offset.Uint64(), size.Uint64())
		evm.State.EmitLog(&types.Log{
			Address: f.Address,
			Topics:  topics,
			Data:    data,
		})
		return nil, nil
	}
}

// --- return data ----------------------------------------------------------

func opReturndataSize(evm *EVM, f *Frame) (*Action, error) {
	var w types.Word
	w.SetUint64(uint64(len(f.ReturnData)))
	f.Stack.Push(w)
	return nil, nil
}

func opReturndataCopy(evm *EVM, f *Frame) (*Action, error) {
	memOffset, _ := f.Stack.Pop()
	dataOffset, _ := f.Stack.Pop()
	length, _ := f.Stack.Pop()
	l := length.Uint64()
	if l == 0 {
		return nil, nil
	}
	if !dataOffset.IsUint64() {
		return nil, ErrInvalidMemoryOffset
	}
	dOff := dataOffset.Uint64()
	end, err := safeAdd(dOff, l)
	if err != nil {
		return nil, ErrInvalidMemoryOffset
	}
	if end > uint64(len(f.ReturnData)) {
		return nil, ErrInvalidMemoryOffset
	}
	f.Memory.Set(memOffset.Uint64(), f.ReturnData[dOff:end])
	return nil, nil
}

// --- calls and creates: suspend the frame and request a child -----------

// opCall implements CALL: pops gas, addr, value, argsOffset, argsLength,
// retOffset, retLength and requests a child frame. The driver (driver.go)
// is responsible for pushing the 0/1 result and copying return data back
// once the child frame terminates — a running frame never resumes inside
// its own execute() call.
func opCall(evm *EVM, f *Frame) (*Action, error) {
	gasVal, _ := f.Stack.Pop()
	addrW, _ := f.Stack.Pop()
	value, _ := f.Stack.Pop()
	argsOffset, _ := f.Stack.Pop()
	argsLength, _ := f.Stack.Pop()
	retOffset, _ := f.Stack.Pop()
	retLength, _ := f.Stack.Pop()

	if f.IsStatic && value.Sign() != 0 {
		return nil, ErrWriteProtection
	}

	addr := types.WordToAddress(&addrW)
	requested := gasVal.Uint64()

	wasCold, err := evm.State.WarmAddress(addr)
	if err != nil {
		return nil, err
	}
	empty, err := evm.State.Empty(addr)
	if err != nil {
		return nil, err
	}
	surcharge, err := callValueCost(&evm.GasTable, wasCold, value.Sign() != 0, empty, true)
	if err != nil {
		return nil, err
	}
	if f.Gas < surcharge {
		return nil, ErrOutOfGas
	}
	f.Gas -= surcharge

	available := callGas(&evm.GasTable, f.Gas, requested)
	if f.Gas < available {
		return nil, ErrOutOfGas
	}
	f.Gas -= available
	if value.Sign() != 0 {
		available += evm.GasTable.CallStipend
	}

	args := f.Memory.Get(argsOffset.Uint64(), argsLength.Uint64())
	return &Action{Call: &CallInputs{
		Kind:        CallKindCall,
		Caller:      f.Address,
		Callee:      addr,
		StorageAddr: addr,
		Value:       &value,
		Input:       args,
		Gas:         available,
		IsStatic:    f.IsStatic,
		RetOffset:   retOffset.Uint64(),
		RetLength:   retLength.Uint64(),
	}}, nil
}

func opCallCode(evm *EVM, f *Frame) (*Action, error) {
	gasVal, _ := f.Stack.Pop()
	addrW, _ := f.Stack.Pop()
	value, _ := f.Stack.Pop()
	argsOffset, _ := f.Stack.Pop()
	argsLength, _ := f.Stack.Pop()
	retOffset, _ := f.Stack.Pop()
	retLength, _ := f.Stack.Pop()

	addr := types.WordToAddress(&addrW)
	requested := gasVal.Uint64()

	wasCold, err := evm.State.WarmAddress(addr)
	if err != nil {
		return nil, err
	}
	surcharge, err := callValueCost(&evm.GasTable, wasCold, value.Sign() != 0, false, false)
	if err != nil {
		return nil, err
	}
	if f.Gas < surcharge {
		return nil, ErrOutOfGas
	}
	f.Gas -= surcharge

	available := callGas(&evm.GasTable, f.Gas, requested)
	if f.Gas < available {
		return nil, ErrOutOfGas
	}
	f.Gas -= available
	if value.Sign() != 0 {
		available += evm.GasTable.CallStipend
	}

	args := f.Memory.Get(argsOffset.Uint64(), argsLength.Uint64())
	return &Action{Call: &CallInputs{
		Kind:        CallKindCallCode,
		Caller:      f.Address,
		Callee:      addr,
		StorageAddr: f.Address, // runs target's code against caller's own storage
		Value:       &value,
		Input:       args,
		Gas:         available,
		IsStatic:    f.IsStatic,
		RetOffset:   retOffset.Uint64(),
		RetLength:   retLength.Uint64(),
	}}, nil
}

func opDelegateCall(evm *EVM, f *Frame) (*Action, error) {
	gasVal, _ := f.Stack.Pop()
	addrW, _ := f.Stack.Pop()
	argsOffset, _ := f.Stack.Pop()
	argsLength, _ := f.Stack.Pop()
	retOffset, _ := f.Stack.Pop()
	retLength, _ := f.Stack.Pop()

	addr := types.WordToAddress(&addrW)
	requested := gasVal.Uint64()

	wasCold, err := evm.State.WarmAddress(addr)
	if err != nil {
		return nil, err
	}
	if err := chargeAccountAccess(evm, f, wasCold); err != nil {
		return nil, err
	}

	available := callGas(&evm.GasTable, f.Gas, requested)
	if f.Gas < available {
		return nil, ErrOutOfGas
	}
	f.Gas -= available

	args := f.Memory.Get(argsOffset.Uint64(), argsLength.Uint64())
	return &Action{Call: &CallInputs{
		Kind:        CallKindDelegateCall,
		Caller:      f.Caller,   // DELEGATECALL keeps the grandparent's CALLER
		Callee:      addr,
		StorageAddr: f.Address, // and the parent's own storage/balance
		Value:       nil,
		Input:       args,
		Gas:         available,
		IsStatic:    f.IsStatic,
		RetOffset:   retOffset.Uint64(),
		RetLength:   retLength.Uint64(),
	}}, nil
}

func opStaticCall(evm *EVM, f *Frame) (*Action, error) {
	gasVal, _ := f.Stack.Pop()
	addrW, _ := f.Stack.Pop()
	argsOffset, _ := f.Stack.Pop()
	argsLength, _ := f.Stack.Pop()
	retOffset, _ := f.Stack.Pop()
	retLength, _ := f.Stack.Pop()

	addr := types.WordToAddress(&addrW)
	requested := gasVal.Uint64()

	wasCold, err := evm.State.WarmAddress(addr)
	if err != nil {
		return nil, err
	}
	if err := chargeAccountAccess(evm, f, wasCold); err != nil {
		return nil, err
	}

	available := callGas(&evm.GasTable, f.Gas, requested)
	if f.Gas < available {
		return nil, ErrOutOfGas
	}
	f.Gas -= available

	args := f.Memory.Get(argsOffset.Uint64(), argsLength.Uint64())
	return &Action{Call: &CallInputs{
		Kind:        CallKindStaticCall,
		Caller:      f.Address,
		Callee:      addr,
		StorageAddr: addr,
		Value:       nil,
		Input:       args,
		Gas:         available,
		IsStatic:    true,
		RetOffset:   retOffset.Uint64(),
		RetLength:   retLength.Uint64(),
	}}, nil
}

func opCreate(evm *EVM, f *Frame) (*Action, error) {
	if f.IsStatic {
		return nil, ErrWriteProtection
	}
	value, _ := f.Stack.Pop()
	offset, _ := f.Stack.Pop()
	size, _ := f.Stack.Pop()

	initCode := f.Memory.Get(offset.Uint64(), size.Uint64())
	gas, err := createGas(&evm.GasTable, uint64(len(initCode)), false)
	if err != nil {
		return nil, err
	}
	if f.Gas < gas {
		return nil, ErrOutOfGas
	}
	f.Gas -= gas

	available := callGas(&evm.GasTable, f.Gas, f.Gas)
	f.Gas -= available

	return &Action{Create: &CreateInputs{
		Kind:     CreateKindCreate,
		Caller:   f.Address,
		Value:    &value,
		InitCode: initCode,
		Salt:     nil,
		Gas:      available,
	}}, nil
}

func opCreate2(evm *EVM, f *Frame) (*Action, error) {
	if f.IsStatic {
		return nil, ErrWriteProtection
	}
	value, _ := f.Stack.Pop()
	offset, _ := f.Stack.Pop()
	size, _ := f.Stack.Pop()
	salt, _ := f.Stack.Pop()

	initCode := f.Memory.Get(offset.Uint64(), size.Uint64())
	gas, err := createGas(&evm.GasTable, uint64(len(initCode)), true)
	if err != nil {
		return nil, err
	}
	if f.Gas < gas {
		return nil, ErrOutOfGas
	}
	f.Gas -= gas

	available := callGas(&evm.GasTable, f.Gas, f.Gas)
	f.Gas -= available

	return &Action{Create: &CreateInputs{
		Kind:     CreateKindCreate2,
		Caller:   f.Address,
		Value:    &value,
		InitCode: initCode,
		Salt:     &salt,
		Gas:      available,
	}}, nil
}

// opSelfdestruct sends the frame's entire balance to beneficiary. Post-
// EIP-6780 (Cancun) it only actually destroys the account if the account
// was created earlier in the same transaction; that decision belongs to
// JournaledState.Finalize's self-destruct-queue pass, not this opcode,
// which always halts the frame and always moves the balance.
func opSelfdestruct(evm *EVM, f *Frame) (*Action, error) {
	if f.IsStatic {
		return nil, ErrWriteProtection
	}
	beneficiaryW, _ := f.Stack.Pop()
	beneficiary := types.WordToAddress(&beneficiaryW)

	wasCold, err := evm.State.WarmAddress(beneficiary)
	if err != nil {
		return nil, err
	}
	bal, err := evm.State.Balance(f.Address)
	if err != nil {
		return nil, err
	}
	empty, err := evm.State.Empty(beneficiary)
	if err != nil {
		return nil, err
	}
	gas, err := selfDestructGas(&evm.GasTable, wasCold, empty, bal.Sign() != 0, true)
	if err != nil {
		return nil, err
	}
	if f.Gas < gas {
		return nil, ErrOutOfGas
	}
	f.Gas -= gas

	if err := evm.State.SelfDestruct(f.Address, beneficiary); err != nil {
		return nil, err
	}
	return &Action{Done: true, Result: ResultOK}, nil
}

package vm

import (
	"errors"
	"math"
)

// Errors returned by the dynamic gas helpers. A caller that sees one of
// these halts the current frame with out-of-gas or the more specific kind
// named, never partially applying the operation.
var (
	ErrGasUintOverflow     = errors.New("vm: gas computation overflowed uint64")
	ErrInitCodeTooLarge    = errors.New("vm: init code exceeds max size")
	ErrInvalidMemoryOffset = errors.New("vm: memory offset exceeds addressable range")
	ErrOutOfGas            = errors.New("vm: out of gas")
	ErrInvalidJump         = errors.New("vm: invalid jump destination")
	ErrWriteProtection     = errors.New("vm: state-changing op in a static call")
	ErrDepthExceeded       = errors.New("vm: max call depth exceeded")
	ErrInsufficientBalance = errors.New("vm: insufficient balance for transfer")
)

func safeAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrGasUintOverflow
	}
	return a + b, nil
}

func safeMul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxUint64/b {
		return 0, ErrGasUintOverflow
	}
	return a * b, nil
}

// toWordSize rounds a byte length up to the nearest 32-byte word count.
func toWordSize(size uint64) uint64 {
	if size > math.MaxUint64-31 {
		return math.MaxUint64/32 + 1
	}
	return (size + 31) / 32
}

// memoryGasCost computes the total charge for memory sized to wordCount
// 32-byte words: linear·n + n²/divisor (§4.C "Memory cost").
func memoryGasCost(t *GasTable, words uint64) (uint64, error) {
	linear, err := safeMul(words, t.MemoryGasCostPerWord)
	if err != nil {
		return 0, err
	}
	quad, err := safeMul(words, words)
	if err != nil {
		return 0, err
	}
	quad /= t.MemoryDivisor
	return safeAdd(linear, quad)
}

// memoryExpansionGas charges the delta between the memory cost of oldSize
// and newSize (in bytes), per §4.C "Expansion cost". Returns 0 if newSize
// does not exceed oldSize.
func memoryExpansionGas(t *GasTable, oldSize, newSize uint64) (uint64, error) {
	if newSize <= oldSize {
		return 0, nil
	}
	newCost, err := memoryGasCost(t, toWordSize(newSize))
	if err != nil {
		return 0, err
	}
	oldCost, err := memoryGasCost(t, toWordSize(oldSize))
	if err != nil {
		return 0, err
	}
	if newCost <= oldCost {
		return 0, nil
	}
	return newCost - oldCost, nil
}

// copyGas computes the per-word charge for CALLDATACOPY, CODECOPY,
// RETURNDATACOPY, EXTCODECOPY, and MCOPY.
func copyGas(t *GasTable, length uint64) (uint64, error) {
	return safeMul(t.CopyCostPerWord, toWordSize(length))
}

// keccak256Gas computes the cost of hashing length bytes.
func keccak256Gas(t *GasTable, length uint64) (uint64, error) {
	wordCost, err := safeMul(t.Keccak256WordCost, toWordSize(length))
	if err != nil {
		return 0, err
	}
	return safeAdd(t.Keccak256BaseCost, wordCost)
}

// logGas computes the cost of a LOGn operation.
func logGas(t *GasTable, topicCount int, dataSize uint64) (uint64, error) {
	gas, err := safeAdd(t.LogBaseCost, uint64(topicCount)*t.LogTopicCost)
	if err != nil {
		return 0, err
	}
	dataCost, err := safeMul(dataSize, t.LogDataCost)
	if err != nil {
		return 0, err
	}
	return safeAdd(gas, dataCost)
}

// expGas computes EXP's cost from the exponent's significant byte count.
func expGas(t *GasTable, exponentByteLen uint64) (uint64, error) {
	if exponentByteLen == 0 {
		return t.ExpBaseCost, nil
	}
	byteCost, err := safeMul(t.ExpByteCost, exponentByteLen)
	if err != nil {
		return 0, err
	}
	return safeAdd(t.ExpBaseCost, byteCost)
}

// callGas applies the EIP-150 63/64 forwarding rule: the caller retains
// 1/64th of the gas remaining after the call's own base cost, and the
// callee receives min(requested, available - available/64).
func callGas(t *GasTable, availableGas, requestedGas uint64) uint64 {
	if t.CallGasFraction == 0 {
		// Pre-EIP-150: the requested amount is returned unchanged, with no cap.
		return requestedGas
	}
	maxForward := availableGas - availableGas/t.CallGasFraction
	if requestedGas > maxForward {
		return maxForward
	}
	return requestedGas
}

// accessCost returns the cold or warm price for an address/slot touch.
func accessCost(t *GasTable, cold bool, coldCost, warmCost uint64) uint64 {
	if cold {
		return coldCost
	}
	return warmCost
}

// sstoreGas computes the gas charge and signed refund delta for an SSTORE,
// per EIP-2200 (the three-case original/current/new rule) layered with the
// EIP-2929 cold-slot surcharge and EIP-3529 reduced clearing refund. A
// positive refund return value is added to the frame's refund counter; a
// negative one is subtracted (clamped to zero by the caller, never going
// negative overall per §4.C).
func sstoreGas(t *GasTable, original, current, newVal [32]byte, wasCold bool) (gas uint64, refund int64) {
	isZero := func(v [32]byte) bool { return v == [32]byte{} }

	if current == newVal {
		// No-op: charge only the read price (plus cold surcharge if this
		// access itself was the first touch of the slot).
		gas = t.WarmStorageReadCost
		if wasCold {
			gas += t.ColdSloadCost
		}
		return gas, 0
	}

	if original == current {
		// Clean slot.
		switch {
		case isZero(original) && !isZero(newVal):
			gas = t.SstoreSetGas
		case !isZero(original) && isZero(newVal):
			gas = t.SstoreResetGas
			refund = int64(t.SstoreClearsRefund)
		default:
			gas = t.SstoreResetGas
		}
	} else {
		// Dirty slot: already modified earlier in this transaction.
		gas = t.WarmStorageReadCost

		if !isZero(original) {
			if isZero(current) && !isZero(newVal) {
				refund -= int64(t.SstoreClearsRefund)
			} else if !isZero(current) && isZero(newVal) {
				refund += int64(t.SstoreClearsRefund)
			}
		}
		if original == newVal {
			if isZero(original) {
				refund += int64(t.SstoreSetGas) - int64(t.WarmStorageReadCost)
			} else {
				refund += int64(t.SstoreResetGas) - int64(t.WarmStorageReadCost)
			}
		}
	}

	if wasCold {
		gas += t.ColdSloadCost
	}
	return gas, refund
}

// callValueCost computes the charge a CALL/CALLCODE pays for accessing its
// target (cold or warm price) and for transferring value and/or creating a
// new account, per §4.C "Call cost".
func callValueCost(t *GasTable, targetIsCold, valueIsNonzero, targetIsEmpty, chargeNewAccount bool) (uint64, error) {
	var gas uint64
	gas += accessCost(t, targetIsCold, t.ColdAccountAccessCost, t.WarmStorageReadCost)
	if valueIsNonzero {
		var err error
		gas, err = safeAdd(gas, t.CallValueTransferGas)
		if err != nil {
			return 0, err
		}
		if targetIsEmpty && chargeNewAccount {
			gas, err = safeAdd(gas, t.CallNewAccountGas)
			if err != nil {
				return 0, err
			}
		}
	}
	return gas, nil
}

// selfDestructGas computes the total SELFDESTRUCT charge per §4.C
// "Self-destruct cost".
func selfDestructGas(t *GasTable, beneficiaryCold, beneficiaryEmpty, valueIsNonzero, chargeNewAccount bool) (uint64, error) {
	gas := t.SelfdestructGas
	gas += accessCost(t, beneficiaryCold, t.ColdAccountAccessCost, 0)
	if beneficiaryEmpty && valueIsNonzero && chargeNewAccount {
		var err error
		gas, err = safeAdd(gas, t.CreateBySelfdestructGas)
		if err != nil {
			return 0, err
		}
	}
	return gas, nil
}

// createGas computes the upfront charge for CREATE/CREATE2: the fixed base
// cost plus EIP-3860 initcode word gas, plus (CREATE2 only) the keccak256
// cost of hashing the init code for address derivation.
func createGas(t *GasTable, initCodeSize uint64, isCreate2 bool) (uint64, error) {
	if t.MaxInitCodeSize > 0 && initCodeSize > uint64(t.MaxInitCodeSize) {
		return 0, ErrInitCodeTooLarge
	}
	words := toWordSize(initCodeSize)
	gas := t.CreateGas
	initCost, err := safeMul(t.InitCodeWordGas, words)
	if err != nil {
		return 0, err
	}
	gas, err = safeAdd(gas, initCost)
	if err != nil {
		return 0, err
	}
	if isCreate2 {
		hashCost, err := safeMul(t.Keccak256WordCost, words)
		if err != nil {
			return 0, err
		}
		gas, err = safeAdd(gas, hashCost)
		if err != nil {
			return 0, err
		}
	}
	return gas, nil
}

// codeDepositGas computes the per-byte charge (EIP-170's "200 gas per
// deployed byte") for committing a create frame's returned code.
func codeDepositGas(t *GasTable, codeLen int) (uint64, error) {
	return safeMul(t.CreateDataGas, uint64(codeLen))
}

package vm

import (
	"github.com/ethexec/evmcore/core/params"
	"github.com/ethexec/evmcore/core/types"
	"github.com/ethexec/evmcore/crypto"
	"github.com/ethexec/evmcore/rlp"
)

// CreateKind distinguishes CREATE from CREATE2, the only two legacy ways a
// frame can request a fresh contract address.
type CreateKind uint8

const (
	CreateKindCreate CreateKind = iota
	CreateKindCreate2
)

// createAddressFields mirrors the Yellow Paper's address-derivation tuple
// [sender, nonce] as an RLP list: addr = keccak256(rlp([sender, nonce]))[12:].
type createAddressFields struct {
	Sender types.Address
	Nonce  uint64
}

// createAddress computes the address CREATE assigns its new contract.
func createAddress(caller types.Address, nonce uint64) types.Address {
	enc, err := rlp.EncodeToBytes(createAddressFields{Sender: caller, Nonce: nonce})
	if err != nil {
		// Sender/Nonce are both trivially encodable; a failure here would be
		// a bug in the encoder, not a runtime condition callers can recover
		// from.
		panic(err)
	}
	hash := crypto.Keccak256(enc)
	return types.BytesToAddress(hash[12:])
}

// create2Address computes the address CREATE2 assigns its new contract:
// keccak256(0xff ++ caller ++ salt ++ keccak256(initCode))[12:], per EIP-1014.
func create2Address(caller types.Address, salt types.Word, initCodeHash []byte) types.Address {
	saltBytes := salt.Bytes32()
	data := make([]byte, 0, 1+len(caller)+len(saltBytes)+len(initCodeHash))
	data = append(data, 0xff)
	data = append(data, caller[:]...)
	data = append(data, saltBytes[:]...)
	data = append(data, initCodeHash...)
	hash := crypto.Keccak256(data)
	return types.BytesToAddress(hash[12:])
}

// deriveCreatedAddress picks createAddress or create2Address according to
// the requested CreateInputs, hashing the init code itself when needed.
func deriveCreatedAddress(in *CreateInputs, nonce uint64) types.Address {
	if in.Salt == nil {
		return createAddress(in.Caller, nonce)
	}
	initCodeHash := crypto.Keccak256(in.InitCode)
	return create2Address(in.Caller, *in.Salt, initCodeHash)
}

// containerHash hashes an EOF sub-container's full byte image (code and
// data sections together) for EOFCREATE's CREATE2-style address derivation.
func containerHash(c EOFCode) []byte {
	return crypto.Keccak256(c.Code, c.Data)
}

// finalizeCreatedCode validates and charges for a CREATE/CREATE2 frame's
// returned init-code output, applying EIP-3541 (no 0xEF-prefixed runtime
// code, active from London) and EIP-170 (24576-byte max) before the deposit
// gas is even computed — both are "never accept", not "spend gas and fail".
func finalizeCreatedCode(t *GasTable, rules params.Rules, output []byte) (gas uint64, result InstructionResult, ok bool) {
	if rules.IsLondon && len(output) > 0 && output[0] == 0xEF {
		return 0, ResultCreateContractStartingWithEF, false
	}
	if t.MaxCodeSize > 0 && len(output) > int(t.MaxCodeSize) {
		return 0, ResultCreateContractSizeLimit, false
	}
	gas, err := codeDepositGas(t, len(output))
	if err != nil {
		return 0, ResultOutOfGas, false
	}
	return gas, ResultOK, true
}

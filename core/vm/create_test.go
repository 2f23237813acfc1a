package vm

import (
	"testing"

	"github.com/ethexec/evmcore/core/params"
	"github.com/ethexec/evmcore/core/types"
	"github.com/ethexec/evmcore/crypto"
	"github.com/stretchr/testify/require"
)

func TestCreateAddressIsDeterministic(t *testing.T) {
	caller := types.BytesToAddress([]byte{0x01, 0x02, 0x03})

	a1 := createAddress(caller, 5)
	a2 := createAddress(caller, 5)
	require.Equal(t, a1, a2, "repeated derivation with the same (caller, nonce) must agree")

	a3 := createAddress(caller, 6)
	require.NotEqual(t, a1, a3, "a different nonce must derive a different address")
}

func TestCreate2AddressIsDeterministic(t *testing.T) {
	caller := types.BytesToAddress([]byte{0xAA})
	var salt types.Word
	salt.SetUint64(1234)
	initCodeHash := crypto.Keccak256([]byte{0x60, 0x00, 0x60, 0x00})

	a1 := create2Address(caller, salt, initCodeHash)
	a2 := create2Address(caller, salt, initCodeHash)
	require.Equal(t, a1, a2)

	var otherSalt types.Word
	otherSalt.SetUint64(5678)
	a3 := create2Address(caller, otherSalt, initCodeHash)
	require.NotEqual(t, a1, a3, "a different salt must derive a different address")
}

func TestDeriveCreatedAddressPicksCreateVsCreate2(t *testing.T) {
	caller := types.BytesToAddress([]byte{0x42})

	plain := &CreateInputs{Caller: caller, InitCode: []byte{0x00}}
	viaNonce := deriveCreatedAddress(plain, 3)
	require.Equal(t, createAddress(caller, 3), viaNonce)

	var salt types.Word
	salt.SetUint64(9)
	withSalt := &CreateInputs{Caller: caller, InitCode: []byte{0x00}, Salt: &salt}
	viaSalt := deriveCreatedAddress(withSalt, 3)
	require.NotEqual(t, viaNonce, viaSalt, "CREATE and CREATE2 addressing must diverge once a salt is present")
}

func TestFinalizeCreatedCodeRejectsEFPrefixPostLondon(t *testing.T) {
	gt := NewGasTable(allRulesOn())
	rules := allRulesOn()

	_, result, ok := finalizeCreatedCode(&gt, rules, []byte{0xEF, 0x00, 0x01})
	require.False(t, ok)
	require.Equal(t, ResultCreateContractStartingWithEF, result)
}

func TestFinalizeCreatedCodeRejectsOversizedOutput(t *testing.T) {
	gt := NewGasTable(allRulesOn())
	rules := allRulesOn()

	oversized := make([]byte, gt.MaxCodeSize+1)
	_, result, ok := finalizeCreatedCode(&gt, rules, oversized)
	require.False(t, ok)
	require.Equal(t, ResultCreateContractSizeLimit, result)
}

func TestFinalizeCreatedCodeChargesDepositGas(t *testing.T) {
	gt := NewGasTable(allRulesOn())
	rules := allRulesOn()

	output := make([]byte, 10)
	gas, result, ok := finalizeCreatedCode(&gt, rules, output)
	require.True(t, ok)
	require.Equal(t, ResultOK, result)
	require.Equal(t, gt.CreateDataGas*10, gas)
}

func TestFinalizeCreatedCodeAllowsEFPreLondon(t *testing.T) {
	gt := NewGasTable(params.RulesFor(params.Berlin))
	rules := params.RulesFor(params.Berlin)

	_, result, ok := finalizeCreatedCode(&gt, rules, []byte{0xEF, 0x00})
	require.True(t, ok)
	require.Equal(t, ResultOK, result)
}

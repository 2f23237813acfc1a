package vm

import (
	"context"
	"log/slog"
	"testing"

	"github.com/ethexec/evmcore/core/params"
	"github.com/ethexec/evmcore/core/state"
	"github.com/ethexec/evmcore/core/types"
	"github.com/ethexec/evmcore/log"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// orchestratorTestDB is a minimal in-memory Database for orchestrator-level
// end-to-end scenarios.
type orchestratorTestDB struct {
	accounts map[types.Address]*state.AccountMetadata
}

func newOrchestratorTestDB() *orchestratorTestDB {
	return &orchestratorTestDB{accounts: make(map[types.Address]*state.AccountMetadata)}
}

func (db *orchestratorTestDB) Basic(addr types.Address) (*state.AccountMetadata, error) {
	return db.accounts[addr], nil
}

func (db *orchestratorTestDB) CodeByHash(hash types.Hash) ([]byte, error) { return nil, nil }

func (db *orchestratorTestDB) Storage(addr types.Address, key types.Hash) (types.Hash, error) {
	return types.Hash{}, nil
}

func (db *orchestratorTestDB) BlockHash(number uint64) (types.Hash, error) {
	return types.Hash{}, nil
}

func newTestEVM(db state.Database, rules params.Rules) *EVM {
	st := state.New(db, rules)
	return NewEVM(
		context.Background(),
		st,
		db,
		NewPrecompileSet(rules),
		rules,
		BlockContext{Coinbase: types.BytesToAddress([]byte{0xC0}), GasLimit: 30_000_000, BaseFee: uint256.NewInt(1)},
		TxContext{Origin: types.BytesToAddress([]byte{0x01}), GasPrice: uint256.NewInt(10)},
		uint256.NewInt(1),
		log.New(slog.LevelError),
	)
}

// TestApplyMessageSimpleAddAndReturn drives scenario S1: push two small
// values, add them, and return the 32-byte result.
func TestApplyMessageSimpleAddAndReturn(t *testing.T) {
	rules := params.RulesFor(params.Cancun)
	db := newOrchestratorTestDB()

	caller := types.BytesToAddress([]byte{0x01})
	callee := types.BytesToAddress([]byte{0xAA}) // outside the 0x01-0x0a precompile range

	db.accounts[caller] = &state.AccountMetadata{Balance: uint256.NewInt(1_000_000_000), CodeHash: types.EmptyCodeHash}

	code := []byte{
		byte(PUSH1), 0x03,
		byte(PUSH1), 0x05,
		byte(ADD),
		byte(PUSH1), 0x00, // memory offset
		byte(MSTORE),
		byte(PUSH1), 0x20, // length
		byte(PUSH1), 0x00, // offset
		byte(RETURN),
	}
	codeHash := types.BytesToHash([]byte{0xde, 0xad, 0xbe, 0xef})
	db.accounts[callee] = &state.AccountMetadata{
		Balance:  uint256.NewInt(0),
		CodeHash: codeHash,
		Code:     code,
	}

	evm := newTestEVM(db, rules)

	gasLimit := uint64(100_000)
	msg := &Message{
		Kind:     MessageKindCall,
		Caller:   caller,
		To:       callee,
		Value:    new(types.Word),
		Data:     nil,
		GasLimit: gasLimit,
		GasPrice: uint256.NewInt(10),
	}

	result, err := ApplyMessage(context.Background(), evm, msg)
	require.NoError(t, err)
	require.True(t, result.Success)

	require.Len(t, result.Output, 32)
	var got types.Word
	got.SetBytes(result.Output)
	require.Equal(t, uint64(8), got.Uint64(), "3 + 5 must equal 8")

	require.LessOrEqual(t, result.GasUsed, gasLimit)
	require.Greater(t, result.GasUsed, uint64(0))

	callerBalance, err := evm.State.Balance(caller)
	require.NoError(t, err)
	require.True(t, callerBalance.Lt(uint256.NewInt(1_000_000_000)), "caller must have paid for gas")
}

// TestApplyMessageOutOfGasReverts drives scenario S2: a gas limit too small
// to complete execution must fail without mutating the callee's storage.
func TestApplyMessageOutOfGasReverts(t *testing.T) {
	rules := params.RulesFor(params.Cancun)
	db := newOrchestratorTestDB()

	caller := types.BytesToAddress([]byte{0x01})
	callee := types.BytesToAddress([]byte{0xAA}) // outside the 0x01-0x0a precompile range

	db.accounts[caller] = &state.AccountMetadata{Balance: uint256.NewInt(1_000_000_000), CodeHash: types.EmptyCodeHash}

	// SSTORE a nonzero value at slot 0, then keep pushing forever — with a
	// tiny gas limit this must run out of gas before completing.
	code := []byte{
		byte(PUSH1), 0x01,
		byte(PUSH1), 0x00,
		byte(SSTORE),
		byte(JUMPDEST), // pc 5
		byte(PUSH1), 0x05,
		byte(JUMP),
	}
	db.accounts[callee] = &state.AccountMetadata{Balance: uint256.NewInt(0), CodeHash: types.BytesToHash([]byte{0x01}), Code: code}

	evm := newTestEVM(db, rules)

	gasLimit := uint64(30_000)
	msg := &Message{
		Kind:     MessageKindCall,
		Caller:   caller,
		To:       callee,
		Value:    new(types.Word),
		GasLimit: gasLimit,
		GasPrice: uint256.NewInt(10),
	}

	result, err := ApplyMessage(context.Background(), evm, msg)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, gasLimit, result.GasUsed, "an out-of-gas frame consumes its entire gas grant")

	val, _, err := evm.State.SLoad(callee, types.Hash{})
	require.NoError(t, err)
	require.Equal(t, types.Hash{}, val, "the reverted SSTORE must not be visible")
}

// TestApplyMessageCreateDerivesDeterministicAddress checks that a CREATE
// message deploys to the nonce-derived address and advances the creator's
// nonce exactly once.
func TestApplyMessageCreateDerivesDeterministicAddress(t *testing.T) {
	rules := params.RulesFor(params.Cancun)
	db := newOrchestratorTestDB()

	creator := types.BytesToAddress([]byte{0x09})
	db.accounts[creator] = &state.AccountMetadata{Balance: uint256.NewInt(1_000_000_000), CodeHash: types.EmptyCodeHash}

	// init code: RETURN zero bytes, deploying empty runtime code.
	initCode := []byte{
		byte(PUSH1), 0x00, // length of the (empty) runtime code to deploy
		byte(PUSH1), 0x00,
		byte(RETURN),
	}

	evm := newTestEVM(db, rules)

	wantAddr := createAddress(creator, 0)

	msg := &Message{
		Kind:     MessageKindCreate,
		Caller:   creator,
		Value:    new(types.Word),
		Data:     initCode,
		GasLimit: 200_000,
		GasPrice: uint256.NewInt(10),
	}

	result, err := ApplyMessage(context.Background(), evm, msg)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, wantAddr, result.CreatedAddress)

	nonce, err := evm.State.Nonce(creator)
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce, "the creator's nonce must have advanced exactly once")
}

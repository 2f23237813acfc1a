package vm

import (
	"testing"

	"github.com/ethexec/evmcore/core/params"
	"github.com/stretchr/testify/require"
)

func TestCallGas63Over64Rule(t *testing.T) {
	gt := NewGasTable(allRulesOn())
	require.NotZero(t, gt.CallGasFraction, "post-Tangerine-Whistle rules must set the 63/64 fraction")

	available := uint64(64_000)
	retained := available / gt.CallGasFraction
	maxForward := available - retained

	got := callGas(&gt, available, available) // request everything
	require.Equal(t, maxForward, got)

	got = callGas(&gt, available, maxForward-1)
	require.Equal(t, maxForward-1, got, "a request under the cap is forwarded unchanged")
}

func TestCallGasPreEIP150ForwardsEverything(t *testing.T) {
	gt := NewGasTable(params.RulesFor(params.Frontier))
	require.Zero(t, gt.CallGasFraction)

	got := callGas(&gt, 1000, 1000)
	require.Equal(t, uint64(1000), got)
}

func TestSstoreNoOpChargesReadPriceOnly(t *testing.T) {
	gt := NewGasTable(allRulesOn())

	var slot [32]byte
	slot[31] = 7
	gas, refund := sstoreGas(&gt, slot, slot, slot, false)
	require.Equal(t, gt.WarmStorageReadCost, gas)
	require.Zero(t, refund)

	gasCold, refundCold := sstoreGas(&gt, slot, slot, slot, true)
	require.Equal(t, gt.WarmStorageReadCost+gt.ColdSloadCost, gasCold)
	require.Zero(t, refundCold)
}

func TestSstoreClearRefund(t *testing.T) {
	gt := NewGasTable(allRulesOn())

	var zero, nonzero [32]byte
	nonzero[31] = 1

	gas, refund := sstoreGas(&gt, nonzero, nonzero, zero, false)
	require.Equal(t, gt.SstoreResetGas, gas)
	require.Equal(t, int64(gt.SstoreClearsRefund), refund)
}

func TestAccessCostColdVsWarm(t *testing.T) {
	gt := NewGasTable(allRulesOn())
	require.Equal(t, gt.ColdAccountAccessCost, accessCost(&gt, true, gt.ColdAccountAccessCost, gt.WarmStorageReadCost))
	require.Equal(t, gt.WarmStorageReadCost, accessCost(&gt, false, gt.ColdAccountAccessCost, gt.WarmStorageReadCost))
}

func TestToWordSizeRounding(t *testing.T) {
	require.Equal(t, uint64(0), toWordSize(0))
	require.Equal(t, uint64(1), toWordSize(1))
	require.Equal(t, uint64(1), toWordSize(32))
	require.Equal(t, uint64(2), toWordSize(33))
}

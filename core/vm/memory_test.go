package vm

import (
	"testing"

	"github.com/ethexec/evmcore/core/types"
	"github.com/stretchr/testify/require"
)

func TestMemorySetWordAndGet(t *testing.T) {
	arena := newMemoryArena()
	m := newMemory(arena)
	defer m.release()

	m.Resize(32)
	var w types.Word
	w.SetUint64(0xdeadbeef)
	m.SetWord(0, w)

	got := m.Get(0, 32)
	require.Len(t, got, 32)
	var readBack types.Word
	readBack.SetBytes(got)
	require.Equal(t, uint64(0xdeadbeef), readBack.Uint64())
}

func TestMemoryResizeNeverShrinks(t *testing.T) {
	arena := newMemoryArena()
	m := newMemory(arena)
	defer m.release()

	m.Resize(64)
	require.Equal(t, 64, m.Len())
	m.Resize(32)
	require.Equal(t, 64, m.Len(), "Resize must never shrink existing memory")
}

func TestMemoryZeroInitialized(t *testing.T) {
	arena := newMemoryArena()
	m := newMemory(arena)
	defer m.release()

	m.Resize(32)
	out := m.Get(0, 32)
	for i, b := range out {
		require.Equalf(t, byte(0), b, "byte %d should be zero-initialized", i)
	}
}

func TestMemoryChildFrameIsolation(t *testing.T) {
	arena := newMemoryArena()
	parent := newMemory(arena)
	parent.Resize(32)
	parent.SetByte(0, 0xAA)

	child := newMemory(arena)
	require.Equal(t, 0, child.Len())
	child.Resize(16)
	child.SetByte(0, 0xBB)

	require.Equal(t, byte(0xAA), parent.Get(0, 1)[0], "child writes must not leak into parent memory")

	child.release()
	require.Equal(t, byte(0xAA), parent.Get(0, 1)[0])
}

// TestMemoryCostMonotonicAndConvex exercises testable property 8: memory
// cost never decreases as size grows, and the per-word marginal cost is
// non-decreasing (convexity) because of the quadratic term.
func TestMemoryCostMonotonicAndConvex(t *testing.T) {
	gt := NewGasTable(allRulesOn())

	var prevCost uint64
	var prevDelta uint64
	for words := uint64(0); words <= 2000; words += 37 {
		cost, err := memoryGasCost(&gt, words)
		require.NoError(t, err)
		require.GreaterOrEqualf(t, cost, prevCost, "memory cost must be monotonic at %d words", words)

		delta := cost - prevCost
		if words > 0 {
			require.GreaterOrEqualf(t, delta, prevDelta, "marginal memory cost must not decrease (convexity) at %d words", words)
		}
		prevCost = cost
		prevDelta = delta
	}
}

func TestMemoryExpansionGasNoChargeWhenNotGrowing(t *testing.T) {
	gt := NewGasTable(allRulesOn())

	gas, err := memoryExpansionGas(&gt, 64, 32)
	require.NoError(t, err)
	require.Zero(t, gas)

	gas, err = memoryExpansionGas(&gt, 64, 64)
	require.NoError(t, err)
	require.Zero(t, gas)
}

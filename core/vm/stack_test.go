package vm

import (
	"testing"

	"github.com/ethexec/evmcore/core/types"
	"github.com/stretchr/testify/require"
)

func TestStackPushPopOrder(t *testing.T) {
	arena := newStackArena()
	s := newStack(arena)
	defer s.release()

	var a, b types.Word
	a.SetUint64(1)
	b.SetUint64(2)
	require.NoError(t, s.Push(a))
	require.NoError(t, s.Push(b))
	require.Equal(t, 2, s.Len())

	top, err := s.Pop()
	require.NoError(t, err)
	require.Equal(t, uint64(2), top.Uint64())

	bottom, err := s.Pop()
	require.NoError(t, err)
	require.Equal(t, uint64(1), bottom.Uint64())
	require.Equal(t, 0, s.Len())
}

func TestStackUnderflow(t *testing.T) {
	arena := newStackArena()
	s := newStack(arena)
	defer s.release()

	_, err := s.Pop()
	require.ErrorIs(t, err, ErrStackUnderflow)

	_, err = s.Peek(0)
	require.ErrorIs(t, err, ErrStackUnderflow)
}

func TestStackOverflowBounds(t *testing.T) {
	arena := newStackArena()
	s := newStack(arena)
	defer s.release()

	for i := 0; i < StackLimit; i++ {
		var w types.Word
		w.SetUint64(uint64(i))
		require.NoError(t, s.Push(w))
	}
	require.Equal(t, StackLimit, s.Len())

	var extra types.Word
	extra.SetUint64(999)
	require.ErrorIs(t, s.Push(extra), ErrStackOverflow)
	require.Equal(t, StackLimit, s.Len(), "a failed push must not grow the stack")
}

func TestStackDupAndSwap(t *testing.T) {
	arena := newStackArena()
	s := newStack(arena)
	defer s.release()

	var a, b types.Word
	a.SetUint64(10)
	b.SetUint64(20)
	require.NoError(t, s.Push(a))
	require.NoError(t, s.Push(b))

	require.NoError(t, s.Dup(2)) // duplicate 'a', the second-from-top
	top, _ := s.Peek(0)
	require.Equal(t, uint64(10), top.Uint64())
	require.Equal(t, 3, s.Len())

	require.NoError(t, s.Swap(1)) // exchange the top (10) with the 20 below it
	newTop, _ := s.Peek(0)
	require.Equal(t, uint64(20), newTop.Uint64())
}

// TestStackFramesAreIndependent verifies the shared-arena discipline: a
// child frame's stack starts empty at the parent's current length and its
// release() trims the arena back without disturbing the parent's words.
func TestStackFramesAreIndependent(t *testing.T) {
	arena := newStackArena()
	parent := newStack(arena)
	var pw types.Word
	pw.SetUint64(42)
	require.NoError(t, parent.Push(pw))

	child := newStack(arena)
	require.Equal(t, 0, child.Len())
	var cw types.Word
	cw.SetUint64(7)
	require.NoError(t, child.Push(cw))
	require.Equal(t, 1, parent.Len(), "child's push must not be visible to the parent view")

	child.release()
	require.Equal(t, 1, parent.Len())
	top, _ := parent.Peek(0)
	require.Equal(t, uint64(42), top.Uint64())
}

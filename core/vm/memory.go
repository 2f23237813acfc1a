package vm

import "github.com/ethexec/evmcore/core/types"

// memoryArena is the shared byte buffer backing every frame's memory in a
// call tree, mirroring the stack's paged-arena strategy (§4.E): a child
// frame's memory begins where the parent's current memory ends, and
// releasing the child trims the arena back, without copying the parent's
// bytes or allocating a fresh buffer per call.
type memoryArena struct {
	store []byte
}

func newMemoryArena() *memoryArena {
	return &memoryArena{store: make([]byte, 0, 4096)}
}

// Memory is one frame's byte-addressable, zero-initialized scratch space.
// base is the arena offset at which this frame's memory starts; length is
// tracked independently so a child's memory can be released without
// disturbing the parent's content.
type Memory struct {
	arena  *memoryArena
	base   int
	length int

	lastGasCost uint64 // cache for Resize's caller to compute deltas, if needed
}

// newMemory opens a fresh child context at the current end of the arena.
func newMemory(arena *memoryArena) *Memory {
	return &Memory{arena: arena, base: len(arena.store)}
}

// release frees this frame's region back to the arena. Must be called
// exactly once, when the owning frame terminates.
func (m *Memory) release() {
	m.arena.store = m.arena.store[:m.base]
}

// Len returns the current size of this frame's memory, in bytes.
func (m *Memory) Len() int {
	return m.length
}

// Resize grows memory to at least newSize bytes, zero-filling the
// extension. It never shrinks. Callers must charge the corresponding
// expansion gas (gas_dynamic.go) before or alongside calling this.
func (m *Memory) Resize(newSize uint64) {
	if uint64(m.length) >= newSize {
		return
	}
	needed := m.base + int(newSize)
	if needed > len(m.arena.store) {
		m.arena.store = append(m.arena.store, make([]byte, needed-len(m.arena.store))...)
	}
	m.length = int(newSize)
}

func (m *Memory) bounds(offset, size uint64) []byte {
	return m.arena.store[m.base+int(offset) : m.base+int(offset)+int(size)]
}

// Set copies value into memory at [offset, offset+len(value)). Caller must
// have already resized memory to cover the range.
func (m *Memory) Set(offset uint64, value []byte) {
	if len(value) == 0 {
		return
	}
	copy(m.bounds(offset, uint64(len(value))), value)
}

// SetWord writes a 32-byte word at offset, big-endian. Backs MSTORE.
func (m *Memory) SetWord(offset uint64, w types.Word) {
	b := w.Bytes32()
	copy(m.bounds(offset, 32), b[:])
}

// SetByte writes a single byte at offset. Backs MSTORE8.
func (m *Memory) SetByte(offset uint64, b byte) {
	m.bounds(offset, 1)[0] = b
}

// Get returns a fresh copy of [offset, offset+size).
func (m *Memory) Get(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	out := make([]byte, size)
	copy(out, m.bounds(offset, size))
	return out
}

// GetPtr returns a direct slice into the arena at [offset, offset+size),
// aliasing the underlying storage. Callers must not retain it past the
// frame's lifetime or across a Resize (which may reallocate the arena).
func (m *Memory) GetPtr(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	return m.bounds(offset, size)
}

// Copy moves len bytes from src to dst within this frame's memory, handling
// overlapping ranges correctly. Backs MCOPY (EIP-5656).
func (m *Memory) Copy(dst, src, length uint64) {
	if length == 0 {
		return
	}
	copy(m.bounds(dst, length), m.bounds(src, length))
}

// Data returns the full backing slice for this frame's memory.
func (m *Memory) Data() []byte {
	return m.arena.store[m.base : m.base+m.length]
}

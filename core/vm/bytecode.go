package vm

import "github.com/ethexec/evmcore/core/types"

// Bytecode is the uniform view the interpreter holds over executable code,
// regardless of whether it is a legacy byte string, an EIP-7702 delegation
// pointer already resolved to its target's code, or a (pre-validated) EOF
// container.
type Bytecode interface {
	// Len returns the number of executable bytes.
	Len() int
	// ByteAt returns the byte at pc, or 0 if pc is out of range (the
	// interpreter treats a read past the end as an implicit STOP).
	ByteAt(pc uint64) byte
	// Slice returns a sub-range [start, start+length), zero-padded past the
	// end of code — used by CODECOPY/PUSH immediate reads.
	Slice(start, length uint64) []byte
	// IsEOF reports whether this code runs under EOF dispatch rules (§4.G):
	// a different opcode set and no dynamic JUMP/JUMPI.
	IsEOF() bool
}

// LegacyCode is an arbitrary, unstructured byte sequence — the only variant
// that existed before EIP-7702/EIP-7620.
type LegacyCode []byte

func (c LegacyCode) Len() int { return len(c) }

func (c LegacyCode) ByteAt(pc uint64) byte {
	if pc >= uint64(len(c)) {
		return 0
	}
	return c[pc]
}

func (c LegacyCode) Slice(start, length uint64) []byte {
	out := make([]byte, length)
	end := uint64(len(c))
	if start >= end {
		return out
	}
	avail := end - start
	if avail > length {
		avail = length
	}
	copy(out, c[start:start+avail])
	return out
}

func (c LegacyCode) IsEOF() bool { return false }

// DelegatedCode represents EIP-7702 set-code execution: the caller address
// kept its own identity but execution runs the bytes found at Target.
// ResolvedCode exposes the substituted bytes the interpreter actually
// fetches instructions from.
type DelegatedCode struct {
	Target       types.Address
	ResolvedCode LegacyCode
}

func (c DelegatedCode) Len() int                        { return c.ResolvedCode.Len() }
func (c DelegatedCode) ByteAt(pc uint64) byte            { return c.ResolvedCode.ByteAt(pc) }
func (c DelegatedCode) Slice(start, length uint64) []byte { return c.ResolvedCode.Slice(start, length) }
func (c DelegatedCode) IsEOF() bool                      { return false }

// EOFCode wraps a pre-validated EOF container. Validation of section
// structure, stack-height analysis, and relative-jump bounds happens in the
// (out-of-scope) container validator before the bytes ever reach here; this
// type only serves the interpreter bytes to execute and the data section
// DATALOAD*/DATACOPY/DATASIZE opcodes need.
type EOFCode struct {
	Code []byte // the active code section's bytes
	Data []byte // the container's data section
}

func (c EOFCode) Len() int { return len(c.Code) }

func (c EOFCode) ByteAt(pc uint64) byte {
	if pc >= uint64(len(c.Code)) {
		return 0
	}
	return c.Code[pc]
}

func (c EOFCode) Slice(start, length uint64) []byte {
	out := make([]byte, length)
	end := uint64(len(c.Code))
	if start >= end {
		return out
	}
	avail := end - start
	if avail > length {
		avail = length
	}
	copy(out, c.Code[start:start+avail])
	return out
}

func (c EOFCode) IsEOF() bool { return true }

// DataSlice returns up to length bytes of the data section starting at
// offset, zero-padded past the end — backing DATALOAD/DATACOPY.
func (c EOFCode) DataSlice(offset, length uint64) []byte {
	out := make([]byte, length)
	end := uint64(len(c.Data))
	if offset >= end {
		return out
	}
	avail := end - offset
	if avail > length {
		avail = length
	}
	copy(out, c.Data[offset:offset+avail])
	return out
}

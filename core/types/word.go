package types

import "github.com/holiman/uint256"

// Word is the EVM's native 256-bit unsigned machine word. It backs every
// stack slot and every 32-byte memory/storage value. The interpreter never
// uses math/big on the hot path; uint256.Int keeps arithmetic allocation-free.
type Word = uint256.Int

// ZeroWord is the additive identity, convenient for comparisons.
var ZeroWord = uint256.NewInt(0)

// WordFromHash reinterprets a 32-byte hash as a big-endian Word.
func WordFromHash(h Hash) Word {
	var w Word
	w.SetBytes32(h[:])
	return w
}

// WordToHash reinterprets a Word as a 32-byte big-endian hash.
func WordToHash(w *Word) Hash {
	return Hash(w.Bytes32())
}

// AddressToWord left-pads an address into a 256-bit word.
func AddressToWord(a Address) Word {
	var w Word
	w.SetBytes(a[:])
	return w
}

// WordToAddress truncates a word to its low 20 bytes, matching the EVM's
// CALL/CREATE argument decoding (high-order bytes are discarded, not checked).
func WordToAddress(w *Word) Address {
	b := w.Bytes20()
	return Address(b)
}

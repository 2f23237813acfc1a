package crypto

import (
	"errors"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// secp256k1N is the order of the secp256k1 curve's base point group.
var secp256k1N, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)

var secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)

// ErrInvalidSignature is returned by Ecrecover when r, s, or the recovery id
// fall outside the ranges a valid secp256k1 signature can occupy.
var ErrInvalidSignature = errors.New("crypto: invalid secp256k1 signature")

// ValidateSignatureValues reports whether r and s lie in the curve's valid
// range (0, N). When homestead is true, s is additionally required to be in
// the lower half of the range (EIP-2), rejecting the malleable high-S form.
func ValidateSignatureValues(v byte, r, s *big.Int, homestead bool) bool {
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return false
	}
	if r.Cmp(secp256k1N) >= 0 || s.Cmp(secp256k1N) >= 0 {
		return false
	}
	if homestead && s.Cmp(secp256k1HalfN) > 0 {
		return false
	}
	return v == 0 || v == 1
}

// Ecrecover recovers the 65-byte uncompressed public key that produced sig
// (a 65-byte [R || S || V] signature, V in {0,1}) over hash.
func Ecrecover(hash, sig []byte) ([]byte, error) {
	if len(sig) != 65 {
		return nil, ErrInvalidSignature
	}
	compact := make([]byte, 65)
	compact[0] = sig[64] + 27
	copy(compact[1:], sig[:64])

	pub, _, err := secp256k1.RecoverCompact(compact, hash)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	return pub.SerializeUncompressed(), nil
}

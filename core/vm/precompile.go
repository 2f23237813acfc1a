package vm

import (
	"context"
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/ethexec/evmcore/core/params"
	"github.com/ethexec/evmcore/core/types"
	"github.com/ethexec/evmcore/crypto"
	"golang.org/x/crypto/ripemd160"
)

// ErrPrecompileNotActive is returned by PrecompileSet.Run for an address
// that names a precompile not yet activated at the running hardfork.
var ErrPrecompileNotActive = errors.New("vm: precompile not active at this hardfork")

// ErrBN254Unimplemented is returned by the BN254 curve precompiles (0x06,
// 0x07, 0x08): no BN254/alt_bn128 pairing library ships alongside this
// module's dependency set, so the curve arithmetic itself is not
// implemented here — the gas accounting and dispatch plumbing is.
var ErrBN254Unimplemented = errors.New("vm: bn254 precompile: curve arithmetic not implemented")

// ErrBlake2FUnimplemented is returned by the BLAKE2b-F compression
// precompile (0x09) for the same reason: no library in this module's
// dependency set exposes the raw compression function EIP-152 requires.
var ErrBlake2FUnimplemented = errors.New("vm: blake2f precompile: compression function not implemented")

// ErrKZGUnimplemented is returned by the point-evaluation precompile
// (0x0a): verifying a KZG opening needs a trusted-setup-aware pairing
// library this module does not depend on.
var ErrKZGUnimplemented = errors.New("vm: kzg point evaluation precompile: verification not implemented")

// precompiledContract is a single native contract's gas model and behavior,
// grounded on the donor codebase's PrecompiledContract interface.
type precompiledContract interface {
	RequiredGas(input []byte) uint64
	Run(input []byte) ([]byte, error)
}

type precompileEntry struct {
	contract precompiledContract
	name     string
	active   bool
}

// PrecompileSet is the concrete Precompiles collaborator (§6): the standard
// Ethereum precompiles at addresses 0x01-0x0a, each gated by the hardfork
// that introduced it.
type PrecompileSet struct {
	entries map[types.Address]precompileEntry
}

// NewPrecompileSet builds the registry active under rules.
func NewPrecompileSet(rules params.Rules) *PrecompileSet {
	p := &PrecompileSet{entries: make(map[types.Address]precompileEntry, 10)}
	p.register(1, "ecRecover", &ecrecoverContract{}, true)
	p.register(2, "sha256", &sha256Contract{}, true)
	p.register(3, "ripemd160", &ripemd160Contract{}, true)
	p.register(4, "identity", &identityContract{}, true)
	p.register(5, "modexp", &modexpContract{}, rules.IsByzantium)
	p.register(6, "ecAdd", &bn256AddContract{}, rules.IsByzantium)
	p.register(7, "ecMul", &bn256MulContract{}, rules.IsByzantium)
	p.register(8, "ecPairing", &bn256PairingContract{}, rules.IsByzantium)
	p.register(9, "blake2f", &blake2FContract{}, rules.IsIstanbul)
	p.register(10, "kzgPointEvaluation", &kzgPointEvaluationContract{}, rules.IsCancun)
	return p
}

func (p *PrecompileSet) register(b byte, name string, c precompiledContract, active bool) {
	p.entries[types.BytesToAddress([]byte{b})] = precompileEntry{contract: c, name: name, active: active}
}

// IsPrecompile reports whether addr names an active precompile.
func (p *PrecompileSet) IsPrecompile(addr types.Address) bool {
	e, ok := p.entries[addr]
	return ok && e.active
}

// Run executes the precompile at addr, implementing vm.Precompiles.
func (p *PrecompileSet) Run(ctx context.Context, addr types.Address, input []byte, isStatic bool, gasLimit uint64) (*PrecompileResult, error) {
	e, ok := p.entries[addr]
	if !ok || !e.active {
		return nil, ErrPrecompileNotActive
	}
	gasCost := e.contract.RequiredGas(input)
	if gasCost > gasLimit {
		return nil, ErrOutOfGas
	}
	out, err := e.contract.Run(input)
	if err != nil {
		return nil, err
	}
	return &PrecompileResult{GasUsed: gasCost, Output: out}, nil
}

func wordCount(n int) uint64 {
	return (uint64(n) + 31) / 32
}

func rightPad(b []byte, n int) []byte {
	if len(b) >= n {
		return b[:n]
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// --- 0x01: ecRecover ---------------------------------------------------

type ecrecoverContract struct{}

func (c *ecrecoverContract) RequiredGas([]byte) uint64 { return 3000 }

func (c *ecrecoverContract) Run(input []byte) ([]byte, error) {
	input = rightPad(input, 128)

	hash := input[0:32]
	v := new(big.Int).SetBytes(input[32:64])
	r := new(big.Int).SetBytes(input[64:96])
	s := new(big.Int).SetBytes(input[96:128])

	if v.BitLen() > 8 {
		return nil, nil
	}
	vByte := byte(v.Uint64())
	if vByte != 27 && vByte != 28 {
		return nil, nil
	}
	if !crypto.ValidateSignatureValues(vByte-27, r, s, true) {
		return nil, nil
	}

	sig := make([]byte, 65)
	rBytes, sBytes := r.Bytes(), s.Bytes()
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	sig[64] = vByte - 27

	pub, err := crypto.Ecrecover(hash, sig)
	if err != nil {
		return nil, nil
	}
	addr := crypto.Keccak256(pub[1:])
	out := make([]byte, 32)
	copy(out[12:], addr[12:])
	return out, nil
}

// --- 0x02: sha256 --------------------------------------------------------

type sha256Contract struct{}

func (c *sha256Contract) RequiredGas(input []byte) uint64 {
	return 60 + 12*wordCount(len(input))
}

func (c *sha256Contract) Run(input []byte) ([]byte, error) {
	h := sha256.Sum256(input)
	return h[:], nil
}

// --- 0x03: ripemd160 -------------------------------------------------------

type ripemd160Contract struct{}

func (c *ripemd160Contract) RequiredGas(input []byte) uint64 {
	return 600 + 120*wordCount(len(input))
}

func (c *ripemd160Contract) Run(input []byte) ([]byte, error) {
	h := ripemd160.New()
	h.Write(input)
	sum := h.Sum(nil)
	out := make([]byte, 32)
	copy(out[32-len(sum):], sum)
	return out, nil
}

// --- 0x04: identity --------------------------------------------------------

type identityContract struct{}

func (c *identityContract) RequiredGas(input []byte) uint64 {
	return 15 + 3*wordCount(len(input))
}

func (c *identityContract) Run(input []byte) ([]byte, error) {
	out := make([]byte, len(input))
	copy(out, input)
	return out, nil
}

// --- 0x05: modexp (EIP-198 / EIP-2565) -------------------------------------

type modexpContract struct{}

func modexpLengths(input []byte) (baseLen, expLen, modLen uint64) {
	input = rightPad(input, 96)
	baseLen = new(big.Int).SetBytes(input[0:32]).Uint64()
	expLen = new(big.Int).SetBytes(input[32:64]).Uint64()
	modLen = new(big.Int).SetBytes(input[64:96]).Uint64()
	return
}

// modexpIterationCount implements EIP-2565's adjusted exponent length: the
// cost of EXP-by-squaring scales with the bit length of the exponent, not
// its byte length, so a long exponent with a small leading word is charged
// cheaply.
func modexpIterationCount(expLen uint64, expHead *big.Int) uint64 {
	var iterations uint64
	if expLen <= 32 {
		if expHead.Sign() == 0 {
			return 1
		}
		iterations = uint64(expHead.BitLen()) - 1
	} else {
		iterations = 8*(expLen-32) + uint64(maxInt(0, expHead.BitLen()-1))
	}
	if iterations < 1 {
		iterations = 1
	}
	return iterations
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (c *modexpContract) RequiredGas(input []byte) uint64 {
	baseLen, expLen, modLen := modexpLengths(input)

	var expHead *big.Int
	if uint64(len(input)) > 96+baseLen {
		start := 96 + baseLen
		end := start + expLen
		if end > uint64(len(input)) {
			end = uint64(len(input))
		}
		n := end - start
		if n > 32 {
			n = 32
			end = start + 32
		}
		expHead = new(big.Int).SetBytes(input[start:end])
	} else {
		expHead = new(big.Int)
	}

	maxLen := baseLen
	if modLen > maxLen {
		maxLen = modLen
	}
	words := (maxLen + 7) / 8
	mult := words * words

	iterations := modexpIterationCount(expLen, expHead)
	gas := mult * iterations / 3
	if gas < 200 {
		gas = 200
	}
	return gas
}

func (c *modexpContract) Run(input []byte) ([]byte, error) {
	baseLen, expLen, modLen := modexpLengths(input)
	if baseLen == 0 && modLen == 0 {
		return []byte{}, nil
	}

	var rest []byte
	if uint64(len(input)) > 96 {
		rest = input[96:]
	}
	body := rightPad(rest, int(baseLen+expLen+modLen))

	base := new(big.Int).SetBytes(body[0:baseLen])
	exp := new(big.Int).SetBytes(body[baseLen : baseLen+expLen])
	mod := new(big.Int).SetBytes(body[baseLen+expLen : baseLen+expLen+modLen])

	out := make([]byte, modLen)
	if mod.Sign() == 0 {
		return out, nil
	}
	result := new(big.Int).Exp(base, exp, mod)
	resultBytes := result.Bytes()
	copy(out[uint64(len(out))-uint64(len(resultBytes)):], resultBytes)
	return out, nil
}

// --- 0x06/0x07/0x08: BN254 (alt_bn128) add/mul/pairing ---------------------

type bn256AddContract struct{}

func (c *bn256AddContract) RequiredGas([]byte) uint64 { return 150 }
func (c *bn256AddContract) Run([]byte) ([]byte, error) { return nil, ErrBN254Unimplemented }

type bn256MulContract struct{}

func (c *bn256MulContract) RequiredGas([]byte) uint64 { return 6000 }
func (c *bn256MulContract) Run([]byte) ([]byte, error) { return nil, ErrBN254Unimplemented }

type bn256PairingContract struct{}

func (c *bn256PairingContract) RequiredGas(input []byte) uint64 {
	k := uint64(len(input)) / 192
	return 45000 + 34000*k
}
func (c *bn256PairingContract) Run([]byte) ([]byte, error) { return nil, ErrBN254Unimplemented }

// --- 0x09: blake2f (EIP-152) ------------------------------------------------

type blake2FContract struct{}

func (c *blake2FContract) RequiredGas(input []byte) uint64 {
	if len(input) != 213 {
		return 0
	}
	rounds := new(big.Int).SetBytes(input[0:4]).Uint64()
	return rounds
}

func (c *blake2FContract) Run(input []byte) ([]byte, error) {
	if len(input) != 213 {
		return nil, errors.New("vm: blake2f: invalid input length")
	}
	if input[212] != 0 && input[212] != 1 {
		return nil, errors.New("vm: blake2f: invalid final-block flag")
	}
	return nil, ErrBlake2FUnimplemented
}

// --- 0x0a: KZG point evaluation (EIP-4844) ---------------------------------

type kzgPointEvaluationContract struct{}

// PointEvaluationGas is the fixed cost EIP-4844 assigns the precompile.
const PointEvaluationGas = 50000

func (c *kzgPointEvaluationContract) RequiredGas([]byte) uint64 { return PointEvaluationGas }

func (c *kzgPointEvaluationContract) Run(input []byte) ([]byte, error) {
	if len(input) != 192 {
		return nil, errors.New("vm: point evaluation: invalid input length")
	}
	return nil, ErrKZGUnimplemented
}

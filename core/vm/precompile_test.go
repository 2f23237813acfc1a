package vm

import (
	"context"
	"testing"

	"github.com/ethexec/evmcore/core/params"
	"github.com/ethexec/evmcore/core/types"
	"github.com/stretchr/testify/require"
)

func TestPrecompileSetActivationByHardfork(t *testing.T) {
	frontier := NewPrecompileSet(params.RulesFor(params.Frontier))
	require.True(t, frontier.IsPrecompile(types.BytesToAddress([]byte{1})))
	require.True(t, frontier.IsPrecompile(types.BytesToAddress([]byte{4})))
	require.False(t, frontier.IsPrecompile(types.BytesToAddress([]byte{5})), "modexp activates at Byzantium")
	require.False(t, frontier.IsPrecompile(types.BytesToAddress([]byte{9})), "blake2f activates at Istanbul")
	require.False(t, frontier.IsPrecompile(types.BytesToAddress([]byte{10})), "kzg point evaluation activates at Cancun")

	cancun := NewPrecompileSet(params.RulesFor(params.Cancun))
	for b := byte(1); b <= 10; b++ {
		require.Truef(t, cancun.IsPrecompile(types.BytesToAddress([]byte{b})), "address 0x%02x should be active post-Cancun", b)
	}
}

func TestPrecompileRunRejectsInactive(t *testing.T) {
	frontier := NewPrecompileSet(params.RulesFor(params.Frontier))
	_, err := frontier.Run(context.Background(), types.BytesToAddress([]byte{5}), nil, false, 1_000_000)
	require.ErrorIs(t, err, ErrPrecompileNotActive)
}

func TestPrecompileRunRejectsInsufficientGas(t *testing.T) {
	p := NewPrecompileSet(params.RulesFor(params.Cancun))
	_, err := p.Run(context.Background(), types.BytesToAddress([]byte{4}), make([]byte, 64), false, 1)
	require.ErrorIs(t, err, ErrOutOfGas)
}

func TestIdentityPrecompileEchoesInputAndChargesLinearGas(t *testing.T) {
	p := NewPrecompileSet(params.RulesFor(params.Cancun))
	input := []byte("the quick brown fox jumps over the lazy dog")

	res, err := p.Run(context.Background(), types.BytesToAddress([]byte{4}), input, false, 1_000_000)
	require.NoError(t, err)
	require.Equal(t, input, res.Output)
	require.Equal(t, 15+3*wordCount(len(input)), res.GasUsed)
}

func TestSha256PrecompileMatchesKnownDigest(t *testing.T) {
	p := NewPrecompileSet(params.RulesFor(params.Cancun))
	res, err := p.Run(context.Background(), types.BytesToAddress([]byte{2}), nil, false, 1_000_000)
	require.NoError(t, err)
	// sha256("") is a fixed, well-known digest.
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hexEncode(res.Output))
	require.Equal(t, uint64(60), res.GasUsed)
}

func TestRipemd160PrecompileOutputIsLeftZeroPadded(t *testing.T) {
	p := NewPrecompileSet(params.RulesFor(params.Cancun))
	res, err := p.Run(context.Background(), types.BytesToAddress([]byte{3}), []byte("abc"), false, 1_000_000)
	require.NoError(t, err)
	require.Len(t, res.Output, 32)
	for _, b := range res.Output[:12] {
		require.Equal(t, byte(0), b)
	}
}

func TestModexpPrecompileTrivialCase(t *testing.T) {
	p := NewPrecompileSet(params.RulesFor(params.Cancun))

	// base=0, exp=0, mod=0, all length 1: 0^0 mod 0 = 0 by EIP-198 convention.
	// Each length is a 32-byte big-endian field (EIP-198).
	input := make([]byte, 96+3)
	input[31] = 1 // baseLen = 1
	input[63] = 1 // expLen = 1
	input[95] = 1 // modLen = 1
	// base, exp, mod bytes are the trailing three zeros
	res, err := p.Run(context.Background(), types.BytesToAddress([]byte{5}), input, false, 1_000_000)
	require.NoError(t, err)
	require.Equal(t, []byte{0}, res.Output)
}

func TestBn254PrecompilesReportUnimplementedOnceGasIsSufficient(t *testing.T) {
	p := NewPrecompileSet(params.RulesFor(params.Cancun))

	for _, addr := range []byte{6, 7, 8} {
		res, err := p.Run(context.Background(), types.BytesToAddress([]byte{addr}), nil, false, 1_000_000)
		require.Nil(t, res)
		require.ErrorIs(t, err, ErrBN254Unimplemented)
	}

	_, err := p.Run(context.Background(), types.BytesToAddress([]byte{6}), nil, false, 149)
	require.ErrorIs(t, err, ErrOutOfGas, "a request under the fixed ecAdd cost must fail on gas before reaching the curve math")
}

func TestBn254PairingGasScalesWithInputLength(t *testing.T) {
	p := NewPrecompileSet(params.RulesFor(params.Cancun))
	input := make([]byte, 192*2)

	_, err := p.Run(context.Background(), types.BytesToAddress([]byte{8}), input, false, 45000+34000*2)
	require.ErrorIs(t, err, ErrBN254Unimplemented, "gas check must pass before the unimplemented curve math is reached")

	_, err = p.Run(context.Background(), types.BytesToAddress([]byte{8}), input, false, 45000+34000*2-1)
	require.ErrorIs(t, err, ErrOutOfGas)
}

func TestBlake2FPrecompileValidatesInputShape(t *testing.T) {
	p := NewPrecompileSet(params.RulesFor(params.Cancun))

	_, err := p.Run(context.Background(), types.BytesToAddress([]byte{9}), make([]byte, 10), false, 1_000_000)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrBlake2FUnimplemented, "a malformed input is rejected before reaching the unimplemented compression step")

	input := make([]byte, 213)
	input[212] = 1
	_, err = p.Run(context.Background(), types.BytesToAddress([]byte{9}), input, false, 1_000_000)
	require.ErrorIs(t, err, ErrBlake2FUnimplemented)
}

func TestKZGPointEvaluationPrecompileFixedGas(t *testing.T) {
	p := NewPrecompileSet(params.RulesFor(params.Cancun))

	input := make([]byte, 192)
	res, err := p.Run(context.Background(), types.BytesToAddress([]byte{10}), input, false, PointEvaluationGas)
	require.Nil(t, res)
	require.ErrorIs(t, err, ErrKZGUnimplemented)

	_, err = p.Run(context.Background(), types.BytesToAddress([]byte{10}), input, false, PointEvaluationGas-1)
	require.ErrorIs(t, err, ErrOutOfGas)
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

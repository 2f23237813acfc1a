package vm

import "github.com/ethexec/evmcore/core/params"

// Gas tiers per Yellow Paper Appendix G — unchanged across every hardfork
// modelled here, so they are plain constants rather than table entries.
const (
	GasZero    uint64 = 0
	GasBase    uint64 = 2
	GasVerylow uint64 = 3
	GasLow     uint64 = 5
	GasMid     uint64 = 8
	GasHigh    uint64 = 10
	GasExt     uint64 = 20

	GasJumpDest uint64 = 1
	GasPush0    uint64 = 2

	StackLimit    = 1024
	MaxCallDepth  = 1024
	RefundQuotientPreLondon  uint64 = 2 // gas_used / N cap; pre-London N=2 means "half"
	RefundQuotientPostLondon uint64 = 5
)

// GasTable holds every hardfork-variable gas parameter named in §4.C. It is
// built once per transaction from the active Hardfork and consulted by the
// dynamic-gas helpers in gas_dynamic.go and by the jump table's constant-gas
// fields.
type GasTable struct {
	// Account access (EIP-2929).
	ColdAccountAccessCost uint64
	ColdSloadCost         uint64
	WarmStorageReadCost   uint64

	// SSTORE (EIP-2200 / EIP-3529).
	SstoreSetGas    uint64
	SstoreResetGas  uint64
	SstoreClearsRefund uint64
	MaxRefundQuotient  uint64

	// CALL family.
	CallStipend          uint64
	CallValueTransferGas uint64
	CallNewAccountGas    uint64
	CallGasFraction      uint64 // EIP-150 63/64 denominator

	// CREATE / contract deployment.
	CreateGas         uint64
	CreateDataGas     uint64 // per deployed byte (EIP-170 code deposit)
	MaxCodeSize       int    // EIP-170
	MaxInitCodeSize   int    // EIP-3860
	InitCodeWordGas   uint64 // EIP-3860

	// SELFDESTRUCT.
	SelfdestructGas         uint64
	CreateBySelfdestructGas uint64

	// Memory.
	MemoryGasCostPerWord uint64
	MemoryDivisor        uint64

	// KECCAK256.
	Keccak256BaseCost uint64
	Keccak256WordCost uint64

	// Copy operations (CALLDATACOPY, CODECOPY, RETURNDATACOPY, EXTCODECOPY, MCOPY).
	CopyCostPerWord uint64

	// LOG.
	LogBaseCost  uint64
	LogTopicCost uint64
	LogDataCost  uint64

	// EXP.
	ExpBaseCost uint64
	ExpByteCost uint64

	// Transient storage (EIP-1153).
	TLoadGas  uint64
	TStoreGas uint64
}

// NewGasTable builds the gas table for the given hardfork by applying diff
// rules in chronological order, mirroring the donor codebase's ForkRules
// layering: later forks start from the previous table and override only
// what changed.
func NewGasTable(rules params.Rules) GasTable {
	t := frontierGasTable()
	if rules.IsTangerineWhistle {
		t = tangerineWhistleDiff(t)
	}
	if rules.IsSpuriousDragon {
		t = spuriousDragonDiff(t)
	}
	if rules.IsIstanbul {
		t = istanbulDiff(t)
	}
	if rules.IsBerlin {
		t = berlinDiff(t)
	}
	if rules.IsLondon {
		t = londonDiff(t)
	}
	if rules.IsShanghai {
		t = shanghaiDiff(t)
	}
	if rules.IsCancun {
		t = cancunDiff(t)
	}
	return t
}

func frontierGasTable() GasTable {
	return GasTable{
		ColdAccountAccessCost: 20,
		ColdSloadCost:         50,
		WarmStorageReadCost:   50,

		SstoreSetGas:       20000,
		SstoreResetGas:     5000,
		SstoreClearsRefund: 15000,
		MaxRefundQuotient:  RefundQuotientPreLondon,

		CallStipend:          2300,
		CallValueTransferGas: 9000,
		CallNewAccountGas:    25000,
		CallGasFraction:      0, // no 63/64 rule pre-EIP-150: full forwarding

		CreateGas:       32000,
		CreateDataGas:   200,
		MaxCodeSize:     0, // unlimited pre-EIP-170
		MaxInitCodeSize: 0, // unlimited pre-EIP-3860
		InitCodeWordGas: 0,

		SelfdestructGas:         0,
		CreateBySelfdestructGas: 25000,

		MemoryGasCostPerWord: 3,
		MemoryDivisor:        512,

		Keccak256BaseCost: 30,
		Keccak256WordCost: 6,

		CopyCostPerWord: 3,

		LogBaseCost:  375,
		LogTopicCost: 375,
		LogDataCost:  8,

		ExpBaseCost: 10,
		ExpByteCost: 10,
	}
}

func tangerineWhistleDiff(t GasTable) GasTable {
	// EIP-150: repriced "operational" opcodes and introduced the 63/64 rule.
	t.CallGasFraction = 64
	t.ColdAccountAccessCost = 700
	t.ColdSloadCost = 200
	t.WarmStorageReadCost = 200
	t.SelfdestructGas = 5000
	return t
}

func spuriousDragonDiff(t GasTable) GasTable {
	// EIP-170: 24576-byte code size cap. EIP-161 state clearing is handled
	// in core/state, not the gas table.
	t.MaxCodeSize = 24576
	return t
}

func istanbulDiff(t GasTable) GasTable {
	// EIP-1884/2200 repricing of SLOAD and SSTORE no-op reads.
	t.ColdSloadCost = 800
	t.WarmStorageReadCost = 800
	t.SstoreClearsRefund = 15000
	return t
}

func berlinDiff(t GasTable) GasTable {
	// EIP-2929: cold/warm access list accounting replaces the flat costs
	// above; EIP-2930 introduces the transaction access list itself.
	t.ColdAccountAccessCost = 2600
	t.ColdSloadCost = 2100
	t.WarmStorageReadCost = 100
	t.SstoreResetGas = 5000 - 2100 // cold surcharge now charged separately
	return t
}

func londonDiff(t GasTable) GasTable {
	// EIP-3529: refund cap lowered from gas_used/2 to gas_used/5 and the
	// SSTORE clearing refund reduced.
	// EIP-3541 (reject 0xEF-prefixed deployed code) lives in create.go.
	t.MaxRefundQuotient = RefundQuotientPostLondon
	t.SstoreClearsRefund = 4800
	return t
}

func shanghaiDiff(t GasTable) GasTable {
	// EIP-3860: bound init code size and charge 2 gas per word of it.
	// EIP-3651 (warm COINBASE) is applied at warm-set seeding time in the
	// orchestrator, not here. EIP-3855 (PUSH0) needs no table change.
	t.MaxInitCodeSize = 2 * maxCodeSizeOrDefault(t)
	t.InitCodeWordGas = 2
	return t
}

// maxCodeSizeOrDefault guards MaxInitCodeSize derivation against a
// hypothetical pre-EIP-170 table, which never occurs on mainnet's fork
// ordering but keeps the diff function pure.
func maxCodeSizeOrDefault(t GasTable) int {
	if t.MaxCodeSize == 0 {
		return 24576
	}
	return t.MaxCodeSize
}

func cancunDiff(t GasTable) GasTable {
	// EIP-1153 transient storage.
	t.TLoadGas = 100
	t.TStoreGas = 100
	return t
}

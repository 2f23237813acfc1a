// Package params carries the hardfork-parameterized configuration consulted
// by the gas schedule, the jump table, and the journaled state: which EIPs
// are active. It deliberately holds no chain-selection or genesis logic —
// that belongs to the (out-of-scope) chain-config layer; this package only
// answers "given a hardfork, which behavioral flags are set".
package params

// Hardfork identifies a protocol upgrade. Values are ordered chronologically
// so callers can write hf >= Berlin instead of a long boolean chain.
type Hardfork uint8

const (
	Frontier Hardfork = iota
	Homestead
	TangerineWhistle // EIP-150: 63/64 call gas rule
	SpuriousDragon   // EIP-170/161: code size limit, state clearing
	Byzantium
	Constantinople
	Istanbul
	Berlin  // EIP-2929/2930: access lists, cold/warm gas
	London  // EIP-1559/3529/3541/3198
	Merge   // The Paris upgrade; PoS, no gas-schedule change of its own
	Shanghai // EIP-3651/3855/3860: warm coinbase, PUSH0, initcode limit
	Cancun  // EIP-1153/4844/5656/6780: transient storage, blobs, MCOPY
	Prague  // EIP-7702/2935/7623: set-code transactions
)

// Rules is the flat set of behavioral flags the interpreter, gas schedule,
// and journaled state consult. Computing these once at frame-construction
// time (rather than branching on Hardfork everywhere) is the "hardfork
// dispatch" discipline described in the design notes: hot paths read flags,
// not `if hf >= X` chains.
type Rules struct {
	Hardfork Hardfork

	IsHomestead       bool
	IsTangerineWhistle bool // EIP-150
	IsSpuriousDragon  bool // EIP-170, EIP-161
	IsByzantium       bool
	IsConstantinople  bool
	IsIstanbul        bool
	IsBerlin          bool // EIP-2929, EIP-2930
	IsLondon          bool // EIP-1559, EIP-3529, EIP-3541, EIP-3198
	IsMerge           bool
	IsShanghai        bool // EIP-3651, EIP-3855, EIP-3860
	IsCancun          bool // EIP-1153, EIP-4844, EIP-5656, EIP-6780
	IsPrague          bool // EIP-7702, EIP-2935, EIP-7623
}

// RulesFor computes the flag set for a given hardfork. Each flag is true
// for the hardfork that introduced it and every later one.
func RulesFor(hf Hardfork) Rules {
	return Rules{
		Hardfork:           hf,
		IsHomestead:        hf >= Homestead,
		IsTangerineWhistle: hf >= TangerineWhistle,
		IsSpuriousDragon:   hf >= SpuriousDragon,
		IsByzantium:        hf >= Byzantium,
		IsConstantinople:   hf >= Constantinople,
		IsIstanbul:         hf >= Istanbul,
		IsBerlin:           hf >= Berlin,
		IsLondon:           hf >= London,
		IsMerge:            hf >= Merge,
		IsShanghai:         hf >= Shanghai,
		IsCancun:           hf >= Cancun,
		IsPrague:           hf >= Prague,
	}
}

// String returns the hardfork's canonical name.
func (hf Hardfork) String() string {
	switch hf {
	case Frontier:
		return "Frontier"
	case Homestead:
		return "Homestead"
	case TangerineWhistle:
		return "TangerineWhistle"
	case SpuriousDragon:
		return "SpuriousDragon"
	case Byzantium:
		return "Byzantium"
	case Constantinople:
		return "Constantinople"
	case Istanbul:
		return "Istanbul"
	case Berlin:
		return "Berlin"
	case London:
		return "London"
	case Merge:
		return "Merge"
	case Shanghai:
		return "Shanghai"
	case Cancun:
		return "Cancun"
	case Prague:
		return "Prague"
	default:
		return "Unknown"
	}
}

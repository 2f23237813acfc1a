package vm

import "github.com/ethexec/evmcore/core/params"

// allRulesOn returns the rule set with every hardfork flag enabled, for
// tests that only care about gas-table/jump-table shape rather than
// fork-gating behavior.
func allRulesOn() params.Rules {
	return params.RulesFor(params.Prague)
}

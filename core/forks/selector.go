// Package forks provides the HardforkSelector contract spec.md §3 names — a
// pure function from block number to hardfork name — plus the reverse
// mapping from a hardfork name to the *params.ChainConfig an EVM backend
// needs to run with those rules, grounded on the teacher's core/vm/spec.go
// SpecID function (there: hardfork predicates → numeric FFI id; here:
// block number → hardfork name, and name → concrete chain rules).
package forks

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// Hardfork is an ordered name. Ordering matters for GteHardfork queries.
type Hardfork string

const (
	Frontier        Hardfork = "frontier"
	Homestead       Hardfork = "homestead"
	TangerineWhistle Hardfork = "tangerineWhistle"
	SpuriousDragon  Hardfork = "spuriousDragon"
	Byzantium       Hardfork = "byzantium"
	Constantinople  Hardfork = "constantinople"
	Petersburg      Hardfork = "petersburg"
	Istanbul        Hardfork = "istanbul"
	Berlin          Hardfork = "berlin"
	London          Hardfork = "london"
	ArrowGlacier    Hardfork = "arrowGlacier"
	GrayGlacier     Hardfork = "grayGlacier"
	Merge           Hardfork = "merge"
	Shanghai        Hardfork = "shanghai"
	Cancun          Hardfork = "cancun"
)

// order lists every hardfork from oldest to newest; its index is the
// ordering GteHardfork compares against.
var order = []Hardfork{
	Frontier, Homestead, TangerineWhistle, SpuriousDragon, Byzantium,
	Constantinople, Petersburg, Istanbul, Berlin, London, ArrowGlacier,
	GrayGlacier, Merge, Shanghai, Cancun,
}

var rank = func() map[Hardfork]int {
	m := make(map[Hardfork]int, len(order))
	for i, h := range order {
		m[h] = i
	}
	return m
}()

// Gte reports whether a is at or after b in hardfork ordering. Unknown
// hardfork names rank below everything, matching the conservative stance
// "unrecognized means oldest".
func Gte(a, b Hardfork) bool {
	ra, ok := rank[a]
	if !ok {
		return false
	}
	rb, ok := rank[b]
	if !ok {
		return true
	}
	return ra >= rb
}

// Selector is spec.md §3's HardforkSelector: a pure function from block
// number to hardfork name, injected into the adapter at construction.
type Selector func(blockNumber uint64) Hardfork

// NewSelector builds a Selector from an ascending list of (activation block,
// hardfork) pairs — the dev-node equivalent of a chain config's block-keyed
// fork schedule. Blocks before the first entry select Frontier.
func NewSelector(schedule []ActivationPoint) Selector {
	return func(blockNumber uint64) Hardfork {
		current := Frontier
		for _, ap := range schedule {
			if blockNumber < ap.Block {
				break
			}
			current = ap.Hardfork
		}
		return current
	}
}

// ActivationPoint pairs a hardfork with the block number it activates at.
type ActivationPoint struct {
	Block    uint64
	Hardfork Hardfork
}

// ChainRules builds a *params.ChainConfig whose block-numbered fork fields
// are set to 0 for hf and every fork before it, while those for forks after
// hf are left nil (not yet active). This lets both adapter backends run with the exact
// rule set a given hardfork name implies without hand-maintaining a second
// parallel config table.
func ChainRules(chainID *big.Int, hf Hardfork) *params.ChainConfig {
	cfg := &params.ChainConfig{ChainID: chainID}

	zero := big.NewInt(0)
	set := func(want Hardfork, field **big.Int) {
		if Gte(hf, want) {
			*field = zero
		}
	}
	set(Homestead, &cfg.HomesteadBlock)
	set(TangerineWhistle, &cfg.EIP150Block)
	set(SpuriousDragon, &cfg.EIP155Block)
	set(SpuriousDragon, &cfg.EIP158Block)
	set(Byzantium, &cfg.ByzantiumBlock)
	set(Constantinople, &cfg.ConstantinopleBlock)
	set(Petersburg, &cfg.PetersburgBlock)
	set(Istanbul, &cfg.IstanbulBlock)
	set(Berlin, &cfg.BerlinBlock)
	set(London, &cfg.LondonBlock)
	set(ArrowGlacier, &cfg.ArrowGlacierBlock)
	set(GrayGlacier, &cfg.GrayGlacierBlock)

	var zeroTime uint64
	if Gte(hf, Shanghai) {
		cfg.ShanghaiTime = &zeroTime
	}
	if Gte(hf, Cancun) {
		cfg.CancunTime = &zeroTime
	}
	return cfg
}

// IsLondonActive reports whether hf implies EIP-1559's basefee rules.
func IsLondonActive(hf Hardfork) bool { return Gte(hf, London) }

// IsMergeActive reports whether hf implies PREVRANDAO replaces DIFFICULTY.
func IsMergeActive(hf Hardfork) bool { return Gte(hf, Merge) }

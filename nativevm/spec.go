package nativevm

import "github.com/clydemeng/evmadapter/core/forks"

// specID maps a resolved hardfork to the numeric spec identifier the linked
// native EVM library expects, generalized from the teacher's
// core/vm.SpecID (which derived the same numbering from a *params.ChainConfig
// plus block number/timestamp) down to this module's own forks.Hardfork enum,
// since the adapter has already resolved the hardfork before crossing the
// FFI boundary.
func specID(hf forks.Hardfork) uint8 {
	switch hf {
	case forks.Frontier:
		return 0
	case forks.Homestead:
		return 2
	case forks.TangerineWhistle:
		return 4
	case forks.SpuriousDragon:
		return 5
	case forks.Byzantium:
		return 6
	case forks.Constantinople:
		return 7
	case forks.Petersburg:
		return 8
	case forks.Istanbul:
		return 9
	case forks.Berlin:
		return 11
	case forks.London:
		return 12
	case forks.ArrowGlacier:
		return 13
	case forks.GrayGlacier:
		return 14
	case forks.Merge:
		return 15
	case forks.Shanghai:
		return 16
	case forks.Cancun:
		return 17
	default:
		return 17 // Cancun is the default hardfork; see cmd/devnode's --hardfork flag.
	}
}

package adapter

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/clydemeng/evmadapter/core/forks"
	evmstate "github.com/clydemeng/evmadapter/core/state"
	"github.com/clydemeng/evmadapter/core/tracebus"
)

// Skips carries the three validation toggles spec.md §4.4's dryRun step 4
// names explicitly: nonce checking, balance/debit checking, and the block
// gas limit check. RunTxInBlock always runs with every skip false.
type Skips struct {
	Nonce         bool
	Balance       bool
	BlockGasLimit bool
}

// RuntimeConfig is the chain configuration a single message execution runs
// under — potentially the adapter's ordinary config, or the substituted
// chainId/networkId/hardfork triple dryRun computes from the block number
// (spec.md §4.4 step 3).
type RuntimeConfig struct {
	ChainID                    uint64
	NetworkID                  uint64
	Hardfork                   forks.Hardfork
	AllowUnlimitedContractSize bool
}

// ExecutionRequest is everything a Backend needs to run a single message:
// the transaction, the block it executes in, the effective chain rules, the
// store it reads/writes through, the skip flags, and the trace bus it must
// emit before/step/after events to.
type ExecutionRequest struct {
	Tx    *Transaction
	Block BlockContext
	Chain RuntimeConfig
	Store evmstate.Store
	Bus   *tracebus.Bus
	Skips Skips
}

// Backend is what each concrete execution engine (core/vm's interpreted
// backend, nativevm's native backend) implements. The Adapter facade in
// this package holds a Backend behind this interface only, per spec.md
// §4.4 / §9 "Polymorphism without inheritance."
type Backend interface {
	// Engine returns a short human identifier ("interpreted", "native").
	Engine() string

	// Execute runs req.Tx against req.Store under req.Chain's rules,
	// emitting trace-bus events to req.Bus as it goes, and returns the
	// normalized result.
	Execute(req ExecutionRequest) (*RunTxResult, error)

	// IsWarmedAddress reflects EIP-2929 access-list warmth. Backends that
	// cannot cheaply answer may return true conservatively, per spec.md's
	// open question #1.
	IsWarmedAddress(addr common.Address) bool

	// SupportsForking reports whether this backend can run against a
	// fork-aware store. The native backend refuses with
	// ErrForkingUnsupported at construction time when this is false and a
	// ForkConfig was supplied.
	SupportsForking() bool
}

package adapter

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/clydemeng/evmadapter/core/forks"
	evmstate "github.com/clydemeng/evmadapter/core/state"
	"github.com/clydemeng/evmadapter/core/tracebus"
)

// VMAdapter is the polymorphic surface spec.md §4.4 describes. This
// package's Adapter satisfies it over either concrete Backend (core/vm's
// interpreted Backend or nativevm's native Backend); the provider holds the
// adapter by this interface only, never branching on which concrete backend
// it got.
type VMAdapter interface {
	// DryRun runs tx as if in blockContext without mutating committed
	// state (spec.md §4.4).
	DryRun(tx *Transaction, blockContext BlockContext, forceBaseFeeZero bool) (*RunTxResult, error)

	// StartBlock pushes the block-scoped state checkpoint. Forbidden while
	// one is already open.
	StartBlock() error
	// RunTxInBlock executes tx into the currently open block checkpoint.
	// Forbidden without an open checkpoint.
	RunTxInBlock(tx *Transaction, block BlockContext) (*RunTxResult, error)
	// AddBlockRewards credits each reward to its address's balance,
	// creating the account if needed.
	AddBlockRewards(rewards []Reward) error
	// SealBlock commits the open checkpoint.
	SealBlock() error
	// RevertBlock discards the open checkpoint, restoring the state root
	// captured by StartBlock.
	RevertBlock() error

	// SetDebugTracer attaches the optional second trace-bus subscriber.
	SetDebugTracer(t tracebus.Tracer)
	// RemoveDebugTracer detaches it.
	RemoveDebugTracer()
	// GetLastTrace returns the most recent top-level message trace and any
	// captured tracer error.
	GetLastTrace() (*tracebus.MessageTrace, error)
	// ClearLastError zeroes the error slot without dropping traces.
	ClearLastError()

	// SelectHardfork delegates to the injected HardforkSelector.
	SelectHardfork(blockNumber uint64) forks.Hardfork
	// GteHardfork reports whether the adapter's current hardfork is at or
	// after name.
	GteHardfork(name forks.Hardfork) bool
	// GetCommon exposes the adapter's current chain configuration.
	GetCommon() Config

	// IsWarmedAddress reflects EIP-2929 access-list warmth. Backends that
	// cannot cheaply answer may return true conservatively.
	IsWarmedAddress(addr common.Address) bool

	// GetAccount / GetContractStorage / GetContractCode / PutAccount /
	// PutContractCode / PutContractStorage / AccountIsEmpty are the simple
	// readers/writers spec.md §6 exposes to the provider.
	GetAccount(addr common.Address) (Account, bool)
	GetContractStorage(addr common.Address, key common.Hash) common.Hash
	GetContractCode(addr common.Address) []byte
	PutAccount(addr common.Address, acc Account)
	PutContractCode(addr common.Address, code []byte)
	PutContractStorage(addr common.Address, key, value common.Hash)
	AccountIsEmpty(addr common.Address) bool

	// GetStateRoot / SetStateRoot / MakeSnapshot / RestoreContext expose
	// the journal's checkpoint/snapshot surface.
	GetStateRoot() common.Hash
	SetStateRoot(root common.Hash) error
	MakeSnapshot() common.Hash
	RestoreContext(root common.Hash, block BlockContext, irregularState *common.Hash) error

	// Engine returns a short human identifier of the concrete backend
	// ("interpreted", "native"), mirroring the teacher's Engine() methods.
	Engine() string
}

// Account is re-exported from core/state so callers of this package need
// not import it directly for the common read/write path.
type Account = evmstate.Account

// Package state implements the block-scoped checkpoint/commit/revert
// journal the adapter uses to run transactions against a pluggable world
// state store, modeled on the teacher's revm_bridge overlay-then-flush
// journal (see core/memstore and core/forkstore for concrete stores).
package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Account mirrors spec.md §3's Account type. Code is addressed separately by
// CodeHash.
type Account struct {
	Nonce       uint64
	Balance     *uint256.Int
	CodeHash    common.Hash
	StorageRoot common.Hash
}

// IsEmpty reports whether the account is indistinguishable from one that has
// never been touched, per EIP-161.
func (a Account) IsEmpty() bool {
	return a.Nonce == 0 && (a.Balance == nil || a.Balance.IsZero()) && a.CodeHash == (common.Hash{})
}

// BlockContext mirrors spec.md §3's Block context type.
type BlockContext struct {
	Number     uint64
	Coinbase   common.Address
	Timestamp  uint64
	BaseFee    *uint256.Int
	GasLimit   uint64
	Difficulty *uint256.Int // pre-Merge only
	PrevRandao *common.Hash // required at and after the Merge
	StateRoot  common.Hash
	ParentHash common.Hash
}

// maxDifficulty is the 2^32-1 bound spec.md's block environment mapping
// clamps a pre-Merge difficulty value to before handing it to either
// backend.
var maxDifficulty = uint256.NewInt(0xFFFFFFFF)

// ClampDifficulty returns d capped at 2^32-1, or zero if d is nil.
func ClampDifficulty(d *uint256.Int) *uint256.Int {
	if d == nil {
		return new(uint256.Int)
	}
	if d.Gt(maxDifficulty) {
		return maxDifficulty.Clone()
	}
	return d.Clone()
}

// Store is the pluggable backend a Journal checkpoints on top of. Concrete
// implementations are core/memstore (pure in-memory) and core/forkstore
// (proxies unknown reads to a pinned remote block).
type Store interface {
	GetAccount(addr common.Address) (Account, bool)
	PutAccount(addr common.Address, acc Account)
	GetStorage(addr common.Address, key common.Hash) common.Hash
	PutStorage(addr common.Address, key, value common.Hash)
	GetCode(codeHash common.Hash) []byte
	PutCode(code []byte) common.Hash
	AccountIsEmpty(addr common.Address) bool

	// Checkpoint pushes a savepoint and returns its index.
	Checkpoint() int
	// Commit drops the top savepoint, keeping writes made above it.
	Commit()
	// Revert discards writes made above the top savepoint and pops it.
	Revert()

	// StateRoot returns the Merkle-style root over the current
	// account/storage/code maps, including writes made above open
	// savepoints. Deterministic regardless of insertion order.
	StateRoot() common.Hash
	// SetStateRoot jumps the working state to root, or reports
	// ErrUnknownStateRoot if it was never observed.
	SetStateRoot(root common.Hash) error
	// MakeSnapshot returns the current root without mutating the working
	// set.
	MakeSnapshot() common.Hash
}

// ForkAware is implemented by stores that additionally need to know the
// block context (and optional state-root override) they are restoring to,
// because reads may need to proxy to a remote node.
type ForkAware interface {
	Store
	SetBlockContext(block BlockContext, irregularState *common.Hash) error
}

package state

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

// ErrUnknownStateRoot is returned by SetStateRoot/RestoreContext when asked
// to jump to a root that was never observed.
var ErrUnknownStateRoot = errors.New("state: unknown state root")

// Journal is a thin handle over a Store that the adapter drives through the
// checkpoint/commit/revert discipline described in spec.md §4.3. It adds no
// storage of its own — all durability lives in the underlying Store — but
// gives the adapter a single, backend-agnostic surface.
type Journal struct {
	store Store
}

// NewJournal wraps store in a Journal.
func NewJournal(store Store) *Journal {
	return &Journal{store: store}
}

// Store exposes the underlying backend for callers (e.g. the native backend
// bridge) that need direct read/write access beyond the journal discipline.
func (j *Journal) Store() Store { return j.store }

// Checkpoint pushes a savepoint.
func (j *Journal) Checkpoint() int { return j.store.Checkpoint() }

// Commit drops the top savepoint, keeping writes.
func (j *Journal) Commit() { j.store.Commit() }

// Revert discards writes above the top savepoint and pops it.
func (j *Journal) Revert() { j.store.Revert() }

// GetStateRoot returns the root of the store's current working state.
func (j *Journal) GetStateRoot() common.Hash { return j.store.StateRoot() }

// SetStateRoot jumps the working state to root.
func (j *Journal) SetStateRoot(root common.Hash) error {
	if err := j.store.SetStateRoot(root); err != nil {
		return err
	}
	return nil
}

// MakeSnapshot returns the current root without mutating the working set.
func (j *Journal) MakeSnapshot() common.Hash { return j.store.MakeSnapshot() }

// RestoreContext is the ForkAware-sensitive counterpart to SetStateRoot: for
// a plain store it degrades to SetStateRoot(root); for a fork-aware store it
// also conveys the block number so reads can be proxied correctly, and a
// non-nil irregularState takes the place of root.
func (j *Journal) RestoreContext(root common.Hash, block BlockContext, irregularState *common.Hash) error {
	if fa, ok := j.store.(ForkAware); ok {
		block.StateRoot = root
		return fa.SetBlockContext(block, irregularState)
	}
	return j.SetStateRoot(root)
}

// CreditReward adds reward to addr's balance, creating the account if it
// does not yet exist ("create-on-credit"), per spec.md §4.4's block-reward
// invariant.
func (j *Journal) CreditReward(addr common.Address, reward *uint256.Int, reason BalanceChangeReason) {
	acc, ok := j.store.GetAccount(addr)
	if !ok {
		acc = Account{Balance: new(uint256.Int)}
	}
	if acc.Balance == nil {
		acc.Balance = new(uint256.Int)
	}
	newBal := new(uint256.Int).Add(acc.Balance, reward)
	log.Debug("crediting block reward", "addr", addr, "reward", reward, "reason", reason, "newBalance", newBal)
	acc.Balance = newBal
	j.store.PutAccount(addr, acc)
}

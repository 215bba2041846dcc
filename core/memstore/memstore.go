// Package memstore is the default in-memory core/state.Store: plain
// account/storage/code maps with a change-log based checkpoint/revert
// discipline, grounded on the teacher's revm_bridge/statedb.go overlay
// (pendingBasic/pendingStorage) generalized from "overlay flushed into a
// *state.StateDB" to "overlay flushed into its own maps".
package memstore

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	evmstate "github.com/clydemeng/evmadapter/core/state"
)

type storageKey struct {
	addr common.Address
	slot common.Hash
}

// change is one entry in the undo log. Exactly one of the optional fields is
// populated depending on kind.
type change struct {
	kind      changeKind
	addr      common.Address
	slot      common.Hash
	prevAcc   evmstate.Account
	hadAcc    bool
	prevValue common.Hash
}

type changeKind uint8

const (
	changeAccount changeKind = iota
	changeStorage
)

// Store is a pure in-memory core/state.Store.
type Store struct {
	accounts map[common.Address]evmstate.Account
	storage  map[storageKey]common.Hash
	code     map[common.Hash][]byte

	log         []change
	checkpoints []int // indices into log marking each Checkpoint() call

	roots map[common.Hash]rootSnapshot
}

// rootSnapshot captures a deep-enough copy of the committed maps to let
// SetStateRoot jump back to a previously observed root.
type rootSnapshot struct {
	accounts map[common.Address]evmstate.Account
	storage  map[storageKey]common.Hash
	code     map[common.Hash][]byte
}

// New constructs an empty Store whose initial state root is the root of the
// empty account set.
func New() *Store {
	s := &Store{
		accounts: make(map[common.Address]evmstate.Account),
		storage:  make(map[storageKey]common.Hash),
		code:     make(map[common.Hash][]byte),
		roots:    make(map[common.Hash]rootSnapshot),
	}
	s.snapshotCurrentRoot()
	return s
}

func (s *Store) GetAccount(addr common.Address) (evmstate.Account, bool) {
	acc, ok := s.accounts[addr]
	return acc, ok
}

func (s *Store) PutAccount(addr common.Address, acc evmstate.Account) {
	prev, had := s.accounts[addr]
	s.log = append(s.log, change{kind: changeAccount, addr: addr, prevAcc: prev, hadAcc: had})
	s.accounts[addr] = acc
}

func (s *Store) GetStorage(addr common.Address, key common.Hash) common.Hash {
	return s.storage[storageKey{addr, key}]
}

func (s *Store) PutStorage(addr common.Address, key, value common.Hash) {
	k := storageKey{addr, key}
	prev := s.storage[k]
	s.log = append(s.log, change{kind: changeStorage, addr: addr, slot: key, prevValue: prev})
	s.storage[k] = value
}

func (s *Store) GetCode(codeHash common.Hash) []byte {
	return s.code[codeHash]
}

func (s *Store) PutCode(code []byte) common.Hash {
	h := crypto.Keccak256Hash(code)
	if _, ok := s.code[h]; !ok {
		s.code[h] = append([]byte(nil), code...)
	}
	return h
}

func (s *Store) AccountIsEmpty(addr common.Address) bool {
	acc, ok := s.accounts[addr]
	if !ok {
		return true
	}
	return acc.IsEmpty()
}

// Checkpoint pushes a savepoint marking the current length of the undo log.
func (s *Store) Checkpoint() int {
	s.checkpoints = append(s.checkpoints, len(s.log))
	return len(s.checkpoints) - 1
}

// Commit drops the top savepoint, keeping every write made since it was
// pushed. The undo entries since that point are kept while an earlier
// savepoint further down the stack is still open, so that savepoint can
// still revert through them; committing the last savepoint discards the
// whole undo log.
func (s *Store) Commit() {
	n := len(s.checkpoints)
	if n == 0 {
		panic("memstore: Commit with no open checkpoint")
	}
	s.checkpoints = s.checkpoints[:n-1]
	if len(s.checkpoints) == 0 {
		s.log = s.log[:0]
		s.snapshotCurrentRoot()
	}
}

// Revert undoes every write made since the top savepoint and pops it.
func (s *Store) Revert() {
	n := len(s.checkpoints)
	if n == 0 {
		panic("memstore: Revert with no open checkpoint")
	}
	mark := s.checkpoints[n-1]
	s.checkpoints = s.checkpoints[:n-1]

	for i := len(s.log) - 1; i >= mark; i-- {
		c := s.log[i]
		switch c.kind {
		case changeAccount:
			if c.hadAcc {
				s.accounts[c.addr] = c.prevAcc
			} else {
				delete(s.accounts, c.addr)
			}
		case changeStorage:
			k := storageKey{c.addr, c.slot}
			if c.prevValue == (common.Hash{}) {
				delete(s.storage, k)
			} else {
				s.storage[k] = c.prevValue
			}
		}
	}
	s.log = s.log[:mark]
	if len(s.checkpoints) == 0 {
		s.snapshotCurrentRoot()
	}
}

// StateRoot computes a deterministic content hash over the current account
// and storage maps, including writes made under open savepoints. It is
// recomputed on demand rather than
// incrementally maintained — adequate for a dev-node-scale in-memory store
// and, crucially, independent of map iteration order because keys are
// sorted first.
func (s *Store) StateRoot() common.Hash {
	return computeRoot(s.accounts, s.storage)
}

// SetStateRoot jumps the working state to a previously observed root.
func (s *Store) SetStateRoot(root common.Hash) error {
	snap, ok := s.roots[root]
	if !ok {
		return fmt.Errorf("%w: %s", evmstate.ErrUnknownStateRoot, root)
	}
	s.accounts = cloneAccounts(snap.accounts)
	s.storage = cloneStorage(snap.storage)
	s.code = cloneCode(snap.code)
	s.log = s.log[:0]
	s.checkpoints = s.checkpoints[:0]
	return nil
}

// MakeSnapshot records the current committed state under its root hash
// without mutating the working set, and returns that root.
func (s *Store) MakeSnapshot() common.Hash {
	return s.snapshotCurrentRoot()
}

func (s *Store) snapshotCurrentRoot() common.Hash {
	root := s.StateRoot()
	if _, ok := s.roots[root]; !ok {
		s.roots[root] = rootSnapshot{
			accounts: cloneAccounts(s.accounts),
			storage:  cloneStorage(s.storage),
			code:     cloneCode(s.code),
		}
	}
	return root
}

func computeRoot(accounts map[common.Address]evmstate.Account, storage map[storageKey]common.Hash) common.Hash {
	addrs := make([]common.Address, 0, len(accounts))
	for a := range accounts {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i].Bytes(), addrs[j].Bytes()) < 0 })

	var buf []byte
	for _, addr := range addrs {
		acc := accounts[addr]
		buf = append(buf, addr.Bytes()...)
		if acc.Balance != nil {
			buf = append(buf, acc.Balance.Bytes()...)
		}
		buf = append(buf, byte(acc.Nonce), byte(acc.Nonce>>8), byte(acc.Nonce>>16), byte(acc.Nonce>>24))
		buf = append(buf, acc.CodeHash.Bytes()...)

		keys := make([]common.Hash, 0)
		for k := range storage {
			if k.addr == addr {
				keys = append(keys, k.slot)
			}
		}
		sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i].Bytes(), keys[j].Bytes()) < 0 })
		for _, k := range keys {
			v := storage[storageKey{addr, k}]
			if v == (common.Hash{}) {
				continue
			}
			buf = append(buf, k.Bytes()...)
			buf = append(buf, v.Bytes()...)
		}
	}
	return crypto.Keccak256Hash(buf)
}

func cloneAccounts(m map[common.Address]evmstate.Account) map[common.Address]evmstate.Account {
	out := make(map[common.Address]evmstate.Account, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStorage(m map[storageKey]common.Hash) map[storageKey]common.Hash {
	out := make(map[storageKey]common.Hash, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneCode(m map[common.Hash][]byte) map[common.Hash][]byte {
	out := make(map[common.Hash][]byte, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

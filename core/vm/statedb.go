// Package vm is the interpreted execution backend: go-ethereum's own
// core/vm.EVM driven by a StateDB shim over this module's core/state.Store,
// replacing the teacher's empty goExecutor stub (dispatcher_goevm.go) with a
// real implementation.
package vm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	evmstate "github.com/clydemeng/evmadapter/core/state"
)

// StateDB adapts a core/state.Store to the interface go-ethereum's
// core/vm.EVM needs to run against, the way the teacher's
// revm_bridge/statedb.go adapts the same store shape to the native FFI
// boundary. Access lists, refunds, transient storage and logs live here
// because they are message-scoped bookkeeping the Store itself has no
// concept of; snapshots delegate straight to the Store's own checkpoint
// stack since call frames already obey LIFO discipline.
type StateDB struct {
	store evmstate.Store

	refund uint64

	accessedAddrs map[common.Address]bool
	accessedSlots map[accessListKey]bool

	transient map[accessListKey]common.Hash

	destructed map[common.Address]bool

	logs      []*types.Log
	codeCache map[common.Address][]byte
}

type accessListKey struct {
	addr common.Address
	slot common.Hash
}

// NewStateDB wraps store for a single message execution. Warm addresses
// (e.g. the sender, the recipient, and the coinbase, per EIP-2929) should be
// pre-marked with AddAddressToAccessList before the EVM runs.
func NewStateDB(store evmstate.Store) *StateDB {
	return &StateDB{
		store:         store,
		accessedAddrs: make(map[common.Address]bool),
		accessedSlots: make(map[accessListKey]bool),
		transient:     make(map[accessListKey]common.Hash),
		destructed:    make(map[common.Address]bool),
		codeCache:     make(map[common.Address][]byte),
	}
}

func (s *StateDB) CreateAccount(addr common.Address) {
	if _, ok := s.store.GetAccount(addr); !ok {
		s.store.PutAccount(addr, evmstate.Account{Balance: new(uint256.Int)})
	}
}

// CreateContract collapses to CreateAccount: upstream go-ethereum
// distinguishes the two only in bookkeeping it uses for EIP-6780, and the
// Store has no separate notion of "created this message", so both perform
// the same account-presence check.
func (s *StateDB) CreateContract(addr common.Address) { s.CreateAccount(addr) }

func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) {
	acc, _ := s.store.GetAccount(addr)
	if acc.Balance == nil {
		acc.Balance = new(uint256.Int)
	}
	acc.Balance = new(uint256.Int).Sub(acc.Balance, amount)
	s.store.PutAccount(addr, acc)
}

func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) {
	acc, _ := s.store.GetAccount(addr)
	if acc.Balance == nil {
		acc.Balance = new(uint256.Int)
	}
	acc.Balance = new(uint256.Int).Add(acc.Balance, amount)
	s.store.PutAccount(addr, acc)
}

func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	acc, ok := s.store.GetAccount(addr)
	if !ok || acc.Balance == nil {
		return new(uint256.Int)
	}
	return acc.Balance.Clone()
}

func (s *StateDB) GetNonce(addr common.Address) uint64 {
	acc, _ := s.store.GetAccount(addr)
	return acc.Nonce
}

func (s *StateDB) SetNonce(addr common.Address, nonce uint64) {
	acc, _ := s.store.GetAccount(addr)
	acc.Nonce = nonce
	s.store.PutAccount(addr, acc)
}

func (s *StateDB) GetCodeHash(addr common.Address) common.Hash {
	acc, _ := s.store.GetAccount(addr)
	return acc.CodeHash
}

// GetCode caches each address's bytecode for the lifetime of the message:
// CALL/EXTCODESIZE/EXTCODECOPY routinely re-read the same target address
// many times within one execution, and the Store itself has no notion of a
// message-scoped cache.
func (s *StateDB) GetCode(addr common.Address) []byte {
	if code, ok := s.codeCache[addr]; ok {
		return code
	}
	acc, ok := s.store.GetAccount(addr)
	if !ok {
		s.codeCache[addr] = nil
		return nil
	}
	code := s.store.GetCode(acc.CodeHash)
	s.codeCache[addr] = code
	return code
}

func (s *StateDB) SetCode(addr common.Address, code []byte) {
	acc, _ := s.store.GetAccount(addr)
	acc.CodeHash = s.store.PutCode(code)
	s.store.PutAccount(addr, acc)
	s.codeCache[addr] = code
}

func (s *StateDB) GetCodeSize(addr common.Address) int { return len(s.GetCode(addr)) }

func (s *StateDB) AddRefund(gas uint64) { s.refund += gas }

func (s *StateDB) SubRefund(gas uint64) {
	if gas > s.refund {
		s.refund = 0
		return
	}
	s.refund -= gas
}

func (s *StateDB) GetRefund() uint64 { return s.refund }

func (s *StateDB) GetCommittedState(addr common.Address, key common.Hash) common.Hash {
	return s.store.GetStorage(addr, key)
}

func (s *StateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	return s.store.GetStorage(addr, key)
}

func (s *StateDB) SetState(addr common.Address, key, value common.Hash) {
	s.store.PutStorage(addr, key, value)
}

func (s *StateDB) GetStorageRoot(addr common.Address) common.Hash {
	acc, _ := s.store.GetAccount(addr)
	return acc.StorageRoot
}

func (s *StateDB) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	return s.transient[accessListKey{addr, key}]
}

func (s *StateDB) SetTransientState(addr common.Address, key, value common.Hash) {
	s.transient[accessListKey{addr, key}] = value
}

func (s *StateDB) SelfDestruct(addr common.Address) {
	s.destructed[addr] = true
	acc, ok := s.store.GetAccount(addr)
	if ok {
		acc.Balance = new(uint256.Int)
		s.store.PutAccount(addr, acc)
	}
}

func (s *StateDB) HasSelfDestructed(addr common.Address) bool { return s.destructed[addr] }

// Selfdestruct6780 implements EIP-6780's narrower rule (only destructs if
// the contract was created earlier in the same message); the adapter does
// not currently distinguish same-message creation, so it degrades to the
// unconditional SelfDestruct, which is the conservative, state-clearing
// choice.
func (s *StateDB) Selfdestruct6780(addr common.Address) { s.SelfDestruct(addr) }

func (s *StateDB) Exist(addr common.Address) bool {
	_, ok := s.store.GetAccount(addr)
	return ok
}

func (s *StateDB) Empty(addr common.Address) bool { return s.store.AccountIsEmpty(addr) }

func (s *StateDB) AddressInAccessList(addr common.Address) bool { return s.accessedAddrs[addr] }

func (s *StateDB) SlotInAccessList(addr common.Address, slot common.Hash) (addressOk, slotOk bool) {
	return s.accessedAddrs[addr], s.accessedSlots[accessListKey{addr, slot}]
}

func (s *StateDB) AddAddressToAccessList(addr common.Address) { s.accessedAddrs[addr] = true }

func (s *StateDB) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	s.accessedAddrs[addr] = true
	s.accessedSlots[accessListKey{addr, slot}] = true
}

// Prepare seeds the access list for a new message per EIP-2930/3651: the
// sender, the destination (if any), the coinbase (EIP-3651 warms it
// unconditionally from Shanghai on), the precompiles, and the transaction's
// declared access list.
func (s *StateDB) Prepare(rules params.Rules, sender, coinbase common.Address, dest *common.Address, precompiles []common.Address, txAccesses types.AccessList) {
	s.accessedAddrs = make(map[common.Address]bool)
	s.accessedSlots = make(map[accessListKey]bool)

	s.AddAddressToAccessList(sender)
	if dest != nil {
		s.AddAddressToAccessList(*dest)
	}
	if rules.IsBerlin {
		for _, addr := range precompiles {
			s.AddAddressToAccessList(addr)
		}
	}
	if rules.IsShanghai {
		s.AddAddressToAccessList(coinbase)
	}
	for _, tuple := range txAccesses {
		s.AddAddressToAccessList(tuple.Address)
		for _, key := range tuple.StorageKeys {
			s.AddSlotToAccessList(tuple.Address, key)
		}
	}
}

func (s *StateDB) Snapshot() int { return s.store.Checkpoint() }

func (s *StateDB) RevertToSnapshot(int) { s.store.Revert() }

func (s *StateDB) AddLog(l *types.Log) { s.logs = append(s.logs, l) }

func (s *StateDB) Logs() []*types.Log { return s.logs }

// AddPreimage is a no-op: this adapter never serves the debug_preimage
// family of RPCs the Store would need to back it.
func (s *StateDB) AddPreimage(common.Hash, []byte) {}

// Package forkstore is the fork-aware core/state.Store: a local overlay
// (core/memstore) backed by read-through proxying to a pinned remote block
// via core/forkclient, with an LRU cache so repeated reads of the same
// account/slot don't re-hit the network. Grounded on spec.md §4.3's
// "fork-aware store also requires (root, blockNumber) to restore" contract.
package forkstore

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"

	"github.com/clydemeng/evmadapter/core/forkclient"
	evmmetrics "github.com/clydemeng/evmadapter/core/metrics"
	"github.com/clydemeng/evmadapter/core/memstore"
	evmstate "github.com/clydemeng/evmadapter/core/state"
)

type storageKey struct {
	addr common.Address
	slot common.Hash
}

// Store overlays a memstore.Store with read-through proxying to a remote
// fork block.
type Store struct {
	*memstore.Store

	client      *forkclient.Client
	blockNumber uint64

	accountCache *lru.Cache[common.Address, evmstate.Account]
	storageCache *lru.Cache[storageKey, common.Hash]
	codeCache    *lru.Cache[common.Address, []byte]

	metrics *evmmetrics.Counters
}

// SetMetrics attaches the counters GetAccount/GetStorage should tally
// remote-fallthrough misses into. Nil is a valid value and disables the
// tally.
func (s *Store) SetMetrics(m *evmmetrics.Counters) { s.metrics = m }

const cacheSize = 4096

// New wraps client, pinned at blockNumber, with a fresh local overlay.
func New(client *forkclient.Client, blockNumber uint64) *Store {
	accCache, _ := lru.New[common.Address, evmstate.Account](cacheSize)
	storCache, _ := lru.New[storageKey, common.Hash](cacheSize)
	codeCache, _ := lru.New[common.Address, []byte](cacheSize)
	return &Store{
		Store:        memstore.New(),
		client:       client,
		blockNumber:  blockNumber,
		accountCache: accCache,
		storageCache: storCache,
		codeCache:    codeCache,
	}
}

// GetAccount first consults the local overlay; a miss falls through to the
// remote node and populates the LRU cache so subsequent reads stay local.
func (s *Store) GetAccount(addr common.Address) (evmstate.Account, bool) {
	if acc, ok := s.Store.GetAccount(addr); ok {
		return acc, true
	}
	if acc, ok := s.accountCache.Get(addr); ok {
		return acc, true
	}
	if s.metrics != nil {
		s.metrics.IncAccountCacheMiss()
	}
	if s.client == nil {
		return evmstate.Account{}, false
	}
	ctx := context.Background()
	balance, err := s.client.GetBalance(ctx, addr)
	if err != nil {
		log.Warn("forkstore: remote balance read failed", "addr", addr, "error", err)
		return evmstate.Account{}, false
	}
	nonce, err := s.client.GetTransactionCount(ctx, addr)
	if err != nil {
		log.Warn("forkstore: remote nonce read failed", "addr", addr, "error", err)
		return evmstate.Account{}, false
	}
	bal, _ := uint256.FromBig(balance)
	acc := evmstate.Account{Balance: bal, Nonce: nonce}
	s.accountCache.Add(addr, acc)
	return acc, true
}

// GetStorage mirrors GetAccount's read-through behavior for a single slot.
func (s *Store) GetStorage(addr common.Address, key common.Hash) common.Hash {
	if v := s.Store.GetStorage(addr, key); v != (common.Hash{}) {
		return v
	}
	k := storageKey{addr, key}
	if v, ok := s.storageCache.Get(k); ok {
		return v
	}
	if s.metrics != nil {
		s.metrics.IncStorageCacheMiss()
	}
	if s.client == nil {
		return common.Hash{}
	}
	v, err := s.client.GetStorageAt(context.Background(), addr, key)
	if err != nil {
		log.Warn("forkstore: remote storage read failed", "addr", addr, "slot", key, "error", err)
		return common.Hash{}
	}
	s.storageCache.Add(k, v)
	return v
}

// GetCode reads bytecode from the local overlay only; unlike GetAccount it
// does not fall through to the remote node. Remote bytecode reaches the
// overlay through FetchRemoteCode, whose cache is keyed by address rather
// than codeHash because the remote eth_getCode RPC is itself address-keyed;
// local puts still index by codeHash via the embedded memstore.
func (s *Store) GetCode(codeHash common.Hash) []byte {
	return s.Store.GetCode(codeHash)
}

// FetchRemoteCode populates the local store with addr's remote bytecode, for
// callers that only have an address (not yet a codeHash) in hand — e.g. the
// adapter warming up a contract call target.
func (s *Store) FetchRemoteCode(addr common.Address) ([]byte, error) {
	if code, ok := s.codeCache.Get(addr); ok {
		return code, nil
	}
	if s.client == nil {
		return nil, nil
	}
	code, err := s.client.GetCode(context.Background(), addr)
	if err != nil {
		return nil, err
	}
	s.codeCache.Add(addr, code)
	if len(code) > 0 {
		s.Store.PutCode(code)
	}
	return code, nil
}

// SetBlockContext jumps the working state to block, optionally overriding
// its declared state root with irregularState, and re-pins the remote read
// block number — the (root, blockNumber) pair spec.md §4.3 requires for a
// fork-aware restore. All caches are cleared because a different
// blockNumber invalidates every previously cached remote read.
func (s *Store) SetBlockContext(block evmstate.BlockContext, irregularState *common.Hash) error {
	root := block.StateRoot
	if irregularState != nil {
		root = *irregularState
	}
	if root != (common.Hash{}) {
		if err := s.Store.SetStateRoot(root); err != nil {
			return err
		}
	}
	s.blockNumber = block.Number
	s.accountCache.Purge()
	s.storageCache.Purge()
	s.codeCache.Purge()
	return nil
}

// BlockNumber reports the fork block number reads are currently pinned to.
func (s *Store) BlockNumber() uint64 { return s.blockNumber }

// Prefetch warms the account and storage caches for every key in a single
// JSON-RPC batch round trip, the read-through store's counterpart to the
// teacher's revm_bridge batch-prefetch optimization (there: priming REVM's
// Rust-side cache before a block's transactions run; here: priming the LRU
// caches GetAccount/GetStorage fall through to).
func (s *Store) Prefetch(ctx context.Context, keys []forkclient.PrefetchRequest) error {
	if s.client == nil || len(keys) == 0 {
		return nil
	}
	results, err := s.client.BatchPrefetch(ctx, keys)
	if err != nil {
		return err
	}
	for i, k := range keys {
		bal, _ := uint256.FromBig(results[i].Balance)
		s.accountCache.Add(k.Address, evmstate.Account{Balance: bal, Nonce: results[i].Nonce})
		if results[i].HasSlot {
			s.storageCache.Add(storageKey{k.Address, k.Slot}, results[i].Storage)
		}
	}
	return nil
}

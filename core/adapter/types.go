// Package adapter implements the VMAdapter contract: the polymorphic
// execution surface spec.md §4.4 describes, backed by either the
// interpreted backend (core/vm) or the native backend (nativevm), and
// wiring the state journal (core/state) and trace bus (core/tracebus)
// around whichever one is selected.
package adapter

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/clydemeng/evmadapter/core/exitcode"
	"github.com/clydemeng/evmadapter/core/forks"
	evmstate "github.com/clydemeng/evmadapter/core/state"
)

// TxType mirrors the three transaction envelope shapes spec.md §3 names.
type TxType uint8

const (
	TxLegacy TxType = iota
	TxAccessList
	TxDynamicFee
)

// AccessTuple is one entry of an EIP-2930 access list.
type AccessTuple struct {
	Address     common.Address
	StorageKeys []common.Hash
}

// Transaction is the typed transaction envelope the adapter executes,
// shaped to carry every field any of the three concrete types need; fields
// irrelevant to a given Type are left zero.
type Transaction struct {
	Type TxType

	From     common.Address
	To       *common.Address // nil denotes contract creation
	Nonce    uint64
	GasLimit uint64
	Value    *uint256.Int
	Data     []byte

	GasPrice   *uint256.Int // legacy / access-list
	GasFeeCap  *uint256.Int // dynamic-fee (EIP-1559)
	GasTipCap  *uint256.Int // dynamic-fee (EIP-1559)
	AccessList []AccessTuple
}

// EffectiveGasPrice returns the price the sender actually pays per unit of
// gas given the block's base fee, following EIP-1559's min(feeCap,
// tipCap+baseFee) rule for dynamic-fee transactions.
func (tx *Transaction) EffectiveGasPrice(baseFee *uint256.Int) *uint256.Int {
	if tx.Type != TxDynamicFee {
		if tx.GasPrice == nil {
			return new(uint256.Int)
		}
		return tx.GasPrice.Clone()
	}
	if baseFee == nil {
		return tx.GasFeeCap.Clone()
	}
	tip := tx.GasTipCap.Clone()
	price := tip.Add(tip, baseFee)
	if price.Gt(tx.GasFeeCap) {
		return tx.GasFeeCap.Clone()
	}
	return price
}

// Receipt is the bit-compatible receipt shape spec.md §6 requires,
// expressed directly in terms of go-ethereum's canonical encoding so that
// MarshalBinary reproduces the RLP of [status-or-stateRoot,
// cumulativeGasUsed, logsBloom, logs].
type Receipt = types.Receipt

// RunTxResult is spec.md §3's unified execution outcome.
type RunTxResult struct {
	Bloom          types.Bloom
	CreatedAddress *common.Address
	GasUsed        uint64
	ReturnValue    []byte
	Exit           exitcode.Exit
	Receipt        *Receipt
}

// BlockContext is an alias of core/state's block environment type so
// adapter callers don't need to import core/state directly for this common
// case.
type BlockContext = evmstate.BlockContext

// Reward is one entry of the addBlockRewards parameter list: a flat credit
// to an address's balance, applied via create-on-credit semantics.
type Reward struct {
	Address common.Address
	Amount  *uint256.Int
}

// ForkConfig carries the fields a forked adapter configuration must
// remember per spec.md §4.4: the remote network id and the pinned block
// height execution diverges from.
type ForkConfig struct {
	URL             string
	ForkNetworkID   uint64
	ForkBlockNumber uint64
}

// GenesisAccount seeds an account at adapter construction time.
type GenesisAccount struct {
	Address common.Address
	Balance *uint256.Int
	Nonce   uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// Config is the adapter's construction-time configuration, per spec.md
// §4.4's "Configuration carries: chainId, networkId, hardfork, genesis
// accounts, allowUnlimitedContractSize, optional fork configuration."
type Config struct {
	ChainID   uint64
	NetworkID uint64
	Hardfork  forks.Hardfork

	GenesisAccounts []GenesisAccount

	AllowUnlimitedContractSize bool

	Fork *ForkConfig

	// Backend names the execution backend: "interpreted" (default) or
	// "native". New does not read it; the caller constructs the matching
	// Backend value and passes it to New (see cmd/devnode).
	Backend string
}

//go:build nativevm
// +build nativevm

package nativevm

/*
#cgo CFLAGS: -I${SRCDIR}/native_ffi
#include <stdint.h>
#include <string.h>

typedef struct {
	uint8_t bytes[20];
} FFIAddress;

typedef struct {
	uint8_t bytes[32];
} FFIHash;

typedef struct {
	uint8_t bytes[32];
} FFIU256;

typedef struct {
	FFIU256 balance;
	uint64_t nonce;
	FFIHash code_hash;
} FFIAccountInfo;

typedef struct {
	FFIAddress from;
	FFIAddress to;
	uint8_t has_to;
	FFIU256 value;
	uint64_t nonce;
	uint64_t gas_limit;
	FFIU256 gas_price;
	const uint8_t *data;
	uint32_t data_len;
	uint8_t skip_nonce;
	uint8_t skip_balance;
} FFIMessage;

typedef struct {
	uint8_t kind; // 0 success, 1 revert, 2 halt
	uint8_t halt_code;
	uint64_t gas_used;
	FFIAddress created_address;
	uint8_t has_created_address;
	const uint8_t *return_data;
	uint32_t return_data_len;
} FFIResult;

// native_run_message is implemented by the externally linked native EVM
// library. It calls back into native_state_basic/native_state_storage
// (exported below) against the supplied handle to read state; no callback
// for code reads or for writing state back is exported. spec_id tells the library which
// hardfork rule set to execute under (see spec.go). difficulty is the
// pre-Merge difficulty value, already clamped to 2^32-1 by the caller.
extern int native_run_message(uintptr_t handle, uint64_t chain_id, uint8_t spec_id, uint64_t block_number,
	uint64_t block_time, uint64_t block_gas_limit, FFIU256 base_fee, FFIU256 difficulty,
	FFIMessage msg, FFIResult *out);
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/clydemeng/evmadapter/core/adapter"
	"github.com/clydemeng/evmadapter/core/exitcode"
	evmstate "github.com/clydemeng/evmadapter/core/state"
)

// Backend drives the externally linked native EVM through the cgo boundary
// declared above, the generalized counterpart to the teacher's REVM bridge.
type Backend struct{}

// NewBackend constructs the native backend. Build with -tags nativevm and
// link against the native_ffi static library for this to produce a working
// binary; without the tag, stub.go supplies a backend that refuses to run.
func NewBackend() *Backend { return &Backend{} }

func (b *Backend) Engine() string { return "native" }

// SupportsForking is false: the native library has no notion of proxying
// reads to a remote RPC node, matching spec.md's explicitly called-out
// native-backend limitation.
func (b *Backend) SupportsForking() bool { return false }

func (b *Backend) IsWarmedAddress(common.Address) bool { return true }

func (b *Backend) Execute(req adapter.ExecutionRequest) (*adapter.RunTxResult, error) {
	handle := registerStore(req.Store)
	defer releaseStore(handle)

	msg := C.FFIMessage{
		from:      toFFIAddress(req.Tx.From),
		value:     toFFIU256(req.Tx.Value),
		nonce:     C.uint64_t(req.Tx.Nonce),
		gas_limit: C.uint64_t(req.Tx.GasLimit),
		gas_price: toFFIU256(req.Tx.EffectiveGasPrice(req.Block.BaseFee)),
	}
	if req.Tx.To != nil {
		msg.to = toFFIAddress(*req.Tx.To)
		msg.has_to = 1
	}
	if len(req.Tx.Data) > 0 {
		msg.data = (*C.uint8_t)(unsafe.Pointer(&req.Tx.Data[0]))
		msg.data_len = C.uint32_t(len(req.Tx.Data))
	}
	if req.Skips.Nonce {
		msg.skip_nonce = 1
	}
	if req.Skips.Balance {
		msg.skip_balance = 1
	}

	var baseFee *uint256.Int
	if req.Block.BaseFee != nil {
		baseFee = req.Block.BaseFee
	} else {
		baseFee = new(uint256.Int)
	}
	difficulty := evmstate.ClampDifficulty(req.Block.Difficulty)

	req.Bus.BeforeMessage(toBusMessage(req.Tx))

	var out C.FFIResult
	rc := C.native_run_message(C.uintptr_t(handle), C.uint64_t(req.Chain.ChainID), C.uint8_t(specID(req.Chain.Hardfork)),
		C.uint64_t(req.Block.Number), C.uint64_t(req.Block.Timestamp), C.uint64_t(req.Block.GasLimit),
		toFFIU256(baseFee), toFFIU256(difficulty), msg, &out)
	if rc != 0 {
		return nil, fmt.Errorf("native backend: native_run_message failed with code %d", int(rc))
	}

	var retValue []byte
	if out.return_data != nil && out.return_data_len > 0 {
		retValue = C.GoBytes(unsafe.Pointer(out.return_data), C.int(out.return_data_len))
	}
	var createdAddress *common.Address
	if out.has_created_address != 0 {
		addr := fromFFIAddress(out.created_address)
		createdAddress = &addr
	}

	exit := toExit(out, retValue)

	req.Bus.AfterMessage(toBusResult(exit, uint64(out.gas_used)))

	return &adapter.RunTxResult{
		CreatedAddress: createdAddress,
		GasUsed:        uint64(out.gas_used),
		ReturnValue:    retValue,
		Exit:           exit,
	}, nil
}

func toExit(out C.FFIResult, retValue []byte) exitcode.Exit {
	switch out.kind {
	case 0:
		reason := exitcode.DeriveSuccessReason(false, out.has_created_address != 0, retValue)
		return exitcode.Success(reason)
	case 1:
		return exitcode.Revert(retValue)
	default:
		return exitcode.Halt(exitcode.HaltCode(out.halt_code))
	}
}

func toFFIAddress(addr common.Address) C.FFIAddress {
	var out C.FFIAddress
	C.memcpy(unsafe.Pointer(&out.bytes[0]), unsafe.Pointer(&addr[0]), 20)
	return out
}

func fromFFIAddress(addr C.FFIAddress) common.Address {
	var out common.Address
	C.memcpy(unsafe.Pointer(&out[0]), unsafe.Pointer(&addr.bytes[0]), 20)
	return out
}

func toFFIU256(v *uint256.Int) C.FFIU256 {
	var out C.FFIU256
	if v == nil {
		return out
	}
	b := v.Bytes32()
	C.memcpy(unsafe.Pointer(&out.bytes[0]), unsafe.Pointer(&b[0]), 32)
	return out
}

// native_state_basic and native_state_storage are the Go-side callbacks
// native_run_message invokes to read state through the handle it was given,
// generalizing the teacher's re_state_basic/re_state_storage exports from
// "read a *state.StateDB field" to "read a core/state.Store field."

//export native_state_basic
func native_state_basic(handle C.uintptr_t, addr C.FFIAddress, out *C.FFIAccountInfo) C.int {
	store, ok := lookupStore(uintptr(handle))
	if !ok || out == nil {
		return -1
	}
	acc, _ := store.GetAccount(fromFFIAddress(addr))
	balance := acc.Balance
	if balance == nil {
		balance = new(uint256.Int)
	}
	out.balance = toFFIU256(balance)
	out.nonce = C.uint64_t(acc.Nonce)
	out.code_hash = toFFIHash(acc.CodeHash)
	return 0
}

//export native_state_storage
func native_state_storage(handle C.uintptr_t, addr C.FFIAddress, slot C.FFIHash, out *C.FFIU256) C.int {
	store, ok := lookupStore(uintptr(handle))
	if !ok || out == nil {
		return -1
	}
	val := store.GetStorage(fromFFIAddress(addr), fromFFIHash(slot))
	*out = toFFIU256(new(uint256.Int).SetBytes(val.Bytes()))
	return 0
}

func toFFIHash(h common.Hash) C.FFIHash {
	var out C.FFIHash
	C.memcpy(unsafe.Pointer(&out.bytes[0]), unsafe.Pointer(&h[0]), 32)
	return out
}

func fromFFIHash(h C.FFIHash) common.Hash {
	var out common.Hash
	C.memcpy(unsafe.Pointer(&out[0]), unsafe.Pointer(&h.bytes[0]), 32)
	return out
}

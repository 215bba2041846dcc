// Package nativevm is the native execution backend: a cgo bridge to an
// externally linked, Rust-style native EVM library, mirroring the teacher's
// revm_bridge package but generalized from the teacher's specific FFI
// surface (statedb_types.rs / STATE_DB_FFI.md) to this adapter's own
// core/state.Store contract. The cgo backend (backend.go) is built only
// when the nativevm build tag is set; stub.go supplies a linkable fallback
// otherwise.
package nativevm

import (
	"sync"
	"sync/atomic"

	evmstate "github.com/clydemeng/evmadapter/core/state"
)

// handleMap registers active Store instances under a stable handle that can
// be passed across the FFI boundary and back, the same role the teacher's
// handleMap plays for *state.StateDB.
var handleMap sync.Map // map[uintptr]evmstate.Store

var handleSeq uintptr

// registerStore returns a fresh, non-zero handle for store. The zero handle
// is reserved for "null" so the native side can detect a missing store
// without a separate out-of-band flag.
func registerStore(store evmstate.Store) uintptr {
	if store == nil {
		return 0
	}
	h := atomic.AddUintptr(&handleSeq, 1)
	handleMap.Store(h, store)
	return h
}

// releaseStore removes a previously registered handle. Any FFI callback
// against a released handle subsequently fails lookup and returns a
// null-pointer-style error code to the native caller.
func releaseStore(h uintptr) {
	handleMap.Delete(h)
}

func lookupStore(h uintptr) (evmstate.Store, bool) {
	v, ok := handleMap.Load(h)
	if !ok {
		return nil, false
	}
	return v.(evmstate.Store), true
}

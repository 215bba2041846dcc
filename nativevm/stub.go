//go:build !nativevm
// +build !nativevm

package nativevm

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clydemeng/evmadapter/core/adapter"
)

// errNotBuilt is returned by every Execute call when the binary was built
// without the nativevm tag, i.e. without the native EVM library linked in.
var errNotBuilt = errors.New("nativevm: binary was built without the nativevm tag; native backend is unavailable")

// Backend is a stand-in that keeps this package importable (and the
// "native" Config.Backend option selectable at the type level) in ordinary,
// cgo-free builds, mirroring the teacher's goExecutor stub for the !revm
// build.
type Backend struct{}

// NewBackend constructs the unavailable-native-backend stub.
func NewBackend() *Backend { return &Backend{} }

func (b *Backend) Engine() string { return "native (unavailable)" }

func (b *Backend) SupportsForking() bool { return false }

func (b *Backend) IsWarmedAddress(common.Address) bool { return true }

func (b *Backend) Execute(adapter.ExecutionRequest) (*adapter.RunTxResult, error) {
	return nil, errNotBuilt
}

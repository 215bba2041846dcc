package vm

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/clydemeng/evmadapter/core/adapter"
	"github.com/clydemeng/evmadapter/core/forks"
	"github.com/clydemeng/evmadapter/core/memstore"
	evmmetrics "github.com/clydemeng/evmadapter/core/metrics"
	evmstate "github.com/clydemeng/evmadapter/core/state"
	"github.com/clydemeng/evmadapter/core/tracebus"
)

var (
	sender   = common.HexToAddress("0xaaaa000000000000000000000000000000aaaa")
	contract = common.HexToAddress("0xcccc000000000000000000000000000000cccc")
)

// trivialRuntimeCode is PUSH1 0x00 PUSH1 0x00 RETURN: three opcodes, none of
// which touch storage, just enough to exercise OnOpcode a handful of times.
var trivialRuntimeCode = []byte{0x60, 0x00, 0x60, 0x00, 0xf3}

func newExecutionRequest(t *testing.T, bus *tracebus.Bus) adapter.ExecutionRequest {
	t.Helper()
	store := memstore.New()
	store.PutAccount(sender, evmstate.Account{Balance: uint256.NewInt(1_000_000)})
	codeHash := store.PutCode(trivialRuntimeCode)
	store.PutAccount(contract, evmstate.Account{Balance: new(uint256.Int), CodeHash: codeHash})

	to := contract
	return adapter.ExecutionRequest{
		Tx: &adapter.Transaction{
			Type:     adapter.TxLegacy,
			From:     sender,
			To:       &to,
			Value:    uint256.NewInt(0),
			GasLimit: 100_000,
			GasPrice: uint256.NewInt(1),
		},
		Block: adapter.BlockContext{Number: 1, GasLimit: 8_000_000},
		Chain: adapter.RuntimeConfig{ChainID: 1337, NetworkID: 1337, Hardfork: forks.London},
		Store: store,
		Bus:   bus,
		Skips: adapter.Skips{},
	}
}

func TestExecuteDispatchesStepEvents(t *testing.T) {
	structural := tracebus.NewStructuralTracer()
	bus := tracebus.New(structural)
	counters := &evmmetrics.Counters{}
	bus.SetMetrics(counters)

	backend := NewBackend()
	req := newExecutionRequest(t, bus)

	_, err := backend.Execute(req)
	require.NoError(t, err)

	trace := structural.GetLastTopLevelMessageTrace()
	require.NotNil(t, trace)
	require.NotEmpty(t, trace.Steps, "interpreted backend must dispatch per-opcode Step events")

	snap := counters.Snapshot()
	require.Greater(t, snap.StepsDispatched, int64(0))

	first := trace.Steps[0]
	require.Equal(t, contract, first.ContractAddress)
	require.NotEmpty(t, first.Opcode)
}

package memstore

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	evmstate "github.com/clydemeng/evmadapter/core/state"
	"github.com/holiman/uint256"
)

func TestCheckpointRevertRestoresRoot(t *testing.T) {
	s := New()
	root := s.StateRoot()

	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	s.Checkpoint()
	s.PutAccount(addr, evmstate.Account{Balance: uint256.NewInt(100)})
	if s.StateRoot() == root {
		t.Fatalf("expected root to change after write")
	}
	s.Revert()

	if got := s.StateRoot(); got != root {
		t.Fatalf("root not restored after revert: got %s want %s", got, root)
	}
	if _, ok := s.GetAccount(addr); ok {
		t.Fatalf("account should not exist after revert")
	}
}

func TestCommitKeepsWrites(t *testing.T) {
	s := New()
	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")

	s.Checkpoint()
	s.PutAccount(addr, evmstate.Account{Balance: uint256.NewInt(7)})
	s.Commit()

	acc, ok := s.GetAccount(addr)
	if !ok || acc.Balance.Uint64() != 7 {
		t.Fatalf("expected committed account to persist, got %+v ok=%v", acc, ok)
	}
}

func TestStateRootOrderIndependence(t *testing.T) {
	a := common.HexToAddress("0x1111111111111111111111111111111111111111")
	b := common.HexToAddress("0x2222222222222222222222222222222222222222")

	s1 := New()
	s1.Checkpoint()
	s1.PutAccount(a, evmstate.Account{Balance: uint256.NewInt(1)})
	s1.PutAccount(b, evmstate.Account{Balance: uint256.NewInt(2)})
	s1.Commit()

	s2 := New()
	s2.Checkpoint()
	s2.PutAccount(b, evmstate.Account{Balance: uint256.NewInt(2)})
	s2.PutAccount(a, evmstate.Account{Balance: uint256.NewInt(1)})
	s2.Commit()

	if s1.StateRoot() != s2.StateRoot() {
		t.Fatalf("state root depends on insertion order")
	}
}

func TestMakeSnapshotThenRestore(t *testing.T) {
	s := New()
	addr := common.HexToAddress("0x3333333333333333333333333333333333333333")

	snap := s.MakeSnapshot()

	s.Checkpoint()
	s.PutAccount(addr, evmstate.Account{Balance: uint256.NewInt(42)})
	s.Commit()

	if err := s.SetStateRoot(snap); err != nil {
		t.Fatalf("SetStateRoot: %v", err)
	}
	if _, ok := s.GetAccount(addr); ok {
		t.Fatalf("account should not exist after restoring pre-write snapshot")
	}
}

func TestSetStateRootUnknown(t *testing.T) {
	s := New()
	if err := s.SetStateRoot(common.HexToHash("0xdeadbeef")); err == nil {
		t.Fatalf("expected error for unknown root")
	}
}

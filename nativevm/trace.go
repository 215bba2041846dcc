package nativevm

import (
	"github.com/clydemeng/evmadapter/core/adapter"
	"github.com/clydemeng/evmadapter/core/exitcode"
	"github.com/clydemeng/evmadapter/core/tracebus"
)

// toBusMessage and toBusResult report the top-level call envelope and its
// settled outcome to the trace bus. The native backend has no visibility
// into individual opcode steps — those live entirely inside the linked
// library — so only before/after events are dispatched; the interpreted
// backend additionally dispatches per-opcode Step events (see
// core/vm/backend.go's stepHooks).
func toBusMessage(tx *adapter.Transaction) tracebus.Message {
	return tracebus.Message{
		Caller:   tx.From,
		To:       tx.To,
		Value:    tx.Value,
		Data:     tx.Data,
		GasLimit: tx.GasLimit,
	}
}

func toBusResult(exit exitcode.Exit, gasUsed uint64) tracebus.MessageResult {
	result := tracebus.MessageResult{
		GasUsed:     gasUsed,
		ReturnValue: exit.ReturnValue(),
	}
	switch exit.Kind() {
	case exitcode.KindSuccess:
		result.Reason = exit.SuccessReason().String()
	case exitcode.KindRevert:
		result.Reason = "revert"
	case exitcode.KindHalt:
		if code, ok := exit.HaltCode(); ok {
			result.HaltReason = code.String()
		}
	}
	return result
}

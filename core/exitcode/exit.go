// Package exitcode classifies the outcome of a single EVM message into the
// unified taxonomy the adapter returns to its callers, regardless of which
// backend (interpreted or native) produced it.
package exitcode

import "github.com/ethereum/go-ethereum/log"

// Kind distinguishes the three possible shapes an Exit can take.
type Kind uint8

const (
	KindSuccess Kind = iota
	KindRevert
	KindHalt
)

// SuccessReason further classifies a KindSuccess exit.
type SuccessReason uint8

const (
	ReasonStop SuccessReason = iota
	ReasonReturn
	ReasonSelfDestruct
)

func (r SuccessReason) String() string {
	switch r {
	case ReasonStop:
		return "stop"
	case ReasonReturn:
		return "return"
	case ReasonSelfDestruct:
		return "selfdestruct"
	default:
		return "unknown"
	}
}

// HaltCode enumerates the exceptional-halt reasons every backend-specific
// error must be mapped onto.
type HaltCode uint8

const (
	HaltOutOfGas HaltCode = iota
	HaltInvalidOpcode
	HaltStackUnderflow
	HaltStackOverflow
	HaltInvalidJump
	HaltWriteProtection
	HaltOutOfOffset
	HaltCallDepthExceeded
	HaltInsufficientBalance
	HaltContractSizeLimit
	HaltMaxInitCodeSizeExceeded
	HaltNonceOverflow
	HaltUnknown
)

func (c HaltCode) String() string {
	switch c {
	case HaltOutOfGas:
		return "OutOfGas"
	case HaltInvalidOpcode:
		return "InvalidOpcode"
	case HaltStackUnderflow:
		return "StackUnderflow"
	case HaltStackOverflow:
		return "StackOverflow"
	case HaltInvalidJump:
		return "InvalidJump"
	case HaltWriteProtection:
		return "WriteProtection"
	case HaltOutOfOffset:
		return "OutOfOffset"
	case HaltCallDepthExceeded:
		return "CallDepthExceeded"
	case HaltInsufficientBalance:
		return "InsufficientBalance"
	case HaltContractSizeLimit:
		return "ContractSizeLimit"
	case HaltMaxInitCodeSizeExceeded:
		return "MaxInitCodeSizeExceeded"
	case HaltNonceOverflow:
		return "NonceOverflow"
	default:
		return "Unknown"
	}
}

// Exit is the tagged union returned alongside every RunTxResult.
type Exit struct {
	kind     Kind
	reason   SuccessReason
	halt     HaltCode
	retValue []byte
}

// Success constructs a successful exit with the given reason.
func Success(reason SuccessReason) Exit {
	return Exit{kind: KindSuccess, reason: reason}
}

// Revert constructs a revert exit carrying the user-meaningful return value.
func Revert(returnValue []byte) Exit {
	return Exit{kind: KindRevert, retValue: returnValue}
}

// Halt constructs an exceptional-halt exit. Per spec, halts never carry a
// return value.
func Halt(code HaltCode) Exit {
	return Exit{kind: KindHalt, halt: code}
}

// Kind reports which of the three shapes this exit is.
func (e Exit) Kind() Kind { return e.kind }

// IsError reports whether this exit represents a non-successful outcome.
func (e Exit) IsError() bool { return e.kind != KindSuccess }

// SuccessReason returns the success reason; only meaningful when Kind() ==
// KindSuccess.
func (e Exit) SuccessReason() SuccessReason { return e.reason }

// HaltCode returns the halt code and true when Kind() == KindHalt.
func (e Exit) HaltCode() (HaltCode, bool) {
	if e.kind != KindHalt {
		return 0, false
	}
	return e.halt, true
}

// ReturnValue returns the revert return value. It is always empty for
// Success and Halt exits, per invariant.
func (e Exit) ReturnValue() []byte { return e.retValue }

// DeriveSuccessReason implements the selection rule from spec.md §4.1 for
// backends that do not directly report a success reason: self-destruct wins
// over a non-empty return value or created address, which in turn wins over
// a bare stop.
func DeriveSuccessReason(selfDestructed bool, createdAddress bool, returnValue []byte) SuccessReason {
	switch {
	case selfDestructed:
		return ReasonSelfDestruct
	case createdAddress || len(returnValue) > 0:
		return ReasonReturn
	default:
		return ReasonStop
	}
}

// haltMapping is the total mapping from backend-specific error strings to a
// HaltCode. Each concrete backend owns its own table (see core/vm and
// nativevm) and calls FromBackendError with it; keeping the table here would
// couple this package to both backends' error types.
type haltMapping map[string]HaltCode

// FromBackendError maps a backend error string onto a HaltCode using the
// supplied total mapping, producing Halt(Unknown) — and logging — for any
// error the mapping does not recognize, so misclassification is never
// silent. Revert detection is handled separately by the caller because the
// wire protocol always distinguishes revert from halt up front.
func FromBackendError(backend string, errString string, mapping map[string]HaltCode) Exit {
	if code, ok := mapping[errString]; ok {
		return Halt(code)
	}
	log.Warn("unmapped backend halt error, classifying as Unknown", "backend", backend, "error", errString)
	return Halt(HaltUnknown)
}

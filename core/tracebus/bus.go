// Package tracebus dispatches before-message, step, and after-message
// events from the VM stepper to subscribed tracers, synchronously and in
// issuance order, isolating subscriber failures from the stepper itself.
package tracebus

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	evmmetrics "github.com/clydemeng/evmadapter/core/metrics"
)

// Message mirrors spec.md's TracingMessage: the call/create envelope that
// opens a new frame.
type Message struct {
	Caller   common.Address
	To       *common.Address // nil denotes contract creation
	Value    *uint256.Int
	Data     []byte
	GasLimit uint64
	Depth    int
	Code     []byte
}

// Step mirrors spec.md's TracingStep: one opcode's worth of execution detail.
type Step struct {
	Depth           int
	PC              uint64
	Opcode          string
	GasCost         uint64
	GasRefunded     uint64
	GasLeft         uint64
	Stack           []*uint256.Int
	Memory          []byte
	ContractAddress common.Address
}

// MessageResult mirrors spec.md's TracingMessageResult: the settled outcome
// of a frame, paired with the steps observed inside it.
type MessageResult struct {
	Reason          string
	GasUsed         uint64
	GasRefunded     uint64
	Logs            []Log
	ReturnValue     []byte
	CreatedAddress  *common.Address
	HaltReason      string
	Steps           []Step
}

// Log is a minimal event record; kept separate from core/types.Log so this
// package has no dependency on receipt encoding.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Tracer is the subscriber contract. Every method returning an error signals
// a failure that the bus must catch and forward to the stepper's
// continuation rather than letting it escape and corrupt the stepper.
type Tracer interface {
	BeforeMessage(msg Message) error
	Step(step Step) error
	AfterMessage(result MessageResult) error
}

// Bus fans a single stream of stepper events out to the always-on
// structural tracer and an optional debug tracer, preserving issuance order
// and isolating each subscriber's errors from the others and from the
// stepper.
type Bus struct {
	structural Tracer
	debug      Tracer
	depth      int
	metrics    *evmmetrics.Counters
}

// New constructs a Bus with the given structural tracer already subscribed.
// The structural tracer is never nil in a correctly wired adapter — callers
// pass a *StructuralTracer (see structural.go).
func New(structural Tracer) *Bus {
	if structural == nil {
		panic("tracebus: structural tracer must not be nil")
	}
	return &Bus{structural: structural}
}

// SetMetrics attaches the counters Step should tally dispatched steps into.
// Nil is a valid value and disables the tally.
func (b *Bus) SetMetrics(m *evmmetrics.Counters) { b.metrics = m }

// SetDebugTracer attaches the optional second subscriber, replacing any
// previously attached one.
func (b *Bus) SetDebugTracer(t Tracer) { b.debug = t }

// RemoveDebugTracer detaches the debug tracer, if any.
func (b *Bus) RemoveDebugTracer() { b.debug = nil }

// dispatch calls fn against both subscribers, recovering any panic and
// converting it to an error so that a misbehaving tracer can never crash the
// VM stepper. Both subscribers always run, even if one fails, so that
// before/after bracketing invariants hold for the one that didn't.
func (b *Bus) dispatch(fn func(Tracer) error) error {
	var firstErr error
	if err := b.safeCall(b.structural, fn); err != nil {
		firstErr = fmt.Errorf("structural tracer: %w", err)
	}
	if b.debug != nil {
		if err := b.safeCall(b.debug, fn); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("debug tracer: %w", err)
		}
	}
	return firstErr
}

func (b *Bus) safeCall(t Tracer, fn func(Tracer) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("tracer subscriber panicked, isolating from stepper", "panic", r)
			err = fmt.Errorf("tracer panic: %v", r)
		}
	}()
	return fn(t)
}

// BeforeMessage opens a new frame at the current depth and notifies both
// subscribers. A subscriber error or panic is turned by dispatch into the
// returned error, so it reaches the stepper as a value and never as a
// panic. The bus does not record it; GetLastTrace() reports only errors
// the structural tracer recorded itself.
func (b *Bus) BeforeMessage(msg Message) error {
	msg.Depth = b.depth
	b.depth++
	return b.dispatch(func(t Tracer) error { return t.BeforeMessage(msg) })
}

// Step notifies both subscribers of one opcode step inside the current
// frame. The stepper must not advance until this call returns.
func (b *Bus) Step(step Step) error {
	step.Depth = b.depth - 1
	if b.metrics != nil {
		b.metrics.AddStepsDispatched(1)
	}
	return b.dispatch(func(t Tracer) error { return t.Step(step) })
}

// AfterMessage closes the current frame and notifies both subscribers.
func (b *Bus) AfterMessage(result MessageResult) error {
	b.depth--
	if b.depth < 0 {
		b.depth = 0
	}
	return b.dispatch(func(t Tracer) error { return t.AfterMessage(result) })
}

// Depth returns the current nesting depth, i.e. the number of BeforeMessage
// calls not yet matched by an AfterMessage.
func (b *Bus) Depth() int { return b.depth }

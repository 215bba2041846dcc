package adapter

import (
	"errors"
	"fmt"

	evmstate "github.com/clydemeng/evmadapter/core/state"
)

// Sentinel errors for the adapter's error taxonomy, per spec.md §7. Concrete
// failures wrap one of these with %w so callers can errors.Is against the
// category while still seeing the underlying cause in the message.
var (
	// ErrConfiguration covers unsupported construction-time combinations,
	// e.g. a native backend asked to run a forked configuration, or a
	// post-Merge block missing prevRandao.
	ErrConfiguration = errors.New("adapter: configuration error")

	// ErrInvalidBlockLifecycle covers calls made out of the
	// startBlock -> runTxInBlock* -> addBlockRewards -> sealBlock|revertBlock
	// sequence spec.md §4.4 mandates.
	ErrInvalidBlockLifecycle = errors.New("adapter: invalid block lifecycle")

	// ErrUnknownStateRoot covers setStateRoot/restoreContext calls naming a
	// root that was never committed. It is the store layer's sentinel, so
	// the errors the stores return match it under errors.Is.
	ErrUnknownStateRoot = evmstate.ErrUnknownStateRoot

	// ErrForkingUnsupported is the native backend's refusal of a forked
	// configuration, a known limitation spec.md §4.4 calls out explicitly.
	ErrForkingUnsupported = fmt.Errorf("%w: forking is not supported by the native backend", ErrConfiguration)
)

// ConfigurationError wraps ErrConfiguration with a reason code so callers
// can pattern-match on specific misconfigurations (e.g. S5's
// mixHashRequired) without string-matching the message.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("adapter: configuration error: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// BackendExecutionError wraps an infrastructure failure the backend raised
// for a reason outside the EVM halt taxonomy — propagated to the caller
// verbatim per spec.md §7, never translated into an Exit.
type BackendExecutionError struct {
	Backend string
	Cause   error
}

func (e *BackendExecutionError) Error() string {
	return fmt.Sprintf("adapter: %s backend execution error: %v", e.Backend, e.Cause)
}

func (e *BackendExecutionError) Unwrap() error { return e.Cause }

// TracerError wraps a subscriber failure captured by the trace bus. It is
// never thrown out of the stepper — it is only ever surfaced via
// GetLastTrace().Error, per spec.md §4.4.
type TracerError struct {
	Cause error
}

func (e *TracerError) Error() string {
	return fmt.Sprintf("adapter: tracer error: %v", e.Cause)
}

func (e *TracerError) Unwrap() error { return e.Cause }

// Package metrics holds lightweight atomic counters the adapter and its
// backends update, generalized from the teacher's revm_bridge/metrics.go
// cgo miss-counter passthrough into a plain in-process counter struct: the
// native/interpreted split means counters must be incremented from both
// sides of the backend boundary, not only from inside the cgo call.
package metrics

import "sync/atomic"

// Counters aggregates adapter-wide observability counters. The zero value
// is ready to use.
type Counters struct {
	dryRuns          atomic.Int64
	txInBlock        atomic.Int64
	accountCacheMiss atomic.Int64
	storageCacheMiss atomic.Int64
	stepsDispatched  atomic.Int64
}

// IncDryRun records one dryRun call.
func (c *Counters) IncDryRun() { c.dryRuns.Add(1) }

// IncTxInBlock records one runTxInBlock call.
func (c *Counters) IncTxInBlock() { c.txInBlock.Add(1) }

// IncAccountCacheMiss records one account-cache miss (forkstore).
func (c *Counters) IncAccountCacheMiss() { c.accountCacheMiss.Add(1) }

// IncStorageCacheMiss records one storage-cache miss (forkstore).
func (c *Counters) IncStorageCacheMiss() { c.storageCacheMiss.Add(1) }

// AddStepsDispatched records n tracebus Step events dispatched.
func (c *Counters) AddStepsDispatched(n int64) { c.stepsDispatched.Add(n) }

// Snapshot is a point-in-time, race-free read of every counter.
type Snapshot struct {
	DryRuns          int64
	TxInBlock        int64
	AccountCacheMiss int64
	StorageCacheMiss int64
	StepsDispatched  int64
}

// Snapshot reads every counter without resetting them.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		DryRuns:          c.dryRuns.Load(),
		TxInBlock:        c.txInBlock.Load(),
		AccountCacheMiss: c.accountCacheMiss.Load(),
		StorageCacheMiss: c.storageCacheMiss.Load(),
		StepsDispatched:  c.stepsDispatched.Load(),
	}
}

// Reset zeroes every counter.
func (c *Counters) Reset() {
	c.dryRuns.Store(0)
	c.txInBlock.Store(0)
	c.accountCacheMiss.Store(0)
	c.storageCacheMiss.Store(0)
	c.stepsDispatched.Store(0)
}

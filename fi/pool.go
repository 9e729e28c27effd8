package fi

import "sync/atomic"

// defaultErrorEntryCount bounds the number of pooled error records retained
// per queue between NextError/ReleaseError cycles.
const defaultErrorEntryCount = 16

// errEntryPool manages reusable error records dispensed by NextError.
// Records are provisioned lazily; the pool only caps how many are retained.
type errEntryPool struct {
	pool   chan *ErrorEntry
	closed atomic.Bool
}

func newErrEntryPool(capacity int) *errEntryPool {
	if capacity < 0 {
		capacity = 0
	}
	return &errEntryPool{pool: make(chan *ErrorEntry, capacity)}
}

// acquire returns a zeroed error record, provisioning one when the pool is
// empty. Returns nil once the pool has been closed.
func (p *errEntryPool) acquire() *ErrorEntry {
	if p == nil || p.closed.Load() {
		return nil
	}
	select {
	case entry := <-p.pool:
		*entry = ErrorEntry{}
		return entry
	default:
		return &ErrorEntry{}
	}
}

// release returns a record to the pool for reuse; records beyond the pool's
// capacity or released after close are dropped for the collector.
func (p *errEntryPool) release(entry *ErrorEntry) {
	if p == nil || entry == nil || p.closed.Load() {
		return
	}
	select {
	case p.pool <- entry:
	default:
	}
}

// close drains retained records and prevents further acquisitions.
func (p *errEntryPool) close() {
	if p == nil || !p.closed.CompareAndSwap(false, true) {
		return
	}
	for {
		select {
		case <-p.pool:
		default:
			return
		}
	}
}

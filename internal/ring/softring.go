package ring

import (
	"errors"
	"sync"
)

var (
	// ErrRingDestroyed indicates an operation on a ring that was torn down.
	ErrRingDestroyed = errors.New("ring: destroyed")
	// ErrRingOverrun indicates a post onto a full ring.
	ErrRingOverrun = errors.New("ring: overrun")
	// ErrRingBusy indicates a destroy attempt while a poll session is open.
	ErrRingBusy = errors.New("ring: poll session in progress")
)

// SoftRing is an in-memory PollRing. Producers append completions with Post
// while a single poller drains them through the session protocol. It backs the
// software transport and stands in for the vendor ring in tests.
type SoftRing struct {
	mu        sync.Mutex
	depth     int
	entries   []Completion
	destroyed bool

	started bool
	pos     int  // cursor index within entries while a session is open
	loaded  bool // Current was called at the cursor position

	cur    Completion // sticky completion register
	curSet bool

	injected int // fault code surfaced by the next Start/NextPoll
}

var _ PollRing = (*SoftRing)(nil)

// NewSoftRing constructs a software ring holding up to depth completions.
func NewSoftRing(depth int) (*SoftRing, error) {
	if depth <= 0 {
		return nil, errors.New("ring: depth must be positive")
	}
	return &SoftRing{depth: depth}, nil
}

// Post appends a completion for the poller to drain. Safe to call
// concurrently with an open poll session.
func (r *SoftRing) Post(wc Completion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return ErrRingDestroyed
	}
	if len(r.entries) >= r.depth {
		return ErrRingOverrun
	}
	r.entries = append(r.entries, wc)
	return nil
}

// InjectFault arranges for the next StartPoll or NextPoll to return code
// instead of consulting the ring. Test hook for ring-level faults.
func (r *SoftRing) InjectFault(code int) {
	r.mu.Lock()
	r.injected = code
	r.mu.Unlock()
}

// Pending reports the number of completions not yet consumed.
func (r *SoftRing) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *SoftRing) StartPoll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		panic("ring: StartPoll with session already open")
	}
	if code := r.takeFault(); code != 0 {
		return code
	}
	if r.destroyed || len(r.entries) == 0 {
		return NoEntries
	}
	r.started = true
	r.pos = 0
	r.loaded = false
	return 0
}

func (r *SoftRing) NextPoll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		panic("ring: NextPoll without open session")
	}
	r.pos++
	r.loaded = false
	if code := r.takeFault(); code != 0 {
		return code
	}
	if r.pos >= len(r.entries) {
		return NoEntries
	}
	return 0
}

func (r *SoftRing) Current() Completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.pos >= len(r.entries) {
		panic("ring: Current with no completion at cursor")
	}
	r.cur = r.entries[r.pos]
	r.curSet = true
	r.loaded = true
	return r.cur
}

func (r *SoftRing) EndPoll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	consumed := r.pos
	if r.loaded && r.pos < len(r.entries) {
		consumed++
	}
	if consumed > len(r.entries) {
		consumed = len(r.entries)
	}
	r.entries = r.entries[consumed:]
	r.started = false
	r.loaded = false
}

func (r *SoftRing) Fault() (Completion, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.curSet || r.cur.Status == StatusSuccess {
		return Completion{}, false
	}
	return r.cur, true
}

func (r *SoftRing) Depth() int {
	return r.depth
}

func (r *SoftRing) Destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrRingBusy
	}
	r.destroyed = true
	r.entries = nil
	return nil
}

// takeFault consumes a pending injected fault code. Caller holds r.mu.
func (r *SoftRing) takeFault() int {
	code := r.injected
	r.injected = 0
	return code
}

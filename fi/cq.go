package fi

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/rocketbitz/efadirect-go/internal/ring"
)

// CQFormat selects the entry layout a completion queue reports. The layout is
// bound once at creation and never changes for the lifetime of the queue.
type CQFormat int

const (
	CQFormatUnspec CQFormat = iota
	CQFormatContext
	CQFormatMsg
	CQFormatData
	CQFormatTagged
)

func (f CQFormat) String() string {
	switch f {
	case CQFormatUnspec:
		return "unspec"
	case CQFormatContext:
		return "context"
	case CQFormatMsg:
		return "msg"
	case CQFormatData:
		return "data"
	case CQFormatTagged:
		return "tagged"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// WaitObj selects the blocking-wait mechanism for a queue. This core is
// poll-only: anything other than WaitNone is rejected at creation.
type WaitObj int

const (
	WaitNone WaitObj = iota
	WaitUnspec
	WaitObjSet
	WaitFD
	WaitMutexCond
)

// DefaultCQSize is the ring depth used when creation requests a size of zero.
const DefaultCQSize = 1024

// Completion flags reported in Msg and Data layouts.
const (
	FlagMessage uint64 = 1 << 1
	FlagRecv    uint64 = 1 << 10
	FlagSend    uint64 = 1 << 11
)

// CompletionQueueAttr controls completion queue creation.
type CompletionQueueAttr struct {
	Size            int
	Format          CQFormat
	WaitObj         WaitObj
	SignalingVector int
}

// Entry is the context-only completion layout.
type Entry struct {
	Context uint64
}

// MsgEntry is the message completion layout.
type MsgEntry struct {
	Context uint64
	Flags   uint64
	Len     uint64
}

// DataEntry is the message-and-data completion layout. Data is reserved and
// reported as zero regardless of hardware immediate data.
type DataEntry struct {
	Context uint64
	Flags   uint64
	Len     uint64
	Data    uint64
}

// ErrorEntry describes a completion that finished in error state.
type ErrorEntry struct {
	Context     uint64
	Flags       uint64
	Err         Errno
	ProviderErr int
	ErrDataSize uint64
}

// Buffer is a caller-supplied destination for formatted completion entries.
// Each concrete buffer type corresponds to one queue layout; reads reject a
// buffer whose layout does not match the one bound at creation.
type Buffer interface {
	Len() int
	format() CQFormat
	write(i int, wc *ring.Completion)
}

// ContextEntries is an output buffer for the context-only layout.
type ContextEntries []Entry

func (b ContextEntries) Len() int         { return len(b) }
func (b ContextEntries) format() CQFormat { return CQFormatContext }
func (b ContextEntries) write(i int, wc *ring.Completion) {
	b[i] = Entry{Context: wc.WRID}
}

// MsgEntries is an output buffer for the message layout.
type MsgEntries []MsgEntry

func (b MsgEntries) Len() int         { return len(b) }
func (b MsgEntries) format() CQFormat { return CQFormatMsg }
func (b MsgEntries) write(i int, wc *ring.Completion) {
	b[i] = MsgEntry{
		Context: wc.WRID,
		Flags:   completionFlags(wc.Opcode),
		Len:     uint64(wc.ByteLen),
	}
}

// DataEntries is an output buffer for the message-and-data layout.
type DataEntries []DataEntry

func (b DataEntries) Len() int         { return len(b) }
func (b DataEntries) format() CQFormat { return CQFormatData }
func (b DataEntries) write(i int, wc *ring.Completion) {
	b[i] = DataEntry{
		Context: wc.WRID,
		Flags:   completionFlags(wc.Opcode),
		Len:     uint64(wc.ByteLen),
		Data:    0,
	}
}

// completionFlags derives the reported flags from the completion opcode. Any
// opcode outside the supported operation set is a programming-invariant
// violation, not a runtime error.
func completionFlags(op ring.Opcode) uint64 {
	switch op {
	case ring.OpSend:
		return FlagSend | FlagMessage
	case ring.OpRecv:
		return FlagRecv | FlagMessage
	default:
		panic(fmt.Sprintf("efadirect: completion opcode %s outside supported operation set", op))
	}
}

// CompletionQueue drains a completion ring into caller-supplied entry
// buffers. Methods are safe for concurrent use from arbitrary goroutines; the
// queue admits exactly one poller at a time.
type CompletionQueue struct {
	mu        sync.Mutex
	ring      ring.PollRing
	domain    *Domain
	format    CQFormat
	entrySize uintptr
	errPool   *errEntryPool
}

// OpenCompletionQueue opens a completion queue on the domain. A size of zero
// selects DefaultCQSize. Blocking wait modes and the tagged layout are not
// supported and are rejected with ErrNotSupported.
func (d *Domain) OpenCompletionQueue(attr *CompletionQueueAttr) (*CompletionQueue, error) {
	if d == nil {
		return nil, ErrInvalidHandle{"domain"}
	}

	var a CompletionQueueAttr
	if attr != nil {
		a = *attr
	}

	if a.WaitObj != WaitNone {
		return nil, ErrNotSupported.WithOp("cq_open")
	}
	if a.Size < 0 {
		return nil, ErrInvalid.WithOp("cq_open")
	}

	var format CQFormat
	var entrySize uintptr
	switch a.Format {
	case CQFormatUnspec, CQFormatContext:
		format = CQFormatContext
		entrySize = unsafe.Sizeof(Entry{})
	case CQFormatMsg:
		format = CQFormatMsg
		entrySize = unsafe.Sizeof(MsgEntry{})
	case CQFormatData:
		format = CQFormatData
		entrySize = unsafe.Sizeof(DataEntry{})
	case CQFormatTagged:
		return nil, ErrNotSupported.WithOp("cq_open")
	default:
		return nil, ErrNotSupported.WithOp("cq_open")
	}

	size := a.Size
	if size == 0 {
		size = DefaultCQSize
	}

	r, err := d.newRing(size)
	if err != nil {
		return nil, fmt.Errorf("cq_open: %w", err)
	}

	return &CompletionQueue{
		ring:      r,
		domain:    d,
		format:    format,
		entrySize: entrySize,
		errPool:   newErrEntryPool(defaultErrorEntryCount),
	}, nil
}

// Format reports the entry layout bound at creation.
func (c *CompletionQueue) Format() CQFormat {
	if c == nil {
		return CQFormatUnspec
	}
	return c.format
}

// EntrySize reports the byte size of one formatted entry.
func (c *CompletionQueue) EntrySize() uintptr {
	if c == nil {
		return 0
	}
	return c.entrySize
}

// Size reports the depth of the underlying completion ring.
func (c *CompletionQueue) Size() int {
	if c == nil || c.ring == nil {
		return 0
	}
	return c.ring.Depth()
}

// Read drains up to buf.Len() completions into buf, in completion order
// starting at index 0. It returns the number of entries written; when that is
// zero it returns ErrNoCompletion if the ring was empty, ErrErrorAvailable if
// the next completion is in error state, or the translated ring fault.
// Already-read entries always win over a fault detected while exiting the
// loop: partial success is reported as success.
func (c *CompletionQueue) Read(buf Buffer) (int, error) {
	return c.readFrom(buf, nil)
}

// ReadFrom behaves like Read and additionally fills src[0..n) with the
// resolved source address of each completion, or AddressUnspecified for
// unknown peers. The effective capacity is the smaller of buf.Len() and
// len(src).
func (c *CompletionQueue) ReadFrom(buf Buffer, src []Address) (int, error) {
	return c.readFrom(buf, src)
}

func (c *CompletionQueue) readFrom(buf Buffer, src []Address) (int, error) {
	if c == nil || c.ring == nil {
		return 0, ErrInvalidHandle{"completion queue"}
	}
	if buf == nil {
		return 0, ErrInvalid.WithOp("cq_read")
	}
	if buf.format() != c.format {
		return 0, ErrInvalid.WithOp("cq_read")
	}
	count := buf.Len()
	if src != nil && len(src) < count {
		count = len(src)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Exactly one start/end pair per call, even when count == 0.
	code := c.ring.StartPoll()
	shouldEnd := code == 0

	read := 0
	for code == 0 && read < count {
		wc := c.ring.Current()

		if wc.Status != ring.StatusSuccess {
			// The faulted completion is consumed from the ring but not
			// written to the output; detail stays readable via ReadError.
			code = -int(ErrUnavailable)
			break
		}

		if src != nil {
			src[read] = c.domain.sourceAddress(wc.QPNum, wc.SLID, wc.SrcQP)
		}

		buf.write(read, &wc)
		read++

		code = c.ring.NextPoll()
	}

	err := pollCodeToError(code)

	if shouldEnd {
		c.ring.EndPoll()
	}

	if read > 0 {
		return read, nil
	}
	return 0, err
}

// pollCodeToError translates a ring poll-protocol code into the fabric error
// taxonomy. A ring that ran dry is the try-again condition, not a fault;
// other positive codes are negated system errors and negative codes already
// carry a fabric error.
func pollCodeToError(code int) error {
	switch {
	case code == 0:
		return nil
	case code == ring.NoEntries:
		return ErrNoCompletion
	case code > 0:
		return errnoError(Errno(code))
	default:
		return errnoError(Errno(-code))
	}
}

func errnoError(code Errno) error {
	switch code {
	case ErrAgain:
		return ErrNoCompletion
	case ErrUnavailable:
		return ErrErrorAvailable
	default:
		return code.WithOp("cq_read")
	}
}

// ReadError fills entry with the pending error condition captured by the
// ring, or returns ErrNoCompletion when none is pending. It does not clear
// ring-level state: the ring advances past a faulted entry only through the
// normal poll path, so the call is safe to repeat while the fault persists.
// ErrDataSize is populated only for API versions 1.5 and later.
func (c *CompletionQueue) ReadError(entry *ErrorEntry) error {
	if c == nil || c.ring == nil {
		return ErrInvalidHandle{"completion queue"}
	}
	if entry == nil {
		return ErrInvalid.WithOp("cq_readerr")
	}

	c.mu.Lock()
	wc, ok := c.ring.Fault()
	if !ok {
		c.mu.Unlock()
		return ErrNoCompletion
	}

	entry.Context = wc.WRID
	entry.Flags = completionFlags(wc.Opcode)
	entry.Err = ErrIO
	entry.ProviderErr = int(wc.Status)
	c.mu.Unlock()

	// No error detail payload is reported; only size the field for
	// consumers that negotiated it.
	if c.domain.APIVersion().GE(Version{Major: 1, Minor: 5}) {
		entry.ErrDataSize = 0
	}

	return nil
}

// NextError returns a pooled record describing the pending error condition.
// Callers hand the record back with ReleaseError once done with it.
func (c *CompletionQueue) NextError() (*ErrorEntry, error) {
	if c == nil || c.ring == nil {
		return nil, ErrInvalidHandle{"completion queue"}
	}
	entry := c.errPool.acquire()
	if entry == nil {
		return nil, ErrInvalidHandle{"completion queue"}
	}
	if err := c.ReadError(entry); err != nil {
		c.errPool.release(entry)
		return nil, err
	}
	return entry, nil
}

// ReleaseError returns a record obtained from NextError to the queue's pool.
func (c *CompletionQueue) ReleaseError(entry *ErrorEntry) {
	if c == nil {
		return
	}
	c.errPool.release(entry)
}

// SRead is the blocking read variant. Blocking wait modes are not supported
// by this core.
func (c *CompletionQueue) SRead(buf Buffer, timeout time.Duration) (int, error) {
	return 0, ErrNotSupported.WithOp("cq_sread")
}

// SReadFrom is the blocking source-address read variant. Blocking wait modes
// are not supported by this core.
func (c *CompletionQueue) SReadFrom(buf Buffer, src []Address, timeout time.Duration) (int, error) {
	return 0, ErrNotSupported.WithOp("cq_sreadfrom")
}

// Signal wakes a blocked reader. There are none; signaling is not supported
// by this core.
func (c *CompletionQueue) Signal() error {
	return ErrNotSupported.WithOp("cq_signal")
}

// Close tears the queue down: pooled error-record storage is released first,
// then the ring is destroyed. A ring destruction failure is surfaced to the
// caller and leaves the handle in place; the caller still owns the queue and
// must treat the failure as a resource-leak risk rather than retrying
// blindly.
func (c *CompletionQueue) Close() error {
	if c == nil || c.ring == nil {
		return nil
	}
	c.errPool.close()
	if err := c.ring.Destroy(); err != nil {
		return err
	}
	c.ring = nil
	return nil
}

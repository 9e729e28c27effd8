// Package ring defines the poll-session contract a completion ring must
// implement for the fabric layer to drain it, along with the normalized
// completion record that crosses that boundary. The contract mirrors the
// vendor's extended poll protocol: a session is opened with StartPoll,
// advanced with NextPoll, and closed with EndPoll; between successful calls
// the cursor references exactly one completion.
package ring

import "fmt"

// Opcode identifies the operation kind a completion reports. Values mirror
// the vendor work-completion opcodes.
type Opcode uint32

const (
	// OpSend reports a completed transmit operation.
	OpSend Opcode = 0
	// OpRecv reports a completed receive operation.
	OpRecv Opcode = 128
)

func (o Opcode) String() string {
	switch o {
	case OpSend:
		return "send"
	case OpRecv:
		return "recv"
	default:
		return fmt.Sprintf("opcode(%d)", uint32(o))
	}
}

// Status is the per-completion status code reported by the ring. Zero is
// success; non-zero values identify the vendor fault condition.
type Status uint32

const (
	StatusSuccess       Status = 0
	StatusLocalLenErr   Status = 1
	StatusLocalQPOpErr  Status = 2
	StatusLocalProtErr  Status = 4
	StatusWRFlushErr    Status = 5
	StatusRemoteAbort   Status = 10
	StatusBadResponse   Status = 16
	StatusRetryExceeded Status = 12
	StatusGeneralErr    Status = 21
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusLocalLenErr:
		return "local length error"
	case StatusLocalQPOpErr:
		return "local QP operation error"
	case StatusLocalProtErr:
		return "local protection error"
	case StatusWRFlushErr:
		return "work request flushed"
	case StatusRemoteAbort:
		return "remote operation aborted"
	case StatusBadResponse:
		return "bad response"
	case StatusRetryExceeded:
		return "retry counter exceeded"
	case StatusGeneralErr:
		return "general error"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// Completion is the normalized record for a single polled entry. It is a
// transient, stack-scoped value: it exists only while the cursor references
// the underlying slot and must not be retained across an advance.
type Completion struct {
	WRID      uint64
	Opcode    Opcode
	Status    Status
	VendorErr uint32
	ByteLen   uint32
	QPNum     uint32
	SrcQP     uint32
	SLID      uint32
	ImmData   uint32
}

// Poll protocol return codes. StartPoll and NextPoll return zero when the
// cursor references a valid completion, NoEntries when the ring has nothing
// further to report, or a negative code for a ring-level fault. NoEntries is
// not a fault: the caller must not conflate "nothing now" with "ring broken".
const NoEntries = 2 // ENOENT, per the vendor protocol

// PollRing is the capability contract a completion ring implements.
//
// A successful StartPoll opens a poll session and must be balanced by exactly
// one EndPoll; EndPoll is safe to call even after a mid-session fault. Current
// loads the cursor slot into the ring's sticky completion register and returns
// it; the slot is consumed once NextPoll advances past it or EndPoll closes a
// session in which it was loaded. There is no reread after advance.
type PollRing interface {
	StartPoll() int
	NextPoll() int
	EndPoll()
	Current() Completion

	// Fault reports the sticky completion register when it holds an errored
	// completion. The register persists across EndPoll and is only
	// overwritten by a later Current load.
	Fault() (Completion, bool)

	// Depth reports the ring's entry capacity.
	Depth() int

	// Destroy releases the ring. It fails while a poll session is open.
	Destroy() error
}

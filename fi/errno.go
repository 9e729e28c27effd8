package fi

import "fmt"

// Errno represents a fabric error code (positive integral value).
type Errno int32

// Error codes mirrored from <rdma/fi_errno.h>. This list covers common return
// values we expect to surface through the completion path. Additional codes
// can be added as new APIs are wrapped.
const (
	Success         Errno = 0
	ErrPerm         Errno = 1
	ErrNoEntry      Errno = 2
	ErrIO           Errno = 5
	ErrTooBig       Errno = 7
	ErrBadFD        Errno = 9
	ErrAgain        Errno = 11
	ErrNoMemory     Errno = 12
	ErrAccess       Errno = 13
	ErrFault        Errno = 14
	ErrBusy         Errno = 16
	ErrNoDevice     Errno = 19
	ErrInvalid      Errno = 22
	ErrTooManyFiles Errno = 24
	ErrNoSpace      Errno = 28
	ErrNotSupported Errno = 38
	ErrNoData       Errno = 61
	ErrProto        Errno = 71
	ErrOverflow     Errno = 75
	ErrMsgSize      Errno = 90
	ErrNoProtoOpt   Errno = 92
	ErrOpNotSupp    Errno = 95
	ErrAddrInUse    Errno = 98
	ErrAddrNotAvail Errno = 99
	ErrNetDown      Errno = 100
	ErrNetUnreach   Errno = 101
	ErrConnAborted  Errno = 103
	ErrConnReset    Errno = 104
	ErrNoBufs       Errno = 105
	ErrIsConn       Errno = 106
	ErrNotConn      Errno = 107
	ErrShutdown     Errno = 108
	ErrTimedOut     Errno = 110
	ErrConnRefused  Errno = 111
	ErrHostDown     Errno = 112
	ErrHostUnreach  Errno = 113
	ErrAlready      Errno = 114
	ErrInProgress   Errno = 115
	ErrRemoteIO     Errno = 121
	ErrCanceled     Errno = 125
	ErrKeyRejected  Errno = 129

	ErrOther       Errno = 256
	ErrTooSmall    Errno = 257
	ErrBadState    Errno = 258
	ErrUnavailable Errno = 259
	ErrBadFlags    Errno = 260
	ErrNoEQ        Errno = 261
	ErrDomain      Errno = 262
	ErrNoCQ        Errno = 263
	ErrCRC         Errno = 264
	ErrTrunc       Errno = 265
	ErrNoKey       Errno = 266
	ErrNoAV        Errno = 267
	ErrOverrun     Errno = 268
	ErrNoRX        Errno = 269
	ErrNoMR        Errno = 270
)

// ErrWouldBlock aliases ErrAgain, matching the provider convention.
const ErrWouldBlock = ErrAgain

var errnoMessages = map[Errno]string{
	Success:         "success",
	ErrPerm:         "Operation not permitted",
	ErrNoEntry:      "No such file or directory",
	ErrIO:           "Input/output error",
	ErrTooBig:       "Argument list too long",
	ErrBadFD:        "Bad file descriptor",
	ErrAgain:        "Resource temporarily unavailable",
	ErrNoMemory:     "Cannot allocate memory",
	ErrAccess:       "Permission denied",
	ErrFault:        "Bad address",
	ErrBusy:         "Device or resource busy",
	ErrNoDevice:     "No such device",
	ErrInvalid:      "Invalid argument",
	ErrTooManyFiles: "Too many open files",
	ErrNoSpace:      "No space left on device",
	ErrNotSupported: "Function not implemented",
	ErrNoData:       "No data available",
	ErrProto:        "Protocol error",
	ErrOverflow:     "Value too large for defined data type",
	ErrMsgSize:      "Message too long",
	ErrNoProtoOpt:   "Protocol not available",
	ErrOpNotSupp:    "Operation not supported",
	ErrAddrInUse:    "Address already in use",
	ErrAddrNotAvail: "Cannot assign requested address",
	ErrNetDown:      "Network is down",
	ErrNetUnreach:   "Network is unreachable",
	ErrConnAborted:  "Software caused connection abort",
	ErrConnReset:    "Connection reset by peer",
	ErrNoBufs:       "No buffer space available",
	ErrIsConn:       "Transport endpoint is already connected",
	ErrNotConn:      "Transport endpoint is not connected",
	ErrShutdown:     "Cannot send after transport endpoint shutdown",
	ErrTimedOut:     "Connection timed out",
	ErrConnRefused:  "Connection refused",
	ErrHostDown:     "Host is down",
	ErrHostUnreach:  "No route to host",
	ErrAlready:      "Operation already in progress",
	ErrInProgress:   "Operation now in progress",
	ErrRemoteIO:     "Remote I/O error",
	ErrCanceled:     "Operation canceled",
	ErrKeyRejected:  "Key was rejected by service",
	ErrOther:        "Unspecified error",
	ErrTooSmall:     "Provided buffer is too small",
	ErrBadState:     "Operation not permitted in current state",
	ErrUnavailable:  "Error available",
	ErrBadFlags:     "Flags not supported",
	ErrNoEQ:         "Missing or unavailable event queue",
	ErrDomain:       "Invalid resource domain",
	ErrNoCQ:         "Missing or unavailable completion queue",
	ErrCRC:          "CRC error",
	ErrTrunc:        "Truncation error",
	ErrNoKey:        "Required key not available",
	ErrNoAV:         "Missing or unavailable address vector",
	ErrOverrun:      "Queue has been overrun",
	ErrNoRX:         "Receiver not ready, no receive buffers available",
	ErrNoMR:         "Memory registration limit exceeded",
}

// Error returns the human-readable string for the Errno.
func (e Errno) Error() string {
	return e.String()
}

// String returns the provider message for the Errno.
func (e Errno) String() string {
	if msg, ok := errnoMessages[e]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error %d", int32(e))
}

// WithOp adds operation context to the provided Errno.
func (e Errno) WithOp(op string) error {
	if op == "" {
		return e
	}
	return fmt.Errorf("%s: %w", op, e)
}

// ErrorFromStatus converts a status code into a Go error. Status values are
// expected to be 0 on success, negative on failure. Positive values are
// returned as-is and treated as success, e.g. when an API returns a byte
// count. ErrUnavailable signals consumers to inspect the completion queue for
// detailed error info.
func ErrorFromStatus(status int, op string) error {
	if status >= 0 {
		return nil
	}

	code := Errno(-status)
	if code == Success {
		return nil
	}
	return code.WithOp(op)
}

// MustSucceed panics if the status represents an error. Intended for tests or
// bootstrapping code paths where failure is fatal.
func MustSucceed(status int, op string) {
	if err := ErrorFromStatus(status, op); err != nil {
		panic(err)
	}
}

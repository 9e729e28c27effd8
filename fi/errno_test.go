package fi

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorFromStatus(t *testing.T) {
	if err := ErrorFromStatus(0, "noop"); err != nil {
		t.Fatalf("expected nil error for success status, got %v", err)
	}
	if err := ErrorFromStatus(3, "noop"); err != nil {
		t.Fatalf("expected nil error for positive status, got %v", err)
	}

	err := ErrorFromStatus(-int(ErrAgain), "cq_read")
	if err == nil {
		t.Fatalf("expected error for ErrAgain status")
	}
	if !errors.Is(err, ErrAgain) {
		t.Fatalf("expected errors.Is match ErrAgain, got %v", err)
	}
	if !strings.Contains(err.Error(), "cq_read") {
		t.Fatalf("expected operation context in error string, got %q", err)
	}

	err = ErrorFromStatus(-int(ErrUnavailable), "cq_read")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestErrnoString(t *testing.T) {
	if msg := ErrAgain.String(); msg == "" || strings.HasPrefix(msg, "Unknown") {
		t.Fatalf("unexpected message for ErrAgain: %q", msg)
	}
	if msg := ErrUnavailable.String(); msg != "Error available" {
		t.Fatalf("unexpected message for ErrUnavailable: %q", msg)
	}
	if msg := Errno(9999).String(); !strings.Contains(msg, "9999") {
		t.Fatalf("unexpected message for unknown code: %q", msg)
	}
}

func TestWithOpWithoutOp(t *testing.T) {
	if err := ErrInvalid.WithOp(""); err != ErrInvalid {
		t.Fatalf("expected bare Errno without op, got %v", err)
	}
}

func TestMustSucceedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for failing status")
		}
	}()
	MustSucceed(-int(ErrIO), "cq_open")
}

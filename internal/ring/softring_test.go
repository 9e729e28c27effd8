package ring

import "testing"

func post(t *testing.T, r *SoftRing, wcs ...Completion) {
	t.Helper()
	for _, wc := range wcs {
		if err := r.Post(wc); err != nil {
			t.Fatalf("Post failed: %v", err)
		}
	}
}

func TestSoftRingEmptyStart(t *testing.T) {
	r, err := NewSoftRing(8)
	if err != nil {
		t.Fatalf("NewSoftRing failed: %v", err)
	}
	if code := r.StartPoll(); code != NoEntries {
		t.Fatalf("expected NoEntries from empty ring, got %d", code)
	}
	if _, ok := r.Fault(); ok {
		t.Fatalf("unexpected fault on fresh ring")
	}
}

func TestSoftRingPollOrder(t *testing.T) {
	r, err := NewSoftRing(8)
	if err != nil {
		t.Fatalf("NewSoftRing failed: %v", err)
	}
	post(t, r,
		Completion{WRID: 1, Opcode: OpSend},
		Completion{WRID: 2, Opcode: OpRecv},
		Completion{WRID: 3, Opcode: OpSend},
	)

	if code := r.StartPoll(); code != 0 {
		t.Fatalf("StartPoll: %d", code)
	}
	for want := uint64(1); want <= 3; want++ {
		wc := r.Current()
		if wc.WRID != want {
			t.Fatalf("expected wr_id %d, got %d", want, wc.WRID)
		}
		code := r.NextPoll()
		if want < 3 && code != 0 {
			t.Fatalf("NextPoll at %d: %d", want, code)
		}
		if want == 3 && code != NoEntries {
			t.Fatalf("expected NoEntries at tail, got %d", code)
		}
	}
	r.EndPoll()

	if got := r.Pending(); got != 0 {
		t.Fatalf("expected drained ring, %d pending", got)
	}
	if code := r.StartPoll(); code != NoEntries {
		t.Fatalf("expected NoEntries after drain, got %d", code)
	}
}

func TestSoftRingUnreadCursorNotConsumed(t *testing.T) {
	r, err := NewSoftRing(4)
	if err != nil {
		t.Fatalf("NewSoftRing failed: %v", err)
	}
	post(t, r, Completion{WRID: 7, Opcode: OpRecv})

	// Session opened and closed without loading the cursor: the slot stays.
	if code := r.StartPoll(); code != 0 {
		t.Fatalf("StartPoll: %d", code)
	}
	r.EndPoll()
	if got := r.Pending(); got != 1 {
		t.Fatalf("expected slot retained, %d pending", got)
	}

	// Loading the cursor then ending consumes it.
	if code := r.StartPoll(); code != 0 {
		t.Fatalf("StartPoll: %d", code)
	}
	if wc := r.Current(); wc.WRID != 7 {
		t.Fatalf("unexpected wr_id %d", wc.WRID)
	}
	r.EndPoll()
	if got := r.Pending(); got != 0 {
		t.Fatalf("expected slot consumed, %d pending", got)
	}
}

func TestSoftRingStickyFault(t *testing.T) {
	r, err := NewSoftRing(4)
	if err != nil {
		t.Fatalf("NewSoftRing failed: %v", err)
	}
	post(t, r,
		Completion{WRID: 11, Opcode: OpRecv, Status: StatusLocalProtErr},
		Completion{WRID: 12, Opcode: OpSend},
	)

	if code := r.StartPoll(); code != 0 {
		t.Fatalf("StartPoll: %d", code)
	}
	if wc := r.Current(); wc.Status != StatusLocalProtErr {
		t.Fatalf("expected errored completion, got %v", wc.Status)
	}
	r.EndPoll()

	// The fault register persists across the session and repeated reads.
	for i := 0; i < 2; i++ {
		wc, ok := r.Fault()
		if !ok {
			t.Fatalf("expected sticky fault")
		}
		if wc.WRID != 11 || wc.Status != StatusLocalProtErr {
			t.Fatalf("unexpected fault record %+v", wc)
		}
	}

	// A later successful load overwrites the register.
	if code := r.StartPoll(); code != 0 {
		t.Fatalf("StartPoll: %d", code)
	}
	if wc := r.Current(); wc.WRID != 12 {
		t.Fatalf("unexpected wr_id %d", wc.WRID)
	}
	r.EndPoll()
	if _, ok := r.Fault(); ok {
		t.Fatalf("fault register should have been overwritten")
	}
}

func TestSoftRingOverrun(t *testing.T) {
	r, err := NewSoftRing(2)
	if err != nil {
		t.Fatalf("NewSoftRing failed: %v", err)
	}
	post(t, r, Completion{WRID: 1}, Completion{WRID: 2})
	if err := r.Post(Completion{WRID: 3}); err != ErrRingOverrun {
		t.Fatalf("expected overrun, got %v", err)
	}
}

func TestSoftRingInjectedFault(t *testing.T) {
	r, err := NewSoftRing(4)
	if err != nil {
		t.Fatalf("NewSoftRing failed: %v", err)
	}
	post(t, r, Completion{WRID: 1, Opcode: OpSend})

	r.InjectFault(-5)
	if code := r.StartPoll(); code != -5 {
		t.Fatalf("expected injected fault, got %d", code)
	}

	// The fault is one-shot; the entry is still pollable afterwards.
	if code := r.StartPoll(); code != 0 {
		t.Fatalf("StartPoll after fault: %d", code)
	}
	if wc := r.Current(); wc.WRID != 1 {
		t.Fatalf("unexpected wr_id %d", wc.WRID)
	}
	r.EndPoll()
}

func TestSoftRingDestroy(t *testing.T) {
	r, err := NewSoftRing(4)
	if err != nil {
		t.Fatalf("NewSoftRing failed: %v", err)
	}
	post(t, r, Completion{WRID: 1})

	if code := r.StartPoll(); code != 0 {
		t.Fatalf("StartPoll: %d", code)
	}
	if err := r.Destroy(); err != ErrRingBusy {
		t.Fatalf("expected busy destroying mid-session, got %v", err)
	}
	r.EndPoll()

	if err := r.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if err := r.Post(Completion{WRID: 2}); err != ErrRingDestroyed {
		t.Fatalf("expected post on destroyed ring to fail, got %v", err)
	}
	if code := r.StartPoll(); code != NoEntries {
		t.Fatalf("expected NoEntries on destroyed ring, got %d", code)
	}
}

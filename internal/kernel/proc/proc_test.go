package proc

import (
	"errors"
	"testing"

	"github.com/kestrelos/kestrel/internal/kernel/status"
)

func TestThreadReadStateSizeProbe(t *testing.T) {
	p := New(1, "init", 4096)
	th := NewThread(1, "main", p)

	// A zero-length buffer probes the required size.
	actual, err := th.ReadState(StateGeneralRegs, nil)
	if !errors.Is(err, status.ErrBufferTooSmall) {
		t.Fatalf("expected buffer too small, got %v", err)
	}
	if actual != GeneralRegsSize {
		t.Fatalf("reported size = %d, want %d", actual, GeneralRegsSize)
	}

	buf := make([]byte, actual)
	actual, err = th.ReadState(StateGeneralRegs, buf)
	if err != nil || actual != GeneralRegsSize {
		t.Fatalf("retry failed: actual=%d err=%v", actual, err)
	}
}

func TestThreadWriteStateRoundTrip(t *testing.T) {
	p := New(1, "init", 4096)
	th := NewThread(1, "main", p)

	in := make([]byte, FPRegsSize)
	for i := range in {
		in[i] = byte(i)
	}
	if err := th.WriteState(StateFPRegs, in); err != nil {
		t.Fatalf("WriteState: %v", err)
	}

	out := make([]byte, FPRegsSize)
	if _, err := th.ReadState(StateFPRegs, out); err != nil {
		t.Fatalf("ReadState: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("state mismatch at byte %d", i)
		}
	}
}

func TestThreadStateBadArgs(t *testing.T) {
	p := New(1, "init", 4096)
	th := NewThread(1, "main", p)

	if _, err := th.ReadState(StateKind(99), nil); !errors.Is(err, status.ErrInvalidArgs) {
		t.Errorf("unknown kind read: %v", err)
	}
	if err := th.WriteState(StateKind(99), nil); !errors.Is(err, status.ErrInvalidArgs) {
		t.Errorf("unknown kind write: %v", err)
	}
	if err := th.WriteState(StateGeneralRegs, make([]byte, 10)); !errors.Is(err, status.ErrInvalidArgs) {
		t.Errorf("short write accepted: %v", err)
	}
}

func TestProcessAddressSpaceTeardown(t *testing.T) {
	p := New(7, "victim", 4096)
	if p.AddressSpace() == nil {
		t.Fatal("fresh process has no address space")
	}

	p.DestroyAddressSpace()
	if p.AddressSpace() != nil {
		t.Error("address space survived teardown")
	}
	// Idempotent.
	p.DestroyAddressSpace()
}

func TestProcessNullBuffer(t *testing.T) {
	p := New(1, "init", 4096)
	if !p.Buffer(0).IsNull() {
		t.Error("address zero should resolve to the null buffer")
	}
	if p.Buffer(16).IsNull() {
		t.Error("nonzero address resolved to null")
	}
}

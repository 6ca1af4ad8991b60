package syscalls

import (
	"bytes"
	"errors"
	"testing"

	"github.com/kestrelos/kestrel/internal/kernel/cap"
	"github.com/kestrelos/kestrel/internal/kernel/status"
)

func TestProcessMemoryRoundTrip(t *testing.T) {
	f := newFixture(t)
	_, th, base := f.newTarget(t)

	data := bytes.Repeat([]byte("deadbeef"), 512) // 4 KiB
	src := f.seed(t, 0x1000, data)
	actual := f.caller.Buffer(0x9000)

	if err := f.sys.ProcessWriteMemory(f.caller, th, base+100, src, uint64(len(data)), actual); err != nil {
		t.Fatalf("write memory: %v", err)
	}
	if n, _ := actual.ReadUint64(); n != uint64(len(data)) {
		t.Errorf("write actual = %d, want %d", n, len(data))
	}

	dst := f.caller.Buffer(0x5000)
	if err := f.sys.ProcessReadMemory(f.caller, th, base+100, dst, uint64(len(data)), actual); err != nil {
		t.Fatalf("read memory: %v", err)
	}
	if n, _ := actual.ReadUint64(); n != uint64(len(data)) {
		t.Errorf("read actual = %d, want %d", n, len(data))
	}

	got := make([]byte, len(data))
	if _, err := f.caller.UserIO().CopyIn(0x5000, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("memory round-trip mismatch")
	}
}

func TestProcessMemoryArgumentChecks(t *testing.T) {
	f := newFixture(t)
	_, th, base := f.newTarget(t)
	actual := f.caller.Buffer(0x9000)
	buf := f.caller.Buffer(0x1000)

	cases := []struct {
		name string
		run  func() error
	}{
		{"read null buffer", func() error {
			return f.sys.ProcessReadMemory(f.caller, th, base, f.caller.Buffer(0), 8, actual)
		}},
		{"read zero length", func() error {
			return f.sys.ProcessReadMemory(f.caller, th, base, buf, 0, actual)
		}},
		{"read over max", func() error {
			return f.sys.ProcessReadMemory(f.caller, th, base, buf, MaxDebugReadBlock+1, actual)
		}},
		{"write null buffer", func() error {
			return f.sys.ProcessWriteMemory(f.caller, th, base, f.caller.Buffer(0), 8, actual)
		}},
		{"write zero length", func() error {
			return f.sys.ProcessWriteMemory(f.caller, th, base, buf, 0, actual)
		}},
		{"write over max", func() error {
			return f.sys.ProcessWriteMemory(f.caller, th, base, buf, MaxDebugWriteBlock+1, actual)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.run(); !errors.Is(err, status.ErrInvalidArgs) {
				t.Errorf("got %v, want invalid args", err)
			}
		})
	}
}

func TestProcessMemoryNoMapping(t *testing.T) {
	f := newFixture(t)
	_, th, base := f.newTarget(t)
	actual := f.caller.Buffer(0x9000)
	buf := f.caller.Buffer(0x1000)

	err := f.sys.ProcessReadMemory(f.caller, th, base-0x1000, buf, 8, actual)
	if !errors.Is(err, status.ErrNoMemory) {
		t.Errorf("unmapped address: %v", err)
	}
}

func TestProcessMemoryBadState(t *testing.T) {
	f := newFixture(t)
	target, th, base := f.newTarget(t)
	target.DestroyAddressSpace()

	err := f.sys.ProcessReadMemory(f.caller, th, base, f.caller.Buffer(0x1000), 8, f.caller.Buffer(0x9000))
	if !errors.Is(err, status.ErrBadState) {
		t.Errorf("torn-down address space: %v", err)
	}
}

func TestProcessMemoryRights(t *testing.T) {
	f := newFixture(t)
	target, _, base := f.newTarget(t)

	// Reading through a handle that lacks the write right is denied:
	// inspection is a mutation-capable privilege.
	ro := f.caller.Handles().Add(target, cap.RightRead)
	err := f.sys.ProcessReadMemory(f.caller, ro, base, f.caller.Buffer(0x1000), 8, f.caller.Buffer(0x9000))
	if !errors.Is(err, status.ErrAccessDenied) {
		t.Errorf("read with read-only handle: %v", err)
	}
}

func TestProcessMemoryActualWriteBackFailure(t *testing.T) {
	f := newFixture(t)
	_, th, base := f.newTarget(t)

	src := f.seed(t, 0x1000, []byte("payload!"))
	// The out-parameter points past the end of user memory: the data copy
	// succeeds but the count write-back fails, which is itself an error.
	badActual := f.caller.Buffer(1<<20 - 2)
	err := f.sys.ProcessWriteMemory(f.caller, th, base, src, 8, badActual)
	if !errors.Is(err, status.ErrInvalidArgs) {
		t.Errorf("count write-back failure: %v", err)
	}

	// The data nevertheless arrived.
	dst := f.caller.Buffer(0x5000)
	if err := f.sys.ProcessReadMemory(f.caller, th, base, dst, 8, f.caller.Buffer(0x9000)); err != nil {
		t.Fatalf("read back: %v", err)
	}
	got := make([]byte, 8)
	f.caller.UserIO().CopyIn(0x5000, got)
	if string(got) != "payload!" {
		t.Errorf("read back %q", got)
	}
}

func TestProcessMemoryPartialOnFault(t *testing.T) {
	f := newFixture(t)
	_, th, base := f.newTarget(t)

	// Destination runs off the end of user memory: the copy faults and the
	// call reports invalid-args rather than a partial count.
	dst := f.caller.Buffer(1<<20 - 16)
	err := f.sys.ProcessReadMemory(f.caller, th, base, dst, 64, f.caller.Buffer(0x9000))
	if !errors.Is(err, status.ErrInvalidArgs) {
		t.Errorf("faulting destination: %v", err)
	}
}

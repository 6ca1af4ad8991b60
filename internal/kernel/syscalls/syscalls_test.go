package syscalls

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/kestrelos/kestrel/internal/kernel/cap"
	"github.com/kestrelos/kestrel/internal/kernel/console"
	"github.com/kestrelos/kestrel/internal/kernel/ktrace"
	"github.com/kestrelos/kestrel/internal/kernel/mem"
	"github.com/kestrelos/kestrel/internal/kernel/proc"
	"github.com/kestrelos/kestrel/internal/kernel/status"
	"github.com/kestrelos/kestrel/internal/kernel/usercopy"
)

// fixture is a minimal booted kernel: a console, a trace ring, and a
// calling process holding the root resource handle.
type fixture struct {
	sys      *Syscalls
	cons     *console.Console
	ring     *ktrace.Ring
	sink     *bytes.Buffer
	caller   *proc.Process
	resource cap.Handle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	sink := &bytes.Buffer{}
	cons := console.New(sink, nil)
	ring := ktrace.New(ktrace.RecordSize*64, nil)
	caller := proc.New(1, "debugger", 1<<20)
	res := cap.NewResource("root")
	rh := caller.Handles().Add(res, 0)

	return &fixture{
		sys:      New(cons, ring, nil),
		cons:     cons,
		ring:     ring,
		sink:     sink,
		caller:   caller,
		resource: rh,
	}
}

// newTarget creates a second process with one mapped region and installs a
// read+write handle for it in the caller's table.
func (f *fixture) newTarget(t *testing.T) (*proc.Process, cap.Handle, uint64) {
	t.Helper()

	target := proc.New(2, "target", 1<<16)
	vmo := mem.NewVMObject(16 * mem.PageSize)
	base := uint64(0x400000)
	if _, err := target.AddressSpace().Map(base, 8*mem.PageSize, vmo, 0); err != nil {
		t.Fatalf("map target region: %v", err)
	}
	h := f.caller.Handles().Add(target, cap.RightRead|cap.RightWrite)
	return target, h, base
}

// seed places data into the caller's user memory at addr.
func (f *fixture) seed(t *testing.T, addr uint64, data []byte) usercopy.Buffer {
	t.Helper()
	if _, err := f.caller.UserIO().CopyOut(addr, data); err != nil {
		t.Fatalf("seed caller memory: %v", err)
	}
	return f.caller.Buffer(addr)
}

func TestDebugReadTranslatesAndDrains(t *testing.T) {
	f := newFixture(t)
	f.cons.PushInput([]byte("ab\rc"))

	buf := f.caller.Buffer(0x100)
	moved, err := f.sys.DebugRead(context.Background(), f.caller, f.resource, buf, 16)
	if err != nil {
		t.Fatalf("DebugRead: %v", err)
	}
	if moved != 4 {
		t.Fatalf("moved = %d, want 4", moved)
	}

	got := make([]byte, 4)
	if _, err := f.caller.UserIO().CopyIn(0x100, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != "ab\nc" {
		t.Errorf("delivered %q, want %q", got, "ab\nc")
	}
}

func TestDebugReadZeroLength(t *testing.T) {
	f := newFixture(t)
	// No input queued: a zero-length read must not block.
	moved, err := f.sys.DebugRead(context.Background(), f.caller, f.resource, f.caller.Buffer(0x100), 0)
	if err != nil || moved != 0 {
		t.Errorf("zero-length read: moved=%d err=%v", moved, err)
	}
}

func TestDebugReadRequiresResource(t *testing.T) {
	f := newFixture(t)
	_, th, _ := f.newTarget(t)

	if _, err := f.sys.DebugRead(context.Background(), f.caller, th, f.caller.Buffer(0x100), 1); !errors.Is(err, status.ErrAccessDenied) {
		t.Errorf("process handle passed the resource gate: %v", err)
	}
	if _, err := f.sys.DebugRead(context.Background(), f.caller, 9999, f.caller.Buffer(0x100), 1); !errors.Is(err, status.ErrBadHandle) {
		t.Errorf("missing handle: %v", err)
	}
}

func TestDebugReadCopyFaultStopsEarly(t *testing.T) {
	f := newFixture(t)
	f.cons.PushInput([]byte("abcdef"))

	// Destination with room for two bytes before the end of user memory.
	end := f.caller.Buffer(1<<20 - 2)
	moved, err := f.sys.DebugRead(context.Background(), f.caller, f.resource, end, 6)
	if err != nil {
		t.Fatalf("DebugRead: %v", err)
	}
	if moved != 2 {
		t.Errorf("moved = %d, want 2 (stop at fault)", moved)
	}
}

func TestDebugWriteClampsSilently(t *testing.T) {
	f := newFixture(t)

	data := bytes.Repeat([]byte{'x'}, 300)
	buf := f.seed(t, 0x200, data)

	written, err := f.sys.DebugWrite(f.caller, buf, 300)
	if err != nil {
		t.Fatalf("DebugWrite: %v", err)
	}
	if written != MaxDebugWriteSize {
		t.Errorf("written = %d, want %d", written, MaxDebugWriteSize)
	}
	if f.sink.Len() != MaxDebugWriteSize {
		t.Errorf("sink received %d bytes, want %d", f.sink.Len(), MaxDebugWriteSize)
	}
}

func TestDebugWriteFaultFailsWhole(t *testing.T) {
	f := newFixture(t)

	// Source extends past the end of user memory: nothing may reach the sink.
	buf := f.caller.Buffer(1<<20 - 10)
	if _, err := f.sys.DebugWrite(f.caller, buf, 64); !errors.Is(err, status.ErrInvalidArgs) {
		t.Fatalf("expected invalid args, got %v", err)
	}
	if f.sink.Len() != 0 {
		t.Errorf("console partially written: %d bytes", f.sink.Len())
	}
}

func TestDebugSendCommandRejectsOversize(t *testing.T) {
	f := newFixture(t)

	buf := f.seed(t, 0x200, bytes.Repeat([]byte{'x'}, 300))
	err := f.sys.DebugSendCommand(f.caller, f.resource, buf, MaxDebugWriteSize+1)
	if !errors.Is(err, status.ErrInvalidArgs) {
		t.Errorf("oversize command accepted: %v", err)
	}
}

func TestDebugSendCommandDispatches(t *testing.T) {
	f := newFixture(t)

	var gotArgs []string
	f.cons.Register(console.Command{
		Name: "mark",
		Run: func(_ *console.Console, args []string) error {
			gotArgs = args
			return nil
		},
	})

	line := []byte("mark one two")
	buf := f.seed(t, 0x200, line)
	if err := f.sys.DebugSendCommand(f.caller, f.resource, buf, uint32(len(line))); err != nil {
		t.Fatalf("DebugSendCommand: %v", err)
	}
	if len(gotArgs) != 2 || gotArgs[0] != "one" || gotArgs[1] != "two" {
		t.Errorf("args = %v", gotArgs)
	}

	if err := f.sys.DebugSendCommand(f.caller, f.resource, buf, uint32(len(line))); err != nil {
		t.Fatalf("repeat dispatch: %v", err)
	}
}

func TestTransferHandleRejectsSelf(t *testing.T) {
	f := newFixture(t)

	selfHandle := f.caller.Handles().Add(f.caller, cap.RightRead|cap.RightWrite)
	res := cap.NewResource("token")
	h := f.caller.Handles().Add(res, cap.DefaultRights)

	if _, err := f.sys.DebugTransferHandle(f.caller, selfHandle, h); !errors.Is(err, status.ErrInvalidArgs) {
		t.Errorf("self-transfer: %v", err)
	}
	// Nothing moved.
	if _, err := f.caller.Handles().Get(h, 0); err != nil {
		t.Errorf("source handle lost on failed transfer: %v", err)
	}
}

func TestTransferHandleAtomicity(t *testing.T) {
	f := newFixture(t)
	target, th, _ := f.newTarget(t)

	// Failed transfer: invalid source handle leaves the destination
	// table unchanged.
	before := target.Handles().Len()
	if _, err := f.sys.DebugTransferHandle(f.caller, th, 9999); !errors.Is(err, status.ErrBadHandle) {
		t.Fatalf("invalid source handle: %v", err)
	}
	if target.Handles().Len() != before {
		t.Error("destination table changed on failed transfer")
	}

	// Successful transfer: source slot gone, destination resolves the
	// same object, reference count unchanged.
	res := cap.NewResource("token")
	h := f.caller.Handles().Add(res, cap.RightRead)
	refsBefore := res.Refs()

	nh, err := f.sys.DebugTransferHandle(f.caller, th, h)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := f.caller.Handles().Get(h, 0); !errors.Is(err, status.ErrBadHandle) {
		t.Errorf("source handle still resolvable: %v", err)
	}
	obj, err := target.Handles().Get(nh, cap.RightRead)
	if err != nil || obj != cap.Object(res) {
		t.Errorf("destination handle resolution: obj=%v err=%v", obj, err)
	}
	if res.Refs() != refsBefore {
		t.Errorf("refcount changed across transfer: %d -> %d", refsBefore, res.Refs())
	}
}

func TestTransferHandleRights(t *testing.T) {
	f := newFixture(t)

	readOnly := proc.New(3, "other", 4096)
	h := f.caller.Handles().Add(readOnly, cap.RightRead)
	res := cap.NewResource("token")
	src := f.caller.Handles().Add(res, cap.DefaultRights)

	if _, err := f.sys.DebugTransferHandle(f.caller, h, src); !errors.Is(err, status.ErrAccessDenied) {
		t.Errorf("read-only process handle allowed transfer: %v", err)
	}
}

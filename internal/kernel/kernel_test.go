package kernel

import (
	"bytes"
	"errors"
	"testing"

	"github.com/kestrelos/kestrel/internal/kernel/mem"
	"github.com/kestrelos/kestrel/internal/kernel/status"
)

func TestBootIdentity(t *testing.T) {
	k := Boot(Config{TraceBufferBytes: 4096, UserMemBytes: 1 << 16}, nil)

	if k.BootID() == "" {
		t.Error("empty boot id")
	}
	if k.Debugger() == nil || k.Debugger().Name() != "debugd" {
		t.Error("debugger process missing")
	}
	// The root resource handle passes the resource gate.
	if _, err := k.Syscalls.KtraceRead(k.Debugger(), k.ResourceHandle(), k.Debugger().Buffer(0x100), 0, 0); err != nil {
		t.Errorf("resource handle rejected: %v", err)
	}
}

func TestCreateAndDestroyProcess(t *testing.T) {
	k := Boot(Config{TraceBufferBytes: 4096, UserMemBytes: 1 << 16}, nil)

	p, h, err := k.CreateProcess("worker", 0x400000, 4*mem.PageSize)
	if err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}
	if _, err := k.Process(p.ID()); err != nil {
		t.Fatalf("registry lookup: %v", err)
	}

	// Memory reachable through the debugger's handle.
	src := k.Debugger().Buffer(0x100)
	k.Debugger().UserIO().CopyOut(0x100, []byte("boot"))
	actual := k.Debugger().Buffer(0x900)
	if err := k.Syscalls.ProcessWriteMemory(k.Debugger(), h, 0x400000, src, 4, actual); err != nil {
		t.Fatalf("write through handle: %v", err)
	}

	if err := k.DestroyProcess(p.ID()); err != nil {
		t.Fatalf("DestroyProcess: %v", err)
	}
	if _, err := k.Process(p.ID()); !errors.Is(err, status.ErrBadState) {
		t.Errorf("destroyed process still registered: %v", err)
	}
	// The handle survives, but the address space is gone.
	err = k.Syscalls.ProcessWriteMemory(k.Debugger(), h, 0x400000, src, 4, actual)
	if !errors.Is(err, status.ErrBadState) {
		t.Errorf("write after teardown: %v", err)
	}
}

func TestCreateProcessValidation(t *testing.T) {
	k := Boot(Config{TraceBufferBytes: 4096, UserMemBytes: 1 << 16}, nil)

	if _, _, err := k.CreateProcess("bad", 0x400000, 0); !errors.Is(err, status.ErrInvalidArgs) {
		t.Errorf("zero size: %v", err)
	}
	if _, _, err := k.CreateProcess("bad", 0x400001, mem.PageSize); !errors.Is(err, status.ErrInvalidArgs) {
		t.Errorf("unaligned base: %v", err)
	}
}

func TestDebuggerIsProtected(t *testing.T) {
	k := Boot(Config{TraceBufferBytes: 4096, UserMemBytes: 1 << 16}, nil)
	if err := k.DestroyProcess(k.Debugger().ID()); !errors.Is(err, status.ErrAccessDenied) {
		t.Errorf("debugger teardown allowed: %v", err)
	}
}

func TestBootConsoleCommands(t *testing.T) {
	var out bytes.Buffer
	k := Boot(Config{TraceBufferBytes: 4096, UserMemBytes: 1 << 16, ConsoleSink: &out}, nil)
	k.CreateProcess("worker", 0x400000, mem.PageSize)

	if err := k.Console.RunScript("ps"); err != nil {
		t.Fatalf("ps: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("worker")) {
		t.Errorf("ps output missing process: %q", out.String())
	}

	out.Reset()
	if err := k.Console.RunScript("ktrace"); err != nil {
		t.Fatalf("ktrace: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("running=true")) {
		t.Errorf("ktrace output: %q", out.String())
	}
}

func TestThreadCreation(t *testing.T) {
	k := Boot(Config{TraceBufferBytes: 4096, UserMemBytes: 1 << 16}, nil)
	p, _, err := k.CreateProcess("worker", 0x400000, mem.PageSize)
	if err != nil {
		t.Fatal(err)
	}

	th, h, err := k.CreateThread(p.ID(), "main")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if th.Owner() != p {
		t.Error("thread owner mismatch")
	}
	if _, err := k.Debugger().Handles().Get(h, 0); err != nil {
		t.Errorf("thread handle: %v", err)
	}

	if _, _, err := k.CreateThread(9999, "main"); !errors.Is(err, status.ErrBadState) {
		t.Errorf("thread in missing process: %v", err)
	}
}

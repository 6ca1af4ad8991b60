// Package kernel assembles the boot-lifetime kernel state: the console, the
// trace ring, the process registry, and the debug syscall layer, plus the
// in-kernel debugger identity that external tooling calls through.
package kernel

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrelos/kestrel/internal/kernel/cap"
	"github.com/kestrelos/kestrel/internal/kernel/console"
	"github.com/kestrelos/kestrel/internal/kernel/ktrace"
	"github.com/kestrelos/kestrel/internal/kernel/mem"
	"github.com/kestrelos/kestrel/internal/kernel/proc"
	"github.com/kestrelos/kestrel/internal/kernel/status"
	"github.com/kestrelos/kestrel/internal/kernel/syscalls"
)

// DefaultUserMemBytes is the per-process user memory window.
const DefaultUserMemBytes = 16 << 20

// Config holds boot parameters.
type Config struct {
	TraceBufferBytes uint32
	UserMemBytes     int
	ConsoleSink      io.Writer
}

// Kernel is one booted kernel instance.
type Kernel struct {
	bootID string
	start  time.Time

	Console  *console.Console
	Trace    *ktrace.Ring
	Syscalls *syscalls.Syscalls

	mu        sync.Mutex
	nextPID   uint32
	nextTID   uint32
	userMem   int
	processes map[uint32]*proc.Process

	debugger *proc.Process
	resource cap.Handle

	logger *zap.Logger
}

// Boot initializes a kernel instance. The debugger process is created
// holding the root resource handle; everything privileged flows through it.
func Boot(cfg Config, logger *zap.Logger) *Kernel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TraceBufferBytes == 0 {
		cfg.TraceBufferBytes = 1 << 20
	}
	if cfg.UserMemBytes == 0 {
		cfg.UserMemBytes = DefaultUserMemBytes
	}

	k := &Kernel{
		bootID:    uuid.NewString(),
		start:     time.Now(),
		Console:   console.New(cfg.ConsoleSink, logger.Named("console")),
		Trace:     ktrace.New(cfg.TraceBufferBytes, logger.Named("ktrace")),
		nextPID:   1,
		nextTID:   1,
		userMem:   cfg.UserMemBytes,
		processes: make(map[uint32]*proc.Process),
		logger:    logger,
	}
	k.Syscalls = syscalls.New(k.Console, k.Trace, logger.Named("syscalls"))

	k.debugger = k.allocProcess("debugd")
	res := cap.NewResource("root")
	k.resource = k.debugger.Handles().Add(res, 0)
	res.Decref() // table slot now owns the only reference

	k.registerCommands()
	k.logger.Info("kernel booted",
		zap.String("boot_id", k.bootID),
		zap.Uint32("trace_bytes", cfg.TraceBufferBytes))
	return k
}

func (k *Kernel) allocProcess(name string) *proc.Process {
	k.mu.Lock()
	defer k.mu.Unlock()
	pid := k.nextPID
	k.nextPID++
	p := proc.New(pid, name, k.userMem)
	k.processes[pid] = p
	return p
}

// BootID returns the per-boot instance identifier.
func (k *Kernel) BootID() string { return k.bootID }

// Uptime returns time since boot.
func (k *Kernel) Uptime() time.Duration { return time.Since(k.start) }

// Debugger returns the process external debug tooling runs as.
func (k *Kernel) Debugger() *proc.Process { return k.debugger }

// ResourceHandle returns the debugger's root resource handle.
func (k *Kernel) ResourceHandle() cap.Handle { return k.resource }

// Process looks up a live process by pid.
func (k *Kernel) Process(pid uint32) (*proc.Process, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.processes[pid]
	if !ok {
		return nil, status.ErrBadState
	}
	return p, nil
}

// Processes returns the live processes, unordered.
func (k *Kernel) Processes() []*proc.Process {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*proc.Process, 0, len(k.processes))
	for _, p := range k.processes {
		out = append(out, p)
	}
	return out
}

// CreateProcess creates a process with one region of memBytes mapped at
// base, and installs a read+write handle for it in the debugger's table.
func (k *Kernel) CreateProcess(name string, base, memBytes uint64) (*proc.Process, cap.Handle, error) {
	if memBytes == 0 || memBytes%mem.PageSize != 0 || base%mem.PageSize != 0 {
		return nil, cap.InvalidHandle, status.ErrInvalidArgs
	}

	p := k.allocProcess(name)
	vmo := mem.NewVMObject(memBytes)
	if _, err := p.AddressSpace().Map(base, memBytes, vmo, 0); err != nil {
		k.removeProcess(p.ID())
		p.Decref()
		return nil, cap.InvalidHandle, err
	}
	vmo.Decref() // region holds the surviving reference

	h := k.debugger.Handles().Add(p, cap.RightRead|cap.RightWrite)
	k.logger.Info("process created",
		zap.Uint32("pid", p.ID()),
		zap.String("name", name),
		zap.Uint64("mem_bytes", memBytes))
	return p, h, nil
}

// CreateThread creates a thread in the process pid and installs a
// read+write handle for it in the debugger's table.
func (k *Kernel) CreateThread(pid uint32, name string) (*proc.Thread, cap.Handle, error) {
	p, err := k.Process(pid)
	if err != nil {
		return nil, cap.InvalidHandle, err
	}

	k.mu.Lock()
	tid := k.nextTID
	k.nextTID++
	k.mu.Unlock()

	t := proc.NewThread(tid, name, p)
	h := k.debugger.Handles().Add(t, cap.RightRead|cap.RightWrite)
	return t, h, nil
}

// DestroyProcess tears down the process pid: its address space is destroyed
// first, so handles still referencing it observe bad-state, then the
// registry reference is dropped.
func (k *Kernel) DestroyProcess(pid uint32) error {
	p, err := k.Process(pid)
	if err != nil {
		return err
	}
	if p == k.debugger {
		return status.ErrAccessDenied
	}

	p.DestroyAddressSpace()
	k.removeProcess(pid)
	p.Decref()
	k.logger.Info("process destroyed", zap.Uint32("pid", pid))
	return nil
}

func (k *Kernel) removeProcess(pid uint32) {
	k.mu.Lock()
	delete(k.processes, pid)
	k.mu.Unlock()
}

// registerCommands installs the boot console command set.
func (k *Kernel) registerCommands() {
	k.Console.Register(console.Command{
		Name: "ps",
		Help: "list live processes",
		Run: func(c *console.Console, args []string) error {
			for _, p := range k.Processes() {
				fmt.Fprintf(c, "%4d  %s\n", p.ID(), p.Name())
			}
			return nil
		},
	})
	k.Console.Register(console.Command{
		Name: "uptime",
		Help: "time since boot",
		Run: func(c *console.Console, args []string) error {
			fmt.Fprintf(c, "%s (boot %s)\n", k.Uptime().Round(time.Millisecond), k.bootID)
			return nil
		},
	})
	k.Console.Register(console.Command{
		Name: "ktrace",
		Help: "trace ring occupancy",
		Run: func(c *console.Console, args []string) error {
			st := k.Trace.Stats()
			fmt.Fprintf(c, "used %d/%d bytes, %d probes, running=%v\n",
				st.Used, st.Size, st.Probes, st.Running)
			return nil
		},
	})
}

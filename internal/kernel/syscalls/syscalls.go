// Package syscalls implements the debug/introspection syscall layer: the
// boundary between a privileged caller and the kernel's console, capability
// tables, address spaces, thread state, and trace ring. Every entry point
// validates a capability, bounds the requested transfer, and reports
// partial results explicitly.
package syscalls

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelos/kestrel/internal/kernel/cap"
	"github.com/kestrelos/kestrel/internal/kernel/console"
	"github.com/kestrelos/kestrel/internal/kernel/ktrace"
	"github.com/kestrelos/kestrel/internal/kernel/proc"
	"github.com/kestrelos/kestrel/internal/kernel/status"
)

// Per-call transfer bounds. Oversize console writes clamp; everything else
// rejects (see the per-operation contracts).
const (
	MaxDebugWriteSize  = 256
	MaxDebugReadBlock  = 64 << 20
	MaxDebugWriteBlock = 64 << 20
	MaxThreadStateSize = 4096
)

// Observer receives one measurement per completed syscall.
type Observer interface {
	ObserveSyscall(op string, err error, elapsed time.Duration)
}

// Syscalls is the debug syscall layer. One instance serves all processes.
type Syscalls struct {
	console *console.Console
	trace   *ktrace.Ring
	logger  *zap.Logger
	obs     Observer
}

// New creates the syscall layer over the boot console and trace ring.
func New(cons *console.Console, trace *ktrace.Ring, logger *zap.Logger) *Syscalls {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syscalls{console: cons, trace: trace, logger: logger}
}

// Instrument attaches a syscall observer.
func (s *Syscalls) Instrument(obs Observer) { s.obs = obs }

func (s *Syscalls) observe(op string, start time.Time, err error) {
	if s.obs != nil {
		s.obs.ObserveSyscall(op, err, time.Since(start))
	}
}

// validateResource checks that h, in the calling process's table, refers to
// the debug resource token.
func (s *Syscalls) validateResource(up *proc.Process, h cap.Handle) error {
	return cap.ValidateResource(up.Handles(), h)
}

// getProcess resolves h to a process with the given rights. A handle to a
// different object type is a bad handle, same as a missing one.
func getProcess(up *proc.Process, h cap.Handle, rights cap.Rights) (*proc.Process, error) {
	obj, err := up.Handles().Get(h, rights)
	if err != nil {
		return nil, err
	}
	p, ok := obj.(*proc.Process)
	if !ok {
		return nil, status.ErrBadHandle
	}
	return p, nil
}

// getThread resolves h to a thread with the given rights.
func getThread(up *proc.Process, h cap.Handle, rights cap.Rights) (*proc.Thread, error) {
	obj, err := up.Handles().Get(h, rights)
	if err != nil {
		return nil, err
	}
	t, ok := obj.(*proc.Thread)
	if !ok {
		return nil, status.ErrBadHandle
	}
	return t, nil
}

// copyFault converts a user copy failure into the syscall-level status. The
// original cause rides along in the message.
func copyFault(err error) error {
	return fmt.Errorf("user copy (%v): %w", err, status.ErrInvalidArgs)
}

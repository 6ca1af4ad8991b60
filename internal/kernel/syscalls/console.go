package syscalls

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelos/kestrel/internal/kernel/cap"
	"github.com/kestrelos/kestrel/internal/kernel/proc"
	"github.com/kestrelos/kestrel/internal/kernel/status"
	"github.com/kestrelos/kestrel/internal/kernel/usercopy"
)

// DebugRead pulls console input into the caller's buffer, one character at
// a time, translating carriage returns to newlines. It blocks for the first
// character and then drains whatever is immediately available, stopping
// early if a copy to user memory fails. The result is the byte count
// actually delivered, which may be short or zero. ctx carries the blocked
// thread's termination.
func (s *Syscalls) DebugRead(ctx context.Context, up *proc.Process, h cap.Handle, buf usercopy.Buffer, n uint32) (moved uint32, err error) {
	start := time.Now()
	defer func() { s.observe("debug_read", start, err) }()

	if err = s.validateResource(up, h); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	for moved < n {
		var c byte
		if moved == 0 {
			c, err = s.console.Getchar(ctx)
			if err != nil {
				return 0, err
			}
		} else {
			var ok bool
			c, ok = s.console.TryGetchar()
			if !ok {
				break
			}
		}
		if c == '\r' {
			c = '\n'
		}
		if buf.WriteByteAt(uint64(moved), c) != nil {
			break
		}
		moved++
	}
	return moved, nil
}

// DebugWrite copies up to MaxDebugWriteSize bytes from the caller and emits
// them to the console sink. An oversize length is silently clamped, so the
// reported count is the clamped length, not the requested one. The whole
// call fails if the bulk copy-in cannot complete; the console is never
// partially written.
func (s *Syscalls) DebugWrite(up *proc.Process, buf usercopy.Buffer, n uint32) (written uint32, err error) {
	start := time.Now()
	defer func() { s.observe("debug_write", start, err) }()

	if n > MaxDebugWriteSize {
		n = MaxDebugWriteSize
	}

	scratch := make([]byte, n)
	if cerr := buf.ReadBytes(scratch); cerr != nil {
		return 0, copyFault(cerr)
	}
	for _, b := range scratch {
		s.console.Putc(b)
	}
	return n, nil
}

// DebugSendCommand dispatches one line to the kernel command interpreter.
// Unlike DebugWrite, an oversize length is rejected outright. This is an
// administrative backdoor and requires the resource capability.
func (s *Syscalls) DebugSendCommand(up *proc.Process, h cap.Handle, buf usercopy.Buffer, n uint32) (err error) {
	start := time.Now()
	defer func() { s.observe("debug_send_command", start, err) }()

	if err = s.validateResource(up, h); err != nil {
		return err
	}
	if n > MaxDebugWriteSize {
		return status.ErrInvalidArgs
	}

	scratch := make([]byte, n)
	if cerr := buf.ReadBytes(scratch); cerr != nil {
		return copyFault(cerr)
	}

	line := string(scratch) + "\n"
	s.logger.Debug("console command dispatch", zap.Uint32("len", n))
	return s.console.RunScript(line)
}

package syscalls

import (
	"errors"
	"time"

	"github.com/kestrelos/kestrel/internal/kernel/cap"
	"github.com/kestrelos/kestrel/internal/kernel/proc"
	"github.com/kestrelos/kestrel/internal/kernel/status"
	"github.com/kestrelos/kestrel/internal/kernel/usercopy"
)

// ThreadReadState serializes one of the target thread's state blobs into
// the caller's buffer. inoutLen holds the caller's buffer length on entry;
// the true required size is written back whenever the result is success or
// buffer-too-small, so a zero-length call probes the needed size. For any
// other error the length is left untouched. The layer does not freeze the
// thread; a concurrently running target yields a racing snapshot.
func (s *Syscalls) ThreadReadState(up *proc.Process, h cap.Handle, kind proc.StateKind, buf usercopy.Buffer, inoutLen usercopy.Buffer) (err error) {
	start := time.Now()
	defer func() { s.observe("thread_read_state", start, err) }()

	thread, err := getThread(up, h, cap.RightRead)
	if err != nil {
		return err
	}

	bufLen, cerr := inoutLen.ReadUint32()
	if cerr != nil {
		return copyFault(cerr)
	}
	if bufLen > MaxThreadStateSize {
		return status.ErrInvalidArgs
	}

	scratch := make([]byte, bufLen)
	actual, serr := thread.ReadState(kind, scratch)

	if serr == nil || errors.Is(serr, status.ErrBufferTooSmall) {
		if inoutLen.WriteUint32(actual) != nil {
			return status.ErrInvalidArgs
		}
	}
	if serr != nil {
		return serr
	}

	if buf.WriteBytes(scratch[:actual]) != nil {
		return status.ErrInvalidArgs
	}
	return nil
}

// ThreadWriteState applies the caller's buffer as one of the target
// thread's state blobs. Privileged-bit filtering is the thread object's
// responsibility.
func (s *Syscalls) ThreadWriteState(up *proc.Process, h cap.Handle, kind proc.StateKind, buf usercopy.Buffer, n uint32) (err error) {
	start := time.Now()
	defer func() { s.observe("thread_write_state", start, err) }()

	thread, err := getThread(up, h, cap.RightWrite)
	if err != nil {
		return err
	}
	if n > MaxThreadStateSize {
		return status.ErrInvalidArgs
	}

	scratch := make([]byte, n)
	if cerr := buf.ReadBytes(scratch); cerr != nil {
		return copyFault(cerr)
	}
	return thread.WriteState(kind, scratch)
}

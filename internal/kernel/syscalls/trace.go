package syscalls

import (
	"bytes"
	"time"

	"github.com/kestrelos/kestrel/internal/kernel/cap"
	"github.com/kestrelos/kestrel/internal/kernel/ktrace"
	"github.com/kestrelos/kestrel/internal/kernel/proc"
	"github.com/kestrelos/kestrel/internal/kernel/status"
	"github.com/kestrelos/kestrel/internal/kernel/usercopy"
)

// KtraceRead copies up to n bytes of the trace ring starting at off into
// the caller's buffer and returns the byte count. Reads past the written
// extent return zero. The count is the return value itself, not an
// out-parameter; the error slot carries the negative encodings.
func (s *Syscalls) KtraceRead(up *proc.Process, h cap.Handle, buf usercopy.Buffer, off, n uint32) (moved uint32, err error) {
	start := time.Now()
	defer func() { s.observe("ktrace_read", start, err) }()

	if err = s.validateResource(up, h); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	data := s.trace.ReadAt(off, n)
	if len(data) == 0 {
		return 0, nil
	}
	if cerr := buf.WriteBytes(data); cerr != nil {
		return 0, copyFault(cerr)
	}
	return uint32(len(data)), nil
}

// KtraceControl executes a trace control action. ActionNewProbe copies a
// bounded NUL-terminated probe name from payload before dispatching and
// returns the assigned probe ID; every other action passes through with a
// zero result.
func (s *Syscalls) KtraceControl(up *proc.Process, h cap.Handle, action, options uint32, payload usercopy.Buffer) (result uint32, err error) {
	start := time.Now()
	defer func() { s.observe("ktrace_control", start, err) }()

	if err = s.validateResource(up, h); err != nil {
		return 0, err
	}

	var name string
	if action == ktrace.ActionNewProbe {
		raw := make([]byte, ktrace.MaxNameLen-1)
		if cerr := payload.ReadBytes(raw); cerr != nil {
			return 0, copyFault(cerr)
		}
		if i := bytes.IndexByte(raw, 0); i >= 0 {
			raw = raw[:i]
		}
		name = string(raw)
	}
	return s.trace.Control(action, options, name)
}

// KtraceWrite appends a two-argument record tagged with eventID. IDs above
// the tag format's range are rejected; a ring with no space (or no tracing
// active) declines as unavailable, since the ring does not distinguish the
// cause.
func (s *Syscalls) KtraceWrite(up *proc.Process, h cap.Handle, eventID, arg0, arg1 uint32) (err error) {
	start := time.Now()
	defer func() { s.observe("ktrace_write", start, err) }()

	if err = s.validateResource(up, h); err != nil {
		return err
	}
	if eventID > ktrace.MaxEventID {
		return status.ErrInvalidArgs
	}
	return s.trace.Write(eventID, arg0, arg1)
}

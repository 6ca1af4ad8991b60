package syscalls

import (
	"time"

	"github.com/kestrelos/kestrel/internal/kernel/cap"
	"github.com/kestrelos/kestrel/internal/kernel/mem"
	"github.com/kestrelos/kestrel/internal/kernel/proc"
	"github.com/kestrelos/kestrel/internal/kernel/status"
	"github.com/kestrelos/kestrel/internal/kernel/usercopy"
)

// resolveMapping walks the target process's address space to the VM object
// backing vaddr and the object-relative offset of vaddr. The walk tolerates
// the target tearing down its space mid-call: that surfaces as bad-state.
func resolveMapping(up *proc.Process, h cap.Handle, rights cap.Rights, vaddr uint64) (*mem.VMObject, uint64, error) {
	target, err := getProcess(up, h, rights)
	if err != nil {
		return nil, 0, err
	}

	aspace := target.AddressSpace()
	if aspace == nil {
		return nil, 0, status.ErrBadState
	}

	region := aspace.FindRegion(vaddr)
	if region == nil {
		return nil, 0, status.ErrNoMemory
	}
	vmo := region.VMO()
	if vmo == nil {
		return nil, 0, status.ErrNoMemory
	}

	return vmo, vaddr - region.Base() + region.ObjectOffset(), nil
}

// ProcessReadMemory reads up to n bytes from the target process's memory at
// vaddr into the caller's buffer. Inspecting another process is treated as
// a mutation-capable privilege, so the handle needs both read and write
// rights. The count actually moved is written to actual; if that write-back
// fails the call reports invalid-args even though the data transfer
// succeeded.
func (s *Syscalls) ProcessReadMemory(up *proc.Process, h cap.Handle, vaddr uint64, buf usercopy.Buffer, n uint64, actual usercopy.Buffer) (err error) {
	start := time.Now()
	defer func() { s.observe("process_read_memory", start, err) }()

	if buf.IsNull() {
		return status.ErrInvalidArgs
	}
	if n == 0 || n > MaxDebugReadBlock {
		return status.ErrInvalidArgs
	}

	vmo, offset, err := resolveMapping(up, h, cap.RightRead|cap.RightWrite, vaddr)
	if err != nil {
		return err
	}

	moved, cerr := vmo.ReadUser(buf, offset, n)
	if cerr != nil {
		return copyFault(cerr)
	}
	if actual.WriteUint64(moved) != nil {
		return status.ErrInvalidArgs
	}
	return nil
}

// ProcessWriteMemory writes up to n bytes from the caller's buffer into the
// target process's memory at vaddr. Same out-parameter convention as
// ProcessReadMemory.
func (s *Syscalls) ProcessWriteMemory(up *proc.Process, h cap.Handle, vaddr uint64, buf usercopy.Buffer, n uint64, actual usercopy.Buffer) (err error) {
	start := time.Now()
	defer func() { s.observe("process_write_memory", start, err) }()

	if buf.IsNull() {
		return status.ErrInvalidArgs
	}
	if n == 0 || n > MaxDebugWriteBlock {
		return status.ErrInvalidArgs
	}

	vmo, offset, err := resolveMapping(up, h, cap.RightWrite, vaddr)
	if err != nil {
		return err
	}

	moved, cerr := vmo.WriteUser(buf, offset, n)
	if cerr != nil {
		return copyFault(cerr)
	}
	if actual.WriteUint64(moved) != nil {
		return status.ErrInvalidArgs
	}
	return nil
}

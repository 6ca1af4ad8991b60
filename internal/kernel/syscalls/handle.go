package syscalls

import (
	"time"

	"go.uber.org/zap"

	"github.com/kestrelos/kestrel/internal/kernel/cap"
	"github.com/kestrelos/kestrel/internal/kernel/proc"
	"github.com/kestrelos/kestrel/internal/kernel/status"
)

// DebugTransferHandle moves srcHandle from the calling process's table into
// the destination process's table, returning the newly assigned handle
// value, which is meaningful only in the destination's namespace.
//
// The operation is atomic: if the source handle cannot be removed, nothing
// is transferred. Transfer moves ownership of the table slot, not of the
// object, so the underlying reference count is unchanged. Self-transfer is
// rejected as invalid-args.
func (s *Syscalls) DebugTransferHandle(up *proc.Process, procHandle, srcHandle cap.Handle) (nh cap.Handle, err error) {
	start := time.Now()
	defer func() { s.observe("debug_transfer_handle", start, err) }()

	target, err := getProcess(up, procHandle, cap.RightRead|cap.RightWrite)
	if err != nil {
		return cap.InvalidHandle, err
	}
	if target == up {
		return cap.InvalidHandle, status.ErrInvalidArgs
	}

	obj, rights, ok := up.Handles().Remove(srcHandle)
	if !ok {
		return cap.InvalidHandle, status.ErrBadHandle
	}

	nh = target.Handles().Attach(obj, rights)
	s.logger.Debug("handle transferred",
		zap.Uint32("src_process", up.ID()),
		zap.Uint32("dst_process", target.ID()),
		zap.Uint32("new_handle", uint32(nh)))
	return nh, nil
}

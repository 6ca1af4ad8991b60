package proc

import (
	"sync"

	"github.com/kestrelos/kestrel/internal/kernel/cap"
	"github.com/kestrelos/kestrel/internal/kernel/status"
)

// StateKind selects which architectural state blob a thread operation
// targets.
type StateKind uint32

const (
	// StateGeneralRegs is the general-purpose register set.
	StateGeneralRegs StateKind = iota
	// StateFPRegs is the floating-point register set.
	StateFPRegs
)

// Fixed per-kind blob sizes. The formats are opaque to the debug layer; it
// only moves bytes.
const (
	GeneralRegsSize = 272
	FPRegsSize      = 512
)

func stateSize(kind StateKind) (int, bool) {
	switch kind {
	case StateGeneralRegs:
		return GeneralRegsSize, true
	case StateFPRegs:
		return FPRegsSize, true
	default:
		return 0, false
	}
}

// Thread owns per-kind architectural state storage, reachable only while
// the owning process is alive. Serialization does not freeze the thread:
// if it is concurrently running, the caller sees a racing snapshot.
type Thread struct {
	cap.RefCounted

	id    uint32
	name  string
	owner *Process

	mu    sync.Mutex
	state map[StateKind][]byte
}

// NewThread creates a thread belonging to owner, with zeroed state blobs.
func NewThread(id uint32, name string, owner *Process) *Thread {
	t := &Thread{
		id:    id,
		name:  name,
		owner: owner,
		state: map[StateKind][]byte{
			StateGeneralRegs: make([]byte, GeneralRegsSize),
			StateFPRegs:      make([]byte, FPRegsSize),
		},
	}
	t.InitRefs(nil)
	return t
}

// TypeName implements cap.Object.
func (t *Thread) TypeName() string { return "thread" }

// ID returns the thread identifier.
func (t *Thread) ID() uint32 { return t.id }

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// Owner returns the owning process.
func (t *Thread) Owner() *Process { return t.owner }

// ReadState serializes the state blob for kind into buf. The true required
// size is always returned; if buf is too small the status is
// ErrBufferTooSmall and nothing is copied.
func (t *Thread) ReadState(kind StateKind, buf []byte) (uint32, error) {
	size, ok := stateSize(kind)
	if !ok {
		return 0, status.ErrInvalidArgs
	}
	if len(buf) < size {
		return uint32(size), status.ErrBufferTooSmall
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	copy(buf, t.state[kind])
	return uint32(size), nil
}

// WriteState applies data as the state blob for kind. The length must match
// the kind's size exactly. Filtering of privileged bits is this object's
// responsibility; the current formats carry none.
func (t *Thread) WriteState(kind StateKind, data []byte) error {
	size, ok := stateSize(kind)
	if !ok {
		return status.ErrInvalidArgs
	}
	if len(data) != size {
		return status.ErrInvalidArgs
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	copy(t.state[kind], data)
	return nil
}

// Package proc implements the process and thread objects the debug layer
// introspects. Both are capability objects: reachable only through a handle
// with sufficient rights.
package proc

import (
	"sync"

	"github.com/kestrelos/kestrel/internal/kernel/cap"
	"github.com/kestrelos/kestrel/internal/kernel/mem"
	"github.com/kestrelos/kestrel/internal/kernel/usercopy"
)

// Process owns a capability table, an address space, and a user memory
// window through which its syscall buffer arguments are resolved.
type Process struct {
	cap.RefCounted

	id      uint32
	name    string
	handles *cap.Table

	mu     sync.Mutex
	aspace *mem.AddressSpace
	userIO usercopy.IO
}

// New creates a process with an empty handle table and address space. The
// user memory window backs the process's own syscall buffers and is sized
// independently of its mapped regions.
func New(id uint32, name string, userMemSize int) *Process {
	p := &Process{
		id:      id,
		name:    name,
		handles: cap.NewTable(),
		aspace:  mem.NewAddressSpace(),
		userIO:  usercopy.NewBytesIO(userMemSize),
	}
	p.InitRefs(p.teardown)
	return p
}

// TypeName implements cap.Object.
func (p *Process) TypeName() string { return "process" }

// ID returns the process identifier.
func (p *Process) ID() uint32 { return p.id }

// Name returns the process name.
func (p *Process) Name() string { return p.name }

// Handles returns the process's capability table.
func (p *Process) Handles() *cap.Table { return p.handles }

// UserIO returns the process's user memory window.
func (p *Process) UserIO() usercopy.IO {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userIO
}

// AddressSpace returns the process's address space, or nil once it has been
// torn down. Callers treat nil as bad-state.
func (p *Process) AddressSpace() *mem.AddressSpace {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aspace
}

// DestroyAddressSpace detaches and destroys the address space. Concurrent
// memory operations observe either the live space or nil, never a
// half-destroyed one.
func (p *Process) DestroyAddressSpace() {
	p.mu.Lock()
	as := p.aspace
	p.aspace = nil
	p.mu.Unlock()

	if as != nil {
		as.Destroy()
	}
}

func (p *Process) teardown() {
	p.DestroyAddressSpace()
	p.handles.Destroy()
}

// Buffer resolves a user address in this process's window to a Buffer. An
// address of zero is the null pointer.
func (p *Process) Buffer(addr uint64) usercopy.Buffer {
	if addr == 0 {
		return usercopy.Buffer{}
	}
	return usercopy.Make(p.UserIO(), addr)
}

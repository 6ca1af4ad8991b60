package cap

import (
	"sync"

	"github.com/kestrelos/kestrel/internal/kernel/status"
)

// Handle is a process-scoped opaque reference to a kernel object. Handle
// values are meaningful only within the table that issued them.
type Handle uint32

// InvalidHandle is never issued by a table.
const InvalidHandle Handle = 0

// Table maps handle values to objects plus a rights mask. Each process owns
// exactly one table; all methods are safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	next    Handle
	entries map[Handle]entry
}

type entry struct {
	obj    Object
	rights Rights
}

// NewTable creates an empty handle table.
func NewTable() *Table {
	return &Table{
		next:    1,
		entries: make(map[Handle]entry),
	}
}

// Add installs obj under a fresh handle value, taking a new reference.
func (t *Table) Add(obj Object, rights Rights) Handle {
	obj.Incref()
	return t.Attach(obj, rights)
}

// Attach installs obj under a fresh handle value without touching its
// reference count. The caller donates the reference it holds; this is the
// transfer path, which moves slot ownership rather than object ownership.
func (t *Table) Attach(obj Object, rights Rights) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.next
	t.next++
	t.entries[h] = entry{obj: obj, rights: rights}
	return h
}

// Get resolves h to its object, confirming the requested rights. It
// distinguishes a missing handle (ErrBadHandle) from one whose rights are
// insufficient (ErrAccessDenied). The returned reference is borrowed: it is
// kept live by the table slot for the duration of the syscall.
func (t *Table) Get(h Handle, want Rights) (Object, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok {
		return nil, status.ErrBadHandle
	}
	if !e.rights.Has(want) {
		return nil, status.ErrAccessDenied
	}
	return e.obj, nil
}

// Remove detaches the slot for h and returns the object with its rights.
// The object's reference count is not decremented: the caller now owns the
// reference the slot held. Returns false if h is not present, in which case
// nothing changed.
func (t *Table) Remove(h Handle) (Object, Rights, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok {
		return nil, 0, false
	}
	delete(t.entries, h)
	return e.obj, e.rights, true
}

// Close removes h and releases the slot's reference.
func (t *Table) Close(h Handle) error {
	obj, _, ok := t.Remove(h)
	if !ok {
		return status.ErrBadHandle
	}
	obj.Decref()
	return nil
}

// Destroy releases every slot. Used at process teardown.
func (t *Table) Destroy() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[Handle]entry)
	t.mu.Unlock()

	for _, e := range entries {
		e.obj.Decref()
	}
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// ValidateResource confirms that h refers to the debug resource token. This
// is the coarse global gate in front of console, trace, and thread-state
// access, not an object-specific ACL.
func ValidateResource(t *Table, h Handle) error {
	obj, err := t.Get(h, 0)
	if err != nil {
		return err
	}
	if _, ok := obj.(*Resource); !ok {
		return status.ErrAccessDenied
	}
	return nil
}

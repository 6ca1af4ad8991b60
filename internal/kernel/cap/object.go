package cap

import "sync/atomic"

// Object is a reference-counted kernel entity reachable through a handle.
// The variant set is closed: Process, Thread, and the Resource token.
type Object interface {
	Incref()
	Decref()
	TypeName() string
}

// RefCounted provides the shared reference-count implementation. Embedders
// start with a count of one; the optional destroy hook runs when the last
// reference drops.
type RefCounted struct {
	count   atomic.Int64
	destroy func()
}

// InitRefs sets the initial reference and the destroy hook.
func (r *RefCounted) InitRefs(destroy func()) {
	r.count.Store(1)
	r.destroy = destroy
}

// Incref adds a reference.
func (r *RefCounted) Incref() {
	if r.count.Add(1) <= 1 {
		panic("cap: incref on released object")
	}
}

// Decref drops a reference, destroying the object at zero.
func (r *RefCounted) Decref() {
	n := r.count.Add(-1)
	if n < 0 {
		panic("cap: decref below zero")
	}
	if n == 0 && r.destroy != nil {
		r.destroy()
	}
}

// Refs returns the current reference count. Test and diagnostic use only.
func (r *RefCounted) Refs() int64 { return r.count.Load() }

// Resource is the unforgeable token gating privileged debug and trace
// operations. It carries no state beyond its identity.
type Resource struct {
	RefCounted
	name string
}

// NewResource creates a resource token.
func NewResource(name string) *Resource {
	r := &Resource{name: name}
	r.InitRefs(nil)
	return r
}

// Name returns the token's boot-assigned name.
func (r *Resource) Name() string { return r.name }

// TypeName implements Object.
func (r *Resource) TypeName() string { return "resource" }

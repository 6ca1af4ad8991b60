// Package mem implements the virtual memory collaborators the debug layer
// consumes: VM objects owning backing pages, and address spaces mapping
// regions onto them.
package mem

import (
	"sync"

	"github.com/kestrelos/kestrel/internal/kernel/cap"
	"github.com/kestrelos/kestrel/internal/kernel/usercopy"
)

// PageSize is the backing-page granularity.
const PageSize = 4096

// VMObject owns physical backing pages for one or more regions, possibly
// across processes. Pages are allocated lazily; unallocated ranges read as
// zero. Bulk copies to and from user memory are fault-safe: a fault
// terminates the transfer and the count actually moved is reported.
type VMObject struct {
	cap.RefCounted

	mu    sync.RWMutex
	size  uint64
	pages map[uint64][]byte // page index -> page
}

// NewVMObject creates a VM object of the given byte size.
func NewVMObject(size uint64) *VMObject {
	v := &VMObject{
		size:  size,
		pages: make(map[uint64][]byte),
	}
	v.InitRefs(nil)
	return v
}

// TypeName implements cap.Object.
func (v *VMObject) TypeName() string { return "vm_object" }

// Size returns the object's byte size.
func (v *VMObject) Size() uint64 { return v.size }

// page returns the backing page for index idx, allocating it if needed.
// Caller holds mu.
func (v *VMObject) page(idx uint64) []byte {
	p, ok := v.pages[idx]
	if !ok {
		p = make([]byte, PageSize)
		v.pages[idx] = p
	}
	return p
}

// clamp bounds a transfer of n bytes at offset to the object's extent.
func (v *VMObject) clamp(offset, n uint64) uint64 {
	if offset >= v.size {
		return 0
	}
	if avail := v.size - offset; n > avail {
		return avail
	}
	return n
}

// ReadUser copies up to n bytes starting at offset into the user buffer,
// returning the count actually moved. A user-side fault stops the transfer;
// the underlying error is propagated alongside the partial count.
func (v *VMObject) ReadUser(buf usercopy.Buffer, offset, n uint64) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n = v.clamp(offset, n)
	var moved uint64
	for moved < n {
		pos := offset + moved
		pageOff := pos % PageSize
		chunk := PageSize - pageOff
		if rest := n - moved; chunk > rest {
			chunk = rest
		}
		p := v.page(pos / PageSize)
		if err := buf.Offset(moved).WriteBytes(p[pageOff : pageOff+chunk]); err != nil {
			return moved, err
		}
		moved += chunk
	}
	return moved, nil
}

// WriteUser copies up to n bytes from the user buffer into the object
// starting at offset, returning the count actually moved.
func (v *VMObject) WriteUser(buf usercopy.Buffer, offset, n uint64) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n = v.clamp(offset, n)
	var moved uint64
	for moved < n {
		pos := offset + moved
		pageOff := pos % PageSize
		chunk := PageSize - pageOff
		if rest := n - moved; chunk > rest {
			chunk = rest
		}
		p := v.page(pos / PageSize)
		if err := buf.Offset(moved).ReadBytes(p[pageOff : pageOff+chunk]); err != nil {
			return moved, err
		}
		moved += chunk
	}
	return moved, nil
}

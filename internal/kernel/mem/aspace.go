package mem

import (
	"sort"
	"sync"

	"github.com/kestrelos/kestrel/internal/kernel/status"
)

// Region maps the byte range [base, base+length) of an address space onto a
// VM object starting at objectOffset. Regions are immutable once mapped.
type Region struct {
	base         uint64
	length       uint64
	vmo          *VMObject
	objectOffset uint64
}

// Base returns the region's first address.
func (r *Region) Base() uint64 { return r.base }

// Length returns the region's byte length.
func (r *Region) Length() uint64 { return r.length }

// VMO returns the region's backing object, or nil if it has none.
func (r *Region) VMO() *VMObject { return r.vmo }

// ObjectOffset returns the VM-object offset the region's base maps to.
func (r *Region) ObjectOffset() uint64 { return r.objectOffset }

func (r *Region) contains(vaddr uint64) bool {
	return vaddr >= r.base && vaddr-r.base < r.length
}

// AddressSpace is a process's virtual memory layout: an ordered,
// non-overlapping collection of regions keyed by base address. It is owned
// exclusively by its process and tolerates concurrent lookup and teardown.
type AddressSpace struct {
	mu      sync.RWMutex
	regions []*Region // sorted by base
}

// NewAddressSpace creates an empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{}
}

// Map installs a region over [base, base+length) backed by vmo at
// objectOffset. The range must be nonempty, must not wrap, and must be
// disjoint from every existing region. The region takes a reference on vmo.
func (as *AddressSpace) Map(base, length uint64, vmo *VMObject, objectOffset uint64) (*Region, error) {
	if length == 0 || base+length < base || vmo == nil {
		return nil, status.ErrInvalidArgs
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	i := sort.Search(len(as.regions), func(i int) bool {
		return as.regions[i].base+as.regions[i].length > base
	})
	if i < len(as.regions) && as.regions[i].base < base+length {
		return nil, status.ErrInvalidArgs
	}

	vmo.Incref()
	r := &Region{base: base, length: length, vmo: vmo, objectOffset: objectOffset}
	as.regions = append(as.regions, nil)
	copy(as.regions[i+1:], as.regions[i:])
	as.regions[i] = r
	return r, nil
}

// Unmap removes the region starting exactly at base.
func (as *AddressSpace) Unmap(base uint64) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	for i, r := range as.regions {
		if r.base == base {
			as.regions = append(as.regions[:i], as.regions[i+1:]...)
			r.vmo.Decref()
			return nil
		}
	}
	return status.ErrNoMemory
}

// FindRegion returns the region containing vaddr, or nil if no mapping
// covers it.
func (as *AddressSpace) FindRegion(vaddr uint64) *Region {
	as.mu.RLock()
	defer as.mu.RUnlock()

	i := sort.Search(len(as.regions), func(i int) bool {
		return as.regions[i].base+as.regions[i].length > vaddr
	})
	if i < len(as.regions) && as.regions[i].contains(vaddr) {
		return as.regions[i]
	}
	return nil
}

// Destroy unmaps every region, releasing their VM object references. The
// owning process detaches the space before calling this, so in-flight
// lookups resolve against either the live space or none at all.
func (as *AddressSpace) Destroy() {
	as.mu.Lock()
	regions := as.regions
	as.regions = nil
	as.mu.Unlock()

	for _, r := range regions {
		r.vmo.Decref()
	}
}

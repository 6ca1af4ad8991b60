package cap

// Rights is the bitmask limiting what operations a handle permits on its
// referent object.
type Rights uint32

const (
	// RightRead permits observing the object's state.
	RightRead Rights = 1 << iota
	// RightWrite permits mutating the object's state.
	RightWrite
	// RightDuplicate permits duplicating the handle.
	RightDuplicate
	// RightTransfer permits moving the handle to another process.
	RightTransfer
)

// DefaultRights is the mask granted to freshly created handles.
const DefaultRights = RightRead | RightWrite | RightDuplicate | RightTransfer

// Has reports whether every right in want is present.
func (r Rights) Has(want Rights) bool { return r&want == want }

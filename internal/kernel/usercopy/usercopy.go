// Package usercopy provides bounded, fault-safe byte transfer across the
// user/kernel boundary. User memory is modeled as an IO implementation; a
// fault during a transfer terminates it and reports the count actually
// moved, never a partial-then-crash.
package usercopy

import (
	"encoding/binary"
	"errors"
	"sync"
)

// ErrFault reports an invalid, unmapped, or out-of-range user address.
var ErrFault = errors.New("user memory fault")

// IO is a user address space from the kernel's point of view.
type IO interface {
	// CopyOut copies src into user memory at addr, returning the number of
	// bytes moved. A short count is always accompanied by a non-nil error.
	CopyOut(addr uint64, src []byte) (int, error)

	// CopyIn copies len(dst) bytes from user memory at addr into dst,
	// returning the number of bytes moved. A short count is always
	// accompanied by a non-nil error.
	CopyIn(addr uint64, dst []byte) (int, error)
}

// BytesIO is a flat in-memory user address space. Addresses start at zero
// and any access past the end faults.
type BytesIO struct {
	mu  sync.RWMutex
	mem []byte
}

// NewBytesIO creates a user address space of the given size.
func NewBytesIO(size int) *BytesIO {
	return &BytesIO{mem: make([]byte, size)}
}

// Size returns the extent of the address space.
func (b *BytesIO) Size() uint64 { return uint64(len(b.mem)) }

// CopyOut implements IO.CopyOut.
func (b *BytesIO) CopyOut(addr uint64, src []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, err := b.window(addr, len(src))
	copy(b.mem[addr:][:n], src[:n])
	return n, err
}

// CopyIn implements IO.CopyIn.
func (b *BytesIO) CopyIn(addr uint64, dst []byte) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n, err := b.window(addr, len(dst))
	copy(dst[:n], b.mem[addr:][:n])
	return n, err
}

// window clamps an access of n bytes at addr to the valid extent. It
// returns the usable prefix length and ErrFault if the access is truncated.
func (b *BytesIO) window(addr uint64, n int) (int, error) {
	if addr >= uint64(len(b.mem)) {
		return 0, ErrFault
	}
	if avail := uint64(len(b.mem)) - addr; uint64(n) > avail {
		return int(avail), ErrFault
	}
	return n, nil
}

// Buffer is one caller-supplied user pointer: an address within an IO.
// The zero Buffer is the null pointer.
type Buffer struct {
	io   IO
	addr uint64
}

// Make builds a Buffer over io at addr.
func Make(io IO, addr uint64) Buffer {
	return Buffer{io: io, addr: addr}
}

// IsNull reports whether the buffer refers to no user memory at all.
func (b Buffer) IsNull() bool { return b.io == nil }

// ReadBytes fills dst from user memory. The transfer is all-or-error.
func (b Buffer) ReadBytes(dst []byte) error {
	if b.io == nil {
		return ErrFault
	}
	if _, err := b.io.CopyIn(b.addr, dst); err != nil {
		return err
	}
	return nil
}

// WriteBytes copies src to user memory. The transfer is all-or-error.
func (b Buffer) WriteBytes(src []byte) error {
	if b.io == nil {
		return ErrFault
	}
	if _, err := b.io.CopyOut(b.addr, src); err != nil {
		return err
	}
	return nil
}

// WriteByteAt stores a single byte at the given offset from the buffer.
func (b Buffer) WriteByteAt(off uint64, c byte) error {
	if b.io == nil {
		return ErrFault
	}
	if _, err := b.io.CopyOut(b.addr+off, []byte{c}); err != nil {
		return err
	}
	return nil
}

// ReadUint32 loads a little-endian uint32 from the buffer.
func (b Buffer) ReadUint32() (uint32, error) {
	var raw [4]byte
	if err := b.ReadBytes(raw[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw[:]), nil
}

// WriteUint32 stores a little-endian uint32 to the buffer.
func (b Buffer) WriteUint32(v uint32) error {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], v)
	return b.WriteBytes(raw[:])
}

// ReadUint64 loads a little-endian uint64 from the buffer.
func (b Buffer) ReadUint64() (uint64, error) {
	var raw [8]byte
	if err := b.ReadBytes(raw[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw[:]), nil
}

// WriteUint64 stores a little-endian uint64 to the buffer.
func (b Buffer) WriteUint64(v uint64) error {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], v)
	return b.WriteBytes(raw[:])
}

// Offset returns a Buffer advanced by off bytes.
func (b Buffer) Offset(off uint64) Buffer {
	return Buffer{io: b.io, addr: b.addr + off}
}

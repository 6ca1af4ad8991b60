// Package ktrace implements the kernel trace ring: a fixed-capacity,
// append-only record store with named probe registration and a control
// channel. The ring is boot-lifetime singleton state gated behind the debug
// resource capability at the syscall layer.
package ktrace

import (
	"encoding/binary"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelos/kestrel/internal/kernel/status"
)

// RecordSize is the fixed encoded size of one trace record.
const RecordSize = 32

// MaxEventID is the largest probe/event ID the tag format can carry.
const MaxEventID = 0x7FF

// MaxNameLen bounds a probe name, including the terminator.
const MaxNameLen = 32

// Control actions.
const (
	ActionStart    = 1
	ActionStop     = 2
	ActionRewind   = 3
	ActionNewProbe = 4
)

const probeGroup = 0x0100_0000

// TagProbe builds the record tag for a two-argument probe event.
func TagProbe(eventID uint32) uint32 {
	return probeGroup | (eventID & MaxEventID)
}

// Record is one trace entry. Timestamp is nanoseconds since boot.
type Record struct {
	Tag       uint32 `json:"tag"`
	Timestamp uint64 `json:"timestamp"`
	Arg0      uint32 `json:"arg0"`
	Arg1      uint32 `json:"arg1"`
}

// EventID extracts the probe/event ID from the record tag.
func (r Record) EventID() uint32 { return r.Tag & MaxEventID }

func (r Record) encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], r.Tag)
	binary.LittleEndian.PutUint32(dst[4:8], 0) // reserved
	binary.LittleEndian.PutUint64(dst[8:16], r.Timestamp)
	binary.LittleEndian.PutUint32(dst[16:20], r.Arg0)
	binary.LittleEndian.PutUint32(dst[20:24], r.Arg1)
	binary.LittleEndian.PutUint64(dst[24:32], 0) // reserved
}

// DecodeRecord parses one encoded record.
func DecodeRecord(src []byte) Record {
	return Record{
		Tag:       binary.LittleEndian.Uint32(src[0:4]),
		Timestamp: binary.LittleEndian.Uint64(src[8:16]),
		Arg0:      binary.LittleEndian.Uint32(src[16:20]),
		Arg1:      binary.LittleEndian.Uint32(src[20:24]),
	}
}

// Ring is the trace buffer. It grows monotonically until full; a full ring
// declines writes until rewound. Probe IDs are unique for the lifetime of
// the kernel instance.
type Ring struct {
	mu      sync.Mutex
	buf     []byte
	head    uint32
	running bool

	probes    map[string]uint32
	nextProbe uint32

	subs   map[int]chan Record
	nextID int

	boot   time.Time
	logger *zap.Logger
}

// New creates a ring of the given byte capacity, rounded down to a record
// multiple, tracing from the start.
func New(size uint32, logger *zap.Logger) *Ring {
	if logger == nil {
		logger = zap.NewNop()
	}
	size -= size % RecordSize
	return &Ring{
		buf:       make([]byte, size),
		running:   true,
		probes:    make(map[string]uint32),
		nextProbe: 1,
		subs:      make(map[int]chan Record),
		boot:      time.Now(),
		logger:    logger,
	}
}

// Control executes a trace control action. The returned value is the new
// probe ID for ActionNewProbe and zero otherwise.
func (r *Ring) Control(action, options uint32, name string) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch action {
	case ActionStart:
		r.running = true
		return 0, nil
	case ActionStop:
		r.running = false
		return 0, nil
	case ActionRewind:
		if r.running {
			return 0, status.ErrBadState
		}
		r.head = 0
		return 0, nil
	case ActionNewProbe:
		return r.newProbeLocked(name)
	default:
		return 0, status.ErrInvalidArgs
	}
}

func (r *Ring) newProbeLocked(name string) (uint32, error) {
	if name == "" || len(name) >= MaxNameLen {
		return 0, status.ErrInvalidArgs
	}
	if id, ok := r.probes[name]; ok {
		return id, nil
	}
	if r.nextProbe > MaxEventID {
		return 0, status.ErrUnavailable
	}
	id := r.nextProbe
	r.nextProbe++
	r.probes[name] = id
	r.logger.Info("trace probe registered", zap.String("name", name), zap.Uint32("id", id))
	return id, nil
}

// Write appends a two-argument record tagged with eventID. The ring does
// not distinguish "stopped" from "full"; both decline as unavailable.
func (r *Ring) Write(eventID, arg0, arg1 uint32) error {
	rec := Record{
		Tag:       TagProbe(eventID),
		Timestamp: uint64(time.Since(r.boot).Nanoseconds()),
		Arg0:      arg0,
		Arg1:      arg1,
	}

	r.mu.Lock()
	if !r.running || int(r.head)+RecordSize > len(r.buf) {
		r.mu.Unlock()
		return status.ErrUnavailable
	}
	rec.encode(r.buf[r.head:])
	r.head += RecordSize
	subs := make([]chan Record, 0, len(r.subs))
	for _, ch := range r.subs {
		subs = append(subs, ch)
	}
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- rec:
		default: // slow subscriber, drop
		}
	}
	return nil
}

// ReadAt copies up to n bytes of the ring starting at off, clamped to the
// written extent. An offset past the extent reads zero bytes.
func (r *Ring) ReadAt(off, n uint32) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if off >= r.head {
		return nil
	}
	if avail := r.head - off; n > avail {
		n = avail
	}
	out := make([]byte, n)
	copy(out, r.buf[off:off+n])
	return out
}

// Snapshot returns a copy of the written extent.
func (r *Ring) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, r.head)
	copy(out, r.buf[:r.head])
	return out
}

// Subscribe registers a live record feed. The returned cancel function must
// be called to release the subscription.
func (r *Ring) Subscribe() (<-chan Record, func()) {
	ch := make(chan Record, 256)

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.mu.Unlock()

	return ch, func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Stats describes the ring's current occupancy.
type Stats struct {
	Size    uint32 `json:"size"`
	Used    uint32 `json:"used"`
	Running bool   `json:"running"`
	Probes  int    `json:"probes"`
}

// Stats returns the ring's current occupancy.
func (r *Ring) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Size:    uint32(len(r.buf)),
		Used:    r.head,
		Running: r.running,
		Probes:  len(r.probes),
	}
}

package ktrace

import (
	"errors"
	"testing"

	"github.com/kestrelos/kestrel/internal/kernel/status"
)

func TestWriteAndReadBack(t *testing.T) {
	r := New(RecordSize*4, nil)

	if err := r.Write(0x42, 7, 9); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw := r.ReadAt(0, RecordSize)
	if len(raw) != RecordSize {
		t.Fatalf("ReadAt returned %d bytes", len(raw))
	}
	rec := DecodeRecord(raw)
	if rec.EventID() != 0x42 || rec.Arg0 != 7 || rec.Arg1 != 9 {
		t.Errorf("decoded %+v", rec)
	}
}

func TestRingFillsThenUnavailable(t *testing.T) {
	r := New(RecordSize*2, nil)

	for i := 0; i < 2; i++ {
		if err := r.Write(1, 0, 0); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	if err := r.Write(1, 0, 0); !errors.Is(err, status.ErrUnavailable) {
		t.Errorf("full ring accepted a record: %v", err)
	}

	// Rewind requires the ring stopped.
	if _, err := r.Control(ActionRewind, 0, ""); !errors.Is(err, status.ErrBadState) {
		t.Errorf("rewind while running: %v", err)
	}
	if _, err := r.Control(ActionStop, 0, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Control(ActionRewind, 0, ""); err != nil {
		t.Fatalf("rewind: %v", err)
	}
	if _, err := r.Control(ActionStart, 0, ""); err != nil {
		t.Fatal(err)
	}
	if err := r.Write(1, 0, 0); err != nil {
		t.Errorf("write after rewind: %v", err)
	}
}

func TestStoppedRingDeclines(t *testing.T) {
	r := New(RecordSize*8, nil)
	r.Control(ActionStop, 0, "")
	if err := r.Write(1, 0, 0); !errors.Is(err, status.ErrUnavailable) {
		t.Errorf("stopped ring accepted a record: %v", err)
	}
}

func TestProbeRegistration(t *testing.T) {
	r := New(RecordSize*8, nil)

	id1, err := r.Control(ActionNewProbe, 0, "sched:wakeup")
	if err != nil || id1 == 0 {
		t.Fatalf("new probe: id=%d err=%v", id1, err)
	}
	id2, err := r.Control(ActionNewProbe, 0, "sched:block")
	if err != nil || id2 == id1 {
		t.Fatalf("second probe: id=%d err=%v", id2, err)
	}

	// Re-registration returns the existing ID.
	again, err := r.Control(ActionNewProbe, 0, "sched:wakeup")
	if err != nil || again != id1 {
		t.Errorf("re-register: id=%d err=%v", again, err)
	}

	if _, err := r.Control(ActionNewProbe, 0, ""); !errors.Is(err, status.ErrInvalidArgs) {
		t.Errorf("empty name: %v", err)
	}
	if _, err := r.Control(99, 0, ""); !errors.Is(err, status.ErrInvalidArgs) {
		t.Errorf("unknown action: %v", err)
	}
}

func TestReadAtClamping(t *testing.T) {
	r := New(RecordSize*4, nil)
	r.Write(1, 0, 0)

	if got := r.ReadAt(0, RecordSize*10); len(got) != RecordSize {
		t.Errorf("over-long read returned %d bytes", len(got))
	}
	if got := r.ReadAt(RecordSize, RecordSize); got != nil {
		t.Errorf("read past extent returned %d bytes", len(got))
	}
}

func TestSubscribe(t *testing.T) {
	r := New(RecordSize*4, nil)
	ch, cancel := r.Subscribe()
	defer cancel()

	if err := r.Write(5, 1, 2); err != nil {
		t.Fatal(err)
	}
	select {
	case rec := <-ch:
		if rec.EventID() != 5 {
			t.Errorf("streamed event id = %d", rec.EventID())
		}
	default:
		t.Fatal("no record streamed")
	}
}

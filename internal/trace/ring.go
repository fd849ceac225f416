package trace

import (
	"io"
	"sync"
)

// RingTracer keeps the most recent events in memory. The check and table
// commands dump it to stderr before a failing exit.
type RingTracer struct {
	mu    sync.RWMutex
	buf   []Event
	next  int // slot for the next event
	count int // stored events, at most len(buf)
	level Level
}

// NewRingTracer creates a ring holding up to capacity events; a
// non-positive capacity means 4096.
func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = 4096
	}
	return &RingTracer{buf: make([]Event, capacity), level: level}
}

func (t *RingTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}
	stored := *ev
	t.mu.Lock()
	defer t.mu.Unlock()
	stored.Seq = nextSeq()
	t.buf[t.next] = stored
	t.next = (t.next + 1) % len(t.buf)
	t.count = min(t.count+1, len(t.buf))
}

// Len reports how many events the ring currently holds.
func (t *RingTracer) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Snapshot copies the stored events, oldest first.
func (t *RingTracer) Snapshot() []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Event, 0, t.count)
	start := (t.next - t.count + len(t.buf)) % len(t.buf)
	for i := range t.count {
		out = append(out, t.buf[(start+i)%len(t.buf)])
	}
	return out
}

// Dump writes the stored events to w, oldest first.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	for _, ev := range t.Snapshot() {
		if _, err := w.Write(FormatEvent(&ev, format)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RingTracer) Flush() error  { return nil }
func (t *RingTracer) Close() error  { return nil }
func (t *RingTracer) Level() Level  { return t.level }
func (t *RingTracer) Enabled() bool { return t.level > LevelOff }

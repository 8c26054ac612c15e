package segment

import (
	"sync"
	"time"

	"github.com/parquedb/parquedb/pkg/event"
)

// BatchWriter accumulates events in memory and flushes them into
// segments on demand. It mirrors the double-checked accumulation shape
// of a Kafka partition buffer, but for a single branch's append-only
// log rather than one buffer per partition.
type BatchWriter struct {
	mu             sync.Mutex
	events         []*event.Event
	opts           Options
	firstWriteTime time.Time
	lastWriteTime  time.Time
}

// NewBatchWriter creates an accumulator that flushes at opts.MaxEventsPerSegment boundaries.
func NewBatchWriter(opts Options) *BatchWriter {
	return &BatchWriter{opts: opts}
}

// Add appends an event to the pending batch.
func (w *BatchWriter) Add(e *event.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.events = append(w.events, e)
	now := time.Now()
	if w.firstWriteTime.IsZero() {
		w.firstWriteTime = now
	}
	w.lastWriteTime = now
}

// Len reports the number of events currently pending.
func (w *BatchWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

// IsEmpty reports whether the accumulator has nothing pending.
func (w *BatchWriter) IsEmpty() bool {
	return w.Len() == 0
}

// Flush drains the pending events, deduplicates by id, and writes
// every segment needed to hold them. The accumulator is empty again
// once Flush returns, regardless of outcome.
func (w *BatchWriter) Flush() ([]*Segment, error) {
	w.mu.Lock()
	pending := w.events
	w.events = nil
	w.firstWriteTime = time.Time{}
	w.lastWriteTime = time.Time{}
	w.mu.Unlock()

	if len(pending) == 0 {
		return nil, nil
	}

	deduped := DeduplicateEvents(pending)
	return WriteEvents(deduped, w.opts)
}

// Package segment materializes the event log as immutable, checksummed
// Parquet files and reads them back in manifest order.
package segment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/parquedb/parquedb/internal/codec"
	"github.com/parquedb/parquedb/pkg/event"
)

// Segment is an immutable, content-addressed Parquet file holding an
// ordered run of events, plus the bounds a manifest entry needs without
// reopening the file.
type Segment struct {
	File    string
	Bytes   []byte
	MinID   string
	MaxID   string
	MinTS   int64
	MaxTS   int64
	Count   int
	Checksum string
}

// Options configures segment writing.
type Options struct {
	MaxEventsPerSegment int
	MaxBytesPerSegment  int64
	FileNamer           func(checksum string) string
}

func defaultFileNamer(checksum string) string {
	return fmt.Sprintf("seg-%s.parquet", checksum[:16])
}

func (o Options) namer() func(string) string {
	if o.FileNamer != nil {
		return o.FileNamer
	}
	return defaultFileNamer
}

// validateEventOrder requires strictly non-decreasing ids, the
// invariant a segment's row group statistics depend on.
func validateEventOrder(events []*event.Event) error {
	for i := 1; i < len(events); i++ {
		if events[i].ID < events[i-1].ID {
			return fmt.Errorf("events not in non-decreasing id order at index %d: %q < %q",
				i, events[i].ID, events[i-1].ID)
		}
	}
	return nil
}

// deduplicateEvents keeps the first occurrence of each event id.
func deduplicateEvents(events []*event.Event) []*event.Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]*event.Event, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}

// DeduplicateEvents is the exported form of deduplicateEvents, used by
// the batch writer and by compaction.
func DeduplicateEvents(events []*event.Event) []*event.Event {
	return deduplicateEvents(events)
}

// WriteEventsToSegment encodes events into a single Parquet segment.
// Events must already satisfy validateEventOrder.
func WriteEventsToSegment(events []*event.Event, opts Options) (*Segment, error) {
	if err := validateEventOrder(events); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("cannot write a segment with zero events")
	}

	rows := make([]codec.EventRow, len(events))
	for i, e := range events {
		row, err := codec.ToRow(e)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}

	data, err := codec.WriteSegment(rows)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	return &Segment{
		File:     opts.namer()(checksum),
		Bytes:    data,
		MinID:    events[0].ID,
		MaxID:    events[len(events)-1].ID,
		MinTS:    minTS(events),
		MaxTS:    maxTS(events),
		Count:    len(events),
		Checksum: checksum,
	}, nil
}

func minTS(events []*event.Event) int64 {
	m := events[0].TS
	for _, e := range events[1:] {
		if e.TS < m {
			m = e.TS
		}
	}
	return m
}

func maxTS(events []*event.Event) int64 {
	m := events[0].TS
	for _, e := range events[1:] {
		if e.TS > m {
			m = e.TS
		}
	}
	return m
}

// WriteEvents splits a long run of events into one or more segments,
// each holding at most opts.MaxEventsPerSegment events. The last
// segment produced may be short.
func WriteEvents(events []*event.Event, opts Options) ([]*Segment, error) {
	if err := validateEventOrder(events); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	limit := opts.MaxEventsPerSegment
	if limit <= 0 {
		limit = len(events)
	}

	var segments []*Segment
	for start := 0; start < len(events); start += limit {
		end := start + limit
		if end > len(events) {
			end = len(events)
		}
		seg, err := WriteEventsToSegment(events[start:end], opts)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// AppendEvents merges newEvents into the tail of existingTailSegments
// when the combined run still fits under the size cap, instead of
// always allocating a fresh segment for a small trailing batch. It
// returns the full set of segments that should replace
// existingTailSegments in the manifest.
func AppendEvents(newEvents []*event.Event, existingTailSegments []*Segment, opts Options) ([]*Segment, error) {
	if len(newEvents) == 0 {
		return existingTailSegments, nil
	}
	if err := validateEventOrder(newEvents); err != nil {
		return nil, err
	}

	if len(existingTailSegments) == 0 {
		return WriteEvents(newEvents, opts)
	}

	last := existingTailSegments[len(existingTailSegments)-1]
	limit := opts.MaxEventsPerSegment
	combinedCount := last.Count + len(newEvents)
	if limit > 0 && combinedCount > limit {
		// The tail segment is already at or near capacity: keep it as
		// is and write the new events as their own run.
		fresh, err := WriteEvents(newEvents, opts)
		if err != nil {
			return nil, err
		}
		return append(append([]*Segment{}, existingTailSegments...), fresh...), nil
	}

	tailEvents, err := ReadSegmentEvents(last)
	if err != nil {
		return nil, err
	}
	merged := append(append([]*event.Event{}, tailEvents...), newEvents...)
	rewritten, err := WriteEvents(merged, opts)
	if err != nil {
		return nil, err
	}
	return append(append([]*Segment{}, existingTailSegments[:len(existingTailSegments)-1]...), rewritten...), nil
}

// ReadSegmentEvents decodes every event out of a segment.
func ReadSegmentEvents(seg *Segment) ([]*event.Event, error) {
	rows, err := codec.ReadSegment(seg.File, seg.Bytes)
	if err != nil {
		return nil, err
	}
	events := make([]*event.Event, len(rows))
	for i, row := range rows {
		e, err := codec.FromRow(row)
		if err != nil {
			return nil, err
		}
		events[i] = e
	}
	return events, nil
}

// ReadEventsFromSegments concatenates the decoded events of every
// segment, in the order given.
func ReadEventsFromSegments(segments []*Segment) ([]*event.Event, error) {
	var out []*event.Event
	for _, seg := range segments {
		events, err := ReadSegmentEvents(seg)
		if err != nil {
			return nil, err
		}
		out = append(out, events...)
	}
	return out, nil
}

// ReadEventsInRange prunes segments whose [MinTS, MaxTS] bounds fall
// entirely outside [minTs, maxTs] before decoding, then filters the
// remaining events by timestamp.
func ReadEventsInRange(segments []*Segment, minTs, maxTs int64) ([]*event.Event, error) {
	var out []*event.Event
	for _, seg := range segments {
		if seg.MaxTS < minTs || seg.MinTS > maxTs {
			continue
		}
		events, err := ReadSegmentEvents(seg)
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			if e.TS >= minTs && e.TS <= maxTs {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// ReadEventBatches decodes segments in order, yielding slices of at
// most batchSize events so a caller never holds the full log in memory.
func ReadEventBatches(segments []*Segment, batchSize int, fn func([]*event.Event) error) error {
	if batchSize <= 0 {
		batchSize = 1
	}
	var pending []*event.Event
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := fn(pending); err != nil {
			return err
		}
		pending = pending[:0]
		return nil
	}

	for _, seg := range segments {
		events, err := ReadSegmentEvents(seg)
		if err != nil {
			return err
		}
		for _, e := range events {
			pending = append(pending, e)
			if len(pending) >= batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

// CountEvents returns the total event count across segments.
// accurate=false trusts segment.Count metadata; accurate=true streams
// every segment and counts decoded rows.
func CountEvents(segments []*Segment, accurate bool) (int, error) {
	if !accurate {
		total := 0
		for _, seg := range segments {
			total += seg.Count
		}
		return total, nil
	}

	total := 0
	err := ReadEventBatches(segments, 1024, func(batch []*event.Event) error {
		total += len(batch)
		return nil
	})
	return total, err
}

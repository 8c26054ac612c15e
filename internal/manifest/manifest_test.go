package manifest

import (
	"context"
	"strconv"
	"testing"

	internalblob "github.com/parquedb/parquedb/internal/blob"
	"github.com/parquedb/parquedb/internal/segment"
	"github.com/parquedb/parquedb/pkg/event"
)

func makeSegment(t *testing.T, ids ...string) *segment.Segment {
	t.Helper()
	events := make([]*event.Event, len(ids))
	for i, id := range ids {
		ts, _ := strconv.ParseInt(id, 10, 64)
		events[i] = &event.Event{ID: id, TS: ts, Op: event.OpCreate, Target: "item:item-1"}
	}
	seg, err := segment.WriteEventsToSegment(events, segment.Options{})
	if err != nil {
		t.Fatalf("WriteEventsToSegment: %v", err)
	}
	return seg
}

func TestAddSegment_KeepsSortedAndAdvancesBounds(t *testing.T) {
	m := CreateEmptyManifest("events")
	segB := makeSegment(t, "03", "04")
	segA := makeSegment(t, "01", "02")

	m.AddSegment(segB)
	m.AddSegment(segA)

	if len(m.Segments) != 2 || m.Segments[0].MinID != "01" || m.Segments[1].MinID != "03" {
		t.Fatalf("segments not sorted by minId: %+v", m.Segments)
	}
	if m.LastEventID != "04" {
		t.Errorf("LastEventID = %q, want 04", m.LastEventID)
	}
}

func TestFindSegmentForEvent(t *testing.T) {
	m := CreateEmptyManifest("events")
	m.AddSegment(makeSegment(t, "01", "02"))
	m.AddSegment(makeSegment(t, "03", "04"))

	entry, ok := m.FindSegmentForEvent("03")
	if !ok || entry.MinID != "03" {
		t.Fatalf("FindSegmentForEvent(03) = %+v, %v", entry, ok)
	}

	_, ok = m.FindSegmentForEvent("99")
	if ok {
		t.Error("expected no match for an id outside every segment")
	}
}

func TestFindSegmentsInRange_PrunesNonOverlapping(t *testing.T) {
	m := CreateEmptyManifest("events")
	m.AddSegment(makeSegment(t, "01", "02"))
	m.AddSegment(makeSegment(t, "03", "04"))

	hits := m.FindSegmentsInRange(1, 1)
	if len(hits) != 1 || hits[0].MinID != "01" {
		t.Fatalf("FindSegmentsInRange(1,1) = %+v", hits)
	}
}

func TestLoadManifest_MissingIsEmptyNotError(t *testing.T) {
	store := internalblob.NewMemoryStore()
	m, err := LoadManifest(context.Background(), store, "events")
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(m.Segments) != 0 {
		t.Errorf("expected empty manifest, got %+v", m)
	}
}

func TestSaveThenLoadManifest_RoundTrip(t *testing.T) {
	store := internalblob.NewMemoryStore()
	m := CreateEmptyManifest("events")
	m.AddSegment(makeSegment(t, "01", "02"))

	ctx := context.Background()
	if err := SaveManifest(ctx, store, m); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}

	got, err := LoadManifest(ctx, store, "events")
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(got.Segments) != 1 || got.Segments[0].MinID != "01" {
		t.Fatalf("round-tripped manifest = %+v", got)
	}
	if got.LastEventID != m.LastEventID {
		t.Errorf("LastEventID = %q, want %q", got.LastEventID, m.LastEventID)
	}
}

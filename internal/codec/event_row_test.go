package codec

import (
	"testing"
	"time"

	"github.com/parquedb/parquedb/pkg/document"
	"github.com/parquedb/parquedb/pkg/event"
)

func TestToRowFromRow_RoundTrip(t *testing.T) {
	actor := document.EntityId{Namespace: "user", LocalID: "alice"}
	e := &event.Event{
		ID:     "01HXYZ",
		TS:     time.Now().UnixMilli(),
		Op:     event.OpUpdate,
		Target: "item:item-1",
		Actor:  &actor,
		Before: document.Doc{"price": float64(100)},
		After:  document.Doc{"price": float64(150)},
		Metadata: document.Doc{
			"source": "api",
		},
	}

	row, err := ToRow(e)
	if err != nil {
		t.Fatalf("ToRow: %v", err)
	}
	if row.Actor != "user/alice" {
		t.Errorf("row.Actor = %q, want %q", row.Actor, "user/alice")
	}

	got, err := FromRow(row)
	if err != nil {
		t.Fatalf("FromRow: %v", err)
	}
	if got.ID != e.ID || got.TS != e.TS || got.Op != e.Op || got.Target != e.Target {
		t.Fatalf("FromRow() = %+v, want fields matching %+v", got, e)
	}
	if !document.Equal(got.Before, e.Before) {
		t.Errorf("Before = %v, want %v", got.Before, e.Before)
	}
	if !document.Equal(got.After, e.After) {
		t.Errorf("After = %v, want %v", got.After, e.After)
	}
	if got.Actor == nil || got.Actor.String() != "user/alice" {
		t.Errorf("Actor = %v, want user/alice", got.Actor)
	}
}

func TestToRowFromRow_NoOptionalFields(t *testing.T) {
	e := &event.Event{
		ID:     "01HXYZ",
		TS:     1000,
		Op:     event.OpCreate,
		Target: "item:item-1",
	}

	row, err := ToRow(e)
	if err != nil {
		t.Fatalf("ToRow: %v", err)
	}
	if row.Actor != "" || row.Before != "" || row.After != "" || row.Metadata != "" {
		t.Errorf("expected empty optional columns, got %+v", row)
	}

	got, err := FromRow(row)
	if err != nil {
		t.Fatalf("FromRow: %v", err)
	}
	if got.Actor != nil || got.Before != nil || got.After != nil || got.Metadata != nil {
		t.Errorf("expected nil optional fields, got %+v", got)
	}
}

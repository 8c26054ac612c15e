package engine

import (
	"context"
	"testing"

	"github.com/parquedb/parquedb/internal/aggregate"
	"github.com/parquedb/parquedb/internal/blob"
	"github.com/parquedb/parquedb/internal/compaction"
	"github.com/parquedb/parquedb/internal/exec"
	"github.com/parquedb/parquedb/internal/filter"
	"github.com/parquedb/parquedb/internal/schema"
	"github.com/parquedb/parquedb/pkg/document"
)

func systemActor(t *testing.T) document.EntityId {
	t.Helper()
	id, err := document.NewEntityId("system", "engine")
	if err != nil {
		t.Fatalf("NewEntityId: %v", err)
	}
	return id
}

func TestEngine_CreateGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	e, err := Open(ctx, store, Config{Branch: "events", MaxBufferedEvents: 100, DefaultActor: systemActor(t)})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	entity, err := e.Create(ctx, "item", map[string]any{"title": "Widget"}, exec.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, ok := e.Get("item", entity.ID.LocalID, false)
	if !ok || got.Fields["title"] != "Widget" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}

	updated, err := e.Update(ctx, "item", entity.ID.LocalID, document.Doc{"$set": document.Doc{"title": "Widget v2"}}, exec.Options{})
	if err != nil || updated.Fields["title"] != "Widget v2" {
		t.Fatalf("Update = %+v, %v", updated, err)
	}

	n, err := e.Delete(ctx, "item", entity.ID.LocalID, exec.Options{})
	if err != nil || n != 1 {
		t.Fatalf("Delete = %d, %v", n, err)
	}
	if _, ok := e.Get("item", entity.ID.LocalID, false); ok {
		t.Error("expected deleted entity to be hidden")
	}
}

func TestEngine_FindFiltersByNamespaceAndPredicate(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	e, _ := Open(ctx, store, Config{Branch: "events", MaxBufferedEvents: 100, DefaultActor: systemActor(t)})

	e.Create(ctx, "item", map[string]any{"price": float64(10)}, exec.Options{})
	e.Create(ctx, "item", map[string]any{"price": float64(50)}, exec.Options{})
	e.Create(ctx, "user", map[string]any{"price": float64(999)}, exec.Options{})

	result := e.Find("item", filter.Filter{"price": filter.Filter{"$gte": float64(20)}}, FindOptions{})
	if len(result.Items) != 1 || result.Items[0].Fields["price"] != float64(50) {
		t.Fatalf("Find = %+v", result.Items)
	}
}

func TestEngine_FlushAndReopenReplaysEvents(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	e, _ := Open(ctx, store, Config{Branch: "events", MaxBufferedEvents: 1, DefaultActor: systemActor(t)})

	entity, err := e.Create(ctx, "item", map[string]any{"title": "Widget"}, exec.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	reopened, err := Open(ctx, store, Config{Branch: "events", MaxBufferedEvents: 1, DefaultActor: systemActor(t)})
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	got, ok := reopened.Get("item", entity.ID.LocalID, false)
	if !ok || got.Fields["title"] != "Widget" {
		t.Fatalf("reopened Get = %+v, %v", got, ok)
	}
}

func TestEngine_CompactMergesSegments(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	e, _ := Open(ctx, store, Config{
		Branch: "events", MaxBufferedEvents: 1, DefaultActor: systemActor(t),
		Compaction: compaction.Config{Enabled: true, EventThreshold: 1000, BatchFileThreshold: 1000},
	})

	for i := 0; i < 3; i++ {
		if _, err := e.Create(ctx, "item", map[string]any{"n": float64(i)}, exec.Options{}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if len(e.m.Segments) != 3 {
		t.Fatalf("expected 3 segments before compaction, got %d", len(e.m.Segments))
	}

	n, err := e.Compact(ctx)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if n != 3 {
		t.Errorf("Compact returned %d events, want 3", n)
	}
	if len(e.m.Segments) != 1 {
		t.Fatalf("expected 1 segment after compaction, got %d", len(e.m.Segments))
	}
}

func itemSchema() *schema.TypeDef {
	return &schema.TypeDef{
		Fields: map[string]schema.FieldType{
			"price":  {Kind: "float", Indexed: true},
			"status": {Kind: "enum", EnumValues: []string{"open", "closed"}},
		},
	}
}

func TestEngine_FindPrunesViaEntitySnapshotButReadsLiveProjection(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	e, _ := Open(ctx, store, Config{Branch: "events", MaxBufferedEvents: 1, DefaultActor: systemActor(t)})
	e.RegisterSchema("item", itemSchema())

	low, err := e.Create(ctx, "item", map[string]any{"price": float64(10), "status": "open"}, exec.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	high, err := e.Create(ctx, "item", map[string]any{"price": float64(50), "status": "open"}, exec.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if e.snapshots["item"] == nil {
		t.Fatal("expected an entity snapshot to exist for item after flush")
	}

	result := e.Find("item", filter.Filter{"price": filter.Filter{"$gte": float64(20)}}, FindOptions{})
	if len(result.Items) != 1 || result.Items[0].ID.LocalID != high.ID.LocalID {
		t.Fatalf("Find = %+v, want only %s", result.Items, high.ID.LocalID)
	}

	// A mutation after the last snapshot write must still be visible:
	// candidateLocalIDs only prunes row groups, it never answers from
	// stale snapshot data directly.
	if _, err := e.Update(ctx, "item", low.ID.LocalID, document.Doc{"$set": document.Doc{"price": float64(30)}}, exec.Options{}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	result = e.Find("item", filter.Filter{"price": filter.Filter{"$gte": float64(20)}}, FindOptions{})
	if len(result.Items) != 2 {
		t.Fatalf("Find after update = %+v, want 2 items", result.Items)
	}
}

func TestEngine_AggregateUsesMetadataSourceWhenSnapshotExists(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	e, _ := Open(ctx, store, Config{Branch: "events", MaxBufferedEvents: 1, DefaultActor: systemActor(t)})
	e.RegisterSchema("item", itemSchema())

	for _, price := range []float64{10, 20, 30} {
		if _, err := e.Create(ctx, "item", map[string]any{"price": price, "status": "open"}, exec.Options{}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	values, stats, err := e.Aggregate("item", map[string]aggregate.Spec{
		"total": {Type: aggregate.Count, Field: "*"},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if values["total"] != int64(3) {
		t.Fatalf("total = %v, want 3", values["total"])
	}
	if !stats["total"].MetadataOnly {
		t.Errorf("stats[total] = %+v, want MetadataOnly once a snapshot exists", stats["total"])
	}
}

package projector

import (
	"testing"
	"time"

	"github.com/parquedb/parquedb/pkg/document"
	"github.com/parquedb/parquedb/pkg/event"
)

func TestRebuild_CreateThenUpdateThenDelete(t *testing.T) {
	events := []*event.Event{
		{ID: "01", TS: 1, Op: event.OpCreate, Target: "item:item-1", After: document.Doc{"price": float64(100)}},
		{ID: "02", TS: 2, Op: event.OpUpdate, Target: "item:item-1", Before: document.Doc{"price": float64(100)}, After: document.Doc{"price": float64(150)}},
		{ID: "03", TS: 3, Op: event.OpDelete, Target: "item:item-1", Before: document.Doc{"price": float64(150)}},
	}
	p := Rebuild(events)

	_, ok := p.Get("item", "item-1", false)
	if ok {
		t.Fatal("expected deleted entity to be hidden by default")
	}

	entity, ok := p.Get("item", "item-1", true)
	if !ok {
		t.Fatal("expected entity to be visible with includeDeleted")
	}
	if !entity.IsDeleted() {
		t.Error("expected entity to be marked deleted")
	}
	if entity.Fields["price"] != float64(150) {
		t.Errorf("price = %v, want 150 (last known value before delete)", entity.Fields["price"])
	}
}

func TestRebuild_RestoreClearsDeletionMarks(t *testing.T) {
	events := []*event.Event{
		{ID: "01", TS: 1, Op: event.OpCreate, Target: "item:item-1", After: document.Doc{"price": float64(100)}},
		{ID: "02", TS: 2, Op: event.OpDelete, Target: "item:item-1"},
		{ID: "03", TS: 3, Op: event.OpRestore, Target: "item:item-1"},
	}
	p := Rebuild(events)

	entity, ok := p.Get("item", "item-1", false)
	if !ok {
		t.Fatal("expected entity to be visible after restore")
	}
	if entity.IsDeleted() {
		t.Error("expected restore to clear deletion marks")
	}
}

func TestRebuild_RestoreOnNeverDeletedIsNoop(t *testing.T) {
	events := []*event.Event{
		{ID: "01", TS: 1, Op: event.OpCreate, Target: "item:item-1", After: document.Doc{"price": float64(100)}},
		{ID: "02", TS: 2, Op: event.OpRestore, Target: "item:item-1"},
	}
	p := Rebuild(events)
	entity, ok := p.Get("item", "item-1", false)
	if !ok || entity.IsDeleted() {
		t.Fatalf("expected unaffected live entity, got %+v, %v", entity, ok)
	}
}

func TestRebuild_GroupsByTargetAcrossInterleavedLog(t *testing.T) {
	events := []*event.Event{
		{ID: "01", TS: 1, Op: event.OpCreate, Target: "item:a", After: document.Doc{"v": float64(1)}},
		{ID: "02", TS: 2, Op: event.OpCreate, Target: "item:b", After: document.Doc{"v": float64(1)}},
		{ID: "03", TS: 3, Op: event.OpUpdate, Target: "item:a", After: document.Doc{"v": float64(2)}},
	}
	p := Rebuild(events)

	a, ok := p.Get("item", "a", false)
	if !ok || a.Fields["v"] != float64(2) {
		t.Fatalf("item a = %+v, %v, want v=2", a, ok)
	}
	b, ok := p.Get("item", "b", false)
	if !ok || b.Fields["v"] != float64(1) {
		t.Fatalf("item b = %+v, %v, want v=1", b, ok)
	}
}

func TestRebuild_PurgeForgetsTargetEntirely(t *testing.T) {
	events := []*event.Event{
		{ID: "01", TS: 1, Op: event.OpCreate, Target: "item:item-1", After: document.Doc{"price": float64(100)}},
		{ID: "02", TS: 2, Op: event.OpDelete, Target: "item:item-1"},
		{ID: "03", TS: 3, Op: event.OpPurge, Target: "item:item-1"},
	}
	p := Rebuild(events)

	if _, ok := p.Get("item", "item-1", true); ok {
		t.Fatal("expected purged entity to be absent even with includeDeleted")
	}
	if len(p.All()) != 0 {
		t.Fatalf("All() = %+v, want empty", p.All())
	}
}

func TestFind_OrdersByMostRecentlyUpdated(t *testing.T) {
	p := New()
	older := &document.Entity{ID: document.EntityId{Namespace: "item", LocalID: "old"}, UpdatedAt: time.Unix(1, 0)}
	newer := &document.Entity{ID: document.EntityId{Namespace: "item", LocalID: "new"}, UpdatedAt: time.Unix(2, 0)}
	p.Touch(older, older.UpdatedAt)
	p.Touch(newer, newer.UpdatedAt)

	found := p.Find(false, nil)
	if len(found) != 2 || found[0].ID.LocalID != "new" {
		t.Fatalf("Find() = %+v, want newest first", found)
	}
}

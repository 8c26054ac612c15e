package exec

import (
	"context"
	"testing"

	"github.com/parquedb/parquedb/internal/projector"
	"github.com/parquedb/parquedb/internal/schema"
	"github.com/parquedb/parquedb/pkg/document"
	"github.com/parquedb/parquedb/pkg/event"
)

type fakeStore struct {
	proj   *projector.Projection
	events []*event.Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{proj: projector.New()}
}

func (s *fakeStore) Append(ctx context.Context, e *event.Event) error {
	s.events = append(s.events, e)
	return nil
}

func (s *fakeStore) Projection() *projector.Projection { return s.proj }

func systemActor() document.EntityId {
	id, _ := document.NewEntityId("system", "executor")
	return id
}

func TestCreate_DerivesIDAndEmitsOneEvent(t *testing.T) {
	store := newFakeStore()
	x := New(store, systemActor())

	entity, err := x.Create(context.Background(), "item", map[string]any{"title": "Widget"}, Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if entity.Version != 1 {
		t.Errorf("Version = %d, want 1", entity.Version)
	}
	if len(store.events) != 1 || store.events[0].Op != event.OpCreate {
		t.Fatalf("events = %+v, want exactly one CREATE", store.events)
	}
}

func TestCreate_RejectsDuplicateLiveID(t *testing.T) {
	store := newFakeStore()
	def, _ := schema.ParseTypeDef("item", map[string]string{"$id": "sku", "sku": "string!"})
	x := New(store, systemActor())
	x.RegisterSchema("item", def)

	if _, err := x.Create(context.Background(), "item", map[string]any{"sku": "a1"}, Options{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := x.Create(context.Background(), "item", map[string]any{"sku": "a1"}, Options{})
	if err == nil {
		t.Fatal("expected a duplicate-id error")
	}
}

func TestCreate_ReplacesTombstone(t *testing.T) {
	store := newFakeStore()
	def, _ := schema.ParseTypeDef("item", map[string]string{"$id": "sku", "sku": "string!"})
	x := New(store, systemActor())
	x.RegisterSchema("item", def)

	ctx := context.Background()
	if _, err := x.Create(ctx, "item", map[string]any{"sku": "a1"}, Options{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := x.Delete(ctx, "item", "a1", Options{}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	entity, err := x.Create(ctx, "item", map[string]any{"sku": "a1"}, Options{})
	if err != nil {
		t.Fatalf("Create over tombstone: %v", err)
	}
	if entity.IsDeleted() {
		t.Error("expected the new record to replace the tombstone, not inherit it")
	}
}

func TestUpdate_IncrementsVersionAndRespectsExpectedVersion(t *testing.T) {
	store := newFakeStore()
	x := New(store, systemActor())
	ctx := context.Background()

	entity, _ := x.Create(ctx, "item", map[string]any{"price": float64(10)}, Options{})

	wrong := entity.Version + 5
	_, err := x.Update(ctx, "item", entity.ID.LocalID, document.Doc{"$set": document.Doc{"price": float64(20)}}, Options{ExpectedVersion: &wrong})
	if err == nil {
		t.Fatal("expected a version conflict error")
	}

	updated, err := x.Update(ctx, "item", entity.ID.LocalID, document.Doc{"$set": document.Doc{"price": float64(20)}}, Options{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 2 || updated.Fields["price"] != float64(20) {
		t.Fatalf("updated = %+v", updated)
	}
}

func TestUpdate_UpsertCreatesWhenAbsent(t *testing.T) {
	store := newFakeStore()
	x := New(store, systemActor())
	entity, err := x.Update(context.Background(), "item", "new-1", document.Doc{"$set": document.Doc{"price": float64(1)}}, Options{Upsert: true})
	if err != nil {
		t.Fatalf("Update upsert: %v", err)
	}
	if entity == nil || entity.ID.LocalID != "new-1" {
		t.Fatalf("entity = %+v", entity)
	}
}

func TestDelete_SoftDeleteThenRedeleteReturnsZero(t *testing.T) {
	store := newFakeStore()
	x := New(store, systemActor())
	ctx := context.Background()
	entity, _ := x.Create(ctx, "item", map[string]any{}, Options{})

	n, err := x.Delete(ctx, "item", entity.ID.LocalID, Options{})
	if err != nil || n != 1 {
		t.Fatalf("Delete = %d, %v, want 1", n, err)
	}
	n, err = x.Delete(ctx, "item", entity.ID.LocalID, Options{})
	if err != nil || n != 0 {
		t.Fatalf("second Delete = %d, %v, want 0", n, err)
	}
}

func TestDelete_HardRemovesFromProjectionEntirely(t *testing.T) {
	store := newFakeStore()
	x := New(store, systemActor())
	ctx := context.Background()
	entity, _ := x.Create(ctx, "item", map[string]any{}, Options{})

	n, err := x.Delete(ctx, "item", entity.ID.LocalID, Options{Hard: true})
	if err != nil || n != 1 {
		t.Fatalf("Delete(hard) = %d, %v, want 1", n, err)
	}
	if _, ok := store.proj.Get("item", entity.ID.LocalID, true); ok {
		t.Error("hard-deleted entity still visible with includeDeleted:true")
	}
	if len(store.events) != 2 || store.events[1].Op != event.OpPurge {
		t.Fatalf("events = %+v, want CREATE then PURGE", store.events)
	}
}

func TestDelete_HardOnSoftDeletedStillPurges(t *testing.T) {
	store := newFakeStore()
	x := New(store, systemActor())
	ctx := context.Background()
	entity, _ := x.Create(ctx, "item", map[string]any{}, Options{})
	if _, err := x.Delete(ctx, "item", entity.ID.LocalID, Options{}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	n, err := x.Delete(ctx, "item", entity.ID.LocalID, Options{Hard: true})
	if err != nil || n != 1 {
		t.Fatalf("Delete(hard) over tombstone = %d, %v, want 1", n, err)
	}
	if _, ok := store.proj.Get("item", entity.ID.LocalID, true); ok {
		t.Error("hard-deleted entity still visible with includeDeleted:true")
	}
}

func TestRestore_OnNonDeletedReturnsUnchangedWithoutBumpingVersion(t *testing.T) {
	store := newFakeStore()
	x := New(store, systemActor())
	ctx := context.Background()
	entity, _ := x.Create(ctx, "item", map[string]any{}, Options{})

	restored, err := x.Restore(ctx, "item", entity.ID.LocalID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Version != entity.Version {
		t.Errorf("Version = %d, want unchanged %d", restored.Version, entity.Version)
	}
}

func TestCreate_AutoCreateResolvesStringReferenceToStub(t *testing.T) {
	store := newFakeStore()
	def, _ := schema.ParseTypeDef("post", map[string]string{"author": "-> user"})
	x := New(store, systemActor())
	x.RegisterSchema("post", def)

	entity, err := x.Create(context.Background(), "post", map[string]any{"author": "alice"}, Options{AutoCreate: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	link, ok := entity.Fields["author"].(document.RelLink)
	if !ok || link.Target.LocalID != "alice" {
		t.Fatalf("author = %+v", entity.Fields["author"])
	}
	if _, ok := store.proj.Get("user", "alice", false); !ok {
		t.Error("expected a stub user entity to have been created")
	}
}

func TestHooks_PreHookAbortsBeforeStoreTouched(t *testing.T) {
	store := newFakeStore()
	x := New(store, systemActor())
	x.RegisterHook(PreCreate, func(ctx context.Context, hc *HookContext) error {
		return errAborted
	})

	_, err := x.Create(context.Background(), "item", map[string]any{}, Options{})
	if err != errAborted {
		t.Fatalf("err = %v, want errAborted", err)
	}
	if len(store.events) != 0 {
		t.Error("expected no event to have been appended")
	}
}

var errAborted = &abortError{}

type abortError struct{}

func (e *abortError) Error() string { return "hook aborted" }

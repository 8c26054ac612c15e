package exec

import (
	"context"
	"sync"
	"time"

	parquedberrors "github.com/parquedb/parquedb/internal/errors"
	"github.com/parquedb/parquedb/internal/mutate"
	"github.com/parquedb/parquedb/internal/projector"
	"github.com/parquedb/parquedb/internal/relate"
	"github.com/parquedb/parquedb/internal/schema"
	"github.com/parquedb/parquedb/pkg/document"
	"github.com/parquedb/parquedb/pkg/event"
)

// Store is the durability surface the executor needs: append one event
// to the log, and read the current in-memory projection. The engine
// facade wires this to the segment/manifest/blob stack; the executor
// never touches storage directly.
type Store interface {
	Append(ctx context.Context, e *event.Event) error
	Projection() *projector.Projection
}

// Options configures one executor call.
type Options struct {
	Actor           *document.EntityId
	ExpectedVersion *uint64
	Upsert          bool
	ReturnDocument  string // "before" | "after", default "after"
	Hard            bool
	AutoCreate      bool
}

// Executor implements create/update/delete/restore against a Store,
// serialized by a single write lock per spec's single-threaded
// cooperative concurrency model: the whole call is one critical
// section, with blob/Parquet I/O as the only suspension points.
type Executor struct {
	mu           sync.Mutex
	store        Store
	schemas      map[string]*schema.TypeDef
	hooks        *hookRegistry
	ids          *event.IDGenerator
	defaultActor document.EntityId
	now          func() time.Time
}

// New creates an executor. defaultActor is used when an operation's
// Options.Actor is nil.
func New(store Store, defaultActor document.EntityId) *Executor {
	return &Executor{
		store:        store,
		schemas:      make(map[string]*schema.TypeDef),
		hooks:        newHookRegistry(),
		ids:          event.NewIDGenerator(),
		defaultActor: defaultActor,
		now:          time.Now,
	}
}

// RegisterSchema installs the type definition used for $id/$name
// derivation and relationship resolution on the given namespace.
func (x *Executor) RegisterSchema(namespace string, def *schema.TypeDef) {
	x.schemas[namespace] = def
}

// RegisterHook appends h to point's pipeline, in call order.
func (x *Executor) RegisterHook(point HookPoint, h Hook) {
	x.hooks.register(point, h)
}

func (x *Executor) actorOf(opts Options) document.EntityId {
	if opts.Actor != nil {
		return *opts.Actor
	}
	return x.defaultActor
}

// Create derives identity from the namespace's schema directives,
// resolves forward relationships (auto-creating stubs when
// opts.AutoCreate is set), and emits exactly one CREATE event. Field
// values are not checked against the schema's declared types or
// required markers.
// Re-creating an id whose only existing record is soft-deleted is
// allowed and replaces the tombstone.
func (x *Executor) Create(ctx context.Context, namespace string, input map[string]any, opts Options) (*document.Entity, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	def := x.schemas[namespace]
	localID, err := x.deriveLocalID(def, input)
	if err != nil {
		return nil, err
	}

	if err := document.ValidateLocalID(localID); err != nil {
		return nil, &parquedberrors.ValidationError{Namespace: namespace, Field: "id", Reason: err.Error()}
	}

	if existing, ok := x.store.Projection().Get(namespace, localID, false); ok && !existing.IsDeleted() {
		return nil, &parquedberrors.DuplicateIdError{Namespace: namespace, LocalID: localID}
	}

	fields, err := x.resolveRelationships(ctx, def, input, opts)
	if err != nil {
		return nil, err
	}

	name := localID
	if def != nil {
		name = def.DeriveName(input, localID)
	}

	hc := &HookContext{Op: event.OpCreate, Namespace: namespace, LocalID: localID, Input: input}
	if err := x.hooks.run(ctx, PreMutation, hc); err != nil {
		return nil, err
	}
	if err := x.hooks.run(ctx, PreCreate, hc); err != nil {
		return nil, err
	}

	actor := x.actorOf(opts)
	ts := x.now()
	doc := document.Doc(fields).Clone()
	doc["version"] = float64(1)

	e := &event.Event{
		ID:     x.ids.NextID(),
		TS:     ts.UnixMilli(),
		Op:     event.OpCreate,
		Target: event.EncodeTarget(namespace, localID),
		After:  doc,
		Actor:  &actor,
	}
	if err := x.store.Append(ctx, e); err != nil {
		return nil, err
	}
	x.store.Projection().Apply(e)

	entity, _ := x.store.Projection().Get(namespace, localID, true)
	entity.Type = namespace
	entity.Name = name

	hc.After = entity
	if err := x.hooks.run(ctx, PostCreate, hc); err != nil {
		return nil, err
	}
	if err := x.hooks.run(ctx, PostMutation, hc); err != nil {
		return nil, err
	}

	return entity, nil
}

func (x *Executor) deriveLocalID(def *schema.TypeDef, input map[string]any) (string, error) {
	if def == nil {
		return x.ids.NextID(), nil
	}
	return def.DeriveLocalID(input, x.ids.NextID)
}

// resolveRelationships walks the schema's relationship fields and
// converts forward reference values into RelLink/RelSet, auto-creating
// stub targets when requested. Non-relationship fields pass through
// unchanged.
func (x *Executor) resolveRelationships(ctx context.Context, def *schema.TypeDef, input map[string]any, opts Options) (document.Doc, error) {
	out := document.Doc{}
	for k, v := range input {
		out[k] = document.CloneValue(v)
	}
	if def == nil {
		return out, nil
	}

	for field, ft := range def.Fields {
		if ft.Kind != "relationship" || ft.Relationship == nil || ft.Relationship.Direction != schema.Outbound {
			continue
		}
		raw, present := input[field]
		if !present {
			continue
		}
		if !opts.AutoCreate {
			out[field] = raw
			continue
		}

		targetType := ft.Relationship.TargetType
		lookup := func(localID string) (document.EntityId, bool) {
			e, ok := x.store.Projection().Get(targetType, localID, false)
			if !ok {
				return document.EntityId{}, false
			}
			return e.ID, true
		}
		create := func(tType, localID string) (document.EntityId, error) {
			return x.createStub(ctx, tType, localID)
		}

		resolved, err := relate.ResolveAutoCreateValue(targetType, raw, ft.Relationship.Cardinality == schema.Single, lookup, create)
		if err != nil {
			return nil, err
		}
		if resolved != nil {
			out[field] = resolved
		}
	}
	return out, nil
}

// createStub creates (or replaces a tombstone for) a minimal stub
// entity carrying only identity fields, bypassing the schema/hook
// pipeline since auto-create is non-transitive: the stub's own forward
// references, if any, are never resolved here.
func (x *Executor) createStub(ctx context.Context, targetType, localID string) (document.EntityId, error) {
	id, err := document.NewEntityId(targetType, localID)
	if err != nil {
		return document.EntityId{}, &parquedberrors.ValidationError{Namespace: targetType, Field: "id", Reason: err.Error()}
	}

	actor := x.defaultActor
	ts := x.now()
	e := &event.Event{
		ID:     x.ids.NextID(),
		TS:     ts.UnixMilli(),
		Op:     event.OpCreate,
		Target: event.EncodeTarget(targetType, localID),
		After:  document.Doc{"version": float64(1)},
		Actor:  &actor,
	}
	if err := x.store.Append(ctx, e); err != nil {
		return document.EntityId{}, err
	}
	x.store.Projection().Apply(e)
	return id, nil
}

// Update applies mutation operators against the current document,
// increments the version, and emits exactly one UPDATE event.
// When the entity is absent, opts.Upsert creates it; without Upsert,
// Update returns a nil entity and a nil error.
func (x *Executor) Update(ctx context.Context, namespace, localID string, update document.Doc, opts Options) (*document.Entity, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	current, exists := x.store.Projection().Get(namespace, localID, false)
	if !exists {
		if !opts.Upsert {
			return nil, nil
		}
		return x.insertViaUpdate(ctx, namespace, localID, update, opts)
	}

	if opts.ExpectedVersion != nil && *opts.ExpectedVersion != current.Version {
		return nil, &parquedberrors.VersionConflictError{
			Namespace: namespace, LocalID: localID,
			Expected: *opts.ExpectedVersion, Actual: current.Version,
		}
	}

	hc := &HookContext{Op: event.OpUpdate, Namespace: namespace, LocalID: localID, Before: current, Input: update}
	if err := x.hooks.run(ctx, PreMutation, hc); err != nil {
		return nil, err
	}
	if err := x.hooks.run(ctx, PreUpdate, hc); err != nil {
		return nil, err
	}

	actor := x.actorOf(opts)
	ts := x.now()
	res, err := mutate.ApplyOperators(current.Fields, update, mutate.Options{Timestamp: ts, IsInsert: false})
	if err != nil {
		return nil, err
	}

	doc := res.Document.Clone()
	doc["version"] = float64(current.Version + 1)

	e := &event.Event{
		ID:     x.ids.NextID(),
		TS:     ts.UnixMilli(),
		Op:     event.OpUpdate,
		Target: event.EncodeTarget(namespace, localID),
		Before: current.Fields.Clone(),
		After:  doc,
		Actor:  &actor,
	}
	if err := x.store.Append(ctx, e); err != nil {
		return nil, err
	}
	x.store.Projection().Apply(e)

	updated, _ := x.store.Projection().Get(namespace, localID, true)
	updated.Type = current.Type
	updated.Name = current.Name

	hc.After = updated
	if err := x.hooks.run(ctx, PostUpdate, hc); err != nil {
		return nil, err
	}
	if err := x.hooks.run(ctx, PostMutation, hc); err != nil {
		return nil, err
	}

	if opts.ReturnDocument == "before" {
		return current, nil
	}
	return updated, nil
}

func (x *Executor) insertViaUpdate(ctx context.Context, namespace, localID string, update document.Doc, opts Options) (*document.Entity, error) {
	res, err := mutate.ApplyOperators(document.Doc{}, update, mutate.Options{Timestamp: x.now(), IsInsert: true})
	if err != nil {
		return nil, err
	}
	input := make(map[string]any, len(res.Document))
	for k, v := range res.Document {
		input[k] = v
	}
	return x.createWithLocalID(ctx, namespace, localID, input, opts)
}

func (x *Executor) createWithLocalID(ctx context.Context, namespace, localID string, input map[string]any, opts Options) (*document.Entity, error) {
	if err := document.ValidateLocalID(localID); err != nil {
		return nil, &parquedberrors.ValidationError{Namespace: namespace, Field: "id", Reason: err.Error()}
	}
	fields, err := x.resolveRelationships(ctx, x.schemas[namespace], input, opts)
	if err != nil {
		return nil, err
	}
	actor := x.actorOf(opts)
	ts := x.now()
	doc := fields.Clone()
	doc["version"] = float64(1)

	e := &event.Event{
		ID:     x.ids.NextID(),
		TS:     ts.UnixMilli(),
		Op:     event.OpCreate,
		Target: event.EncodeTarget(namespace, localID),
		After:  doc,
		Actor:  &actor,
	}
	if err := x.store.Append(ctx, e); err != nil {
		return nil, err
	}
	x.store.Projection().Apply(e)
	entity, _ := x.store.Projection().Get(namespace, localID, true)
	return entity, nil
}

// Delete soft-deletes by default, tombstoning the entity while leaving
// it in the projection for includeDeleted reads and Restore. Hard
// emits a PURGE event instead: the projector forgets the target
// entirely, so a subsequent get(..., includeDeleted:true) returns not-
// found and a replay of the log from genesis reconstructs the same
// absence (the event log itself is append-only and never rewritten
// outside compaction; PURGE is a regular event in it, not an erasure
// of history). Deleting an already soft-deleted entity with Hard unset
// returns a deletedCount of 0; Hard always proceeds as long as the
// entity (soft-deleted or not) currently exists.
func (x *Executor) Delete(ctx context.Context, namespace, localID string, opts Options) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	current, exists := x.store.Projection().Get(namespace, localID, true)
	if !exists {
		return 0, nil
	}
	if !opts.Hard && current.IsDeleted() {
		return 0, nil
	}

	op := event.OpDelete
	if opts.Hard {
		op = event.OpPurge
	}

	hc := &HookContext{Op: op, Namespace: namespace, LocalID: localID, Before: current}
	if err := x.hooks.run(ctx, PreMutation, hc); err != nil {
		return 0, err
	}
	if err := x.hooks.run(ctx, PreDelete, hc); err != nil {
		return 0, err
	}

	actor := x.actorOf(opts)
	ts := x.now()
	e := &event.Event{
		ID:     x.ids.NextID(),
		TS:     ts.UnixMilli(),
		Op:     op,
		Target: event.EncodeTarget(namespace, localID),
		Before: current.Fields.Clone(),
		Actor:  &actor,
	}
	if err := x.store.Append(ctx, e); err != nil {
		return 0, err
	}
	x.store.Projection().Apply(e)

	hc.After, _ = x.store.Projection().Get(namespace, localID, true)
	if err := x.hooks.run(ctx, PostDelete, hc); err != nil {
		return 0, err
	}
	if err := x.hooks.run(ctx, PostMutation, hc); err != nil {
		return 0, err
	}

	return 1, nil
}

// Restore clears deletion marks. A never-deleted entity is returned
// unchanged without bumping its version; an absent entity returns nil.
func (x *Executor) Restore(ctx context.Context, namespace, localID string) (*document.Entity, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	current, exists := x.store.Projection().Get(namespace, localID, true)
	if !exists {
		return nil, nil
	}
	if !current.IsDeleted() {
		return current, nil
	}

	actor := x.defaultActor
	ts := x.now()
	e := &event.Event{
		ID:     x.ids.NextID(),
		TS:     ts.UnixMilli(),
		Op:     event.OpRestore,
		Target: event.EncodeTarget(namespace, localID),
		Actor:  &actor,
	}
	if err := x.store.Append(ctx, e); err != nil {
		return nil, err
	}
	x.store.Projection().Apply(e)

	restored, _ := x.store.Projection().Get(namespace, localID, false)
	return restored, nil
}

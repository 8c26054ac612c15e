// Package projector reconstructs entity state by replaying the event
// log, the read path every get/find call is served from.
package projector

import (
	"sort"
	"time"

	"github.com/parquedb/parquedb/pkg/document"
	"github.com/parquedb/parquedb/pkg/event"
)

// Projection is a keyed in-memory store of reconstructed entities,
// ordered by most recent update for stable iteration.
type Projection struct {
	byKey map[string]*document.Entity
	order []string
}

// New creates an empty projection.
func New() *Projection {
	return &Projection{byKey: make(map[string]*document.Entity)}
}

func keyOf(id document.EntityId) string { return id.String() }

// Apply replays one event against the projection, following the
// CREATE/UPDATE/DELETE/RESTORE rules: the projection of the log onto a
// target never lowers its version.
func (p *Projection) Apply(e *event.Event) {
	namespace, localID, ok := event.DecodeTarget(e.Target)
	if !ok {
		return
	}
	id, err := document.NewEntityId(namespace, localID)
	if err != nil {
		return
	}
	key := keyOf(id)

	switch e.Op {
	case event.OpCreate:
		entity := entityFromDoc(id, e)
		p.upsert(key, entity)
	case event.OpUpdate:
		entity, exists := p.byKey[key]
		if !exists {
			entity = entityFromDoc(id, e)
		} else {
			entity = entity.Clone()
			entity.Fields = e.After.Clone()
			entity.Version = versionOf(e.After, entity.Version)
			entity.UpdatedAt = e.TSTime()
			if e.Actor != nil {
				entity.UpdatedBy = *e.Actor
			}
		}
		p.upsert(key, entity)
	case event.OpDelete:
		entity, exists := p.byKey[key]
		if !exists {
			entity = entityFromDoc(id, e)
			if e.Before != nil {
				entity.Fields = e.Before.Clone()
			}
		}
		entity = entity.Clone()
		ts := e.TSTime()
		entity.DeletedAt = &ts
		if e.Actor != nil {
			actor := *e.Actor
			entity.DeletedBy = &actor
		}
		p.upsert(key, entity)
	case event.OpRestore:
		entity, exists := p.byKey[key]
		if !exists {
			return
		}
		entity = entity.Clone()
		entity.DeletedAt = nil
		entity.DeletedBy = nil
		entity.UpdatedAt = e.TSTime()
		p.upsert(key, entity)
	case event.OpPurge:
		p.remove(key)
	}
}

// remove drops key from both the lookup map and the order slice, so a
// purged entity is fully forgotten rather than lingering as a nil
// lookup that Find/All would have to special-case.
func (p *Projection) remove(key string) {
	if _, exists := p.byKey[key]; !exists {
		return
	}
	delete(p.byKey, key)
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

func versionOf(doc document.Doc, fallback uint64) uint64 {
	if doc == nil {
		return fallback
	}
	if v, ok := document.AsNumber(doc["version"]); ok && uint64(v) > fallback {
		return uint64(v)
	}
	return fallback
}

func entityFromDoc(id document.EntityId, e *event.Event) *document.Entity {
	fields := e.After
	if fields == nil {
		fields = document.Doc{}
	}
	entity := &document.Entity{
		ID:        id,
		Version:   1,
		CreatedAt: e.TSTime(),
		UpdatedAt: e.TSTime(),
		Fields:    fields.Clone(),
	}
	if e.Actor != nil {
		entity.CreatedBy = *e.Actor
		entity.UpdatedBy = *e.Actor
	}
	return entity
}

func (p *Projection) upsert(key string, entity *document.Entity) {
	if _, exists := p.byKey[key]; !exists {
		p.order = append(p.order, key)
	}
	p.byKey[key] = entity
}

// Rebuild replays every event in id order, grouping by target first so
// interleaved writes to different entities in the log still apply
// per-target in the correct relative order.
func Rebuild(events []*event.Event) *Projection {
	byTarget := make(map[string][]*event.Event)
	for _, e := range events {
		byTarget[e.Target] = append(byTarget[e.Target], e)
	}
	for target := range byTarget {
		sort.Slice(byTarget[target], func(i, j int) bool {
			return byTarget[target][i].ID < byTarget[target][j].ID
		})
	}

	p := New()
	// Apply target-grouped runs in first-seen order, each run already
	// sorted ascending by id, so every target's own order is preserved.
	seen := make(map[string]bool)
	for _, e := range events {
		if seen[e.Target] {
			continue
		}
		seen[e.Target] = true
		for _, te := range byTarget[e.Target] {
			p.Apply(te)
		}
	}
	return p
}

// Get returns the entity for (namespace, localId). By default
// soft-deleted entities are hidden; includeDeleted surfaces them.
func (p *Projection) Get(namespace, localID string, includeDeleted bool) (*document.Entity, bool) {
	id, err := document.NewEntityId(namespace, localID)
	if err != nil {
		return nil, false
	}
	entity, ok := p.byKey[keyOf(id)]
	if !ok {
		return nil, false
	}
	if entity.IsDeleted() && !includeDeleted {
		return nil, false
	}
	return entity, true
}

// Find returns every entity matched by predicate, most-recently-updated first.
func (p *Projection) Find(includeDeleted bool, predicate func(*document.Entity) bool) []*document.Entity {
	out := make([]*document.Entity, 0, len(p.byKey))
	for _, key := range p.order {
		entity := p.byKey[key]
		if entity.IsDeleted() && !includeDeleted {
			continue
		}
		if predicate != nil && !predicate(entity) {
			continue
		}
		out = append(out, entity)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// All returns every entity currently tracked, deleted or not.
func (p *Projection) All() []*document.Entity {
	return p.Find(true, nil)
}

// Touch is used by tests and the executor's in-process cache to record
// the initial state of an entity created outside event replay (e.g.
// before its CREATE event is durably flushed to a segment).
func (p *Projection) Touch(entity *document.Entity, at time.Time) {
	entity.UpdatedAt = at
	p.upsert(keyOf(entity.ID), entity)
}

package document

import "time"

// Entity is a versioned document with identity and audit fields. User
// fields and relationship fields both live in Fields; built-in system
// fields have first-class struct fields so the executor, projector,
// and filter evaluator never have to special-case them inside a
// dynamic map.
type Entity struct {
	ID        EntityId
	Type      string
	Name      string
	Version   uint64
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy EntityId
	UpdatedBy EntityId
	DeletedAt *time.Time
	DeletedBy *EntityId

	// Fields holds user-supplied scalar/object/array data plus any
	// relationship values (RelLink/RelSet), keyed by field name.
	Fields Doc
}

// IsDeleted reports whether the entity carries a soft-delete mark.
func (e *Entity) IsDeleted() bool {
	return e != nil && e.DeletedAt != nil
}

// Clone returns a deep copy of the entity, safe to mutate without
// affecting the projection's stored copy.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	clone := *e
	if e.DeletedAt != nil {
		t := *e.DeletedAt
		clone.DeletedAt = &t
	}
	if e.DeletedBy != nil {
		id := *e.DeletedBy
		clone.DeletedBy = &id
	}
	clone.Fields = e.Fields.Clone()
	return &clone
}

// RelLink is a single-valued outbound relationship: exactly one
// (displayName -> EntityId) pair.
type RelLink struct {
	DisplayName string
	Target      EntityId
}

// RelSetEntry is one user entry inside a RelSet, in insertion order.
type RelSetEntry struct {
	DisplayName string
	Target      EntityId
}

// RelSet is a multi-valued relationship: an insertion-ordered list of
// (displayName -> EntityId) entries deduplicated by displayName, plus
// reserved pagination metadata that never mixes with user entries.
type RelSet struct {
	Entries []RelSetEntry
	Count   int
	Next    string // opaque cursor, empty when there is no further page
}

// Upsert inserts or replaces the entry for displayName, preserving
// insertion order and collapsing duplicates as required by the data
// model.
func (rs *RelSet) Upsert(displayName string, target EntityId) {
	for i := range rs.Entries {
		if rs.Entries[i].DisplayName == displayName {
			rs.Entries[i].Target = target
			return
		}
	}
	rs.Entries = append(rs.Entries, RelSetEntry{DisplayName: displayName, Target: target})
}

// Remove deletes the entry for displayName, if present.
func (rs *RelSet) Remove(displayName string) {
	for i := range rs.Entries {
		if rs.Entries[i].DisplayName == displayName {
			rs.Entries = append(rs.Entries[:i], rs.Entries[i+1:]...)
			return
		}
	}
}

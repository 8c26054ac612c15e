// Package relate resolves forward and reverse relationship fields
// against a projection, and implements the auto-create semantics for
// forward references supplied as bare localId strings.
package relate

import (
	"sort"
	"strings"

	parquedberrors "github.com/parquedb/parquedb/internal/errors"
	"github.com/parquedb/parquedb/internal/projector"
	"github.com/parquedb/parquedb/internal/schema"
	"github.com/parquedb/parquedb/pkg/document"
)

// GetRelatedOptions controls pagination and post-fetch filtering of a
// relationship read. Predicate, Limit and Cursor operate on the fetched
// target entities, not on the edges themselves.
type GetRelatedOptions struct {
	Predicate func(*document.Entity) bool
	Limit     int
	Cursor    string
}

// GetRelatedResult is the shape returned by getRelated.
type GetRelatedResult struct {
	Items      []*document.Entity
	HasMore    bool
	NextCursor string
	Total      int
}

// ResolveOutbound returns the RelLink or RelSet value for a forward
// relationship field already stored on the entity.
func ResolveOutbound(proj *projector.Projection, rel *schema.RelationshipType, raw any, maxInbound int) any {
	switch rel.Cardinality {
	case schema.Single:
		link, ok := raw.(document.RelLink)
		if !ok {
			return nil
		}
		return link
	default:
		set, ok := raw.(document.RelSet)
		if !ok {
			return document.RelSet{}
		}
		return truncateRelSet(set, maxInbound)
	}
}

// ResolveInbound scans sourceNamespace in the projection for entities
// whose forwardField references id, returning a RelSet. A
// maxInbound of 0 excludes the relationship entirely (nil).
func ResolveInbound(proj *projector.Projection, id document.EntityId, sourceNamespace, forwardField string, maxInbound int) *document.RelSet {
	if maxInbound == 0 {
		return nil
	}
	var entries []document.RelSetEntry
	for _, e := range proj.Find(false, func(e *document.Entity) bool {
		return e.ID.Namespace == sourceNamespace
	}) {
		raw, ok := e.Fields[forwardField]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case document.RelLink:
			if v.Target == id {
				entries = append(entries, document.RelSetEntry{DisplayName: e.Name, Target: e.ID})
			}
		case document.RelSet:
			for _, entry := range v.Entries {
				if entry.Target == id {
					entries = append(entries, document.RelSetEntry{DisplayName: e.Name, Target: e.ID})
				}
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DisplayName < entries[j].DisplayName })

	set := document.RelSet{Entries: entries, Count: len(entries)}
	return truncateRelSetPtr(set, maxInbound)
}

func truncateRelSet(set document.RelSet, maxInbound int) document.RelSet {
	return *truncateRelSetPtr(set, maxInbound)
}

func truncateRelSetPtr(set document.RelSet, maxInbound int) *document.RelSet {
	set.Count = len(set.Entries)
	if maxInbound > 0 && len(set.Entries) > maxInbound {
		set.Next = set.Entries[maxInbound].DisplayName
		set.Entries = set.Entries[:maxInbound]
	}
	return &set
}

// GetRelated fetches the target entities for a resolved relationship
// value (RelLink or RelSet), applying predicate/limit/cursor to the
// fetched targets.
func GetRelated(proj *projector.Projection, value any, opts GetRelatedOptions) GetRelatedResult {
	var ids []document.EntityId
	switch v := value.(type) {
	case document.RelLink:
		if !v.Target.IsZero() {
			ids = append(ids, v.Target)
		}
	case document.RelSet:
		for _, e := range v.Entries {
			ids = append(ids, e.Target)
		}
	}

	started := opts.Cursor == ""
	var items []*document.Entity
	for _, id := range ids {
		if !started {
			if id.String() == opts.Cursor {
				started = true
			}
			continue
		}
		entity, ok := proj.Get(id.Namespace, id.LocalID, false)
		if !ok {
			continue
		}
		if opts.Predicate != nil && !opts.Predicate(entity) {
			continue
		}
		items = append(items, entity)
	}

	total := len(items)
	hasMore := false
	nextCursor := ""
	if opts.Limit > 0 && len(items) > opts.Limit {
		hasMore = true
		nextCursor = items[opts.Limit-1].ID.String()
		items = items[:opts.Limit]
	}

	return GetRelatedResult{Items: items, HasMore: hasMore, NextCursor: nextCursor, Total: total}
}

// StubCreator creates a minimal stub entity of targetType/localID when
// auto-create needs a target that does not yet exist (or is
// tombstoned). It returns the resulting entity id.
type StubCreator func(targetType, localID string) (document.EntityId, error)

// ResolveAutoCreateValue interprets a raw forward-reference value
// (string localId, array of them, or an already-resolved
// RelLink/RelSet) against auto-create semantics. Non-transitive: a
// nested object value is never itself recursively auto-created here,
// only string localIds are.
func ResolveAutoCreateValue(targetType string, raw any, single bool, lookup func(localID string) (document.EntityId, bool), create StubCreator) (any, error) {
	if single {
		id, err := resolveOne(targetType, raw, lookup, create)
		if err != nil {
			return nil, err
		}
		if id == nil {
			return nil, nil
		}
		return document.RelLink{DisplayName: displayNameOf(raw), Target: *id}, nil
	}

	items, ok := raw.([]any)
	if !ok {
		resolved, err := resolveOne(targetType, raw, lookup, create)
		if err != nil || resolved == nil {
			return document.RelSet{}, err
		}
		items = []any{raw}
	}

	var set document.RelSet
	seen := make(map[string]bool)
	for _, item := range items {
		id, err := resolveOne(targetType, item, lookup, create)
		if err != nil {
			return nil, err
		}
		if id == nil {
			continue
		}
		name := displayNameOf(item)
		if seen[name] {
			continue
		}
		seen[name] = true
		set.Upsert(name, *id)
	}
	return set, nil
}

func displayNameOf(raw any) string {
	if s, ok := raw.(string); ok {
		return s
	}
	return ""
}

func resolveOne(targetType string, raw any, lookup func(string) (document.EntityId, bool), create StubCreator) (*document.EntityId, error) {
	s, ok := raw.(string)
	if !ok {
		// Non-string forward references (already-resolved ids or
		// objects missing the $id field) are silently skipped.
		return nil, nil
	}
	if s == "" {
		return nil, &parquedberrors.ValidationError{Field: targetType, Reason: "relationship reference must not be an empty string"}
	}
	if strings.Contains(s, "/") {
		s = strings.TrimPrefix(s, targetType+"/")
	}
	if id, found := lookup(s); found {
		return &id, nil
	}
	id, err := create(targetType, s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

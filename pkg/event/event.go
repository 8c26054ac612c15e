package event

import (
	"strings"
	"time"

	"github.com/parquedb/parquedb/pkg/document"
)

// Op identifies the kind of mutation an Event records.
type Op string

const (
	OpCreate  Op = "CREATE"
	OpUpdate  Op = "UPDATE"
	OpDelete  Op = "DELETE"
	OpRestore Op = "RESTORE"
	// OpPurge hard-removes a target from the projection entirely: unlike
	// OpDelete it leaves no tombstone, so a later replay of the log must
	// also forget the target rather than surfacing it as deleted.
	OpPurge Op = "PURGE"
)

// Event is one append-only record in the log. Events for a given
// Target form a total order consistent with the target entity's
// version sequence; the projection of the log onto a target never
// lowers the version (§3).
type Event struct {
	ID       string
	TS       int64 // millisecond timestamp
	Op       Op
	Target   string // "namespace:localId", see EncodeTarget
	Before   document.Doc
	After    document.Doc
	Actor    *document.EntityId
	Metadata document.Doc
}

// EncodeTarget renders the event-payload target string. This is the
// colon-delimited form and intentionally differs from
// document.EntityId.String(), which uses '/'.
func EncodeTarget(namespace, localID string) string {
	return namespace + ":" + localID
}

// DecodeTarget parses the colon-delimited target string.
func DecodeTarget(target string) (namespace, localID string, ok bool) {
	ns, id, found := strings.Cut(target, ":")
	if !found {
		return "", "", false
	}
	return ns, id, true
}

// Clone returns a deep copy of the event, safe to retain independently
// of any buffer that produced it.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Before = e.Before.Clone()
	clone.After = e.After.Clone()
	clone.Metadata = e.Metadata.Clone()
	if e.Actor != nil {
		actor := *e.Actor
		clone.Actor = &actor
	}
	return &clone
}

// TSTime returns the event's millisecond timestamp as a time.Time.
func (e *Event) TSTime() time.Time {
	return time.UnixMilli(e.TS)
}

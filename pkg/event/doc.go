// Package event defines the append-only event record that backs
// ParqueDB's log: the mutation operations, their before/after
// snapshots, and the sortable identifier that orders them.
//
// This package owns exactly two things the rest of the system must
// treat as authoritative: the event-id generator (§4.C) and the
// "namespace:localId" target encoding used inside event payloads,
// which is distinct from document.EntityId's "namespace/localId" form.
package event

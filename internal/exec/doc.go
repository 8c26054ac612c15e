// Package exec implements the mutation executor: create, update,
// delete, and restore, each serialized by a single write lock and
// wrapped in a registration-ordered hook pipeline around exactly one
// emitted event per accepted operation.
package exec

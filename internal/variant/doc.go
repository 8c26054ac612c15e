// Package variant implements shredded-column layout for entity
// documents stored inside a single "variant" column, and the filter
// rewriting that lets row-group statistics on the shredded copies
// prune row groups without reading the opaque variant bytes.
package variant

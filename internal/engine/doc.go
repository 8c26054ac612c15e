// Package engine is the public facade: it wires blob storage, segment
// writing, manifest bookkeeping, compaction, the mutation executor,
// the projection, and the filter/aggregate/relate helpers into the
// exact call surface external consumers use.
package engine

package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/parquedb/parquedb/internal/aggregate"
	"github.com/parquedb/parquedb/internal/codec"
	"github.com/parquedb/parquedb/internal/compaction"
	"github.com/parquedb/parquedb/internal/exec"
	"github.com/parquedb/parquedb/internal/filter"
	"github.com/parquedb/parquedb/internal/manifest"
	"github.com/parquedb/parquedb/internal/projector"
	"github.com/parquedb/parquedb/internal/relate"
	"github.com/parquedb/parquedb/internal/schema"
	"github.com/parquedb/parquedb/internal/segment"
	"github.com/parquedb/parquedb/internal/variant"
	"github.com/parquedb/parquedb/pkg/blob"
	"github.com/parquedb/parquedb/pkg/document"
	"github.com/parquedb/parquedb/pkg/event"
)

// Config is the environment/configuration surface named in §6:
// filesystem root is implicit in the blob.Store passed to Open, the
// rest governs branch naming, bulk-buffering, and compaction.
type Config struct {
	Branch             string
	MaxBufferedEvents  int
	MaxEventsPerSegment int
	Compaction         compaction.Config
	DefaultActor       document.EntityId
}

// Engine is the public facade over the event-sourced document store:
// it owns the manifest, the projection, the compaction engine, and
// the mutation executor, and exposes the exact call surface consumers
// use (create/get/find/update/delete/restore/getRelated/aggregate/
// bulk-operation and compaction controls).
type Engine struct {
	mu sync.Mutex

	store   blob.Store
	cfg     Config
	m       *manifest.Manifest
	proj    *projector.Projection
	batch   *segment.BatchWriter
	compact *compaction.Engine
	exec    *exec.Executor
	schemas map[string]*schema.TypeDef

	// snapshots holds, per namespace, the last entity-snapshot Parquet
	// file written at flush/compaction time: its bytes, decoded schema
	// and row-group metadata. find()/aggregate() use the metadata for
	// row-group pushdown and column statistics, then always resolve the
	// actual candidate rows from the live projection, since the
	// snapshot can be one flush behind the in-memory state.
	snapshots map[string]*entitySnapshot
}

type entitySnapshot struct {
	schema      *parquet.Schema
	shredFields []codec.ShredField
	data        []byte
	metadata    []codec.RowGroupMetadata
}

// Open loads (or creates) the branch manifest, replays every segment
// into a fresh projection, and wires the executor and compaction
// engine on top.
func Open(ctx context.Context, store blob.Store, cfg Config) (*Engine, error) {
	if cfg.Branch == "" {
		cfg.Branch = "events"
	}

	m, err := manifest.LoadManifest(ctx, store, cfg.Branch)
	if err != nil {
		return nil, err
	}

	var segments []*segment.Segment
	for _, entry := range m.Segments {
		data, err := store.Read(ctx, manifest.SegmentPath(cfg.Branch, entry.File))
		if err != nil {
			return nil, err
		}
		segments = append(segments, &segment.Segment{
			File: entry.File, Bytes: data,
			MinID: entry.MinID, MaxID: entry.MaxID,
			MinTS: entry.MinTS, MaxTS: entry.MaxTS,
			Count: entry.Count, Checksum: entry.Checksum,
		})
	}
	events, err := segment.ReadEventsFromSegments(segments)
	if err != nil {
		return nil, err
	}
	proj := projector.Rebuild(events)

	e := &Engine{
		store:     store,
		cfg:       cfg,
		m:         m,
		proj:      proj,
		batch:     segment.NewBatchWriter(segment.Options{MaxEventsPerSegment: cfg.MaxEventsPerSegment}),
		compact:   compaction.New(store, cfg.Branch, cfg.Compaction),
		schemas:   make(map[string]*schema.TypeDef),
		snapshots: make(map[string]*entitySnapshot),
	}
	e.exec = exec.New(e, cfg.DefaultActor)

	if cfg.Compaction.AutoCompactOnStartup && e.compact.ShouldCompact(m) {
		if _, err := e.compact.Compact(ctx); err != nil {
			return nil, err
		}
		if err := e.reloadManifest(ctx); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// RegisterSchema installs a namespace's parsed type definition for
// $id/$name derivation and relationship resolution.
func (e *Engine) RegisterSchema(namespace string, def *schema.TypeDef) {
	e.schemas[namespace] = def
	e.exec.RegisterSchema(namespace, def)
}

// RegisterHook installs a mutation-pipeline hook, in call order.
func (e *Engine) RegisterHook(point exec.HookPoint, h exec.Hook) {
	e.exec.RegisterHook(point, h)
}

// Append satisfies exec.Store: it buffers the event and flushes to a
// new segment when the buffer threshold is reached, keeping the
// manifest and compaction engine informed synchronously, consistent
// with the single-threaded cooperative concurrency model (the
// executor already holds the write lock for the whole call).
func (e *Engine) Append(ctx context.Context, ev *event.Event) error {
	return e.append(ctx, ev)
}

// Projection satisfies exec.Store.
func (e *Engine) Projection() *projector.Projection { return e.proj }

func (e *Engine) reloadManifest(ctx context.Context) error {
	m, err := manifest.LoadManifest(ctx, e.store, e.cfg.Branch)
	if err != nil {
		return err
	}
	e.m = m
	return nil
}

// Create, Get, Find, Update, Delete, Restore delegate straight to the
// executor/projection; they exist on Engine so callers only depend on
// one facade type.
func (e *Engine) Create(ctx context.Context, namespace string, input map[string]any, opts exec.Options) (*document.Entity, error) {
	return e.exec.Create(ctx, namespace, input, opts)
}

func (e *Engine) Get(namespace, localID string, includeDeleted bool) (*document.Entity, bool) {
	return e.proj.Get(namespace, localID, includeDeleted)
}

// FindOptions mirrors the find() call shape from §6.
type FindOptions struct {
	Limit          int
	Cursor         string
	IncludeDeleted bool
	Sort           func(a, b *document.Entity) bool
}

// FindResult mirrors the {items, hasMore, nextCursor?, total?} shape.
type FindResult struct {
	Items      []*document.Entity
	HasMore    bool
	NextCursor string
	Total      int
}

func (e *Engine) Find(namespace string, f filter.Filter, opts FindOptions) FindResult {
	var matched []*document.Entity
	if ids, ok := e.candidateLocalIDs(namespace, f); ok {
		for _, id := range ids {
			ent, exists := e.proj.Get(namespace, id, opts.IncludeDeleted)
			if !exists || !filter.Match(ent.Fields, f) {
				continue
			}
			matched = append(matched, ent)
		}
	} else {
		matched = e.proj.Find(opts.IncludeDeleted, func(ent *document.Entity) bool {
			if ent.ID.Namespace != namespace {
				return false
			}
			return filter.Match(ent.Fields, f)
		})
	}

	if opts.Sort != nil {
		sort.SliceStable(matched, func(i, j int) bool { return opts.Sort(matched[i], matched[j]) })
	}

	start := 0
	if opts.Cursor != "" {
		for i, ent := range matched {
			if ent.ID.String() == opts.Cursor {
				start = i + 1
				break
			}
		}
	}
	page := matched[minInt(start, len(matched)):]

	total := len(matched)
	hasMore := false
	nextCursor := ""
	if opts.Limit > 0 && len(page) > opts.Limit {
		hasMore = true
		nextCursor = page[opts.Limit-1].ID.String()
		page = page[:opts.Limit]
	}

	return FindResult{Items: page, HasMore: hasMore, NextCursor: nextCursor, Total: total}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (e *Engine) Update(ctx context.Context, namespace, localID string, update document.Doc, opts exec.Options) (*document.Entity, error) {
	return e.exec.Update(ctx, namespace, localID, update, opts)
}

func (e *Engine) Delete(ctx context.Context, namespace, localID string, opts exec.Options) (int, error) {
	return e.exec.Delete(ctx, namespace, localID, opts)
}

func (e *Engine) Restore(ctx context.Context, namespace, localID string) (*document.Entity, error) {
	return e.exec.Restore(ctx, namespace, localID)
}

// GetRelated resolves a relationship field already stored on the
// source entity and fetches its targets, honoring predicate/limit/cursor.
func (e *Engine) GetRelated(namespace, localID, field string, opts relate.GetRelatedOptions) (relate.GetRelatedResult, bool) {
	ent, ok := e.proj.Get(namespace, localID, false)
	if !ok {
		return relate.GetRelatedResult{}, false
	}
	raw, ok := ent.Fields[field]
	if !ok {
		return relate.GetRelatedResult{}, false
	}
	return relate.GetRelated(e.proj, raw, opts), true
}

// Aggregate runs aggregate.Run over every live entity's fields in
// namespace. When a shredded entity-snapshot Parquet file exists for
// namespace, its row-group statistics back a MetadataSource so count(*)
// and min/max specs can answer from recorded column stats instead of
// touching every row; sum, avg and count on a field still stream
// through the in-memory rows the MetadataSource embeds.
func (e *Engine) Aggregate(namespace string, specs map[string]aggregate.Spec) (map[string]any, map[string]aggregate.Stats, error) {
	var rows []map[string]any
	for _, ent := range e.proj.Find(false, func(ent *document.Entity) bool { return ent.ID.Namespace == namespace }) {
		rows = append(rows, map[string]any(ent.Fields))
	}
	docs := aggregate.DocsSource{Rows: rows}

	if snap := e.snapshots[namespace]; snap != nil {
		src := &aggregate.MetadataSource{Metadata: snap.metadata, DocsSource: docs}
		return aggregate.Run(src, specs)
	}
	return aggregate.Run(&docs, specs)
}

// BeginBulkOperation suppresses auto-compaction triggers.
func (e *Engine) BeginBulkOperation() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compact.BeginBulkOperation()
}

// EndBulkOperation resumes normal triggering; flush drains the event
// buffer to a segment first, compact runs a merge afterward if
// thresholds were crossed during the bulk window.
func (e *Engine) EndBulkOperation(ctx context.Context, flush, compactNow bool) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if flush && !e.batch.IsEmpty() {
		if err := e.flushLocked(ctx); err != nil {
			return 0, err
		}
	}
	n, err := e.compact.EndBulkOperation(ctx, compactNow)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if rerr := e.reloadManifest(ctx); rerr != nil {
			return n, rerr
		}
	}
	return n, nil
}

// Compact merges every segment in the manifest into one.
func (e *Engine) Compact(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := e.compact.Compact(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if rerr := e.reloadManifest(ctx); rerr != nil {
			return n, rerr
		}
		if rerr := e.refreshEntitySnapshots(ctx); rerr != nil {
			return n, rerr
		}
	}
	return n, nil
}

// GetCompactionStats reports the current compaction stats.
func (e *Engine) GetCompactionStats() compaction.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compact.GetStats(e.m)
}

// DisposeAsync flushes any buffered events to a durable segment and
// saves the manifest, the shutdown-path equivalent of "flush + close".
func (e *Engine) DisposeAsync(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.batch.IsEmpty() {
		return nil
	}
	return e.flushLocked(ctx)
}

func (e *Engine) append(ctx context.Context, ev *event.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batch.Add(ev)
	if e.cfg.MaxBufferedEvents > 0 && e.batch.Len() >= e.cfg.MaxBufferedEvents {
		return e.flushLocked(ctx)
	}
	return nil
}

func (e *Engine) flushLocked(ctx context.Context) error {
	segments, err := e.batch.Flush()
	if err != nil {
		return err
	}
	for _, seg := range segments {
		if err := e.store.WriteAtomic(ctx, manifest.SegmentPath(e.cfg.Branch, seg.File), seg.Bytes); err != nil {
			return err
		}
		e.m.AddSegment(seg)
	}
	if err := manifest.SaveManifest(ctx, e.store, e.m); err != nil {
		return err
	}
	if err := e.refreshEntitySnapshots(ctx); err != nil {
		return err
	}
	e.compact.NoteAppend(e.m)
	if e.compact.ShouldCompact(e.m) {
		if _, err := e.compact.Compact(ctx); err != nil {
			return err
		}
		return e.reloadManifest(ctx)
	}
	return nil
}

// refreshEntitySnapshots rewrites the entity-snapshot Parquet file for
// every namespace with a registered schema, reflecting the projection
// as of the most recent flush. Namespaces without a schema have no
// shred configuration to drive columnar layout, so find()/aggregate()
// fall back to scanning the in-memory projection for them.
func (e *Engine) refreshEntitySnapshots(ctx context.Context) error {
	for namespace, def := range e.schemas {
		if def == nil {
			continue
		}
		if err := e.writeEntitySnapshot(ctx, namespace, def); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) writeEntitySnapshot(ctx context.Context, namespace string, def *schema.TypeDef) error {
	shredNames := variant.GetDataShredFields(def)
	shredFields := make([]codec.ShredField, 0, len(shredNames))
	for _, name := range shredNames {
		shredFields = append(shredFields, codec.ShredField{Name: name, Kind: variant.ShredFieldKind(def, name)})
	}
	docSchema := codec.DocumentSchema(variant.ColumnName, shredFields)

	entities := e.proj.Find(true, func(ent *document.Entity) bool { return ent.ID.Namespace == namespace })
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID.LocalID < entities[j].ID.LocalID })
	rows := make([]codec.DocumentRow, 0, len(entities))
	for _, ent := range entities {
		var deletedAt int64
		if ent.DeletedAt != nil {
			deletedAt = ent.DeletedAt.UnixMilli()
		}
		typed := make(map[string]any, len(shredFields))
		for _, sf := range shredFields {
			if v, ok := ent.Fields[sf.Name]; ok {
				typed[sf.Name] = variant.CoerceShredValue(sf.Kind, v)
			}
		}
		rows = append(rows, codec.DocumentRow{
			Namespace: namespace,
			LocalID:   ent.ID.LocalID,
			Version:   int64(ent.Version),
			CreatedAt: ent.CreatedAt.UnixMilli(),
			UpdatedAt: ent.UpdatedAt.UnixMilli(),
			DeletedAt: deletedAt,
			Data:      ent.Fields,
			Typed:     typed,
		})
	}

	data, err := codec.WriteDocuments(docSchema, variant.ColumnName, rows)
	if err != nil {
		return err
	}
	if err := e.store.WriteAtomic(ctx, manifest.EntitySnapshotPath(e.cfg.Branch, namespace), data); err != nil {
		return err
	}
	meta, err := codec.ReadMetadata(manifest.EntitySnapshotPath(e.cfg.Branch, namespace), data)
	if err != nil {
		return err
	}

	e.snapshots[namespace] = &entitySnapshot{schema: docSchema, shredFields: shredFields, data: data, metadata: meta}
	return nil
}

// addDataColumnPrefix rewrites a caller-facing filter's leaf field
// names (e.g. "price") to the dotted path the variant column actually
// shreds them under ("$data.price"), so internal/variant's helpers
// (written against that convention) can recognize which leaves address
// a shredded field. Logical operators pass through untouched.
func addDataColumnPrefix(f filter.Filter) filter.Filter {
	out := make(filter.Filter, len(f))
	for key, val := range f {
		switch key {
		case "$and", "$or", "$nor":
			arr, ok := val.([]any)
			if !ok {
				out[key] = val
				continue
			}
			rewritten := make([]any, len(arr))
			for i, item := range arr {
				if sub, ok := asFilterTree(item); ok {
					rewritten[i] = addDataColumnPrefix(sub)
				} else {
					rewritten[i] = item
				}
			}
			out[key] = rewritten
		case "$not":
			if sub, ok := asFilterTree(val); ok {
				out[key] = addDataColumnPrefix(sub)
			} else {
				out[key] = val
			}
		default:
			out[variant.ColumnName+"."+key] = val
		}
	}
	return out
}

func asFilterTree(v any) (filter.Filter, bool) {
	switch t := v.(type) {
	case filter.Filter:
		return t, true
	case map[string]any:
		return filter.Filter(t), true
	default:
		return nil, false
	}
}

// candidateLocalIDs narrows namespace's search space using the last
// written entity snapshot's row-group statistics. ok is false when no
// snapshot exists yet or f addresses no shredded field, meaning no
// pruning was possible and the caller should scan the full projection;
// ok is true whenever pushdown ran, including when it narrows the
// candidate set to zero ids. The live projection, not the snapshot,
// remains the source of truth for every candidate's current fields.
func (e *Engine) candidateLocalIDs(namespace string, f filter.Filter) (ids []string, ok bool) {
	def := e.schemas[namespace]
	snap := e.snapshots[namespace]
	if def == nil || snap == nil {
		return nil, false
	}

	cfg := variant.Config{ColumnName: variant.ColumnName, Fields: variant.GetDataShredFields(def)}
	prefixed := addDataColumnPrefix(f)
	if !variant.CanPushdownWithShredding(prefixed, cfg) {
		return nil, false
	}
	shredded := variant.TransformFilterForShredding(prefixed, cfg)

	keep := func(meta codec.RowGroupMetadata) bool {
		stats := make(variant.RowGroupStats, len(meta.Columns))
		for _, c := range meta.Columns {
			if c.Min == nil || c.Max == nil {
				continue
			}
			stats[c.PathInSchema] = [2]any{c.Min, c.Max}
		}
		return !variant.ShouldSkipRowGroup(shredded, stats)
	}

	rows, err := codec.ReadRows(manifest.EntitySnapshotPath(e.cfg.Branch, namespace), snap.data, keep)
	if err != nil {
		return nil, false
	}

	rows(func(cols map[string]parquet.Value) bool {
		if v, ok := cols["local_id"]; ok {
			ids = append(ids, v.String())
		}
		return true
	})
	return ids, true
}

// Package compaction reduces many small segments to one, preserving
// every event and its effect on the projection.
package compaction

import (
	"context"
	"sync"
	"time"

	parquedberrors "github.com/parquedb/parquedb/internal/errors"
	"github.com/parquedb/parquedb/internal/manifest"
	"github.com/parquedb/parquedb/internal/segment"
	"github.com/parquedb/parquedb/pkg/blob"
)

// Config controls when compaction runs automatically. Legacy flat
// fields are consulted only to fill gaps in the structured fields.
type Config struct {
	Enabled                   bool
	EventThreshold            int
	BatchFileThreshold        int
	AutoCompactOnStartup      bool
	AutoCompactFileThreshold  int
	AutoCompactEventThreshold int
}

func (c Config) normalized() Config {
	if c.EventThreshold == 0 {
		c.EventThreshold = c.AutoCompactEventThreshold
	}
	if c.BatchFileThreshold == 0 {
		c.BatchFileThreshold = c.AutoCompactFileThreshold
	}
	return c
}

// Stats is the published state of the compaction engine.
type Stats struct {
	BatchFileCount       int
	TotalEventCount      int
	CompactionInProgress bool
	LastCompactedAt      time.Time
	CompactionConfig     Config
}

// Engine serializes compaction runs for a single branch and tracks
// bulk-operation suppression the way the spec's auto-compaction trigger requires.
type Engine struct {
	store  blob.Store
	branch string
	cfg    Config

	mu              sync.Mutex
	inProgress      bool
	bulkActive      bool
	bulkWantsFlush  bool
	lastCompactedAt time.Time
}

// New creates a compaction engine for one branch.
func New(store blob.Store, branch string, cfg Config) *Engine {
	return &Engine{store: store, branch: branch, cfg: cfg.normalized()}
}

// BeginBulkOperation suppresses auto-compaction triggers until EndBulkOperation is called.
func (e *Engine) BeginBulkOperation() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bulkActive = true
	e.bulkWantsFlush = false
}

// EndBulkOperation resumes normal triggering. If compactNow is true and
// thresholds were crossed during the bulk window, it runs Compact
// before returning.
func (e *Engine) EndBulkOperation(ctx context.Context, compactNow bool) (int, error) {
	e.mu.Lock()
	e.bulkActive = false
	shouldCompact := compactNow && e.bulkWantsFlush
	e.bulkWantsFlush = false
	e.mu.Unlock()

	if shouldCompact {
		return e.Compact(ctx)
	}
	return 0, nil
}

// NoteAppend checks the auto-compaction trigger after a successful
// append. During a bulk operation it only records that a trigger would
// have fired, for EndBulkOperation(true) to act on.
func (e *Engine) NoteAppend(m *manifest.Manifest) {
	if !e.cfg.Enabled {
		return
	}
	totalEvents := 0
	for _, s := range m.Segments {
		totalEvents += s.Count
	}
	crossed := (e.cfg.EventThreshold > 0 && totalEvents >= e.cfg.EventThreshold) ||
		(e.cfg.BatchFileThreshold > 0 && len(m.Segments) >= e.cfg.BatchFileThreshold)
	if !crossed {
		return
	}

	e.mu.Lock()
	if e.bulkActive {
		e.bulkWantsFlush = true
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
}

// ShouldCompact reports whether thresholds are currently exceeded,
// used at startup when AutoCompactOnStartup is set.
func (e *Engine) ShouldCompact(m *manifest.Manifest) bool {
	if !e.cfg.Enabled {
		return false
	}
	totalEvents := 0
	for _, s := range m.Segments {
		totalEvents += s.Count
	}
	return (e.cfg.EventThreshold > 0 && totalEvents >= e.cfg.EventThreshold) ||
		(e.cfg.BatchFileThreshold > 0 && len(m.Segments) >= e.cfg.BatchFileThreshold)
}

// Compact merges every segment in the manifest into one, preserving
// every event. Concurrent calls are serialized by the guard: a call
// that finds compaction already in progress returns 0 without error.
// Bulk operations suppress compaction outright; the caller must drive
// it via EndBulkOperation(true) instead.
func (e *Engine) Compact(ctx context.Context) (int, error) {
	e.mu.Lock()
	if e.inProgress {
		e.mu.Unlock()
		return 0, nil
	}
	if e.bulkActive {
		e.mu.Unlock()
		return 0, nil
	}
	e.inProgress = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inProgress = false
		e.mu.Unlock()
	}()

	m, err := manifest.LoadManifest(ctx, e.store, e.branch)
	if err != nil {
		return 0, &parquedberrors.CompactionError{Branch: e.branch, Err: err}
	}
	if len(m.Segments) <= 1 {
		return 0, nil
	}

	oldSegments := append([]manifest.SegmentEntry{}, m.Segments...)

	var all []*segment.Segment
	for _, entry := range oldSegments {
		data, err := e.store.Read(ctx, manifest.SegmentPath(e.branch, entry.File))
		if err != nil {
			return 0, &parquedberrors.CompactionError{Branch: e.branch, Err: err}
		}
		all = append(all, &segment.Segment{
			File: entry.File, Bytes: data,
			MinID: entry.MinID, MaxID: entry.MaxID,
			MinTS: entry.MinTS, MaxTS: entry.MaxTS,
			Count: entry.Count, Checksum: entry.Checksum,
		})
	}

	events, err := segment.ReadEventsFromSegments(all)
	if err != nil {
		return 0, &parquedberrors.CompactionError{Branch: e.branch, Err: err}
	}
	deduped := segment.DeduplicateEvents(events)

	merged, err := segment.WriteEventsToSegment(deduped, segment.Options{})
	if err != nil {
		return 0, &parquedberrors.CompactionError{Branch: e.branch, Err: err}
	}

	if err := e.store.WriteAtomic(ctx, manifest.SegmentPath(e.branch, merged.File), merged.Bytes); err != nil {
		return 0, &parquedberrors.CompactionError{Branch: e.branch, Err: err}
	}

	m.Replace([]*segment.Segment{merged})
	if err := manifest.SaveManifest(ctx, e.store, m); err != nil {
		return 0, &parquedberrors.CompactionError{Branch: e.branch, Err: err}
	}

	// Best-effort cleanup: a crash here leaves orphaned segment files,
	// never data loss, since the manifest swap already succeeded.
	for _, entry := range oldSegments {
		if entry.File == merged.File {
			continue
		}
		_ = e.store.Delete(ctx, manifest.SegmentPath(e.branch, entry.File))
	}

	e.mu.Lock()
	e.lastCompactedAt = time.Now()
	e.mu.Unlock()

	return len(deduped), nil
}

// Clear resets in-memory stats without deleting any segment file.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastCompactedAt = time.Time{}
	e.bulkWantsFlush = false
}

// GetStats reports the current compaction stats for a manifest snapshot.
func (e *Engine) GetStats(m *manifest.Manifest) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := 0
	for _, s := range m.Segments {
		total += s.Count
	}
	return Stats{
		BatchFileCount:       len(m.Segments),
		TotalEventCount:      total,
		CompactionInProgress: e.inProgress,
		LastCompactedAt:      e.lastCompactedAt,
		CompactionConfig:     e.cfg,
	}
}

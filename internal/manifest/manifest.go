// Package manifest maintains the ordered, atomically-replaced index of
// segments that defines a branch's canonical event log.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	parquedberrors "github.com/parquedb/parquedb/internal/errors"
	"github.com/parquedb/parquedb/internal/segment"
	"github.com/parquedb/parquedb/pkg/blob"
)

// SegmentEntry is a manifest's record of one segment: everything a
// reader needs to decide whether to open the file, without opening it.
type SegmentEntry struct {
	File     string `json:"file"`
	MinID    string `json:"minId"`
	MaxID    string `json:"maxId"`
	MinTS    int64  `json:"minTs"`
	MaxTS    int64  `json:"maxTs"`
	Count    int    `json:"count"`
	Checksum string `json:"checksum"`
}

// Manifest is the ordered index of segments for one branch.
type Manifest struct {
	Version     int            `json:"version"`
	Branch      string         `json:"branch"`
	Segments    []SegmentEntry `json:"segments"`
	LastEventID string         `json:"lastEventId"`
	LastEventTS int64          `json:"lastEventTs"`
}

func manifestPath(branch string) string {
	return fmt.Sprintf("%s/manifest.json", branch)
}

func segmentPath(branch, file string) string {
	return fmt.Sprintf("%s/%s", branch, file)
}

// CreateEmptyManifest returns a fresh manifest for a branch with no segments.
func CreateEmptyManifest(branch string) *Manifest {
	return &Manifest{Version: 1, Branch: branch}
}

func entryOf(seg *segment.Segment) SegmentEntry {
	return SegmentEntry{
		File:     seg.File,
		MinID:    seg.MinID,
		MaxID:    seg.MaxID,
		MinTS:    seg.MinTS,
		MaxTS:    seg.MaxTS,
		Count:    seg.Count,
		Checksum: seg.Checksum,
	}
}

// AddSegment appends a segment entry, keeping the list sorted by
// minId and advancing lastEventId/lastEventTs monotonically.
func (m *Manifest) AddSegment(seg *segment.Segment) {
	entry := entryOf(seg)
	m.Segments = append(m.Segments, entry)
	sort.Slice(m.Segments, func(i, j int) bool {
		return m.Segments[i].MinID < m.Segments[j].MinID
	})
	if entry.MaxID > m.LastEventID {
		m.LastEventID = entry.MaxID
	}
	if entry.MaxTS > m.LastEventTS {
		m.LastEventTS = entry.MaxTS
	}
	m.Version++
}

// Replace swaps the full segment list in one step, used by compaction
// to atomically drop many segments in favor of one merged segment.
func (m *Manifest) Replace(segments []*segment.Segment) {
	entries := make([]SegmentEntry, len(segments))
	for i, seg := range segments {
		entries[i] = entryOf(seg)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].MinID < entries[j].MinID })
	m.Segments = entries
	m.LastEventID = ""
	m.LastEventTS = 0
	for _, e := range entries {
		if e.MaxID > m.LastEventID {
			m.LastEventID = e.MaxID
		}
		if e.MaxTS > m.LastEventTS {
			m.LastEventTS = e.MaxTS
		}
	}
	m.Version++
}

// FindSegmentsInRange returns entries whose [MinTS, MaxTS] bounds
// intersect [minTs, maxTs].
func (m *Manifest) FindSegmentsInRange(minTs, maxTs int64) []SegmentEntry {
	var out []SegmentEntry
	for _, e := range m.Segments {
		if e.MaxTS < minTs || e.MinTS > maxTs {
			continue
		}
		out = append(out, e)
	}
	return out
}

// FindSegmentForEvent returns the entry whose [MinID, MaxID] range
// could contain eventID, or false if none matches.
func (m *Manifest) FindSegmentForEvent(eventID string) (SegmentEntry, bool) {
	for _, e := range m.Segments {
		if eventID >= e.MinID && eventID <= e.MaxID {
			return e, true
		}
	}
	return SegmentEntry{}, false
}

// LoadManifest reads and deserializes a branch's manifest. A missing
// manifest is treated as an empty, fresh store rather than an error.
func LoadManifest(ctx context.Context, store blob.Store, branch string) (*Manifest, error) {
	path := manifestPath(branch)
	exists, err := store.Exists(ctx, path)
	if err != nil {
		return nil, &parquedberrors.BlobStoreError{Operation: "exists", Path: path, Err: err}
	}
	if !exists {
		return CreateEmptyManifest(branch), nil
	}

	data, err := store.Read(ctx, path)
	if err != nil {
		return nil, &parquedberrors.BlobStoreError{Operation: "read", Path: path, Err: err}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &parquedberrors.ParquetReadError{Path: path, Cause: err}
	}
	return &m, nil
}

// SaveManifest serializes and atomically writes a branch's manifest.
func SaveManifest(ctx context.Context, store blob.Store, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	path := manifestPath(m.Branch)
	if err := store.WriteAtomic(ctx, path, data); err != nil {
		return &parquedberrors.BlobStoreError{Operation: "write", Path: path, Err: err}
	}
	return nil
}

// SegmentPath resolves a manifest entry's file name to a full blob path.
func SegmentPath(branch, file string) string {
	return segmentPath(branch, file)
}

// EntitySnapshotPath resolves the columnar entity snapshot file for
// one namespace on branch, rewritten in full on every flush/compaction
// rather than appended to, since it always reflects the current
// projection rather than the append-only event log.
func EntitySnapshotPath(branch, namespace string) string {
	return fmt.Sprintf("%s/entities/%s.parquet", branch, namespace)
}

package aggregate

import (
	"github.com/parquedb/parquedb/internal/codec"
	"github.com/parquedb/parquedb/pkg/document"
)

// DocsSource adapts an in-memory row set to Source, used when no
// Parquet row-group statistics are available (e.g. data still
// buffered, not yet flushed to a segment).
type DocsSource struct {
	Rows []map[string]any
}

func (s *DocsSource) TotalRows() (int64, bool) {
	return int64(len(s.Rows)), true
}

func (s *DocsSource) ColumnStats(field string) (min, max any, ok bool) {
	return nil, nil, false
}

func (s *DocsSource) StreamColumn(field string) (func(yield func(value any, isNull bool) bool), error) {
	rows := s.Rows
	return func(yield func(value any, isNull bool) bool) {
		for _, row := range rows {
			v, present := row[field]
			if !yield(v, !present || v == nil) {
				return
			}
		}
	}, nil
}

// MetadataSource answers TotalRows and min/max from segment row-group
// statistics already collected by the codec package, falling back to
// streaming column values supplied by the caller (decoded rows) for
// sum/avg/count(col), which statistics alone cannot answer.
type MetadataSource struct {
	Metadata []codec.RowGroupMetadata
	DocsSource
}

func (s *MetadataSource) TotalRows() (int64, bool) {
	if len(s.Metadata) == 0 {
		return s.DocsSource.TotalRows()
	}
	var total int64
	for _, rg := range s.Metadata {
		total += rg.NumRows
	}
	return total, true
}

func (s *MetadataSource) ColumnStats(field string) (min, max any, ok bool) {
	for _, rg := range s.Metadata {
		for _, col := range rg.Columns {
			if col.PathInSchema != field || col.Min == nil {
				continue
			}
			if !ok {
				min, max = col.Min, col.Max
				ok = true
				continue
			}
			if document.Compare(col.Min, min) < 0 {
				min = col.Min
			}
			if col.Max != nil && document.Compare(col.Max, max) > 0 {
				max = col.Max
			}
		}
	}
	return min, max, ok
}

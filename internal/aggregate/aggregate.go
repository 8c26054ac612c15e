package aggregate

import (
	"github.com/parquedb/parquedb/pkg/document"
)

// Kind is one of the supported aggregation functions.
type Kind string

const (
	Count Kind = "count"
	Sum   Kind = "sum"
	Avg   Kind = "avg"
	Min   Kind = "min"
	Max   Kind = "max"
)

// Spec is one entry of an aggregation request: resultName -> {type, field}.
type Spec struct {
	Type  Kind
	Field string // "*" only valid for Count
}

// Stats reports how an aggregation was actually computed, per result name.
type Stats struct {
	MetadataOnly     bool
	DataRead         bool
	UsedColumnStats  bool
	RowsMaterialized int
}

// Source is the column-oriented read surface the aggregator needs. It
// never exposes whole rows: TotalRows and ColumnStats answer from
// Parquet metadata when possible, and StreamColumn yields one column's
// values without building any row object.
type Source interface {
	// TotalRows returns the row count from row-group metadata, if available.
	TotalRows() (int64, bool)
	// ColumnStats returns the min/max already recorded for field in row-group statistics.
	ColumnStats(field string) (min, max any, ok bool)
	// StreamColumn yields every value of field exactly once, including nulls.
	StreamColumn(field string) (func(yield func(value any, isNull bool) bool), error)
}

// Run evaluates every spec, reading each distinct field at most once
// even when several result names reference it.
func Run(src Source, specs map[string]Spec) (map[string]any, map[string]Stats, error) {
	values := make(map[string]any, len(specs))
	stats := make(map[string]Stats, len(specs))

	byField := make(map[string][]string) // field -> result names needing a stream pass
	for name, spec := range specs {
		if spec.Type == Count && spec.Field == "*" {
			total, ok := src.TotalRows()
			if !ok {
				total = 0
			}
			values[name] = total
			stats[name] = Stats{MetadataOnly: true, DataRead: false}
			continue
		}
		if spec.Type == Min || spec.Type == Max {
			if min, max, ok := src.ColumnStats(spec.Field); ok {
				if spec.Type == Min {
					values[name] = min
				} else {
					values[name] = max
				}
				stats[name] = Stats{UsedColumnStats: true}
				continue
			}
		}
		byField[spec.Field] = append(byField[spec.Field], name)
	}

	for field, names := range byField {
		if err := runFieldPass(src, field, names, specs, values, stats); err != nil {
			return nil, nil, err
		}
	}

	return values, stats, nil
}

func runFieldPass(src Source, field string, names []string, specs map[string]Spec, values map[string]any, stats map[string]Stats) error {
	iter, err := src.StreamColumn(field)
	if err != nil {
		return err
	}

	var (
		nonNullCount int64
		sum          float64
		sawNumeric   bool
		min, max     any
	)

	iter(func(v any, isNull bool) bool {
		if isNull {
			return true
		}
		nonNullCount++
		if n, ok := document.AsNumber(v); ok {
			sum += n
			sawNumeric = true
		}
		if min == nil || document.Compare(v, min) < 0 {
			min = v
		}
		if max == nil || document.Compare(v, max) > 0 {
			max = v
		}
		return true
	})

	for _, name := range names {
		spec := specs[name]
		switch spec.Type {
		case Count:
			values[name] = nonNullCount
		case Sum:
			if sawNumeric {
				values[name] = sum
			} else {
				values[name] = float64(0)
			}
		case Avg:
			if nonNullCount == 0 || !sawNumeric {
				values[name] = nil
			} else {
				values[name] = sum / float64(nonNullCount)
			}
		case Min:
			values[name] = min
		case Max:
			values[name] = max
		}
		stats[name] = Stats{DataRead: true}
	}
	return nil
}

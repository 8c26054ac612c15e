package variant

import (
	"fmt"
	"strings"

	"github.com/parquedb/parquedb/internal/filter"
	"github.com/parquedb/parquedb/internal/schema"
	"github.com/parquedb/parquedb/pkg/document"
)

// ColumnName is the variant column every entity snapshot file shreds
// into, on both sides of a query: filter leaves use it as a key
// prefix ("$data.field") and the Parquet writer uses it as the
// physical group name, so MapFilterToStatisticsPath can map one
// directly onto the other.
const ColumnName = "$data"

// DefaultDataShredFields is always shredded, independent of any
// per-type configuration.
var DefaultDataShredFields = []string{"$type"}

// GetDataShredFields returns every field that should be stored both
// inside the opaque variant value and as a native-typed column,
// following the explicit $shred directive when present and otherwise
// the auto-shred rule: enum, boolean, date/datetime, or indexed
// fields.
func GetDataShredFields(def *schema.TypeDef) []string {
	fields := append([]string{}, DefaultDataShredFields...)
	if def == nil {
		return fields
	}
	if len(def.ShredFields) > 0 {
		return append(fields, def.ShredFields...)
	}
	for name, ft := range def.Fields {
		if ft.Indexed || ft.Kind == "enum" || ft.Kind == "boolean" || ft.Kind == "date" || ft.Kind == "datetime" {
			fields = append(fields, name)
		}
	}
	return fields
}

// Config names the variant column and the fields shredded under it.
type Config struct {
	ColumnName string
	Fields     []string
}

func (c Config) isShredded(field string) bool {
	for _, f := range c.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// ShreddedRow is the on-disk shape of one document's variant column:
// metadata describes the encoding, value is the full remainder, and
// typedValue holds the native-typed copy of every shredded field.
type ShreddedRow struct {
	Metadata   []byte
	Value      document.Doc
	TypedValue map[string]any
}

// PrepareShreddedVariantData builds the shredded column rows for a
// batch of entity field-sets and the list of statistics paths the
// writer should record min/max for.
func PrepareShreddedVariantData(docs []document.Doc, shredFields []string, columnName string) ([]ShreddedRow, []string) {
	rows := make([]ShreddedRow, 0, len(docs))
	for _, d := range docs {
		typed := make(map[string]any, len(shredFields))
		for _, f := range shredFields {
			if v, ok := d[f]; ok {
				typed[f] = v
			}
		}
		rows = append(rows, ShreddedRow{Value: d, TypedValue: typed})
	}

	paths := make([]string, len(shredFields))
	for i, f := range shredFields {
		paths[i] = columnName + ".typed_value." + f + ".typed_value"
	}
	return rows, paths
}

// MapFilterToStatisticsPath returns the typed-column path a leaf
// condition on "$data.<field>" should be evaluated against, or ""
// when field is not shredded under cfg.
func MapFilterToStatisticsPath(fieldPath string, cfg Config) string {
	prefix := cfg.ColumnName + "."
	if !strings.HasPrefix(fieldPath, prefix) {
		return ""
	}
	field := strings.TrimPrefix(fieldPath, prefix)
	if !cfg.isShredded(field) {
		return ""
	}
	return cfg.ColumnName + ".typed_value." + field + ".typed_value"
}

// TransformFilterForShredding rewrites every leaf key that addresses a
// shredded field to its statistics path, leaving logical operators
// ($and/$or/$not/$nor) and non-shredded leaves untouched.
func TransformFilterForShredding(f filter.Filter, cfg Config) filter.Filter {
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
				if sub, ok := asFilter(item); ok {
					rewritten[i] = TransformFilterForShredding(sub, cfg)
				} else {
					rewritten[i] = item
				}
			}
			out[key] = rewritten
		case "$not":
			if sub, ok := asFilter(val); ok {
				out[key] = TransformFilterForShredding(sub, cfg)
			} else {
				out[key] = val
			}
		default:
			if mapped := MapFilterToStatisticsPath(key, cfg); mapped != "" {
				out[mapped] = val
			} else {
				out[key] = val
			}
		}
	}
	return out
}

func asFilter(v any) (filter.Filter, bool) {
	switch f := v.(type) {
	case filter.Filter:
		return f, true
	case map[string]any:
		return filter.Filter(f), true
	default:
		return nil, false
	}
}

// CanPushdownWithShredding reports whether any leaf condition in f
// addresses a field shredded under cfg.
func CanPushdownWithShredding(f filter.Filter, cfg Config) bool {
	for key, val := range f {
		switch key {
		case "$and", "$or", "$nor":
			for _, item := range asSlice(val) {
				if sub, ok := asFilter(item); ok && CanPushdownWithShredding(sub, cfg) {
					return true
				}
			}
		case "$not":
			if sub, ok := asFilter(val); ok && CanPushdownWithShredding(sub, cfg) {
				return true
			}
		default:
			if MapFilterToStatisticsPath(key, cfg) != "" {
				return true
			}
		}
	}
	return false
}

func asSlice(v any) []any {
	arr, _ := v.([]any)
	return arr
}

// Predicate decides, from a row group's recorded min/max for one
// column, whether the group can possibly contain a matching row.
type Predicate func(min, max any) bool

// CreateShreddedPredicate converts one leaf condition into a
// row-group-pruning predicate. Equality is a single-value $in; $in
// matches if any candidate falls within [min, max].
func CreateShreddedPredicate(cond any) Predicate {
	obj, isObj := asFilterValue(cond)
	if !isObj {
		target := cond
		return func(min, max any) bool {
			return document.Compare(target, min) >= 0 && document.Compare(target, max) <= 0
		}
	}

	predicates := make([]Predicate, 0, len(obj))
	for op, val := range obj {
		switch op {
		case "$eq":
			v := val
			predicates = append(predicates, func(min, max any) bool {
				return document.Compare(v, min) >= 0 && document.Compare(v, max) <= 0
			})
		case "$in":
			candidates := asSlice(val)
			predicates = append(predicates, func(min, max any) bool {
				for _, c := range candidates {
					if document.Compare(c, min) >= 0 && document.Compare(c, max) <= 0 {
						return true
					}
				}
				return false
			})
		case "$gt":
			v := val
			predicates = append(predicates, func(min, max any) bool { return document.Compare(max, v) > 0 })
		case "$gte":
			v := val
			predicates = append(predicates, func(min, max any) bool { return document.Compare(max, v) >= 0 })
		case "$lt":
			v := val
			predicates = append(predicates, func(min, max any) bool { return document.Compare(min, v) < 0 })
		case "$lte":
			v := val
			predicates = append(predicates, func(min, max any) bool { return document.Compare(min, v) <= 0 })
		}
	}

	return func(min, max any) bool {
		for _, p := range predicates {
			if !p(min, max) {
				return false
			}
		}
		return true
	}
}

func asFilterValue(v any) (map[string]any, bool) {
	switch f := v.(type) {
	case filter.Filter:
		return map[string]any(f), true
	case map[string]any:
		return f, true
	default:
		return nil, false
	}
}

// ShredFieldKind reports the native Parquet kind a shredded field's
// typed_value leaf should use ("number", "boolean", or "string"),
// derived from the field's declared schema type so numeric/boolean
// fields get real column statistics instead of lexical string ones.
func ShredFieldKind(def *schema.TypeDef, field string) string {
	if def == nil {
		return "string"
	}
	ft, ok := def.Fields[field]
	if !ok {
		return "string"
	}
	switch ft.Kind {
	case "int", "float":
		return "number"
	case "boolean":
		return "boolean"
	default:
		return "string"
	}
}

// CoerceShredValue converts v into the native Go type ShredFieldKind
// calls for, so the typed_value column and the row data handed to the
// writer always agree on type.
func CoerceShredValue(kind string, v any) any {
	switch kind {
	case "number":
		if n, ok := document.AsNumber(v); ok {
			return n
		}
		return nil
	case "boolean":
		if b, ok := v.(bool); ok {
			return b
		}
		return nil
	default:
		switch s := v.(type) {
		case string:
			return s
		case nil:
			return nil
		default:
			return fmt.Sprint(s)
		}
	}
}

// RowGroupStats maps a statistics column path to its recorded min/max.
type RowGroupStats map[string][2]any

// ShouldSkipRowGroup returns true only when every leaf whose column
// has recorded statistics evaluates false; logical $and/$or/$not
// leaves are conservatively kept (never cause a skip on their own).
func ShouldSkipRowGroup(f filter.Filter, stats RowGroupStats) bool {
	hasEvaluable := false
	for key, val := range f {
		switch key {
		case "$and", "$or", "$nor", "$not":
			continue
		default:
			bounds, ok := stats[key]
			if !ok {
				continue
			}
			hasEvaluable = true
			pred := CreateShreddedPredicate(val)
			if pred(bounds[0], bounds[1]) {
				return false
			}
		}
	}
	return hasEvaluable
}

package codec

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/parquet-go/parquet-go"

	parquedberrors "github.com/parquedb/parquedb/internal/errors"
	"github.com/parquedb/parquedb/pkg/document"
)

// ShredField names one variant-shredded column and the native Parquet
// kind its typed_value leaf should carry: "number", "boolean", or
// "string" (internal/variant.ShredFieldKind derives this per field
// from the owning type's declared schema).
type ShredField struct {
	Name string
	Kind string
}

// DocumentRow is the on-disk Parquet row shape of one entity snapshot:
// identity and bookkeeping columns alongside the opaque document value
// and its shredded typed columns. Unlike EventRow this schema is built
// per namespace, since every type shreds a different set of fields.
type DocumentRow struct {
	Namespace string
	LocalID   string
	Version   int64
	CreatedAt int64
	UpdatedAt int64
	DeletedAt int64 // 0 means not deleted
	Data      document.Doc
	Typed     map[string]any // shred field name -> native-typed value
}

// DocumentSchema builds the dynamic Parquet schema for an entity
// snapshot file: a fixed identity/bookkeeping prefix plus the variant
// column, nested so a field's statistics live at
// "<columnName>.typed_value.<field>.typed_value" - the exact path
// internal/variant.MapFilterToStatisticsPath produces.
func DocumentSchema(columnName string, shredFields []ShredField) *parquet.Schema {
	typedGroup := make(parquet.Group, len(shredFields))
	for _, f := range shredFields {
		typedGroup[f.Name] = parquet.Group{"typed_value": shredLeaf(f.Kind)}
	}
	dataGroup := parquet.Group{
		"value":       parquet.Optional(parquet.String()),
		"typed_value": typedGroup,
	}
	return parquet.NewSchema("document", parquet.Group{
		"namespace":  parquet.String(),
		"local_id":   parquet.String(),
		"version":    parquet.Leaf(parquet.Int64Type),
		"created_at": parquet.Leaf(parquet.Int64Type),
		"updated_at": parquet.Leaf(parquet.Int64Type),
		"deleted_at": parquet.Optional(parquet.Leaf(parquet.Int64Type)),
		columnName:   dataGroup,
	})
}

func shredLeaf(kind string) parquet.Node {
	switch kind {
	case "number":
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	case "boolean":
		return parquet.Optional(parquet.Leaf(parquet.BooleanType))
	default:
		return parquet.Optional(parquet.String())
	}
}

// WriteDocuments encodes an entity snapshot file for one namespace.
// Callers are expected to pass rows already sorted ascending by local
// id, matching the segment file convention.
func WriteDocuments(schema *parquet.Schema, columnName string, rows []DocumentRow) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := parquet.NewGenericWriter[any](buf, schema)

	for _, r := range rows {
		raw, err := encodeDocumentRow(r, columnName)
		if err != nil {
			return nil, err
		}
		if _, err := writer.Write([]any{raw}); err != nil {
			return nil, &parquedberrors.ParquetWriteError{Path: "<memory>", Cause: err}
		}
	}
	if err := writer.Close(); err != nil {
		return nil, &parquedberrors.ParquetWriteError{Path: "<memory>", Cause: err}
	}

	out := buf.Bytes()
	if err := validateMagic(out); err != nil {
		return nil, &parquedberrors.ParquetWriteError{Path: "<memory>", Cause: err}
	}
	return out, nil
}

func encodeDocumentRow(r DocumentRow, columnName string) (map[string]any, error) {
	var dataJSON string
	if r.Data != nil {
		b, err := json.Marshal(r.Data)
		if err != nil {
			return nil, err
		}
		dataJSON = string(b)
	}

	typed := make(map[string]any, len(r.Typed))
	for field, v := range r.Typed {
		typed[field] = map[string]any{"typed_value": v}
	}

	return map[string]any{
		"namespace":  r.Namespace,
		"local_id":   r.LocalID,
		"version":    r.Version,
		"created_at": r.CreatedAt,
		"updated_at": r.UpdatedAt,
		"deleted_at": r.DeletedAt,
		columnName: map[string]any{
			"value":       dataJSON,
			"typed_value": typed,
		},
	}, nil
}

// ReadDocuments decodes every row of an entity snapshot file.
func ReadDocuments(schema *parquet.Schema, columnName, path string, data []byte) ([]DocumentRow, error) {
	if err := validateMagic(data); err != nil {
		return nil, &parquedberrors.ParquetReadError{Path: path, Cause: err}
	}
	reader := parquet.NewGenericReader[any](bytes.NewReader(data), schema)
	defer reader.Close()

	var out []DocumentRow
	buf := make([]any, 128)
	for {
		n, err := reader.Read(buf)
		for i := 0; i < n; i++ {
			raw, _ := buf[i].(map[string]any)
			row, decErr := decodeDocumentRow(raw, columnName)
			if decErr != nil {
				return nil, &parquedberrors.ParquetReadError{Path: path, Cause: decErr}
			}
			out = append(out, row)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &parquedberrors.ParquetReadError{Path: path, Cause: err}
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

func decodeDocumentRow(raw map[string]any, columnName string) (DocumentRow, error) {
	row := DocumentRow{
		Namespace: asString(raw["namespace"]),
		LocalID:   asString(raw["local_id"]),
		Version:   asInt64(raw["version"]),
		CreatedAt: asInt64(raw["created_at"]),
		UpdatedAt: asInt64(raw["updated_at"]),
		DeletedAt: asInt64(raw["deleted_at"]),
	}

	dataCol, _ := raw[columnName].(map[string]any)
	if dataCol == nil {
		return row, nil
	}
	if v, ok := dataCol["value"].(string); ok && v != "" {
		var doc document.Doc
		if err := json.Unmarshal([]byte(v), &doc); err != nil {
			return DocumentRow{}, err
		}
		row.Data = doc
	}
	if typed, ok := dataCol["typed_value"].(map[string]any); ok {
		row.Typed = make(map[string]any, len(typed))
		for field, group := range typed {
			if g, ok := group.(map[string]any); ok {
				row.Typed[field] = g["typed_value"]
			}
		}
	}
	return row, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// RowGroupFilter decides, from one row group's recorded column
// statistics, whether it can possibly contain a matching row;
// returning false skips the group entirely.
type RowGroupFilter func(meta RowGroupMetadata) bool

// ReadRows lazily decodes an entity snapshot file's rows in row-group
// order, handing each row's flattened column-path -> value map to
// yield. A row group rowGroupFilter rejects is skipped without ever
// materializing its rows, the mechanism internal/variant's
// ShouldSkipRowGroup pushdown relies on.
func ReadRows(path string, data []byte, rowGroupFilter RowGroupFilter) (func(yield func(cols map[string]parquet.Value) bool), error) {
	if err := validateMagic(data); err != nil {
		return nil, &parquedberrors.ParquetReadError{Path: path, Cause: err}
	}
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &parquedberrors.ParquetReadError{Path: path, Cause: err}
	}
	leafPaths := file.Schema().Columns()

	return func(yield func(map[string]parquet.Value) bool) {
		for _, rg := range file.RowGroups() {
			if rowGroupFilter != nil && !rowGroupFilter(rowGroupMetadataOf(file, rg)) {
				continue
			}
			rows := rg.Rows()
			buf := make([]parquet.Row, 128)
			for {
				n, rerr := rows.ReadRows(buf)
				for i := 0; i < n; i++ {
					cols := make(map[string]parquet.Value, len(buf[i]))
					for _, v := range buf[i] {
						idx := v.Column()
						if idx >= 0 && idx < len(leafPaths) {
							cols[joinPath(leafPaths[idx])] = v
						}
					}
					if !yield(cols) {
						rows.Close()
						return
					}
				}
				if rerr == io.EOF || n == 0 {
					break
				}
			}
			rows.Close()
		}
	}, nil
}

// ReadColumn lazily yields one column's decoded values across every
// row group rowGroupFilter accepts, skipping rejected groups entirely.
func ReadColumn(colPath, path string, data []byte, rowGroupFilter RowGroupFilter) (func(yield func(value any, isNull bool) bool), error) {
	rows, err := ReadRows(path, data, rowGroupFilter)
	if err != nil {
		return nil, err
	}
	return func(yield func(value any, isNull bool) bool) {
		rows(func(cols map[string]parquet.Value) bool {
			v, ok := cols[colPath]
			if !ok {
				return yield(nil, true)
			}
			return yield(parquetValueToAny(v), v.IsNull())
		})
	}, nil
}

func joinPath(steps []string) string {
	if len(steps) == 0 {
		return ""
	}
	out := steps[0]
	for _, s := range steps[1:] {
		out += "." + s
	}
	return out
}

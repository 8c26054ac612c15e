package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"

	parquedberrors "github.com/parquedb/parquedb/internal/errors"
	"github.com/parquedb/parquedb/pkg/document"
)

// parquetMagic is the 4-byte marker that opens and closes every valid
// Parquet file. WriteSegment checks for it explicitly so a truncated or
// otherwise malformed write surfaces as ParquetWriteError rather than
// silently producing a file a later reader cannot open.
const parquetMagic = "PAR1"

// WriteSegment encodes rows as a Parquet file in the order given and
// returns the encoded bytes. It does not sort: callers pass rows
// already in ascending id order, as segment files require.
func WriteSegment(rows []EventRow) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := parquet.NewGenericWriter[EventRow](buf)

	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
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

func validateMagic(data []byte) error {
	if len(data) < 2*len(parquetMagic) {
		return fmt.Errorf("file too small to contain parquet magic bytes: %d bytes", len(data))
	}
	head := string(data[:len(parquetMagic)])
	tail := string(data[len(data)-len(parquetMagic):])
	if head != parquetMagic || tail != parquetMagic {
		return fmt.Errorf("missing PAR1 magic bytes (head=%q tail=%q)", head, tail)
	}
	return nil
}

// ReadSegment decodes every row of a segment file.
func ReadSegment(path string, data []byte) ([]EventRow, error) {
	if err := validateMagic(data); err != nil {
		return nil, &parquedberrors.ParquetReadError{Path: path, Cause: err}
	}

	reader := parquet.NewGenericReader[EventRow](bytes.NewReader(data))
	defer reader.Close()

	rows := make([]EventRow, 0, reader.NumRows())
	buf := make([]EventRow, 256)
	for {
		n, err := reader.Read(buf)
		rows = append(rows, buf[:n]...)
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
	return rows, nil
}

// ColumnStats summarizes one column of one row group, following the
// shape readMetadata is expected to expose: the pushdown path decides
// whether to skip a row group using exactly these fields.
type ColumnStats struct {
	PathInSchema string
	Min          any
	Max          any
	NullCount    int64
}

// RowGroupMetadata describes one row group's row count and per-column statistics.
type RowGroupMetadata struct {
	NumRows int64
	Columns []ColumnStats
}

// ReadMetadata opens a Parquet file and extracts row-group and
// column-level statistics without materializing row values, the basis
// for row-group pruning.
func ReadMetadata(path string, data []byte) ([]RowGroupMetadata, error) {
	if err := validateMagic(data); err != nil {
		return nil, &parquedberrors.ParquetReadError{Path: path, Cause: err}
	}

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &parquedberrors.ParquetReadError{Path: path, Cause: err}
	}

	var out []RowGroupMetadata
	for _, rg := range file.RowGroups() {
		out = append(out, rowGroupMetadataOf(file, rg))
	}
	return out, nil
}

// rowGroupMetadataOf extracts one row group's column statistics,
// keyed by its full dotted schema path so nested variant columns
// (e.g. "$data.typed_value.status.typed_value") resolve the same way
// on the write and read sides.
func rowGroupMetadataOf(file *parquet.File, rg parquet.RowGroup) RowGroupMetadata {
	meta := RowGroupMetadata{NumRows: rg.NumRows()}
	for _, chunk := range rg.ColumnChunks() {
		leaf := chunk.Column()
		colPath := strings.Join(file.Schema().Columns()[leaf], ".")

		idx, idxErr := chunk.ColumnIndex()
		if idxErr != nil || idx == nil {
			continue
		}
		stats := ColumnStats{PathInSchema: colPath}
		pages := idx.NumPages()
		for p := 0; p < pages; p++ {
			stats.NullCount += idx.NullCount(p)
			minVal := parquetValueToAny(idx.MinValue(p))
			maxVal := parquetValueToAny(idx.MaxValue(p))
			if minVal != nil && (stats.Min == nil || document.Compare(minVal, stats.Min) < 0) {
				stats.Min = minVal
			}
			if maxVal != nil && (stats.Max == nil || document.Compare(maxVal, stats.Max) > 0) {
				stats.Max = maxVal
			}
		}
		meta.Columns = append(meta.Columns, stats)
	}
	return meta
}

// parquetValueToAny converts a decoded column-index bound to the
// dynamic Go type document.Compare expects, preserving numeric and
// boolean kinds instead of flattening every value to its string form.
func parquetValueToAny(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return float64(v.Int32())
	case parquet.Int64:
		return float64(v.Int64())
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	default:
		return v.String()
	}
}

// ErrCorruptSegment is returned by callers that detect a structurally
// valid but semantically inconsistent segment (e.g. checksum mismatch)
// outside of the Parquet decode path itself.
var ErrCorruptSegment = errors.New("segment failed integrity check")

// Package codec encodes and decodes event-log segments and
// entity-snapshot files as Parquet, using github.com/parquet-go/parquet-go.
// Parquet is the only wire format: there is no JSON or Avro fallback,
// and any write or read failure surfaces as a typed ParquetWriteError
// or ParquetReadError rather than degrading silently.
package codec

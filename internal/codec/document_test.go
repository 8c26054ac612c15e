package codec

import (
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/parquedb/parquedb/pkg/document"
)

func shredFields() []ShredField {
	return []ShredField{
		{Name: "status", Kind: "string"},
		{Name: "price", Kind: "number"},
		{Name: "active", Kind: "boolean"},
	}
}

func sampleDocumentRows() []DocumentRow {
	return []DocumentRow{
		{
			Namespace: "item", LocalID: "item-1", Version: 1, CreatedAt: 1000, UpdatedAt: 1000,
			Data:  document.Doc{"status": "open", "price": float64(10), "active": true},
			Typed: map[string]any{"status": "open", "price": float64(10), "active": true},
		},
		{
			Namespace: "item", LocalID: "item-2", Version: 1, CreatedAt: 2000, UpdatedAt: 2000,
			Data:  document.Doc{"status": "closed", "price": float64(90), "active": false},
			Typed: map[string]any{"status": "closed", "price": float64(90), "active": false},
		},
	}
}

func TestWriteThenReadDocuments_RoundTrip(t *testing.T) {
	schema := DocumentSchema("$data", shredFields())
	rows := sampleDocumentRows()

	data, err := WriteDocuments(schema, "$data", rows)
	if err != nil {
		t.Fatalf("WriteDocuments: %v", err)
	}

	got, err := ReadDocuments(schema, "$data", "items.parquet", data)
	if err != nil {
		t.Fatalf("ReadDocuments: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("ReadDocuments returned %d rows, want %d", len(got), len(rows))
	}
	for i, row := range got {
		if row.LocalID != rows[i].LocalID {
			t.Errorf("row %d LocalID = %q, want %q", i, row.LocalID, rows[i].LocalID)
		}
		if row.Data["status"] != rows[i].Data["status"] {
			t.Errorf("row %d status = %v, want %v", i, row.Data["status"], rows[i].Data["status"])
		}
	}
}

func TestReadMetadata_ReportsShreddedColumnStats(t *testing.T) {
	schema := DocumentSchema("$data", shredFields())
	data, err := WriteDocuments(schema, "$data", sampleDocumentRows())
	if err != nil {
		t.Fatalf("WriteDocuments: %v", err)
	}

	metas, err := ReadMetadata("items.parquet", data)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}

	found := false
	for _, m := range metas {
		for _, c := range m.Columns {
			if c.PathInSchema == "$data.typed_value.price.typed_value" {
				found = true
				if c.Min == nil || c.Max == nil {
					t.Error("expected price column statistics to be recorded")
				}
			}
		}
	}
	if !found {
		t.Fatal("expected a statistics entry for the shredded price column")
	}
}

func TestReadRows_SkipsRowGroupsRowGroupFilterRejects(t *testing.T) {
	schema := DocumentSchema("$data", shredFields())
	data, err := WriteDocuments(schema, "$data", sampleDocumentRows())
	if err != nil {
		t.Fatalf("WriteDocuments: %v", err)
	}

	rejectAll := func(RowGroupMetadata) bool { return false }
	iter, err := ReadRows("items.parquet", data, rejectAll)
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	count := 0
	iter(func(map[string]parquet.Value) bool {
		count++
		return true
	})
	if count != 0 {
		t.Errorf("expected 0 rows when every row group is rejected, got %d", count)
	}

	acceptAll := func(RowGroupMetadata) bool { return true }
	iter, err = ReadRows("items.parquet", data, acceptAll)
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	count = 0
	iter(func(map[string]parquet.Value) bool {
		count++
		return true
	})
	if count != len(sampleDocumentRows()) {
		t.Errorf("expected %d rows when every row group is accepted, got %d", len(sampleDocumentRows()), count)
	}
}

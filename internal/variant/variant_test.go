package variant

import (
	"testing"

	"github.com/parquedb/parquedb/internal/filter"
	"github.com/parquedb/parquedb/internal/schema"
)

func TestGetDataShredFields_AlwaysIncludesType(t *testing.T) {
	fields := GetDataShredFields(nil)
	if len(fields) != 1 || fields[0] != "$type" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestGetDataShredFields_ExplicitShredWins(t *testing.T) {
	def := &schema.TypeDef{ShredFields: []string{"status"}}
	fields := GetDataShredFields(def)
	if len(fields) != 2 || fields[1] != "status" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestGetDataShredFields_AutoShredsEnumAndBoolean(t *testing.T) {
	def := &schema.TypeDef{Fields: map[string]schema.FieldType{
		"status":    {Kind: "enum"},
		"published": {Kind: "boolean"},
		"title":     {Kind: "string"},
	}}
	fields := GetDataShredFields(def)
	if len(fields) != 3 {
		t.Fatalf("fields = %v, want $type + status + published", fields)
	}
}

func TestMapFilterToStatisticsPath(t *testing.T) {
	cfg := Config{ColumnName: "$data", Fields: []string{"status"}}
	if got := MapFilterToStatisticsPath("$data.status", cfg); got != "$data.typed_value.status.typed_value" {
		t.Errorf("got %q", got)
	}
	if got := MapFilterToStatisticsPath("$data.title", cfg); got != "" {
		t.Errorf("expected empty for non-shredded field, got %q", got)
	}
}

func TestTransformFilterForShredding_PreservesLogicalOperators(t *testing.T) {
	cfg := Config{ColumnName: "$data", Fields: []string{"status"}}
	f := filter.Filter{"$and": []any{
		filter.Filter{"$data.status": "published"},
		filter.Filter{"$data.title": "x"},
	}}
	rewritten := TransformFilterForShredding(f, cfg)
	sub := rewritten["$and"].([]any)
	first := sub[0].(filter.Filter)
	if _, ok := first["$data.typed_value.status.typed_value"]; !ok {
		t.Fatalf("expected rewritten leaf, got %+v", first)
	}
	second := sub[1].(filter.Filter)
	if _, ok := second["$data.title"]; !ok {
		t.Fatalf("expected untouched leaf, got %+v", second)
	}
}

func TestCanPushdownWithShredding(t *testing.T) {
	cfg := Config{ColumnName: "$data", Fields: []string{"status"}}
	yes := filter.Filter{"$data.status": "published"}
	no := filter.Filter{"$data.title": "x"}
	if !CanPushdownWithShredding(yes, cfg) {
		t.Error("expected true for a shredded leaf")
	}
	if CanPushdownWithShredding(no, cfg) {
		t.Error("expected false when no leaf is shredded")
	}
}

func TestShouldSkipRowGroup_SkipsWhenPredicateFails(t *testing.T) {
	stats := RowGroupStats{"status": [2]any{"a", "b"}}
	f := filter.Filter{"status": "zzz"}
	if !ShouldSkipRowGroup(f, stats) {
		t.Error("expected the row group to be skippable")
	}
}

func TestShouldSkipRowGroup_KeepsLogicalLeavesConservatively(t *testing.T) {
	stats := RowGroupStats{}
	f := filter.Filter{"$or": []any{filter.Filter{"status": "a"}}}
	if ShouldSkipRowGroup(f, stats) {
		t.Error("expected logical leaves to never cause a skip on their own")
	}
}

func TestCreateShreddedPredicate_InMatchesWithinBounds(t *testing.T) {
	pred := CreateShreddedPredicate(filter.Filter{"$in": []any{"x", "z"}})
	if !pred("a", "y") {
		t.Error("expected $in to match when a candidate lies within [min,max]")
	}
	if pred("a", "w") {
		t.Error("expected $in to reject when no candidate lies within bounds")
	}
}

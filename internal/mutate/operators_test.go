package mutate

import (
	"testing"
	"time"

	"github.com/parquedb/parquedb/pkg/document"
)

func TestApplyOperators_SetCreatesIntermediateObjects(t *testing.T) {
	res, err := ApplyOperators(document.Doc{}, document.Doc{
		"$set": document.Doc{"address.city": "Paris"},
	}, Options{})
	if err != nil {
		t.Fatalf("ApplyOperators: %v", err)
	}
	addr, ok := res.Document["address"].(document.Doc)
	if !ok || addr["city"] != "Paris" {
		t.Fatalf("unexpected document: %+v", res.Document)
	}
}

func TestApplyOperators_IncRejectsNonNumeric(t *testing.T) {
	_, err := ApplyOperators(document.Doc{"price": "oops"}, document.Doc{
		"$inc": document.Doc{"price": float64(1)},
	}, Options{})
	if err == nil {
		t.Fatal("expected an error incrementing a non-numeric field")
	}
}

func TestApplyOperators_IncCreatesFieldWhenAbsent(t *testing.T) {
	res, err := ApplyOperators(document.Doc{}, document.Doc{
		"$inc": document.Doc{"count": float64(5)},
	}, Options{})
	if err != nil {
		t.Fatalf("ApplyOperators: %v", err)
	}
	if res.Document["count"] != float64(5) {
		t.Errorf("count = %v, want 5", res.Document["count"])
	}
}

func TestApplyOperators_MinMax(t *testing.T) {
	doc := document.Doc{"score": float64(10)}
	res, err := ApplyOperators(doc, document.Doc{"$min": document.Doc{"score": float64(5)}}, Options{})
	if err != nil {
		t.Fatalf("ApplyOperators: %v", err)
	}
	if res.Document["score"] != float64(5) {
		t.Errorf("$min: score = %v, want 5", res.Document["score"])
	}

	res, err = ApplyOperators(doc, document.Doc{"$min": document.Doc{"score": float64(20)}}, Options{})
	if err != nil {
		t.Fatalf("ApplyOperators: %v", err)
	}
	if res.Document["score"] != float64(10) {
		t.Errorf("$min should not raise the value: score = %v", res.Document["score"])
	}
}

func TestApplyOperators_PushWithSliceAndSort(t *testing.T) {
	doc := document.Doc{"scores": []any{float64(3), float64(1)}}
	res, err := ApplyOperators(doc, document.Doc{
		"$push": document.Doc{
			"scores": document.Doc{
				"$each":  []any{float64(2)},
				"$sort":  float64(1),
				"$slice": float64(2),
			},
		},
	}, Options{})
	if err != nil {
		t.Fatalf("ApplyOperators: %v", err)
	}
	got, _ := res.Document["scores"].([]any)
	if len(got) != 2 || got[0] != float64(1) || got[1] != float64(2) {
		t.Fatalf("scores = %v, want [1 2]", got)
	}
}

func TestApplyOperators_AddToSetDedups(t *testing.T) {
	doc := document.Doc{"tags": []any{"a", "b"}}
	res, err := ApplyOperators(doc, document.Doc{
		"$addToSet": document.Doc{"tags": "a"},
	}, Options{})
	if err != nil {
		t.Fatalf("ApplyOperators: %v", err)
	}
	got, _ := res.Document["tags"].([]any)
	if len(got) != 2 {
		t.Fatalf("expected dedup, got %v", got)
	}
}

func TestApplyOperators_PullWithFilter(t *testing.T) {
	doc := document.Doc{"items": []any{
		document.Doc{"sku": "a", "qty": float64(1)},
		document.Doc{"sku": "b", "qty": float64(5)},
	}}
	res, err := ApplyOperators(doc, document.Doc{
		"$pull": document.Doc{"items": document.Doc{"qty": document.Doc{"$gt": float64(3)}}},
	}, Options{})
	if err != nil {
		t.Fatalf("ApplyOperators: %v", err)
	}
	got, _ := res.Document["items"].([]any)
	if len(got) != 1 {
		t.Fatalf("expected 1 remaining item, got %v", got)
	}
}

func TestApplyOperators_RenameMovesValue(t *testing.T) {
	doc := document.Doc{"old": "value"}
	res, err := ApplyOperators(doc, document.Doc{"$rename": document.Doc{"old": "new"}}, Options{})
	if err != nil {
		t.Fatalf("ApplyOperators: %v", err)
	}
	if _, exists := res.Document["old"]; exists {
		t.Error("expected old field to be removed")
	}
	if res.Document["new"] != "value" {
		t.Errorf("new = %v, want value", res.Document["new"])
	}
}

func TestApplyOperators_SetOnInsertOnlyAppliesOnInsert(t *testing.T) {
	res, err := ApplyOperators(document.Doc{}, document.Doc{
		"$setOnInsert": document.Doc{"createdBy": "system"},
	}, Options{IsInsert: false})
	if err != nil {
		t.Fatalf("ApplyOperators: %v", err)
	}
	if _, exists := res.Document["createdBy"]; exists {
		t.Error("expected $setOnInsert to be skipped on update")
	}

	res, err = ApplyOperators(document.Doc{}, document.Doc{
		"$setOnInsert": document.Doc{"createdBy": "system"},
	}, Options{IsInsert: true})
	if err != nil {
		t.Fatalf("ApplyOperators: %v", err)
	}
	if res.Document["createdBy"] != "system" {
		t.Error("expected $setOnInsert to apply on insert")
	}
}

func TestApplyOperators_CurrentDate(t *testing.T) {
	ts := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	res, err := ApplyOperators(document.Doc{}, document.Doc{
		"$currentDate": document.Doc{"updatedAt": true},
	}, Options{Timestamp: ts})
	if err != nil {
		t.Fatalf("ApplyOperators: %v", err)
	}
	if res.Document["updatedAt"] != ts.UnixMilli() {
		t.Errorf("updatedAt = %v, want %v", res.Document["updatedAt"], ts.UnixMilli())
	}
}

func TestApplyOperators_BitOperations(t *testing.T) {
	doc := document.Doc{"flags": float64(0b0110)}
	res, err := ApplyOperators(doc, document.Doc{
		"$bit": document.Doc{"flags": document.Doc{"or": float64(0b1000)}},
	}, Options{})
	if err != nil {
		t.Fatalf("ApplyOperators: %v", err)
	}
	if res.Document["flags"] != float64(0b1110) {
		t.Errorf("flags = %v, want %v", res.Document["flags"], float64(0b1110))
	}
}

func TestApplyOperators_RejectsPrototypePollution(t *testing.T) {
	_, err := ApplyOperators(document.Doc{}, document.Doc{
		"$set": document.Doc{"__proto__.polluted": true},
	}, Options{})
	if err == nil {
		t.Fatal("expected a prototype pollution error")
	}
}

func TestApplyOperators_RejectsUnknownOperator(t *testing.T) {
	_, err := ApplyOperators(document.Doc{}, document.Doc{
		"$frobnicate": document.Doc{"x": 1},
	}, Options{})
	if err == nil {
		t.Fatal("expected an error for an unknown operator")
	}
}

func TestApplyOperators_RejectsSameFieldInTwoOperators(t *testing.T) {
	_, err := ApplyOperators(document.Doc{}, document.Doc{
		"$set": document.Doc{"price": float64(10)},
		"$inc": document.Doc{"price": float64(1)},
	}, Options{})
	if err == nil {
		t.Fatal("expected an error when the same field is targeted twice")
	}
}

func TestApplyOperators_ExtractsLinkAndUnlinkOps(t *testing.T) {
	res, err := ApplyOperators(document.Doc{}, document.Doc{
		"$link":   document.Doc{"author": "user-1"},
		"$unlink": document.Doc{"reviewers": "$all"},
	}, Options{})
	if err != nil {
		t.Fatalf("ApplyOperators: %v", err)
	}
	if len(res.RelationshipOps) != 2 {
		t.Fatalf("expected 2 relationship ops, got %d", len(res.RelationshipOps))
	}
}

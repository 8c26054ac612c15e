package event

import (
	"sort"
	"testing"

	"github.com/parquedb/parquedb/pkg/document"
)

func TestEncodeDecodeTarget(t *testing.T) {
	target := EncodeTarget("posts", "abc123")
	if target != "posts:abc123" {
		t.Fatalf("EncodeTarget() = %q, want posts:abc123", target)
	}

	ns, id, ok := DecodeTarget(target)
	if !ok || ns != "posts" || id != "abc123" {
		t.Fatalf("DecodeTarget() = (%q, %q, %v), want (posts, abc123, true)", ns, id, ok)
	}
}

func TestDecodeTarget_MissingColon(t *testing.T) {
	if _, _, ok := DecodeTarget("posts-abc123"); ok {
		t.Fatal("DecodeTarget should fail without a colon separator")
	}
}

func TestEvent_Clone(t *testing.T) {
	actor := document.EntityId{Namespace: "users", LocalID: "u1"}
	e := &Event{
		ID:     "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Op:     OpCreate,
		Target: "posts:abc",
		After:  document.Doc{"title": "hi"},
		Actor:  &actor,
	}

	clone := e.Clone()
	clone.After["title"] = "changed"
	*clone.Actor = document.EntityId{Namespace: "users", LocalID: "u2"}

	if e.After["title"] != "hi" {
		t.Fatal("mutating clone.After affected the original event")
	}
	if e.Actor.LocalID != "u1" {
		t.Fatal("mutating clone.Actor affected the original event")
	}
}

func TestIDGenerator_MonotonicallySortable(t *testing.T) {
	gen := NewIDGenerator()
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = gen.NextID()
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	for i := range ids {
		if ids[i] != sorted[i] {
			t.Fatalf("ids were not generated in sorted order at index %d: %v", i, ids)
		}
	}

	for i := range ids {
		if len(ids[i]) != 26 {
			t.Errorf("id %q has length %d, want 26", ids[i], len(ids[i]))
		}
	}
}

func TestIDGenerator_NoDuplicates(t *testing.T) {
	gen := NewIDGenerator()
	seen := make(map[string]bool, 200)
	for i := 0; i < 200; i++ {
		id := gen.NextID()
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

package filter

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/parquedb/parquedb/pkg/document"
)

// Filter is a Mongo-style filter tree: field names or logical keys
// ($and, $or, $not, $nor) mapped to bare values, operator objects, or
// nested filter trees.
type Filter = document.Doc

var logicalKeys = map[string]struct{}{"$and": {}, "$or": {}, "$nor": {}, "$not": {}}

// Match reports whether doc satisfies filter. A nil or empty filter matches everything.
func Match(doc document.Doc, f Filter) bool {
	for key, cond := range f {
		if _, ok := logicalKeys[key]; ok {
			if !matchLogical(doc, key, cond) {
				return false
			}
			continue
		}
		actual, found := getField(doc, key)
		if !matchField(actual, found, cond) {
			return false
		}
	}
	return true
}

// getField looks up a (possibly reserved) field name. A path that the
// prototype-pollution guard rejects can never be found in a document,
// so it simply fails the lookup rather than erroring the whole match.
func getField(doc document.Doc, raw string) (any, bool) {
	p, err := document.ParsePath(raw)
	if err != nil {
		return nil, false
	}
	return document.Get(doc, p)
}

func matchLogical(doc document.Doc, key string, cond any) bool {
	switch key {
	case "$and":
		for _, sub := range asFilterSlice(cond) {
			if !Match(doc, sub) {
				return false
			}
		}
		return true
	case "$or":
		subs := asFilterSlice(cond)
		if len(subs) == 0 {
			return true
		}
		for _, sub := range subs {
			if Match(doc, sub) {
				return true
			}
		}
		return false
	case "$nor":
		for _, sub := range asFilterSlice(cond) {
			if Match(doc, sub) {
				return false
			}
		}
		return true
	case "$not":
		if sub, ok := cond.(Filter); ok {
			return !Match(doc, sub)
		}
		if sub, ok := cond.(map[string]any); ok {
			return !Match(doc, Filter(sub))
		}
		return true
	}
	return true
}

func asFilterSlice(v any) []Filter {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Filter, 0, len(arr))
	for _, item := range arr {
		switch f := item.(type) {
		case Filter:
			out = append(out, f)
		case map[string]any:
			out = append(out, Filter(f))
		}
	}
	return out
}

// matchField implements the field-position semantics: a bare value is
// $eq, an object whose keys start with $ is an operator set, and an
// object with ordinary keys recurses into the field's own sub-document.
func matchField(actual any, found bool, cond any) bool {
	obj, isObj := asDoc(cond)
	if !isObj {
		return found && document.Equal(actual, cond)
	}

	for key, val := range obj {
		if key == "$regex" {
			opts, _ := obj["$options"].(string)
			if !(found && matchRegex(actual, val, opts)) {
				return false
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			if !matchOperator(actual, found, key, val) {
				return false
			}
			continue
		}
		parent, isObj := asDoc(actual)
		var nested any
		var nestedFound bool
		if isObj {
			nested, nestedFound = parent[key]
		}
		if !matchField(nested, nestedFound, val) {
			return false
		}
	}
	return true
}

func asDoc(v any) (document.Doc, bool) {
	switch d := v.(type) {
	case document.Doc:
		return d, true
	case map[string]any:
		return document.Doc(d), true
	default:
		return nil, false
	}
}

func matchOperator(actual any, found bool, op string, val any) bool {
	switch op {
	case "$eq":
		return found && document.Equal(actual, val)
	case "$ne":
		return !found || !document.Equal(actual, val)
	case "$gt":
		return found && document.Compare(actual, val) > 0
	case "$gte":
		return found && document.Compare(actual, val) >= 0
	case "$lt":
		return found && document.Compare(actual, val) < 0
	case "$lte":
		return found && document.Compare(actual, val) <= 0
	case "$in":
		return found && containsEqual(asSlice(val), actual)
	case "$nin":
		return !found || !containsEqual(asSlice(val), actual)
	case "$exists":
		want, _ := val.(bool)
		return found == want
	case "$type":
		return found && typeNameOf(actual) == fmt.Sprint(val)
	case "$regex":
		return found && matchRegex(actual, val, "")
	case "$startsWith":
		s, ok := actual.(string)
		t, _ := val.(string)
		return ok && strings.HasPrefix(s, t)
	case "$endsWith":
		s, ok := actual.(string)
		t, _ := val.(string)
		return ok && strings.HasSuffix(s, t)
	case "$contains":
		s, ok := actual.(string)
		t, _ := val.(string)
		return ok && strings.Contains(s, t)
	case "$all":
		arr := asSlice(actual)
		for _, want := range asSlice(val) {
			if !containsEqual(arr, want) {
				return false
			}
		}
		return true
	case "$elemMatch":
		for _, elem := range asSlice(actual) {
			if sub, ok := asDoc(val); ok {
				if matchField(elem, true, sub) {
					return true
				}
			} else if document.Equal(elem, val) {
				return true
			}
		}
		return false
	case "$size":
		n, ok := document.AsNumber(val)
		return ok && len(asSlice(actual)) == int(n)
	case "$text":
		return matchText(actual, val)
	case "$vector":
		return matchVectorShape(actual)
	case "$geo":
		return matchGeo(actual, val)
	case "$options":
		// Consumed alongside $regex; never matched standalone.
		return true
	default:
		return false
	}
}

func asSlice(v any) []any {
	arr, _ := v.([]any)
	return arr
}

func containsEqual(arr []any, target any) bool {
	for _, item := range arr {
		if document.Equal(item, target) {
			return true
		}
	}
	return false
}

func typeNameOf(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case time.Time:
		return "date"
	case document.Doc, map[string]any:
		return "object"
	default:
		_ = val
		return "object"
	}
}

func matchRegex(actual any, pattern any, options string) bool {
	s, ok := actual.(string)
	if !ok {
		return false
	}
	p, _ := pattern.(string)
	obj, isObj := asDoc(pattern)
	if isObj {
		p, _ = obj["$regex"].(string)
		options, _ = obj["$options"].(string)
	}
	flags := ""
	if strings.Contains(options, "i") {
		flags += "i"
	}
	if strings.Contains(options, "m") {
		flags += "m"
	}
	expr := p
	if flags != "" {
		expr = "(?" + flags + ")" + p
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// matchText performs a best-effort case-insensitive substring search
// across the actual value (string fields only); full-text ranking and
// language-aware tokenization are not in scope — see Non-goals on
// secondary index structures.
func matchText(actual any, val any) bool {
	obj, ok := asDoc(val)
	if !ok {
		return false
	}
	search, _ := obj["$search"].(string)
	if search == "" {
		return false
	}
	caseSensitive, _ := obj["$caseSensitive"].(bool)
	s, ok := actual.(string)
	if !ok {
		return false
	}
	if caseSensitive {
		return strings.Contains(s, search)
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(search))
}

// matchVectorShape validates that the field holds a numeric vector.
// Nearest-neighbor ranking and topK selection operate across the whole
// matched set and are the query engine's responsibility, not a single
// document predicate.
func matchVectorShape(actual any) bool {
	arr, ok := actual.([]any)
	if !ok || len(arr) == 0 {
		return false
	}
	for _, v := range arr {
		if _, ok := document.AsNumber(v); !ok {
			return false
		}
	}
	return true
}

// matchGeo supports {$near: {lat, lng}, $maxDistance?} against a field
// shaped {lat, lng}, using haversine distance in meters.
func matchGeo(actual any, val any) bool {
	point, ok := asDoc(actual)
	if !ok {
		return false
	}
	cond, ok := asDoc(val)
	if !ok {
		return false
	}
	near, ok := asDoc(cond["$near"])
	if !ok {
		return false
	}

	lat1, ok1 := document.AsNumber(point["lat"])
	lng1, ok2 := document.AsNumber(point["lng"])
	lat2, ok3 := document.AsNumber(near["lat"])
	lng2, ok4 := document.AsNumber(near["lng"])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return false
	}

	dist := haversineMeters(lat1, lng1, lat2, lng2)
	if maxDist, ok := document.AsNumber(cond["$maxDistance"]); ok {
		return dist <= maxDist
	}
	return true
}

func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusM = 6371000.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

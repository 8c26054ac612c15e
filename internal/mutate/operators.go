package mutate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	parquedberrors "github.com/parquedb/parquedb/internal/errors"
	"github.com/parquedb/parquedb/internal/filter"
	"github.com/parquedb/parquedb/pkg/document"
)

var mutatingOperators = map[string]struct{}{
	"$set": {}, "$unset": {}, "$inc": {}, "$mul": {}, "$min": {}, "$max": {},
	"$push": {}, "$addToSet": {}, "$pop": {}, "$pull": {}, "$pullAll": {},
	"$rename": {}, "$currentDate": {}, "$setOnInsert": {}, "$bit": {},
}

var nonFieldOperators = map[string]struct{}{"$link": {}, "$unlink": {}}

// RelationshipOp is a relationship mutation extracted from an update's
// $link/$unlink operators, to be applied by the relationship resolver
// rather than written as a plain field value.
type RelationshipOp struct {
	Type      string // "link" or "unlink"
	Predicate string // relationship field name
	Targets   []string
}

// Options configures applyOperators.
type Options struct {
	Timestamp time.Time
	IsInsert  bool
}

// Result is applyOperators' return value.
type Result struct {
	Document        document.Doc
	ModifiedFields  []string
	RelationshipOps []RelationshipOp
}

// ValidateUpdateOperators rejects unknown $-prefixed operators and
// updates where the same field is targeted by two mutating operators.
func ValidateUpdateOperators(update document.Doc) error {
	seenFields := map[string]string{}
	for op, payload := range update {
		if !strings.HasPrefix(op, "$") {
			return &parquedberrors.ValidationError{Field: op, Reason: "update keys must be operators"}
		}
		_, isMutating := mutatingOperators[op]
		_, isRelational := nonFieldOperators[op]
		if !isMutating && !isRelational {
			return &parquedberrors.ValidationError{Field: op, Reason: "unknown update operator"}
		}
		if !isMutating {
			continue
		}
		fields, ok := asDoc(payload)
		if !ok {
			return &parquedberrors.ValidationError{Field: op, Reason: "operator payload must be an object of field paths"}
		}
		for field := range fields {
			if op == "$rename" {
				target, _ := fields[field].(string)
				if prior, exists := seenFields[target]; exists {
					return &parquedberrors.ValidationError{Field: target, Reason: fmt.Sprintf("already targeted by %s", prior)}
				}
				seenFields[target] = op
			}
			if prior, exists := seenFields[field]; exists {
				return &parquedberrors.ValidationError{Field: field, Reason: fmt.Sprintf("already targeted by %s", prior)}
			}
			seenFields[field] = op
		}
	}
	return nil
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

// ApplyOperators is the pure transformation described by the update
// operator table: it never mutates doc in place.
func ApplyOperators(doc document.Doc, update document.Doc, opts Options) (*Result, error) {
	if err := ValidateUpdateOperators(update); err != nil {
		return nil, err
	}

	out := doc.Clone()
	if out == nil {
		out = document.Doc{}
	}
	modified := map[string]struct{}{}
	var relOps []RelationshipOp

	apply := func(op string, fn func(field string, value any) error) error {
		payload, ok := update[op]
		if !ok {
			return nil
		}
		fields, _ := asDoc(payload)
		keys := sortedKeys(fields)
		for _, field := range keys {
			if err := fn(field, fields[field]); err != nil {
				return err
			}
			modified[field] = struct{}{}
		}
		return nil
	}

	if err := apply("$set", func(field string, value any) error {
		return setPath(out, field, value)
	}); err != nil {
		return nil, err
	}

	if err := apply("$unset", func(field string, _ any) error {
		return unsetPath(out, field)
	}); err != nil {
		return nil, err
	}

	if err := apply("$inc", func(field string, value any) error {
		return numericOp(out, field, value, func(a, b float64) float64 { return a + b })
	}); err != nil {
		return nil, err
	}

	if err := apply("$mul", func(field string, value any) error {
		return numericOp(out, field, value, func(a, b float64) float64 { return a * b })
	}); err != nil {
		return nil, err
	}

	if err := apply("$min", func(field string, value any) error {
		return extremaOp(out, field, value, -1)
	}); err != nil {
		return nil, err
	}

	if err := apply("$max", func(field string, value any) error {
		return extremaOp(out, field, value, 1)
	}); err != nil {
		return nil, err
	}

	if err := apply("$push", func(field string, value any) error {
		return pushOp(out, field, value)
	}); err != nil {
		return nil, err
	}

	if err := apply("$addToSet", func(field string, value any) error {
		return addToSetOp(out, field, value)
	}); err != nil {
		return nil, err
	}

	if err := apply("$pop", func(field string, value any) error {
		return popOp(out, field, value)
	}); err != nil {
		return nil, err
	}

	if err := apply("$pull", func(field string, value any) error {
		return pullOp(out, field, value)
	}); err != nil {
		return nil, err
	}

	if err := apply("$pullAll", func(field string, value any) error {
		return pullAllOp(out, field, value)
	}); err != nil {
		return nil, err
	}

	if err := apply("$rename", func(field string, value any) error {
		target, _ := value.(string)
		return renameOp(out, field, target)
	}); err != nil {
		return nil, err
	}

	if err := apply("$currentDate", func(field string, value any) error {
		return currentDateOp(out, field, value, opts.Timestamp)
	}); err != nil {
		return nil, err
	}

	if opts.IsInsert {
		if err := apply("$setOnInsert", func(field string, value any) error {
			return setPath(out, field, value)
		}); err != nil {
			return nil, err
		}
	}

	if err := apply("$bit", func(field string, value any) error {
		return bitOp(out, field, value)
	}); err != nil {
		return nil, err
	}

	if ops, err := extractRelationshipOps(update); err != nil {
		return nil, err
	} else {
		relOps = ops
	}

	fieldsModified := sortedKeys(docOf(modified))
	return &Result{Document: out, ModifiedFields: fieldsModified, RelationshipOps: relOps}, nil
}

func docOf(set map[string]struct{}) document.Doc {
	d := make(document.Doc, len(set))
	for k := range set {
		d[k] = true
	}
	return d
}

func sortedKeys(d document.Doc) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parsePath(raw string) (document.Path, error) {
	p, err := document.ParsePath(raw)
	if err != nil {
		if pe, ok := err.(*document.PathError); ok {
			return document.Path{}, &parquedberrors.PrototypePollutionError{Path: raw, Segment: pe.Reason}
		}
		return document.Path{}, err
	}
	return p, nil
}

func setPath(doc document.Doc, field string, value any) error {
	p, err := parsePath(field)
	if err != nil {
		return err
	}
	document.Set(doc, p, value)
	return nil
}

func unsetPath(doc document.Doc, field string) error {
	p, err := parsePath(field)
	if err != nil {
		return err
	}
	document.Unset(doc, p)
	return nil
}

func getPath(doc document.Doc, field string) (any, bool, error) {
	p, err := parsePath(field)
	if err != nil {
		return nil, false, err
	}
	v, ok := document.Get(doc, p)
	return v, ok, nil
}

func numericOp(doc document.Doc, field string, delta any, combine func(a, b float64) float64) error {
	deltaNum, ok := document.AsNumber(delta)
	if !ok {
		return &parquedberrors.ValidationError{Field: field, Reason: "operator operand must be numeric"}
	}
	current, found, err := getPath(doc, field)
	if err != nil {
		return err
	}
	if !found {
		return setPath(doc, field, deltaNum)
	}
	currentNum, ok := document.AsNumber(current)
	if !ok {
		return &parquedberrors.ValidationError{Field: field, Reason: "existing field is non-numeric"}
	}
	return setPath(doc, field, combine(currentNum, deltaNum))
}

func extremaOp(doc document.Doc, field string, value any, direction int) error {
	current, found, err := getPath(doc, field)
	if err != nil {
		return err
	}
	if !found {
		return setPath(doc, field, value)
	}
	cmp := document.Compare(value, current)
	if (direction < 0 && cmp < 0) || (direction > 0 && cmp > 0) {
		return setPath(doc, field, value)
	}
	return nil
}

func pushOp(doc document.Doc, field string, value any) error {
	each, position, slice, sortDir, hasModifiers := parsePushModifiers(value)
	if !hasModifiers {
		each = []any{value}
	}

	current, found, err := getPath(doc, field)
	if err != nil {
		return err
	}
	arr := []any{}
	if found {
		existing, ok := current.([]any)
		if !ok {
			return &parquedberrors.ValidationError{Field: field, Reason: "$push target is not an array"}
		}
		arr = append(arr, existing...)
	}

	if position != nil && *position >= 0 && *position <= len(arr) {
		head := append([]any{}, arr[:*position]...)
		tail := append([]any{}, arr[*position:]...)
		arr = append(append(head, each...), tail...)
	} else {
		arr = append(arr, each...)
	}

	if sortDir != 0 {
		sort.SliceStable(arr, func(i, j int) bool {
			c := document.Compare(arr[i], arr[j])
			if sortDir < 0 {
				return c > 0
			}
			return c < 0
		})
	}

	if slice != nil {
		n := *slice
		switch {
		case n >= 0 && n < len(arr):
			arr = arr[:n]
		case n < 0 && -n < len(arr):
			arr = arr[len(arr)+n:]
		}
	}

	return setPath(doc, field, arr)
}

func parsePushModifiers(value any) (each []any, position *int, slice *int, sortDir int, ok bool) {
	obj, isObj := asDoc(value)
	if !isObj {
		return nil, nil, nil, 0, false
	}
	eachVal, hasEach := obj["$each"]
	if !hasEach {
		return nil, nil, nil, 0, false
	}
	each, _ = eachVal.([]any)
	if posVal, ok := document.AsNumber(obj["$position"]); ok {
		p := int(posVal)
		position = &p
	}
	if sliceVal, ok := document.AsNumber(obj["$slice"]); ok {
		s := int(sliceVal)
		slice = &s
	}
	if sortVal, ok := document.AsNumber(obj["$sort"]); ok {
		sortDir = int(sortVal)
	}
	return each, position, slice, sortDir, true
}

func addToSetOp(doc document.Doc, field string, value any) error {
	var additions []any
	if obj, isObj := asDoc(value); isObj {
		if eachVal, ok := obj["$each"].([]any); ok {
			additions = eachVal
		} else {
			additions = []any{value}
		}
	} else {
		additions = []any{value}
	}

	current, found, err := getPath(doc, field)
	if err != nil {
		return err
	}
	arr := []any{}
	if found {
		existing, ok := current.([]any)
		if !ok {
			return &parquedberrors.ValidationError{Field: field, Reason: "$addToSet target is not an array"}
		}
		arr = append(arr, existing...)
	}

	for _, add := range additions {
		if !containsEqual(arr, add) {
			arr = append(arr, add)
		}
	}
	return setPath(doc, field, arr)
}

func containsEqual(arr []any, target any) bool {
	for _, item := range arr {
		if document.Equal(item, target) {
			return true
		}
	}
	return false
}

func popOp(doc document.Doc, field string, value any) error {
	current, found, err := getPath(doc, field)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	arr, ok := current.([]any)
	if !ok || len(arr) == 0 {
		return nil
	}
	dir, _ := document.AsNumber(value)
	if dir < 0 {
		arr = arr[1:]
	} else {
		arr = arr[:len(arr)-1]
	}
	return setPath(doc, field, arr)
}

func pullOp(doc document.Doc, field string, value any) error {
	current, found, err := getPath(doc, field)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	arr, ok := current.([]any)
	if !ok {
		return nil
	}

	sub, isFilterDoc := asDoc(value)
	out := make([]any, 0, len(arr))
	for _, elem := range arr {
		var remove bool
		if isFilterDoc && looksLikeFilter(sub) {
			elemDoc, _ := asDoc(elem)
			remove = filter.Match(elemDoc, filter.Filter(sub))
		} else {
			remove = document.Equal(elem, value)
		}
		if !remove {
			out = append(out, elem)
		}
	}
	return setPath(doc, field, out)
}

// looksLikeFilter distinguishes a scalar-object pull target (exact
// structural match) from a filter sub-object, per the union type
// $pull accepts: a filter uses operator or field keys evaluated by
// the filter evaluator, never treated as a literal array element.
func looksLikeFilter(d document.Doc) bool {
	return len(d) > 0
}

func pullAllOp(doc document.Doc, field string, value any) error {
	current, found, err := getPath(doc, field)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	arr, ok := current.([]any)
	if !ok {
		return nil
	}
	toRemove, _ := value.([]any)
	out := make([]any, 0, len(arr))
	for _, elem := range arr {
		if !containsEqual(toRemove, elem) {
			out = append(out, elem)
		}
	}
	return setPath(doc, field, out)
}

func renameOp(doc document.Doc, from, to string) error {
	value, found, err := getPath(doc, from)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := unsetPath(doc, from); err != nil {
		return err
	}
	return setPath(doc, to, value)
}

func currentDateOp(doc document.Doc, field string, value any, ts time.Time) error {
	kind := "timestamp"
	if obj, isObj := asDoc(value); isObj {
		if t, ok := obj["type"].(string); ok {
			kind = t
		}
	} else if b, ok := value.(bool); ok && b {
		kind = "timestamp"
	}

	switch kind {
	case "date":
		return setPath(doc, field, ts.Format("2006-01-02"))
	default:
		return setPath(doc, field, ts.UnixMilli())
	}
}

func bitOp(doc document.Doc, field string, value any) error {
	obj, isObj := asDoc(value)
	if !isObj {
		return &parquedberrors.ValidationError{Field: field, Reason: "$bit operand must be an object"}
	}
	current, found, err := getPath(doc, field)
	if err != nil {
		return err
	}
	var currentInt int64
	if found {
		n, ok := document.AsNumber(current)
		if !ok {
			return &parquedberrors.ValidationError{Field: field, Reason: "existing field is non-numeric"}
		}
		currentInt = int64(n)
	}

	for op, operand := range obj {
		n, ok := document.AsNumber(operand)
		if !ok {
			return &parquedberrors.ValidationError{Field: field, Reason: "$bit operand must be numeric"}
		}
		operandInt := int64(n)
		switch op {
		case "and":
			currentInt &= operandInt
		case "or":
			currentInt |= operandInt
		case "xor":
			currentInt ^= operandInt
		default:
			return &parquedberrors.ValidationError{Field: field, Reason: "unknown $bit operation " + op}
		}
	}
	return setPath(doc, field, float64(currentInt))
}

func extractRelationshipOps(update document.Doc) ([]RelationshipOp, error) {
	var ops []RelationshipOp
	for _, kind := range []string{"$link", "$unlink"} {
		payload, ok := update[kind]
		if !ok {
			continue
		}
		fields, isDoc := asDoc(payload)
		if !isDoc {
			return nil, &parquedberrors.ValidationError{Field: kind, Reason: "operator payload must be an object"}
		}
		opType := "link"
		if kind == "$unlink" {
			opType = "unlink"
		}
		for _, predicate := range sortedKeys(fields) {
			targets := relationshipTargets(fields[predicate])
			ops = append(ops, RelationshipOp{Type: opType, Predicate: predicate, Targets: targets})
		}
	}
	return ops, nil
}

func relationshipTargets(v any) []string {
	if s, ok := v.(string); ok {
		if s == "$all" {
			return []string{}
		}
		return []string{s}
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

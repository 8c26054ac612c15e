// Package schema parses per-type field definitions and the $id/$name/
// $shred directives that drive identity derivation and variant shredding.
package schema

import (
	"strings"

	parquedberrors "github.com/parquedb/parquedb/internal/errors"
)

// Cardinality of a relationship arrow.
type Cardinality int

const (
	Single Cardinality = iota
	Multi
)

// Direction of a relationship arrow.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

// FieldType describes one parsed field-grammar token, e.g. "email!#" or "-> User.posts[]".
type FieldType struct {
	Kind         string // string, int, float, boolean, date, datetime, text, email, markdown, enum, relationship
	EnumValues   []string
	Required     bool
	Indexed      bool
	Relationship *RelationshipType
}

// RelationshipType describes a parsed relationship arrow.
type RelationshipType struct {
	Direction   Direction
	Cardinality Cardinality
	TargetType  string
	TargetField string
}

// TypeDef is a parsed per-type schema definition.
type TypeDef struct {
	Name        string
	IDField     string
	NameField   string
	ShredFields []string
	Fields      map[string]FieldType
}

var directiveNames = map[string]struct{}{"$id": {}, "$name": {}, "$shred": {}}

// ParseFieldType parses one type-grammar token.
func ParseFieldType(token string) (FieldType, error) {
	if strings.HasPrefix(token, "->") || strings.HasPrefix(token, "<-") {
		return parseRelationship(token)
	}

	required := strings.Contains(token, "!")
	indexed := strings.Contains(token, "#")
	base := strings.TrimRight(token, "!?#")

	ft := FieldType{Required: required, Indexed: indexed}
	if strings.HasPrefix(base, "enum:") {
		ft.Kind = "enum"
		ft.EnumValues = strings.Split(strings.TrimPrefix(base, "enum:"), ",")
		return ft, nil
	}

	switch base {
	case "string", "int", "float", "boolean", "date", "datetime", "text", "email", "markdown":
		ft.Kind = base
		return ft, nil
	default:
		return FieldType{}, &parquedberrors.ValidationError{Field: token, Reason: "unrecognized type token"}
	}
}

func parseRelationship(token string) (FieldType, error) {
	dir := Outbound
	arrow := "->"
	if strings.HasPrefix(token, "<-") {
		dir = Inbound
		arrow = "<-"
	}
	rest := strings.TrimSpace(strings.TrimPrefix(token, arrow))

	multi := false
	if strings.HasSuffix(rest, "[]") {
		multi = true
		rest = strings.TrimSuffix(rest, "[]")
	}

	targetType := rest
	targetField := ""
	if idx := strings.Index(rest, "."); idx >= 0 {
		targetType = rest[:idx]
		targetField = rest[idx+1:]
	}
	if targetType == "" {
		return FieldType{}, &parquedberrors.ValidationError{Field: token, Reason: "relationship arrow missing target type"}
	}
	if dir == Inbound && targetField == "" {
		return FieldType{}, &parquedberrors.ValidationError{Field: token, Reason: "inbound relationship requires a field"}
	}

	cardinality := Single
	if multi {
		cardinality = Multi
	}

	return FieldType{
		Kind: "relationship",
		Relationship: &RelationshipType{
			Direction:   dir,
			Cardinality: cardinality,
			TargetType:  targetType,
			TargetField: targetField,
		},
	}, nil
}

// ParseTypeDef parses a raw type definition: directive keys ($id,
// $name, $shred) plus field-name -> grammar-token pairs.
func ParseTypeDef(name string, raw map[string]string) (*TypeDef, error) {
	def := &TypeDef{Name: name, Fields: make(map[string]FieldType)}

	for key, token := range raw {
		switch key {
		case "$id":
			def.IDField = token
		case "$name":
			def.NameField = token
		case "$shred":
			def.ShredFields = splitList(token)
		default:
			ft, err := ParseFieldType(token)
			if err != nil {
				return nil, err
			}
			def.Fields[key] = ft
		}
	}

	if def.IDField != "" {
		if _, ok := def.Fields[def.IDField]; !ok {
			return nil, &parquedberrors.ValidationError{Field: def.IDField, Reason: "$id field must be declared on the type"}
		}
	}
	if def.NameField != "" {
		if _, isDirective := directiveNames[def.NameField]; isDirective {
			return nil, &parquedberrors.ValidationError{Field: def.NameField, Reason: "$name field must not be a directive name"}
		}
		if _, ok := def.Fields[def.NameField]; !ok {
			return nil, &parquedberrors.ValidationError{Field: def.NameField, Reason: "$name field must be declared on the type"}
		}
	}

	return def, nil
}

func splitList(raw string) []string {
	raw = strings.Trim(raw, "[]")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// DeriveLocalID returns the localId for a create input, following the
// $id directive if present, validating the result is non-empty and
// slash-free.
func (def *TypeDef) DeriveLocalID(fields map[string]any, generate func() string) (string, error) {
	if def.IDField == "" {
		return generate(), nil
	}
	raw, ok := fields[def.IDField]
	s, isString := raw.(string)
	if !ok || !isString {
		return "", &parquedberrors.ValidationError{Field: def.IDField, Reason: "$id field must be a non-empty string"}
	}
	if s == "" {
		return "", &parquedberrors.ValidationError{Field: def.IDField, Reason: "$id value must not be empty"}
	}
	if strings.Contains(s, "/") {
		return "", &parquedberrors.ValidationError{Field: def.IDField, Reason: "$id value must not contain '/'"}
	}
	return s, nil
}

// DeriveName returns the entity name, following $name and falling
// back to localId when the derived value is empty or absent.
func (def *TypeDef) DeriveName(fields map[string]any, localID string) string {
	if def.NameField == "" {
		if n, ok := fields["name"].(string); ok && n != "" {
			return n
		}
		return localID
	}
	if v, ok := fields[def.NameField].(string); ok && v != "" {
		return v
	}
	return localID
}

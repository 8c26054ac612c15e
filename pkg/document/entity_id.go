package document

import (
	"fmt"
	"strings"
)

// EntityId is a stable identity, a (namespace, localId) pair. Its
// string form is "namespace/localId"; the colon-delimited
// "namespace:localId" form used inside event payloads lives in
// pkg/event, since the two encodings are never interchangeable.
type EntityId struct {
	Namespace string
	LocalID   string
}

// NewEntityId validates and constructs an EntityId.
func NewEntityId(namespace, localID string) (EntityId, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return EntityId{}, err
	}
	if err := ValidateLocalID(localID); err != nil {
		return EntityId{}, err
	}
	return EntityId{Namespace: namespace, LocalID: localID}, nil
}

// ValidateNamespace enforces the lowercase letters/digits/underscore
// rule from the data model.
func ValidateNamespace(namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace must not be empty")
	}
	for _, r := range namespace {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return fmt.Errorf("namespace %q must contain only lowercase letters, digits, or underscore", namespace)
		}
	}
	return nil
}

// ValidateLocalID enforces the non-empty, no-slash rule for localId.
func ValidateLocalID(localID string) error {
	if localID == "" {
		return fmt.Errorf("localId must not be empty")
	}
	if strings.Contains(localID, "/") {
		return fmt.Errorf("localId %q must not contain '/'", localID)
	}
	return nil
}

// ParseEntityId parses the "namespace/localId" form.
func ParseEntityId(s string) (EntityId, error) {
	ns, id, ok := strings.Cut(s, "/")
	if !ok {
		return EntityId{}, fmt.Errorf("entity id %q is missing the namespace/localId separator", s)
	}
	return NewEntityId(ns, id)
}

// String renders the "namespace/localId" form.
func (id EntityId) String() string {
	return id.Namespace + "/" + id.LocalID
}

// IsZero reports whether id is the zero value.
func (id EntityId) IsZero() bool {
	return id.Namespace == "" && id.LocalID == ""
}

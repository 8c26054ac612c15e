package document

import "strings"

// deniedSegments blocks path components that would otherwise let a
// dotted path reach into a host-language prototype. ParqueDB documents
// are plain maps, not live objects, but every operator and accessor
// still runs every path through this guard before touching the
// document so the defense holds even if a future encoder starts
// materializing documents onto typed structs via reflection.
var deniedSegments = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// Path is a dotted field path parsed once into its steps. Parsing a
// path is O(segments); reusing a Path across repeated Get/Set calls on
// the same operator avoids re-splitting the same string per field.
type Path struct {
	raw   string
	steps []string
}

// ParsePath splits a dotted path into steps and rejects any segment
// in the prototype-pollution deny-list. An empty path or an empty
// segment (e.g. "a..b") is also rejected.
func ParsePath(raw string) (Path, error) {
	if raw == "" {
		return Path{}, &PathError{Path: raw, Reason: "path must not be empty"}
	}
	steps := strings.Split(raw, ".")
	for _, s := range steps {
		if s == "" {
			return Path{}, &PathError{Path: raw, Reason: "path contains an empty segment"}
		}
		if deniedSegments[s] {
			return Path{}, &PathError{Path: raw, Reason: "segment \"" + s + "\" is not allowed"}
		}
	}
	return Path{raw: raw, steps: steps}, nil
}

// String returns the original dotted-path text.
func (p Path) String() string { return p.raw }

// Steps returns the parsed segments.
func (p Path) Steps() []string { return p.steps }

// PathError reports a rejected dotted path, including the
// prototype-pollution guard rejections.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return "invalid path \"" + e.Path + "\": " + e.Reason
}

// Get reads the value at path within d. The second return is false if
// any intermediate step is missing or not an object.
func Get(d Doc, p Path) (any, bool) {
	var cur any = d
	for _, step := range p.steps {
		obj, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		cur, ok = obj[step]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set writes value at path within d, creating intermediate objects as
// needed, and returns the (possibly reallocated) root document.
func Set(d Doc, p Path, value any) Doc {
	if d == nil {
		d = Doc{}
	}
	steps := p.steps
	cur := d
	for i, step := range steps {
		if i == len(steps)-1 {
			cur[step] = value
			return d
		}
		next, ok := cur[step]
		obj, isObj := asObject(next)
		if !ok || !isObj {
			obj = Doc{}
			cur[step] = obj
		}
		cur = obj
	}
	return d
}

// Unset removes the value at path within d. It is a no-op if any
// intermediate step is missing.
func Unset(d Doc, p Path) {
	if d == nil {
		return
	}
	steps := p.steps
	cur := d
	for i, step := range steps {
		if i == len(steps)-1 {
			delete(cur, step)
			return
		}
		next, ok := cur[step]
		if !ok {
			return
		}
		obj, ok := asObject(next)
		if !ok {
			return
		}
		cur = obj
	}
}

func asObject(v any) (Doc, bool) {
	switch t := v.(type) {
	case Doc:
		return t, true
	case map[string]any:
		return Doc(t), true
	default:
		return nil, false
	}
}

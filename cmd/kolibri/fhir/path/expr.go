package path

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// fieldPattern restricts segment names to FHIR element names.
var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Filter matches the first array element whose named field scalar-equals the
// given value. Comparison happens after stringification, so name[rank=1]
// matches both the JSON number 1 and the string "1".
type Filter struct {
	Field string
	Value string
}

// Segment is one step of a path expression: a field name with an optional
// array index or filter predicate.
type Segment struct {
	Field  string
	Index  int // -1 when no index
	Filter *Filter
}

// Expr is a compiled path expression. Built once at spec-load time and
// shared read-only across every resource processed with that spec.
type Expr struct {
	raw      string
	segments []Segment
}

// Raw returns the source text the expression was compiled from.
func (e *Expr) Raw() string {
	return e.raw
}

// Compile parses a dot-separated path expression such as
// "name[use=official].given[0]" into an Expr. An empty path is valid and
// resolves to the input node unchanged.
func Compile(raw string) (*Expr, error) {
	expr := &Expr{raw: raw}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return expr, nil
	}

	for _, part := range strings.Split(trimmed, ".") {
		seg, err := parseSegment(part)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", raw, err)
		}
		expr.segments = append(expr.segments, seg)
	}
	return expr, nil
}

func parseSegment(part string) (Segment, error) {
	seg := Segment{Index: -1}

	open := strings.IndexByte(part, '[')
	if open < 0 {
		if !fieldPattern.MatchString(part) {
			return seg, fmt.Errorf("invalid field name %q", part)
		}
		seg.Field = part
		return seg, nil
	}

	if !strings.HasSuffix(part, "]") {
		return seg, fmt.Errorf("unterminated bracket in segment %q", part)
	}
	seg.Field = part[:open]
	if !fieldPattern.MatchString(seg.Field) {
		return seg, fmt.Errorf("invalid field name %q", seg.Field)
	}

	inner := part[open+1 : len(part)-1]
	if inner == "" {
		return seg, fmt.Errorf("empty bracket in segment %q", part)
	}

	if eq := strings.IndexByte(inner, '='); eq >= 0 {
		field := strings.TrimSpace(inner[:eq])
		value := strings.TrimSpace(inner[eq+1:])
		if field == "" {
			return seg, fmt.Errorf("filter without field in segment %q", part)
		}
		value = strings.Trim(value, `'"`)
		if value == "" {
			return seg, fmt.Errorf("filter without value in segment %q", part)
		}
		seg.Filter = &Filter{Field: field, Value: value}
		return seg, nil
	}

	idx, err := strconv.Atoi(strings.TrimSpace(inner))
	if err != nil {
		return seg, fmt.Errorf("index in segment %q is neither a number nor a filter", part)
	}
	if idx < 0 {
		return seg, fmt.Errorf("negative index in segment %q", part)
	}
	seg.Index = idx
	return seg, nil
}

// Resolve walks the expression against a node. A missing field, out-of-range
// index or unmatched filter short-circuits to the null node; resolution
// never fails with an error because optional fields are the dominant case in
// FHIR data.
func (e *Expr) Resolve(node Node) Node {
	current := node
	for _, seg := range e.segments {
		if current.IsNull() {
			return Node{}
		}

		current = current.Field(seg.Field)

		switch {
		case seg.Index >= 0:
			current = current.Index(seg.Index)
		case seg.Filter != nil:
			current = filterArray(current, seg.Filter)
		}
	}
	return current
}

func filterArray(node Node, f *Filter) Node {
	if node.Kind() != KindArray {
		return Node{}
	}
	for i := 0; i < node.Len(); i++ {
		elem := node.Index(i)
		if got, ok := elem.Field(f.Field).AsString(); ok && got == f.Value {
			return elem
		}
	}
	return Node{}
}

// MustCompile is Compile for expressions known valid at build time; it
// panics on a syntax error.
func MustCompile(raw string) *Expr {
	expr, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return expr
}

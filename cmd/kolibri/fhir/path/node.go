package path

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies the JSON shape a Node wraps.
type Kind int

const (
	KindNull Kind = iota
	KindObject
	KindArray
	KindScalar
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindScalar:
		return "scalar"
	default:
		return "null"
	}
}

// Node is an immutable view over a decoded FHIR resource tree. The zero
// value is the null node; lookups on it short-circuit to null, which is how
// absent optional fields resolve without being an error.
type Node struct {
	v any
}

// Parse decodes raw JSON into a Node tree.
func Parse(raw []byte) (Node, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Node{}, fmt.Errorf("failed to parse resource JSON: %w", err)
	}
	return Node{v: v}, nil
}

// FromValue wraps an already-decoded JSON value (map[string]any, []any or a
// scalar) in a Node.
func FromValue(v any) Node {
	return Node{v: v}
}

// Kind reports the shape of the wrapped value.
func (n Node) Kind() Kind {
	switch n.v.(type) {
	case nil:
		return KindNull
	case map[string]any:
		return KindObject
	case []any:
		return KindArray
	default:
		return KindScalar
	}
}

// IsNull reports whether the node is the null node.
func (n Node) IsNull() bool {
	return n.v == nil
}

// Field descends into a named object field. Returns the null node when the
// node is not an object or the field is absent.
func (n Node) Field(name string) Node {
	obj, ok := n.v.(map[string]any)
	if !ok {
		return Node{}
	}
	return Node{v: obj[name]}
}

// Keys returns the field names of an object node, nil otherwise.
func (n Node) Keys() []string {
	obj, ok := n.v.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	return keys
}

// Index descends into an array element. Returns the null node when the node
// is not an array or the index is out of bounds.
func (n Node) Index(i int) Node {
	arr, ok := n.v.([]any)
	if !ok || i < 0 || i >= len(arr) {
		return Node{}
	}
	return Node{v: arr[i]}
}

// Len returns the element count of an array node, 0 otherwise.
func (n Node) Len() int {
	arr, ok := n.v.([]any)
	if !ok {
		return 0
	}
	return len(arr)
}

// Value returns the underlying decoded value.
func (n Node) Value() any {
	return n.v
}

// Scalar returns the wrapped value when the node is a scalar, nil otherwise.
func (n Node) Scalar() any {
	if n.Kind() != KindScalar {
		return nil
	}
	return n.v
}

// AsString renders a scalar node as a string. Numbers are formatted without
// a trailing ".0" for whole values, matching FHIR decimal display.
func (n Node) AsString() (string, bool) {
	switch v := n.v.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return FormatNumber(v), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

// FormatNumber renders a JSON number the way FHIR displays decimals: whole
// values without a fractional part.
func FormatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

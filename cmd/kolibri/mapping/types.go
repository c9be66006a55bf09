package mapping

import (
	"fmt"

	"github.com/SanteonNL/kolibri/cmd/kolibri/fhir/path"
)

// RuleKind tags the single active variant of a ColumnRule.
type RuleKind int

const (
	RuleLiteral RuleKind = iota
	RuleDirectPath
	RuleFallbackChain
	RuleStringMethod
	RuleTemplate
	RulePolymorphicBest
)

func (k RuleKind) String() string {
	switch k {
	case RuleLiteral:
		return "literal"
	case RuleDirectPath:
		return "path"
	case RuleFallbackChain:
		return "fallback"
	case RuleStringMethod:
		return "replace"
	case RuleTemplate:
		return "template"
	case RulePolymorphicBest:
		return "polymorphic"
	default:
		return "unknown"
	}
}

// ColumnRule is one compiled mapping rule. Exactly one variant is active,
// selected by Kind; rules are built once at spec-load time and never
// mutated.
type ColumnRule struct {
	Kind RuleKind
	Raw  string

	// RuleLiteral
	Literal string

	// RuleDirectPath
	Path *path.Expr

	// RuleFallbackChain, evaluated in order, first non-null wins
	Chain []*path.Expr

	// RuleStringMethod
	Base    *path.Expr
	Find    string
	Replace string

	// RuleTemplate
	Template *Template

	// RulePolymorphicBest
	FieldBase string
}

// Column pairs an output column name with its rule. Column order in a spec
// is declaration order and determines output column order.
type Column struct {
	Name string
	Rule ColumnRule
}

// Spec is the full mapping configuration for one resource type. Loaded
// once and treated as immutable for the process lifetime.
type Spec struct {
	ResourceType string
	Columns      []Column
	PartitionBy  []Column
}

// FlatRecord is one flattened resource: an ordered set of column values
// plus the identifiers the emitter derives the record hash from.
type FlatRecord struct {
	ResourceType string
	ResourceID   string
	Columns      []string
	Values       map[string]any
}

// Set appends a column value, preserving declaration order for columns not
// seen before.
func (r *FlatRecord) Set(name string, value any) {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	if _, exists := r.Values[name]; !exists {
		r.Columns = append(r.Columns, name)
	}
	r.Values[name] = value
}

// RuleError reports a malformed rule in a mapping spec. Rules are parsed
// when the spec loads, before any resource is processed, so a bad rule fails
// the whole load rather than poisoning a batch.
type RuleError struct {
	Rule string
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("invalid mapping rule %q: %v", e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

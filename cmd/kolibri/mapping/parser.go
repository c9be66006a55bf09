package mapping

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/SanteonNL/kolibri/cmd/kolibri/fhir/path"
)

var (
	replaceSingleQuoted = regexp.MustCompile(`^(.*?)\.replace\(\s*'([^']*)'\s*,\s*'([^']*)'\s*\)$`)
	replaceDoubleQuoted = regexp.MustCompile(`^(.*?)\.replace\(\s*"([^"]*)"\s*,\s*"([^"]*)"\s*\)$`)
	placeholderPattern  = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
	polymorphicPattern  = regexp.MustCompile(`^([a-z][A-Za-z]*)\[x\]$`)
)

// ParseRule compiles one rule string into a ColumnRule. Grammar, in match
// order:
//
//	'literal' or "literal"      constant column
//	{{ path }} anywhere         template, placeholders resolved per resource
//	a | b | c                   fallback chain, first non-null wins
//	base.replace('find','repl') literal substring replace on a path result
//	value[x]                    polymorphic best-variant extraction
//	plain.path[0].expr          direct path
func ParseRule(raw string) (ColumnRule, error) {
	rule := ColumnRule{Raw: raw}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return rule, &RuleError{Rule: raw, Err: fmt.Errorf("empty rule")}
	}

	if isQuoted(trimmed) {
		rule.Kind = RuleLiteral
		rule.Literal = trimmed[1 : len(trimmed)-1]
		return rule, nil
	}

	if strings.Contains(trimmed, "{{") {
		tmpl, err := CompileTemplate(trimmed)
		if err != nil {
			return rule, &RuleError{Rule: raw, Err: err}
		}
		rule.Kind = RuleTemplate
		rule.Template = tmpl
		return rule, nil
	}

	if strings.Contains(trimmed, "|") {
		exprs, err := parseChain(trimmed)
		if err != nil {
			return rule, &RuleError{Rule: raw, Err: err}
		}
		rule.Kind = RuleFallbackChain
		rule.Chain = exprs
		return rule, nil
	}

	m := replaceSingleQuoted.FindStringSubmatch(trimmed)
	if m == nil {
		m = replaceDoubleQuoted.FindStringSubmatch(trimmed)
	}
	if m != nil {
		base, err := path.Compile(m[1])
		if err != nil {
			return rule, &RuleError{Rule: raw, Err: err}
		}
		rule.Kind = RuleStringMethod
		rule.Base = base
		rule.Find = m[2]
		rule.Replace = m[3]
		return rule, nil
	}

	if m := polymorphicPattern.FindStringSubmatch(trimmed); m != nil {
		rule.Kind = RulePolymorphicBest
		rule.FieldBase = m[1]
		return rule, nil
	}

	expr, err := path.Compile(trimmed)
	if err != nil {
		return rule, &RuleError{Rule: raw, Err: err}
	}
	rule.Kind = RuleDirectPath
	rule.Path = expr
	return rule, nil
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	return (s[0] == '\'' && s[len(s)-1] == '\'') ||
		(s[0] == '"' && s[len(s)-1] == '"')
}

// parseChain splits a fallback rule on '|'. Branches are plain paths; the
// replace operator is not allowed inside a chain because the combination
// has no defined meaning.
func parseChain(raw string) ([]*path.Expr, error) {
	parts := strings.Split(raw, "|")
	exprs := make([]*path.Expr, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty fallback branch")
		}
		if strings.Contains(part, ".replace(") {
			return nil, fmt.Errorf("replace is not supported inside a fallback chain")
		}
		expr, err := path.Compile(part)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	return exprs, nil
}

// Template is a compiled template rule: the raw source plus the compiled
// path expression behind each {{ placeholder }}, in order of appearance.
type Template struct {
	source string
	exprs  []*path.Expr
}

// CompileTemplate parses every {{ path }} placeholder in source. A malformed
// placeholder path fails compilation.
func CompileTemplate(source string) (*Template, error) {
	tmpl := &Template{source: source}
	for _, m := range placeholderPattern.FindAllStringSubmatch(source, -1) {
		expr, err := path.Compile(m[1])
		if err != nil {
			return nil, fmt.Errorf("template placeholder: %w", err)
		}
		tmpl.exprs = append(tmpl.exprs, expr)
	}
	if len(tmpl.exprs) == 0 {
		return nil, fmt.Errorf("template has no placeholders")
	}
	return tmpl, nil
}

// Render substitutes every placeholder with its resolved value against the
// given resource. Unresolved placeholders render as the empty string.
func (t *Template) Render(resource path.Node) string {
	i := 0
	return placeholderPattern.ReplaceAllStringFunc(t.source, func(string) string {
		expr := t.exprs[i]
		i++
		if s, ok := expr.Resolve(resource).AsString(); ok {
			return s
		}
		return ""
	})
}

// Package mapping interprets declarative column rules against FHIR resource
// trees, producing one flat record per resource.
package mapping

import (
	"regexp"
	"strings"

	"github.com/SanteonNL/kolibri/cmd/kolibri/fhir/choice"
	"github.com/SanteonNL/kolibri/cmd/kolibri/fhir/path"
	"github.com/rs/zerolog"
)

// htmlTagPattern strips markup from narrative (text.div) content.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// Engine evaluates mapping specs. Stateless apart from its collaborators,
// so one engine serves all workers concurrently.
type Engine struct {
	choices *choice.Service
	log     zerolog.Logger
}

func NewEngine(choices *choice.Service, log zerolog.Logger) *Engine {
	return &Engine{
		choices: choices,
		log:     log.With().Str("component", "mapping_engine").Logger(),
	}
}

// Apply evaluates every column rule of the spec against one resource. A rule
// that resolves nothing yields a nil column, never an error: optional fields
// are the norm in FHIR data. Columns are computed in declaration order,
// partition columns after the regular ones.
func (e *Engine) Apply(resource path.Node, spec *Spec) *FlatRecord {
	record := &FlatRecord{
		ResourceType: spec.ResourceType,
	}
	if id, ok := resource.Field("id").AsString(); ok {
		record.ResourceID = id
	}

	for _, col := range spec.Columns {
		record.Set(col.Name, e.eval(resource, col.Rule, spec.ResourceType))
	}
	for _, col := range spec.PartitionBy {
		record.Set(col.Name, e.eval(resource, col.Rule, spec.ResourceType))
	}
	return record
}

func (e *Engine) eval(resource path.Node, rule ColumnRule, resourceType string) any {
	switch rule.Kind {
	case RuleLiteral:
		return rule.Literal

	case RuleDirectPath:
		node := rule.Path.Resolve(resource)
		if node.IsNull() {
			return nil
		}
		if isNarrativePath(rule.Path) {
			if s, ok := node.AsString(); ok {
				return strings.TrimSpace(htmlTagPattern.ReplaceAllString(s, ""))
			}
		}
		return node.Value()

	case RuleFallbackChain:
		for _, expr := range rule.Chain {
			if node := expr.Resolve(resource); !node.IsNull() {
				return node.Value()
			}
		}
		return nil

	case RuleStringMethod:
		s, ok := rule.Base.Resolve(resource).AsString()
		if !ok {
			return nil
		}
		return strings.ReplaceAll(s, rule.Find, rule.Replace)

	case RuleTemplate:
		return rule.Template.Render(resource)

	case RulePolymorphicBest:
		rt := resourceType
		if own, ok := resource.Field("resourceType").AsString(); ok {
			rt = own
		}
		return e.choices.ExtractBest(resource, rule.FieldBase, rt)

	default:
		return nil
	}
}

// isNarrativePath reports whether a path targets HTML-bearing narrative
// content, which is stripped of tags before landing in a flat column.
func isNarrativePath(expr *path.Expr) bool {
	raw := expr.Raw()
	return raw == "text.div" || strings.HasSuffix(raw, ".text.div")
}

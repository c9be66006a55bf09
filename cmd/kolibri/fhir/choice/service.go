// Package choice resolves FHIR polymorphic (value[x]) fields: a logical
// field "value" is encoded as exactly one concrete key such as
// "valueQuantity" or "valueString". The resolver discovers which variant is
// present and normalizes it to a flat display value.
package choice

import (
	"regexp"
	"strings"

	"github.com/SanteonNL/kolibri/cmd/kolibri/fhir/path"
	"github.com/rs/zerolog"
)

// typeSuffixPattern matches the type part of a choice key after the field
// base has been stripped, e.g. "Quantity" in "valueQuantity".
var typeSuffixPattern = regexp.MustCompile(`^[A-Z][A-Za-z]+$`)

// Service resolves polymorphic fields against resource trees. Stateless and
// safe for concurrent use.
type Service struct {
	log zerolog.Logger
}

func NewService(log zerolog.Logger) *Service {
	return &Service{
		log: log.With().Str("component", "choice_resolver").Logger(),
	}
}

// ExtractBest finds the populated <fieldBase><Type> key on the resource,
// picks the variant ranked highest by the preference table for
// (resourceType, fieldBase), and returns its normalized value. Returns nil
// when no variant is present.
func (s *Service) ExtractBest(resource path.Node, fieldBase, resourceType string) any {
	matches := map[string]path.Node{}
	for _, key := range resource.Keys() {
		if !strings.HasPrefix(key, fieldBase) {
			continue
		}
		suffix := key[len(fieldBase):]
		if !typeSuffixPattern.MatchString(suffix) {
			continue
		}
		value := resource.Field(key)
		if value.IsNull() {
			continue
		}
		matches[suffix] = value
	}
	if len(matches) == 0 {
		return nil
	}

	for _, suffix := range preferenceFor(resourceType, fieldBase) {
		if value, ok := matches[suffix]; ok {
			return Normalize(value, suffix)
		}
	}

	// Variants outside the preference table still resolve; pick one
	// deterministically by suffix order.
	best := ""
	for suffix := range matches {
		if best == "" || suffix < best {
			best = suffix
		}
	}
	s.log.Debug().
		Str("fieldBase", fieldBase).
		Str("resourceType", resourceType).
		Str("suffix", best).
		Msg("Choice type not in preference table, using suffix order")
	return Normalize(matches[best], best)
}

// Normalize flattens a choice variant to a display value based on its type
// suffix. Scalars and unknown complex types pass through as their raw value.
func Normalize(value path.Node, typeSuffix string) any {
	switch typeSuffix {
	case "Quantity", "Age", "Duration", "Count", "Distance", "SimpleQuantity":
		return normalizeQuantity(value)
	case "CodeableConcept":
		return normalizeCodeableConcept(value)
	case "Reference":
		return value.Field("reference").Scalar()
	case "Period":
		return normalizePeriod(value)
	default:
		if value.Kind() == path.KindScalar {
			return value.Scalar()
		}
		return value.Value()
	}
}

// normalizeQuantity renders "{value} {unit}", or just the value when no unit
// is present.
func normalizeQuantity(q path.Node) any {
	amount, ok := q.Field("value").AsString()
	if !ok {
		return nil
	}
	unit, ok := q.Field("unit").AsString()
	if !ok || unit == "" {
		return amount
	}
	return amount + " " + unit
}

// normalizeCodeableConcept prefers the first coding's display, falling back
// to the concept's own text.
func normalizeCodeableConcept(cc path.Node) any {
	if display := cc.Field("coding").Index(0).Field("display").Scalar(); display != nil {
		return display
	}
	return cc.Field("text").Scalar()
}

// normalizePeriod returns the period start when present, otherwise a
// "start to end" display built from whichever endpoints exist.
func normalizePeriod(p path.Node) any {
	start, _ := p.Field("start").AsString()
	if start != "" {
		return start
	}
	end, _ := p.Field("end").AsString()
	if end == "" {
		return nil
	}
	return strings.TrimSpace(start + " to " + end)
}

package mapping

import (
	"testing"

	"github.com/SanteonNL/kolibri/cmd/kolibri/fhir/choice"
	"github.com/SanteonNL/kolibri/cmd/kolibri/fhir/path"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(choice.NewService(zerolog.Nop()), zerolog.Nop())
}

func specFromRules(t *testing.T, resourceType string, rules [][2]string) *Spec {
	t.Helper()
	spec := &Spec{ResourceType: resourceType}
	for _, nr := range rules {
		rule, err := ParseRule(nr[1])
		require.NoError(t, err)
		spec.Columns = append(spec.Columns, Column{Name: nr[0], Rule: rule})
	}
	return spec
}

func resourceFromJSON(t *testing.T, raw string) path.Node {
	t.Helper()
	node, err := path.Parse([]byte(raw))
	require.NoError(t, err)
	return node
}

func TestApplyObservationScenario(t *testing.T) {
	engine := newTestEngine()
	resource := resourceFromJSON(t, `{
		"resourceType": "Observation",
		"id": "obs1",
		"valueQuantity": {"value": 80, "unit": "beats/minute"},
		"subject": {"reference": "Patient/pat1"}
	}`)
	spec := specFromRules(t, "Observation", [][2]string{
		{"value", "valueQuantity.value | valueString"},
		{"patient_id", "subject.reference.replace('Patient/','')"},
	})

	record := engine.Apply(resource, spec)

	assert.Equal(t, "obs1", record.ResourceID)
	assert.Equal(t, float64(80), record.Values["value"])
	assert.Equal(t, "pat1", record.Values["patient_id"])
	assert.Equal(t, []string{"value", "patient_id"}, record.Columns)
}

func TestApplyFallbackFirstNonNullWins(t *testing.T) {
	engine := newTestEngine()
	resource := resourceFromJSON(t, `{
		"resourceType": "Observation",
		"id": "obs2",
		"valueString": "x",
		"valueInteger": 3
	}`)
	spec := specFromRules(t, "Observation", [][2]string{
		{"value", "valueQuantity.value | valueString | valueInteger"},
	})

	record := engine.Apply(resource, spec)
	assert.Equal(t, "x", record.Values["value"])
}

func TestApplyFailingRuleYieldsNilColumn(t *testing.T) {
	engine := newTestEngine()
	resource := resourceFromJSON(t, `{"resourceType": "Patient", "id": "p1"}`)
	spec := specFromRules(t, "Patient", [][2]string{
		{"city", "address[0].city"},
		{"source", "'hix'"},
	})

	record := engine.Apply(resource, spec)
	assert.Nil(t, record.Values["city"])
	assert.Equal(t, "hix", record.Values["source"])
}

func TestApplyStringMethodOnMissingPathIsNil(t *testing.T) {
	engine := newTestEngine()
	resource := resourceFromJSON(t, `{"resourceType": "Observation", "id": "o1"}`)
	spec := specFromRules(t, "Observation", [][2]string{
		{"patient_id", "subject.reference.replace('Patient/','')"},
	})

	record := engine.Apply(resource, spec)
	assert.Nil(t, record.Values["patient_id"])
}

func TestApplyTemplate(t *testing.T) {
	engine := newTestEngine()
	resource := resourceFromJSON(t, `{"resourceType": "Observation", "id": "o1"}`)
	spec := specFromRules(t, "Observation", [][2]string{
		{"key", "{{ resourceType }}/{{ id }}"},
		{"partial", "{{ resourceType }}/{{ missing.field }}"},
	})

	record := engine.Apply(resource, spec)
	assert.Equal(t, "Observation/o1", record.Values["key"])
	assert.Equal(t, "Observation/", record.Values["partial"])
}

func TestApplyPolymorphicBest(t *testing.T) {
	engine := newTestEngine()
	resource := resourceFromJSON(t, `{
		"resourceType": "Observation",
		"id": "o2",
		"valueQuantity": {"value": 120, "unit": "mmHg"}
	}`)
	spec := specFromRules(t, "Observation", [][2]string{
		{"value_display", "value[x]"},
	})

	record := engine.Apply(resource, spec)
	assert.Equal(t, "120 mmHg", record.Values["value_display"])
}

func TestApplyStripsNarrativeTags(t *testing.T) {
	engine := newTestEngine()
	resource := resourceFromJSON(t, `{
		"resourceType": "Patient",
		"id": "p2",
		"text": {"div": "<div xmlns=\"http://www.w3.org/1999/xhtml\"><b>Anna</b> Jansen</div>"}
	}`)
	spec := specFromRules(t, "Patient", [][2]string{
		{"narrative", "text.div"},
	})

	record := engine.Apply(resource, spec)
	assert.Equal(t, "Anna Jansen", record.Values["narrative"])
}

func TestApplyPartitionColumnsAfterRegular(t *testing.T) {
	engine := newTestEngine()
	resource := resourceFromJSON(t, `{
		"resourceType": "Encounter",
		"id": "e1",
		"period": {"start": "2023-05-01T10:00:00Z"}
	}`)
	spec := specFromRules(t, "Encounter", [][2]string{
		{"start", "period.start"},
	})
	partRule, err := ParseRule("'santeon'")
	require.NoError(t, err)
	spec.PartitionBy = []Column{{Name: "org", Rule: partRule}}

	record := engine.Apply(resource, spec)
	assert.Equal(t, []string{"start", "org"}, record.Columns)
	assert.Equal(t, "santeon", record.Values["org"])
}

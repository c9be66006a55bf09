package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSpecFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeSpecFile(t, dir, "observation.json", `{
		"resourceType": "Observation",
		"columns": [
			{"name": "value", "rule": "valueQuantity.value | valueString"},
			{"name": "patient_id", "rule": "subject.reference.replace('Patient/','')"}
		],
		"partitionBy": [
			{"name": "source", "rule": "'hix'"}
		]
	}`)
	writeSpecFile(t, dir, "patient.json", `{
		"resourceType": "Patient",
		"columns": [
			{"name": "family", "rule": "name[use=official].family"}
		]
	}`)
	writeSpecFile(t, dir, "notes.txt", "ignored")

	registry := NewRegistry(zerolog.Nop())
	require.NoError(t, registry.LoadDirectory(dir))

	assert.Equal(t, []string{"Observation", "Patient"}, registry.ResourceTypes())

	spec, err := registry.Get("Observation")
	require.NoError(t, err)
	assert.Len(t, spec.Columns, 2)
	assert.Len(t, spec.PartitionBy, 1)
	assert.Equal(t, "value", spec.Columns[0].Name)
}

func TestLoadFailsFastOnMalformedRule(t *testing.T) {
	dir := t.TempDir()
	writeSpecFile(t, dir, "broken.json", `{
		"resourceType": "Observation",
		"columns": [
			{"name": "value", "rule": "valueQuantity.value["}
		]
	}`)

	registry := NewRegistry(zerolog.Nop())
	err := registry.LoadDirectory(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value")
}

func TestLoadRejectsSpecWithoutResourceType(t *testing.T) {
	dir := t.TempDir()
	writeSpecFile(t, dir, "anon.json", `{
		"columns": [{"name": "a", "rule": "id"}]
	}`)

	registry := NewRegistry(zerolog.Nop())
	require.Error(t, registry.LoadDirectory(dir))
}

func TestGetUnknownResourceType(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	_, err := registry.Get("Encounter")
	require.Error(t, err)
}

package choice

// DefaultPreference is the type order used when no resource-specific entry
// exists in PreferenceTable. Earlier entries win when a resource carries
// more than one populated variant of the same choice field.
var DefaultPreference = []string{
	"String",
	"CodeableConcept",
	"Quantity",
	"DateTime",
	"Period",
	"Boolean",
	"Reference",
}

// PreferenceTable orders choice-type suffixes per (resourceType, fieldBase),
// keyed "ResourceType.fieldBase". FHIR guarantees at most one variant is
// populated, so the order only matters for non-conformant input; it is still
// fixed here so extraction stays deterministic.
var PreferenceTable = map[string][]string{
	"Observation.value": {
		"Quantity",
		"String",
		"CodeableConcept",
		"Boolean",
		"DateTime",
	},
	"Observation.effective": {
		"DateTime",
		"Period",
		"Instant",
	},
	"Condition.onset": {
		"DateTime",
		"Age",
		"Period",
		"Range",
		"String",
	},
	"Condition.abatement": {
		"DateTime",
		"Age",
		"Period",
		"Range",
		"String",
	},
	"Patient.deceased": {
		"Boolean",
		"DateTime",
	},
	"Patient.multipleBirth": {
		"Boolean",
		"Integer",
	},
	"MedicationRequest.medication": {
		"CodeableConcept",
		"Reference",
	},
	"Immunization.occurrence": {
		"DateTime",
		"String",
	},
	"Procedure.performed": {
		"DateTime",
		"Period",
		"String",
	},
	"AllergyIntolerance.onset": {
		"DateTime",
		"Age",
		"Period",
		"Range",
		"String",
	},
}

func preferenceFor(resourceType, fieldBase string) []string {
	if order, ok := PreferenceTable[resourceType+"."+fieldBase]; ok {
		return order
	}
	return DefaultPreference
}

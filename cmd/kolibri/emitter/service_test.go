package emitter

import (
	"context"
	"testing"

	"github.com/SanteonNL/kolibri/cmd/kolibri/mapping"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	records []*mapping.FlatRecord
}

func (c *captureSink) Write(_ context.Context, record *mapping.FlatRecord) error {
	c.records = append(c.records, record)
	return nil
}

func makeRecords(n int) []*mapping.FlatRecord {
	records := make([]*mapping.FlatRecord, 0, n)
	for i := 0; i < n; i++ {
		r := &mapping.FlatRecord{ResourceType: "Patient", ResourceID: string(rune('a' + i%26))}
		r.Set("id", r.ResourceID)
		records = append(records, r)
	}
	return records
}

func TestHashIDIsDeterministic(t *testing.T) {
	assert.Equal(t, HashID("Patient", "123"), HashID("Patient", "123"))
	assert.NotEqual(t, HashID("Patient", "123"), HashID("Patient", "124"))
	assert.NotEqual(t, HashID("Patient", "123"), HashID("Observation", "123"))
}

func TestEmitStampsHashColumn(t *testing.T) {
	em := NewEmitter(5.0, zerolog.Nop())
	sink := &captureSink{}

	record := &mapping.FlatRecord{ResourceType: "Observation", ResourceID: "obs1"}
	record.Set("value", 80)

	require.NoError(t, em.Emit(context.Background(), "Observation", []*mapping.FlatRecord{record}, 1, sink))
	require.Len(t, sink.records, 1)
	assert.Equal(t, HashID("Observation", "obs1"), sink.records[0].Values[HashColumn])
	assert.Equal(t, []string{"value", HashColumn}, sink.records[0].Columns)
}

func TestEmitWithinLossThreshold(t *testing.T) {
	em := NewEmitter(5.0, zerolog.Nop())

	// 4% loss stays under the 5% threshold.
	err := em.Emit(context.Background(), "Patient", makeRecords(96), 100, &captureSink{})
	require.NoError(t, err)
}

func TestEmitExceedingLossThreshold(t *testing.T) {
	em := NewEmitter(5.0, zerolog.Nop())

	// 7% loss crosses the threshold.
	err := em.Emit(context.Background(), "Patient", makeRecords(93), 100, &captureSink{})
	require.Error(t, err)

	var lossErr *DataLossError
	require.ErrorAs(t, err, &lossErr)
	assert.Equal(t, 100, lossErr.InputCount)
	assert.Equal(t, 93, lossErr.OutputCount)
	assert.InDelta(t, 7.0, lossErr.LossPct, 0.001)
}

func TestEmitEmptyBatch(t *testing.T) {
	em := NewEmitter(5.0, zerolog.Nop())
	require.NoError(t, em.Emit(context.Background(), "Patient", nil, 0, &captureSink{}))
}

func TestEmitWithoutSinkStillChecksLoss(t *testing.T) {
	em := NewEmitter(5.0, zerolog.Nop())
	err := em.Emit(context.Background(), "Patient", makeRecords(90), 100, nil)
	require.Error(t, err)
}

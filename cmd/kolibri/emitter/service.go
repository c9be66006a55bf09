// Package emitter stamps flat records with their stable identity hash and
// enforces the batch data-loss invariant before records leave the core.
package emitter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/SanteonNL/kolibri/cmd/kolibri/mapping"
	"github.com/rs/zerolog"
)

// HashColumn is the column carrying the content-addressed record identity
// used by the downstream merge/upsert step.
const HashColumn = "_hash_id"

// DefaultLossThresholdPct is the maximum tolerated input-to-output loss per
// batch.
const DefaultLossThresholdPct = 5.0

// Sink receives finished records. The storage layer behind it is outside
// this core.
type Sink interface {
	Write(ctx context.Context, record *mapping.FlatRecord) error
}

// DataLossError signals that a batch lost more records than the threshold
// allows. Fatal for the batch; the caller decides whether to abort or
// quarantine.
type DataLossError struct {
	ResourceType string
	InputCount   int
	OutputCount  int
	LossPct      float64
	ThresholdPct float64
}

func (e *DataLossError) Error() string {
	return fmt.Sprintf("data loss for %s exceeds threshold: %d in, %d out (%.1f%% > %.1f%%)",
		e.ResourceType, e.InputCount, e.OutputCount, e.LossPct, e.ThresholdPct)
}

// Emitter finalizes records for one batch at a time. Safe for concurrent
// use; all per-batch state lives in the Emit call.
type Emitter struct {
	thresholdPct float64
	log          zerolog.Logger
}

func NewEmitter(thresholdPct float64, log zerolog.Logger) *Emitter {
	if thresholdPct <= 0 {
		thresholdPct = DefaultLossThresholdPct
	}
	return &Emitter{
		thresholdPct: thresholdPct,
		log:          log.With().Str("component", "emitter").Logger(),
	}
}

// HashID computes the deterministic record identity from the resource type
// and id.
func HashID(resourceType, resourceID string) string {
	sum := sha256.Sum256([]byte(resourceType + "|" + resourceID))
	return hex.EncodeToString(sum[:])
}

// Emit stamps each record with its hash id, hands it to the sink, and then
// checks the batch loss ratio against the threshold. inputCount is the
// number of resources that entered the batch upstream of mapping.
func (e *Emitter) Emit(ctx context.Context, resourceType string, records []*mapping.FlatRecord, inputCount int, sink Sink) error {
	output := 0
	for _, record := range records {
		record.Set(HashColumn, HashID(record.ResourceType, record.ResourceID))
		if sink != nil {
			if err := sink.Write(ctx, record); err != nil {
				return fmt.Errorf("sink write failed for %s/%s: %w",
					record.ResourceType, record.ResourceID, err)
			}
		}
		output++
	}

	e.log.Info().
		Str("resourceType", resourceType).
		Int("input", inputCount).
		Int("output", output).
		Msg("Batch emitted")

	if inputCount <= 0 {
		return nil
	}
	lossPct := float64(inputCount-output) / float64(inputCount) * 100
	if lossPct > e.thresholdPct {
		return &DataLossError{
			ResourceType: resourceType,
			InputCount:   inputCount,
			OutputCount:  output,
			LossPct:      lossPct,
			ThresholdPct: e.thresholdPct,
		}
	}
	return nil
}

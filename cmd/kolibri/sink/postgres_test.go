package sink

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SanteonNL/kolibri/cmd/kolibri/emitter"
	"github.com/SanteonNL/kolibri/cmd/kolibri/mapping"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newMockSink(t *testing.T) (*PostgresSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresSink(sqlx.NewDb(db, "postgres"), zerolog.Nop()), mock
}

func stampedRecord() *mapping.FlatRecord {
	record := &mapping.FlatRecord{ResourceType: "Observation", ResourceID: "obs1"}
	record.Set("value", "80 beats/minute")
	record.Set(emitter.HashColumn, emitter.HashID("Observation", "obs1"))
	return record
}

func TestEnsureSchema(t *testing.T) {
	s, mock := newMockSink(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS flat_records").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteUpsertsByHashID(t *testing.T) {
	s, mock := newMockSink(t)
	record := stampedRecord()
	hashID := emitter.HashID("Observation", "obs1")

	mock.ExpectExec("INSERT INTO flat_records").
		WithArgs(hashID, "Observation", "obs1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Write(context.Background(), record))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRejectsUnstampedRecord(t *testing.T) {
	s, _ := newMockSink(t)
	record := &mapping.FlatRecord{ResourceType: "Observation", ResourceID: "obs1"}
	record.Set("value", 80)

	require.Error(t, s.Write(context.Background(), record))
}

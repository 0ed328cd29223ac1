package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncStateCursor(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	s, err := database.GetSyncState(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, s)

	acked := int64(7)
	require.NoError(t, database.RecordSyncSuccess(ctx, "d1", &acked))

	s, err = database.GetSyncState(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, s)
	require.NotNil(t, s.LastAckedSequence)
	assert.Equal(t, int64(7), *s.LastAckedSequence)
	assert.NotNil(t, s.LastSyncAt)
	assert.Empty(t, s.LastError)

	// An empty batch acks nothing; the cursor must not regress.
	require.NoError(t, database.RecordSyncSuccess(ctx, "d1", nil))
	s, err = database.GetSyncState(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, s.LastAckedSequence)
	assert.Equal(t, int64(7), *s.LastAckedSequence)
}

func TestSyncStateFailureKeepsCursor(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	acked := int64(3)
	require.NoError(t, database.RecordSyncSuccess(ctx, "d1", &acked))
	require.NoError(t, database.RecordSyncFailure(ctx, "d1", "server unreachable"))

	s, err := database.GetSyncState(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, s)
	require.NotNil(t, s.LastAckedSequence)
	assert.Equal(t, int64(3), *s.LastAckedSequence)
	assert.Equal(t, "server unreachable", s.LastError)

	// Success clears the error.
	require.NoError(t, database.RecordSyncSuccess(ctx, "d1", nil))
	s, err = database.GetSyncState(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, s.LastError)
}

func TestSyncStateFailureBeforeAnySuccess(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	require.NoError(t, database.RecordSyncFailure(ctx, "d1", "timeout"))

	s, err := database.GetSyncState(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Nil(t, s.LastAckedSequence)
	assert.Equal(t, "timeout", s.LastError)
}

package calls

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-orchestrator/migrations"
	"voice-orchestrator/pkg/utils"
)

// openTestPostgres connects to TEST_DATABASE_DSN and applies the schema. Tests that
// need it skip when the variable is unset.
func openTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	ctx := context.Background()
	db, err := utils.OpenPostgres(ctx, utils.DriverPgx, dsn, utils.PostgresPoolConfig{MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = utils.Migrate(ctx, db, migrations.FS)
	require.NoError(t, err)
	return NewPostgresStore(db)
}

func TestPostgresStore_AnswerAndHangupByEitherLeg(t *testing.T) {
	store := openTestPostgres(t)
	ctx := context.Background()

	legA := "leg-a-" + uuid.NewString()
	legB := "leg-b-" + uuid.NewString()
	sess := Session{ID: uuid.NewString(), Flow: FlowAgentFirst, LegAID: legA, UserID: "u-" + uuid.NewString(), ContactID: "k1"}

	created1, created, err := store.EnsureSession(ctx, sess)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusRinging, created1.Status)

	_, created, err = store.EnsureSession(ctx, Session{ID: uuid.NewString(), Flow: FlowLeadFirst, LegAID: legA, UserID: "other"})
	require.NoError(t, err)
	assert.False(t, created, "leg a is unique")

	s, changed, err := store.UpdateStatus(ctx, legA, StatusAnswered)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusAnswered, s.Status)

	_, changed, err = store.UpdateStatus(ctx, legA, StatusAnswered)
	require.NoError(t, err)
	assert.False(t, changed, "a duplicate answer changes nothing")

	_, changed, err = store.UpdateStatus(ctx, legA, StatusRinging)
	require.NoError(t, err)
	assert.False(t, changed, "status never moves backwards")

	s, changed, err = store.UpdateByEitherLeg(ctx, legA, legB, Patch{LegBID: legB})
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, s.LegBID)
	assert.Equal(t, legB, *s.LegBID)
	assert.Nil(t, s.BridgedAt)

	s, changed, err = store.UpdateStatus(ctx, legB, StatusBridged)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotNil(t, s.BridgedAt)

	ended := time.Now().UTC().Truncate(time.Millisecond)
	s, changed, err = store.UpdateByEitherLeg(ctx, legB, "", Patch{Status: StatusCompleted, EndedAt: &ended, HangupCause: "normal_clearing"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, sess.ID, s.ID, "hangup on leg b resolves the leg a row")
	assert.Equal(t, StatusCompleted, s.Status)
	assert.NotNil(t, s.BridgedAt, "bridged_at survives the hangup")
	require.NotNil(t, s.EndedAt)
	assert.True(t, ended.Equal(*s.EndedAt))

	_, changed, err = store.UpdateByEitherLeg(ctx, legB, "", Patch{Status: StatusCompleted, EndedAt: &ended, HangupCause: "normal_clearing"})
	require.NoError(t, err)
	assert.False(t, changed, "a duplicate hangup changes nothing")
}

func TestPostgresStore_UnknownLeg(t *testing.T) {
	store := openTestPostgres(t)
	_, _, err := store.UpdateStatus(context.Background(), "missing-"+uuid.NewString(), StatusAnswered)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

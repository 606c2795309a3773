package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"voice-orchestrator/pkg/utils"
)

// PostgresStore keeps sessions in call_sessions (see migrations/001_call_sessions.sql).
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const sessionColumns = `id, flow, leg_a_id, leg_b_id, user_id, contact_id, agent_number, lead_number,
	from_number, status, status_rank, recording_url, hangup_cause, provider_session_id,
	started_at, bridged_at, ended_at, updated_at`

const insertSessionSQL = `
INSERT INTO call_sessions (
	id, flow, leg_a_id, leg_b_id, user_id, contact_id, agent_number, lead_number,
	from_number, status, status_rank, provider_session_id, started_at, updated_at
) VALUES (
	:id, :flow, :leg_a_id, :leg_b_id, :user_id, :contact_id, :agent_number, :lead_number,
	:from_number, :status, :status_rank, :provider_session_id, :started_at, :updated_at
)
ON CONFLICT (leg_a_id) DO NOTHING`

func (p *PostgresStore) EnsureSession(ctx context.Context, s Session) (Session, bool, error) {
	now := p.now()
	if s.Status == "" {
		s.Status = StatusRinging
	}
	s.StatusRank = s.Status.Rank()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	s.UpdatedAt = now

	var out Session
	created := false
	err := utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, insertSessionSQL, s)
		if err != nil {
			return fmt.Errorf("insert call session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n == 1
		return tx.GetContext(ctx, &out, `SELECT `+sessionColumns+` FROM call_sessions WHERE leg_a_id = $1`, s.LegAID)
	})
	if err != nil {
		return Session{}, false, err
	}
	return out, created, nil
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, legID string, status Status) (Session, bool, error) {
	return p.UpdateByEitherLeg(ctx, legID, "", Patch{Status: status})
}

// The row lock in prev serializes concurrent webhooks for the same call, so "changed"
// is computed against the value this statement actually replaced.
const updateByEitherLegSQL = `
WITH prev AS (
	SELECT id, status_rank, leg_b_id, recording_url, ended_at, hangup_cause
	FROM call_sessions
	WHERE leg_a_id IN ($1, $2) OR leg_b_id IN ($1, $2)
	ORDER BY started_at
	LIMIT 1
	FOR UPDATE
)
UPDATE call_sessions c SET
	status        = CASE WHEN $3::int > c.status_rank THEN $4 ELSE c.status END,
	status_rank   = GREATEST(c.status_rank, $3::int),
	bridged_at    = CASE WHEN $4 = 'bridged' AND $3::int > c.status_rank THEN $9 ELSE c.bridged_at END,
	leg_b_id      = COALESCE(c.leg_b_id, NULLIF(NULLIF($5, ''), c.leg_a_id)),
	recording_url = COALESCE(c.recording_url, NULLIF($6, '')),
	ended_at      = COALESCE(c.ended_at, $7),
	hangup_cause  = COALESCE(c.hangup_cause, NULLIF($8, '')),
	updated_at    = $9
FROM prev
WHERE c.id = prev.id
RETURNING c.id, c.flow, c.leg_a_id, c.leg_b_id, c.user_id, c.contact_id, c.agent_number,
	c.lead_number, c.from_number, c.status, c.status_rank, c.recording_url, c.hangup_cause,
	c.provider_session_id, c.started_at, c.bridged_at, c.ended_at, c.updated_at,
	(c.status_rank <> prev.status_rank
		OR c.leg_b_id IS DISTINCT FROM prev.leg_b_id
		OR c.recording_url IS DISTINCT FROM prev.recording_url
		OR c.ended_at IS DISTINCT FROM prev.ended_at
		OR c.hangup_cause IS DISTINCT FROM prev.hangup_cause) AS changed`

type updatedRow struct {
	Session
	Changed bool `db:"changed"`
}

func (p *PostgresStore) UpdateByEitherLeg(ctx context.Context, legAID, legBID string, patch Patch) (Session, bool, error) {
	if legBID == "" {
		legBID = legAID
	}
	rank := -1
	if patch.Status != "" {
		rank = patch.Status.Rank()
	}
	var endedAt any
	if patch.EndedAt != nil {
		endedAt = patch.EndedAt.UTC()
	}

	var row updatedRow
	err := p.db.GetContext(ctx, &row, updateByEitherLegSQL,
		legAID, legBID, rank, string(patch.Status), patch.LegBID,
		patch.RecordingURL, endedAt, patch.HangupCause, p.now(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("update call session: %w", err)
	}
	return row.Session, row.Changed, nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]Session, error) {
	out := make([]Session, 0)
	err := p.db.SelectContext(ctx, &out,
		`SELECT `+sessionColumns+` FROM call_sessions WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2`,
		userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list call sessions: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]Session, error) {
	out := make([]Session, 0)
	err := p.db.SelectContext(ctx, &out,
		`SELECT `+sessionColumns+` FROM call_sessions
		WHERE user_id = $1 AND started_at >= $2 AND started_at < $3
		ORDER BY started_at`,
		userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list call sessions between: %w", err)
	}
	return out, nil
}

package audit

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresRepo writes to audit_events. The table only ever receives INSERTs.
type PostgresRepo struct {
	db *sqlx.DB
}

func NewPostgresRepo(db *sqlx.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.NamedExecContext(ctx, `
INSERT INTO audit_events (id, user_id, type, actor_role, ip_address, call_id, leg_id, contact_id, message, metadata, created_at)
VALUES (:id, :user_id, :type, :actor_role, :ip_address, :call_id, :leg_id, :contact_id, :message, NULLIF(:metadata, '')::jsonb, :created_at)`, e)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

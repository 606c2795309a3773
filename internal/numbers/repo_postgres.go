package numbers

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// PostgresRepository reads owned_numbers and agent_profiles.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListOwned(ctx context.Context, userID string) ([]OwnedNumber, error) {
	const q = `
SELECT user_id, number, area_code, created_at
FROM owned_numbers
WHERE user_id = $1
ORDER BY created_at ASC, number ASC
`
	out := make([]OwnedNumber, 0)
	if err := r.db.SelectContext(ctx, &out, q, userID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) AgentPhone(ctx context.Context, userID string) (string, error) {
	const q = `SELECT phone FROM agent_profiles WHERE user_id = $1`
	var p sql.NullString
	if err := r.db.GetContext(ctx, &p, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrAgentPhoneNotFound
		}
		return "", err
	}
	if !p.Valid || p.String == "" {
		return "", ErrAgentPhoneNotFound
	}
	return p.String, nil
}

package numbers

import (
	"context"
	"errors"
	"time"
)

// OwnedNumber is an outbound number an agent has provisioned with the provider.
// Provisioning lives outside this service; rows are read-only here.
type OwnedNumber struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Number    string    `json:"number" db:"number"`
	AreaCode  string    `json:"area_code" db:"area_code"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

var ErrAgentPhoneNotFound = errors.New("numbers: agent phone not found")

// Repository resolves per-agent phone data.
//
// ListOwned must return a stable order (oldest first, then by number) because caller-id
// tie-breaks pick the first-listed number.
type Repository interface {
	ListOwned(ctx context.Context, userID string) ([]OwnedNumber, error)
	AgentPhone(ctx context.Context, userID string) (string, error)
}

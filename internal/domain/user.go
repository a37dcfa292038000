package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the persisted part of an identity. Only the fields the dispatch
// core needs are stored here; profiles live with the identity provider.
type User struct {
	ID                uuid.UUID `json:"id"`
	Role              Role      `json:"role"`
	ProgramID         uuid.UUID `json:"program_id"`
	CorporateClientID uuid.UUID `json:"corporate_client_id"`
	CreatedAt         time.Time `json:"created_at"`
}

package auth

import (
	"github.com/google/uuid"
)

// Identity is a player identity that survived verification.
type Identity struct {
	UUID     uuid.UUID
	Username string
}

// Verifier checks a proxy-forwarded identity payload.
type Verifier interface {
	Verify(payload []byte) (Identity, error)
}

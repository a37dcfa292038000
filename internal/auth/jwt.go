// Package auth is the identity provider: it issues and verifies HS256 tokens
// that carry a user's role and organisational scope.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pkordes/transit-dispatch/internal/domain"
)

const issuer = "transit-dispatch"

// ErrInvalidToken is returned for any token that fails signature, expiry,
// or claim validation. Handlers map it to 401.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the token claims. The subject is the user id.
type Claims struct {
	Role               domain.Role `json:"role"`
	ProgramID          uuid.UUID   `json:"program_id"`
	AuthorizedPrograms []uuid.UUID `json:"authorized_programs,omitempty"`
	CorporateClientID  uuid.UUID   `json:"corporate_client_id"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies identity tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns a Tokens signing with secret. Issued tokens expire after ttl.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for id.
func (t *Tokens) Issue(id domain.Identity) (string, error) {
	if id.UserID == uuid.Nil {
		return "", fmt.Errorf("auth.Tokens.Issue: %w: user id is required", domain.ErrValidation)
	}
	now := t.now()
	claims := &Claims{
		Role:               id.Role,
		ProgramID:          id.ProgramID,
		AuthorizedPrograms: id.AuthorizedPrograms,
		CorporateClientID:  id.CorporateClientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth.Tokens.Issue: %w", err)
	}
	return signed, nil
}

// Verify parses raw and returns the identity it carries.
func (t *Tokens) Verify(raw string) (domain.Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	if claims.Role == domain.RoleUnknown {
		return domain.Identity{}, fmt.Errorf("%w: missing role", ErrInvalidToken)
	}

	return domain.Identity{
		UserID:             userID,
		Role:               claims.Role,
		ProgramID:          claims.ProgramID,
		AuthorizedPrograms: claims.AuthorizedPrograms,
		CorporateClientID:  claims.CorporateClientID,
	}, nil
}

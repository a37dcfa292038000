package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/transit-dispatch/internal/auth"
	"github.com/pkordes/transit-dispatch/internal/domain"
)

const secret = "test-secret"

func TestTokens_RoundTrip(t *testing.T) {
	tokens := auth.NewTokens(secret, time.Hour)
	want := domain.Identity{
		UserID:             uuid.New(),
		Role:               domain.RoleProgramAdmin,
		ProgramID:          uuid.New(),
		AuthorizedPrograms: []uuid.UUID{uuid.New()},
		CorporateClientID:  uuid.New(),
	}

	raw, err := tokens.Issue(want)
	require.NoError(t, err)
	got, err := tokens.Verify(raw)

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTokens_RejectsWrongSecret(t *testing.T) {
	raw, err := auth.NewTokens("other", time.Hour).Issue(domain.Identity{UserID: uuid.New(), Role: domain.RoleDriver})
	require.NoError(t, err)

	_, err = auth.NewTokens(secret, time.Hour).Verify(raw)

	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokens_RejectsExpired(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	claims := &auth.Claims{
		Role: domain.RoleDriver,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    "transit-dispatch",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = auth.NewTokens(secret, time.Hour).Verify(raw)

	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokens_RejectsMissingRole(t *testing.T) {
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    "transit-dispatch",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = auth.NewTokens(secret, time.Hour).Verify(raw)

	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokens_RejectsOtherAlgorithm(t *testing.T) {
	claims := &auth.Claims{
		Role: domain.RoleSuperAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: uuid.NewString(),
			Issuer:  "transit-dispatch",
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = auth.NewTokens(secret, time.Hour).Verify(raw)

	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokens_IssueRequiresUser(t *testing.T) {
	_, err := auth.NewTokens(secret, time.Hour).Issue(domain.Identity{Role: domain.RoleDriver})

	assert.ErrorIs(t, err, domain.ErrValidation)
}

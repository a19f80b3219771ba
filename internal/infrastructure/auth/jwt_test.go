package auth

import (
	"testing"
	"time"

	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *JWTService {
	return NewJWTService(config.JWTConfig{
		Enabled:         true,
		Secret:          "test-secret-key-at-least-32-chars",
		Issuer:          "erp-connector",
		TokenExpiration: time.Hour,
	})
}

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc := newTestJWTService()
	tenantID := uuid.New()

	token, expiresAt, err := svc.GenerateToken(GenerateTokenInput{TenantID: tenantID, Subject: "catalog-service"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)

	got, err := claims.GetTenantUUID()
	require.NoError(t, err)
	assert.Equal(t, tenantID, got)
	assert.Equal(t, "catalog-service", claims.Subject)
	assert.Equal(t, "erp-connector", claims.Issuer)
	assert.True(t, claims.HasScope(ScopeRead))
	assert.True(t, claims.HasScope(ScopeSync))
	assert.False(t, claims.HasScope(ScopeOps))
}

func TestJWTService_GenerateToken_Errors(t *testing.T) {
	t.Run("missing tenant", func(t *testing.T) {
		_, _, err := newTestJWTService().GenerateToken(GenerateTokenInput{})
		assert.ErrorIs(t, err, ErrMissingTenantID)
	})

	t.Run("missing secret", func(t *testing.T) {
		svc := NewJWTService(config.JWTConfig{})
		_, _, err := svc.GenerateToken(GenerateTokenInput{TenantID: uuid.New()})
		assert.ErrorIs(t, err, ErrMissingSecret)

		_, err = svc.ValidateToken("anything")
		assert.ErrorIs(t, err, ErrMissingSecret)
	})
}

func TestJWTService_ValidateToken(t *testing.T) {
	svc := newTestJWTService()

	t.Run("expired", func(t *testing.T) {
		token, _, err := svc.GenerateToken(GenerateTokenInput{TenantID: uuid.New(), TTL: time.Minute})
		require.NoError(t, err)

		later := newTestJWTService()
		later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		_, err = later.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("not yet valid", func(t *testing.T) {
		future := newTestJWTService()
		future.now = func() time.Time { return time.Now().Add(time.Hour) }
		token, _, err := future.GenerateToken(GenerateTokenInput{TenantID: uuid.New()})
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenNotYetValid)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: "another-secret-key-at-least-32-ch", Issuer: "erp-connector", TokenExpiration: time.Hour})
		token, _, err := other.GenerateToken(GenerateTokenInput{TenantID: uuid.New()})
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: "test-secret-key-at-least-32-chars", Issuer: "someone-else", TokenExpiration: time.Hour})
		token, _, err := other.GenerateToken(GenerateTokenInput{TenantID: uuid.New()})
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("tenant claim must be a uuid", func(t *testing.T) {
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "erp-connector",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			TenantID: "acme",
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key-at-least-32-chars"))
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidClaims)
	})

	t.Run("missing tenant claim", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "erp-connector",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key-at-least-32-chars"))
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrMissingTenantID)
	})
}

func TestJWTService_CustomScopesAndTTL(t *testing.T) {
	svc := newTestJWTService()
	token, expiresAt, err := svc.GenerateToken(GenerateTokenInput{
		TenantID: uuid.New(),
		Scopes:   []string{ScopeOps},
		TTL:      10 * time.Minute,
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, []string{ScopeOps}, claims.Scopes)
	assert.False(t, claims.HasScope(ScopeRead))
	assert.Equal(t, time.Hour, svc.GetExpiration())
}

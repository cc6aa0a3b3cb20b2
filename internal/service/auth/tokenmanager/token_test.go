package tokenmanager

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/taskm/internal/apperrors"
	"github.com/nkiryanov/taskm/internal/models"
)

func Test_TokenManager(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	newManager := func(t *testing.T, cfg Config) *TokenManager {
		t.Helper()
		if cfg.SecretKey == "" {
			cfg.SecretKey = "test-secret-key"
		}
		m, err := New(cfg)
		require.NoError(t, err, "token manager should be created without errors")
		return m
	}

	t.Run("new defaults", func(t *testing.T) {
		m := newManager(t, Config{SecretKey: "secret"})

		require.Equal(t, "secret", m.accessKey, "secret key should be set")
		require.Equal(t, "secret", m.refreshKey, "refresh key should fall back to access key")
		require.Equal(t, defaultAccessTokenTTL, m.accessTTL, "default access token TTL should be set")
		require.Equal(t, defaultRefreshTokenTTL, m.refreshTTL, "default refresh token TTL should be set")
		require.Equal(t, defaultSigningMethod, m.alg.Alg(), "default signing method should be set")
	})

	t.Run("new fails without secret", func(t *testing.T) {
		_, err := New(Config{})
		require.Error(t, err)
	})

	t.Run("dedicated refresh secret is used", func(t *testing.T) {
		m := newManager(t, Config{SecretKey: "access-secret", RefreshSecretKey: "refresh-secret"})

		require.Equal(t, "access-secret", m.accessKey)
		require.Equal(t, "refresh-secret", m.refreshKey)

		// Refresh token signed with dedicated secret must not verify as access
		refresh, err := m.IssueRefresh(userID)
		require.NoError(t, err)

		_, err = m.Verify(refresh.Value, models.TokenKindAccess)
		require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
	})

	t.Run("GeneratePair", func(t *testing.T) {
		m := newManager(t, Config{AccessTTL: 15 * time.Minute, RefreshTTL: 7 * 24 * time.Hour})

		pair, err := m.GeneratePair(userID)
		require.NoError(t, err)

		assert.NotEmpty(t, pair.Access.Value, "access token should not be empty")
		assert.WithinDuration(t, time.Now().Add(15*time.Minute), pair.Access.ExpiresAt, time.Second)
		assert.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")
		assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), pair.Refresh.ExpiresAt, time.Second)
	})

	t.Run("access claims", func(t *testing.T) {
		m := newManager(t, Config{})

		access, err := m.IssueAccess(userID)
		require.NoError(t, err)

		token, err := jwt.ParseWithClaims(access.Value, &Claims{}, func(token *jwt.Token) (any, error) {
			return []byte("test-secret-key"), nil
		})
		require.NoError(t, err)
		require.True(t, token.Valid, "access token should be valid")

		claims, ok := token.Claims.(*Claims)
		require.True(t, ok, "claims should be of type Claims")
		assert.Equal(t, userID, claims.UserID, "user ID in token should match")
		assert.Equal(t, models.TokenKindAccess, claims.Kind, "kind claim should be access")
		assert.NotEmpty(t, claims.ID, "token has to has jti")
		assert.WithinDuration(t, time.Now(), claims.IssuedAt.Time, time.Second, "issued at should be close to now")
	})

	t.Run("Verify", func(t *testing.T) {
		t.Run("round trip ok", func(t *testing.T) {
			m := newManager(t, Config{})

			for _, kind := range []models.TokenKind{models.TokenKindAccess, models.TokenKindRefresh} {
				token, err := m.issue(userID, kind)
				require.NoError(t, err)

				got, err := m.Verify(token.Value, kind)

				require.NoError(t, err)
				require.Equal(t, userID, got, "verified subject should match issued one")
			}
		})

		t.Run("expired token fails with ErrTokenExpired", func(t *testing.T) {
			m := newManager(t, Config{AccessTTL: -time.Minute})

			token, err := m.IssueAccess(userID)
			require.NoError(t, err)

			_, err = m.Verify(token.Value, models.TokenKindAccess)

			require.ErrorIs(t, err, apperrors.ErrTokenExpired)
			require.NotErrorIs(t, err, apperrors.ErrTokenInvalid, "expired must be distinct from invalid")
		})

		t.Run("tampered signature fails with ErrTokenInvalid", func(t *testing.T) {
			m := newManager(t, Config{})

			token, err := m.IssueAccess(userID)
			require.NoError(t, err)

			// Flip the last byte of the signature
			b := []byte(token.Value)
			b[len(b)-1] ^= 0x01

			_, err = m.Verify(string(b), models.TokenKindAccess)

			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
			require.NotErrorIs(t, err, apperrors.ErrTokenExpired)
		})

		t.Run("malformed token fails with ErrTokenInvalid", func(t *testing.T) {
			m := newManager(t, Config{})

			_, err := m.Verify("not-even-a-jwt", models.TokenKindAccess)

			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
		})

		t.Run("wrong kind fails with ErrTokenInvalid", func(t *testing.T) {
			// Same signing key for both kinds: only the kind claim protects here
			m := newManager(t, Config{})

			access, err := m.IssueAccess(userID)
			require.NoError(t, err)

			_, err = m.Verify(access.Value, models.TokenKindRefresh)

			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
		})

		t.Run("token signed with other key fails", func(t *testing.T) {
			m := newManager(t, Config{})
			other := newManager(t, Config{SecretKey: "other-secret-key"})

			token, err := other.IssueAccess(userID)
			require.NoError(t, err)

			_, err = m.Verify(token.Value, models.TokenKindAccess)

			require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
		})
	})
}

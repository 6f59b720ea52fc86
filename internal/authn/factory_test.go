package authn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/pushtasks/internal/config"
)

func TestNew(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		a, err := New(KindNone, nil, nil)
		require.NoError(t, err)
		assert.IsType(t, NoAuth{}, a)
	})

	t.Run("oidc", func(t *testing.T) {
		a, err := New(KindOIDC, map[string]any{
			"service_account_email": "tasks@example.com",
			"audience":              "https://worker.example.com",
		}, nil)
		require.NoError(t, err)

		oidc, ok := a.(*OIDCTokenAuth)
		require.True(t, ok)
		assert.Nil(t, oidc.Verifier)
		assert.Equal(t, "tasks@example.com", oidc.ServiceAccountEmail)
		assert.Equal(t, "https://worker.example.com", oidc.Audience)
	})

	t.Run("jwt", func(t *testing.T) {
		a, err := New(KindJWT, map[string]any{"secret": testSecret, "issuer": "emulator"}, nil)
		require.NoError(t, err)

		oidc, ok := a.(*OIDCTokenAuth)
		require.True(t, ok)
		verifier, ok := oidc.Verifier.(*JWTVerifier)
		require.True(t, ok)
		assert.Equal(t, "emulator", verifier.issuer)
	})

	t.Run("jwt without secret", func(t *testing.T) {
		_, err := New(KindJWT, map[string]any{}, nil)
		assert.ErrorIs(t, err, config.ErrImproperlyConfigured)
	})

	t.Run("empty kind", func(t *testing.T) {
		_, err := New("", nil, nil)
		assert.ErrorIs(t, err, config.ErrImproperlyConfigured)
		assert.Contains(t, err.Error(), `"none"`)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := New("kerberos", nil, nil)
		assert.ErrorIs(t, err, config.ErrImproperlyConfigured)
	})
}

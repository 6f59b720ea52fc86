package authn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewJWTVerifier_ShortSecret(t *testing.T) {
	_, err := NewJWTVerifier("short")
	assert.Error(t, err)
}

func TestJWTVerifier_Verify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier, err := NewJWTVerifier(testSecret,
		WithIssuer("https://emulator.local"),
		WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)

	other, err := NewJWTVerifier("ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)

	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss":   "https://emulator.local",
			"sub":   "worker",
			"aud":   "https://worker.example.com",
			"email": "tasks@example.com",
			"exp":   now.Add(time.Hour).Unix(),
		}
	}

	tests := []struct {
		name     string
		signer   *JWTVerifier
		claims   func() jwt.MapClaims
		audience string
		wantErr  bool
	}{
		{name: "valid", signer: verifier, claims: base},
		{name: "valid with audience", signer: verifier, claims: base, audience: "https://worker.example.com"},
		{name: "wrong audience", signer: verifier, claims: base, audience: "https://elsewhere", wantErr: true},
		{name: "wrong signature", signer: other, claims: base, wantErr: true},
		{
			name:   "expired",
			signer: verifier,
			claims: func() jwt.MapClaims {
				c := base()
				c["exp"] = now.Add(-time.Hour).Unix()
				return c
			},
			wantErr: true,
		},
		{
			name:   "missing expiry",
			signer: verifier,
			claims: func() jwt.MapClaims {
				c := base()
				delete(c, "exp")
				return c
			},
			wantErr: true,
		},
		{
			name:   "wrong issuer",
			signer: verifier,
			claims: func() jwt.MapClaims {
				c := base()
				c["iss"] = "https://attacker.local"
				return c
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := tt.signer.Sign(tt.claims())
			require.NoError(t, err)

			claims, err := verifier.Verify(context.Background(), token, tt.audience)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidToken)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "worker", claims["sub"])
			assert.Equal(t, "tasks@example.com", claims["email"])
		})
	}
}

func TestJWTVerifier_RejectsOtherAlgorithms(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "worker",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), signed, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestOIDCTokenAuth_WithJWTVerifier(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)
	auth := &OIDCTokenAuth{Verifier: verifier, ServiceAccountEmail: "tasks@example.com"}

	token, err := verifier.Sign(jwt.MapClaims{
		"sub":   "worker",
		"email": "tasks@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/tasks/dispatch", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	identity := auth.Authenticate(r)
	require.NotNil(t, identity)
	assert.Equal(t, "worker", identity.Subject)
	assert.Equal(t, "tasks@example.com", identity.Email)
}

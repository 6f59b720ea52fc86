package authn

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	claims      map[string]any
	err         error
	gotToken    string
	gotAudience string
	calls       int
}

func (f *fakeVerifier) Verify(_ context.Context, token, audience string) (map[string]any, error) {
	f.calls++
	f.gotToken = token
	f.gotAudience = audience
	return f.claims, f.err
}

func requestWithAuth(header string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/tasks/dispatch", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return r
}

func TestNoAuth(t *testing.T) {
	identity := NoAuth{}.Authenticate(requestWithAuth(""))

	require.NotNil(t, identity)
	assert.True(t, identity.Anonymous)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		token  string
		ok     bool
	}{
		{"missing", "", "", false},
		{"bearer", "Bearer abc", "abc", true},
		{"lowercase scheme", "bearer abc", "abc", true},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", false},
		{"no token", "Bearer ", "", false},
		{"scheme only", "Bearer", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, ok := bearerToken(requestWithAuth(tt.header))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.token, token)
		})
	}
}

func TestOIDCTokenAuth(t *testing.T) {
	const account = "tasks@example-project.iam.gserviceaccount.com"

	tests := []struct {
		name         string
		header       string
		email        string
		verifier     *fakeVerifier
		wantIdentity bool
		wantCalls    int
	}{
		{
			name:      "no header",
			verifier:  &fakeVerifier{},
			wantCalls: 0,
		},
		{
			name:      "other scheme",
			header:    "Basic dXNlcjpwYXNz",
			verifier:  &fakeVerifier{},
			wantCalls: 0,
		},
		{
			name:      "verifier error",
			header:    "Bearer bad",
			verifier:  &fakeVerifier{err: errors.New("token expired")},
			wantCalls: 1,
		},
		{
			name:         "valid token without account restriction",
			header:       "Bearer good",
			verifier:     &fakeVerifier{claims: map[string]any{"sub": "123", "email": "other@example.com"}},
			wantIdentity: true,
			wantCalls:    1,
		},
		{
			name:         "valid token with matching account",
			header:       "Bearer good",
			email:        account,
			verifier:     &fakeVerifier{claims: map[string]any{"sub": "123", "email": account}},
			wantIdentity: true,
			wantCalls:    1,
		},
		{
			name:      "valid token with different account",
			header:    "Bearer good",
			email:     account,
			verifier:  &fakeVerifier{claims: map[string]any{"sub": "123", "email": "other@example.com"}},
			wantCalls: 1,
		},
		{
			name:      "valid token without email claim",
			header:    "Bearer good",
			email:     account,
			verifier:  &fakeVerifier{claims: map[string]any{"sub": "123"}},
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &OIDCTokenAuth{
				Verifier:            tt.verifier,
				Audience:            "https://worker.example.com",
				ServiceAccountEmail: tt.email,
			}

			identity := auth.Authenticate(requestWithAuth(tt.header))

			assert.Equal(t, tt.wantCalls, tt.verifier.calls)
			if !tt.wantIdentity {
				assert.Nil(t, identity)
				return
			}
			require.NotNil(t, identity)
			assert.Equal(t, "123", identity.Subject)
			assert.Equal(t, tt.verifier.claims["email"], identity.Email)
			assert.False(t, identity.Anonymous)
			assert.Equal(t, "good", tt.verifier.gotToken)
			assert.Equal(t, "https://worker.example.com", tt.verifier.gotAudience)
		})
	}
}

func TestIdentity_Principal(t *testing.T) {
	var missing *Identity
	assert.Equal(t, "", missing.Principal())
	assert.Equal(t, "anonymous", (&Identity{Anonymous: true}).Principal())
	assert.Equal(t, "tasks@example.com", (&Identity{Subject: "123", Email: "tasks@example.com"}).Principal())
	assert.Equal(t, "123", (&Identity{Subject: "123"}).Principal())
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	_, ok = IdentityFromContext(WithIdentity(context.Background(), nil))
	assert.False(t, ok)

	identity := &Identity{Subject: "123"}
	got, ok := IdentityFromContext(WithIdentity(context.Background(), identity))
	require.True(t, ok)
	assert.Same(t, identity, got)
}

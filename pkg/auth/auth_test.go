package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/waypoint/pkg/config"
)

const (
	testIssuer   = "https://issuer.test"
	testAudience = "waypoint"
	testKeyID    = "test-key"
)

type fixture struct {
	validator *JWTValidator
	key       *rsa.PrivateKey
	jwksURL   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub, err := jwk.FromRaw(&key.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, jwa.RS256))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)

	v, err := NewJWTValidator(context.Background(), JWTValidatorConfig{
		JWKSURL:  srv.URL,
		Issuer:   testIssuer,
		Audience: testAudience,
	})
	require.NoError(t, err)
	t.Cleanup(v.Close)

	return &fixture{validator: v, key: key, jwksURL: srv.URL}
}

func (f *fixture) sign(t *testing.T, issuer string, expires time.Time, claims map[string]any) string {
	t.Helper()
	tok := jwt.New()
	require.NoError(t, tok.Set(jwt.IssuerKey, issuer))
	require.NoError(t, tok.Set(jwt.AudienceKey, testAudience))
	require.NoError(t, tok.Set(jwt.SubjectKey, "user-1"))
	require.NoError(t, tok.Set(jwt.IssuedAtKey, time.Now().Add(-time.Minute)))
	require.NoError(t, tok.Set(jwt.ExpirationKey, expires))
	for k, v := range claims {
		require.NoError(t, tok.Set(k, v))
	}

	priv, err := jwk.FromRaw(f.key)
	require.NoError(t, err)
	require.NoError(t, priv.Set(jwk.KeyIDKey, testKeyID))
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, priv))
	require.NoError(t, err)
	return string(signed)
}

func TestValidateExtractsClaims(t *testing.T) {
	f := newFixture(t)
	token := f.sign(t, testIssuer, time.Now().Add(time.Hour), map[string]any{
		"email": "lead@example.com",
		"role":  "support-lead",
		"team":  "billing",
	})

	claims, err := f.validator.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "lead@example.com", claims.Email)
	assert.Equal(t, "support-lead", claims.Role)
	assert.Equal(t, "billing", claims.Custom["team"])
	assert.True(t, claims.HasAnyRole("admin", "support-lead"))
}

func TestValidateRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.validator.Validate(ctx, f.sign(t, testIssuer, time.Now().Add(-time.Minute), nil))
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")

	_, err = f.validator.Validate(ctx, f.sign(t, "https://other.test", time.Now().Add(time.Hour), nil))
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong issuer")

	_, err = f.validator.Validate(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTValidatorBadURL(t *testing.T) {
	_, err := NewJWTValidator(context.Background(), JWTValidatorConfig{})
	assert.Error(t, err)

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err = NewJWTValidator(context.Background(), JWTValidatorConfig{JWKSURL: srv.URL})
	assert.Error(t, err)
}

func TestNewValidatorFromConfigDisabled(t *testing.T) {
	v, err := NewValidatorFromConfig(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = NewValidatorFromConfig(context.Background(), &config.AuthConfig{JWKSURL: "http://unused"})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestMiddlewareAndRoles(t *testing.T) {
	f := newFixture(t)
	lead := f.sign(t, testIssuer, time.Now().Add(time.Hour), map[string]any{"role": "support-lead"})
	agent := f.sign(t, testIssuer, time.Now().Add(time.Hour), map[string]any{"role": "agent"})

	var seen *Claims
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(f.validator)(RequireRole(true, "support-lead")(ok))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"wrong role", "Bearer " + agent, http.StatusForbidden},
		{"reviewer", "Bearer " + lead, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	require.NotNil(t, seen)
	assert.Equal(t, "support-lead", seen.Role)
}

func TestMiddlewareDisabled(t *testing.T) {
	h := Middleware(nil)(RequireRole(false, "admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/config"
	"github.com/BaSui01/agentrelay/types"
)

// =============================================================================
// 🔐 JWTAuth
// =============================================================================

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func inAnHour() int64 { return time.Now().Add(time.Hour).Unix() }

func TestJWTAuth(t *testing.T) {
	cfg := config.JWTConfig{Enabled: true, Secret: testSecret, Issuer: "agentrelay"}

	var caller types.Caller
	handler := JWTAuth(cfg, publicPaths, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ = types.CallerFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	valid := signToken(t, jwt.MapClaims{
		"iss":       "agentrelay",
		"sub":       "u-42",
		"tenant_id": "acme",
		"roles":     []string{"admin", "viewer"},
		"exp":       inAnHour(),
	})

	serve := func(r *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}
	bearer := func(path, tok string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		return r
	}

	t.Run("valid token injects identity", func(t *testing.T) {
		caller = types.Caller{}
		w := serve(bearer("/v1/threads", valid))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "acme", caller.TenantID)
		assert.Equal(t, "u-42", caller.UserID)
		assert.Equal(t, []string{"admin", "viewer"}, caller.Roles)
	})

	t.Run("user_id claim wins over sub", func(t *testing.T) {
		tok := signToken(t, jwt.MapClaims{"iss": "agentrelay", "sub": "s", "user_id": "u-7", "exp": inAnHour()})
		require.Equal(t, http.StatusOK, serve(bearer("/v1/threads", tok)).Code)
		assert.Equal(t, "u-7", caller.UserID)
	})

	t.Run("missing token", func(t *testing.T) {
		w := serve(httptest.NewRequest(http.MethodGet, "/v1/threads", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), string(types.ErrUnauthorized))
		assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
	})

	t.Run("non bearer scheme", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
		r.Header.Set("Authorization", "Basic "+valid)
		assert.Equal(t, http.StatusUnauthorized, serve(r).Code)
	})

	t.Run("lowercase scheme accepted", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
		r.Header.Set("Authorization", "bearer "+valid)
		assert.Equal(t, http.StatusOK, serve(r).Code)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		tok := signToken(t, jwt.MapClaims{"iss": "someone-else", "exp": inAnHour()})
		assert.Equal(t, http.StatusUnauthorized, serve(bearer("/v1/threads", tok)).Code)
	})

	t.Run("expired", func(t *testing.T) {
		tok := signToken(t, jwt.MapClaims{"iss": "agentrelay", "exp": time.Now().Add(-time.Minute).Unix()})
		assert.Equal(t, http.StatusUnauthorized, serve(bearer("/v1/threads", tok)).Code)
	})

	t.Run("missing exp", func(t *testing.T) {
		tok := signToken(t, jwt.MapClaims{"iss": "agentrelay"})
		assert.Equal(t, http.StatusUnauthorized, serve(bearer("/v1/threads", tok)).Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iss": "agentrelay", "exp": inAnHour(),
		}).SignedString([]byte("other"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve(bearer("/v1/threads", tok)).Code)
	})

	t.Run("public path skips auth", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, serve(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	})

	t.Run("preflight skips auth", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, serve(httptest.NewRequest(http.MethodOptions, "/v1/runs", nil)).Code)
	})

	t.Run("stream accepts query token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, streamRoute+"?access_token="+valid, nil)
		assert.Equal(t, http.StatusOK, serve(r).Code)
	})

	t.Run("query token only on stream route", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/v1/threads?access_token="+valid, nil)
		assert.Equal(t, http.StatusUnauthorized, serve(r).Code)
	})
}

func TestJWTAuth_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemKey := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	handler := JWTAuth(config.JWTConfig{Enabled: true, PublicKey: pemKey}, nil, zap.NewNop())(okHandler())

	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "svc", "exp": inAnHour(),
	}).SignedString(key)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	// 未配置 HMAC 密钥时 HS256 一律拒绝
	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"exp": inAnHour()}))
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRelayClaims_Caller(t *testing.T) {
	c := relayClaims{TenantID: "acme", Roles: []string{"", "admin"}}
	c.Subject = "u-1"

	caller := c.caller()
	assert.Equal(t, "u-1", caller.UserID)
	assert.Equal(t, []string{"admin"}, caller.Roles)
	assert.True(t, caller.HasRole("admin"))
}

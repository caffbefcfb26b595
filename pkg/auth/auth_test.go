package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/pkg/config"
	"parley/pkg/logger"
)

func setSigningKeys(t *testing.T, keys ...string) {
	t.Helper()
	rc := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range keys {
		rc.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(rc)
	t.Cleanup(func() { config.SetRuntime(nil) })
}

func signedRequest(uid, sig string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	if uid != "" {
		r.Header.Set("X-User-ID", uid)
	}
	if sig != "" {
		r.Header.Set("X-User-Signature", sig)
	}
	return r
}

func TestRequireSignedUserVerifiesSignature(t *testing.T) {
	logger.Init()
	setSigningKeys(t, "secret-key")

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	RequireSignedUser(next).ServeHTTP(rec, signedRequest("alice", Sign("secret-key", "alice")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", seen)
}

func TestRequireSignedUserRejectsBadSignature(t *testing.T) {
	logger.Init()
	setSigningKeys(t, "secret-key")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached with invalid signature")
	})

	rec := httptest.NewRecorder()
	RequireSignedUser(next).ServeHTTP(rec, signedRequest("alice", Sign("wrong-key", "alice")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSignedUserBackendSkipsSignature(t *testing.T) {
	logger.Init()
	setSigningKeys(t, "secret-key")

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	r := signedRequest("alice", "")
	r.Header.Set("X-Role-Name", "backend")
	rec := httptest.NewRecorder()
	RequireSignedUser(next).ServeHTTP(rec, r)
	assert.True(t, called)
}

func TestResolveUserPrefersVerifiedIdentity(t *testing.T) {
	logger.Init()
	r := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	r = r.WithContext(WithUserID(r.Context(), "alice"))

	uid, code, _ := ResolveUserFromRequest(r)
	require.Zero(t, code)
	assert.Equal(t, "alice", uid)
}

func TestResolveUserRejectsConflictingHeader(t *testing.T) {
	logger.Init()
	r := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	r.Header.Set("X-User-ID", "mallory")
	r = r.WithContext(WithUserID(r.Context(), "alice"))

	_, code, msg := ResolveUserFromRequest(r)
	assert.Equal(t, http.StatusForbidden, code)
	assert.NotEmpty(t, msg)
}

func TestResolveUserBackendHeaderAndQuery(t *testing.T) {
	logger.Init()

	r := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	r.Header.Set("X-Role-Name", "backend")
	r.Header.Set("X-User-ID", "bob")
	uid, code, _ := ResolveUserFromRequest(r)
	require.Zero(t, code)
	assert.Equal(t, "bob", uid)

	r = httptest.NewRequest(http.MethodGet, "/v1/conversations?user=carol", nil)
	r.Header.Set("X-Role-Name", "backend")
	uid, code, _ = ResolveUserFromRequest(r)
	require.Zero(t, code)
	assert.Equal(t, "carol", uid)

	// frontend callers never fall back to headers
	r = httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	r.Header.Set("X-User-ID", "bob")
	_, code, _ = ResolveUserFromRequest(r)
	assert.Equal(t, http.StatusUnauthorized, code)
}

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*App, *MemDB) {
	t.Helper()
	db := NewMemoryDB()
	return newApp(db, testTokenService(), 10000), db
}

func doJSON(t *testing.T, h http.Handler, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestMissingCredentialIs401(t *testing.T) {
	app, _ := newTestApp(t)
	router := app.routes()

	for _, path := range []string{"/api/v1/external/ping", "/api/v1/auth/me", "/api/v1/admin/tenants"} {
		rec := doJSON(t, router, "GET", path, "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, path)
		require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	}

	// A malformed header is indistinguishable from an absent one.
	req := httptest.NewRequest("GET", "/api/v1/external/ping", nil)
	req.Header.Set("Authorization", "Token whatever")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginAndMe(t *testing.T) {
	app, db := newTestApp(t)
	router := app.routes()
	tenant := seedTenant(t, db)
	seedUser(t, db, "alice@acme.test", RoleUser, &tenant.ID)

	rec := doJSON(t, router, "POST", "/api/v1/auth/token", "", map[string]string{"email": "alice@acme.test", "password": "password"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	access, _ := body["access_token"].(string)
	refresh, _ := body["refresh_token"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	rec = doJSON(t, router, "GET", "/api/v1/auth/me", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody(t, rec)
	require.Equal(t, "alice@acme.test", me["email"])

	// Wrong password never yields a token.
	rec = doJSON(t, router, "POST", "/api/v1/auth/token", "", map[string]string{"email": "alice@acme.test", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Refresh issues a fresh access token.
	rec = doJSON(t, router, "POST", "/api/v1/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, decodeBody(t, rec)["access_token"])
}

func TestAdminRequiresSuperAdmin(t *testing.T) {
	app, db := newTestApp(t)
	router := app.routes()
	tenant := seedTenant(t, db)
	admin := seedUser(t, db, "root@system.test", RoleSuperAdmin, nil)
	plain := seedUser(t, db, "bob@acme.test", RoleTenantAdmin, &tenant.ID)

	adminTok, err := app.tokens.CreateAccessToken(admin.Email)
	require.NoError(t, err)
	plainTok, err := app.tokens.CreateAccessToken(plain.Email)
	require.NoError(t, err)

	rec := doJSON(t, router, "GET", "/api/v1/admin/tenants", plainTok, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, "GET", "/api/v1/admin/tenants", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "POST", "/api/v1/admin/tenants", adminTok, map[string]string{"name": "globex", "domain": "globex.test"})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestTokenLifecycleOverHTTP(t *testing.T) {
	app, db := newTestApp(t)
	router := app.routes()
	tenant := seedTenant(t, db)
	admin := seedUser(t, db, "root@system.test", RoleSuperAdmin, nil)
	adminTok, err := app.tokens.CreateAccessToken(admin.Email)
	require.NoError(t, err)

	rec := doJSON(t, router, "POST", "/api/v1/tokens", adminTok, map[string]interface{}{
		"name":      "monitoring",
		"scopes":    []string{"health:read"},
		"tenant_id": tenant.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	secret, _ := created["token"].(string)
	require.NotEmpty(t, secret)

	// The minted secret authenticates the external API.
	rec = doJSON(t, router, "GET", "/api/v1/external/health", secret, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody(t, rec)
	require.Equal(t, float64(tenant.ID), health["tenant_id"])
	require.Nil(t, health["user_id"])

	// Missing scope is a 403, distinct from a missing credential.
	rec = doJSON(t, router, "GET", "/api/v1/external/status", secret, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "INSUFFICIENT_SCOPE", decodeBody(t, rec)["error_code"])

	// Unscoped external routes only need the resolved principal.
	rec = doJSON(t, router, "GET", "/api/v1/external/tenant", secret, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Deactivating the token revokes access.
	details := created["token_details"].(map[string]interface{})
	id := int64(details["id"].(float64))
	inactive := false
	_, err = db.UpdateAPIToken(id, APITokenUpdate{Active: &inactive})
	require.NoError(t, err)
	rec = doJSON(t, router, "GET", "/api/v1/external/health", secret, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionUserOnExternalAPI(t *testing.T) {
	app, db := newTestApp(t)
	router := app.routes()
	tenant := seedTenant(t, db)
	apiUser := seedUser(t, db, "svc@acme.test", RoleAPIUser, &tenant.ID)
	human := seedUser(t, db, "human@acme.test", RoleUser, &tenant.ID)

	apiTok, err := app.tokens.CreateAccessToken(apiUser.Email)
	require.NoError(t, err)
	humanTok, err := app.tokens.CreateAccessToken(human.Email)
	require.NoError(t, err)

	// API-tier session tokens pass, including scope-gated routes
	// (no scope set means unrestricted by role).
	rec := doJSON(t, router, "GET", "/api/v1/external/health", apiTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// A plain USER session token never reaches the external API.
	rec = doJSON(t, router, "GET", "/api/v1/external/ping", humanTok, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTrackingRecordsResolvedTenant(t *testing.T) {
	app, db := newTestApp(t)
	router := app.routes()
	tenant := seedTenant(t, db)
	_, err := db.CreateAPIToken("trk", testHash(t, "track-secret"), []string{"health:read"}, nil, tenant.ID, nil)
	require.NoError(t, err)

	rec := doJSON(t, router, "GET", "/api/v1/external/health", "track-secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotEmpty(t, db.calls)
	call := db.calls[len(db.calls)-1]
	require.Equal(t, "/api/v1/external/health", call.Endpoint)
	require.NotNil(t, call.TenantID)
	require.Equal(t, tenant.ID, *call.TenantID)
	// Synthetic principals never contribute a user id.
	require.Nil(t, call.UserID)
	require.Equal(t, http.StatusOK, call.Status)
}

func TestHealthEndpointsUnauthenticated(t *testing.T) {
	app, db := newTestApp(t)
	router := app.routes()

	rec := doJSON(t, router, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, "GET", "/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Probe traffic is never tracked.
	require.Empty(t, db.calls)
}

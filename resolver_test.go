package main

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt.MinCost keeps the scan loop fast in tests; verification
// behaves identically at any cost.
func testHash(t *testing.T, secret string) string {
	t.Helper()
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	return string(b)
}

func testTokenService() *TokenService {
	return NewTokenService([]byte("test-secret"), time.Hour, 24*time.Hour)
}

var tenantSeq int64

func seedTenant(t *testing.T, db DB) *Tenant {
	t.Helper()
	n := atomic.AddInt64(&tenantSeq, 1)
	name := fmt.Sprintf("acme-%d", n)
	tenant, err := db.CreateTenant(name, name+".example.com")
	require.NoError(t, err)
	return tenant
}

func seedUser(t *testing.T, db DB, email string, role UserRole, tenantID *int64) *User {
	t.Helper()
	user, err := db.CreateUser(email, testHash(t, "password"), "Test User", role, tenantID)
	require.NoError(t, err)
	return user
}

func TestResolveTenantWideToken(t *testing.T) {
	db := NewMemoryDB()
	tenant := seedTenant(t, db)
	_, err := db.CreateAPIToken("ops", testHash(t, "abc123"), []string{"health:read"}, nil, tenant.ID, nil)
	require.NoError(t, err)

	r := NewResolver(db, testTokenService())
	p, authErr := r.ResolvePrincipal("abc123")
	require.Nil(t, authErr)
	require.Equal(t, SyntheticTenantPrincipal, p.Kind)
	require.Nil(t, p.UserID)
	require.Equal(t, RoleAPIUser, p.Role)
	require.NotNil(t, p.TenantID)
	require.Equal(t, tenant.ID, *p.TenantID)
	require.Equal(t, []string{"health:read"}, p.Scopes)

	require.Nil(t, RequireScope(p, "health:read"))
	scopeErr := RequireScope(p, "status:read")
	require.NotNil(t, scopeErr)
	require.Equal(t, 403, scopeErr.Status)
	require.Contains(t, scopeErr.Message, "status:read")
}

func TestResolveUserBoundToken(t *testing.T) {
	db := NewMemoryDB()
	tenant := seedTenant(t, db)
	user := seedUser(t, db, "svc@acme.test", RoleAPIUser, &tenant.ID)
	_, err := db.CreateAPIToken("svc", testHash(t, "s3cret"), []string{"status:read"}, nil, tenant.ID, &user.ID)
	require.NoError(t, err)

	r := NewResolver(db, testTokenService())
	p, authErr := r.ResolvePrincipal("s3cret")
	require.Nil(t, authErr)
	require.Equal(t, PersistedUser, p.Kind)
	require.NotNil(t, p.UserID)
	require.Equal(t, user.ID, *p.UserID)
	require.Equal(t, user.Email, p.Email)
	require.Equal(t, []string{"status:read"}, p.Scopes)
}

func TestExpiredTokenNeverMatches(t *testing.T) {
	db := NewMemoryDB()
	tenant := seedTenant(t, db)
	past := time.Now().Add(-time.Hour)
	_, err := db.CreateAPIToken("old", testHash(t, "stale"), nil, &past, tenant.ID, nil)
	require.NoError(t, err)

	r := NewResolver(db, testTokenService())
	p, authErr := r.ResolvePrincipal("stale")
	require.Nil(t, p)
	require.NotNil(t, authErr)
	require.Equal(t, 401, authErr.Status)
	require.Equal(t, "UNAUTHENTICATED", authErr.Code)
}

func TestExpiredMatchContinuesScanning(t *testing.T) {
	db := NewMemoryDB()
	tenant := seedTenant(t, db)
	other := seedTenant(t, db)
	past := time.Now().Add(-time.Minute)
	// Same secret behind two records: the expired one must be skipped,
	// not returned, so the scan reaches the live one.
	_, err := db.CreateAPIToken("expired", testHash(t, "shared"), nil, &past, tenant.ID, nil)
	require.NoError(t, err)
	_, err = db.CreateAPIToken("live", testHash(t, "shared"), nil, nil, other.ID, nil)
	require.NoError(t, err)

	r := NewResolver(db, testTokenService())
	p, authErr := r.ResolvePrincipal("shared")
	require.Nil(t, authErr)
	require.Equal(t, other.ID, *p.TenantID)
}

func TestInactiveTokenIgnored(t *testing.T) {
	db := NewMemoryDB()
	tenant := seedTenant(t, db)
	token, err := db.CreateAPIToken("off", testHash(t, "disabled"), nil, nil, tenant.ID, nil)
	require.NoError(t, err)
	inactive := false
	_, err = db.UpdateAPIToken(token.ID, APITokenUpdate{Active: &inactive})
	require.NoError(t, err)

	r := NewResolver(db, testTokenService())
	_, authErr := r.ResolvePrincipal("disabled")
	require.NotNil(t, authErr)
	require.Equal(t, 401, authErr.Status)
}

func TestNoCrossTokenMatch(t *testing.T) {
	db := NewMemoryDB()
	t1 := seedTenant(t, db)
	t2 := seedTenant(t, db)
	_, err := db.CreateAPIToken("one", testHash(t, "secret-one"), nil, nil, t1.ID, nil)
	require.NoError(t, err)
	_, err = db.CreateAPIToken("two", testHash(t, "secret-two"), nil, nil, t2.ID, nil)
	require.NoError(t, err)

	r := NewResolver(db, testTokenService())
	p, authErr := r.ResolvePrincipal("secret-two")
	require.Nil(t, authErr)
	require.Equal(t, t2.ID, *p.TenantID)
}

func TestResolveSignedToken(t *testing.T) {
	db := NewMemoryDB()
	tenant := seedTenant(t, db)
	user := seedUser(t, db, "api@acme.test", RoleAPIUser, &tenant.ID)

	svc := testTokenService()
	cred, err := svc.CreateAccessToken(user.Email)
	require.NoError(t, err)

	r := NewResolver(db, svc)
	p, authErr := r.ResolvePrincipal(cred)
	require.Nil(t, authErr)
	require.Equal(t, PersistedUser, p.Kind)
	require.Equal(t, user.ID, *p.UserID)
	// Session-derived principals are not scope-restricted.
	require.Nil(t, p.Scopes)
	require.Nil(t, RequireScope(p, "anything:at-all"))
}

func TestSignedTokenPlainUserRejected(t *testing.T) {
	db := NewMemoryDB()
	tenant := seedTenant(t, db)
	user := seedUser(t, db, "human@acme.test", RoleUser, &tenant.ID)

	svc := testTokenService()
	cred, err := svc.CreateAccessToken(user.Email)
	require.NoError(t, err)

	r := NewResolver(db, svc)
	p, authErr := r.ResolvePrincipal(cred)
	require.Nil(t, p)
	require.NotNil(t, authErr)
	require.Equal(t, 401, authErr.Status)

	// The same credential is still a valid session identity.
	sessionUser, sessionErr := r.CurrentUser(cred)
	require.Nil(t, sessionErr)
	require.Equal(t, user.ID, sessionUser.ID)
}

func TestExpiredSignedTokenFallsThrough(t *testing.T) {
	db := NewMemoryDB()
	tenant := seedTenant(t, db)
	seedUser(t, db, "api@acme.test", RoleAPIUser, &tenant.ID)

	svc := testTokenService()
	cred, err := svc.CreateAccessToken("api@acme.test")
	require.NoError(t, err)

	// Advance the verifier's clock past the token's expiry.
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	r := NewResolver(db, svc)
	p, authErr := r.ResolvePrincipal(cred)
	require.Nil(t, p)
	require.NotNil(t, authErr)
	require.Equal(t, "UNAUTHENTICATED", authErr.Code)
}

func TestInactiveUserRejectedOnBothPaths(t *testing.T) {
	db := NewMemoryDB()
	tenant := seedTenant(t, db)
	user := seedUser(t, db, "gone@acme.test", RoleAPIUser, &tenant.ID)
	inactive := false
	_, err := db.UpdateUser(user.ID, UserUpdate{Active: &inactive})
	require.NoError(t, err)
	_, err = db.CreateAPIToken("bound", testHash(t, "bound-secret"), nil, nil, tenant.ID, &user.ID)
	require.NoError(t, err)

	svc := testTokenService()
	cred, err := svc.CreateAccessToken(user.Email)
	require.NoError(t, err)

	r := NewResolver(db, svc)
	_, authErr := r.ResolvePrincipal(cred)
	require.NotNil(t, authErr)
	_, authErr = r.ResolvePrincipal("bound-secret")
	require.NotNil(t, authErr)
}

func TestResolveIsIdempotent(t *testing.T) {
	db := NewMemoryDB()
	tenant := seedTenant(t, db)
	_, err := db.CreateAPIToken("rep", testHash(t, "repeat"), []string{"health:read"}, nil, tenant.ID, nil)
	require.NoError(t, err)

	r := NewResolver(db, testTokenService())
	p1, authErr := r.ResolvePrincipal("repeat")
	require.Nil(t, authErr)
	p2, authErr := r.ResolvePrincipal("repeat")
	require.Nil(t, authErr)
	require.Equal(t, p1, p2)
}

func TestRequireRole(t *testing.T) {
	p := &Principal{Kind: PersistedUser, Role: RoleTenantAdmin}
	require.Nil(t, RequireRole(p, RoleTenantAdmin))

	roleErr := RequireRole(p, RoleSuperAdmin)
	require.NotNil(t, roleErr)
	require.Equal(t, 403, roleErr.Status)
	require.Equal(t, "INSUFFICIENT_ROLE", roleErr.Code)

	// Scopes never substitute for role.
	p.Scopes = []string{"admin:all"}
	require.NotNil(t, RequireRole(p, RoleSuperAdmin))
}

func TestZeroScopeTokenDeniesEveryScope(t *testing.T) {
	db := NewMemoryDB()
	tenant := seedTenant(t, db)
	user := seedUser(t, db, "zero@acme.test", RoleAPIUser, &tenant.ID)
	// One token created with an explicit empty scope list, one with the
	// field omitted entirely, one bound to a user.
	_, err := db.CreateAPIToken("empty", testHash(t, "zero-wide"), []string{}, nil, tenant.ID, nil)
	require.NoError(t, err)
	_, err = db.CreateAPIToken("omitted", testHash(t, "zero-omitted"), nil, nil, tenant.ID, nil)
	require.NoError(t, err)
	_, err = db.CreateAPIToken("bound", testHash(t, "zero-bound"), nil, nil, tenant.ID, &user.ID)
	require.NoError(t, err)

	r := NewResolver(db, testTokenService())
	for _, secret := range []string{"zero-wide", "zero-omitted", "zero-bound"} {
		p, authErr := r.ResolvePrincipal(secret)
		require.Nil(t, authErr, secret)
		require.NotNil(t, p.Scopes, secret)
		require.Empty(t, p.Scopes, secret)
		scopeErr := RequireScope(p, "health:read")
		require.NotNil(t, scopeErr, secret)
		require.Equal(t, "INSUFFICIENT_SCOPE", scopeErr.Code)
	}
}

func TestRequireScopeOnRestrictedPrincipal(t *testing.T) {
	p := &Principal{Kind: SyntheticTenantPrincipal, Role: RoleAPIUser, Scopes: []string{}}
	// An empty scope set is restricted; nil is not.
	scopeErr := RequireScope(p, "health:read")
	require.NotNil(t, scopeErr)
	require.Equal(t, "INSUFFICIENT_SCOPE", scopeErr.Code)
}

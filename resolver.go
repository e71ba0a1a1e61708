package main

import "time"

// PrincipalKind distinguishes identities backed by a user row from the
// synthetic identity minted for tenant-wide API tokens.
type PrincipalKind string

const (
	PersistedUser            PrincipalKind = "user"
	SyntheticTenantPrincipal PrincipalKind = "tenant-token"
)

// Principal is the resolved identity for one request. It lives for the
// request only and is never written back to storage. A synthetic
// principal has no UserID; nothing may use it as a foreign key.
type Principal struct {
	Kind     PrincipalKind
	UserID   *int64
	Email    string
	FullName string
	Role     UserRole
	TenantID *int64
	// Scopes is the authoritative ceiling for scope-gated operations
	// when the principal came from an API token. nil means the request
	// authenticated with a signed token and is not scope-restricted.
	Scopes []string
}

func (p *Principal) Synthetic() bool { return p.Kind == SyntheticTenantPrincipal }

func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// apiRoles are the roles allowed to authenticate against the external
// API with a signed session token alone.
var apiRoles = map[UserRole]bool{
	RoleAPIUser:     true,
	RoleTenantAdmin: true,
	RoleSuperAdmin:  true,
}

// Resolver turns a bearer credential into a Principal. Storage is a
// read-only collaborator during resolution; nothing here writes.
type Resolver struct {
	db     DB
	tokens *TokenService
	now    func() time.Time
}

func NewResolver(db DB, tokens *TokenService) *Resolver {
	return &Resolver{db: db, tokens: tokens, now: time.Now}
}

// CurrentUser resolves a signed session token to its user row. This is
// the session path: any role is acceptable, callers layer their own
// authorization on top.
func (r *Resolver) CurrentUser(credential string) (*User, *AuthError) {
	email, ok := r.tokens.VerifySubject(credential)
	if !ok {
		return nil, errUnauthenticated()
	}
	user, err := r.db.GetUserByEmail(email)
	if err != nil || user == nil || !user.Active {
		return nil, errUnauthenticated()
	}
	return user, nil
}

// MatchAPIToken finds the stored token a presented secret belongs to.
// Secrets exist at rest only as bcrypt hashes, so identification is a
// verification scan over every active token rather than a keyed lookup,
// linear in the active-token count. Records past their expiry are
// skipped even when the hash verifies, so an expired token looks
// exactly like an absent one.
func (r *Resolver) MatchAPIToken(secret string) (*APIToken, error) {
	tokens, err := r.db.ListActiveAPITokens()
	if err != nil {
		return nil, err
	}
	now := r.now()
	for _, t := range tokens {
		if !comparePassword(t.TokenHash, secret) {
			continue
		}
		if t.Expired(now) {
			continue
		}
		return t, nil
	}
	return nil, nil
}

// ResolvePrincipal authenticates a credential for the external API.
// The signed-token path is tried first and must land on an API-tier
// user; otherwise the credential is matched against the stored API
// tokens. The reasons either path fails are absorbed here: callers see
// a single Unauthenticated result.
func (r *Resolver) ResolvePrincipal(credential string) (*Principal, *AuthError) {
	if email, ok := r.tokens.VerifySubject(credential); ok {
		user, err := r.db.GetUserByEmail(email)
		if err == nil && user != nil && user.Active && apiRoles[user.Role] {
			return principalFromUser(user, nil), nil
		}
	}

	token, err := r.MatchAPIToken(credential)
	if err != nil || token == nil {
		return nil, errUnauthenticated()
	}

	if token.UserID != nil {
		user, err := r.db.GetUserByID(*token.UserID)
		if err != nil || user == nil || !user.Active {
			return nil, errUnauthenticated()
		}
		return principalFromUser(user, tokenScopes(token)), nil
	}

	// Tenant-wide token: synthesize a principal carrying the token's
	// tenant and scopes but no user id.
	tenantID := token.TenantID
	return &Principal{
		Kind:     SyntheticTenantPrincipal,
		Email:    "api-token@system",
		FullName: "API Token User",
		Role:     RoleAPIUser,
		TenantID: &tenantID,
		Scopes:   tokenScopes(token),
	}, nil
}

// tokenScopes returns the token's scope set, never nil. nil Scopes on a
// Principal is reserved for signed-token identities; a token granted no
// scopes must deny every scope gate, not pass them all.
func tokenScopes(t *APIToken) []string {
	if t.Scopes == nil {
		return []string{}
	}
	return t.Scopes
}

func principalFromUser(u *User, scopes []string) *Principal {
	id := u.ID
	return &Principal{
		Kind:     PersistedUser,
		UserID:   &id,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
		TenantID: u.TenantID,
		Scopes:   scopes,
	}
}

// RequireRole demands an exact role. Scopes play no part in this check.
func RequireRole(p *Principal, role UserRole) *AuthError {
	if p.Role != role {
		return errInsufficientRole()
	}
	return nil
}

// RequireScope demands a scope when the principal is scope-restricted.
// A nil scope set means the principal authenticated by role alone and
// passes unconditionally.
func RequireScope(p *Principal, scope string) *AuthError {
	if p.Scopes == nil {
		return nil
	}
	if !p.HasScope(scope) {
		return errInsufficientScope(scope)
	}
	return nil
}

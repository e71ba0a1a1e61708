package main

import "time"

// UserRole is the coarse role tier assigned to every user.
type UserRole string

const (
	RoleSuperAdmin  UserRole = "SUPER_ADMIN"
	RoleTenantAdmin UserRole = "TENANT_ADMIN"
	RoleUser        UserRole = "USER"
	RoleAPIUser     UserRole = "API_USER"
)

// Tenant represents a customer organisation
type Tenant struct {
	ID        int64
	Name      string
	Domain    string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User represents a user in the system
type User struct {
	ID             int64
	Email          string
	HashedPassword string
	FullName       string
	Role           UserRole
	TenantID       *int64 // nil for global super admins
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// APIToken represents a long-lived opaque API token. The secret itself
// is never stored; only its bcrypt hash is.
type APIToken struct {
	ID        int64
	Name      string
	TokenHash string
	Scopes    []string
	Active    bool
	ExpiresAt *time.Time // nil means the token never expires
	TenantID  int64
	UserID    *int64 // nil for tenant-wide tokens
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the token's expiry, if set, has passed.
func (t *APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// APICall is one tracked request, recorded for usage reporting.
type APICall struct {
	ID         int64
	TenantID   *int64
	UserID     *int64
	Endpoint   string
	Method     string
	Path       string
	ClientIP   string
	UserAgent  string
	Status     int
	DurationMS float64
	CreatedAt  time.Time
}

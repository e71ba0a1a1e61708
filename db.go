package main

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"
)

// DB interface for database operations
type DB interface {
	Init() error
	// Tenant operations
	CreateTenant(name, domain string) (*Tenant, error)
	GetTenant(id int64) (*Tenant, error)
	ListTenants(offset, limit int) ([]*Tenant, error)
	UpdateTenant(id int64, upd TenantUpdate) (*Tenant, error)
	// User operations
	CreateUser(email, hashedPassword, fullName string, role UserRole, tenantID *int64) (*User, error)
	GetUserByID(id int64) (*User, error)
	GetUserByEmail(email string) (*User, error)
	ListUsers(offset, limit int) ([]*User, error)
	UpdateUser(id int64, upd UserUpdate) (*User, error)
	DeleteUser(id int64) error
	// API token operations
	CreateAPIToken(name, tokenHash string, scopes []string, expiresAt *time.Time, tenantID int64, userID *int64) (*APIToken, error)
	GetAPIToken(id int64) (*APIToken, error)
	ListAPITokens(f TokenFilter) ([]*APIToken, int, error)
	ListActiveAPITokens() ([]*APIToken, error)
	UpdateAPIToken(id int64, upd APITokenUpdate) (*APIToken, error)
	DeleteAPIToken(id int64) error
	// Call tracking
	CreateAPICall(c *APICall) error
}

// Partial-update carriers: nil fields are left unchanged.

type TenantUpdate struct {
	Name   *string
	Domain *string
	Active *bool
}

type UserUpdate struct {
	Email    *string
	FullName *string
	Role     *UserRole
	TenantID *int64
	Active   *bool
}

type APITokenUpdate struct {
	Name      *string
	Scopes    []string
	Active    *bool
	ExpiresAt *time.Time
}

// TokenFilter narrows and pages token listings.
type TokenFilter struct {
	TenantID *int64
	UserID   *int64
	Offset   int
	Limit    int
}

// Scopes are persisted as a JSON array in a text column.
func marshalScopes(scopes []string) (string, error) {
	if scopes == nil {
		scopes = []string{}
	}
	b, err := json.Marshal(scopes)
	return string(b), err
}

func unmarshalScopes(s string) ([]string, error) {
	if s == "" {
		return []string{}, nil
	}
	var scopes []string
	if err := json.Unmarshal([]byte(s), &scopes); err != nil {
		return nil, err
	}
	return scopes, nil
}

// Memory DB, used by unit tests and local development.
type MemDB struct {
	mu      sync.RWMutex
	tenants map[int64]*Tenant
	users   map[int64]*User
	tokens  map[int64]*APIToken
	calls   []*APICall
	seq     int64
}

func NewMemoryDB() *MemDB {
	return &MemDB{
		tenants: map[int64]*Tenant{},
		users:   map[int64]*User{},
		tokens:  map[int64]*APIToken{},
	}
}

func (m *MemDB) Init() error { return nil }

func (m *MemDB) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *MemDB) CreateTenant(name, domain string) (*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Name == name || t.Domain == domain {
			return nil, errors.New("tenant exists")
		}
	}
	t := &Tenant{ID: m.nextID(), Name: name, Domain: domain, Active: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.tenants[t.ID] = t
	cp := *t
	return &cp, nil
}

func (m *MemDB) GetTenant(id int64) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tenants[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) ListTenants(offset, limit int) ([]*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.tenants))
	for id := range m.tenants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []*Tenant
	for _, id := range paginate(ids, offset, limit) {
		cp := *m.tenants[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemDB) UpdateTenant(id int64, upd TenantUpdate) (*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, nil
	}
	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.Domain != nil {
		t.Domain = *upd.Domain
	}
	if upd.Active != nil {
		t.Active = *upd.Active
	}
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, nil
}

func (m *MemDB) CreateUser(email, hashedPassword, fullName string, role UserRole, tenantID *int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return nil, errors.New("user exists")
		}
	}
	u := &User{
		ID: m.nextID(), Email: email, HashedPassword: hashedPassword, FullName: fullName,
		Role: role, TenantID: tenantID, Active: true, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *MemDB) GetUserByID(id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) GetUserByEmail(email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemDB) ListUsers(offset, limit int) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []*User
	for _, id := range paginate(ids, offset, limit) {
		cp := *m.users[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemDB) UpdateUser(id int64, upd UserUpdate) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.TenantID != nil {
		u.TenantID = upd.TenantID
	}
	if upd.Active != nil {
		u.Active = *upd.Active
	}
	u.UpdatedAt = time.Now()
	cp := *u
	return &cp, nil
}

func (m *MemDB) DeleteUser(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *MemDB) CreateAPIToken(name, tokenHash string, scopes []string, expiresAt *time.Time, tenantID int64, userID *int64) (*APIToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &APIToken{
		ID: m.nextID(), Name: name, TokenHash: tokenHash, Scopes: append([]string{}, scopes...),
		Active: true, ExpiresAt: expiresAt, TenantID: tenantID, UserID: userID,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	m.tokens[t.ID] = t
	cp := *t
	return &cp, nil
}

func (m *MemDB) GetAPIToken(id int64) (*APIToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tokens[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) ListAPITokens(f TokenFilter) ([]*APIToken, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []int64
	for id, t := range m.tokens {
		if f.TenantID != nil && t.TenantID != *f.TenantID {
			continue
		}
		if f.UserID != nil && (t.UserID == nil || *t.UserID != *f.UserID) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	total := len(ids)
	var out []*APIToken
	for _, id := range paginate(ids, f.Offset, f.Limit) {
		cp := *m.tokens[id]
		out = append(out, &cp)
	}
	return out, total, nil
}

func (m *MemDB) ListActiveAPITokens() ([]*APIToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.tokens))
	for id, t := range m.tokens {
		if t.Active {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []*APIToken
	for _, id := range ids {
		cp := *m.tokens[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemDB) UpdateAPIToken(id int64, upd APITokenUpdate) (*APIToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, nil
	}
	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.Scopes != nil {
		t.Scopes = append([]string{}, upd.Scopes...)
	}
	if upd.Active != nil {
		t.Active = *upd.Active
	}
	if upd.ExpiresAt != nil {
		t.ExpiresAt = upd.ExpiresAt
	}
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, nil
}

func (m *MemDB) DeleteAPIToken(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, id)
	return nil
}

func (m *MemDB) CreateAPICall(c *APICall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.ID = m.nextID()
	cp.CreatedAt = time.Now()
	m.calls = append(m.calls, &cp)
	return nil
}

func paginate(ids []int64, offset, limit int) []int64 {
	if offset >= len(ids) {
		return nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	return ids
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }

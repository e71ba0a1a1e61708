package main

import (
	"database/sql"
	"time"
)

// SQLite DB
type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tenants (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT UNIQUE, domain TEXT UNIQUE, active INTEGER DEFAULT 1, created_at TEXT, updated_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY AUTOINCREMENT, email TEXT UNIQUE, hashed_password TEXT, full_name TEXT, role TEXT, tenant_id INTEGER, active INTEGER DEFAULT 1, created_at TEXT, updated_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS tokens (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, token_hash TEXT UNIQUE NOT NULL, scopes TEXT NOT NULL, active INTEGER DEFAULT 1, expires_at INTEGER, tenant_id INTEGER NOT NULL, user_id INTEGER, created_at TEXT, updated_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS api_calls (id INTEGER PRIMARY KEY AUTOINCREMENT, tenant_id INTEGER, user_id INTEGER, endpoint TEXT, method TEXT, path TEXT, client_ip TEXT, user_agent TEXT, status INTEGER, duration_ms REAL, created_at TEXT);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteDB) CreateTenant(name, domain string) (*Tenant, error) {
	res, err := s.db.Exec(`INSERT INTO tenants(name,domain,active,created_at,updated_at) VALUES(?,?,1,datetime('now'),datetime('now'))`, name, domain)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &Tenant{ID: id, Name: name, Domain: domain, Active: true}, nil
}

func (s *SQLiteDB) scanTenant(row interface{ Scan(...interface{}) error }) (*Tenant, error) {
	var t Tenant
	var active int
	var created, updated string
	if err := row.Scan(&t.ID, &t.Name, &t.Domain, &active, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	t.Active = active != 0
	t.CreatedAt = parseSQLiteTime(created)
	t.UpdatedAt = parseSQLiteTime(updated)
	return &t, nil
}

// datetime('now') stores "YYYY-MM-DD HH:MM:SS" in UTC.
func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *SQLiteDB) GetTenant(id int64) (*Tenant, error) {
	row := s.db.QueryRow(`SELECT id,name,domain,active,created_at,updated_at FROM tenants WHERE id = ?`, id)
	return s.scanTenant(row)
}

func (s *SQLiteDB) ListTenants(offset, limit int) ([]*Tenant, error) {
	rows, err := s.db.Query(`SELECT id,name,domain,active,created_at,updated_at FROM tenants ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Tenant
	for rows.Next() {
		t, err := s.scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) UpdateTenant(id int64, upd TenantUpdate) (*Tenant, error) {
	t, err := s.GetTenant(id)
	if err != nil || t == nil {
		return t, err
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
	_, err = s.db.Exec(`UPDATE tenants SET name=?,domain=?,active=?,updated_at=datetime('now') WHERE id=?`, t.Name, t.Domain, boolToInt(t.Active), id)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *SQLiteDB) CreateUser(email, hashedPassword, fullName string, role UserRole, tenantID *int64) (*User, error) {
	res, err := s.db.Exec(`INSERT INTO users(email,hashed_password,full_name,role,tenant_id,active,created_at,updated_at) VALUES(?,?,?,?,?,1,datetime('now'),datetime('now'))`,
		email, hashedPassword, fullName, string(role), tenantID)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &User{ID: id, Email: email, HashedPassword: hashedPassword, FullName: fullName, Role: role, TenantID: tenantID, Active: true}, nil
}

func (s *SQLiteDB) scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	var u User
	var role string
	var tenantID sql.NullInt64
	var active int
	var created, updated string
	if err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.FullName, &role, &tenantID, &active, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.Role = UserRole(role)
	if tenantID.Valid {
		u.TenantID = &tenantID.Int64
	}
	u.Active = active != 0
	u.CreatedAt = parseSQLiteTime(created)
	u.UpdatedAt = parseSQLiteTime(updated)
	return &u, nil
}

func (s *SQLiteDB) GetUserByID(id int64) (*User, error) {
	row := s.db.QueryRow(`SELECT id,email,hashed_password,full_name,role,tenant_id,active,created_at,updated_at FROM users WHERE id = ?`, id)
	return s.scanUser(row)
}

func (s *SQLiteDB) GetUserByEmail(email string) (*User, error) {
	row := s.db.QueryRow(`SELECT id,email,hashed_password,full_name,role,tenant_id,active,created_at,updated_at FROM users WHERE email = ?`, email)
	return s.scanUser(row)
}

func (s *SQLiteDB) ListUsers(offset, limit int) ([]*User, error) {
	rows, err := s.db.Query(`SELECT id,email,hashed_password,full_name,role,tenant_id,active,created_at,updated_at FROM users ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) UpdateUser(id int64, upd UserUpdate) (*User, error) {
	u, err := s.GetUserByID(id)
	if err != nil || u == nil {
		return u, err
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
	_, err = s.db.Exec(`UPDATE users SET email=?,full_name=?,role=?,tenant_id=?,active=?,updated_at=datetime('now') WHERE id=?`,
		u.Email, u.FullName, string(u.Role), u.TenantID, boolToInt(u.Active), id)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *SQLiteDB) DeleteUser(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	return err
}

func (s *SQLiteDB) CreateAPIToken(name, tokenHash string, scopes []string, expiresAt *time.Time, tenantID int64, userID *int64) (*APIToken, error) {
	scopesJSON, err := marshalScopes(scopes)
	if err != nil {
		return nil, err
	}
	var expires sql.NullInt64
	if expiresAt != nil {
		expires = sql.NullInt64{Int64: expiresAt.Unix(), Valid: true}
	}
	res, err := s.db.Exec(`INSERT INTO tokens(name,token_hash,scopes,active,expires_at,tenant_id,user_id,created_at,updated_at) VALUES(?,?,?,1,?,?,?,datetime('now'),datetime('now'))`,
		name, tokenHash, scopesJSON, expires, tenantID, userID)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &APIToken{ID: id, Name: name, TokenHash: tokenHash, Scopes: scopes, Active: true, ExpiresAt: expiresAt, TenantID: tenantID, UserID: userID}, nil
}

func (s *SQLiteDB) scanAPIToken(row interface{ Scan(...interface{}) error }) (*APIToken, error) {
	var t APIToken
	var scopesJSON string
	var active int
	var expires, userID sql.NullInt64
	var created, updated string
	if err := row.Scan(&t.ID, &t.Name, &t.TokenHash, &scopesJSON, &active, &expires, &t.TenantID, &userID, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	scopes, err := unmarshalScopes(scopesJSON)
	if err != nil {
		return nil, err
	}
	t.Scopes = scopes
	t.Active = active != 0
	if expires.Valid {
		exp := time.Unix(expires.Int64, 0)
		t.ExpiresAt = &exp
	}
	if userID.Valid {
		t.UserID = &userID.Int64
	}
	t.CreatedAt = parseSQLiteTime(created)
	t.UpdatedAt = parseSQLiteTime(updated)
	return &t, nil
}

const sqliteTokenCols = `id,name,token_hash,scopes,active,expires_at,tenant_id,user_id,created_at,updated_at`

func (s *SQLiteDB) GetAPIToken(id int64) (*APIToken, error) {
	row := s.db.QueryRow(`SELECT `+sqliteTokenCols+` FROM tokens WHERE id = ?`, id)
	return s.scanAPIToken(row)
}

func (s *SQLiteDB) ListAPITokens(f TokenFilter) ([]*APIToken, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	if f.TenantID != nil {
		where += ` AND tenant_id = ?`
		args = append(args, *f.TenantID)
	}
	if f.UserID != nil {
		where += ` AND user_id = ?`
		args = append(args, *f.UserID)
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tokens`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := s.db.Query(`SELECT `+sqliteTokenCols+` FROM tokens`+where+` ORDER BY id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*APIToken
	for rows.Next() {
		t, err := s.scanAPIToken(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (s *SQLiteDB) ListActiveAPITokens() ([]*APIToken, error) {
	rows, err := s.db.Query(`SELECT ` + sqliteTokenCols + ` FROM tokens WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*APIToken
	for rows.Next() {
		t, err := s.scanAPIToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) UpdateAPIToken(id int64, upd APITokenUpdate) (*APIToken, error) {
	t, err := s.GetAPIToken(id)
	if err != nil || t == nil {
		return t, err
	}
	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.Scopes != nil {
		t.Scopes = upd.Scopes
	}
	if upd.Active != nil {
		t.Active = *upd.Active
	}
	if upd.ExpiresAt != nil {
		t.ExpiresAt = upd.ExpiresAt
	}
	scopesJSON, err := marshalScopes(t.Scopes)
	if err != nil {
		return nil, err
	}
	var expires sql.NullInt64
	if t.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: t.ExpiresAt.Unix(), Valid: true}
	}
	_, err = s.db.Exec(`UPDATE tokens SET name=?,scopes=?,active=?,expires_at=?,updated_at=datetime('now') WHERE id=?`,
		t.Name, scopesJSON, boolToInt(t.Active), expires, id)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *SQLiteDB) DeleteAPIToken(id int64) error {
	_, err := s.db.Exec(`DELETE FROM tokens WHERE id = ?`, id)
	return err
}

func (s *SQLiteDB) CreateAPICall(c *APICall) error {
	_, err := s.db.Exec(`INSERT INTO api_calls(tenant_id,user_id,endpoint,method,path,client_ip,user_agent,status,duration_ms,created_at) VALUES(?,?,?,?,?,?,?,?,?,datetime('now'))`,
		c.TenantID, c.UserID, c.Endpoint, c.Method, c.Path, c.ClientIP, c.UserAgent, c.Status, c.DurationMS)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// lifecycle helpers
func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }

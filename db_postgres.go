package main

import (
	"database/sql"
	"strconv"
	"time"

	_ "github.com/lib/pq"
)

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init() error {
	// rely on migrations to create tables; just verify connectivity
	return p.db.Ping()
}

func (p *PostgresDB) CreateTenant(name, domain string) (*Tenant, error) {
	var id int64
	err := p.db.QueryRow(`INSERT INTO tenants(name,domain,active,created_at,updated_at) VALUES($1,$2,true,now(),now()) RETURNING id`, name, domain).Scan(&id)
	if err != nil {
		return nil, err
	}
	return &Tenant{ID: id, Name: name, Domain: domain, Active: true}, nil
}

func (p *PostgresDB) scanTenant(row interface{ Scan(...interface{}) error }) (*Tenant, error) {
	var t Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Domain, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (p *PostgresDB) GetTenant(id int64) (*Tenant, error) {
	row := p.db.QueryRow(`SELECT id,name,domain,active,created_at,updated_at FROM tenants WHERE id = $1`, id)
	return p.scanTenant(row)
}

func (p *PostgresDB) ListTenants(offset, limit int) ([]*Tenant, error) {
	rows, err := p.db.Query(`SELECT id,name,domain,active,created_at,updated_at FROM tenants ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Tenant
	for rows.Next() {
		t, err := p.scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresDB) UpdateTenant(id int64, upd TenantUpdate) (*Tenant, error) {
	t, err := p.GetTenant(id)
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
	_, err = p.db.Exec(`UPDATE tenants SET name=$1,domain=$2,active=$3,updated_at=now() WHERE id=$4`, t.Name, t.Domain, t.Active, id)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (p *PostgresDB) CreateUser(email, hashedPassword, fullName string, role UserRole, tenantID *int64) (*User, error) {
	var id int64
	err := p.db.QueryRow(`INSERT INTO users(email,hashed_password,full_name,role,tenant_id,active,created_at,updated_at) VALUES($1,$2,$3,$4,$5,true,now(),now()) RETURNING id`,
		email, hashedPassword, fullName, string(role), tenantID).Scan(&id)
	if err != nil {
		return nil, err
	}
	return &User{ID: id, Email: email, HashedPassword: hashedPassword, FullName: fullName, Role: role, TenantID: tenantID, Active: true}, nil
}

func (p *PostgresDB) scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	var u User
	var role string
	var tenantID sql.NullInt64
	if err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.FullName, &role, &tenantID, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.Role = UserRole(role)
	if tenantID.Valid {
		u.TenantID = &tenantID.Int64
	}
	return &u, nil
}

const pgUserCols = `id,email,hashed_password,full_name,role,tenant_id,active,created_at,updated_at`

func (p *PostgresDB) GetUserByID(id int64) (*User, error) {
	row := p.db.QueryRow(`SELECT `+pgUserCols+` FROM users WHERE id = $1`, id)
	return p.scanUser(row)
}

func (p *PostgresDB) GetUserByEmail(email string) (*User, error) {
	row := p.db.QueryRow(`SELECT `+pgUserCols+` FROM users WHERE email = $1`, email)
	return p.scanUser(row)
}

func (p *PostgresDB) ListUsers(offset, limit int) ([]*User, error) {
	rows, err := p.db.Query(`SELECT `+pgUserCols+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		u, err := p.scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *PostgresDB) UpdateUser(id int64, upd UserUpdate) (*User, error) {
	u, err := p.GetUserByID(id)
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
	_, err = p.db.Exec(`UPDATE users SET email=$1,full_name=$2,role=$3,tenant_id=$4,active=$5,updated_at=now() WHERE id=$6`,
		u.Email, u.FullName, string(u.Role), u.TenantID, u.Active, id)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (p *PostgresDB) DeleteUser(id int64) error {
	_, err := p.db.Exec(`DELETE FROM users WHERE id = $1`, id)
	return err
}

func (p *PostgresDB) CreateAPIToken(name, tokenHash string, scopes []string, expiresAt *time.Time, tenantID int64, userID *int64) (*APIToken, error) {
	scopesJSON, err := marshalScopes(scopes)
	if err != nil {
		return nil, err
	}
	var expires sql.NullTime
	if expiresAt != nil {
		expires = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	var id int64
	err = p.db.QueryRow(`INSERT INTO tokens(name,token_hash,scopes,active,expires_at,tenant_id,user_id,created_at,updated_at) VALUES($1,$2,$3,true,$4,$5,$6,now(),now()) RETURNING id`,
		name, tokenHash, scopesJSON, expires, tenantID, userID).Scan(&id)
	if err != nil {
		return nil, err
	}
	return &APIToken{ID: id, Name: name, TokenHash: tokenHash, Scopes: scopes, Active: true, ExpiresAt: expiresAt, TenantID: tenantID, UserID: userID}, nil
}

func (p *PostgresDB) scanAPIToken(row interface{ Scan(...interface{}) error }) (*APIToken, error) {
	var t APIToken
	var scopesJSON string
	var expires sql.NullTime
	var userID sql.NullInt64
	if err := row.Scan(&t.ID, &t.Name, &t.TokenHash, &scopesJSON, &t.Active, &expires, &t.TenantID, &userID, &t.CreatedAt, &t.UpdatedAt); err != nil {
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
	if expires.Valid {
		exp := expires.Time
		t.ExpiresAt = &exp
	}
	if userID.Valid {
		t.UserID = &userID.Int64
	}
	return &t, nil
}

const pgTokenCols = `id,name,token_hash,scopes,active,expires_at,tenant_id,user_id,created_at,updated_at`

func (p *PostgresDB) GetAPIToken(id int64) (*APIToken, error) {
	row := p.db.QueryRow(`SELECT `+pgTokenCols+` FROM tokens WHERE id = $1`, id)
	return p.scanAPIToken(row)
}

func (p *PostgresDB) ListAPITokens(f TokenFilter) ([]*APIToken, int, error) {
	where := ` WHERE true`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return placeholder(len(args))
	}
	if f.TenantID != nil {
		where += ` AND tenant_id = ` + arg(*f.TenantID)
	}
	if f.UserID != nil {
		where += ` AND user_id = ` + arg(*f.UserID)
	}

	var total int
	if err := p.db.QueryRow(`SELECT COUNT(*) FROM tokens`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := arg(f.Limit)
	offset := arg(f.Offset)
	rows, err := p.db.Query(`SELECT `+pgTokenCols+` FROM tokens`+where+` ORDER BY id LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*APIToken
	for rows.Next() {
		t, err := p.scanAPIToken(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (p *PostgresDB) ListActiveAPITokens() ([]*APIToken, error) {
	rows, err := p.db.Query(`SELECT ` + pgTokenCols + ` FROM tokens WHERE active = true ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*APIToken
	for rows.Next() {
		t, err := p.scanAPIToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresDB) UpdateAPIToken(id int64, upd APITokenUpdate) (*APIToken, error) {
	t, err := p.GetAPIToken(id)
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
	var expires sql.NullTime
	if t.ExpiresAt != nil {
		expires = sql.NullTime{Time: *t.ExpiresAt, Valid: true}
	}
	_, err = p.db.Exec(`UPDATE tokens SET name=$1,scopes=$2,active=$3,expires_at=$4,updated_at=now() WHERE id=$5`,
		t.Name, scopesJSON, t.Active, expires, id)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (p *PostgresDB) DeleteAPIToken(id int64) error {
	_, err := p.db.Exec(`DELETE FROM tokens WHERE id = $1`, id)
	return err
}

func (p *PostgresDB) CreateAPICall(c *APICall) error {
	_, err := p.db.Exec(`INSERT INTO api_calls(tenant_id,user_id,endpoint,method,path,client_ip,user_agent,status,duration_ms,created_at) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,now())`,
		c.TenantID, c.UserID, c.Endpoint, c.Method, c.Path, c.ClientIP, c.UserAgent, c.Status, c.DurationMS)
	return err
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// lifecycle helpers
func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }

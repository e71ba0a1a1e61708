package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil
}

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Tenant management. All admin handlers sit behind SessionAuth and the
// SUPER_ADMIN role gate.

// POST /api/v1/admin/tenants
func (a *App) HandleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Domain string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if req.Name == "" || req.Domain == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Name and domain are required")
		return
	}
	tenant, err := a.DB.CreateTenant(req.Name, req.Domain)
	if err != nil {
		writeError(w, http.StatusConflict, "TENANT_EXISTS", "Tenant with this name or domain already exists")
		return
	}
	writeJSON(w, http.StatusCreated, tenantJSON(tenant))
}

// GET /api/v1/admin/tenants
func (a *App) HandleListTenants(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 100)
	tenants, err := a.DB.ListTenants(skip, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list tenants")
		return
	}
	out := make([]map[string]interface{}, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, tenantJSON(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/v1/admin/tenants/{id}
func (a *App) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid tenant id")
		return
	}
	tenant, err := a.DB.GetTenant(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch tenant")
		return
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, tenantJSON(tenant))
}

// PUT /api/v1/admin/tenants/{id}
func (a *App) HandleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid tenant id")
		return
	}
	var req struct {
		Name   *string `json:"name"`
		Domain *string `json:"domain"`
		Active *bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	tenant, err := a.DB.UpdateTenant(id, TenantUpdate{Name: req.Name, Domain: req.Domain, Active: req.Active})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update tenant")
		return
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, tenantJSON(tenant))
}

// User management

// POST /api/v1/admin/users
func (a *App) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string   `json:"email"`
		Password string   `json:"password"`
		FullName string   `json:"full_name"`
		Role     UserRole `json:"role"`
		TenantID *int64   `json:"tenant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email and password are required")
		return
	}
	if req.Role == "" {
		req.Role = RoleUser
	}
	hashed, err := hashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process password")
		return
	}
	user, err := a.DB.CreateUser(req.Email, hashed, req.FullName, req.Role, req.TenantID)
	if err != nil {
		writeError(w, http.StatusConflict, "USER_EXISTS", "User with this email already exists")
		return
	}
	writeJSON(w, http.StatusCreated, userJSON(user))
}

// GET /api/v1/admin/users
func (a *App) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 100)
	users, err := a.DB.ListUsers(skip, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list users")
		return
	}
	out := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		out = append(out, userJSON(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/v1/admin/users/{id}
func (a *App) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid user id")
		return
	}
	user, err := a.DB.GetUserByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch user")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	writeJSON(w, http.StatusOK, userJSON(user))
}

// PUT /api/v1/admin/users/{id}
func (a *App) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid user id")
		return
	}
	existing, err := a.DB.GetUserByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch user")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	// Super admin rows are immutable through the API.
	if existing.Role == RoleSuperAdmin {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Super admin users cannot be modified")
		return
	}
	var req struct {
		Email    *string   `json:"email"`
		FullName *string   `json:"full_name"`
		Role     *UserRole `json:"role"`
		TenantID *int64    `json:"tenant_id"`
		Active   *bool     `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	user, err := a.DB.UpdateUser(id, UserUpdate{Email: req.Email, FullName: req.FullName, Role: req.Role, TenantID: req.TenantID, Active: req.Active})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, userJSON(user))
}

// DELETE /api/v1/admin/users/{id}
func (a *App) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid user id")
		return
	}
	existing, err := a.DB.GetUserByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch user")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	if existing.Role == RoleSuperAdmin {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Super admin users cannot be deleted")
		return
	}
	if err := a.DB.DeleteUser(id); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete user")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"deleted": true})
}

// HandleGenerateUserToken mints a session token for an API-tier user.
// POST /api/v1/admin/users/{id}/generate-token
func (a *App) HandleGenerateUserToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid user id")
		return
	}
	user, err := a.DB.GetUserByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch user")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	if !apiRoles[user.Role] {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Only API users, tenant admins, and super admins can have tokens generated")
		return
	}
	access, err := a.tokens.CreateAccessToken(user.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      user.ID,
		"email":        user.Email,
		"role":         user.Role,
		"tenant_id":    user.TenantID,
		"access_token": access,
		"token_type":   "bearer",
	})
}

func tenantJSON(t *Tenant) map[string]interface{} {
	return map[string]interface{}{
		"id":        t.ID,
		"name":      t.Name,
		"domain":    t.Domain,
		"is_active": t.Active,
	}
}

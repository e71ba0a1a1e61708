package main

import (
	"encoding/json"
	"net/http"
	"time"
)

// API token management, super-admin only. The plaintext secret exists
// only in the create response; at rest there is nothing but its hash.

// POST /api/v1/tokens
func (a *App) HandleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string     `json:"name"`
		Scopes    []string   `json:"scopes"`
		ExpiresAt *time.Time `json:"expires_at"`
		TenantID  int64      `json:"tenant_id"`
		UserID    *int64     `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if req.Name == "" || req.TenantID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Name and tenant_id are required")
		return
	}

	tenant, err := a.DB.GetTenant(req.TenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch tenant")
		return
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Tenant not found")
		return
	}

	if req.UserID != nil {
		user, err := a.DB.GetUserByID(*req.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch user")
			return
		}
		if user == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
			return
		}
		if user.TenantID == nil || *user.TenantID != req.TenantID {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "User does not belong to the specified tenant")
			return
		}
	}

	secret, err := genToken(32)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate token")
		return
	}
	hash, err := hashPassword(secret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to hash token")
		return
	}

	token, err := a.DB.CreateAPIToken(req.Name, hash, req.Scopes, req.ExpiresAt, req.TenantID, req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create token")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token":         secret,
		"token_details": tokenJSON(token),
		"message":       "Token created successfully. Please copy the token now as it won't be shown again.",
	})
}

// GET /api/v1/tokens?page=&size=&tenant_id=&user_id=
func (a *App) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	size := queryInt(r, "size", 10)
	if size < 1 || size > 100 {
		size = 10
	}

	filter := TokenFilter{Offset: (page - 1) * size, Limit: size}
	if v := r.URL.Query().Get("tenant_id"); v != "" {
		id := int64(queryInt(r, "tenant_id", 0))
		filter.TenantID = &id
	}
	if v := r.URL.Query().Get("user_id"); v != "" {
		id := int64(queryInt(r, "user_id", 0))
		filter.UserID = &id
	}

	tokens, total, err := a.DB.ListAPITokens(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list tokens")
		return
	}

	items := make([]map[string]interface{}, 0, len(tokens))
	for _, t := range tokens {
		items = append(items, a.tokenDetailsJSON(t))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": total,
		"page":  page,
		"size":  size,
		"pages": (total + size - 1) / size,
	})
}

// GET /api/v1/tokens/{id}
func (a *App) HandleGetToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid token id")
		return
	}
	token, err := a.DB.GetAPIToken(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch token")
		return
	}
	if token == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Token not found")
		return
	}
	writeJSON(w, http.StatusOK, a.tokenDetailsJSON(token))
}

// PUT /api/v1/tokens/{id}
func (a *App) HandleUpdateToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid token id")
		return
	}
	var req struct {
		Name      *string    `json:"name"`
		Scopes    []string   `json:"scopes"`
		Active    *bool      `json:"is_active"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	token, err := a.DB.UpdateAPIToken(id, APITokenUpdate{Name: req.Name, Scopes: req.Scopes, Active: req.Active, ExpiresAt: req.ExpiresAt})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update token")
		return
	}
	if token == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Token not found")
		return
	}
	writeJSON(w, http.StatusOK, tokenJSON(token))
}

// DELETE /api/v1/tokens/{id}
func (a *App) HandleDeleteToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid token id")
		return
	}
	token, err := a.DB.GetAPIToken(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch token")
		return
	}
	if token == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Token not found")
		return
	}
	if err := a.DB.DeleteAPIToken(id); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete token")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"deleted": true})
}

func tokenJSON(t *APIToken) map[string]interface{} {
	return map[string]interface{}{
		"id":         t.ID,
		"name":       t.Name,
		"scopes":     t.Scopes,
		"is_active":  t.Active,
		"expires_at": t.ExpiresAt,
		"tenant_id":  t.TenantID,
		"user_id":    t.UserID,
	}
}

// tokenDetailsJSON joins in the tenant name and owning user for
// listings. A tenant-wide token shows "No User".
func (a *App) tokenDetailsJSON(t *APIToken) map[string]interface{} {
	out := tokenJSON(t)

	tenantName := "Unknown"
	if tenant, err := a.DB.GetTenant(t.TenantID); err == nil && tenant != nil {
		tenantName = tenant.Name
	}
	out["tenant_name"] = tenantName

	userEmail := "No User"
	userFullName := "No User"
	if t.UserID != nil {
		if user, err := a.DB.GetUserByID(*t.UserID); err == nil && user != nil {
			userEmail = user.Email
			userFullName = user.FullName
		}
	}
	out["user_email"] = userEmail
	out["user_full_name"] = userFullName
	return out
}

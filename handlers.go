package main

import (
	"encoding/json"
	"net/http"
)

type creds struct{ Email, Password string }

// HandleLogin exchanges email+password for a signed token pair.
// POST /api/v1/auth/token
func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var c creds
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if c.Email == "" || c.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email and password are required")
		return
	}
	user, err := a.DB.GetUserByEmail(c.Email)
	if err != nil || user == nil || !user.Active || !comparePassword(user.HashedPassword, c.Password) {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Incorrect email or password")
		return
	}

	access, err := a.tokens.CreateAccessToken(user.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token")
		return
	}
	refresh, err := a.tokens.CreateRefreshToken(user.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
	})
}

// HandleRefresh exchanges a refresh token for a fresh access token.
// Refresh tokens are themselves signed tokens; nothing is persisted.
// POST /api/v1/auth/refresh
func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Refresh token is required")
		return
	}
	email, ok := a.tokens.VerifySubject(in.RefreshToken)
	if !ok {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid refresh token")
		return
	}
	user, err := a.DB.GetUserByEmail(email)
	if err != nil || user == nil || !user.Active {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "User not found")
		return
	}
	access, err := a.tokens.CreateAccessToken(user.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": access,
		"token_type":   "bearer",
	})
}

// HandleMe returns the authenticated session user.
// GET /api/v1/auth/me
func (a *App) HandleMe(w http.ResponseWriter, r *http.Request) {
	user := currentUserFrom(r)
	if user == nil {
		writeAuthError(w, errUnauthenticated())
		return
	}
	writeJSON(w, http.StatusOK, userJSON(user))
}

func userJSON(u *User) map[string]interface{} {
	return map[string]interface{}{
		"id":        u.ID,
		"email":     u.Email,
		"full_name": u.FullName,
		"role":      u.Role,
		"tenant_id": u.TenantID,
		"is_active": u.Active,
	}
}

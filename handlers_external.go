package main

import (
	"encoding/json"
	"net/http"
	"time"
)

// External API: every handler here runs behind APIAuth and the
// API-tier gate, so a Principal is always in the context. Scope gates
// are applied per route in main.go.

// GET /api/v1/external/health
func (a *App) HandleExternalHealth(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"user_id":   p.UserID,
		"tenant_id": p.TenantID,
		"message":   "Service is running normally",
	})
}

// GET /api/v1/external/status
func (a *App) HandleExternalStatus(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "tenantauth",
		"version":   "1.0.0",
		"status":    "operational",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"user": map[string]interface{}{
			"id":        p.UserID,
			"email":     p.Email,
			"tenant_id": p.TenantID,
		},
	})
}

// GET /api/v1/external/profile
func (a *App) HandleExternalProfile(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        p.UserID,
		"email":     p.Email,
		"full_name": p.FullName,
		"role":      p.Role,
		"tenant_id": p.TenantID,
		"scopes":    p.Scopes,
	})
}

// GET /api/v1/external/tenant
func (a *App) HandleExternalTenant(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	if p.TenantID == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "No tenant associated with this user")
		return
	}
	tenant, err := a.DB.GetTenant(*p.TenantID)
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

// POST /api/v1/external/echo
func (a *App) HandleExternalEcho(w http.ResponseWriter, r *http.Request) {
	var message map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&message); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	p := principalFrom(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   message,
		"user_id":   p.UserID,
		"tenant_id": p.TenantID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"echo":      true,
	})
}

// GET /api/v1/external/ping
func (a *App) HandleExternalPing(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pong":      true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"user_id":   p.UserID,
	})
}

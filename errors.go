package main

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

// AuthError is a terminal authentication or authorization failure.
// Status picks the HTTP class: 401 for a missing or invalid credential,
// 403 for an authenticated principal lacking the required role or scope.
type AuthError struct {
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// errUnauthenticated covers every credential failure uniformly: absent
// header, malformed token, bad signature, expiry, no hash match. The
// internal cause is never exposed.
func errUnauthenticated() *AuthError {
	return &AuthError{Status: http.StatusUnauthorized, Code: "UNAUTHENTICATED", Message: "Could not validate credentials"}
}

func errInsufficientRole() *AuthError {
	return &AuthError{Status: http.StatusForbidden, Code: "INSUFFICIENT_ROLE", Message: "Not enough permissions"}
}

// Scope names are not secret, so the missing one is named in the message.
func errInsufficientScope(scope string) *AuthError {
	return &AuthError{Status: http.StatusForbidden, Code: "INSUFFICIENT_SCOPE", Message: fmt.Sprintf("Token does not have required scope: %s", scope)}
}

func writeAuthError(w http.ResponseWriter, authErr *AuthError) {
	if authErr.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeError(w, authErr.Status, authErr.Code, authErr.Message)
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

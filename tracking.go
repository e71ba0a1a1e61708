package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"
)

const trackInfoContextKey = "track_info"

// trackInfo is a per-request slot the auth middlewares fill in once a
// principal is resolved. Synthetic principals contribute a tenant id
// but never a user id.
type trackInfo struct {
	tenantID *int64
	userID   *int64
}

func recordPrincipal(r *http.Request, p *Principal) {
	if ti, ok := r.Context().Value(trackInfoContextKey).(*trackInfo); ok {
		ti.tenantID = p.TenantID
		ti.userID = p.UserID
	}
}

var untrackedPaths = []string{"/health", "/ready", "/favicon.ico"}

func shouldTrack(path string) bool {
	for _, p := range untrackedPaths {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	return true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return r.RemoteAddr
}

// Tracking records one api_calls row per request. It never stores
// request bodies or headers, and a failed insert never fails the
// request.
func (a *App) Tracking(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shouldTrack(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ti := &trackInfo{}
		ctx := context.WithValue(r.Context(), trackInfoContextKey, ti)
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		call := &APICall{
			TenantID:   ti.tenantID,
			UserID:     ti.userID,
			Endpoint:   r.URL.Path,
			Method:     r.Method,
			Path:       r.URL.RequestURI(),
			ClientIP:   clientIP(r),
			UserAgent:  r.UserAgent(),
			Status:     wrapped.statusCode,
			DurationMS: float64(time.Since(start)) / float64(time.Millisecond),
		}
		if err := a.DB.CreateAPICall(call); err != nil {
			log.Printf("track api call: %v", err)
		}
	})
}

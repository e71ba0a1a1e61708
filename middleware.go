package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const principalContextKey = "principal"
const currentUserContextKey = "current_user"

// bearerToken extracts the credential from the Authorization header.
// An absent header and a malformed one look identical to callers.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" {
		return "", false
	}
	return token, true
}

func principalFrom(r *http.Request) *Principal {
	p, _ := r.Context().Value(principalContextKey).(*Principal)
	return p
}

func currentUserFrom(r *http.Request) *User {
	u, _ := r.Context().Value(currentUserContextKey).(*User)
	return u
}

// SessionAuth authenticates a signed session token of any role. The
// resolved user is stored in the request context together with an
// equivalent Principal so role checks compose downstream.
func (a *App) SessionAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred, ok := bearerToken(r)
		if !ok {
			writeAuthError(w, errUnauthenticated())
			return
		}
		user, authErr := a.resolver.CurrentUser(cred)
		if authErr != nil {
			writeAuthError(w, authErr)
			return
		}
		p := principalFromUser(user, nil)
		recordPrincipal(r, p)
		ctx := context.WithValue(r.Context(), currentUserContextKey, user)
		ctx = context.WithValue(ctx, principalContextKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// APIAuth authenticates the external API: signed tokens first, then the
// opaque API-token scan. Either path yields a Principal in the context.
func (a *App) APIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred, ok := bearerToken(r)
		if !ok {
			writeAuthError(w, errUnauthenticated())
			return
		}
		p, authErr := a.resolver.ResolvePrincipal(cred)
		if authErr != nil {
			writeAuthError(w, authErr)
			return
		}
		recordPrincipal(r, p)
		ctx := context.WithValue(r.Context(), principalContextKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoleMiddleware gates a subtree on an exact role.
func (a *App) RequireRoleMiddleware(role UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := principalFrom(r)
			if p == nil {
				writeAuthError(w, errUnauthenticated())
				return
			}
			if authErr := RequireRole(p, role); authErr != nil {
				writeAuthError(w, authErr)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAPITier gates the external API on API-tier membership: plain
// USER principals are rejected even when their credential verified.
func (a *App) RequireAPITier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r)
		if p == nil {
			writeAuthError(w, errUnauthenticated())
			return
		}
		if !apiRoles[p.Role] {
			writeError(w, http.StatusForbidden, "INSUFFICIENT_ROLE", "Access denied. API users only.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireScopeMiddleware gates a route on a scope. Session-derived
// principals carry no scope set and pass by role alone.
func (a *App) RequireScopeMiddleware(scope string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r)
		if p == nil {
			writeAuthError(w, errUnauthenticated())
			return
		}
		if authErr := RequireScope(p, scope); authErr != nil {
			writeAuthError(w, authErr)
			return
		}
		h(w, r)
	}
}

// RateLimiter implements per-tenant rate limiting
type RateLimiter struct {
	limiters map[int64]*rate.Limiter
	perMin   int
	mu       sync.RWMutex
}

func NewRateLimiter(perMin int) *RateLimiter {
	return &RateLimiter{limiters: map[int64]*rate.Limiter{}, perMin: perMin}
}

func (rl *RateLimiter) getLimiter(tenantID int64) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[tenantID]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		limiter, exists = rl.limiters[tenantID]
		if !exists {
			limiter = rate.NewLimiter(rate.Limit(rl.perMin)/60, rl.perMin)
			rl.limiters[tenantID] = limiter
		}
		rl.mu.Unlock()
	}

	return limiter
}

// RateLimit enforces the per-tenant limit. Requests with no resolved
// tenant (global super admins) share the zero bucket.
func (a *App) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tenantID int64
		if p := principalFrom(r); p != nil && p.TenantID != nil {
			tenantID = *p.TenantID
		}
		if !a.rateLimiter.getLimiter(tenantID).Allow() {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Logging middleware logs requests at the configured level: "warn"
// keeps failures only, "error" keeps server errors only.
func (a *App) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		if suppressRequestLog(a.logLevel, wrapped.statusCode) {
			return
		}
		duration := time.Since(start)
		log.Printf("[%s] %s %s %d %v", r.Method, r.URL.Path, r.RemoteAddr, wrapped.statusCode, duration)
	})
}

func suppressRequestLog(level string, status int) bool {
	switch level {
	case "warn":
		return status < 400
	case "error":
		return status < 500
	}
	return false
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// CORS middleware handles CORS headers
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/tenantauth/internal/config"
	"github.com/gorilla/mux"
	_ "modernc.org/sqlite"
)

type App struct {
	DB          DB
	tokens      *TokenService
	resolver    *Resolver
	rateLimiter *RateLimiter
	logLevel    string
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

func newApp(db DB, tokens *TokenService, rateLimitPerMinute int) *App {
	return &App{
		DB:          db,
		tokens:      tokens,
		resolver:    NewResolver(db, tokens),
		rateLimiter: NewRateLimiter(rateLimitPerMinute),
	}
}

func (a *App) routes() *mux.Router {
	r := mux.NewRouter()

	// Global middleware
	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(CORS)
	r.Use(a.Tracking)

	// Health check endpoints (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := a.DB.(interface{ ping() bool }); ok {
			if !p.ping() {
				w.WriteHeader(503)
				w.Write([]byte(`{"ready":false}`))
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ready":true}`))
	}).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()

	// Session endpoints
	v1.HandleFunc("/auth/token", a.HandleLogin).Methods("POST")
	v1.HandleFunc("/auth/refresh", a.HandleRefresh).Methods("POST")
	me := v1.PathPrefix("/auth/me").Subrouter()
	me.Use(a.SessionAuth)
	me.HandleFunc("", a.HandleMe).Methods("GET")

	// Admin endpoints: session auth + SUPER_ADMIN role
	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(a.SessionAuth)
	admin.Use(a.RequireRoleMiddleware(RoleSuperAdmin))
	admin.HandleFunc("/tenants", a.HandleCreateTenant).Methods("POST")
	admin.HandleFunc("/tenants", a.HandleListTenants).Methods("GET")
	admin.HandleFunc("/tenants/{id}", a.HandleGetTenant).Methods("GET")
	admin.HandleFunc("/tenants/{id}", a.HandleUpdateTenant).Methods("PUT")
	admin.HandleFunc("/users", a.HandleCreateUser).Methods("POST")
	admin.HandleFunc("/users", a.HandleListUsers).Methods("GET")
	admin.HandleFunc("/users/{id}", a.HandleGetUser).Methods("GET")
	admin.HandleFunc("/users/{id}", a.HandleUpdateUser).Methods("PUT")
	admin.HandleFunc("/users/{id}", a.HandleDeleteUser).Methods("DELETE")
	admin.HandleFunc("/users/{id}/generate-token", a.HandleGenerateUserToken).Methods("POST")

	// API token management: session auth + SUPER_ADMIN role
	tokens := v1.PathPrefix("/tokens").Subrouter()
	tokens.Use(a.SessionAuth)
	tokens.Use(a.RequireRoleMiddleware(RoleSuperAdmin))
	tokens.HandleFunc("", a.HandleCreateToken).Methods("POST")
	tokens.HandleFunc("", a.HandleListTokens).Methods("GET")
	tokens.HandleFunc("/{id}", a.HandleGetToken).Methods("GET")
	tokens.HandleFunc("/{id}", a.HandleUpdateToken).Methods("PUT")
	tokens.HandleFunc("/{id}", a.HandleDeleteToken).Methods("DELETE")

	// External API: principal resolution (signed or opaque credential),
	// API-tier role gate, per-tenant rate limit, per-route scope gates.
	external := v1.PathPrefix("/external").Subrouter()
	external.Use(a.APIAuth)
	external.Use(a.RequireAPITier)
	external.Use(a.RateLimit)
	external.HandleFunc("/health", a.RequireScopeMiddleware("health:read", a.HandleExternalHealth)).Methods("GET")
	external.HandleFunc("/status", a.RequireScopeMiddleware("status:read", a.HandleExternalStatus)).Methods("GET")
	external.HandleFunc("/profile", a.HandleExternalProfile).Methods("GET")
	external.HandleFunc("/tenant", a.HandleExternalTenant).Methods("GET")
	external.HandleFunc("/echo", a.HandleExternalEcho).Methods("POST")
	external.HandleFunc("/ping", a.HandleExternalPing).Methods("GET")

	return r
}

// ensureSuperAdmin seeds the configured super admin on first start.
func ensureSuperAdmin(db DB, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	existing, err := db.GetUserByEmail(email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return err
	}
	_, err = db.CreateUser(email, hashed, "Super Admin", RoleSuperAdmin, nil)
	if err != nil {
		return err
	}
	log.Printf("Seeded super admin %s", email)
	return nil
}

func main() {
	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db DB
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteDB(c.SQLiteFile)
		if err != nil {
			log.Fatalf("sqlite init: %v", err)
		}
		db = s
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			log.Fatalf("postgres config error: %v", err)
		}
		log.Println("Applying database migrations...")
		if err := ApplyMigrations("./migrations", dsn); err != nil {
			log.Printf("migrations warning: %v", err)
		}
		p, err := NewPostgresDB(dsn)
		if err != nil {
			log.Fatalf("postgres init: %v", err)
		}
		db = p
		log.Println("Connected to PostgreSQL database")
	case "memory":
		log.Println("Using in-memory database (not recommended for production)")
		db = NewMemoryDB()
	default:
		log.Fatalf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	if err := ensureSuperAdmin(db, c.SuperAdminEmail, c.SuperAdminPassword); err != nil {
		log.Fatalf("seed super admin: %v", err)
	}

	tokens := NewTokenService(
		[]byte(c.JwtSecret),
		time.Duration(c.AccessTokenMins)*time.Minute,
		time.Duration(c.RefreshTokenDays)*24*time.Hour,
	)
	app := newApp(db, tokens, c.RateLimitPerMinute)
	app.logLevel = c.LogLevel

	srv := &http.Server{Handler: app.routes(), Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		fmt.Println("Starting server on", c.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := app.DB.(interface{ close() error }); ok {
		_ = closer.close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown failed:%+v", err)
	}
	fmt.Println("Server exited properly")
}

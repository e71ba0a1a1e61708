package main

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func genToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Passwords and API token secrets share the same bcrypt scheme.
func hashPassword(p string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	return string(b), err
}

func comparePassword(hash, p string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}

// TokenService issues and verifies the signed session tokens. The
// signing secret, lifetimes and clock are fixed at construction, so
// verification never reads ambient process state and tests can supply
// arbitrary keys and clocks.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(secret []byte, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

func (s *TokenService) signed(subject string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{"sub": subject, "exp": s.now().Add(ttl).Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *TokenService) CreateAccessToken(subject string) (string, error) {
	return s.signed(subject, s.accessTTL)
}

func (s *TokenService) CreateRefreshToken(subject string) (string, error) {
	return s.signed(subject, s.refreshTTL)
}

// VerifySubject checks the token's signature and expiry and returns the
// subject claim. Every failure mode collapses to ok=false; callers
// cannot tell a bad signature from an expired token.
func (s *TokenService) VerifySubject(tokenString string) (string, bool) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	token, err := parser.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}

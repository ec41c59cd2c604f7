// Package handlers contains HTTP middleware and health checking shared by the API server.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/scholarmaster/campus-attendance/pkg/privacy"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// ErrNoUsers is returned when a users file defines no accounts.
var ErrNoUsers = errors.New("auth: users file defines no accounts")

// User is one staff account from the users file.
type User struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

type usersFile struct {
	Users []User `yaml:"users"`
}

// BasicAuth authenticates staff with HTTP Basic credentials checked against
// bcrypt hashes.
type BasicAuth struct {
	realm string
	users map[string]User
	mu    sync.RWMutex
}

// NewBasicAuth creates an authenticator with no accounts.
func NewBasicAuth(realm string) *BasicAuth {
	if realm == "" {
		realm = "campus"
	}
	return &BasicAuth{realm: realm, users: make(map[string]User)}
}

// LoadBasicAuth reads accounts from a YAML file of the form
//
//	users:
//	  - username: registrar
//	    password_hash: $2a$10$...
//	    role: admin
func LoadBasicAuth(realm, path string) (*BasicAuth, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: read users: %w", err)
	}
	var f usersFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("auth: parse users: %w", err)
	}
	if len(f.Users) == 0 {
		return nil, ErrNoUsers
	}

	a := NewBasicAuth(realm)
	for _, u := range f.Users {
		if err := a.AddUser(u); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// AddUser adds or replaces an account.
func (a *BasicAuth) AddUser(u User) error {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" || u.PasswordHash == "" {
		return fmt.Errorf("auth: user %q needs username and password_hash", u.Username)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[u.Username] = u
	return nil
}

// Authenticate checks a username/password pair.
func (a *BasicAuth) Authenticate(username, password string) (User, bool) {
	a.mu.RLock()
	u, ok := a.users[username]
	a.mu.RUnlock()
	if !ok || !privacy.CheckPassword(u.PasswordHash, password) {
		return User{}, false
	}
	return u, true
}

// Middleware rejects requests without valid credentials and stores the
// username in the request context.
func (a *BasicAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			a.challenge(w, "missing_credentials", "Authentication is required")
			return
		}

		u, ok := a.Authenticate(username, password)
		if !ok {
			a.challenge(w, "invalid_credentials", "Invalid username or password")
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyUser, u.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *BasicAuth) challenge(w http.ResponseWriter, code, message string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm=%q`, a.realm))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"success":false,"error":{"code":%q,"message":%q}}`+"\n", code, message)
}

// ══════════════════════════════════════════════════════════════════════════════
// SECURITY HEADERS MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeadersMiddleware adds security-related headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SIZE LIMIT MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RequestSizeLimitMiddleware limits the size of request bodies.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				fmt.Fprintln(w, `{"success":false,"error":{"code":"payload_too_large","message":"Request body too large"}}`)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

// ContextKey is a type for context keys.
type ContextKey string

// ContextKeyUser is the context key for the authenticated username.
const ContextKeyUser ContextKey = "user"

// UserFromContext returns the authenticated username, if any.
func UserFromContext(ctx context.Context) string {
	if u, ok := ctx.Value(ContextKeyUser).(string); ok {
		return u
	}
	return ""
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// MiddlewareFunc is a function that wraps an http.Handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain chains multiple middleware functions. The first one is outermost.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// TokenConfig holds the token issuer options
type TokenConfig interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetTokenExpiration() time.Duration
}

// CredentialStore persists users, roles and claims.
// Lookups that yield nothing return a NotFound error.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, user *User) error

	GetRoles(ctx context.Context, user *User) ([]string, error)
	AddToRoles(ctx context.Context, user *User, roles ...string) error
	RemoveFromRole(ctx context.Context, user *User, role string) error

	GetClaims(ctx context.Context, user *User) ([]Claim, error)
	AddClaims(ctx context.Context, user *User, claims ...Claim) error
	RemoveClaim(ctx context.Context, user *User, claim Claim) error

	RoleExists(ctx context.Context, name string) (bool, error)
	CreateRole(ctx context.Context, role *Role) error

	// RunInTx runs f with a store bound to a single transaction
	RunInTx(ctx context.Context, f func(ctx context.Context, store CredentialStore) error) error
}

// Metrics records identity operation outcomes
type Metrics interface {
	IncOperation(operation, outcome string)
	ObserveDuration(operation string, d time.Duration)
}

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type noopMetrics struct{}

func (noopMetrics) IncOperation(string, string) {}

func (noopMetrics) ObserveDuration(string, time.Duration) {}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

package auth_test

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/babisque/ecommerce-auth"
)

// MockStore implements auth.CredentialStore
type MockStore struct {
	mock.Mock
}

func (m *MockStore) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	args := m.Called(ctx, username)
	if u := args.Get(0); u != nil {
		return u.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockStore) Update(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockStore) Delete(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockStore) GetRoles(ctx context.Context, user *auth.User) ([]string, error) {
	args := m.Called(ctx, user)
	if r := args.Get(0); r != nil {
		return r.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) AddToRoles(ctx context.Context, user *auth.User, roles ...string) error {
	return m.Called(ctx, user, roles).Error(0)
}

func (m *MockStore) RemoveFromRole(ctx context.Context, user *auth.User, role string) error {
	return m.Called(ctx, user, role).Error(0)
}

func (m *MockStore) GetClaims(ctx context.Context, user *auth.User) ([]auth.Claim, error) {
	args := m.Called(ctx, user)
	if c := args.Get(0); c != nil {
		return c.([]auth.Claim), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) AddClaims(ctx context.Context, user *auth.User, claims ...auth.Claim) error {
	return m.Called(ctx, user, claims).Error(0)
}

func (m *MockStore) RemoveClaim(ctx context.Context, user *auth.User, claim auth.Claim) error {
	return m.Called(ctx, user, claim).Error(0)
}

func (m *MockStore) RoleExists(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) CreateRole(ctx context.Context, role *auth.Role) error {
	return m.Called(ctx, role).Error(0)
}

// RunInTx records the call and runs f against the mock itself
func (m *MockStore) RunInTx(ctx context.Context, f func(ctx context.Context, store auth.CredentialStore) error) error {
	if err := m.Called(ctx).Error(0); err != nil {
		return err
	}
	return f(ctx, m)
}

// MockLogger implements auth.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Warn(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}

// MockMetrics implements auth.Metrics
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) IncOperation(operation, outcome string) {
	m.Called(operation, outcome)
}

func (m *MockMetrics) ObserveDuration(operation string, d time.Duration) {
	m.Called(operation, d)
}

// MockIdentityService implements auth.IdentityService
type MockIdentityService struct {
	mock.Mock
}

func (m *MockIdentityService) Create(ctx context.Context, msg auth.CreateUserMessage) (*auth.User, error) {
	args := m.Called(ctx, msg)
	if u := args.Get(0); u != nil {
		return u.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityService) CreateEmployee(ctx context.Context, msg auth.CreateEmployeeMessage) (*auth.User, error) {
	args := m.Called(ctx, msg)
	if u := args.Get(0); u != nil {
		return u.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityService) PartialUpdate(ctx context.Context, username string, msg auth.UpdateUserMessage) (*auth.User, error) {
	args := m.Called(ctx, username, msg)
	if u := args.Get(0); u != nil {
		return u.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityService) Delete(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func (m *MockIdentityService) Authenticate(ctx context.Context, username, password string) (*auth.Identity, error) {
	args := m.Called(ctx, username, password)
	if i := args.Get(0); i != nil {
		return i.(*auth.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityService) GetByUsername(ctx context.Context, username string) (*auth.Identity, error) {
	args := m.Called(ctx, username)
	if i := args.Get(0); i != nil {
		return i.(*auth.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityService) CreateRole(ctx context.Context, msg auth.CreateRoleMessage) (*auth.Role, error) {
	args := m.Called(ctx, msg)
	if r := args.Get(0); r != nil {
		return r.(*auth.Role), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTokenIssuer implements auth.TokenIssuer
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) Issue(identity *auth.Identity) (string, error) {
	args := m.Called(identity)
	return args.String(0), args.Error(1)
}

// tokenConfig implements auth.TokenConfig
type tokenConfig struct {
	key        string
	issuer     string
	audience   []string
	expiration time.Duration
}

func (c tokenConfig) GetSigningKey() string             { return c.key }
func (c tokenConfig) GetIssuer() string                 { return c.issuer }
func (c tokenConfig) GetAudience() []string             { return c.audience }
func (c tokenConfig) GetTokenExpiration() time.Duration { return c.expiration }

func strPtr(s string) *string {
	return &s
}

// errorMessage returns the client facing message of a go-errors error
func errorMessage(t *testing.T, err error) string {
	t.Helper()
	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich), "expected *goerrors.Error, got %T", err)
	return rich.Message
}

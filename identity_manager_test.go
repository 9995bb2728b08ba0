package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/babisque/ecommerce-auth"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

var testHasher = auth.NewBcryptHasher(bcrypt.MinCost)

func newManager(store auth.CredentialStore, opts ...auth.IdentityManagerOption) *auth.IdentityManager {
	opts = append([]auth.IdentityManagerOption{auth.WithManagerLogger(nopLogger{})}, opts...)
	return auth.NewIdentityManager(store, testHasher, opts...)
}

func existingUser(t *testing.T, username, password string) *auth.User {
	t.Helper()
	user := &auth.User{ID: uuid.New(), Email: username + "@example.com"}
	user.SetUsername(username)
	if password != "" {
		hash, err := testHasher.HashPassword(password)
		require.NoError(t, err)
		user.PasswordHash = hash
	}
	return user
}

func notFound() error {
	return auth.NewNotFound("missing")
}

func TestIdentityManager_Create(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}

	store.On("FindByUsername", ctx, "jdoe").Return(nil, notFound()).Once()
	store.On("Create", ctx, mock.MatchedBy(func(u *auth.User) bool {
		return u.Username == "jdoe" && u.Email == "jdoe@example.com" && u.HasPassword()
	})).Return(nil).Once()
	store.On("AddToRoles", ctx, mock.Anything, []string{"Admin", "Buyer"}).Return(nil).Once()
	store.On("AddClaims", ctx, mock.Anything, []auth.Claim{
		{Type: auth.ClaimFirstName, Value: "John"},
		{Type: auth.ClaimLastName, Value: "Doe"},
		{Type: auth.ClaimFullName, Value: "John Doe"},
	}).Return(nil).Once()

	m := newManager(store)
	user, err := m.Create(ctx, auth.CreateUserMessage{
		Email:     "jdoe@example.com",
		Password:  "Secret1!",
		Roles:     []string{"Admin", "Buyer", "admin"},
		FirstName: "John",
		LastName:  "Doe",
	})

	require.NoError(t, err)
	assert.Equal(t, "jdoe", user.Username)
	assert.NotEqual(t, "Secret1!", user.PasswordHash)
	assert.NoError(t, testHasher.ComparePasswordAndHash("Secret1!", user.PasswordHash))
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "RunInTx", mock.Anything)
}

func TestIdentityManager_CreateWithoutNamesOrRoles(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}

	store.On("FindByUsername", ctx, "jdoe").Return(nil, notFound())
	store.On("Create", ctx, mock.Anything).Return(nil)

	_, err := newManager(store).Create(ctx, auth.CreateUserMessage{
		Email:    "jdoe@example.com",
		Password: "Secret1!",
	})

	require.NoError(t, err)
	store.AssertNotCalled(t, "AddToRoles", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "AddClaims", mock.Anything, mock.Anything, mock.Anything)
}

func TestIdentityManager_CreateValidation(t *testing.T) {
	tests := []struct {
		name string
		msg  auth.CreateUserMessage
	}{
		{name: "missing email", msg: auth.CreateUserMessage{Password: "Secret1!"}},
		{name: "bad email", msg: auth.CreateUserMessage{Email: "not-an-email", Password: "Secret1!"}},
		{name: "missing password", msg: auth.CreateUserMessage{Email: "jdoe@example.com"}},
		{name: "weak password", msg: auth.CreateUserMessage{Email: "jdoe@example.com", Password: "secret"}},
		{name: "password over 72 bytes", msg: auth.CreateUserMessage{Email: "long@example.com", Password: "Aa1!" + strings.Repeat("x", 84)}},
		{name: "blank role", msg: auth.CreateUserMessage{Email: "jdoe@example.com", Password: "Secret1!", Roles: []string{""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockStore{}

			_, err := newManager(store).Create(context.Background(), tt.msg)

			require.Error(t, err)
			assert.True(t, auth.IsValidation(err))
			store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestIdentityManager_CreateUsernameTaken(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}
	store.On("FindByUsername", ctx, "jdoe").Return(existingUser(t, "jdoe", ""), nil)

	_, err := newManager(store).Create(ctx, auth.CreateUserMessage{
		Email:    "jdoe@example.com",
		Password: "Secret1!",
	})

	require.Error(t, err)
	assert.True(t, auth.IsConflict(err))
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIdentityManager_CreatePartialFailureWithoutTransactions(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}

	store.On("FindByUsername", ctx, "jdoe").Return(nil, notFound())
	store.On("Create", ctx, mock.Anything).Return(nil).Once()
	store.On("AddToRoles", ctx, mock.Anything, []string{"Ghost"}).Return(auth.NewRoleNotFound("Ghost"))

	_, err := newManager(store, auth.WithTransactions(false)).Create(ctx, auth.CreateUserMessage{
		Email:    "jdoe@example.com",
		Password: "Secret1!",
		Roles:    []string{"Ghost"},
	})

	require.Error(t, err)
	assert.True(t, auth.IsNotFound(err))
	// the user record is kept, nothing is rolled back
	store.AssertCalled(t, "Create", ctx, mock.Anything)
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestIdentityManager_CreateInTransaction(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}

	store.On("RunInTx", ctx).Return(nil).Once()
	store.On("FindByUsername", ctx, "jdoe").Return(nil, notFound())
	store.On("Create", ctx, mock.Anything).Return(nil)

	_, err := newManager(store, auth.WithTransactions(true)).Create(ctx, auth.CreateUserMessage{
		Email:    "jdoe@example.com",
		Password: "Secret1!",
	})

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestIdentityManager_CreateStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}

	store.On("FindByUsername", ctx, "jdoe").Return(nil, notFound())
	store.On("Create", ctx, mock.Anything).Return(errors.New("disk full"))

	_, err := newManager(store).Create(ctx, auth.CreateUserMessage{
		Email:    "jdoe@example.com",
		Password: "Secret1!",
	})

	require.Error(t, err)
	assert.True(t, auth.IsStoreOperationFailed(err))
}

func TestIdentityManager_CreateEmployee(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}

	store.On("FindByUsername", ctx, "ops@example.com").Return(nil, notFound())
	store.On("Create", ctx, mock.MatchedBy(func(u *auth.User) bool {
		return u.Username == "ops@example.com" && !u.HasPassword()
	})).Return(nil)

	user, err := newManager(store).CreateEmployee(ctx, auth.CreateEmployeeMessage{Email: "ops@example.com"})

	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", user.Username)
	store.AssertExpectations(t)
}

func TestIdentityManager_PartialUpdateFirstName(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}
	user := existingUser(t, "jdoe", "Secret1!")

	store.On("FindByUsername", ctx, "jdoe").Return(user, nil)
	store.On("GetClaims", ctx, user).Return([]auth.Claim{
		{Type: auth.ClaimFirstName, Value: "John"},
		{Type: auth.ClaimLastName, Value: "Doe"},
		{Type: auth.ClaimFullName, Value: "John Doe"},
	}, nil)
	store.On("RemoveClaim", ctx, user, auth.Claim{Type: auth.ClaimFirstName, Value: "John"}).Return(nil).Once()
	store.On("RemoveClaim", ctx, user, auth.Claim{Type: auth.ClaimFullName, Value: "John Doe"}).Return(nil).Once()
	store.On("AddClaims", ctx, user, []auth.Claim{
		{Type: auth.ClaimFirstName, Value: "Jane"},
		{Type: auth.ClaimFullName, Value: "Jane Doe"},
	}).Return(nil).Once()
	store.On("Update", ctx, user).Return(nil).Once()

	updated, err := newManager(store).PartialUpdate(ctx, "jdoe", auth.UpdateUserMessage{FirstName: strPtr("Jane")})

	require.NoError(t, err)
	assert.Equal(t, "jdoe", updated.Username)
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "GetRoles", mock.Anything, mock.Anything)
}

func TestIdentityManager_PartialUpdateRoles(t *testing.T) {
	ctx := context.Background()

	t.Run("empty list keeps roles", func(t *testing.T) {
		store := &MockStore{}
		user := existingUser(t, "jdoe", "Secret1!")
		store.On("FindByUsername", ctx, "jdoe").Return(user, nil)
		store.On("Update", ctx, user).Return(nil)

		_, err := newManager(store).PartialUpdate(ctx, "jdoe", auth.UpdateUserMessage{Roles: []string{}})

		require.NoError(t, err)
		store.AssertNotCalled(t, "GetRoles", mock.Anything, mock.Anything)
		store.AssertNotCalled(t, "RemoveFromRole", mock.Anything, mock.Anything, mock.Anything)
		store.AssertNotCalled(t, "AddToRoles", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("non empty list replaces roles", func(t *testing.T) {
		store := &MockStore{}
		user := existingUser(t, "jdoe", "Secret1!")
		store.On("FindByUsername", ctx, "jdoe").Return(user, nil)
		store.On("GetRoles", ctx, user).Return([]string{"Admin", "Buyer"}, nil)
		store.On("RemoveFromRole", ctx, user, "Admin").Return(nil).Once()
		store.On("RemoveFromRole", ctx, user, "Buyer").Return(nil).Once()
		store.On("AddToRoles", ctx, user, []string{"Seller"}).Return(nil).Once()
		store.On("Update", ctx, user).Return(nil).Once()

		_, err := newManager(store).PartialUpdate(ctx, "jdoe", auth.UpdateUserMessage{Roles: []string{"Seller"}})

		require.NoError(t, err)
		store.AssertExpectations(t)
	})
}

func TestIdentityManager_PartialUpdateEmailAndPassword(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}
	user := existingUser(t, "jdoe", "Secret1!")
	oldHash := user.PasswordHash

	store.On("FindByUsername", ctx, "jdoe").Return(user, nil)
	store.On("FindByUsername", ctx, "john").Return(nil, notFound())
	store.On("Update", ctx, mock.MatchedBy(func(u *auth.User) bool {
		return u.Username == "john" && u.NormalizedUsername == "JOHN" && u.Email == "john@example.com"
	})).Return(nil)

	updated, err := newManager(store).PartialUpdate(ctx, "jdoe", auth.UpdateUserMessage{
		Email:    strPtr("john@example.com"),
		Password: strPtr("Newpass1!"),
	})

	require.NoError(t, err)
	assert.NotEqual(t, oldHash, updated.PasswordHash)
	assert.NoError(t, testHasher.ComparePasswordAndHash("Newpass1!", updated.PasswordHash))
	store.AssertExpectations(t)
}

func TestIdentityManager_PartialUpdateLongPassword(t *testing.T) {
	store := &MockStore{}

	_, err := newManager(store).PartialUpdate(context.Background(), "jdoe", auth.UpdateUserMessage{
		Password: strPtr("Aa1!" + strings.Repeat("x", 84)),
	})

	require.Error(t, err)
	assert.True(t, auth.IsValidation(err))
	store.AssertNotCalled(t, "FindByUsername", mock.Anything, mock.Anything)
}

func TestIdentityManager_PartialUpdateEmailConflict(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}

	store.On("FindByUsername", ctx, "jdoe").Return(existingUser(t, "jdoe", ""), nil)
	store.On("FindByUsername", ctx, "taken").Return(existingUser(t, "taken", ""), nil)

	_, err := newManager(store).PartialUpdate(ctx, "jdoe", auth.UpdateUserMessage{
		Email: strPtr("taken@example.com"),
	})

	require.Error(t, err)
	assert.True(t, auth.IsConflict(err))
	store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestIdentityManager_PartialUpdateUnknownUser(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}
	store.On("FindByUsername", ctx, "ghost").Return(nil, notFound())

	_, err := newManager(store).PartialUpdate(ctx, "ghost", auth.UpdateUserMessage{FirstName: strPtr("Casper")})

	require.Error(t, err)
	assert.True(t, auth.IsNotFound(err))
	assert.Equal(t, "User ghost not found.", errorMessage(t, err))
}

func TestIdentityManager_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("existing user", func(t *testing.T) {
		store := &MockStore{}
		user := existingUser(t, "jdoe", "")
		store.On("FindByUsername", ctx, "jdoe").Return(user, nil)
		store.On("Delete", ctx, user).Return(nil).Once()

		require.NoError(t, newManager(store).Delete(ctx, "jdoe"))
		store.AssertExpectations(t)
	})

	t.Run("ghost", func(t *testing.T) {
		store := &MockStore{}
		store.On("FindByUsername", ctx, "ghost").Return(nil, notFound())

		err := newManager(store).Delete(ctx, "ghost")

		require.Error(t, err)
		assert.True(t, auth.IsNotFound(err))
		assert.Equal(t, "User ghost not found.", errorMessage(t, err))
		store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}

func TestIdentityManager_Authenticate(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}
	user := existingUser(t, "jdoe", "Secret1!")
	employee := existingUser(t, "ops@example.com", "")

	store.On("FindByUsername", ctx, "jdoe").Return(user, nil)
	store.On("FindByUsername", ctx, "ghost").Return(nil, notFound())
	store.On("FindByUsername", ctx, "ops@example.com").Return(employee, nil)
	store.On("FindByUsername", ctx, "broken").Return(nil, errors.New("connection refused"))
	store.On("GetClaims", ctx, user).Return([]auth.Claim{{Type: auth.ClaimFullName, Value: "John Doe"}}, nil)
	store.On("GetRoles", ctx, user).Return([]string{"Admin"}, nil)

	m := newManager(store)

	identity, err := m.Authenticate(ctx, "jdoe", "Secret1!")
	require.NoError(t, err)
	assert.Equal(t, "jdoe@example.com", identity.Email())
	assert.Equal(t, []string{"Admin"}, identity.Roles)

	_, wrongPassword := m.Authenticate(ctx, "jdoe", "Wrong1!")
	_, unknownUser := m.Authenticate(ctx, "ghost", "Secret1!")
	_, noPassword := m.Authenticate(ctx, "ops@example.com", "Secret1!")

	assert.Same(t, auth.ErrUnauthorized, wrongPassword)
	assert.Same(t, auth.ErrUnauthorized, unknownUser)
	assert.Same(t, auth.ErrUnauthorized, noPassword)

	_, err = m.Authenticate(ctx, "broken", "Secret1!")
	require.Error(t, err)
	assert.True(t, auth.IsStoreOperationFailed(err))
	assert.False(t, auth.IsUnauthorized(err))
}

func TestIdentityManager_GetByUsername(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}
	user := existingUser(t, "jdoe", "")

	store.On("FindByUsername", ctx, "jdoe").Return(user, nil)
	store.On("GetClaims", ctx, user).Return([]auth.Claim{}, nil)
	store.On("GetRoles", ctx, user).Return(nil, errors.New("timeout"))

	_, err := newManager(store).GetByUsername(ctx, "jdoe")

	require.Error(t, err)
	assert.True(t, auth.IsStoreOperationFailed(err))
}

func TestIdentityManager_CreateRole(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}

	store.On("RoleExists", ctx, "Admin").Return(false, nil).Once()
	store.On("CreateRole", ctx, mock.MatchedBy(func(r *auth.Role) bool {
		return r.Name == "Admin" && r.NormalizedName == "ADMIN" && r.ID != uuid.Nil
	})).Return(nil).Once()
	store.On("RoleExists", ctx, "Admin").Return(true, nil).Once()

	m := newManager(store)

	role, err := m.CreateRole(ctx, auth.CreateRoleMessage{Name: "Admin"})
	require.NoError(t, err)
	assert.Equal(t, "Admin", role.Name)

	_, err = m.CreateRole(ctx, auth.CreateRoleMessage{Name: "Admin"})
	require.Error(t, err)
	assert.True(t, auth.IsConflict(err))
	assert.Equal(t, "The role Admin already exists.", errorMessage(t, err))

	_, err = m.CreateRole(ctx, auth.CreateRoleMessage{Name: ""})
	assert.True(t, auth.IsValidation(err))

	store.AssertExpectations(t)
}

func TestIdentityManager_CreateRoleTrimsName(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}

	store.On("RoleExists", ctx, "Admin").Return(true, nil).Once()
	store.On("RoleExists", ctx, "Seller").Return(false, nil).Once()
	store.On("CreateRole", ctx, mock.MatchedBy(func(r *auth.Role) bool {
		return r.Name == "Seller"
	})).Return(nil).Once()

	m := newManager(store)

	_, err := m.CreateRole(ctx, auth.CreateRoleMessage{Name: "  Admin\t"})
	require.Error(t, err)
	assert.True(t, auth.IsConflict(err))
	assert.Equal(t, "The role Admin already exists.", errorMessage(t, err))

	role, err := m.CreateRole(ctx, auth.CreateRoleMessage{Name: " Seller "})
	require.NoError(t, err)
	assert.Equal(t, "Seller", role.Name)

	_, err = m.CreateRole(ctx, auth.CreateRoleMessage{Name: "   "})
	assert.True(t, auth.IsValidation(err))

	store.AssertExpectations(t)
}

func TestIdentityManager_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &MockStore{}
	m := newManager(store)

	_, err := m.Create(ctx, auth.CreateUserMessage{Email: "jdoe@example.com", Password: "Secret1!"})
	assert.ErrorIs(t, err, context.Canceled)

	err = m.Delete(ctx, "jdoe")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = m.Authenticate(ctx, "jdoe", "Secret1!")
	assert.ErrorIs(t, err, context.Canceled)

	store.AssertNotCalled(t, "FindByUsername", mock.Anything, mock.Anything)
}

func TestIdentityManager_Metrics(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}
	metrics := &MockMetrics{}

	store.On("FindByUsername", ctx, "ghost").Return(nil, notFound())
	metrics.On("IncOperation", "delete", auth.OutcomeFailure).Once()
	metrics.On("ObserveDuration", "delete", mock.AnythingOfType("time.Duration")).Once()

	m := newManager(store, auth.WithManagerMetrics(metrics))
	_ = m.Delete(ctx, "ghost")

	metrics.AssertExpectations(t)
}

func TestIdentityManager_LogsThroughConfiguredLogger(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}
	logger := &MockLogger{}

	user := existingUser(t, "jdoe", "")
	store.On("FindByUsername", ctx, "jdoe").Return(user, nil)
	store.On("Delete", ctx, user).Return(nil)
	logger.On("Info", "user %s deleted", []any{"jdoe"}).Once()

	m := auth.NewIdentityManager(store, testHasher, auth.WithManagerLogger(logger))
	require.NoError(t, m.Delete(ctx, "jdoe"))

	logger.AssertExpectations(t)
}

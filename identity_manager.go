package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Identity is a user together with its claims and roles
type Identity struct {
	User   *User    `json:"user"`
	Claims []Claim  `json:"claims"`
	Roles  []string `json:"roles"`
}

// Email returns the user email, empty for a nil identity
func (i *Identity) Email() string {
	if i == nil || i.User == nil {
		return ""
	}
	return i.User.Email
}

// IdentityManager creates, updates, deletes and authenticates users.
// Operations keyed by different usernames are independent; there is no
// in-process locking.
type IdentityManager struct {
	store         CredentialStore
	hasher        PasswordHasher
	policy        PasswordPolicy
	transactional bool
	logger        Logger
	metrics       Metrics

	dummyOnce sync.Once
	dummyHash string
}

// IdentityManagerOption configures an IdentityManager
type IdentityManagerOption func(*IdentityManager)

func WithManagerLogger(logger Logger) IdentityManagerOption {
	return func(m *IdentityManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithManagerMetrics(metrics Metrics) IdentityManagerOption {
	return func(m *IdentityManager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

func WithPasswordPolicy(policy PasswordPolicy) IdentityManagerOption {
	return func(m *IdentityManager) {
		m.policy = policy
	}
}

// WithTransactions runs create and update sequences inside a single store
// transaction. When disabled, a failure after the credential write leaves
// the earlier writes in place.
func WithTransactions(enabled bool) IdentityManagerOption {
	return func(m *IdentityManager) {
		m.transactional = enabled
	}
}

func NewIdentityManager(store CredentialStore, hasher PasswordHasher, opts ...IdentityManagerOption) *IdentityManager {
	m := &IdentityManager{
		store:   store,
		hasher:  hasher,
		policy:  DefaultPasswordPolicy(),
		logger:  defLogger{},
		metrics: noopMetrics{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Create stores the credential first. Roles and name claims are written
// only after the user record exists.
func (m *IdentityManager) Create(ctx context.Context, msg CreateUserMessage) (user *User, err error) {
	defer m.observe("create", time.Now(), &err)

	if err = m.checkContext(ctx, msg.Type()); err != nil {
		return nil, err
	}

	if verr := msg.Validate(m.policy); verr != nil {
		return nil, NewValidationFailed(verr, "invalid user data")
	}

	user = &User{Email: msg.Email}
	user.SetUsername(UsernameFromEmail(msg.Email))

	err = m.run(ctx, func(ctx context.Context, store CredentialStore) error {
		if err := m.ensureUsernameAvailable(ctx, store, user.Username); err != nil {
			return err
		}

		hash, err := m.hasher.HashPassword(msg.Password)
		if err != nil {
			return err
		}
		user.PasswordHash = hash

		if err := store.Create(ctx, user); err != nil {
			return WrapStoreError(err, "could not create user")
		}

		if roles := uniqueRoles(msg.Roles); len(roles) > 0 {
			if err := store.AddToRoles(ctx, user, roles...); err != nil {
				return WrapStoreError(err, "could not assign roles")
			}
		}

		if claims := NameClaims(msg.FirstName, msg.LastName); len(claims) > 0 {
			if err := store.AddClaims(ctx, user, claims...); err != nil {
				return WrapStoreError(err, "could not add claims")
			}
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	m.logger.Info("user %s created", user.Username)
	return user, nil
}

// CreateEmployee creates a user without a password. The full email is
// used as username.
func (m *IdentityManager) CreateEmployee(ctx context.Context, msg CreateEmployeeMessage) (user *User, err error) {
	defer m.observe("create_employee", time.Now(), &err)

	if err = m.checkContext(ctx, msg.Type()); err != nil {
		return nil, err
	}

	if verr := msg.Validate(); verr != nil {
		return nil, NewValidationFailed(verr, "invalid employee data")
	}

	user = &User{Email: msg.Email}
	user.SetUsername(msg.Email)

	if err = m.ensureUsernameAvailable(ctx, m.store, user.Username); err != nil {
		return nil, err
	}

	if err = m.store.Create(ctx, user); err != nil {
		return nil, WrapStoreError(err, "could not create employee")
	}

	m.logger.Info("employee %s created", user.Username)
	return user, nil
}

// PartialUpdate applies the fields present in msg and persists the
// credential record last.
func (m *IdentityManager) PartialUpdate(ctx context.Context, username string, msg UpdateUserMessage) (user *User, err error) {
	defer m.observe("update", time.Now(), &err)

	if err = m.checkContext(ctx, msg.Type()); err != nil {
		return nil, err
	}

	if verr := msg.Validate(m.policy); verr != nil {
		return nil, NewValidationFailed(verr, "invalid user data")
	}

	err = m.run(ctx, func(ctx context.Context, store CredentialStore) error {
		var err error
		user, err = m.findUser(ctx, store, username)
		if err != nil {
			return err
		}

		if msg.Email != nil {
			next := UsernameFromEmail(*msg.Email)
			if NormalizeName(next) != user.NormalizedUsername {
				if err := m.ensureUsernameAvailable(ctx, store, next); err != nil {
					return err
				}
			}
			user.Email = *msg.Email
			user.SetUsername(next)
		}

		if msg.Password != nil {
			hash, err := m.hasher.HashPassword(*msg.Password)
			if err != nil {
				return err
			}
			user.PasswordHash = hash
		}

		if msg.FirstName != nil || msg.LastName != nil {
			if err := m.syncClaims(ctx, store, user, msg.FirstName, msg.LastName); err != nil {
				return err
			}
		}

		if len(msg.Roles) > 0 {
			if err := m.syncRoles(ctx, store, user, msg.Roles); err != nil {
				return err
			}
		}

		if err := store.Update(ctx, user); err != nil {
			return WrapStoreError(err, "could not update user")
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	m.logger.Info("user %s updated", username)
	return user, nil
}

// Delete removes the user with its claims and role assignments
func (m *IdentityManager) Delete(ctx context.Context, username string) (err error) {
	defer m.observe("delete", time.Now(), &err)

	if err = m.checkContext(ctx, "user.delete"); err != nil {
		return err
	}

	user, err := m.findUser(ctx, m.store, username)
	if err != nil {
		return err
	}

	if err = m.store.Delete(ctx, user); err != nil {
		return WrapStoreError(err, "could not delete user")
	}

	m.logger.Info("user %s deleted", username)
	return nil
}

// Authenticate verifies the credentials and returns the current identity.
// Unknown users and wrong passwords yield the same ErrUnauthorized.
func (m *IdentityManager) Authenticate(ctx context.Context, username, password string) (identity *Identity, err error) {
	defer m.observe("authenticate", time.Now(), &err)

	if err = m.checkContext(ctx, "user.authenticate"); err != nil {
		return nil, err
	}

	user, err := m.store.FindByUsername(ctx, username)
	if err != nil {
		if IsNotFound(err) {
			m.burnHash(password)
			m.logger.Debug("authentication failed for %s", username)
			return nil, ErrUnauthorized
		}
		return nil, WrapStoreError(err, "could not find user")
	}

	if !user.HasPassword() {
		m.burnHash(password)
		m.logger.Debug("authentication failed for %s", username)
		return nil, ErrUnauthorized
	}

	if err = m.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		m.logger.Debug("authentication failed for %s", username)
		return nil, ErrUnauthorized
	}

	return m.loadIdentity(ctx, m.store, user)
}

// GetByUsername returns the user with its claims and roles
func (m *IdentityManager) GetByUsername(ctx context.Context, username string) (identity *Identity, err error) {
	defer m.observe("get", time.Now(), &err)

	if err = m.checkContext(ctx, "user.get"); err != nil {
		return nil, err
	}

	user, err := m.findUser(ctx, m.store, username)
	if err != nil {
		return nil, err
	}

	return m.loadIdentity(ctx, m.store, user)
}

// CreateRole adds a new role. Names are unique regardless of case.
func (m *IdentityManager) CreateRole(ctx context.Context, msg CreateRoleMessage) (role *Role, err error) {
	defer m.observe("create_role", time.Now(), &err)

	if err = m.checkContext(ctx, msg.Type()); err != nil {
		return nil, err
	}

	msg.Name = strings.TrimSpace(msg.Name)
	if verr := msg.Validate(); verr != nil {
		return nil, NewValidationFailed(verr, "invalid role data")
	}

	exists, err := m.store.RoleExists(ctx, msg.Name)
	if err != nil {
		return nil, WrapStoreError(err, "could not check role")
	}

	if exists {
		return nil, NewRoleExists(msg.Name)
	}

	role = NewRole(msg.Name)
	if err = m.store.CreateRole(ctx, role); err != nil {
		return nil, WrapStoreError(err, "could not create role")
	}

	m.logger.Info("role %s created", role.Name)
	return role, nil
}

func (m *IdentityManager) syncClaims(ctx context.Context, store CredentialStore, user *User, first, last *string) error {
	current, err := store.GetClaims(ctx, user)
	if err != nil {
		return WrapStoreError(err, "could not load claims")
	}

	changes := SyncNameClaims(current, first, last)

	for _, c := range changes.Remove {
		if err := store.RemoveClaim(ctx, user, c); err != nil {
			return WrapStoreError(err, "could not remove claim")
		}
	}

	if len(changes.Add) > 0 {
		if err := store.AddClaims(ctx, user, changes.Add...); err != nil {
			return WrapStoreError(err, "could not add claims")
		}
	}

	return nil
}

func (m *IdentityManager) syncRoles(ctx context.Context, store CredentialStore, user *User, requested []string) error {
	current, err := store.GetRoles(ctx, user)
	if err != nil {
		return WrapStoreError(err, "could not load roles")
	}

	delta := SyncRoles(current, requested)

	for _, r := range delta.ToRemove {
		if err := store.RemoveFromRole(ctx, user, r); err != nil {
			return WrapStoreError(err, "could not remove role")
		}
	}

	if len(delta.ToAdd) > 0 {
		if err := store.AddToRoles(ctx, user, delta.ToAdd...); err != nil {
			return WrapStoreError(err, "could not assign roles")
		}
	}

	return nil
}

func (m *IdentityManager) loadIdentity(ctx context.Context, store CredentialStore, user *User) (*Identity, error) {
	claims, err := store.GetClaims(ctx, user)
	if err != nil {
		return nil, WrapStoreError(err, "could not load claims")
	}

	roles, err := store.GetRoles(ctx, user)
	if err != nil {
		return nil, WrapStoreError(err, "could not load roles")
	}

	return &Identity{
		User:   user,
		Claims: claims,
		Roles:  roles,
	}, nil
}

func (m *IdentityManager) findUser(ctx context.Context, store CredentialStore, username string) (*User, error) {
	user, err := store.FindByUsername(ctx, username)
	if err != nil {
		if IsNotFound(err) {
			return nil, NewUserNotFound(username)
		}
		return nil, WrapStoreError(err, "could not find user")
	}
	return user, nil
}

func (m *IdentityManager) ensureUsernameAvailable(ctx context.Context, store CredentialStore, username string) error {
	_, err := store.FindByUsername(ctx, username)
	if err == nil {
		return NewUsernameTaken(username)
	}

	if IsNotFound(err) {
		return nil
	}

	return WrapStoreError(err, "could not check username")
}

func (m *IdentityManager) run(ctx context.Context, f func(ctx context.Context, store CredentialStore) error) error {
	if m.transactional {
		return m.store.RunInTx(ctx, f)
	}
	return f(ctx, m.store)
}

func (m *IdentityManager) checkContext(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			fmt.Sprintf("context cancelled during %s", op),
		)
	default:
		return nil
	}
}

// burnHash spends one hash comparison so unknown users take about as long
// as wrong passwords
func (m *IdentityManager) burnHash(password string) {
	m.dummyOnce.Do(func() {
		m.dummyHash, _ = m.hasher.HashPassword("not-a-real-password")
	})
	if m.dummyHash != "" {
		_ = m.hasher.ComparePasswordAndHash(password, m.dummyHash)
	}
}

func (m *IdentityManager) observe(op string, start time.Time, err *error) {
	outcome := OutcomeSuccess
	if err != nil && *err != nil {
		outcome = OutcomeFailure
		m.logger.Debug("%s failed: %v", op, *err)
	}
	m.metrics.IncOperation(op, outcome)
	m.metrics.ObserveDuration(op, time.Since(start))
}

package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/uptrace/bun"
)

// Store implements CredentialStore on top of the bun repositories
type Store struct {
	repo  RepositoryManager
	db    bun.IDB
	inTx  bool
	roles *cache.Cache
}

var _ CredentialStore = (*Store)(nil)

// StoreOption configures a Store
type StoreOption func(*Store)

// WithRoleCacheTTL sets how long role lookups are kept in memory.
// Zero disables the cache.
func WithRoleCacheTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl <= 0 {
			s.roles = nil
			return
		}
		s.roles = cache.New(ttl, 2*ttl)
	}
}

// NewStore returns a CredentialStore backed by repo. It panics when the
// repository manager is not fully initialized.
func NewStore(repo RepositoryManager, opts ...StoreOption) *Store {
	repo.MustValidate()

	s := &Store{
		repo:  repo,
		db:    repo.DB(),
		roles: cache.New(5*time.Minute, 10*time.Minute),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// withDB binds the store to a transaction. Reads inside a transaction may
// see uncommitted roles so the cache is bypassed.
func (s *Store) withDB(db bun.IDB) *Store {
	return &Store{
		repo: s.repo,
		db:   db,
		inTx: true,
	}
}

// RunInTx nests as a savepoint when the store is already bound to a transaction
func (s *Store) RunInTx(ctx context.Context, f func(ctx context.Context, store CredentialStore) error) error {
	fn := func(ctx context.Context, tx bun.Tx) error {
		return f(ctx, s.withDB(tx))
	}
	if s.inTx {
		return s.db.RunInTx(ctx, nil, fn)
	}
	return s.repo.RunInTx(ctx, nil, fn)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.repo.Users().GetByUsernameTx(ctx, s.db, username)
}

func (s *Store) Create(ctx context.Context, user *User) error {
	_, err := s.repo.Users().CreateTx(ctx, s.db, user)
	return err
}

func (s *Store) Update(ctx context.Context, user *User) error {
	_, err := s.repo.Users().UpdateTx(ctx, s.db, user)
	return err
}

func (s *Store) Delete(ctx context.Context, user *User) error {
	return s.repo.Users().DeleteTx(ctx, s.db, user)
}

func (s *Store) GetRoles(ctx context.Context, user *User) ([]string, error) {
	records, err := s.repo.Roles().ForUserTx(ctx, s.db, user.ID)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Name)
	}
	return out, nil
}

// AddToRoles fails with NotFound when any role does not exist; nothing is
// assigned in that case.
func (s *Store) AddToRoles(ctx context.Context, user *User, roles ...string) error {
	ids := make([]uuid.UUID, 0, len(roles))
	for _, name := range roles {
		role, err := s.roleByName(ctx, name)
		if err != nil {
			return err
		}
		ids = append(ids, role.ID)
	}
	return s.repo.Roles().AssignTx(ctx, s.db, user.ID, ids...)
}

func (s *Store) RemoveFromRole(ctx context.Context, user *User, role string) error {
	record, err := s.roleByName(ctx, role)
	if err != nil {
		return err
	}
	return s.repo.Roles().UnassignTx(ctx, s.db, user.ID, record.ID)
}

func (s *Store) GetClaims(ctx context.Context, user *User) ([]Claim, error) {
	records, err := s.repo.Claims().ForUserTx(ctx, s.db, user.ID)
	if err != nil {
		return nil, err
	}

	out := make([]Claim, 0, len(records))
	for _, r := range records {
		out = append(out, r.Claim())
	}
	return out, nil
}

func (s *Store) AddClaims(ctx context.Context, user *User, claims ...Claim) error {
	return s.repo.Claims().AddTx(ctx, s.db, user.ID, claims...)
}

func (s *Store) RemoveClaim(ctx context.Context, user *User, claim Claim) error {
	return s.repo.Claims().RemoveTx(ctx, s.db, user.ID, claim)
}

func (s *Store) RoleExists(ctx context.Context, name string) (bool, error) {
	if s.roles != nil {
		if _, ok := s.roles.Get(NormalizeName(name)); ok {
			return true, nil
		}
	}
	return s.repo.Roles().ExistsTx(ctx, s.db, name)
}

func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	if _, err := s.repo.Roles().CreateTx(ctx, s.db, role); err != nil {
		return err
	}
	if s.roles != nil {
		s.roles.SetDefault(role.NormalizedName, role)
	}
	return nil
}

func (s *Store) roleByName(ctx context.Context, name string) (*Role, error) {
	key := NormalizeName(name)
	if s.roles != nil {
		if v, ok := s.roles.Get(key); ok {
			if role, ok := v.(*Role); ok {
				return role, nil
			}
		}
	}

	role, err := s.repo.Roles().GetByNameTx(ctx, s.db, name)
	if err != nil {
		return nil, err
	}

	if s.roles != nil {
		s.roles.SetDefault(key, role)
	}
	return role, nil
}

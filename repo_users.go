package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Users interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	Create(ctx context.Context, record *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)
	Update(ctx context.Context, record *User) (*User, error)
	UpdateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)
	Delete(ctx context.Context, record *User) error
	DeleteTx(ctx context.Context, tx bun.IDB, record *User) error
}

type users struct {
	db bun.IDB
}

var _ Users = (*users)(nil)

func NewUsersRepository(db bun.IDB) Users {
	return &users{db: db}
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.GetByUsernameTx(ctx, a.db, username)
}

func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.normalized_username = ?", NormalizeName(username)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewUserNotFound(username)
		}
		return nil, WrapStoreError(err, "failed to find user")
	}

	return record, nil
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	return a.CreateTx(ctx, a.db, record)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	prepareUserDefaults(record)

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, NewUsernameTaken(record.Username)
		}
		return nil, WrapStoreError(err, "failed to create user")
	}

	return record, nil
}

func (a *users) Update(ctx context.Context, record *User) (*User, error) {
	return a.UpdateTx(ctx, a.db, record)
}

func (a *users) UpdateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	now := time.Now().UTC()
	record.UpdatedAt = &now
	record.NormalizedUsername = NormalizeName(record.Username)

	res, err := tx.NewUpdate().
		Model(record).
		Column("username", "normalized_username", "email", "password_hash", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, NewUsernameTaken(record.Username)
		}
		return nil, WrapStoreError(err, "failed to update user")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, NewUserNotFound(record.Username)
	}

	return record, nil
}

func (a *users) Delete(ctx context.Context, record *User) error {
	return a.DeleteTx(ctx, a.db, record)
}

// DeleteTx removes the user together with its claims and role assignments
func (a *users) DeleteTx(ctx context.Context, tx bun.IDB, record *User) error {
	return tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*UserClaim)(nil)).
			Where("user_id = ?", record.ID).
			Exec(ctx); err != nil {
			return WrapStoreError(err, "failed to delete user claims")
		}

		if _, err := tx.NewDelete().
			Model((*UserRole)(nil)).
			Where("user_id = ?", record.ID).
			Exec(ctx); err != nil {
			return WrapStoreError(err, "failed to delete user roles")
		}

		res, err := tx.NewDelete().
			Model((*User)(nil)).
			Where("id = ?", record.ID).
			Exec(ctx)
		if err != nil {
			return WrapStoreError(err, "failed to delete user")
		}

		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return NewUserNotFound(record.Username)
		}

		return nil
	})
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record.NormalizedUsername = NormalizeName(record.Username)

	now := time.Now().UTC()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	record.UpdatedAt = &now
}

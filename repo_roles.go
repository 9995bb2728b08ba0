package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Roles interface {
	GetByName(ctx context.Context, name string) (*Role, error)
	GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error)
	Exists(ctx context.Context, name string) (bool, error)
	ExistsTx(ctx context.Context, tx bun.IDB, name string) (bool, error)
	Create(ctx context.Context, record *Role) (*Role, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Role) (*Role, error)

	ForUser(ctx context.Context, userID uuid.UUID) ([]*Role, error)
	ForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*Role, error)
	Assign(ctx context.Context, userID uuid.UUID, roleIDs ...uuid.UUID) error
	AssignTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, roleIDs ...uuid.UUID) error
	Unassign(ctx context.Context, userID, roleID uuid.UUID) error
	UnassignTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) error
}

type roles struct {
	db bun.IDB
}

var _ Roles = (*roles)(nil)

func NewRolesRepository(db bun.IDB) Roles {
	return &roles{db: db}
}

func (r *roles) GetByName(ctx context.Context, name string) (*Role, error) {
	return r.GetByNameTx(ctx, r.db, name)
}

func (r *roles) GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.normalized_name = ?", NormalizeName(name)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewRoleNotFound(name)
		}
		return nil, WrapStoreError(err, "failed to find role")
	}

	return record, nil
}

func (r *roles) Exists(ctx context.Context, name string) (bool, error) {
	return r.ExistsTx(ctx, r.db, name)
}

func (r *roles) ExistsTx(ctx context.Context, tx bun.IDB, name string) (bool, error) {
	ok, err := tx.NewSelect().
		Model((*Role)(nil)).
		Where("?TableAlias.normalized_name = ?", NormalizeName(name)).
		Exists(ctx)
	if err != nil {
		return false, WrapStoreError(err, "failed to check role")
	}
	return ok, nil
}

func (r *roles) Create(ctx context.Context, record *Role) (*Role, error) {
	return r.CreateTx(ctx, r.db, record)
}

func (r *roles) CreateTx(ctx context.Context, tx bun.IDB, record *Role) (*Role, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.NormalizedName = NormalizeName(record.Name)
	if record.CreatedAt == nil {
		now := time.Now().UTC()
		record.CreatedAt = &now
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, NewRoleExists(record.Name)
		}
		return nil, WrapStoreError(err, "failed to create role")
	}

	return record, nil
}

func (r *roles) ForUser(ctx context.Context, userID uuid.UUID) ([]*Role, error) {
	return r.ForUserTx(ctx, r.db, userID)
}

func (r *roles) ForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*Role, error) {
	records := make([]*Role, 0)
	err := tx.NewSelect().
		Model(&records).
		Join("JOIN user_roles AS urol ON urol.role_id = rol.id").
		Where("urol.user_id = ?", userID).
		OrderExpr("rol.name ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, WrapStoreError(err, "failed to list user roles")
	}
	return records, nil
}

func (r *roles) Assign(ctx context.Context, userID uuid.UUID, roleIDs ...uuid.UUID) error {
	return r.AssignTx(ctx, r.db, userID, roleIDs...)
}

func (r *roles) AssignTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, roleIDs ...uuid.UUID) error {
	if len(roleIDs) == 0 {
		return nil
	}

	rows := make([]*UserRole, 0, len(roleIDs))
	for _, id := range roleIDs {
		rows = append(rows, &UserRole{UserID: userID, RoleID: id})
	}

	if _, err := tx.NewInsert().Model(&rows).Ignore().Exec(ctx); err != nil {
		return WrapStoreError(err, "failed to assign roles")
	}
	return nil
}

func (r *roles) Unassign(ctx context.Context, userID, roleID uuid.UUID) error {
	return r.UnassignTx(ctx, r.db, userID, roleID)
}

func (r *roles) UnassignTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*UserRole)(nil)).
		Where("user_id = ?", userID).
		Where("role_id = ?", roleID).
		Exec(ctx)
	if err != nil {
		return WrapStoreError(err, "failed to remove role")
	}
	return nil
}

package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Claims interface {
	ForUser(ctx context.Context, userID uuid.UUID) ([]*UserClaim, error)
	ForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*UserClaim, error)
	Add(ctx context.Context, userID uuid.UUID, claims ...Claim) error
	AddTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, claims ...Claim) error
	Remove(ctx context.Context, userID uuid.UUID, claim Claim) error
	RemoveTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, claim Claim) error
}

type claims struct {
	db bun.IDB
}

var _ Claims = (*claims)(nil)

func NewClaimsRepository(db bun.IDB) Claims {
	return &claims{db: db}
}

func (c *claims) ForUser(ctx context.Context, userID uuid.UUID) ([]*UserClaim, error) {
	return c.ForUserTx(ctx, c.db, userID)
}

func (c *claims) ForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*UserClaim, error) {
	records := make([]*UserClaim, 0)
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, WrapStoreError(err, "failed to list user claims")
	}
	return records, nil
}

func (c *claims) Add(ctx context.Context, userID uuid.UUID, claims ...Claim) error {
	return c.AddTx(ctx, c.db, userID, claims...)
}

func (c *claims) AddTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, claims ...Claim) error {
	if len(claims) == 0 {
		return nil
	}

	rows := make([]*UserClaim, 0, len(claims))
	for _, cl := range claims {
		rows = append(rows, &UserClaim{
			UserID:     userID,
			ClaimType:  cl.Type,
			ClaimValue: cl.Value,
		})
	}

	if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return WrapStoreError(err, "failed to add user claims")
	}
	return nil
}

func (c *claims) Remove(ctx context.Context, userID uuid.UUID, claim Claim) error {
	return c.RemoveTx(ctx, c.db, userID, claim)
}

// RemoveTx deletes every claim of the user matching both type and value
func (c *claims) RemoveTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, claim Claim) error {
	_, err := tx.NewDelete().
		Model((*UserClaim)(nil)).
		Where("user_id = ?", userID).
		Where("claim_type = ?", claim.Type).
		Where("claim_value = ?", claim.Value).
		Exec(ctx)
	if err != nil {
		return WrapStoreError(err, "failed to remove user claim")
	}
	return nil
}

package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model
type User struct {
	bun.BaseModel      `bun:"table:users,alias:usr"`
	ID                 uuid.UUID  `bun:"id,pk,type:varchar(36)" json:"id"`
	Username           string     `bun:"username,notnull" json:"username"`
	NormalizedUsername string     `bun:"normalized_username,notnull,unique" json:"-"`
	Email              string     `bun:"email,notnull" json:"email"`
	PasswordHash       string     `bun:"password_hash,nullzero" json:"-"`
	CreatedAt          *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasPassword reports whether a credential was ever set
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != ""
}

// SetUsername keeps the normalized lookup column in sync
func (u *User) SetUsername(username string) *User {
	u.Username = username
	u.NormalizedUsername = NormalizeName(username)
	return u
}

// Role is a named group of permissions
type Role struct {
	bun.BaseModel  `bun:"table:roles,alias:rol"`
	ID             uuid.UUID  `bun:"id,pk,type:varchar(36)" json:"id"`
	Name           string     `bun:"name,notnull" json:"name"`
	NormalizedName string     `bun:"normalized_name,notnull,unique" json:"-"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// NewRole creates a role with a fresh ID
func NewRole(name string) *Role {
	name = strings.TrimSpace(name)
	return &Role{
		ID:             uuid.New(),
		Name:           name,
		NormalizedName: NormalizeName(name),
	}
}

// UserRole joins users and roles
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:urol"`
	UserID        uuid.UUID `bun:"user_id,pk,type:varchar(36)"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:varchar(36)"`
	Role          *Role     `bun:"rel:belongs-to,join:role_id=id"`
}

// UserClaim is a persisted claim owned by a user
type UserClaim struct {
	bun.BaseModel `bun:"table:user_claims,alias:ucl"`
	ID            int64     `bun:"id,pk,autoincrement"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:varchar(36)"`
	ClaimType     string    `bun:"claim_type,notnull"`
	ClaimValue    string    `bun:"claim_value"`
}

// Claim returns the value object for the row
func (c *UserClaim) Claim() Claim {
	return Claim{Type: c.ClaimType, Value: c.ClaimValue}
}

// NormalizeName is used for case-insensitive username and role matching
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

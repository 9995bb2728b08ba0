package auth

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// UpdateUserMessage holds a partial update. Nil fields are left untouched
// and an empty Roles list keeps the current roles.
type UpdateUserMessage struct {
	Email     *string  `json:"email,omitempty"`
	Password  *string  `json:"password,omitempty"`
	FirstName *string  `json:"first_name,omitempty"`
	LastName  *string  `json:"last_name,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

func (e UpdateUserMessage) Type() string { return "user.update" }

// Validate will run validation rules
func (e UpdateUserMessage) Validate(policy PasswordPolicy) error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.NilOrNotEmpty, is.EmailFormat, validation.Length(0, 256)),
		validation.Field(&e.Password, validation.NilOrNotEmpty, policy),
		validation.Field(&e.FirstName, validation.Length(0, 256)),
		validation.Field(&e.LastName, validation.Length(0, 256)),
		validation.Field(&e.Roles, validation.Each(validation.Required)),
	)
}

// CreateRoleMessage holds the input to create a role
type CreateRoleMessage struct {
	Name string `json:"name"`
}

func (e CreateRoleMessage) Type() string { return "role.create" }

// Validate will run validation rules
func (e CreateRoleMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Name, validation.Required, validation.Length(1, 256)),
	)
}

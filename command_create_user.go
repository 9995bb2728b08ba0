package auth

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// CreateUserMessage holds the input to create a user
type CreateUserMessage struct {
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	Roles     []string `json:"roles"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
}

func (e CreateUserMessage) Type() string { return "user.create" }

// Validate will run validation rules
func (e CreateUserMessage) Validate(policy PasswordPolicy) error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.EmailFormat, validation.Length(0, 256)),
		validation.Field(&e.Password, validation.Required, policy),
		validation.Field(&e.FirstName, validation.Length(0, 256)),
		validation.Field(&e.LastName, validation.Length(0, 256)),
		validation.Field(&e.Roles, validation.Each(validation.Required)),
	)
}

// CreateEmployeeMessage holds the input to create a user without password
type CreateEmployeeMessage struct {
	Email string `json:"email"`
}

func (e CreateEmployeeMessage) Type() string { return "employee.create" }

// Validate will run validation rules
func (e CreateEmployeeMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.EmailFormat, validation.Length(0, 256)),
	)
}

// UsernameFromEmail returns the local part of the email
func UsernameFromEmail(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}

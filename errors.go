package auth

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	TextCodeNotFound             = "NOT_FOUND"
	TextCodeValidationFailed     = "VALIDATION_FAILED"
	TextCodeConflict             = "CONFLICT"
	TextCodeStoreOperationFailed = "STORE_OPERATION_FAILED"
)

var (
	// ErrUnauthorized is returned for any failed credential check. It does
	// not tell an unknown user apart from a wrong password.
	ErrUnauthorized = errors.New("User or password is incorrect.", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode(errors.TextCodeInvalidCredentials)

	// ErrNoEmptyString is returned when hashing an empty password
	ErrNoEmptyString = errors.New("password can't be an empty string", errors.CategoryValidation).
				WithCode(errors.CodeBadRequest).
				WithTextCode(errors.TextCodeEmptyPassword)

	// ErrMismatchedHashAndPassword is returned when a password does not match its hash
	ErrMismatchedHashAndPassword = errors.New("hashed password does not match the given password", errors.CategoryAuth).
					WithCode(errors.CodeUnauthorized).
					WithTextCode(errors.TextCodeInvalidCredentials)

	ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode(errors.TextCodeTokenExpired)

	ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode(errors.TextCodeTokenMalformed)
)

// NewNotFound builds the error for a missing user, role or record
func NewNotFound(message string, metadata ...map[string]any) *errors.Error {
	return errors.New(message, errors.CategoryNotFound).
		WithCode(errors.CodeNotFound).
		WithTextCode(TextCodeNotFound).
		WithMetadata(metadata...)
}

// NewUserNotFound echoes the missing username
func NewUserNotFound(username string) *errors.Error {
	return NewNotFound(fmt.Sprintf("User %s not found.", username), map[string]any{
		"username": username,
	})
}

// NewRoleNotFound echoes the missing role name
func NewRoleNotFound(name string) *errors.Error {
	return NewNotFound(fmt.Sprintf("Role %s not found.", name), map[string]any{
		"role": name,
	})
}

// NewConflict builds the error for duplicated usernames or role names
func NewConflict(message string, metadata ...map[string]any) *errors.Error {
	return errors.New(message, errors.CategoryConflict).
		WithCode(errors.CodeConflict).
		WithTextCode(TextCodeConflict).
		WithMetadata(metadata...)
}

// NewUsernameTaken is the conflict for a duplicated username
func NewUsernameTaken(username string) *errors.Error {
	return NewConflict(fmt.Sprintf("Username '%s' is already taken.", username), map[string]any{
		"username": username,
	})
}

// NewRoleExists is the conflict for a duplicated role name
func NewRoleExists(name string) *errors.Error {
	return NewConflict(fmt.Sprintf("The role %s already exists.", name), map[string]any{
		"role": name,
	})
}

// NewValidationFailed converts ozzo validation errors into a field map error
func NewValidationFailed(err error, message string) *errors.Error {
	if err == nil {
		return nil
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Category == errors.CategoryValidation {
		return richErr
	}

	return errors.FromOzzoValidation(err, message).
		WithCode(errors.CodeBadRequest).
		WithTextCode(TextCodeValidationFailed)
}

// WrapStoreError keeps the driver error as source and exposes a generic message.
// Errors that already carry a category pass through.
func WrapStoreError(err error, message string) error {
	if err == nil {
		return nil
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}

	return errors.Wrap(err, errors.CategoryOperation, message).
		WithCode(errors.CodeInternal).
		WithTextCode(TextCodeStoreOperationFailed)
}

func IsNotFound(err error) bool {
	return errors.IsNotFound(err)
}

func IsConflict(err error) bool {
	return errors.IsCategory(err, errors.CategoryConflict)
}

func IsValidation(err error) bool {
	return errors.IsValidation(err)
}

func IsUnauthorized(err error) bool {
	return errors.IsAuth(err)
}

func IsStoreOperationFailed(err error) bool {
	return errors.IsCategory(err, errors.CategoryOperation)
}

// IsTokenExpiredError reports whether err is, or was built from, ErrTokenExpired
func IsTokenExpiredError(err error) bool {
	return isTokenError(err, ErrTokenExpired)
}

// IsMalformedError reports whether err is, or was built from, ErrTokenMalformed
func IsMalformedError(err error) bool {
	return isTokenError(err, ErrTokenMalformed)
}

func isTokenError(err error, target *errors.Error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, target) {
		return true
	}
	var richErr *errors.Error
	return errors.As(err, &richErr) &&
		richErr.Category == target.Category &&
		richErr.TextCode == target.TextCode
}

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// SQLite extended result codes for unique and primary key violations
const (
	sqliteConstraintUnique     = 2067
	sqliteConstraintPrimaryKey = 1555
)

// isUniqueViolation recognizes duplicate key errors from pgx and the sqlite drivers
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		switch coded.Code() {
		case sqliteConstraintUnique, sqliteConstraintPrimaryKey:
			return true
		}
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

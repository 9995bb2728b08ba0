package auth

import (
	"fmt"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxPasswordBytes is the longest password bcrypt accepts
const MaxPasswordBytes = 72

// PasswordPolicy is an ozzo validation rule for new passwords. MaxLength
// is counted in bytes and capped at MaxPasswordBytes.
type PasswordPolicy struct {
	MinLength              int  `yaml:"min_length"`
	MaxLength              int  `yaml:"max_length"`
	RequiredUniqueChars    int  `yaml:"required_unique_chars"`
	RequireDigit           bool `yaml:"require_digit"`
	RequireLowercase       bool `yaml:"require_lowercase"`
	RequireUppercase       bool `yaml:"require_uppercase"`
	RequireNonAlphanumeric bool `yaml:"require_non_alphanumeric"`
}

var _ validation.Rule = PasswordPolicy{}

// DefaultPasswordPolicy requires six characters mixing digits, lower and
// upper case letters and a symbol
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:              6,
		MaxLength:              MaxPasswordBytes,
		RequiredUniqueChars:    1,
		RequireDigit:           true,
		RequireLowercase:       true,
		RequireUppercase:       true,
		RequireNonAlphanumeric: true,
	}
}

// Validate implements validation.Rule. Nil and empty values are left to
// validation.Required.
func (p PasswordPolicy) Validate(value any) error {
	value, isNil := validation.Indirect(value)
	if isNil {
		return nil
	}

	password, err := validation.EnsureString(value)
	if err != nil {
		return err
	}

	if password == "" {
		return nil
	}

	if msgs := p.violations(password); len(msgs) > 0 {
		return validation.NewError("validation_password_policy", strings.Join(msgs, " "))
	}

	return nil
}

func (p PasswordPolicy) violations(password string) []string {
	var (
		msgs     []string
		digit    bool
		lower    bool
		upper    bool
		symbol   bool
		distinct = map[rune]struct{}{}
	)

	for _, r := range password {
		distinct[r] = struct{}{}
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case !unicode.IsLetter(r):
			symbol = true
		}
	}

	if len([]rune(password)) < p.MinLength {
		msgs = append(msgs, fmt.Sprintf("Passwords must be at least %d characters.", p.MinLength))
	}
	if max := p.maxBytes(); len(password) > max {
		msgs = append(msgs, fmt.Sprintf("Passwords must be at most %d bytes.", max))
	}
	if p.RequireNonAlphanumeric && !symbol {
		msgs = append(msgs, "Passwords must have at least one non alphanumeric character.")
	}
	if p.RequireDigit && !digit {
		msgs = append(msgs, "Passwords must have at least one digit ('0'-'9').")
	}
	if p.RequireLowercase && !lower {
		msgs = append(msgs, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if p.RequireUppercase && !upper {
		msgs = append(msgs, "Passwords must have at least one uppercase ('A'-'Z').")
	}
	if len(distinct) < p.RequiredUniqueChars {
		msgs = append(msgs, fmt.Sprintf("Passwords must use at least %d different characters.", p.RequiredUniqueChars))
	}

	return msgs
}

func (p PasswordPolicy) maxBytes() int {
	if p.MaxLength <= 0 || p.MaxLength > MaxPasswordBytes {
		return MaxPasswordBytes
	}
	return p.MaxLength
}

package utils

import (
	"fmt"
	"strings"
	"unicode"
)

// DefaultSpecialCharacters is the set counted as special characters.
const DefaultSpecialCharacters = "!@#$%^&*()_+-=[]{}|;:,.<>?"

// PasswordPolicy configures PasswordValidator.
type PasswordPolicy struct {
	MinLength        int
	MaxLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSpecial   bool
	SpecialChars     string
}

// DefaultPasswordPolicy returns the policy used when nothing is configured.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        8,
		MaxLength:        100,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		RequireSpecial:   true,
		SpecialChars:     DefaultSpecialCharacters,
	}
}

// PasswordValidator reports every policy rule a password violates.
type PasswordValidator struct {
	policy PasswordPolicy
}

func NewPasswordValidator(policy PasswordPolicy) *PasswordValidator {
	if policy.SpecialChars == "" {
		policy.SpecialChars = DefaultSpecialCharacters
	}
	return &PasswordValidator{policy: policy}
}

// Validate returns false and the violated rules, in a stable order. A blank
// password only reports that a password is required.
func (v *PasswordValidator) Validate(password string) (bool, []string) {
	if strings.TrimSpace(password) == "" {
		return false, []string{"Password is required"}
	}

	var violations []string
	length := len([]rune(password))
	if length < v.policy.MinLength {
		violations = append(violations, fmt.Sprintf("Password must be at least %d characters long", v.policy.MinLength))
	}
	if v.policy.MaxLength > 0 && length > v.policy.MaxLength {
		violations = append(violations, fmt.Sprintf("Password must not exceed %d characters", v.policy.MaxLength))
	}

	var (
		hasUpper   bool
		hasLower   bool
		hasDigit   bool
		hasSpecial bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasDigit = true
		}
		if strings.ContainsRune(v.policy.SpecialChars, char) {
			hasSpecial = true
		}
	}

	if v.policy.RequireUppercase && !hasUpper {
		violations = append(violations, "Password must contain at least one uppercase letter")
	}
	if v.policy.RequireLowercase && !hasLower {
		violations = append(violations, "Password must contain at least one lowercase letter")
	}
	if v.policy.RequireDigit && !hasDigit {
		violations = append(violations, "Password must contain at least one digit")
	}
	if v.policy.RequireSpecial && !hasSpecial {
		violations = append(violations, "Password must contain at least one special character")
	}

	return len(violations) == 0, violations
}

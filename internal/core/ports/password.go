package ports

// PasswordHasher hashes and verifies passwords. Verify reports false for a
// malformed hash instead of failing.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// PasswordValidator checks a password against the configured policy and
// returns every violated rule.
type PasswordValidator interface {
	Validate(password string) (bool, []string)
}

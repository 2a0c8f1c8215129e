package apperror

var (
	ErrUserNotFound          = NewNotFound("User.NotFound", "User not found")
	ErrInvalidCredentials    = NewProblem("User.InvalidPassword", "Invalid password")
	ErrUserInactive          = NewProblem("User.Inactive", "User is inactive")
	ErrEmailNotConfirmed     = New(Validation, "Users.EmailNotConfirmed", "Email is not confirmed")
	ErrUserAlreadyExists     = NewConflict("User.AlreadyExists", "User already exists")
	ErrInvalidRefreshToken   = NewProblem("Token.Invalid", "Invalid refresh token")
	ErrInvalidEmailToken     = NewProblem("Email.InvalidToken", "Invalid or expired token")
	ErrInvalidResetToken     = NewProblem("Reset.InvalidToken", "Invalid or expired token")
	ErrInvalidAccessToken    = NewAuthentication("Token.Unauthorized", "Invalid or expired access token")
	ErrInsufficientRole      = NewAuthorization("Role.Forbidden", "Insufficient role")
	ErrRoleAssignmentMissing = NewNotFound("Role.NotFound", "Role is not assigned to user")
)

// InvalidPassword reports password policy violations.
func InvalidPassword(violations []string) *Error {
	return NewValidation("User.InvalidPassword", violations...)
}

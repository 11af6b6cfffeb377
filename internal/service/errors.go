package service

import "errors"

var (
	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidEmail is returned when logging in with an unknown email.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when a password does not match the stored hash.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidRole is returned for roles outside user/admin/moderator.
	ErrInvalidRole = errors.New("invalid role")
)

// ActivityValidationError describes why an activity payload was rejected.
type ActivityValidationError struct {
	Message string
	Details map[string]interface{}
}

func (e *ActivityValidationError) Error() string {
	return e.Message
}

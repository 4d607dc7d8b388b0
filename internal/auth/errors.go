package auth

import "errors"

var (
	// ErrConflict signals a register or profile update colliding with an
	// existing user's email or phone.
	ErrConflict = errors.New("user with this email or phone already exists")

	// ErrInvalidCredentials is returned for both an unknown email and a wrong
	// password so responses do not reveal which accounts exist.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRefreshToken covers unverifiable, expired and already-rotated
	// refresh tokens alike.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	ErrUserNotFound         = errors.New("user not found")
	ErrOldPasswordIncorrect = errors.New("old password is incorrect")
)

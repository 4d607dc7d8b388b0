package auth

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	Phone        string
	PasswordHash string

	// RefreshToken holds the single currently-valid refresh token,
	// nil once the user has logged out.
	RefreshToken         *string
	RefreshTokenIssuedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicUser is the profile shape returned to clients. The password hash and
// stored refresh token never leave the service.
type PublicUser struct {
	ID       string   `json:"id"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone,omitempty"`
	Images   []string `json:"images,omitempty"`
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// ProfileUpdate carries the fields updateable via PATCH /auth/update.
// Nil means "leave unchanged".
type ProfileUpdate struct {
	Username *string
	Email    *string
	Phone    *string
}

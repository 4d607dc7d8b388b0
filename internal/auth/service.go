package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Store is the credential store the session manager runs against. Every
// method must be safe for concurrent use; RotateRefreshToken in particular
// must match and overwrite atomically so a stale refresh token can win at
// most once.
type Store interface {
	// EmailOrPhoneTaken reports whether another user (excluding excludeUserID
	// when non-empty) already holds the email or the phone.
	EmailOrPhoneTaken(ctx context.Context, email, phone, excludeUserID string) (bool, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, user User) error
	// SetRefreshToken overwrites the stored refresh token unconditionally.
	SetRefreshToken(ctx context.Context, userID, token string, issuedAt time.Time) error
	// RotateRefreshToken replaces the stored refresh token only when it still
	// equals presented, returning the user's email on success and
	// ErrInvalidRefreshToken when the value no longer matches.
	RotateRefreshToken(ctx context.Context, userID, presented, next string, issuedAt time.Time) (string, error)
	// ClearRefreshToken removes the stored refresh token; clearing an absent
	// user or an already-cleared token is not an error.
	ClearRefreshToken(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (User, error)
	Delete(ctx context.Context, userID string) error
	ListImageURLs(ctx context.Context, userID string) ([]string, error)
}

// Service orchestrates the session lifecycle: registration, login, refresh
// token rotation, logout, account deletion and profile changes.
type Service struct {
	store      Store
	tokens     *TokenManager
	bcryptCost int
	now        func() time.Time
}

func NewService(store Store, tokens *TokenManager, bcryptCost int) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}

	return &Service{
		store:      store,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Tokens exposes the token manager so the HTTP layer can read TTLs for
// cookie lifetimes.
func (s *Service) Tokens() *TokenManager { return s.tokens }

type RegisterInput struct {
	Username string
	Email    string
	Phone    string
	Password string
}

// Register creates a user and opens their first session.
func (s *Service) Register(ctx context.Context, input RegisterInput) (PublicUser, TokenPair, error) {
	taken, err := s.store.EmailOrPhoneTaken(ctx, input.Email, input.Phone, "")
	if err != nil {
		return PublicUser{}, TokenPair{}, fmt.Errorf("check email/phone uniqueness: %w", err)
	}
	if taken {
		return PublicUser{}, TokenPair{}, ErrConflict
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return PublicUser{}, TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return PublicUser{}, TokenPair{}, fmt.Errorf("generate user id: %w", err)
	}

	user := User{
		ID:           id.String(),
		Username:     input.Username,
		Email:        input.Email,
		Phone:        input.Phone,
		PasswordHash: string(hash),
	}
	if err := s.store.Create(ctx, user); err != nil {
		return PublicUser{}, TokenPair{}, err
	}

	pair, err := s.openSession(ctx, user.ID, user.Email)
	if err != nil {
		return PublicUser{}, TokenPair{}, err
	}

	return PublicUser{ID: user.ID, Email: user.Email}, pair, nil
}

// Login verifies credentials and opens a new session, invalidating any
// previously issued refresh token by overwrite.
func (s *Service) Login(ctx context.Context, email, password string) (PublicUser, TokenPair, error) {
	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Same error as a wrong password so callers cannot probe which
			// emails have accounts.
			return PublicUser{}, TokenPair{}, ErrInvalidCredentials
		}
		return PublicUser{}, TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return PublicUser{}, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.openSession(ctx, user.ID, user.Email)
	if err != nil {
		return PublicUser{}, TokenPair{}, err
	}

	images, err := s.store.ListImageURLs(ctx, user.ID)
	if err != nil {
		return PublicUser{}, TokenPair{}, fmt.Errorf("list user images: %w", err)
	}

	return PublicUser{ID: user.ID, Email: user.Email, Phone: user.Phone, Images: images}, pair, nil
}

// Refresh rotates a refresh token: each one is single-use, and presenting an
// already-rotated token fails. The store match and overwrite are one atomic
// conditional update, so two concurrent calls with the same token cannot
// both succeed.
func (s *Service) Refresh(ctx context.Context, presented string) (TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(presented)
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	next, err := s.tokens.IssueRefresh(claims.UserID)
	if err != nil {
		return TokenPair{}, err
	}

	email, err := s.store.RotateRefreshToken(ctx, claims.UserID, presented, next, s.now().UTC())
	if err != nil {
		return TokenPair{}, err
	}

	access, err := s.tokens.IssueAccess(claims.UserID, email)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: next}, nil
}

// Logout drops the stored refresh token. Idempotent: logging out twice, or
// with no active session, succeeds.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.store.ClearRefreshToken(ctx, userID)
}

// DeleteAccount removes the user record entirely.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	return s.store.Delete(ctx, userID)
}

// ChangePassword swaps the password hash after verifying the old password.
// Existing sessions stay valid until their tokens expire.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrOldPasswordIncorrect
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	return s.store.UpdatePassword(ctx, userID, string(hash))
}

// UpdateProfile applies the allowed profile fields, re-checking email/phone
// uniqueness against every other user when either is changing.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (PublicUser, error) {
	if update.Email != nil || update.Phone != nil {
		email := ""
		if update.Email != nil {
			email = *update.Email
		}
		phone := ""
		if update.Phone != nil {
			phone = *update.Phone
		}

		taken, err := s.store.EmailOrPhoneTaken(ctx, email, phone, userID)
		if err != nil {
			return PublicUser{}, fmt.Errorf("check email/phone uniqueness: %w", err)
		}
		if taken {
			return PublicUser{}, ErrConflict
		}
	}

	user, err := s.store.UpdateProfile(ctx, userID, update)
	if err != nil {
		return PublicUser{}, err
	}

	images, err := s.store.ListImageURLs(ctx, userID)
	if err != nil {
		return PublicUser{}, fmt.Errorf("list user images: %w", err)
	}

	return PublicUser{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Phone:    user.Phone,
		Images:   images,
	}, nil
}

func (s *Service) openSession(ctx context.Context, userID, email string) (TokenPair, error) {
	pair, err := s.tokens.IssuePair(userID, email)
	if err != nil {
		return TokenPair{}, err
	}

	// The pair is only handed out once the rotated refresh token is durable.
	if err := s.store.SetRefreshToken(ctx, userID, pair.RefreshToken, s.now().UTC()); err != nil {
		return TokenPair{}, err
	}

	return pair, nil
}

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository is the Postgres-backed credential store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

func (r *Repository) EmailOrPhoneTaken(ctx context.Context, email, phone, excludeUserID string) (bool, error) {
	var taken bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM users
			WHERE (email = $1 OR phone = $2)
			  AND ($3 = '' OR id <> $3::uuid)
		)
	`, strings.ToLower(email), phone, excludeUserID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("query email/phone taken: %w", err)
	}

	return taken, nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.getUser(ctx, `
		SELECT id, username, email, phone, password_hash, refresh_token, refresh_token_issued_at, created_at, updated_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(email))
}

func (r *Repository) GetByID(ctx context.Context, id string) (User, error) {
	return r.getUser(ctx, `
		SELECT id, username, email, phone, password_hash, refresh_token, refresh_token_issued_at, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
}

func (r *Repository) getUser(ctx context.Context, query string, arg any) (User, error) {
	var user User
	var refreshToken sql.NullString
	var issuedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&refreshToken,
		&issuedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}

	if refreshToken.Valid {
		user.RefreshToken = &refreshToken.String
	}
	if issuedAt.Valid {
		value := issuedAt.Time.UTC()
		user.RefreshTokenIssuedAt = &value
	}

	return user, nil
}

func (r *Repository) Create(ctx context.Context, user User) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, phone, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, user.ID, user.Username, strings.ToLower(user.Email), user.Phone, user.PasswordHash, now)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *Repository) SetRefreshToken(ctx context.Context, userID, token string, issuedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = $2, refresh_token_issued_at = $3, updated_at = $3
		WHERE id = $1
	`, userID, token, issuedAt.UTC())
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set refresh token rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// RotateRefreshToken matches and overwrites in one statement. Under two
// concurrent calls presenting the same token, the row predicate makes the
// second UPDATE see the already-rotated value and match nothing.
func (r *Repository) RotateRefreshToken(ctx context.Context, userID, presented, next string, issuedAt time.Time) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET refresh_token = $3, refresh_token_issued_at = $4, updated_at = $4
		WHERE id = $1 AND refresh_token = $2
		RETURNING email
	`, userID, presented, next, issuedAt.UTC()).Scan(&email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidRefreshToken
		}
		return "", fmt.Errorf("rotate refresh token: %w", err)
	}

	return email, nil
}

func (r *Repository) ClearRefreshToken(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = NULL, refresh_token_issued_at = NULL, updated_at = $2
		WHERE id = $1
	`, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}

	return nil
}

func (r *Repository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, userID, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *Repository) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (User, error) {
	email := sql.NullString{}
	if update.Email != nil {
		email = sql.NullString{String: strings.ToLower(*update.Email), Valid: true}
	}
	phone := sql.NullString{}
	if update.Phone != nil {
		phone = sql.NullString{String: *update.Phone, Valid: true}
	}
	username := sql.NullString{}
	if update.Username != nil {
		username = sql.NullString{String: *update.Username, Valid: true}
	}

	var user User
	var refreshToken sql.NullString
	var issuedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET username = COALESCE($2, username),
		    email = COALESCE($3, email),
		    phone = COALESCE($4, phone),
		    updated_at = $5
		WHERE id = $1
		RETURNING id, username, email, phone, password_hash, refresh_token, refresh_token_issued_at, created_at, updated_at
	`, userID, username, email, phone, time.Now().UTC()).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&refreshToken,
		&issuedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("update profile: %w", err)
	}

	if refreshToken.Valid {
		user.RefreshToken = &refreshToken.String
	}
	if issuedAt.Valid {
		value := issuedAt.Time.UTC()
		user.RefreshTokenIssuedAt = &value
	}

	return user, nil
}

func (r *Repository) Delete(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM users
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *Repository) ListImageURLs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT url
		FROM user_images
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user images: %w", err)
	}
	defer rows.Close()

	urls := make([]string, 0)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan user image: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user images: %w", err)
	}

	return urls, nil
}

// ClearStaleRefreshTokens drops refresh tokens issued longer ago than the
// refresh TTL. Verification would reject them anyway; this keeps expired
// credentials out of the table.
func (r *Repository) ClearStaleRefreshTokens(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = NULL, refresh_token_issued_at = NULL
		WHERE refresh_token IS NOT NULL AND refresh_token_issued_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clear stale refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale refresh tokens rows affected: %w", err)
	}

	return affected, nil
}

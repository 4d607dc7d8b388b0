package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrImageNotFound = errors.New("image not found")
)

// Repository owns the user_images table. Rows cascade away when the user is
// deleted.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AddImage(ctx context.Context, userID, url string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate image id: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO user_images (id, user_id, url, created_at)
		SELECT $1, u.id, $3, $4
		FROM users u
		WHERE u.id = $2
	`, id.String(), userID, url, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert user image: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert user image rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *Repository) RemoveImage(ctx context.Context, userID, url string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM user_images
		WHERE user_id = $1 AND url = $2
	`, userID, url)
	if err != nil {
		return fmt.Errorf("delete user image: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user image rows affected: %w", err)
	}
	if affected == 0 {
		return ErrImageNotFound
	}

	return nil
}

func (r *Repository) ListImages(ctx context.Context, userID string) ([]string, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check user exists: %w", err)
	}
	if !exists {
		return nil, ErrUserNotFound
	}

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

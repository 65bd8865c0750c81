package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tendant/workspace-authz/pkg/domain"
)

// UsersRepository handles user persistence.
type UsersRepository struct {
	q Querier
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(q Querier) *UsersRepository {
	return &UsersRepository{q: q}
}

// Create creates a new user.
func (r *UsersRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, email_verified, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.q.ExecContext(ctx, query,
		user.ID, user.Email, user.EmailVerified, user.CreatedAt,
	)
	return translateError(err)
}

// GetByID retrieves a user by ID.
func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, email, email_verified, created_at
		FROM users
		WHERE id = $1
	`
	user := &domain.User{}
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.EmailVerified, &user.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return user, nil
}

package repository

import (
	"context"

	"supportchat/internal/domain/entity"
)

type UserRepository interface {
	// GetByUsername returns a NOT_FOUND AppError when the user does not exist.
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	// Create fails with CONFLICT when the username is taken.
	Create(ctx context.Context, user *entity.User) error
}

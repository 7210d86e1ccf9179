package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"supportchat/internal/domain/entity"
	"supportchat/internal/domain/repository"
	"supportchat/pkg/errors"
)

type firestoreUserRepository struct {
	client *firestore.Client
}

func NewFirestoreUserRepository(client *firestore.Client) repository.UserRepository {
	return &firestoreUserRepository{
		client: client,
	}
}

func (r *firestoreUserRepository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	doc, err := r.client.Collection("users").Doc(username).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("User", err)
		}
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}

	var user entity.User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", username, err)
	}
	user.Username = doc.Ref.ID

	return &user, nil
}

func (r *firestoreUserRepository) Create(ctx context.Context, user *entity.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	_, err := r.client.Collection("users").Doc(user.Username).Create(ctx, user)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.Conflict(fmt.Sprintf("user %q already exists", user.Username))
		}
		return fmt.Errorf("create user %s: %w", user.Username, err)
	}
	return nil
}

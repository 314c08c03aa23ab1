package repository

import (
	"context"

	"duochat/internal/domain/entity"
)

type UserRepository interface {
	// Create stores the profile and claims its username atomically.
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, uid string) (*entity.User, error)
	GetMany(ctx context.Context, uids []string) (map[string]*entity.User, error)
	Exists(ctx context.Context, uid string) (bool, error)
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	UpdateProfile(ctx context.Context, uid, displayName, username string) error

	// AddFriend sets the mirrored friend flags and seeds empty chat summaries.
	AddFriend(ctx context.Context, uid, friendUID, chatID string, now int64) error
	// RemoveFriend clears both friend flags.
	RemoveFriend(ctx context.Context, uid, friendUID string) error
}

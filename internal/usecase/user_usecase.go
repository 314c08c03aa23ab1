package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"duochat/internal/domain/entity"
	"duochat/internal/domain/repository"
	"duochat/pkg/errors"
	"duochat/pkg/utils"
)

type UserUseCase struct {
	userRepo repository.UserRepository
	chatRepo repository.ChatRepository
	now      func() time.Time
}

func NewUserUseCase(userRepo repository.UserRepository, chatRepo repository.ChatRepository) *UserUseCase {
	return &UserUseCase{
		userRepo: userRepo,
		chatRepo: chatRepo,
		now:      time.Now,
	}
}

type CreateProfileInput struct {
	DisplayName string
	Username    string
	Email       string
	PhotoURL    string
}

type UpdateProfileInput struct {
	DisplayName string
	Username    string
}

// FriendView is a friend's public profile with the state of the shared chat.
type FriendView struct {
	entity.PublicUser
	ChatID        string `json:"chat_id"`
	LastMessage   string `json:"last_message"`
	LastTimestamp int64  `json:"last_timestamp"`
}

func (uc *UserUseCase) CreateProfile(ctx context.Context, uid string, input CreateProfileInput) (*entity.User, error) {
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		return nil, errors.BadRequest("Display name is required", nil)
	}
	if !utils.ValidUsername(input.Username) {
		return nil, errors.BadRequest("Invalid username", nil)
	}

	user := &entity.User{
		ID:          uid,
		DisplayName: displayName,
		Username:    input.Username,
		Email:       input.Email,
		PhotoURL:    input.PhotoURL,
		Friends:     map[string]bool{},
	}

	if err := uc.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func (uc *UserUseCase) ProfileExists(ctx context.Context, uid string) (bool, error) {
	return uc.userRepo.Exists(ctx, uid)
}

func (uc *UserUseCase) GetProfile(ctx context.Context, uid string) (*entity.User, error) {
	return uc.userRepo.GetByID(ctx, uid)
}

func (uc *UserUseCase) UpdateProfile(ctx context.Context, uid string, input UpdateProfileInput) (*entity.User, error) {
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		return nil, errors.BadRequest("Display name is required", nil)
	}
	if !utils.ValidUsername(input.Username) {
		return nil, errors.BadRequest("Invalid username", nil)
	}

	if err := uc.userRepo.UpdateProfile(ctx, uid, displayName, input.Username); err != nil {
		return nil, err
	}

	return uc.userRepo.GetByID(ctx, uid)
}

func (uc *UserUseCase) SearchByUsername(ctx context.Context, username string) (*entity.PublicUser, error) {
	username = strings.TrimSpace(username)
	if !utils.ValidUsername(username) {
		return nil, errors.BadRequest("Invalid username", nil)
	}

	user, err := uc.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	public := user.Public()
	return &public, nil
}

// ListFriends returns uid's friends ordered by display name. Profiles and
// chat summaries are fetched concurrently.
func (uc *UserUseCase) ListFriends(ctx context.Context, uid string) ([]*FriendView, error) {
	user, err := uc.userRepo.GetByID(ctx, uid)
	if err != nil {
		return nil, err
	}

	friendIDs := make([]string, 0, len(user.Friends))
	for id, ok := range user.Friends {
		if ok {
			friendIDs = append(friendIDs, id)
		}
	}
	if len(friendIDs) == 0 {
		return []*FriendView{}, nil
	}

	var (
		profiles  map[string]*entity.User
		summaries []*entity.ChatSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profiles, err = uc.userRepo.GetMany(gctx, friendIDs)
		return err
	})
	g.Go(func() error {
		var err error
		summaries, err = uc.chatRepo.ListSummaries(gctx, uid)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byChat := make(map[string]*entity.ChatSummary, len(summaries))
	for _, s := range summaries {
		byChat[s.ChatID] = s
	}

	friends := make([]*FriendView, 0, len(friendIDs))
	for _, id := range friendIDs {
		profile, ok := profiles[id]
		if !ok {
			continue
		}

		view := &FriendView{
			PublicUser: profile.Public(),
			ChatID:     utils.ChatID(uid, id),
		}
		if s, ok := byChat[view.ChatID]; ok {
			view.LastMessage = s.LastMessage
			view.LastTimestamp = s.LastTimestamp
		}
		friends = append(friends, view)
	}

	sort.Slice(friends, func(i, j int) bool {
		return strings.ToLower(friends[i].DisplayName) < strings.ToLower(friends[j].DisplayName)
	})

	return friends, nil
}

// AddFriend makes uid and friendUID mutual friends and returns their chat id.
func (uc *UserUseCase) AddFriend(ctx context.Context, uid, friendUID string) (string, error) {
	if friendUID == uid {
		return "", errors.BadRequest("You cannot add yourself as a friend", nil)
	}
	if !utils.ValidUID(friendUID) {
		return "", errors.BadRequest("Invalid friend uid", nil)
	}

	chatID := utils.ChatID(uid, friendUID)
	if err := uc.userRepo.AddFriend(ctx, uid, friendUID, chatID, uc.now().UnixMilli()); err != nil {
		return "", err
	}

	return chatID, nil
}

func (uc *UserUseCase) RemoveFriend(ctx context.Context, uid, friendUID string) error {
	if friendUID == uid || !utils.ValidUID(friendUID) {
		return errors.BadRequest("Invalid friend uid", nil)
	}
	return uc.userRepo.RemoveFriend(ctx, uid, friendUID)
}

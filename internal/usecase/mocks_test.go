package usecase

import (
	"context"

	"github.com/stretchr/testify/mock"

	"duochat/internal/domain/entity"
	"duochat/internal/domain/repository"
)

type mockChatRepo struct {
	mock.Mock
}

func (m *mockChatRepo) LatestMessages(ctx context.Context, chatID string, limit int) ([]*entity.Message, error) {
	args := m.Called(ctx, chatID, limit)
	msgs, _ := args.Get(0).([]*entity.Message)
	return msgs, args.Error(1)
}

func (m *mockChatRepo) MessagesBefore(ctx context.Context, chatID string, before int64, limit int) ([]*entity.Message, error) {
	args := m.Called(ctx, chatID, before, limit)
	msgs, _ := args.Get(0).([]*entity.Message)
	return msgs, args.Error(1)
}

func (m *mockChatRepo) SubscribeAppended(ctx context.Context, chatID string, after int64, fn repository.MessageListener) repository.Disposer {
	return func() {}
}

func (m *mockChatRepo) SubscribeChanged(ctx context.Context, chatID string, from int64, fn repository.MessageListener) repository.Disposer {
	return func() {}
}

func (m *mockChatRepo) CreateMessage(ctx context.Context, msg *entity.Message, peerID string) error {
	return m.Called(ctx, msg, peerID).Error(0)
}

func (m *mockChatRepo) MarkRead(ctx context.Context, chatID, uid string, messageIDs []string) error {
	return m.Called(ctx, chatID, uid, messageIDs).Error(0)
}

func (m *mockChatRepo) ListSummaries(ctx context.Context, uid string) ([]*entity.ChatSummary, error) {
	args := m.Called(ctx, uid)
	summaries, _ := args.Get(0).([]*entity.ChatSummary)
	return summaries, args.Error(1)
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, user *entity.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserRepo) GetByID(ctx context.Context, uid string) (*entity.User, error) {
	args := m.Called(ctx, uid)
	user, _ := args.Get(0).(*entity.User)
	return user, args.Error(1)
}

func (m *mockUserRepo) GetMany(ctx context.Context, uids []string) (map[string]*entity.User, error) {
	args := m.Called(ctx, uids)
	users, _ := args.Get(0).(map[string]*entity.User)
	return users, args.Error(1)
}

func (m *mockUserRepo) Exists(ctx context.Context, uid string) (bool, error) {
	args := m.Called(ctx, uid)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	args := m.Called(ctx, username)
	user, _ := args.Get(0).(*entity.User)
	return user, args.Error(1)
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, uid, displayName, username string) error {
	return m.Called(ctx, uid, displayName, username).Error(0)
}

func (m *mockUserRepo) AddFriend(ctx context.Context, uid, friendUID, chatID string, now int64) error {
	return m.Called(ctx, uid, friendUID, chatID, now).Error(0)
}

func (m *mockUserRepo) RemoveFriend(ctx context.Context, uid, friendUID string) error {
	return m.Called(ctx, uid, friendUID).Error(0)
}

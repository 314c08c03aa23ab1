package handler

import (
	"context"
	"io"

	"duochat/internal/domain/entity"
	"duochat/internal/domain/repository"
	"duochat/internal/infrastructure/storage"
	"duochat/internal/usecase"
	"duochat/pkg/utils"
)

// ChatService is the part of the chat use case the HTTP layer drives.
type ChatService interface {
	SendMessage(ctx context.Context, uid string, in entity.OutgoingMessage) (*entity.Message, error)
	History(ctx context.Context, uid, chatID string, params utils.CursorParams) ([]*entity.Message, *int64, bool, error)
	ListChats(ctx context.Context, uid string) ([]*entity.ChatListItem, error)
	CheckParticipant(chatID, uid string) error
}

type UserService interface {
	CreateProfile(ctx context.Context, uid string, input usecase.CreateProfileInput) (*entity.User, error)
	ProfileExists(ctx context.Context, uid string) (bool, error)
	GetProfile(ctx context.Context, uid string) (*entity.User, error)
	UpdateProfile(ctx context.Context, uid string, input usecase.UpdateProfileInput) (*entity.User, error)
	SearchByUsername(ctx context.Context, username string) (*entity.PublicUser, error)
	ListFriends(ctx context.Context, uid string) ([]*usecase.FriendView, error)
	AddFriend(ctx context.Context, uid, friendUID string) (string, error)
	RemoveFriend(ctx context.Context, uid, friendUID string) error
}

// ImageUploader stores chat images under a public URL.
type ImageUploader interface {
	UploadChatImage(ctx context.Context, file io.Reader, contentType, ext, chatID, uid string) (*storage.UploadResult, error)
}

var (
	userHandler   *UserHandler
	friendHandler *FriendHandler
	chatHandler   *ChatHandler
	fileHandler   *FileHandler
)

func Setup(
	userService UserService,
	chatService ChatService,
	uploader ImageUploader,
	attachments repository.AttachmentRepository,
	maxUploadBytes int64,
) {
	userHandler = NewUserHandler(userService)
	friendHandler = NewFriendHandler(userService)
	chatHandler = NewChatHandler(chatService)
	fileHandler = NewFileHandler(uploader, attachments, chatService, maxUploadBytes)
}

func GetUserHandler() *UserHandler {
	return userHandler
}

func GetFriendHandler() *FriendHandler {
	return friendHandler
}

func GetChatHandler() *ChatHandler {
	return chatHandler
}

func GetFileHandler() *FileHandler {
	return fileHandler
}

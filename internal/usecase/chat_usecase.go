package usecase

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"duochat/internal/domain/entity"
	"duochat/internal/domain/repository"
	"duochat/internal/infrastructure/ratelimit"
	"duochat/pkg/errors"
	"duochat/pkg/metrics"
	"duochat/pkg/utils"
)

type ChatUseCase struct {
	chatRepo    repository.ChatRepository
	userRepo    repository.UserRepository
	rateLimiter *ratelimit.RateLimiter
	pageSize    int
}

func NewChatUseCase(
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	rateLimiter *ratelimit.RateLimiter,
	pageSize int,
) *ChatUseCase {
	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}
	return &ChatUseCase{
		chatRepo:    chatRepo,
		userRepo:    userRepo,
		rateLimiter: rateLimiter,
		pageSize:    pageSize,
	}
}

// SendMessage stores a message from uid in in.ChatID and refreshes both chat
// summaries.
func (uc *ChatUseCase) SendMessage(ctx context.Context, uid string, in entity.OutgoingMessage) (*entity.Message, error) {
	peer, err := participantPeer(in.ChatID, uid)
	if err != nil {
		return nil, err
	}

	msg := &entity.Message{
		ChatID:   in.ChatID,
		SenderID: uid,
		Text:     strings.TrimSpace(in.Text),
		Image:    strings.TrimSpace(in.Image),
	}
	if err := msg.Validate(); err != nil {
		return nil, errors.BadRequest(invalidMessage(err), err)
	}

	if uc.rateLimiter != nil {
		if allowed, wait := uc.rateLimiter.Allow(uid, ratelimit.ActionSendMessage); !allowed {
			return nil, errors.TooManyRequests(fmt.Sprintf("Too many messages, retry in %s", wait.Round(time.Second)))
		}
	}

	if err := uc.chatRepo.CreateMessage(ctx, msg, peer); err != nil {
		return nil, err
	}

	metrics.MessagesSent.WithLabelValues(messageKind(msg)).Inc()
	return msg, nil
}

// History returns one page of a conversation in ascending order. A zero
// Before means the newest page.
func (uc *ChatUseCase) History(ctx context.Context, uid, chatID string, params utils.CursorParams) ([]*entity.Message, *int64, bool, error) {
	if _, err := participantPeer(chatID, uid); err != nil {
		return nil, nil, false, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = uc.pageSize
	}

	var (
		messages []*entity.Message
		err      error
	)
	// One extra message tells whether an older page exists.
	if params.Before > 0 {
		messages, err = uc.chatRepo.MessagesBefore(ctx, chatID, params.Before, limit+1)
	} else {
		messages, err = uc.chatRepo.LatestMessages(ctx, chatID, limit+1)
	}
	if err != nil {
		return nil, nil, false, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[1:]
	}

	var nextBefore *int64
	if hasMore && len(messages) > 0 {
		ts := messages[0].Timestamp
		nextBefore = &ts
	}

	if messages == nil {
		messages = []*entity.Message{}
	}
	return messages, nextBefore, hasMore, nil
}

// ListChats returns uid's conversations, newest first, joined with the
// friend's profile.
func (uc *ChatUseCase) ListChats(ctx context.Context, uid string) ([]*entity.ChatListItem, error) {
	summaries, err := uc.chatRepo.ListSummaries(ctx, uid)
	if err != nil {
		return nil, err
	}

	friendIDs := make([]string, 0, len(summaries))
	for _, s := range summaries {
		if s.FriendUID != "" {
			friendIDs = append(friendIDs, s.FriendUID)
		}
	}

	profiles, err := uc.userRepo.GetMany(ctx, friendIDs)
	if err != nil {
		return nil, err
	}

	items := make([]*entity.ChatListItem, 0, len(summaries))
	for _, s := range summaries {
		item := &entity.ChatListItem{ChatSummary: *s}
		if p, ok := profiles[s.FriendUID]; ok {
			item.DisplayName = p.DisplayName
			item.Username = p.Username
		}
		items = append(items, item)
	}

	return items, nil
}

// CheckParticipant reports whether uid may act in chatID.
func (uc *ChatUseCase) CheckParticipant(chatID, uid string) error {
	_, err := participantPeer(chatID, uid)
	return err
}

func participantPeer(chatID, uid string) (string, error) {
	peer, err := utils.PeerOf(chatID, uid)
	switch {
	case err == nil:
		return peer, nil
	case stderrors.Is(err, utils.ErrNotParticipant):
		return "", errors.Forbidden("You are not a participant of this chat", err)
	default:
		return "", errors.BadRequest("Invalid chat id", err)
	}
}

func messageKind(m *entity.Message) string {
	switch {
	case m.Text != "" && m.Image != "":
		return "mixed"
	case m.Image != "":
		return "image"
	default:
		return "text"
	}
}

func invalidMessage(err error) string {
	switch {
	case stderrors.Is(err, entity.ErrTextTooLong):
		return fmt.Sprintf("Message text must be at most %d characters", entity.MaxTextLength)
	case stderrors.Is(err, entity.ErrInvalidImage):
		return "Image must be an http(s) URL"
	default:
		return "Message needs text or an image"
	}
}

package repository

import (
	"context"

	"duochat/internal/domain/entity"
)

// Disposer detaches a listener. It is safe to call more than once.
type Disposer func()

// MessageListener receives listener events. A non-nil err means the listener
// has stopped and will deliver nothing further.
type MessageListener func(msg *entity.Message, err error)

type ChatRepository interface {
	// LatestMessages returns the newest limit messages, oldest first.
	LatestMessages(ctx context.Context, chatID string, limit int) ([]*entity.Message, error)
	// MessagesBefore returns up to limit messages with timestamp < before, oldest first.
	MessagesBefore(ctx context.Context, chatID string, before int64, limit int) ([]*entity.Message, error)

	// SubscribeAppended reports messages created with timestamp > after.
	SubscribeAppended(ctx context.Context, chatID string, after int64, fn MessageListener) Disposer
	// SubscribeChanged reports modifications of messages with timestamp >= from,
	// starting with the current state of every matching message.
	SubscribeChanged(ctx context.Context, chatID string, from int64, fn MessageListener) Disposer

	// CreateMessage stores msg under a new id and refreshes both participants'
	// chat summaries in one atomic write. msg.ID is set on success.
	CreateMessage(ctx context.Context, msg *entity.Message, peerID string) error
	// MarkRead sets status[uid] = read on every listed message in one atomic write.
	MarkRead(ctx context.Context, chatID, uid string, messageIDs []string) error

	ListSummaries(ctx context.Context, uid string) ([]*entity.ChatSummary, error)
}

package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"duochat/internal/domain/entity"
	"duochat/internal/domain/repository"
	"duochat/pkg/errors"
	"duochat/pkg/logger"
)

const (
	chatsCollection    = "chats"
	messagesCollection = "messages"
	chatListCollection = "chatList"
	chatListItems      = "chats"
)

type firestoreChatRepository struct {
	client *firestore.Client
	now    func() time.Time
}

func NewFirestoreChatRepository(client *firestore.Client) repository.ChatRepository {
	return &firestoreChatRepository{
		client: client,
		now:    time.Now,
	}
}

func (r *firestoreChatRepository) messages(chatID string) *firestore.CollectionRef {
	return r.client.Collection(chatsCollection).Doc(chatID).Collection(messagesCollection)
}

func (r *firestoreChatRepository) summary(uid, chatID string) *firestore.DocumentRef {
	return r.client.Collection(chatListCollection).Doc(uid).Collection(chatListItems).Doc(chatID)
}

func (r *firestoreChatRepository) LatestMessages(ctx context.Context, chatID string, limit int) ([]*entity.Message, error) {
	query := r.messages(chatID).
		OrderBy("timestamp", firestore.Asc).
		LimitToLast(limit)

	return r.collect(ctx, chatID, query)
}

func (r *firestoreChatRepository) MessagesBefore(ctx context.Context, chatID string, before int64, limit int) ([]*entity.Message, error) {
	query := r.messages(chatID).
		Where("timestamp", "<", before).
		OrderBy("timestamp", firestore.Asc).
		LimitToLast(limit)

	return r.collect(ctx, chatID, query)
}

func (r *firestoreChatRepository) collect(ctx context.Context, chatID string, query firestore.Query) ([]*entity.Message, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to fetch messages", err)
		}

		message, err := decodeMessage(chatID, doc)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	return messages, nil
}

func (r *firestoreChatRepository) SubscribeAppended(ctx context.Context, chatID string, after int64, fn repository.MessageListener) repository.Disposer {
	query := r.messages(chatID).
		Where("timestamp", ">", after).
		OrderBy("timestamp", firestore.Asc)

	return r.listen(ctx, chatID, query, firestore.DocumentAdded, false, fn)
}

// SubscribeChanged also replays the documents of the first snapshot, so a
// receipt written while no update subscription was attached still arrives.
func (r *firestoreChatRepository) SubscribeChanged(ctx context.Context, chatID string, from int64, fn repository.MessageListener) repository.Disposer {
	query := r.messages(chatID).
		Where("timestamp", ">=", from).
		OrderBy("timestamp", firestore.Asc)

	return r.listen(ctx, chatID, query, firestore.DocumentModified, true, fn)
}

// listen forwards changes of one kind until the returned Disposer is called.
// With replayInitial every change of the first snapshot is forwarded as well.
// The Disposer only cancels; the iterator is stopped by the listening
// goroutine itself.
func (r *firestoreChatRepository) listen(ctx context.Context, chatID string, query firestore.Query, kind firestore.DocumentChangeKind, replayInitial bool, fn repository.MessageListener) repository.Disposer {
	ctx, cancel := context.WithCancel(ctx)
	snapshots := query.Snapshots(ctx)

	go func() {
		defer snapshots.Stop()

		initial := replayInitial
		for {
			snap, err := snapshots.Next()
			if err != nil {
				if ctx.Err() != nil || err == iterator.Done || status.Code(err) == codes.Canceled {
					return
				}
				fn(nil, errors.Internal("Message listener failed", err))
				return
			}

			for _, change := range snap.Changes {
				if change.Kind != kind && !initial {
					continue
				}
				message, err := decodeMessage(chatID, change.Doc)
				if err != nil {
					logger.Warn("Skipping undecodable message %s in chat %s: %v", change.Doc.Ref.ID, chatID, err)
					continue
				}
				fn(message, nil)
			}
			initial = false
		}
	}()

	return repository.Disposer(cancel)
}

// CreateMessage assigns the id and timestamp, marks the message as sent to
// the peer and refreshes both chat summaries in one transaction.
func (r *firestoreChatRepository) CreateMessage(ctx context.Context, msg *entity.Message, peerID string) error {
	ref := r.messages(msg.ChatID).NewDoc()

	msg.ID = ref.ID
	msg.Timestamp = r.now().UnixMilli()
	msg.Status = map[string]entity.ReceiptStatus{peerID: entity.StatusSent}

	preview := msg.Preview()

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(ref, msg); err != nil {
			return err
		}
		if err := tx.Set(r.summary(msg.SenderID, msg.ChatID), map[string]interface{}{
			"lastMessage":   preview,
			"lastTimestamp": msg.Timestamp,
			"friendUid":     peerID,
		}, firestore.MergeAll); err != nil {
			return err
		}
		return tx.Set(r.summary(peerID, msg.ChatID), map[string]interface{}{
			"lastMessage":   preview,
			"lastTimestamp": msg.Timestamp,
			"friendUid":     msg.SenderID,
		}, firestore.MergeAll)
	})
	if err != nil {
		return errors.Internal("Failed to create message", err)
	}

	return nil
}

// MarkRead sets status.<uid> to read on every listed message in one
// transaction.
func (r *firestoreChatRepository) MarkRead(ctx context.Context, chatID, uid string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	coll := r.messages(chatID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, id := range messageIDs {
			err := tx.Update(coll.Doc(id), []firestore.Update{{
				FieldPath: firestore.FieldPath{"status", uid},
				Value:     string(entity.StatusRead),
			}})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Message", err)
		}
		return errors.Internal("Failed to mark messages read", err)
	}

	return nil
}

func (r *firestoreChatRepository) ListSummaries(ctx context.Context, uid string) ([]*entity.ChatSummary, error) {
	iter := r.client.Collection(chatListCollection).Doc(uid).Collection(chatListItems).
		OrderBy("lastTimestamp", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var summaries []*entity.ChatSummary
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to list chats", err)
		}

		var summary entity.ChatSummary
		if err := doc.DataTo(&summary); err != nil {
			return nil, errors.Internal("Failed to parse chat summary", err)
		}
		summary.ChatID = doc.Ref.ID
		summaries = append(summaries, &summary)
	}

	return summaries, nil
}

func decodeMessage(chatID string, doc *firestore.DocumentSnapshot) (*entity.Message, error) {
	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	message.ID = doc.Ref.ID
	message.ChatID = chatID
	return &message, nil
}

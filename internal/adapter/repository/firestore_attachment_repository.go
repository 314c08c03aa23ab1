package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"duochat/internal/domain/entity"
	"duochat/internal/domain/repository"
	"duochat/pkg/errors"
	"duochat/pkg/logger"
)

const attachmentsCollection = "attachments"

type firestoreAttachmentRepository struct {
	client *firestore.Client
	now    func() time.Time
}

func NewFirestoreAttachmentRepository(client *firestore.Client) repository.AttachmentRepository {
	return &firestoreAttachmentRepository{
		client: client,
		now:    time.Now,
	}
}

func (r *firestoreAttachmentRepository) attachments(chatID string) *firestore.CollectionRef {
	return r.client.Collection(chatsCollection).Doc(chatID).Collection(attachmentsCollection)
}

func (r *firestoreAttachmentRepository) Create(ctx context.Context, attachment *entity.Attachment) error {
	ref := r.attachments(attachment.ChatID).NewDoc()
	attachment.ID = ref.ID
	attachment.CreatedAt = r.now().UnixMilli()

	if _, err := ref.Set(ctx, attachment); err != nil {
		return errors.Internal("Failed to create attachment", err)
	}
	return nil
}

func (r *firestoreAttachmentRepository) ListByChat(ctx context.Context, chatID string, limit int) ([]*entity.Attachment, error) {
	iter := r.attachments(chatID).
		OrderBy("createdAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	attachments := []*entity.Attachment{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate attachments", err)
		}

		var a entity.Attachment
		if err := doc.DataTo(&a); err != nil {
			logger.Error("Failed to parse attachment %s: %v", doc.Ref.Path, err)
			continue
		}
		a.ID = doc.Ref.ID
		a.ChatID = chatID
		attachments = append(attachments, &a)
	}

	return attachments, nil
}

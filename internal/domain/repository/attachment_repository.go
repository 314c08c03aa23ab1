package repository

import (
	"context"

	"duochat/internal/domain/entity"
)

type AttachmentRepository interface {
	// Create assigns the attachment an ID and creation time and stores it.
	Create(ctx context.Context, attachment *entity.Attachment) error
	// ListByChat returns up to limit attachments of chatID, newest first.
	ListByChat(ctx context.Context, chatID string, limit int) ([]*entity.Attachment, error)
}

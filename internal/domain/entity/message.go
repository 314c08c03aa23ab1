package entity

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ReceiptStatus string

const (
	StatusSent ReceiptStatus = "sent"
	StatusRead ReceiptStatus = "read"
)

// ImagePreview is the chat-list preview for messages without text.
const ImagePreview = "Sent an image"

// MaxTextLength is the longest message text accepted, in characters.
const MaxTextLength = 4000

var (
	ErrEmptyMessage = errors.New("message needs text or an image")
	ErrTextTooLong  = errors.New("message text must be at most 4000 characters")
	ErrInvalidImage = errors.New("image must be an http(s) URL")
)

var validate = validator.New()

// Message is one chat message. ID and ChatID are document path segments and
// are never stored as fields.
type Message struct {
	ID        string                   `json:"id" firestore:"-"`
	ChatID    string                   `json:"chat_id" firestore:"-"`
	SenderID  string                   `json:"sender_uid" firestore:"senderUid"`
	Text      string                   `json:"text" firestore:"text"`
	Image     string                   `json:"image,omitempty" firestore:"image,omitempty"`
	Timestamp int64                    `json:"timestamp" firestore:"timestamp"`
	Status    map[string]ReceiptStatus `json:"status" firestore:"status"`
	Edited    bool                     `json:"edited" firestore:"edited"`
	Deleted   bool                     `json:"deleted" firestore:"deleted"`
}

func (m *Message) Validate() error {
	if strings.TrimSpace(m.Text) == "" && strings.TrimSpace(m.Image) == "" {
		return ErrEmptyMessage
	}
	if validate.Var(m.Text, "max=4000") != nil {
		return ErrTextTooLong
	}
	if validate.Var(m.Image, "omitempty,http_url") != nil {
		return ErrInvalidImage
	}
	return nil
}

// Preview is the text shown in chat summaries for this message.
func (m *Message) Preview() string {
	if text := strings.TrimSpace(m.Text); text != "" {
		return text
	}
	return ImagePreview
}

// UnreadBy reports whether uid still has to acknowledge this message.
func (m *Message) UnreadBy(uid string) bool {
	return m.SenderID != uid && m.Status[uid] == StatusSent
}

// Clone returns a copy that shares no maps with m.
func (m Message) Clone() Message {
	if m.Status != nil {
		status := make(map[string]ReceiptStatus, len(m.Status))
		for k, v := range m.Status {
			status[k] = v
		}
		m.Status = status
	}
	return m
}

// MessagePatch carries the mutable fields of a message. Nil fields are left
// untouched.
type MessagePatch struct {
	Status    map[string]ReceiptStatus
	Text      *string
	Timestamp *int64
	Edited    *bool
	Deleted   *bool
}

// PatchFrom builds a full patch out of a freshly read record.
func PatchFrom(m *Message) MessagePatch {
	text, ts, edited, deleted := m.Text, m.Timestamp, m.Edited, m.Deleted
	return MessagePatch{
		Status:    m.Clone().Status,
		Text:      &text,
		Timestamp: &ts,
		Edited:    &edited,
		Deleted:   &deleted,
	}
}

// OutgoingMessage is a send request for an existing conversation.
type OutgoingMessage struct {
	ChatID string `json:"-"`
	Text   string `json:"text" validate:"max=4000"`
	Image  string `json:"image" validate:"omitempty,http_url"`
}

func (o OutgoingMessage) Validate() error {
	m := Message{Text: o.Text, Image: o.Image}
	return m.Validate()
}

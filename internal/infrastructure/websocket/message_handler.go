package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"duochat/internal/conversation"
	"duochat/internal/domain/entity"
	"duochat/pkg/logger"
	"duochat/pkg/utils"
)

// WebSocket Message Types
const (
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeOpenChat    = "open_chat"
	MessageTypeCloseChat   = "close_chat"
	MessageTypeLoadOlder   = "load_older"
	MessageTypeReload      = "reload"
	MessageTypeSendMessage = "send_message"
	MessageTypeError       = "error"
)

// Error codes carried by error frames.
const (
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeUnknownType    = "unknown_type"
	ErrCodeInvalidChat    = "invalid_chat"
	ErrCodeNotParticipant = "not_participant"
	ErrCodeNoChat         = "no_open_chat"
	ErrCodeEmptyMessage   = "empty_message"
	ErrCodeSendInFlight   = "send_in_flight"
	ErrCodeInternal       = "internal"
)

// WSMessage is a server frame.
type WSMessage struct {
	Type      string      `json:"type"`
	ChatID    string      `json:"chat_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// ClientMessage is a client frame. chat_id may be given at the top level or
// inside data.
type ClientMessage struct {
	Type   string          `json:"type"`
	ChatID string          `json:"chat_id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type OpenChatData struct {
	ChatID string `json:"chat_id"`
	TZ     string `json:"tz"`
}

type LoadOlderData struct {
	ScrollTop    float64 `json:"scroll_top"`
	ScrollHeight float64 `json:"scroll_height"`
}

type SendMessageData struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

type MessageData struct {
	ID          string                          `json:"id"`
	ChatID      string                          `json:"chat_id"`
	SenderID    string                          `json:"sender_uid"`
	Text        string                          `json:"text"`
	Image       string                          `json:"image,omitempty"`
	Timestamp   int64                           `json:"timestamp"`
	DisplayTime string                          `json:"display_time"`
	Status      map[string]entity.ReceiptStatus `json:"status"`
	Edited      bool                            `json:"edited"`
	Deleted     bool                            `json:"deleted"`
	Mine        bool                            `json:"mine"`
}

type MessagesData struct {
	Messages []MessageData             `json:"messages"`
	Anchor   *conversation.ScrollAnchor `json:"anchor,omitempty"`
}

type LoadedData struct {
	Empty bool `json:"empty"`
}

type SentData struct {
	MessageID  string `json:"message_id,omitempty"`
	ClearInput bool   `json:"clear_input"`
}

type FailureData struct {
	Error string `json:"error"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HandleClientMessage processes incoming WebSocket messages
func (m *Manager) HandleClientMessage(client *Client, messageBytes []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		logger.Debug("WebSocket: invalid frame from client %s: %v", client.ID, err)
		m.sendError(client, ErrCodeInvalidMessage, "Invalid message format")
		return
	}

	switch msg.Type {
	case MessageTypePing:
		client.enqueue(WSMessage{Type: MessageTypePong})

	case MessageTypeOpenChat:
		m.handleOpenChat(client, msg)

	case MessageTypeCloseChat:
		if old := client.setSession(nil, nil); old != nil {
			old.Close()
		}

	case MessageTypeLoadOlder:
		var data LoadOlderData
		if !m.decode(client, msg.Data, &data) {
			return
		}
		if s := m.requireSession(client); s != nil {
			s.LoadOlder(conversation.ScrollAnchor{ScrollTop: data.ScrollTop, ScrollHeight: data.ScrollHeight})
		}

	case MessageTypeReload:
		if s := m.requireSession(client); s != nil {
			s.Reload()
		}

	case MessageTypeSendMessage:
		m.handleSendMessage(client, msg)

	default:
		m.sendError(client, ErrCodeUnknownType, "Unknown message type: "+msg.Type)
	}
}

func (m *Manager) handleOpenChat(client *Client, msg ClientMessage) {
	var data OpenChatData
	if len(msg.Data) > 0 && !m.decode(client, msg.Data, &data) {
		return
	}
	if data.ChatID == "" {
		data.ChatID = msg.ChatID
	}

	loc := time.UTC
	if data.TZ != "" {
		if l, err := time.LoadLocation(data.TZ); err == nil {
			loc = l
		}
	}

	if old := client.setSession(nil, loc); old != nil {
		old.Close()
	}

	session, err := m.open(client.UserID, data.ChatID, client)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrNotParticipant):
			m.sendError(client, ErrCodeNotParticipant, "You are not a participant of this chat")
		case errors.Is(err, utils.ErrInvalidChatID):
			m.sendError(client, ErrCodeInvalidChat, "Invalid chat id")
		default:
			logger.Error("WebSocket: failed to open chat %s for %s: %v", data.ChatID, client.UserID, err)
			m.sendError(client, ErrCodeInternal, "Failed to open chat")
		}
		return
	}

	if stale := client.setSession(session, nil); stale != nil {
		stale.Close()
	}
}

func (m *Manager) handleSendMessage(client *Client, msg ClientMessage) {
	var data SendMessageData
	if !m.decode(client, msg.Data, &data) {
		return
	}

	session := m.requireSession(client)
	if session == nil {
		return
	}

	err := session.Send(data.Text, data.Image)
	switch {
	case err == nil:
	case errors.Is(err, entity.ErrEmptyMessage):
		m.sendError(client, ErrCodeEmptyMessage, "Message needs text or an image")
	case errors.Is(err, entity.ErrTextTooLong), errors.Is(err, entity.ErrInvalidImage):
		m.sendError(client, ErrCodeInvalidMessage, err.Error())
	case errors.Is(err, conversation.ErrSendInFlight):
		m.sendError(client, ErrCodeSendInFlight, "Previous message is still being sent")
	default:
		m.sendError(client, ErrCodeNoChat, err.Error())
	}
}

func (m *Manager) requireSession(client *Client) Conversation {
	s := client.currentSession()
	if s == nil {
		m.sendError(client, ErrCodeNoChat, "Open a chat first")
	}
	return s
}

func (m *Manager) decode(client *Client, raw json.RawMessage, v interface{}) bool {
	if len(raw) == 0 {
		m.sendError(client, ErrCodeInvalidMessage, "Missing message data")
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		m.sendError(client, ErrCodeInvalidMessage, "Invalid message data")
		return false
	}
	return true
}

func (m *Manager) sendError(client *Client, code, message string) {
	client.enqueue(WSMessage{
		Type: MessageTypeError,
		Data: ErrorData{Code: code, Message: message},
	})
}

// eventFrame renders a session event for uid, formatting times in loc.
func eventFrame(e conversation.Event, uid string, now time.Time, loc *time.Location) WSMessage {
	frame := WSMessage{Type: string(e.Type), ChatID: e.ChatID}

	switch e.Type {
	case conversation.EventMessages:
		data := MessagesData{
			Messages: make([]MessageData, len(e.Messages)),
			Anchor:   e.Anchor,
		}
		for i := range e.Messages {
			data.Messages[i] = messageData(&e.Messages[i], uid, now, loc)
		}
		frame.Data = data

	case conversation.EventLoaded:
		frame.Data = LoadedData{Empty: e.Empty}

	case conversation.EventSent:
		frame.Data = SentData{MessageID: e.MessageID, ClearInput: e.ClearInput}

	case conversation.EventLoadFailed, conversation.EventPageFailed, conversation.EventSendFailed:
		data := FailureData{Text: e.Text, Image: e.Image}
		if e.Err != nil {
			data.Error = e.Err.Error()
		}
		frame.Data = data
	}

	return frame
}

func messageData(m *entity.Message, uid string, now time.Time, loc *time.Location) MessageData {
	return MessageData{
		ID:          m.ID,
		ChatID:      m.ChatID,
		SenderID:    m.SenderID,
		Text:        m.Text,
		Image:       m.Image,
		Timestamp:   m.Timestamp,
		DisplayTime: utils.FormatTimestamp(m.Timestamp, now, loc),
		Status:      m.Status,
		Edited:      m.Edited,
		Deleted:     m.Deleted,
		Mine:        m.SenderID == uid,
	}
}

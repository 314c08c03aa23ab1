package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"duochat/internal/adapter/api/middleware"
	"duochat/internal/domain/entity"
	"duochat/pkg/response"
	"duochat/pkg/utils"
)

type ChatHandler struct {
	chatService ChatService
}

func NewChatHandler(chatService ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

type sendMessageRequest struct {
	Text  string `json:"text" validate:"max=4000"`
	Image string `json:"image" validate:"omitempty,http_url"`
}

type sendMessageResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
	Timestamp int64  `json:"timestamp"`
}

// GetUserChats lists the caller's conversations, newest first.
func (h *ChatHandler) GetUserChats(c echo.Context) error {
	chats, err := h.chatService.ListChats(c.Request().Context(), middleware.UID(c))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, chats)
}

// SendMessage answers with a bare {success, message_id} body rather than the
// usual envelope.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	msg, err := h.chatService.SendMessage(c.Request().Context(), middleware.UID(c), entity.OutgoingMessage{
		ChatID: c.Param("chatId"),
		Text:   req.Text,
		Image:  req.Image,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return c.JSON(http.StatusOK, sendMessageResponse{
		Success:   true,
		MessageID: msg.ID,
		Timestamp: msg.Timestamp,
	})
}

type historyMessage struct {
	*entity.Message
	DisplayTime string `json:"display_time"`
	Mine        bool   `json:"mine"`
}

// GetChatMessages pages backwards through a conversation with ?before=.
// ?tz= picks the zone display_time is rendered in.
func (h *ChatHandler) GetChatMessages(c echo.Context) error {
	uid := middleware.UID(c)
	params := utils.GetCursorParams(c, utils.DefaultPageSize)

	messages, nextBefore, hasMore, err := h.chatService.History(c.Request().Context(), uid, c.Param("chatId"), params)
	if err != nil {
		return response.Error(c, err)
	}

	loc := time.UTC
	if tz := c.QueryParam("tz"); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	now := time.Now()
	items := make([]historyMessage, len(messages))
	for i, m := range messages {
		items[i] = historyMessage{
			Message:     m,
			DisplayTime: utils.FormatTimestamp(m.Timestamp, now, loc),
			Mine:        m.SenderID == uid,
		}
	}

	return response.Cursor(c, items, nextBefore, hasMore)
}

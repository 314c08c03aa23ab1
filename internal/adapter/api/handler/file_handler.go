package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"

	"duochat/internal/adapter/api/middleware"
	"duochat/internal/domain/entity"
	"duochat/internal/domain/repository"
	"duochat/pkg/errors"
	"duochat/pkg/logger"
	"duochat/pkg/response"
	"duochat/pkg/utils"
)

// multipart framing allowance on top of the file itself
const formOverhead = 64 * 1024

var allowedImageTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

type FileHandler struct {
	uploader    ImageUploader
	attachments repository.AttachmentRepository
	chatService ChatService
	maxFileSize int64
}

func NewFileHandler(uploader ImageUploader, attachments repository.AttachmentRepository, chatService ChatService, maxFileSize int64) *FileHandler {
	if maxFileSize <= 0 {
		maxFileSize = 5 * 1024 * 1024
	}
	return &FileHandler{
		uploader:    uploader,
		attachments: attachments,
		chatService: chatService,
		maxFileSize: maxFileSize,
	}
}

// UploadChatImage stores the "file" form field for a chat and returns its
// public URL, ready to be sent as a message image.
func (h *FileHandler) UploadChatImage(c echo.Context) error {
	uid := middleware.UID(c)
	chatID := c.Param("chatId")

	if err := h.chatService.CheckParticipant(chatID, uid); err != nil {
		return response.Error(c, err)
	}

	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, h.maxFileSize+formOverhead)

	file, err := c.FormFile("file")
	if err != nil {
		logger.Debug("Upload rejected for %s: %v", uid, err)
		return response.Error(c, errors.BadRequest("Missing or invalid file", err))
	}

	if file.Size > h.maxFileSize {
		logger.Warn("File too large: %d bytes (max: %d)", file.Size, h.maxFileSize)
		return response.Error(c, errors.BadRequest(fmt.Sprintf("File size exceeds maximum allowed (%dMB)", h.maxFileSize/(1024*1024)), nil))
	}

	src, err := file.Open()
	if err != nil {
		return response.Error(c, errors.Internal("Unable to read file", err))
	}
	defer src.Close()

	// The declared Content-Type is ignored; only the bytes count.
	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return response.Error(c, errors.Internal("Unable to read file", err))
	}
	if !isAllowedImage(mtype) {
		logger.Warn("Invalid file type from %s: %s", uid, mtype.String())
		return response.Error(c, errors.BadRequest("File type not supported", nil))
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return response.Error(c, errors.Internal("Unable to read file", err))
	}

	result, err := h.uploader.UploadChatImage(c.Request().Context(), src, mtype.String(), mtype.Extension(), chatID, uid)
	if err != nil {
		return response.Error(c, errors.Internal("Failed to upload file", err))
	}

	attachment := &entity.Attachment{
		ChatID:      chatID,
		URL:         result.URL,
		ObjectName:  result.ObjectName,
		UploadedBy:  uid,
		ContentType: mtype.String(),
		Size:        result.Size,
	}
	if err := h.attachments.Create(c.Request().Context(), attachment); err != nil {
		// The object is already public, so the upload still succeeds.
		logger.Error("Failed to record attachment %s: %v", result.ObjectName, err)
	}

	logger.Debug("Image uploaded to chat %s by %s: %s", chatID, uid, result.URL)
	return response.Created(c, map[string]string{
		"url": result.URL,
	})
}

// ListChatImages returns the images shared in a chat, newest first.
func (h *FileHandler) ListChatImages(c echo.Context) error {
	chatID := c.Param("chatId")
	if err := h.chatService.CheckParticipant(chatID, middleware.UID(c)); err != nil {
		return response.Error(c, err)
	}

	params := utils.GetCursorParams(c, utils.DefaultPageSize)
	attachments, err := h.attachments.ListByChat(c.Request().Context(), chatID, params.Limit)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, attachments)
}

func isAllowedImage(mtype *mimetype.MIME) bool {
	for _, t := range allowedImageTypes {
		if mtype.Is(t) {
			return true
		}
	}
	return false
}

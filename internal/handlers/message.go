package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"collab-service/internal/feed"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
	"collab-service/internal/session"
	"collab-service/internal/telemetry"
)

// MessageHandler manages message endpoints.
type MessageHandler struct {
	groups   repositories.GroupRepository
	messages repositories.MessageRepository
	loader   *session.Loader
	deleter  *session.Deleter
	feed     feed.Feed
	audit    *telemetry.AuditEmitter
	logger   *zap.SugaredLogger
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(groups repositories.GroupRepository, messages repositories.MessageRepository, loader *session.Loader, deleter *session.Deleter, f feed.Feed, audit *telemetry.AuditEmitter, logger *zap.SugaredLogger) *MessageHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MessageHandler{
		groups:   groups,
		messages: messages,
		loader:   loader,
		deleter:  deleter,
		feed:     f,
		audit:    audit,
		logger:   logger,
	}
}

// ListMessages returns the conversation's recent window, filtered for the
// caller.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	groupID := c.Param("group_id")
	userID := c.GetString("userID")

	if !h.requireMember(c, groupID, userID) {
		return
	}

	history, err := h.loader.Load(c.Request.Context(), groupID, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": session.Visible(history.Messages, history.Hidden),
		"is_admin": history.IsAdmin,
	})
}

// PostMessage persists a message and publishes it to the change feed. Live
// sessions pick it up from there; the HTTP path never writes to sockets
// directly.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	groupID := c.Param("group_id")
	userID := c.GetString("userID")

	if !h.requireMember(c, groupID, userID) {
		return
	}

	var req struct {
		Content     string `json:"content"`
		MessageType string `json:"message_type"`
		FileURL     string `json:"file_url"`
		FileName    string `json:"file_name"`
		FileType    string `json:"file_type"`
		FileSize    int64  `json:"file_size"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.MessageType == "" {
		req.MessageType = models.MessageTypeText
	}

	switch req.MessageType {
	case models.MessageTypeText:
		if req.Content == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
			return
		}
	case models.MessageTypeFile, models.MessageTypeLink:
		if req.FileURL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file_url is required"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown message type"})
		return
	}

	var file *repositories.FileAttachment
	if req.FileURL != "" {
		file = &repositories.FileAttachment{
			URL:  req.FileURL,
			Name: req.FileName,
			Type: req.FileType,
			Size: req.FileSize,
		}
	}

	msg, err := h.messages.CreateMessage(c.Request.Context(), groupID, userID, req.Content, req.MessageType, file)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	if err := h.feed.Publish(c.Request.Context(), feed.NewInsert(msg)); err != nil {
		// the row is persisted; subscribers catch up on their next load
		h.logger.Warnw("message feed publish failed",
			"group_id", groupID, "message_id", msg.ID, "error", err)
	}

	h.emitAudit(c, "INFO", "Message sent")
	c.JSON(http.StatusCreated, msg)
}

// HideMessage hides a message for the caller only.
func (h *MessageHandler) HideMessage(c *gin.Context) {
	groupID := c.Param("group_id")
	messageID := c.Param("message_id")
	userID := c.GetString("userID")

	if !h.requireMember(c, groupID, userID) {
		return
	}

	msg, err := h.messages.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}
	if msg.GroupID != groupID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to group"})
		return
	}

	if err := h.deleter.HideForMe(c.Request.Context(), messageID, userID); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not hide message"})
		return
	}

	h.emitAudit(c, "INFO", "Message hidden")
	c.Status(http.StatusNoContent)
}

// DeleteMessageForAll deletes a message for everyone when invoked by the
// sender.
func (h *MessageHandler) DeleteMessageForAll(c *gin.Context) {
	groupID := c.Param("group_id")
	messageID := c.Param("message_id")
	userID := c.GetString("userID")

	if !h.requireMember(c, groupID, userID) {
		return
	}

	msg, err := h.messages.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			h.emitAudit(c, "ERROR", "message not found")
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}
	if msg.GroupID != groupID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to group"})
		return
	}
	if msg.SenderID != userID {
		h.emitAudit(c, "ERROR", "not allowed to delete for all")
		c.JSON(http.StatusForbidden, gin.H{"error": "only sender may delete"})
		return
	}

	if err := h.deleter.DeleteForEveryone(c.Request.Context(), messageID, userID); err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete"})
		return
	}

	h.emitAudit(c, "INFO", "Message deleted for all")
	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) requireMember(c *gin.Context, groupID, userID string) bool {
	member, err := h.groups.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return false
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return false
	}
	return true
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

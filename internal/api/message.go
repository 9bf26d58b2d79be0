package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/studybuddy/internal/middleware"
	"github.com/lalith-99/studybuddy/internal/service"
	"go.uber.org/zap"
)

type MessageHandler struct {
	messages *service.MessageService
	logger   *zap.Logger
}

func NewMessageHandler(messages *service.MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, logger: logger}
}

type createMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// Create handles POST /v1/rooms/:roomId/messages
func (h *MessageHandler) Create(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}
	var req createMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), roomID, middleware.GetUserID(c), req.Content)
	if err != nil {
		respondError(c, h.logger, err, "failed to create message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// List handles GET /v1/rooms/:roomId/messages?before=123&limit=50
//
// Cursor-based pagination:
//   - "before" = message ID. "Give me messages older than this." 0 = start from latest.
//   - "limit"  = how many to return. Default 50, capped at 100.
func (h *MessageHandler) List(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	var (
		before int64
		err    error
	)
	if b := c.Query("before"); b != "" {
		before, err = strconv.ParseInt(b, 10, 64)
		if err != nil || before < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'before' parameter"})
			return
		}
	}

	limit := service.DefaultMessageLimit
	if l := c.Query("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return
		}
	}

	messages, err := h.messages.List(c.Request.Context(), roomID, middleware.GetUserID(c), before, limit)
	if err != nil {
		respondError(c, h.logger, err, "failed to list messages")
		return
	}
	c.JSON(http.StatusOK, messages)
}

// Like handles POST /v1/rooms/:roomId/messages/:messageId/like
func (h *MessageHandler) Like(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}
	messageID, err := strconv.ParseInt(c.Param("messageId"), 10, 64)
	if err != nil || messageID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid messageId"})
		return
	}

	msg, err := h.messages.ToggleLike(c.Request.Context(), roomID, messageID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to like message")
		return
	}
	c.JSON(http.StatusOK, msg)
}

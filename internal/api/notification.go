package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/studybuddy/internal/middleware"
	"github.com/lalith-99/studybuddy/internal/service"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	notifications *service.NotificationService
	logger        *zap.Logger
}

func NewNotificationHandler(notifications *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// Pending handles GET /v1/notifications/pending: join requests waiting on
// the caller as a community creator.
func (h *NotificationHandler) Pending(c *gin.Context) {
	ns, err := h.notifications.ListPending(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to list notifications")
		return
	}
	c.JSON(http.StatusOK, ns)
}

// Mine handles GET /v1/notifications
func (h *NotificationHandler) Mine(c *gin.Context) {
	ns, err := h.notifications.ListMine(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to list notifications")
		return
	}
	c.JSON(http.StatusOK, ns)
}

// Read handles POST /v1/notifications/:id/read
func (h *NotificationHandler) Read(c *gin.Context) {
	notificationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	n, err := h.notifications.MarkRead(c.Request.Context(), notificationID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to mark notification read")
		return
	}
	c.JSON(http.StatusOK, n)
}

// Delete handles DELETE /v1/notifications/:id
func (h *NotificationHandler) Delete(c *gin.Context) {
	notificationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.notifications.Delete(c.Request.Context(), notificationID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, err, "failed to delete notification")
		return
	}
	c.Status(http.StatusNoContent)
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/studybuddy/internal/middleware"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/service"
	"go.uber.org/zap"
)

// MembershipHandler serves the join workflow: asking to join a community
// and the creator's approve/reject decision on the resulting notification.
type MembershipHandler struct {
	memberships *service.MembershipService
	logger      *zap.Logger
}

func NewMembershipHandler(memberships *service.MembershipService, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{memberships: memberships, logger: logger}
}

// Join handles POST /v1/communities/:id/join. Returns 202 while the request
// awaits the creator and 200 if the caller is already a member.
func (h *MembershipHandler) Join(c *gin.Context) {
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}

	state, err := h.memberships.RequestJoin(c.Request.Context(), middleware.GetUserID(c), communityID)
	if err != nil {
		respondError(c, h.logger, err, "failed to request to join")
		return
	}

	status := http.StatusAccepted
	if state == models.StateMember {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"state": state})
}

// State handles GET /v1/communities/:id/membership
func (h *MembershipHandler) State(c *gin.Context) {
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}

	state, err := h.memberships.State(c.Request.Context(), middleware.GetUserID(c), communityID)
	if err != nil {
		respondError(c, h.logger, err, "failed to get membership")
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// Approve handles POST /v1/notifications/:id/approve
func (h *MembershipHandler) Approve(c *gin.Context) {
	notificationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	n, err := h.memberships.Approve(c.Request.Context(), notificationID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to approve request")
		return
	}
	c.JSON(http.StatusOK, n)
}

// Reject handles POST /v1/notifications/:id/reject
func (h *MembershipHandler) Reject(c *gin.Context) {
	notificationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	n, err := h.memberships.Reject(c.Request.Context(), notificationID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to reject request")
		return
	}
	c.JSON(http.StatusOK, n)
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/studybuddy/internal/middleware"
	"github.com/lalith-99/studybuddy/internal/models"
	"github.com/lalith-99/studybuddy/internal/service"
	"go.uber.org/zap"
)

type CommunityHandler struct {
	communities *service.CommunityService
	logger      *zap.Logger
}

func NewCommunityHandler(communities *service.CommunityService, logger *zap.Logger) *CommunityHandler {
	return &CommunityHandler{communities: communities, logger: logger}
}

type createCommunityRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"is_private"`
}

// Create handles POST /v1/communities
func (h *CommunityHandler) Create(c *gin.Context) {
	var req createCommunityRequest
	if !bindJSON(c, &req) {
		return
	}

	community, err := h.communities.Create(c.Request.Context(), middleware.GetUserID(c), req.Name, req.Description, req.IsPrivate)
	if err != nil {
		respondError(c, h.logger, err, "failed to create community")
		return
	}
	c.JSON(http.StatusCreated, community)
}

// List handles GET /v1/communities?q=go and GET /v1/communities?member=me
func (h *CommunityHandler) List(c *gin.Context) {
	var (
		communities []models.Community
		err         error
	)
	switch member := c.Query("member"); member {
	case "":
		communities, err = h.communities.List(c.Request.Context(), c.Query("q"))
	case "me":
		communities, err = h.communities.ListJoined(c.Request.Context(), middleware.GetUserID(c))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "member must be \"me\""})
		return
	}
	if err != nil {
		respondError(c, h.logger, err, "failed to list communities")
		return
	}
	c.JSON(http.StatusOK, communities)
}

// Get handles GET /v1/communities/:id
func (h *CommunityHandler) Get(c *gin.Context) {
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}

	community, err := h.communities.Get(c.Request.Context(), communityID)
	if err != nil {
		respondError(c, h.logger, err, "failed to get community")
		return
	}
	c.JSON(http.StatusOK, community)
}

// Delete handles DELETE /v1/communities/:id. Creator only; removes every
// room, post and notification under the community.
func (h *CommunityHandler) Delete(c *gin.Context) {
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.communities.Delete(c.Request.Context(), communityID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, err, "failed to delete community")
		return
	}
	c.Status(http.StatusNoContent)
}

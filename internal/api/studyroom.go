package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/studybuddy/internal/middleware"
	"github.com/lalith-99/studybuddy/internal/service"
	"go.uber.org/zap"
)

// StudyRoomHandler serves study rooms and their discussion and resource tabs.
type StudyRoomHandler struct {
	rooms  *service.StudyRoomService
	logger *zap.Logger
}

func NewStudyRoomHandler(rooms *service.StudyRoomService, logger *zap.Logger) *StudyRoomHandler {
	return &StudyRoomHandler{rooms: rooms, logger: logger}
}

type createRoomRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type createResourceRequest struct {
	Title       string `json:"title" binding:"required"`
	URL         string `json:"url" binding:"required"`
	Description string `json:"description"`
}

// Create handles POST /v1/communities/:id/rooms
func (h *StudyRoomHandler) Create(c *gin.Context) {
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createRoomRequest
	if !bindJSON(c, &req) {
		return
	}

	room, err := h.rooms.Create(c.Request.Context(), communityID, middleware.GetUserID(c), req.Name, req.Description)
	if err != nil {
		respondError(c, h.logger, err, "failed to create study room")
		return
	}
	c.JSON(http.StatusCreated, room)
}

// List handles GET /v1/communities/:id/rooms
func (h *StudyRoomHandler) List(c *gin.Context) {
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}

	rooms, err := h.rooms.List(c.Request.Context(), communityID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to list study rooms")
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// Get handles GET /v1/rooms/:roomId
func (h *StudyRoomHandler) Get(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	room, err := h.rooms.Get(c.Request.Context(), roomID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to get study room")
		return
	}
	c.JSON(http.StatusOK, room)
}

// Delete handles DELETE /v1/rooms/:roomId
func (h *StudyRoomHandler) Delete(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	if err := h.rooms.Delete(c.Request.Context(), roomID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, err, "failed to delete study room")
		return
	}
	c.Status(http.StatusNoContent)
}

// Join handles POST /v1/rooms/:roomId/join
func (h *StudyRoomHandler) Join(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	room, err := h.rooms.Join(c.Request.Context(), roomID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to join study room")
		return
	}
	c.JSON(http.StatusOK, room)
}

// Leave handles POST /v1/rooms/:roomId/leave
func (h *StudyRoomHandler) Leave(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	room, err := h.rooms.Leave(c.Request.Context(), roomID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to leave study room")
		return
	}
	c.JSON(http.StatusOK, room)
}

// CreatePost handles POST /v1/rooms/:roomId/posts
func (h *StudyRoomHandler) CreatePost(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}
	var req createPostRequest
	if !bindJSON(c, &req) {
		return
	}

	post, err := h.rooms.CreatePost(c.Request.Context(), roomID, middleware.GetUserID(c), req.Content)
	if err != nil {
		respondError(c, h.logger, err, "failed to create post")
		return
	}
	c.JSON(http.StatusCreated, post)
}

// ListPosts handles GET /v1/rooms/:roomId/posts
func (h *StudyRoomHandler) ListPosts(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	posts, err := h.rooms.ListPosts(c.Request.Context(), roomID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to list posts")
		return
	}
	c.JSON(http.StatusOK, posts)
}

// DeletePost handles DELETE /v1/rooms/:roomId/posts/:postId
func (h *StudyRoomHandler) DeletePost(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}
	postID, ok := pathID(c, "postId")
	if !ok {
		return
	}

	if err := h.rooms.DeletePost(c.Request.Context(), roomID, postID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, err, "failed to delete post")
		return
	}
	c.Status(http.StatusNoContent)
}

// AddResource handles POST /v1/rooms/:roomId/resources
func (h *StudyRoomHandler) AddResource(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}
	var req createResourceRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.rooms.AddResource(c.Request.Context(), roomID, middleware.GetUserID(c), req.Title, req.URL, req.Description)
	if err != nil {
		respondError(c, h.logger, err, "failed to add resource")
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ListResources handles GET /v1/rooms/:roomId/resources
func (h *StudyRoomHandler) ListResources(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	resources, err := h.rooms.ListResources(c.Request.Context(), roomID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to list resources")
		return
	}
	c.JSON(http.StatusOK, resources)
}

// DeleteResource handles DELETE /v1/rooms/:roomId/resources/:resourceId
func (h *StudyRoomHandler) DeleteResource(c *gin.Context) {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}
	resourceID, ok := pathID(c, "resourceId")
	if !ok {
		return
	}

	if err := h.rooms.DeleteResource(c.Request.Context(), roomID, resourceID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, err, "failed to delete resource")
		return
	}
	c.Status(http.StatusNoContent)
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/studybuddy/internal/middleware"
	"github.com/lalith-99/studybuddy/internal/service"
	"go.uber.org/zap"
)

// PostHandler serves the community feed.
type PostHandler struct {
	posts  *service.PostService
	logger *zap.Logger
}

func NewPostHandler(posts *service.PostService, logger *zap.Logger) *PostHandler {
	return &PostHandler{posts: posts, logger: logger}
}

type createPostRequest struct {
	Content string `json:"content" binding:"required"`
}

// Create handles POST /v1/communities/:id/posts
func (h *PostHandler) Create(c *gin.Context) {
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createPostRequest
	if !bindJSON(c, &req) {
		return
	}

	post, err := h.posts.Create(c.Request.Context(), communityID, middleware.GetUserID(c), req.Content)
	if err != nil {
		respondError(c, h.logger, err, "failed to create post")
		return
	}
	c.JSON(http.StatusCreated, post)
}

// List handles GET /v1/communities/:id/posts
func (h *PostHandler) List(c *gin.Context) {
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}

	posts, err := h.posts.List(c.Request.Context(), communityID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to list posts")
		return
	}
	c.JSON(http.StatusOK, posts)
}

// Like handles POST /v1/communities/:id/posts/:postId/like. Liking twice
// takes the like back.
func (h *PostHandler) Like(c *gin.Context) {
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}
	postID, ok := pathID(c, "postId")
	if !ok {
		return
	}

	post, err := h.posts.ToggleLike(c.Request.Context(), communityID, postID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to like post")
		return
	}
	c.JSON(http.StatusOK, post)
}

// Delete handles DELETE /v1/communities/:id/posts/:postId
func (h *PostHandler) Delete(c *gin.Context) {
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}
	postID, ok := pathID(c, "postId")
	if !ok {
		return
	}

	if err := h.posts.Delete(c.Request.Context(), communityID, postID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, err, "failed to delete post")
		return
	}
	c.Status(http.StatusNoContent)
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/studybuddy/internal/middleware"
	"github.com/lalith-99/studybuddy/internal/service"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// HealthCheck pings one backing dependency.
type HealthCheck func(ctx context.Context) error

// RouterConfig carries everything the HTTP surface is built from.
type RouterConfig struct {
	Services *service.Services
	Tokens   middleware.TokenVerifier

	// Realtime serves GET /v1/ws. It runs behind the auth middleware.
	Realtime gin.HandlerFunc

	// Checks are reported by GET /v1/health under their map keys.
	Checks map[string]HealthCheck

	Logger *zap.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	svc := cfg.Services

	r := gin.New()
	r.Use(middleware.RequestLogger(logger), middleware.Recovery(logger))

	r.GET("/v1/health", health(cfg.Checks))

	authHandler := NewAuthHandler(svc.Auth, logger)
	r.POST("/v1/auth/signup", authHandler.Signup)
	r.POST("/v1/auth/login", authHandler.Login)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.Tokens, logger))

	v1.POST("/auth/logout", authHandler.Logout)

	users := NewUserHandler(svc.Users, logger)
	v1.GET("/users/me", users.GetMe)
	v1.PATCH("/users/me", users.UpdateMe)

	communities := NewCommunityHandler(svc.Communities, logger)
	memberships := NewMembershipHandler(svc.Memberships, logger)
	posts := NewPostHandler(svc.Posts, logger)
	rooms := NewStudyRoomHandler(svc.Rooms, logger)
	v1.POST("/communities", communities.Create)
	v1.GET("/communities", communities.List)
	v1.GET("/communities/:id", communities.Get)
	v1.DELETE("/communities/:id", communities.Delete)
	v1.POST("/communities/:id/join", memberships.Join)
	v1.GET("/communities/:id/membership", memberships.State)
	v1.POST("/communities/:id/posts", posts.Create)
	v1.GET("/communities/:id/posts", posts.List)
	v1.POST("/communities/:id/posts/:postId/like", posts.Like)
	v1.DELETE("/communities/:id/posts/:postId", posts.Delete)
	v1.POST("/communities/:id/rooms", rooms.Create)
	v1.GET("/communities/:id/rooms", rooms.List)

	messages := NewMessageHandler(svc.Messages, logger)
	v1.GET("/rooms/:roomId", rooms.Get)
	v1.DELETE("/rooms/:roomId", rooms.Delete)
	v1.POST("/rooms/:roomId/join", rooms.Join)
	v1.POST("/rooms/:roomId/leave", rooms.Leave)
	v1.POST("/rooms/:roomId/messages", messages.Create)
	v1.GET("/rooms/:roomId/messages", messages.List)
	v1.POST("/rooms/:roomId/messages/:messageId/like", messages.Like)
	v1.POST("/rooms/:roomId/posts", rooms.CreatePost)
	v1.GET("/rooms/:roomId/posts", rooms.ListPosts)
	v1.DELETE("/rooms/:roomId/posts/:postId", rooms.DeletePost)
	v1.POST("/rooms/:roomId/resources", rooms.AddResource)
	v1.GET("/rooms/:roomId/resources", rooms.ListResources)
	v1.DELETE("/rooms/:roomId/resources/:resourceId", rooms.DeleteResource)

	notifications := NewNotificationHandler(svc.Notifications, logger)
	v1.GET("/notifications", notifications.Mine)
	v1.GET("/notifications/pending", notifications.Pending)
	v1.POST("/notifications/:id/approve", memberships.Approve)
	v1.POST("/notifications/:id/reject", memberships.Reject)
	v1.POST("/notifications/:id/read", notifications.Read)
	v1.DELETE("/notifications/:id", notifications.Delete)

	if cfg.Realtime != nil {
		v1.GET("/ws", cfg.Realtime)
	}
	return r
}

// health reports 200 when every check passes and 503 otherwise, with the
// outcome of each check in the body.
func health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{"status": overall, "checks": results})
	}
}

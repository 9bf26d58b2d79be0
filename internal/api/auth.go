package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/studybuddy/internal/middleware"
	"github.com/lalith-99/studybuddy/internal/service"
	"go.uber.org/zap"
)

// AuthHandler serves signup and login, the only endpoints reachable without
// a token, plus logout.
type AuthHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type signupRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Signup handles POST /v1/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.auth.Signup(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		respondError(c, h.logger, err, "signup failed")
		return
	}
	c.JSON(http.StatusCreated, session)
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err, "login failed")
		return
	}
	c.JSON(http.StatusOK, session)
}

// Logout handles POST /v1/auth/logout. The token used for this request stops
// working immediately.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.GetClaims(c)); err != nil {
		respondError(c, h.logger, err, "logout failed")
		return
	}
	c.Status(http.StatusNoContent)
}

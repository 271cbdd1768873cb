package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"codepilot/internal/auth"
	"codepilot/internal/service/assistant"
	"codepilot/internal/service/metering"
	"codepilot/internal/service/workspace"
)

// ChatRunner runs metered chat calls, serialized per user.
type ChatRunner interface {
	Chat(ctx context.Context, userID string, req metering.ChatRequest) (*metering.Result, error)
}

// Handler wires HTTP routes to the workspace, the response dispatcher and the chat workers.
type Handler struct {
	workspace     *workspace.Service
	assistant     *assistant.Dispatcher
	auth          *auth.Service
	chat          ChatRunner
	streamTimeout time.Duration
}

// NewHandler constructs a Handler instance.
func NewHandler(ws *workspace.Service, dispatcher *assistant.Dispatcher, authService *auth.Service, chat ChatRunner) *Handler {
	return &Handler{
		workspace:     ws,
		assistant:     dispatcher,
		auth:          authService,
		chat:          chat,
		streamTimeout: 2 * time.Minute,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)

	api := router.Group("/api")
	api.GET("/pricing", h.listPricing)

	authed := api.Group("")
	authed.Use(h.auth.Middleware(), h.auth.CSRFMiddleware())

	authed.GET("/auth/user", h.currentUser)
	authed.POST("/auth/token", h.issueToken)
	authed.POST("/auth/logout", h.logout)

	authed.GET("/projects", h.listProjects)
	authed.POST("/projects", h.createProject)
	authed.GET("/projects/:id", h.getProject)
	authed.PATCH("/projects/:id", h.updateProject)
	authed.DELETE("/projects/:id", h.deleteProject)

	authed.POST("/ai/chat", h.chatOnce)
	authed.POST("/ai/chat/stream", h.chatStream)
	authed.GET("/ai/sessions", h.listSessions)
	authed.GET("/ai/sessions/:id", h.getSession)
	authed.GET("/ai/snippets/:language", h.listSnippets)
	authed.GET("/ai/snippets/:language/:name", h.getSnippet)

	authed.POST("/pricing", h.createPricing)
	authed.POST("/admin/init-pricing", h.initPricing)

	authed.GET("/user/subscription", h.getSubscription)
	authed.POST("/user/subscription", h.subscribe)
	authed.GET("/user/stats", h.userStats)
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.workspace.DB().PingContext(ctx); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) authorizedUserID(c *gin.Context) (string, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return "", false
	}
	return userID, true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid " + name})
		return 0, false
	}
	return id, true
}

// respondError maps workspace errors onto status codes. notFound and failed
// are the messages for missing rows and unexpected failures.
func respondError(c *gin.Context, err error, notFound, failed string) {
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": notFound})
	case errors.Is(err, workspace.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"message": "Access denied"})
	case errors.Is(err, workspace.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": failed})
	}
}

// Auth routes

func (h *Handler) currentUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	user, err := h.workspace.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "User not found", "Failed to fetch user")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) issueToken(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to issue token"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to issue token"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusCreated, gin.H{
		"authToken": authToken,
		"csrfToken": csrfToken,
		"expiresIn": int(h.auth.TokenTTL().Seconds()),
	})
}

func (h *Handler) logout(c *gin.Context) {
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.RevokeToken(c.Request.Context(), authToken); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to log out"})
			return
		}
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

package auth

import (
	"net/http"
	"strings"

	"codepilot/internal/logger"
	"codepilot/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	userIDContextKey    = "auth_user_id"
	authTokenContextKey = "auth_token"
)

// Middleware authenticates the request and stores the user id in the context.
// A bearer or cookie token is tried first, then the trusted identity header.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if authToken := s.extractToken(c); authToken != "" {
			userID, err := s.ValidateToken(c.Request.Context(), authToken)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": err.Error()})
				return
			}
			c.Set(userIDContextKey, userID)
			c.Set(authTokenContextKey, authToken)
			c.Next()
			return
		}

		if subject := s.identitySubject(c); subject != "" {
			user, err := s.users.UpsertUser(c.Request.Context(), models.User{
				ID:    subject,
				Email: strings.TrimSpace(c.GetHeader(s.emailHeader)),
			})
			if err != nil {
				logger.ErrorWithFields("upsert identity failed", logger.Fields{"user_id": subject, "err": err.Error()})
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to resolve user"})
				return
			}
			c.Set(userIDContextKey, user.ID)
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
	}
}

func (s *Service) identitySubject(c *gin.Context) string {
	if s.identityHeader == "" || s.users == nil {
		return ""
	}
	return strings.TrimSpace(c.GetHeader(s.identityHeader))
}

// UserIDFromContext retrieves the authenticated user id from the gin context.
func UserIDFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(userIDContextKey)
	if !ok {
		return "", false
	}
	userID, ok := val.(string)
	return userID, ok && userID != ""
}

// AuthTokenFromContext retrieves the bearer token captured by the middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(authTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

// bearerToken extracts the token from an "Authorization: Bearer" value.
func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return "", false
	}
	return strings.TrimSpace(header[len("bearer "):]), true
}

func (s *Service) extractToken(c *gin.Context) string {
	if token, ok := bearerToken(c.GetHeader(s.headerName)); ok {
		return token
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token
	}
	return ""
}

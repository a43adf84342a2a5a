package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fixitnow/chatdesk/internal/auth"
	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/utils"
)

const (
	// ContextKeyUserID holds the caller's utils.SixID.
	ContextKeyUserID = "userID"
	// ContextKeyIsAdmin holds the caller's admin status.
	ContextKeyIsAdmin = "isAdmin"
	// ContextKeyRole holds the caller's models.ParticipantRole.
	ContextKeyRole = "role"
)

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Authorization header required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := auth.ValidateJWT(strings.TrimSpace(parts[1]), jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid or expired token"})
			return
		}
		userID, err := utils.ParseSixID(claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid or expired token"})
			return
		}

		c.Set(ContextKeyUserID, userID)
		c.Set(ContextKeyRole, claims.Role)
		c.Set(ContextKeyIsAdmin, claims.IsAdmin())

		c.Next()
	}
}

// AdminMiddleware rejects non-admin callers. Assumes AuthMiddleware runs first.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextKeyIsAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "Administrator privileges required"})
			return
		}
		c.Next()
	}
}

// CurrentUserID returns the authenticated caller's id.
func CurrentUserID(c *gin.Context) (utils.SixID, bool) {
	v, ok := c.Get(ContextKeyUserID)
	if !ok {
		return utils.SixID{}, false
	}
	id, ok := v.(utils.SixID)
	return id, ok
}

// CurrentRole returns the authenticated caller's role, or "" when unknown.
func CurrentRole(c *gin.Context) models.ParticipantRole {
	role, _ := c.Value(ContextKeyRole).(models.ParticipantRole)
	return role
}

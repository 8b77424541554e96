package middleware

import (
	"net/http"
	"strings"

	"marketplace/config"
	"marketplace/internal/auth"
	"marketplace/internal/response"

	"github.com/gin-gonic/gin"
)

// AuthRequired validates the bearer JWT and sets user_id, email and role in context.
func AuthRequired(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Abort(c, http.StatusUnauthorized, "error.unauthorized")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Abort(c, http.StatusUnauthorized, "error.unauthorized")
			return
		}
		claims, err := auth.ParseAccessToken(cfg, parts[1])
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "error.unauthorized")
			return
		}
		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequireRole checks that the authenticated user has one of the allowed roles.
func RequireRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		if role == "" {
			response.Abort(c, http.StatusUnauthorized, "error.unauthorized")
			return
		}
		for _, a := range allowed {
			if role == a {
				c.Next()
				return
			}
		}
		response.Abort(c, http.StatusForbidden, "error.forbidden")
	}
}

// GetUserID returns the authenticated user ID (must be used after AuthRequired).
func GetUserID(c *gin.Context) uint {
	return c.GetUint("user_id")
}

func GetRole(c *gin.Context) string {
	return c.GetString("role")
}

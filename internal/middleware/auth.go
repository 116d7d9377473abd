package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenValidator interface for auth-service token validation
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenStr string) (uuid.UUID, error)
}

func unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
	c.Abort()
}

// AuthWithValidator returns a middleware that validates bearer tokens via
// the auth service, so blacklisted (logged out) tokens are rejected.
func AuthWithValidator(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		userID, err := validator.ValidateToken(ctx, tokenString)
		if err != nil {
			unauthorized(c, "Invalid or expired token")
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

// Auth returns a middleware that validates JWT tokens locally. Fallback
// for when no auth service is configured; no blacklist check.
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			unauthorized(c, "Invalid or expired token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			unauthorized(c, "Invalid token claims")
			return
		}

		var userIDStr string
		if uid, ok := claims["user_id"].(string); ok {
			userIDStr = uid
		} else if sub, ok := claims["sub"].(string); ok {
			userIDStr = sub
		} else {
			unauthorized(c, "User ID not found in token")
			return
		}

		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			unauthorized(c, "Invalid user ID in token")
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

// bearerToken extracts the token from the Authorization header, writing
// the 401 response itself when the header is missing or malformed
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		unauthorized(c, "Authorization header is required")
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		unauthorized(c, "Invalid authorization header format")
		return "", false
	}
	return parts[1], true
}

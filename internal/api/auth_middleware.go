// internal/api/auth_middleware.go
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Corphon/ChatNovelEngine/internal/auth"
	"github.com/Corphon/ChatNovelEngine/internal/config"
	"github.com/Corphon/ChatNovelEngine/internal/utils"
	"github.com/gin-gonic/gin"
)

var tokenConfig *auth.TokenConfig

// InitializeAuth initializes the token system from configuration.
func InitializeAuth() error {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	var secret []byte
	if cfg.TokenSecret != "" {
		secret = []byte(cfg.TokenSecret)
	} else if cfg.DebugMode {
		// Stable key in development so restarts keep sessions valid.
		secret = []byte("dev_token_key_not_for_production_use_00")
		utils.GetLogger().Warn("using fixed dev token key; set TOKEN_SECRET in production", nil)
	} else {
		generated, err := auth.GenerateSecureKey(32)
		if err != nil {
			return fmt.Errorf("generate token key: %w", err)
		}
		secret = generated
	}

	if len(secret) < 32 {
		padded := make([]byte, 32)
		copy(padded, secret)
		secret = padded
	}

	tokenConfig = &auth.TokenConfig{
		Secret:     secret,
		Expiration: 24 * time.Hour,
	}
	return nil
}

// AuthMiddleware resolves the calling user from a bearer token.
// Requests without valid credentials are rejected; every surface in
// this API is scoped to a user.
func AuthMiddleware() gin.HandlerFunc {
	helper := NewResponseHelper()
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			helper.Error(c, http.StatusUnauthorized, ErrorUnauthorized, "missing bearer token", nil)
			c.Abort()
			return
		}

		parsed, err := auth.ParseToken(token, tokenConfig)
		if err != nil {
			helper.Error(c, http.StatusUnauthorized, ErrorUnauthorized, "invalid or expired token", nil)
			c.Abort()
			return
		}

		c.Set("user_id", parsed.UserID)
		c.Next()
	}
}

// GenerateUserToken creates an authentication token for a user.
func GenerateUserToken(userID string) (string, error) {
	if tokenConfig == nil {
		return "", fmt.Errorf("auth not initialized")
	}
	return auth.GenerateToken(userID, tokenConfig)
}

// GetUserFromContext retrieves the authenticated user id.
func GetUserFromContext(c *gin.Context) (string, bool) {
	userID := c.GetString("user_id")
	return userID, userID != ""
}

package middleware

import (
	"strings"
	"vsla-ledger/config"
	"vsla-ledger/utils"

	"github.com/gin-gonic/gin"
)

// AuthRequired validates the bearer token and stores the caller as "user_id".
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			utils.Unauthorized(c, "Missing or malformed authorization header")
			c.Abort()
			return
		}

		userID, err := utils.ParseToken(token, config.AppConfig.JWTSecret)
		if err != nil {
			utils.Unauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kalefund/fundgate/internal/config"
)

const (
	HeaderCallerID   = "X-Caller-Id"
	ContextCallerKey = "caller_id"
)

// AuthMiddleware resolves the caller identity from the request. Every
// participant-facing route requires it; the configured default caller
// is only used when identification is switched off (local runs).
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetHeader(HeaderCallerID)
		if caller == "" {
			if cfg != nil && !cfg.Auth.RequireCallerID && cfg.Auth.DefaultCallerID != "" {
				c.Set(ContextCallerKey, cfg.Auth.DefaultCallerID)
				c.Next()
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller id"})
			c.Abort()
			return
		}

		c.Set(ContextCallerKey, caller)
		c.Next()
	}
}

// CallerID reads the identity resolved by AuthMiddleware.
func CallerID(c *gin.Context) string {
	if v, ok := c.Get(ContextCallerKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

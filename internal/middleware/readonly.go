package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kalefund/fundgate/internal/pkg/apperrors"
)

// ReadOnlyMiddleware blocks all mutating requests while maintenance
// mode is enabled; queries keep working.
func ReadOnlyMiddleware(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		default:
			c.Error(apperrors.New(apperrors.ErrReadOnly, "read-only mode enabled", nil))
			c.Abort()
			return
		}
	}
}

package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	apperrors "github.com/MiaoJiyu/mini-biz-sim/internal/errors"
	"github.com/MiaoJiyu/mini-biz-sim/internal/logger"
)

const apiKeyHeader = "X-API-Key"

// PipelineAuthMiddleware guards the operator endpoints (instrument listing,
// manual simulation runs, token issuing) with a shared API key. With no key
// configured the endpoints stay closed.
func PipelineAuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			abortWithError(c, apperrors.ErrPipelineNotConfigured)
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(apiKeyHeader)), []byte(apiKey)) != 1 {
			logger.Named("pipeline").Warnw("rejected operator request",
				"request_id", c.GetString(requestIDKey),
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
			)
			abortWithError(c, apperrors.ErrInvalidAPIKey)
			return
		}
		c.Next()
	}
}

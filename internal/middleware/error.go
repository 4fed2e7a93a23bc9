package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "github.com/MiaoJiyu/mini-biz-sim/internal/errors"
	"github.com/MiaoJiyu/mini-biz-sim/internal/logger"
)

// ErrorHandler renders the last error attached with c.Error once the chain has
// run, unless something already wrote the response. Unknown routes reach the
// client through it.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		appErr := toAppError(c, c.Errors.Last().Err)
		c.JSON(appErr.StatusCode, errorBody(appErr))
	}
}

// NotFound attaches ErrNotFound for ErrorHandler. Use it as the NoRoute handler.
func NotFound(c *gin.Context) {
	_ = c.Error(apperrors.ErrNotFound)
}

// abortWithError stops the chain and writes err as the error body.
func abortWithError(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.StatusCode, errorBody(err))
}

func errorBody(err *apperrors.AppError) gin.H {
	return gin.H{"error": gin.H{"code": err.Code, "message": err.Message}}
}

// toAppError logs what the client will not see and maps anything that is not
// an AppError to a generic internal error.
func toAppError(c *gin.Context, err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Internal != nil {
			logger.Get().Errorw("app error",
				"request_id", c.GetString(requestIDKey),
				"code", appErr.Code,
				"internal", appErr.Internal.Error(),
				"path", c.Request.URL.Path,
			)
		}
		return appErr
	}

	logger.Get().Errorw("unexpected error",
		"request_id", c.GetString(requestIDKey),
		"error", err.Error(),
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	)
	return apperrors.ErrInternalServer
}

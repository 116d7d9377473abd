package middleware

import (
	"errors"
	"net/http"
	"os"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery returns a middleware that recovers from panics. A broken
// client connection mid-download is logged but gets no response, since
// there is nobody left to write it to.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				fields := []zap.Field{
					zap.Any("panic", r),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stacktrace"),
				}

				if isBrokenConnection(r) {
					logger.Warn("Client connection broken", fields...)
					c.Abort()
					return
				}

				logger.Error("Panic recovered", fields...)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{
						"code":    "INTERNAL_ERROR",
						"message": "Internal server error",
					},
				})
			}
		}()

		c.Next()
	}
}

// isBrokenConnection reports whether a panic value is a write to a
// connection the client already closed
func isBrokenConnection(r interface{}) bool {
	err, ok := r.(error)
	if !ok {
		return false
	}
	var syscallErr *os.SyscallError
	if !errors.As(err, &syscallErr) {
		return false
	}
	return errors.Is(syscallErr.Err, syscall.EPIPE) || errors.Is(syscallErr.Err, syscall.ECONNRESET)
}

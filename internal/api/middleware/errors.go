package middleware

import (
	"log/slog"

	"ngeblog/internal/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// Abort 记录错误并终止后续处理，响应由 ErrorHandler 统一写出。
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ErrorHandler 将 handler 记录的最后一个错误序列化为 {status, message}。
// 未分类的错误统一返回 500，原始错误只写日志。
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		e := apperr.From(c.Errors.Last().Err)
		if e.Kind == apperr.KindInternal && logger != nil {
			attrs := []any{
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
			}
			if e.Err != nil {
				attrs = append(attrs, slog.String("error", e.Err.Error()))
			}
			logger.Error("request failed", attrs...)
		}
		c.JSON(e.Status, gin.H{
			"status":  e.Status,
			"message": e.Message,
		})
	}
}

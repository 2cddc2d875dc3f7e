package middleware

import (
	"context"
	"errors"
	"strings"

	"ngeblog/internal/model"
	"ngeblog/internal/pkg/apperr"
	"ngeblog/internal/pkg/token"
	"ngeblog/internal/store"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID   = "userID"
	ctxUserUUID = "userUUID"
	ctxRole     = "role"
)

// TokenParser 校验会话令牌。
type TokenParser interface {
	Parse(raw string) (*token.Claims, error)
}

// UserLoader 按 ID 加载用户。
type UserLoader interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

// AuthMiddleware 校验 Bearer 令牌，并重新加载用户以拒绝已删除的账号。
// 通过后在上下文中写入 userID、userUUID 与 role。
func AuthMiddleware(tokens TokenParser, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			Abort(c, apperr.Unauthorized("Unauthorized"))
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			Abort(c, apperr.Unauthorized("Invalid authorization header"))
			return
		}

		claims, err := tokens.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			if errors.Is(err, token.ErrExpiredToken) {
				Abort(c, apperr.Expired("Token Expired"))
				return
			}
			Abort(c, apperr.Unauthorized("Invalid token"))
			return
		}

		user, err := users.FindByID(c.Request.Context(), claims.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				Abort(c, apperr.Unauthorized("User does not exist"))
				return
			}
			Abort(c, apperr.Internal(err))
			return
		}
		if user.IsDeleted() || user.UUID != claims.UUID {
			Abort(c, apperr.Unauthorized("User does not exist"))
			return
		}

		c.Set(ctxUserID, user.ID)
		c.Set(ctxUserUUID, user.UUID)
		c.Set(ctxRole, user.Role)
		c.Next()
	}
}

// UserID 返回当前登录用户 ID，未登录时为 0。
func UserID(c *gin.Context) uint {
	return c.GetUint(ctxUserID)
}

// UserUUID 返回当前登录用户 uuid。
func UserUUID(c *gin.Context) string {
	return c.GetString(ctxUserUUID)
}

// Role 返回当前登录用户角色。
func Role(c *gin.Context) model.UserRole {
	if v, ok := c.Get(ctxRole); ok {
		if role, ok := v.(model.UserRole); ok {
			return role
		}
	}
	return 0
}

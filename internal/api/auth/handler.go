package auth

import (
	"net/http"

	"ngeblog/internal/api/middleware"
	"ngeblog/internal/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// Handler 认证相关 HTTP 接口。
type Handler struct {
	svc *Service
}

// NewHandler 创建 Auth Handler。
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册 /api/auth 路由。guard 为公开接口前的限流等中间件。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, guard ...gin.HandlerFunc) {
	public := rg.Group("", guard...)
	public.POST("/register", h.Register)
	public.POST("/login", h.Login)
	public.POST("/verify", h.Verify)
	public.POST("/forgot-password", h.ForgotPassword)
	public.POST("/reset-password", h.ResetPassword)

	private := rg.Group("", authMW)
	private.POST("/request-otp", h.RequestOtp)
	private.GET("/keep-login", h.KeepLogin)
	private.PATCH("/change-username", h.ChangeUsername)
	private.PATCH("/change-email", h.ChangeEmail)
	private.PATCH("/change-password", h.ChangePassword)
	private.PATCH("/change-phone", h.ChangePhone)
	private.DELETE("/account", h.DeleteAccount)
}

type emailRequest struct {
	Email string `json:"email"`
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

// bind 解析 JSON 请求体，失败时记录 400。
func bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.Abort(c, apperr.Validation("Invalid request body"))
		return false
	}
	return true
}

func setBearer(c *gin.Context, tok string) {
	c.Header("Authorization", "Bearer "+tok)
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterInput
	if !bind(c, &req) {
		return
	}
	sess, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	setBearer(c, sess.Token)
	c.JSON(http.StatusOK, gin.H{
		"message": "User created successfully",
		"user":    sess.User,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginInput
	if !bind(c, &req) {
		return
	}
	sess, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	setBearer(c, sess.Token)
	c.JSON(http.StatusOK, gin.H{"user": sess.User})
}

func (h *Handler) KeepLogin(c *gin.Context) {
	user, err := h.svc.KeepLogin(c.Request.Context(), middleware.UserUUID(c))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) Verify(c *gin.Context) {
	var req VerifyInput
	if !bind(c, &req) {
		return
	}
	if err := h.svc.VerifyAccount(c.Request.Context(), req); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Account verified successfully",
		"data":    req.UUID,
	})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req ResetPasswordInput
	if !bind(c, &req) {
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), req); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Password changed successfully",
		"data":    req.UUID,
	})
}

// RequestOtp 请求体中的 email 被忽略，始终针对当前登录用户。
func (h *Handler) RequestOtp(c *gin.Context) {
	if err := h.svc.RequestOtp(c.Request.Context(), middleware.UserID(c)); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Otp token requested successfully"})
}

func (h *Handler) ChangeUsername(c *gin.Context) {
	var req ChangeUsernameInput
	if !bind(c, &req) {
		return
	}
	if err := h.svc.ChangeUsername(c.Request.Context(), middleware.UserID(c), req); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Username changed successfully"})
}

func (h *Handler) ChangeEmail(c *gin.Context) {
	var req emailRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.ChangeEmail(c.Request.Context(), middleware.UserID(c), req.Email); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email changed successfully"})
}

func (h *Handler) ChangePhone(c *gin.Context) {
	var req phoneRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.ChangePhone(c.Request.Context(), middleware.UserID(c), req.Phone); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Phone changed successfully"})
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req ChangePasswordInput
	if !bind(c, &req) {
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), middleware.UserID(c), req); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Reset password successfully! Please check your email to reset your password",
	})
}

func (h *Handler) DeleteAccount(c *gin.Context) {
	user, err := h.svc.DeleteAccount(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Account deleted successfully",
		"data":    user,
	})
}

package profile

import (
	"errors"
	"net/http"

	"ngeblog/internal/api/middleware"
	"ngeblog/internal/pkg/apperr"
	"ngeblog/internal/pkg/storage"

	"github.com/gin-gonic/gin"
)

// Handler 用户资料 HTTP 接口。
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册 /api/user 路由，全部需要登录。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	private := rg.Group("", authMW)
	private.GET("/profile", h.Get)
	private.PATCH("/profile", h.Update)
	private.POST("/profile/image", h.UploadImage)
}

func (h *Handler) Get(c *gin.Context) {
	profile, err := h.svc.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func (h *Handler) Update(c *gin.Context) {
	var req UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, apperr.Validation("Invalid request body"))
		return
	}
	if err := h.svc.Update(c.Request.Context(), middleware.UserID(c), req); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully"})
}

// UploadImage 表单字段 file。
func (h *Handler) UploadImage(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			middleware.Abort(c, apperr.Validation("Please upload an image."))
			return
		}
		middleware.Abort(c, apperr.Validation("Invalid request body"))
		return
	}
	upload, closer, err := storage.FromFileHeader(fh)
	if err != nil {
		middleware.Abort(c, apperr.Internal(err))
		return
	}
	defer closer.Close()

	url, err := h.svc.UploadImage(c.Request.Context(), middleware.UserID(c), upload)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Image uploaded successfully.",
		"imageUrl": url,
	})
}

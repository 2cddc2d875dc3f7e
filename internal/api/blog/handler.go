package blog

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"

	"ngeblog/internal/api/middleware"
	"ngeblog/internal/model"
	"ngeblog/internal/pkg/apperr"
	"ngeblog/internal/pkg/storage"

	"github.com/gin-gonic/gin"
)

// Handler 博客 HTTP 接口。
type Handler struct {
	svc *Service
}

// NewHandler 创建 Blog Handler。
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册 /api/blogs 路由，浏览类接口公开，写操作需要登录。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.GET("", h.List)
	rg.GET("/popular-blogs", h.Popular)
	rg.GET("/categories", h.Categories)
	rg.GET("/view-blog-image/:id", h.Image)

	private := rg.Group("", authMW)
	private.POST("", h.Create)
	private.GET("/liked-blogs", h.LikedBlogs)
	private.POST("/like/:blogId", h.ToggleLike)
	private.GET("/saved-blogs", h.SavedBlogs)
	private.POST("/save/:blogId", h.ToggleSave)
	private.PATCH("/archive/:id", h.Archive)
	private.PATCH("/publish/:id", h.Publish)
	private.PATCH("/delete/:id", h.Delete)
}

type popularQuery struct {
	CategoryID uint `form:"category_id"`
	Limit      int  `form:"limit"`
}

// blogRef 列表中只返回 id 的博客引用。
type blogRef struct {
	ID uint `json:"id"`
}

func refs(ids []uint) []blogRef {
	out := make([]blogRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, blogRef{ID: id})
	}
	return out
}

func (h *Handler) List(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.Abort(c, apperr.Validation("Invalid query parameters"))
		return
	}
	page, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"type":           "success",
		"message":        "Blogs fetched",
		"total_elements": page.TotalElements,
		"blog_per_page":  page.BlogPerPage,
		"current_page":   page.CurrentPage,
		"next_page":      page.NextPage,
		"total_pages":    page.TotalPages,
		"data":           page.Data,
	})
}

func (h *Handler) Popular(c *gin.Context) {
	var q popularQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.Abort(c, apperr.Validation("Invalid query parameters"))
		return
	}
	blogs, err := h.svc.Popular(c.Request.Context(), q.CategoryID, q.Limit)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"type":    "success",
		"message": "Popular blogs fetched",
		"blogs":   blogs,
	})
}

func (h *Handler) Categories(c *gin.Context) {
	categories, err := h.svc.Categories(c.Request.Context())
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": "success", "categories": categories})
}

// Create 接受 multipart（data 为 JSON 文本，file 或 data 文件部分为配图）或纯 JSON 请求体。
func (h *Handler) Create(c *gin.Context) {
	var in CreateInput
	var upload *storage.Upload

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := json.Unmarshal([]byte(c.PostForm("data")), &in); err != nil {
			middleware.Abort(c, apperr.Validation("Invalid request body"))
			return
		}
		fh := formImage(c)
		if fh != nil {
			u, closer, err := storage.FromFileHeader(fh)
			if err != nil {
				middleware.Abort(c, apperr.Internal(err))
				return
			}
			defer closer.Close()
			upload = u
		}
	} else if err := c.ShouldBindJSON(&in); err != nil {
		middleware.Abort(c, apperr.Validation("Invalid request body"))
		return
	}

	blog, err := h.svc.Create(c.Request.Context(), middleware.UserID(c), in, upload)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"type":    "success",
		"message": "Blog created",
		"data":    blog,
	})
}

// formImage 依次查找 file 与 data 文件字段。
func formImage(c *gin.Context) *multipart.FileHeader {
	for _, name := range []string{"file", "data"} {
		fh, err := c.FormFile(name)
		if err == nil {
			return fh
		}
	}
	return nil
}

func (h *Handler) ToggleLike(c *gin.Context) {
	blogID, ok := pathID(c, "blogId")
	if !ok {
		return
	}
	liked, like, err := h.svc.ToggleLike(c.Request.Context(), middleware.UserID(c), blogID)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	if !liked {
		c.JSON(http.StatusOK, gin.H{"type": "success", "message": "Blog unliked"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": "success", "message": "Blog liked", "like": like})
}

func (h *Handler) ToggleSave(c *gin.Context) {
	blogID, ok := pathID(c, "blogId")
	if !ok {
		return
	}
	saved, save, err := h.svc.ToggleSave(c.Request.Context(), middleware.UserID(c), blogID)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	if !saved {
		c.JSON(http.StatusOK, gin.H{"type": "success", "message": "Blog unsaved"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": "success", "message": "Blog saved", "save": save})
}

func (h *Handler) LikedBlogs(c *gin.Context) {
	ids, err := h.svc.LikedBlogs(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": "success", "likedBlogs": refs(ids)})
}

func (h *Handler) SavedBlogs(c *gin.Context) {
	ids, err := h.svc.SavedBlogs(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": "success", "savedBlogs": refs(ids)})
}

func (h *Handler) Archive(c *gin.Context) {
	h.changeStatus(c, h.svc.Archive, "Blog archived")
}

func (h *Handler) Publish(c *gin.Context) {
	h.changeStatus(c, h.svc.Publish, "Blog published")
}

func (h *Handler) Delete(c *gin.Context) {
	h.changeStatus(c, h.svc.Delete, "Blog deleted")
}

type statusOp func(ctx context.Context, userID, blogID uint) (*model.Blog, error)

func (h *Handler) changeStatus(c *gin.Context, op statusOp, message string) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	blog, err := op(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": "success", "message": message, "blog": blog})
}

// Image 响应体为 JSON 字符串形式的图片 URL。
func (h *Handler) Image(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	url, err := h.svc.Image(c.Request.Context(), id)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, url)
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := parseID(c.Param(name))
	if err != nil {
		middleware.Abort(c, err)
		return 0, false
	}
	return id, true
}

package blog

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"ngeblog/internal/model"
	"ngeblog/internal/pkg/apperr"
	"ngeblog/internal/pkg/metrics"
	"ngeblog/internal/pkg/storage"
	"ngeblog/internal/store"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100

	imagePrefix = "blogs"
)

// ListQuery 列表查询参数。
type ListQuery struct {
	Page       int  `form:"page"`
	Limit      int  `form:"limit"`
	CategoryID uint `form:"category_id"`
}

// Page 分页结果。NextPage 在最后一页为 nil。
type Page struct {
	TotalElements int64                `json:"total_elements"`
	BlogPerPage   int                  `json:"blog_per_page"`
	CurrentPage   int                  `json:"current_page"`
	NextPage      *int                 `json:"next_page"`
	TotalPages    int                  `json:"total_pages"`
	Data          []model.BlogListItem `json:"data"`
}

// normalize 补齐默认页码与每页数量。
func (q ListQuery) normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return q
}

// offset 当前页第一条记录的偏移。
func (q ListQuery) offset() int {
	return (q.Page - 1) * q.Limit
}

// paginate 计算总页数与下一页，最后一页及之后 next 为 nil。
func paginate(page, limit int, total int64) (pages int, next *int) {
	pages = int((total + int64(limit) - 1) / int64(limit))
	if page < pages {
		n := page + 1
		next = &n
	}
	return pages, next
}

// Service 博客的发布、浏览与互动。
type Service struct {
	blogs  store.BlogRepository
	images storage.ImageStore
	logger *slog.Logger
}

// NewService 创建博客服务。images 为 nil 时创建博客不支持配图。
func NewService(blogs store.BlogRepository, images storage.ImageStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{blogs: blogs, images: images, logger: logger}
}

// List 分页返回已发布的博客，可按分类过滤。
func (s *Service) List(ctx context.Context, q ListQuery) (*Page, error) {
	q = q.normalize()
	items, total, err := s.blogs.List(ctx, store.BlogFilter{
		CategoryID: q.CategoryID,
		Offset:     q.offset(),
		Limit:      q.Limit,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	pages, next := paginate(q.Page, q.Limit, total)
	return &Page{
		TotalElements: total,
		BlogPerPage:   q.Limit,
		CurrentPage:   q.Page,
		NextPage:      next,
		TotalPages:    pages,
		Data:          items,
	}, nil
}

// Popular 按点赞数倒序返回已发布的博客。
func (s *Service) Popular(ctx context.Context, categoryID uint, limit int) ([]model.BlogListItem, error) {
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	items, err := s.blogs.Popular(ctx, categoryID, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return items, nil
}

func (s *Service) Categories(ctx context.Context) ([]model.Category, error) {
	categories, err := s.blogs.Categories(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return categories, nil
}

// Create 创建已发布的博客，upload 可为 nil。
func (s *Service) Create(ctx context.Context, userID uint, in CreateInput, upload *storage.Upload) (*model.Blog, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	if err := in.validate(); err != nil {
		return nil, err
	}

	exists, err := s.blogs.CategoryExists(ctx, uint(in.CategoryID))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !exists {
		return nil, apperr.Validation("Category not found")
	}

	blog := &model.Blog{
		UserID:     userID,
		Title:      in.Title,
		Content:    in.Content,
		CategoryID: uint(in.CategoryID),
		Status:     model.BlogPublished,
	}
	if upload != nil {
		url, err := storage.Save(ctx, s.images, imagePrefix, upload)
		if err != nil {
			return nil, storage.AsAppError(err)
		}
		blog.BlogImg = url
	}

	if err := s.blogs.Create(ctx, blog); err != nil {
		s.discard(ctx, blog.BlogImg)
		return nil, apperr.Internal(err)
	}

	s.event("create")
	s.logger.Info("blog created",
		slog.Uint64("blog_id", uint64(blog.ID)),
		slog.Uint64("user_id", uint64(userID)))
	return blog, nil
}

// ToggleLike 点赞或取消点赞，返回操作后是否处于点赞状态。
func (s *Service) ToggleLike(ctx context.Context, userID, blogID uint) (bool, *model.Like, error) {
	if _, err := s.visible(ctx, blogID); err != nil {
		return false, nil, err
	}
	liked, like, err := s.blogs.ToggleLike(ctx, blogID, userID)
	if err != nil {
		return false, nil, apperr.Internal(err)
	}
	if liked {
		s.event("like")
	} else {
		s.event("unlike")
	}
	return liked, like, nil
}

// ToggleSave 收藏或取消收藏，返回操作后是否处于收藏状态。
func (s *Service) ToggleSave(ctx context.Context, userID, blogID uint) (bool, *model.Save, error) {
	if _, err := s.visible(ctx, blogID); err != nil {
		return false, nil, err
	}
	saved, save, err := s.blogs.ToggleSave(ctx, blogID, userID)
	if err != nil {
		return false, nil, apperr.Internal(err)
	}
	if saved {
		s.event("save")
	} else {
		s.event("unsave")
	}
	return saved, save, nil
}

func (s *Service) LikedBlogs(ctx context.Context, userID uint) ([]uint, error) {
	ids, err := s.blogs.LikedBlogIDs(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return ids, nil
}

func (s *Service) SavedBlogs(ctx context.Context, userID uint) ([]uint, error) {
	ids, err := s.blogs.SavedBlogIDs(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return ids, nil
}

// Archive 作者将博客下线。
func (s *Service) Archive(ctx context.Context, userID, blogID uint) (*model.Blog, error) {
	return s.setStatus(ctx, userID, blogID, model.BlogArchived, "archive")
}

// Publish 作者重新发布博客。
func (s *Service) Publish(ctx context.Context, userID, blogID uint) (*model.Blog, error) {
	return s.setStatus(ctx, userID, blogID, model.BlogPublished, "publish")
}

// Delete 软删除博客并移除配图。删除为终态。
func (s *Service) Delete(ctx context.Context, userID, blogID uint) (*model.Blog, error) {
	blog, err := s.owned(ctx, userID, blogID)
	if err != nil {
		return nil, err
	}

	img := blog.BlogImg
	if err := s.blogs.Update(ctx, blog.ID, map[string]interface{}{
		"status":   model.BlogDeleted,
		"blog_img": "",
	}); err != nil {
		return nil, apperr.Internal(err)
	}
	blog.Status = model.BlogDeleted
	blog.BlogImg = ""

	s.discard(ctx, img)
	s.event("delete")
	return blog, nil
}

// Image 返回博客配图 URL，没有配图时为空字符串。
func (s *Service) Image(ctx context.Context, blogID uint) (string, error) {
	blog, err := s.visible(ctx, blogID)
	if err != nil {
		return "", err
	}
	return blog.BlogImg, nil
}

func (s *Service) setStatus(ctx context.Context, userID, blogID uint, status model.BlogStatus, event string) (*model.Blog, error) {
	blog, err := s.owned(ctx, userID, blogID)
	if err != nil {
		return nil, err
	}
	if blog.Status != status {
		if err := s.blogs.Update(ctx, blog.ID, map[string]interface{}{"status": status}); err != nil {
			return nil, apperr.Internal(err)
		}
		blog.Status = status
	}
	s.event(event)
	return blog, nil
}

// owned 查找当前用户自己的未删除博客。
func (s *Service) owned(ctx context.Context, userID, blogID uint) (*model.Blog, error) {
	blog, err := s.blogs.FindOwned(ctx, blogID, userID)
	return checkFound(blog, err)
}

// visible 查找未删除的博客。
func (s *Service) visible(ctx context.Context, blogID uint) (*model.Blog, error) {
	blog, err := s.blogs.FindByID(ctx, blogID)
	return checkFound(blog, err)
}

func checkFound(blog *model.Blog, err error) (*model.Blog, error) {
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errBlogNotFound()
		}
		return nil, apperr.Internal(err)
	}
	if blog.Status == model.BlogDeleted {
		return nil, errBlogNotFound()
	}
	return blog, nil
}

func (s *Service) discard(ctx context.Context, url string) {
	if url == "" || s.images == nil {
		return
	}
	if err := s.images.Delete(ctx, url); err != nil {
		s.logger.Warn("delete blog image failed",
			slog.String("url", url),
			slog.String("error", err.Error()))
	}
}

func (s *Service) event(name string) {
	metrics.BlogEventsTotal.WithLabelValues(name).Inc()
}

func errBlogNotFound() error {
	return apperr.NotFound("Blog not found")
}

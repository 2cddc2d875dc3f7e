package store

import (
	"context"
	"errors"

	"ngeblog/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlogFilter 列表查询条件。
type BlogFilter struct {
	CategoryID uint
	Offset     int
	Limit      int
}

// BlogRepository 博客、分类、点赞与收藏的持久化接口。
type BlogRepository interface {
	List(ctx context.Context, filter BlogFilter) ([]model.BlogListItem, int64, error)
	Popular(ctx context.Context, categoryID uint, limit int) ([]model.BlogListItem, error)
	Create(ctx context.Context, blog *model.Blog) error
	FindByID(ctx context.Context, id uint) (*model.Blog, error)
	FindOwned(ctx context.Context, id uint, userID uint) (*model.Blog, error)
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	// ToggleLike 已点赞则取消，否则点赞；返回操作后的状态与新建的记录。
	ToggleLike(ctx context.Context, blogID uint, userID uint) (bool, *model.Like, error)
	ToggleSave(ctx context.Context, blogID uint, userID uint) (bool, *model.Save, error)
	LikedBlogIDs(ctx context.Context, userID uint) ([]uint, error)
	SavedBlogIDs(ctx context.Context, userID uint) ([]uint, error)
	Categories(ctx context.Context) ([]model.Category, error)
	CategoryExists(ctx context.Context, id uint) (bool, error)
	EnsureCategories(ctx context.Context, names []string) error
}

// GormBlogRepository 基于 GORM 的 BlogRepository 实现。
type GormBlogRepository struct {
	db *gorm.DB
}

// NewBlogRepository 创建博客仓储。
func NewBlogRepository(db *gorm.DB) *GormBlogRepository {
	return &GormBlogRepository{db: db}
}

// blogRow 是带聚合列的扫描结构。
type blogRow struct {
	model.Blog
	TotalLikes       int64
	AuthorUsername   string
	AuthorProfileImg string
}

const listColumns = "blogs.*, " +
	"(SELECT COUNT(*) FROM likes WHERE likes.blog_id = blogs.id) AS total_likes, " +
	"users.username AS author_username, " +
	"COALESCE(profiles.profile_img, '') AS author_profile_img"

func (r *GormBlogRepository) published(ctx context.Context, categoryID uint) *gorm.DB {
	q := r.db.WithContext(ctx).Table("blogs").Where("blogs.status = ?", model.BlogPublished)
	if categoryID > 0 {
		q = q.Where("blogs.category_id = ?", categoryID)
	}
	return q
}

func (r *GormBlogRepository) withAuthor(q *gorm.DB) *gorm.DB {
	return q.Select(listColumns).
		Joins("JOIN users ON users.id = blogs.user_id").
		Joins("LEFT JOIN profiles ON profiles.user_id = blogs.user_id")
}

func (r *GormBlogRepository) List(ctx context.Context, filter BlogFilter) ([]model.BlogListItem, int64, error) {
	var total int64
	if err := r.published(ctx, filter.CategoryID).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var rows []blogRow
	err := r.withAuthor(r.published(ctx, filter.CategoryID)).
		Order("blogs.created_at DESC").
		Order("blogs.id DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, translate(err)
	}
	return toListItems(rows), total, nil
}

func (r *GormBlogRepository) Popular(ctx context.Context, categoryID uint, limit int) ([]model.BlogListItem, error) {
	var rows []blogRow
	q := r.withAuthor(r.published(ctx, categoryID)).
		Order("total_likes DESC").
		Order("blogs.id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return toListItems(rows), nil
}

func toListItems(rows []blogRow) []model.BlogListItem {
	items := make([]model.BlogListItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, model.BlogListItem{
			Blog:       row.Blog,
			TotalLikes: row.TotalLikes,
			User: model.BlogAuthor{
				Username:   row.AuthorUsername,
				ProfileImg: row.AuthorProfileImg,
			},
		})
	}
	return items
}

func (r *GormBlogRepository) Create(ctx context.Context, blog *model.Blog) error {
	return translate(r.db.WithContext(ctx).Create(blog).Error)
}

func (r *GormBlogRepository) FindByID(ctx context.Context, id uint) (*model.Blog, error) {
	var blog model.Blog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&blog).Error; err != nil {
		return nil, translate(err)
	}
	return &blog, nil
}

func (r *GormBlogRepository) FindOwned(ctx context.Context, id uint, userID uint) (*model.Blog, error) {
	var blog model.Blog
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&blog).Error; err != nil {
		return nil, translate(err)
	}
	return &blog, nil
}

func (r *GormBlogRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Model(&model.Blog{}).Where("id = ?", id).Updates(fields).Error)
}

func (r *GormBlogRepository) ToggleLike(ctx context.Context, blogID uint, userID uint) (bool, *model.Like, error) {
	return toggle(ctx, r.db, blogID, userID, func() *model.Like {
		return &model.Like{BlogID: blogID, UserID: userID}
	})
}

func (r *GormBlogRepository) ToggleSave(ctx context.Context, blogID uint, userID uint) (bool, *model.Save, error) {
	return toggle(ctx, r.db, blogID, userID, func() *model.Save {
		return &model.Save{BlogID: blogID, UserID: userID}
	})
}

// toggle 在事务内执行存在则删除、不存在则插入。
// 并发插入撞上唯一约束时视为已处于激活状态；死锁时整体重试一次。
func toggle[T any](ctx context.Context, db *gorm.DB, blogID uint, userID uint, build func() *T) (bool, *T, error) {
	active, created, err := toggleOnce(ctx, db, blogID, userID, build)
	if isMySQLError(err, mysqlDeadlock) {
		active, created, err = toggleOnce(ctx, db, blogID, userID, build)
	}
	if err != nil {
		return false, nil, translate(err)
	}
	return active, created, nil
}

func toggleOnce[T any](ctx context.Context, db *gorm.DB, blogID uint, userID uint, build func() *T) (bool, *T, error) {
	var (
		active  bool
		created *T
	)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing := new(T)
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("blog_id = ? AND user_id = ?", blogID, userID).
			First(existing).Error
		switch {
		case err == nil:
			active = false
			return tx.Where("blog_id = ? AND user_id = ?", blogID, userID).Delete(new(T)).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			row := build()
			if err := tx.Create(row).Error; err != nil {
				if !isMySQLError(err, mysqlDuplicateEntry) {
					return err
				}
				row = new(T)
				if err := tx.Where("blog_id = ? AND user_id = ?", blogID, userID).First(row).Error; err != nil {
					return err
				}
			}
			active = true
			created = row
			return nil
		default:
			return err
		}
	})
	return active, created, err
}

func (r *GormBlogRepository) LikedBlogIDs(ctx context.Context, userID uint) ([]uint, error) {
	return r.blogIDs(ctx, "likes", userID)
}

func (r *GormBlogRepository) SavedBlogIDs(ctx context.Context, userID uint) ([]uint, error) {
	return r.blogIDs(ctx, "saves", userID)
}

func (r *GormBlogRepository) blogIDs(ctx context.Context, table string, userID uint) ([]uint, error) {
	ids := make([]uint, 0)
	err := r.db.WithContext(ctx).Table(table).
		Joins("JOIN blogs ON blogs.id = "+table+".blog_id").
		Where(table+".user_id = ? AND blogs.status <> ?", userID, model.BlogDeleted).
		Order(table + ".id").
		Pluck(table+".blog_id", &ids).Error
	if err != nil {
		return nil, translate(err)
	}
	return ids, nil
}

func (r *GormBlogRepository) Categories(ctx context.Context) ([]model.Category, error) {
	categories := make([]model.Category, 0)
	if err := r.db.WithContext(ctx).Order("id").Find(&categories).Error; err != nil {
		return nil, translate(err)
	}
	return categories, nil
}

func (r *GormBlogRepository) CategoryExists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Category{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

func (r *GormBlogRepository) EnsureCategories(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	rows := make([]model.Category, 0, len(names))
	for _, name := range names {
		rows = append(rows, model.Category{Category: name})
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	return translate(err)
}

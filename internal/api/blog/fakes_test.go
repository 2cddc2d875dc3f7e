package blog

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"ngeblog/internal/model"
	"ngeblog/internal/store"
)

type pair struct{ blogID, userID uint }

// memBlogs 内存版 BlogRepository。
type memBlogs struct {
	mu         sync.Mutex
	nextID     uint
	nextRef    uint
	blogs      map[uint]*model.Blog
	likes      map[pair]*model.Like
	saves      map[pair]*model.Save
	categories []model.Category
}

func newMemBlogs(categories ...string) *memBlogs {
	m := &memBlogs{
		blogs: map[uint]*model.Blog{},
		likes: map[pair]*model.Like{},
		saves: map[pair]*model.Save{},
	}
	_ = m.EnsureCategories(context.Background(), categories)
	return m
}

var baseTime = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

func (m *memBlogs) item(b *model.Blog) model.BlogListItem {
	var likes int64
	for k := range m.likes {
		if k.blogID == b.ID {
			likes++
		}
	}
	return model.BlogListItem{Blog: *b, TotalLikes: likes, User: model.BlogAuthor{Username: "author"}}
}

func (m *memBlogs) published(categoryID uint) []model.BlogListItem {
	items := make([]model.BlogListItem, 0)
	for _, b := range m.blogs {
		if b.Status != model.BlogPublished {
			continue
		}
		if categoryID > 0 && b.CategoryID != categoryID {
			continue
		}
		items = append(items, m.item(b))
	}
	return items
}

func (m *memBlogs) List(_ context.Context, f store.BlogFilter) ([]model.BlogListItem, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.published(f.CategoryID)
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	total := int64(len(items))
	if f.Offset >= len(items) {
		return []model.BlogListItem{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[f.Offset:end], total, nil
}

func (m *memBlogs) Popular(_ context.Context, categoryID uint, limit int) ([]model.BlogListItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.published(categoryID)
	sort.Slice(items, func(i, j int) bool {
		if items[i].TotalLikes != items[j].TotalLikes {
			return items[i].TotalLikes > items[j].TotalLikes
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memBlogs) Create(_ context.Context, blog *model.Blog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	blog.ID = m.nextID
	blog.CreatedAt = baseTime.Add(time.Duration(blog.ID) * time.Second)
	blog.UpdatedAt = blog.CreatedAt
	cp := *blog
	m.blogs[blog.ID] = &cp
	return nil
}

func (m *memBlogs) FindByID(_ context.Context, id uint) (*model.Blog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blogs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBlogs) FindOwned(ctx context.Context, id uint, userID uint) (*model.Blog, error) {
	b, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, store.ErrNotFound
	}
	return b, nil
}

func (m *memBlogs) Update(_ context.Context, id uint, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blogs[id]
	if !ok {
		return store.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "status":
			b.Status = v.(model.BlogStatus)
		case "blog_img":
			b.BlogImg = v.(string)
		}
	}
	return nil
}

func (m *memBlogs) ToggleLike(_ context.Context, blogID uint, userID uint) (bool, *model.Like, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pair{blogID, userID}
	if _, ok := m.likes[k]; ok {
		delete(m.likes, k)
		return false, nil, nil
	}
	m.nextRef++
	like := &model.Like{ID: m.nextRef, BlogID: blogID, UserID: userID, CreatedAt: baseTime}
	m.likes[k] = like
	return true, like, nil
}

func (m *memBlogs) ToggleSave(_ context.Context, blogID uint, userID uint) (bool, *model.Save, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pair{blogID, userID}
	if _, ok := m.saves[k]; ok {
		delete(m.saves, k)
		return false, nil, nil
	}
	m.nextRef++
	save := &model.Save{ID: m.nextRef, BlogID: blogID, UserID: userID, CreatedAt: baseTime}
	m.saves[k] = save
	return true, save, nil
}

func (m *memBlogs) ids(keys []pair, userID uint) []uint {
	ids := make([]uint, 0)
	for _, k := range keys {
		if k.userID != userID {
			continue
		}
		if b, ok := m.blogs[k.blogID]; ok && b.Status != model.BlogDeleted {
			ids = append(ids, k.blogID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *memBlogs) LikedBlogIDs(_ context.Context, userID uint) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]pair, 0, len(m.likes))
	for k := range m.likes {
		keys = append(keys, k)
	}
	return m.ids(keys, userID), nil
}

func (m *memBlogs) SavedBlogIDs(_ context.Context, userID uint) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]pair, 0, len(m.saves))
	for k := range m.saves {
		keys = append(keys, k)
	}
	return m.ids(keys, userID), nil
}

func (m *memBlogs) Categories(context.Context) ([]model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Category(nil), m.categories...), nil
}

func (m *memBlogs) CategoryExists(_ context.Context, id uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *memBlogs) EnsureCategories(_ context.Context, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
outer:
	for _, name := range names {
		for _, c := range m.categories {
			if c.Category == name {
				continue outer
			}
		}
		m.categories = append(m.categories, model.Category{ID: uint(len(m.categories) + 1), Category: name})
	}
	return nil
}

func (m *memBlogs) get(id uint) model.Blog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.blogs[id]
}

// memImages 记录上传与删除的图片存储。
type memImages struct {
	mu      sync.Mutex
	n       int
	deleted []string
}

func (m *memImages) Put(_ context.Context, prefix, filename, _ string, body io.Reader, _ int64) (string, error) {
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	return "https://img.example.com/" + prefix + "/" + filename + "?v=" + string(rune('0'+m.n)), nil
}

func (m *memImages) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, url)
	return nil
}

// stubUsers 满足 middleware.UserLoader。
type stubUsers map[uint]*model.User

func (s stubUsers) FindByID(_ context.Context, id uint) (*model.User, error) {
	u, ok := s[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

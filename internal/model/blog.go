package model

import "time"

// BlogStatus 博客状态。
type BlogStatus int

const (
	BlogArchived  BlogStatus = 0
	BlogPublished BlogStatus = 1
	BlogDeleted   BlogStatus = 2
)

// Blog 表示一篇博客文章。
type Blog struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"not null;index" json:"userId"`
	Title      string     `gorm:"type:varchar(255);not null" json:"title"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	CategoryID uint       `gorm:"not null;index" json:"categoryId"`
	Status     BlogStatus `gorm:"default:1" json:"status"`
	BlogImg    string     `gorm:"type:varchar(512)" json:"blogImg"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Category 博客分类。
type Category struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Category string `gorm:"type:varchar(64);uniqueIndex" json:"category"`
}

// Like 用户对博客的点赞，(blog_id, user_id) 唯一。
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BlogID    uint      `gorm:"not null" json:"blogId"`
	UserID    uint      `gorm:"not null" json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Save 用户收藏的博客，(blog_id, user_id) 唯一。
type Save struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BlogID    uint      `gorm:"not null" json:"blogId"`
	UserID    uint      `gorm:"not null" json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// BlogAuthor 列表中附带的作者信息。
type BlogAuthor struct {
	Username   string `json:"username"`
	ProfileImg string `json:"profileImg"`
}

// BlogListItem 博客列表行：博客本身、点赞数与作者。
type BlogListItem struct {
	Blog
	TotalLikes int64      `json:"totalLikes"`
	User       BlogAuthor `json:"user"`
}

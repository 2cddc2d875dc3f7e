package api

import (
	"context"
	"fmt"
	"log/slog"
)

// SeedCategories 确保配置中的博客分类存在，已存在的分类保持不变。
func (s *Server) SeedCategories(ctx context.Context) error {
	if len(s.cfg.App.Categories) == 0 {
		return nil
	}
	if err := s.blogs.EnsureCategories(ctx, s.cfg.App.Categories); err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	s.logger.Info("blog categories ready", slog.Int("count", len(s.cfg.App.Categories)))
	return nil
}

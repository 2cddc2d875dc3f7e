package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ngeblog:dedup:mail:"

// Deduplicator 记录已发送的邮件 ID，避免消息被重复投递时重复发信。
type Deduplicator struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDeduplicator 创建去重器，ttl 为记录保留时间。
func NewDeduplicator(rdb *redis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Deduplicator{
		rdb: rdb,
		ttl: ttl,
	}
}

// Sent 判断 mailID 是否已经发送成功。
func (d *Deduplicator) Sent(ctx context.Context, mailID string) (bool, error) {
	if d == nil || d.rdb == nil || mailID == "" {
		return false, nil
	}
	n, err := d.rdb.Exists(ctx, keyPrefix+mailID).Result()
	if err != nil {
		return false, fmt.Errorf("dedup exists: %w", err)
	}
	return n > 0, nil
}

// MarkSent 记录 mailID 已发送，只能在 SMTP 发送成功后调用。
func (d *Deduplicator) MarkSent(ctx context.Context, mailID string) error {
	if d == nil || d.rdb == nil || mailID == "" {
		return nil
	}
	if err := d.rdb.Set(ctx, keyPrefix+mailID, "1", d.ttl).Err(); err != nil {
		return fmt.Errorf("dedup set: %w", err)
	}
	return nil
}

package mailer

import (
	"log/slog"
	"math"
	"time"

	"ngeblog/internal/config"
	"ngeblog/internal/pkg/dedup"
	"ngeblog/internal/pkg/notify"
	"ngeblog/internal/pkg/queue"
	"ngeblog/internal/pkg/ratelimit"
	"ngeblog/internal/pkg/taskqueue"

	"github.com/redis/go-redis/v9"
)

// NewFromConfig 按配置组装邮件 worker。consumerID 为空时自动生成。
func NewFromConfig(rdb *redis.Client, cfg *config.Config, logger *slog.Logger, consumerID string) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mq := cfg.MailQueue

	consumer, err := taskqueue.NewConsumer(rdb, logger, mq.Stream, mq.Group, consumerID,
		taskqueue.WithMaxRetry(mq.MaxRetry))
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithLogger(logger),
		WithDeduplicator(dedup.NewDeduplicator(rdb, time.Duration(mq.DedupWindow)*time.Second)),
	}
	if mq.SendRate > 0 {
		// 桶容量至少为 1，否则限流器视为关闭
		burst := math.Max(1, mq.SendRate)
		opts = append(opts, WithRateLimiter(ratelimit.NewRedisRateLimiter(rdb, logger, "smtp", mq.SendRate, burst)))
	}

	pool := queue.NewPool(logger, mq.Workers, mq.Capacity)
	sender := notify.NewEmailNotifier(&cfg.Email, logger)
	return NewWorker(consumer, pool, sender, opts...), nil
}

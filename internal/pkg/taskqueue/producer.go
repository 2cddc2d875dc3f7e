package taskqueue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Producer 邮件生产者，由 API 服务使用，将待发送邮件写入 Redis Streams。
type Producer struct {
	queue  *TaskQueue
	logger *slog.Logger
}

// NewProducer 创建一个新的生产者。
//
// 参数:
//   - rdb: Redis 客户端
//   - logger: 日志记录器
//   - streamName: Stream 名称（可选，默认为 DefaultStream）
//
// 返回值:
//   - *Producer: 生产者实例
func NewProducer(rdb *redis.Client, logger *slog.Logger, streamName ...string) *Producer {
	stream := DefaultStream
	if len(streamName) > 0 && streamName[0] != "" {
		stream = streamName[0]
	}
	q := NewTaskQueue(rdb, logger, stream)
	return &Producer{
		queue:  q,
		logger: q.logger,
	}
}

// SubmitMail 提交一封邮件到队列等待发送。
func (p *Producer) SubmitMail(ctx context.Context, msg *MailMessage) error {
	if msg == nil || msg.To == "" {
		return fmt.Errorf("invalid mail message")
	}

	if err := p.queue.Publish(ctx, msg); err != nil {
		p.logger.Error("submit mail failed",
			slog.String("mail_id", msg.ID),
			slog.String("kind", string(msg.Kind)),
			slog.String("error", err.Error()))
		return err
	}

	p.logger.Info("mail submitted",
		slog.String("mail_id", msg.ID),
		slog.String("kind", string(msg.Kind)))

	return nil
}

// QueueLength 获取当前队列长度。
func (p *Producer) QueueLength(ctx context.Context) (int64, error) {
	return p.queue.StreamInfo(ctx)
}

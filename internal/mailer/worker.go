package mailer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ngeblog/internal/pkg/dedup"
	"ngeblog/internal/pkg/metrics"
	"ngeblog/internal/pkg/notify"
	"ngeblog/internal/pkg/queue"
	"ngeblog/internal/pkg/ratelimit"
	"ngeblog/internal/pkg/taskqueue"
)

// Worker 从邮件 Stream 读取消息并通过 worker 池并发发送。
type Worker struct {
	consumer *taskqueue.Consumer
	pool     *queue.Pool
	sender   notify.Sender
	deduper  *dedup.Deduplicator
	limiter  *ratelimit.RateLimiter
	logger   *slog.Logger

	readBackoff  time.Duration
	drainTimeout time.Duration
}

// Option Worker 可选配置。
type Option func(*Worker)

// WithDeduplicator 启用按邮件 ID 去重。
func WithDeduplicator(d *dedup.Deduplicator) Option {
	return func(w *Worker) { w.deduper = d }
}

// WithRateLimiter 限制 SMTP 发送速率。
func WithRateLimiter(l *ratelimit.RateLimiter) Option {
	return func(w *Worker) { w.limiter = l }
}

// WithLogger 设置日志。
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDrainTimeout 设置停止时等待在途发送的最长时间。
func WithDrainTimeout(d time.Duration) Option {
	return func(w *Worker) { w.drainTimeout = d }
}

// NewWorker 创建邮件 worker。
func NewWorker(consumer *taskqueue.Consumer, pool *queue.Pool, sender notify.Sender, opts ...Option) *Worker {
	w := &Worker{
		consumer:     consumer,
		pool:         pool,
		sender:       sender,
		logger:       slog.Default(),
		readBackoff:  time.Second,
		drainTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run 阻塞运行直到 ctx 取消，返回前等待 worker 池排空。
func (w *Worker) Run(ctx context.Context) error {
	w.pool.Start(ctx)
	w.logger.Info("mail worker started",
		slog.String("group", w.consumer.GroupName()),
		slog.Int("workers", w.pool.Workers()))

	defer func() {
		if err := w.pool.Shutdown(w.drainTimeout); err != nil {
			w.logger.Warn("mail worker drain incomplete", slog.String("error", err.Error()))
		}
		w.logger.Info("mail worker stopped")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := w.consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("read mail stream failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.readBackoff):
			}
			continue
		}

		for _, m := range msgs {
			msg := m
			if err := w.pool.Submit(ctx, func(jobCtx context.Context) error {
				return w.handle(jobCtx, msg)
			}); err != nil {
				// 未提交的消息保持 pending，之后由 XAUTOCLAIM 重新认领
				return nil
			}
		}
	}
}

// handle 发送单条消息：去重、限速、发送、确认或交给失败处理。
// 仅在发送成功后写入去重记录，发送中断的消息被重新认领后仍会再次发送。
func (w *Worker) handle(ctx context.Context, m *taskqueue.MessageWithID) error {
	msg := m.Message
	kind := string(msg.Kind)

	sent, err := w.deduper.Sent(ctx, msg.ID)
	if err != nil {
		w.logger.Warn("dedup check failed", slog.String("mail_id", msg.ID), slog.String("error", err.Error()))
	}
	if sent {
		metrics.MailDuplicateSkippedTotal.Inc()
		w.logger.Info("mail already sent, skip", slog.String("mail_id", msg.ID))
		return w.consumer.Ack(ctx, m.ID)
	}

	if err := w.limiter.Acquire(ctx); err != nil {
		return err
	}

	sendErr := w.sender.SendMail(ctx, msg)
	if sendErr == nil {
		metrics.MailSentTotal.WithLabelValues(kind).Inc()
		if err := w.deduper.MarkSent(context.WithoutCancel(ctx), msg.ID); err != nil {
			w.logger.Warn("dedup mark failed", slog.String("mail_id", msg.ID), slog.String("error", err.Error()))
		}
		return w.consumer.Ack(ctx, m.ID)
	}
	if errors.Is(sendErr, context.Canceled) {
		return sendErr
	}

	action, err := w.consumer.HandleFailure(ctx, m, sendErr)
	metrics.MailFailedTotal.WithLabelValues(kind, string(action)).Inc()
	w.logger.Warn("mail send failed",
		slog.String("mail_id", msg.ID),
		slog.String("kind", kind),
		slog.Int("retry", msg.Retry),
		slog.String("action", string(action)),
		slog.String("error", sendErr.Error()))
	if err != nil {
		w.logger.Error("handle mail failure", slog.String("mail_id", msg.ID), slog.String("error", err.Error()))
	}
	return sendErr
}

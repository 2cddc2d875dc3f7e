package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"ngeblog/internal/pkg/metrics"
)

// Job 表示一次异步执行单元（例如发送一封邮件）。
type Job func(ctx context.Context) error

// ErrorHandler 任务失败回调。
type ErrorHandler func(err error, job Job)

// Pool 固定大小的 worker 池，带有界缓冲队列。
type Pool struct {
	logger       *slog.Logger
	workers      int
	jobs         chan Job
	errorHandler ErrorHandler

	wg     sync.WaitGroup
	closed atomic.Bool
	active atomic.Int64

	stats poolStats
}

type poolStats struct {
	enqueued  atomic.Int64
	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	panics    atomic.Int64
}

// Stats 统计信息快照。
type Stats struct {
	Enqueued  int64
	Processed int64
	Succeeded int64
	Failed    int64
	Dropped   int64 // 队列满被拒绝
	Panics    int64
}

// NewPool 创建 worker 池，workers 与 capacity 至少为 1。
func NewPool(logger *slog.Logger, workers int, capacity int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		logger:  logger,
		workers: workers,
		jobs:    make(chan Job, capacity),
	}
}

// SetErrorHandler 设置失败回调，需在 Start 之前调用。
func (p *Pool) SetErrorHandler(handler ErrorHandler) {
	p.errorHandler = handler
}

// Start 启动全部 worker，直到 ctx 取消或 Shutdown。
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("worker stopped", slog.Int("worker_id", id))
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			metrics.WorkerPoolQueueLength.Set(float64(len(p.jobs)))
			if job != nil {
				p.run(ctx, job, id)
			}
		}
	}
}

func (p *Pool) run(ctx context.Context, job Job, workerID int) {
	metrics.WorkerPoolActive.Set(float64(p.active.Add(1)))
	defer func() {
		metrics.WorkerPoolActive.Set(float64(p.active.Add(-1)))
		if r := recover(); r != nil {
			p.stats.panics.Add(1)
			p.logger.Error("job panic recovered",
				slog.Int("worker_id", workerID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	err := job(ctx)
	p.stats.processed.Add(1)
	if err == nil {
		p.stats.succeeded.Add(1)
		return
	}

	p.stats.failed.Add(1)
	p.logger.Warn("job failed",
		slog.Int("worker_id", workerID),
		slog.String("error", err.Error()))
	if p.errorHandler != nil {
		p.errorHandler(err, job)
	}
}

// TrySubmit 非阻塞提交，队列满或已关闭返回 false。
func (p *Pool) TrySubmit(job Job) bool {
	if job == nil || p.closed.Load() {
		return false
	}
	select {
	case p.jobs <- job:
		p.stats.enqueued.Add(1)
		metrics.WorkerPoolQueueLength.Set(float64(len(p.jobs)))
		return true
	default:
		p.stats.dropped.Add(1)
		p.logger.Warn("pool full, drop job", slog.Int("capacity", cap(p.jobs)))
		return false
	}
}

// Submit 阻塞提交，直到成功或 ctx 取消。
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if p.closed.Load() {
		return fmt.Errorf("pool is closed")
	}
	select {
	case p.jobs <- job:
		p.stats.enqueued.Add(1)
		metrics.WorkerPoolQueueLength.Set(float64(len(p.jobs)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown 拒绝新任务，并等待已入队任务执行完毕，超时返回错误。
func (p *Pool) Shutdown(timeout time.Duration) error {
	if !p.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("pool already closed")
	}
	close(p.jobs)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool drained")
		return nil
	case <-time.After(timeout):
		p.logger.Error("worker pool shutdown timeout", slog.String("timeout", timeout.String()))
		return fmt.Errorf("shutdown timeout after %s", timeout)
	}
}

// Stats 返回统计快照。
func (p *Pool) Stats() Stats {
	return Stats{
		Enqueued:  p.stats.enqueued.Load(),
		Processed: p.stats.processed.Load(),
		Succeeded: p.stats.succeeded.Load(),
		Failed:    p.stats.failed.Load(),
		Dropped:   p.stats.dropped.Load(),
		Panics:    p.stats.panics.Load(),
	}
}

// Len 当前排队中的任务数。
func (p *Pool) Len() int {
	return len(p.jobs)
}

// Workers worker 数量。
func (p *Pool) Workers() int {
	return p.workers
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ngeblog/internal/config"
	"ngeblog/internal/mailer"
	"ngeblog/internal/pkg/logger"
	"ngeblog/internal/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// main 是独立邮件 worker 的入口函数。
//
// 它负责：
// 1. 加载配置
// 2. 初始化日志记录器
// 3. 连接 Redis 并创建邮件 worker
// 4. 启动 Metrics 服务
// 5. 优雅关闭
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	defer rdb.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancelPing()
	if err != nil {
		appLogger.Error("connect redis failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	hostname, _ := os.Hostname()
	worker, err := mailer.NewFromConfig(rdb, cfg, appLogger, hostname)
	if err != nil {
		appLogger.Error("init mail worker failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	metrics.InitMetrics(cfg.MailQueue.Workers)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		defer func() {
			if r := recover(); r != nil {
				// 记录日志后退出，交给容器重启
				appLogger.Error("PANIC in mail worker loop", slog.Any("panic", r))
				os.Exit(1)
			}
		}()

		if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			appLogger.Error("mail worker loop stopped", slog.String("error", err.Error()))
		}
	}()

	metricsServer := &http.Server{
		Addr:              cfg.MailQueue.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		appLogger.Info("mailer metrics server started", slog.String("addr", cfg.MailQueue.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("metrics server stopped with error", slog.String("error", err.Error()))
		}
	}()

	// 等待中断信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	appLogger.Info("received os signal", slog.String("signal", sig.String()))

	appLogger.Info("shutting down mailer...")

	// 1. 停止读取新消息，Run 返回前会等待在途发送完成
	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	select {
	case <-workerDone:
		appLogger.Info("mail worker drained")
	case <-shutdownCtx.Done():
		appLogger.Warn("mail worker drain timed out")
	}

	// 2. 关闭 metrics 服务
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics shutdown error", slog.String("error", err.Error()))
	}

	appLogger.Info("mailer stopped gracefully")
}

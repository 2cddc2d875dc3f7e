package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ngeblog/internal/api/auth"
	"ngeblog/internal/api/blog"
	"ngeblog/internal/api/middleware"
	"ngeblog/internal/api/profile"
	"ngeblog/internal/config"
	"ngeblog/internal/mailer"
	"ngeblog/internal/migrations"
	"ngeblog/internal/pkg/apperr"
	"ngeblog/internal/pkg/metrics"
	"ngeblog/internal/pkg/otp"
	"ngeblog/internal/pkg/ratelimit"
	"ngeblog/internal/pkg/storage"
	"ngeblog/internal/pkg/taskqueue"
	"ngeblog/internal/pkg/token"
	"ngeblog/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
	rdb    *redis.Client
	router *gin.Engine
	blogs  store.BlogRepository

	worker     *mailer.Worker
	workerDone chan struct{}
}

// Deps 是 Server 的外部依赖，仓储与存储均以接口注入。
type Deps struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Users  store.UserRepository
	Blogs  store.BlogRepository
	Images storage.ImageStore // 为 nil 时关闭图片上传
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库，按配置执行迁移
// 2. 连接 Redis
// 3. 初始化图片存储（未配置时关闭上传）
// 4. 组装仓储、服务与路由
// 5. 按配置创建进程内的邮件 worker
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Server, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := openDB(cfg.MySQL.DSN)
	if err != nil {
		return nil, err
	}
	var rdb *redis.Client
	defer func() {
		if err != nil {
			if closeErr := closeClients(db, rdb); closeErr != nil {
				logger.Warn("close connections after init failure", slog.String("error", closeErr.Error()))
			}
		}
	}()

	if cfg.App.AutoMigrate {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if err := migrations.Up(ctx, sqlDB); err != nil {
			return nil, err
		}
	}

	rdb = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	var images storage.ImageStore
	s3Store, err := storage.NewS3Store(ctx, cfg.Storage)
	switch {
	case err == nil:
		images = s3Store
	case errors.Is(err, storage.ErrDisabled):
		logger.Info("image storage disabled, uploads will be rejected")
	default:
		return nil, err
	}

	s := New(cfg, logger, Deps{
		DB:     db,
		Redis:  rdb,
		Users:  store.NewUserRepository(db),
		Blogs:  store.NewBlogRepository(db),
		Images: images,
	})

	if cfg.App.EmbedMailer {
		w, err := mailer.NewFromConfig(rdb, cfg, logger, "")
		if err != nil {
			return nil, err
		}
		s.worker = w
	}
	return s, nil
}

// openDB 便于测试替换连接方式。
var openDB = OpenDB

// OpenDB 打开 MySQL 连接。
func OpenDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// New 用已建立的依赖组装服务与路由。
func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	tokens := token.NewService(cfg.Security.JWTSecret, cfg.App.TokenTTL, cfg.App.BcryptCost)
	otps := otp.NewManager(cfg.App.OTPTTL, tokens)
	producer := taskqueue.NewProducer(deps.Redis, logger, cfg.MailQueue.Stream)
	dispatcher := mailer.NewDispatcher(producer, otps, cfg.App.RedirectURL, logger)

	authSvc := auth.NewService(deps.Users, tokens, otps, dispatcher, logger)
	profileSvc := profile.NewService(deps.Users, deps.Images, logger)
	blogSvc := blog.NewService(deps.Blogs, deps.Images, logger)

	// 初始化 Prometheus 指标
	metrics.InitMetrics(cfg.MailQueue.Workers)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.App.CORSOrigin))
	r.Use(middleware.ErrorHandler(logger))

	s := &Server{
		cfg:    cfg,
		logger: logger,
		db:     deps.DB,
		rdb:    deps.Redis,
		router: r,
		blogs:  deps.Blogs,
	}

	authMW := middleware.AuthMiddleware(tokens, deps.Users)
	var guard []gin.HandlerFunc
	limiter := ratelimit.NewRedisRateLimiter(deps.Redis, logger, "auth", cfg.App.RateLimit, cfg.App.RateBurst)
	if limiter.Enabled() {
		guard = append(guard, middleware.RateLimit(limiter, logger))
	}

	s.registerRoutes(
		auth.NewHandler(authSvc),
		profile.NewHandler(profileSvc),
		blog.NewHandler(blogSvc),
		authMW,
		guard,
	)
	return s
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes(authH *auth.Handler, profileH *profile.Handler, blogH *blog.Handler, authMW gin.HandlerFunc, guard []gin.HandlerFunc) {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	apiGroup := s.router.Group("/api")
	authH.RegisterRoutes(apiGroup.Group("/auth"), authMW, guard...)
	profileH.RegisterRoutes(apiGroup.Group("/user"), authMW)
	blogH.RegisterRoutes(apiGroup.Group("/blogs"), authMW)

	s.router.NoRoute(func(c *gin.Context) {
		middleware.Abort(c, apperr.NotFound("Not Found"))
	})
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// StartMailer 在后台运行进程内邮件 worker，ctx 取消后停止。未启用时直接返回。
func (s *Server) StartMailer(ctx context.Context) {
	if s.worker == nil || s.workerDone != nil {
		return
	}
	done := make(chan struct{})
	s.workerDone = done
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("PANIC in mail worker", slog.Any("panic", r))
			}
		}()
		if err := s.worker.Run(ctx); err != nil {
			s.logger.Error("mail worker stopped", slog.String("error", err.Error()))
		}
	}()
}

// Close 等待邮件 worker 退出后关闭数据库与缓存连接。
func (s *Server) Close() error {
	if s.workerDone != nil {
		select {
		case <-s.workerDone:
		case <-time.After(15 * time.Second):
			s.logger.Warn("mail worker did not stop in time")
		}
	}

	return closeClients(s.db, s.rdb)
}

// closeClients 关闭 Redis 与 MySQL 连接，返回第一个错误。
func closeClients(db *gorm.DB, rdb *redis.Client) error {
	var firstErr error
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "component": "mysql"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "component": "redis"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

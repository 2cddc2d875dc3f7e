package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App       AppConfig       `json:"app"`
	MySQL     MySQLConfig     `json:"mysql"`
	Redis     RedisConfig     `json:"redis"`
	Email     EmailConfig     `json:"email"`
	Security  SecurityConfig  `json:"security"`
	Storage   StorageConfig   `json:"storage"`
	MailQueue MailQueueConfig `json:"mail_queue"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env         string        `json:"env"`          // 运行环境: local / prod
	LogLevel    string        `json:"log_level"`    // 日志级别: debug / info / warn / error
	HTTPAddr    string        `json:"http_addr"`    // API 服务监听地址
	RedirectURL string        `json:"redirect_url"` // 邮件链接的前端地址
	CORSOrigin  string        `json:"cors_origin"`  // 允许的跨域来源，逗号分隔，"*" 表示全部
	OTPTTL      time.Duration `json:"otp_ttl"`      // 验证码有效期（如 "24h"）
	TokenTTL    time.Duration `json:"token_ttl"`    // 登录令牌有效期（如 "24h"）
	BcryptCost  int           `json:"bcrypt_cost"`  // bcrypt 代价
	RateLimit   float64       `json:"rate_limit"`   // 认证接口限流速率（token/s），0 表示关闭
	RateBurst   float64       `json:"rate_burst"`   // 限流桶容量
	EmbedMailer bool          `json:"embed_mailer"` // API 进程内同时运行邮件 worker
	AutoMigrate bool          `json:"auto_migrate"` // 启动时执行数据库迁移
	Categories  []string      `json:"categories"`   // 启动时确保存在的博客分类
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// EmailConfig 邮件发送配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"` // JWT 签名密钥
}

// StorageConfig 图片对象存储（S3 / MinIO）配置，Bucket 为空时关闭上传。
type StorageConfig struct {
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`   // 自定义 endpoint，如 http://127.0.0.1:9000
	Bucket    string `json:"bucket"`     // 存储桶
	AccessKey string `json:"access_key"` // 访问密钥
	SecretKey string `json:"secret_key"`
	PublicURL string `json:"public_url"` // 对外访问前缀，为空时使用 endpoint/bucket
}

// MailQueueConfig 邮件任务队列（Redis Streams）配置。
type MailQueueConfig struct {
	Stream      string  `json:"stream"`       // Stream 名称
	Group       string  `json:"group"`        // Consumer Group 名称
	MaxRetry    int     `json:"max_retry"`    // 进入死信队列前的最大重试次数
	Workers     int     `json:"workers"`      // 发送 worker 数
	Capacity    int     `json:"capacity"`     // worker 池缓冲容量
	DedupWindow int     `json:"dedup_window"` // 已发送消息去重窗口（秒）
	SendRate    float64 `json:"send_rate"`    // SMTP 发送速率（封/s），0 表示不限
	MetricsAddr string  `json:"metrics_addr"` // 独立 mailer 进程的指标地址
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json")
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		if err := applyEnvOverrides(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:         "local",
			LogLevel:    "info",
			HTTPAddr:    ":8000",
			RedirectURL: "http://localhost:3000",
			CORSOrigin:  "*",
			OTPTTL:      24 * time.Hour,
			TokenTTL:    24 * time.Hour,
			BcryptCost:  10,
			RateLimit:   0,
			RateBurst:   0,
			EmbedMailer: true,
			AutoMigrate: true,
			Categories:  []string{"Technology", "Lifestyle", "Travel", "Food", "Business", "Health"},
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/ngeblog?parseTime=true&loc=UTC",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Email: EmailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
		Security: SecurityConfig{
			JWTSecret: "dev_secret_change_me",
		},
		Storage: StorageConfig{
			Region: "us-east-1",
		},
		MailQueue: MailQueueConfig{
			Stream:      "ngeblog:mail:queue",
			Group:       "mailer_group",
			MaxRetry:    3,
			Workers:     4,
			Capacity:    64,
			DedupWindow: 86400,
			SendRate:    0,
			MetricsAddr: ":2112",
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.RedirectURL == "" {
		cfg.App.RedirectURL = defaults.App.RedirectURL
	}
	if cfg.App.CORSOrigin == "" {
		cfg.App.CORSOrigin = defaults.App.CORSOrigin
	}
	if cfg.App.OTPTTL == 0 {
		cfg.App.OTPTTL = defaults.App.OTPTTL
	}
	if cfg.App.TokenTTL == 0 {
		cfg.App.TokenTTL = defaults.App.TokenTTL
	}
	if cfg.App.BcryptCost == 0 {
		cfg.App.BcryptCost = defaults.App.BcryptCost
	}
	if len(cfg.App.Categories) == 0 {
		cfg.App.Categories = defaults.App.Categories
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = defaults.Storage.Region
	}
	if cfg.MailQueue.Stream == "" {
		cfg.MailQueue.Stream = defaults.MailQueue.Stream
	}
	if cfg.MailQueue.Group == "" {
		cfg.MailQueue.Group = defaults.MailQueue.Group
	}
	if cfg.MailQueue.MaxRetry == 0 {
		cfg.MailQueue.MaxRetry = defaults.MailQueue.MaxRetry
	}
	if cfg.MailQueue.Workers == 0 {
		cfg.MailQueue.Workers = defaults.MailQueue.Workers
	}
	if cfg.MailQueue.Capacity == 0 {
		cfg.MailQueue.Capacity = defaults.MailQueue.Capacity
	}
	if cfg.MailQueue.DedupWindow == 0 {
		cfg.MailQueue.DedupWindow = defaults.MailQueue.DedupWindow
	}
	if cfg.MailQueue.MetricsAddr == "" {
		cfg.MailQueue.MetricsAddr = defaults.MailQueue.MetricsAddr
	}
}

// applyEnvOverrides 用环境变量覆盖配置，时长格式错误时返回错误。
func applyEnvOverrides(cfg *Config) error {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("s3_secret_key", "S3_SECRET_KEY")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	} else if v := os.Getenv("PORT"); v != "" {
		cfg.App.HTTPAddr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv("APP_REDIRECT_URL"); v != "" {
		cfg.App.RedirectURL = v
	}
	if v := os.Getenv("APP_CORS_ORIGIN"); v != "" {
		cfg.App.CORSOrigin = v
	}
	if v := os.Getenv("APP_OTP_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid APP_OTP_TTL: %w", err)
		}
		cfg.App.OTPTTL = d
	}
	if v := os.Getenv("APP_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid APP_TOKEN_TTL: %w", err)
		}
		cfg.App.TokenTTL = d
	}
	if v := os.Getenv("APP_BCRYPT_COST"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.BcryptCost = i
		}
	}
	if v := os.Getenv("APP_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateLimit = f
		}
	}
	if v := os.Getenv("APP_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateBurst = f
		}
	}
	if v := os.Getenv("APP_EMBED_MAILER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.App.EmbedMailer = b
		}
	}
	if v := os.Getenv("APP_AUTO_MIGRATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.App.AutoMigrate = b
		}
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = v + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}

	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.Storage.Region = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := viper.GetString("s3_secret_key"); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv("S3_PUBLIC_URL"); v != "" {
		cfg.Storage.PublicURL = v
	}

	if v := os.Getenv("MAIL_STREAM"); v != "" {
		cfg.MailQueue.Stream = v
	}
	if v := os.Getenv("MAIL_GROUP"); v != "" {
		cfg.MailQueue.Group = v
	}
	if v := os.Getenv("MAIL_MAX_RETRY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.MailQueue.MaxRetry = i
		}
	}
	if v := os.Getenv("MAIL_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.MailQueue.Workers = i
		}
	}
	if v := os.Getenv("MAIL_SEND_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MailQueue.SendRate = f
		}
	}
	if v := os.Getenv("MAIL_METRICS_ADDR"); v != "" {
		cfg.MailQueue.MetricsAddr = v
	}
	return nil
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := &mysql.Config{
		User:   "root",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "ngeblog",
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "UTC",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持时间Duration字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		OTPTTL   string `json:"otp_ttl"`
		TokenTTL string `json:"token_ttl"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.OTPTTL != "" {
		duration, err := time.ParseDuration(aux.OTPTTL)
		if err != nil {
			return fmt.Errorf("invalid otp_ttl format: %w", err)
		}
		a.OTPTTL = duration
	}
	if aux.TokenTTL != "" {
		duration, err := time.ParseDuration(aux.TokenTTL)
		if err != nil {
			return fmt.Errorf("invalid token_ttl format: %w", err)
		}
		a.TokenTTL = duration
	}

	return nil
}

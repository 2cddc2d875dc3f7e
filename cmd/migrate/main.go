package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"ngeblog/internal/api"
	"ngeblog/internal/config"
	"ngeblog/internal/migrations"
	"ngeblog/internal/pkg/logger"
)

// main 执行嵌入的数据库迁移。
//
//	migrate up    应用全部未执行的迁移
//	migrate down  回滚最近一次迁移
func main() {
	configPath := flag.String("config", "", "config file path")
	flag.Parse()

	direction := "up"
	if flag.NArg() > 0 {
		direction = flag.Arg(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	appLogger := logger.NewDefault(cfg.App.LogLevel)

	db, err := api.OpenDB(cfg.MySQL.DSN)
	if err != nil {
		appLogger.Error("open database failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		appLogger.Error("get sql db failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch direction {
	case "up":
		err = migrations.Up(ctx, sqlDB)
	case "down":
		err = migrations.Down(ctx, sqlDB)
	default:
		appLogger.Error("unknown direction, expected up or down", slog.String("direction", direction))
		os.Exit(2)
	}
	if err != nil {
		appLogger.Error("migration failed", slog.String("direction", direction), slog.String("error", err.Error()))
		os.Exit(1)
	}
	appLogger.Info("migration finished", slog.String("direction", direction))
}

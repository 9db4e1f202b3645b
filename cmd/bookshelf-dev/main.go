package main

import (
	"context"
	"fmt"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"go.uber.org/zap"

	"bookshelf/internal/app"
	"bookshelf/internal/logging"
	"bookshelf/migrations"
)

const devPassword = "devpassword"

func main() {
	logger, err := logging.New("info", true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(logger); err != nil {
		logger.Fatal("Dev environment failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	ctx := context.Background()

	logger.Info("Starting ClickHouse testcontainer")
	container, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:latest",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(devPassword),
		clickhouse.WithDatabase("default"),
	)
	if err != nil {
		return fmt.Errorf("start ClickHouse container: %w", err)
	}
	defer func() {
		logger.Info("Stopping ClickHouse container")
		if err := container.Terminate(ctx); err != nil {
			logger.Warn("Failed to terminate container", zap.Error(err))
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		return fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "9000/tcp")
	if err != nil {
		return fmt.Errorf("container port: %w", err)
	}
	logger.Info("ClickHouse started", zap.String("host", host), zap.String("port", port.Port()))

	target := migrations.Target{Host: host, Port: port.Int(), Database: "default", User: "default", Password: devPassword}
	db, err := migrations.Open(ctx, target)
	if err != nil {
		return err
	}
	results, err := migrations.Up(ctx, db)
	_ = db.Close()
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("Schema ready", zap.Int("migrations", len(results)))

	env := map[string]string{
		"CLICKHOUSE_HOST":     host,
		"CLICKHOUSE_PORT":     port.Port(),
		"CLICKHOUSE_DATABASE": target.Database,
		"CLICKHOUSE_USER":     target.User,
		"CLICKHOUSE_PASSWORD": devPassword,
		"CLICKHOUSE_USE_TLS":  "false",
		"USE_MOCK_DB":         "false",
	}
	for k, v := range env {
		os.Setenv(k, v)
	}
	setDefault("BOOKSHELF_USER_ID", "dev-user")
	setDefault("LOG_DEVELOPMENT", "true")
	if os.Getenv("BOOKSHELF_DATA_DIR") == "" {
		dir, err := os.MkdirTemp("", "bookshelf-dev-")
		if err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		os.Setenv("BOOKSHELF_DATA_DIR", dir)
	}
	if os.Getenv("TELEGRAM_BOT_TOKEN") == "" {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, running without the Telegram front")
	}

	application, err := app.New()
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return application.Run()
}

func setDefault(key, value string) {
	if os.Getenv(key) == "" {
		os.Setenv(key, value)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ChenBigdata421/jxt-progress/sdk/config"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-progress/sdk/runtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := pflag.StringP("config", "c", "", "配置文件路径（YAML），不指定时只使用默认值和环境变量")
	pflag.Parse()

	if err := config.Setup(*configFile); err != nil {
		return err
	}
	logger.Setup(config.LoggerConfig)
	defer func() { _ = logger.Logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := runtime.New(config.AppConfig, logger.Logger)
	if err != nil {
		logger.Fatalf("初始化失败: %v", err)
	}

	logger.Infof("progress relay starting on %s, cors origin %q, notify enabled %t",
		config.ApplicationConfig.Addr(),
		config.ApplicationConfig.CorsOrigin,
		config.NotifyConfig.Enabled())

	runErr := app.Run(ctx)
	if err := app.Close(); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	if runErr != nil {
		return runErr
	}
	logger.Infof("progress relay stopped")
	return nil
}

package runtime

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/metrics"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/notify"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/session"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/pool"
)

type Runtime interface {
	// GetDirectoryDB 中心目录库
	GetDirectoryDB() *gorm.DB

	// GetTenantPools 租户连接池缓存
	GetTenantPools() *pool.Cache

	// GetSessions 在线会话
	GetSessions() *session.Registry

	// GetPublisher 进度变更通知
	GetPublisher() notify.Publisher

	// GetMetrics 指标
	GetMetrics() *metrics.Collector

	// GetEngine 路由
	GetEngine() http.Handler

	// SetLogger 使用zap
	SetLogger(logger *zap.Logger)
	GetLogger() *zap.Logger

	// Run 启动服务直到 ctx 结束，随后优雅退出
	Run(ctx context.Context) error
	// Close 释放所有资源
	Close() error
}

package pool

import (
	"time"

	"go.uber.org/zap"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ChenBigdata421/jxt-progress/sdk/config"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/database"
)

// DialectorFunc 根据租户凭据生成 gorm dialector
type DialectorFunc func(cfg *database.TenantDatabaseConfig) gorm.Dialector

// MySQLDialector 生产环境使用的 dialector
func MySQLDialector(dialTimeout time.Duration) DialectorFunc {
	return func(cfg *database.TenantDatabaseConfig) gorm.Dialector {
		return gormmysql.Open(cfg.DSN(dialTimeout))
	}
}

// Observer 接收连接池创建和连接租用的通知
type Observer interface {
	PoolCreated(domain string)
	LeaseAcquired(domain string, wait time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) PoolCreated(string)                         {}
func (nopObserver) LeaseAcquired(string, time.Duration, error) {}

// Option Cache 配置项
type Option func(*Cache)

// WithPoolSettings 应用 tenants 配置段的连接池参数
func WithPoolSettings(t *config.Tenants) Option {
	return func(c *Cache) {
		if t == nil {
			return
		}
		c.maxOpenConns = t.GetMaxOpenConns()
		c.maxIdleConns = t.MaxIdleConns
		c.connMaxLifetime = t.ConnMaxLifeTime
		c.connMaxIdleTime = t.ConnMaxIdleTime
		c.leaseTimeout = t.GetLeaseTimeout()
	}
}

// WithDialector 替换 MySQL dialector
func WithDialector(fn DialectorFunc) Option {
	return func(c *Cache) {
		c.dialector = fn
	}
}

// WithLogger 设置 zap 日志器
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l.Named("pool")
		}
	}
}

// WithGormLogger 设置租户 gorm 句柄使用的日志器
func WithGormLogger(l gormlogger.Interface) Option {
	return func(c *Cache) {
		c.gormLogger = l
	}
}

// WithObserver 注册观察者，通常是指标采集器
func WithObserver(o Observer) Option {
	return func(c *Cache) {
		c.observer = o
	}
}

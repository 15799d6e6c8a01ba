package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ChenBigdata421/jxt-progress/sdk/config"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/metrics"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/migration"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/notify"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/progress"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/relay"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/session"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/directory"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/pool"
)

var _ Runtime = (*Application)(nil)

type Application struct {
	mux         sync.RWMutex       //互斥锁
	cfg         *config.Config     //配置
	logger      *zap.Logger        //日志
	directoryDB *gorm.DB           //中心目录库
	pools       *pool.Cache        //租户连接池
	sessions    *session.Registry  //在线会话
	publisher   notify.Publisher   //进度通知
	metrics     *metrics.Collector //指标
	server      *relay.Server      //websocket 与 HTTP 服务

	closeOnce sync.Once
	closeErr  error
}

// Option 构建 Application 时替换默认组件，主要用于测试
type Option func(*options)

type options struct {
	directoryDB *gorm.DB
	dialector   pool.DialectorFunc
	publisher   notify.Publisher
}

// WithDirectoryDB 使用已经打开的目录库，不再按配置连接
func WithDirectoryDB(db *gorm.DB) Option {
	return func(o *options) {
		o.directoryDB = db
	}
}

// WithDialector 替换租户库的 gorm dialector
func WithDialector(fn pool.DialectorFunc) Option {
	return func(o *options) {
		o.dialector = fn
	}
}

// WithPublisher 替换通知发布者
func WithPublisher(p notify.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// New 按配置组装所有组件
func New(cfg *config.Config, log *zap.Logger, opts ...Option) (*Application, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if log == nil {
		log = zap.NewNop()
	}

	e := &Application{cfg: cfg, logger: log}

	gl := gormLogger(cfg.Logger, log)
	e.directoryDB = o.directoryDB
	if e.directoryDB == nil {
		db, err := directory.Open(cfg.Directory, gl)
		if err != nil {
			return nil, err
		}
		e.directoryDB = db
	}
	if len(cfg.Directory.InitSQLFiles) > 0 {
		err := migration.InitDb(e.directoryDB, migration.InitDbConfig{SQLFiles: cfg.Directory.InitSQLFiles, StopOnError: true})
		if err != nil {
			_ = e.closeDirectory()
			return nil, err
		}
	}

	e.metrics = metrics.New()

	poolOpts := []pool.Option{
		pool.WithPoolSettings(cfg.Tenants),
		pool.WithLogger(log),
		pool.WithGormLogger(gl),
		pool.WithObserver(e.metrics),
	}
	if o.dialector != nil {
		poolOpts = append(poolOpts, pool.WithDialector(o.dialector))
	}
	e.pools = pool.New(directory.NewClient(e.directoryDB, log), poolOpts...)

	e.publisher = o.publisher
	if e.publisher == nil {
		publisher, err := notify.New(cfg.Notify, log)
		if err != nil {
			// 通知不是核心功能，连不上 NATS 时降级为不发送
			log.Warn("progress notifications disabled", zap.Error(err))
			publisher = notify.Nop{}
		}
		e.publisher = publisher
	}

	processor := progress.NewProcessor(
		progress.WithClampNegativeDelta(cfg.Tracking.ClampNegativeDelta),
		progress.WithLogger(log))
	e.sessions = session.NewRegistry(e.pools, processor,
		session.WithPublisher(e.publisher),
		session.WithObserver(e.metrics),
		session.WithTracking(cfg.Tracking),
		session.WithLogger(log))

	e.metrics.RegisterGauges(e.pools.Len, e.sessions.Len)

	e.server = relay.NewServer(cfg.Application, cfg.Tracking, e.sessions,
		relay.WithMetrics(e.metrics),
		relay.WithLogger(log))
	return e, nil
}

func gormLogger(cfg *config.Logger, log *zap.Logger) gormlogger.Interface {
	if cfg == nil || !cfg.EnabledDB {
		return gormlogger.Discard
	}
	return logger.NewGormLogger(log, cfg.GormLoggerLevel)
}

// Run 启动服务，ctx 结束后停止接收连接并在 ShutdownGrace 内等待连接退出
func (e *Application) Run(ctx context.Context) error {
	crontab, err := e.startCrontab()
	if err != nil {
		return err
	}
	if crontab != nil {
		defer crontab.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(e.server.Start)
	g.Go(func() error {
		<-gctx.Done()
		grace := e.cfg.Application.ShutdownGrace
		if grace <= 0 {
			grace = 500 * time.Millisecond
		}
		e.GetLogger().Info("shutting down", zap.Duration("grace", grace))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return e.server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("relay server: %w", err)
	}
	return nil
}

// Close 关闭所有会话、租户连接池、通知连接和目录库，可以重复调用
func (e *Application) Close() error {
	e.closeOnce.Do(func() {
		e.sessions.CloseAll()

		var errs []error
		if err := e.pools.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := e.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
		if err := e.closeDirectory(); err != nil {
			errs = append(errs, err)
		}
		e.closeErr = errors.Join(errs...)
		e.GetLogger().Info("resources released")
	})
	return e.closeErr
}

func (e *Application) closeDirectory() error {
	sqlDB, err := e.directoryDB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close directory: %w", err)
	}
	return nil
}

// GetDirectoryDB 中心目录库
func (e *Application) GetDirectoryDB() *gorm.DB {
	return e.directoryDB
}

// GetTenantPools 租户连接池缓存
func (e *Application) GetTenantPools() *pool.Cache {
	return e.pools
}

// GetSessions 在线会话
func (e *Application) GetSessions() *session.Registry {
	return e.sessions
}

// GetPublisher 进度通知
func (e *Application) GetPublisher() notify.Publisher {
	return e.publisher
}

// GetMetrics 指标
func (e *Application) GetMetrics() *metrics.Collector {
	return e.metrics
}

// GetEngine 获取路由引擎
func (e *Application) GetEngine() http.Handler {
	return e.server.Handler()
}

// SetLogger 设置日志组件
func (e *Application) SetLogger(l *zap.Logger) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.logger = l
}

// GetLogger 获取日志组件
func (e *Application) GetLogger() *zap.Logger {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return e.logger
}

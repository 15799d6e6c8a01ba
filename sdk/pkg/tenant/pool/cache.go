// Package pool 按租户 domain 惰性创建并缓存连接池
//
// 某个 domain 的首次 Acquire 经目录查询凭据、打开连接池并登记；
// 同一 domain 的并发首次调用经 singleflight 合并为一次创建，共用同一个池。
// 未知 domain 和查询失败都不缓存。
package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ChenBigdata421/jxt-progress/sdk/config"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/database"
)

var (
	// ErrTenantUnknown 目录中没有该 domain
	ErrTenantUnknown = errors.New("tenant unknown")
	// ErrPoolExhausted 租用超时内没有空闲连接
	ErrPoolExhausted = errors.New("tenant pool exhausted")
	// ErrPoolOpen 租户库打开失败
	ErrPoolOpen = errors.New("tenant pool open failed")
	// ErrCacheClosed Close 之后返回
	ErrCacheClosed = errors.New("tenant pool cache closed")
)

// Resolver 查询 domain 的凭据，不存在时返回 (nil, false, nil)
type Resolver interface {
	Resolve(ctx context.Context, domain string) (*database.TenantDatabaseConfig, bool, error)
}

// Cache 进程生命周期内的 domain → Pool 映射
type Cache struct {
	resolver Resolver

	mu     sync.RWMutex
	pools  map[string]*Pool
	closed bool
	group  singleflight.Group

	dialector       DialectorFunc
	gormLogger      gormlogger.Interface
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	connMaxIdleTime time.Duration
	leaseTimeout    time.Duration

	observer Observer
	log      *zap.Logger
}

// New 创建空缓存
func New(resolver Resolver, opts ...Option) *Cache {
	c := &Cache{
		resolver:     resolver,
		pools:        make(map[string]*Pool),
		dialector:    MySQLDialector(5 * time.Second),
		gormLogger:   gormlogger.Discard,
		maxOpenConns: config.DefaultTenantMaxOpenConns,
		maxIdleConns: config.DefaultTenantMaxOpenConns,
		leaseTimeout: 10 * time.Second,
		observer:     nopObserver{},
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire 从 domain 的连接池租用一个连接，首次使用时创建连接池
func (c *Cache) Acquire(ctx context.Context, domain string) (*Lease, error) {
	p, err := c.poolFor(ctx, domain)
	if err != nil {
		return nil, err
	}
	return c.lease(ctx, p)
}

// Release 归还租用的连接
// 传 nil、重复调用、连接池已关闭时调用都是安全的
func (c *Cache) Release(l *Lease) {
	if l == nil {
		return
	}

	c.mu.RLock()
	p, ok := c.pools[l.Domain()]
	c.mu.RUnlock()
	if !ok || p != l.pool {
		c.log.Debug("release for unregistered pool ignored", zap.String("domain", l.Domain()))
		return
	}

	if err := l.release(); err != nil {
		c.log.Warn("release connection", zap.String("domain", l.Domain()), zap.Error(err))
	}
}

// Pool 返回已登记的连接池
func (c *Cache) Pool(domain string) (*Pool, bool) {
	return c.lookup(domain)
}

// Len 已登记的连接池数量
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pools)
}

// Domains 已登记连接池的 domain，已排序
func (c *Cache) Domains() []string {
	c.mu.RLock()
	domains := make([]string, 0, len(c.pools))
	for domain := range c.pools {
		domains = append(domains, domain)
	}
	c.mu.RUnlock()
	sort.Strings(domains)
	return domains
}

// Close 关闭所有连接池，之后 Acquire 返回 ErrCacheClosed
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pools := c.pools
	c.pools = make(map[string]*Pool)
	c.mu.Unlock()

	var errs []error
	for domain, p := range pools {
		if err := p.close(); err != nil {
			errs = append(errs, fmt.Errorf("close pool %s: %w", domain, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Cache) lookup(domain string) (*Pool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.pools[domain]
	return p, ok
}

func (c *Cache) poolFor(ctx context.Context, domain string) (*Pool, error) {
	if p, ok := c.lookup(domain); ok {
		return p, nil
	}

	v, err, shared := c.group.Do(domain, func() (interface{}, error) {
		// 查找与 Do 之间已完成的创建已经登记了连接池
		if p, ok := c.lookup(domain); ok {
			return p, nil
		}
		return c.create(ctx, domain)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug("joined pool creation", zap.String("domain", domain))
	}
	return v.(*Pool), nil
}

func (c *Cache) create(ctx context.Context, domain string) (*Pool, error) {
	cfg, found, err := c.resolver.Resolve(ctx, domain)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrTenantUnknown, domain)
	}

	p, err := c.open(domain, cfg)
	if err != nil {
		c.log.Error("open tenant pool", zap.String("domain", domain), zap.Stringer("database", cfg), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrPoolOpen, domain, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = p.close()
		return nil, ErrCacheClosed
	}
	c.pools[domain] = p
	c.mu.Unlock()

	c.observer.PoolCreated(domain)
	c.log.Info("tenant pool created",
		zap.String("domain", domain),
		zap.Stringer("database", cfg),
		zap.Int("max_open_conns", c.maxOpenConns))
	return p, nil
}

func (c *Cache) open(domain string, cfg *database.TenantDatabaseConfig) (*Pool, error) {
	db, err := gorm.Open(c.dialector(cfg), &gorm.Config{Logger: c.gormLogger})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(c.maxOpenConns)
	sqlDB.SetMaxIdleConns(c.maxIdleConns)
	sqlDB.SetConnMaxLifetime(c.connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(c.connMaxIdleTime)

	return &Pool{domain: domain, config: cfg, db: db, sqlDB: sqlDB}, nil
}

func (c *Cache) lease(ctx context.Context, p *Pool) (*Lease, error) {
	leaseCtx, cancel := context.WithTimeout(ctx, c.leaseTimeout)
	defer cancel()

	start := time.Now()
	l, err := p.lease(leaseCtx)
	wait := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %s: no connection within %s", ErrPoolExhausted, p.domain, c.leaseTimeout)
		} else {
			err = fmt.Errorf("lease connection for %s: %w", p.domain, err)
		}
		c.observer.LeaseAcquired(p.domain, wait, err)
		return nil, err
	}

	c.observer.LeaseAcquired(p.domain, wait, nil)
	return l, nil
}

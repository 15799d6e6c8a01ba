package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ChenBigdata421/jxt-progress/sdk/config"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/notify"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/progress"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/pool"
)

// Acquirer 分配租户连接，*pool.Cache 实现了该接口
type Acquirer interface {
	Acquire(ctx context.Context, domain string) (*pool.Lease, error)
	Release(l *pool.Lease)
}

// Observer 接收绑定和更新处理结果，通常是指标采集器
type Observer interface {
	SessionBound(domain string, err error)
	UpdateProcessed(domain string, outcome progress.Outcome, err error)
}

type nopObserver struct{}

func (nopObserver) SessionBound(string, error)                      {}
func (nopObserver) UpdateProcessed(string, progress.Outcome, error) {}

// Option 注册表配置项
type Option func(*Registry)

// WithPublisher 设置已应用更新的通知发布器
func WithPublisher(p notify.Publisher) Option {
	return func(r *Registry) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithObserver 设置观察者
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithRateLimit 按会话限制更新频率，rate<=0 表示不限
func WithRateLimit(perSecond float64, burst int) Option {
	return func(r *Registry) {
		r.ratePerSecond = perSecond
		r.burst = burst
	}
}

// WithTracking 应用 tracking 配置段
func WithTracking(cfg *config.Tracking) Option {
	return func(r *Registry) {
		if cfg.RateLimited() {
			r.ratePerSecond = cfg.MaxUpdatesPerSecond
			r.burst = cfg.Burst
		}
	}
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l.Named("session")
		}
	}
}

// Registry 创建会话并跟踪存活的会话
type Registry struct {
	acquirer  Acquirer
	processor *progress.Processor
	publisher notify.Publisher
	observer  Observer
	log       *zap.Logger

	ratePerSecond float64
	burst         int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry 创建空注册表
func NewRegistry(acquirer Acquirer, processor *progress.Processor, opts ...Option) *Registry {
	r := &Registry{
		acquirer:  acquirer,
		processor: processor,
		publisher: notify.Nop{},
		observer:  nopObserver{},
		log:       zap.NewNop(),
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open 创建一个未绑定的会话并登记
func (r *Registry) Open() *Session {
	id := uuid.NewString()
	s := &Session{
		id:       id,
		registry: r,
		log:      r.log.With(zap.String("session", id)),
		state:    StateUnbound,
	}
	if r.ratePerSecond > 0 {
		burst := r.burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(r.ratePerSecond), burst)
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s
}

// Get 按 id 查找存活会话
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len 存活会话数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs 排序后的存活会话 id
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// CloseAll 关闭所有存活会话并归还连接
func (r *Registry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	start := time.Now()
	for _, s := range sessions {
		s.Close()
	}
	r.log.Info("all sessions closed", zap.Int("count", len(sessions)), zap.Duration("took", time.Since(start)))
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

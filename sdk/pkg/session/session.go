// Package session 把匿名的实时连接绑定到 (domain, user)，并按接收顺序处理该用户的进度事件
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/notify"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/progress"
	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/pool"
)

var (
	// ErrNotBound 会话没有可用的租户连接
	ErrNotBound = errors.New("session not bound")
	// ErrClosed 会话已关闭
	ErrClosed = errors.New("session closed")
	// ErrRateLimited 会话上报过快
	ErrRateLimited = errors.New("session rate limited")
)

// State 会话状态
type State int

const (
	StateUnbound State = iota
	StateBound
	StateTracking
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateBound:
		return "bound"
	case StateTracking:
		return "tracking"
	case StateClosed:
		return "closed"
	default:
		return "unbound"
	}
}

// Session 单个连接的状态机
// Bind、Update 由连接自身的 goroutine 调用；Close 可在任意 goroutine 调用，会等待正在处理的更新
type Session struct {
	id       string
	registry *Registry
	limiter  *rate.Limiter
	log      *zap.Logger

	mu     sync.Mutex
	state  State
	domain string
	user   string
	lease  *pool.Lease
	last   *time.Time
}

// ID 会话 id
func (s *Session) ID() string {
	return s.id
}

// State 当前状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity 返回绑定的 domain 和 user
func (s *Session) Identity() (domain, user string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.domain, s.user, s.lease != nil
}

// LastTimestamp 最近一次处理的事件时间戳
func (s *Session) LastTimestamp() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return time.Time{}, false
	}
	return *s.last, true
}

// Bind 把会话绑定到租户用户
// 已绑定的会话先归还原连接并清空时间戳；租户不可用时会话保持未绑定并返回错误
func (s *Session) Bind(ctx context.Context, domain, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return ErrClosed
	}
	if s.lease != nil {
		s.log.Info("rebind, releasing previous connection",
			zap.String("domain", s.domain),
			zap.String("new_domain", domain))
		s.unbindLocked()
	}

	lease, err := s.registry.acquirer.Acquire(ctx, domain)
	s.registry.observer.SessionBound(domain, err)
	if err != nil {
		s.log.Warn("bind failed",
			zap.String("domain", domain),
			zap.String("user", user),
			zap.Error(err))
		return err
	}

	s.domain = domain
	s.user = user
	s.lease = lease
	s.state = StateBound
	s.log.Info("session bound", zap.String("domain", domain), zap.String("user", user))
	return nil
}

// Update 处理一条进度事件
// 应用或跳过时时间戳前移到事件时间，出错时不变；通知在释放会话锁之后发送
func (s *Session) Update(ctx context.Context, ev progress.Event) (progress.Result, error) {
	res, update, err := s.apply(ctx, ev)
	if err != nil {
		return progress.Result{}, err
	}
	if update != nil {
		s.publish(ctx, *update)
	}
	return res, nil
}

func (s *Session) apply(ctx context.Context, ev progress.Event) (progress.Result, *notify.ProgressUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == StateClosed:
		return progress.Result{}, nil, ErrClosed
	case s.lease == nil:
		return progress.Result{}, nil, ErrNotBound
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return progress.Result{}, nil, ErrRateLimited
	}

	res, err := s.registry.processor.Apply(ctx, s.lease.DB(), s.user, ev, s.last)
	s.registry.observer.UpdateProcessed(s.domain, res.Outcome, err)
	if err != nil {
		s.log.Error("apply progress",
			zap.String("domain", s.domain),
			zap.String("user", s.user),
			zap.String("module_id", ev.ModuleID),
			zap.Error(err))
		return progress.Result{}, nil, fmt.Errorf("apply progress for %s/%s: %w", s.domain, s.user, err)
	}

	ts := ev.Timestamp
	s.last = &ts
	s.state = StateTracking

	if res.Outcome != progress.OutcomeApplied {
		return res, nil, nil
	}
	return res, &notify.ProgressUpdate{
		Domain:          s.domain,
		User:            s.user,
		ModuleID:        ev.ModuleID,
		CurrentProgress: ev.CurrentProgress,
		DeltaSeconds:    res.DeltaSeconds,
		TimeAccounted:   res.TimeAccounted,
		Timestamp:       ev.Timestamp,
	}, nil
}

func (s *Session) publish(ctx context.Context, u notify.ProgressUpdate) {
	if err := s.registry.publisher.Publish(ctx, u); err != nil {
		s.log.Warn("publish progress update", zap.String("domain", u.Domain), zap.Error(err))
	}
}

// Close 归还租户连接并从注册表移除，可重复调用
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	domain := s.domain
	s.unbindLocked()
	s.state = StateClosed
	s.mu.Unlock()

	s.registry.remove(s.id)
	s.log.Info("session closed", zap.String("domain", domain))
}

func (s *Session) unbindLocked() {
	if s.lease != nil {
		s.registry.acquirer.Release(s.lease)
	}
	s.lease = nil
	s.domain = ""
	s.user = ""
	s.last = nil
	s.state = StateUnbound
}

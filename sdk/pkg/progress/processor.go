package progress

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Outcome 一次上报的处理结果
type Outcome int

const (
	// OutcomeSkipped 用户在该模块上没有进度记录，什么都不写
	OutcomeSkipped Outcome = iota
	// OutcomeApplied 进度已写入
	OutcomeApplied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	default:
		return "skipped"
	}
}

// Result 处理结果及本次累加的时长
type Result struct {
	Outcome Outcome
	// DeltaSeconds 本次累加到 timespent 的秒数，TimeAccounted 为 false 时无意义
	DeltaSeconds  float64
	TimeAccounted bool
}

// Processor 校验模块归属并写入进度
type Processor struct {
	clampNegativeDelta bool
	log                *zap.Logger
}

// Option 配置 Processor
type Option func(*Processor)

// WithClampNegativeDelta 时间戳倒序时不再扣减时长，增量截断为 0
func WithClampNegativeDelta(clamp bool) Option {
	return func(p *Processor) {
		p.clampNegativeDelta = clamp
	}
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.log = l.Named("progress")
		}
	}
}

// NewProcessor 创建 Processor
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{log: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply 在租户连接 db 上处理一次上报
// last 为该会话上一次上报的时间戳，nil 表示会话内第一次上报，此时只更新进度不累加时长
func (p *Processor) Apply(ctx context.Context, db *gorm.DB, user string, ev Event, last *time.Time) (Result, error) {
	owned, err := p.owned(ctx, db, user, ev.ModuleID)
	if err != nil {
		return Result{}, err
	}
	if !owned {
		p.log.Debug("no progress row, event dropped",
			zap.String("user", user),
			zap.String("module_id", ev.ModuleID))
		return Result{Outcome: OutcomeSkipped}, nil
	}

	updates := map[string]interface{}{
		"current_progress": ev.CurrentProgress,
	}

	result := Result{Outcome: OutcomeApplied}
	if last != nil {
		delta := DeltaSeconds(*last, ev.Timestamp)
		if delta < 0 {
			p.log.Warn("out-of-order timestamp",
				zap.String("user", user),
				zap.String("module_id", ev.ModuleID),
				zap.Float64("delta_seconds", delta),
				zap.Bool("clamped", p.clampNegativeDelta))
			if p.clampNegativeDelta {
				delta = 0
			}
		}
		updates["timespent"] = gorm.Expr("timespent + ?", delta)
		result.DeltaSeconds = delta
		result.TimeAccounted = true
	}

	err = db.WithContext(ctx).
		Model(&ModuleProgress{}).
		Where("uid = ? AND cmoid = ?", user, ev.ModuleID).
		Updates(updates).Error
	if err != nil {
		return Result{}, fmt.Errorf("update progress %s/%s: %w", user, ev.ModuleID, err)
	}
	return result, nil
}

// owned 模块存在且用户在该模块上有进度记录
func (p *Processor) owned(ctx context.Context, db *gorm.DB, user, moduleID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&CourseModule{}).
		Joins("JOIN courses_modules_usr ON courses_modules_usr.cmoid = courses_modules.cmoid").
		Where("courses_modules.cmoid = ? AND courses_modules_usr.uid = ?", moduleID, user).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check module %s for user %s: %w", moduleID, user, err)
	}
	return count > 0, nil
}

// DeltaSeconds 两次上报之间的秒数，按毫秒精度计算，可以为负
func DeltaSeconds(last, current time.Time) float64 {
	return float64(current.UnixMilli()-last.UnixMilli()) / 1000
}

package runtime

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// startCrontab 按 tenants.statsSpec 定时输出租户连接池状态，spec 为空时返回 nil
func (e *Application) startCrontab() (*cron.Cron, error) {
	spec := e.cfg.Tenants.StatsSpec
	if spec == "" {
		return nil, nil
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, e.reportPoolStats); err != nil {
		return nil, fmt.Errorf("invalid tenants.statsSpec %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}

// reportPoolStats 每个租户一条日志
func (e *Application) reportPoolStats() {
	log := e.GetLogger()
	for _, domain := range e.pools.Domains() {
		p, ok := e.pools.Pool(domain)
		if !ok {
			continue
		}
		stats := p.Stats()
		log.Info("tenant pool stats",
			zap.String("domain", domain),
			zap.Int64("leased", p.Leased()),
			zap.Int("open", stats.OpenConnections),
			zap.Int("in_use", stats.InUse),
			zap.Int("idle", stats.Idle),
			zap.Int64("wait_count", stats.WaitCount),
			zap.Duration("wait_duration", stats.WaitDuration))
	}
	log.Info("sessions", zap.Int("live", e.sessions.Len()), zap.Int("pools", e.pools.Len()))
}

package config

import "time"

// DefaultTenantMaxOpenConns 每个租户连接池的默认容量
const DefaultTenantMaxOpenConns = 10

var TenantsConfig = new(Tenants)

// Tenants 租户连接池配置，对所有租户生效
// 租户的数据库地址和账号不在这里配置，由中心目录库的 domains 表按域名下发
type Tenants struct {
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifeTime time.Duration `mapstructure:"connMaxLifeTime"`
	ConnMaxIdleTime time.Duration `mapstructure:"connMaxIdleTime"`
	LeaseTimeout    time.Duration `mapstructure:"leaseTimeout"` // 从连接池租用连接的最长等待时间
	StatsSpec       string        `mapstructure:"statsSpec"`    // 连接池状态日志的 cron 表达式，为空不输出
}

// GetMaxOpenConns 获取连接池容量，未配置时返回默认值
func (t *Tenants) GetMaxOpenConns() int {
	if t == nil || t.MaxOpenConns <= 0 {
		return DefaultTenantMaxOpenConns
	}
	return t.MaxOpenConns
}

// GetLeaseTimeout 获取租用超时，未配置时返回 10 秒
func (t *Tenants) GetLeaseTimeout() time.Duration {
	if t == nil || t.LeaseTimeout <= 0 {
		return 10 * time.Second
	}
	return t.LeaseTimeout
}

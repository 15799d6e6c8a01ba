package config

import "time"

// Tracking 进度上报处理配置
type Tracking struct {
	ClampNegativeDelta  bool          `mapstructure:"clampNegativeDelta"`  // 时间戳倒序时是否把时长增量截断为 0
	AckFailures         bool          `mapstructure:"ackFailures"`         // 是否向客户端回送 bind-failed / update-failed
	MaxUpdatesPerSecond float64       `mapstructure:"maxUpdatesPerSecond"` // 单个会话每秒最多处理的上报数，0 表示不限制
	Burst               int           `mapstructure:"burst"`
	EventTimeout        time.Duration `mapstructure:"eventTimeout"` // 单个事件的处理超时
}

// RateLimited 是否启用会话级限流
func (t *Tracking) RateLimited() bool {
	return t != nil && t.MaxUpdatesPerSecond > 0
}

var TrackingConfig = new(Tracking)

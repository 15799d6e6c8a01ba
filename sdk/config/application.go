package config

import (
	"net"
	"strconv"
	"time"
)

// Application 应用程序配置
type Application struct {
	Mode          string        `mapstructure:"mode" json:"mode"`
	Host          string        `mapstructure:"host" json:"host"`
	Name          string        `mapstructure:"name" json:"name"`
	Port          int           `mapstructure:"port" json:"port"`
	CorsOrigin    string        `mapstructure:"corsOrigin" json:"corsOrigin"`       // 允许的跨域来源，"*" 表示全部放行
	SocketPath    string        `mapstructure:"socketPath" json:"socketPath"`       // websocket 升级路径
	ShutdownGrace time.Duration `mapstructure:"shutdownGrace" json:"shutdownGrace"` // 优雅退出等待时间
}

var ApplicationConfig = new(Application)

// Addr 监听地址
func (a *Application) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

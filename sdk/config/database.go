package config

import "time"

// Directory 中心目录库配置，domains 表保存每个租户的数据库连接信息
type Directory struct {
	Source          string        `mapstructure:"source"`   // DSN 或 mysql:// URL
	Replicas        []string      `mapstructure:"replicas"` // 只读副本，走 dbresolver
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifeTime time.Duration `mapstructure:"connMaxLifeTime"`
	ConnMaxIdleTime time.Duration `mapstructure:"connMaxIdleTime"`
	InitSQLFiles    []string      `mapstructure:"initSQLFiles"` // 启动时执行的 SQL 脚本，一般只在开发环境使用
}

// HasReplicas 是否配置了只读副本
func (d *Directory) HasReplicas() bool {
	return d != nil && len(d.Replicas) > 0
}

var DirectoryConfig = new(Directory)

// Package directory 从中心目录库查询租户数据库凭据
//
// domains 表每个 domain 一行，config 列是包含 USER、PASSWORD、HOST、DB 的 JSON。
// 这里不做缓存，连接池由 pool 包缓存，未知 domain 每次都重新查询。
package directory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/database"
)

// ErrDirectoryUnavailable 包装所有查询失败（目录库不可达或 config 无法解析），调用方可重试
var ErrDirectoryUnavailable = errors.New("tenant directory unavailable")

// Domain domains 表的一行
type Domain struct {
	Name   string `gorm:"column:name;primaryKey"`
	Config string `gorm:"column:config"`
}

func (Domain) TableName() string {
	return "domains"
}

// Client 把 domain 解析为租户数据库配置
type Client struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewClient 基于目录库创建 Client
func NewClient(db *gorm.DB, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{db: db, log: log.Named("directory")}
}

// Resolve 按名称精确匹配查询，不存在时返回 (nil, false, nil)
func (c *Client) Resolve(ctx context.Context, domain string) (*database.TenantDatabaseConfig, bool, error) {
	var rows []Domain
	err := c.db.WithContext(ctx).
		Select("name", "config").
		Where("name = ?", domain).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		c.log.Warn("directory lookup failed", zap.String("domain", domain), zap.Error(err))
		return nil, false, fmt.Errorf("%w: lookup %s: %w", ErrDirectoryUnavailable, domain, err)
	}
	if len(rows) == 0 {
		c.log.Debug("domain not found", zap.String("domain", domain))
		return nil, false, nil
	}

	cfg, err := database.Decode(domain, rows[0].Config)
	if err != nil {
		c.log.Error("invalid tenant config", zap.String("domain", domain), zap.Error(err))
		return nil, false, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	return cfg, true, nil
}

package database

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/json"
)

// DefaultPort HOST 未带端口时使用
const DefaultPort = 3306

// ErrMalformedConfig 存储的配置无法使用
var ErrMalformedConfig = errors.New("malformed tenant database config")

// TenantDatabaseConfig 单个租户库的连接凭据
// 从目录解码一次，之后不再修改
type TenantDatabaseConfig struct {
	Domain   string `json:"domain"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DbName   string `json:"db_name"`
	Username string `json:"username"`
	Password string `json:"-"`
}

// storedConfig 目录 config 列的 JSON 结构
type storedConfig struct {
	User     string      `json:"USER"`
	Password string      `json:"PASSWORD"`
	Host     string      `json:"HOST"`
	DB       string      `json:"DB"`
	Port     json.Number `json:"PORT,omitempty"`
}

// Decode 解析 domain 的配置 JSON
func Decode(domain, blob string) (*TenantDatabaseConfig, error) {
	var stored storedConfig
	if err := json.UnmarshalFromString(blob, &stored); err != nil {
		return nil, fmt.Errorf("%w: domain %s: %v", ErrMalformedConfig, domain, err)
	}

	cfg := &TenantDatabaseConfig{
		Domain:   domain,
		Host:     strings.TrimSpace(stored.Host),
		DbName:   stored.DB,
		Username: stored.User,
		Password: stored.Password,
	}

	if host, port, err := net.SplitHostPort(cfg.Host); err == nil {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("%w: domain %s: invalid port %q", ErrMalformedConfig, domain, port)
		}
		cfg.Host, cfg.Port = host, p
	}
	if stored.Port != "" {
		p, err := strconv.Atoi(string(stored.Port))
		if err != nil {
			return nil, fmt.Errorf("%w: domain %s: invalid PORT %q", ErrMalformedConfig, domain, stored.Port)
		}
		cfg.Port = p
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查建立连接所需的字段
func (c *TenantDatabaseConfig) Validate() error {
	var missing []string
	if c.Host == "" {
		missing = append(missing, "HOST")
	}
	if c.DbName == "" {
		missing = append(missing, "DB")
	}
	if c.Username == "" {
		missing = append(missing, "USER")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: domain %s: missing %s", ErrMalformedConfig, c.Domain, strings.Join(missing, ", "))
	}
	return nil
}

// Addr 返回 host:port
func (c *TenantDatabaseConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DSN 生成租户库的 go-sql-driver/mysql DSN
func (c *TenantDatabaseConfig) DSN(dialTimeout time.Duration) string {
	dsn := mysql.NewConfig()
	dsn.User = c.Username
	dsn.Passwd = c.Password
	dsn.Net = "tcp"
	dsn.Addr = c.Addr()
	dsn.DBName = c.DbName
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	if dialTimeout > 0 {
		dsn.Timeout = dialTimeout
	}
	return dsn.FormatDSN()
}

// String 隐藏密码
func (c *TenantDatabaseConfig) String() string {
	return fmt.Sprintf("%s@%s/%s", c.Username, c.Addr(), c.DbName)
}

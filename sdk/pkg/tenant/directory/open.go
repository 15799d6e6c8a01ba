package directory

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"

	"github.com/ChenBigdata421/jxt-progress/sdk/config"
)

// Open 连接目录库，配置了只读副本时经 dbresolver 分担查询
func Open(cfg *config.Directory, gl gormlogger.Interface) (*gorm.DB, error) {
	if cfg == nil || cfg.Source == "" {
		return nil, fmt.Errorf("directory source is not configured")
	}

	dsn, err := NormalizeDSN(cfg.Source)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("open directory: %w", err)
	}

	if cfg.HasReplicas() {
		replicas := make([]gorm.Dialector, 0, len(cfg.Replicas))
		for _, source := range cfg.Replicas {
			replicaDSN, err := NormalizeDSN(source)
			if err != nil {
				return nil, fmt.Errorf("directory replica: %w", err)
			}
			replicas = append(replicas, gormmysql.Open(replicaDSN))
		}
		resolver := dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		}).
			SetMaxOpenConns(cfg.MaxOpenConns).
			SetMaxIdleConns(cfg.MaxIdleConns).
			SetConnMaxLifetime(cfg.ConnMaxLifeTime).
			SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
		if err := db.Use(resolver); err != nil {
			return nil, fmt.Errorf("register directory replicas: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifeTime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return db, nil
}

// NormalizeDSN 接受 mysql:// URL 或 go-sql-driver DSN，返回开启 parseTime 的 DSN
func NormalizeDSN(source string) (string, error) {
	if strings.HasPrefix(source, "mysql://") {
		return fromURL(source)
	}

	cfg, err := mysql.ParseDSN(source)
	if err != nil {
		return "", fmt.Errorf("invalid directory DSN: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func fromURL(source string) (string, error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("invalid directory URL: %w", err)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Host + ":3306"
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.ParseTime = true

	params := u.Query()
	if len(params) > 0 {
		cfg.Params = make(map[string]string, len(params))
		for key := range params {
			cfg.Params[key] = params.Get(key)
		}
	}

	if cfg.DBName == "" {
		return "", fmt.Errorf("invalid directory URL: missing database name")
	}
	return cfg.FormatDSN(), nil
}

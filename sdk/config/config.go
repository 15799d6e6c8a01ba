package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 顶层配置结构
type Config struct {
	Application *Application `mapstructure:"application"`
	Logger      *Logger      `mapstructure:"logger"`
	Directory   *Directory   `mapstructure:"directory"`
	Tenants     *Tenants     `mapstructure:"tenants"`
	Tracking    *Tracking    `mapstructure:"tracking"`
	Notify      *Notify      `mapstructure:"notify"`
}

var AppConfig = &Config{
	Application: ApplicationConfig,
	Logger:      LoggerConfig,
	Directory:   DirectoryConfig,
	Tenants:     TenantsConfig,
	Tracking:    TrackingConfig,
	Notify:      NotifyConfig,
}

// 环境变量与配置项的对应关系，环境变量优先于配置文件
var envBindings = map[string]string{
	"application.port":       "PORT",
	"application.host":       "HOST",
	"application.corsOrigin": "CORS_ORIGIN",
	"directory.source":       "DATABASE_URL",
	"logger.level":           "LOG_LEVEL",
	"notify.natsUrl":         "NATS_URL",
}

// Setup 加载配置并写入全局配置实例
// configYml 为空时只使用默认值和环境变量
func Setup(configYml string) error {
	cfg, err := Load(configYml)
	if err != nil {
		return err
	}

	*ApplicationConfig = *cfg.Application
	*LoggerConfig = *cfg.Logger
	*DirectoryConfig = *cfg.Directory
	*TenantsConfig = *cfg.Tenants
	*TrackingConfig = *cfg.Tracking
	*NotifyConfig = *cfg.Notify
	return nil
}

// Load 读取配置，返回新的配置实例，不修改全局配置
func Load(configYml string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", env, err)
		}
	}

	if configYml != "" {
		v.SetConfigFile(configYml)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{
		Application: new(Application),
		Logger:      new(Logger),
		Directory:   new(Directory),
		Tenants:     new(Tenants),
		Tracking:    new(Tracking),
		Notify:      new(Notify),
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("application.name", "progress-relay")
	v.SetDefault("application.mode", "release")
	v.SetDefault("application.host", "0.0.0.0")
	v.SetDefault("application.port", 3001)
	v.SetDefault("application.corsOrigin", "http://localhost:3000")
	v.SetDefault("application.socketPath", "/socket")
	v.SetDefault("application.shutdownGrace", "500ms")

	v.SetDefault("logger.path", "temp/logs")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.stdout", true)
	v.SetDefault("logger.fileOutput", true)
	v.SetDefault("logger.maxSize", 50)
	v.SetDefault("logger.infoMaxAge", 3)
	v.SetDefault("logger.errorMaxAge", 14)
	v.SetDefault("logger.maxBackups", 20)
	v.SetDefault("logger.enabledDB", false)
	v.SetDefault("logger.gormLoggerLevel", 2)

	v.SetDefault("directory.source", "")
	v.SetDefault("directory.replicas", []string{})
	v.SetDefault("directory.maxOpenConns", 5)
	v.SetDefault("directory.maxIdleConns", 2)
	v.SetDefault("directory.connMaxLifeTime", "1h")
	v.SetDefault("directory.connMaxIdleTime", "10m")
	v.SetDefault("directory.initSQLFiles", []string{})

	v.SetDefault("tenants.maxOpenConns", DefaultTenantMaxOpenConns)
	v.SetDefault("tenants.maxIdleConns", DefaultTenantMaxOpenConns)
	v.SetDefault("tenants.connMaxLifeTime", "0s")
	v.SetDefault("tenants.connMaxIdleTime", "0s")
	v.SetDefault("tenants.leaseTimeout", "10s")
	v.SetDefault("tenants.statsSpec", "@every 1m")

	v.SetDefault("tracking.clampNegativeDelta", false)
	v.SetDefault("tracking.ackFailures", true)
	v.SetDefault("tracking.maxUpdatesPerSecond", 0)
	v.SetDefault("tracking.burst", 10)
	v.SetDefault("tracking.eventTimeout", "30s")

	v.SetDefault("notify.driver", "")
	v.SetDefault("notify.natsUrl", "")
	v.SetDefault("notify.subjectPrefix", "progress")
	v.SetDefault("notify.clientName", "progress-relay")
	v.SetDefault("notify.kafkaBrokers", []string{})
	v.SetDefault("notify.nsqdAddr", "")
	v.SetDefault("notify.topic", "progress_updated")
}

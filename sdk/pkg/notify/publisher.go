// Package notify publishes applied progress updates to a broker (NATS, Kafka or
// NSQ) so that other services can follow learners in real time.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-progress/sdk/config"
)

// Publisher 进度变更发布者
type Publisher interface {
	Publish(ctx context.Context, u ProgressUpdate) error
	Close() error
}

// Nop 不发送任何通知
type Nop struct{}

func (Nop) Publish(context.Context, ProgressUpdate) error { return nil }
func (Nop) Close() error                                  { return nil }

var subjectReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// Subject 某个租户的通知主题：<prefix>.<domain>.updated
// 域名中的 "." 和通配符替换为 "_"，保证 domain 只占一个 token
func Subject(prefix, domain string) string {
	if prefix == "" {
		prefix = "progress"
	}
	return prefix + "." + subjectReplacer.Replace(domain) + ".updated"
}

// New 按配置创建发布者，未启用时返回 Nop
func New(cfg *config.Notify, log *zap.Logger) (Publisher, error) {
	if !cfg.Enabled() {
		return Nop{}, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("notify")

	switch cfg.GetDriver() {
	case config.NotifyDriverNATS:
		return newNATS(cfg, log)
	case config.NotifyDriverKafka:
		return newKafka(cfg, log)
	case config.NotifyDriverNSQ:
		return newNSQ(cfg, log)
	default:
		return nil, fmt.Errorf("unknown notify driver %q", cfg.GetDriver())
	}
}

func encode(u ProgressUpdate) ([]byte, error) {
	env, err := NewEnvelope(u)
	if err != nil {
		return nil, fmt.Errorf("encode progress update: %w", err)
	}
	data, err := env.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("encode progress update: %w", err)
	}
	return data, nil
}

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-progress/sdk/config"
)

// conn 是 *nats.Conn 中用到的部分
type conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSPublisher 通过 NATS core 发布通知，不等待订阅方确认
type NATSPublisher struct {
	nc     conn
	prefix string
	log    *zap.Logger
}

func newNATS(cfg *config.Notify, log *zap.Logger) (Publisher, error) {
	nc, err := nats.Connect(cfg.NatsURL, buildOptions(cfg, log)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info("connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return newNATSPublisher(nc, cfg.SubjectPrefix, log), nil
}

func newNATSPublisher(nc conn, prefix string, log *zap.Logger) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix, log: log}
}

func buildOptions(cfg *config.Notify, log *zap.Logger) []nats.Option {
	var opts []nats.Option
	if cfg.ClientName != "" {
		opts = append(opts, nats.Name(cfg.ClientName))
	}
	opts = append(opts,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	return opts
}

// Publish 发布一次进度变更
func (p *NATSPublisher) Publish(ctx context.Context, u ProgressUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(u)
	if err != nil {
		return err
	}

	subject := Subject(p.prefix, u.Domain)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close 发送完缓冲中的消息后关闭连接
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

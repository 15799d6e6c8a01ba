package notify

import (
	"context"
	"fmt"

	"github.com/nsqio/go-nsq"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-progress/sdk/config"
)

// nsqProducer 是 *nsq.Producer 中用到的部分
type nsqProducer interface {
	Publish(topic string, body []byte) error
	Stop()
}

// NSQPublisher 发布到 nsqd
type NSQPublisher struct {
	producer nsqProducer
	topic    string
	log      *zap.Logger
}

func newNSQ(cfg *config.Notify, log *zap.Logger) (Publisher, error) {
	nsqConfig := nsq.NewConfig()
	if cfg.ClientName != "" {
		nsqConfig.ClientID = cfg.ClientName
	}
	producer, err := nsq.NewProducer(cfg.NsqdAddr, nsqConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create nsq producer: %w", err)
	}
	producer.SetLogger(zap.NewStdLog(log), nsq.LogLevelWarning)
	if err := producer.Ping(); err != nil {
		producer.Stop()
		return nil, fmt.Errorf("failed to connect to nsqd %s: %w", cfg.NsqdAddr, err)
	}
	log.Info("nsq producer ready", zap.String("nsqd", cfg.NsqdAddr), zap.String("topic", cfg.Topic))
	return newNSQPublisher(producer, cfg.Topic, log), nil
}

func newNSQPublisher(producer nsqProducer, topic string, log *zap.Logger) *NSQPublisher {
	return &NSQPublisher{producer: producer, topic: topic, log: log}
}

// Publish 发布一次进度变更
func (p *NSQPublisher) Publish(ctx context.Context, u ProgressUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(u)
	if err != nil {
		return err
	}
	if err := p.producer.Publish(p.topic, data); err != nil {
		return fmt.Errorf("publish to nsq topic %s: %w", p.topic, err)
	}
	return nil
}

// Close 停止生产者
func (p *NSQPublisher) Close() error {
	p.producer.Stop()
	return nil
}

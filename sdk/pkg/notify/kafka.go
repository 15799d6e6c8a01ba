package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-progress/sdk/config"
)

// KafkaPublisher 以 domain 为 key 写入 Kafka，同一租户的通知落在同一分区、保持顺序
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

func newKafka(cfg *config.Notify, log *zap.Logger) (Publisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, saramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	log.Info("kafka producer ready", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.Topic))
	return newKafkaPublisher(producer, cfg.Topic, log), nil
}

func newKafkaPublisher(producer sarama.SyncProducer, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, log: log}
}

func saramaConfig(cfg *config.Notify) *sarama.Config {
	c := sarama.NewConfig()
	if cfg.ClientName != "" {
		c.ClientID = cfg.ClientName
	}
	c.Producer.RequiredAcks = sarama.WaitForLocal
	c.Producer.Timeout = 5 * time.Second
	c.Producer.Retry.Max = 3
	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true
	c.Producer.Compression = sarama.CompressionSnappy
	c.Net.DialTimeout = 5 * time.Second
	c.Version = sarama.V2_6_0_0
	return c
}

// Publish 同步写入，返回前消息已被 leader 确认
func (p *KafkaPublisher) Publish(ctx context.Context, u ProgressUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(u)
	if err != nil {
		return err
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(u.Domain),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("publish to kafka topic %s: %w", p.topic, err)
	}
	return nil
}

// Close 关闭生产者
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

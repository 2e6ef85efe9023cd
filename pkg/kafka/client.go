// Package kafka 提供了文档摄取任务队列的生产者与消费者。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"doc-qa-go/internal/config"
	"doc-qa-go/pkg/log"
	"doc-qa-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process an
// ingest task. This decouples the consumer from the concrete pipeline.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestTask) error
}

// ProcessorFunc 允许用函数实现 TaskProcessor。
type ProcessorFunc func(ctx context.Context, task tasks.IngestTask) error

// Process 实现 TaskProcessor。
func (f ProcessorFunc) Process(ctx context.Context, task tasks.IngestTask) error {
	return f(ctx, task)
}

// Producer 向摄取主题发送任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// EnqueueIngest 发送一个文档摄取任务。
func (p *Producer) EnqueueIngest(ctx context.Context, task tasks.IngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.ObjectKey),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// maxAttempts 是单个任务的最大处理次数，超过后提交 offset 终止重试。
const maxAttempts = 3

// StartConsumer 启动一个 Kafka 消费者来处理摄取任务。
// 失败次数记录在 Redis 中，达到阈值后提交 offset 放弃该任务。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, rdb *redis.Client) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		var task tasks.IngestTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理摄取任务: object=%s, file=%s", task.ObjectKey, task.FileName)
		if err := processor.Process(ctx, task); err != nil {
			log.Errorf("处理摄取任务失败: object=%s, error: %v", task.ObjectKey, err)
			attemptsKey := fmt.Sprintf("ingest:attempts:%s", task.ObjectKey)
			attempts, incErr := rdb.Incr(ctx, attemptsKey).Result()
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			_ = rdb.Expire(ctx, attemptsKey, 24*time.Hour).Err()
			if attempts >= maxAttempts {
				log.Errorf("摄取任务多次失败(>=%d)，提交 offset 终止重试: object=%s", maxAttempts, task.ObjectKey)
				if err := r.CommitMessages(ctx, m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			continue
		}

		log.Infof("摄取任务处理成功: object=%s", task.ObjectKey)
		_ = rdb.Del(ctx, fmt.Sprintf("ingest:attempts:%s", task.ObjectKey)).Err()
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

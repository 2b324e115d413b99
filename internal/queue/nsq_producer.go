package queue

import (
	"context"
	"fmt"

	"github.com/nsqio/go-nsq"
)

// NSQProducer 调度任务生产者
type NSQProducer struct {
	producer *nsq.Producer
	topic    string
}

// NewNSQProducer 创建 NSQ 生产者
func NewNSQProducer(addr, topic string) (*NSQProducer, error) {
	cfg := nsq.NewConfig()
	producer, err := nsq.NewProducer(addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("创建 NSQ 生产者失败: %w", err)
	}
	return &NSQProducer{producer: producer, topic: topic}, nil
}

// Enqueue 发布一条调度任务
func (n *NSQProducer) Enqueue(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	// nsqio/go-nsq 的 Publish 不接收 context,但这里仍保持 ctx 以满足接口规范
	return n.producer.Publish(n.topic, payload)
}

// Close 停止生产者
func (n *NSQProducer) Close() {
	if n.producer != nil {
		n.producer.Stop()
	}
}

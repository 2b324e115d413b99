package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nsqio/go-nsq"
)

// ==================== 常量定义 ====================

const (
	// 默认超时时间
	defaultJobHandleTimeout = 5 * time.Minute

	// 用户代理标识
	defaultUserAgent = "restock-notify"

	// 日志前缀
	logPrefix = "[nsq] "

	// 错误消息常量
	errorMessageTopicRequired        = "topic is required"
	errorMessageChannelRequired      = "channel is required"
	errorMessageHandlerRequired      = "handler is required"
	errorMessageNoAddressConfigured  = "no nsqd address or lookupd configured"
	errorMessageDLQPublishFailed     = "failed to publish job to DLQ"
	errorMessageConsumerCreationFail = "failed to create NSQ consumer"
)

// ==================== 类型定义 ====================

// HandlerFunc 任务处理函数类型
type HandlerFunc func(ctx context.Context, payload []byte, attempts uint16) error

// NSQConsumer 调度任务消费者
// 一个回次的发送可能耗时较长,任务处理超时默认放宽到分钟级
type NSQConsumer struct {
	config  *nsq.Config
	topic   string
	channel string

	nsqdAddresses    []string // nsqd TCP 地址
	lookupdAddresses []string // lookupd HTTP 地址

	consumer *nsq.Consumer
	handler  HandlerFunc

	maxInFlight int
	concurrency int

	// DLQ (死信队列) 配置
	dlqTopic             string
	maxAttemptsBeforeDLQ uint16
	dlqProducer          *nsq.Producer

	jobHandleTimeout time.Duration
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Topic                string
	Channel              string
	MaxInFlight          int
	Concurrency          int
	NsqdAddresses        []string
	LookupdAddresses     []string
	DLQTopic             string
	MaxAttemptsBeforeDLQ uint16
	JobHandleTimeout     time.Duration
	Handler              HandlerFunc
}

// ==================== 构造函数 ====================

// NewNSQConsumer 从配置创建 NSQ 消费者
func NewNSQConsumer(config ConsumerConfig) (*NSQConsumer, error) {
	if err := validateConsumerConfig(config); err != nil {
		return nil, err
	}

	nsqConfig := nsq.NewConfig()
	if config.MaxInFlight > 0 {
		nsqConfig.MaxInFlight = config.MaxInFlight
	}
	nsqConfig.UserAgent = defaultUserAgent

	consumer, err := nsq.NewConsumer(config.Topic, config.Channel, nsqConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageConsumerCreationFail, err)
	}
	consumer.SetLogger(log.New(os.Stdout, logPrefix, log.LstdFlags), nsq.LogLevelInfo)

	timeout := config.JobHandleTimeout
	if timeout == 0 {
		timeout = defaultJobHandleTimeout
	}

	return &NSQConsumer{
		config:               nsqConfig,
		topic:                config.Topic,
		channel:              config.Channel,
		nsqdAddresses:        config.NsqdAddresses,
		lookupdAddresses:     config.LookupdAddresses,
		consumer:             consumer,
		handler:              config.Handler,
		maxInFlight:          config.MaxInFlight,
		concurrency:          config.Concurrency,
		dlqTopic:             config.DLQTopic,
		maxAttemptsBeforeDLQ: config.MaxAttemptsBeforeDLQ,
		jobHandleTimeout:     timeout,
	}, nil
}

// validateConsumerConfig 验证消费者配置
func validateConsumerConfig(config ConsumerConfig) error {
	if config.Topic == "" {
		return errors.New(errorMessageTopicRequired)
	}
	if config.Channel == "" {
		return errors.New(errorMessageChannelRequired)
	}
	if config.Handler == nil {
		return errors.New(errorMessageHandlerRequired)
	}
	if len(config.NsqdAddresses) == 0 && len(config.LookupdAddresses) == 0 {
		return errors.New(errorMessageNoAddressConfigured)
	}
	return nil
}

// ==================== DLQ 配置 ====================

// AttachDLQProducer 附加 DLQ 生产者
// 未配置 DLQ Topic 或地址为空时静默跳过
func (consumer *NSQConsumer) AttachDLQProducer(nsqdAddress string) error {
	if consumer.dlqTopic == "" || nsqdAddress == "" {
		return nil
	}

	producer, err := nsq.NewProducer(nsqdAddress, nsq.NewConfig())
	if err != nil {
		return fmt.Errorf("failed to create DLQ producer: %w", err)
	}

	consumer.dlqProducer = producer
	return nil
}

// ==================== 消息处理 ====================

// Run 启动消费者并阻塞直到 Stop 被调用
func (consumer *NSQConsumer) Run() error {
	consumer.consumer.AddConcurrentHandlers(nsq.HandlerFunc(func(message *nsq.Message) error {
		return consumer.handleMessage(message)
	}), consumer.concurrency)

	if err := consumer.connectToNSQ(); err != nil {
		return err
	}

	<-consumer.consumer.StopChan
	return nil
}

// handleMessage 处理单条任务消息
func (consumer *NSQConsumer) handleMessage(message *nsq.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), consumer.jobHandleTimeout)
	defer cancel()

	err := consumer.handler(ctx, message.Body, message.Attempts)
	if err == nil {
		return nil
	}

	return consumer.handleFailedMessage(message, err)
}

// handleFailedMessage 处理失败的任务
// 达到最大重试次数后转入 DLQ,成功转入则返回 nil 终止重试
func (consumer *NSQConsumer) handleFailedMessage(message *nsq.Message, originalError error) error {
	if !consumer.shouldSendToDLQ(message) {
		return originalError
	}

	if err := consumer.dlqProducer.Publish(consumer.dlqTopic, message.Body); err != nil {
		log.Printf("%s: %v, original error: %v", errorMessageDLQPublishFailed, err, originalError)
		return originalError
	}

	log.Printf("[nsq] 任务在 %d 次尝试后转入 DLQ", message.Attempts)
	return nil
}

// shouldSendToDLQ 判断是否应该转入 DLQ
func (consumer *NSQConsumer) shouldSendToDLQ(message *nsq.Message) bool {
	if consumer.dlqTopic == "" || consumer.dlqProducer == nil {
		return false
	}
	return message.Attempts >= consumer.maxAttemptsBeforeDLQ
}

// ==================== 连接管理 ====================

// connectToNSQ 连接到配置的 nsqd 与 lookupd 节点
func (consumer *NSQConsumer) connectToNSQ() error {
	for _, address := range consumer.nsqdAddresses {
		if err := consumer.consumer.ConnectToNSQD(address); err != nil {
			return fmt.Errorf("failed to connect to nsqd %s: %w", address, err)
		}
		log.Printf("[nsq] 已连接 nsqd: %s", address)
	}

	for _, address := range consumer.lookupdAddresses {
		if err := consumer.consumer.ConnectToNSQLookupd(address); err != nil {
			return fmt.Errorf("failed to connect to lookupd %s: %w", address, err)
		}
		log.Printf("[nsq] 已连接 lookupd: %s", address)
	}

	return nil
}

// ==================== 生命周期管理 ====================

// Stop 停止消费者与 DLQ 生产者
func (consumer *NSQConsumer) Stop() {
	if consumer.consumer != nil {
		log.Printf("[nsq] 停止消费者: topic=%s", consumer.topic)
		consumer.consumer.Stop()
	}
	if consumer.dlqProducer != nil {
		consumer.dlqProducer.Stop()
	}
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// 默认配置常量
const (
	// 应用默认配置
	DefaultHTTPAddress    = ":8080"
	DefaultRequestTimeout = 10 * time.Second

	// 限流默认配置(每秒请求数/突发量)
	DefaultRateLimitPerSecond = 10
	DefaultRateLimitBurst     = 20

	// Redis 缓存默认配置
	DefaultRedisNamespace = "restock"
	DefaultStockCacheTTL  = 30 * time.Second

	// MySQL 连接池默认配置
	DefaultMaxOpenConns    = 50
	DefaultMaxIdleConns    = 10
	DefaultConnMaxLifetime = 30 * time.Minute

	// NSQ 队列默认配置
	DefaultNSQTopic       = "restock-dispatch"
	DefaultNSQChannel     = "restock-workers"
	DefaultNSQMaxInFlight = 16
	DefaultNSQConcurrency = 1
	DefaultNSQMaxAttempts = 5
	DefaultDLQTopicSuffix = ".DLQ"

	// 广播流默认配置
	DefaultStreamBuffer = 64
)

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr           string        `yaml:"Addr"`           // 监听地址
	RequestTimeout time.Duration `yaml:"RequestTimeout"` // 单次请求超时
}

// RateLimitConfig 触发接口限流配置
type RateLimitConfig struct {
	PerSecond float64 `yaml:"PerSecond"` // 每秒允许的请求数
	Burst     int     `yaml:"Burst"`     // 突发容量
}

// MySQLConfig MySQL 连接配置
type MySQLConfig struct {
	DSN             string        `yaml:"DSN"`             // 数据源连接串
	MaxOpenConns    int           `yaml:"MaxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int           `yaml:"MaxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `yaml:"ConnMaxLifetime"` // 连接最大存活时间
}

// RedisConfig Redis 缓存配置
type RedisConfig struct {
	Addr      string        `yaml:"Addr"`      // Redis 地址
	Password  string        `yaml:"Password"`  // 密码(可为空)
	DB        int           `yaml:"DB"`        // 数据库编号
	Namespace string        `yaml:"Namespace"` // 键前缀命名空间
	StockTTL  time.Duration `yaml:"StockTTL"`  // 库存缓存过期时间
}

// NSQConfig NSQ 异步触发队列配置
// 不配置 NsqdAddr 时异步触发模式不可用,同步触发不受影响
type NSQConfig struct {
	NsqdAddr     string   `yaml:"NsqdAddr"`     // nsqd TCP 地址(生产者使用)
	NsqdAddrs    []string `yaml:"NsqdAddrs"`    // 消费者直连的 nsqd 地址列表
	LookupdAddrs []string `yaml:"LookupdAddrs"` // lookupd HTTP 地址列表
	Topic        string   `yaml:"Topic"`        // 调度任务 Topic
	Channel      string   `yaml:"Channel"`      // 消费者 Channel
	MaxInFlight  int      `yaml:"MaxInFlight"`  // 最大在途消息数
	Concurrency  int      `yaml:"Concurrency"`  // 消费并发数
	MaxAttempts  uint16   `yaml:"MaxAttempts"`  // 进入 DLQ 前的最大重试次数
	DLQTopic     string   `yaml:"DLQTopic"`     // 死信 Topic
}

// StreamConfig 广播流配置
type StreamConfig struct {
	Buffer int `yaml:"Buffer"` // 每个订阅者的缓冲区大小
}

// Config 应用总配置
type Config struct {
	HTTP      HTTPConfig      `yaml:"HTTP"`
	RateLimit RateLimitConfig `yaml:"RateLimit"`
	MySQL     MySQLConfig     `yaml:"MySQL"`
	Redis     RedisConfig     `yaml:"Redis"`
	NSQ       NSQConfig       `yaml:"NSQ"`
	Stream    StreamConfig    `yaml:"Stream"`
}

// LoadConfig 从 YAML 文件加载配置
// 缺省字段会被填充为默认值
func LoadConfig(path string) (Config, error) {
	var configuration Config

	data, err := os.ReadFile(path)
	if err != nil {
		return configuration, fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, &configuration); err != nil {
		return configuration, fmt.Errorf("解析配置文件失败: %w", err)
	}

	configuration.applyDefaults()
	return configuration, nil
}

// applyDefaults 填充缺省配置项
func (configuration *Config) applyDefaults() {
	if configuration.HTTP.Addr == "" {
		configuration.HTTP.Addr = DefaultHTTPAddress
	}
	if configuration.HTTP.RequestTimeout <= 0 {
		configuration.HTTP.RequestTimeout = DefaultRequestTimeout
	}

	if configuration.RateLimit.PerSecond <= 0 {
		configuration.RateLimit.PerSecond = DefaultRateLimitPerSecond
	}
	if configuration.RateLimit.Burst <= 0 {
		configuration.RateLimit.Burst = DefaultRateLimitBurst
	}

	if configuration.MySQL.MaxOpenConns <= 0 {
		configuration.MySQL.MaxOpenConns = DefaultMaxOpenConns
	}
	if configuration.MySQL.MaxIdleConns <= 0 {
		configuration.MySQL.MaxIdleConns = DefaultMaxIdleConns
	}
	if configuration.MySQL.ConnMaxLifetime <= 0 {
		configuration.MySQL.ConnMaxLifetime = DefaultConnMaxLifetime
	}

	if configuration.Redis.Namespace == "" {
		configuration.Redis.Namespace = DefaultRedisNamespace
	}
	if configuration.Redis.StockTTL <= 0 {
		configuration.Redis.StockTTL = DefaultStockCacheTTL
	}

	// 只配置生产者地址时,消费者直连同一个 nsqd
	if configuration.NSQ.NsqdAddr != "" && len(configuration.NSQ.NsqdAddrs) == 0 {
		configuration.NSQ.NsqdAddrs = []string{configuration.NSQ.NsqdAddr}
	}
	if configuration.NSQ.Topic == "" {
		configuration.NSQ.Topic = DefaultNSQTopic
	}
	if configuration.NSQ.Channel == "" {
		configuration.NSQ.Channel = DefaultNSQChannel
	}
	if configuration.NSQ.MaxInFlight <= 0 {
		configuration.NSQ.MaxInFlight = DefaultNSQMaxInFlight
	}
	if configuration.NSQ.Concurrency <= 0 {
		configuration.NSQ.Concurrency = DefaultNSQConcurrency
	}
	if configuration.NSQ.MaxAttempts == 0 {
		configuration.NSQ.MaxAttempts = DefaultNSQMaxAttempts
	}
	if configuration.NSQ.DLQTopic == "" {
		configuration.NSQ.DLQTopic = configuration.NSQ.Topic + DefaultDLQTopicSuffix
	}

	if configuration.Stream.Buffer <= 0 {
		configuration.Stream.Buffer = DefaultStreamBuffer
	}
}

// AsyncEnabled 是否启用了异步触发队列
func (configuration *Config) AsyncEnabled() bool {
	return configuration.NSQ.NsqdAddr != ""
}

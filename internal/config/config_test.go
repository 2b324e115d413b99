package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restock-notify/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
HTTP:
  Addr: ":9090"
MySQL:
  DSN: "root:root@tcp(127.0.0.1:3306)/restock"
Redis:
  Addr: "127.0.0.1:6379"
  StockTTL: 10s
NSQ:
  NsqdAddr: "127.0.0.1:4150"
`)

	configuration, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", configuration.HTTP.Addr)
	assert.Equal(t, 10*time.Second, configuration.Redis.StockTTL)
	assert.True(t, configuration.AsyncEnabled())

	// 缺省字段被默认值填充
	assert.Equal(t, config.DefaultRequestTimeout, configuration.HTTP.RequestTimeout)
	assert.Equal(t, float64(config.DefaultRateLimitPerSecond), configuration.RateLimit.PerSecond)
	assert.Equal(t, config.DefaultRedisNamespace, configuration.Redis.Namespace)
	assert.Equal(t, config.DefaultNSQTopic, configuration.NSQ.Topic)
	assert.Equal(t, config.DefaultNSQTopic+config.DefaultDLQTopicSuffix, configuration.NSQ.DLQTopic)
	assert.Equal(t, config.DefaultStreamBuffer, configuration.Stream.Buffer)
}

func TestLoadConfigConsumerAddressesDefaultToNsqd(t *testing.T) {
	path := writeConfigFile(t, `
MySQL:
  DSN: "root:root@tcp(127.0.0.1:3306)/restock"
Redis:
  Addr: "127.0.0.1:6379"
NSQ:
  NsqdAddr: "127.0.0.1:4150"
`)

	configuration, err := config.LoadConfig(path)
	require.NoError(t, err)

	// 未单独配置消费者地址时复用生产者的 nsqd
	assert.Equal(t, []string{"127.0.0.1:4150"}, configuration.NSQ.NsqdAddrs)
}

func TestLoadConfigAsyncDisabledWithoutNsqd(t *testing.T) {
	path := writeConfigFile(t, `
MySQL:
  DSN: "root:root@tcp(127.0.0.1:3306)/restock"
Redis:
  Addr: "127.0.0.1:6379"
`)

	configuration, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, configuration.AsyncEnabled())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "HTTP: [not a mapping")
	_, err := config.LoadConfig(path)
	require.Error(t, err)
}

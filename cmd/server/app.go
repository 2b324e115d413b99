package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"restock-notify/internal/config"
)

const (
	configFilePath         = "etc/app.yaml"
	gracefulShutdownPeriod = 5 * time.Second
)

//
// HTTP 服务器管理
//

// ServerManager HTTP 服务器管理器
type ServerManager struct {
	server *http.Server
}

// NewServerManager 创建服务器管理器实例
func NewServerManager(address string, handler http.Handler) *ServerManager {
	return &ServerManager{
		server: &http.Server{
			Addr:    address,
			Handler: handler,
		},
	}
}

// Start 启动 HTTP 服务器(非阻塞)
func (manager *ServerManager) Start() {
	go func() {
		log.Printf("[HTTP] 服务监听于 %s", manager.server.Addr)
		if err := manager.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[HTTP] 服务启动失败: %v", err)
		}
	}()
}

// Shutdown 优雅关闭 HTTP 服务器
func (manager *ServerManager) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer cancel()

	if err := manager.server.Shutdown(ctx); err != nil {
		log.Printf("[HTTP] 优雅关闭失败: %v", err)
	}
}

//
// 应用启动器
//

// ApplicationRunner 应用启动器
// 负责配置加载、依赖组装、服务启动与优雅退出
type ApplicationRunner struct{}

// NewApplicationRunner 创建应用启动器实例
func NewApplicationRunner() *ApplicationRunner {
	return &ApplicationRunner{}
}

// Run 启动应用并阻塞直到收到退出信号
func (runner *ApplicationRunner) Run() {
	configuration, err := loadConfiguration()
	if err != nil {
		log.Fatalf("[APP] 加载配置失败: %v", err)
	}

	appContext, err := NewAppContext(configuration)
	if err != nil {
		log.Fatalf("[APP] 组装应用上下文失败: %v", err)
	}
	defer appContext.Close()

	runner.startConsumer(appContext)

	router := NewRouter(appContext)
	serverManager := NewServerManager(configuration.HTTP.Addr, router)
	serverManager.Start()

	runner.waitForShutdownSignal()
	serverManager.Shutdown()
}

// startConsumer 启动 NSQ 消费者(如果配置了异步队列)
func (runner *ApplicationRunner) startConsumer(appContext *AppContext) {
	if appContext.Consumer == nil {
		return
	}

	go func() {
		if err := appContext.Consumer.Run(); err != nil {
			log.Printf("[APP] NSQ 消费者退出: %v", err)
		}
	}()
}

// waitForShutdownSignal 阻塞等待退出信号
func (runner *ApplicationRunner) waitForShutdownSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	received := <-signals
	log.Printf("[APP] 收到退出信号: %v", received)
}

// loadConfiguration 加载配置文件
// 支持通过环境变量 APP_CONFIG 覆盖默认路径
func loadConfiguration() (config.Config, error) {
	path := configFilePath
	if override := os.Getenv("APP_CONFIG"); override != "" {
		path = override
	}
	return config.LoadConfig(path)
}

package main

import (
	"log"

	redis "github.com/redis/go-redis/v9"

	"restock-notify/internal/cache"
	"restock-notify/internal/catalog"
	"restock-notify/internal/config"
	"restock-notify/internal/database"
	"restock-notify/internal/history"
	"restock-notify/internal/httpapi"
	"restock-notify/internal/notify"
	"restock-notify/internal/queue"
	"restock-notify/internal/stream"
	"restock-notify/internal/subscription"
)

// AppContext 应用运行时上下文
// 聚合所有运行期依赖,统一管理生命周期
type AppContext struct {
	Config      config.Config
	RedisClient *redis.Client
	MySQL       *database.MySQLDB

	CatalogStore      *catalog.Store
	SubscriptionStore *subscription.Store
	HistoryStore      *history.Store

	Resolver   *notify.Resolver
	Tracker    *notify.Tracker
	Dispatcher *notify.Dispatcher
	Service    *notify.Service

	Hub      *stream.Hub
	Enqueuer queue.Enqueuer
	Consumer *queue.NSQConsumer

	Handler *httpapi.Handler
}

// NewAppContext 按依赖顺序组装应用上下文
func NewAppContext(configuration config.Config) (*AppContext, error) {
	mysqlDB, err := database.NewMySQLDB(configuration.MySQL)
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.InitTables(); err != nil {
		mysqlDB.Close()
		return nil, err
	}

	redisClient := cache.NewRedisClient(configuration.Redis)
	redisCache := cache.NewRedisCache(redisClient, configuration.Redis.Namespace)

	catalogStore := catalog.NewStore(mysqlDB.DB)
	subscriptionStore := subscription.NewStore(mysqlDB.DB)
	historyStore := history.NewStore(mysqlDB.DB)

	hub := stream.NewHub(configuration.Stream.Buffer)

	resolver := notify.NewResolver(redisCache, catalogStore, subscriptionStore, configuration.Redis.StockTTL)
	tracker := notify.NewTracker(historyStore)
	dispatcher := notify.NewDispatcher(resolver, historyStore, tracker, hub)
	service := notify.NewService(resolver, tracker, dispatcher, catalogStore)

	appContext := &AppContext{
		Config:            configuration,
		RedisClient:       redisClient,
		MySQL:             mysqlDB,
		CatalogStore:      catalogStore,
		SubscriptionStore: subscriptionStore,
		HistoryStore:      historyStore,
		Resolver:          resolver,
		Tracker:           tracker,
		Dispatcher:        dispatcher,
		Service:           service,
		Hub:               hub,
	}

	if err := appContext.setupAsyncQueue(); err != nil {
		appContext.Close()
		return nil, err
	}

	appContext.Handler = httpapi.NewHandler(
		service, hub, appContext.Enqueuer,
		catalogStore, subscriptionStore, historyStore, resolver,
	)

	return appContext, nil
}

// setupAsyncQueue 组装 NSQ 异步触发队列(可选)
func (appContext *AppContext) setupAsyncQueue() error {
	if !appContext.Config.AsyncEnabled() {
		log.Printf("[APP] 未配置 NSQ,异步触发模式不可用")
		return nil
	}

	nsqConfig := appContext.Config.NSQ

	producer, err := queue.NewNSQProducer(nsqConfig.NsqdAddr, nsqConfig.Topic)
	if err != nil {
		return err
	}
	appContext.Enqueuer = producer

	consumer, err := queue.NewNSQConsumer(queue.ConsumerConfig{
		Topic:                nsqConfig.Topic,
		Channel:              nsqConfig.Channel,
		MaxInFlight:          nsqConfig.MaxInFlight,
		Concurrency:          nsqConfig.Concurrency,
		NsqdAddresses:        nsqConfig.NsqdAddrs,
		LookupdAddresses:     nsqConfig.LookupdAddrs,
		DLQTopic:             nsqConfig.DLQTopic,
		MaxAttemptsBeforeDLQ: nsqConfig.MaxAttempts,
		Handler:              NewDispatchJobHandler(appContext.Service),
	})
	if err != nil {
		return err
	}

	if err := consumer.AttachDLQProducer(nsqConfig.NsqdAddr); err != nil {
		return err
	}

	appContext.Consumer = consumer
	return nil
}

// Close 释放应用上下文持有的所有资源
// 按照依赖关系倒序释放,避免资源泄漏
func (appContext *AppContext) Close() {
	if appContext.Consumer != nil {
		appContext.Consumer.Stop()
	}
	if appContext.Enqueuer != nil {
		appContext.Enqueuer.Close()
	}
	if appContext.Hub != nil {
		appContext.Hub.Close()
	}
	if appContext.RedisClient != nil {
		appContext.RedisClient.Close()
	}
	if appContext.MySQL != nil {
		appContext.MySQL.Close()
	}
}

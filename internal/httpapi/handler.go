package httpapi

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"restock-notify/internal/notify"
	"restock-notify/internal/queue"
	"restock-notify/internal/stream"
)

// ==================== 常量定义 ====================

const (
	// SSE 事件类型
	sseEventRestock = "restock-notification"

	// 触发模式
	triggerModeAsync = "async"

	// 响应消息常量
	messageDispatchSuccess = "补货通知发送成功"
	messageDispatchQueued  = "补货通知任务已入队"
	messageRateLimited     = "请求过于频繁,请稍后再试"
	messageAsyncDisabled   = "异步触发模式未启用"
	messageInvalidProduct  = "商品ID非法"
)

// ==================== 接口定义 ====================

// Engine 补货通知引擎接口
// 解耦 HTTP 层与业务实现
type Engine interface {
	ProcessRestockNotification(ctx context.Context, productID int64) error
	ProcessRestockNotificationManual(ctx context.Context, productID int64) error
}

// CatalogAdmin 商品管理接口
type CatalogAdmin interface {
	CreateProduct(ctx context.Context, name string, stock int) (notify.Product, error)
	UpdateStock(ctx context.Context, productID int64, stock int) error
}

// SubscriptionAdmin 订阅管理接口
type SubscriptionAdmin interface {
	Subscribe(ctx context.Context, productID int64, userID int64) error
}

// RoundHistory 回次历史查询接口
type RoundHistory interface {
	RecentRounds(ctx context.Context, productID int64, limit int) ([]notify.Round, error)
}

// CacheMaintainer 管理接口写路径上的缓存维护
type CacheMaintainer interface {
	UpdateStockCache(ctx context.Context, productID int64, stock int) error
	InvalidateRecipients(ctx context.Context, productID int64) error
}

// ==================== 数据模型定义 ====================

// UnifiedResponse 统一的 API 响应格式
type UnifiedResponse struct {
	Code int         `json:"code"`
	Data interface{} `json:"data,omitempty"`
	Msg  string      `json:"msg"`
}

// ErrorResponse 错误响应格式
type ErrorResponse struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Path      string `json:"path"`
}

// CreateProductRequest 创建商品请求
type CreateProductRequest struct {
	Name  string `json:"name" binding:"required"`
	Stock int    `json:"stock" binding:"min=0"`
}

// SubscribeRequest 订阅请求
type SubscribeRequest struct {
	UserID int64 `json:"user_id" binding:"required,min=1"`
}

// UpdateStockRequest 库存调整请求
type UpdateStockRequest struct {
	Stock *int `json:"stock" binding:"required,min=0"`
}

// ==================== Handler 处理器 ====================

// Handler 补货通知 HTTP 处理器
type Handler struct {
	engine   Engine
	hub      *stream.Hub
	enqueuer queue.Enqueuer // 可为 nil,表示异步触发未启用
	catalog  CatalogAdmin
	subs     SubscriptionAdmin
	history  RoundHistory
	cache    CacheMaintainer
}

// NewHandler 创建 HTTP 处理器
func NewHandler(
	engine Engine,
	hub *stream.Hub,
	enqueuer queue.Enqueuer,
	catalog CatalogAdmin,
	subs SubscriptionAdmin,
	history RoundHistory,
	cache CacheMaintainer,
) *Handler {
	return &Handler{
		engine:   engine,
		hub:      hub,
		enqueuer: enqueuer,
		catalog:  catalog,
		subs:     subs,
		history:  history,
		cache:    cache,
	}
}

// ==================== 中间件 ====================

// RateLimitMiddleware 触发接口限流中间件
func RateLimitMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			writeError(c, http.StatusTooManyRequests, messageRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}

// ==================== 触发接口 ====================

// TriggerRestock 触发全新调度
// POST /products/:productId/notifications/re-stock?mode=sync|async
func (handler *Handler) TriggerRestock(c *gin.Context) {
	handler.trigger(c, false)
}

// TriggerRestockManual 触发手动续传
// POST /admin/products/:productId/notifications/re-stock?mode=sync|async
func (handler *Handler) TriggerRestockManual(c *gin.Context) {
	handler.trigger(c, true)
}

// trigger 触发调度的公共逻辑
func (handler *Handler) trigger(c *gin.Context, manual bool) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	if c.Query("mode") == triggerModeAsync {
		handler.enqueueDispatchJob(c, productID, manual)
		return
	}

	var err error
	if manual {
		err = handler.engine.ProcessRestockNotificationManual(c.Request.Context(), productID)
	} else {
		err = handler.engine.ProcessRestockNotification(c.Request.Context(), productID)
	}
	if err != nil {
		writeEngineError(c, err)
		return
	}

	writeSuccess(c, nil, messageDispatchSuccess)
}

// enqueueDispatchJob 异步模式:入队调度任务后立即返回
func (handler *Handler) enqueueDispatchJob(c *gin.Context, productID int64, manual bool) {
	if handler.enqueuer == nil {
		writeError(c, http.StatusServiceUnavailable, messageAsyncDisabled)
		return
	}

	job := queue.DispatchJob{
		JobID:     uuid.NewString(),
		ProductID: productID,
		Manual:    manual,
	}

	payload, err := queue.EncodeJob(job)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	if err := handler.enqueuer.Enqueue(c.Request.Context(), payload); err != nil {
		log.Printf("[HTTP] 调度任务入队失败: product=%d err=%v", productID, err)
		writeError(c, http.StatusInternalServerError, "调度任务入队失败")
		return
	}

	c.JSON(http.StatusAccepted, UnifiedResponse{
		Code: http.StatusAccepted,
		Data: gin.H{"job_id": job.JobID},
		Msg:  messageDispatchQueued,
	})
}

// ==================== 实时流接口 ====================

// StreamNotifications 订阅实时补货通知流
// GET /notifications/stream
// 连接后开始接收广播消息,连接前发布的消息不会补发
func (handler *Handler) StreamNotifications(c *gin.Context) {
	messages, cancel := handler.hub.Subscribe()
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case message, open := <-messages:
			if !open {
				return false
			}
			c.SSEvent(sseEventRestock, message)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// ==================== 管理接口 ====================

// CreateProduct 创建商品
// POST /admin/products
func (handler *Handler) CreateProduct(c *gin.Context) {
	var request CreateProductRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeError(c, http.StatusBadRequest, "请求参数非法: "+err.Error())
		return
	}

	product, err := handler.catalog.CreateProduct(c.Request.Context(), request.Name, request.Stock)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	writeSuccess(c, product, "success")
}

// Subscribe 建立补货订阅
// POST /admin/products/:productId/subscriptions
func (handler *Handler) Subscribe(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	var request SubscribeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeError(c, http.StatusBadRequest, "请求参数非法: "+err.Error())
		return
	}

	if err := handler.subs.Subscribe(c.Request.Context(), productID, request.UserID); err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	// 订阅集合变更,失效收件人缓存
	if err := handler.cache.InvalidateRecipients(c.Request.Context(), productID); err != nil {
		log.Printf("[HTTP] 收件人缓存失效失败: product=%d err=%v", productID, err)
	}

	writeSuccess(c, nil, "success")
}

// UpdateStock 调整库存
// PUT /admin/products/:productId/stock
// 同时写库存行与库存缓存,模拟外部补货/扣减流程
func (handler *Handler) UpdateStock(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	var request UpdateStockRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeError(c, http.StatusBadRequest, "请求参数非法: "+err.Error())
		return
	}

	if err := handler.catalog.UpdateStock(c.Request.Context(), productID, *request.Stock); err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	if err := handler.cache.UpdateStockCache(c.Request.Context(), productID, *request.Stock); err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	writeSuccess(c, nil, "success")
}

// NotificationHistory 查询回次历史
// GET /admin/products/:productId/notifications/history?limit=N
func (handler *Handler) NotificationHistory(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	rounds, err := handler.history.RecentRounds(c.Request.Context(), productID, limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	writeSuccess(c, rounds, "success")
}

// ==================== 辅助函数 - 响应处理 ====================

// parseProductID 解析路径中的商品ID
func parseProductID(c *gin.Context) (int64, bool) {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil || productID <= 0 {
		writeError(c, http.StatusBadRequest, messageInvalidProduct)
		return 0, false
	}
	return productID, true
}

// writeSuccess 发送成功响应
func writeSuccess(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, UnifiedResponse{
		Code: http.StatusOK,
		Data: data,
		Msg:  message,
	})
}

// writeError 发送错误响应
func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{
		Timestamp: time.Now().Format(time.RFC3339),
		Status:    status,
		Message:   message,
		Path:      c.Request.URL.Path,
	})
}

// writeEngineError 将引擎错误映射为 HTTP 状态码
// 校验类失败对客户端可见;售罄中断可通过手动续传恢复;其余按服务端错误处理
func writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, notify.ErrProductNotFound),
		errors.Is(err, notify.ErrOutOfStock),
		errors.Is(err, notify.ErrNoRecipients):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, notify.ErrStockExhausted):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, notify.ErrNothingToResume):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, err.Error())
	}
}

package notify

import (
	"context"
	"time"
)

// RoundStatus 通知回次状态
type RoundStatus string

// 回次状态常量
// 回次一旦离开 IN_PROGRESS 即为终态,不再变更
const (
	StatusInProgress        RoundStatus = "IN_PROGRESS"
	StatusCompleted         RoundStatus = "COMPLETED"
	StatusCanceledBySoldOut RoundStatus = "CANCELED_BY_SOLD_OUT"
	StatusCanceledByError   RoundStatus = "CANCELED_BY_ERROR"
)

// Terminal 是否为终态
func (status RoundStatus) Terminal() bool {
	return status != StatusInProgress
}

// Resumable 该状态下的回次是否允许手动续传
func (status RoundStatus) Resumable() bool {
	return status == StatusCanceledBySoldOut || status == StatusCanceledByError
}

// Product 商品
// stock 由外部流程扣减,引擎只读;restock_round 由引擎在全新调度时递增
type Product struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Stock        int    `json:"stock"`
	RestockRound int    `json:"restockRound"`
}

// Round 通知回次记录
// 每次调度(全新或续传)追加一行;LastNotifiedUserID 为 0 表示尚未通知任何用户
type Round struct {
	ID                 int64       `json:"id"`
	ProductID          int64       `json:"productId"`
	RestockRound       int         `json:"restockRound"`
	LastNotifiedUserID int64       `json:"lastNotifiedUserId"`
	Status             RoundStatus `json:"status"`
	CreatedAt          int64       `json:"createdAt"`
}

// DeliveryRecord 用户送达记录
// 回次内每成功通知一个用户追加一行
type DeliveryRecord struct {
	ProductID    int64 `json:"productId"`
	RestockRound int   `json:"restockRound"`
	UserID       int64 `json:"userId"`
	CreatedAt    int64 `json:"createdAt"`
}

// ==================== 外部协作者接口 ====================

// ProductStore 商品持久化存储
type ProductStore interface {
	// GetProduct 按 ID 查询商品,不存在时第二个返回值为 false
	GetProduct(ctx context.Context, productID int64) (Product, bool, error)
	// UpdateRestockRound 持久化递增后的补货回次
	UpdateRestockRound(ctx context.Context, productID int64, restockRound int) error
}

// SubscriptionStore 订阅关系存储(引擎只读)
type SubscriptionStore interface {
	// SubscriberIDs 返回商品的全部订阅用户ID,按用户ID升序
	SubscriberIDs(ctx context.Context, productID int64) ([]int64, error)
}

// RoundStore 通知回次存储
type RoundStore interface {
	// CreateRound 追加一条回次记录并回填自增ID
	CreateRound(ctx context.Context, round Round) (Round, error)
	// UpdateRound 更新回次的状态与最后通知用户
	UpdateRound(ctx context.Context, round Round) error
	// MostRecentRound 返回商品按创建顺序最新的一条回次,不存在时第二个返回值为 false
	MostRecentRound(ctx context.Context, productID int64) (Round, bool, error)
}

// DeliveryStore 用户送达记录存储
type DeliveryStore interface {
	SaveDelivery(ctx context.Context, record DeliveryRecord) error
}

// Cache 键值缓存
// 仅作为读取加速器,写入失败不应影响主流程
type Cache interface {
	// Get 读取缓存,键不存在时第二个返回值为 false
	Get(ctx context.Context, key string) (string, bool, error)
	// Set 写入缓存,不过期
	Set(ctx context.Context, key string, value string) error
	// SetWithTTL 写入带过期时间的缓存
	SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error
	// Delete 删除缓存键,键不存在不报错
	Delete(ctx context.Context, key string) error
}

// Broadcaster 进程内广播流
// 发布不阻塞,无订阅者时静默成功;迟到的订阅者收不到历史消息
type Broadcaster interface {
	Publish(message string)
}

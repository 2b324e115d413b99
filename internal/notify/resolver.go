package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// 缓存键格式常量
const (
	productKeyFormat    = "product:%d"
	stockKeyFormat      = "productStock:%d"
	recipientsKeyFormat = "productNotificationUserIds:%d"

	recipientsSeparator = ","
)

func productKey(productID int64) string {
	return fmt.Sprintf(productKeyFormat, productID)
}

func stockKey(productID int64) string {
	return fmt.Sprintf(stockKeyFormat, productID)
}

func recipientsKey(productID int64) string {
	return fmt.Sprintf(recipientsKeyFormat, productID)
}

// Resolver 缓存旁路解析器
// 优先读缓存,未命中时回源持久化存储并回填缓存
// 缓存写入均为尽力而为,失败只记录日志不影响读取结果
type Resolver struct {
	cache    Cache
	products ProductStore
	subs     SubscriptionStore
	stockTTL time.Duration

	// 合并同一键上并发的回源查询
	group singleflight.Group
}

// NewResolver 创建缓存旁路解析器
// stockTTL 限制库存缓存的最长陈旧时间,外部扣减不经过本服务的缓存
func NewResolver(cache Cache, products ProductStore, subs SubscriptionStore, stockTTL time.Duration) *Resolver {
	return &Resolver{
		cache:    cache,
		products: products,
		subs:     subs,
		stockTTL: stockTTL,
	}
}

// ==================== 商品与库存 ====================

// Product 解析商品
// 缓存命中直接返回,不再对持久化存储做一致性校验
func (resolver *Resolver) Product(ctx context.Context, productID int64) (Product, error) {
	key := productKey(productID)

	if raw, hit := resolver.cacheGet(ctx, key); hit {
		var product Product
		if err := json.Unmarshal([]byte(raw), &product); err == nil {
			return product, nil
		}
		log.Printf("[RESOLVER] 商品缓存内容损坏,回源重建: %s", key)
	}

	value, err, _ := resolver.group.Do(key, func() (interface{}, error) {
		product, found, err := resolver.products.GetProduct(ctx, productID)
		if err != nil {
			return Product{}, fmt.Errorf("查询商品失败: %w", err)
		}
		if !found {
			return Product{}, ErrProductNotFound
		}
		resolver.cachePutProduct(ctx, product)
		return product, nil
	})
	if err != nil {
		return Product{}, err
	}

	return value.(Product), nil
}

// Stock 解析当前库存
// 缓存未命中时以商品行里的库存为准并回填缓存
func (resolver *Resolver) Stock(ctx context.Context, product Product) (int, error) {
	key := stockKey(product.ID)

	if raw, hit := resolver.cacheGet(ctx, key); hit {
		if stock, err := strconv.Atoi(raw); err == nil {
			return stock, nil
		}
		log.Printf("[RESOLVER] 库存缓存内容损坏,按商品行重建: %s", key)
	}

	stock := product.Stock
	if err := resolver.cache.SetWithTTL(ctx, key, strconv.Itoa(stock), resolver.stockTTL); err != nil {
		log.Printf("[RESOLVER] 库存缓存写入失败: %v", err)
	}
	return stock, nil
}

// LiveStock 只读缓存中的实时库存,供发送循环在每个用户之间复查
// 与 Stock 不同:不回源商品行,键不存在时第二个返回值为 false
func (resolver *Resolver) LiveStock(ctx context.Context, productID int64) (int, bool, error) {
	raw, hit, err := resolver.cache.Get(ctx, stockKey(productID))
	if err != nil {
		return 0, false, fmt.Errorf("查询实时库存失败: %w", err)
	}
	if !hit {
		return 0, false, nil
	}

	stock, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("实时库存缓存内容非法: %w", err)
	}
	return stock, true, nil
}

// EnsureStockAvailable 入口处校验库存
func EnsureStockAvailable(stock int) error {
	if stock <= 0 {
		return ErrOutOfStock
	}
	return nil
}

// RefreshProduct 回次递增后刷新商品缓存
func (resolver *Resolver) RefreshProduct(ctx context.Context, product Product) {
	resolver.cachePutProduct(ctx, product)
}

// UpdateStockCache 覆写库存缓存
// 供管理接口在调整库存行后同步缓存使用
func (resolver *Resolver) UpdateStockCache(ctx context.Context, productID int64, stock int) error {
	return resolver.cache.SetWithTTL(ctx, stockKey(productID), strconv.Itoa(stock), resolver.stockTTL)
}

// ==================== 收件人集合 ====================

// Recipients 解析全量订阅用户ID(全新调度路径)
func (resolver *Resolver) Recipients(ctx context.Context, productID int64) ([]int64, error) {
	userIDs, err := resolver.recipientList(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, ErrNoRecipients
	}
	return userIDs, nil
}

// RemainingRecipients 解析续传剩余的订阅用户ID
// 先还原完整列表再在内存中过滤 userID > lastUserID,过滤后为空同样视为无收件人
func (resolver *Resolver) RemainingRecipients(ctx context.Context, productID int64, lastUserID int64) ([]int64, error) {
	userIDs, err := resolver.recipientList(ctx, productID)
	if err != nil {
		return nil, err
	}

	remaining := make([]int64, 0, len(userIDs))
	for _, userID := range userIDs {
		if userID > lastUserID {
			remaining = append(remaining, userID)
		}
	}
	if len(remaining) == 0 {
		return nil, ErrNoRecipients
	}
	return remaining, nil
}

// InvalidateRecipients 订阅关系变更后失效收件人缓存
func (resolver *Resolver) InvalidateRecipients(ctx context.Context, productID int64) error {
	return resolver.cache.Delete(ctx, recipientsKey(productID))
}

// recipientList 还原完整的订阅用户ID列表
// 缓存以逗号拼接的ID序列存储;空列表不写缓存
func (resolver *Resolver) recipientList(ctx context.Context, productID int64) ([]int64, error) {
	key := recipientsKey(productID)

	if raw, hit := resolver.cacheGet(ctx, key); hit {
		userIDs, err := parseRecipients(raw)
		if err == nil {
			return userIDs, nil
		}
		log.Printf("[RESOLVER] 收件人缓存内容损坏,回源重建: %s", key)
	}

	value, err, _ := resolver.group.Do(key, func() (interface{}, error) {
		userIDs, err := resolver.subs.SubscriberIDs(ctx, productID)
		if err != nil {
			return nil, fmt.Errorf("查询订阅用户失败: %w", err)
		}
		if len(userIDs) > 0 {
			if err := resolver.cache.Set(ctx, key, joinRecipients(userIDs)); err != nil {
				log.Printf("[RESOLVER] 收件人缓存写入失败: %v", err)
			}
		}
		return userIDs, nil
	})
	if err != nil {
		return nil, err
	}

	return value.([]int64), nil
}

// ==================== 私有辅助方法 ====================

// cacheGet 读取缓存,读取失败按未命中处理
func (resolver *Resolver) cacheGet(ctx context.Context, key string) (string, bool) {
	raw, hit, err := resolver.cache.Get(ctx, key)
	if err != nil {
		log.Printf("[RESOLVER] 缓存读取失败,按未命中回源: key=%s err=%v", key, err)
		return "", false
	}
	return raw, hit
}

// cachePutProduct 序列化商品并写入缓存
func (resolver *Resolver) cachePutProduct(ctx context.Context, product Product) {
	data, err := json.Marshal(product)
	if err != nil {
		log.Printf("[RESOLVER] 商品序列化失败: %v", err)
		return
	}
	if err := resolver.cache.Set(ctx, productKey(product.ID), string(data)); err != nil {
		log.Printf("[RESOLVER] 商品缓存写入失败: %v", err)
	}
}

func joinRecipients(userIDs []int64) string {
	parts := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		parts = append(parts, strconv.FormatInt(userID, 10))
	}
	return strings.Join(parts, recipientsSeparator)
}

func parseRecipients(raw string) ([]int64, error) {
	parts := strings.Split(raw, recipientsSeparator)
	userIDs := make([]int64, 0, len(parts))
	for _, part := range parts {
		userID, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, nil
}

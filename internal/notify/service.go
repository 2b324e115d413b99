package notify

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Service 补货通知服务
// 编排全新调度与手动续传两条入口,并负责异常上报:
// 任意非预期错误都会在传播前追加一条 CANCELED_BY_ERROR 审计回次。
// 同一商品的并发触发通过进程内互斥锁串行化,避免回次号竞争。
type Service struct {
	resolver   *Resolver
	tracker    *Tracker
	dispatcher *Dispatcher
	products   ProductStore

	locks productLocks
}

// NewService 创建补货通知服务
func NewService(resolver *Resolver, tracker *Tracker, dispatcher *Dispatcher, products ProductStore) *Service {
	return &Service{
		resolver:   resolver,
		tracker:    tracker,
		dispatcher: dispatcher,
		products:   products,
	}
}

// ==================== 调度入口 ====================

// ProcessRestockNotification 全新调度
// 面向全部当前订阅用户,补货回次递增一次
func (service *Service) ProcessRestockNotification(ctx context.Context, productID int64) error {
	unlock := service.locks.acquire(productID)
	defer unlock()

	product, stock, err := service.resolveProductAndStock(ctx, productID)
	if err != nil {
		return err
	}
	if err := EnsureStockAvailable(stock); err != nil {
		return err
	}

	recipients, err := service.resolver.Recipients(ctx, productID)
	if err != nil {
		return service.classifyFailure(ctx, productID, err)
	}

	// 递增补货回次并持久化,随后刷新商品缓存
	product.RestockRound++
	if err := service.products.UpdateRestockRound(ctx, product.ID, product.RestockRound); err != nil {
		return service.reportFailure(ctx, productID, err)
	}
	service.resolver.RefreshProduct(ctx, product)

	return service.openAndDispatch(ctx, product, recipients)
}

// ProcessRestockNotificationManual 手动续传
// 仅面向最近一次中断回次断点之后的订阅用户,不递增补货回次
func (service *Service) ProcessRestockNotificationManual(ctx context.Context, productID int64) error {
	unlock := service.locks.acquire(productID)
	defer unlock()

	product, stock, err := service.resolveProductAndStock(ctx, productID)
	if err != nil {
		return err
	}
	if err := EnsureStockAvailable(stock); err != nil {
		return err
	}

	last, found, err := service.tracker.MostRecentRound(ctx, productID)
	if err != nil {
		return service.reportFailure(ctx, productID, err)
	}
	if !found || !last.Status.Resumable() {
		return ErrNothingToResume
	}

	recipients, err := service.resolver.RemainingRecipients(ctx, productID, last.LastNotifiedUserID)
	if err != nil {
		return service.classifyFailure(ctx, productID, err)
	}

	return service.openAndDispatch(ctx, product, recipients)
}

// openAndDispatch 开启回次并执行发送
// 售罄中断由调度器自行落库终态,原样向上传播;其余错误走异常上报
func (service *Service) openAndDispatch(ctx context.Context, product Product, recipients []int64) error {
	round, err := service.tracker.OpenRound(ctx, product.ID, product.RestockRound)
	if err != nil {
		return service.reportFailure(ctx, product.ID, err)
	}

	if _, err := service.dispatcher.Dispatch(ctx, product, recipients, round); err != nil {
		if errors.Is(err, ErrStockExhausted) {
			return err
		}
		return service.reportFailure(ctx, product.ID, err)
	}
	return nil
}

// resolveProductAndStock 解析商品与入口库存
func (service *Service) resolveProductAndStock(ctx context.Context, productID int64) (Product, int, error) {
	product, err := service.resolver.Product(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return Product{}, 0, err
		}
		return Product{}, 0, service.reportFailure(ctx, productID, err)
	}

	stock, err := service.resolver.Stock(ctx, product)
	if err != nil {
		return Product{}, 0, service.reportFailure(ctx, productID, err)
	}
	return product, stock, nil
}

// ==================== 异常上报 ====================

// classifyFailure 区分校验类失败与存储类失败
// 校验类失败(无收件人等)不开启回次也不写审计回次,直接返回
func (service *Service) classifyFailure(ctx context.Context, productID int64, err error) error {
	if errors.Is(err, ErrNoRecipients) {
		return err
	}
	return service.reportFailure(ctx, productID, err)
}

// reportFailure 异常上报
// 先追加 CANCELED_BY_ERROR 审计回次,再原样返回触发错误;
// 审计回次本身写入失败只记录日志,不吞掉原始错误
func (service *Service) reportFailure(ctx context.Context, productID int64, cause error) error {
	log.Printf("[NOTIFY] 补货通知流程异常: product=%d err=%v", productID, cause)

	if _, err := service.tracker.AppendErrorRound(ctx, productID); err != nil {
		log.Printf("[NOTIFY] 追加异常审计回次失败: product=%d err=%v", productID, err)
	}
	return cause
}

// ==================== 商品级互斥 ====================

// productLocks 按商品ID分配的进程内互斥锁
// 锁对象一经创建不回收,商品数量级下开销可忽略
type productLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// acquire 锁定指定商品,返回解锁函数
func (locks *productLocks) acquire(productID int64) func() {
	locks.mu.Lock()
	if locks.locks == nil {
		locks.locks = make(map[int64]*sync.Mutex)
	}
	lock, ok := locks.locks[productID]
	if !ok {
		lock = &sync.Mutex{}
		locks.locks[productID] = lock
	}
	locks.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

package notify

import (
	"context"
	"fmt"
	"log"
	"time"
)

// 广播消息格式:回次开始时向广播流发布一条
const roundStartMessageFormat = "restock notification - product [%s]"

// LiveStockReader 实时库存读取接口
// 发送循环在每个用户之间通过它复查库存,捕捉外部扣减
type LiveStockReader interface {
	LiveStock(ctx context.Context, productID int64) (int, bool, error)
}

// Dispatcher 广播调度器
// 对收件人列表做严格顺序的单遍发送:每个用户发送前复查实时库存,
// 先落库送达记录、再推进回次断点;库存归零立即终止整个回次。
// 收件人之间不做并发,否则无法保证售罄即停的语义。
type Dispatcher struct {
	stock       LiveStockReader
	deliveries  DeliveryStore
	tracker     *Tracker
	broadcaster Broadcaster
	currentTime func() time.Time
}

// NewDispatcher 创建广播调度器
func NewDispatcher(stock LiveStockReader, deliveries DeliveryStore, tracker *Tracker, broadcaster Broadcaster) *Dispatcher {
	return &Dispatcher{
		stock:       stock,
		deliveries:  deliveries,
		tracker:     tracker,
		broadcaster: broadcaster,
		currentTime: time.Now,
	}
}

// SetTimeProvider 设置时间提供函数(主要用于测试)
func (dispatcher *Dispatcher) SetTimeProvider(provider func() time.Time) {
	dispatcher.currentTime = provider
}

// Dispatch 执行一个回次的发送
// 返回推进后的回次值;售罄中断时回次已被标记 CANCELED_BY_SOLD_OUT
// 并返回 ErrStockExhausted,其余错误不在此处理,由上层走异常上报
func (dispatcher *Dispatcher) Dispatch(ctx context.Context, product Product, recipients []int64, round Round) (Round, error) {
	dispatcher.broadcaster.Publish(fmt.Sprintf(roundStartMessageFormat, product.Name))
	log.Printf("[DISPATCHER] 回次开始: product=%d round=%d recipients=%d", product.ID, round.RestockRound, len(recipients))

	for _, userID := range recipients {
		stock, present, err := dispatcher.stock.LiveStock(ctx, product.ID)
		if err != nil {
			return round, err
		}

		if !present || stock <= 0 {
			log.Printf("[DISPATCHER] 库存归零,终止回次: product=%d lastUser=%d", product.ID, round.LastNotifiedUserID)
			round, err = dispatcher.tracker.MarkCanceledBySoldOut(ctx, round)
			if err != nil {
				return round, err
			}
			return round, ErrStockExhausted
		}

		// 先落库送达记录,再推进断点:两步之间崩溃时断点最多落后一个用户,
		// 续传按断点过滤,不会重复通知已推进过断点的用户
		record := DeliveryRecord{
			ProductID:    product.ID,
			RestockRound: round.RestockRound,
			UserID:       userID,
			CreatedAt:    dispatcher.currentTime().Unix(),
		}
		if err := dispatcher.deliveries.SaveDelivery(ctx, record); err != nil {
			return round, fmt.Errorf("写入送达记录失败: %w", err)
		}

		round, err = dispatcher.tracker.SetLastNotified(ctx, round, userID)
		if err != nil {
			return round, err
		}
	}

	round, err := dispatcher.tracker.MarkCompleted(ctx, round, round.LastNotifiedUserID)
	if err != nil {
		return round, err
	}

	log.Printf("[DISPATCHER] 回次完成: product=%d round=%d lastUser=%d", product.ID, round.RestockRound, round.LastNotifiedUserID)
	return round, nil
}

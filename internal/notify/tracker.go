package notify

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Tracker 调度历史跟踪器
// 维护每个商品追加式的回次序列;回次状态机为
// IN_PROGRESS -> COMPLETED / CANCELED_BY_SOLD_OUT / CANCELED_BY_ERROR
// 终态标记为幂等操作,重复调用以最后一次写入为准
type Tracker struct {
	rounds      RoundStore
	currentTime func() time.Time
}

// NewTracker 创建调度历史跟踪器
func NewTracker(rounds RoundStore) *Tracker {
	return &Tracker{
		rounds:      rounds,
		currentTime: time.Now,
	}
}

// SetTimeProvider 设置时间提供函数(主要用于测试)
func (tracker *Tracker) SetTimeProvider(provider func() time.Time) {
	tracker.currentTime = provider
}

// OpenRound 以 IN_PROGRESS 状态开启并立即持久化一条回次记录
func (tracker *Tracker) OpenRound(ctx context.Context, productID int64, restockRound int) (Round, error) {
	round := Round{
		ProductID:    productID,
		RestockRound: restockRound,
		Status:       StatusInProgress,
		CreatedAt:    tracker.currentTime().Unix(),
	}

	created, err := tracker.rounds.CreateRound(ctx, round)
	if err != nil {
		return Round{}, fmt.Errorf("开启通知回次失败: %w", err)
	}
	return created, nil
}

// SetLastNotified 推进回次的最后通知用户标记
// 必须在该用户的送达记录落库之后调用
func (tracker *Tracker) SetLastNotified(ctx context.Context, round Round, userID int64) (Round, error) {
	round.LastNotifiedUserID = userID
	if err := tracker.rounds.UpdateRound(ctx, round); err != nil {
		return round, fmt.Errorf("更新最后通知用户失败: %w", err)
	}
	return round, nil
}

// MarkCompleted 将回次标记为完成
func (tracker *Tracker) MarkCompleted(ctx context.Context, round Round, lastUserID int64) (Round, error) {
	round.LastNotifiedUserID = lastUserID
	round.Status = StatusCompleted
	if err := tracker.rounds.UpdateRound(ctx, round); err != nil {
		return round, fmt.Errorf("标记回次完成失败: %w", err)
	}
	return round, nil
}

// MarkCanceledBySoldOut 将回次标记为因售罄中断
func (tracker *Tracker) MarkCanceledBySoldOut(ctx context.Context, round Round) (Round, error) {
	round.Status = StatusCanceledBySoldOut
	if err := tracker.rounds.UpdateRound(ctx, round); err != nil {
		return round, fmt.Errorf("标记回次售罄中断失败: %w", err)
	}
	return round, nil
}

// MarkCanceledByError 将回次标记为因异常中断
func (tracker *Tracker) MarkCanceledByError(ctx context.Context, round Round, lastUserID int64) (Round, error) {
	round.LastNotifiedUserID = lastUserID
	round.Status = StatusCanceledByError
	if err := tracker.rounds.UpdateRound(ctx, round); err != nil {
		return round, fmt.Errorf("标记回次异常中断失败: %w", err)
	}
	return round, nil
}

// MostRecentRound 返回商品最近一次调度的回次记录
// 既用于判断可否续传,也为异常上报提供回次号与断点
func (tracker *Tracker) MostRecentRound(ctx context.Context, productID int64) (Round, bool, error) {
	return tracker.rounds.MostRecentRound(ctx, productID)
}

// AppendErrorRound 追加一条 CANCELED_BY_ERROR 终态回次
// 回次号与断点沿用最近一次回次,没有历史时回次号取 1、断点取 0
func (tracker *Tracker) AppendErrorRound(ctx context.Context, productID int64) (Round, error) {
	round := Round{
		ProductID:    productID,
		RestockRound: 1,
		Status:       StatusCanceledByError,
		CreatedAt:    tracker.currentTime().Unix(),
	}

	last, found, err := tracker.rounds.MostRecentRound(ctx, productID)
	if err != nil {
		log.Printf("[TRACKER] 查询最近回次失败,异常回次使用默认回次号: %v", err)
	} else if found {
		round.RestockRound = last.RestockRound
		round.LastNotifiedUserID = last.LastNotifiedUserID
	}

	created, err := tracker.rounds.CreateRound(ctx, round)
	if err != nil {
		return Round{}, fmt.Errorf("持久化异常回次失败: %w", err)
	}
	return created, nil
}

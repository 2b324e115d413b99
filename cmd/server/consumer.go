package main

import (
	"context"
	"errors"
	"log"

	"restock-notify/internal/notify"
	"restock-notify/internal/queue"
)

// NewDispatchJobHandler 创建异步调度任务的消费处理函数
// 校验类失败(商品不存在、无库存、无收件人、无可续传)重试也不会成功,
// 记录日志后确认消息;售罄中断已有审计回次且续传需人工触发,同样确认;
// 其余错误返回给 NSQ 走重试/DLQ
func NewDispatchJobHandler(service *notify.Service) queue.HandlerFunc {
	return func(ctx context.Context, payload []byte, attempts uint16) error {
		job, err := queue.DecodeJob(payload)
		if err != nil {
			log.Printf("[CONSUMER] 任务载荷非法,丢弃: %v", err)
			return nil
		}

		log.Printf("[CONSUMER] 处理调度任务: job=%s product=%d manual=%v attempts=%d",
			job.JobID, job.ProductID, job.Manual, attempts)

		if job.Manual {
			err = service.ProcessRestockNotificationManual(ctx, job.ProductID)
		} else {
			err = service.ProcessRestockNotification(ctx, job.ProductID)
		}
		if err == nil {
			return nil
		}

		if isTerminalJobError(err) {
			log.Printf("[CONSUMER] 任务以业务终态结束,不再重试: job=%s err=%v", job.JobID, err)
			return nil
		}

		log.Printf("[CONSUMER] 任务处理失败: job=%s err=%v", job.JobID, err)
		return err
	}
}

// isTerminalJobError 判断错误是否为不应重试的业务终态
func isTerminalJobError(err error) bool {
	return errors.Is(err, notify.ErrProductNotFound) ||
		errors.Is(err, notify.ErrOutOfStock) ||
		errors.Is(err, notify.ErrNoRecipients) ||
		errors.Is(err, notify.ErrStockExhausted) ||
		errors.Is(err, notify.ErrNothingToResume)
}

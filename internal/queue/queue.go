package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// DispatchJob 异步触发的调度任务
// Manual 为 true 时走手动续传路径
type DispatchJob struct {
	JobID     string `json:"job_id"`
	ProductID int64  `json:"product_id"`
	Manual    bool   `json:"manual"`
}

// EncodeJob 序列化调度任务
func EncodeJob(job DispatchJob) ([]byte, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("序列化调度任务失败: %w", err)
	}
	return payload, nil
}

// DecodeJob 反序列化调度任务
func DecodeJob(payload []byte) (DispatchJob, error) {
	var job DispatchJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return DispatchJob{}, fmt.Errorf("解析调度任务失败: %w", err)
	}
	return job, nil
}

// Enqueuer 任务入队接口
type Enqueuer interface {
	Enqueue(ctx context.Context, payload []byte) error
	Close()
}

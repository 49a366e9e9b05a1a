package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"mallpay/internal/logger"
	"mallpay/internal/notification"
	"mallpay/internal/worker/tasks"
)

// Client 任务队列客户端，封装 asynq 入队
type Client struct {
	client *asynq.Client
}

// NewClient 创建队列客户端
func NewClient(redisAddr, password string, db int) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		}),
	}
}

// Close 关闭队列连接
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueRefundCompletion 异步落地一笔待结算退款
// 以退款单号作为任务ID去重，重复入队只保留一个
func (c *Client) EnqueueRefundCompletion(ctx context.Context, refundID string) error {
	task, err := tasks.NewRefundCompleteTask(refundID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.TaskID("refund-complete-"+refundID),
		asynq.MaxRetry(10),
		asynq.Timeout(30*time.Second),
		asynq.Queue("critical"),
	)
	if err != nil {
		return fmt.Errorf("退款任务入队失败: %w", err)
	}
	logger.Info("退款完成任务入队", zap.String("refund_id", refundID))
	return nil
}

// EnqueueNotification 异步投递业务通知
func (c *Client) EnqueueNotification(ctx context.Context, event notification.Event) error {
	task, err := tasks.NewNotificationTask(event)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(3),
		asynq.Queue("default"),
	)
	if err != nil {
		return fmt.Errorf("通知任务入队失败: %w", err)
	}
	return nil
}

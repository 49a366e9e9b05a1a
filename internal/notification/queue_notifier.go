package notification

import (
	"context"

	"go.uber.org/zap"

	"mallpay/internal/logger"
)

// Enqueuer 通知入队器，由任务队列客户端实现
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, event Event) error
}

// QueueNotifier 经任务队列异步投递的通知实现
// 入队失败只记日志，不影响业务结果
type QueueNotifier struct {
	enqueuer Enqueuer
}

// NewQueueNotifier 创建队列通知器
func NewQueueNotifier(enqueuer Enqueuer) *QueueNotifier {
	return &QueueNotifier{enqueuer: enqueuer}
}

// Notify 将通知投递到任务队列
func (n *QueueNotifier) Notify(ctx context.Context, event Event) {
	if err := n.enqueuer.EnqueueNotification(ctx, event); err != nil {
		logger.Warn("通知入队失败",
			zap.String("type", string(event.Type)),
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
	}
}

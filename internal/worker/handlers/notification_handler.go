package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"mallpay/internal/notification"
	"mallpay/internal/worker/tasks"
)

// NotificationHandler 处理通知投递任务
type NotificationHandler struct {
	notifier notification.Notifier
}

// NewNotificationHandler 创建通知任务处理器
func NewNotificationHandler(notifier notification.Notifier) *NotificationHandler {
	return &NotificationHandler{notifier: notifier}
}

// HandleNotificationSend 投递一条业务通知
func (h *NotificationHandler) HandleNotificationSend(ctx context.Context, t *asynq.Task) error {
	var payload tasks.NotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("解析任务负载失败: %w: %w", err, asynq.SkipRetry)
	}
	h.notifier.Notify(ctx, payload.Event)
	return nil
}

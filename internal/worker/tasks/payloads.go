package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"mallpay/internal/notification"
)

// ============ 任务类型 ============

const (
	// TypeSettlementRun 周期结算批次
	TypeSettlementRun = "settlement:run"
	// TypeOrderAutoComplete 订单超期自动确认收货
	TypeOrderAutoComplete = "order:auto_complete"
	// TypeRefundComplete 退款资金落地（带重试）
	TypeRefundComplete = "refund:complete"
	// TypeNotificationSend 业务通知投递
	TypeNotificationSend = "notification:send"
)

// ============ 任务负载 ============

// RefundCompletePayload 退款完成任务负载
type RefundCompletePayload struct {
	RefundID string `json:"refundId"`
}

// NotificationPayload 通知任务负载
type NotificationPayload struct {
	Event notification.Event `json:"event"`
}

// NewSettlementRunTask 创建结算批次任务
func NewSettlementRunTask() *asynq.Task {
	return asynq.NewTask(TypeSettlementRun, nil)
}

// NewOrderAutoCompleteTask 创建订单自动完成任务
func NewOrderAutoCompleteTask() *asynq.Task {
	return asynq.NewTask(TypeOrderAutoComplete, nil)
}

// NewRefundCompleteTask 创建退款完成任务
func NewRefundCompleteTask(refundID string) (*asynq.Task, error) {
	payload, err := json.Marshal(RefundCompletePayload{RefundID: refundID})
	if err != nil {
		return nil, fmt.Errorf("序列化任务负载失败: %w", err)
	}
	return asynq.NewTask(TypeRefundComplete, payload), nil
}

// NewNotificationTask 创建通知任务
func NewNotificationTask(event notification.Event) (*asynq.Task, error) {
	payload, err := json.Marshal(NotificationPayload{Event: event})
	if err != nil {
		return nil, fmt.Errorf("序列化任务负载失败: %w", err)
	}
	return asynq.NewTask(TypeNotificationSend, payload), nil
}

package notification

import (
	"context"

	"go.uber.org/zap"

	"mallpay/internal/logger"
)

// EventType 业务通知类型
type EventType string

const (
	EventSellerPaidOut   EventType = "seller_paid_out"   // 结算打款到账
	EventRefundCompleted EventType = "refund_completed"  // 退款完成
	EventRefundRejected  EventType = "refund_rejected"   // 退款被驳回
)

// Event 业务通知
type Event struct {
	Type     EventType `json:"type"`
	UserID   string    `json:"userId"`   // 接收方
	OrderID  string    `json:"orderId"`
	RefundID string    `json:"refundId,omitempty"`
	Amount   string    `json:"amount,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Notifier 通知发送器
// 通知在业务事务提交后发送，发送失败不回滚业务
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// ============ 日志实现 ============

// LogNotifier 只记日志的通知实现，开发与测试环境使用
type LogNotifier struct{}

// NewLogNotifier 创建日志通知器
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify 记录通知日志
func (n *LogNotifier) Notify(ctx context.Context, event Event) {
	logger.Info("业务通知",
		zap.String("type", string(event.Type)),
		zap.String("user_id", event.UserID),
		zap.String("order_id", event.OrderID),
		zap.String("refund_id", event.RefundID),
		zap.String("amount", event.Amount),
	)
}

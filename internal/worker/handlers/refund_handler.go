package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"mallpay/internal/logger"
	"mallpay/internal/refund"
	"mallpay/internal/settlement"
	"mallpay/internal/worker/tasks"
)

// RefundHandler 处理退款资金落地任务
type RefundHandler struct {
	coordinator *settlement.Coordinator
}

// NewRefundHandler 创建退款任务处理器
func NewRefundHandler(coordinator *settlement.Coordinator) *RefundHandler {
	return &RefundHandler{coordinator: coordinator}
}

// HandleRefundComplete 完成一笔退款
// 网关失败返回错误交给 asynq 重试；重复投递和状态已变更按成功处理
func (h *RefundHandler) HandleRefundComplete(ctx context.Context, t *asynq.Task) error {
	var payload tasks.RefundCompletePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("解析任务负载失败: %w: %w", err, asynq.SkipRetry)
	}

	_, err := h.coordinator.Complete(ctx, payload.RefundID)
	if err != nil {
		if errors.Is(err, settlement.ErrAlreadyRefunded) {
			return nil
		}
		if errors.Is(err, refund.ErrInvalidStateTransition) || errors.Is(err, refund.ErrRefundNotFound) {
			logger.Warn("退款任务不再适用，放弃重试",
				zap.String("refund_id", payload.RefundID),
				zap.Error(err),
			)
			return nil
		}
		return err
	}
	return nil
}

package handlers

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"mallpay/internal/metrics"
	"mallpay/internal/order"
	"mallpay/internal/settlement"
)

// SettlementHandler 处理周期结算与订单自动完成任务
type SettlementHandler struct {
	scheduler         *settlement.Scheduler
	orders            *order.Service
	autoCompleteAfter time.Duration
	batchSize         int
}

// NewSettlementHandler 创建结算任务处理器
func NewSettlementHandler(scheduler *settlement.Scheduler, orders *order.Service,
	autoCompleteAfter time.Duration, batchSize int) *SettlementHandler {
	return &SettlementHandler{
		scheduler:         scheduler,
		orders:            orders,
		autoCompleteAfter: autoCompleteAfter,
		batchSize:         batchSize,
	}
}

// HandleSettlementRun 执行一个结算批次
func (h *SettlementHandler) HandleSettlementRun(ctx context.Context, t *asynq.Task) error {
	_, err := h.scheduler.RunOnce(ctx, time.Now())
	return err
}

// HandleOrderAutoComplete 超期未确认收货的订单批量置为完成
func (h *SettlementHandler) HandleOrderAutoComplete(ctx context.Context, t *asynq.Task) error {
	completed, err := h.orders.AutoCompletePass(ctx, time.Now(), h.autoCompleteAfter, h.batchSize)
	if err != nil {
		return err
	}
	metrics.OrdersAutoCompletedTotal.Add(float64(completed))
	return nil
}

package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"mallpay/internal/logger"
	"mallpay/internal/metrics"
	"mallpay/internal/order"
)

// Scheduler 周期结算调度器
// 扫描等待期已满的已支付未结算订单，逐单交给结算引擎
type Scheduler struct {
	db            *gorm.DB
	engine        *Engine
	waitingPeriod time.Duration
	batchSize     int
}

// NewScheduler 创建结算调度器
func NewScheduler(db *gorm.DB, engine *Engine, waitingPeriod time.Duration, batchSize int) *Scheduler {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Scheduler{
		db:            db,
		engine:        engine,
		waitingPeriod: waitingPeriod,
		batchSize:     batchSize,
	}
}

// RunOnce 执行一个结算批次，now 由调用方传入以便测试
// 逐单失败只记日志不中断批次，返回本批成功结算的订单数
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (int, error) {
	metrics.SchedulerRunsTotal.Inc()
	cutoff := now.Add(-s.waitingPeriod)

	// 等待期起点取完成时间，未确认收货的订单回退到创建时间
	var candidates []order.Order
	err := s.db.WithContext(ctx).
		Where("payment_status = ? AND settled_at IS NULL AND status <> ?",
			order.PaymentStatusPaid, order.StatusCancelled).
		Where("COALESCE(completed_at, created_at) <= ?", cutoff).
		Order("created_at ASC").
		Limit(s.batchSize).
		Find(&candidates).Error
	if err != nil {
		return 0, fmt.Errorf("查询待结算订单失败: %w", err)
	}

	settled := 0
	for _, ord := range candidates {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		_, err := s.engine.SettleOrder(ctx, ord.ID)
		switch {
		case err == nil:
			settled++
		case errors.Is(err, ErrAlreadySettled), errors.Is(err, ErrRefundInFlight):
			// 并发已结算或退款未决，下批次再看
			logger.Debug("跳过订单结算",
				zap.String("order_id", ord.ID),
				zap.Error(err),
			)
		default:
			logger.Error("订单结算失败",
				zap.String("order_id", ord.ID),
				zap.Error(err),
			)
		}
	}

	if len(candidates) > 0 {
		logger.Info("结算批次结束",
			zap.Int("candidates", len(candidates)),
			zap.Int("settled", settled),
		)
	}
	return settled, nil
}

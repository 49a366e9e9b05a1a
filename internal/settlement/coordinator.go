package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mallpay/internal/common"
	"mallpay/internal/ledger"
	"mallpay/internal/logger"
	"mallpay/internal/metrics"
	"mallpay/internal/notification"
	"mallpay/internal/order"
	"mallpay/internal/payment"
	"mallpay/internal/refund"
)

// ErrAlreadyRefunded 退款单已完成，重复完成请求
var ErrAlreadyRefunded = errors.New("退款单已完成")

// Coordinator 退款结算协调器
// 负责 approved_refunding 退款单的资金落地：
// 先调网关向买家原路退款，再在同一数据库事务内完成状态流转与账本冲正
type Coordinator struct {
	db       *gorm.DB
	ledger   *ledger.Service
	refunds  *refund.Service
	gateway  payment.Gateway
	notifier notification.Notifier
	policy   ClawbackPolicy
}

// NewCoordinator 创建退款结算协调器
func NewCoordinator(db *gorm.DB, ledgerSvc *ledger.Service, refundSvc *refund.Service,
	gateway payment.Gateway, notifier notification.Notifier, policy ClawbackPolicy) *Coordinator {
	if !policy.Valid() {
		policy = ClawbackSellerAndPlatform
	}
	return &Coordinator{
		db:       db,
		ledger:   ledgerSvc,
		refunds:  refundSvc,
		gateway:  gateway,
		notifier: notifier,
		policy:   policy,
	}
}

// Complete 完成一笔待结算退款
// 网关调用失败时退款单停留在 approved_refunding，可安全重试
// （网关以退款单号为幂等键，不会重复打款）
func (c *Coordinator) Complete(ctx context.Context, refundID string) (*refund.Refund, error) {
	ref, err := c.refunds.Get(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if ref.Status == refund.StatusCompleted {
		return nil, ErrAlreadyRefunded
	}
	if ref.Status != refund.StatusApprovedRefunding {
		return nil, fmt.Errorf("%w: %s -> %s", refund.ErrInvalidStateTransition,
			ref.Status, refund.StatusCompleted)
	}

	// 先走外部网关，成功后才动内部账本
	if err := c.gateway.Refund(ctx, payment.RefundRequest{
		RefundID: ref.ID,
		OrderID:  ref.OrderID,
		BuyerID:  ref.BuyerID,
		Amount:   ref.Amount,
		Reason:   ref.Reason,
	}); err != nil {
		metrics.GatewayRefundFailuresTotal.Inc()
		logger.Error("网关退款失败",
			zap.String("refund_id", ref.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", payment.ErrGatewayUnavailable, err)
	}

	phase := "before_settlement"
	now := time.Now()
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 锁单后再判定结算状态：与结算引擎抢同一把订单行锁，
		// 杜绝结算提交窗口内退款走免追回路径造成双重付出
		var ord order.Order
		if err := tx.Scopes(common.ForUpdate()).Where("id = ?", ref.OrderID).First(&ord).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return order.ErrOrderNotFound
			}
			return fmt.Errorf("锁定订单失败: %w", err)
		}

		result := tx.Model(&refund.Refund{}).
			Where("id = ? AND status = ?", ref.ID, refund.StatusApprovedRefunding).
			Updates(map[string]any{"status": refund.StatusCompleted, "completed_at": now})
		if result.Error != nil {
			return fmt.Errorf("更新退款状态失败: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyRefunded
		}

		var fee PlatformFee
		feeErr := tx.Where("order_id = ?", ref.OrderID).First(&fee).Error
		settled := feeErr == nil
		if feeErr != nil && !errors.Is(feeErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("查询佣金记录失败: %w", feeErr)
		}

		if !settled {
			// 佣金记录与打款流水同事务落库，只见打款不见佣金说明账本已被破坏
			paidOut, err := c.ledger.HasSellerPayoutTx(tx, ref.OrderID)
			if err != nil {
				return err
			}
			if paidOut {
				metrics.InvariantViolationsTotal.Inc()
				return fmt.Errorf("%w: 订单 %s 存在打款流水但无佣金记录",
					ErrArithmeticInvariant, ref.OrderID)
			}
			return c.completeUnsettled(tx, ref, &ord, now)
		}
		phase = "after_settlement"
		return c.completeSettled(tx, ref, &ord, &fee)
	})
	if err != nil {
		return nil, err
	}

	metrics.RefundsCompletedTotal.WithLabelValues(phase).Inc()
	logger.Info("退款完成",
		zap.String("refund_id", ref.ID),
		zap.String("order_id", ref.OrderID),
		zap.String("amount", ref.Amount.String()),
		zap.String("phase", phase),
	)
	if c.notifier != nil {
		c.notifier.Notify(ctx, notification.Event{
			Type:     notification.EventRefundCompleted,
			UserID:   ref.BuyerID,
			OrderID:  ref.OrderID,
			RefundID: ref.ID,
			Amount:   ref.Amount.String(),
		})
	}
	return c.refunds.Get(ctx, refundID)
}

// completeUnsettled 结算前退款：货款还在托管账户，直接从平台退给买家
// 累计退满订单总额时盖上结算标记，订单不再进入结算批次
func (c *Coordinator) completeUnsettled(tx *gorm.DB, ref *refund.Refund, ord *order.Order, now time.Time) error {
	_, _, err := c.ledger.TransferTx(tx, ledger.TransferRequest{
		FromOwnerType: ledger.OwnerPlatform,
		FromOwnerID:   ledger.PlatformOwnerID,
		ToOwnerType:   ledger.OwnerBuyer,
		ToOwnerID:     ref.BuyerID,
		Amount:        ref.Amount,
		Type:          ledger.TransactionTypeRefund,
		OrderID:       ref.OrderID,
		RefundID:      ref.ID,
		Description:   "结算前退款",
	})
	if err != nil {
		return err
	}

	var refunds []refund.Refund
	if err := tx.Where("order_id = ? AND status = ?", ref.OrderID, refund.StatusCompleted).
		Find(&refunds).Error; err != nil {
		return fmt.Errorf("查询已完成退款失败: %w", err)
	}
	total := decimal.Zero
	for _, r := range refunds {
		total = total.Add(r.Amount)
	}
	if total.GreaterThanOrEqual(ord.TotalAmount) {
		// 全额退款，免结算
		if err := tx.Model(&order.Order{}).
			Where("id = ? AND settled_at IS NULL", ord.ID).
			Update("settled_at", now).Error; err != nil {
			return fmt.Errorf("更新结算标记失败: %w", err)
		}
	}
	return nil
}

// completeSettled 结算后退款：货款已分账，按策略回冲
func (c *Coordinator) completeSettled(tx *gorm.DB, ref *refund.Refund, ord *order.Order, fee *PlatformFee) error {
	// 锁内读数计算分摊。逐笔半进位的佣金份额合计可能偏离实收佣金一分，
	// 故回冲封顶于实收余量，退满订单总额的尾笔直接补齐到实收佣金
	var locked PlatformFee
	if err := tx.Scopes(common.ForUpdate()).Where("id = ?", fee.ID).First(&locked).Error; err != nil {
		return fmt.Errorf("锁定佣金记录失败: %w", err)
	}
	completedTotal, err := c.refunds.CompletedRefundTotalTx(tx, ref.OrderID)
	if err != nil {
		return err
	}

	remaining := locked.FeeAmount.Sub(locked.RefundedFeeAmount)
	feeShare := SplitFee(ref.Amount, locked.FeePercent)
	if completedTotal.GreaterThanOrEqual(ord.TotalAmount) || feeShare.GreaterThan(remaining) {
		feeShare = remaining
	}
	sellerShare := ref.Amount.Sub(feeShare)

	switch c.policy {
	case ClawbackPlatformOnly:
		// 平台独自承担，不追回卖家货款
		_, _, err := c.ledger.TransferTx(tx, ledger.TransferRequest{
			FromOwnerType: ledger.OwnerPlatform,
			FromOwnerID:   ledger.PlatformOwnerID,
			ToOwnerType:   ledger.OwnerBuyer,
			ToOwnerID:     ref.BuyerID,
			Amount:        ref.Amount,
			Type:          ledger.TransactionTypeRefund,
			OrderID:       ref.OrderID,
			RefundID:      ref.ID,
			Description:   "结算后退款（平台承担）",
		})
		if err != nil {
			return err
		}
	default:
		// 按原始分账比例由卖家与平台分摊
		if sellerShare.IsPositive() {
			_, _, err := c.ledger.TransferTx(tx, ledger.TransferRequest{
				FromOwnerType: ledger.OwnerSeller,
				FromOwnerID:   ref.SellerID,
				ToOwnerType:   ledger.OwnerBuyer,
				ToOwnerID:     ref.BuyerID,
				Amount:        sellerShare,
				Type:          ledger.TransactionTypeRefund,
				OrderID:       ref.OrderID,
				RefundID:      ref.ID,
				Description:   "结算后退款（卖家分摊）",
			})
			if err != nil {
				return err
			}
		}
		if feeShare.IsPositive() {
			_, _, err := c.ledger.TransferTx(tx, ledger.TransferRequest{
				FromOwnerType: ledger.OwnerPlatform,
				FromOwnerID:   ledger.PlatformOwnerID,
				ToOwnerType:   ledger.OwnerBuyer,
				ToOwnerID:     ref.BuyerID,
				Amount:        feeShare,
				Type:          ledger.TransactionTypeRefund,
				OrderID:       ref.OrderID,
				RefundID:      ref.ID,
				Description:   "结算后退款（佣金回冲）",
			})
			if err != nil {
				return err
			}
		}
	}

	return tx.Model(&PlatformFee{}).Where("id = ?", fee.ID).
		Update("refunded_fee_amount", locked.RefundedFeeAmount.Add(feeShare)).Error
}

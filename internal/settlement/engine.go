package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mallpay/internal/common"
	"mallpay/internal/ledger"
	"mallpay/internal/logger"
	"mallpay/internal/metrics"
	"mallpay/internal/notification"
	"mallpay/internal/order"
	"mallpay/internal/refund"
)

// ============ 错误定义 ============

var (
	ErrAlreadySettled      = errors.New("订单已结算")
	ErrOrderNotSettleable  = errors.New("订单不满足结算条件")
	ErrRefundInFlight      = errors.New("存在未决退款，暂缓结算")
	ErrArithmeticInvariant = errors.New("分账金额守恒校验失败")
)

// ============ 结算引擎 ============

// Engine 分账结算引擎
// 对单笔订单执行至多一次的佣金拆分与卖家打款
type Engine struct {
	db         *gorm.DB
	ledger     *ledger.Service
	refunds    *refund.Service
	notifier   notification.Notifier
	feePercent decimal.Decimal
}

// NewEngine 创建结算引擎
func NewEngine(db *gorm.DB, ledgerSvc *ledger.Service, refundSvc *refund.Service,
	notifier notification.Notifier, feePercent float64) *Engine {
	return &Engine{
		db:         db,
		ledger:     ledgerSvc,
		refunds:    refundSvc,
		notifier:   notifier,
		feePercent: decimal.NewFromFloat(feePercent),
	}
}

// SettleOrder 结算单笔订单
// 幂等：platform_fees.order_id 唯一索引保证并发下至多一次打款，
// 重复调用返回 ErrAlreadySettled
func (e *Engine) SettleOrder(ctx context.Context, orderID string) (*PlatformFee, error) {
	var ord order.Order
	if err := e.db.WithContext(ctx).Where("id = ?", orderID).First(&ord).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}

	if ord.SettledAt != nil {
		return nil, ErrAlreadySettled
	}
	if ord.PaymentStatus != order.PaymentStatusPaid {
		return nil, fmt.Errorf("%w: 订单未支付", ErrOrderNotSettleable)
	}
	if ord.Status == order.StatusCancelled {
		return nil, fmt.Errorf("%w: 订单已取消", ErrOrderNotSettleable)
	}

	var (
		platformFee  *PlatformFee
		base         decimal.Decimal
		fee          decimal.Decimal
		sellerAmount decimal.Decimal
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 锁单复核结算标记，与唯一索引双保险
		var locked order.Order
		if err := tx.Scopes(common.ForUpdate()).Where("id = ?", orderID).First(&locked).Error; err != nil {
			return fmt.Errorf("锁定订单失败: %w", err)
		}
		if locked.SettledAt != nil {
			return ErrAlreadySettled
		}
		if locked.PaymentStatus != order.PaymentStatusPaid {
			// 支付撤销与结算抢锁，以锁内读数为准
			return fmt.Errorf("%w: 订单未支付", ErrOrderNotSettleable)
		}

		// 退款状态与基数必须在锁内判定：锁外读数与提交之间完成的退款
		// 会让打款基数多算一笔退款额
		open, err := e.hasOpenRefund(tx, orderID)
		if err != nil {
			return err
		}
		if open {
			// 有未决退款时暂缓，等退款终态后由下一批次结算
			return ErrRefundInFlight
		}

		refunded, err := e.refunds.CompletedRefundTotalTx(tx, orderID)
		if err != nil {
			return err
		}
		base = locked.TotalAmount.Sub(refunded)
		if base.IsNegative() {
			return fmt.Errorf("%w: 已退款 %s 超过订单总额 %s",
				ErrArithmeticInvariant, refunded.String(), locked.TotalAmount.String())
		}

		fee = SplitFee(base, e.feePercent)
		sellerAmount = base.Sub(fee)

		// 守恒校验：佣金加卖家应得必须精确等于基数
		if !fee.Add(sellerAmount).Equal(base) || sellerAmount.IsNegative() {
			metrics.InvariantViolationsTotal.Inc()
			logger.Error("分账守恒校验失败",
				zap.String("order_id", orderID),
				zap.String("base", base.String()),
				zap.String("fee", fee.String()),
				zap.String("seller", sellerAmount.String()),
			)
			return ErrArithmeticInvariant
		}

		now := time.Now()
		platformFee = &PlatformFee{
			ID:           uuid.New().String(),
			OrderID:      orderID,
			SellerID:     locked.SellerID,
			FeePercent:   e.feePercent,
			BaseAmount:   base,
			FeeAmount:    fee,
			SellerAmount: sellerAmount,
			SettledAt:    now,
		}

		if err := tx.Create(platformFee).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadySettled
			}
			return fmt.Errorf("写入佣金记录失败: %w", err)
		}

		// 基数为零（全额退款后）只落结算见证，不产生资金流水
		if sellerAmount.IsPositive() {
			_, _, err := e.ledger.TransferTx(tx, ledger.TransferRequest{
				FromOwnerType: ledger.OwnerPlatform,
				FromOwnerID:   ledger.PlatformOwnerID,
				ToOwnerType:   ledger.OwnerSeller,
				ToOwnerID:     locked.SellerID,
				Amount:        sellerAmount,
				Type:          ledger.TransactionTypeSellerPayout,
				OrderID:       orderID,
				Description:   "订单结算卖家打款",
			})
			if err != nil {
				return err
			}
		}

		return tx.Model(&order.Order{}).Where("id = ?", orderID).
			Update("settled_at", now).Error
	})
	if err != nil {
		if errors.Is(err, ErrAlreadySettled) || errors.Is(err, ErrRefundInFlight) {
			metrics.SettlementsTotal.WithLabelValues("skipped").Inc()
		} else {
			metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		}
		return nil, err
	}

	metrics.SettlementsTotal.WithLabelValues("success").Inc()
	metrics.SettlementAmount.Add(base.InexactFloat64())
	logger.Info("订单结算完成",
		zap.String("order_id", orderID),
		zap.String("base", base.String()),
		zap.String("fee", fee.String()),
		zap.String("seller_amount", sellerAmount.String()),
	)
	if c := e.notifier; c != nil && sellerAmount.IsPositive() {
		c.Notify(ctx, notification.Event{
			Type:    notification.EventSellerPaidOut,
			UserID:  ord.SellerID,
			OrderID: orderID,
			Amount:  sellerAmount.String(),
		})
	}
	return platformFee, nil
}

// GetByOrder 查询订单的佣金记录
func (e *Engine) GetByOrder(ctx context.Context, orderID string) (*PlatformFee, error) {
	var fee PlatformFee
	err := e.db.WithContext(ctx).Where("order_id = ?", orderID).First(&fee).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, fmt.Errorf("查询佣金记录失败: %w", err)
	}
	return &fee, nil
}

func (e *Engine) hasOpenRefund(tx *gorm.DB, orderID string) (bool, error) {
	var count int64
	err := tx.Model(&refund.Refund{}).
		Where("order_id = ? AND status NOT IN ?", orderID,
			[]refund.Status{refund.StatusRejected, refund.StatusCompleted}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("查询未决退款失败: %w", err)
	}
	return count > 0, nil
}

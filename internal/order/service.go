package order

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
)

// ============ 错误定义 ============

var (
	ErrOrderNotFound          = errors.New("订单不存在")
	ErrInvalidStateTransition = errors.New("非法的订单状态流转")
	ErrInvalidAmount          = errors.New("订单金额必须为正数")
	ErrOrderNotPayable        = errors.New("订单当前不可支付")
)

// ============ 订单服务 ============

// Service 订单服务：履约状态机与支付状态
type Service struct {
	db     *gorm.DB
	ledger *ledger.Service
}

// NewService 创建订单服务
func NewService(db *gorm.DB, ledgerSvc *ledger.Service) *Service {
	return &Service{db: db, ledger: ledgerSvc}
}

// Create 创建订单，初始为 pending/unpaid
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Order, error) {
	if req.TotalAmount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	order := &Order{
		ID:            uuid.New().String(),
		BuyerID:       req.BuyerID,
		ShopID:        req.ShopID,
		SellerID:      req.SellerID,
		TotalAmount:   req.TotalAmount.Round(2),
		Status:        StatusPending,
		PaymentStatus: PaymentStatusUnpaid,
		Remark:        req.Remark,
	}
	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, fmt.Errorf("创建订单失败: %w", err)
	}

	logger.Info("订单创建成功",
		zap.String("order_id", order.ID),
		zap.String("buyer_id", order.BuyerID),
		zap.String("amount", order.TotalAmount.String()),
	)
	return order, nil
}

// Get 查询订单
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	err := s.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	return &order, nil
}

// List 分页查询订单
func (s *Service) List(ctx context.Context, query *ListQuery) ([]Order, int64, error) {
	db := s.db.WithContext(ctx).Model(&Order{})
	if query.BuyerID != "" {
		db = db.Where("buyer_id = ?", query.BuyerID)
	}
	if query.SellerID != "" {
		db = db.Where("seller_id = ?", query.SellerID)
	}
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计订单失败: %w", err)
	}

	pagination := common.PaginationRequest{Page: query.Page, PageSize: query.PageSize}
	var orders []Order
	err := db.Order("created_at DESC").
		Offset(pagination.GetOffset()).
		Limit(pagination.GetPageSize()).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询订单失败: %w", err)
	}
	return orders, total, nil
}

// Transition 推进订单履约状态
// 更新带上当前状态作为守卫条件，并发下只有一个调用者能赢得流转
func (s *Service) Transition(ctx context.Context, orderID string, to Status) (*Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(order.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, order.Status, to)
	}

	now := time.Now()
	updates := map[string]any{"status": to}
	switch to {
	case StatusCompleted:
		updates["completed_at"] = now
	case StatusCancelled:
		updates["cancelled_at"] = now
	}

	result := s.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", orderID, order.Status).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("更新订单状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// 守卫失败说明状态已被并发修改
		return nil, fmt.Errorf("%w: 订单 %s 状态已变更", ErrInvalidStateTransition, orderID)
	}

	logger.Info("订单状态流转",
		zap.String("order_id", orderID),
		zap.String("from", string(order.Status)),
		zap.String("to", string(to)),
	)
	return s.Get(ctx, orderID)
}

// Cancel 取消订单
func (s *Service) Cancel(ctx context.Context, orderID string) (*Order, error) {
	return s.Transition(ctx, orderID, StatusCancelled)
}

// MarkPaid 标记订单支付成功并将货款记入平台托管账户
// 重复回调安全：守卫更新未命中且订单已是 paid 时直接返回，不重复入账
func (s *Service) MarkPaid(ctx context.Context, orderID string) (*Order, error) {
	var paid bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order Order
		if err := tx.Scopes(common.ForUpdate()).Where("id = ?", orderID).First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("查询订单失败: %w", err)
		}
		if order.Status == StatusCancelled {
			return fmt.Errorf("%w: 订单已取消", ErrOrderNotPayable)
		}

		now := time.Now()
		result := tx.Model(&Order{}).
			Where("id = ? AND payment_status = ?", orderID, PaymentStatusUnpaid).
			Updates(map[string]any{"payment_status": PaymentStatusPaid, "paid_at": now})
		if result.Error != nil {
			return fmt.Errorf("更新支付状态失败: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			if order.PaymentStatus == PaymentStatusPaid {
				return nil // 重复通知，幂等返回
			}
			return fmt.Errorf("%w: 当前支付状态 %s", ErrOrderNotPayable, order.PaymentStatus)
		}

		// 货款入托管与支付状态同事务提交
		_, err := s.ledger.CreditTx(tx, ledger.OwnerPlatform, ledger.PlatformOwnerID,
			order.TotalAmount, ledger.TransactionTypeOrderPayment, order.ID, "", "订单货款入托管")
		if err != nil {
			return err
		}
		paid = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if paid {
		logger.Info("订单支付成功", zap.String("order_id", orderID))
	}
	return s.Get(ctx, orderID)
}

// MarkPaymentFailed 标记订单支付失败
// unpaid 直接置为 failed；paid 订单（网关撤销已捕获的支付）需在同事务内
// 冲正托管货款后才能置为 failed，已结算订单资金已出托管，不允许回退
func (s *Service) MarkPaymentFailed(ctx context.Context, orderID string) (*Order, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order Order
		if err := tx.Scopes(common.ForUpdate()).Where("id = ?", orderID).First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("查询订单失败: %w", err)
		}

		switch order.PaymentStatus {
		case PaymentStatusFailed:
			return nil // 重复通知，幂等返回
		case PaymentStatusUnpaid:
			result := tx.Model(&Order{}).
				Where("id = ? AND payment_status = ?", orderID, PaymentStatusUnpaid).
				Update("payment_status", PaymentStatusFailed)
			if result.Error != nil {
				return fmt.Errorf("更新支付状态失败: %w", result.Error)
			}
			return nil
		case PaymentStatusPaid:
			if order.SettledAt != nil {
				return fmt.Errorf("%w: 订单已结算，支付状态不可回退", ErrOrderNotPayable)
			}
			var refundRows int64
			if err := tx.Model(&ledger.Transaction{}).
				Where("order_id = ? AND type = ?", orderID, ledger.TransactionTypeRefund).
				Count(&refundRows).Error; err != nil {
				return fmt.Errorf("查询退款流水失败: %w", err)
			}
			if refundRows > 0 {
				return fmt.Errorf("%w: 订单已有退款流水，支付状态不可回退", ErrOrderNotPayable)
			}
			result := tx.Model(&Order{}).
				Where("id = ? AND payment_status = ?", orderID, PaymentStatusPaid).
				Update("payment_status", PaymentStatusFailed)
			if result.Error != nil {
				return fmt.Errorf("更新支付状态失败: %w", result.Error)
			}
			// 捕获失败回滚：托管货款冲正出账，与支付状态同事务提交
			_, err := s.ledger.DebitTx(tx, ledger.OwnerPlatform, ledger.PlatformOwnerID,
				order.TotalAmount, ledger.TransactionTypeOrderPayment, order.ID, "", "支付撤销货款冲正")
			return err
		default:
			return fmt.Errorf("%w: 当前支付状态 %s", ErrOrderNotPayable, order.PaymentStatus)
		}
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID)
}

// AutoCompletePass 批量将超期未确认收货的已发货订单置为完成
// 供定时任务调用，逐单失败只记日志不中断
func (s *Service) AutoCompletePass(ctx context.Context, now time.Time, after time.Duration, batchSize int) (int, error) {
	cutoff := now.Add(-after)
	var orders []Order
	err := s.db.WithContext(ctx).
		Where("status = ? AND payment_status = ? AND updated_at <= ?",
			StatusShipping, PaymentStatusPaid, cutoff).
		Order("updated_at ASC").
		Limit(batchSize).
		Find(&orders).Error
	if err != nil {
		return 0, fmt.Errorf("查询待自动完成订单失败: %w", err)
	}

	completed := 0
	for _, o := range orders {
		if _, err := s.Transition(ctx, o.ID, StatusCompleted); err != nil {
			logger.Warn("订单自动完成失败",
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
			continue
		}
		completed++
	}
	if completed > 0 {
		logger.Info("订单自动完成批次结束", zap.Int("completed", completed))
	}
	return completed, nil
}

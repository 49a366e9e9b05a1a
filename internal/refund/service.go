package refund

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mallpay/internal/common"
	"mallpay/internal/logger"
	"mallpay/internal/order"
)

// ============ 错误定义 ============

var (
	ErrRefundNotFound         = errors.New("退款单不存在")
	ErrInvalidStateTransition = errors.New("非法的退款状态流转")
	ErrInvalidAmount          = errors.New("退款金额必须为正数")
	ErrAmountExceedsRemaining = errors.New("退款金额超过订单可退余额")
	ErrItemsAmountMismatch    = errors.New("明细金额合计与退款金额不一致")
	ErrOrderNotRefundable     = errors.New("订单当前不可退款")
)

// ============ 退款服务 ============

// Service 退款服务：申请与审核状态机
// 退款完成（资金划转）由 Coordinator 负责
type Service struct {
	db     *gorm.DB
	orders *order.Service
}

// NewService 创建退款服务
func NewService(db *gorm.DB, orderSvc *order.Service) *Service {
	return &Service{db: db, orders: orderSvc}
}

// Create 买家发起退款申请
// 约束：订单已支付未取消；本单金额加上既有非驳回退款不超过订单总额；明细合计等于退款金额
func (s *Service) Create(ctx context.Context, buyerID string, req *Request) (*Refund, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	ord, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if ord.PaymentStatus != order.PaymentStatusPaid {
		return nil, fmt.Errorf("%w: 订单未支付", ErrOrderNotRefundable)
	}
	if ord.Status == order.StatusCancelled {
		return nil, fmt.Errorf("%w: 订单已取消", ErrOrderNotRefundable)
	}

	amount := req.Amount.Round(2)
	if len(req.Items) > 0 {
		itemsTotal := decimal.Zero
		for _, item := range req.Items {
			itemsTotal = itemsTotal.Add(item.Amount)
		}
		if !itemsTotal.Round(2).Equal(amount) {
			return nil, ErrItemsAmountMismatch
		}
	}

	refunded, err := s.ActiveRefundTotal(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if refunded.Add(amount).GreaterThan(ord.TotalAmount) {
		return nil, fmt.Errorf("%w: 已占用 %s，订单总额 %s",
			ErrAmountExceedsRemaining, refunded.String(), ord.TotalAmount.String())
	}

	images, err := json.Marshal(req.Images)
	if err != nil {
		return nil, fmt.Errorf("序列化凭证图片失败: %w", err)
	}

	refund := &Refund{
		ID:       uuid.New().String(),
		OrderID:  ord.ID,
		BuyerID:  buyerID,
		SellerID: ord.SellerID,
		Amount:   amount,
		Status:   StatusPending,
		Reason:   req.Reason,
		Images:   images,
	}
	for _, item := range req.Items {
		refund.Items = append(refund.Items, RefundItem{
			ID:        uuid.New().String(),
			RefundID:  refund.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Amount:    item.Amount.Round(2),
		})
	}

	if err := s.db.WithContext(ctx).Create(refund).Error; err != nil {
		return nil, fmt.Errorf("创建退款单失败: %w", err)
	}

	logger.Info("退款申请创建成功",
		zap.String("refund_id", refund.ID),
		zap.String("order_id", refund.OrderID),
		zap.String("amount", refund.Amount.String()),
	)
	return refund, nil
}

// Get 查询退款单（含明细）
func (s *Service) Get(ctx context.Context, refundID string) (*Refund, error) {
	var refund Refund
	err := s.db.WithContext(ctx).Preload("Items").Where("id = ?", refundID).First(&refund).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, fmt.Errorf("查询退款单失败: %w", err)
	}
	return &refund, nil
}

// ListByOrder 查询订单下全部退款单
func (s *Service) ListByOrder(ctx context.Context, orderID string) ([]Refund, error) {
	var refunds []Refund
	err := s.db.WithContext(ctx).Preload("Items").
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&refunds).Error
	if err != nil {
		return nil, fmt.Errorf("查询退款单失败: %w", err)
	}
	return refunds, nil
}

// ActiveRefundTotal 订单下非驳回退款单的金额合计（进程内累加）
func (s *Service) ActiveRefundTotal(ctx context.Context, orderID string) (decimal.Decimal, error) {
	var refunds []Refund
	err := s.db.WithContext(ctx).
		Scopes(common.ByOrder(orderID)).
		Where("status <> ?", StatusRejected).
		Find(&refunds).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("查询退款单失败: %w", err)
	}
	total := decimal.Zero
	for _, r := range refunds {
		total = total.Add(r.Amount)
	}
	return total, nil
}

// CompletedRefundTotalTx 订单下已完成退款的金额合计
// 事务内调用，供结算引擎与退款协调器在锁住订单行后复核退款基数
func (s *Service) CompletedRefundTotalTx(tx *gorm.DB, orderID string) (decimal.Decimal, error) {
	var refunds []Refund
	err := tx.
		Scopes(common.ByOrder(orderID)).
		Where("status = ?", StatusCompleted).
		Find(&refunds).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("查询退款单失败: %w", err)
	}
	total := decimal.Zero
	for _, r := range refunds {
		total = total.Add(r.Amount)
	}
	return total, nil
}

// Approve 卖家同意退款
// requireReturn 为真时走退货流程（等待买家寄回），否则直接进入待结算
func (s *Service) Approve(ctx context.Context, refundID string, requireReturn bool) (*Refund, error) {
	to := StatusApprovedRefunding
	if requireReturn {
		to = StatusApprovedWaitingReturn
	}
	return s.transition(ctx, refundID, to, nil)
}

// Reject 驳回退款申请（待审核或验货阶段均可驳回）
func (s *Service) Reject(ctx context.Context, refundID, reason string) (*Refund, error) {
	return s.transition(ctx, refundID, StatusRejected, map[string]any{"reject_reason": reason})
}

// MarkReturning 买家标记已寄出退货
func (s *Service) MarkReturning(ctx context.Context, refundID string) (*Refund, error) {
	return s.transition(ctx, refundID, StatusReturning, nil)
}

// ConfirmReturned 卖家确认收到退货，进入待结算
func (s *Service) ConfirmReturned(ctx context.Context, refundID string) (*Refund, error) {
	return s.transition(ctx, refundID, StatusApprovedRefunding, nil)
}

// transition 推进退款状态，守卫更新保证并发安全
func (s *Service) transition(ctx context.Context, refundID string, to Status, extra map[string]any) (*Refund, error) {
	refund, err := s.Get(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(refund.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, refund.Status, to)
	}

	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	result := s.db.WithContext(ctx).Model(&Refund{}).
		Where("id = ? AND status = ?", refundID, refund.Status).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("更新退款状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: 退款单 %s 状态已变更", ErrInvalidStateTransition, refundID)
	}

	logger.Info("退款状态流转",
		zap.String("refund_id", refundID),
		zap.String("from", string(refund.Status)),
		zap.String("to", string(to)),
	)
	return s.Get(ctx, refundID)
}

package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mallpay/internal/logger"
)

// ErrGatewayUnavailable 支付网关不可用或调用失败
var ErrGatewayUnavailable = errors.New("支付网关不可用")

// RefundRequest 网关退款请求
// RefundID 同时作为网关侧幂等键，重复提交同一退款单不会重复打款
type RefundRequest struct {
	RefundID string
	OrderID  string
	BuyerID  string
	Amount   decimal.Decimal
	Reason   string
}

// Gateway 外部支付网关
type Gateway interface {
	// Refund 向买家原路退款，失败返回 ErrGatewayUnavailable（含包装）
	Refund(ctx context.Context, req RefundRequest) error
}

// ============ 开发环境实现 ============

// DevGateway 开发/测试用网关，只记日志不发起真实打款
type DevGateway struct{}

// NewDevGateway 创建开发网关
func NewDevGateway() *DevGateway {
	return &DevGateway{}
}

// Refund 直接成功
func (g *DevGateway) Refund(ctx context.Context, req RefundRequest) error {
	logger.Info("模拟网关退款",
		zap.String("refund_id", req.RefundID),
		zap.String("order_id", req.OrderID),
		zap.String("amount", req.Amount.String()),
	)
	return nil
}

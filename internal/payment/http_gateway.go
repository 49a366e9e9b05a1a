package payment

import (
	"context"
	"fmt"
	"time"

	"mallpay/pkg/httputil"
)

// HTTPGateway 对接外部支付服务商的网关实现
// 退款请求携带退款单号作为幂等键，服务商侧保证不重复打款
type HTTPGateway struct {
	client  *httputil.Client
	baseURL string
}

// NewHTTPGateway 创建网关客户端
func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		client: httputil.NewClient(
			httputil.WithTimeout(timeout),
			httputil.WithRetries(2),
			httputil.WithHeaders(map[string]string{
				"Authorization": "Bearer " + apiKey,
			}),
		),
		baseURL: baseURL,
	}
}

// refundResponse 服务商退款响应
type refundResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Refund 向买家原路退款
func (g *HTTPGateway) Refund(ctx context.Context, req RefundRequest) error {
	body := map[string]any{
		"idempotency_key": req.RefundID,
		"order_id":        req.OrderID,
		"buyer_id":        req.BuyerID,
		"amount":          req.Amount.String(),
		"reason":          req.Reason,
	}

	var resp refundResponse
	if err := g.client.PostJSON(ctx, g.baseURL+"/v1/refunds", body, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if resp.Code != 0 {
		return fmt.Errorf("%w: 服务商返回 code=%d message=%s", ErrGatewayUnavailable, resp.Code, resp.Message)
	}
	return nil
}

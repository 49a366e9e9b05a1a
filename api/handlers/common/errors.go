package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mallpay/internal/ledger"
	"mallpay/internal/order"
	"mallpay/internal/payment"
	"mallpay/internal/refund"
	"mallpay/internal/settlement"
)

// HandleError 将领域错误映射为 HTTP 状态码并返回统一错误响应
func HandleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, refund.ErrRefundNotFound),
		errors.Is(err, ledger.ErrAccountNotFound):
		Error(c, http.StatusNotFound, err.Error())

	case errors.Is(err, order.ErrInvalidStateTransition),
		errors.Is(err, refund.ErrInvalidStateTransition),
		errors.Is(err, settlement.ErrAlreadySettled),
		errors.Is(err, settlement.ErrAlreadyRefunded),
		errors.Is(err, settlement.ErrRefundInFlight),
		errors.Is(err, ledger.ErrInsufficientBalance):
		Error(c, http.StatusConflict, err.Error())

	case errors.Is(err, order.ErrInvalidAmount),
		errors.Is(err, order.ErrOrderNotPayable),
		errors.Is(err, refund.ErrInvalidAmount),
		errors.Is(err, refund.ErrAmountExceedsRemaining),
		errors.Is(err, refund.ErrItemsAmountMismatch),
		errors.Is(err, refund.ErrOrderNotRefundable),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, settlement.ErrOrderNotSettleable):
		Error(c, http.StatusBadRequest, err.Error())

	case errors.Is(err, payment.ErrGatewayUnavailable):
		Error(c, http.StatusBadGateway, err.Error())

	default:
		Error(c, http.StatusInternalServerError, err.Error())
	}
}
